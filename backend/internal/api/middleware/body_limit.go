package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"routine-scheduler/backend/pkg/response"
)

// BodyLimit 请求体大小限制中间件
// 超限时 ShouldBindJSON 返回 *http.MaxBytesError，handler 未写响应则在此补 413
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()

		if c.IsAborted() || c.Writer.Written() {
			return
		}
		for _, ginErr := range c.Errors {
			var tooLarge *http.MaxBytesError
			if errors.As(ginErr.Err, &tooLarge) {
				response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
				return
			}
		}
	}
}
