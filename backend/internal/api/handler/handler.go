package handler

import "routine-scheduler/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Routine *RoutineHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Routine: NewRoutineHandler(svc.Routine),
	}
}
