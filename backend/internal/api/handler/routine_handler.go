package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/service"
	pkgerrors "routine-scheduler/backend/pkg/errors"
	"routine-scheduler/backend/pkg/response"
)

// RoutineHandler 课表模块 HTTP 处理器
type RoutineHandler struct {
	routineSvc service.RoutineService
}

// NewRoutineHandler 创建 RoutineHandler
func NewRoutineHandler(routineSvc service.RoutineService) *RoutineHandler {
	return &RoutineHandler{routineSvc: routineSvc}
}

// GetRoutine 获取班级周课表
// GET /api/v1/routines?program_code=&semester=&section=
func (h *RoutineHandler) GetRoutine(c *gin.Context) {
	var req dto.CohortQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	routine, err := h.routineSvc.GetRoutine(c.Request.Context(), &req)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, routine)
}

// AssignSlot 单格排课（已有则原地更新）
// POST /api/v1/routines/slots
func (h *RoutineHandler) AssignSlot(c *gin.Context) {
	var req dto.AssignSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.routineSvc.Assign(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	if result.Operation == service.OperationCreate {
		response.Created(c, result)
		return
	}
	response.OK(c, result)
}

// AssignSpan 跨节排课
// POST /api/v1/routines/spans
func (h *RoutineHandler) AssignSpan(c *gin.Context) {
	var req dto.AssignSpanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.routineSvc.AssignSpanned(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.Created(c, result)
}

// UpdateSlot 修改格子课程内容
// PUT /api/v1/routines/slots/:id
func (h *RoutineHandler) UpdateSlot(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 14001, "格子ID不能为空")
		return
	}

	var req dto.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slot, err := h.routineSvc.Update(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, slot)
}

// ClearSlot 清空格子内容（保留格子）
// POST /api/v1/routines/slots/:id/clear
func (h *RoutineHandler) ClearSlot(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slot, err := h.routineSvc.ClearCell(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, slot)
}

// DeleteSlot 删除单个格子
// DELETE /api/v1/routines/slots/:id
func (h *RoutineHandler) DeleteSlot(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.routineSvc.DeleteSlot(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, nil)
}

// DeleteSpan 删除整组跨节课程
// DELETE /api/v1/routines/spans/:span_id
func (h *RoutineHandler) DeleteSpan(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.routineSvc.DeleteSpanGroup(c.Request.Context(), c.Param("span_id"), callerID)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, result)
}

// ClearCohort 清空班级整张课表
// DELETE /api/v1/routines?program_code=&semester=&section=
func (h *RoutineHandler) ClearCohort(c *gin.Context) {
	var req dto.CohortQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.routineSvc.ClearCohort(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, result)
}

// ResyncSnapshots 刷新班级课表的展示快照
// POST /api/v1/routines/resync
func (h *RoutineHandler) ResyncSnapshots(c *gin.Context) {
	var req dto.CohortQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.routineSvc.ResyncSnapshots(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, result)
}

// TeacherAvailability 查询教师在某时刻是否空闲
// GET /api/v1/availability/teachers/:id?day=&slot=
func (h *RoutineHandler) TeacherAvailability(c *gin.Context) {
	var q dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	result, err := h.routineSvc.CheckTeacherAvailability(c.Request.Context(), c.Param("id"), *q.DayIndex, *q.SlotIndex)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, result)
}

// RoomAvailability 查询教室在某时刻是否空闲
// GET /api/v1/availability/rooms/:id?day=&slot=
func (h *RoutineHandler) RoomAvailability(c *gin.Context) {
	var q dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", err.Error())
		return
	}

	result, err := h.routineSvc.CheckRoomAvailability(c.Request.Context(), c.Param("id"), *q.DayIndex, *q.SlotIndex)
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, result)
}

// TeacherRoutine 教师个人课表
// GET /api/v1/teachers/:id/routine
func (h *RoutineHandler) TeacherRoutine(c *gin.Context) {
	result, err := h.routineSvc.GetTeacherRoutine(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleRoutineError(c, err)
		return
	}

	response.OK(c, result)
}

// handleRoutineError 统一处理课表模块业务错误
func (h *RoutineHandler) handleRoutineError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		conflictErr   *service.ConflictError
		partialErr    *service.PartialSpanError
	)

	// PartialSpanError 会 Unwrap 出原因，需先于哨兵错误判断
	switch {
	case errors.As(err, &validationErr):
		response.ErrorWithDetails(c, http.StatusBadRequest, 14001, "参数校验失败", validationErr.Error())
	case errors.As(err, &partialErr):
		response.ErrorWithDetails(c, http.StatusInternalServerError, 14501,
			"跨节课程写入失败且未能完全回滚，请人工核对",
			"残留格子: "+strings.Join(partialErr.LeftoverSlotIDs, ","))
	case errors.As(err, &conflictErr):
		response.Conflict(c, 14301, "排课冲突", gin.H{
			"slot_index": conflictErr.SlotIndex,
			"conflicts":  conflictErr.Conflicts,
		})

	case errors.Is(err, service.ErrReferenceNotFound):
		response.ErrorWithDetails(c, http.StatusNotFound, 14201, "引用数据不存在或已停用", err.Error())
	case errors.Is(err, service.ErrSlotNotAssignable):
		response.ErrorWithDetails(c, http.StatusBadRequest, 14202, "该节次为休息时段，不可排课", err.Error())

	case errors.Is(err, service.ErrDuplicateKey):
		response.Error(c, http.StatusConflict, 14302, "该时段已被占用，请刷新后重试")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Error(c, http.StatusConflict, 14303, "数据已被其他人修改，请刷新后重试")

	case errors.Is(err, service.ErrRoutineSlotNotFound):
		response.NotFound(c, 14101, "课表格子不存在")
	case errors.Is(err, service.ErrSpanNotFound):
		response.NotFound(c, 14102, "跨节课程不存在")
	case errors.Is(err, service.ErrCohortEmpty):
		response.NotFound(c, 14103, "该班级暂无课表")
	case errors.Is(err, service.ErrProgramNotFound):
		response.NotFound(c, 14104, "专业不存在")
	case errors.Is(err, service.ErrTeacherNotFound):
		response.NotFound(c, 14105, "教师不存在")
	case errors.Is(err, service.ErrSpanMemberUpdate):
		response.BadRequest(c, 14106, "跨节课程成员不可单独修改，请删除整组后重新排课")

	default:
		response.InternalError(c)
	}
}
