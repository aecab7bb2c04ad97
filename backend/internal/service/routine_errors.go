package service

import (
	"errors"
	"fmt"
	"strings"

	"routine-scheduler/backend/internal/dto"
)

// ── 课表模块业务错误 ──

var (
	ErrRoutineSlotNotFound = errors.New("课表格子不存在")
	ErrSpanNotFound        = errors.New("跨节课程不存在")
	ErrCohortEmpty         = errors.New("该班级暂无课表")
	ErrProgramNotFound     = errors.New("班级所属专业不存在")
	ErrTeacherNotFound     = errors.New("教师不存在")
	ErrReferenceNotFound   = errors.New("引用数据不存在或已停用")
	ErrSlotNotAssignable   = errors.New("该节次为休息时段，不可排课")
	ErrSpanMemberUpdate    = errors.New("跨节课程成员不可单独修改，请删除整组后重新排课")
	ErrDuplicateKey        = errors.New("该时段已被占用")
)

// ValidationError 请求参数不合法
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "参数校验失败: " + e.Message
	}
	return fmt.Sprintf("参数校验失败: %s %s", e.Field, e.Message)
}

// ConflictError 排课与已有课程冲突，未做任何写入
// SlotIndex 仅跨节排课时设置，指向首个冲突的节次
type ConflictError struct {
	SlotIndex *int
	Conflicts []dto.Conflict
}

func (e *ConflictError) Error() string {
	kinds := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		kinds = append(kinds, c.Type+":"+c.ResourceID)
	}
	if e.SlotIndex != nil {
		return fmt.Sprintf("节次 %d 存在排课冲突 [%s]", *e.SlotIndex, strings.Join(kinds, ", "))
	}
	return fmt.Sprintf("存在排课冲突 [%s]", strings.Join(kinds, ", "))
}

// PartialSpanError 非事务存储下跨节排课失败且补偿删除也失败，库中可能残留部分成员
type PartialSpanError struct {
	SpanID          string
	LeftoverSlotIDs []string
	Cause           error
	CompensationErr error
}

func (e *PartialSpanError) Error() string {
	return fmt.Sprintf("跨节课程 %s 创建失败且补偿未完成（残留 %d 个格子）: %v; 补偿错误: %v",
		e.SpanID, len(e.LeftoverSlotIDs), e.Cause, e.CompensationErr)
}

func (e *PartialSpanError) Unwrap() error { return e.Cause }

// referenceNotFound 标注缺失的具体引用
func referenceNotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrReferenceNotFound, kind, id)
}
