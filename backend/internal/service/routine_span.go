package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/model"
	"routine-scheduler/backend/internal/notifier"
	"routine-scheduler/backend/internal/repository"
	"routine-scheduler/backend/pkg/metrics"
)

// spanMember 跨节课程中一个节次的写入计划
// reused=true 表示复用该格子上已清空的行（原地写入而非新建）
type spanMember struct {
	slot   *model.RoutineSlot
	reused bool
}

// ────────────────────── AssignSpanned ──────────────────────

func (s *routineService) AssignSpanned(ctx context.Context, req *dto.AssignSpanRequest, callerID string) (*dto.SpanResponse, error) {
	teacherIDs, indexes, err := s.validate.span(req)
	if err != nil {
		return nil, err
	}
	cohort := toCohort(&req.CohortQuery)
	day := *req.DayIndex

	if err := s.resolveProgram(ctx, cohort.ProgramCode); err != nil {
		return nil, err
	}
	refs, err := s.resolveContent(ctx, &req.SlotContent, teacherIDs)
	if err != nil {
		return nil, err
	}

	spanID := uuid.NewString()
	members := make([]spanMember, 0, len(indexes))

	// 逐个节次解析与检测，任一冲突立即中止，此时尚未写入
	for i, index := range indexes {
		ts, err := s.resolveTimeSlot(ctx, index)
		if err != nil {
			if errors.Is(err, ErrSlotNotAssignable) {
				return nil, fmt.Errorf("节次 %d: %w", index, err)
			}
			return nil, err
		}

		existing, err := s.repo.RoutineSlot.FindByCell(ctx, cohort, day, index)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("查询课表格子失败", zap.String("cohort", cohort.String()), zap.Int("slot_index", index), zap.Error(err))
			return nil, err
		}

		// 跨节排课从不原地覆盖：已占用的班级格子由冲突检测报告为 section 冲突
		conflictIndex := index
		if err := s.checkConflicts(ctx, Candidate{
			Cohort:     cohort,
			DayIndex:   day,
			SlotIndex:  index,
			TeacherIDs: teacherIDs,
			RoomID:     req.RoomID,
		}, "", &conflictIndex); err != nil {
			return nil, err
		}

		member := spanMember{slot: existing, reused: existing != nil}
		if existing == nil {
			member.slot = &model.RoutineSlot{
				Cohort:    cohort,
				DayIndex:  day,
				SlotIndex: index,
				IsActive:  true,
			}
			member.slot.CreatedBy = &callerID
		}
		applyContent(member.slot, &req.SlotContent, refs, ts)
		member.slot.SpanID = &spanID
		member.slot.SpanMaster = i == 0
		member.slot.UpdatedBy = &callerID
		members = append(members, member)
	}

	if s.supportsTx {
		err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
			for _, m := range members {
				if err := writeSpanMember(ctx, txRepo, m); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, s.storeError("创建跨节课程失败", err, zap.String("span_id", spanID))
		}
	} else if err := s.writeSpanSaga(ctx, spanID, members); err != nil {
		return nil, err
	}

	metrics.ObserveMutation("span")
	s.notifyAffected(ctx, notifier.Message{
		Action:      notifier.ActionCreate,
		Cohort:      toMessageCohort(cohort),
		Day:         &day,
		Slot:        &indexes[0],
		SlotIndexes: indexes,
		SpanID:      spanID,
	}, teacherIDs)

	resp := &dto.SpanResponse{SpanID: spanID, Slots: make([]dto.RoutineSlotResponse, 0, len(members))}
	for _, m := range members {
		resp.Slots = append(resp.Slots, toRoutineSlotResponse(m.slot))
	}
	return resp, nil
}

func writeSpanMember(ctx context.Context, repo *repository.Repository, m spanMember) error {
	if m.reused {
		return repo.RoutineSlot.Update(ctx, m.slot)
	}
	return repo.RoutineSlot.Create(ctx, m.slot)
}

// writeSpanSaga 存储不支持事务时顺序写入，失败后逆序补偿已写入的成员
func (s *routineService) writeSpanSaga(ctx context.Context, spanID string, members []spanMember) error {
	for i, m := range members {
		err := writeSpanMember(ctx, s.repo, m)
		if err == nil {
			continue
		}

		cause := s.storeError("创建跨节课程失败", err,
			zap.String("span_id", spanID), zap.Int("slot_index", m.slot.SlotIndex))

		leftover, compErr := s.compensateSpan(ctx, members[:i])
		if compErr != nil {
			s.logger.Error("跨节课程补偿失败，存在残留格子",
				zap.String("span_id", spanID),
				zap.Strings("leftover_slot_ids", leftover),
				zap.Error(compErr),
			)
			return &PartialSpanError{SpanID: spanID, LeftoverSlotIDs: leftover, Cause: cause, CompensationErr: compErr}
		}
		return cause
	}
	return nil
}

// compensateSpan 撤销已写入的成员：新建的删除，复用的重新清空；返回未能撤销的格子 ID
func (s *routineService) compensateSpan(ctx context.Context, written []spanMember) ([]string, error) {
	var (
		leftover []string
		firstErr error
	)
	for i := len(written) - 1; i >= 0; i-- {
		m := written[i]
		var err error
		if m.reused {
			m.slot.ClearContent()
			err = s.repo.RoutineSlot.Update(ctx, m.slot)
		} else {
			err = s.repo.RoutineSlot.Delete(ctx, m.slot.RoutineSlotID)
		}
		if err != nil {
			leftover = append(leftover, m.slot.RoutineSlotID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return leftover, firstErr
}
