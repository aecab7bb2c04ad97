package service

import (
	"context"

	"go.uber.org/zap"

	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/notifier"
	"routine-scheduler/backend/pkg/metrics"
)

// ────────────────────── ClearCell ──────────────────────

// ClearCell 清空格子内容但保留行；已为空的格子直接返回且不发通知
func (s *routineService) ClearCell(ctx context.Context, slotID string, callerID string) (*dto.RoutineSlotResponse, error) {
	slot, err := s.getSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.IsSpanMember() {
		return nil, ErrSpanMemberUpdate
	}
	if !slot.IsOccupied() {
		resp := toRoutineSlotResponse(slot)
		return &resp, nil
	}

	prior := append([]string(nil), slot.TeacherIDs...)
	slot.ClearContent()
	slot.UpdatedBy = &callerID
	if err := s.repo.RoutineSlot.Update(ctx, slot); err != nil {
		return nil, s.storeError("清空课表格子失败", err, zap.String("slot_id", slotID))
	}

	metrics.ObserveMutation(notifier.ActionClear)
	s.notifyAffected(ctx, notifier.Message{
		Action: notifier.ActionClear,
		Cohort: toMessageCohort(slot.Cohort),
		Day:    &slot.DayIndex,
		Slot:   &slot.SlotIndex,
	}, prior)

	resp := toRoutineSlotResponse(slot)
	return &resp, nil
}

// ────────────────────── DeleteSlot ──────────────────────

func (s *routineService) DeleteSlot(ctx context.Context, slotID string, callerID string) error {
	slot, err := s.getSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.IsSpanMember() {
		return ErrSpanMemberUpdate
	}

	if err := s.repo.RoutineSlot.Delete(ctx, slotID); err != nil {
		return s.storeError("删除课表格子失败", err, zap.String("slot_id", slotID))
	}

	s.logger.Info("删除课表格子",
		zap.String("slot_id", slotID),
		zap.String("cohort", slot.Cohort.String()),
		zap.String("operator", callerID),
	)
	metrics.ObserveMutation(notifier.ActionDelete)
	s.notifyAffected(ctx, notifier.Message{
		Action: notifier.ActionDelete,
		Cohort: toMessageCohort(slot.Cohort),
		Day:    &slot.DayIndex,
		Slot:   &slot.SlotIndex,
	}, slot.TeacherIDs)
	return nil
}

// ────────────────────── DeleteSpanGroup ──────────────────────

func (s *routineService) DeleteSpanGroup(ctx context.Context, spanID string, callerID string) (*dto.DeleteSpanResponse, error) {
	members, err := s.repo.RoutineSlot.ListBySpan(ctx, spanID)
	if err != nil {
		s.logger.Error("查询跨节课程失败", zap.String("span_id", spanID), zap.Error(err))
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrSpanNotFound
	}

	deleted, err := s.repo.RoutineSlot.DeleteBySpan(ctx, spanID)
	if err != nil {
		return nil, s.storeError("删除跨节课程失败", err, zap.String("span_id", spanID))
	}

	indexes := make([]int, 0, len(members))
	groups := make([][]string, 0, len(members))
	for i := range members {
		indexes = append(indexes, members[i].SlotIndex)
		groups = append(groups, members[i].TeacherIDs)
	}

	s.logger.Info("删除跨节课程",
		zap.String("span_id", spanID),
		zap.Int64("deleted", deleted),
		zap.String("operator", callerID),
	)
	metrics.ObserveMutation(notifier.ActionDelete)
	first := members[0]
	s.notifyAffected(ctx, notifier.Message{
		Action:      notifier.ActionDelete,
		Cohort:      toMessageCohort(first.Cohort),
		Day:         &first.DayIndex,
		Slot:        &first.SlotIndex,
		SlotIndexes: indexes,
		SpanID:      spanID,
	}, groups...)

	return &dto.DeleteSpanResponse{SpanID: spanID, Deleted: int(deleted)}, nil
}

// ────────────────────── ClearCohort ──────────────────────

func (s *routineService) ClearCohort(ctx context.Context, req *dto.CohortQuery, callerID string) (*dto.ClearCohortResponse, error) {
	if err := s.validate.cohort(req); err != nil {
		return nil, err
	}
	cohort := toCohort(req)

	slots, err := s.repo.RoutineSlot.ListByCohort(ctx, cohort)
	if err != nil {
		s.logger.Error("查询班级课表失败", zap.String("cohort", cohort.String()), zap.Error(err))
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrCohortEmpty
	}

	deleted, err := s.repo.RoutineSlot.DeleteByCohort(ctx, cohort)
	if err != nil {
		return nil, s.storeError("清空班级课表失败", err, zap.String("cohort", cohort.String()))
	}

	groups := make([][]string, 0, len(slots))
	for i := range slots {
		groups = append(groups, slots[i].TeacherIDs)
	}
	affected := unionTeachers(groups...)

	s.logger.Info("清空班级课表",
		zap.String("cohort", cohort.String()),
		zap.Int64("deleted", deleted),
		zap.Int("affected_teachers", len(affected)),
		zap.String("operator", callerID),
	)
	metrics.ObserveMutation("clear_cohort")
	s.notifyAffected(ctx, notifier.Message{
		Action: notifier.ActionDelete,
		Cohort: toMessageCohort(cohort),
	}, affected)

	return &dto.ClearCohortResponse{Deleted: int(deleted), AffectedTeachers: len(affected)}, nil
}

// ────────────────────── ResyncSnapshots ──────────────────────

// ResyncSnapshots 按当前参考数据刷新班级课表的展示快照；课程内容不变，不发通知
func (s *routineService) ResyncSnapshots(ctx context.Context, req *dto.CohortQuery, callerID string) (*dto.ResyncResponse, error) {
	if err := s.validate.cohort(req); err != nil {
		return nil, err
	}
	cohort := toCohort(req)

	slots, err := s.repo.RoutineSlot.ListByCohort(ctx, cohort)
	if err != nil {
		s.logger.Error("查询班级课表失败", zap.String("cohort", cohort.String()), zap.Error(err))
		return nil, err
	}

	result := &dto.ResyncResponse{}
	for i := range slots {
		slot := &slots[i]
		if !slot.IsOccupied() {
			continue
		}

		refs, err := s.resolveContent(ctx, &dto.SlotContent{SubjectID: *slot.SubjectID, RoomID: *slot.RoomID}, slot.TeacherIDs)
		if err != nil {
			result.Skipped++
			s.logger.Warn("快照刷新跳过：引用数据缺失", zap.String("slot_id", slot.RoutineSlotID), zap.Error(err))
			continue
		}
		ts, err := s.resolveTimeSlot(ctx, slot.SlotIndex)
		if err != nil {
			result.Skipped++
			s.logger.Warn("快照刷新跳过：节次不可用", zap.String("slot_id", slot.RoutineSlotID), zap.Error(err))
			continue
		}

		before := snapshotKey(slot)
		applySnapshot(slot, refs, ts)
		if snapshotKey(slot) == before {
			continue
		}
		slot.UpdatedBy = &callerID
		if err := s.repo.RoutineSlot.UpdateSnapshot(ctx, slot); err != nil {
			return nil, s.storeError("刷新课表快照失败", err, zap.String("slot_id", slot.RoutineSlotID))
		}
		result.Updated++
	}

	s.logger.Info("课表快照刷新完成",
		zap.String("cohort", cohort.String()),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}
