package service

import (
	"context"

	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/model"
	"routine-scheduler/backend/internal/repository"
)

// Candidate 待检测的排课位置与资源
type Candidate struct {
	Cohort     model.Cohort
	DayIndex   int
	SlotIndex  int
	TeacherIDs []string
	RoomID     string
}

// ConflictDetector 教师 / 教室 / 班级三类冲突检测，只读
type ConflictDetector struct {
	slots repository.RoutineSlotRepository
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(slots repository.RoutineSlotRepository) *ConflictDetector {
	return &ConflictDetector{slots: slots}
}

// DetectConflicts 返回候选位置上的全部冲突，excludeSlotID 对应的格子不参与比较
// 返回空切片表示无冲突；顺序无业务含义
func (d *ConflictDetector) DetectConflicts(ctx context.Context, c Candidate, excludeSlotID string) ([]dto.Conflict, error) {
	conflicts := make([]dto.Conflict, 0)

	for _, teacherID := range c.TeacherIDs {
		found, err := d.TeacherConflicts(ctx, teacherID, c.DayIndex, c.SlotIndex, excludeSlotID)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, found...)
	}

	if c.RoomID != "" {
		found, err := d.RoomConflicts(ctx, c.RoomID, c.DayIndex, c.SlotIndex, excludeSlotID)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, found...)
	}

	found, err := d.SectionConflicts(ctx, c.Cohort, c.DayIndex, c.SlotIndex, excludeSlotID)
	if err != nil {
		return nil, err
	}
	return append(conflicts, found...), nil
}

// TeacherConflicts 教师在该时刻已有的课程
func (d *ConflictDetector) TeacherConflicts(ctx context.Context, teacherID string, day, slot int, excludeSlotID string) ([]dto.Conflict, error) {
	busy, err := d.slots.ListByTeacherAtCell(ctx, teacherID, day, slot)
	if err != nil {
		return nil, err
	}

	var out []dto.Conflict
	for i := range busy {
		if busy[i].RoutineSlotID == excludeSlotID || !busy[i].IsOccupied() {
			continue
		}
		out = append(out, dto.Conflict{
			Type:            dto.ConflictTeacher,
			ResourceID:      teacherID,
			ResourceName:    snapshotTeacherName(&busy[i], teacherID),
			ConflictingSlot: conflictSlot(&busy[i]),
		})
	}
	return out, nil
}

// RoomConflicts 教室在该时刻已有的课程
func (d *ConflictDetector) RoomConflicts(ctx context.Context, roomID string, day, slot int, excludeSlotID string) ([]dto.Conflict, error) {
	busy, err := d.slots.ListByRoomAtCell(ctx, roomID, day, slot)
	if err != nil {
		return nil, err
	}

	var out []dto.Conflict
	for i := range busy {
		if busy[i].RoutineSlotID == excludeSlotID || !busy[i].IsOccupied() {
			continue
		}
		out = append(out, dto.Conflict{
			Type:            dto.ConflictRoom,
			ResourceID:      roomID,
			ResourceName:    busy[i].RoomName,
			ConflictingSlot: conflictSlot(&busy[i]),
		})
	}
	return out, nil
}

// SectionConflicts 班级格子上已排的课程（已清空的格子不算）
func (d *ConflictDetector) SectionConflicts(ctx context.Context, cohort model.Cohort, day, slot int, excludeSlotID string) ([]dto.Conflict, error) {
	busy, err := d.slots.ListOccupiedAtCohortCell(ctx, cohort, day, slot)
	if err != nil {
		return nil, err
	}

	var out []dto.Conflict
	for i := range busy {
		if busy[i].RoutineSlotID == excludeSlotID || !busy[i].IsOccupied() {
			continue
		}
		out = append(out, dto.Conflict{
			Type:            dto.ConflictSection,
			ResourceID:      cohort.String(),
			ResourceName:    busy[i].SubjectName,
			ConflictingSlot: conflictSlot(&busy[i]),
		})
	}
	return out, nil
}

func snapshotTeacherName(slot *model.RoutineSlot, teacherID string) string {
	for i, id := range slot.TeacherIDs {
		if id == teacherID && i < len(slot.TeacherNames) {
			return slot.TeacherNames[i]
		}
	}
	return ""
}

func conflictSlot(slot *model.RoutineSlot) dto.ConflictSlot {
	return dto.ConflictSlot{
		SlotID:      slot.RoutineSlotID,
		ProgramCode: slot.ProgramCode,
		Semester:    slot.Semester,
		Section:     slot.Section,
		DayIndex:    slot.DayIndex,
		SlotIndex:   slot.SlotIndex,
		SubjectID:   slot.SubjectID,
		SubjectName: slot.SubjectName,
		RoomID:      slot.RoomID,
		RoomName:    slot.RoomName,
		TeacherIDs:  append([]string(nil), slot.TeacherIDs...),
	}
}
