package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/model"
)

// resolvedContent 排课引用的参考数据，教师顺序与请求一致
type resolvedContent struct {
	subject  *model.Subject
	teachers []model.Teacher
	room     *model.Room
}

// resolveProgram 校验班级所属专业存在且启用
func (s *routineService) resolveProgram(ctx context.Context, code string) error {
	program, err := s.repo.Program.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return referenceNotFound("专业", code)
		}
		return err
	}
	if !program.IsActive {
		return referenceNotFound("专业", code)
	}
	return nil
}

// resolveContent 解析科目 / 教师 / 教室，缺失或停用返回 ErrReferenceNotFound
func (s *routineService) resolveContent(ctx context.Context, content *dto.SlotContent, teacherIDs []string) (*resolvedContent, error) {
	subject, err := s.repo.Subject.GetByID(ctx, content.SubjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, referenceNotFound("科目", content.SubjectID)
		}
		return nil, err
	}
	if !subject.IsActive {
		return nil, referenceNotFound("科目", content.SubjectID)
	}

	teachers, err := s.resolveTeachers(ctx, teacherIDs)
	if err != nil {
		return nil, err
	}

	room, err := s.repo.Room.GetByID(ctx, content.RoomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, referenceNotFound("教室", content.RoomID)
		}
		return nil, err
	}
	if !room.IsActive {
		return nil, referenceNotFound("教室", content.RoomID)
	}

	return &resolvedContent{subject: subject, teachers: teachers, room: room}, nil
}

func (s *routineService) resolveTeachers(ctx context.Context, ids []string) ([]model.Teacher, error) {
	found, err := s.repo.Teacher.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Teacher, len(found))
	for _, t := range found {
		byID[t.TeacherID] = t
	}

	ordered := make([]model.Teacher, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok || !t.IsActive {
			return nil, referenceNotFound("教师", id)
		}
		ordered = append(ordered, t)
	}
	return ordered, nil
}

// resolveTimeSlot 节次必须存在且不是休息时段
func (s *routineService) resolveTimeSlot(ctx context.Context, slotIndex int) (*model.TimeSlot, error) {
	ts, err := s.repo.TimeSlot.GetByIndex(ctx, slotIndex)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, referenceNotFound("节次", strconv.Itoa(slotIndex))
		}
		return nil, err
	}
	if ts.IsBreak {
		return nil, ErrSlotNotAssignable
	}
	return ts, nil
}

// applyContent 写入课程内容并拍摄展示快照
func applyContent(slot *model.RoutineSlot, content *dto.SlotContent, refs *resolvedContent, ts *model.TimeSlot) {
	subjectID := refs.subject.SubjectID
	roomID := refs.room.RoomID
	classType := content.ClassType

	teacherIDs := make(pq.StringArray, 0, len(refs.teachers))
	for _, t := range refs.teachers {
		teacherIDs = append(teacherIDs, t.TeacherID)
	}

	slot.SubjectID = &subjectID
	slot.TeacherIDs = teacherIDs
	slot.RoomID = &roomID
	slot.ClassType = &classType
	slot.Notes = content.Notes
	applySnapshot(slot, refs, ts)
}

func applySnapshot(slot *model.RoutineSlot, refs *resolvedContent, ts *model.TimeSlot) {
	names := make(pq.StringArray, 0, len(refs.teachers))
	for _, t := range refs.teachers {
		names = append(names, t.ShortName)
	}
	slot.SubjectName = refs.subject.Name
	slot.SubjectCode = refs.subject.Code
	slot.TeacherNames = names
	slot.RoomName = refs.room.Name
	slot.TimeRange = ts.TimeRange()
}

// snapshotKey 用于判断快照是否发生变化
func snapshotKey(slot *model.RoutineSlot) string {
	return strings.Join([]string{
		slot.SubjectName,
		slot.SubjectCode,
		strings.Join(slot.TeacherNames, ","),
		slot.RoomName,
		slot.TimeRange,
	}, "|")
}

func toRoutineSlotResponse(slot *model.RoutineSlot) dto.RoutineSlotResponse {
	return dto.RoutineSlotResponse{
		ID:           slot.RoutineSlotID,
		ProgramCode:  slot.ProgramCode,
		Semester:     slot.Semester,
		Section:      slot.Section,
		DayIndex:     slot.DayIndex,
		SlotIndex:    slot.SlotIndex,
		IsEmpty:      !slot.IsOccupied(),
		SubjectID:    slot.SubjectID,
		SubjectCode:  slot.SubjectCode,
		SubjectName:  slot.SubjectName,
		TeacherIDs:   nonNil(slot.TeacherIDs),
		TeacherNames: nonNil(slot.TeacherNames),
		RoomID:       slot.RoomID,
		RoomName:     slot.RoomName,
		ClassType:    slot.ClassType,
		Notes:        slot.Notes,
		TimeRange:    slot.TimeRange,
		SpanID:       slot.SpanID,
		SpanMaster:   slot.SpanMaster,
		Version:      slot.Version,
		UpdatedAt:    slot.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}

// unionTeachers 合并多组教师 ID，保持首次出现顺序
func unionTeachers(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		for _, id := range g {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
