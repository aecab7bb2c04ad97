package service

import (
	"context"
	"testing"

	"github.com/lib/pq"

	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/model"
)

func seedSlot(repo *mockRoutineSlotRepo, id string, cohort model.Cohort, day, slot int, room string, teachers ...string) {
	s := &model.RoutineSlot{
		RoutineSlotID: id,
		Cohort:        cohort,
		DayIndex:      day,
		SlotIndex:     slot,
		TeacherIDs:    pq.StringArray(teachers),
		IsActive:      true,
	}
	if room != "" {
		subject := subjectDS
		s.SubjectID = &subject
		s.RoomID = &room
		s.SubjectName = "Data Structures"
		s.RoomName = "room-" + room[len(room)-1:]
		for _, t := range teachers {
			s.TeacherNames = append(s.TeacherNames, "T"+t[len(t)-1:])
		}
	}
	s.Version = 1
	repo.slots[id] = s
}

func TestConflictDetector_DetectConflicts(t *testing.T) {
	repo := newMockRoutineSlotRepo()
	ab := model.Cohort{ProgramCode: "BCT", Semester: 3, Section: "AB"}
	cd := model.Cohort{ProgramCode: "BCT", Semester: 3, Section: "CD"}
	seedSlot(repo, "s1", cd, 1, 2, roomR1, teacherA, teacherB)
	seedSlot(repo, "s2", ab, 1, 2, roomR2, teacherC)
	seedSlot(repo, "s3", ab, 1, 3, "") // 已清空
	detector := NewConflictDetector(repo)

	tests := []struct {
		name      string
		candidate Candidate
		exclude   string
		wantTypes []string
	}{
		{
			name:      "无冲突",
			candidate: Candidate{Cohort: ab, DayIndex: 2, SlotIndex: 2, TeacherIDs: []string{teacherA}, RoomID: roomR1},
			wantTypes: []string{},
		},
		{
			name:      "教师与教室同时冲突",
			candidate: Candidate{Cohort: model.Cohort{ProgramCode: "BEI", Semester: 1, Section: "AB"}, DayIndex: 1, SlotIndex: 2, TeacherIDs: []string{teacherA, teacherB}, RoomID: roomR1},
			wantTypes: []string{dto.ConflictTeacher, dto.ConflictTeacher, dto.ConflictRoom},
		},
		{
			name:      "班级格子已占用",
			candidate: Candidate{Cohort: ab, DayIndex: 1, SlotIndex: 2, TeacherIDs: []string{teacherX}, RoomID: "c0000000-0000-4000-8000-000000000005"},
			wantTypes: []string{dto.ConflictSection},
		},
		{
			name:      "排除自身",
			candidate: Candidate{Cohort: ab, DayIndex: 1, SlotIndex: 2, TeacherIDs: []string{teacherC}, RoomID: roomR2},
			exclude:   "s2",
			wantTypes: []string{},
		},
		{
			name:      "已清空格子不算冲突",
			candidate: Candidate{Cohort: ab, DayIndex: 1, SlotIndex: 3, TeacherIDs: []string{teacherA}, RoomID: roomR1},
			wantTypes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detector.DetectConflicts(context.Background(), tt.candidate, tt.exclude)
			if err != nil {
				t.Fatalf("DetectConflicts 失败: %v", err)
			}
			if got == nil {
				t.Fatal("无冲突时应返回空切片而非 nil")
			}
			if len(got) != len(tt.wantTypes) {
				t.Fatalf("期望 %d 条冲突，实际=%d: %+v", len(tt.wantTypes), len(got), got)
			}
			for i, want := range tt.wantTypes {
				if got[i].Type != want {
					t.Errorf("第 %d 条冲突期望 %s，实际=%s", i, want, got[i].Type)
				}
			}
		})
	}
}

func TestConflictDetector_TeacherNameFromSnapshot(t *testing.T) {
	repo := newMockRoutineSlotRepo()
	cd := model.Cohort{ProgramCode: "BCT", Semester: 3, Section: "CD"}
	seedSlot(repo, "s1", cd, 0, 0, roomR1, teacherA, teacherB)

	got, err := NewConflictDetector(repo).TeacherConflicts(context.Background(), teacherB, 0, 0, "")
	if err != nil {
		t.Fatalf("TeacherConflicts 失败: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 条冲突，实际=%d", len(got))
	}
	if got[0].ResourceName != "T2" {
		t.Errorf("期望教师简称 T2，实际=%s", got[0].ResourceName)
	}
	if got[0].ConflictingSlot.Section != "CD" || got[0].ConflictingSlot.RoomName != "room-1" {
		t.Errorf("冲突格子摘要错误: %+v", got[0].ConflictingSlot)
	}
}
