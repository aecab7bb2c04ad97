package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"routine-scheduler/backend/internal/model"
	"routine-scheduler/backend/internal/notifier"
	pkgerrors "routine-scheduler/backend/pkg/errors"
)

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// ── Mock ProgramRepository ──

type mockProgramRepo struct {
	programs map[string]*model.Program
}

func newMockProgramRepo() *mockProgramRepo {
	return &mockProgramRepo{programs: make(map[string]*model.Program)}
}

func (m *mockProgramRepo) GetByCode(_ context.Context, code string) (*model.Program, error) {
	if p, ok := m.programs[code]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock SubjectRepository ──

type mockSubjectRepo struct {
	subjects map[string]*model.Subject
}

func newMockSubjectRepo() *mockSubjectRepo {
	return &mockSubjectRepo{subjects: make(map[string]*model.Subject)}
}

func (m *mockSubjectRepo) GetByID(_ context.Context, id string) (*model.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock TeacherRepository ──

type mockTeacherRepo struct {
	teachers map[string]*model.Teacher
}

func newMockTeacherRepo() *mockTeacherRepo {
	return &mockTeacherRepo{teachers: make(map[string]*model.Teacher)}
}

func (m *mockTeacherRepo) GetByID(_ context.Context, id string) (*model.Teacher, error) {
	if t, ok := m.teachers[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTeacherRepo) GetByIDs(_ context.Context, ids []string) ([]model.Teacher, error) {
	var result []model.Teacher
	for _, id := range ids {
		if t, ok := m.teachers[id]; ok {
			result = append(result, *t)
		}
	}
	return result, nil
}

// ── Mock RoomRepository ──

type mockRoomRepo struct {
	rooms map[string]*model.Room
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{rooms: make(map[string]*model.Room)}
}

func (m *mockRoomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	if r, ok := m.rooms[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock TimeSlotRepository ──

type mockTimeSlotRepo struct {
	slots map[int]*model.TimeSlot
}

func newMockTimeSlotRepo() *mockTimeSlotRepo {
	return &mockTimeSlotRepo{slots: make(map[int]*model.TimeSlot)}
}

func (m *mockTimeSlotRepo) GetByIndex(_ context.Context, slotIndex int) (*model.TimeSlot, error) {
	if ts, ok := m.slots[slotIndex]; ok && ts.IsActive {
		cp := *ts
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimeSlotRepo) List(_ context.Context) ([]model.TimeSlot, error) {
	var result []model.TimeSlot
	for _, ts := range m.slots {
		if ts.IsActive {
			result = append(result, *ts)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotIndex < result[j].SlotIndex })
	return result, nil
}

// ── Mock RoutineSlotRepository ──
// 以内存 map 模拟 routine_slots 与预留表的唯一约束

type mockRoutineSlotRepo struct {
	mu    sync.Mutex
	slots map[string]*model.RoutineSlot
	seq   int

	createCalls  int
	failCreateOn int   // 第 N 次 Create 返回唯一约束冲突（0 表示不注入）
	createErr    error // 每次 Create 都返回该错误
	deleteErr    error
}

func newMockRoutineSlotRepo() *mockRoutineSlotRepo {
	return &mockRoutineSlotRepo{slots: make(map[string]*model.RoutineSlot)}
}

func cloneSlot(s *model.RoutineSlot) *model.RoutineSlot {
	cp := *s
	cp.TeacherIDs = append(pq.StringArray(nil), s.TeacherIDs...)
	cp.TeacherNames = append(pq.StringArray(nil), s.TeacherNames...)
	return &cp
}

func (m *mockRoutineSlotRepo) sorted(filter func(*model.RoutineSlot) bool) []model.RoutineSlot {
	var result []model.RoutineSlot
	for _, s := range m.slots {
		if s.IsActive && filter(s) {
			result = append(result, *cloneSlot(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DayIndex != result[j].DayIndex {
			return result[i].DayIndex < result[j].DayIndex
		}
		return result[i].SlotIndex < result[j].SlotIndex
	})
	return result
}

// checkUnique 模拟班级格子部分唯一索引与教师 / 教室预留唯一约束
func (m *mockRoutineSlotRepo) checkUnique(slot *model.RoutineSlot) error {
	for id, other := range m.slots {
		if id == slot.RoutineSlotID || !other.IsActive {
			continue
		}
		if other.DayIndex != slot.DayIndex || other.SlotIndex != slot.SlotIndex {
			continue
		}
		if other.Cohort == slot.Cohort {
			return uniqueViolation("uq_routine_slots_cohort_cell")
		}
		if !other.IsOccupied() || !slot.IsOccupied() {
			continue
		}
		if *other.RoomID == *slot.RoomID {
			return uniqueViolation("uq_reservations_resource_cell")
		}
		for _, t := range slot.TeacherIDs {
			if hasTeacher(other, t) {
				return uniqueViolation("uq_reservations_resource_cell")
			}
		}
	}
	return nil
}

func hasTeacher(s *model.RoutineSlot, teacherID string) bool {
	for _, id := range s.TeacherIDs {
		if id == teacherID {
			return true
		}
	}
	return false
}

func (m *mockRoutineSlotRepo) GetByID(_ context.Context, id string) (*model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[id]; ok && s.IsActive {
		return cloneSlot(s), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRoutineSlotRepo) FindByCell(_ context.Context, cohort model.Cohort, day, slot int) (*model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := m.sorted(func(s *model.RoutineSlot) bool {
		return s.Cohort == cohort && s.DayIndex == day && s.SlotIndex == slot
	})
	if len(found) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &found[0], nil
}

func (m *mockRoutineSlotRepo) ListByCohort(_ context.Context, cohort model.Cohort) ([]model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *model.RoutineSlot) bool { return s.Cohort == cohort }), nil
}

func (m *mockRoutineSlotRepo) ListBySpan(_ context.Context, spanID string) ([]model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *model.RoutineSlot) bool { return s.SpanID != nil && *s.SpanID == spanID }), nil
}

func (m *mockRoutineSlotRepo) ListByTeacher(_ context.Context, teacherID string) ([]model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *model.RoutineSlot) bool { return hasTeacher(s, teacherID) }), nil
}

func (m *mockRoutineSlotRepo) ListByTeacherAtCell(_ context.Context, teacherID string, day, slot int) ([]model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *model.RoutineSlot) bool {
		return s.DayIndex == day && s.SlotIndex == slot && hasTeacher(s, teacherID)
	}), nil
}

func (m *mockRoutineSlotRepo) ListByRoomAtCell(_ context.Context, roomID string, day, slot int) ([]model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *model.RoutineSlot) bool {
		return s.DayIndex == day && s.SlotIndex == slot && s.RoomID != nil && *s.RoomID == roomID
	}), nil
}

func (m *mockRoutineSlotRepo) ListOccupiedAtCohortCell(_ context.Context, cohort model.Cohort, day, slot int) ([]model.RoutineSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *model.RoutineSlot) bool {
		return s.Cohort == cohort && s.DayIndex == day && s.SlotIndex == slot && s.SubjectID != nil
	}), nil
}

func (m *mockRoutineSlotRepo) Create(_ context.Context, slot *model.RoutineSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if m.failCreateOn > 0 && m.createCalls == m.failCreateOn {
		return uniqueViolation("uq_reservations_resource_cell")
	}
	if err := m.checkUnique(slot); err != nil {
		return err
	}

	m.seq++
	if slot.RoutineSlotID == "" {
		slot.RoutineSlotID = fmt.Sprintf("slot-%03d", m.seq)
	}
	slot.Version = 1
	slot.CreatedAt = time.Now()
	slot.UpdatedAt = slot.CreatedAt
	m.slots[slot.RoutineSlotID] = cloneSlot(slot)
	return nil
}

func (m *mockRoutineSlotRepo) Update(_ context.Context, slot *model.RoutineSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.slots[slot.RoutineSlotID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != slot.Version {
		return pkgerrors.ErrOptimisticLock
	}
	if err := m.checkUnique(slot); err != nil {
		return err
	}
	slot.Version++
	slot.UpdatedAt = time.Now()
	m.slots[slot.RoutineSlotID] = cloneSlot(slot)
	return nil
}

func (m *mockRoutineSlotRepo) UpdateSnapshot(_ context.Context, slot *model.RoutineSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.slots[slot.RoutineSlotID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != slot.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.SubjectName = slot.SubjectName
	stored.SubjectCode = slot.SubjectCode
	stored.TeacherNames = append(pq.StringArray(nil), slot.TeacherNames...)
	stored.RoomName = slot.RoomName
	stored.TimeRange = slot.TimeRange
	stored.Version++
	stored.UpdatedAt = time.Now()
	slot.Version = stored.Version
	slot.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *mockRoutineSlotRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.slots, id)
	return nil
}

func (m *mockRoutineSlotRepo) DeleteBySpan(_ context.Context, spanID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for id, s := range m.slots {
		if s.SpanID != nil && *s.SpanID == spanID {
			delete(m.slots, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRoutineSlotRepo) DeleteByCohort(_ context.Context, cohort model.Cohort) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for id, s := range m.slots {
		if s.IsActive && s.Cohort == cohort {
			delete(m.slots, id)
			n++
		}
	}
	return n, nil
}

// state 返回当前存储的深拷贝，用于比较操作前后是否有写入
func (m *mockRoutineSlotRepo) state() map[string]model.RoutineSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.RoutineSlot, len(m.slots))
	for id, s := range m.slots {
		out[id] = *cloneSlot(s)
	}
	return out
}

// ── Mock Notifier ──

type mockNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, msg notifier.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *mockNotifier) last() (notifier.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.msgs) == 0 {
		return notifier.Message{}, false
	}
	return m.msgs[len(m.msgs)-1], true
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

var errStoreDown = errors.New("store unavailable")
