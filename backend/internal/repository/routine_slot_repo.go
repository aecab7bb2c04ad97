package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"routine-scheduler/backend/internal/model"
	pkgerrors "routine-scheduler/backend/pkg/errors"
)

// RoutineSlotRepository 课表格子数据访问接口
// 所有写操作在同一事务内同步改写 routine_slot_reservations，
// 由唯一约束兜底拒绝并发下的教师 / 教室重复占用
type RoutineSlotRepository interface {
	GetByID(ctx context.Context, id string) (*model.RoutineSlot, error)
	FindByCell(ctx context.Context, cohort model.Cohort, dayIndex, slotIndex int) (*model.RoutineSlot, error)
	ListByCohort(ctx context.Context, cohort model.Cohort) ([]model.RoutineSlot, error)
	ListBySpan(ctx context.Context, spanID string) ([]model.RoutineSlot, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.RoutineSlot, error)

	// 冲突检测查询：只返回启用且已排课的格子
	ListByTeacherAtCell(ctx context.Context, teacherID string, dayIndex, slotIndex int) ([]model.RoutineSlot, error)
	ListByRoomAtCell(ctx context.Context, roomID string, dayIndex, slotIndex int) ([]model.RoutineSlot, error)
	ListOccupiedAtCohortCell(ctx context.Context, cohort model.Cohort, dayIndex, slotIndex int) ([]model.RoutineSlot, error)

	Create(ctx context.Context, slot *model.RoutineSlot) error
	Update(ctx context.Context, slot *model.RoutineSlot) error
	UpdateSnapshot(ctx context.Context, slot *model.RoutineSlot) error
	Delete(ctx context.Context, id string) error
	DeleteBySpan(ctx context.Context, spanID string) (int64, error)
	DeleteByCohort(ctx context.Context, cohort model.Cohort) (int64, error)
}

type routineSlotRepo struct {
	db *gorm.DB
}

// NewRoutineSlotRepo 创建 RoutineSlotRepository 实例
func NewRoutineSlotRepo(db *gorm.DB) RoutineSlotRepository {
	return &routineSlotRepo{db: db}
}

func cohortScope(c model.Cohort) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("program_code = ? AND semester = ? AND section = ?", c.ProgramCode, c.Semester, c.Section)
	}
}

func activeAt(dayIndex, slotIndex int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ? AND day_index = ? AND slot_index = ?", true, dayIndex, slotIndex)
	}
}

// ── 查询 ──

func (r *routineSlotRepo) GetByID(ctx context.Context, id string) (*model.RoutineSlot, error) {
	var slot model.RoutineSlot
	err := r.db.WithContext(ctx).
		Where("routine_slot_id = ? AND is_active = ?", id, true).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindByCell 查询班级格子当前的启用记录（含已清空的格子）
func (r *routineSlotRepo) FindByCell(ctx context.Context, cohort model.Cohort, dayIndex, slotIndex int) (*model.RoutineSlot, error) {
	var slot model.RoutineSlot
	err := r.db.WithContext(ctx).
		Scopes(cohortScope(cohort), activeAt(dayIndex, slotIndex)).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *routineSlotRepo) ListByCohort(ctx context.Context, cohort model.Cohort) ([]model.RoutineSlot, error) {
	var slots []model.RoutineSlot
	err := r.db.WithContext(ctx).
		Scopes(cohortScope(cohort)).
		Where("is_active = ?", true).
		Order("day_index ASC, slot_index ASC").
		Find(&slots).Error
	return slots, err
}

func (r *routineSlotRepo) ListBySpan(ctx context.Context, spanID string) ([]model.RoutineSlot, error) {
	var slots []model.RoutineSlot
	err := r.db.WithContext(ctx).
		Where("span_id = ? AND is_active = ?", spanID, true).
		Order("slot_index ASC").
		Find(&slots).Error
	return slots, err
}

func (r *routineSlotRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.RoutineSlot, error) {
	var slots []model.RoutineSlot
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND ? = ANY(teacher_ids)", true, teacherID).
		Order("day_index ASC, slot_index ASC").
		Find(&slots).Error
	return slots, err
}

func (r *routineSlotRepo) ListByTeacherAtCell(ctx context.Context, teacherID string, dayIndex, slotIndex int) ([]model.RoutineSlot, error) {
	var slots []model.RoutineSlot
	err := r.db.WithContext(ctx).
		Scopes(activeAt(dayIndex, slotIndex)).
		Where("? = ANY(teacher_ids)", teacherID).
		Find(&slots).Error
	return slots, err
}

func (r *routineSlotRepo) ListByRoomAtCell(ctx context.Context, roomID string, dayIndex, slotIndex int) ([]model.RoutineSlot, error) {
	var slots []model.RoutineSlot
	err := r.db.WithContext(ctx).
		Scopes(activeAt(dayIndex, slotIndex)).
		Where("room_id = ?", roomID).
		Find(&slots).Error
	return slots, err
}

func (r *routineSlotRepo) ListOccupiedAtCohortCell(ctx context.Context, cohort model.Cohort, dayIndex, slotIndex int) ([]model.RoutineSlot, error) {
	var slots []model.RoutineSlot
	err := r.db.WithContext(ctx).
		Scopes(cohortScope(cohort), activeAt(dayIndex, slotIndex)).
		Where("subject_id IS NOT NULL").
		Find(&slots).Error
	return slots, err
}

// ── 写入 ──

// Create 新建格子并写入预留
func (r *routineSlotRepo) Create(ctx context.Context, slot *model.RoutineSlot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(slot).Error; err != nil {
			return err
		}
		return replaceReservations(tx, slot)
	})
}

// Update 原地覆盖课程内容（乐观锁），并重建预留
func (r *routineSlotRepo) Update(ctx context.Context, slot *model.RoutineSlot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁定目标行，避免并发改写同一格子时预留交错
		var locked model.RoutineSlot
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("routine_slot_id = ?", slot.RoutineSlotID).
			First(&locked).Error; err != nil {
			return err
		}

		oldVersion := slot.Version
		now := time.Now()
		result := tx.Model(&model.RoutineSlot{}).
			Where("routine_slot_id = ? AND version = ?", slot.RoutineSlotID, oldVersion).
			Updates(map[string]interface{}{
				"subject_id":    slot.SubjectID,
				"teacher_ids":   slot.TeacherIDs,
				"room_id":       slot.RoomID,
				"class_type":    slot.ClassType,
				"notes":         slot.Notes,
				"span_id":       slot.SpanID,
				"span_master":   slot.SpanMaster,
				"subject_name":  slot.SubjectName,
				"subject_code":  slot.SubjectCode,
				"teacher_names": slot.TeacherNames,
				"room_name":     slot.RoomName,
				"time_range":    slot.TimeRange,
				"updated_by":    slot.UpdatedBy,
				"updated_at":    now,
				"version":       oldVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}
		slot.Version = oldVersion + 1
		slot.UpdatedAt = now
		return replaceReservations(tx, slot)
	})
}

// UpdateSnapshot 仅刷新冗余展示字段，不改动课程内容与预留
func (r *routineSlotRepo) UpdateSnapshot(ctx context.Context, slot *model.RoutineSlot) error {
	oldVersion := slot.Version
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.RoutineSlot{}).
		Where("routine_slot_id = ? AND version = ?", slot.RoutineSlotID, oldVersion).
		Updates(map[string]interface{}{
			"subject_name":  slot.SubjectName,
			"subject_code":  slot.SubjectCode,
			"teacher_names": slot.TeacherNames,
			"room_name":     slot.RoomName,
			"time_range":    slot.TimeRange,
			"updated_by":    slot.UpdatedBy,
			"updated_at":    now,
			"version":       oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	slot.Version = oldVersion + 1
	slot.UpdatedAt = now
	return nil
}

// Delete 硬删除单个格子，预留随外键级联删除
func (r *routineSlotRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("routine_slot_id = ?", id).
		Delete(&model.RoutineSlot{}).Error
}

func (r *routineSlotRepo) DeleteBySpan(ctx context.Context, spanID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("span_id = ?", spanID).
		Delete(&model.RoutineSlot{})
	return result.RowsAffected, result.Error
}

func (r *routineSlotRepo) DeleteByCohort(ctx context.Context, cohort model.Cohort) (int64, error) {
	result := r.db.WithContext(ctx).
		Scopes(cohortScope(cohort)).
		Where("is_active = ?", true).
		Delete(&model.RoutineSlot{})
	return result.RowsAffected, result.Error
}

// replaceReservations 删除格子旧预留并按当前内容重建
func replaceReservations(tx *gorm.DB, slot *model.RoutineSlot) error {
	if err := tx.Where("routine_slot_id = ?", slot.RoutineSlotID).
		Delete(&model.SlotReservation{}).Error; err != nil {
		return err
	}
	reservations := model.ReservationsFor(slot)
	if len(reservations) == 0 {
		return nil
	}
	return tx.Create(&reservations).Error
}
