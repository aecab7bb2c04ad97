package repository

import (
	"context"

	"gorm.io/gorm"

	"routine-scheduler/backend/internal/model"
)

// 参考数据只读访问：专业 / 科目 / 教师 / 教室 / 节次
// 维护接口不在本服务内，这里只提供排课所需的查询

// ── Program ──

// ProgramRepository 专业查询接口
type ProgramRepository interface {
	GetByCode(ctx context.Context, code string) (*model.Program, error)
}

type programRepo struct {
	db *gorm.DB
}

// NewProgramRepo 创建 ProgramRepository 实例
func NewProgramRepo(db *gorm.DB) ProgramRepository {
	return &programRepo{db: db}
}

func (r *programRepo) GetByCode(ctx context.Context, code string) (*model.Program, error) {
	var p model.Program
	if err := r.db.WithContext(ctx).Where("program_code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ── Subject ──

// SubjectRepository 科目查询接口
type SubjectRepository interface {
	GetByID(ctx context.Context, id string) (*model.Subject, error)
}

type subjectRepo struct {
	db *gorm.DB
}

// NewSubjectRepo 创建 SubjectRepository 实例
func NewSubjectRepo(db *gorm.DB) SubjectRepository {
	return &subjectRepo{db: db}
}

func (r *subjectRepo) GetByID(ctx context.Context, id string) (*model.Subject, error) {
	var s model.Subject
	if err := r.db.WithContext(ctx).Where("subject_id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ── Teacher ──

// TeacherRepository 教师查询接口
type TeacherRepository interface {
	GetByID(ctx context.Context, id string) (*model.Teacher, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Teacher, error)
}

type teacherRepo struct {
	db *gorm.DB
}

// NewTeacherRepo 创建 TeacherRepository 实例
func NewTeacherRepo(db *gorm.DB) TeacherRepository {
	return &teacherRepo{db: db}
}

func (r *teacherRepo) GetByID(ctx context.Context, id string) (*model.Teacher, error) {
	var t model.Teacher
	if err := r.db.WithContext(ctx).Where("teacher_id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *teacherRepo) GetByIDs(ctx context.Context, ids []string) ([]model.Teacher, error) {
	var teachers []model.Teacher
	if len(ids) == 0 {
		return teachers, nil
	}
	err := r.db.WithContext(ctx).Where("teacher_id IN ?", ids).Find(&teachers).Error
	return teachers, err
}

// ── Room ──

// RoomRepository 教室查询接口
type RoomRepository interface {
	GetByID(ctx context.Context, id string) (*model.Room, error)
}

type roomRepo struct {
	db *gorm.DB
}

// NewRoomRepo 创建 RoomRepository 实例
func NewRoomRepo(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	if err := r.db.WithContext(ctx).Where("room_id = ?", id).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// ── TimeSlot ──

// TimeSlotRepository 节次目录查询接口
type TimeSlotRepository interface {
	GetByIndex(ctx context.Context, slotIndex int) (*model.TimeSlot, error)
	List(ctx context.Context) ([]model.TimeSlot, error)
}

type timeSlotRepo struct {
	db *gorm.DB
}

// NewTimeSlotRepo 创建 TimeSlotRepository 实例
func NewTimeSlotRepo(db *gorm.DB) TimeSlotRepository {
	return &timeSlotRepo{db: db}
}

// GetByIndex 按节次序号查询启用中的节次
func (r *timeSlotRepo) GetByIndex(ctx context.Context, slotIndex int) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	err := r.db.WithContext(ctx).
		Where("slot_index = ? AND is_active = ?", slotIndex, true).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *timeSlotRepo) List(ctx context.Context) ([]model.TimeSlot, error) {
	var slots []model.TimeSlot
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("slot_index ASC").
		Find(&slots).Error
	return slots, err
}
