package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Program     ProgramRepository
	Subject     SubjectRepository
	Teacher     TeacherRepository
	Room        RoomRepository
	TimeSlot    TimeSlotRepository
	RoutineSlot RoutineSlotRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:          db,
		Program:     NewProgramRepo(db),
		Subject:     NewSubjectRepo(db),
		Teacher:     NewTeacherRepo(db),
		Room:        NewRoomRepo(db),
		TimeSlot:    NewTimeSlotRepo(db),
		RoutineSlot: NewRoutineSlotRepo(db),
	}
}

// Transaction 在单个数据库事务中执行 fn，fn 返回错误时整体回滚
// 未绑定数据库（单元测试直接组装 Repository）时直接在当前聚合上执行
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
