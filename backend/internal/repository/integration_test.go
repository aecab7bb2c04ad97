//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"routine-scheduler/backend/internal/model"
	"routine-scheduler/backend/internal/repository"
	"routine-scheduler/backend/pkg/database"
	pkgerrors "routine-scheduler/backend/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=routine password=routine_password dbname=routine_test sslmode=disable TimeZone=Asia/Kathmandu"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 使用正式迁移建表，部分唯一索引与预留表约束均来自迁移文件
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "迁移失败: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type fixture struct {
	program  *model.Program
	subject  *model.Subject
	teachers []*model.Teacher
	room     *model.Room
}

func (f *fixture) cohort(section string) model.Cohort {
	return model.Cohort{ProgramCode: f.program.ProgramCode, Semester: 3, Section: section}
}

// setupFixture 创建参考数据并返回清理函数
func setupFixture(t *testing.T) (*fixture, func()) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	f := &fixture{
		program: &model.Program{ProgramCode: fmt.Sprintf("P%d", suffix%1_000_000_000), Name: "测试专业", IsActive: true},
		subject: &model.Subject{Code: "CT501", Name: "Data Structures", IsActive: true},
		room:    &model.Room{Name: fmt.Sprintf("R-%d", suffix), Capacity: 48, IsActive: true},
	}
	if err := testDB.WithContext(ctx).Create(f.program).Error; err != nil {
		t.Fatalf("创建专业失败: %v", err)
	}
	if err := testDB.WithContext(ctx).Create(f.subject).Error; err != nil {
		t.Fatalf("创建科目失败: %v", err)
	}
	if err := testDB.WithContext(ctx).Create(f.room).Error; err != nil {
		t.Fatalf("创建教室失败: %v", err)
	}
	for _, short := range []string{"RKS", "AB"} {
		teacher := &model.Teacher{FullName: "Teacher " + short, ShortName: short, IsActive: true}
		if err := testDB.WithContext(ctx).Create(teacher).Error; err != nil {
			t.Fatalf("创建教师失败: %v", err)
		}
		f.teachers = append(f.teachers, teacher)
	}

	cleanup := func() {
		testDB.Where("program_code = ?", f.program.ProgramCode).Delete(&model.RoutineSlot{})
		for _, teacher := range f.teachers {
			testDB.Where("teacher_id = ?", teacher.TeacherID).Delete(&model.Teacher{})
		}
		testDB.Where("room_id = ?", f.room.RoomID).Delete(&model.Room{})
		testDB.Where("subject_id = ?", f.subject.SubjectID).Delete(&model.Subject{})
		testDB.Where("program_code = ?", f.program.ProgramCode).Delete(&model.Program{})
	}
	return f, cleanup
}

func (f *fixture) slot(section string, day, index int, teacherIdx ...int) *model.RoutineSlot {
	ids := pq.StringArray{}
	for _, i := range teacherIdx {
		ids = append(ids, f.teachers[i].TeacherID)
	}
	classType := model.ClassTypeLecture
	return &model.RoutineSlot{
		Cohort:      f.cohort(section),
		DayIndex:    day,
		SlotIndex:   index,
		SubjectID:   &f.subject.SubjectID,
		TeacherIDs:  ids,
		RoomID:      &f.room.RoomID,
		ClassType:   &classType,
		SubjectName: f.subject.Name,
		IsActive:    true,
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Exclusivity
// ═══════════════════════════════════════════════════════════

func TestCreate_CohortCellUnique(t *testing.T) {
	f, cleanup := setupFixture(t)
	defer cleanup()
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	if err := repo.RoutineSlot.Create(ctx, f.slot("AB", 1, 2, 0)); err != nil {
		t.Fatalf("创建格子失败: %v", err)
	}

	dup := f.slot("AB", 1, 2, 1)
	dup.RoomID = nil
	dup.SubjectID = nil
	dup.TeacherIDs = pq.StringArray{}
	err := repo.RoutineSlot.Create(ctx, dup)
	if !pkgerrors.IsUniqueViolation(err) {
		t.Fatalf("期望班级格子唯一约束冲突，实际: %v", err)
	}
}

func TestCreate_TeacherReservationUnique(t *testing.T) {
	f, cleanup := setupFixture(t)
	defer cleanup()
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	if err := repo.RoutineSlot.Create(ctx, f.slot("AB", 2, 0, 0)); err != nil {
		t.Fatalf("创建格子失败: %v", err)
	}

	// 不同班级、同一教师同一时刻：读检查被绕过时由预留唯一约束拒绝
	other := f.slot("CD", 2, 0, 0)
	err := repo.RoutineSlot.Create(ctx, other)
	if !pkgerrors.IsUniqueViolation(err) {
		t.Fatalf("期望教师预留唯一约束冲突，实际: %v", err)
	}

	// 事务回滚后 CD 班不应残留格子
	if _, err := repo.RoutineSlot.FindByCell(ctx, f.cohort("CD"), 2, 0); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("冲突后不应残留格子，实际: %v", err)
	}
}

func TestUpdate_ClearReleasesReservations(t *testing.T) {
	f, cleanup := setupFixture(t)
	defer cleanup()
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	s := f.slot("AB", 3, 1, 0, 1)
	if err := repo.RoutineSlot.Create(ctx, s); err != nil {
		t.Fatalf("创建格子失败: %v", err)
	}

	s.ClearContent()
	if err := repo.RoutineSlot.Update(ctx, s); err != nil {
		t.Fatalf("清空格子失败: %v", err)
	}

	var count int64
	testDB.Model(&model.SlotReservation{}).Where("routine_slot_id = ?", s.RoutineSlotID).Count(&count)
	if count != 0 {
		t.Errorf("清空后预留应释放，实际剩余 %d 条", count)
	}

	// 教师与教室释放后，其他班级可排入同一时刻
	if err := repo.RoutineSlot.Create(ctx, f.slot("CD", 3, 1, 0)); err != nil {
		t.Fatalf("释放后应可排课: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Optimistic Lock & Transaction
// ═══════════════════════════════════════════════════════════

func TestUpdate_OptimisticLock(t *testing.T) {
	f, cleanup := setupFixture(t)
	defer cleanup()
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	s := f.slot("AB", 4, 0, 0)
	if err := repo.RoutineSlot.Create(ctx, s); err != nil {
		t.Fatalf("创建格子失败: %v", err)
	}

	copy1, _ := repo.RoutineSlot.GetByID(ctx, s.RoutineSlotID)
	copy2, _ := repo.RoutineSlot.GetByID(ctx, s.RoutineSlotID)

	copy1.TeacherIDs = pq.StringArray{f.teachers[1].TeacherID}
	if err := repo.RoutineSlot.Update(ctx, copy1); err != nil {
		t.Fatalf("第一次更新应成功: %v", err)
	}
	if copy1.Version != 2 {
		t.Errorf("期望 version=2，实际=%d", copy1.Version)
	}
	if !copy1.UpdatedAt.After(s.UpdatedAt) {
		t.Errorf("更新后内存中的 updated_at 应刷新，更新前=%s 更新后=%s", s.UpdatedAt, copy1.UpdatedAt)
	}
	stored, _ := repo.RoutineSlot.GetByID(ctx, s.RoutineSlotID)
	if stored.UpdatedAt.Sub(copy1.UpdatedAt).Abs() > time.Millisecond {
		t.Errorf("内存 updated_at 应与库中一致，库=%s 内存=%s", stored.UpdatedAt, copy1.UpdatedAt)
	}

	err := repo.RoutineSlot.Update(ctx, copy2)
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Fatalf("期望 ErrOptimisticLock，实际: %v", err)
	}
}

func TestTransaction_SpanRollback(t *testing.T) {
	f, cleanup := setupFixture(t)
	defer cleanup()
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	// 先占用第 2 节的教室
	if err := repo.RoutineSlot.Create(ctx, f.slot("CD", 5, 2, 1)); err != nil {
		t.Fatalf("创建占用格子失败: %v", err)
	}

	spanID := "5b0f6c0e-7d7a-4c3e-9a55-1f0c8f1b2a01"
	err := repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		for i, idx := range []int{1, 2} {
			s := f.slot("AB", 5, idx, 0)
			s.SpanID = &spanID
			s.SpanMaster = i == 0
			if err := txRepo.RoutineSlot.Create(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if !pkgerrors.IsUniqueViolation(err) {
		t.Fatalf("期望教室预留冲突，实际: %v", err)
	}

	members, err := repo.RoutineSlot.ListBySpan(ctx, spanID)
	if err != nil {
		t.Fatalf("查询跨节成员失败: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("事务回滚后不应残留跨节成员，实际 %d 条", len(members))
	}
}

func TestDeleteByCohort(t *testing.T) {
	f, cleanup := setupFixture(t)
	defer cleanup()
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	for day := 0; day < 3; day++ {
		if err := repo.RoutineSlot.Create(ctx, f.slot("AB", day, 0, 0)); err != nil {
			t.Fatalf("创建格子失败: %v", err)
		}
	}

	n, err := repo.RoutineSlot.DeleteByCohort(ctx, f.cohort("AB"))
	if err != nil {
		t.Fatalf("DeleteByCohort 失败: %v", err)
	}
	if n != 3 {
		t.Errorf("期望删除 3 条，实际=%d", n)
	}

	busy, _ := repo.RoutineSlot.ListByTeacher(ctx, f.teachers[0].TeacherID)
	if len(busy) != 0 {
		t.Errorf("删除后教师不应再有课，实际 %d 条", len(busy))
	}
}
