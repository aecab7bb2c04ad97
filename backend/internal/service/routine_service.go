package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"routine-scheduler/backend/config"
	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/model"
	"routine-scheduler/backend/internal/notifier"
	"routine-scheduler/backend/internal/repository"
	pkgerrors "routine-scheduler/backend/pkg/errors"
	"routine-scheduler/backend/pkg/metrics"
)

// 排课结果操作类型
const (
	OperationCreate = "create"
	OperationUpdate = "update"
)

// RoutineService 课表排课业务接口
type RoutineService interface {
	Assign(ctx context.Context, req *dto.AssignSlotRequest, callerID string) (*dto.AssignSlotResponse, error)
	AssignSpanned(ctx context.Context, req *dto.AssignSpanRequest, callerID string) (*dto.SpanResponse, error)
	Update(ctx context.Context, slotID string, req *dto.UpdateSlotRequest, callerID string) (*dto.RoutineSlotResponse, error)
	ClearCell(ctx context.Context, slotID string, callerID string) (*dto.RoutineSlotResponse, error)
	DeleteSlot(ctx context.Context, slotID string, callerID string) error
	DeleteSpanGroup(ctx context.Context, spanID string, callerID string) (*dto.DeleteSpanResponse, error)
	ClearCohort(ctx context.Context, req *dto.CohortQuery, callerID string) (*dto.ClearCohortResponse, error)
	GetRoutine(ctx context.Context, req *dto.CohortQuery) (*dto.RoutineGridResponse, error)
	CheckTeacherAvailability(ctx context.Context, teacherID string, day, slot int) (*dto.AvailabilityResponse, error)
	CheckRoomAvailability(ctx context.Context, roomID string, day, slot int) (*dto.AvailabilityResponse, error)
	GetTeacherRoutine(ctx context.Context, teacherID string) (*dto.TeacherRoutineResponse, error)
	ResyncSnapshots(ctx context.Context, req *dto.CohortQuery, callerID string) (*dto.ResyncResponse, error)
}

type routineService struct {
	repo       *repository.Repository
	detector   *ConflictDetector
	notifier   notifier.Notifier
	validate   *routineValidator
	supportsTx bool
	logger     *zap.Logger
}

// NewRoutineService 创建 RoutineService 实例
func NewRoutineService(cfg *config.Config, repo *repository.Repository, notif notifier.Notifier, logger *zap.Logger) RoutineService {
	return &routineService{
		repo:       repo,
		detector:   NewConflictDetector(repo.RoutineSlot),
		notifier:   notif,
		validate:   newRoutineValidator(cfg.Routine),
		supportsTx: cfg.Store.SupportsTransactions,
		logger:     logger,
	}
}

// ────────────────────── Assign ──────────────────────

func (s *routineService) Assign(ctx context.Context, req *dto.AssignSlotRequest, callerID string) (*dto.AssignSlotResponse, error) {
	teacherIDs, err := s.validate.assign(req)
	if err != nil {
		return nil, err
	}
	cohort := toCohort(&req.CohortQuery)
	day, index := *req.DayIndex, *req.SlotIndex

	if err := s.resolveProgram(ctx, cohort.ProgramCode); err != nil {
		return nil, err
	}
	refs, err := s.resolveContent(ctx, &req.SlotContent, teacherIDs)
	if err != nil {
		return nil, err
	}
	ts, err := s.resolveTimeSlot(ctx, index)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.RoutineSlot.FindByCell(ctx, cohort, day, index)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询课表格子失败", zap.String("cohort", cohort.String()), zap.Error(err))
		return nil, err
	}
	if existing != nil && existing.IsSpanMember() {
		return nil, ErrSpanMemberUpdate
	}

	excludeID := ""
	if existing != nil {
		excludeID = existing.RoutineSlotID
	}
	if err := s.checkConflicts(ctx, Candidate{
		Cohort:     cohort,
		DayIndex:   day,
		SlotIndex:  index,
		TeacherIDs: teacherIDs,
		RoomID:     req.RoomID,
	}, excludeID, nil); err != nil {
		return nil, err
	}

	var (
		slot        *model.RoutineSlot
		operation   = OperationCreate
		oldTeachers []string
	)
	if existing != nil {
		// 原地更新：保留 ID，清空过的格子视为新建
		slot = existing
		if slot.IsOccupied() {
			operation = OperationUpdate
			oldTeachers = append(oldTeachers, slot.TeacherIDs...)
		}
		applyContent(slot, &req.SlotContent, refs, ts)
		slot.UpdatedBy = &callerID
		if err := s.repo.RoutineSlot.Update(ctx, slot); err != nil {
			return nil, s.storeError("更新课表格子失败", err, zap.String("slot_id", slot.RoutineSlotID))
		}
	} else {
		slot = &model.RoutineSlot{
			Cohort:    cohort,
			DayIndex:  day,
			SlotIndex: index,
			IsActive:  true,
		}
		applyContent(slot, &req.SlotContent, refs, ts)
		slot.CreatedBy = &callerID
		slot.UpdatedBy = &callerID
		if err := s.repo.RoutineSlot.Create(ctx, slot); err != nil {
			return nil, s.storeError("创建课表格子失败", err, zap.String("cohort", cohort.String()))
		}
	}

	metrics.ObserveMutation(operation)
	s.notifyAffected(ctx, notifier.Message{
		Action: operation,
		Cohort: toMessageCohort(cohort),
		Day:    &day,
		Slot:   &index,
	}, oldTeachers, slot.TeacherIDs)

	return &dto.AssignSlotResponse{Slot: toRoutineSlotResponse(slot), Operation: operation}, nil
}

// ────────────────────── Update ──────────────────────

func (s *routineService) Update(ctx context.Context, slotID string, req *dto.UpdateSlotRequest, callerID string) (*dto.RoutineSlotResponse, error) {
	teacherIDs, err := s.validate.content(&req.SlotContent)
	if err != nil {
		return nil, err
	}

	slot, err := s.getSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.IsSpanMember() {
		return nil, ErrSpanMemberUpdate
	}

	refs, err := s.resolveContent(ctx, &req.SlotContent, teacherIDs)
	if err != nil {
		return nil, err
	}
	ts, err := s.resolveTimeSlot(ctx, slot.SlotIndex)
	if err != nil {
		return nil, err
	}

	if err := s.checkConflicts(ctx, Candidate{
		Cohort:     slot.Cohort,
		DayIndex:   slot.DayIndex,
		SlotIndex:  slot.SlotIndex,
		TeacherIDs: teacherIDs,
		RoomID:     req.RoomID,
	}, slot.RoutineSlotID, nil); err != nil {
		return nil, err
	}

	oldTeachers := append([]string(nil), slot.TeacherIDs...)
	applyContent(slot, &req.SlotContent, refs, ts)
	slot.UpdatedBy = &callerID
	if err := s.repo.RoutineSlot.Update(ctx, slot); err != nil {
		return nil, s.storeError("更新课表格子失败", err, zap.String("slot_id", slotID))
	}

	metrics.ObserveMutation(OperationUpdate)
	s.notifyAffected(ctx, notifier.Message{
		Action: notifier.ActionUpdate,
		Cohort: toMessageCohort(slot.Cohort),
		Day:    &slot.DayIndex,
		Slot:   &slot.SlotIndex,
	}, oldTeachers, slot.TeacherIDs)

	resp := toRoutineSlotResponse(slot)
	return &resp, nil
}

// ────────────────────── Reads ──────────────────────

func (s *routineService) GetRoutine(ctx context.Context, req *dto.CohortQuery) (*dto.RoutineGridResponse, error) {
	if err := s.validate.cohort(req); err != nil {
		return nil, err
	}
	if _, err := s.repo.Program.GetByCode(ctx, req.ProgramCode); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgramNotFound
		}
		s.logger.Error("查询专业失败", zap.String("program_code", req.ProgramCode), zap.Error(err))
		return nil, err
	}

	slots, err := s.repo.RoutineSlot.ListByCohort(ctx, toCohort(req))
	if err != nil {
		s.logger.Error("查询班级课表失败", zap.String("program_code", req.ProgramCode), zap.Error(err))
		return nil, err
	}

	catalog, err := s.repo.TimeSlot.List(ctx)
	if err != nil {
		s.logger.Error("查询节次失败", zap.Error(err))
		return nil, err
	}
	timeSlots := make([]dto.TimeSlotResponse, 0, len(catalog))
	for i := range catalog {
		timeSlots = append(timeSlots, dto.TimeSlotResponse{
			SlotIndex: catalog[i].SlotIndex,
			TimeRange: catalog[i].TimeRange(),
			IsBreak:   catalog[i].IsBreak,
		})
	}

	grid := make(map[int]map[int]dto.RoutineSlotResponse)
	for i := range slots {
		day := slots[i].DayIndex
		if grid[day] == nil {
			grid[day] = make(map[int]dto.RoutineSlotResponse)
		}
		grid[day][slots[i].SlotIndex] = toRoutineSlotResponse(&slots[i])
	}

	return &dto.RoutineGridResponse{Cohort: *req, TimeSlots: timeSlots, Grid: grid, SlotCount: len(slots)}, nil
}

func (s *routineService) CheckTeacherAvailability(ctx context.Context, teacherID string, day, slot int) (*dto.AvailabilityResponse, error) {
	if err := s.validate.cell(day, slot); err != nil {
		return nil, err
	}
	if _, err := s.repo.Teacher.GetByID(ctx, teacherID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeacherNotFound
		}
		return nil, err
	}

	conflicts, err := s.detector.TeacherConflicts(ctx, teacherID, day, slot, "")
	if err != nil {
		s.logger.Error("查询教师空闲失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}
	return availability(teacherID, day, slot, conflicts), nil
}

func (s *routineService) CheckRoomAvailability(ctx context.Context, roomID string, day, slot int) (*dto.AvailabilityResponse, error) {
	if err := s.validate.cell(day, slot); err != nil {
		return nil, err
	}

	conflicts, err := s.detector.RoomConflicts(ctx, roomID, day, slot, "")
	if err != nil {
		s.logger.Error("查询教室空闲失败", zap.String("room_id", roomID), zap.Error(err))
		return nil, err
	}
	return availability(roomID, day, slot, conflicts), nil
}

func (s *routineService) GetTeacherRoutine(ctx context.Context, teacherID string) (*dto.TeacherRoutineResponse, error) {
	teacher, err := s.repo.Teacher.GetByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeacherNotFound
		}
		return nil, err
	}

	slots, err := s.repo.RoutineSlot.ListByTeacher(ctx, teacherID)
	if err != nil {
		s.logger.Error("查询教师课表失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.RoutineSlotResponse, 0, len(slots))
	for i := range slots {
		result = append(result, toRoutineSlotResponse(&slots[i]))
	}
	return &dto.TeacherRoutineResponse{TeacherID: teacherID, ShortName: teacher.ShortName, Slots: result}, nil
}

// ────────────────────── helpers ──────────────────────

func (s *routineService) getSlot(ctx context.Context, slotID string) (*model.RoutineSlot, error) {
	slot, err := s.repo.RoutineSlot.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoutineSlotNotFound
		}
		s.logger.Error("查询课表格子失败", zap.String("slot_id", slotID), zap.Error(err))
		return nil, err
	}
	return slot, nil
}

// checkConflicts 有冲突时返回 *ConflictError 并计数
func (s *routineService) checkConflicts(ctx context.Context, c Candidate, excludeSlotID string, slotIndex *int) error {
	conflicts, err := s.detector.DetectConflicts(ctx, c, excludeSlotID)
	if err != nil {
		s.logger.Error("冲突检测失败", zap.String("cohort", c.Cohort.String()), zap.Error(err))
		return err
	}
	if len(conflicts) == 0 {
		return nil
	}
	for _, cf := range conflicts {
		metrics.ObserveConflict(cf.Type)
	}
	return &ConflictError{SlotIndex: slotIndex, Conflicts: conflicts}
}

// storeError 将存储层错误转换为业务错误；唯一约束冲突说明并发请求抢先占用
func (s *routineService) storeError(msg string, err error, fields ...zap.Field) error {
	switch {
	case pkgerrors.IsUniqueViolation(err):
		metrics.ObserveConflict("duplicate")
		s.logger.Warn(msg, append(fields, zap.String("constraint", pkgerrors.ConstraintName(err)), zap.Error(err))...)
		return ErrDuplicateKey
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRoutineSlotNotFound
	}
	s.logger.Error(msg, append(fields, zap.Error(err))...)
	return err
}

// notifyAffected 通知受影响教师的课表缓存失效；失败只记日志，不影响已提交的变更
func (s *routineService) notifyAffected(ctx context.Context, msg notifier.Message, teacherGroups ...[]string) {
	msg.AffectedTeacherIDs = unionTeachers(teacherGroups...)
	if len(msg.AffectedTeacherIDs) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("课表缓存失效通知入队失败",
			zap.String("action", msg.Action),
			zap.String("cohort", msg.Cohort.ProgramCode),
			zap.Strings("affected_teacher_ids", msg.AffectedTeacherIDs),
			zap.Error(err),
		)
	}
}

func toMessageCohort(c model.Cohort) notifier.Cohort {
	return notifier.Cohort{ProgramCode: c.ProgramCode, Semester: c.Semester, Section: c.Section}
}

func availability(resourceID string, day, slot int, conflicts []dto.Conflict) *dto.AvailabilityResponse {
	if conflicts == nil {
		conflicts = []dto.Conflict{}
	}
	return &dto.AvailabilityResponse{
		ResourceID: resourceID,
		DayIndex:   day,
		SlotIndex:  slot,
		Available:  len(conflicts) == 0,
		Conflicts:  conflicts,
	}
}
