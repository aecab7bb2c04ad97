package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"routine-scheduler/backend/config"
	"routine-scheduler/backend/internal/dto"
	"routine-scheduler/backend/internal/model"
)

// routineValidator 排课请求的本地校验
// 复用 DTO 上的 binding 标签，再叠加依赖配置的业务规则
type routineValidator struct {
	v     *validator.Validate
	rules config.RoutineConfig
}

func newRoutineValidator(rules config.RoutineConfig) *routineValidator {
	v := validator.New()
	v.SetTagName("binding")
	return &routineValidator{v: v, rules: rules}
}

func (rv *routineValidator) structErr(s interface{}) error {
	err := rv.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		msg := "不满足规则 " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		return &ValidationError{Field: fe.Namespace(), Message: msg}
	}
	return &ValidationError{Message: err.Error()}
}

func (rv *routineValidator) cohort(c *dto.CohortQuery) error {
	if err := rv.structErr(c); err != nil {
		return err
	}
	if c.Semester > rv.rules.MaxSemester {
		return &ValidationError{Field: "semester", Message: fmt.Sprintf("必须在 1-%d 之间", rv.rules.MaxSemester)}
	}
	for _, s := range rv.rules.AllowedSections {
		if c.Section == s {
			return nil
		}
	}
	return &ValidationError{Field: "section", Message: "必须为 " + strings.Join(rv.rules.AllowedSections, "/") + " 之一"}
}

// content 校验课程内容并返回去重后的教师列表（保持请求顺序）
func (rv *routineValidator) content(c *dto.SlotContent) ([]string, error) {
	if err := rv.structErr(c); err != nil {
		return nil, err
	}

	allowed := false
	for _, t := range rv.rules.ClassTypes {
		if c.ClassType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &ValidationError{Field: "class_type", Message: "必须为 " + strings.Join(rv.rules.ClassTypes, "/") + " 之一"}
	}

	seen := make(map[string]bool, len(c.TeacherIDs))
	teachers := make([]string, 0, len(c.TeacherIDs))
	for _, id := range c.TeacherIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, &ValidationError{Field: "teacher_ids", Message: "不能包含空值"}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		teachers = append(teachers, id)
	}
	return teachers, nil
}

func (rv *routineValidator) assign(req *dto.AssignSlotRequest) ([]string, error) {
	if err := rv.structErr(req); err != nil {
		return nil, err
	}
	if err := rv.cohort(&req.CohortQuery); err != nil {
		return nil, err
	}
	return rv.content(&req.SlotContent)
}

// span 额外要求节次连续且互不相同，返回升序节次
func (rv *routineValidator) span(req *dto.AssignSpanRequest) ([]string, []int, error) {
	if err := rv.structErr(req); err != nil {
		return nil, nil, err
	}
	if err := rv.cohort(&req.CohortQuery); err != nil {
		return nil, nil, err
	}
	teachers, err := rv.content(&req.SlotContent)
	if err != nil {
		return nil, nil, err
	}

	indexes := append([]int(nil), req.SlotIndexes...)
	sort.Ints(indexes)
	for i := 1; i < len(indexes); i++ {
		if indexes[i] == indexes[i-1] {
			return nil, nil, &ValidationError{Field: "slot_indexes", Message: fmt.Sprintf("节次 %d 重复", indexes[i])}
		}
		if indexes[i] != indexes[i-1]+1 {
			return nil, nil, &ValidationError{Field: "slot_indexes", Message: fmt.Sprintf("节次 %d 与 %d 不连续", indexes[i-1], indexes[i])}
		}
	}
	return teachers, indexes, nil
}

func (rv *routineValidator) cell(day, slot int) error {
	if day < 0 || day > 6 {
		return &ValidationError{Field: "day", Message: "必须在 0-6 之间"}
	}
	if slot < 0 {
		return &ValidationError{Field: "slot", Message: "不能为负数"}
	}
	return nil
}

func toCohort(c *dto.CohortQuery) model.Cohort {
	return model.Cohort{ProgramCode: c.ProgramCode, Semester: c.Semester, Section: c.Section}
}
