package notifier

import "time"

// 通知动作
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionClear  = "clear"
	ActionDelete = "delete"
)

// Cohort 消息中的班级标识
type Cohort struct {
	ProgramCode string `json:"program_code"`
	Semester    int    `json:"semester"`
	Section     string `json:"section"`
}

// Message 教师课表缓存失效消息
// 下游消费者按 AffectedTeacherIDs 重建教师个人课表；Day/Slot 为空表示整班变更
type Message struct {
	EventID            string    `json:"event_id"`
	AffectedTeacherIDs []string  `json:"affected_teacher_ids"`
	Action             string    `json:"action"`
	Cohort             Cohort    `json:"cohort"`
	Day                *int      `json:"day"`
	Slot               *int      `json:"slot"`
	SlotIndexes        []int     `json:"slot_indexes,omitempty"`
	SpanID             string    `json:"span_id,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}
