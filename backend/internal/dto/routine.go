package dto

// ── 课表模块 DTO ──

// CohortQuery 班级标识（查询参数 / 请求体共用）
type CohortQuery struct {
	ProgramCode string `json:"program_code" form:"program_code" binding:"required,max=20"`
	Semester    int    `json:"semester"     form:"semester"     binding:"required,min=1"`
	Section     string `json:"section"      form:"section"      binding:"required,max=10"`
}

// SlotContent 课程内容：科目 + 教师 + 教室 + 类型
type SlotContent struct {
	SubjectID  string   `json:"subject_id"  binding:"required,uuid"`
	TeacherIDs []string `json:"teacher_ids" binding:"required,min=1,dive,required,uuid"`
	RoomID     string   `json:"room_id"     binding:"required,uuid"`
	ClassType  string   `json:"class_type"  binding:"required"` // Lecture | Practical | Tutorial
	Notes      *string  `json:"notes"       binding:"omitempty,max=500"`
}

// AssignSlotRequest 单格排课请求
// 目标格子已有课程时原地更新（同一 ID），否则新建
type AssignSlotRequest struct {
	CohortQuery
	DayIndex  *int `json:"day_index"  binding:"required,min=0,max=6"`
	SlotIndex *int `json:"slot_index" binding:"required,min=0"`
	SlotContent
}

// AssignSpanRequest 跨节排课请求（如连堂实验课）
type AssignSpanRequest struct {
	CohortQuery
	DayIndex    *int  `json:"day_index"    binding:"required,min=0,max=6"`
	SlotIndexes []int `json:"slot_indexes" binding:"required,min=1,dive,min=0"`
	SlotContent
}

// UpdateSlotRequest 修改已有格子的课程内容
type UpdateSlotRequest struct {
	SlotContent
}

// AvailabilityQuery 教师 / 教室空闲查询参数
type AvailabilityQuery struct {
	DayIndex  *int `form:"day"  binding:"required,min=0,max=6"`
	SlotIndex *int `form:"slot" binding:"required,min=0"`
}

// ── 课表模块响应 ──

// RoutineSlotResponse 课表格子响应
type RoutineSlotResponse struct {
	ID           string   `json:"id"`
	ProgramCode  string   `json:"program_code"`
	Semester     int      `json:"semester"`
	Section      string   `json:"section"`
	DayIndex     int      `json:"day_index"`
	SlotIndex    int      `json:"slot_index"`
	IsEmpty      bool     `json:"is_empty"`
	SubjectID    *string  `json:"subject_id,omitempty"`
	SubjectCode  string   `json:"subject_code,omitempty"`
	SubjectName  string   `json:"subject_name,omitempty"`
	TeacherIDs   []string `json:"teacher_ids"`
	TeacherNames []string `json:"teacher_names"`
	RoomID       *string  `json:"room_id,omitempty"`
	RoomName     string   `json:"room_name,omitempty"`
	ClassType    *string  `json:"class_type,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
	TimeRange    string   `json:"time_range,omitempty"`
	SpanID       *string  `json:"span_id,omitempty"`
	SpanMaster   bool     `json:"span_master"`
	Version      int      `json:"version"`
	UpdatedAt    string   `json:"updated_at"`
}

// AssignSlotResponse 单格排课结果
type AssignSlotResponse struct {
	Slot      RoutineSlotResponse `json:"slot"`
	Operation string              `json:"operation"` // create | update
}

// SpanResponse 跨节排课结果
type SpanResponse struct {
	SpanID string                `json:"span_id"`
	Slots  []RoutineSlotResponse `json:"slots"`
}

// TimeSlotResponse 节次（课表表头）
type TimeSlotResponse struct {
	SlotIndex int    `json:"slot_index"`
	TimeRange string `json:"time_range"`
	IsBreak   bool   `json:"is_break"`
}

// RoutineGridResponse 班级周课表：day_index → slot_index → 格子
type RoutineGridResponse struct {
	Cohort    CohortQuery                         `json:"cohort"`
	TimeSlots []TimeSlotResponse                  `json:"time_slots"`
	Grid      map[int]map[int]RoutineSlotResponse `json:"grid"`
	SlotCount int                                 `json:"slot_count"`
}

// TeacherRoutineResponse 教师个人课表
type TeacherRoutineResponse struct {
	TeacherID string                `json:"teacher_id"`
	ShortName string                `json:"short_name"`
	Slots     []RoutineSlotResponse `json:"slots"`
}

// DeleteSpanResponse 删除跨节课程结果
type DeleteSpanResponse struct {
	SpanID  string `json:"span_id"`
	Deleted int    `json:"deleted"`
}

// ClearCohortResponse 清空班级课表结果
type ClearCohortResponse struct {
	Deleted          int `json:"deleted"`
	AffectedTeachers int `json:"affected_teachers"`
}

// ResyncResponse 快照刷新结果
type ResyncResponse struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ── 冲突 ──

// 冲突类型
const (
	ConflictTeacher = "teacher"
	ConflictRoom    = "room"
	ConflictSection = "section"
)

// ConflictSlot 占用目标资源的已有格子摘要
type ConflictSlot struct {
	SlotID      string   `json:"slot_id"`
	ProgramCode string   `json:"program_code"`
	Semester    int      `json:"semester"`
	Section     string   `json:"section"`
	DayIndex    int      `json:"day_index"`
	SlotIndex   int      `json:"slot_index"`
	SubjectID   *string  `json:"subject_id,omitempty"`
	SubjectName string   `json:"subject_name,omitempty"`
	RoomID      *string  `json:"room_id,omitempty"`
	RoomName    string   `json:"room_name,omitempty"`
	TeacherIDs  []string `json:"teacher_ids"`
}

// Conflict 一条排课冲突
type Conflict struct {
	Type            string       `json:"type"` // teacher | room | section
	ResourceID      string       `json:"resource_id"`
	ResourceName    string       `json:"resource_name,omitempty"`
	ConflictingSlot ConflictSlot `json:"conflicting_slot"`
}

// AvailabilityResponse 资源空闲查询结果
type AvailabilityResponse struct {
	ResourceID string     `json:"resource_id"`
	DayIndex   int        `json:"day_index"`
	SlotIndex  int        `json:"slot_index"`
	Available  bool       `json:"available"`
	Conflicts  []Conflict `json:"conflicts"`
}
