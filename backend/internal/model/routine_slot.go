package model

import "github.com/lib/pq"

// 课程类型
const (
	ClassTypeLecture   = "Lecture"
	ClassTypePractical = "Practical"
	ClassTypeTutorial  = "Tutorial"
)

// RoutineSlot 课表格子（routine_slots）
// 一行表示某班级在 (DayIndex, SlotIndex) 的一节课；清空后保留行、内容置空
type RoutineSlot struct {
	RoutineSlotID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"routine_slot_id"`
	Cohort
	DayIndex  int `gorm:"type:smallint;not null" json:"day_index"` // 0-6
	SlotIndex int `gorm:"type:smallint;not null" json:"slot_index"`

	// 课程内容（清空时为空）
	SubjectID  *string        `gorm:"type:uuid"          json:"subject_id,omitempty"`
	TeacherIDs pq.StringArray `gorm:"type:text[]"        json:"teacher_ids"`
	RoomID     *string        `gorm:"type:uuid"          json:"room_id,omitempty"`
	ClassType  *string        `gorm:"type:varchar(20)"   json:"class_type,omitempty"`
	Notes      *string        `gorm:"type:text"          json:"notes,omitempty"`

	// 跨节课程
	SpanID     *string `gorm:"type:uuid"              json:"span_id,omitempty"`
	SpanMaster bool    `gorm:"not null;default:false" json:"span_master"`

	// 冗余展示快照
	SubjectName  string         `gorm:"type:varchar(200)" json:"subject_name,omitempty"`
	SubjectCode  string         `gorm:"type:varchar(30)"  json:"subject_code,omitempty"`
	TeacherNames pq.StringArray `gorm:"type:text[]"       json:"teacher_names"`
	RoomName     string         `gorm:"type:varchar(100)" json:"room_name,omitempty"`
	TimeRange    string         `gorm:"type:varchar(20)"  json:"time_range,omitempty"`

	IsActive bool `gorm:"not null;default:true" json:"is_active"`
	VersionedModel
}

// TableName 指定表名
func (RoutineSlot) TableName() string { return "routine_slots" }

// IsOccupied 是否排有课程
func (s *RoutineSlot) IsOccupied() bool {
	return s.SubjectID != nil && s.RoomID != nil && len(s.TeacherIDs) > 0
}

// IsSpanMember 是否属于跨节课程
func (s *RoutineSlot) IsSpanMember() bool {
	return s.SpanID != nil
}

// ClearContent 清空课程内容与快照，保留格子身份
func (s *RoutineSlot) ClearContent() {
	s.SubjectID = nil
	s.TeacherIDs = pq.StringArray{}
	s.RoomID = nil
	s.ClassType = nil
	s.Notes = nil
	s.SpanID = nil
	s.SpanMaster = false
	s.SubjectName = ""
	s.SubjectCode = ""
	s.TeacherNames = pq.StringArray{}
	s.RoomName = ""
	s.TimeRange = ""
}
