package model

import "strings"

// TimeSlot 节次目录表（time_slots）
// 同一 slot_index 只有一条启用记录；IsBreak=true 的节次不可排课
type TimeSlot struct {
	TimeSlotID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"time_slot_id"`
	SlotIndex  int    `gorm:"type:smallint;not null"                         json:"slot_index"`
	StartTime  string `gorm:"type:time;not null"                             json:"start_time"`
	EndTime    string `gorm:"type:time;not null"                             json:"end_time"`
	IsBreak    bool   `gorm:"not null;default:false"                         json:"is_break"`
	IsActive   bool   `gorm:"not null;default:true"                          json:"is_active"`
	ReferenceModel
}

// TableName 指定表名
func (TimeSlot) TableName() string { return "time_slots" }

// TimeRange 展示用时间段，如 "10:15-11:05"
func (t *TimeSlot) TimeRange() string {
	return clock(t.StartTime) + "-" + clock(t.EndTime)
}

// clock 截掉 TIME 列返回的秒数部分
func clock(s string) string {
	if i := strings.LastIndex(s, ":"); i > 2 && strings.Count(s, ":") == 2 {
		return s[:i]
	}
	return s
}
