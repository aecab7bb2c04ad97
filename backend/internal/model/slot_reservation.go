package model

import "time"

// 预留资源类型
const (
	ResourceTeacher = "teacher"
	ResourceRoom    = "room"
)

// SlotReservation 教师 / 教室独占预留（routine_slot_reservations）
// (day_index, slot_index, resource_type, resource_id) 唯一
type SlotReservation struct {
	ReservationID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"reservation_id"`
	RoutineSlotID string    `gorm:"type:uuid;not null"                             json:"routine_slot_id"`
	DayIndex      int       `gorm:"type:smallint;not null"                         json:"day_index"`
	SlotIndex     int       `gorm:"type:smallint;not null"                         json:"slot_index"`
	ResourceType  string    `gorm:"type:varchar(10);not null"                      json:"resource_type"`
	ResourceID    string    `gorm:"type:uuid;not null"                             json:"resource_id"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

func (SlotReservation) TableName() string { return "routine_slot_reservations" }

// ReservationsFor 为已占用格子生成预留记录；空格子返回 nil
func ReservationsFor(slot *RoutineSlot) []SlotReservation {
	if !slot.IsOccupied() {
		return nil
	}
	out := make([]SlotReservation, 0, len(slot.TeacherIDs)+1)
	for _, id := range slot.TeacherIDs {
		out = append(out, SlotReservation{
			RoutineSlotID: slot.RoutineSlotID,
			DayIndex:      slot.DayIndex,
			SlotIndex:     slot.SlotIndex,
			ResourceType:  ResourceTeacher,
			ResourceID:    id,
		})
	}
	out = append(out, SlotReservation{
		RoutineSlotID: slot.RoutineSlotID,
		DayIndex:      slot.DayIndex,
		SlotIndex:     slot.SlotIndex,
		ResourceType:  ResourceRoom,
		ResourceID:    *slot.RoomID,
	})
	return out
}
