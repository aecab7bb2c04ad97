package model

// Room 教室表（rooms）
type Room struct {
	RoomID   string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"room_id"`
	Name     string `gorm:"type:varchar(100);not null"                     json:"name"`
	Capacity int    `gorm:"not null;default:0"                             json:"capacity"`
	IsActive bool   `gorm:"not null;default:true"                          json:"is_active"`
	ReferenceModel
}

func (Room) TableName() string { return "rooms" }
