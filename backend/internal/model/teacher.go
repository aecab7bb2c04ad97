package model

// Teacher 教师表（teachers）
// ShortName 为课表格子上展示的简称
type Teacher struct {
	TeacherID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"teacher_id"`
	FullName  string `gorm:"type:varchar(200);not null"                     json:"full_name"`
	ShortName string `gorm:"type:varchar(20);not null"                      json:"short_name"`
	IsActive  bool   `gorm:"not null;default:true"                          json:"is_active"`
	ReferenceModel
}

func (Teacher) TableName() string { return "teachers" }
