package model

// Program 专业表（programs）
type Program struct {
	ProgramCode string `gorm:"type:varchar(20);primaryKey"  json:"program_code"`
	Name        string `gorm:"type:varchar(200);not null"   json:"name"`
	IsActive    bool   `gorm:"not null;default:true"        json:"is_active"`
	ReferenceModel
}

func (Program) TableName() string { return "programs" }
