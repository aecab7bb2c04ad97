package model

import "fmt"

// Cohort 班级标识：专业 + 学期 + 班组
type Cohort struct {
	ProgramCode string `gorm:"type:varchar(20);not null" json:"program_code"`
	Semester    int    `gorm:"type:smallint;not null"    json:"semester"`
	Section     string `gorm:"type:varchar(10);not null" json:"section"`
}

func (c Cohort) String() string {
	return fmt.Sprintf("%s/%d/%s", c.ProgramCode, c.Semester, c.Section)
}
