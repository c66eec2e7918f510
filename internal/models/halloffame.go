package models

import (
	"time"

	"github.com/google/uuid"
)

// HallOfFameEntry — снимок данных на момент включения в «доску почёта».
// Последующие правки достижения его не меняют.
type HallOfFameEntry struct {
	ID               uuid.UUID `db:"id" json:"id"`
	StudentID        uuid.UUID `db:"student_id" json:"studentId"`
	StudentName      string    `db:"student_name" json:"studentName"`
	StudentClass     string    `db:"student_class" json:"studentClass"`
	AchievementID    uuid.UUID `db:"achievement_id" json:"achievementId"`
	AchievementTitle string    `db:"achievement_title" json:"achievementTitle"`
	Level            Level     `db:"level" json:"level"`
	Rank             *Rank     `db:"rank" json:"rank"`
	AchievementDate  time.Time `db:"achievement_date" json:"achievementDate"`
	PhotoURL         string    `db:"photo_url" json:"photoUrl,omitempty"`
	AcademicYear     string    `db:"academic_year" json:"academicYear"`
	DisplayOrder     int       `db:"display_order" json:"displayOrder"`
	IsActive         bool      `db:"is_active" json:"isActive"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}
