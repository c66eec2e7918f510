package models

import "github.com/google/uuid"

// AchievementFilter — фильтры списка; нулевые значения не фильтруют.
type AchievementFilter struct {
	StudentID    *uuid.UUID
	Status       Status
	Search       string
	AcademicYear string
	Semester     int
	// SortAsc — по возрастанию даты достижения (по умолчанию — по убыванию).
	SortAsc bool
}

type Page struct {
	Offset int
	Limit  int
}

type StatisticsFilter struct {
	StudentID    *uuid.UUID
	AcademicYear string
	Semester     int
}

// Match — попадает ли ключ под фильтр.
func (f StatisticsFilter) Match(k StatisticsKey) bool {
	if f.StudentID != nil && *f.StudentID != k.StudentID {
		return false
	}
	if f.AcademicYear != "" && f.AcademicYear != k.AcademicYear {
		return false
	}
	if f.Semester != 0 && f.Semester != k.Semester {
		return false
	}
	return true
}

type HallOfFameFilter struct {
	AcademicYear string
	// Limit — сколько записей вернуть; 0 — все.
	Limit int
}
