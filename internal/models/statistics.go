package models

import (
	"time"

	"github.com/google/uuid"
)

// StatisticsKey — (ученик, учебный год, семестр).
type StatisticsKey struct {
	StudentID    uuid.UUID `json:"studentId"`
	AcademicYear string    `json:"academicYear"`
	Semester     int       `json:"semester"`
}

type StatisticsRecord struct {
	StatisticsKey
	StudentName  string `json:"studentName"`
	StudentClass string `json:"studentClass"`

	TotalAchievements int `json:"totalAchievements"`
	PendingCount      int `json:"pendingCount"`
	ApprovedCount     int `json:"approvedCount"`
	RejectedCount     int `json:"rejectedCount"`
	TotalPoints       int `json:"totalPoints"`

	ByCategory map[CategoryType]int `json:"byCategory"`
	ByLevel    map[Level]int        `json:"byLevel"`
	ByRank     map[Rank]int         `json:"byRank"`

	LastAchievementDate *time.Time `json:"lastAchievementDate"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// NewStatisticsRecord — пустая строка статистики со всеми счётчиками в нуле.
func NewStatisticsRecord(key StatisticsKey) StatisticsRecord {
	return StatisticsRecord{
		StatisticsKey: key,
		ByCategory:    make(map[CategoryType]int, len(CategoryTypes)),
		ByLevel:       make(map[Level]int, len(Levels)),
		ByRank:        make(map[Rank]int, len(TopRanks)),
	}
}

// StatusCount — счётчик для заданного статуса.
func (r *StatisticsRecord) StatusCount(s Status) int {
	switch s {
	case StatusPending:
		return r.PendingCount
	case StatusApproved:
		return r.ApprovedCount
	case StatusRejected:
		return r.RejectedCount
	}
	return 0
}

// Apply прибавляет дельту к счётчикам записи (используется in-memory хранилищем и при пересчёте).
func (r *StatisticsRecord) Apply(d StatisticsDelta) {
	if r.ByCategory == nil || r.ByLevel == nil || r.ByRank == nil {
		fresh := NewStatisticsRecord(r.StatisticsKey)
		if r.ByCategory == nil {
			r.ByCategory = fresh.ByCategory
		}
		if r.ByLevel == nil {
			r.ByLevel = fresh.ByLevel
		}
		if r.ByRank == nil {
			r.ByRank = fresh.ByRank
		}
	}
	if d.StudentName != "" {
		r.StudentName = d.StudentName
	}
	if d.StudentClass != "" {
		r.StudentClass = d.StudentClass
	}
	r.TotalAchievements += d.Total
	r.PendingCount += d.Pending
	r.ApprovedCount += d.Approved
	r.RejectedCount += d.Rejected
	r.TotalPoints += d.Points
	for k, v := range d.ByCategory {
		r.ByCategory[k] += v
	}
	for k, v := range d.ByLevel {
		r.ByLevel[k] += v
	}
	for k, v := range d.ByRank {
		r.ByRank[k] += v
	}
	if d.AchievementDate != nil && (r.LastAchievementDate == nil || d.AchievementDate.After(*r.LastAchievementDate)) {
		t := *d.AchievementDate
		r.LastAchievementDate = &t
	}
}

// StatisticsDelta — приращения счётчиков одной строки статистики.
// Применяется хранилищем одной атомарной операцией (upsert с инкрементом).
type StatisticsDelta struct {
	Key          StatisticsKey
	StudentName  string
	StudentClass string

	Total    int
	Pending  int
	Approved int
	Rejected int
	Points   int

	ByCategory map[CategoryType]int
	ByLevel    map[Level]int
	ByRank     map[Rank]int

	// AchievementDate — кандидат на last_achievement_date (берётся максимум).
	AchievementDate *time.Time
}

// StatisticsSummary — агрегат по нескольким строкам статистики.
type StatisticsSummary struct {
	Total       int                  `json:"total"`
	ByStatus    map[Status]int       `json:"byStatus"`
	TotalPoints int                  `json:"totalPoints"`
	ByCategory  map[CategoryType]int `json:"byCategory"`
	ByLevel     map[Level]int        `json:"byLevel"`
	ByRank      map[Rank]int         `json:"byRank"`
	Students    int                  `json:"students"`
	Records     []StatisticsRecord   `json:"records,omitempty"`
}
