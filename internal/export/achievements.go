package export

import (
	"strings"
	"time"

	"github.com/Spok95/achievement-service/internal/models"
)

const dateLayout = "2006-01-02"

func AchievementsSheet(items []models.Achievement) SheetSpec {
	s := SheetSpec{
		Title: "Achievements",
		Header: []string{
			"Date", "Student", "NISN", "Class", "Title", "Category", "Type", "Level", "Rank",
			"Points", "Status", "Team", "Academic year", "Semester", "Reported by", "Approved/Rejected by",
		},
	}
	for _, a := range items {
		rank := ""
		if a.Rank != nil {
			rank = string(*a.Rank)
		}
		s.Rows = append(s.Rows, []any{
			a.AchievementDate.Format(dateLayout),
			a.StudentName, a.StudentNISN, a.StudentClass,
			a.Title, a.CategoryName, string(a.CategoryType),
			string(a.Level), rank, a.Points, string(a.Status),
			a.TeamName, a.AcademicYear, a.Semester,
			a.ReportedByName, decidedBy(&a),
		})
	}
	return s
}

func decidedBy(a *models.Achievement) string {
	switch {
	case a.ApprovedByName != nil:
		return *a.ApprovedByName
	case a.RejectedByName != nil:
		return *a.RejectedByName
	}
	return ""
}

// StatisticsSheet — по строке на (ученик, год, семестр) с разбивкой по типам, уровням и призовым местам.
func StatisticsSheet(records []models.StatisticsRecord) SheetSpec {
	header := []string{"Student", "Class", "Academic year", "Semester", "Total", "Pending", "Approved", "Rejected", "Points"}
	for _, c := range models.CategoryTypes {
		header = append(header, string(c))
	}
	for _, l := range models.Levels {
		header = append(header, string(l))
	}
	for _, r := range models.TopRanks {
		header = append(header, string(r))
	}
	header = append(header, "Last achievement")

	s := SheetSpec{Title: "Statistics", Header: header}
	for _, r := range records {
		row := []any{
			r.StudentName, r.StudentClass, r.AcademicYear, r.Semester,
			r.TotalAchievements, r.PendingCount, r.ApprovedCount, r.RejectedCount, r.TotalPoints,
		}
		for _, c := range models.CategoryTypes {
			row = append(row, r.ByCategory[c])
		}
		for _, l := range models.Levels {
			row = append(row, r.ByLevel[l])
		}
		for _, rk := range models.TopRanks {
			row = append(row, r.ByRank[rk])
		}
		row = append(row, formatDate(r.LastAchievementDate))
		s.Rows = append(s.Rows, row)
	}
	return s
}

// SummarySheet — итог в виде пар «показатель — значение».
func SummarySheet(sum *models.StatisticsSummary) SheetSpec {
	s := SheetSpec{Title: "Summary", Header: []string{"Metric", "Value"}}
	add := func(k string, v int) { s.Rows = append(s.Rows, []any{k, v}) }
	add("Students", sum.Students)
	add("Total", sum.Total)
	add("Total points", sum.TotalPoints)
	for _, st := range models.Statuses {
		add("Status "+strings.ToLower(string(st)), sum.ByStatus[st])
	}
	for _, c := range models.CategoryTypes {
		add("Category "+string(c), sum.ByCategory[c])
	}
	for _, l := range models.Levels {
		add("Level "+string(l), sum.ByLevel[l])
	}
	for _, r := range models.TopRanks {
		add("Rank "+string(r), sum.ByRank[r])
	}
	return s
}

func HallOfFameSheet(entries []models.HallOfFameEntry) SheetSpec {
	s := SheetSpec{
		Title:  "Hall of fame",
		Header: []string{"Date", "Student", "Class", "Achievement", "Level", "Rank", "Academic year"},
	}
	for _, e := range entries {
		rank := ""
		if e.Rank != nil {
			rank = string(*e.Rank)
		}
		s.Rows = append(s.Rows, []any{
			e.AchievementDate.Format(dateLayout), e.StudentName, e.StudentClass,
			e.AchievementTitle, string(e.Level), rank, e.AcademicYear,
		})
	}
	return s
}

// StatisticsReport — полная выгрузка: итог, статистика по ученикам и сами записи.
func StatisticsReport(sum *models.StatisticsSummary, items []models.Achievement) (*Workbook, error) {
	return NewWorkbook([]SheetSpec{
		SummarySheet(sum),
		StatisticsSheet(sum.Records),
		AchievementsSheet(items),
	})
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
