package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Учебный год начинается 1 июля: 2024-07-01 … 2025-06-30 → «2024/2025».
const academicYearStartMonth = time.July

var academicYearRe = regexp.MustCompile(`^(\d{4})/(\d{4})$`)

// AcademicYearStartYear — «год» учебного года для момента t (для 2025-03-01 → 2024).
func AcademicYearStartYear(t time.Time) int {
	if t.Month() < academicYearStartMonth {
		return t.Year() - 1
	}
	return t.Year()
}

// AcademicYearLabel форматирует подпись учебного года: "2024/2025".
func AcademicYearLabel(startYear int) string {
	return fmt.Sprintf("%d/%d", startYear, startYear+1)
}

// CurrentAcademicYear — подпись учебного года для момента t.
func CurrentAcademicYear(t time.Time) string {
	return AcademicYearLabel(AcademicYearStartYear(t))
}

// SemesterOf — 1 для июля–декабря, 2 для января–июня.
func SemesterOf(t time.Time) int {
	if t.Month() >= academicYearStartMonth {
		return 1
	}
	return 2
}

// ParseAcademicYear проверяет формат "YYYY/YYYY" и что второй год следует за первым.
func ParseAcademicYear(s string) (int, error) {
	m := academicYearRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("academic year %q must look like 2024/2025", s)
	}
	from, _ := strconv.Atoi(m[1])
	to, _ := strconv.Atoi(m[2])
	if to != from+1 {
		return 0, fmt.Errorf("academic year %q must span consecutive years", s)
	}
	return from, nil
}

// AcademicYearBounds — границы [from, to) учебного года, начинающегося в startYear.
func AcademicYearBounds(startYear int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(startYear, academicYearStartMonth, 1, 0, 0, 0, 0, loc)
	to := time.Date(startYear+1, academicYearStartMonth, 1, 0, 0, 0, 0, loc)
	return from, to
}
