package workflow

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
)

// SubmitInput — данные новой записи. Ученик и категория проверяются по справочнику.
type SubmitInput struct {
	// IdempotencyKey — необязательный ключ клиента; повторная отправка с тем же ключом
	// возвращает уже созданную запись.
	IdempotencyKey string

	StudentID  uuid.UUID
	CategoryID uuid.UUID

	Title           string
	Description     string
	AchievementDate time.Time
	Location        string
	Organizer       string
	Level           models.Level
	Rank            *models.Rank

	IsTeamAchievement bool
	TeamName          string
	TeamMembers       []models.TeamMember
	StudentRole       string

	CertificateURL string
	EvidenceURLs   []string
	PhotoURLs      []string

	AcademicYear string
	Semester     int
}

type ApproveInput struct {
	Notes         string
	IsPublished   bool
	IsFeatured    bool
	FeaturedUntil *time.Time
}

type RejectInput struct {
	RejectionReason string
}

// EditPatch — правка описательных полей; nil — поле не меняется.
// Уровень, место, категория и ученик не редактируются: от них зависят баллы и статистика.
type EditPatch struct {
	Title             *string
	Description       *string
	AchievementDate   *time.Time
	Location          *string
	Organizer         *string
	IsTeamAchievement *bool
	TeamName          *string
	TeamMembers       *[]models.TeamMember
	StudentRole       *string
	CertificateURL    *string
	EvidenceURLs      *[]string
	PhotoURLs         *[]string
}

// Empty — в патче нет ни одного поля.
func (p EditPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.AchievementDate == nil && p.Location == nil &&
		p.Organizer == nil && p.IsTeamAchievement == nil && p.TeamName == nil && p.TeamMembers == nil &&
		p.StudentRole == nil && p.CertificateURL == nil && p.EvidenceURLs == nil && p.PhotoURLs == nil
}

const (
	maxNotesLen        = 500
	minRejectReasonLen = 10
	maxRejectReasonLen = 500
)

type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func validateSubmit(in SubmitInput, now time.Time) fieldErrors {
	errs := fieldErrors{}
	if in.StudentID == uuid.Nil {
		errs.add("studentId", "is required")
	}
	if in.CategoryID == uuid.Nil {
		errs.add("categoryId", "is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		errs.add("title", "is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		errs.add("description", "is required")
	}
	validateDate(errs, in.AchievementDate, now)
	if !in.Level.Valid() {
		errs.add("level", "must be one of "+joinLevels())
	}
	if in.Rank != nil && !in.Rank.Valid() {
		errs.add("rank", "is not a known rank")
	}
	validateTeam(errs, in.IsTeamAchievement, in.TeamName, in.TeamMembers)
	if _, err := models.ParseAcademicYear(in.AcademicYear); err != nil {
		errs.add("academicYear", "must be in YYYY/YYYY format")
	}
	if in.Semester != 1 && in.Semester != 2 {
		errs.add("semester", "must be 1 or 2")
	}
	return errs
}

func validateDate(errs fieldErrors, d, now time.Time) {
	if d.IsZero() {
		errs.add("achievementDate", "is required")
		return
	}
	if d.After(now) {
		errs.add("achievementDate", "must not be in the future")
	}
}

func validateTeam(errs fieldErrors, isTeam bool, name string, members []models.TeamMember) {
	if !isTeam {
		return
	}
	if strings.TrimSpace(name) == "" {
		errs.add("teamName", "is required for team achievements")
	}
	if len(members) == 0 {
		errs.add("teamMembers", "is required for team achievements")
	}
	for _, m := range members {
		if strings.TrimSpace(m.Name) == "" {
			errs.add("teamMembers", "every member needs a name")
			break
		}
	}
}

func validateApprove(in ApproveInput, now time.Time) fieldErrors {
	errs := fieldErrors{}
	if utf8.RuneCountInString(in.Notes) > maxNotesLen {
		errs.add("notes", "must be at most 500 characters")
	}
	if in.IsFeatured {
		switch {
		case in.FeaturedUntil == nil:
			errs.add("featuredUntil", "is required when featured")
		case !in.FeaturedUntil.After(now):
			errs.add("featuredUntil", "must be in the future")
		}
	}
	return errs
}

func validateReject(in RejectInput) fieldErrors {
	errs := fieldErrors{}
	n := utf8.RuneCountInString(strings.TrimSpace(in.RejectionReason))
	switch {
	case n == 0:
		errs.add("rejectionReason", "is required")
	case n < minRejectReasonLen:
		errs.add("rejectionReason", "must be at least 10 characters")
	case n > maxRejectReasonLen:
		errs.add("rejectionReason", "must be at most 500 characters")
	}
	return errs
}

// applyPatch возвращает копию с применённым патчем.
func applyPatch(a *models.Achievement, p EditPatch) *models.Achievement {
	c := a.Clone()
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.AchievementDate != nil {
		c.AchievementDate = *p.AchievementDate
	}
	if p.Location != nil {
		c.Location = *p.Location
	}
	if p.Organizer != nil {
		c.Organizer = *p.Organizer
	}
	if p.IsTeamAchievement != nil {
		c.IsTeamAchievement = *p.IsTeamAchievement
	}
	if p.TeamName != nil {
		c.TeamName = *p.TeamName
	}
	if p.TeamMembers != nil {
		c.TeamMembers = append([]models.TeamMember(nil), (*p.TeamMembers)...)
	}
	if p.StudentRole != nil {
		c.StudentRole = *p.StudentRole
	}
	if p.CertificateURL != nil {
		c.CertificateURL = *p.CertificateURL
	}
	if p.EvidenceURLs != nil {
		c.EvidenceURLs = append([]string(nil), (*p.EvidenceURLs)...)
	}
	if p.PhotoURLs != nil {
		c.PhotoURLs = append([]string(nil), (*p.PhotoURLs)...)
	}
	if !c.IsTeamAchievement {
		c.TeamName = ""
		c.TeamMembers = nil
	}
	return c
}

func validateEdited(a *models.Achievement, now time.Time) fieldErrors {
	errs := fieldErrors{}
	if strings.TrimSpace(a.Title) == "" {
		errs.add("title", "is required")
	}
	if strings.TrimSpace(a.Description) == "" {
		errs.add("description", "is required")
	}
	validateDate(errs, a.AchievementDate, now)
	validateTeam(errs, a.IsTeamAchievement, a.TeamName, a.TeamMembers)
	return errs
}

func joinLevels() string {
	parts := make([]string, len(models.Levels))
	for i, l := range models.Levels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ", ")
}
