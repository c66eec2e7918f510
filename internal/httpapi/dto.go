package httpapi

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// в ошибках — имена полей из json
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("academic_year", func(fl validator.FieldLevel) bool {
		_, err := models.ParseAcademicYear(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("level", func(fl validator.FieldLevel) bool {
		return models.Level(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("rank", func(fl validator.FieldLevel) bool {
		return models.Rank(fl.Field().String()).Valid()
	})
	return v
}

// validateStruct возвращает ошибку валидации с сообщениями по полям (nil — всё в порядке).
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return badInput("invalid input", nil)
	}
	fields := make(map[string]string, len(ve))
	for _, e := range ve {
		name := fieldPath(e.Namespace())
		if _, seen := fields[name]; seen {
			continue
		}
		fields[name] = tagMessage(e)
	}
	return badInput("invalid input", fields)
}

// fieldPath отрезает имя корневой структуры: submitRequest.teamMembers[0].name -> teamMembers[0].name
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "min":
		if e.Kind() == reflect.Slice {
			return "must contain at least " + e.Param() + " items"
		}
		return "must be at least " + e.Param() + " characters"
	case "max":
		if e.Kind() == reflect.Slice {
			return "must contain at most " + e.Param() + " items"
		}
		return "must be at most " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + e.Param()
	case "academic_year":
		return "must be in YYYY/YYYY format"
	case "level":
		return "unknown level"
	case "rank":
		return "unknown rank"
	default:
		return "is invalid"
	}
}

// parseDate принимает дату (2006-01-02) в часовом поясе школы либо RFC3339.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type teamMemberRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	NISN string `json:"nisn" validate:"omitempty,max=20"`
	Role string `json:"role" validate:"omitempty,max=50"`
}

func toTeamMembers(in []teamMemberRequest) []models.TeamMember {
	if in == nil {
		return nil
	}
	out := make([]models.TeamMember, 0, len(in))
	for _, m := range in {
		out = append(out, models.TeamMember{Name: strings.TrimSpace(m.Name), NISN: m.NISN, Role: m.Role})
	}
	return out
}

type submitRequest struct {
	IdempotencyKey    string              `json:"idempotencyKey" validate:"omitempty,max=100"`
	StudentID         string              `json:"studentId" validate:"required,uuid"`
	CategoryID        string              `json:"categoryId" validate:"required,uuid"`
	Title             string              `json:"title" validate:"required,min=10,max=200"`
	Description       string              `json:"description" validate:"required,min=20,max=2000"`
	AchievementDate   string              `json:"achievementDate" validate:"required"`
	Location          string              `json:"location" validate:"omitempty,max=200"`
	Organizer         string              `json:"organizer" validate:"omitempty,max=200"`
	Level             string              `json:"level" validate:"required,level"`
	Rank              *string             `json:"rank" validate:"omitempty,rank"`
	IsTeamAchievement bool                `json:"isTeamAchievement"`
	TeamName          string              `json:"teamName" validate:"omitempty,max=100"`
	TeamMembers       []teamMemberRequest `json:"teamMembers" validate:"omitempty,max=50,dive"`
	StudentRole       string              `json:"studentRole" validate:"omitempty,max=50"`
	CertificateURL    string              `json:"certificateUrl" validate:"omitempty,url"`
	EvidenceURLs      []string            `json:"evidenceUrls" validate:"omitempty,max=10,dive,url"`
	PhotoURLs         []string            `json:"photoUrls" validate:"omitempty,max=10,dive,url"`
	AcademicYear      string              `json:"academicYear" validate:"required,academic_year"`
	Semester          int                 `json:"semester" validate:"required,oneof=1 2"`
}

func (r *submitRequest) normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Level = strings.ToUpper(strings.TrimSpace(r.Level))
	if r.Rank != nil {
		up := strings.ToUpper(strings.TrimSpace(*r.Rank))
		if up == "" {
			r.Rank = nil
		} else {
			r.Rank = &up
		}
	}
	r.AcademicYear = strings.TrimSpace(r.AcademicYear)
}

func (r *submitRequest) toInput(loc *time.Location) (workflow.SubmitInput, error) {
	date, err := parseDate(r.AchievementDate, loc)
	if err != nil {
		return workflow.SubmitInput{}, badInput("invalid input", map[string]string{"achievementDate": "must be a date (YYYY-MM-DD or RFC3339)"})
	}
	in := workflow.SubmitInput{
		IdempotencyKey:    strings.TrimSpace(r.IdempotencyKey),
		StudentID:         uuid.MustParse(r.StudentID),
		CategoryID:        uuid.MustParse(r.CategoryID),
		Title:             r.Title,
		Description:       r.Description,
		AchievementDate:   date,
		Location:          r.Location,
		Organizer:         r.Organizer,
		Level:             models.Level(r.Level),
		IsTeamAchievement: r.IsTeamAchievement,
		TeamName:          r.TeamName,
		TeamMembers:       toTeamMembers(r.TeamMembers),
		StudentRole:       r.StudentRole,
		CertificateURL:    r.CertificateURL,
		EvidenceURLs:      r.EvidenceURLs,
		PhotoURLs:         r.PhotoURLs,
		AcademicYear:      r.AcademicYear,
		Semester:          r.Semester,
	}
	if r.Rank != nil {
		in.Rank = models.RankPtr(models.Rank(*r.Rank))
	}
	return in, nil
}

// updateRequest — только описательные поля; отсутствующее поле не меняется.
type updateRequest struct {
	Title             *string              `json:"title" validate:"omitempty,min=10,max=200"`
	Description       *string              `json:"description" validate:"omitempty,min=20,max=2000"`
	AchievementDate   *string              `json:"achievementDate"`
	Location          *string              `json:"location" validate:"omitempty,max=200"`
	Organizer         *string              `json:"organizer" validate:"omitempty,max=200"`
	IsTeamAchievement *bool                `json:"isTeamAchievement"`
	TeamName          *string              `json:"teamName" validate:"omitempty,max=100"`
	TeamMembers       *[]teamMemberRequest `json:"teamMembers" validate:"omitempty,max=50,dive"`
	StudentRole       *string              `json:"studentRole" validate:"omitempty,max=50"`
	CertificateURL    *string              `json:"certificateUrl" validate:"omitempty,url"`
	EvidenceURLs      *[]string            `json:"evidenceUrls" validate:"omitempty,max=10,dive,url"`
	PhotoURLs         *[]string            `json:"photoUrls" validate:"omitempty,max=10,dive,url"`
}

func (r *updateRequest) toPatch(loc *time.Location) (workflow.EditPatch, error) {
	p := workflow.EditPatch{
		Location:          r.Location,
		Organizer:         r.Organizer,
		IsTeamAchievement: r.IsTeamAchievement,
		TeamName:          r.TeamName,
		StudentRole:       r.StudentRole,
		CertificateURL:    r.CertificateURL,
		EvidenceURLs:      r.EvidenceURLs,
		PhotoURLs:         r.PhotoURLs,
	}
	if r.Title != nil {
		p.Title = models.StrPtr(strings.TrimSpace(*r.Title))
	}
	if r.Description != nil {
		p.Description = models.StrPtr(strings.TrimSpace(*r.Description))
	}
	if r.AchievementDate != nil {
		d, err := parseDate(*r.AchievementDate, loc)
		if err != nil {
			return workflow.EditPatch{}, badInput("invalid input", map[string]string{"achievementDate": "must be a date (YYYY-MM-DD or RFC3339)"})
		}
		p.AchievementDate = &d
	}
	if r.TeamMembers != nil {
		members := toTeamMembers(*r.TeamMembers)
		if members == nil {
			members = []models.TeamMember{}
		}
		p.TeamMembers = &members
	}
	return p, nil
}

type approveRequest struct {
	Notes         string     `json:"notes" validate:"max=500"`
	IsPublished   bool       `json:"isPublished"`
	IsFeatured    bool       `json:"isFeatured"`
	FeaturedUntil *time.Time `json:"featuredUntil"`
}

func (r *approveRequest) toInput() workflow.ApproveInput {
	return workflow.ApproveInput{
		Notes:         strings.TrimSpace(r.Notes),
		IsPublished:   r.IsPublished,
		IsFeatured:    r.IsFeatured,
		FeaturedUntil: r.FeaturedUntil,
	}
}

type rejectRequest struct {
	RejectionReason string `json:"rejectionReason" validate:"required,min=10,max=500"`
}
