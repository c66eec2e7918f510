package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level — масштаб соревнования, упорядочен от школьного к международному.
type Level string

const (
	LevelSekolah       Level = "SEKOLAH"
	LevelKecamatan     Level = "KECAMATAN"
	LevelKabupaten     Level = "KABUPATEN"
	LevelProvinsi      Level = "PROVINSI"
	LevelNasional      Level = "NASIONAL"
	LevelInternasional Level = "INTERNASIONAL"
)

// Levels в порядке возрастания.
var Levels = []Level{
	LevelSekolah, LevelKecamatan, LevelKabupaten, LevelProvinsi, LevelNasional, LevelInternasional,
}

// Tier возвращает порядковый номер уровня (1..6), 0 — неизвестный уровень.
func (l Level) Tier() int {
	for i, v := range Levels {
		if v == l {
			return i + 1
		}
	}
	return 0
}

func (l Level) Valid() bool { return l.Tier() > 0 }

// Rank — итоговое место участника.
type Rank string

const (
	RankJuara1       Rank = "JUARA_1"
	RankJuara2       Rank = "JUARA_2"
	RankJuara3       Rank = "JUARA_3"
	RankHarapan1     Rank = "HARAPAN_1"
	RankHarapan2     Rank = "HARAPAN_2"
	RankHarapan3     Rank = "HARAPAN_3"
	RankFinalis      Rank = "FINALIS"
	RankPeserta      Rank = "PESERTA"
	RankLulusSeleksi Rank = "LULUS_SELEKSI"
)

var Ranks = []Rank{
	RankJuara1, RankJuara2, RankJuara3,
	RankHarapan1, RankHarapan2, RankHarapan3,
	RankFinalis, RankPeserta, RankLulusSeleksi,
}

// TopRanks — призовые места, по которым ведётся отдельный счётчик в статистике.
var TopRanks = []Rank{RankJuara1, RankJuara2, RankJuara3}

func (r Rank) Valid() bool {
	for _, v := range Ranks {
		if v == r {
			return true
		}
	}
	return false
}

func (r Rank) IsTop() bool {
	for _, v := range TopRanks {
		if v == r {
			return true
		}
	}
	return false
}

// RankPtr — удобно для литералов в тестах и DTO.
func RankPtr(r Rank) *Rank { return &r }

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

var Statuses = []Status{StatusPending, StatusApproved, StatusRejected}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// CategoryType — укрупнённый тип категории из справочника.
type CategoryType string

const (
	CategoryAcademic   CategoryType = "ACADEMIC"
	CategorySports     CategoryType = "SPORTS"
	CategoryArts       CategoryType = "ARTS"
	CategoryLanguage   CategoryType = "LANGUAGE"
	CategoryReligious  CategoryType = "RELIGIOUS"
	CategoryTechnology CategoryType = "TECHNOLOGY"
	CategoryOther      CategoryType = "OTHER"
)

var CategoryTypes = []CategoryType{
	CategoryAcademic, CategorySports, CategoryArts, CategoryLanguage,
	CategoryReligious, CategoryTechnology, CategoryOther,
}

// Normalize сводит неизвестный тип к OTHER, чтобы счётчики статистики всегда сходились.
func (c CategoryType) Normalize() CategoryType {
	up := CategoryType(strings.ToUpper(strings.TrimSpace(string(c))))
	for _, v := range CategoryTypes {
		if v == up {
			return up
		}
	}
	return CategoryOther
}

type TeamMember struct {
	Name string `json:"name"`
	NISN string `json:"nisn,omitempty"`
	Role string `json:"role,omitempty"`
}

type Achievement struct {
	ID             uuid.UUID `db:"id" json:"id"`
	IdempotencyKey *string   `db:"idempotency_key" json:"idempotencyKey,omitempty"`

	StudentID    uuid.UUID `db:"student_id" json:"studentId"`
	StudentNISN  string    `db:"student_nisn" json:"studentNisn"`
	StudentName  string    `db:"student_name" json:"studentName"`
	StudentClass string    `db:"student_class" json:"studentClass"`

	CategoryID   uuid.UUID    `db:"category_id" json:"categoryId"`
	CategoryCode string       `db:"category_code" json:"categoryCode"`
	CategoryName string       `db:"category_name" json:"categoryName"`
	CategoryType CategoryType `db:"category_type" json:"categoryType"`

	ReportedBy     string `db:"reported_by" json:"reportedBy"`
	ReportedByName string `db:"reported_by_name" json:"reportedByName"`
	ReporterRole   Role   `db:"reporter_role" json:"reporterRole"`

	Title             string       `db:"title" json:"title"`
	Description       string       `db:"description" json:"description"`
	AchievementDate   time.Time    `db:"achievement_date" json:"achievementDate"`
	Location          string       `db:"location" json:"location,omitempty"`
	Organizer         string       `db:"organizer" json:"organizer,omitempty"`
	Level             Level        `db:"level" json:"level"`
	Rank              *Rank        `db:"rank" json:"rank"`
	IsTeamAchievement bool         `db:"is_team_achievement" json:"isTeamAchievement"`
	TeamName          string       `db:"team_name" json:"teamName,omitempty"`
	TeamMembers       []TeamMember `db:"team_members" json:"teamMembers,omitempty"`
	StudentRole       string       `db:"student_role" json:"studentRole,omitempty"`
	CertificateURL    string       `db:"certificate_url" json:"certificateUrl,omitempty"`
	EvidenceURLs      []string     `db:"evidence_urls" json:"evidenceUrls"`
	PhotoURLs         []string     `db:"photo_urls" json:"photoUrls"`

	BasePoints      int     `db:"base_points" json:"basePoints"`
	LevelMultiplier float64 `db:"level_multiplier" json:"levelMultiplier"`
	RankMultiplier  float64 `db:"rank_multiplier" json:"rankMultiplier"`
	Points          int     `db:"points" json:"points"`

	Status          Status     `db:"status" json:"status"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approvedAt"`
	ApprovedBy      *string    `db:"approved_by" json:"approvedBy"`
	ApprovedByName  *string    `db:"approved_by_name" json:"approvedByName"`
	ApprovalNotes   *string    `db:"approval_notes" json:"approvalNotes"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejectedAt"`
	RejectedBy      *string    `db:"rejected_by" json:"rejectedBy"`
	RejectedByName  *string    `db:"rejected_by_name" json:"rejectedByName"`
	RejectionReason *string    `db:"rejection_reason" json:"rejectionReason"`
	IsPublished     bool       `db:"is_published" json:"isPublished"`
	IsFeatured      bool       `db:"is_featured" json:"isFeatured"`
	FeaturedUntil   *time.Time `db:"featured_until" json:"featuredUntil"`

	AcademicYear string `db:"academic_year" json:"academicYear"`
	Semester     int    `db:"semester" json:"semester"`

	IsActive  bool       `db:"is_active" json:"isActive"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	CreatedBy string     `db:"created_by" json:"createdBy"`
	UpdatedBy string     `db:"updated_by" json:"updatedBy,omitempty"`
}

// Deleted — логически удалённая запись (не участвует в выборках и агрегатах).
func (a *Achievement) Deleted() bool { return a.DeletedAt != nil || !a.IsActive }

// StatisticsKey возвращает ключ строки статистики, к которой относится достижение.
func (a *Achievement) StatisticsKey() StatisticsKey {
	return StatisticsKey{StudentID: a.StudentID, AcademicYear: a.AcademicYear, Semester: a.Semester}
}

// FirstPhoto — первая фотография или пустая строка.
func (a *Achievement) FirstPhoto() string {
	if len(a.PhotoURLs) == 0 {
		return ""
	}
	return a.PhotoURLs[0]
}

// Clone — глубокая копия (слайсы и указатели не разделяются).
func (a *Achievement) Clone() *Achievement {
	c := *a
	c.IdempotencyKey = cloneStr(a.IdempotencyKey)
	if a.Rank != nil {
		r := *a.Rank
		c.Rank = &r
	}
	c.TeamMembers = append([]TeamMember(nil), a.TeamMembers...)
	c.EvidenceURLs = append([]string(nil), a.EvidenceURLs...)
	c.PhotoURLs = append([]string(nil), a.PhotoURLs...)
	c.ApprovedAt = cloneTime(a.ApprovedAt)
	c.ApprovedBy = cloneStr(a.ApprovedBy)
	c.ApprovedByName = cloneStr(a.ApprovedByName)
	c.ApprovalNotes = cloneStr(a.ApprovalNotes)
	c.RejectedAt = cloneTime(a.RejectedAt)
	c.RejectedBy = cloneStr(a.RejectedBy)
	c.RejectedByName = cloneStr(a.RejectedByName)
	c.RejectionReason = cloneStr(a.RejectionReason)
	c.FeaturedUntil = cloneTime(a.FeaturedUntil)
	c.DeletedAt = cloneTime(a.DeletedAt)
	return &c
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StrPtr / TimePtr — хелперы для опциональных полей.
func StrPtr(s string) *string        { return &s }
func TimePtr(t time.Time) *time.Time { return &t }
