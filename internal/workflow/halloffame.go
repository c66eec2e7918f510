package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
)

// DefaultHallOfFameLevels — уровни, с которых достижение попадает на доску почёта.
var DefaultHallOfFameLevels = []models.Level{models.LevelNasional, models.LevelInternasional}

type HallOfFamePromoter struct {
	levels map[models.Level]bool
	now    func() time.Time
}

func NewHallOfFamePromoter(levels []models.Level, now func() time.Time) *HallOfFamePromoter {
	if len(levels) == 0 {
		levels = DefaultHallOfFameLevels
	}
	if now == nil {
		now = time.Now
	}
	set := make(map[models.Level]bool, len(levels))
	for _, l := range levels {
		set[l] = true
	}
	return &HallOfFamePromoter{levels: set, now: now}
}

// Eligible: APPROVED, опубликовано, уровень из порогового списка.
func (p *HallOfFamePromoter) Eligible(a *models.Achievement) bool {
	return a.Status == models.StatusApproved && a.IsPublished && !a.Deleted() && p.levels[a.Level]
}

// Snapshot — денормализованная копия полей на момент включения.
func (p *HallOfFamePromoter) Snapshot(a *models.Achievement) *models.HallOfFameEntry {
	e := &models.HallOfFameEntry{
		ID:               uuid.New(),
		StudentID:        a.StudentID,
		StudentName:      a.StudentName,
		StudentClass:     a.StudentClass,
		AchievementID:    a.ID,
		AchievementTitle: a.Title,
		Level:            a.Level,
		AchievementDate:  a.AchievementDate,
		PhotoURL:         a.FirstPhoto(),
		AcademicYear:     a.AcademicYear,
		IsActive:         true,
		CreatedAt:        p.now().UTC(),
	}
	if a.Rank != nil {
		r := *a.Rank
		e.Rank = &r
	}
	return e
}

// MaybePromote создаёт запись, если достижение подходит и записи ещё нет.
// Повторный вызов для того же достижения ничего не создаёт (уникальность по achievement_id).
func (p *HallOfFamePromoter) MaybePromote(ctx context.Context, tx Tx, a *models.Achievement) (*models.HallOfFameEntry, error) {
	if !p.Eligible(a) {
		return nil, nil
	}
	e := p.Snapshot(a)
	inserted, err := tx.InsertHallOfFame(ctx, e)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return e, nil
}

// SortHallOfFame: уровень по убыванию, затем дата достижения по убыванию.
func SortHallOfFame(es []models.HallOfFameEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		ti, tj := es[i].Level.Tier(), es[j].Level.Tier()
		if ti != tj {
			return ti > tj
		}
		if !es[i].AchievementDate.Equal(es[j].AchievementDate) {
			return es[i].AchievementDate.After(es[j].AchievementDate)
		}
		return es[i].CreatedAt.After(es[j].CreatedAt)
	})
}
