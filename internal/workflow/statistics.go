package workflow

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
)

// StatisticsAggregator ведёт строку статистики на (ученик, учебный год, семестр).
// Каждое применение дельты — ровно один инкремент; за однократный вызов отвечает оркестратор.
type StatisticsAggregator struct {
	store Store
}

func NewStatisticsAggregator(store Store) *StatisticsAggregator {
	return &StatisticsAggregator{store: store}
}

// CreateDelta — вклад новой записи: total, её статус, баллы и корзины категории/уровня/места.
func CreateDelta(a *models.Achievement) models.StatisticsDelta {
	return contribution(a, 1)
}

// DeleteDelta — обратная к CreateDelta для текущего статуса записи.
func DeleteDelta(a *models.Achievement) models.StatisticsDelta {
	d := contribution(a, -1)
	d.AchievementDate = nil
	return d
}

// TransitionDelta переносит запись из корзины from в корзину to; остальное не трогает.
func TransitionDelta(a *models.Achievement, from, to models.Status) models.StatisticsDelta {
	d := models.StatisticsDelta{Key: a.StatisticsKey()}
	addStatus(&d, from, -1)
	addStatus(&d, to, 1)
	return d
}

func contribution(a *models.Achievement, sign int) models.StatisticsDelta {
	d := models.StatisticsDelta{
		Key:          a.StatisticsKey(),
		StudentName:  a.StudentName,
		StudentClass: a.StudentClass,
		Total:        sign,
		Points:       sign * a.Points,
		ByCategory:   map[models.CategoryType]int{a.CategoryType.Normalize(): sign},
		ByLevel:      map[models.Level]int{a.Level: sign},
	}
	if a.Rank != nil && a.Rank.IsTop() {
		d.ByRank = map[models.Rank]int{*a.Rank: sign}
	}
	addStatus(&d, a.Status, sign)
	date := a.AchievementDate
	d.AchievementDate = &date
	return d
}

func addStatus(d *models.StatisticsDelta, s models.Status, n int) {
	switch s {
	case models.StatusPending:
		d.Pending += n
	case models.StatusApproved:
		d.Approved += n
	case models.StatusRejected:
		d.Rejected += n
	}
}

func (s *StatisticsAggregator) ApplyCreate(ctx context.Context, tx Tx, a *models.Achievement) error {
	return tx.ApplyStatistics(ctx, CreateDelta(a))
}

func (s *StatisticsAggregator) ApplyTransition(ctx context.Context, tx Tx, a *models.Achievement, from, to models.Status) error {
	return tx.ApplyStatistics(ctx, TransitionDelta(a, from, to))
}

// ApplyDelete снимает вклад записи. Дата последнего достижения считается заново:
// максимум нельзя откатить вычитанием.
func (s *StatisticsAggregator) ApplyDelete(ctx context.Context, tx Tx, a *models.Achievement) error {
	if err := tx.ApplyStatistics(ctx, DeleteDelta(a)); err != nil {
		return err
	}
	return s.RefreshLastDate(ctx, tx, a.StatisticsKey())
}

// RefreshLastDate пересчитывает last_achievement_date по активным записям ключа.
// Строка блокируется до чтения записей, чтобы параллельная отправка не потерялась.
func (s *StatisticsAggregator) RefreshLastDate(ctx context.Context, tx Tx, key models.StatisticsKey) error {
	if err := tx.LockStatistics(ctx, key); err != nil {
		return err
	}
	rows, err := tx.ActiveAchievementsForKey(ctx, key)
	if err != nil {
		return err
	}
	return tx.SetLastAchievementDate(ctx, key, LastDate(rows))
}

// LastDate — самая поздняя дата среди неудалённых записей; nil, если таких нет.
func LastDate(rows []models.Achievement) *time.Time {
	var last *time.Time
	for i := range rows {
		a := &rows[i]
		if a.Deleted() {
			continue
		}
		if last == nil || a.AchievementDate.After(*last) {
			d := a.AchievementDate
			last = &d
		}
	}
	return last
}

// BuildRecord считает строку статистики заново по активным записям ключа.
func BuildRecord(key models.StatisticsKey, rows []models.Achievement) models.StatisticsRecord {
	rec := models.NewStatisticsRecord(key)
	for i := range rows {
		a := &rows[i]
		if a.Deleted() || a.StatisticsKey() != key {
			continue
		}
		rec.Apply(CreateDelta(a))
	}
	return rec
}

// Recompute перестраивает строку по данным достижений. true — счётчики разошлись и исправлены.
func (s *StatisticsAggregator) Recompute(ctx context.Context, key models.StatisticsKey) (bool, error) {
	drift := false
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.LockStatistics(ctx, key); err != nil {
			return err
		}
		rows, err := tx.ActiveAchievementsForKey(ctx, key)
		if err != nil {
			return err
		}
		fresh := BuildRecord(key, rows)
		cur, err := tx.StatisticsFor(ctx, key)
		if err != nil {
			return err
		}
		if cur != nil && SameCounters(*cur, fresh) {
			return nil
		}
		drift = true
		if cur != nil && fresh.StudentName == "" {
			fresh.StudentName, fresh.StudentClass = cur.StudentName, cur.StudentClass
		}
		return tx.ReplaceStatistics(ctx, fresh)
	})
	return drift, err
}

// SameCounters сравнивает счётчики и дату последнего достижения; нулевые корзины считаются отсутствующими.
func SameCounters(a, b models.StatisticsRecord) bool {
	if a.TotalAchievements != b.TotalAchievements || a.PendingCount != b.PendingCount ||
		a.ApprovedCount != b.ApprovedCount || a.RejectedCount != b.RejectedCount || a.TotalPoints != b.TotalPoints {
		return false
	}
	if !sameTime(a.LastAchievementDate, b.LastAchievementDate) {
		return false
	}
	return reflect.DeepEqual(nonZero(a.ByCategory), nonZero(b.ByCategory)) &&
		reflect.DeepEqual(nonZero(a.ByLevel), nonZero(b.ByLevel)) &&
		reflect.DeepEqual(nonZero(a.ByRank), nonZero(b.ByRank))
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func nonZero[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// SummaryFor — агрегат по строкам, попавшим под фильтр.
func (s *StatisticsAggregator) SummaryFor(ctx context.Context, f models.StatisticsFilter) (*models.StatisticsSummary, error) {
	recs, err := s.store.ListStatistics(ctx, f)
	if err != nil {
		return nil, err
	}
	return Summarize(recs), nil
}

// Summarize складывает строки статистики.
func Summarize(recs []models.StatisticsRecord) *models.StatisticsSummary {
	sum := &models.StatisticsSummary{
		ByStatus:   make(map[models.Status]int, len(models.Statuses)),
		ByCategory: make(map[models.CategoryType]int),
		ByLevel:    make(map[models.Level]int),
		ByRank:     make(map[models.Rank]int),
		Records:    recs,
	}
	for _, st := range models.Statuses {
		sum.ByStatus[st] = 0
	}
	students := make(map[uuid.UUID]struct{})
	for i := range recs {
		r := &recs[i]
		students[r.StudentID] = struct{}{}
		sum.Total += r.TotalAchievements
		sum.TotalPoints += r.TotalPoints
		for _, st := range models.Statuses {
			sum.ByStatus[st] += r.StatusCount(st)
		}
		for k, v := range r.ByCategory {
			sum.ByCategory[k] += v
		}
		for k, v := range r.ByLevel {
			sum.ByLevel[k] += v
		}
		for k, v := range r.ByRank {
			sum.ByRank[k] += v
		}
	}
	sum.Students = len(students)
	return sum
}
