// Package memstore — хранилище в памяти для тестов и локального запуска (STORAGE=memory).
// Транзакция работает с копией состояния и подменяет его целиком при успехе.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

type Store struct {
	mu   sync.Mutex
	st   *state
	fail func(op string) error
}

var _ workflow.Store = (*Store)(nil)

type state struct {
	achievements map[uuid.UUID]*models.Achievement
	byKey        map[string]uuid.UUID
	history      []models.ApprovalHistoryEntry
	stats        map[models.StatisticsKey]*models.StatisticsRecord
	hof          map[uuid.UUID]models.HallOfFameEntry
	seq          int64
}

func New() *Store {
	return &Store{st: &state{
		achievements: map[uuid.UUID]*models.Achievement{},
		byKey:        map[string]uuid.UUID{},
		stats:        map[models.StatisticsKey]*models.StatisticsRecord{},
		hof:          map[uuid.UUID]models.HallOfFameEntry{},
	}}
}

// SetFailHook — для тестов: hook вызывается перед каждой операцией транзакции,
// ненулевая ошибка прерывает транзакцию.
func (s *Store) SetFailHook(fn func(op string) error) {
	s.mu.Lock()
	s.fail = fn
	s.mu.Unlock()
}

func (st *state) clone() *state {
	c := &state{
		achievements: make(map[uuid.UUID]*models.Achievement, len(st.achievements)),
		byKey:        make(map[string]uuid.UUID, len(st.byKey)),
		history:      append([]models.ApprovalHistoryEntry(nil), st.history...),
		stats:        make(map[models.StatisticsKey]*models.StatisticsRecord, len(st.stats)),
		hof:          make(map[uuid.UUID]models.HallOfFameEntry, len(st.hof)),
		seq:          st.seq,
	}
	for k, v := range st.achievements {
		c.achievements[k] = v.Clone()
	}
	for k, v := range st.byKey {
		c.byKey[k] = v
	}
	for k, v := range st.stats {
		c.stats[k] = cloneRecord(v)
	}
	for k, v := range st.hof {
		c.hof[k] = v
	}
	return c
}

func cloneRecord(r *models.StatisticsRecord) *models.StatisticsRecord {
	c := *r
	c.ByCategory = make(map[models.CategoryType]int, len(r.ByCategory))
	for k, v := range r.ByCategory {
		c.ByCategory[k] = v
	}
	c.ByLevel = make(map[models.Level]int, len(r.ByLevel))
	for k, v := range r.ByLevel {
		c.ByLevel[k] = v
	}
	c.ByRank = make(map[models.Rank]int, len(r.ByRank))
	for k, v := range r.ByRank {
		c.ByRank[k] = v
	}
	if r.LastAchievementDate != nil {
		t := *r.LastAchievementDate
		c.LastAchievementDate = &t
	}
	return &c
}

func (s *Store) WithTx(ctx context.Context, fn func(tx workflow.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{st: s.st.clone(), fail: s.fail}
	if err := fn(t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

func (s *Store) GetAchievement(_ context.Context, id uuid.UUID) (*models.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.achievements[id]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (s *Store) ListAchievements(_ context.Context, f models.AchievementFilter, p models.Page) ([]models.Achievement, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(f.Search)
	var rows []models.Achievement
	for _, a := range s.st.achievements {
		if a.Deleted() {
			continue
		}
		if f.StudentID != nil && a.StudentID != *f.StudentID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.AcademicYear != "" && a.AcademicYear != f.AcademicYear {
			continue
		}
		if f.Semester != 0 && a.Semester != f.Semester {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Title), search) &&
			!strings.Contains(strings.ToLower(a.StudentName), search) {
			continue
		}
		rows = append(rows, *a.Clone())
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].AchievementDate.Equal(rows[j].AchievementDate) {
			if f.SortAsc {
				return rows[i].AchievementDate.Before(rows[j].AchievementDate)
			}
			return rows[i].AchievementDate.After(rows[j].AchievementDate)
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
	total := len(rows)
	if p.Offset >= total {
		return []models.Achievement{}, total, nil
	}
	end := total
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return rows[p.Offset:end], total, nil
}

func (s *Store) HistoryFor(_ context.Context, id uuid.UUID) ([]models.ApprovalHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ApprovalHistoryEntry
	for _, e := range s.st.history {
		if e.AchievementID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListHallOfFame(_ context.Context, f models.HallOfFameFilter) ([]models.HallOfFameEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HallOfFameEntry, 0, len(s.st.hof))
	for _, e := range s.st.hof {
		if !e.IsActive {
			continue
		}
		if f.AcademicYear != "" && e.AcademicYear != f.AcademicYear {
			continue
		}
		out = append(out, e)
	}
	workflow.SortHallOfFame(out)
	return out, nil
}

func (s *Store) ListStatistics(_ context.Context, f models.StatisticsFilter) ([]models.StatisticsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StatisticsRecord
	for k, r := range s.st.stats {
		if f.Match(k) {
			out = append(out, *cloneRecord(r))
		}
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(rs []models.StatisticsRecord) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i].StatisticsKey, rs[j].StatisticsKey
		if a.AcademicYear != b.AcademicYear {
			return a.AcademicYear > b.AcademicYear
		}
		if a.Semester != b.Semester {
			return a.Semester < b.Semester
		}
		if rs[i].StudentName != rs[j].StudentName {
			return rs[i].StudentName < rs[j].StudentName
		}
		return a.StudentID.String() < b.StudentID.String()
	})
}

func (s *Store) StatisticsKeys(_ context.Context) ([]models.StatisticsKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[models.StatisticsKey]struct{}{}
	for k := range s.st.stats {
		seen[k] = struct{}{}
	}
	for _, a := range s.st.achievements {
		if !a.Deleted() {
			seen[a.StatisticsKey()] = struct{}{}
		}
	}
	out := make([]models.StatisticsKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID.String() < out[j].StudentID.String()
		}
		if out[i].AcademicYear != out[j].AcademicYear {
			return out[i].AcademicYear < out[j].AcademicYear
		}
		return out[i].Semester < out[j].Semester
	})
	return out, nil
}

func (s *Store) ExpireFeatured(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.st.achievements {
		if a.IsFeatured && a.FeaturedUntil != nil && !a.FeaturedUntil.After(now) {
			a.IsFeatured = false
			a.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// UpsertStatistics — для тестов: записать строку статистики как есть (имитация расхождения).
func (s *Store) UpsertStatistics(rec models.StatisticsRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.stats[rec.StatisticsKey] = cloneRecord(&rec)
}

type tx struct {
	st   *state
	fail func(op string) error
}

func (t *tx) check(op string) error {
	if t.fail == nil {
		return nil
	}
	return t.fail(op)
}

func (t *tx) AchievementByID(_ context.Context, id uuid.UUID) (*models.Achievement, error) {
	if err := t.check("AchievementByID"); err != nil {
		return nil, err
	}
	a, ok := t.st.achievements[id]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (t *tx) AchievementByIdempotencyKey(_ context.Context, key string) (*models.Achievement, error) {
	if err := t.check("AchievementByIdempotencyKey"); err != nil {
		return nil, err
	}
	id, ok := t.st.byKey[key]
	if !ok {
		return nil, nil
	}
	return t.st.achievements[id].Clone(), nil
}

func (t *tx) InsertAchievement(_ context.Context, a *models.Achievement) error {
	if err := t.check("InsertAchievement"); err != nil {
		return err
	}
	if a.IdempotencyKey != nil {
		if _, dup := t.st.byKey[*a.IdempotencyKey]; dup {
			return workflow.ErrDuplicateKey
		}
		t.st.byKey[*a.IdempotencyKey] = a.ID
	}
	t.st.achievements[a.ID] = a.Clone()
	return nil
}

func (t *tx) TransitionStatus(_ context.Context, a *models.Achievement, from models.Status) (bool, error) {
	if err := t.check("TransitionStatus"); err != nil {
		return false, err
	}
	cur, ok := t.st.achievements[a.ID]
	if !ok || cur.Deleted() || cur.Status != from {
		return false, nil
	}
	t.st.achievements[a.ID] = a.Clone()
	return true, nil
}

func (t *tx) UpdateContent(_ context.Context, a *models.Achievement) (bool, error) {
	if err := t.check("UpdateContent"); err != nil {
		return false, err
	}
	cur, ok := t.st.achievements[a.ID]
	if !ok || cur.Deleted() || cur.Status != models.StatusPending {
		return false, nil
	}
	next := cur.Clone()
	next.Title, next.Description = a.Title, a.Description
	next.AchievementDate = a.AchievementDate
	next.Location, next.Organizer = a.Location, a.Organizer
	next.IsTeamAchievement, next.TeamName = a.IsTeamAchievement, a.TeamName
	next.TeamMembers = append([]models.TeamMember(nil), a.TeamMembers...)
	next.StudentRole, next.CertificateURL = a.StudentRole, a.CertificateURL
	next.EvidenceURLs = append([]string(nil), a.EvidenceURLs...)
	next.PhotoURLs = append([]string(nil), a.PhotoURLs...)
	next.UpdatedAt, next.UpdatedBy = a.UpdatedAt, a.UpdatedBy
	t.st.achievements[a.ID] = next
	return true, nil
}

func (t *tx) MarkDeleted(_ context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	if err := t.check("MarkDeleted"); err != nil {
		return false, err
	}
	cur, ok := t.st.achievements[id]
	if !ok || cur.Deleted() {
		return false, nil
	}
	cur.IsActive = false
	cur.DeletedAt = &at
	cur.UpdatedAt, cur.UpdatedBy = at, by
	return true, nil
}

func (t *tx) AppendHistory(_ context.Context, e *models.ApprovalHistoryEntry) error {
	if err := t.check("AppendHistory"); err != nil {
		return err
	}
	t.st.seq++
	e.Seq = t.st.seq
	t.st.history = append(t.st.history, *e)
	return nil
}

func (t *tx) record(key models.StatisticsKey) *models.StatisticsRecord {
	r, ok := t.st.stats[key]
	if !ok {
		fresh := models.NewStatisticsRecord(key)
		r = &fresh
		t.st.stats[key] = r
	}
	return r
}

func (t *tx) ApplyStatistics(_ context.Context, d models.StatisticsDelta) error {
	if err := t.check("ApplyStatistics"); err != nil {
		return err
	}
	r := t.record(d.Key)
	r.Apply(d)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *tx) LockStatistics(_ context.Context, key models.StatisticsKey) error {
	if err := t.check("LockStatistics"); err != nil {
		return err
	}
	t.record(key)
	return nil
}

func (t *tx) ReplaceStatistics(_ context.Context, rec models.StatisticsRecord) error {
	if err := t.check("ReplaceStatistics"); err != nil {
		return err
	}
	c := cloneRecord(&rec)
	c.UpdatedAt = time.Now().UTC()
	t.st.stats[rec.StatisticsKey] = c
	return nil
}

func (t *tx) ActiveAchievementsForKey(_ context.Context, key models.StatisticsKey) ([]models.Achievement, error) {
	if err := t.check("ActiveAchievementsForKey"); err != nil {
		return nil, err
	}
	var out []models.Achievement
	for _, a := range t.st.achievements {
		if !a.Deleted() && a.StatisticsKey() == key {
			out = append(out, *a.Clone())
		}
	}
	return out, nil
}

func (t *tx) StatisticsFor(_ context.Context, key models.StatisticsKey) (*models.StatisticsRecord, error) {
	if err := t.check("StatisticsFor"); err != nil {
		return nil, err
	}
	r, ok := t.st.stats[key]
	if !ok {
		return nil, nil
	}
	return cloneRecord(r), nil
}

func (t *tx) SetLastAchievementDate(_ context.Context, key models.StatisticsKey, date *time.Time) error {
	if err := t.check("SetLastAchievementDate"); err != nil {
		return err
	}
	r := t.record(key)
	if date == nil {
		r.LastAchievementDate = nil
	} else {
		d := *date
		r.LastAchievementDate = &d
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *tx) InsertHallOfFame(_ context.Context, e *models.HallOfFameEntry) (bool, error) {
	if err := t.check("InsertHallOfFame"); err != nil {
		return false, err
	}
	if _, dup := t.st.hof[e.AchievementID]; dup {
		return false, nil
	}
	t.st.hof[e.AchievementID] = *e
	return true, nil
}
