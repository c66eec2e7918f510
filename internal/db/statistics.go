package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/models"
)

// Колонки-счётчики строятся из перечислений, поэтому в SQL попадают только известные имена.
var (
	categoryColumns = columnsFor(models.CategoryTypes)
	levelColumns    = columnsFor(models.Levels)
	rankColumns     = columnsFor(models.TopRanks)

	baseCounterColumns = []string{"total_achievements", "pending_count", "approved_count", "rejected_count", "total_points"}
	counterColumns     = concat(baseCounterColumns, categoryColumns, levelColumns, rankColumns)

	statisticsColumns = "student_id, academic_year, semester, student_name, student_class, " +
		strings.Join(counterColumns, ", ") + ", last_achievement_date, updated_at"

	applyStatisticsSQL   = buildApplySQL()
	replaceStatisticsSQL = buildReplaceSQL()
)

func columnsFor[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strings.ToLower(string(v)) + "_count"
	}
	return out
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}

// ApplyStatistics: upsert, каждый счётчик увеличивается на приращение атомарно.
func buildApplySQL() string {
	n := len(counterColumns)
	sets := make([]string, 0, n+4)
	sets = append(sets,
		"student_name = COALESCE(NULLIF(EXCLUDED.student_name, ''), achievement_statistics.student_name)",
		"student_class = COALESCE(NULLIF(EXCLUDED.student_class, ''), achievement_statistics.student_class)",
	)
	for _, c := range counterColumns {
		sets = append(sets, fmt.Sprintf("%s = achievement_statistics.%s + EXCLUDED.%s", c, c, c))
	}
	sets = append(sets,
		"last_achievement_date = GREATEST(achievement_statistics.last_achievement_date, EXCLUDED.last_achievement_date)",
		"updated_at = now()",
	)
	return fmt.Sprintf(`
		INSERT INTO achievement_statistics (student_id, academic_year, semester, student_name, student_class, %s, last_achievement_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, %s, $%d, now())
		ON CONFLICT (student_id, academic_year, semester) DO UPDATE SET
		%s`,
		strings.Join(counterColumns, ", "), placeholders(6, n), 6+n, strings.Join(sets, ",\n\t\t"))
}

func buildReplaceSQL() string {
	n := len(counterColumns)
	sets := []string{"student_name = EXCLUDED.student_name", "student_class = EXCLUDED.student_class"}
	for _, c := range counterColumns {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "last_achievement_date = EXCLUDED.last_achievement_date", "updated_at = now()")
	return fmt.Sprintf(`
		INSERT INTO achievement_statistics (student_id, academic_year, semester, student_name, student_class, %s, last_achievement_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, %s, $%d, now())
		ON CONFLICT (student_id, academic_year, semester) DO UPDATE SET
		%s`,
		strings.Join(counterColumns, ", "), placeholders(6, n), 6+n, strings.Join(sets, ",\n\t\t"))
}

func deltaValues(d models.StatisticsDelta) []any {
	vals := []any{d.Total, d.Pending, d.Approved, d.Rejected, d.Points}
	for _, c := range models.CategoryTypes {
		vals = append(vals, d.ByCategory[c])
	}
	for _, l := range models.Levels {
		vals = append(vals, d.ByLevel[l])
	}
	for _, r := range models.TopRanks {
		vals = append(vals, d.ByRank[r])
	}
	return vals
}

func recordValues(r models.StatisticsRecord) []any {
	vals := []any{r.TotalAchievements, r.PendingCount, r.ApprovedCount, r.RejectedCount, r.TotalPoints}
	for _, c := range models.CategoryTypes {
		vals = append(vals, r.ByCategory[c])
	}
	for _, l := range models.Levels {
		vals = append(vals, r.ByLevel[l])
	}
	for _, rk := range models.TopRanks {
		vals = append(vals, r.ByRank[rk])
	}
	return vals
}

func scanStatistics(row scanner) (*models.StatisticsRecord, error) {
	var (
		key      models.StatisticsKey
		semester int16
		name     string
		class    string
	)
	counters := make([]int, len(counterColumns))
	dest := []any{&key.StudentID, &key.AcademicYear, &semester, &name, &class}
	for i := range counters {
		dest = append(dest, &counters[i])
	}
	rec := models.StatisticsRecord{}
	dest = append(dest, &rec.LastAchievementDate, &rec.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	key.Semester = int(semester)
	fresh := models.NewStatisticsRecord(key)
	fresh.StudentName, fresh.StudentClass = name, class
	fresh.LastAchievementDate, fresh.UpdatedAt = rec.LastAchievementDate, rec.UpdatedAt

	fresh.TotalAchievements, fresh.PendingCount, fresh.ApprovedCount, fresh.RejectedCount, fresh.TotalPoints =
		counters[0], counters[1], counters[2], counters[3], counters[4]
	i := len(baseCounterColumns)
	for _, c := range models.CategoryTypes {
		if counters[i] != 0 {
			fresh.ByCategory[c] = counters[i]
		}
		i++
	}
	for _, l := range models.Levels {
		if counters[i] != 0 {
			fresh.ByLevel[l] = counters[i]
		}
		i++
	}
	for _, r := range models.TopRanks {
		if counters[i] != 0 {
			fresh.ByRank[r] = counters[i]
		}
		i++
	}
	return &fresh, nil
}

func (t *txStore) ApplyStatistics(ctx context.Context, d models.StatisticsDelta) error {
	args := []any{d.Key.StudentID, d.Key.AcademicYear, d.Key.Semester, d.StudentName, d.StudentClass}
	args = append(args, deltaValues(d)...)
	args = append(args, d.AchievementDate)
	_, err := t.tx.ExecContext(ctx, applyStatisticsSQL, args...)
	return err
}

// LockStatistics создаёт пустую строку при необходимости и берёт на неё блокировку.
func (t *txStore) LockStatistics(ctx context.Context, key models.StatisticsKey) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO achievement_statistics (student_id, academic_year, semester)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, academic_year, semester) DO NOTHING
	`, key.StudentID, key.AcademicYear, key.Semester); err != nil {
		return err
	}
	var one int
	return t.tx.QueryRowContext(ctx, `
		SELECT 1 FROM achievement_statistics
		WHERE student_id = $1 AND academic_year = $2 AND semester = $3
		FOR UPDATE
	`, key.StudentID, key.AcademicYear, key.Semester).Scan(&one)
}

func (t *txStore) ReplaceStatistics(ctx context.Context, rec models.StatisticsRecord) error {
	args := []any{rec.StudentID, rec.AcademicYear, rec.Semester, rec.StudentName, rec.StudentClass}
	args = append(args, recordValues(rec)...)
	args = append(args, rec.LastAchievementDate)
	_, err := t.tx.ExecContext(ctx, replaceStatisticsSQL, args...)
	return err
}

func (t *txStore) SetLastAchievementDate(ctx context.Context, key models.StatisticsKey, date *time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE achievement_statistics
		SET last_achievement_date = $4, updated_at = now()
		WHERE student_id = $1 AND academic_year = $2 AND semester = $3
	`, key.StudentID, key.AcademicYear, key.Semester, date)
	return err
}

func statisticsFor(ctx context.Context, q queryer, key models.StatisticsKey) (*models.StatisticsRecord, error) {
	rec, err := scanStatistics(q.QueryRowContext(ctx, `
		SELECT `+statisticsColumns+`
		FROM achievement_statistics
		WHERE student_id = $1 AND academic_year = $2 AND semester = $3
	`, key.StudentID, key.AcademicYear, key.Semester))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (t *txStore) StatisticsFor(ctx context.Context, key models.StatisticsKey) (*models.StatisticsRecord, error) {
	return statisticsFor(ctx, t.tx, key)
}

func (s *Store) ListStatistics(ctx context.Context, f models.StatisticsFilter) ([]models.StatisticsRecord, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	conds := []string{"true"}
	var args []any
	if f.StudentID != nil {
		args = append(args, *f.StudentID)
		conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if f.AcademicYear != "" {
		args = append(args, f.AcademicYear)
		conds = append(conds, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if f.Semester != 0 {
		args = append(args, f.Semester)
		conds = append(conds, fmt.Sprintf("semester = $%d", len(args)))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+statisticsColumns+`
		FROM achievement_statistics
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY academic_year DESC, semester, student_name, student_id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.StatisticsRecord
	for rows.Next() {
		rec, err := scanStatistics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// StatisticsKeys — все ключи: и по строкам статистики, и по активным записям.
func (s *Store) StatisticsKeys(ctx context.Context) ([]models.StatisticsKey, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, academic_year, semester FROM achievement_statistics
		UNION
		SELECT student_id, academic_year, semester FROM achievements WHERE is_active
		ORDER BY 1, 2, 3
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.StatisticsKey
	for rows.Next() {
		var (
			k   models.StatisticsKey
			sem int16
		)
		if err := rows.Scan(&k.StudentID, &k.AcademicYear, &sem); err != nil {
			return nil, err
		}
		k.Semester = int(sem)
		out = append(out, k)
	}
	return out, rows.Err()
}
