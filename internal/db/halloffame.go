package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/models"
)

// InsertHallOfFame — ON CONFLICT по achievement_id: вторая попытка ничего не вставляет.
func (t *txStore) InsertHallOfFame(ctx context.Context, e *models.HallOfFameEntry) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO hall_of_fame (id, student_id, student_name, student_class, achievement_id, achievement_title,
		                          level, rank, achievement_date, photo_url, academic_year, display_order, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (achievement_id) DO NOTHING
	`, e.ID, e.StudentID, e.StudentName, e.StudentClass, e.AchievementID, e.AchievementTitle,
		string(e.Level), rankArg(e.Rank), e.AchievementDate, e.PhotoURL, e.AcademicYear, e.DisplayOrder, e.IsActive, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func levelNames() []string {
	out := make([]string, len(models.Levels))
	for i, l := range models.Levels {
		out[i] = string(l)
	}
	return out
}

func (s *Store) ListHallOfFame(ctx context.Context, f models.HallOfFameFilter) ([]models.HallOfFameEntry, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	args := []any{pq.Array(levelNames())}
	conds := []string{"is_active"}
	if f.AcademicYear != "" {
		args = append(args, f.AcademicYear)
		conds = append(conds, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, student_name, student_class, achievement_id, achievement_title,
		       level, rank, achievement_date, photo_url, academic_year, display_order, is_active, created_at
		FROM hall_of_fame
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY array_position($1::text[], level) DESC NULLS LAST, achievement_date DESC, created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.HallOfFameEntry
	for rows.Next() {
		var (
			e     models.HallOfFameEntry
			level string
			rank  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &e.StudentName, &e.StudentClass, &e.AchievementID, &e.AchievementTitle,
			&level, &rank, &e.AchievementDate, &e.PhotoURL, &e.AcademicYear, &e.DisplayOrder, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Level = models.Level(level)
		if rank.Valid {
			e.Rank = models.RankPtr(models.Rank(rank.String))
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
