package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

const achievementColumns = `
	id, idempotency_key,
	student_id, student_nisn, student_name, student_class,
	category_id, category_code, category_name, category_type,
	reported_by, reported_by_name, reporter_role,
	title, description, achievement_date, location, organizer, level, rank,
	is_team_achievement, team_name, team_members, student_role,
	certificate_url, evidence_urls, photo_urls,
	base_points, level_multiplier, rank_multiplier, points,
	status, approved_at, approved_by, approved_by_name, approval_notes,
	rejected_at, rejected_by, rejected_by_name, rejection_reason,
	is_published, is_featured, featured_until,
	academic_year, semester,
	is_active, deleted_at, created_at, updated_at, created_by, updated_by`

func scanAchievement(row scanner) (*models.Achievement, error) {
	var (
		a        models.Achievement
		team     []byte
		rank     sql.NullString
		catType  string
		level    string
		status   string
		repRole  string
		semester int16
	)
	err := row.Scan(
		&a.ID, &a.IdempotencyKey,
		&a.StudentID, &a.StudentNISN, &a.StudentName, &a.StudentClass,
		&a.CategoryID, &a.CategoryCode, &a.CategoryName, &catType,
		&a.ReportedBy, &a.ReportedByName, &repRole,
		&a.Title, &a.Description, &a.AchievementDate, &a.Location, &a.Organizer, &level, &rank,
		&a.IsTeamAchievement, &a.TeamName, &team, &a.StudentRole,
		&a.CertificateURL, pq.Array(&a.EvidenceURLs), pq.Array(&a.PhotoURLs),
		&a.BasePoints, &a.LevelMultiplier, &a.RankMultiplier, &a.Points,
		&status, &a.ApprovedAt, &a.ApprovedBy, &a.ApprovedByName, &a.ApprovalNotes,
		&a.RejectedAt, &a.RejectedBy, &a.RejectedByName, &a.RejectionReason,
		&a.IsPublished, &a.IsFeatured, &a.FeaturedUntil,
		&a.AcademicYear, &semester,
		&a.IsActive, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt, &a.CreatedBy, &a.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	a.CategoryType = models.CategoryType(catType)
	a.ReporterRole = models.Role(repRole)
	a.Level = models.Level(level)
	a.Status = models.Status(status)
	a.Semester = int(semester)
	if rank.Valid {
		a.Rank = models.RankPtr(models.Rank(rank.String))
	}
	if len(team) > 0 {
		if err := json.Unmarshal(team, &a.TeamMembers); err != nil {
			return nil, fmt.Errorf("team_members: %w", err)
		}
	}
	if len(a.TeamMembers) == 0 {
		a.TeamMembers = nil
	}
	return &a, nil
}

func rankArg(r *models.Rank) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

// teamArg — jsonb передаём строкой: так понимают и pgx, и lib/pq.
func teamArg(ms []models.TeamMember) (string, error) {
	if ms == nil {
		ms = []models.TeamMember{}
	}
	b, err := json.Marshal(ms)
	return string(b), err
}

func strings0(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func (s *Store) GetAchievement(ctx context.Context, id uuid.UUID) (*models.Achievement, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	a, err := scanAchievement(s.db.QueryRowContext(ctx, `SELECT `+achievementColumns+` FROM achievements WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// escapeLike экранирует % и _ для ILIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func achievementWhere(f models.AchievementFilter) (string, []any) {
	conds := []string{"is_active"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.StudentID != nil {
		add("student_id = $%d", *f.StudentID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.AcademicYear != "" {
		add("academic_year = $%d", f.AcademicYear)
	}
	if f.Semester != 0 {
		add("semester = $%d", f.Semester)
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR student_name ILIKE $%d)", n, n))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) ListAchievements(ctx context.Context, f models.AchievementFilter, p models.Page) ([]models.Achievement, int, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	where, args := achievementWhere(f)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM achievements`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "achievement_date DESC"
	if f.SortAsc {
		order = "achievement_date ASC"
	}
	args = append(args, p.Limit, p.Offset)
	q := fmt.Sprintf(`SELECT %s FROM achievements%s ORDER BY %s, created_at DESC, id LIMIT $%d OFFSET $%d`,
		achievementColumns, where, order, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Achievement{}
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

func (s *Store) ExpireFeatured(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `
		UPDATE achievements
		SET is_featured = false, updated_at = $1
		WHERE is_featured AND featured_until IS NOT NULL AND featured_until <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *txStore) AchievementByID(ctx context.Context, id uuid.UUID) (*models.Achievement, error) {
	a, err := scanAchievement(t.tx.QueryRowContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (t *txStore) AchievementByIdempotencyKey(ctx context.Context, key string) (*models.Achievement, error) {
	a, err := scanAchievement(t.tx.QueryRowContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (t *txStore) InsertAchievement(ctx context.Context, a *models.Achievement) error {
	team, err := teamArg(a.TeamMembers)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO achievements (`+achievementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,
		        $41,$42,$43,$44,$45,$46,$47,$48,$49,$50,$51)
	`,
		a.ID, a.IdempotencyKey,
		a.StudentID, a.StudentNISN, a.StudentName, a.StudentClass,
		a.CategoryID, a.CategoryCode, a.CategoryName, string(a.CategoryType),
		a.ReportedBy, a.ReportedByName, string(a.ReporterRole),
		a.Title, a.Description, a.AchievementDate, a.Location, a.Organizer, string(a.Level), rankArg(a.Rank),
		a.IsTeamAchievement, a.TeamName, team, a.StudentRole,
		a.CertificateURL, pq.Array(strings0(a.EvidenceURLs)), pq.Array(strings0(a.PhotoURLs)),
		a.BasePoints, a.LevelMultiplier, a.RankMultiplier, a.Points,
		string(a.Status), a.ApprovedAt, a.ApprovedBy, a.ApprovedByName, a.ApprovalNotes,
		a.RejectedAt, a.RejectedBy, a.RejectedByName, a.RejectionReason,
		a.IsPublished, a.IsFeatured, a.FeaturedUntil,
		a.AcademicYear, a.Semester,
		a.IsActive, a.DeletedAt, a.CreatedAt, a.UpdatedAt, a.CreatedBy, a.UpdatedBy,
	)
	if c, ok := uniqueViolation(err); ok && strings.Contains(c, "idempotency_key") {
		return workflow.ErrDuplicateKey
	}
	return err
}

// TransitionStatus — CAS: строка меняется, только если статус всё ещё from.
func (t *txStore) TransitionStatus(ctx context.Context, a *models.Achievement, from models.Status) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE achievements
		SET status = $1,
		    approved_at = $2, approved_by = $3, approved_by_name = $4, approval_notes = $5,
		    rejected_at = $6, rejected_by = $7, rejected_by_name = $8, rejection_reason = $9,
		    is_published = $10, is_featured = $11, featured_until = $12,
		    updated_at = $13, updated_by = $14
		WHERE id = $15 AND status = $16 AND is_active
	`,
		string(a.Status),
		a.ApprovedAt, a.ApprovedBy, a.ApprovedByName, a.ApprovalNotes,
		a.RejectedAt, a.RejectedBy, a.RejectedByName, a.RejectionReason,
		a.IsPublished, a.IsFeatured, a.FeaturedUntil,
		a.UpdatedAt, a.UpdatedBy,
		a.ID, string(from),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (t *txStore) UpdateContent(ctx context.Context, a *models.Achievement) (bool, error) {
	team, err := teamArg(a.TeamMembers)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE achievements
		SET title = $1, description = $2, achievement_date = $3, location = $4, organizer = $5,
		    is_team_achievement = $6, team_name = $7, team_members = $8, student_role = $9,
		    certificate_url = $10, evidence_urls = $11, photo_urls = $12,
		    updated_at = $13, updated_by = $14
		WHERE id = $15 AND status = 'PENDING' AND is_active
	`,
		a.Title, a.Description, a.AchievementDate, a.Location, a.Organizer,
		a.IsTeamAchievement, a.TeamName, team, a.StudentRole,
		a.CertificateURL, pq.Array(strings0(a.EvidenceURLs)), pq.Array(strings0(a.PhotoURLs)),
		a.UpdatedAt, a.UpdatedBy, a.ID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (t *txStore) MarkDeleted(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE achievements
		SET is_active = false, deleted_at = $1, updated_at = $1, updated_by = $2
		WHERE id = $3 AND is_active
	`, at, by, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (t *txStore) ActiveAchievementsForKey(ctx context.Context, key models.StatisticsKey) ([]models.Achievement, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+achievementColumns+`
		FROM achievements
		WHERE student_id = $1 AND academic_year = $2 AND semester = $3 AND is_active
	`, key.StudentID, key.AcademicYear, key.Semester)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
