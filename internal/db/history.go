package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/models"
)

func (t *txStore) AppendHistory(ctx context.Context, e *models.ApprovalHistoryEntry) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO approval_history (id, achievement_id, action, from_status, to_status, actor_id, actor_name, actor_role, notes, action_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq
	`, e.ID, e.AchievementID, string(e.Action), string(e.FromStatus), string(e.ToStatus),
		e.ActorID, e.ActorName, string(e.ActorRole), e.Notes, e.ActionDate).Scan(&e.Seq)
}

// HistoryFor — по времени действия, при равенстве — по порядку вставки.
func (s *Store) HistoryFor(ctx context.Context, achievementID uuid.UUID) ([]models.ApprovalHistoryEntry, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, achievement_id, action, from_status, to_status, actor_id, actor_name, actor_role, notes, action_date
		FROM approval_history
		WHERE achievement_id = $1
		ORDER BY action_date, seq
	`, achievementID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ApprovalHistoryEntry
	for rows.Next() {
		var (
			e                      models.ApprovalHistoryEntry
			action, from, to, role string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.AchievementID, &action, &from, &to,
			&e.ActorID, &e.ActorName, &role, &e.Notes, &e.ActionDate); err != nil {
			return nil, err
		}
		e.Action = models.Action(action)
		e.FromStatus, e.ToStatus = models.Status(from), models.Status(to)
		e.ActorRole = models.Role(role)
		out = append(out, e)
	}
	return out, rows.Err()
}
