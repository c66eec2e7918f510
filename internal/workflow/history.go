package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
)

// HistoryRecorder пишет журнал согласования. Записи только добавляются.
type HistoryRecorder struct {
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewHistoryRecorder(now func() time.Time) *HistoryRecorder {
	if now == nil {
		now = time.Now
	}
	return &HistoryRecorder{now: now}
}

// timestamp — строго возрастающее время в пределах процесса (точность БД — микросекунды).
func (r *HistoryRecorder) timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now().UTC().Truncate(time.Microsecond)
	if !ts.After(r.last) {
		ts = r.last.Add(time.Microsecond)
	}
	r.last = ts
	return ts
}

// Record добавляет запись в рамках транзакции tx, которая меняет само достижение.
func (r *HistoryRecorder) Record(ctx context.Context, tx Tx, achievementID uuid.UUID, action models.Action,
	from, to models.Status, actor models.Actor, note string) (*models.ApprovalHistoryEntry, error) {
	e := &models.ApprovalHistoryEntry{
		ID:            uuid.New(),
		AchievementID: achievementID,
		Action:        action,
		FromStatus:    from,
		ToStatus:      to,
		ActorID:       actor.ID,
		ActorName:     actor.Name,
		ActorRole:     actor.PrimaryRole(),
		Notes:         note,
		ActionDate:    r.timestamp(),
	}
	if err := tx.AppendHistory(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// HistoryFor — журнал по достижению в порядке возникновения.
func (r *HistoryRecorder) HistoryFor(ctx context.Context, store Store, achievementID uuid.UUID) ([]models.ApprovalHistoryEntry, error) {
	return store.HistoryFor(ctx, achievementID)
}
