package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/models"
)

// Store — хранилище. Все записи одной операции идут через WithTx:
// либо фиксируются вместе, либо не фиксируются вовсе.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// GetAchievement — чтение без блокировки; удалённые записи тоже возвращаются.
	GetAchievement(ctx context.Context, id uuid.UUID) (*models.Achievement, error)
	ListAchievements(ctx context.Context, f models.AchievementFilter, p models.Page) ([]models.Achievement, int, error)
	HistoryFor(ctx context.Context, achievementID uuid.UUID) ([]models.ApprovalHistoryEntry, error)
	ListHallOfFame(ctx context.Context, f models.HallOfFameFilter) ([]models.HallOfFameEntry, error)
	ListStatistics(ctx context.Context, f models.StatisticsFilter) ([]models.StatisticsRecord, error)
	StatisticsKeys(ctx context.Context) ([]models.StatisticsKey, error)
	ExpireFeatured(ctx context.Context, now time.Time) (int64, error)
}

// Tx — операции внутри одной транзакции.
type Tx interface {
	// AchievementByID блокирует строку до конца транзакции; nil, nil — записи нет.
	AchievementByID(ctx context.Context, id uuid.UUID) (*models.Achievement, error)
	AchievementByIdempotencyKey(ctx context.Context, key string) (*models.Achievement, error)
	// InsertAchievement возвращает ErrDuplicateKey, если ключ идемпотентности уже занят.
	InsertAchievement(ctx context.Context, a *models.Achievement) error
	// TransitionStatus — compare-and-swap по статусу: false, если статус уже не from.
	TransitionStatus(ctx context.Context, a *models.Achievement, from models.Status) (bool, error)
	// UpdateContent меняет описательные поля только у PENDING-записи.
	UpdateContent(ctx context.Context, a *models.Achievement) (bool, error)
	MarkDeleted(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)

	AppendHistory(ctx context.Context, e *models.ApprovalHistoryEntry) error

	// ApplyStatistics — upsert с атомарным инкрементом, без read-modify-write.
	ApplyStatistics(ctx context.Context, d models.StatisticsDelta) error
	// LockStatistics создаёт (если нет) и блокирует строку статистики.
	LockStatistics(ctx context.Context, key models.StatisticsKey) error
	ReplaceStatistics(ctx context.Context, rec models.StatisticsRecord) error
	ActiveAchievementsForKey(ctx context.Context, key models.StatisticsKey) ([]models.Achievement, error)
	StatisticsFor(ctx context.Context, key models.StatisticsKey) (*models.StatisticsRecord, error)
	// SetLastAchievementDate перезаписывает дату последнего достижения (nil — активных записей нет).
	SetLastAchievementDate(ctx context.Context, key models.StatisticsKey, date *time.Time) error

	// InsertHallOfFame — false, если запись для этого достижения уже есть.
	InsertHallOfFame(ctx context.Context, e *models.HallOfFameEntry) (bool, error)
}

// Directory — внешний справочник учеников и категорий.
// Если записи нет, возвращает ошибку, для которой errors.Is(err, ErrUnknownReference).
type Directory interface {
	Student(ctx context.Context, id uuid.UUID) (*models.Student, error)
	Category(ctx context.Context, id uuid.UUID) (*models.Category, error)
}
