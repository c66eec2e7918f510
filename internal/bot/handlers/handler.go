package handlers

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/bot/menu"
	"github.com/Spok95/achievement-service/internal/metrics"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/tg"
	"github.com/Spok95/achievement-service/internal/workflow"
)

// Workflow — операции сервиса, которые нужны боту.
type Workflow interface {
	Query(ctx context.Context, f models.AchievementFilter, p models.Page) (*workflow.QueryResult, error)
	QueryAll(ctx context.Context, f models.AchievementFilter, max int) ([]models.Achievement, error)
	Approve(ctx context.Context, id uuid.UUID, in workflow.ApproveInput, actor models.Actor) (*models.Achievement, error)
	Reject(ctx context.Context, id uuid.UUID, in workflow.RejectInput, actor models.Actor) (*models.Achievement, error)
	HallOfFame(ctx context.Context, f models.HallOfFameFilter) ([]models.HallOfFameEntry, error)
	StatsSummary(ctx context.Context, f models.StatisticsFilter) (*models.StatisticsSummary, error)
}

type Options struct {
	// Approvers — telegram user id -> пользователь сервиса.
	Approvers map[int64]models.Actor
	Location  *time.Location
	Now       func() time.Time
	Logger    *zap.Logger
}

type Handler struct {
	bot       tg.Sender
	svc       Workflow
	approvers map[int64]models.Actor
	loc       *time.Location
	now       func() time.Time
	log       *zap.Logger

	mu      sync.Mutex
	rejects map[int64]*rejectState
}

func New(bot tg.Sender, svc Workflow, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		bot:       bot,
		svc:       svc,
		approvers: opts.Approvers,
		loc:       opts.Location,
		now:       opts.Now,
		log:       opts.Logger,
		rejects:   make(map[int64]*rejectState),
	}
}

// Approver — пользователь сервиса по telegram id; false — доступа нет.
func (h *Handler) Approver(telegramID int64) (models.Actor, bool) {
	a, ok := h.approvers[telegramID]
	return a, ok
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := tg.Send(h.bot, tgbotapi.NewMessage(chatID, text)); err != nil {
		metrics.HandlerErrors.Inc()
		h.log.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := tg.Request(h.bot, tgbotapi.NewCallback(cb.ID, text)); err != nil {
		metrics.HandlerErrors.Inc()
	}
}

// Start — приветствие и меню.
func (h *Handler) Start(chatID int64, actor models.Actor) {
	msg := tgbotapi.NewMessage(chatID, "Selamat datang, "+actor.Name+"! Choose an action:")
	msg.ReplyMarkup = menu.ApproverMenu()
	if _, err := tg.Send(h.bot, msg); err != nil {
		metrics.HandlerErrors.Inc()
	}
}

// Deny — ответ незнакомому пользователю.
func (h *Handler) Deny(chatID int64) {
	rm := tgbotapi.NewMessage(chatID, "🚫 Access denied. Ask the administrator to add you as an approver.")
	rm.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := tg.Send(h.bot, rm); err != nil {
		metrics.HandlerErrors.Inc()
	}
}

func (h *Handler) currentYear() string {
	return models.CurrentAcademicYear(h.now().In(h.loc))
}
