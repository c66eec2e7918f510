package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/bot/handlers"
	"github.com/Spok95/achievement-service/internal/bot/menu"
	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/metrics"
	"github.com/Spok95/achievement-service/internal/observability"
)

// Dispatcher разбирает апдейты телеграма и передаёт их обработчикам.
type Dispatcher struct {
	h       *handlers.Handler
	limiter *ChatLimiter
	log     *zap.Logger
}

func NewDispatcher(h *handlers.Handler, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{h: h, limiter: NewChatLimiter(), log: log}
}

// HandleUpdate обрабатывает один апдейт; апдейты одного чата идут строго по очереди.
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	metrics.BotUpdates.Inc()
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerErrors.Inc()
			observability.CaptureErr(fmt.Errorf("panic in bot update %d: %v", upd.UpdateID, r))
			d.log.Error("panic in bot update", zap.Int("update_id", upd.UpdateID), zap.Any("panic", r))
		}
	}()

	switch {
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		cb := upd.CallbackQuery
		chatID := cb.Message.Chat.ID
		d.log.Debug("callback", zap.Int64("chat_id", chatID), zap.String("data", cb.Data))
		if !handlers.IsCallback(cb.Data) {
			return
		}
		d.limiter.Do(chatID, func() {
			d.h.HandleCallback(ctxutil.WithChatID(ctx, chatID), cb)
		})
	case upd.Message != nil:
		chatID := upd.Message.Chat.ID
		d.limiter.Do(chatID, func() {
			d.handleMessage(ctxutil.WithChatID(ctx, chatID), upd.Message)
		})
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.From == nil {
		return
	}
	actor, ok := d.h.Approver(msg.From.ID)
	if !ok {
		d.h.Deny(chatID)
		return
	}
	ctx = ctxutil.WithActorID(ctx, actor.ID)

	if d.h.AwaitingReason(chatID) {
		d.h.HandleRejectText(ctx, msg, actor)
		return
	}

	switch msg.Text {
	case "/start":
		d.h.Start(chatID, actor)
	case "/pending", menu.BtnPending:
		d.h.ShowPending(ctx, chatID)
	case "/halloffame", menu.BtnHallOfFame:
		d.h.ShowHallOfFame(ctx, chatID)
	case "/export", menu.BtnExport:
		d.h.Export(ctx, chatID)
	default:
		d.h.Start(chatID, actor)
	}
}
