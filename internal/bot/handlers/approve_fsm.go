package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/bot/shared/fsmutil"
	"github.com/Spok95/achievement-service/internal/metrics"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/tg"
	"github.com/Spok95/achievement-service/internal/workflow"
)

const (
	cbPublish      = "ach_pub:"
	cbApprove      = "ach_ok:"
	cbReject       = "ach_rej:"
	cbRejectCancel = "ach_rej_cancel"

	pendingPageSize = 10
)

// rejectState — ждём от согласующего текст причины отказа.
type rejectState struct {
	id        uuid.UUID
	title     string
	messageID int
}

// IsCallback — относится ли callback к согласованию.
func IsCallback(data string) bool {
	return strings.HasPrefix(data, cbPublish) || strings.HasPrefix(data, cbApprove) ||
		strings.HasPrefix(data, cbReject) || data == cbRejectCancel
}

func pendingText(a *models.Achievement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 %s\n", a.Title)
	fmt.Fprintf(&b, "👤 Student: %s (%s)\n", a.StudentName, a.StudentClass)
	fmt.Fprintf(&b, "🏷 Category: %s\n", a.CategoryName)
	level := string(a.Level)
	if a.Rank != nil {
		level += ", " + string(*a.Rank)
	}
	fmt.Fprintf(&b, "🌍 Level: %s\n", level)
	if a.IsTeamAchievement {
		fmt.Fprintf(&b, "👥 Team: %s (%d members)\n", a.TeamName, len(a.TeamMembers))
	}
	fmt.Fprintf(&b, "💯 Points: %d\n", a.Points)
	fmt.Fprintf(&b, "📅 %s · %s S%d\n", a.AchievementDate.Format("2006-01-02"), a.AcademicYear, a.Semester)
	fmt.Fprintf(&b, "✍️ Reported by: %s", a.ReportedByName)
	return b.String()
}

func pendingMarkup(id uuid.UUID) tgbotapi.InlineKeyboardMarkup {
	s := id.String()
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve & publish", cbPublish+s),
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", cbApprove+s),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", cbReject+s),
		),
	)
}

// ShowPending отправляет заявки в статусе PENDING, каждую отдельным сообщением с кнопками.
func (h *Handler) ShowPending(ctx context.Context, chatID int64) {
	res, err := h.svc.Query(ctx, models.AchievementFilter{Status: models.StatusPending, SortAsc: true},
		models.Page{Limit: pendingPageSize})
	if err != nil {
		h.log.Error("list pending achievements", zap.Error(err))
		h.reply(chatID, "⚠️ Could not load pending achievements.")
		return
	}
	if len(res.Items) == 0 {
		h.reply(chatID, "No achievements are waiting for approval.")
		return
	}
	for i := range res.Items {
		a := &res.Items[i]
		msg := tgbotapi.NewMessage(chatID, pendingText(a))
		msg.ReplyMarkup = pendingMarkup(a.ID)
		if _, err := tg.Send(h.bot, msg); err != nil {
			metrics.HandlerErrors.Inc()
		}
	}
	if res.Total > len(res.Items) {
		h.reply(chatID, fmt.Sprintf("Showing %d of %d. Process these to see more.", len(res.Items), res.Total))
	}
}

// HandleCallback — кнопки согласования.
func (h *Handler) HandleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	actor, ok := h.Approver(cb.From.ID)
	if !ok {
		h.answer(cb, "Access denied")
		return
	}
	data := cb.Data
	if data == cbRejectCancel {
		h.clearReject(chatID)
		fsmutil.DisableMarkup(h.bot, chatID, cb.Message.MessageID)
		h.answer(cb, "Cancelled")
		h.reply(chatID, "Rejection cancelled.")
		return
	}

	var prefix string
	for _, p := range []string{cbPublish, cbApprove, cbReject} {
		if strings.HasPrefix(data, p) {
			prefix = p
			break
		}
	}
	id, err := uuid.Parse(strings.TrimPrefix(data, prefix))
	if prefix == "" || err != nil {
		h.answer(cb, "Unknown action")
		return
	}

	if prefix == cbReject {
		h.setReject(chatID, &rejectState{id: id, title: firstLine(cb.Message.Text), messageID: cb.Message.MessageID})
		h.answer(cb, "")
		msg := tgbotapi.NewMessage(chatID, "Type the rejection reason (10 to 500 characters) or /cancel.")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(fsmutil.CancelRow(cbRejectCancel))
		if _, err := tg.Send(h.bot, msg); err != nil {
			metrics.HandlerErrors.Inc()
		}
		return
	}

	in := workflow.ApproveInput{IsPublished: prefix == cbPublish}
	a, err := h.svc.Approve(ctx, id, in, actor)
	if err != nil {
		h.answer(cb, "Not approved")
		h.finishMessage(chatID, cb.Message.MessageID, cb.Message.Text, outcomeText(err))
		return
	}
	note := "✅ Approved by " + actor.Name
	if a.IsPublished {
		note += " (published)"
	}
	h.answer(cb, "Approved")
	h.finishMessage(chatID, cb.Message.MessageID, cb.Message.Text, note)
}

// AwaitingReason — ждём ли в этом чате причину отказа.
func (h *Handler) AwaitingReason(chatID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rejects[chatID]
	return ok
}

// HandleRejectText — шаг ввода причины отказа.
func (h *Handler) HandleRejectText(ctx context.Context, msg *tgbotapi.Message, actor models.Actor) {
	chatID := msg.Chat.ID
	st := h.getReject(chatID)
	if st == nil {
		return
	}
	if fsmutil.IsCancelText(msg.Text) {
		h.clearReject(chatID)
		h.reply(chatID, "Rejection cancelled.")
		return
	}
	reason := strings.TrimSpace(msg.Text)
	_, err := h.svc.Reject(ctx, st.id, workflow.RejectInput{RejectionReason: reason}, actor)
	switch {
	case err == nil:
		h.clearReject(chatID)
		h.finishMessage(chatID, st.messageID, "", "❌ Rejected by "+actor.Name+": "+reason)
		h.reply(chatID, "Rejected: "+st.title)
	case errors.Is(err, workflow.ErrValidation):
		// остаёмся на шаге ввода
		h.reply(chatID, "⚠️ "+workflow.Message(err)+"\nTry again or /cancel.")
	default:
		h.clearReject(chatID)
		h.reply(chatID, outcomeText(err))
	}
}

// finishMessage дописывает итог к сообщению заявки и убирает кнопки.
func (h *Handler) finishMessage(chatID int64, messageID int, text, note string) {
	if messageID == 0 {
		return
	}
	if text == "" {
		fsmutil.DisableMarkup(h.bot, chatID, messageID)
		h.reply(chatID, note)
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text+"\n\n"+note)
	if _, err := tg.Send(h.bot, edit); err != nil {
		metrics.HandlerErrors.Inc()
	}
}

func outcomeText(err error) string {
	switch {
	case errors.Is(err, workflow.ErrConflict):
		return "⚠️ Already processed by someone else."
	case errors.Is(err, workflow.ErrNotFound):
		return "⚠️ The achievement no longer exists."
	case errors.Is(err, workflow.ErrForbidden):
		return "🚫 You are not allowed to approve achievements."
	case errors.Is(err, workflow.ErrValidation):
		return "⚠️ " + workflow.Message(err)
	default:
		return "⚠️ Something went wrong, try again later."
	}
}

func firstLine(s string) string {
	s = strings.TrimPrefix(s, "📝 ")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (h *Handler) setReject(chatID int64, st *rejectState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejects[chatID] = st
}

func (h *Handler) getReject(chatID int64) *rejectState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rejects[chatID]
}

func (h *Handler) clearReject(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rejects, chatID)
}
