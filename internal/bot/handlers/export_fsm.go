package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/bot/shared/fsmutil"
	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/export"
	"github.com/Spok95/achievement-service/internal/metrics"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/tg"
)

const (
	exportKey       = "export"
	maxExportRows   = 10_000
	hallOfFameLimit = 10
	exportTimeout   = 2 * time.Minute
)

// Export отправляет xlsx со статистикой за текущий учебный год.
func (h *Handler) Export(ctx context.Context, chatID int64) {
	if !fsmutil.SetPending(chatID, exportKey) {
		h.reply(chatID, "⏳ Export is already running.")
		return
	}
	defer fsmutil.ClearPending(chatID, exportKey)

	year := h.currentYear()
	data, err := h.buildExport(ctx, year)
	if err != nil {
		h.log.Error("export statistics", zap.String("year", year), zap.Error(err))
		h.reply(chatID, "⚠️ Could not build the export.")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  export.StatisticsFilename(year, 0),
		Bytes: data,
	})
	doc.Caption = "📊 Achievements " + year
	if _, err := tg.Send(h.bot, doc); err != nil {
		metrics.HandlerErrors.Inc()
		h.log.Warn("send export", zap.Error(err))
	}
}

func (h *Handler) buildExport(ctx context.Context, year string) ([]byte, error) {
	ctx, cancel := ctxutil.WithTimeout(ctxutil.WithOp(ctx, "bot.export"), exportTimeout)
	defer cancel()
	sum, err := h.svc.StatsSummary(ctx, models.StatisticsFilter{AcademicYear: year})
	if err != nil {
		return nil, err
	}
	items, err := h.svc.QueryAll(ctx, models.AchievementFilter{AcademicYear: year}, maxExportRows)
	if err != nil {
		return nil, err
	}
	wb, err := export.StatisticsReport(sum, items)
	if err != nil {
		return nil, err
	}
	defer func() { _ = wb.Close() }()
	return wb.Bytes()
}

// ShowHallOfFame — доска почёта текущего учебного года.
func (h *Handler) ShowHallOfFame(ctx context.Context, chatID int64) {
	year := h.currentYear()
	entries, err := h.svc.HallOfFame(ctx, models.HallOfFameFilter{AcademicYear: year, Limit: hallOfFameLimit})
	if err != nil {
		h.log.Error("hall of fame", zap.Error(err))
		h.reply(chatID, "⚠️ Could not load the hall of fame.")
		return
	}
	if len(entries) == 0 {
		h.reply(chatID, "🏆 Hall of fame "+year+" is empty.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Hall of fame %s\n", year)
	for i, e := range entries {
		rank := ""
		if e.Rank != nil {
			rank = ", " + string(*e.Rank)
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)\n   %s: %s%s", i+1, e.StudentName, e.StudentClass, e.Level, e.AchievementTitle, rank)
	}
	h.reply(chatID, b.String())
}
