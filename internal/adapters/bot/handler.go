// Package bot обслуживает админский вебхук: операторские команды запуска
// подборок, отчётов и просмотра статуса пайплайна.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trenddrop/internal/adapters/telegram"
	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

const confirmTTL = 5 * time.Minute

// Handler обрабатывает апдейты админского бота.
type Handler struct {
	bot       *tgbotapi.BotAPI
	log       zerolog.Logger
	runs      domain.RunRepo
	reports   domain.ReportRunRepo
	posts     domain.PostMetricsRepo
	jobs      domain.JobQueue
	adminChat int64

	mu          sync.Mutex
	pendingDrop map[int64]pendingDrop
}

type pendingDrop struct {
	scope       string
	requestedAt time.Time
}

// NewHandler создаёт обработчик. adminChat == 0 отключает проверку доступа.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, runs domain.RunRepo, reports domain.ReportRunRepo, posts domain.PostMetricsRepo, jobs domain.JobQueue, adminChat int64) *Handler {
	return &Handler{
		bot:         bot,
		log:         log.With().Str("component", "admin_bot").Logger(),
		runs:        runs,
		reports:     reports,
		posts:       posts,
		jobs:        jobs,
		adminChat:   adminChat,
		pendingDrop: make(map[int64]pendingDrop),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) allowed(chatID int64) bool {
	return h.adminChat == 0 || chatID == h.adminChat
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !h.allowed(msg.Chat.ID) {
		h.log.Warn().Int64("chat", msg.Chat.ID).Msg("сообщение из неразрешённого чата")
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage(), h.mainKeyboard())
	case strings.HasPrefix(text, "/status"):
		h.handleStatus(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/drop"):
		scope := strings.TrimSpace(strings.TrimPrefix(text, "/drop"))
		h.handleDropRequest(msg.Chat.ID, scope)
	case strings.HasPrefix(text, "/report"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/report"))
		h.handleReport(ctx, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/top"):
		h.handleTopPosts(ctx, msg.Chat.ID)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || !h.allowed(cb.Message.Chat.ID) {
		return
	}
	data := cb.Data
	switch {
	case data == "status":
		h.handleStatus(ctx, cb.Message.Chat.ID)
	case data == "drop_menu":
		h.handleDropRequest(cb.Message.Chat.ID, "")
	case data == "report_menu":
		h.reply(cb.Message.Chat.ID, h.buildReportHint(), h.reportKeyboard())
	case strings.HasPrefix(data, "report:"):
		h.handleReport(ctx, cb.Message.Chat.ID, strings.TrimPrefix(data, "report:"))
	case data == "drop_confirm":
		h.handleDropConfirm(ctx, cb.Message.Chat.ID)
	case data == "drop_cancel":
		h.clearPendingDrop(cb.Message.Chat.ID)
		h.reply(cb.Message.Chat.ID, "Запуск подборки отменён", nil)
	case data == "top_posts":
		h.handleTopPosts(ctx, cb.Message.Chat.ID)
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64) {
	runs, err := h.runs.ListRecentRuns(ctx, 5)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось получить прогоны: %v", err), nil)
		return
	}
	var b strings.Builder
	if len(runs) == 0 {
		b.WriteString("Публикаций пока не было.\n")
	} else {
		b.WriteString("Последние публикации:\n")
		for _, run := range runs {
			b.WriteString(fmt.Sprintf("• %s — %s, тем: %d, карточек: %d",
				run.StartedAt.Format("02.01 15:04"), run.Status, run.TopicCount, run.ItemCount))
			if run.Message != "" {
				b.WriteString(" (" + run.Message + ")")
			}
			b.WriteString("\n")
		}
	}
	reports, err := h.reports.LatestReportRuns(ctx, 3)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить отчётные прогоны")
	} else if len(reports) > 0 {
		b.WriteString("\nПоследние отчёты:\n")
		for _, rep := range reports {
			status := "ok"
			if !rep.Success {
				status = "ошибка: " + rep.ErrorMessage
			}
			provider := rep.Provider
			if provider == "" {
				provider = "master"
			}
			b.WriteString(fmt.Sprintf("• %s — %s, товаров: %d, в отчёте: %d, %s\n",
				rep.RunStartedAt.Format("02.01 15:04"), provider, rep.ProductsTotal, rep.CuratedCount, status))
		}
	}
	h.reply(chatID, b.String(), h.mainKeyboard())
}

// normalizeDropScope приводит скоуп к допустимому значению; пустой — broadcast.
func normalizeDropScope(scope string) (string, bool) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		scope = telegram.ScopeBroadcast
	}
	switch scope {
	case telegram.ScopePublic, telegram.ScopePaid, telegram.ScopeBroadcast, telegram.ScopeAdmin, telegram.ScopeDM, telegram.ScopeAll:
		return scope, true
	default:
		return "", false
	}
}

func (h *Handler) handleDropRequest(chatID int64, scope string) {
	scope, ok := normalizeDropScope(scope)
	if !ok {
		h.reply(chatID, "Неизвестный скоуп. Доступны: public, paid, broadcast, admin, dm, all", nil)
		return
	}
	h.mu.Lock()
	h.pendingDrop[chatID] = pendingDrop{scope: scope, requestedAt: time.Now()}
	h.mu.Unlock()

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Запустить", "drop_confirm"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "drop_cancel"),
		),
	)
	h.reply(chatID, fmt.Sprintf("Запустить подборку в скоуп %s?", scope), &markup)
}

// takePendingDrop снимает ожидающее подтверждение; просроченное не возвращается.
func (h *Handler) takePendingDrop(chatID int64) (pendingDrop, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pending, ok := h.pendingDrop[chatID]
	delete(h.pendingDrop, chatID)
	if ok && time.Since(pending.requestedAt) > confirmTTL {
		ok = false
	}
	return pending, ok
}

func (h *Handler) handleDropConfirm(ctx context.Context, chatID int64) {
	pending, ok := h.takePendingDrop(chatID)
	if !ok {
		h.reply(chatID, "Запрос устарел. Отправьте /drop ещё раз", nil)
		return
	}

	job := domain.Job{
		ID:          uuid.NewString(),
		Kind:        domain.JobKindDrop,
		Cause:       domain.JobCauseManual,
		RequestedAt: time.Now().UTC(),
		Drop:        &domain.DropJob{Scope: pending.scope},
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Str("scope", pending.scope).Msg("не удалось поставить задачу подборки")
		h.reply(chatID, "Не удалось поставить задачу в очередь, попробуйте позже", nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Подборка поставлена в очередь (скоуп %s)", pending.scope), nil)
}

func (h *Handler) clearPendingDrop(chatID int64) {
	h.mu.Lock()
	delete(h.pendingDrop, chatID)
	h.mu.Unlock()
}

func (h *Handler) handleReport(ctx context.Context, chatID int64, payload string) {
	if strings.TrimSpace(payload) == "" {
		h.reply(chatID, h.buildReportHint(), h.reportKeyboard())
		return
	}
	report, ok := buildReportJob(payload)
	if !ok {
		h.reply(chatID, "Укажите провайдера (ebay, amazon, aliexpress), master или sample", nil)
		return
	}

	job := domain.Job{
		ID:          uuid.NewString(),
		Kind:        domain.JobKindReport,
		Cause:       domain.JobCauseManual,
		RequestedAt: time.Now().UTC(),
		Report:      &report,
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Str("mode", report.Mode).Str("provider", report.Provider).Msg("не удалось поставить задачу отчёта")
		h.reply(chatID, "Не удалось поставить отчёт в очередь, попробуйте позже", nil)
		return
	}
	target := report.Provider
	if target == "" {
		target = report.Mode
	}
	h.reply(chatID, fmt.Sprintf("Отчёт %s поставлен в очередь", target), nil)
}

// buildReportJob разбирает аргумент /report в задачу очереди.
func buildReportJob(payload string) (domain.ReportJob, bool) {
	payload = strings.ToLower(strings.TrimSpace(payload))
	report := domain.ReportJob{Mode: "weekly"}
	switch payload {
	case "master":
		report.Mode = "master"
	case "sample":
		report.Mode = "sample"
	case domain.ProviderEbay, domain.ProviderAmazon, domain.ProviderAliexpress:
		report.Provider = payload
	default:
		return domain.ReportJob{}, false
	}
	return report, true
}

func (h *Handler) handleTopPosts(ctx context.Context, chatID int64) {
	since := time.Now().UTC().Add(-7 * 24 * time.Hour)
	posts, err := h.posts.TopPostsByViews(ctx, since, 10)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось получить статистику: %v", err), nil)
		return
	}
	if len(posts) == 0 {
		h.reply(chatID, "За последнюю неделю статистики постов нет", nil)
		return
	}
	var b strings.Builder
	b.WriteString("Топ постов за неделю:\n")
	for i, post := range posts {
		b.WriteString(fmt.Sprintf("%d. https://t.me/%s/%d — %d просмотров, %d пересылок\n",
			i+1, post.ChannelAlias, post.TGMsgID, post.Views, post.Forwards))
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚡ Подборка", "drop_menu"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Статус", "status"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 Отчёты", "report_menu"),
			tgbotapi.NewInlineKeyboardButtonData("👀 Топ постов", "top_posts"),
		),
	)
	return &buttons
}

func (h *Handler) reportKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("eBay", "report:ebay"),
			tgbotapi.NewInlineKeyboardButtonData("Amazon", "report:amazon"),
			tgbotapi.NewInlineKeyboardButtonData("AliExpress", "report:aliexpress"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💎 Master", "report:master"),
			tgbotapi.NewInlineKeyboardButtonData("🎁 Sample", "report:sample"),
		),
	)
	return &buttons
}

func (h *Handler) buildHelpMessage() string {
	lines := []string{
		"🛠 Команды оператора TrendDrop:",
		"",
		"• /status — последние публикации и отчёты.",
		"• /drop [scope] — запустить подборку (public, paid, broadcast, admin, dm, all).",
		"• /report ebay|amazon|aliexpress — недельный отчёт по маркетплейсу.",
		"• /report master — мастер-пакет по всем маркетплейсам.",
		"• /report sample — бесплатный сэмпл.",
		"• /top — топ постов канала по просмотрам за неделю.",
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) buildReportHint() string {
	lines := []string{
		"📦 Какой отчёт собрать?",
		"",
		"• /report ebay — недельный пакет eBay.",
		"• /report amazon — недельный пакет Amazon.",
		"• /report aliexpress — недельный пакет AliExpress.",
		"• /report master — мастер-пакет по всем маркетплейсам.",
		"• /report sample — бесплатный сэмпл для лид-магнита.",
	}
	return strings.Join(lines, "\n")
}
