package telegram

import (
	"fmt"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

// Скоупы публикации.
const (
	ScopePublic    = "public"
	ScopePaid      = "paid"
	ScopeBroadcast = "broadcast"
	ScopeAdmin     = "admin"
	ScopeDM        = "dm"
	ScopeAll       = "all"
)

// ChatRouting задаёт идентификаторы чатов по назначению.
// Нулевой идентификатор исключает чат из маршрутизации.
type ChatRouting struct {
	PublicChat int64
	PaidChat   int64
	AdminChat  int64
	DMChat     int64
}

// Publisher отправляет сообщения в Telegram-каналы по скоупу.
// Между отправками выдерживается пауза, чтобы не упираться в rate limit.
type Publisher struct {
	bot     *tgbotapi.BotAPI
	routing ChatRouting
	log     zerolog.Logger

	pause  time.Duration
	jitter time.Duration
}

var _ domain.ChannelPublisher = (*Publisher)(nil)

// NewPublisher создаёт издателя каналов.
func NewPublisher(bot *tgbotapi.BotAPI, routing ChatRouting, logger zerolog.Logger) *Publisher {
	return &Publisher{
		bot:     bot,
		routing: routing,
		log:     logger.With().Str("component", "telegram_publisher").Logger(),
		pause:   550 * time.Millisecond,
		jitter:  350 * time.Millisecond,
	}
}

// ResolveChats возвращает чаты скоупа: порядок стабилен, дубликаты убраны.
func (p *Publisher) ResolveChats(scope string) []int64 {
	var candidates []int64
	switch scope {
	case ScopePublic:
		candidates = []int64{p.routing.PublicChat}
	case ScopePaid:
		candidates = []int64{p.routing.PaidChat}
	case ScopeBroadcast, "":
		candidates = []int64{p.routing.PublicChat, p.routing.PaidChat}
	case ScopeAdmin:
		candidates = []int64{p.routing.AdminChat}
	case ScopeDM:
		candidates = []int64{p.routing.DMChat}
	case ScopeAll:
		candidates = []int64{p.routing.PublicChat, p.routing.PaidChat, p.routing.AdminChat, p.routing.DMChat}
	default:
		candidates = []int64{p.routing.PublicChat}
	}

	seen := make(map[int64]struct{}, len(candidates))
	chats := make([]int64, 0, len(candidates))
	for _, chat := range candidates {
		if chat == 0 {
			continue
		}
		if _, ok := seen[chat]; ok {
			continue
		}
		seen[chat] = struct{}{}
		chats = append(chats, chat)
	}
	return chats
}

// SendText отправляет HTML-сообщение во все чаты скоупа, длинный текст
// режется по границам строк.
func (p *Publisher) SendText(scope, text string, disablePreview bool) error {
	chats := p.ResolveChats(scope)
	if len(chats) == 0 {
		return fmt.Errorf("telegram: для скоупа %q не настроен ни один чат", scope)
	}
	for _, chat := range chats {
		for _, chunk := range SplitMessage(text) {
			msg := tgbotapi.NewMessage(chat, chunk)
			msg.ParseMode = tgbotapi.ModeHTML
			msg.DisableWebPagePreview = disablePreview

			start := time.Now()
			_, err := p.bot.Send(msg)
			metrics.ObserveNetworkRequest("telegram", "send_message", scope, start, err)
			if err != nil {
				return fmt.Errorf("telegram: send text to %d: %w", chat, err)
			}
			p.sleep()
		}
	}
	return nil
}

// SendPinnedText отправляет HTML-сообщение и закрепляет его в каждом чате
// скоупа. Неудачный пин не считается ошибкой отправки: боту могло не хватить
// прав администратора.
func (p *Publisher) SendPinnedText(scope, text string, disablePreview bool) error {
	chats := p.ResolveChats(scope)
	if len(chats) == 0 {
		return fmt.Errorf("telegram: для скоупа %q не настроен ни один чат", scope)
	}
	for _, chat := range chats {
		for i, chunk := range SplitMessage(text) {
			msg := tgbotapi.NewMessage(chat, chunk)
			msg.ParseMode = tgbotapi.ModeHTML
			msg.DisableWebPagePreview = disablePreview

			start := time.Now()
			sent, err := p.bot.Send(msg)
			metrics.ObserveNetworkRequest("telegram", "send_message", scope, start, err)
			if err != nil {
				return fmt.Errorf("telegram: send text to %d: %w", chat, err)
			}
			if i == 0 {
				pin := tgbotapi.PinChatMessageConfig{
					ChatID:              chat,
					MessageID:           sent.MessageID,
					DisableNotification: true,
				}
				start = time.Now()
				_, pinErr := p.bot.Request(pin)
				metrics.ObserveNetworkRequest("telegram", "pin_message", scope, start, pinErr)
				if pinErr != nil {
					p.log.Warn().Err(pinErr).Int64("chat", chat).Msg("сообщение не закреплено")
				}
			}
			p.sleep()
		}
	}
	return nil
}

// SendPhoto отправляет фото с HTML-подписью; хвост подписи, не влезший в
// лимит, уходит отдельными сообщениями.
func (p *Publisher) SendPhoto(scope, imageURL, caption string) error {
	if imageURL == "" {
		return p.SendText(scope, caption, false)
	}
	chats := p.ResolveChats(scope)
	if len(chats) == 0 {
		return fmt.Errorf("telegram: для скоупа %q не настроен ни один чат", scope)
	}

	parts := SplitCaption(caption)
	first := ""
	if len(parts) > 0 {
		first = parts[0]
	}

	for _, chat := range chats {
		photo := tgbotapi.NewPhoto(chat, tgbotapi.FileURL(imageURL))
		photo.Caption = first
		photo.ParseMode = tgbotapi.ModeHTML

		start := time.Now()
		_, err := p.bot.Send(photo)
		metrics.ObserveNetworkRequest("telegram", "send_photo", scope, start, err)
		if err != nil {
			return fmt.Errorf("telegram: send photo to %d: %w", chat, err)
		}
		p.sleep()

		for _, rest := range parts[1:] {
			msg := tgbotapi.NewMessage(chat, rest)
			msg.ParseMode = tgbotapi.ModeHTML

			start = time.Now()
			_, err = p.bot.Send(msg)
			metrics.ObserveNetworkRequest("telegram", "send_message", scope, start, err)
			if err != nil {
				return fmt.Errorf("telegram: send caption rest to %d: %w", chat, err)
			}
			p.sleep()
		}
	}
	return nil
}

func (p *Publisher) sleep() {
	pause := p.pause
	if p.jitter > 0 {
		pause += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	time.Sleep(pause)
}
