// Package mtproto читает статистику каналов через пользовательскую
// MTProto-сессию: Bot API не отдаёт просмотры и пересылки постов.
package mtproto

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

const defaultHistoryLimit = 50

// ErrNotAuthorized возвращается, когда сохранённая сессия не прошла авторизацию.
var ErrNotAuthorized = fmt.Errorf("mtproto: сессия не авторизована")

// StatsReader собирает просмотры недавних постов канала через gotd.
type StatsReader struct {
	apiID   int
	apiHash string
	storage session.Storage
	log     zerolog.Logger
}

// NewStatsReader создаёт читатель статистики. Клиент gotd поднимается
// на каждый вызов RecentPostViews: сборка редкая, держать соединение незачем.
func NewStatsReader(apiID int, apiHash string, storage session.Storage, logger zerolog.Logger) *StatsReader {
	return &StatsReader{
		apiID:   apiID,
		apiHash: apiHash,
		storage: storage,
		log:     logger.With().Str("component", "mtproto_stats").Logger(),
	}
}

// Enabled сообщает, заданы ли учётные данные MTProto.
func (r *StatsReader) Enabled() bool {
	return r.apiID != 0 && r.apiHash != ""
}

// RecentPostViews возвращает просмотры и пересылки последних постов канала.
func (r *StatsReader) RecentPostViews(ctx context.Context, channelAlias string, limit int) ([]domain.PostMetric, error) {
	if !r.Enabled() {
		return nil, fmt.Errorf("mtproto: не заданы TG_API_ID/TG_API_HASH")
	}
	alias := strings.TrimPrefix(strings.TrimSpace(channelAlias), "@")
	if alias == "" {
		return nil, fmt.Errorf("mtproto: пустой алиас канала")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	client := telegram.NewClient(r.apiID, r.apiHash, telegram.Options{SessionStorage: r.storage})

	var collected []domain.PostMetric
	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("mtproto: auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}

		api := client.API()

		start := time.Now()
		resolved, err := api.ContactsResolveUsername(ctx, alias)
		metrics.ObserveNetworkRequest("mtproto", "resolve_username", alias, start, err)
		if err != nil {
			return fmt.Errorf("mtproto: resolve %q: %w", alias, err)
		}
		channel := findChannel(resolved.Chats)
		if channel == nil {
			return fmt.Errorf("mtproto: %q не является каналом", alias)
		}

		start = time.Now()
		history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer: &tg.InputPeerChannel{
				ChannelID:  channel.ID,
				AccessHash: channel.AccessHash,
			},
			Limit: limit,
		})
		metrics.ObserveNetworkRequest("mtproto", "messages_get_history", alias, start, err)
		if err != nil {
			return fmt.Errorf("mtproto: history %q: %w", alias, err)
		}

		modified, ok := history.AsModified()
		if !ok {
			return fmt.Errorf("mtproto: history %q: неожиданный ответ %T", alias, history)
		}

		now := time.Now().UTC()
		for _, raw := range modified.GetMessages() {
			msg, ok := raw.(*tg.Message)
			if !ok {
				continue
			}
			views, hasViews := msg.GetViews()
			if !hasViews {
				continue
			}
			forwards, _ := msg.GetForwards()
			collected = append(collected, domain.PostMetric{
				ChannelAlias: alias,
				TGMsgID:      int64(msg.ID),
				Views:        views,
				Forwards:     forwards,
				PostedAt:     time.Unix(int64(msg.Date), 0).UTC(),
				CollectedAt:  now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Str("channel", alias).Int("posts", len(collected)).Msg("статистика канала собрана")
	return collected, nil
}

func findChannel(chats []tg.ChatClass) *tg.Channel {
	for _, chat := range chats {
		if channel, ok := chat.(*tg.Channel); ok {
			return channel
		}
	}
	return nil
}

var _ domain.ChannelStatsReader = (*StatsReader)(nil)
