package mtproto

import (
	"context"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog"
)

// SessionRepo — персистентное хранилище MTProto-сессий.
type SessionRepo interface {
	LoadMTProtoSession(ctx context.Context, name string) ([]byte, error)
	StoreMTProtoSession(ctx context.Context, name string, data []byte) error
}

// RepoSessionStorage адаптирует SessionRepo под session.Storage gotd.
// При загрузке распознаёт сторонние форматы (Telethon) и пересохраняет
// сессию уже в формате gotd.
type RepoSessionStorage struct {
	repo SessionRepo
	name string
	log  zerolog.Logger
}

// NewRepoSessionStorage создаёт хранилище сессии с именем name.
func NewRepoSessionStorage(repo SessionRepo, name string, logger zerolog.Logger) *RepoSessionStorage {
	if name == "" {
		name = "default"
	}
	return &RepoSessionStorage{
		repo: repo,
		name: name,
		log:  logger.With().Str("component", "mtproto_session").Logger(),
	}
}

// LoadSession возвращает сессию в формате gotd.
func (s *RepoSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	raw, err := s.repo.LoadMTProtoSession(ctx, s.name)
	if err != nil {
		return nil, err
	}

	normalized, converted, err := NormalizeSessionBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("mtproto: session %q: %w", s.name, err)
	}
	if converted {
		s.log.Info().Str("session", s.name).Msg("сессия сконвертирована в формат gotd")
		if storeErr := s.repo.StoreMTProtoSession(ctx, s.name, normalized); storeErr != nil {
			s.log.Warn().Err(storeErr).Str("session", s.name).Msg("не удалось пересохранить сессию")
		}
	}
	return normalized, nil
}

// StoreSession сохраняет сессию как есть.
func (s *RepoSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	return s.repo.StoreMTProtoSession(ctx, s.name, data)
}

var _ session.Storage = (*RepoSessionStorage)(nil)
