// Package storage загружает отчётные файлы в Supabase Storage и строит
// публичные ссылки на них.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trenddrop/internal/infra/metrics"
)

const uploadAttempts = 3

// Uploader кладёт файлы в бакет через Storage HTTP API.
type Uploader struct {
	http       *http.Client
	baseURL    string
	serviceKey string
	bucket     string
	log        zerolog.Logger
}

// NewUploader создаёт загрузчик. Пустые baseURL или serviceKey делают
// Enabled() ложным: вызывающие пропускают выгрузку.
func NewUploader(baseURL, serviceKey, bucket string, logger zerolog.Logger) *Uploader {
	return &Uploader{
		http:       &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		log:        logger.With().Str("component", "storage").Logger(),
	}
}

// Enabled сообщает, настроено ли хранилище.
func (u *Uploader) Enabled() bool {
	return u.baseURL != "" && u.serviceKey != "" && u.bucket != ""
}

// PublicURL возвращает публичную ссылку на объект бакета.
func (u *Uploader) PublicURL(key string) string {
	if !u.Enabled() {
		return ""
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", u.baseURL, u.bucket, key)
}

// UploadFile загружает локальный файл под ключом key с перезаписью.
// До трёх попыток с экспоненциальной паузой. Возвращает публичную ссылку.
func (u *Uploader) UploadFile(ctx context.Context, localPath, key, contentType string) (string, error) {
	if !u.Enabled() {
		return "", fmt.Errorf("storage: хранилище не настроено")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", localPath, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, u.bucket, key)

	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("storage: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+u.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		start := time.Now()
		resp, err := u.http.Do(req)
		metrics.ObserveNetworkRequest("supabase_storage", "upload", u.bucket, start, err)
		if err != nil {
			lastErr = fmt.Errorf("storage: upload %s: %w", key, err)
			u.log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("выгрузка не удалась")
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return u.PublicURL(key), nil
		}
		lastErr = fmt.Errorf("storage: upload %s: status %d: %s", key, resp.StatusCode, truncate(string(body), 200))
		u.log.Warn().Int("status", resp.StatusCode).Str("key", key).Int("attempt", attempt).Msg("выгрузка отклонена")
	}
	return "", lastErr
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
