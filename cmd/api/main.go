package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"trenddrop/internal/adapters/repo"
	"trenddrop/internal/adapters/storefront"
	"trenddrop/internal/domain"
	"trenddrop/internal/infra/config"
	"trenddrop/internal/infra/db"
	httpinfra "trenddrop/internal/infra/http"
	applog "trenddrop/internal/infra/log"
	"trenddrop/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	feed := storefront.NewFeedWriter(cfg.Storefront.DataDir, cfg.Storefront.ClickRedirectBase)

	srv := httpinfra.NewServer(logger.With().Str("component", "api").Logger())
	registerRoutes(srv, repoAdapter, feed, logger)

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func registerRoutes(srv *httpinfra.Server, repoAdapter *repo.Postgres, feed *storefront.FeedWriter, logger zerolog.Logger) {
	srv.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv.Router.Get("/data/products.json", func(w http.ResponseWriter, r *http.Request) {
		path := feed.ProductsPath()
		if _, err := os.Stat(path); err != nil {
			writeError(w, http.StatusNotFound, "фид витрины ещё не собран")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		http.ServeFile(w, r, path)
	})

	srv.Router.Get("/r", func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		parsed, err := url.Parse(target)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			writeError(w, http.StatusBadRequest, "некорректная ссылка перехода")
			return
		}
		if err := repoAdapter.SaveClick(r.Context(), domain.Click{
			TargetURL: target,
			Referer:   r.Referer(),
			UserAgent: r.UserAgent(),
			ClickedAt: time.Now().UTC(),
		}); err != nil {
			// Переход важнее учёта: редиректим даже без записи клика.
			logger.Warn().Err(err).Msg("api: клик не записан")
		}
		metrics.StorefrontClicks.Inc()
		http.Redirect(w, r, target, http.StatusFound)
	})

	srv.Router.Get("/runs/recent", func(w http.ResponseWriter, r *http.Request) {
		runs, err := repoAdapter.ListRecentRuns(r.Context(), 20)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "не удалось загрузить прогоны")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	})

	srv.Router.Get("/reports/latest", func(w http.ResponseWriter, r *http.Request) {
		reports, err := repoAdapter.LatestReportRuns(r.Context(), 10)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "не удалось загрузить отчёты")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
