package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ListingRepo     = (*Postgres)(nil)
	_ domain.PostedLog       = (*Postgres)(nil)
	_ domain.RunRepo         = (*Postgres)(nil)
	_ domain.ReportRunRepo   = (*Postgres)(nil)
	_ domain.ClickRepo       = (*Postgres)(nil)
	_ domain.PostMetricsRepo = (*Postgres)(nil)
	_ domain.JobStatusRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertListings сохраняет карточки батчем. Карточки без заголовка или URL пропускаются.
func (p *Postgres) UpsertListings(ctx context.Context, listings []domain.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	queued := 0
	for _, l := range listings {
		if strings.TrimSpace(l.Title) == "" || strings.TrimSpace(l.URL) == "" {
			continue
		}
		if l.ID == "" {
			l.ID = domain.ListingID(l.Provider, l.URL)
		}
		var shipping any
		if l.ShippingCost != nil {
			shipping = *l.ShippingCost
		}
		var returns any
		if l.ReturnsAccepted != nil {
			returns = *l.ReturnsAccepted
		}
		batch.Queue(`
INSERT INTO products (id, title, url, price, currency, image_url, seller_username, seller_id, seller_feedback, top_rated, signals, provider, source, keyword, tags, buying_options, condition, condition_id, end_time, shipping_cost, returns_accepted, inserted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    price = EXCLUDED.price,
    currency = EXCLUDED.currency,
    image_url = EXCLUDED.image_url,
    seller_feedback = EXCLUDED.seller_feedback,
    top_rated = EXCLUDED.top_rated,
    signals = GREATEST(products.signals, EXCLUDED.signals),
    keyword = EXCLUDED.keyword,
    tags = EXCLUDED.tags,
    end_time = EXCLUDED.end_time,
    shipping_cost = EXCLUDED.shipping_cost,
    returns_accepted = EXCLUDED.returns_accepted
`, l.ID, l.Title, l.URL, l.Price, l.Currency, l.ImageURL, l.SellerUsername, l.SellerID, l.SellerFeedback, l.TopRated, l.Signals, l.Provider, l.Source, l.Keyword, l.Tags, l.BuyingOptions, l.Condition, l.ConditionID, l.EndTime, shipping, returns, l.InsertedAt)
		queued++
	}
	if queued == 0 {
		return nil
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "products_send_batch", "products", start, nil)
	defer br.Close()
	for i := 0; i < queued; i++ {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "products_batch_exec", "products", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListCleanListings возвращает пригодные для отчётов карточки: не manual,
// с заголовком и ценой, по убыванию signals.
func (p *Postgres) ListCleanListings(ctx context.Context, providers []string, limit int) ([]domain.Listing, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, url, price, currency, image_url, seller_username, seller_id, seller_feedback, top_rated, signals, provider, source, keyword, tags, buying_options, condition, condition_id, end_time, shipping_cost, returns_accepted, inserted_at
FROM products
WHERE source <> 'manual'
  AND title <> ''
  AND lower(title) NOT LIKE 'manual test%'
  AND price > 0
  AND ($1::text[] IS NULL OR provider = ANY($1))
ORDER BY signals DESC
LIMIT $2
`, providersArg(providers), limit)
	metrics.ObserveNetworkRequest("postgres", "products_list_clean", "products", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var (
			l        domain.Listing
			shipping sql.NullFloat64
			returns  sql.NullBool
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.URL, &l.Price, &l.Currency, &l.ImageURL, &l.SellerUsername, &l.SellerID, &l.SellerFeedback, &l.TopRated, &l.Signals, &l.Provider, &l.Source, &l.Keyword, &l.Tags, &l.BuyingOptions, &l.Condition, &l.ConditionID, &l.EndTime, &shipping, &returns, &l.InsertedAt); err != nil {
			return nil, err
		}
		if shipping.Valid {
			v := shipping.Float64
			l.ShippingCost = &v
		}
		if returns.Valid {
			v := returns.Bool
			l.ReturnsAccepted = &v
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func providersArg(providers []string) any {
	if len(providers) == 0 {
		return nil
	}
	return providers
}

// RecentKeys возвращает ключи публикаций за окно. Пустые ключи никогда не
// попадают в результат: пустая идентичность не считается дубликатом.
func (p *Postgres) RecentKeys(ctx context.Context, window time.Duration) (map[string]struct{}, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT url_key FROM posted_items WHERE posted_at >= now() - $1::interval
`, window.String())
	metrics.ObserveNetworkRequest("postgres", "posted_items_recent_keys", "posted_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// MarkPosted сохраняет отметку о публикации. Пустой ключ не сохраняется.
func (p *Postgres) MarkPosted(ctx context.Context, item domain.PostedItem) error {
	if item.URLKey == "" {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if item.PostedAt.IsZero() {
		item.PostedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO posted_items (url_key, canonical_url, keyword, title, provider, source, scope, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, item.URLKey, item.CanonicalURL, item.Keyword, item.Title, item.Provider, item.Source, item.Scope, item.PostedAt)
	metrics.ObserveNetworkRequest("postgres", "posted_items_insert", "posted_items", start, err)
	return err
}

// SaveRun сохраняет итог прогона публикации. Не возвращает ошибку наружу
// критичной: вызывающие логируют и продолжают.
func (p *Postgres) SaveRun(ctx context.Context, run domain.Run) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO runs (status, started_at, finished_at, duration_ms, topic_count, item_count, message)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, run.Status, run.StartedAt, run.FinishedAt, run.FinishedAt.Sub(run.StartedAt).Milliseconds(), run.TopicCount, run.ItemCount, run.Message)
	metrics.ObserveNetworkRequest("postgres", "runs_insert", "runs", start, err)
	return err
}

// ListRecentRuns возвращает последние прогоны.
func (p *Postgres) ListRecentRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, status, started_at, finished_at, topic_count, item_count, message
FROM runs ORDER BY started_at DESC LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "runs_list_recent", "runs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var r domain.Run
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.TopicCount, &r.ItemCount, &r.Message); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveReportRun сохраняет аудит генерации отчёта.
func (p *Postgres) SaveReportRun(ctx context.Context, run domain.ReportRun) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO report_runs (provider, run_started_at, data_window_label, products_total, curated_count, success, pdf_url, csv_url, error_message)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, run.Provider, run.RunStartedAt, run.DataWindowLabel, run.ProductsTotal, run.CuratedCount, run.Success, run.PDFURL, run.CSVURL, run.ErrorMessage)
	metrics.ObserveNetworkRequest("postgres", "report_runs_insert", "report_runs", start, err)
	return err
}

// LatestReportRuns возвращает последние отчётные прогоны.
func (p *Postgres) LatestReportRuns(ctx context.Context, limit int) ([]domain.ReportRun, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, provider, run_started_at, data_window_label, products_total, curated_count, success, pdf_url, csv_url, error_message
FROM report_runs ORDER BY run_started_at DESC LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "report_runs_latest", "report_runs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.ReportRun
	for rows.Next() {
		var r domain.ReportRun
		if err := rows.Scan(&r.ID, &r.Provider, &r.RunStartedAt, &r.DataWindowLabel, &r.ProductsTotal, &r.CuratedCount, &r.Success, &r.PDFURL, &r.CSVURL, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveClick сохраняет переход по редиректу витрины.
func (p *Postgres) SaveClick(ctx context.Context, click domain.Click) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO clicks (target_url, referer, user_agent, clicked_at)
VALUES ($1,$2,$3,$4)
`, click.TargetURL, click.Referer, click.UserAgent, click.ClickedAt)
	metrics.ObserveNetworkRequest("postgres", "clicks_insert", "clicks", start, err)
	return err
}

// UpsertPostMetrics сохраняет просмотры постов батчем.
func (p *Postgres) UpsertPostMetrics(ctx context.Context, items []domain.PostMetric) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, m := range items {
		batch.Queue(`
INSERT INTO post_metrics (channel_alias, tg_msg_id, views, forwards, posted_at, collected_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (channel_alias, tg_msg_id) DO UPDATE SET
    views = GREATEST(post_metrics.views, EXCLUDED.views),
    forwards = GREATEST(post_metrics.forwards, EXCLUDED.forwards),
    collected_at = EXCLUDED.collected_at
`, m.ChannelAlias, m.TGMsgID, m.Views, m.Forwards, m.PostedAt, m.CollectedAt)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "post_metrics_send_batch", "post_metrics", start, nil)
	defer br.Close()
	for range items {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "post_metrics_batch_exec", "post_metrics", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// TopPostsByViews возвращает самые просматриваемые посты с указанного момента.
func (p *Postgres) TopPostsByViews(ctx context.Context, since time.Time, limit int) ([]domain.PostMetric, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 25
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT channel_alias, tg_msg_id, views, forwards, posted_at, collected_at
FROM post_metrics WHERE posted_at >= $1
ORDER BY views DESC LIMIT $2
`, since, limit)
	metrics.ObserveNetworkRequest("postgres", "post_metrics_top", "post_metrics", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PostMetric
	for rows.Next() {
		var m domain.PostMetric
		if err := rows.Scan(&m.ChannelAlias, &m.TGMsgID, &m.Views, &m.Forwards, &m.PostedAt, &m.CollectedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// EnsureJob регистрирует попытку обработки задачи.
func (p *Postgres) EnsureJob(jobID string) (bool, int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		done     sql.NullTime
		attempts int
	)

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = job_statuses.attempts + 1,
        updated_at = now()
RETURNING done_at, attempts
`, jobID).Scan(&done, &attempts)
	metrics.ObserveNetworkRequest("postgres", "job_statuses_upsert", "job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return done.Valid, attempts, nil
}

// MarkJobDone помечает задачу как обработанную.
func (p *Postgres) MarkJobDone(jobID string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE job_statuses
SET done_at = COALESCE(done_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "job_statuses_mark_done", "job_statuses", start, err)
	return err
}

// LoadMTProtoSession загружает сохранённую MTProto-сессию.
func (p *Postgres) LoadMTProtoSession(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	var data []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data FROM mtproto_sessions WHERE name = $1`, name).Scan(&data)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	clone := make([]byte, len(data))
	copy(clone, data)
	return clone, nil
}

// StoreMTProtoSession сохраняет MTProto-сессию.
func (p *Postgres) StoreMTProtoSession(ctx context.Context, name string, data []byte) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	tmp := make([]byte, len(data))
	copy(tmp, data)

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO mtproto_sessions (name, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, name, tmp)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_store", "mtproto_sessions", start, err)
	return err
}
