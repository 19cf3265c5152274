// Package reports собирает отчётные пакеты: недельные по маркетплейсам,
// кросс-маркет мастер-пакет и бесплатный сэмпл. PDF показывает отобранные
// карточки, CSV содержит полный набор, zip объединяет оба файла.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"trenddrop/internal/adapters/report"
	"trenddrop/internal/domain"
	"trenddrop/internal/infra/metrics"
	"trenddrop/internal/usecase/curation"
)

const (
	defaultTopN    = 50
	defaultMaxPull = 150
	masterTopN     = 25
	sampleSize     = 5
	masterPull     = 200
)

// ArtifactStore выгружает файлы пакета в объектное хранилище.
type ArtifactStore interface {
	Enabled() bool
	UploadFile(ctx context.Context, localPath, key, contentType string) (string, error)
}

// Config — настройки генерации отчётов.
type Config struct {
	OutDir   string
	LockFile string
	TopN     int
	MaxPull  int
}

// Service генерирует отчётные пакеты.
type Service struct {
	listings domain.ListingRepo
	runs     domain.ReportRunRepo
	pdf      *report.PDFWriter
	store    ArtifactStore
	clock    domain.Clock
	cfg      Config
	log      zerolog.Logger
}

// NewService создаёт сервис отчётов. store может быть nil: выгрузка пропускается.
func NewService(listings domain.ListingRepo, runs domain.ReportRunRepo, pdf *report.PDFWriter, store ArtifactStore, clock domain.Clock, cfg Config, logger zerolog.Logger) *Service {
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	if cfg.MaxPull <= 0 {
		cfg.MaxPull = defaultMaxPull
	}
	return &Service{
		listings: listings,
		runs:     runs,
		pdf:      pdf,
		store:    store,
		clock:    clock,
		cfg:      cfg,
		log:      logger.With().Str("component", "reports").Logger(),
	}
}

// Generate выполняет задачу отчёта по режиму: weekly, master или sample.
func (s *Service) Generate(ctx context.Context, job domain.ReportJob) error {
	switch job.Mode {
	case "master":
		_, err := s.GenerateMaster(ctx)
		return err
	case "sample":
		_, err := s.GenerateSample(ctx)
		return err
	default:
		provider := job.Provider
		if provider == "" {
			provider = domain.ProviderEbay
		}
		_, err := s.GenerateWeekly(ctx, provider)
		return err
	}
}

// GenerateWeekly собирает недельный пакет одного маркетплейса: топ-N PDF,
// полный CSV и zip, с выгрузкой под ключами latest и датированным.
func (s *Service) GenerateWeekly(ctx context.Context, provider string) (domain.ReportArtifacts, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	runStartedAt := s.clock.Now().UTC()
	start := runStartedAt

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return domain.ReportArtifacts{}, err
	}
	defer unlock()
	defer func() {
		metrics.ReportBuildSeconds.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	run := domain.ReportRun{Provider: provider, RunStartedAt: runStartedAt, DataWindowLabel: "Unknown"}

	products, err := s.listings.ListCleanListings(ctx, []string{provider}, s.cfg.MaxPull)
	if err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: загрузка карточек %s: %w", provider, err))
	}
	run.ProductsTotal = len(products)

	products = curation.DedupeByURL(products)
	products = curation.DedupeNearDuplicates(products)
	curation.SortByRank(products)

	curated := products
	if len(curated) > s.cfg.TopN {
		curated = curated[:s.cfg.TopN]
	}
	run.CuratedCount = len(curated)
	if len(curated) == 0 {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: нет карточек %s для отчёта", provider))
	}

	run.DataWindowLabel = DataWindowLabel(products, s.clock.Now())

	label := providerLabel(provider)
	title := fmt.Sprintf("Top %d Trending %s Products — Weekly Report", s.cfg.TopN, label)
	subtitleLines := []string{
		"Generated: " + formatGenerated(s.clock.Now()),
		"Source: live marketplace data · PDF shows curated picks · full dataset in CSV",
		"Data window: " + run.DataWindowLabel,
	}

	artifacts := domain.ReportArtifacts{
		Provider: provider,
		PDFPath:  filepath.Join(s.cfg.OutDir, provider+"_weekly.pdf"),
		CSVPath:  filepath.Join(s.cfg.OutDir, provider+"_weekly.csv"),
		ZipPath:  filepath.Join(s.cfg.OutDir, provider+"_weekly.zip"),
	}
	if err := os.MkdirAll(s.cfg.OutDir, 0o755); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: каталог отчётов: %w", err))
	}

	if err := s.pdf.WriteTable(artifacts.PDFPath, title, subtitleLines, report.WeeklyColumns, curated); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: PDF %s: %w", provider, err))
	}
	if err := report.WriteCSV(artifacts.CSVPath, report.WeeklyColumns, products); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: CSV %s: %w", provider, err))
	}
	if err := report.WriteZip(artifacts.ZipPath, map[string]string{
		provider + "-weekly-report.pdf": artifacts.PDFPath,
		provider + "-weekly-report.csv": artifacts.CSVPath,
	}); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: zip %s: %w", provider, err))
	}

	s.uploadWeekly(ctx, provider, runStartedAt, &artifacts)

	run.Success = true
	run.PDFURL = artifacts.PDFURL
	run.CSVURL = artifacts.CSVURL
	s.saveRun(ctx, run)

	s.log.Info().
		Str("provider", provider).
		Int("total", run.ProductsTotal).
		Int("curated", run.CuratedCount).
		Str("window", run.DataWindowLabel).
		Msg("недельный пакет собран")
	return artifacts, nil
}

// GenerateMaster собирает кросс-маркет Top 25 по eBay и Amazon,
// ранжируя по сигналам, репутации продавца и цене.
func (s *Service) GenerateMaster(ctx context.Context) (domain.ReportArtifacts, error) {
	runStartedAt := s.clock.Now().UTC()
	start := runStartedAt

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return domain.ReportArtifacts{}, err
	}
	defer unlock()
	defer func() {
		metrics.ReportBuildSeconds.WithLabelValues("master").Observe(time.Since(start).Seconds())
	}()

	run := domain.ReportRun{RunStartedAt: runStartedAt, DataWindowLabel: "Unknown"}

	products, err := s.listings.ListCleanListings(ctx, []string{domain.ProviderEbay, domain.ProviderAmazon}, masterPull)
	if err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: загрузка карточек мастер-пакета: %w", err))
	}
	run.ProductsTotal = len(products)

	products = curation.DedupeNearDuplicates(products)
	sort.SliceStable(products, func(i, j int) bool {
		return PackScore(products[i]) > PackScore(products[j])
	})
	if len(products) > masterTopN {
		products = products[:masterTopN]
	}
	run.CuratedCount = len(products)
	if len(products) == 0 {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: нет карточек для мастер-пакета"))
	}
	run.DataWindowLabel = DataWindowLabel(products, s.clock.Now())

	subtitleLines := []string{
		"Generated: " + formatGenerated(s.clock.Now()),
		"Cross-market Top 25 curated across eBay and Amazon.",
		"PDF shows curated picks; full per-provider data lives in the individual packs.",
	}

	artifacts := domain.ReportArtifacts{
		PDFPath: filepath.Join(s.cfg.OutDir, "master_top25.pdf"),
		CSVPath: filepath.Join(s.cfg.OutDir, "master_top25.csv"),
		ZipPath: filepath.Join(s.cfg.OutDir, "master_top25.zip"),
	}
	if err := os.MkdirAll(s.cfg.OutDir, 0o755); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: каталог отчётов: %w", err))
	}

	if err := s.pdf.WriteTable(artifacts.PDFPath, "TrendDrop Master Top 25 — Cross Marketplace", subtitleLines, report.MasterColumns, products); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: PDF мастер-пакета: %w", err))
	}
	if err := report.WriteCSV(artifacts.CSVPath, report.MasterColumns, products); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: CSV мастер-пакета: %w", err))
	}
	if err := report.WriteZip(artifacts.ZipPath, map[string]string{
		"master-top25.pdf": artifacts.PDFPath,
		"master-top25.csv": artifacts.CSVPath,
	}); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: zip мастер-пакета: %w", err))
	}

	s.uploadWeekly(ctx, "master", runStartedAt, &artifacts)

	run.Success = true
	run.PDFURL = artifacts.PDFURL
	run.CSVURL = artifacts.CSVURL
	s.saveRun(ctx, run)
	return artifacts, nil
}

// GenerateSample собирает бесплатный сэмпл: топ-5 карточек eBay по сигналам.
func (s *Service) GenerateSample(ctx context.Context) (domain.ReportArtifacts, error) {
	runStartedAt := s.clock.Now().UTC()
	start := runStartedAt
	defer func() {
		metrics.ReportBuildSeconds.WithLabelValues("sample").Observe(time.Since(start).Seconds())
	}()

	run := domain.ReportRun{Provider: "sample", RunStartedAt: runStartedAt, DataWindowLabel: "Unknown"}

	products, err := s.listings.ListCleanListings(ctx, []string{domain.ProviderEbay}, sampleSize)
	if err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: загрузка карточек сэмпла: %w", err))
	}
	run.ProductsTotal = len(products)
	run.CuratedCount = len(products)
	if len(products) == 0 {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: нет карточек eBay для сэмпла"))
	}
	run.DataWindowLabel = DataWindowLabel(products, s.clock.Now())

	subtitleLines := []string{
		"Generated: " + formatGenerated(s.clock.Now()),
		"Free 5-item sampler from TrendDrop's eBay movers.",
		"PDF shows curated picks; CSV lets you slice/filter in your own tools.",
	}

	artifacts := domain.ReportArtifacts{
		Provider: "sample",
		PDFPath:  filepath.Join(s.cfg.OutDir, "free_sample.pdf"),
		CSVPath:  filepath.Join(s.cfg.OutDir, "free_sample.csv"),
	}
	if err := os.MkdirAll(s.cfg.OutDir, 0o755); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: каталог отчётов: %w", err))
	}

	if err := s.pdf.WriteTable(artifacts.PDFPath, "TrendDrop • Free 5-Item Sample — eBay", subtitleLines, report.WeeklyColumns, products); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: PDF сэмпла: %w", err))
	}
	if err := report.WriteCSV(artifacts.CSVPath, report.WeeklyColumns, products); err != nil {
		return domain.ReportArtifacts{}, s.failRun(ctx, run, fmt.Errorf("reports: CSV сэмпла: %w", err))
	}

	run.Success = true
	s.saveRun(ctx, run)
	return artifacts, nil
}

// PackScore ранжирует карточку мастер-пакета: сигналы, усиленные репутацией
// продавца, с поправкой на цену.
func PackScore(l domain.Listing) float64 {
	price := l.Price
	if price < 0 {
		price = 0
	}
	return l.Signals * math.Log(float64(l.SellerFeedback)+1) / math.Sqrt(price+1)
}

// DataWindowLabel строит подпись окна данных по времени вставки карточек
// в восточном времени США; без карточек берётся неделя до now.
func DataWindowLabel(products []domain.Listing, now time.Time) string {
	loc := easternLocation()

	var minT, maxT time.Time
	for _, p := range products {
		if p.InsertedAt.IsZero() {
			continue
		}
		t := p.InsertedAt.In(loc)
		if minT.IsZero() || t.Before(minT) {
			minT = t
		}
		if maxT.IsZero() || t.After(maxT) {
			maxT = t
		}
	}
	if minT.IsZero() {
		maxT = now.In(loc)
		minT = maxT.AddDate(0, 0, -7)
	}
	return minT.Format("Jan 02 2006") + " → " + maxT.Format("Jan 02 2006 03:04 PM MST")
}

func formatGenerated(t time.Time) string {
	return t.In(easternLocation()).Format("January 02, 2006 03:04 PM MST")
}

func easternLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

func providerLabel(provider string) string {
	switch provider {
	case domain.ProviderEbay:
		return "eBay"
	case domain.ProviderAmazon:
		return "Amazon"
	case domain.ProviderAliexpress:
		return "AliExpress"
	}
	if provider == "" {
		return "Marketplace"
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

// acquireLock не допускает параллельную генерацию пакетов.
func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.cfg.LockFile == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.LockFile), 0o755); err != nil {
		return nil, fmt.Errorf("reports: каталог замка: %w", err)
	}
	lock := flock.New(s.cfg.LockFile)
	locked, err := lock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("reports: захват замка: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("reports: генерация уже идёт")
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			s.log.Warn().Err(err).Msg("замок не освобождён")
		}
	}, nil
}

// uploadWeekly выгружает артефакты под ключами latest и датированным и пишет
// artifacts.json. Ошибки выгрузки не валят генерацию: файлы остаются локально.
func (s *Service) uploadWeekly(ctx context.Context, provider string, runStartedAt time.Time, artifacts *domain.ReportArtifacts) {
	if s.store == nil || !s.store.Enabled() {
		return
	}

	manifest := map[string]any{
		"provider":     provider,
		"generated_at": runStartedAt.Format(time.RFC3339),
	}
	upload := func(localPath, extension, contentType string) string {
		if localPath == "" {
			return ""
		}
		latestKey, datedKey := weeklyKeys(provider, extension, runStartedAt)
		url, err := s.store.UploadFile(ctx, localPath, latestKey, contentType)
		if err != nil {
			s.log.Error().Err(err).Str("key", latestKey).Msg("выгрузка артефакта не удалась")
			return ""
		}
		if _, err := s.store.UploadFile(ctx, localPath, datedKey, contentType); err != nil {
			s.log.Warn().Err(err).Str("key", datedKey).Msg("датированная копия не выгружена")
		}
		manifest[extension+"_url"] = url
		return url
	}

	artifacts.PDFURL = upload(artifacts.PDFPath, "pdf", "application/pdf")
	artifacts.CSVURL = upload(artifacts.CSVPath, "csv", "text/csv")
	artifacts.ZipURL = upload(artifacts.ZipPath, "zip", "application/zip")

	if err := writeManifest(s.cfg.OutDir, manifest); err != nil {
		s.log.Error().Err(err).Msg("манифест артефактов не записан")
	}
}

func weeklyKeys(provider, extension string, runStartedAt time.Time) (latest, dated string) {
	prefix := "weekly/" + provider
	latest = fmt.Sprintf("%s/latest.%s", prefix, extension)
	dated = fmt.Sprintf("%s/%s/report.%s", prefix, runStartedAt.Format("2006-01-02"), extension)
	return latest, dated
}

// writeManifest атомарно пишет artifacts.json со ссылками пакета.
func writeManifest(outDir string, artifacts map[string]any) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("reports: каталог манифеста: %w", err)
	}
	data, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return fmt.Errorf("reports: marshal манифеста: %w", err)
	}
	path := filepath.Join(outDir, "artifacts.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("reports: запись манифеста: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("reports: замена манифеста: %w", err)
	}
	return nil
}

// failRun фиксирует неуспешный прогон и возвращает исходную ошибку.
func (s *Service) failRun(ctx context.Context, run domain.ReportRun, err error) error {
	run.Success = false
	run.ErrorMessage = err.Error()
	s.saveRun(ctx, run)
	return err
}

func (s *Service) saveRun(ctx context.Context, run domain.ReportRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SaveReportRun(ctx, run); err != nil {
		s.log.Error().Err(err).Msg("аудит отчёта не сохранён")
	}
}
