// Package schedule ставит задачи пайплайна в очередь по расписанию:
// дропы несколько раз в день и недельный отчётный пакет.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trenddrop/internal/domain"
)

// ErrInvalidSchedule возвращается при неразборчивом расписании.
var ErrInvalidSchedule = errors.New("schedule: некорректное расписание")

// Slot — время суток в локальном часовом поясе расписания.
type Slot struct {
	Hour   int
	Minute int
}

// Config — настройки планировщика.
type Config struct {
	// TZ — часовой пояс расписания, например America/New_York.
	TZ string
	// DropTimes — времена дропов через запятую, "10:00,17:00".
	DropTimes string
	// ReportWeekday — день недели отчётного пакета, "Monday".
	ReportWeekday string
	// ReportTime — время отчётного пакета, "08:00".
	ReportTime string
}

// Service периодически ставит задачи дропов и отчётов в очередь.
type Service struct {
	queue domain.JobQueue
	clock domain.Clock
	log   zerolog.Logger

	loc           *time.Location
	dropSlots     []Slot
	reportWeekday time.Weekday
	reportSlot    Slot
}

// NewService разбирает расписание и создаёт планировщик.
func NewService(queue domain.JobQueue, clock domain.Clock, cfg Config, logger zerolog.Logger) (*Service, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("schedule: часовой пояс %q: %w", cfg.TZ, err)
	}
	dropSlots, err := ParseSlots(cfg.DropTimes)
	if err != nil {
		return nil, err
	}
	weekday, err := ParseWeekday(cfg.ReportWeekday)
	if err != nil {
		return nil, err
	}
	reportSlot, err := ParseSlot(cfg.ReportTime)
	if err != nil {
		return nil, err
	}
	return &Service{
		queue:         queue,
		clock:         clock,
		log:           logger.With().Str("component", "schedule").Logger(),
		loc:           loc,
		dropSlots:     dropSlots,
		reportWeekday: weekday,
		reportSlot:    reportSlot,
	}, nil
}

// ParseSlot разбирает время вида "10:00".
func ParseSlot(raw string) (Slot, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return Slot{}, fmt.Errorf("%w: время %q", ErrInvalidSchedule, raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Slot{}, fmt.Errorf("%w: час %q", ErrInvalidSchedule, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Slot{}, fmt.Errorf("%w: минута %q", ErrInvalidSchedule, raw)
	}
	return Slot{Hour: hour, Minute: minute}, nil
}

// ParseSlots разбирает список времён через запятую: "10:00,17:00".
func ParseSlots(raw string) ([]Slot, error) {
	var slots []Slot
	for _, piece := range strings.Split(raw, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		slot, err := ParseSlot(piece)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: пустой список времён %q", ErrInvalidSchedule, raw)
	}
	return slots, nil
}

// ParseWeekday разбирает английское название дня недели.
func ParseWeekday(raw string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: день недели %q", ErrInvalidSchedule, raw)
}

// NextDrop возвращает ближайшее время дропа строго после now.
func (s *Service) NextDrop(now time.Time) time.Time {
	local := now.In(s.loc)
	var best time.Time
	for day := 0; day <= 1; day++ {
		base := local.AddDate(0, 0, day)
		for _, slot := range s.dropSlots {
			candidate := time.Date(base.Year(), base.Month(), base.Day(), slot.Hour, slot.Minute, 0, 0, s.loc)
			if !candidate.After(now) {
				continue
			}
			if best.IsZero() || candidate.Before(best) {
				best = candidate
			}
		}
	}
	return best
}

// NextReport возвращает ближайший недельный слот отчёта строго после now.
func (s *Service) NextReport(now time.Time) time.Time {
	local := now.In(s.loc)
	for day := 0; day <= 7; day++ {
		base := local.AddDate(0, 0, day)
		if base.Weekday() != s.reportWeekday {
			continue
		}
		candidate := time.Date(base.Year(), base.Month(), base.Day(), s.reportSlot.Hour, s.reportSlot.Minute, 0, 0, s.loc)
		if candidate.After(now) {
			return candidate
		}
	}
	// Недостижимо: в окне из восьми дней нужный день недели встречается дважды.
	return local.AddDate(0, 0, 7)
}

// Run крутит цикл планировщика до отмены контекста.
func (s *Service) Run(ctx context.Context) error {
	for {
		now := s.clock.Now()
		nextDrop := s.NextDrop(now)
		nextReport := s.NextReport(now)

		next := nextDrop
		isReport := false
		if nextReport.Before(nextDrop) {
			next = nextReport
			isReport = true
		}
		s.log.Info().Time("next", next).Bool("report", isReport).Msg("ожидание слота")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if isReport {
			s.enqueueAll(ctx, ReportJobs(s.clock.Now()))
		} else {
			s.enqueueAll(ctx, []domain.Job{DropJobAt(s.clock.Now())})
		}
	}
}

// DropJobAt строит плановую задачу дропа во все каналы.
func DropJobAt(now time.Time) domain.Job {
	return domain.Job{
		ID:          uuid.NewString(),
		Kind:        domain.JobKindDrop,
		Cause:       domain.JobCauseScheduled,
		RequestedAt: now.UTC(),
		Drop:        &domain.DropJob{},
	}
}

// ReportJobs строит плановый набор отчётных задач: недельные пакеты по всем
// маркетплейсам, кросс-маркет мастер-пакет и бесплатный сэмпл.
func ReportJobs(now time.Time) []domain.Job {
	packs := []domain.ReportJob{
		{Provider: domain.ProviderEbay, Mode: "weekly"},
		{Provider: domain.ProviderAmazon, Mode: "weekly"},
		{Provider: domain.ProviderAliexpress, Mode: "weekly"},
		{Mode: "master"},
		{Mode: "sample"},
	}
	jobs := make([]domain.Job, 0, len(packs))
	for _, pack := range packs {
		pack := pack
		jobs = append(jobs, domain.Job{
			ID:          uuid.NewString(),
			Kind:        domain.JobKindReport,
			Cause:       domain.JobCauseScheduled,
			RequestedAt: now.UTC(),
			Report:      &pack,
		})
	}
	return jobs
}

func (s *Service) enqueueAll(ctx context.Context, jobs []domain.Job) {
	for _, job := range jobs {
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("задача не поставлена")
			continue
		}
		s.log.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("задача поставлена")
	}
}
