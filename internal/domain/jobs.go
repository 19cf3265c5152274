package domain

import (
	"context"
	"time"
)

// JobCause описывает источник постановки задачи.
type JobCause string

const (
	// JobCauseManual — задача поставлена оператором вручную.
	JobCauseManual JobCause = "manual"
	// JobCauseScheduled — задача поставлена планировщиком.
	JobCauseScheduled JobCause = "scheduled"
)

// JobKind — тип задачи в очереди.
type JobKind string

const (
	// JobKindDrop — скрейп тем и публикация подборки в каналы.
	JobKindDrop JobKind = "drop"
	// JobKindReport — генерация отчётного пакета.
	JobKindReport JobKind = "report"
)

// DropJob описывает задачу на публикацию подборки.
type DropJob struct {
	Scope        string   `json:"scope"`
	Topics       []string `json:"topics,omitempty"`
	PerPage      int      `json:"per_page,omitempty"`
	Picks        int      `json:"picks,omitempty"`
	PublishLimit int      `json:"publish_limit,omitempty"`
}

// ReportJob описывает задачу на генерацию отчёта.
type ReportJob struct {
	// Provider пуст для мастер-пакета по всем маркетплейсам.
	Provider string `json:"provider,omitempty"`
	// Mode: weekly, master или sample.
	Mode string `json:"mode"`
}

// Job — конверт задачи в очереди.
type Job struct {
	ID          string     `json:"job_id"`
	Kind        JobKind    `json:"kind"`
	Cause       JobCause   `json:"cause"`
	RequestedAt time.Time  `json:"requested_at"`
	Drop        *DropJob   `json:"drop,omitempty"`
	Report      *ReportJob `json:"report,omitempty"`
}

// JobQueue описывает очередь задач пайплайна.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	Receive(ctx context.Context) (Job, AckFunc, error)
}

// AckFunc подтверждает обработку или возвращает задачу в очередь.
type AckFunc func(success bool) error

// JobStatusRepo отвечает за идемпотентную обработку задач.
type JobStatusRepo interface {
	// EnsureJob регистрирует попытку обработки и возвращает признак завершённости
	// и номер текущей попытки.
	EnsureJob(jobID string) (done bool, attempt int, err error)
	// MarkJobDone помечает задачу как окончательно обработанную.
	MarkJobDone(jobID string) error
}
