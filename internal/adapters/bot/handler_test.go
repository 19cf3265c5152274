package bot

import (
	"testing"
	"time"

	"trenddrop/internal/domain"
)

func TestNormalizeDropScope(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{"", "broadcast", true},
		{"public", "public", true},
		{"  PAID  ", "paid", true},
		{"all", "all", true},
		{"dm", "dm", true},
		{"vip", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeDropScope(c.input)
		if ok != c.ok || got != c.want {
			t.Errorf("normalizeDropScope(%q) = (%q, %v), ожидалось (%q, %v)", c.input, got, ok, c.want, c.ok)
		}
	}
}

func TestBuildReportJob(t *testing.T) {
	job, ok := buildReportJob("ebay")
	if !ok || job.Provider != domain.ProviderEbay || job.Mode != "weekly" {
		t.Fatalf("отчёт по провайдеру разобран неверно: %+v", job)
	}
	job, ok = buildReportJob(" MASTER ")
	if !ok || job.Mode != "master" || job.Provider != "" {
		t.Fatalf("мастер-режим разобран неверно: %+v", job)
	}
	job, ok = buildReportJob("sample")
	if !ok || job.Mode != "sample" {
		t.Fatalf("сэмпл разобран неверно: %+v", job)
	}
	if _, ok := buildReportJob("etsy"); ok {
		t.Fatal("неизвестный аргумент должен отклоняться")
	}
}

func TestTakePendingDrop(t *testing.T) {
	h := &Handler{pendingDrop: map[int64]pendingDrop{
		42: {scope: "public", requestedAt: time.Now()},
		43: {scope: "paid", requestedAt: time.Now().Add(-confirmTTL - time.Minute)},
	}}

	pending, ok := h.takePendingDrop(42)
	if !ok || pending.scope != "public" {
		t.Fatalf("свежее подтверждение должно возвращаться: %+v, %v", pending, ok)
	}
	if _, ok := h.takePendingDrop(42); ok {
		t.Fatal("повторное подтверждение должно отклоняться")
	}
	if _, ok := h.takePendingDrop(43); ok {
		t.Fatal("просроченное подтверждение должно игнорироваться")
	}
	if _, ok := h.takePendingDrop(99); ok {
		t.Fatal("подтверждение без запроса должно отклоняться")
	}
}
