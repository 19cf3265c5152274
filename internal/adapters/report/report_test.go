package report

import (
	"archive/zip"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"trenddrop/internal/domain"
)

func TestSellerFBStars(t *testing.T) {
	cases := []struct {
		feedback int
		want     string
	}{
		{150_000, "★★★★★"},
		{100_000, "★★★★★"},
		{60_000, "★★★★☆"},
		{15_000, "★★★☆☆"},
		{2_000, "★★☆☆☆"},
		{500, "★☆☆☆☆"},
		{0, "★☆☆☆☆"},
	}
	for _, c := range cases {
		if got := SellerFBStars(c.feedback); got != c.want {
			t.Errorf("SellerFBStars(%d) = %q, ожидалось %q", c.feedback, got, c.want)
		}
	}
}

func TestColumnValue(t *testing.T) {
	l := domain.Listing{
		Title:          "• Desk Lamp",
		Price:          19.9,
		Currency:       "",
		SellerFeedback: 12000,
		Signals:        3.456,
		Provider:       "aliexpress",
	}
	if got := columnValue(l, "title"); got != "Desk Lamp" {
		t.Fatalf("маркер списка должен сниматься: %q", got)
	}
	if got := columnValue(l, "price"); got != "19.90" {
		t.Fatalf("цена форматируется с двумя знаками: %q", got)
	}
	if got := columnValue(l, "currency"); got != "USD" {
		t.Fatalf("пустая валюта должна давать USD: %q", got)
	}
	if got := columnValue(l, "signals"); got != "3.46" {
		t.Fatalf("сигналы форматируются с двумя знаками: %q", got)
	}
	if got := columnValue(l, "provider"); got != "AliExpress" {
		t.Fatalf("метка провайдера неверна: %q", got)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly.csv")
	listings := []domain.Listing{
		{Title: "Lamp", Price: 10, Currency: "USD", SellerFeedback: 2000, Signals: 1},
		{Title: "Fan", Price: 25.5, Currency: "USD", SellerFeedback: 200, Signals: 2},
	}
	if err := WriteCSV(path, WeeklyColumns, listings); err != nil {
		t.Fatalf("CSV не записан: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("CSV не открыт: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("CSV не разобран: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ожидалось 3 строки с шапкой, получено %d", len(rows))
	}
	if rows[0][3] != "Seller FB" {
		t.Fatalf("шапка неверна: %v", rows[0])
	}
	if rows[1][3] != "★★☆☆☆" {
		t.Fatalf("отзывы должны рендериться звёздами: %q", rows[1][3])
	}
}

func TestWritePDFTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly.pdf")
	listings := []domain.Listing{
		{Title: "Desk Lamp Extra Long Title That Should Be Truncated To Fit The Column Width Of The Table", URL: "https://e.com/1", Price: 19.99, Currency: "USD", SellerFeedback: 120000, Signals: 4.2},
		{Title: "Fan", Price: 25.5, Currency: "USD", SellerFeedback: 200, Signals: 2},
	}
	w := NewPDFWriter("")
	err := w.WriteTable(path, "Top 50 Trending eBay Products — Weekly Report",
		[]string{"Generated: Feb 10 2026", "Data window: Feb 03 2026 → Feb 10 2026 03:00 PM EST"},
		WeeklyColumns, listings)
	if err != nil {
		t.Fatalf("PDF не записан: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("PDF пуст или отсутствует: %v", err)
	}
}

func TestWriteZipSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "a.pdf")
	if err := os.WriteFile(pdf, []byte("pdf"), 0o644); err != nil {
		t.Fatalf("не удалось создать файл: %v", err)
	}

	zipPath := filepath.Join(dir, "pack.zip")
	err := WriteZip(zipPath, map[string]string{
		"ebay_weekly.pdf": pdf,
		"ebay_weekly.csv": filepath.Join(dir, "missing.csv"),
	})
	if err != nil {
		t.Fatalf("архив не собран: %v", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("архив не открыт: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "ebay_weekly.pdf" {
		t.Fatalf("в архиве ожидался только PDF: %+v", zr.File)
	}
}
