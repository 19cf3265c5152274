package report

import (
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"trenddrop/internal/domain"
)

// PDFWriter строит табличные PDF-отчёты.
// Базовые шрифты PDF не содержат глифов звёзд, поэтому при отсутствии
// UTF-8 шрифта звёзды транслитерируются в ASCII.
type PDFWriter struct {
	fontPath string
}

// NewPDFWriter создаёт генератор PDF. fontPath — путь к UTF-8 TTF-шрифту
// (например DejaVuSans.ttf); пустой путь включает ASCII-замену звёзд.
func NewPDFWriter(fontPath string) *PDFWriter {
	return &PDFWriter{fontPath: fontPath}
}

const (
	pdfMarginLeft = 12.0
	pdfMarginTop  = 16.0
	rowHeight     = 6.0
)

// WriteTable рендерит отчёт: заголовок, подзаголовки, полосатая таблица
// с колонкой-ссылкой на товар и футером "Page N of M • label".
func (w *PDFWriter) WriteTable(path, title string, subtitleLines []string, columns []Column, listings []domain.Listing) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pdfMarginLeft, pdfMarginTop, pdfMarginLeft)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("")

	unicodeFont := false
	fontName := "Helvetica"
	if w.fontPath != "" {
		pdf.AddUTF8Font("ReportSans", "", w.fontPath)
		if pdf.Err() {
			pdf.ClearError()
		} else {
			unicodeFont = true
			fontName = "ReportSans"
		}
	}

	footerLabel := title
	if footerLabel == "" {
		footerLabel = "TrendDrop Report"
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(fontName, "", 8)
		pdf.SetTextColor(0x66, 0x66, 0x66)
		text := fmt.Sprintf("Page %d of {nb} • %s", pdf.PageNo(), footerLabel)
		if !unicodeFont {
			text = asciiFallback(text)
		}
		pdf.CellFormat(0, 8, text, "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	boldStyle := "B"
	if unicodeFont {
		// У однофайлового UTF-8 шрифта нет отдельного жирного начертания.
		boldStyle = ""
	}

	if title != "" {
		pdf.SetFont(fontName, boldStyle, 18)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 10, w.text(title, unicodeFont), "", 1, "C", false, 0, "")
		pdf.SetFont(fontName, "", 9)
		pdf.SetTextColor(0x66, 0x66, 0x66)
		for _, line := range subtitleLines {
			pdf.CellFormat(0, 5, w.text(line, unicodeFont), "", 1, "C", false, 0, "")
		}
		pdf.Ln(3)
	}

	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMarginLeft
	widths := columnWidths(columns, usable)

	// Шапка таблицы.
	pdf.SetFont(fontName, boldStyle, 9)
	pdf.SetFillColor(0xE6, 0xE6, 0xE6)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetDrawColor(0x9E, 0x9E, 0x9E)
	for i, col := range columns {
		pdf.CellFormat(widths[i], rowHeight+1, w.text(col.Label, unicodeFont), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(fontName, "", 8)
	for rowIdx, l := range listings {
		if rowIdx%2 == 1 {
			pdf.SetFillColor(0xF5, 0xF5, 0xF5)
		} else {
			pdf.SetFillColor(0xFF, 0xFF, 0xFF)
		}
		for i, col := range columns {
			value := w.text(columnValue(l, col.Key), unicodeFont)
			align := "C"
			link := ""
			if col.Key == "title" {
				align = "L"
				link = l.URL
				value = truncateToWidth(pdf, value, widths[i]-2)
			}
			pdf.CellFormat(widths[i], rowHeight, value, "1", 0, align, true, 0, link)
		}
		pdf.Ln(-1)
	}

	return pdf.OutputFileAndClose(path)
}

func (w *PDFWriter) text(s string, unicodeFont bool) string {
	if unicodeFont {
		return s
	}
	return asciiFallback(s)
}

// asciiFallback заменяет глифы, отсутствующие в cp1252-шрифтах.
func asciiFallback(s string) string {
	replacer := strings.NewReplacer(
		"★", "*",
		"☆", "-",
		"→", "->",
		"•", "-",
		"—", "-",
		"·", "-",
	)
	return replacer.Replace(s)
}

// columnWidths отдаёт заголовку всё место, оставшееся от фиксированных колонок.
func columnWidths(columns []Column, usable float64) []float64 {
	fixed := map[string]float64{
		"provider":        24,
		"price":           20,
		"currency":        18,
		"seller_feedback": 26,
		"signals":         20,
	}
	widths := make([]float64, len(columns))
	rest := usable
	titleIdx := -1
	for i, col := range columns {
		if width, ok := fixed[col.Key]; ok {
			widths[i] = width
			rest -= width
			continue
		}
		titleIdx = i
	}
	if titleIdx >= 0 {
		widths[titleIdx] = rest
	}
	return widths
}

func truncateToWidth(pdf *fpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 1 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
