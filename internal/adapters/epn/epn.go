// Package epn добавляет трекинговые параметры eBay Partner Network
// прямо в URL товара, без rover-редиректа.
package epn

import (
	"net/url"
)

const (
	rotationID = "711-53200-19255-0"
	toolID     = "10001"

	defaultCustomID = "trenddrop"
	customIDMaxLen  = 64
)

// Wrapper подмешивает партнёрские параметры кампании в ссылки.
type Wrapper struct {
	campaignID string
}

// NewWrapper создаёт обёртку. Пустой campaignID отключает трекинг:
// ссылки возвращаются без изменений.
func NewWrapper(campaignID string) *Wrapper {
	return &Wrapper{campaignID: campaignID}
}

// Wrap возвращает URL с партнёрскими параметрами. Неразбираемый URL
// возвращается как есть.
func (w *Wrapper) Wrap(rawURL, customID string) string {
	if w.campaignID == "" || rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if customID == "" {
		customID = defaultCustomID
	}
	if len(customID) > customIDMaxLen {
		customID = customID[:customIDMaxLen]
	}

	query := u.Query()
	query.Set("mkcid", "1")
	query.Set("mkrid", rotationID)
	query.Set("mkevt", "1")
	query.Set("campid", w.campaignID)
	query.Set("customid", customID)
	query.Set("toolid", toolID)
	u.RawQuery = query.Encode()
	return u.String()
}
