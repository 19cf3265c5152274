package curation

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"trenddrop/internal/domain"
)

var (
	conditionWordsRe = regexp.MustCompile(`\b(new|brand new|used|very good|good|acceptable|like new|hardcover|paperback|good condition|very good condition|for your|for yo|for you)\b`)
	nonAlnumRe       = regexp.MustCompile(`[^a-z0-9]+`)
	spacesRe         = regexp.MustCompile(`\s+`)
)

const titleKeyMaxLen = 80

// CanonicalTitleKey нормализует заголовок так, чтобы почти-дубликаты схлопывались
// в один ключ: нижний регистр, без маркетинговых слов о состоянии, только буквы и цифры.
func CanonicalTitleKey(title string) string {
	if title == "" {
		return ""
	}
	t := strings.ToLower(title)
	t = conditionWordsRe.ReplaceAllString(t, " ")
	t = nonAlnumRe.ReplaceAllString(t, " ")
	t = strings.TrimSpace(spacesRe.ReplaceAllString(t, " "))
	if len(t) > titleKeyMaxLen {
		t = t[:titleKeyMaxLen]
	}
	return t
}

// CanonicalizeURL приводит URL к стабильной идентичности карточки:
// scheme://host/path без query и fragment. Партнёрские и трекинговые параметры
// различаются между заходами на один и тот же товар, поэтому отбрасываются.
// Неразборчивый вход возвращается как есть (после TrimSpace).
func CanonicalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(parsed.Host)
	return scheme + "://" + host + parsed.Path
}

// DedupeKey строит ключ дедупликации из канонического URL.
// Пустой канонический URL даёт пустой ключ; пустой ключ — это «личность неизвестна»,
// он никогда не считается совпадением с другим пустым ключом.
func DedupeKey(canonicalURL string) string {
	if canonicalURL == "" {
		return ""
	}
	sum := md5.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// TopicKey возвращает тему карточки для контроля разнообразия:
// keyword, иначе первый тег, иначе "other".
func TopicKey(l domain.Listing) string {
	if k := strings.ToLower(strings.TrimSpace(l.Keyword)); k != "" {
		return k
	}
	if len(l.Tags) > 0 {
		if t := strings.ToLower(strings.TrimSpace(l.Tags[0])); t != "" {
			return t
		}
	}
	return "other"
}

// SellerIdentifier возвращает идентификатор продавца для схлопывания дубликатов.
func SellerIdentifier(l domain.Listing) string {
	if l.SellerUsername != "" {
		return l.SellerUsername
	}
	return l.SellerID
}

// SellerKey возвращает личность продавца для контроля разнообразия:
// имя продавца, иначе хост URL, иначе "unknown". Карточки без имени и без
// разборчивого URL намеренно попадают в один общий бакет.
func SellerKey(l domain.Listing) string {
	if su := strings.ToLower(strings.TrimSpace(l.SellerUsername)); su != "" {
		return su
	}
	if u := strings.TrimSpace(l.URL); u != "" {
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			return strings.ToLower(parsed.Host)
		}
	}
	return "unknown"
}
