package marketsource

import "trenddrop/internal/domain"

// Запросы по умолчанию на случай, когда трендовые темы недоступны.
var seedQueries = map[string][]string{
	domain.ProviderEbay: {
		"home fitness",
		"kitchen gadgets",
		"collectible cards",
		"office desk",
		"retro electronics",
	},
	domain.ProviderAmazon: {
		"smart home gadgets",
		"desk accessories",
		"travel essentials",
		"phone accessories",
		"gaming gear",
	},
	domain.ProviderAliexpress: {
		"smartwatch",
		"wireless earbuds",
		"usb hub",
		"led strip lights",
		"pet grooming",
	},
}

// SeedQueries возвращает запросы по умолчанию для маркетплейса.
func SeedQueries(provider string) []string {
	seeds := seedQueries[provider]
	out := make([]string, len(seeds))
	copy(out, seeds)
	return out
}
