package curation

import "trenddrop/internal/domain"

// SelectWithVariety выбирает из отсортированного по убыванию скора списка не более
// limit карточек так, чтобы ни одна тема не встречалась чаще maxPerKeyword раз,
// а число различных тем по возможности достигало minUniqueKeywords.
//
// Три прохода: жадный набор с ограничением на тему, затем обмен многотемных
// пиков на кандидатов из невиданных тем, затем добор до limit под теми же
// ограничениями. Функция всегда завершается и не ошибается: limit <= 0 или
// пустой вход дают пустой результат.
func SelectWithVariety(scored []domain.Listing, limit, maxPerKeyword, minUniqueKeywords int) []domain.Listing {
	if limit <= 0 || len(scored) == 0 {
		return nil
	}
	if maxPerKeyword < 1 {
		maxPerKeyword = 1
	}
	if minUniqueKeywords < 1 {
		minUniqueKeywords = 1
	}
	targetUnique := minUniqueKeywords
	if targetUnique > limit {
		targetUnique = limit
	}

	var pickedIdx []int
	counts := make(map[string]int)
	inPick := make(map[int]bool)

	for i := range scored {
		if len(pickedIdx) >= limit {
			break
		}
		k := TopicKey(scored[i])
		if counts[k] >= maxPerKeyword {
			continue
		}
		pickedIdx = append(pickedIdx, i)
		inPick[i] = true
		counts[k]++
	}
	if len(pickedIdx) == 0 {
		return nil
	}

	uniqCount := func() int { return len(counts) }

	if uniqCount() < targetUnique {
		existing := make(map[string]bool, len(counts))
		for k := range counts {
			existing[k] = true
		}
		var fresh []int
		for i := range scored {
			if !existing[TopicKey(scored[i])] {
				fresh = append(fresh, i)
			}
		}

		next := 0
		for uniqCount() < targetUnique && next < len(fresh) {
			candidate := fresh[next]
			candKey := TopicKey(scored[candidate])

			// Ищем с конца пик, чья тема представлена больше одного раза:
			// его можно убрать, не теряя тему совсем.
			removable := -1
			for j := len(pickedIdx) - 1; j >= 0; j-- {
				if counts[TopicKey(scored[pickedIdx[j]])] > 1 {
					removable = j
					break
				}
			}
			if removable == -1 {
				break
			}

			removed := pickedIdx[removable]
			remKey := TopicKey(scored[removed])
			pickedIdx = append(pickedIdx[:removable], pickedIdx[removable+1:]...)
			delete(inPick, removed)
			counts[remKey]--
			if counts[remKey] <= 0 {
				delete(counts, remKey)
			}

			pickedIdx = append(pickedIdx, candidate)
			inPick[candidate] = true
			counts[candKey]++
			existing[candKey] = true
			next++
		}
	}

	if len(pickedIdx) < limit {
		for i := range scored {
			if len(pickedIdx) >= limit {
				break
			}
			if inPick[i] {
				continue
			}
			k := TopicKey(scored[i])
			if counts[k] >= maxPerKeyword {
				continue
			}
			pickedIdx = append(pickedIdx, i)
			inPick[i] = true
			counts[k]++
		}
	}

	out := make([]domain.Listing, 0, len(pickedIdx))
	for _, i := range pickedIdx {
		out = append(out, scored[i])
	}
	return out
}

// EnforceSellerDiversity оставляет не более maxPerSeller карточек на продавца,
// проходя вход по порядку.
func EnforceSellerDiversity(listings []domain.Listing, maxPerSeller int) []domain.Listing {
	if maxPerSeller < 1 {
		maxPerSeller = 1
	}
	counts := make(map[string]int)
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		sk := SellerKey(l)
		if counts[sk] >= maxPerSeller {
			continue
		}
		out = append(out, l)
		counts[sk]++
	}
	return out
}

// TopUpPicks добирает picks до limit из пула pool (в порядке пула), соблюдая
// ограничение на продавца. Используется после EnforceSellerDiversity, которая
// могла опустить выборку ниже лимита.
func TopUpPicks(picks, pool []domain.Listing, limit, maxPerSeller int) []domain.Listing {
	if len(picks) >= limit {
		return picks
	}
	if maxPerSeller < 1 {
		maxPerSeller = 1
	}
	counts := make(map[string]int)
	have := make(map[string]bool, len(picks))
	for _, p := range picks {
		counts[SellerKey(p)]++
		have[p.ID+"|"+p.URL] = true
	}
	for _, p := range pool {
		if len(picks) >= limit {
			break
		}
		if have[p.ID+"|"+p.URL] {
			continue
		}
		sk := SellerKey(p)
		if counts[sk] >= maxPerSeller {
			continue
		}
		picks = append(picks, p)
		counts[sk]++
		have[p.ID+"|"+p.URL] = true
	}
	return picks
}
