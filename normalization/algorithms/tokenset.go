package algorithms

// JaccardTokens вычисляет индекс Жаккара для двух множеств токенов.
// Индекс Жаккара = |A ∩ B| / |A ∪ B|, значение от 0.0 до 1.0.
func JaccardTokens(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for elem := range set1 {
		if set2[elem] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// CommonTokens возвращает количество общих токенов двух множеств
func CommonTokens(set1, set2 map[string]bool) int {
	// Итерируем по меньшему множеству
	if len(set2) < len(set1) {
		set1, set2 = set2, set1
	}
	common := 0
	for elem := range set1 {
		if set2[elem] {
			common++
		}
	}
	return common
}

// ToSet превращает срез токенов в множество
func ToSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		if token != "" {
			set[token] = true
		}
	}
	return set
}
