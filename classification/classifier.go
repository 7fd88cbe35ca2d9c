package classification

import (
	"strings"

	"catalogserver/normalization"
	"catalogserver/normalization/algorithms"
	"catalogserver/rules"
)

// Result результат классификации одного наименования
type Result struct {
	CategoryCode       string  `json:"category_code"`
	CategoryConfidence float64 `json:"category_confidence"`
	BaseProduct        string  `json:"base_product"`
	BaseConfidence     float64 `json:"base_product_confidence"`
}

// Classifier присваивает категорию и базовый продукт по словарям
// активного набора правил. Ключевые слова словарей стеммируются при
// построении классификатора тем же стеммером, что и наименования,
// поэтому совпадение проверяется по леммам.
type Classifier struct {
	categoryOrder   []string
	categoryEntries map[string][]compiledEntry
	baseOrder       map[string][]string
	baseEntries     map[string]map[string][]compiledBase
}

type compiledEntry struct {
	stems    []string
	polarity rules.Polarity
	weight   int
	scope    rules.Scope
	index    int
}

type compiledBase struct {
	stems    []string
	polarity rules.Polarity
	index    int
}

// Вес CONTEXT-совпадений при расчете уверенности. BASE-признаки
// обязательны, CONTEXT корректирует только уверенность.
const contextConfidenceWeight = 0.5

// NewClassifier компилирует словари версии набора правил
func NewClassifier(rs *rules.Ruleset) *Classifier {
	stemmer := algorithms.NewRussianStemmer()

	c := &Classifier{
		categoryEntries: make(map[string][]compiledEntry),
		baseOrder:       make(map[string][]string),
		baseEntries:     make(map[string]map[string][]compiledBase),
	}

	for i, entry := range rs.CategoryEntries {
		if _, seen := c.categoryEntries[entry.CategoryCode]; !seen {
			c.categoryOrder = append(c.categoryOrder, entry.CategoryCode)
		}
		c.categoryEntries[entry.CategoryCode] = append(c.categoryEntries[entry.CategoryCode], compiledEntry{
			stems:    stemKeyword(stemmer, entry.Keyword),
			polarity: entry.Polarity,
			weight:   entry.Weight,
			scope:    entry.Scope,
			index:    i,
		})
	}

	for i, entry := range rs.BaseProductEntries {
		byProduct, ok := c.baseEntries[entry.CategoryCode]
		if !ok {
			byProduct = make(map[string][]compiledBase)
			c.baseEntries[entry.CategoryCode] = byProduct
		}
		if _, seen := byProduct[entry.BaseProduct]; !seen {
			c.baseOrder[entry.CategoryCode] = append(c.baseOrder[entry.CategoryCode], entry.BaseProduct)
		}
		byProduct[entry.BaseProduct] = append(byProduct[entry.BaseProduct], compiledBase{
			stems:    stemKeyword(stemmer, entry.Keyword),
			polarity: entry.Polarity,
			index:    i,
		})
	}

	return c
}

// Classify определяет категорию и базовый продукт.
// Побеждает категория с максимальным счетом; ничья разрешается
// порядком вставки записей словаря, а не случайно.
func (c *Classifier) Classify(name normalization.TokenizedName) Result {
	var result Result

	bestScore := 0.0
	bestIndex := -1
	var bestConfidence float64
	var secondScore float64

	for _, code := range c.categoryOrder {
		score, firstIndex, confidence, eligible := c.scoreCategory(code, name.Lemmas)
		if !eligible {
			continue
		}
		better := score > bestScore || (score == bestScore && bestIndex >= 0 && firstIndex < bestIndex)
		if better {
			if result.CategoryCode != "" && bestScore > secondScore {
				secondScore = bestScore
			}
			result.CategoryCode = code
			bestScore = score
			bestIndex = firstIndex
			bestConfidence = confidence
		} else if score > secondScore {
			secondScore = score
		}
	}

	if result.CategoryCode == "" {
		return result
	}

	// Штраф за неоднозначность: близкий счет второй категории
	// снижает уверенность в победителе
	if secondScore > 0 && bestScore > 0 {
		ratio := secondScore / bestScore
		if ratio > 1 {
			ratio = 1
		}
		bestConfidence *= 1 - 0.5*ratio
	}
	result.CategoryConfidence = clamp01(bestConfidence)

	result.BaseProduct, result.BaseConfidence = c.classifyBaseProduct(result.CategoryCode, name.Lemmas)
	return result
}

// scoreCategory считает взвешенный счет категории.
// score = Σ(weight × polarity_sign) по совпавшим записям словаря;
// категория участвует в выборе только при совпадении хотя бы одного
// BASE POSITIVE признака и положительном итоговом счете.
func (c *Classifier) scoreCategory(code string, lemmas map[string]bool) (score float64, firstIndex int, confidence float64, eligible bool) {
	firstIndex = -1
	var basePositiveMatched bool
	var matchedPos, matchedNeg float64

	for _, entry := range c.categoryEntries[code] {
		if !lemmasContain(lemmas, entry.stems) {
			continue
		}
		w := float64(entry.weight)
		factor := 1.0
		if entry.scope == rules.ScopeContext {
			factor = contextConfidenceWeight
		}
		if entry.polarity == rules.PolarityPositive {
			score += w
			matchedPos += w * factor
			if entry.scope == rules.ScopeBase {
				basePositiveMatched = true
				if firstIndex < 0 {
					firstIndex = entry.index
				}
			}
		} else {
			score -= w
			matchedNeg += w * factor
		}
	}

	if !basePositiveMatched || score <= 0 {
		return 0, -1, 0, false
	}

	confidence = (matchedPos - matchedNeg) / (matchedPos + matchedNeg)
	return score, firstIndex, clamp01(confidence), true
}

// classifyBaseProduct сопоставляет базовый продукт внутри категории.
// Совпадение NEGATIVE-ключа запрещает продукт независимо от числа
// POSITIVE-совпадений.
func (c *Classifier) classifyBaseProduct(categoryCode string, lemmas map[string]bool) (string, float64) {
	byProduct := c.baseEntries[categoryCode]
	if len(byProduct) == 0 {
		return "", 0
	}

	bestProduct := ""
	bestMatches := 0
	bestIndex := -1
	secondMatches := 0

	for _, product := range c.baseOrder[categoryCode] {
		matches := 0
		firstIndex := -1
		vetoed := false
		for _, entry := range byProduct[product] {
			if !lemmasContain(lemmas, entry.stems) {
				continue
			}
			if entry.polarity == rules.PolarityNegative {
				vetoed = true
				break
			}
			matches++
			if firstIndex < 0 {
				firstIndex = entry.index
			}
		}
		if vetoed || matches == 0 {
			continue
		}
		if matches > bestMatches || (matches == bestMatches && firstIndex < bestIndex) {
			if bestProduct != "" && bestMatches > secondMatches {
				secondMatches = bestMatches
			}
			bestProduct = product
			bestMatches = matches
			bestIndex = firstIndex
		} else if matches > secondMatches {
			secondMatches = matches
		}
	}

	if bestProduct == "" {
		return "", 0
	}

	confidence := 1.0
	if secondMatches > 0 {
		confidence = float64(bestMatches) / float64(bestMatches+secondMatches)
	}
	return bestProduct, clamp01(confidence)
}

// lemmasContain проверяет, что все стемы ключа присутствуют в леммах
func lemmasContain(lemmas map[string]bool, stems []string) bool {
	if len(stems) == 0 {
		return false
	}
	for _, stem := range stems {
		if !lemmas[stem] {
			return false
		}
	}
	return true
}

func stemKeyword(stemmer *algorithms.RussianStemmer, keyword string) []string {
	fields := strings.Fields(strings.ToLower(keyword))
	return stemmer.StemTokens(fields)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
