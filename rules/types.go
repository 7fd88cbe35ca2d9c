package rules

import "time"

// Polarity полярность ключевого слова в словаре
type Polarity string

const (
	PolarityPositive Polarity = "POSITIVE"
	PolarityNegative Polarity = "NEGATIVE"
)

// Scope область действия ключевого слова категории
type Scope string

const (
	// ScopeBase базовые признаки: без хотя бы одного совпадения категория не присваивается
	ScopeBase Scope = "BASE"
	// ScopeContext контекстные признаки: корректируют только уверенность
	ScopeContext Scope = "CONTEXT"
)

// Severity строгость глобального правила качества
type Severity string

const (
	SeverityHidden  Severity = "HIDDEN"
	SeverityInvalid Severity = "INVALID"
)

// DictionaryEntry запись словаря категорий
type DictionaryEntry struct {
	RulesetID    int64    `json:"ruleset_id"`
	CategoryCode string   `json:"category_code"`
	Keyword      string   `json:"keyword"`
	Polarity     Polarity `json:"polarity"`
	Weight       int      `json:"weight"`
	Scope        Scope    `json:"scope"`
}

// BaseProductEntry запись словаря базовых продуктов.
// В отличие от словаря категорий не имеет веса: только полярность,
// причем NEGATIVE-совпадение запрещает базовый продукт целиком.
type BaseProductEntry struct {
	RulesetID    int64    `json:"ruleset_id"`
	CategoryCode string   `json:"category_code"`
	BaseProduct  string   `json:"base_product"`
	Keyword      string   `json:"keyword"`
	Polarity     Polarity `json:"polarity"`
}

// TokenAlias отображение сырого токена в канонический для семантического поля
type TokenAlias struct {
	Field          string `json:"field"`
	RawToken       string `json:"raw_token"`
	CanonicalToken string `json:"canonical_token"`
}

// QualityRule глобальное правило качества.
// Payload хранит параметры правила (пороги, списки полей) и
// интерпретируется универсальным вычислителем в пакете quality:
// новые правила добавляются данными, а не кодом.
type QualityRule struct {
	Code     string         `json:"code"`
	Severity Severity       `json:"severity"`
	Payload  map[string]any `json:"payload"`
}

// Ruleset версия набора правил. Наборы неизменяемы после создания:
// любое изменение словарей порождает новую версию, активной может быть
// только одна версия. Архивные версии остаются доступными для аудита.
type Ruleset struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`

	// Порядок записей фиксирован порядком вставки: он участвует
	// в детерминированном разрешении ничьих при классификации.
	CategoryEntries    []DictionaryEntry  `json:"category_entries"`
	BaseProductEntries []BaseProductEntry `json:"base_product_entries"`
	Aliases            []TokenAlias       `json:"aliases"`
	QualityRules       []QualityRule      `json:"quality_rules"`
}

// RulesetInfo краткое описание версии набора правил для инспекции
type RulesetInfo struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	CreatedAt         time.Time `json:"created_at"`
	Active            bool      `json:"active"`
	CategoryKeywords  int       `json:"category_keywords"`
	BaseKeywords      int       `json:"base_product_keywords"`
	Aliases           int       `json:"aliases"`
	QualityRulesCount int       `json:"quality_rules"`
}

// QualityRuleByCode возвращает правило качества по коду
func (rs *Ruleset) QualityRuleByCode(code string) (QualityRule, bool) {
	for _, qr := range rs.QualityRules {
		if qr.Code == code {
			return qr, true
		}
	}
	return QualityRule{}, false
}
