package quality

import (
	"strings"
	"unicode"

	"catalogserver/catalog"
	"catalogserver/extractors"
	"catalogserver/rules"
)

// Коды глобальных правил качества
const (
	RuleJunkName              = "JUNK_NAME"
	RuleLowParseConfidence    = "LOW_PARSE_CONFIDENCE"
	RuleLowCategoryConfidence = "LOW_CATEGORY_CONFIDENCE"
	RuleMissingMustFields     = "MISSING_MUST_FIELDS"
	RuleNegativeOrZeroValues  = "NEGATIVE_OR_ZERO_VALUES"
	RuleInvalidRange          = "INVALID_RANGE"
	RulePriceRequired         = "PRICE_REQUIRED"
	RulePriceNormRequired     = "PRICE_NORMALIZATION_REQUIRED"
	RulePitConflict           = "PIT_CONFLICT"
	RuleSkinConflict          = "SKIN_CONFLICT"
	RuleRawBoiledConflict     = "RAW_BOILED_CONFLICT"
	RuleStateConflict         = "STATE_CONFLICT"
)

// checkFunc проверка одного правила: true, если правило сработало
type checkFunc func(payload map[string]any, item *catalog.SupplierItem) bool

// Evaluator универсальный вычислитель правил качества. Правила берутся
// из активного набора как данные (код, строгость, параметры), поэтому
// добавление правила с известным кодом не требует изменений в пайплайне.
type Evaluator struct {
	activeRules []rules.QualityRule
	checks      map[string]checkFunc
}

// NewEvaluator создает вычислитель для версии набора правил
func NewEvaluator(rs *rules.Ruleset) *Evaluator {
	return &Evaluator{
		activeRules: rs.QualityRules,
		checks: map[string]checkFunc{
			RuleJunkName:              checkJunkName,
			RuleLowParseConfidence:    checkLowParseConfidence,
			RuleLowCategoryConfidence: checkLowCategoryConfidence,
			RuleMissingMustFields:     checkMissingMustFields,
			RuleNegativeOrZeroValues:  checkNegativeOrZero,
			RuleInvalidRange:          checkInvalidRange,
			RulePriceRequired:         checkPriceRequired,
			RulePriceNormRequired:     checkPriceNormalization,
			RulePitConflict:           conflictCheck(extractors.FieldPitFlag),
			RuleSkinConflict:          conflictCheck(extractors.FieldSkinFlag),
			RuleRawBoiledConflict:     conflictCheck(extractors.FieldProcessingState),
			RuleStateConflict:         conflictCheck(extractors.FieldState),
		},
	}
}

// Apply применяет правила качества по порядку и выставляет диспозицию.
// Приоритет строгости: INVALID > HIDDEN > OK. Сработавшие правила
// записываются в коды причин; скрытые и невалидные записи сохраняются
// для отчетности, а не удаляются.
//
// Побочный эффект: до проверок вычисляется приведенная цена позиции,
// от которой зависит правило PRICE_NORMALIZATION_REQUIRED.
func (e *Evaluator) Apply(item *catalog.SupplierItem) {
	if item.Parsed == nil {
		return
	}

	item.PricePerBaseUnit = item.ComputePricePerBaseUnit()

	var anyInvalid, anyHidden bool
	for _, rule := range e.activeRules {
		check, known := e.checks[rule.Code]
		if !known {
			// Неизвестный код в данных не роняет прогон: правило
			// игнорируется, это ошибка авторинга набора
			continue
		}
		if !check(rule.Payload, item) {
			continue
		}
		item.Parsed.ReasonCodes = append(item.Parsed.ReasonCodes, rule.Code)
		switch rule.Severity {
		case rules.SeverityInvalid:
			anyInvalid = true
		case rules.SeverityHidden:
			anyHidden = true
		}
	}

	switch {
	case anyInvalid:
		item.Parsed.Disposition = catalog.DispositionInvalid
	case anyHidden:
		item.Parsed.Disposition = catalog.DispositionHidden
	default:
		item.Parsed.Disposition = catalog.DispositionOK
	}
}

// checkJunkName мусорное наименование: слишком короткое, слишком
// много цифр или слишком мало словесных токенов
func checkJunkName(payload map[string]any, item *catalog.SupplierItem) bool {
	minLength := intParam(payload, "min_length", 4)
	maxDigitRatio := floatParam(payload, "max_digit_ratio", 0.5)
	minWordTokens := intParam(payload, "min_word_tokens", 1)

	name := strings.TrimSpace(item.RawName)
	runes := []rune(name)
	if len(runes) < minLength {
		return true
	}

	digits, letters := 0, 0
	for _, r := range runes {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if digits+letters > 0 && float64(digits)/float64(digits+letters) > maxDigitRatio {
		return true
	}

	words := 0
	for _, field := range strings.Fields(name) {
		if strings.IndexFunc(field, unicode.IsLetter) >= 0 {
			words++
		}
	}
	return words < minWordTokens
}

func checkLowParseConfidence(payload map[string]any, item *catalog.SupplierItem) bool {
	return item.Parsed.ParseConfidence < floatParam(payload, "threshold", 0.4)
}

func checkLowCategoryConfidence(payload map[string]any, item *catalog.SupplierItem) bool {
	return item.Parsed.CategoryConfidence < floatParam(payload, "threshold", 0.3)
}

// checkMissingMustFields строгая категория без распознанного базового
// продукта (must_mode=ALWAYS)
func checkMissingMustFields(_ map[string]any, item *catalog.SupplierItem) bool {
	if item.Parsed.CategoryCode == "" {
		return false
	}
	return rules.CategoryMustMode(item.Parsed.CategoryCode) == rules.MustModeAlways &&
		item.Parsed.BaseProduct == ""
}

// checkNegativeOrZero любое из настроенных числовых полей <= 0
func checkNegativeOrZero(payload map[string]any, item *catalog.SupplierItem) bool {
	fields := stringsParam(payload, "fields",
		[]string{"weight_kg", "pack_weight_kg", "piece_weight_g", "volume_ml", "pack_qty"})

	attrs := item.Parsed.Attributes
	for _, field := range fields {
		switch field {
		case "weight_kg":
			if attrs.WeightKg != nil && *attrs.WeightKg <= 0 {
				return true
			}
		case "pack_weight_kg":
			if attrs.PackWeightKg != nil && *attrs.PackWeightKg <= 0 {
				return true
			}
		case "piece_weight_g":
			if attrs.PieceWeightG != nil && *attrs.PieceWeightG <= 0 {
				return true
			}
		case "volume_ml":
			if attrs.VolumeMl != nil && *attrs.VolumeMl <= 0 {
				return true
			}
		case "pack_qty":
			// PackQty и Price - не опциональные поля: ноль означает
			// "не заявлено", а не заявленный ноль, поэтому ловится
			// только минус. Нулевую цену накрывает PRICE_REQUIRED.
			if item.PackQty < 0 {
				return true
			}
		case "price":
			if item.Price < 0 {
				return true
			}
		}
	}
	return false
}

// checkInvalidRange заявленный минимум больше максимума
func checkInvalidRange(_ map[string]any, item *catalog.SupplierItem) bool {
	attrs := item.Parsed.Attributes
	return attrs.PieceMinG != nil && attrs.PieceMaxG != nil && *attrs.PieceMinG > *attrs.PieceMaxG
}

func checkPriceRequired(_ map[string]any, item *catalog.SupplierItem) bool {
	return item.Price <= 0
}

// checkPriceNormalization цена есть, но не приводится к канонической
// цене за базовую единицу
func checkPriceNormalization(_ map[string]any, item *catalog.SupplierItem) bool {
	return item.Price > 0 && item.PricePerBaseUnit == nil
}

// conflictCheck структурный конфликт: для поля заявлены
// взаимоисключающие значения одновременно
func conflictCheck(field string) checkFunc {
	return func(_ map[string]any, item *catalog.SupplierItem) bool {
		return item.Parsed.Attributes.HasConflict(field)
	}
}

func floatParam(payload map[string]any, key string, def float64) float64 {
	if payload == nil {
		return def
	}
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func intParam(payload map[string]any, key string, def int) int {
	if payload == nil {
		return def
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func stringsParam(payload map[string]any, key string, def []string) []string {
	if payload == nil {
		return def
	}
	raw, ok := payload[key].([]any)
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
