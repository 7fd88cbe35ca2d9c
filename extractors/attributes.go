package extractors

import (
	"regexp"
	"strconv"
	"strings"

	"catalogserver/normalization"
	"catalogserver/rules"
)

// Attributes структурированные атрибуты, извлеченные из наименования.
// Любой атрибут, который не удалось извлечь, остается nil: отсутствие
// значения никогда не подменяется значением-заглушкой.
type Attributes struct {
	// Вес нетто упаковки/единицы, приведенный к килограммам
	WeightKg *float64 `json:"weight_kg,omitempty"`
	// Объем, приведенный к миллилитрам
	VolumeMl *float64 `json:"volume_ml,omitempty"`
	// Вес оптовой упаковки, когда в одном наименовании встречаются
	// и штучный вес, и вес упаковки ("400-600г ... вес 5 кг")
	PackWeightKg *float64 `json:"pack_weight_kg,omitempty"`
	// Штучный вес в граммах (середина диапазона)
	PieceWeightG *float64 `json:"piece_weight_g,omitempty"`
	PieceMinG    *float64 `json:"piece_min_g,omitempty"`
	PieceMaxG    *float64 `json:"piece_max_g,omitempty"`
	// Калибр: размерная фракция вида N/M. Сопоставляется только точно,
	// числовые допуски к калибру не применяются.
	Caliber *string `json:"caliber,omitempty"`

	ProcessingState *string `json:"processing_state,omitempty"`
	SkinFlag        *string `json:"skin_flag,omitempty"`
	PitFlag         *string `json:"pit_flag,omitempty"`
	State           *string `json:"state,omitempty"`
	Brand           *string `json:"brand,omitempty"`
	OriginCountry   *string `json:"origin_country,omitempty"`

	// Все канонические значения, заявленные в наименовании, по полям.
	// Нужны правилам структурных конфликтов: если для одного поля
	// заявлены два взаимоисключающих значения, флаг выше остается nil,
	// а валидатор качества получает полный список.
	FieldValues map[string][]string `json:"field_values,omitempty"`
}

// Семантические поля бинарных флагов
const (
	FieldPitFlag         = "pit_flag"
	FieldSkinFlag        = "skin_flag"
	FieldProcessingState = "processing_state"
	FieldState           = "state"
	FieldBrand           = "brand"
	FieldOriginCountry   = "origin_country"
	FieldCut             = "cut"
)

// Граница слова задается явным классом: \b в regexp работает только
// с ASCII и не срабатывает после кириллических единиц измерения
var (
	rangeWeightRe  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*[-–]\s*(\d+(?:[.,]\d+)?)\s*(кг|грамм|гр|г|kg|g)(?:[^а-яёa-z0-9]|$)`)
	singleWeightRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(кг|грамм|гр|г|kg|g)(?:[^а-яёa-z0-9]|$)`)
	volumeRe       = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(мл|ml|л|l)(?:[^а-яёa-z0-9]|$)`)
	caliberRe      = regexp.MustCompile(`^(\d{1,3})/(\d{1,3})$`)
)

// Extractor извлекает атрибуты из токенов и сырого текста.
// Бинарные флаги, бренды и страны происхождения берутся из
// канонических токенов, полученных через таблицу алиасов набора правил.
type Extractor struct {
	// канонический токен -> семантическое поле
	fieldByCanonical map[string]string
}

// NewExtractor строит извлекатель для версии набора правил
func NewExtractor(rs *rules.Ruleset) *Extractor {
	fieldByCanonical := make(map[string]string, len(rs.Aliases))
	for _, alias := range rs.Aliases {
		if alias.Field != "" {
			fieldByCanonical[alias.CanonicalToken] = alias.Field
		}
	}
	return &Extractor{fieldByCanonical: fieldByCanonical}
}

// Extract разбирает атрибуты наименования. Чистая функция.
func (e *Extractor) Extract(name normalization.TokenizedName) Attributes {
	attrs := Attributes{FieldValues: make(map[string][]string)}

	e.extractFlags(name, &attrs)
	e.extractCaliber(name, &attrs)
	e.extractWeights(strings.ToLower(name.Raw), &attrs)

	if len(attrs.FieldValues) == 0 {
		attrs.FieldValues = nil
	}
	return attrs
}

// extractFlags собирает канонические значения флагов, брендов и стран.
// Указатель поля заполняется только при единственном заявленном значении.
func (e *Extractor) extractFlags(name normalization.TokenizedName, attrs *Attributes) {
	for _, token := range name.Tokens {
		field, ok := e.fieldByCanonical[token]
		if !ok {
			continue
		}
		if !containsValue(attrs.FieldValues[field], token) {
			attrs.FieldValues[field] = append(attrs.FieldValues[field], token)
		}
	}

	attrs.PitFlag = singleValue(attrs.FieldValues[FieldPitFlag])
	attrs.SkinFlag = singleValue(attrs.FieldValues[FieldSkinFlag])
	attrs.ProcessingState = singleValue(attrs.FieldValues[FieldProcessingState])
	attrs.State = singleValue(attrs.FieldValues[FieldState])
	attrs.Brand = singleValue(attrs.FieldValues[FieldBrand])
	attrs.OriginCountry = singleValue(attrs.FieldValues[FieldOriginCountry])
}

// extractCaliber ищет токен размерной фракции N/M
func (e *Extractor) extractCaliber(name normalization.TokenizedName, attrs *Attributes) {
	for _, token := range name.Tokens {
		if caliberRe.MatchString(token) {
			caliber := token
			attrs.Caliber = &caliber
			return
		}
	}
}

// extractWeights разбирает весовые и объемные конструкции.
// Диапазон в граммах трактуется как штучный вес; одиночное значение -
// как вес нетто. Если в наименовании есть и штучный диапазон, и
// килограммовое значение, последнее считается весом оптовой упаковки:
// штучный и упаковочный вес никогда не подменяют друг друга.
func (e *Extractor) extractWeights(raw string, attrs *Attributes) {
	consumed := ""

	if m := rangeWeightRe.FindStringSubmatch(raw); m != nil {
		lo, okLo := parseNumber(m[1])
		hi, okHi := parseNumber(m[2])
		if okLo && okHi {
			loG := toGrams(lo, m[3])
			hiG := toGrams(hi, m[3])
			attrs.PieceMinG = &loG
			attrs.PieceMaxG = &hiG
			mid := (loG + hiG) / 2
			attrs.PieceWeightG = &mid
			consumed = m[0]
		}
	}

	rest := raw
	if consumed != "" {
		rest = strings.Replace(raw, consumed, " ", 1)
	}

	if m := singleWeightRe.FindStringSubmatch(rest); m != nil {
		if value, ok := parseNumber(m[1]); ok {
			kg := toGrams(value, m[2]) / 1000
			if attrs.PieceWeightG != nil {
				attrs.PackWeightKg = &kg
			} else {
				attrs.WeightKg = &kg
			}
		}
	}

	if m := volumeRe.FindStringSubmatch(rest); m != nil {
		if value, ok := parseNumber(m[1]); ok {
			ml := value
			if m[2] == "л" || m[2] == "l" {
				ml = value * 1000
			}
			attrs.VolumeMl = &ml
		}
	}
}

// NetWeightKg возвращает вес нетто в килограммах, унифицируя вес и объем
// (1 л считается эквивалентным 1 кг). nil, если ни вес, ни объем
// не извлечены.
func (a Attributes) NetWeightKg() *float64 {
	if a.WeightKg != nil {
		return a.WeightKg
	}
	if a.VolumeMl != nil {
		kg := *a.VolumeMl / 1000
		return &kg
	}
	return nil
}

// HasConflict сообщает, заявлено ли для поля более одного значения
func (a Attributes) HasConflict(field string) bool {
	return len(a.FieldValues[field]) > 1
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func toGrams(value float64, unit string) float64 {
	switch unit {
	case "кг", "kg":
		return value * 1000
	default:
		return value
	}
}

func singleValue(values []string) *string {
	if len(values) != 1 {
		return nil
	}
	v := values[0]
	return &v
}

func containsValue(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
