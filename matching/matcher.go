package matching

import (
	"sort"

	"github.com/google/uuid"

	"catalogserver/catalog"
	"catalogserver/extractors"
	"catalogserver/normalization/algorithms"
)

// RejectReason код причины отбраковки кандидата
type RejectReason string

const (
	RejectCategoryMismatch    RejectReason = "CATEGORY_MISMATCH"
	RejectBaseProductMismatch RejectReason = "BASE_PRODUCT_MISMATCH"
	RejectGuardTokenOverlap   RejectReason = "GUARD_TOKEN_OVERLAP"
	RejectCaliberMismatch     RejectReason = "CALIBER_MISMATCH"
	RejectWeightTolerance     RejectReason = "WEIGHT_TOLERANCE"
	RejectWeightIncomparable  RejectReason = "WEIGHT_INCOMPARABLE"
	RejectBrandMismatch       RejectReason = "BRAND_MISMATCH"
	RejectOriginMismatch      RejectReason = "ORIGIN_MISMATCH"
	RejectBelowThreshold      RejectReason = "BELOW_THRESHOLD"
	RejectPriceNotNormalized  RejectReason = "PRICE_NOT_NORMALIZED"
)

// Статусы результата точечного запроса
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"

	ReasonNoMatchOverThreshold = "NO_MATCH_OVER_THRESHOLD"
)

// Weights веса скоринговой формулы. Точная формула оригинальной системы
// не зафиксирована, поэтому веса - настраиваемый параметр, валидируемый
// регрессионными фикстурами, а не константа предметной области.
type Weights struct {
	TokenOverlap float64 `json:"token_overlap"`
	BaseProduct  float64 `json:"base_product"`
	Attributes   float64 `json:"attributes"`
}

// DefaultWeights веса по умолчанию
func DefaultWeights() Weights {
	return Weights{TokenOverlap: 0.5, BaseProduct: 0.3, Attributes: 0.2}
}

// Thresholds минимальные проходные баллы
type Thresholds struct {
	Base          float64 `json:"base"`
	BrandCritical float64 `json:"brand_critical"`
}

// DefaultThresholds пороги по умолчанию: 0.70 обычный режим,
// 0.85 при критичности бренда/происхождения
func DefaultThresholds() Thresholds {
	return Thresholds{Base: 0.70, BrandCritical: 0.85}
}

// Candidate кандидат, прошедший фильтры, с баллом и совокупной стоимостью
type Candidate struct {
	Item             *catalog.SupplierItem `json:"item"`
	Score            float64               `json:"score"`
	PricePerBaseUnit float64               `json:"price_per_base_unit"`
	TotalCost        float64               `json:"total_cost"`
}

// Offer выбранное предложение
type Offer struct {
	SupplierID       int64   `json:"supplier_id"`
	SupplierItemID   int64   `json:"supplier_item_id"`
	Price            float64 `json:"price"`
	PricePerBaseUnit float64 `json:"price_per_base_unit"`
	Score            float64 `json:"score"`
	TotalCost        float64 `json:"total_cost"`
}

// Result структурированный результат точечного запроса.
// Запрос всегда возвращает результат, а не ошибку: отсутствие
// приемлемого кандидата - ожидаемый исход, не сбой.
type Result struct {
	Status     string               `json:"status"`
	Reason     string               `json:"reason,omitempty"`
	Offer      *Offer               `json:"offer,omitempty"`
	Candidates []Candidate          `json:"candidates"`
	Rejected   map[RejectReason]int `json:"rejected_reasons"`
	DebugID    string               `json:"debug_id"`
}

// Matcher подбирает лучшее предложение-замену для референсной позиции
type Matcher struct {
	weights         Weights
	thresholds      Thresholds
	weightTolerance float64
	minCommonTokens int
}

// NewMatcher создает матчер с настройками по умолчанию
func NewMatcher() *Matcher {
	return &Matcher{
		weights:         DefaultWeights(),
		thresholds:      DefaultThresholds(),
		weightTolerance: 0.20,
		minCommonTokens: 2,
	}
}

// NewMatcherWithWeights создает матчер с явными весами и порогами
func NewMatcherWithWeights(weights Weights, thresholds Thresholds) *Matcher {
	m := NewMatcher()
	m.weights = weights
	m.thresholds = thresholds
	return m
}

// Resolve подбирает самое дешевое допустимое предложение.
//
// Порядок проверок для каждого кандидата: защитный фильтр (категория +
// минимум общих значимых токенов), точное совпадение калибра, допуск по
// весу 20% с обязательной сопоставимостью, критичность бренда/страны,
// скоринговый порог. Среди прошедших выбирается минимальная совокупная
// стоимость для запрошенного количества; ничья разрешается большим
// баллом, затем меньшим идентификатором поставщика.
//
// Количество влияет только на выбор победителя: множество кандидатов,
// прошедших фильтры и порог, от количества не зависит.
func (m *Matcher) Resolve(ref *catalog.ParsedItem, pool []*catalog.SupplierItem, brandCritical bool, quantity float64) Result {
	result := Result{
		Status:   StatusNotFound,
		Rejected: make(map[RejectReason]int),
		DebugID:  uuid.New().String(),
	}

	threshold := m.thresholds.Base
	if brandCritical {
		threshold = m.thresholds.BrandCritical
	}
	if quantity <= 0 {
		quantity = 1
	}

	var passed []Candidate

	for _, item := range pool {
		if item.Parsed == nil || item.Parsed.Disposition != catalog.DispositionOK {
			continue
		}
		if reason, ok := m.applyGuards(ref, item, brandCritical); !ok {
			result.Rejected[reason]++
			continue
		}
		if item.PricePerBaseUnit == nil {
			result.Rejected[RejectPriceNotNormalized]++
			continue
		}

		score := m.score(ref, item.Parsed, brandCritical)
		if score < threshold {
			result.Rejected[RejectBelowThreshold]++
			continue
		}

		ppu := *item.PricePerBaseUnit
		passed = append(passed, Candidate{
			Item:             item,
			Score:            score,
			PricePerBaseUnit: ppu,
			TotalCost:        ppu * quantity,
		})
	}

	if len(passed) == 0 {
		result.Reason = ReasonNoMatchOverThreshold
		result.Candidates = []Candidate{}
		return result
	}

	// Детерминированный порядок: стоимость, затем балл, затем поставщик
	sort.Slice(passed, func(a, b int) bool {
		ca, cb := passed[a], passed[b]
		if ca.TotalCost != cb.TotalCost {
			return ca.TotalCost < cb.TotalCost
		}
		if ca.Score != cb.Score {
			return ca.Score > cb.Score
		}
		if ca.Item.SupplierID != cb.Item.SupplierID {
			return ca.Item.SupplierID < cb.Item.SupplierID
		}
		return ca.Item.ID < cb.Item.ID
	})

	winner := passed[0]
	result.Status = StatusOK
	result.Offer = &Offer{
		SupplierID:       winner.Item.SupplierID,
		SupplierItemID:   winner.Item.ID,
		Price:            winner.Item.Price,
		PricePerBaseUnit: winner.PricePerBaseUnit,
		Score:            winner.Score,
		TotalCost:        winner.TotalCost,
	}
	result.Candidates = passed
	return result
}

// applyGuards жесткие фильтры до скоринга
func (m *Matcher) applyGuards(ref *catalog.ParsedItem, item *catalog.SupplierItem, brandCritical bool) (RejectReason, bool) {
	cand := item.Parsed

	if cand.CategoryCode != ref.CategoryCode {
		return RejectCategoryMismatch, false
	}
	if ref.BaseProduct != "" && cand.BaseProduct != "" && ref.BaseProduct != cand.BaseProduct {
		return RejectBaseProductMismatch, false
	}

	// Защита кандидата: минимум общих значимых токенов отсекает
	// ложные совпадения между семантически чужими позициями даже
	// при пересечении поверхностного текста
	required := m.minCommonTokens
	if len(ref.Name.Meaningful) < required {
		required = len(ref.Name.Meaningful)
	}
	if required > 0 && algorithms.CommonTokens(ref.Name.Meaningful, cand.Name.Meaningful) < required {
		return RejectGuardTokenOverlap, false
	}

	// Калибр сопоставляется только точно, без допусков: размер креветки,
	// фракция рыбы и жирность фарша - одна и та же размерная ось
	if ref.Attributes.Caliber != nil {
		if cand.Attributes.Caliber == nil || *cand.Attributes.Caliber != *ref.Attributes.Caliber {
			return RejectCaliberMismatch, false
		}
	}

	if reason, ok := m.checkWeightTolerance(ref.Attributes, cand.Attributes); !ok {
		return reason, false
	}

	if brandCritical {
		if ref.Attributes.Brand != nil {
			// Брендированный референс: допустимы только кандидаты
			// с тем же брендом
			if cand.Attributes.Brand == nil || *cand.Attributes.Brand != *ref.Attributes.Brand {
				return RejectBrandMismatch, false
			}
		} else if !originEqual(ref.Attributes.OriginCountry, cand.Attributes.OriginCountry) {
			// Небрендированный референс: критичность эскалируется
			// до совпадения страны происхождения
			return RejectOriginMismatch, false
		}
	}

	return "", true
}

// WeightComparison помеченный исход сравнения весов. Incomparable
// (Comparable=false) всегда трактуется как провал фильтра, а не как
// автоматический проход: единица с неизвестным весом не проскальзывает
// мимо допуска.
type WeightComparison struct {
	Comparable bool
	RelDiff    float64
}

// CompareWeights сравнивает весовые атрибуты одного рода: штучный вес
// со штучным, вес нетто с весом нетто, никогда крест-накрест.
// applies=false, когда ни одна из сторон не несет весового атрибута -
// тогда фильтр не применяется.
func CompareWeights(ref, cand extractors.Attributes) (cmp WeightComparison, applies bool) {
	refPiece, candPiece := ref.PieceWeightG, cand.PieceWeightG
	refNet, candNet := ref.NetWeightKg(), cand.NetWeightKg()

	if refPiece == nil && candPiece == nil && refNet == nil && candNet == nil {
		return WeightComparison{}, false
	}

	if refPiece != nil && candPiece != nil {
		return WeightComparison{Comparable: true, RelDiff: relDiff(*refPiece, *candPiece)}, true
	}
	if refPiece == nil && candPiece == nil && refNet != nil && candNet != nil {
		return WeightComparison{Comparable: true, RelDiff: relDiff(*refNet, *candNet)}, true
	}

	// Разный род атрибутов или вес есть только у одной стороны
	return WeightComparison{Comparable: false}, true
}

func (m *Matcher) checkWeightTolerance(ref, cand extractors.Attributes) (RejectReason, bool) {
	cmp, applies := CompareWeights(ref, cand)
	if !applies {
		return "", true
	}
	if !cmp.Comparable {
		return RejectWeightIncomparable, false
	}
	if cmp.RelDiff > m.weightTolerance {
		return RejectWeightTolerance, false
	}
	return "", true
}

// score взвешенная схожесть в [0,1]: перекрытие токенов, согласие
// базового продукта, согласие атрибутов. Бренд при brand_critical=false
// в скоринге не участвует вовсе.
func (m *Matcher) score(ref, cand *catalog.ParsedItem, brandCritical bool) float64 {
	tokenSim := algorithms.JaccardTokens(ref.Name.Meaningful, cand.Name.Meaningful)

	var baseSim float64
	switch {
	case ref.BaseProduct != "" && ref.BaseProduct == cand.BaseProduct:
		baseSim = 1.0
	case ref.BaseProduct == "" && cand.BaseProduct == "":
		baseSim = 0.5
	}

	attrSim := m.attributeAgreement(ref.Attributes, cand.Attributes, brandCritical)

	total := m.weights.TokenOverlap + m.weights.BaseProduct + m.weights.Attributes
	if total <= 0 {
		return 0
	}
	score := (m.weights.TokenOverlap*tokenSim + m.weights.BaseProduct*baseSim + m.weights.Attributes*attrSim) / total
	if score > 1 {
		score = 1
	}
	return score
}

// attributeAgreement доля совпавших атрибутов среди заявленных
// у референса. Если референс не заявил ни одного атрибута,
// несогласия нет и возвращается 1.
func (m *Matcher) attributeAgreement(ref, cand extractors.Attributes, brandCritical bool) float64 {
	considered, matched := 0, 0

	compare := func(a, b *string) {
		if a == nil {
			return
		}
		considered++
		if b != nil && *a == *b {
			matched++
		}
	}

	compare(ref.State, cand.State)
	compare(ref.ProcessingState, cand.ProcessingState)
	compare(ref.PitFlag, cand.PitFlag)
	compare(ref.SkinFlag, cand.SkinFlag)
	compare(ref.OriginCountry, cand.OriginCountry)
	if brandCritical {
		compare(ref.Brand, cand.Brand)
	}

	if considered == 0 {
		return 1.0
	}
	return float64(matched) / float64(considered)
}

func originEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func relDiff(a, b float64) float64 {
	max := a
	if b > max {
		max = b
	}
	if max == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / max
}
