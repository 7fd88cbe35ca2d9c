package pipeline

import (
	"catalogserver/catalog"
	"catalogserver/classification"
	"catalogserver/extractors"
	"catalogserver/normalization"
	"catalogserver/quality"
	"catalogserver/rules"
)

// ConfidenceWeights веса итоговой уверенности разбора.
// Настраиваемый параметр: проверяется регрессионными фикстурами.
type ConfidenceWeights struct {
	Category   float64
	Base       float64
	Attributes float64
}

// DefaultConfidenceWeights веса по умолчанию
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{Category: 0.5, Base: 0.3, Attributes: 0.2}
}

// Parser связывает токенизатор, классификатор, извлекатель атрибутов и
// валидатор качества для одной версии набора правил. Разбор - чистая
// функция от (набор правил, текст) без разделяемого изменяемого
// состояния, поэтому строки можно разбирать параллельно.
type Parser struct {
	rulesetID  int64
	tokenizer  *normalization.Tokenizer
	classifier *classification.Classifier
	extractor  *extractors.Extractor
	evaluator  *quality.Evaluator
	confW      ConfidenceWeights
}

// NewParser компилирует разборщик для версии набора правил
func NewParser(rs *rules.Ruleset) *Parser {
	return &Parser{
		rulesetID:  rs.ID,
		tokenizer:  normalization.NewTokenizer(rs),
		classifier: classification.NewClassifier(rs),
		extractor:  extractors.NewExtractor(rs),
		evaluator:  quality.NewEvaluator(rs),
		confW:      DefaultConfidenceWeights(),
	}
}

// Parse разбирает сырое наименование без применения правил качества.
// Используется для референсной стороны точечного запроса, где
// нет ни цены, ни единицы измерения.
func (p *Parser) Parse(rawName string) *catalog.ParsedItem {
	name := p.tokenizer.Tokenize(rawName)
	cls := p.classifier.Classify(name)
	attrs := p.extractor.Extract(name)

	parsed := &catalog.ParsedItem{
		RawName:            rawName,
		RulesetID:          p.rulesetID,
		CategoryCode:       cls.CategoryCode,
		CategoryConfidence: cls.CategoryConfidence,
		BaseProduct:        cls.BaseProduct,
		BaseConfidence:     cls.BaseConfidence,
		Attributes:         attrs,
		Name:               name,
	}
	parsed.ParseConfidence = p.parseConfidence(parsed)
	return parsed
}

// ParseItem разбирает позицию поставщика и применяет правила качества:
// позиция получает диспозицию, коды причин и приведенную цену
func (p *Parser) ParseItem(item *catalog.SupplierItem) {
	item.Parsed = p.Parse(item.RawName)
	p.evaluator.Apply(item)
}

// parseConfidence сводная уверенность разбора: уверенность категории,
// уверенность базового продукта (для мягких категорий его отсутствие
// наказывается вдвое мягче) и покрытие атрибутами
func (p *Parser) parseConfidence(parsed *catalog.ParsedItem) float64 {
	baseComponent := parsed.BaseConfidence
	if parsed.BaseProduct == "" {
		if parsed.CategoryCode != "" && rules.CategoryMustMode(parsed.CategoryCode) == rules.MustModeOptional {
			baseComponent = 0.5
		} else {
			baseComponent = 0
		}
	}

	attrComponent := attributeCoverage(parsed.Attributes)

	total := p.confW.Category + p.confW.Base + p.confW.Attributes
	if total <= 0 {
		return 0
	}
	conf := (p.confW.Category*parsed.CategoryConfidence +
		p.confW.Base*baseComponent +
		p.confW.Attributes*attrComponent) / total
	if conf > 1 {
		conf = 1
	}
	return conf
}

// attributeCoverage доля извлеченных семейств атрибутов. Наименования
// редко несут больше четырех семейств, поэтому покрытие насыщается.
func attributeCoverage(attrs extractors.Attributes) float64 {
	extracted := 0
	if attrs.NetWeightKg() != nil || attrs.PieceWeightG != nil {
		extracted++
	}
	if attrs.Caliber != nil {
		extracted++
	}
	if attrs.State != nil {
		extracted++
	}
	if attrs.ProcessingState != nil {
		extracted++
	}
	if attrs.PitFlag != nil {
		extracted++
	}
	if attrs.SkinFlag != nil {
		extracted++
	}
	if attrs.Brand != nil {
		extracted++
	}
	if attrs.OriginCountry != nil {
		extracted++
	}

	coverage := float64(extracted) / 4
	if coverage > 1 {
		coverage = 1
	}
	return coverage
}
