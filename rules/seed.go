package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile структура YAML-файла с исходными словарями
type seedFile struct {
	Name       string `yaml:"name"`
	Categories []struct {
		Code     string `yaml:"code"`
		Keywords []struct {
			Keyword  string `yaml:"keyword"`
			Polarity string `yaml:"polarity"`
			Weight   int    `yaml:"weight"`
			Scope    string `yaml:"scope"`
		} `yaml:"keywords"`
	} `yaml:"categories"`
	BaseProducts []struct {
		Category    string `yaml:"category"`
		BaseProduct string `yaml:"base_product"`
		Keyword     string `yaml:"keyword"`
		Polarity    string `yaml:"polarity"`
	} `yaml:"base_products"`
	Aliases []struct {
		Field     string `yaml:"field"`
		Raw       string `yaml:"raw"`
		Canonical string `yaml:"canonical"`
	} `yaml:"aliases"`
	QualityRules []struct {
		Code     string         `yaml:"code"`
		Severity string         `yaml:"severity"`
		Payload  map[string]any `yaml:"payload"`
	} `yaml:"quality_rules"`
}

// LoadSeedFile читает YAML-файл словарей и собирает из него Ruleset.
// ID не присваивается: это делает хранилище при сохранении версии.
func LoadSeedFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл словарей %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed разбирает YAML-содержимое словарей
func ParseSeed(data []byte) (*Ruleset, error) {
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("не удалось разобрать YAML словарей: %w", err)
	}
	if sf.Name == "" {
		return nil, fmt.Errorf("в файле словарей не указано имя набора правил")
	}

	rs := &Ruleset{Name: sf.Name}

	for _, cat := range sf.Categories {
		if cat.Code == "" {
			return nil, fmt.Errorf("категория без кода в файле словарей")
		}
		for _, kw := range cat.Keywords {
			polarity, err := parsePolarity(kw.Polarity)
			if err != nil {
				return nil, fmt.Errorf("категория %s, ключ %q: %w", cat.Code, kw.Keyword, err)
			}
			scope := ScopeBase
			if kw.Scope != "" {
				switch Scope(kw.Scope) {
				case ScopeBase, ScopeContext:
					scope = Scope(kw.Scope)
				default:
					return nil, fmt.Errorf("категория %s, ключ %q: неизвестный scope %q", cat.Code, kw.Keyword, kw.Scope)
				}
			}
			weight := kw.Weight
			if weight == 0 {
				weight = 1
			}
			rs.CategoryEntries = append(rs.CategoryEntries, DictionaryEntry{
				CategoryCode: cat.Code,
				Keyword:      kw.Keyword,
				Polarity:     polarity,
				Weight:       weight,
				Scope:        scope,
			})
		}
	}

	for _, bp := range sf.BaseProducts {
		polarity, err := parsePolarity(bp.Polarity)
		if err != nil {
			return nil, fmt.Errorf("базовый продукт %s, ключ %q: %w", bp.BaseProduct, bp.Keyword, err)
		}
		rs.BaseProductEntries = append(rs.BaseProductEntries, BaseProductEntry{
			CategoryCode: bp.Category,
			BaseProduct:  bp.BaseProduct,
			Keyword:      bp.Keyword,
			Polarity:     polarity,
		})
	}

	for _, al := range sf.Aliases {
		if al.Raw == "" || al.Canonical == "" {
			return nil, fmt.Errorf("неполный алиас токена: %+v", al)
		}
		rs.Aliases = append(rs.Aliases, TokenAlias{
			Field:          al.Field,
			RawToken:       al.Raw,
			CanonicalToken: al.Canonical,
		})
	}

	for _, qr := range sf.QualityRules {
		switch Severity(qr.Severity) {
		case SeverityHidden, SeverityInvalid:
		default:
			return nil, fmt.Errorf("правило качества %s: неизвестная строгость %q", qr.Code, qr.Severity)
		}
		rs.QualityRules = append(rs.QualityRules, QualityRule{
			Code:     qr.Code,
			Severity: Severity(qr.Severity),
			Payload:  qr.Payload,
		})
	}

	return rs, nil
}

func parsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case PolarityPositive, PolarityNegative:
		return Polarity(s), nil
	case "":
		return PolarityPositive, nil
	default:
		return "", fmt.Errorf("неизвестная полярность %q", s)
	}
}
