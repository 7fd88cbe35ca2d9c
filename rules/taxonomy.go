package rules

// MustMode режим обязательности базового продукта для категории
type MustMode string

const (
	// MustModeAlways строгая категория: без базового продукта запись скрывается
	MustModeAlways MustMode = "ALWAYS"
	// MustModeOptional мягкая категория: неизвестный базовый продукт допустим
	MustModeOptional MustMode = "OPTIONAL"
)

// Строгие категории: рыба, свежие и замороженные овощи/фрукты, мясо,
// птица, морепродукты. Для них подмена базового продукта слишком дорога,
// поэтому нераспознанный base_product приводит к диспозиции HIDDEN.
var strictCategories = map[string]bool{
	"fish":           true,
	"fresh_produce":  true,
	"frozen_produce": true,
	"meat":           true,
	"poultry":        true,
	"seafood":        true,
}

// Мягкие категории: бакалея, консервы, напитки, выпечка, десерты,
// колбасы, замороженные полуфабрикаты.
var softCategories = map[string]bool{
	"grocery":     true,
	"canned":      true,
	"drinks":      true,
	"bakery":      true,
	"desserts":    true,
	"sausages":    true,
	"frozen_semi": true,
}

// CategoryMustMode возвращает режим обязательности базового продукта.
// Неизвестные категории трактуются как мягкие.
func CategoryMustMode(categoryCode string) MustMode {
	if strictCategories[categoryCode] {
		return MustModeAlways
	}
	return MustModeOptional
}

// KnownCategory сообщает, входит ли код в таксономию
func KnownCategory(categoryCode string) bool {
	return strictCategories[categoryCode] || softCategories[categoryCode]
}
