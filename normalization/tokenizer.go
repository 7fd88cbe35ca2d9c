package normalization

import (
	"strings"
	"unicode"

	"catalogserver/normalization/algorithms"
	"catalogserver/rules"
)

// TokenizedName результат токенизации сырого наименования.
// Tokens - упорядоченная последовательность токенов в нижнем регистре
// с примененной канонизацией алиасов. Lemmas - множество лемм (стемов)
// для скоринга и быстрого поиска. Meaningful - значимые леммы для
// защитного фильтра кандидатов (без стоп-слов, чисел и единиц измерения).
type TokenizedName struct {
	Raw        string
	Tokens     []string
	Lemmas     map[string]bool
	Meaningful map[string]bool

	// lemmaSequence повторяет Lemmas в порядке появления токенов:
	// map в Go итерируется в случайном порядке, а LemmaList обязан
	// быть детерминированным
	lemmaSequence []string
}

// LemmaList возвращает леммы в порядке появления токенов, без повторов
func (tn TokenizedName) LemmaList() []string {
	seen := make(map[string]bool, len(tn.lemmaSequence))
	out := make([]string, 0, len(tn.lemmaSequence))
	for _, lemma := range tn.lemmaSequence {
		if lemma == "" || seen[lemma] {
			continue
		}
		seen[lemma] = true
		out = append(out, lemma)
	}
	return out
}

// Tokenizer нормализатор наименований. Чистая функция от (набор правил, текст):
// одинаковый вход и одна и та же версия набора правил всегда дают
// одинаковую последовательность токенов.
type Tokenizer struct {
	stemmer *algorithms.RussianStemmer
	// Алиасы индексированы по стему первого сырого токена фразы.
	// Фразы из нескольких токенов ("без кости") сопоставляются по стемам.
	aliases map[string][]aliasPhrase
}

type aliasPhrase struct {
	stems     []string
	canonical string
	field     string
}

// Стоп-слова, не несущие смысловой нагрузки при сопоставлении
var stopWords = map[string]bool{
	"и": true, "с": true, "со": true, "в": true, "на": true,
	"для": true, "из": true, "по": true, "без": true, "не": true,
	"или": true, "от": true, "до": true,
}

// Токены единиц измерения: участвуют в извлечении атрибутов,
// но не считаются значимыми для защитного фильтра
var unitTokens = map[string]bool{
	"кг": true, "г": true, "гр": true, "грамм": true, "kg": true, "g": true,
	"л": true, "мл": true, "l": true, "ml": true,
	"шт": true, "уп": true, "упак": true, "пач": true, "вес": true,
}

// NewTokenizer создает токенизатор для версии набора правил
func NewTokenizer(rs *rules.Ruleset) *Tokenizer {
	t := &Tokenizer{
		stemmer: algorithms.NewRussianStemmer(),
		aliases: make(map[string][]aliasPhrase),
	}
	for _, alias := range rs.Aliases {
		rawTokens := splitTokens(strings.ToLower(alias.RawToken))
		if len(rawTokens) == 0 {
			continue
		}
		stems := t.stemmer.StemTokens(rawTokens)
		t.aliases[stems[0]] = append(t.aliases[stems[0]], aliasPhrase{
			stems:     stems,
			canonical: alias.CanonicalToken,
			field:     alias.Field,
		})
	}
	// Более длинные фразы должны проверяться первыми
	for key := range t.aliases {
		phrases := t.aliases[key]
		for i := 1; i < len(phrases); i++ {
			for j := i; j > 0 && len(phrases[j].stems) > len(phrases[j-1].stems); j-- {
				phrases[j], phrases[j-1] = phrases[j-1], phrases[j]
			}
		}
	}
	return t
}

// Tokenize разбирает сырое наименование на токены.
// Побочных эффектов нет, результат детерминирован.
func (t *Tokenizer) Tokenize(raw string) TokenizedName {
	rawTokens := splitTokens(strings.ToLower(raw))
	stems := t.stemmer.StemTokens(rawTokens)

	result := TokenizedName{
		Raw:        raw,
		Lemmas:     make(map[string]bool),
		Meaningful: make(map[string]bool),
	}

	for i := 0; i < len(rawTokens); {
		matched := false
		for _, phrase := range t.aliases[stems[i]] {
			if matchPhrase(stems, i, phrase.stems) {
				result.Tokens = append(result.Tokens, phrase.canonical)
				result.Lemmas[phrase.canonical] = true
				result.lemmaSequence = append(result.lemmaSequence, phrase.canonical)
				i += len(phrase.stems)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		token := rawTokens[i]
		lemma := stems[i]
		result.Tokens = append(result.Tokens, token)
		if lemma != "" {
			result.Lemmas[lemma] = true
			result.lemmaSequence = append(result.lemmaSequence, lemma)
			if isMeaningful(token, lemma) {
				result.Meaningful[lemma] = true
			}
		}
		i++
	}

	return result
}

// isMeaningful определяет, участвует ли токен в защитном фильтре.
// Канонические токены атрибутов (snake_case) описывают свойства,
// а не сам продукт, поэтому тоже исключаются.
func isMeaningful(token, lemma string) bool {
	if len([]rune(lemma)) < 2 {
		return false
	}
	if stopWords[token] || stopWords[lemma] || unitTokens[token] {
		return false
	}
	if strings.ContainsAny(token, "0123456789") {
		return false
	}
	if strings.Contains(token, "_") {
		return false
	}
	return true
}

func matchPhrase(stems []string, start int, phrase []string) bool {
	if start+len(phrase) > len(stems) {
		return false
	}
	for k, ps := range phrase {
		if stems[start+k] != ps {
			return false
		}
	}
	return true
}

// splitTokens разбивает строку на токены. Разделители - все символы,
// кроме букв и цифр; '/' '-' '.' ',' сохраняются внутри числовых
// конструкций (калибр "16/20", диапазон "300-400", дробь "0,5").
func splitTokens(s string) []string {
	var tokens []string
	var current strings.Builder
	runes := []rune(s)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, trimEdges(current.String()))
			current.Reset()
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case r == '/' || r == '-' || r == '.' || r == ',':
			// Сохраняем только между цифрами
			prevDigit := i > 0 && unicode.IsDigit(runes[i-1])
			nextDigit := i+1 < len(runes) && unicode.IsDigit(runes[i+1])
			if prevDigit && nextDigit {
				if r == ',' {
					current.WriteRune('.')
				} else {
					current.WriteRune(r)
				}
			} else {
				flush()
			}
		default:
			flush()
		}
	}
	flush()

	out := tokens[:0]
	for _, tok := range tokens {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func trimEdges(s string) string {
	return strings.Trim(s, "./,-")
}
