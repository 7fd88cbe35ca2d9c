package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogserver/normalization/algorithms"
	"catalogserver/rules"
)

func testRuleset(t *testing.T) *rules.Ruleset {
	t.Helper()
	rs, err := rules.ParseSeed([]byte(`
name: tokenizer-test
aliases:
  - { field: state, raw: охл, canonical: chilled_state }
  - { field: state, raw: охлажденный, canonical: chilled_state }
  - { field: state, raw: с/м, canonical: frozen_state }
  - { field: pit_flag, raw: без косточки, canonical: without_pit }
  - { field: pit_flag, raw: б/к, canonical: without_pit }
  - { field: brand, raw: heinz, canonical: brand_heinz }
`))
	require.NoError(t, err)
	return rs
}

func TestTokenize_AliasCanonicalization(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))
	stemmer := algorithms.NewRussianStemmer()

	name := tok.Tokenize("Сибас охл. 300-400 гр")

	assert.Equal(t, []string{"сибас", "chilled_state", "300-400", "гр"}, name.Tokens)
	assert.True(t, name.Lemmas["chilled_state"])
	assert.True(t, name.Lemmas[stemmer.Stem("сибас")])

	// Значимые леммы: без единиц, чисел и канонических атрибутов
	assert.True(t, name.Meaningful[stemmer.Stem("сибас")])
	assert.False(t, name.Meaningful["chilled_state"])
	assert.False(t, name.Meaningful["300-400"])
	assert.False(t, name.Meaningful["гр"])
}

// Разные словоформы сворачиваются в один канонический токен
func TestTokenize_WordFormAlias(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))

	short := tok.Tokenize("треска охл")
	full := tok.Tokenize("треска охлажденная")

	assert.True(t, short.Lemmas["chilled_state"])
	assert.True(t, full.Lemmas["chilled_state"])
}

// Фразовые алиасы сопоставляются по нескольким токенам
func TestTokenize_PhraseAlias(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))

	name := tok.Tokenize("Вишня без косточки 1 кг")
	assert.Contains(t, name.Tokens, "without_pit")
	assert.NotContains(t, name.Tokens, "косточки")

	abbrev := tok.Tokenize("Вишня б/к 1 кг")
	assert.Contains(t, abbrev.Tokens, "without_pit")
}

// Слэш и дефис между цифрами сохраняются: калибр и диапазон - один токен
func TestTokenize_NumericSeparatorsPreserved(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))

	name := tok.Tokenize("Креветка 16/20 зам 300-400 г")
	assert.Contains(t, name.Tokens, "16/20")
	assert.Contains(t, name.Tokens, "300-400")
}

// Запятая в числе нормализуется в точку
func TestTokenize_DecimalComma(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))
	name := tok.Tokenize("Масло 0,9 л")
	assert.Contains(t, name.Tokens, "0.9")
}

func TestTokenize_Deterministic(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))

	first := tok.Tokenize("Сибас охл 300-400 гр Турция")
	for i := 0; i < 5; i++ {
		again := tok.Tokenize("Сибас охл 300-400 гр Турция")
		assert.Equal(t, first.Tokens, again.Tokens)
		assert.Equal(t, first.LemmaList(), again.LemmaList())
	}
}

func TestLemmaList_OrderAndDedup(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))

	name := tok.Tokenize("сибас сибас охл")
	lemmas := name.LemmaList()

	require.Len(t, lemmas, 2)
	assert.Equal(t, "chilled_state", lemmas[1])
}

func TestTokenize_StopWordsNotMeaningful(t *testing.T) {
	tok := NewTokenizer(testRuleset(t))
	stemmer := algorithms.NewRussianStemmer()

	name := tok.Tokenize("филе трески без кожи")
	assert.False(t, name.Meaningful["без"])
	assert.True(t, name.Meaningful[stemmer.Stem("треска")])
}
