package extractors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogserver/normalization"
	"catalogserver/rules"
)

func testExtractor(t *testing.T) (*Extractor, *normalization.Tokenizer) {
	t.Helper()
	rs, err := rules.ParseSeed([]byte(`
name: extractor-test
aliases:
  - { field: state, raw: охл, canonical: chilled_state }
  - { field: state, raw: с/м, canonical: frozen_state }
  - { field: pit_flag, raw: б/к, canonical: without_pit }
  - { field: pit_flag, raw: с косточкой, canonical: with_pit }
  - { field: processing_state, raw: в/м, canonical: cooked }
  - { field: processing_state, raw: сырой, canonical: raw }
  - { field: brand, raw: heinz, canonical: brand_heinz }
  - { field: origin_country, raw: турция, canonical: origin_tr }
`))
	require.NoError(t, err)
	return NewExtractor(rs), normalization.NewTokenizer(rs)
}

func extract(t *testing.T, raw string) Attributes {
	t.Helper()
	ex, tok := testExtractor(t)
	return ex.Extract(tok.Tokenize(raw))
}

func TestExtract_SingleWeight(t *testing.T) {
	attrs := extract(t, "Кетчуп Heinz 800 г")

	require.NotNil(t, attrs.WeightKg)
	assert.InDelta(t, 0.8, *attrs.WeightKg, 1e-9)
	assert.Nil(t, attrs.PieceWeightG)

	require.NotNil(t, attrs.Brand)
	assert.Equal(t, "brand_heinz", *attrs.Brand)
}

func TestExtract_KilogramWeight(t *testing.T) {
	attrs := extract(t, "Треска филе 1,5 кг")

	require.NotNil(t, attrs.WeightKg)
	assert.InDelta(t, 1.5, *attrs.WeightKg, 1e-9)
}

// Диапазон в граммах - штучный вес, середина диапазона
func TestExtract_PieceWeightRange(t *testing.T) {
	attrs := extract(t, "Сибас 300-400 гр охл")

	assert.Nil(t, attrs.WeightKg)
	require.NotNil(t, attrs.PieceWeightG)
	assert.InDelta(t, 350, *attrs.PieceWeightG, 1e-9)
	require.NotNil(t, attrs.PieceMinG)
	assert.InDelta(t, 300, *attrs.PieceMinG, 1e-9)
	require.NotNil(t, attrs.PieceMaxG)
	assert.InDelta(t, 400, *attrs.PieceMaxG, 1e-9)

	require.NotNil(t, attrs.State)
	assert.Equal(t, "chilled_state", *attrs.State)
}

// Диапазон плюс одиночный вес: одиночный уходит в вес упаковки,
// штучный вес не затирается
func TestExtract_RangePlusPackWeight(t *testing.T) {
	attrs := extract(t, "Сибас 400-600 гр вес 5 кг")

	require.NotNil(t, attrs.PieceWeightG)
	assert.InDelta(t, 500, *attrs.PieceWeightG, 1e-9)
	require.NotNil(t, attrs.PackWeightKg)
	assert.InDelta(t, 5, *attrs.PackWeightKg, 1e-9)
	assert.Nil(t, attrs.WeightKg)
}

func TestExtract_Volume(t *testing.T) {
	attrs := extract(t, "Соус 25 мл дип-пот")
	require.NotNil(t, attrs.VolumeMl)
	assert.InDelta(t, 25, *attrs.VolumeMl, 1e-9)

	liters := extract(t, "Масло подсолнечное 0,9 л")
	require.NotNil(t, liters.VolumeMl)
	assert.InDelta(t, 900, *liters.VolumeMl, 1e-9)
}

// Вес и объем унифицируются: литр эквивалентен килограмму
func TestNetWeightKg(t *testing.T) {
	weight := extract(t, "Кетчуп 800 г")
	require.NotNil(t, weight.NetWeightKg())
	assert.InDelta(t, 0.8, *weight.NetWeightKg(), 1e-9)

	volume := extract(t, "Соус 25 мл")
	require.NotNil(t, volume.NetWeightKg())
	assert.InDelta(t, 0.025, *volume.NetWeightKg(), 1e-9)

	empty := extract(t, "Соус фирменный")
	assert.Nil(t, empty.NetWeightKg())
}

func TestExtract_Caliber(t *testing.T) {
	attrs := extract(t, "Креветка 16/20 в/м")

	require.NotNil(t, attrs.Caliber)
	assert.Equal(t, "16/20", *attrs.Caliber)
	require.NotNil(t, attrs.ProcessingState)
	assert.Equal(t, "cooked", *attrs.ProcessingState)
}

func TestExtract_OriginCountry(t *testing.T) {
	attrs := extract(t, "Сибас охл Турция 300-400 гр")

	require.NotNil(t, attrs.OriginCountry)
	assert.Equal(t, "origin_tr", *attrs.OriginCountry)
}

// Конфликт значений поля: указатель остается nil, но полный список
// значений доступен валидатору качества
func TestExtract_ConflictingValues(t *testing.T) {
	attrs := extract(t, "Вишня б/к с косточкой 1 кг")

	assert.Nil(t, attrs.PitFlag)
	assert.True(t, attrs.HasConflict(FieldPitFlag))
	assert.ElementsMatch(t, []string{"without_pit", "with_pit"}, attrs.FieldValues[FieldPitFlag])
}

func TestExtract_NoAttributes(t *testing.T) {
	attrs := extract(t, "Товар без атрибутов")

	assert.Nil(t, attrs.WeightKg)
	assert.Nil(t, attrs.Caliber)
	assert.Nil(t, attrs.State)
	assert.Nil(t, attrs.FieldValues)
}
