package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogserver/extractors"
)

func okItem(id, supplierID int64, category, base string, ppu float64) *SupplierItem {
	return &SupplierItem{
		ID:               id,
		SupplierID:       supplierID,
		Price:            ppu,
		Unit:             "кг",
		PricePerBaseUnit: floatPtr(ppu),
		Parsed: &ParsedItem{
			CategoryCode: category,
			BaseProduct:  base,
			Disposition:  DispositionOK,
		},
	}
}

func TestBuildMasters_Grouping(t *testing.T) {
	items := []*SupplierItem{
		okItem(1, 10, "fish", "сибас", 700),
		okItem(2, 20, "fish", "сибас", 650),
		okItem(3, 10, "grocery", "кетчуп", 150),
	}

	result, err := BuildMasters(items, 7)
	require.NoError(t, err)

	require.Len(t, result.Masters, 2)
	// Ключи сортируются, нумерация детерминирована
	assert.Equal(t, "fish|сибас", result.Masters[0].Key)
	assert.Equal(t, int64(1), result.Masters[0].ID)
	assert.Equal(t, "grocery|кетчуп", result.Masters[1].Key)
	assert.Equal(t, int64(2), result.Masters[1].ID)

	assert.Len(t, result.Links, 3)
	for _, link := range result.Links {
		assert.Equal(t, int64(7), link.RunID)
	}
}

func TestBuildMasters_CaliberSplitsMasters(t *testing.T) {
	small := okItem(1, 10, "seafood", "креветк", 900)
	small.Parsed.Attributes = extractors.Attributes{Caliber: strPtr("16/20")}
	large := okItem(2, 10, "seafood", "креветк", 850)
	large.Parsed.Attributes = extractors.Attributes{Caliber: strPtr("21/25")}

	result, err := BuildMasters([]*SupplierItem{small, large}, 1)
	require.NoError(t, err)

	require.Len(t, result.Masters, 2)
	assert.Equal(t, "seafood|креветк|16/20", result.Masters[0].Key)
	assert.Equal(t, "seafood|креветк|21/25", result.Masters[1].Key)
}

// Срез рынка хранит лучшую приведенную цену на пару (мастер, поставщик)
func TestBuildMasters_BestPerSupplier(t *testing.T) {
	items := []*SupplierItem{
		okItem(1, 10, "fish", "сибас", 700),
		okItem(2, 10, "fish", "сибас", 640), // дешевле у того же поставщика
		okItem(3, 20, "fish", "сибас", 660),
	}

	result, err := BuildMasters(items, 1)
	require.NoError(t, err)
	require.Len(t, result.Masters, 1)
	require.Len(t, result.Links, 3)

	require.Len(t, result.Rows, 2)
	// Строки отсортированы по поставщику
	assert.Equal(t, int64(10), result.Rows[0].SupplierID)
	assert.Equal(t, int64(2), result.Rows[0].SupplierItemID)
	assert.InDelta(t, 640, result.Rows[0].PricePerBaseUnit, 1e-9)
	assert.Equal(t, int64(20), result.Rows[1].SupplierID)
	assert.Equal(t, int64(3), result.Rows[1].SupplierItemID)
}

// При равной цене побеждает меньший идентификатор позиции
func TestBuildMasters_TieByItemID(t *testing.T) {
	items := []*SupplierItem{
		okItem(5, 10, "fish", "сибас", 700),
		okItem(2, 10, "fish", "сибас", 700),
	}

	result, err := BuildMasters(items, 1)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(2), result.Rows[0].SupplierItemID)
}

func TestBuildMasters_SkipsNonOK(t *testing.T) {
	hidden := okItem(1, 10, "fish", "сибас", 700)
	hidden.Parsed.Disposition = DispositionHidden
	invalid := okItem(2, 10, "fish", "сибас", 650)
	invalid.Parsed.Disposition = DispositionInvalid

	result, err := BuildMasters([]*SupplierItem{hidden, invalid, okItem(3, 10, "fish", "сибас", 680)}, 1)
	require.NoError(t, err)

	require.Len(t, result.Masters, 1)
	assert.Len(t, result.Links, 1)
	assert.Equal(t, int64(3), result.Links[0].SupplierItemID)
}

func TestBuildMasters_RejectsUnpreparedItems(t *testing.T) {
	t.Run("без категории", func(t *testing.T) {
		item := okItem(1, 10, "", "", 700)
		_, err := BuildMasters([]*SupplierItem{item}, 1)
		assert.Error(t, err)
	})

	t.Run("без приведенной цены", func(t *testing.T) {
		item := okItem(1, 10, "fish", "сибас", 700)
		item.PricePerBaseUnit = nil
		_, err := BuildMasters([]*SupplierItem{item}, 1)
		assert.Error(t, err)
	})
}

// Повторная сборка на неизменном входе дает идентичный результат
func TestBuildMasters_Deterministic(t *testing.T) {
	items := []*SupplierItem{
		okItem(1, 10, "fish", "сибас", 700),
		okItem(2, 20, "grocery", "кетчуп", 150),
		okItem(3, 10, "seafood", "креветк", 900),
	}

	first, err := BuildMasters(items, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := BuildMasters(items, 1)
		require.NoError(t, err)
		assert.Equal(t, first.Masters, again.Masters)
		assert.Equal(t, first.Rows, again.Rows)
	}
}

func TestMarketView_Indexes(t *testing.T) {
	fish := okItem(1, 10, "fish", "сибас", 700)
	hidden := okItem(2, 10, "fish", "треск", 300)
	hidden.Parsed.Disposition = DispositionHidden
	grocery := okItem(3, 20, "grocery", "кетчуп", 150)

	items := []*SupplierItem{fish, hidden, grocery}
	build, err := BuildMasters(items, 4)
	require.NoError(t, err)

	view := NewMarketView(4, build, items)

	got, ok := view.ItemByID(1)
	require.True(t, ok)
	assert.Same(t, fish, got)

	// Скрытая позиция не видна в срезе
	_, ok = view.ItemByID(2)
	assert.False(t, ok)

	assert.Len(t, view.CandidatePool("fish"), 1)
	assert.Empty(t, view.CandidatePool("meat"))
	assert.Len(t, view.Items(), 2)
}

func TestSnapshotStore_Swap(t *testing.T) {
	store := NewSnapshotStore()
	assert.Nil(t, store.Current())

	first := &MarketView{RunID: 1}
	store.Publish(first)
	assert.Same(t, first, store.Current())

	second := &MarketView{RunID: 2}
	store.Publish(second)
	assert.Same(t, second, store.Current())
}
