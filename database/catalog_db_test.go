package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogserver/catalog"
	"catalogserver/normalization"
	"catalogserver/normalization/algorithms"
	"catalogserver/rules"
)

func openTestCatalogDB(t *testing.T) *CatalogDB {
	t.Helper()
	db, err := OpenCatalogDB(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testTokenizer(t *testing.T) *normalization.Tokenizer {
	t.Helper()
	rs, err := rules.ParseSeed([]byte(ruleSeedYAML))
	require.NoError(t, err)
	return normalization.NewTokenizer(rs)
}

func storedItem(tk *normalization.Tokenizer, supplierID int64, rawName string, price float64, disposition catalog.Disposition) *catalog.SupplierItem {
	ppu := price
	return &catalog.SupplierItem{
		SupplierID:       supplierID,
		RawName:          rawName,
		Price:            price,
		Currency:         "RUB",
		Unit:             "кг",
		PricePerBaseUnit: &ppu,
		Parsed: &catalog.ParsedItem{
			RawName:      rawName,
			CategoryCode: "fish",
			BaseProduct:  "сибас",
			Disposition:  disposition,
			Name:         tk.Tokenize(rawName),
		},
	}
}

func TestCreateAndFinalizeRun(t *testing.T) {
	db := openTestCatalogDB(t)

	run := &catalog.PipelineRun{
		UUID:      "run-uuid-1",
		RulesetID: 1,
		StartedAt: time.Now().UTC(),
		Status:    catalog.RunStatusRunning,
	}
	id, err := db.CreateRun(run)
	require.NoError(t, err)
	run.ID = id

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = catalog.RunStatusOK
	run.Counts = catalog.RunCounts{Masters: 2, MasterLinks: 5, MarketSnapshotRows: 3}
	run.Dispositions = map[string]int{"OK": 4, "HIDDEN": 1}
	run.ReasonCodes = map[string]int{"LOW_PARSE_CONFIDENCE": 1}
	require.NoError(t, db.FinalizeRun(run))

	loaded, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, "run-uuid-1", loaded.UUID)
	assert.Equal(t, catalog.RunStatusOK, loaded.Status)
	assert.Equal(t, run.Counts, loaded.Counts)
	assert.Equal(t, 4, loaded.Dispositions["OK"])
	assert.Equal(t, 1, loaded.ReasonCodes["LOW_PARSE_CONFIDENCE"])
	require.NotNil(t, loaded.FinishedAt)
}

// Терминальный статус прогона неизменяем
func TestFinalizeRun_TerminalImmutable(t *testing.T) {
	db := openTestCatalogDB(t)

	run := &catalog.PipelineRun{
		UUID: "run-uuid-1", RulesetID: 1,
		StartedAt: time.Now().UTC(), Status: catalog.RunStatusRunning,
	}
	id, err := db.CreateRun(run)
	require.NoError(t, err)
	run.ID = id

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = catalog.RunStatusFailed
	run.Error = "сборка провалена"
	require.NoError(t, db.FinalizeRun(run))

	run.Status = catalog.RunStatusOK
	run.Error = ""
	err = db.FinalizeRun(run)
	require.Error(t, err)

	loaded, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, catalog.RunStatusFailed, loaded.Status)
	assert.Equal(t, "сборка провалена", loaded.Error)
}

func TestGetRun_NotFound(t *testing.T) {
	db := openTestCatalogDB(t)
	_, err := db.GetRun(99)
	assert.Error(t, err)
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := openTestCatalogDB(t)

	for i := 0; i < 3; i++ {
		_, err := db.CreateRun(&catalog.PipelineRun{
			UUID: fmt.Sprintf("uuid-%d", i), RulesetID: 1,
			StartedAt: time.Now().UTC(), Status: catalog.RunStatusRunning,
		})
		require.NoError(t, err)
	}

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(3), runs[0].ID)
	assert.Equal(t, int64(2), runs[1].ID)
}

// Идентификатор позиции стабилен по ключу (поставщик, сырое наименование)
func TestUpsertSupplierItems_StableIDs(t *testing.T) {
	db := openTestCatalogDB(t)
	tk := testTokenizer(t)

	first := storedItem(tk, 10, "Сибас охлажденный", 700, catalog.DispositionOK)
	require.NoError(t, db.UpsertSupplierItems([]*catalog.SupplierItem{first}))
	require.NotZero(t, first.ID)

	// Повторная загрузка с новой ценой обновляет запись, а не дублирует
	second := storedItem(tk, 10, "Сибас охлажденный", 680, catalog.DispositionOK)
	require.NoError(t, db.UpsertSupplierItems([]*catalog.SupplierItem{second}))
	assert.Equal(t, first.ID, second.ID)

	all, err := db.GetAllSupplierItems()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.InDelta(t, 680, all[0].Price, 1e-9)

	// Та же строка у другого поставщика - отдельная позиция
	other := storedItem(tk, 20, "Сибас охлажденный", 690, catalog.DispositionOK)
	require.NoError(t, db.UpsertSupplierItems([]*catalog.SupplierItem{other}))
	assert.NotEqual(t, first.ID, other.ID)
}

func TestUpsertSupplierItems_Bulk(t *testing.T) {
	db := openTestCatalogDB(t)
	tk := testTokenizer(t)
	gofakeit.Seed(1)

	const rows = 150
	batch := make([]*catalog.SupplierItem, 0, rows)
	for i := 0; i < rows; i++ {
		name := fmt.Sprintf("%s %s %d г", gofakeit.Vegetable(), gofakeit.Adjective(), 100+i)
		batch = append(batch, storedItem(tk, int64(1+i%3), name, gofakeit.Price(10, 1000), catalog.DispositionOK))
	}
	require.NoError(t, db.UpsertSupplierItems(batch))

	ids := make(map[int64]bool, rows)
	for _, item := range batch {
		require.NotZero(t, item.ID)
		ids[item.ID] = true
	}
	assert.Len(t, ids, rows)

	all, err := db.GetAllSupplierItems()
	require.NoError(t, err)
	assert.Len(t, all, rows)
}

func TestReplaceCatalog_CurrentRunPointer(t *testing.T) {
	db := openTestCatalogDB(t)

	current, err := db.CurrentRunID()
	require.NoError(t, err)
	assert.Zero(t, current)

	caliber := "16/20"
	build := &catalog.BuildResult{
		Masters: []catalog.MasterProduct{
			{ID: 1, Key: "fish|сибас", CategoryCode: "fish", BaseProduct: "сибас", Name: "сибас"},
			{ID: 2, Key: "seafood|креветк|16/20", CategoryCode: "seafood", BaseProduct: "креветк", Caliber: &caliber, Name: "креветк 16/20"},
		},
		Links: []catalog.MasterLink{
			{MasterID: 1, SupplierItemID: 1, RunID: 1},
		},
		Rows: []catalog.MarketSnapshotRow{
			{MasterID: 1, SupplierID: 10, SupplierItemID: 1, Price: 700, PricePerBaseUnit: 700, AsOfRunID: 1},
		},
	}
	require.NoError(t, db.ReplaceCatalog(1, build))

	current, err = db.CurrentRunID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)

	// Новый прогон переключает указатель, старые строки остаются рядом
	require.NoError(t, db.ReplaceCatalog(2, &catalog.BuildResult{
		Masters: []catalog.MasterProduct{
			{ID: 1, Key: "fish|сибас", CategoryCode: "fish", BaseProduct: "сибас", Name: "сибас"},
		},
	}))

	current, err = db.CurrentRunID()
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)
}

func TestQuickSearch(t *testing.T) {
	db := openTestCatalogDB(t)
	tk := testTokenizer(t)
	stem := algorithms.NewRussianStemmer()

	items := []*catalog.SupplierItem{
		storedItem(tk, 10, "Сибас охлажденный тушка", 700, catalog.DispositionOK),
		storedItem(tk, 20, "Сибас охлажденный", 650, catalog.DispositionOK),
		storedItem(tk, 30, "Сибас мороженый", 500, catalog.DispositionHidden),
		storedItem(tk, 40, "Треска филе", 450, catalog.DispositionOK),
	}
	require.NoError(t, db.UpsertSupplierItems(items))

	t.Run("все леммы обязаны совпасть, порядок по цене", func(t *testing.T) {
		entries, err := db.QuickSearch([]string{stem.Stem("сибас"), "chilled_state"}, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, int64(20), entries[0].SupplierID)
		assert.InDelta(t, 650, entries[0].Price, 1e-9)
		assert.Equal(t, int64(10), entries[1].SupplierID)
	})

	t.Run("скрытые позиции не ищутся", func(t *testing.T) {
		entries, err := db.QuickSearch([]string{stem.Stem("сибас")}, 10)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("лемма сопоставляется целиком, не подстрокой", func(t *testing.T) {
		entries, err := db.QuickSearch([]string{"сиба"}, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("лимит ограничивает выдачу", func(t *testing.T) {
		entries, err := db.QuickSearch([]string{stem.Stem("сибас")}, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.InDelta(t, 650, entries[0].Price, 1e-9)
	})
}
