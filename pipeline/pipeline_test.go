package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogserver/catalog"
	"catalogserver/rules"
)

const pipelineSeed = `
name: pipeline-test
categories:
  - code: fish
    keywords:
      - { keyword: сибас }
      - { keyword: треска }
      - { keyword: охлажденный, scope: CONTEXT }
  - code: grocery
    keywords:
      - { keyword: кетчуп }
base_products:
  - { category: fish, base_product: сибас, keyword: сибас }
  - { category: fish, base_product: треска, keyword: треска }
  - { category: grocery, base_product: кетчуп, keyword: кетчуп }
quality_rules:
  - { code: LOW_CATEGORY_CONFIDENCE, severity: HIDDEN, payload: { threshold: 0.3 } }
  - { code: PRICE_REQUIRED, severity: INVALID }
  - { code: PRICE_NORMALIZATION_REQUIRED, severity: INVALID }
`

// fakeStore хранилище прогона в памяти для тестов оркестратора
type fakeStore struct {
	mu         sync.Mutex
	nextRunID  int64
	nextItemID int64
	finalized  map[int64]catalog.RunStatus
	stored     []*catalog.SupplierItem
	replaced   map[int64]*catalog.BuildResult
	failUpsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		finalized: make(map[int64]catalog.RunStatus),
		replaced:  make(map[int64]*catalog.BuildResult),
	}
}

func (s *fakeStore) CreateRun(run *catalog.PipelineRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunID++
	return s.nextRunID, nil
}

func (s *fakeStore) FinalizeRun(run *catalog.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.finalized[run.ID]; done {
		return fmt.Errorf("прогон %d уже финализирован", run.ID)
	}
	s.finalized[run.ID] = run.Status
	return nil
}

func (s *fakeStore) UpsertSupplierItems(items []*catalog.SupplierItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert {
		return fmt.Errorf("имитация сбоя хранилища")
	}
	for _, item := range items {
		if item.ID == 0 {
			s.nextItemID++
			item.ID = s.nextItemID
		}
	}
	s.stored = append(s.stored, items...)
	return nil
}

func (s *fakeStore) ReplaceCatalog(runID int64, build *catalog.BuildResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced[runID] = build
	return nil
}

type fakeRulesets struct {
	rs *rules.Ruleset
}

func (f *fakeRulesets) ActiveRuleset() (*rules.Ruleset, error) {
	return f.rs, nil
}

func testPipeline(t *testing.T, store Store) (*Pipeline, *catalog.SnapshotStore) {
	t.Helper()
	rs, err := rules.ParseSeed([]byte(pipelineSeed))
	require.NoError(t, err)
	snapshots := catalog.NewSnapshotStore()
	return NewPipeline(store, &fakeRulesets{rs: rs}, snapshots, 2, nil), snapshots
}

func row(supplierID int64, name string, price float64) *catalog.SupplierItem {
	return &catalog.SupplierItem{
		SupplierID: supplierID,
		RawName:    name,
		Price:      price,
		Currency:   "RUB",
		Unit:       "кг",
	}
}

func TestRun_Success(t *testing.T) {
	store := newFakeStore()
	p, snapshots := testPipeline(t, store)

	items := []*catalog.SupplierItem{
		row(10, "Сибас охлажденный", 700),
		row(20, "Сибас охлажденный", 650),
		row(10, "Кетчуп томатный", 150),
	}

	run, err := p.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, catalog.RunStatusOK, run.Status)
	assert.NotEmpty(t, run.UUID)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, catalog.RunStatusOK, store.finalized[run.ID])

	assert.Equal(t, 2, run.Counts.Masters)
	assert.Equal(t, 3, run.Counts.MasterLinks)
	assert.Equal(t, 3, run.Counts.MarketSnapshotRows)
	assert.Equal(t, 3, run.Dispositions[string(catalog.DispositionOK)])

	// Строки сохранены вместе с результатами разбора
	require.Len(t, store.stored, 3)
	for _, item := range store.stored {
		require.NotNil(t, item.Parsed)
		assert.NotZero(t, item.ID)
	}

	// Срез опубликован и указывает на этот прогон
	view := snapshots.Current()
	require.NotNil(t, view)
	assert.Equal(t, run.ID, view.RunID)
	assert.Len(t, view.CandidatePool("fish"), 2)
	assert.Len(t, view.CandidatePool("grocery"), 1)
}

// Нераспознанная строка скрывается, но прогон не падает
func TestRun_HiddenRowsExcluded(t *testing.T) {
	store := newFakeStore()
	p, snapshots := testPipeline(t, store)

	items := []*catalog.SupplierItem{
		row(10, "Сибас охлажденный", 700),
		row(10, "Зубочистки деревянные", 40),
	}

	run, err := p.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Counts.Masters)
	assert.Equal(t, 1, run.Dispositions[string(catalog.DispositionOK)])
	assert.Equal(t, 1, run.Dispositions[string(catalog.DispositionHidden)])
	assert.Equal(t, 1, run.ReasonCodes["LOW_CATEGORY_CONFIDENCE"])

	// Скрытая строка сохранена для отчетности, но в срез не попала
	assert.Len(t, store.stored, 2)
	assert.Len(t, snapshots.Current().Items(), 1)
}

func TestRun_EmptyBatchFails(t *testing.T) {
	store := newFakeStore()
	p, snapshots := testPipeline(t, store)

	run, err := p.Run(context.Background(), nil)
	require.Error(t, err)

	require.NotNil(t, run)
	assert.Equal(t, catalog.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.Equal(t, catalog.RunStatusFailed, store.finalized[run.ID])
	assert.Nil(t, snapshots.Current())
}

// Прогон без единого мастер-продукта проваливается целиком
func TestRun_NoMastersFails(t *testing.T) {
	store := newFakeStore()
	p, snapshots := testPipeline(t, store)

	run, err := p.Run(context.Background(), []*catalog.SupplierItem{
		row(10, "Зубочистки деревянные", 40),
	})
	require.Error(t, err)

	assert.Equal(t, catalog.RunStatusFailed, run.Status)
	assert.Nil(t, snapshots.Current())
	// Строки успели сохраниться до сборки: это допустимо, авторитетным
	// остается предыдущий срез
	assert.Len(t, store.stored, 1)
	assert.Empty(t, store.replaced)
}

func TestRun_StoreFailureFails(t *testing.T) {
	store := newFakeStore()
	store.failUpsert = true
	p, snapshots := testPipeline(t, store)

	run, err := p.Run(context.Background(), []*catalog.SupplierItem{
		row(10, "Сибас охлажденный", 700),
	})
	require.Error(t, err)

	assert.Equal(t, catalog.RunStatusFailed, run.Status)
	assert.Nil(t, snapshots.Current())
}

// Повторный прогон на неизменном входе дает те же результаты
func TestRun_Idempotent(t *testing.T) {
	store := newFakeStore()
	p, _ := testPipeline(t, store)

	build := func() []*catalog.SupplierItem {
		return []*catalog.SupplierItem{
			row(10, "Сибас охлажденный", 700),
			row(20, "Треска филе", 450),
			row(10, "Кетчуп томатный", 150),
		}
	}

	first, err := p.Run(context.Background(), build())
	require.NoError(t, err)
	second, err := p.Run(context.Background(), build())
	require.NoError(t, err)

	assert.Equal(t, first.Counts, second.Counts)
	assert.Equal(t, first.Dispositions, second.Dispositions)

	firstBuild := store.replaced[first.ID]
	secondBuild := store.replaced[second.ID]
	require.Len(t, secondBuild.Masters, len(firstBuild.Masters))
	for i := range firstBuild.Masters {
		assert.Equal(t, firstBuild.Masters[i].Key, secondBuild.Masters[i].Key)
	}
}

// Новый успешный прогон атомарно вытесняет предыдущий срез
func TestRun_SnapshotSupersede(t *testing.T) {
	store := newFakeStore()
	p, snapshots := testPipeline(t, store)

	_, err := p.Run(context.Background(), []*catalog.SupplierItem{
		row(10, "Сибас охлажденный", 700),
		row(10, "Кетчуп томатный", 150),
	})
	require.NoError(t, err)
	require.Len(t, snapshots.Current().Items(), 2)

	second, err := p.Run(context.Background(), []*catalog.SupplierItem{
		row(10, "Треска филе", 450),
	})
	require.NoError(t, err)

	view := snapshots.Current()
	assert.Equal(t, second.ID, view.RunID)
	assert.Len(t, view.Items(), 1)
	assert.Empty(t, view.CandidatePool("grocery"))
}
