package catalog

import "sync/atomic"

// MarketView полный срез рынка по состоянию на успешный прогон.
// Вью неизменяемо после публикации: читатели либо видят предыдущий
// полный срез, либо новый полный, но никогда не смесь.
type MarketView struct {
	RunID   int64
	Masters []MasterProduct
	Rows    []MarketSnapshotRow

	itemsByID  map[int64]*SupplierItem
	byCategory map[string][]*SupplierItem
}

// NewMarketView строит вью среза с индексами для точечных запросов
func NewMarketView(runID int64, build *BuildResult, items []*SupplierItem) *MarketView {
	view := &MarketView{
		RunID:      runID,
		Masters:    build.Masters,
		Rows:       build.Rows,
		itemsByID:  make(map[int64]*SupplierItem, len(items)),
		byCategory: make(map[string][]*SupplierItem),
	}
	for _, item := range items {
		if item.Parsed == nil || item.Parsed.Disposition != DispositionOK {
			continue
		}
		view.itemsByID[item.ID] = item
		code := item.Parsed.CategoryCode
		view.byCategory[code] = append(view.byCategory[code], item)
	}
	return view
}

// ItemByID возвращает позицию поставщика из текущего среза
func (v *MarketView) ItemByID(id int64) (*SupplierItem, bool) {
	item, ok := v.itemsByID[id]
	return item, ok
}

// CandidatePool возвращает пул кандидатов категории
func (v *MarketView) CandidatePool(categoryCode string) []*SupplierItem {
	return v.byCategory[categoryCode]
}

// Items возвращает все позиции среза (для поиска)
func (v *MarketView) Items() []*SupplierItem {
	out := make([]*SupplierItem, 0, len(v.itemsByID))
	for _, pool := range v.byCategory {
		out = append(out, pool...)
	}
	return out
}

// SnapshotStore хранит указатель на текущий срез рынка.
// Публикация выполняется атомарной подменой указателя, без блокировок
// на пути чтения: конкурентные точечные запросы никогда не наблюдают
// наполовину собранный срез.
type SnapshotStore struct {
	current atomic.Pointer[MarketView]
}

// NewSnapshotStore создает пустое хранилище срезов
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Current возвращает текущий опубликованный срез или nil
func (s *SnapshotStore) Current() *MarketView {
	return s.current.Load()
}

// Publish атомарно подменяет текущий срез новым
func (s *SnapshotStore) Publish(view *MarketView) {
	s.current.Store(view)
}
