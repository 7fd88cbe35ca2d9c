package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"catalogserver/catalog"
	"catalogserver/rules"
)

// Store персистентные операции прогона. Реализуется пакетом database.
type Store interface {
	// CreateRun создает запись прогона в статусе RUNNING и возвращает
	// монотонно возрастающий идентификатор
	CreateRun(run *catalog.PipelineRun) (int64, error)
	// FinalizeRun переводит прогон в терминальный статус ровно один раз
	FinalizeRun(run *catalog.PipelineRun) error
	// UpsertSupplierItems сохраняет строки прайс-листа. Идентификатор
	// позиции стабилен по ключу (поставщик, сырое наименование):
	// повторная загрузка обновляет цену, а не плодит новые позиции.
	UpsertSupplierItems(items []*catalog.SupplierItem) error
	// ReplaceCatalog целиком заменяет мастера, связи и срез рынка
	// в одной транзакции (запись, затем переключение указателя прогона)
	ReplaceCatalog(runID int64, build *catalog.BuildResult) error
}

// RulesetSource источник активного набора правил
type RulesetSource interface {
	ActiveRuleset() (*rules.Ruleset, error)
}

// Pipeline оркестратор пакетного импорта. Тонкий: последовательность
// этапов, идентификатор прогона и счетчики для приемочной проверки.
type Pipeline struct {
	store     Store
	rulesets  RulesetSource
	snapshots *catalog.SnapshotStore
	workers   int
	logger    *slog.Logger
}

// NewPipeline создает оркестратор
func NewPipeline(store Store, rulesets RulesetSource, snapshots *catalog.SnapshotStore, workers int, logger *slog.Logger) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		rulesets:  rulesets,
		snapshots: snapshots,
		workers:   workers,
		logger:    logger,
	}
}

// Run выполняет прогон пайплайна над строками прайс-листа.
//
// Прогон идемпотентен относительно версии набора правил: одинаковые
// входные строки при одном активном наборе дают одинаковые результаты
// классификации, атрибутов и диспозиций. Сборка - все или ничего:
// частичный сбой помечает прогон FAILED, предыдущий срез остается
// авторитетным, частичной публикации не бывает.
func (p *Pipeline) Run(ctx context.Context, items []*catalog.SupplierItem) (*catalog.PipelineRun, error) {
	rs, err := p.rulesets.ActiveRuleset()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить активный набор правил: %w", err)
	}

	run := &catalog.PipelineRun{
		UUID:         uuid.New().String(),
		RulesetID:    rs.ID,
		StartedAt:    time.Now().UTC(),
		Status:       catalog.RunStatusRunning,
		Dispositions: make(map[string]int),
		ReasonCodes:  make(map[string]int),
	}
	runID, err := p.store.CreateRun(run)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать запись прогона: %w", err)
	}
	run.ID = runID

	p.logger.Info("прогон пайплайна начат",
		"run_id", run.ID, "run_uuid", run.UUID,
		"ruleset_id", rs.ID, "rows", len(items))

	if err := p.execute(ctx, rs, run, items); err != nil {
		run.Status = catalog.RunStatusFailed
		run.Error = err.Error()
		p.finalize(run)
		p.logger.Error("прогон пайплайна провален", "run_id", run.ID, "error", err)
		return run, err
	}

	run.Status = catalog.RunStatusOK
	p.finalize(run)
	p.logger.Info("прогон пайплайна завершен",
		"run_id", run.ID,
		"masters", run.Counts.Masters,
		"master_links", run.Counts.MasterLinks,
		"market_snapshot_rows", run.Counts.MarketSnapshotRows)
	return run, nil
}

func (p *Pipeline) execute(ctx context.Context, rs *rules.Ruleset, run *catalog.PipelineRun, items []*catalog.SupplierItem) error {
	if len(items) == 0 {
		return fmt.Errorf("пустой пакет строк прайс-листа")
	}

	p.parseAll(ctx, rs, items)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Сохранение после разбора: вместе со строкой в хранилище попадают
	// леммы и диспозиция для поискового индекса
	if err := p.store.UpsertSupplierItems(items); err != nil {
		return fmt.Errorf("не удалось сохранить строки прайс-листа: %w", err)
	}

	okItems := make([]*catalog.SupplierItem, 0, len(items))
	for _, item := range items {
		if item.Parsed == nil {
			continue
		}
		run.Dispositions[string(item.Parsed.Disposition)]++
		for _, code := range item.Parsed.ReasonCodes {
			run.ReasonCodes[code]++
		}
		if item.Parsed.Disposition == catalog.DispositionOK {
			okItems = append(okItems, item)
		}
	}

	build, err := catalog.BuildMasters(okItems, run.ID)
	if err != nil {
		return fmt.Errorf("сборка мастер-каталога: %w", err)
	}

	run.Counts = catalog.RunCounts{
		Masters:            len(build.Masters),
		MasterLinks:        len(build.Links),
		MarketSnapshotRows: len(build.Rows),
	}
	if run.Counts.Masters == 0 {
		return fmt.Errorf("прогон не собрал ни одного мастер-продукта")
	}

	if err := p.store.ReplaceCatalog(run.ID, build); err != nil {
		return fmt.Errorf("не удалось опубликовать каталог прогона: %w", err)
	}

	// Публикация среза для читателей: атомарная подмена указателя,
	// конкурентные точечные запросы не видят недособранный срез
	p.snapshots.Publish(catalog.NewMarketView(run.ID, build, okItems))
	return nil
}

// parseAll разбирает строки параллельно: разбор - чистая функция,
// разделяемого состояния нет, блокировки не нужны
func (p *Pipeline) parseAll(ctx context.Context, rs *rules.Ruleset, items []*catalog.SupplierItem) {
	parser := NewParser(rs)

	jobs := make(chan *catalog.SupplierItem)
	var wg sync.WaitGroup

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				parser.ParseItem(item)
			}
		}()
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		jobs <- item
	}
	close(jobs)
	wg.Wait()
}

// finalize закрывает прогон, не затирая уже возникшую ошибку прогона
func (p *Pipeline) finalize(run *catalog.PipelineRun) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	if err := p.store.FinalizeRun(run); err != nil {
		p.logger.Error("не удалось финализировать прогон", "run_id", run.ID, "error", err)
	}
}
