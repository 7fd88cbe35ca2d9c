package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"catalogserver/catalog"
	"catalogserver/database"
	"catalogserver/importer"
	"catalogserver/pipeline"
	apperrors "catalogserver/server/errors"
	"catalogserver/server/types"
)

// PipelineService сервис пакетного импорта прайс-листов.
//
// Импорт заменяет позиции поставщика целиком: строки из нового файла
// вытесняют прежний прайс-лист этого поставщика, позиции остальных
// поставщиков входят в прогон без изменений.
type PipelineService struct {
	pipeline  *pipeline.Pipeline
	catalogDB *database.CatalogDB
	logger    *slog.Logger

	// Прогоны сериализуются: каталог заменяется целиком, параллельные
	// сборки двух прайс-листов затирали бы результаты друг друга
	runMu sync.Mutex
}

// NewPipelineService создает сервис импорта
func NewPipelineService(pl *pipeline.Pipeline, catalogDB *database.CatalogDB, logger *slog.Logger) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		pipeline:  pl,
		catalogDB: catalogDB,
		logger:    logger,
	}
}

// ImportPriceList импортирует прайс-лист поставщика и запускает прогон
// пайплайна над объединенным набором позиций всех поставщиков
func (s *PipelineService) ImportPriceList(ctx context.Context, file io.Reader, filename string, supplierID int64) (*types.ImportResponse, error) {
	if supplierID <= 0 {
		return nil, apperrors.NewValidationError("идентификатор поставщика обязателен", nil)
	}

	parsed, err := s.readFile(file, filename, supplierID)
	if err != nil {
		return nil, err
	}

	started := time.Now()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	items, err := s.mergeWithExisting(parsed.Items, supplierID)
	if err != nil {
		return nil, apperrors.NewInternalError("не удалось прочитать текущие позиции каталога", err)
	}

	run, err := s.pipeline.Run(ctx, items)
	if err != nil {
		if run != nil {
			return s.buildResponse(run, parsed, supplierID, started), nil
		}
		return nil, apperrors.NewInternalError("прогон пайплайна не выполнен", err)
	}

	return s.buildResponse(run, parsed, supplierID, started), nil
}

// RefreshCatalog пересчитывает каталог по сохраненным позициям.
// Используется планировщиком и при смене активного набора правил.
func (s *PipelineService) RefreshCatalog(ctx context.Context) (*catalog.PipelineRun, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	items, err := s.catalogDB.GetAllSupplierItems()
	if err != nil {
		return nil, apperrors.NewInternalError("не удалось прочитать позиции каталога", err)
	}
	if len(items) == 0 {
		return nil, apperrors.NewNotFoundError("каталог пуст, пересчитывать нечего", nil)
	}

	run, err := s.pipeline.Run(ctx, items)
	if err != nil {
		return run, apperrors.NewInternalError("пересчет каталога не выполнен", err)
	}
	return run, nil
}

// GetRun возвращает журнальную запись прогона
func (s *PipelineService) GetRun(id int64) (*types.RunResponse, error) {
	run, err := s.catalogDB.GetRun(id)
	if err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("прогон %d не найден", id), err)
	}
	resp := types.NewRunResponse(run)
	return &resp, nil
}

// ListRuns возвращает последние прогоны
func (s *PipelineService) ListRuns(limit int) ([]types.RunResponse, error) {
	runs, err := s.catalogDB.ListRuns(limit)
	if err != nil {
		return nil, apperrors.NewInternalError("не удалось прочитать журнал прогонов", err)
	}
	out := make([]types.RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, types.NewRunResponse(run))
	}
	return out, nil
}

func (s *PipelineService) readFile(file io.Reader, filename string, supplierID int64) (*importer.Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx":
		result, err := importer.ReadXLSX(file, supplierID)
		if err != nil {
			return nil, apperrors.NewValidationError("не удалось разобрать XLSX файл", err)
		}
		return result, nil
	case ".csv":
		result, err := importer.ReadCSV(file, supplierID, true)
		if err != nil {
			return nil, apperrors.NewValidationError("не удалось разобрать CSV файл", err)
		}
		return result, nil
	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("неподдерживаемый формат файла: %s (ожидается .xlsx или .csv)", ext), nil)
	}
}

// mergeWithExisting собирает полный набор позиций прогона: новый
// прайс-лист поставщика плюс сохраненные позиции остальных поставщиков
func (s *PipelineService) mergeWithExisting(incoming []*catalog.SupplierItem, supplierID int64) ([]*catalog.SupplierItem, error) {
	existing, err := s.catalogDB.GetAllSupplierItems()
	if err != nil {
		return nil, err
	}

	items := make([]*catalog.SupplierItem, 0, len(existing)+len(incoming))
	for _, item := range existing {
		if item.SupplierID != supplierID {
			items = append(items, item)
		}
	}
	items = append(items, incoming...)
	return items, nil
}

func (s *PipelineService) buildResponse(run *catalog.PipelineRun, parsed *importer.Result, supplierID int64, started time.Time) *types.ImportResponse {
	resp := &types.ImportResponse{
		RunID:        run.ID,
		RunUUID:      run.UUID,
		Status:       string(run.Status),
		SupplierID:   supplierID,
		TotalRows:    len(parsed.Items),
		Counts:       types.NewRunCounts(run.Counts),
		Dispositions: run.Dispositions,
		ReasonCounts: run.ReasonCodes,
		DurationMs:   time.Since(started).Milliseconds(),
	}
	for _, pe := range parsed.Errors {
		resp.ParseErrors = append(resp.ParseErrors, fmt.Sprintf("строка %d: %s", pe.Row, pe.Message))
	}
	return resp
}
