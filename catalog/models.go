package catalog

import (
	"fmt"
	"time"

	"catalogserver/extractors"
	"catalogserver/normalization"
)

// Disposition вердикт валидатора качества для разобранной записи
type Disposition string

const (
	DispositionOK      Disposition = "OK"
	DispositionHidden  Disposition = "HIDDEN"
	DispositionInvalid Disposition = "INVALID"
)

// RunStatus состояние прогона пайплайна. Терминальные состояния неизменяемы.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusOK      RunStatus = "OK"
	RunStatusFailed  RunStatus = "FAILED"
)

// ParsedItem производный результат разбора наименования. Не хранится
// дословно: пересчитывается на каждом прогоне из сырого наименования
// по активной версии набора правил.
type ParsedItem struct {
	RawName            string                 `json:"raw_name"`
	RulesetID          int64                  `json:"ruleset_id"`
	CategoryCode       string                 `json:"category_code"`
	CategoryConfidence float64                `json:"category_confidence"`
	BaseProduct        string                 `json:"base_product"`
	BaseConfidence     float64                `json:"base_product_confidence"`
	Attributes         extractors.Attributes  `json:"attributes"`
	ParseConfidence    float64                `json:"parse_confidence"`
	Disposition        Disposition            `json:"disposition"`
	ReasonCodes        []string               `json:"reason_codes,omitempty"`

	// Токены нужны скорингу кандидатов и поисковому индексу
	Name normalization.TokenizedName `json:"-"`
}

// SupplierItem строка прайс-листа поставщика. После включения в прогон
// запись неизменна, кроме обновления цены и доступности.
type SupplierItem struct {
	ID         int64   `json:"id"`
	SupplierID int64   `json:"supplier_id"`
	RawName    string  `json:"raw_name"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	Unit       string  `json:"unit"`
	PackQty    float64 `json:"pack_qty"`

	// Каноническая цена за базовую единицу (кг или л). nil, пока не
	// пройдена нормализация цены.
	PricePerBaseUnit *float64 `json:"price_per_base_unit,omitempty"`

	Parsed *ParsedItem `json:"parsed,omitempty"`
}

// MasterProduct каноническая сущность, объединяющая семантически
// эквивалентные позиции поставщиков для межпоставщицкого сравнения цен
type MasterProduct struct {
	ID           int64   `json:"id"`
	Key          string  `json:"key"`
	CategoryCode string  `json:"category_code"`
	BaseProduct  string  `json:"base_product"`
	Caliber      *string `json:"caliber,omitempty"`
	Name         string  `json:"name"`
}

// MasterLink связь мастер-продукта с позицией поставщика.
// Инвариант: позиция поставщика состоит не более чем в одной
// активной связи одновременно.
type MasterLink struct {
	MasterID       int64 `json:"master_id"`
	SupplierItemID int64 `json:"supplier_item_id"`
	RunID          int64 `json:"run_id"`
}

// MarketSnapshotRow лучшая цена пары (мастер, поставщик) по состоянию
// на последний успешный прогон. Срез заменяется целиком на каждом
// прогоне: сначала запись, потом переключение, частичных обновлений нет.
type MarketSnapshotRow struct {
	MasterID         int64   `json:"master_id"`
	SupplierID       int64   `json:"supplier_id"`
	SupplierItemID   int64   `json:"supplier_item_id"`
	Price            float64 `json:"price"`
	PricePerBaseUnit float64 `json:"price_per_base_unit"`
	AsOfRunID        int64   `json:"as_of_run_id"`
}

// RunCounts счетчики прогона для приемочной проверки
type RunCounts struct {
	Masters            int `json:"masters"`
	MasterLinks        int `json:"master_links"`
	MarketSnapshotRows int `json:"market_snapshot_rows"`
}

// PipelineRun запись аудита прогона пайплайна. Создается при старте,
// финализируется ровно один раз; журнал прогонов только пополняется.
type PipelineRun struct {
	ID           int64          `json:"run_id"`
	UUID         string         `json:"run_uuid"`
	RulesetID    int64          `json:"ruleset_id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Status       RunStatus      `json:"status"`
	Counts       RunCounts      `json:"counts"`
	Dispositions map[string]int `json:"dispositions,omitempty"`
	ReasonCodes  map[string]int `json:"reason_codes,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Accepted проверяет приемочный контракт: статус OK и все счетчики > 0
func (r *PipelineRun) Accepted() bool {
	return r.Status == RunStatusOK &&
		r.Counts.Masters > 0 &&
		r.Counts.MasterLinks > 0 &&
		r.Counts.MarketSnapshotRows > 0
}

// ComputePricePerBaseUnit приводит цену позиции к цене за базовую
// единицу (килограмм; литр считается эквивалентным килограмму).
// Возвращает nil, если цена не приводится: отсутствует вес для штучной
// позиции или цена не положительна. nil здесь означает "не приводится",
// а не "ноль".
func (si *SupplierItem) ComputePricePerBaseUnit() *float64 {
	if si.Price <= 0 || si.Parsed == nil {
		return nil
	}

	switch si.Unit {
	case "кг", "kg", "л", "l":
		ppu := si.Price
		return &ppu
	case "шт", "уп", "pc", "pack", "":
		var unitKg *float64
		attrs := si.Parsed.Attributes
		if attrs.PieceWeightG != nil {
			kg := *attrs.PieceWeightG / 1000
			unitKg = &kg
		} else if net := attrs.NetWeightKg(); net != nil {
			unitKg = net
		}
		if unitKg == nil || *unitKg <= 0 {
			return nil
		}
		qty := si.PackQty
		if qty <= 0 {
			qty = 1
		}
		ppu := si.Price / (*unitKg * qty)
		return &ppu
	default:
		return nil
	}
}

// IdentityKey ключ канонической идентичности мастер-продукта:
// категория + базовый продукт + калибр (если есть)
func IdentityKey(categoryCode, baseProduct string, caliber *string) string {
	if caliber != nil {
		return fmt.Sprintf("%s|%s|%s", categoryCode, baseProduct, *caliber)
	}
	return fmt.Sprintf("%s|%s", categoryCode, baseProduct)
}
