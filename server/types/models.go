package types

import (
	"catalogserver/catalog"
	"catalogserver/matching"
)

// Файл собирает DTO внешнего API. Внутренние модели каталога и матчера
// наружу не отдаются напрямую: ответы собираются из этих структур.

// ImportResponse ответ на загрузку прайс-листа
type ImportResponse struct {
	RunID        int64          `json:"run_id"`
	RunUUID      string         `json:"run_uuid"`
	Status       string         `json:"status"`
	SupplierID   int64          `json:"supplier_id"`
	TotalRows    int            `json:"total_rows"`
	ParseErrors  []string       `json:"parse_errors,omitempty"`
	Counts       RunCounts      `json:"counts"`
	Dispositions map[string]int `json:"dispositions,omitempty"`
	ReasonCounts map[string]int `json:"reason_counts,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
}

// RunCounts счетчики приемочного контракта прогона
type RunCounts struct {
	Masters            int `json:"masters"`
	MasterLinks        int `json:"master_links"`
	MarketSnapshotRows int `json:"market_snapshot_rows"`
}

// ResolveRequest запрос на подбор самого дешевого допустимого предложения.
// BrandCritical задается вызывающей стороной: при true брендированный
// эталон принимает только тот же бренд, небрендированный - только ту же
// страну происхождения, порог приемки поднимается.
type ResolveRequest struct {
	ReferenceItemID *int64  `json:"reference_item_id,omitempty"`
	ReferenceText   string  `json:"reference_text,omitempty"`
	BrandCritical   bool    `json:"brand_critical"`
	Quantity        float64 `json:"quantity"`
	Debug           bool    `json:"debug,omitempty"`
}

// OfferResponse выигравшее предложение
type OfferResponse struct {
	ItemID           int64    `json:"item_id"`
	SupplierID       int64    `json:"supplier_id"`
	RawName          string   `json:"raw_name"`
	CategoryCode     string   `json:"category_code"`
	BaseProduct      string   `json:"base_product,omitempty"`
	Score            float64  `json:"score"`
	UnitPrice        float64  `json:"unit_price"`
	PricePerBaseUnit *float64 `json:"price_per_base_unit,omitempty"`
	TotalCost        float64  `json:"total_cost"`
}

// CandidateResponse кандидат из отладочной выдачи
type CandidateResponse struct {
	ItemID    int64   `json:"item_id"`
	RawName   string  `json:"raw_name"`
	Score     float64 `json:"score"`
	TotalCost float64 `json:"total_cost"`
}

// ResolveResponse ответ на запрос подбора
type ResolveResponse struct {
	Status     string              `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	DebugID    string              `json:"debug_id"`
	Offer      *OfferResponse      `json:"offer,omitempty"`
	Candidates []CandidateResponse `json:"candidates,omitempty"`
	Rejected   map[string]int      `json:"rejected,omitempty"`
	Reference  *ReferenceEcho      `json:"reference,omitempty"`
}

// ReferenceEcho разобранный эталон (для отладки)
type ReferenceEcho struct {
	CategoryCode string   `json:"category_code"`
	BaseProduct  string   `json:"base_product,omitempty"`
	Lemmas       []string `json:"lemmas,omitempty"`
}

// SearchResultResponse одна строка быстрого поиска
type SearchResultResponse struct {
	ItemID           int64    `json:"item_id"`
	SupplierID       int64    `json:"supplier_id"`
	RawName          string   `json:"raw_name"`
	CategoryCode     string   `json:"category_code,omitempty"`
	BaseProduct      string   `json:"base_product,omitempty"`
	Price            float64  `json:"price"`
	PricePerBaseUnit *float64 `json:"price_per_base_unit,omitempty"`
}

// SearchResponse ответ быстрого поиска
type SearchResponse struct {
	Query   string                 `json:"query"`
	Lemmas  []string               `json:"lemmas"`
	Total   int                    `json:"total"`
	Results []SearchResultResponse `json:"results"`
}

// RunResponse журнальная запись прогона
type RunResponse struct {
	RunID        int64          `json:"run_id"`
	RunUUID      string         `json:"run_uuid"`
	RulesetID    int64          `json:"ruleset_id"`
	Status       string         `json:"status"`
	StartedAt    string         `json:"started_at"`
	FinishedAt   string         `json:"finished_at,omitempty"`
	Counts       RunCounts      `json:"counts"`
	Dispositions map[string]int `json:"dispositions,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// NewRunResponse собирает RunResponse из записи прогона
func NewRunResponse(run *catalog.PipelineRun) RunResponse {
	resp := RunResponse{
		RunID:        run.ID,
		RunUUID:      run.UUID,
		RulesetID:    run.RulesetID,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		Counts:       NewRunCounts(run.Counts),
		Dispositions: run.Dispositions,
		ErrorMessage: run.Error,
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// NewOfferResponse собирает OfferResponse из предложения матчера
// с деталями выигравшей позиции
func NewOfferResponse(offer *matching.Offer, item *catalog.SupplierItem) *OfferResponse {
	if offer == nil {
		return nil
	}
	resp := &OfferResponse{
		ItemID:           offer.SupplierItemID,
		SupplierID:       offer.SupplierID,
		Score:            offer.Score,
		UnitPrice:        offer.Price,
		TotalCost:        offer.TotalCost,
	}
	ppu := offer.PricePerBaseUnit
	resp.PricePerBaseUnit = &ppu
	if item != nil {
		resp.RawName = item.RawName
		if item.Parsed != nil {
			resp.CategoryCode = item.Parsed.CategoryCode
			resp.BaseProduct = item.Parsed.BaseProduct
		}
	}
	return resp
}

// NewCandidateResponses собирает отладочный список кандидатов
func NewCandidateResponses(candidates []matching.Candidate) []CandidateResponse {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]CandidateResponse, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, CandidateResponse{
			ItemID:    cand.Item.ID,
			RawName:   cand.Item.RawName,
			Score:     cand.Score,
			TotalCost: cand.TotalCost,
		})
	}
	return out
}

// NewRejectedCounts переводит счетчики отказов в сериализуемый вид
func NewRejectedCounts(rejected map[matching.RejectReason]int) map[string]int {
	if len(rejected) == 0 {
		return nil
	}
	out := make(map[string]int, len(rejected))
	for reason, count := range rejected {
		out[string(reason)] = count
	}
	return out
}

// NewRunCounts собирает RunCounts из модели каталога
func NewRunCounts(c catalog.RunCounts) RunCounts {
	return RunCounts{
		Masters:            c.Masters,
		MasterLinks:        c.MasterLinks,
		MarketSnapshotRows: c.MarketSnapshotRows,
	}
}
