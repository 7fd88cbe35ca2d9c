package services

import (
	"fmt"
	"strings"

	"catalogserver/catalog"
	"catalogserver/database"
	"catalogserver/matching"
	apperrors "catalogserver/server/errors"
	"catalogserver/server/types"
)

// MatchingService сервис точечного подбора самой дешевой допустимой
// замены. Работает только по опубликованному срезу рынка: пока идет
// прогон, запросы обслуживаются предыдущим полным срезом.
type MatchingService struct {
	snapshots *catalog.SnapshotStore
	matcher   *matching.Matcher
	rulesets  *rulesetCache
}

// NewMatchingService создает сервис подбора
func NewMatchingService(snapshots *catalog.SnapshotStore, ruleDB *database.RuleDB) *MatchingService {
	return &MatchingService{
		snapshots: snapshots,
		matcher:   matching.NewMatcher(),
		rulesets:  newRulesetCache(ruleDB),
	}
}

// Resolve подбирает предложение для эталонной позиции.
// Эталон задается либо идентификатором позиции из текущего среза,
// либо свободным текстом, который разбирается тем же пайплайном,
// что и строки прайс-листов.
func (s *MatchingService) Resolve(req *types.ResolveRequest) (*types.ResolveResponse, error) {
	view := s.snapshots.Current()
	if view == nil {
		return nil, apperrors.NewServiceUnavailableError("срез рынка еще не опубликован, выполните импорт", nil)
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	ref, err := s.resolveReference(req, view)
	if err != nil {
		return nil, err
	}
	if ref.CategoryCode == "" {
		return nil, apperrors.NewValidationError("эталон не классифицирован: категория не распознана", nil)
	}

	pool := view.CandidatePool(ref.CategoryCode)
	result := s.matcher.Resolve(ref, pool, req.BrandCritical, quantity)

	resp := &types.ResolveResponse{
		Status:     result.Status,
		Reason:     result.Reason,
		DebugID:    result.DebugID,
		Candidates: types.NewCandidateResponses(result.Candidates),
		Rejected:   types.NewRejectedCounts(result.Rejected),
	}
	if result.Offer != nil {
		item, _ := view.ItemByID(result.Offer.SupplierItemID)
		resp.Offer = types.NewOfferResponse(result.Offer, item)
	}
	if req.Debug {
		resp.Reference = &types.ReferenceEcho{
			CategoryCode: ref.CategoryCode,
			BaseProduct:  ref.BaseProduct,
			Lemmas:       ref.Name.LemmaList(),
		}
	}
	return resp, nil
}

func (s *MatchingService) resolveReference(req *types.ResolveRequest, view *catalog.MarketView) (*catalog.ParsedItem, error) {
	switch {
	case req.ReferenceItemID != nil:
		item, ok := view.ItemByID(*req.ReferenceItemID)
		if !ok {
			return nil, apperrors.NewNotFoundError(
				fmt.Sprintf("позиция %d не найдена в текущем срезе", *req.ReferenceItemID), nil)
		}
		return item.Parsed, nil

	case strings.TrimSpace(req.ReferenceText) != "":
		parser, err := s.rulesets.Parser()
		if err != nil {
			return nil, apperrors.NewInternalError("не удалось загрузить активный набор правил", err)
		}
		return parser.Parse(req.ReferenceText), nil

	default:
		return nil, apperrors.NewValidationError("укажите reference_item_id или reference_text", nil)
	}
}
