package services

import (
	"strings"

	"catalogserver/database"
	apperrors "catalogserver/server/errors"
	"catalogserver/server/types"
)

// SearchService быстрый поиск по каталогу. Запрос нормализуется тем же
// токенизатором, что и наименования при импорте, поэтому "сибас охл"
// находит "Сибас охлажденный 300-400", несмотря на разные словоформы.
type SearchService struct {
	catalogDB *database.CatalogDB
	rulesets  *rulesetCache
}

// NewSearchService создает сервис поиска
func NewSearchService(catalogDB *database.CatalogDB, ruleDB *database.RuleDB) *SearchService {
	return &SearchService{
		catalogDB: catalogDB,
		rulesets:  newRulesetCache(ruleDB),
	}
}

// Search ищет позиции каталога по свободному тексту
func (s *SearchService) Search(query string, limit int) (*types.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("поисковый запрос пуст", nil)
	}

	tokenizer, err := s.rulesets.Tokenizer()
	if err != nil {
		return nil, apperrors.NewInternalError("не удалось загрузить активный набор правил", err)
	}

	name := tokenizer.Tokenize(query)
	lemmas := name.LemmaList()
	if len(lemmas) == 0 {
		return nil, apperrors.NewValidationError("запрос не содержит значимых токенов", nil)
	}

	entries, err := s.catalogDB.QuickSearch(lemmas, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("поиск по каталогу не выполнен", err)
	}

	resp := &types.SearchResponse{
		Query:   query,
		Lemmas:  lemmas,
		Total:   len(entries),
		Results: make([]types.SearchResultResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Results = append(resp.Results, types.SearchResultResponse{
			ItemID:           entry.SupplierItemID,
			SupplierID:       entry.SupplierID,
			RawName:          entry.RawName,
			CategoryCode:     entry.CategoryCode,
			BaseProduct:      entry.BaseProduct,
			Price:            entry.Price,
			PricePerBaseUnit: entry.PricePerBaseUnit,
		})
	}
	return resp, nil
}
