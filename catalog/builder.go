package catalog

import (
	"fmt"
	"sort"
)

// BuildResult результат сборки мастер-каталога для одного прогона
type BuildResult struct {
	Masters []MasterProduct
	Links   []MasterLink
	Rows    []MarketSnapshotRow
}

// BuildMasters группирует позиции с диспозицией OK в мастер-продукты по
// ключу (категория, базовый продукт, калибр) и выводит срез рынка:
// лучшая приведенная цена на пару (мастер, поставщик).
//
// Сборка детерминирована: мастера нумеруются в порядке сортировки
// ключей, поэтому повторный прогон на неизменном входе дает идентичное
// содержимое. Позиции без категории, базового продукта или приведенной
// цены в сборку не попадают - такие должны были быть отсеяны валидатором,
// их появление здесь означает ошибку вызывающей стороны.
func BuildMasters(items []*SupplierItem, runID int64) (*BuildResult, error) {
	grouped := make(map[string][]*SupplierItem)

	for _, item := range items {
		if item.Parsed == nil || item.Parsed.Disposition != DispositionOK {
			continue
		}
		if item.Parsed.CategoryCode == "" {
			return nil, fmt.Errorf("позиция %d прошла в сборку без категории", item.ID)
		}
		if item.PricePerBaseUnit == nil {
			return nil, fmt.Errorf("позиция %d прошла в сборку без приведенной цены", item.ID)
		}
		key := IdentityKey(item.Parsed.CategoryCode, item.Parsed.BaseProduct, item.Parsed.Attributes.Caliber)
		grouped[key] = append(grouped[key], item)
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &BuildResult{}

	for i, key := range keys {
		group := grouped[key]
		first := group[0].Parsed

		master := MasterProduct{
			ID:           int64(i + 1),
			Key:          key,
			CategoryCode: first.CategoryCode,
			BaseProduct:  first.BaseProduct,
			Caliber:      first.Attributes.Caliber,
			Name:         masterName(first.CategoryCode, first.BaseProduct, first.Attributes.Caliber),
		}
		result.Masters = append(result.Masters, master)

		// Лучшая цена по каждому поставщику внутри мастера
		bestBySupplier := make(map[int64]*SupplierItem)
		for _, item := range group {
			result.Links = append(result.Links, MasterLink{
				MasterID:       master.ID,
				SupplierItemID: item.ID,
				RunID:          runID,
			})
			best, seen := bestBySupplier[item.SupplierID]
			if !seen || *item.PricePerBaseUnit < *best.PricePerBaseUnit ||
				(*item.PricePerBaseUnit == *best.PricePerBaseUnit && item.ID < best.ID) {
				bestBySupplier[item.SupplierID] = item
			}
		}

		supplierIDs := make([]int64, 0, len(bestBySupplier))
		for supplierID := range bestBySupplier {
			supplierIDs = append(supplierIDs, supplierID)
		}
		sort.Slice(supplierIDs, func(a, b int) bool { return supplierIDs[a] < supplierIDs[b] })

		for _, supplierID := range supplierIDs {
			item := bestBySupplier[supplierID]
			result.Rows = append(result.Rows, MarketSnapshotRow{
				MasterID:         master.ID,
				SupplierID:       supplierID,
				SupplierItemID:   item.ID,
				Price:            item.Price,
				PricePerBaseUnit: *item.PricePerBaseUnit,
				AsOfRunID:        runID,
			})
		}
	}

	return result, nil
}

func masterName(categoryCode, baseProduct string, caliber *string) string {
	name := baseProduct
	if name == "" {
		name = categoryCode
	}
	if caliber != nil {
		name = fmt.Sprintf("%s %s", name, *caliber)
	}
	return name
}
