package services

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"catalogserver/catalog"
	apperrors "catalogserver/server/errors"
)

// ReportService экспорт текущего среза рынка в Excel-отчет для
// закупщиков: мастер-продукты с лучшими ценами по поставщикам
type ReportService struct {
	snapshots *catalog.SnapshotStore
}

// NewReportService создает сервис отчетов
func NewReportService(snapshots *catalog.SnapshotStore) *ReportService {
	return &ReportService{snapshots: snapshots}
}

// ExportMarketSnapshot выгружает опубликованный срез рынка в XLSX.
// Возвращает сериализованную книгу для отдачи клиенту.
func (s *ReportService) ExportMarketSnapshot() (*excelize.File, error) {
	view := s.snapshots.Current()
	if view == nil {
		return nil, apperrors.NewNotFoundError("срез рынка еще не опубликован, выполните импорт", nil)
	}

	f := excelize.NewFile()

	sheetName := "Срез рынка"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, apperrors.NewInternalError("не удалось создать лист отчета", err)
	}

	// Стиль заголовков
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, apperrors.NewInternalError("не удалось создать стиль заголовков", err)
	}

	headers := []string{
		"Мастер-продукт", "Категория", "Базовый продукт", "Калибр",
		"Поставщик", "Позиция", "Наименование", "Цена", "Цена за кг/л",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	mastersByID := make(map[int64]catalog.MasterProduct, len(view.Masters))
	for _, master := range view.Masters {
		mastersByID[master.ID] = master
	}

	for rowIdx, snapRow := range view.Rows {
		row := rowIdx + 2
		master := mastersByID[snapRow.MasterID]

		caliber := ""
		if master.Caliber != nil {
			caliber = *master.Caliber
		}
		rawName := ""
		if item, ok := view.ItemByID(snapRow.SupplierItemID); ok {
			rawName = item.RawName
		}

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), master.Name)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), master.CategoryCode)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), master.BaseProduct)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), caliber)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), snapRow.SupplierID)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), snapRow.SupplierItemID)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), rawName)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), snapRow.Price)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), snapRow.PricePerBaseUnit)
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 18)
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	return f, nil
}

// ReportFilename имя файла выгрузки для заголовка Content-Disposition
func (s *ReportService) ReportFilename() string {
	return fmt.Sprintf("market_snapshot_%s.xlsx", time.Now().Format("20060102_150405"))
}
