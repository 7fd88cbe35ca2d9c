package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"catalogserver/catalog"
)

// Ожидаемые колонки прайс-листа. Порядок не важен, заголовки
// сопоставляются по известным именам (русским и английским).
var headerAliases = map[string]string{
	"наименование": "name",
	"название":     "name",
	"товар":        "name",
	"name":         "name",
	"цена":         "price",
	"price":        "price",
	"ед":           "unit",
	"ед.изм":       "unit",
	"единица":      "unit",
	"unit":         "unit",
	"упаковка":     "pack_qty",
	"кол-во":       "pack_qty",
	"pack_qty":     "pack_qty",
	"валюта":       "currency",
	"currency":     "currency",
}

// ParseError строка, которую не удалось разобрать. Ошибки разбора строк
// не прерывают импорт: они накапливаются для отчета.
type ParseError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result результат чтения прайс-листа
type Result struct {
	Items  []*catalog.SupplierItem `json:"items"`
	Errors []ParseError            `json:"errors,omitempty"`
}

// ReadXLSX читает прайс-лист из XLSX. Берется первый лист книги,
// первая строка трактуется как заголовок.
func ReadXLSX(r io.Reader, supplierID int64) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("в книге нет листов")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать лист %s: %w", sheets[0], err)
	}

	return parseRows(rows, supplierID)
}

// ReadCSV читает прайс-лист из CSV. Выгрузки 1С приходят в cp1251,
// поэтому при cp1251=true входной поток декодируется из Windows-1251.
func ReadCSV(r io.Reader, supplierID int64, cp1251 bool) (*Result, error) {
	if cp1251 {
		r = transform.NewReader(r, charmap.Windows1251.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать CSV: %w", err)
		}
		rows = append(rows, record)
	}

	return parseRows(rows, supplierID)
}

// parseRows разбирает таблицу с заголовком в строки прайс-листа
func parseRows(rows [][]string, supplierID int64) (*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("прайс-лист пуст")
	}

	columns := mapHeader(rows[0])
	if _, ok := columns["name"]; !ok {
		return nil, fmt.Errorf("в заголовке не найдена колонка наименования")
	}
	if _, ok := columns["price"]; !ok {
		return nil, fmt.Errorf("в заголовке не найдена колонка цены")
	}

	result := &Result{}
	for i, row := range rows[1:] {
		rowNum := i + 2

		name := cell(row, columns["name"])
		if strings.TrimSpace(name) == "" {
			continue
		}

		price, err := parsePrice(cell(row, columns["price"]))
		if err != nil {
			result.Errors = append(result.Errors, ParseError{
				Row:     rowNum,
				Message: fmt.Sprintf("цена не разобрана: %v", err),
			})
			// Строка сохраняется с нулевой ценой: правило PRICE_REQUIRED
			// пометит ее INVALID, но не потеряет
			price = 0
		}

		item := &catalog.SupplierItem{
			SupplierID: supplierID,
			RawName:    strings.TrimSpace(name),
			Price:      price,
			Currency:   "RUB",
		}
		if unitCol, ok := columns["unit"]; ok {
			item.Unit = strings.ToLower(strings.TrimSpace(cell(row, unitCol)))
		}
		if currencyCol, ok := columns["currency"]; ok {
			if currency := strings.TrimSpace(cell(row, currencyCol)); currency != "" {
				item.Currency = strings.ToUpper(currency)
			}
		}
		if qtyCol, ok := columns["pack_qty"]; ok {
			if qty, err := parsePrice(cell(row, qtyCol)); err == nil {
				item.PackQty = qty
			}
		}

		result.Items = append(result.Items, item)
	}

	if len(result.Items) == 0 {
		return nil, fmt.Errorf("в прайс-листе не найдено ни одной строки с наименованием")
	}
	return result, nil
}

func mapHeader(header []string) map[string]int {
	columns := make(map[string]int)
	for i, raw := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(raw, ".")))
		if canonical, ok := headerAliases[key]; ok {
			if _, taken := columns[canonical]; !taken {
				columns[canonical] = i
			}
		}
	}
	return columns
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parsePrice разбирает число с запятой или точкой, с пробелами-разрядами
func parsePrice(s string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0, fmt.Errorf("пустое значение")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%q не число", s)
	}
	return v, nil
}
