package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"catalogserver/catalog"
)

// CatalogDB хранилище каталога: строки прайс-листов, мастер-продукты,
// связи, срез рынка и журнал прогонов. Срез публикуется по схеме
// "запись, затем переключение указателя": строки нового прогона
// записываются рядом со старыми, и только потом указатель current_run
// переводится на новый прогон в той же транзакции.
type CatalogDB struct {
	db *sql.DB
}

// OpenCatalogDB открывает базу каталога и применяет миграции
func OpenCatalogDB(path string) (*CatalogDB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу каталога: %w", err)
	}
	cdb := &CatalogDB{db: db}
	if err := cdb.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return cdb, nil
}

// Close закрывает соединение
func (c *CatalogDB) Close() error {
	return c.db.Close()
}

func (c *CatalogDB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS supplier_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			supplier_id INTEGER NOT NULL,
			raw_name TEXT NOT NULL,
			price REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT 'RUB',
			unit TEXT NOT NULL DEFAULT '',
			pack_qty REAL NOT NULL DEFAULT 0,
			lemmas TEXT NOT NULL DEFAULT '',
			category_code TEXT NOT NULL DEFAULT '',
			base_product TEXT NOT NULL DEFAULT '',
			disposition TEXT NOT NULL DEFAULT '',
			reason_codes TEXT NOT NULL DEFAULT '',
			price_per_base_unit REAL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(supplier_id, raw_name)
		)`,
		`CREATE TABLE IF NOT EXISTS master_products (
			run_id INTEGER NOT NULL,
			master_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			category_code TEXT NOT NULL,
			base_product TEXT NOT NULL,
			caliber TEXT,
			name TEXT NOT NULL,
			PRIMARY KEY (run_id, master_id)
		)`,
		`CREATE TABLE IF NOT EXISTS master_links (
			run_id INTEGER NOT NULL,
			master_id INTEGER NOT NULL,
			supplier_item_id INTEGER NOT NULL,
			PRIMARY KEY (run_id, master_id, supplier_item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS market_snapshot (
			run_id INTEGER NOT NULL,
			master_id INTEGER NOT NULL,
			supplier_id INTEGER NOT NULL,
			supplier_item_id INTEGER NOT NULL,
			price REAL NOT NULL,
			price_per_base_unit REAL NOT NULL,
			PRIMARY KEY (run_id, master_id, supplier_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			ruleset_id INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			status TEXT NOT NULL,
			masters INTEGER NOT NULL DEFAULT 0,
			master_links INTEGER NOT NULL DEFAULT 0,
			market_snapshot_rows INTEGER NOT NULL DEFAULT 0,
			dispositions TEXT NOT NULL DEFAULT '{}',
			reason_codes TEXT NOT NULL DEFAULT '{}',
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS current_run (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			run_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_supplier_items_search ON supplier_items(disposition, price)`,
	}
	for _, migration := range migrations {
		if _, err := c.db.Exec(migration); err != nil {
			return fmt.Errorf("миграция базы каталога: %w", err)
		}
	}
	return nil
}

// CreateRun создает запись прогона в статусе RUNNING.
// Идентификаторы прогонов монотонно возрастают.
func (c *CatalogDB) CreateRun(run *catalog.PipelineRun) (int64, error) {
	res, err := c.db.Exec(
		"INSERT INTO pipeline_runs (uuid, ruleset_id, started_at, status) VALUES (?, ?, ?, ?)",
		run.UUID, run.RulesetID, run.StartedAt, run.Status)
	if err != nil {
		return 0, fmt.Errorf("не удалось создать запись прогона: %w", err)
	}
	return res.LastInsertId()
}

// FinalizeRun переводит прогон в терминальный статус. Терминальные
// состояния неизменяемы: повторная финализация возвращает ошибку.
func (c *CatalogDB) FinalizeRun(run *catalog.PipelineRun) error {
	dispositions, err := json.Marshal(run.Dispositions)
	if err != nil {
		return err
	}
	reasonCodes, err := json.Marshal(run.ReasonCodes)
	if err != nil {
		return err
	}

	res, err := c.db.Exec(
		`UPDATE pipeline_runs
		 SET finished_at = ?, status = ?, masters = ?, master_links = ?,
		     market_snapshot_rows = ?, dispositions = ?, reason_codes = ?, error = ?
		 WHERE id = ? AND status = ?`,
		run.FinishedAt, run.Status,
		run.Counts.Masters, run.Counts.MasterLinks, run.Counts.MarketSnapshotRows,
		string(dispositions), string(reasonCodes), run.Error,
		run.ID, catalog.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("не удалось финализировать прогон %d: %w", run.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("прогон %d уже финализирован, терминальный статус неизменяем", run.ID)
	}
	return nil
}

// GetRun возвращает запись прогона по id
func (c *CatalogDB) GetRun(id int64) (*catalog.PipelineRun, error) {
	run := &catalog.PipelineRun{ID: id}
	var finishedAt sql.NullTime
	var dispositions, reasonCodes string

	err := c.db.QueryRow(
		`SELECT uuid, ruleset_id, started_at, finished_at, status,
		        masters, master_links, market_snapshot_rows, dispositions, reason_codes, error
		 FROM pipeline_runs WHERE id = ?`, id).
		Scan(&run.UUID, &run.RulesetID, &run.StartedAt, &finishedAt, &run.Status,
			&run.Counts.Masters, &run.Counts.MasterLinks, &run.Counts.MarketSnapshotRows,
			&dispositions, &reasonCodes, &run.Error)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("прогон %d не найден", id)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить прогон %d: %w", id, err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(dispositions), &run.Dispositions); err != nil {
		run.Dispositions = nil
	}
	if err := json.Unmarshal([]byte(reasonCodes), &run.ReasonCodes); err != nil {
		run.ReasonCodes = nil
	}
	return run, nil
}

// ListRuns возвращает последние прогоны журнала
func (c *CatalogDB) ListRuns(limit int) ([]*catalog.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.Query("SELECT id FROM pipeline_runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить журнал прогонов: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	runs := make([]*catalog.PipelineRun, 0, len(ids))
	for _, id := range ids {
		run, err := c.GetRun(id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// UpsertSupplierItems сохраняет строки прайс-листа. Идентификатор
// позиции стабилен по ключу (поставщик, сырое наименование): повторная
// загрузка обновляет цену и результаты разбора, а не создает дубликат.
func (c *CatalogDB) UpsertSupplierItems(items []*catalog.SupplierItem) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		lemmas := ""
		categoryCode := ""
		baseProduct := ""
		disposition := ""
		reasonCodes := ""
		if item.Parsed != nil {
			// Леммы обрамляются пробелами, чтобы поиск по LIKE
			// сопоставлял целые токены
			lemmas = " " + strings.Join(item.Parsed.Name.LemmaList(), " ") + " "
			categoryCode = item.Parsed.CategoryCode
			baseProduct = item.Parsed.BaseProduct
			disposition = string(item.Parsed.Disposition)
			reasonCodes = strings.Join(item.Parsed.ReasonCodes, ",")
		}

		var ppu any
		if item.PricePerBaseUnit != nil {
			ppu = *item.PricePerBaseUnit
		}

		if _, err := tx.Exec(
			`INSERT INTO supplier_items
				(supplier_id, raw_name, price, currency, unit, pack_qty,
				 lemmas, category_code, base_product, disposition, reason_codes, price_per_base_unit, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(supplier_id, raw_name) DO UPDATE SET
				price = excluded.price,
				currency = excluded.currency,
				unit = excluded.unit,
				pack_qty = excluded.pack_qty,
				lemmas = excluded.lemmas,
				category_code = excluded.category_code,
				base_product = excluded.base_product,
				disposition = excluded.disposition,
				reason_codes = excluded.reason_codes,
				price_per_base_unit = excluded.price_per_base_unit,
				updated_at = excluded.updated_at`,
			item.SupplierID, item.RawName, item.Price, item.Currency, item.Unit, item.PackQty,
			lemmas, categoryCode, baseProduct, disposition, reasonCodes, ppu, time.Now().UTC()); err != nil {
			return fmt.Errorf("не удалось сохранить строку %q: %w", item.RawName, err)
		}

		if err := tx.QueryRow(
			"SELECT id FROM supplier_items WHERE supplier_id = ? AND raw_name = ?",
			item.SupplierID, item.RawName).Scan(&item.ID); err != nil {
			return fmt.Errorf("не удалось прочитать id строки %q: %w", item.RawName, err)
		}
	}

	return tx.Commit()
}

// GetAllSupplierItems возвращает все сохраненные строки прайс-листов
// (для планового перепрогона пайплайна)
func (c *CatalogDB) GetAllSupplierItems() ([]*catalog.SupplierItem, error) {
	rows, err := c.db.Query(
		"SELECT id, supplier_id, raw_name, price, currency, unit, pack_qty FROM supplier_items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить строки прайс-листов: %w", err)
	}
	defer rows.Close()

	var items []*catalog.SupplierItem
	for rows.Next() {
		item := &catalog.SupplierItem{}
		if err := rows.Scan(&item.ID, &item.SupplierID, &item.RawName,
			&item.Price, &item.Currency, &item.Unit, &item.PackQty); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReplaceCatalog публикует результат сборки прогона: мастера, связи и
// срез рынка записываются под идентификатором прогона, затем указатель
// current_run переключается на него. Все в одной транзакции - читатели
// либо видят прежний полный срез, либо новый полный.
func (c *CatalogDB) ReplaceCatalog(runID int64, build *catalog.BuildResult) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	for _, master := range build.Masters {
		var caliber any
		if master.Caliber != nil {
			caliber = *master.Caliber
		}
		if _, err := tx.Exec(
			`INSERT INTO master_products (run_id, master_id, key, category_code, base_product, caliber, name)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, master.ID, master.Key, master.CategoryCode, master.BaseProduct, caliber, master.Name); err != nil {
			return fmt.Errorf("не удалось сохранить мастер-продукт %s: %w", master.Key, err)
		}
	}

	for _, link := range build.Links {
		if _, err := tx.Exec(
			"INSERT INTO master_links (run_id, master_id, supplier_item_id) VALUES (?, ?, ?)",
			runID, link.MasterID, link.SupplierItemID); err != nil {
			return fmt.Errorf("не удалось сохранить связь мастера: %w", err)
		}
	}

	for _, row := range build.Rows {
		if _, err := tx.Exec(
			`INSERT INTO market_snapshot (run_id, master_id, supplier_id, supplier_item_id, price, price_per_base_unit)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, row.MasterID, row.SupplierID, row.SupplierItemID, row.Price, row.PricePerBaseUnit); err != nil {
			return fmt.Errorf("не удалось сохранить строку среза: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO current_run (id, run_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id`, runID); err != nil {
		return fmt.Errorf("не удалось переключить указатель среза: %w", err)
	}

	return tx.Commit()
}

// CurrentRunID возвращает идентификатор прогона, на который указывает
// опубликованный срез, или 0, если срез еще не публиковался
func (c *CatalogDB) CurrentRunID() (int64, error) {
	var runID int64
	err := c.db.QueryRow("SELECT run_id FROM current_run WHERE id = 1").Scan(&runID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("не удалось прочитать указатель среза: %w", err)
	}
	return runID, nil
}

// SearchEntry строка результата быстрого поиска
type SearchEntry struct {
	SupplierItemID   int64    `json:"supplier_item_id"`
	SupplierID       int64    `json:"supplier_id"`
	RawName          string   `json:"raw_name"`
	CategoryCode     string   `json:"category_code"`
	BaseProduct      string   `json:"base_product"`
	Price            float64  `json:"price"`
	PricePerBaseUnit *float64 `json:"price_per_base_unit,omitempty"`
}

// QuickSearch ищет позиции каталога по нормализованным леммам запроса.
// Возвращает записи, содержащие все леммы, по возрастанию цены.
func (c *CatalogDB) QuickSearch(lemmas []string, limit int) ([]SearchEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	builder := sq.Select(
		"id", "supplier_id", "raw_name", "category_code", "base_product", "price", "price_per_base_unit").
		From("supplier_items").
		Where(sq.Eq{"disposition": string(catalog.DispositionOK)}).
		OrderBy("price ASC", "id ASC").
		Limit(uint64(limit))

	for _, lemma := range lemmas {
		builder = builder.Where(sq.Like{"lemmas": "% " + lemma + " %"})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("не удалось собрать поисковый запрос: %w", err)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить поиск: %w", err)
	}
	defer rows.Close()

	entries := []SearchEntry{}
	for rows.Next() {
		var entry SearchEntry
		var ppu sql.NullFloat64
		if err := rows.Scan(&entry.SupplierItemID, &entry.SupplierID, &entry.RawName,
			&entry.CategoryCode, &entry.BaseProduct, &entry.Price, &ppu); err != nil {
			return nil, err
		}
		if ppu.Valid {
			v := ppu.Float64
			entry.PricePerBaseUnit = &v
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
