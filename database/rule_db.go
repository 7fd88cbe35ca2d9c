package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"catalogserver/rules"
)

// RuleDB хранилище версионированных наборов правил.
// Наборы неизменяемы после создания: API не дает изменить записи
// существующей версии, любое изменение - новая версия с переключением
// активного указателя. Архивные версии остаются доступными для
// аудита и воспроизведения прогонов.
type RuleDB struct {
	db *sql.DB
}

// OpenRuleDB открывает базу правил и применяет миграции
func OpenRuleDB(path string) (*RuleDB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу правил: %w", err)
	}
	rdb := &RuleDB{db: db}
	if err := rdb.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return rdb, nil
}

// Close закрывает соединение
func (r *RuleDB) Close() error {
	return r.db.Close()
}

func (r *RuleDB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rulesets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			active INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS category_keywords (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ruleset_id INTEGER NOT NULL REFERENCES rulesets(id),
			category_code TEXT NOT NULL,
			keyword TEXT NOT NULL,
			polarity TEXT NOT NULL,
			weight INTEGER NOT NULL,
			scope TEXT NOT NULL,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS base_product_keywords (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ruleset_id INTEGER NOT NULL REFERENCES rulesets(id),
			category_code TEXT NOT NULL,
			base_product TEXT NOT NULL,
			keyword TEXT NOT NULL,
			polarity TEXT NOT NULL,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS token_aliases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ruleset_id INTEGER NOT NULL REFERENCES rulesets(id),
			field TEXT NOT NULL,
			raw_token TEXT NOT NULL,
			canonical_token TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quality_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ruleset_id INTEGER NOT NULL REFERENCES rulesets(id),
			code TEXT NOT NULL,
			severity TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_category_keywords_ruleset ON category_keywords(ruleset_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_base_keywords_ruleset ON base_product_keywords(ruleset_id, position)`,
	}
	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("миграция базы правил: %w", err)
		}
	}
	return nil
}

// CreateRuleset сохраняет новую версию набора правил.
// При activate=true активный указатель переключается на нее в той же
// транзакции: в любой момент активна ровно одна версия.
func (r *RuleDB) CreateRuleset(rs *rules.Ruleset, activate bool) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO rulesets (name, created_at, active) VALUES (?, ?, 0)",
		rs.Name, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("не удалось создать набор правил: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, entry := range rs.CategoryEntries {
		if _, err := tx.Exec(
			`INSERT INTO category_keywords (ruleset_id, category_code, keyword, polarity, weight, scope, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, entry.CategoryCode, entry.Keyword, entry.Polarity, entry.Weight, entry.Scope, i); err != nil {
			return 0, fmt.Errorf("не удалось сохранить ключ категории: %w", err)
		}
	}

	for i, entry := range rs.BaseProductEntries {
		if _, err := tx.Exec(
			`INSERT INTO base_product_keywords (ruleset_id, category_code, base_product, keyword, polarity, position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, entry.CategoryCode, entry.BaseProduct, entry.Keyword, entry.Polarity, i); err != nil {
			return 0, fmt.Errorf("не удалось сохранить ключ базового продукта: %w", err)
		}
	}

	for _, alias := range rs.Aliases {
		if _, err := tx.Exec(
			"INSERT INTO token_aliases (ruleset_id, field, raw_token, canonical_token) VALUES (?, ?, ?, ?)",
			id, alias.Field, alias.RawToken, alias.CanonicalToken); err != nil {
			return 0, fmt.Errorf("не удалось сохранить алиас токена: %w", err)
		}
	}

	for _, qr := range rs.QualityRules {
		payload, err := json.Marshal(qr.Payload)
		if err != nil {
			return 0, fmt.Errorf("не удалось сериализовать параметры правила %s: %w", qr.Code, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO quality_rules (ruleset_id, code, severity, payload) VALUES (?, ?, ?, ?)",
			id, qr.Code, qr.Severity, string(payload)); err != nil {
			return 0, fmt.Errorf("не удалось сохранить правило качества: %w", err)
		}
	}

	if activate {
		if _, err := tx.Exec("UPDATE rulesets SET active = 0 WHERE active = 1"); err != nil {
			return 0, fmt.Errorf("не удалось снять активный флаг: %w", err)
		}
		if _, err := tx.Exec("UPDATE rulesets SET active = 1 WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("не удалось активировать набор правил: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("не удалось зафиксировать набор правил: %w", err)
	}
	return id, nil
}

// SeedIfEmpty создает и активирует набор правил, если база пуста.
// Возвращает id активного набора.
func (r *RuleDB) SeedIfEmpty(rs *rules.Ruleset) (int64, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM rulesets").Scan(&count); err != nil {
		return 0, fmt.Errorf("не удалось проверить наличие наборов правил: %w", err)
	}
	if count > 0 {
		active, err := r.ActiveRuleset()
		if err != nil {
			return 0, err
		}
		return active.ID, nil
	}
	return r.CreateRuleset(rs, true)
}

// ActiveRuleset загружает активную версию набора правил целиком
func (r *RuleDB) ActiveRuleset() (*rules.Ruleset, error) {
	var id int64
	err := r.db.QueryRow("SELECT id FROM rulesets WHERE active = 1").Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("нет активного набора правил")
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось найти активный набор правил: %w", err)
	}
	return r.GetRuleset(id)
}

// GetRuleset загружает версию набора правил по id, включая архивные
func (r *RuleDB) GetRuleset(id int64) (*rules.Ruleset, error) {
	rs := &rules.Ruleset{ID: id}

	var active int
	err := r.db.QueryRow("SELECT name, created_at, active FROM rulesets WHERE id = ?", id).
		Scan(&rs.Name, &rs.CreatedAt, &active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("набор правил %d не найден", id)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить набор правил %d: %w", id, err)
	}
	rs.Active = active == 1

	rows, err := r.db.Query(
		`SELECT category_code, keyword, polarity, weight, scope
		 FROM category_keywords WHERE ruleset_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить ключи категорий: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		entry := rules.DictionaryEntry{RulesetID: id}
		if err := rows.Scan(&entry.CategoryCode, &entry.Keyword, &entry.Polarity, &entry.Weight, &entry.Scope); err != nil {
			return nil, err
		}
		rs.CategoryEntries = append(rs.CategoryEntries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	baseRows, err := r.db.Query(
		`SELECT category_code, base_product, keyword, polarity
		 FROM base_product_keywords WHERE ruleset_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить ключи базовых продуктов: %w", err)
	}
	defer baseRows.Close()
	for baseRows.Next() {
		entry := rules.BaseProductEntry{RulesetID: id}
		if err := baseRows.Scan(&entry.CategoryCode, &entry.BaseProduct, &entry.Keyword, &entry.Polarity); err != nil {
			return nil, err
		}
		rs.BaseProductEntries = append(rs.BaseProductEntries, entry)
	}
	if err := baseRows.Err(); err != nil {
		return nil, err
	}

	aliasRows, err := r.db.Query(
		"SELECT field, raw_token, canonical_token FROM token_aliases WHERE ruleset_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить алиасы токенов: %w", err)
	}
	defer aliasRows.Close()
	for aliasRows.Next() {
		var alias rules.TokenAlias
		if err := aliasRows.Scan(&alias.Field, &alias.RawToken, &alias.CanonicalToken); err != nil {
			return nil, err
		}
		rs.Aliases = append(rs.Aliases, alias)
	}
	if err := aliasRows.Err(); err != nil {
		return nil, err
	}

	qrRows, err := r.db.Query(
		"SELECT code, severity, payload FROM quality_rules WHERE ruleset_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить правила качества: %w", err)
	}
	defer qrRows.Close()
	for qrRows.Next() {
		var qr rules.QualityRule
		var payload string
		if err := qrRows.Scan(&qr.Code, &qr.Severity, &payload); err != nil {
			return nil, err
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &qr.Payload); err != nil {
				return nil, fmt.Errorf("не удалось разобрать параметры правила %s: %w", qr.Code, err)
			}
		}
		rs.QualityRules = append(rs.QualityRules, qr)
	}
	if err := qrRows.Err(); err != nil {
		return nil, err
	}

	return rs, nil
}

// ListRulesets возвращает версии наборов правил со счетчиками записей
// для инспекции и аудита
func (r *RuleDB) ListRulesets() ([]rules.RulesetInfo, error) {
	rows, err := r.db.Query(`
		SELECT rs.id, rs.name, rs.created_at, rs.active,
			(SELECT COUNT(*) FROM category_keywords ck WHERE ck.ruleset_id = rs.id),
			(SELECT COUNT(*) FROM base_product_keywords bk WHERE bk.ruleset_id = rs.id),
			(SELECT COUNT(*) FROM token_aliases ta WHERE ta.ruleset_id = rs.id),
			(SELECT COUNT(*) FROM quality_rules qr WHERE qr.ruleset_id = rs.id)
		FROM rulesets rs
		ORDER BY rs.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить список наборов правил: %w", err)
	}
	defer rows.Close()

	infos := []rules.RulesetInfo{}
	for rows.Next() {
		var info rules.RulesetInfo
		var active int
		if err := rows.Scan(&info.ID, &info.Name, &info.CreatedAt, &active,
			&info.CategoryKeywords, &info.BaseKeywords, &info.Aliases, &info.QualityRulesCount); err != nil {
			return nil, err
		}
		info.Active = active == 1
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
