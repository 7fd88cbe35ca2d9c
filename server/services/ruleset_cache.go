package services

import (
	"sync"

	"catalogserver/database"
	"catalogserver/normalization"
	"catalogserver/pipeline"
)

// rulesetCache кеширует разбор активного набора правил между запросами.
// Компиляция парсера (стемминг словарей) не бесплатна, а активный набор
// меняется редко: кеш инвалидируется по идентификатору набора.
type rulesetCache struct {
	ruleDB *database.RuleDB

	mu        sync.Mutex
	rulesetID int64
	parser    *pipeline.Parser
	tokenizer *normalization.Tokenizer
}

func newRulesetCache(ruleDB *database.RuleDB) *rulesetCache {
	return &rulesetCache{ruleDB: ruleDB}
}

// Parser возвращает парсер для активного набора правил
func (rc *rulesetCache) Parser() (*pipeline.Parser, error) {
	if err := rc.refresh(); err != nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.parser, nil
}

// Tokenizer возвращает токенизатор для активного набора правил
func (rc *rulesetCache) Tokenizer() (*normalization.Tokenizer, error) {
	if err := rc.refresh(); err != nil {
		return nil, err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.tokenizer, nil
}

func (rc *rulesetCache) refresh() error {
	active, err := rc.ruleDB.ActiveRuleset()
	if err != nil {
		return err
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.parser != nil && rc.rulesetID == active.ID {
		return nil
	}
	rc.rulesetID = active.ID
	rc.parser = pipeline.NewParser(active)
	rc.tokenizer = normalization.NewTokenizer(active)
	return nil
}
