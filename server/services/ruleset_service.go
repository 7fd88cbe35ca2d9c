package services

import (
	"fmt"

	"catalogserver/database"
	"catalogserver/rules"
	apperrors "catalogserver/server/errors"
)

// RulesetService инспекция версий набора правил. Наборы неизменяемы:
// правки словарей оформляются новой версией, активная версия одна.
type RulesetService struct {
	ruleDB *database.RuleDB
}

// NewRulesetService создает сервис наборов правил
func NewRulesetService(ruleDB *database.RuleDB) *RulesetService {
	return &RulesetService{ruleDB: ruleDB}
}

// ListRulesets возвращает все версии наборов правил
func (s *RulesetService) ListRulesets() ([]rules.RulesetInfo, error) {
	infos, err := s.ruleDB.ListRulesets()
	if err != nil {
		return nil, apperrors.NewInternalError("не удалось прочитать список наборов правил", err)
	}
	return infos, nil
}

// GetRuleset возвращает полное содержимое версии набора правил
func (s *RulesetService) GetRuleset(id int64) (*rules.Ruleset, error) {
	rs, err := s.ruleDB.GetRuleset(id)
	if err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("набор правил %d не найден", id), err)
	}
	return rs, nil
}

// ActiveRuleset возвращает активный набор правил
func (s *RulesetService) ActiveRuleset() (*rules.Ruleset, error) {
	rs, err := s.ruleDB.ActiveRuleset()
	if err != nil {
		return nil, apperrors.NewNotFoundError("активный набор правил не найден", err)
	}
	return rs, nil
}
