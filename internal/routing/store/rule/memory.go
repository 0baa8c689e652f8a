package rule

import (
	"context"
	"sort"
	"sync"

	"courier/internal/routing/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
)

// InMemory keeps routing rules in process memory.
type InMemory struct {
	mu    sync.RWMutex
	rules map[domain.RuleID]*models.RoutingRule
}

func NewInMemory() *InMemory {
	return &InMemory{rules: make(map[domain.RuleID]*models.RoutingRule)}
}

func (s *InMemory) Create(_ context.Context, rule *models.RoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return sentinel.ErrConflict
	}
	s.rules[rule.ID] = clone(rule)
	return nil
}

func (s *InMemory) Load(_ context.Context, id domain.RuleID) (*models.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(rule), nil
}

func (s *InMemory) Save(_ context.Context, rule *models.RoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.rules[rule.ID] = clone(rule)
	return nil
}

// Remove deletes a rule. Only used to unwind an uncommitted creation;
// committed rules are disabled, never removed.
func (s *InMemory) Remove(_ context.Context, id domain.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// FindActiveBySource returns the active rules for a source department,
// ordered for the evaluator: priority descending, then creation time
// ascending, then ID ascending.
func (s *InMemory) FindActiveBySource(_ context.Context, dept domain.Department) ([]*models.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RoutingRule
	for _, r := range s.rules {
		if r.Active && r.SourceDepartment == dept {
			out = append(out, clone(r))
		}
	}
	orderForEvaluation(out)
	return out, nil
}

// ListBySource returns all rules for a source department, active or not,
// in evaluation order.
func (s *InMemory) ListBySource(_ context.Context, dept domain.Department) ([]*models.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RoutingRule
	for _, r := range s.rules {
		if r.SourceDepartment == dept {
			out = append(out, clone(r))
		}
	}
	orderForEvaluation(out)
	return out, nil
}

func orderForEvaluation(rules []*models.RoutingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})
}

func clone(r *models.RoutingRule) *models.RoutingRule {
	c := *r
	c.Conditions.Keywords = append([]string(nil), r.Conditions.Keywords...)
	return &c
}
