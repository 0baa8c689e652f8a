// Package evaluator selects the routing rule for a letter. It is a pure
// function over its inputs: no I/O, no clock, no side effects. All side
// effects of a routing decision belong to the dispatcher.
package evaluator

import (
	"sort"
	"strings"

	lettermodels "courier/internal/letter/models"
	"courier/internal/routing/models"
	"courier/pkg/domain"
)

// SelectRule returns the winning rule for the letter among activeRules, or
// nil when no rule matches. No match is a valid outcome, not an error.
//
// activeRules must already be filtered to the source department and
// active=true; the caller owns that snapshot. Selection is deterministic:
// highest priority wins, ties go to the earliest-created rule, and equal
// creation timestamps fall back to lexical ID order so repeated calls with
// identical inputs always return the identical rule.
func SelectRule(letter *lettermodels.Letter, sourceDepartment domain.Department, activeRules []*models.RoutingRule) *models.RoutingRule {
	var matches []*models.RoutingRule
	for _, rule := range activeRules {
		if rule == nil || !rule.Active || rule.SourceDepartment != sourceDepartment {
			continue
		}
		if Matches(letter, rule.Conditions) {
			matches = append(matches, rule)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})
	return matches[0]
}

// Matches reports whether every configured condition holds for the letter.
// An unset condition is vacuously true.
func Matches(letter *lettermodels.Letter, c models.RuleConditions) bool {
	title := strings.ToLower(letter.Title)
	reference := strings.ToLower(letter.Reference)
	content := strings.ToLower(letter.Content)

	if c.TitleContains != "" && !strings.Contains(title, strings.ToLower(c.TitleContains)) {
		return false
	}
	if c.ReferenceContains != "" && !strings.Contains(reference, strings.ToLower(c.ReferenceContains)) {
		return false
	}
	for _, kw := range c.Keywords {
		k := strings.ToLower(kw)
		if k == "" {
			continue
		}
		if !strings.Contains(title, k) && !strings.Contains(content, k) {
			return false
		}
	}
	if c.Status != "" && c.Status != letter.Status {
		return false
	}
	return true
}
