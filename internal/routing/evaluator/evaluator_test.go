package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lettermodels "courier/internal/letter/models"
	"courier/internal/routing/models"
	"courier/pkg/domain"
)

const dept = domain.Department("records")

func newLetter(title, reference, content string) *lettermodels.Letter {
	return &lettermodels.Letter{
		ID:         domain.NewLetterID(),
		Reference:  reference,
		Title:      title,
		Content:    content,
		Department: dept,
		Status:     lettermodels.StatusVerified,
	}
}

func newRule(name string, priority int, createdAt time.Time, conditions models.RuleConditions) *models.RoutingRule {
	return &models.RoutingRule{
		ID:               domain.NewRuleID(),
		Name:             name,
		SourceDepartment: dept,
		TargetDepartment: "archive",
		Conditions:       conditions,
		Priority:         priority,
		Active:           true,
		CreatedAt:        createdAt,
	}
}

func TestMatches(t *testing.T) {
	letter := newLetter("Annual Budget Report", "FIN-2024-001", "quarterly figures and projections")

	tests := []struct {
		name       string
		conditions models.RuleConditions
		want       bool
	}{
		{"catch-all matches everything", models.RuleConditions{}, true},
		{"title substring, case-insensitive", models.RuleConditions{TitleContains: "budget"}, true},
		{"title substring miss", models.RuleConditions{TitleContains: "invoice"}, false},
		{"reference substring, case-insensitive", models.RuleConditions{ReferenceContains: "fin-2024"}, true},
		{"reference substring miss", models.RuleConditions{ReferenceContains: "HR-"}, false},
		{"keyword in title", models.RuleConditions{Keywords: []string{"ANNUAL"}}, true},
		{"keyword in content", models.RuleConditions{Keywords: []string{"projections"}}, true},
		{"all keywords must hit", models.RuleConditions{Keywords: []string{"annual", "missing"}}, false},
		{"empty keyword ignored", models.RuleConditions{Keywords: []string{""}}, true},
		{"status match", models.RuleConditions{Status: lettermodels.StatusVerified}, true},
		{"status mismatch", models.RuleConditions{Status: lettermodels.StatusPending}, false},
		{"all conditions together", models.RuleConditions{
			TitleContains:     "Report",
			ReferenceContains: "001",
			Keywords:          []string{"figures"},
			Status:            lettermodels.StatusVerified,
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(letter, tt.conditions))
		})
	}
}

func TestSelectRule(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	letter := newLetter("Annual Budget Report", "FIN-2024-001", "quarterly figures")

	t.Run("no rules returns nil", func(t *testing.T) {
		assert.Nil(t, SelectRule(letter, dept, nil))
	})

	t.Run("no matching rule returns nil", func(t *testing.T) {
		rules := []*models.RoutingRule{
			newRule("invoices", 5, base, models.RuleConditions{TitleContains: "invoice"}),
		}
		assert.Nil(t, SelectRule(letter, dept, rules))
	})

	t.Run("highest priority wins", func(t *testing.T) {
		low := newRule("low", 2, base, models.RuleConditions{})
		high := newRule("high", 8, base.Add(time.Hour), models.RuleConditions{TitleContains: "budget"})
		got := SelectRule(letter, dept, []*models.RoutingRule{low, high})
		require.NotNil(t, got)
		assert.Equal(t, high.ID, got.ID)
	})

	t.Run("priority tie goes to earliest created", func(t *testing.T) {
		older := newRule("older", 5, base, models.RuleConditions{})
		newer := newRule("newer", 5, base.Add(time.Minute), models.RuleConditions{})
		got := SelectRule(letter, dept, []*models.RoutingRule{newer, older})
		require.NotNil(t, got)
		assert.Equal(t, older.ID, got.ID)
	})

	t.Run("full tie falls back to lexical ID order", func(t *testing.T) {
		a := newRule("a", 5, base, models.RuleConditions{})
		b := newRule("b", 5, base, models.RuleConditions{})
		want := a
		if b.ID.String() < a.ID.String() {
			want = b
		}
		got := SelectRule(letter, dept, []*models.RoutingRule{a, b})
		require.NotNil(t, got)
		assert.Equal(t, want.ID, got.ID)
	})

	t.Run("deterministic across repeated calls", func(t *testing.T) {
		rules := []*models.RoutingRule{
			newRule("one", 5, base, models.RuleConditions{}),
			newRule("two", 5, base, models.RuleConditions{}),
			newRule("three", 3, base, models.RuleConditions{}),
		}
		first := SelectRule(letter, dept, rules)
		require.NotNil(t, first)
		for range 10 {
			assert.Equal(t, first.ID, SelectRule(letter, dept, rules).ID)
		}
	})

	t.Run("inactive rules are skipped", func(t *testing.T) {
		rule := newRule("disabled", 9, base, models.RuleConditions{})
		rule.Active = false
		fallback := newRule("fallback", 1, base, models.RuleConditions{})
		got := SelectRule(letter, dept, []*models.RoutingRule{rule, fallback})
		require.NotNil(t, got)
		assert.Equal(t, fallback.ID, got.ID)
	})

	t.Run("rules of another department are skipped", func(t *testing.T) {
		foreign := newRule("foreign", 9, base, models.RuleConditions{})
		foreign.SourceDepartment = "legal"
		assert.Nil(t, SelectRule(letter, dept, []*models.RoutingRule{foreign}))
	})

	t.Run("catch-all loses to any higher-priority specific rule", func(t *testing.T) {
		catchAll := newRule("catch-all", 0, base, models.RuleConditions{})
		specific := newRule("specific", 4, base, models.RuleConditions{ReferenceContains: "FIN"})
		got := SelectRule(letter, dept, []*models.RoutingRule{catchAll, specific})
		require.NotNil(t, got)
		assert.Equal(t, specific.ID, got.ID)
	})
}
