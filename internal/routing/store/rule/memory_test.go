package rule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/routing/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
)

const dept = domain.Department("records")

func newRule(name string, priority int, active bool, createdAt time.Time) *models.RoutingRule {
	return &models.RoutingRule{
		ID:               domain.NewRuleID(),
		Name:             name,
		SourceDepartment: dept,
		TargetDepartment: "archive",
		Priority:         priority,
		Active:           active,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestInMemoryFindActiveBySource(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	low := newRule("low", 1, true, base)
	highOld := newRule("high-old", 8, true, base)
	highNew := newRule("high-new", 8, true, base.Add(time.Hour))
	disabled := newRule("disabled", 9, false, base)
	foreign := newRule("foreign", 9, true, base)
	foreign.SourceDepartment = "legal"

	for _, r := range []*models.RoutingRule{low, highNew, highOld, disabled, foreign} {
		require.NoError(t, store.Create(ctx, r))
	}

	rules, err := store.FindActiveBySource(ctx, dept)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	// Priority descending, then creation time ascending.
	assert.Equal(t, highOld.ID, rules[0].ID)
	assert.Equal(t, highNew.ID, rules[1].ID)
	assert.Equal(t, low.ID, rules[2].ID)
}

func TestInMemoryListBySource(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	active := newRule("active", 5, true, base)
	inactive := newRule("inactive", 5, false, base.Add(time.Minute))
	require.NoError(t, store.Create(ctx, active))
	require.NoError(t, store.Create(ctx, inactive))

	rules, err := store.ListBySource(ctx, dept)
	require.NoError(t, err)
	assert.Len(t, rules, 2, "disabled rules stay listed")
}

func TestInMemorySaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rule := newRule("editable", 5, true, base)
	require.NoError(t, store.Create(ctx, rule))

	t.Run("duplicate create conflicts", func(t *testing.T) {
		assert.ErrorIs(t, store.Create(ctx, rule), sentinel.ErrConflict)
	})

	t.Run("save persists the update", func(t *testing.T) {
		updated := *rule
		updated.Active = false
		require.NoError(t, store.Save(ctx, &updated))

		got, err := store.Load(ctx, rule.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("unknown rule is not found", func(t *testing.T) {
		_, err := store.Load(ctx, domain.NewRuleID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.ErrorIs(t, store.Remove(ctx, domain.NewRuleID()), sentinel.ErrNotFound)
	})
}
