package delivery

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

func newRecord(letterID domain.LetterID, status models.RoutingStatus, routedAt time.Time) *models.DocumentRouting {
	return &models.DocumentRouting{
		ID:             domain.NewRoutingID(),
		LetterID:       letterID,
		FromDepartment: "records",
		ToDepartment:   "archive",
		Status:         status,
		RoutedAt:       routedAt,
	}
}

func TestInMemorySingleActivePerLetter(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	letterID := domain.NewLetterID()
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	first := newRecord(letterID, models.RoutingPending, now)
	require.NoError(t, store.Create(ctx, first))

	t.Run("second non-terminal record conflicts", func(t *testing.T) {
		err := store.Create(ctx, newRecord(letterID, models.RoutingPending, now))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("terminal record frees the letter", func(t *testing.T) {
		done := first.Clone()
		done.Status = models.RoutingRejected
		require.NoError(t, store.Save(ctx, done))

		assert.NoError(t, store.Create(ctx, newRecord(letterID, models.RoutingPending, now.Add(time.Hour))))
	})
}

func TestInMemoryFindActiveByLetter(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	letterID := domain.NewLetterID()
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	t.Run("no active record is not found", func(t *testing.T) {
		_, err := store.FindActiveByLetter(ctx, letterID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("returns the non-terminal record", func(t *testing.T) {
		rec := newRecord(letterID, models.RoutingInTransit, now)
		require.NoError(t, store.Create(ctx, rec))

		got, err := store.FindActiveByLetter(ctx, letterID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
	})
}

func TestInMemoryListByLetter(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	letterID := domain.NewLetterID()
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	older := newRecord(letterID, models.RoutingRejected, now)
	newer := newRecord(letterID, models.RoutingPending, now.Add(time.Hour))
	other := newRecord(domain.NewLetterID(), models.RoutingPending, now)

	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))
	require.NoError(t, store.Create(ctx, other))

	records, err := store.ListByLetter(ctx, letterID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, older.ID, records[0].ID, "oldest first")
	assert.Equal(t, newer.ID, records[1].ID)
}
