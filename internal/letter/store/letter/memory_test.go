package letter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/letter/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
)

func newLetter(reference string) *models.Letter {
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	return &models.Letter{
		ID:         domain.NewLetterID(),
		Reference:  reference,
		Title:      "title",
		Department: "records",
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestInMemoryCreate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	letter := newLetter("REF-1")
	require.NoError(t, store.Create(ctx, letter))

	t.Run("duplicate reference conflicts case-insensitively", func(t *testing.T) {
		dup := newLetter("ref-1")
		assert.ErrorIs(t, store.Create(ctx, dup), sentinel.ErrConflict)
	})

	t.Run("stored letter is isolated from the caller's copy", func(t *testing.T) {
		letter.Title = "mutated after create"
		got, err := store.Load(ctx, letter.ID)
		require.NoError(t, err)
		assert.Equal(t, "title", got.Title)
	})
}

func TestInMemoryLoadSave(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	t.Run("load of unknown letter is not found", func(t *testing.T) {
		_, err := store.Load(ctx, domain.NewLetterID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("save of unknown letter is not found", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, newLetter("REF-2")), sentinel.ErrNotFound)
	})

	t.Run("save persists the update", func(t *testing.T) {
		letter := newLetter("REF-3")
		require.NoError(t, store.Create(ctx, letter))

		updated := letter.Clone()
		updated.Status = models.StatusVerified
		require.NoError(t, store.Save(ctx, updated))

		got, err := store.Load(ctx, letter.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusVerified, got.Status)
	})
}

func TestInMemoryFindByReference(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	letter := newLetter("Fin-2024-001")
	require.NoError(t, store.Create(ctx, letter))

	got, err := store.FindByReference(ctx, "FIN-2024-001")
	require.NoError(t, err)
	assert.Equal(t, letter.ID, got.ID)

	_, err = store.FindByReference(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryRemove(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	letter := newLetter("REF-4")
	require.NoError(t, store.Create(ctx, letter))
	require.NoError(t, store.Remove(ctx, letter.ID))

	_, err := store.Load(ctx, letter.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// The reference is free again after the unwind.
	assert.NoError(t, store.Create(ctx, newLetter("REF-4")))

	assert.ErrorIs(t, store.Remove(ctx, domain.NewLetterID()), sentinel.ErrNotFound)
}
