package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/pkg/domain"
	"courier/pkg/platform/audit"
)

func newEntry(entityID string, action audit.Action, ts time.Time) *audit.Entry {
	return &audit.Entry{
		Action:     action,
		EntityType: audit.EntityLetter,
		EntityID:   entityID,
		ActorID:    domain.ActorID(uuid.New()),
		Timestamp:  ts,
	}
}

func TestAppendAssignsIdentityAndSequence(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger()
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	first := newEntry("L-1", audit.ActionLetterSubmitted, now)
	second := newEntry("L-1", audit.ActionLetterVerified, now)
	require.NoError(t, ledger.Append(ctx, first))
	require.NoError(t, ledger.Append(ctx, second))

	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Less(t, first.Seq, second.Seq)
}

func TestListByEntityOrdersByTimestampThenSequence(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger()
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	late := newEntry("L-1", audit.ActionLetterVerified, now.Add(time.Minute))
	early := newEntry("L-1", audit.ActionLetterSubmitted, now)
	tied := newEntry("L-1", audit.ActionRoutingUnmatched, now.Add(time.Minute))
	other := newEntry("L-2", audit.ActionLetterSubmitted, now)

	for _, e := range []*audit.Entry{late, early, tied, other} {
		require.NoError(t, ledger.Append(ctx, e))
	}

	entries, err := ledger.ListByEntity(ctx, audit.EntityLetter, "L-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, early.ID, entries[0].ID)
	assert.Equal(t, late.ID, entries[1].ID, "timestamp tie broken by insertion sequence")
	assert.Equal(t, tied.ID, entries[2].ID)
}

func TestTeeForwardsCommittedEntries(t *testing.T) {
	ctx := context.Background()
	tee := audit.NewTee(NewInMemoryLedger(), 2)
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	require.NoError(t, tee.Append(ctx, newEntry("L-1", audit.ActionLetterSubmitted, now)))

	select {
	case got := <-tee.Stream():
		assert.Equal(t, audit.ActionLetterSubmitted, got.Action)
	default:
		t.Fatal("expected a streamed entry")
	}
}

func TestTeeDropsWhenStreamIsFull(t *testing.T) {
	ctx := context.Background()
	base := NewInMemoryLedger()
	tee := audit.NewTee(base, 1)
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	// Second append must not block even though nobody consumes the stream.
	require.NoError(t, tee.Append(ctx, newEntry("L-1", audit.ActionLetterSubmitted, now)))
	require.NoError(t, tee.Append(ctx, newEntry("L-1", audit.ActionLetterVerified, now)))

	entries, err := base.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "the ledger itself never drops entries")
}
