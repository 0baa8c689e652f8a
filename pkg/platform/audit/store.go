package audit

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Ledger

import "context"

// Ledger is the append-only sink services write to. Append never fails
// silently: a returned error must fail the enclosing transition, and a nil
// return means the entry is durably committed.
type Ledger interface {
	// Append records one entry, assigning its insertion sequence.
	Append(ctx context.Context, entry *Entry) error

	// ListByEntity returns all entries for one entity ordered by timestamp,
	// ties broken by insertion sequence.
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
}

// Tee wraps a Ledger and forwards a copy of every committed entry to a
// bounded channel for asynchronous streaming. The forward is best-effort:
// when the channel is full the entry is dropped from the stream (never from
// the ledger) so appends never block on downstream consumers.
type Tee struct {
	Ledger
	stream chan Entry
}

// NewTee wraps ledger with a stream buffer of the given capacity.
func NewTee(ledger Ledger, capacity int) *Tee {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Tee{Ledger: ledger, stream: make(chan Entry, capacity)}
}

// Stream exposes the committed-entry feed for a worker to consume.
func (t *Tee) Stream() <-chan Entry { return t.stream }

func (t *Tee) Append(ctx context.Context, entry *Entry) error {
	if err := t.Ledger.Append(ctx, entry); err != nil {
		return err
	}
	select {
	case t.stream <- *entry:
	default:
	}
	return nil
}
