package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier/pkg/platform/audit"
)

// InMemoryLedger keeps all entries in process memory. It backs unit tests
// and dev mode; the sequence counter makes insertion order observable the
// same way the SQL ledger's bigserial does.
type InMemoryLedger struct {
	mu      sync.RWMutex
	entries []audit.Entry
	seq     uint64
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{}
}

func (s *InMemoryLedger) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry.Seq = s.seq
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *InMemoryLedger) ListByEntity(_ context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// ListAll returns every entry in insertion order. Test helper.
func (s *InMemoryLedger) ListAll(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries...), nil
}

// Clear drops all entries. Test helper.
func (s *InMemoryLedger) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.seq = 0
}
