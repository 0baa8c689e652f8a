package delivery

import (
	"context"
	"sort"
	"sync"

	"courier/internal/routing/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
)

// InMemory keeps document-routing records in process memory. Create enforces
// the single-active-routing invariant the same way the SQL store's partial
// unique index does, so unit tests exercise the real conflict path.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.RoutingID]*models.DocumentRouting
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[domain.RoutingID]*models.DocumentRouting)}
}

func (s *InMemory) Create(_ context.Context, rec *models.DocumentRouting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.records {
		if existing.LetterID == rec.LetterID && !existing.Status.Terminal() {
			return sentinel.ErrConflict
		}
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *InMemory) Load(_ context.Context, id domain.RoutingID) (*models.DocumentRouting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemory) Save(_ context.Context, rec *models.DocumentRouting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Remove deletes a record. Only used to unwind an uncommitted creation.
func (s *InMemory) Remove(_ context.Context, id domain.RoutingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// FindActiveByLetter returns the single non-terminal record for a letter, or
// sentinel.ErrNotFound when none exists.
func (s *InMemory) FindActiveByLetter(_ context.Context, letterID domain.LetterID) (*models.DocumentRouting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.LetterID == letterID && !rec.Status.Terminal() {
			return rec.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListByLetter returns all routing records for a letter, oldest first.
func (s *InMemory) ListByLetter(_ context.Context, letterID domain.LetterID) ([]*models.DocumentRouting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DocumentRouting
	for _, rec := range s.records {
		if rec.LetterID == letterID {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RoutedAt.Equal(out[j].RoutedAt) {
			return out[i].RoutedAt.Before(out[j].RoutedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
