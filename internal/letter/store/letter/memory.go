package letter

import (
	"context"
	"strings"
	"sync"

	"courier/internal/letter/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
)

// InMemory keeps letters in process memory. Backs unit tests and dev mode.
// Reference uniqueness is enforced case-insensitively, matching the SQL
// store's unique index on lower(reference).
type InMemory struct {
	mu    sync.RWMutex
	byID  map[domain.LetterID]*models.Letter
	byRef map[string]domain.LetterID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:  make(map[domain.LetterID]*models.Letter),
		byRef: make(map[string]domain.LetterID),
	}
}

func (s *InMemory) Create(_ context.Context, letter *models.Letter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := strings.ToLower(letter.Reference)
	if _, exists := s.byRef[ref]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byID[letter.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[letter.ID] = letter.Clone()
	s.byRef[ref] = letter.ID
	return nil
}

func (s *InMemory) Load(_ context.Context, id domain.LetterID) (*models.Letter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	letter, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return letter.Clone(), nil
}

func (s *InMemory) Save(_ context.Context, letter *models.Letter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[letter.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.byID[letter.ID] = letter.Clone()
	return nil
}

// Remove deletes a letter. Only used to unwind an uncommitted submission;
// committed letters are never deleted.
func (s *InMemory) Remove(_ context.Context, id domain.LetterID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	letter, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byRef, strings.ToLower(letter.Reference))
	delete(s.byID, id)
	return nil
}

func (s *InMemory) FindByReference(_ context.Context, reference string) (*models.Letter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[strings.ToLower(reference)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}
