package sentinel

import "errors"

// Sentinel errors for store-level facts. Stores return these (optionally
// wrapped); services translate them into coded domain errors.
//
// These represent factual states about stored entities, not validation
// failures:
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: a uniqueness or single-active invariant was violated
// - ErrInvalidState: entity is in a state the requested mutation forbids
// - ErrUnavailable: backing store temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
