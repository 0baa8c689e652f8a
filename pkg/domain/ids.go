// Package domain holds the typed identifiers and actor model shared by every
// module. IDs are distinct types over uuid.UUID so a LetterID can never be
// passed where a RuleID is expected; the compiler enforces the distinction.
package domain

import (
	"github.com/google/uuid"

	dErrors "courier/pkg/domain-errors"
)

type (
	// LetterID identifies a submitted document record.
	LetterID uuid.UUID

	// RuleID identifies a routing rule.
	RuleID uuid.UUID

	// RoutingID identifies one document-routing (delivery) record.
	RoutingID uuid.UUID

	// ActorID identifies an authenticated actor. Resolution of credentials
	// into an ActorID is the identity layer's concern, not ours.
	ActorID uuid.UUID
)

// Department is a plain department name. The source system keys departments by
// name rather than by surrogate ID, and rules reference them the same way.
type Department string

func (d Department) String() string { return string(d) }

// NewLetterID returns a fresh random letter ID.
func NewLetterID() LetterID { return LetterID(uuid.New()) }

// NewRuleID returns a fresh random rule ID.
func NewRuleID() RuleID { return RuleID(uuid.New()) }

// NewRoutingID returns a fresh random routing ID.
func NewRoutingID() RoutingID { return RoutingID(uuid.New()) }

func (id LetterID) String() string  { return uuid.UUID(id).String() }
func (id RuleID) String() string    { return uuid.UUID(id).String() }
func (id RoutingID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string   { return uuid.UUID(id).String() }

func (id LetterID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RoutingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// ParseLetterID parses and validates a letter ID from its string form.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseLetterID(s string) (LetterID, error) {
	u, err := parse(s, "letter id")
	return LetterID(u), err
}

// ParseRuleID parses and validates a rule ID from its string form.
func ParseRuleID(s string) (RuleID, error) {
	u, err := parse(s, "rule id")
	return RuleID(u), err
}

// ParseRoutingID parses and validates a routing ID from its string form.
func ParseRoutingID(s string) (RoutingID, error) {
	u, err := parse(s, "routing id")
	return RoutingID(u), err
}

// ParseActorID parses and validates an actor ID from its string form.
func ParseActorID(s string) (ActorID, error) {
	u, err := parse(s, "actor id")
	return ActorID(u), err
}

func parse(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" must not be the nil UUID")
	}
	return u, nil
}
