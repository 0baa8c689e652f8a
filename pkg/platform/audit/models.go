// Package audit defines the append-only ledger every state-changing
// operation writes to. Entries are immutable facts: nothing in the system
// updates or deletes one after Append returns.
package audit

import (
	"time"

	"github.com/google/uuid"

	"courier/pkg/domain"
)

// EntityType names the kind of entity an entry is about.
type EntityType string

const (
	EntityLetter  EntityType = "letter"
	EntityRule    EntityType = "routing_rule"
	EntityRouting EntityType = "document_routing"
)

// Action is the verb tag of an audit entry.
type Action string

const (
	// Letter verification lifecycle.
	ActionLetterSubmitted Action = "letter.submitted"
	ActionLetterVerified  Action = "letter.verified"
	ActionLetterRejected  Action = "letter.rejected"

	// Document routing lifecycle.
	ActionRoutingCreated   Action = "routing.created"
	ActionRoutingUnmatched Action = "routing.unmatched"
	ActionRoutingAdvanced  Action = "routing.advanced"
	ActionRoutingRejected  Action = "routing.rejected"

	// Rule administration.
	ActionRuleCreated  Action = "rule.created"
	ActionRuleUpdated  Action = "rule.updated"
	ActionRuleDisabled Action = "rule.disabled"
)

// Category classifies entries for retention and downstream routing.
type Category string

const (
	// CategoryCompliance covers entries with regulatory significance:
	// everything that changes what happened to a document.
	CategoryCompliance Category = "compliance"

	// CategoryOperations covers entries useful for operational visibility
	// that change no document state (e.g. an unmatched routing attempt).
	CategoryOperations Category = "operations"
)

var actionCategories = map[Action]Category{
	ActionLetterSubmitted:  CategoryCompliance,
	ActionLetterVerified:   CategoryCompliance,
	ActionLetterRejected:   CategoryCompliance,
	ActionRoutingCreated:   CategoryCompliance,
	ActionRoutingAdvanced:  CategoryCompliance,
	ActionRoutingRejected:  CategoryCompliance,
	ActionRuleCreated:      CategoryCompliance,
	ActionRuleUpdated:      CategoryCompliance,
	ActionRuleDisabled:     CategoryCompliance,
	ActionRoutingUnmatched: CategoryOperations,
}

// Category returns the category for this action. Unknown actions default to
// CategoryOperations.
func (a Action) Category() Category {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Entry is one immutable audit fact.
type Entry struct {
	ID         uuid.UUID
	Action     Action
	EntityType EntityType
	EntityID   string
	ActorID    domain.ActorID
	Details    map[string]string
	Timestamp  time.Time

	// Seq is the insertion sequence assigned by the ledger on Append. It
	// breaks ordering ties between entries sharing a timestamp; callers
	// never coordinate on it.
	Seq uint64
}
