// Package models defines routing rules and document-routing records.
package models

import (
	"time"

	lettermodels "courier/internal/letter/models"
	"courier/pkg/domain"
)

// Priority bounds for routing rules.
const (
	MinPriority = 0
	MaxPriority = 10
)

// RuleConditions are the match conditions of a routing rule. An unset field
// is vacuously true, so the zero value matches every letter from the rule's
// source department (a catch-all rule).
type RuleConditions struct {
	// TitleContains matches case-insensitively against the letter title.
	TitleContains string

	// ReferenceContains matches case-insensitively against the letter
	// reference.
	ReferenceContains string

	// Keywords must each occur (case-insensitively) somewhere in the letter
	// title or content.
	Keywords []string

	// Status, when set, must equal the letter's status at evaluation time.
	Status lettermodels.Status
}

// IsCatchAll reports whether the conditions match every letter.
func (c RuleConditions) IsCatchAll() bool {
	return c.TitleContains == "" && c.ReferenceContains == "" &&
		len(c.Keywords) == 0 && c.Status == ""
}

// RoutingRule is a department-owned policy mapping match conditions to a
// target department. Rules are disabled, never deleted, so historical
// routing records keep a resolvable rule reference.
type RoutingRule struct {
	ID               domain.RuleID
	Name             string
	SourceDepartment domain.Department
	TargetDepartment domain.Department
	Conditions       RuleConditions
	Priority         int
	Active           bool
	CreatedBy        domain.ActorID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RoutingStatus is a document-routing record's position in the delivery
// lifecycle.
type RoutingStatus string

const (
	RoutingPending   RoutingStatus = "pending"
	RoutingInTransit RoutingStatus = "in_transit"
	RoutingDelivered RoutingStatus = "delivered"
	RoutingRejected  RoutingStatus = "rejected"
)

// Terminal reports whether no further transition is permitted.
func (s RoutingStatus) Terminal() bool {
	return s == RoutingDelivered || s == RoutingRejected
}

// DocumentRouting is one delivery attempt for one letter. Immutable once
// terminal; at most one non-terminal record exists per letter.
type DocumentRouting struct {
	ID       domain.RoutingID
	LetterID domain.LetterID

	FromDepartment domain.Department
	ToDepartment   domain.Department

	// RuleID references the rule that produced this record; nil for manual
	// routes. It is historical metadata only: later edits or disabling of
	// the rule do not touch existing records.
	RuleID *domain.RuleID

	Status   RoutingStatus
	RoutedAt time.Time

	// DeliveredAt is set exactly on entry to RoutingDelivered.
	DeliveredAt *time.Time

	Notes    string
	RoutedBy domain.ActorID
}

// Clone returns a deep copy for transition-then-persist handling.
func (r *DocumentRouting) Clone() *DocumentRouting {
	c := *r
	if r.RuleID != nil {
		id := *r.RuleID
		c.RuleID = &id
	}
	if r.DeliveredAt != nil {
		t := *r.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}
