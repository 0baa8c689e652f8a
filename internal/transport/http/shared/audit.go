package shared

import (
	"time"

	"courier/pkg/platform/audit"
)

// AuditEntryResponse is the JSON form of one audit ledger entry.
type AuditEntryResponse struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Category   string            `json:"category"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ActorID    string            `json:"actor_id"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Seq        uint64            `json:"seq"`
}

// ToAuditResponses converts ledger entries for the wire, preserving order.
func ToAuditResponses(entries []audit.Entry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:         e.ID.String(),
			Action:     string(e.Action),
			Category:   string(e.Action.Category()),
			EntityType: string(e.EntityType),
			EntityID:   e.EntityID,
			ActorID:    e.ActorID.String(),
			Details:    e.Details,
			Timestamp:  e.Timestamp,
			Seq:        e.Seq,
		})
	}
	return out
}
