// Package models defines the Letter record and its verification lifecycle.
package models

import (
	"time"

	"courier/pkg/domain"
)

// Status is a letter's position in the verification lifecycle.
type Status string

const (
	// StatusPending is the initial state of every submitted letter.
	StatusPending Status = "pending"

	// StatusVerified means the letter passed verification. Terminal for the
	// verification machine; routing begins as a downstream effect.
	StatusVerified Status = "verified"

	// StatusRejected is terminal. No further transitions are permitted.
	StatusRejected Status = "rejected"
)

// IsValid reports whether s is one of the defined verification states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Letter is a submitted document record. It is never deleted; the status
// field is only mutated through the verification state machine.
type Letter struct {
	ID        domain.LetterID
	Reference string
	Title     string
	Content   string
	FolderRef string
	// Department is the origin department, derived from the owning folder
	// at submission time.
	Department domain.Department
	Status     Status

	// PasscodeHash, when non-empty, is the bcrypt hash of the passcode a
	// verifier must present. Empty means no passcode is required.
	PasscodeHash []byte

	// RejectionReason is set exactly when Status is StatusRejected.
	RejectionReason string

	SubmittedBy domain.ActorID
	// OwnedBy is the actor who performed the most recent transition.
	OwnedBy domain.ActorID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy. Services transition a copy and only persist it
// once the whole transition (state write plus audit append) succeeds.
func (l *Letter) Clone() *Letter {
	c := *l
	if l.PasscodeHash != nil {
		c.PasscodeHash = append([]byte(nil), l.PasscodeHash...)
	}
	return &c
}
