package model

import (
	"time"

	"github.com/google/uuid"
)

// Audit action types, one per privileged operation.
const (
	ActionElectionCreate  = "election.create"
	ActionElectionPublish = "election.publish"
	ActionElectionOpen    = "election.open"
	ActionElectionPause   = "election.pause"
	ActionElectionResume  = "election.resume"
	ActionElectionClose   = "election.close"
	ActionElectionArchive = "election.archive"
	ActionElectionDelete  = "election.delete"
	ActionTokensIssued    = "tokens.issued"
	ActionTallyRecompute  = "tally.recompute"
	ActionSecurityEvent   = "security.role_mismatch"
)

// AuditLogEntry is an append-only record written in the same transaction as
// the state change it describes. Never updated or deleted (except via the
// retention purge for deleted elections).
type AuditLogEntry struct {
	ID            int64      `json:"id"`
	ActionType    string     `json:"actionType"`
	PerformedBy   string     `json:"performedBy"`
	ElectionID    *uuid.UUID `json:"electionId,omitempty"`
	Details       []byte     `json:"details,omitempty"`
	IPHash        string     `json:"-"`
	CorrelationID uuid.UUID  `json:"correlationId"`
	CreatedAt     time.Time  `json:"createdAt"`
}
