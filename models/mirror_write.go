package models

import (
	"encoding/json"
	"time"
)

// MirrorKind kind of chain-confirmed write waiting to be mirrored
type MirrorKind string

const (
	MirrorKindContribution        MirrorKind = "contribution"
	MirrorKindVote                MirrorKind = "vote"
	MirrorKindMilestoneResolution MirrorKind = "milestone_resolution"
	MirrorKindChainLink           MirrorKind = "chain_link"
)

// MirrorStatus outbox entry state
type MirrorStatus string

const (
	MirrorStatusPending MirrorStatus = "pending" // Waiting to be applied
	MirrorStatusApplied MirrorStatus = "applied"
	MirrorStatusFailed  MirrorStatus = "failed"  // Permanently rejected
	MirrorStatusStalled MirrorStatus = "stalled" // Out of automatic retries
)

// MirrorWrite outbox entry keyed by the chain transaction reference
type MirrorWrite struct {
	TxRef       string          `json:"txRef"`
	Kind        MirrorKind      `json:"kind"`
	ProjectID   string          `json:"projectId"`
	MilestoneID string          `json:"milestoneId,omitempty"`
	Principal   Principal       `json:"principal"`
	Payload     json.RawMessage `json:"payload"`
	Status      MirrorStatus    `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Done reports whether the entry needs no further work.
func (w *MirrorWrite) Done() bool {
	return w.Status == MirrorStatusApplied || w.Status == MirrorStatusFailed
}

// SameRequest reports whether o asks for the same mirror write as w.
func (w *MirrorWrite) SameRequest(o *MirrorWrite) bool {
	return w.Kind == o.Kind && w.ProjectID == o.ProjectID &&
		w.MilestoneID == o.MilestoneID && w.Principal.Same(o.Principal)
}
