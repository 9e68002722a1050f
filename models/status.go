package models

import (
	"strings"

	"trust-fund-service/apperr"
)

// ProjectStatus funding state of a project
type ProjectStatus string

const (
	ProjectStatusFunding   ProjectStatus = "FUNDING"
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
	ProjectStatusCancelled ProjectStatus = "CANCELLED"
)

// projectTransitions lists every legal project status change.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusFunding: {ProjectStatusCompleted, ProjectStatusCancelled},
}

// ParseProjectStatus parses a status name, case-insensitively.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	st := ProjectStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case ProjectStatusFunding, ProjectStatusCompleted, ProjectStatusCancelled:
		return st, nil
	}
	return "", apperr.Newf(apperr.CodeValidation, "unknown project status %q", s)
}

// CanTransitionTo reports whether s may move to next.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	for _, t := range projectTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// MilestoneStatus lifecycle state of a milestone
type MilestoneStatus string

const (
	MilestoneStatusPending  MilestoneStatus = "PENDING"
	MilestoneStatusApproved MilestoneStatus = "APPROVED"
	MilestoneStatusRejected MilestoneStatus = "REJECTED"
)

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending: {MilestoneStatusApproved, MilestoneStatusRejected},
}

// ParseMilestoneOutcome parses a final milestone status.
func ParseMilestoneOutcome(s string) (MilestoneStatus, error) {
	st := MilestoneStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsFinal() {
		return "", apperr.Newf(apperr.CodeValidation, "outcome must be APPROVED or REJECTED, got %q", s)
	}
	return st, nil
}

// IsFinal reports whether the milestone no longer accepts votes.
func (s MilestoneStatus) IsFinal() bool {
	return s == MilestoneStatusApproved || s == MilestoneStatusRejected
}

// CanTransitionTo reports whether s may move to next.
func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	for _, t := range milestoneTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// VoteChoice a backer's vote
type VoteChoice string

const (
	VoteYes VoteChoice = "YES"
	VoteNo  VoteChoice = "NO"
)

// ParseVoteChoice parses YES or NO.
func ParseVoteChoice(s string) (VoteChoice, error) {
	c := VoteChoice(strings.ToUpper(strings.TrimSpace(s)))
	if c != VoteYes && c != VoteNo {
		return "", apperr.New(apperr.CodeValidation, "choice must be YES or NO")
	}
	return c, nil
}
