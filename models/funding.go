package models

import (
	"github.com/shopspring/decimal"
)

// Funding derived funding figures of a project
type Funding struct {
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Progress      int64           `json:"progress"` // Whole percent, capped at 100
}

// Progress returns min(100, floor(100*total/target)), or 0 for a
// non-positive target.
func Progress(total, target decimal.Decimal) int64 {
	if !target.IsPositive() || !total.IsPositive() {
		return 0
	}
	// QuoRem at precision 0 truncates; Div would round first.
	p, _ := total.Mul(decimal.NewFromInt(100)).QuoRem(target, 0)
	if p.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	return p.IntPart()
}

// NewFunding computes the funding figures for total against target.
func NewFunding(total, target decimal.Decimal) Funding {
	return Funding{CurrentAmount: total, Progress: Progress(total, target)}
}

// ShouldComplete reports whether a project in status with the given total
// must be promoted to COMPLETED. Only FUNDING projects are promoted.
func ShouldComplete(status ProjectStatus, total, target decimal.Decimal) bool {
	return status == ProjectStatusFunding && target.IsPositive() && total.GreaterThanOrEqual(target)
}

// ProjectSummary project with its funding figures
type ProjectSummary struct {
	*Project
	Funding
}

// MilestoneView milestone as seen by one caller
type MilestoneView struct {
	*Milestone
	HasVoted bool `json:"hasVoted"`
}

// ProjectDetail project with funding figures and, when the caller is known,
// the caller's own contribution and votes.
type ProjectDetail struct {
	*Project
	Funding
	Milestones      []MilestoneView  `json:"milestones"` // Shadows Project.Milestones
	MyAmount        *decimal.Decimal `json:"myAmount,omitempty"`
	IsOwner         bool             `json:"isOwner"`
	HasParticipated bool             `json:"hasParticipated"`
}

// NewProjectDetail builds the detail of p for viewer. mine is the viewer's
// contribution total and is ignored for an anonymous viewer.
func NewProjectDetail(p *Project, f Funding, viewer Principal, mine decimal.Decimal) *ProjectDetail {
	d := &ProjectDetail{Project: p, Funding: f, Milestones: make([]MilestoneView, 0, len(p.Milestones))}
	for _, m := range p.Milestones {
		d.Milestones = append(d.Milestones, MilestoneView{Milestone: m, HasVoted: m.HasVoted(viewer)})
	}
	if viewer.IsZero() {
		return d
	}
	d.MyAmount = &mine
	d.IsOwner = p.IsOwnedBy(viewer)
	d.HasParticipated = mine.IsPositive()
	return d
}
