package models

import (
	"github.com/shopspring/decimal"
)

// Tally aggregated vote counts of a milestone
type Tally struct {
	YesCount  int             `json:"yesCount"`
	NoCount   int             `json:"noCount"`
	YesAmount decimal.Decimal `json:"yesAmount"`
	NoAmount  decimal.Decimal `json:"noAmount"`
}

// NewTally returns an empty tally.
func NewTally() Tally {
	return Tally{YesAmount: decimal.Zero, NoAmount: decimal.Zero}
}

func (t *Tally) add(v Vote) {
	w := decimal.Zero
	if v.Amount != nil {
		w = *v.Amount
	}
	switch v.Choice {
	case VoteYes:
		t.YesCount++
		t.YesAmount = t.YesAmount.Add(w)
	case VoteNo:
		t.NoCount++
		t.NoAmount = t.NoAmount.Add(w)
	}
}

// Cast returns the total weight of votes cast.
func (t Tally) Cast() decimal.Decimal {
	return t.YesAmount.Add(t.NoAmount)
}

// VoteParams thresholds of the on-chain approval rule
type VoteParams struct {
	QuorumPercentage uint32 `json:"quorumPercentage"` // Share of eligible weight that must vote
	PassPercentage   uint32 `json:"passPercentage"`   // Share of cast weight that must vote YES
}

// DefaultVoteParams used when no configuration is supplied.
var DefaultVoteParams = VoteParams{QuorumPercentage: 20, PassPercentage: 60}

// Projected returns the outcome the chain's rule would produce if voting
// closed now. eligible is the project's funded total. The result is advisory:
// PENDING means quorum has not been reached.
func (t Tally) Projected(eligible decimal.Decimal, params VoteParams) MilestoneStatus {
	cast := t.Cast()
	hundred := decimal.NewFromInt(100)
	quorum := eligible.Mul(decimal.NewFromInt(int64(params.QuorumPercentage))).Div(hundred)
	pass := cast.Mul(decimal.NewFromInt(int64(params.PassPercentage))).Div(hundred)

	switch {
	case cast.IsZero(), cast.LessThan(quorum):
		return MilestoneStatusPending
	case t.YesAmount.LessThan(pass):
		return MilestoneStatusRejected
	default:
		return MilestoneStatusApproved
	}
}

// TallyView tally of a milestone as seen by a caller
type TallyView struct {
	Tally
	HasVoted    bool            `json:"hasVoted"`
	Projected   MilestoneStatus `json:"projected"`
	Eligible    decimal.Decimal `json:"eligibleAmount"`
	Params      VoteParams      `json:"params"`
	Status      MilestoneStatus `json:"status"`
	RequestSent bool            `json:"requestSent"`
}

// ViewTally builds the caller-specific tally view of m.
func ViewTally(m *Milestone, viewer Principal, eligible decimal.Decimal, params VoteParams) TallyView {
	return TallyView{
		Tally:       m.Tally,
		HasVoted:    m.HasVoted(viewer),
		Projected:   m.Tally.Projected(eligible, params),
		Eligible:    eligible,
		Params:      params,
		Status:      m.Status,
		RequestSent: m.RequestSent,
	}
}
