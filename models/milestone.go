package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
)

// Milestone ordered funding checkpoint embedded in a project
type Milestone struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Order           int             `json:"order"`
	AllocatedAmount decimal.Decimal `json:"allocatedAmount"`

	Status           MilestoneStatus `json:"status"`
	RequestSent      bool            `json:"requestSent"`                // Creator opened the voting window
	RequestAt        *time.Time      `json:"requestAt,omitempty"`        // Last completion request
	CompletionDetail string          `json:"completionDetail,omitempty"` // Evidence text
	ProofURL         string          `json:"proofUrl,omitempty"`         // Evidence link (IPFS or http)

	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ResolutionTxRef string     `json:"resolutionTxRef,omitempty"` // Chain tx that finalized the milestone

	Tally
	Votes []Vote `json:"votes"`
}

// Vote single backer vote on a milestone
type Vote struct {
	VoterWallet string           `json:"voterWallet"`
	VoterUser   string           `json:"voterUser,omitempty"`
	Choice      VoteChoice       `json:"choice"`
	Amount      *decimal.Decimal `json:"amount,omitempty"` // Contribution weight at vote time
	ChainTxRef  string           `json:"chainTxRef,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// RequestCompletion attaches completion evidence and opens the voting
// window. Re-requests overwrite the evidence until the milestone is final.
func (m *Milestone) RequestCompletion(detail, proofURL string, now time.Time) error {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return apperr.New(apperr.CodeValidation, "completion description is required")
	}
	if m.Status.IsFinal() {
		return apperr.Newf(apperr.CodeInvalidState, "milestone is already %s", m.Status)
	}
	m.CompletionDetail = detail
	if proof := strings.TrimSpace(proofURL); proof != "" {
		m.ProofURL = proof
	}
	m.RequestSent = true
	at := now
	m.RequestAt = &at
	return nil
}

// HasVoted reports whether pr already voted, by wallet or user id.
func (m *Milestone) HasVoted(pr Principal) bool {
	if pr.IsZero() {
		return false
	}
	for _, v := range m.Votes {
		if pr.Matches(v.VoterWallet, v.VoterUser) {
			return true
		}
	}
	return false
}

// voteByWallet returns the vote cast from wallet, if any.
func (m *Milestone) voteByWallet(wallet string) *Vote {
	w := NormalizeWallet(wallet)
	for i := range m.Votes {
		if m.Votes[i].VoterWallet == w {
			return &m.Votes[i]
		}
	}
	return nil
}

// AddVote appends a vote and updates the tally.
func (m *Milestone) AddVote(v Vote) error {
	v.VoterWallet = NormalizeWallet(v.VoterWallet)
	if v.VoterWallet == "" {
		return apperr.New(apperr.CodeUnauthenticated, "voter wallet required")
	}
	if m.Status.IsFinal() {
		return apperr.Newf(apperr.CodeInvalidState, "milestone is already %s", m.Status)
	}
	if !m.RequestSent {
		return apperr.New(apperr.CodeInvalidState, "voting has not been opened for this milestone")
	}
	if v.Choice != VoteYes && v.Choice != VoteNo {
		return apperr.New(apperr.CodeValidation, "choice must be YES or NO")
	}
	if m.voteByWallet(v.VoterWallet) != nil || m.HasVoted(Principal{WalletAddress: v.VoterWallet, UserID: v.VoterUser}) {
		return apperr.New(apperr.CodeDuplicateVote, "this wallet already voted on the milestone")
	}
	m.Votes = append(m.Votes, v)
	m.Tally.add(v)
	return nil
}

// Resolve finalizes the milestone with the chain's outcome. Applying the
// same outcome again is a no-op and reports false.
func (m *Milestone) Resolve(outcome MilestoneStatus, txRef string, now time.Time) (bool, error) {
	if !outcome.IsFinal() {
		return false, apperr.New(apperr.CodeValidation, "outcome must be APPROVED or REJECTED")
	}
	if m.Status == outcome {
		return false, nil
	}
	if !m.Status.CanTransitionTo(outcome) {
		return false, apperr.Newf(apperr.CodeInvalidState, "milestone is already %s", m.Status)
	}
	if !m.RequestSent {
		return false, apperr.New(apperr.CodeInvalidState, "milestone has no completion request")
	}
	m.Status = outcome
	at := now
	m.ResolvedAt = &at
	m.ResolutionTxRef = txRef
	return true, nil
}
