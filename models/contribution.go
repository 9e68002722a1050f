package models

import (
	"time"

	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
)

// Contribution append-only ledger entry of money sent to a project
type Contribution struct {
	ID            string          `json:"id"`
	ProjectID     string          `json:"projectId"`
	WalletAddress string          `json:"walletAddress"`    // Contributor wallet (normalized)
	UserID        string          `json:"userId,omitempty"` // Contributor user id, optional
	Amount        decimal.Decimal `json:"amount"`
	ChainTxRef    string          `json:"chainTxRef,omitempty"` // Chain transaction that moved the funds
	CreatedAt     time.Time       `json:"createdAt"`
}

// Principal returns the contributor identity.
func (c *Contribution) Principal() Principal {
	return Principal{WalletAddress: c.WalletAddress, UserID: c.UserID}
}

// SameAs reports whether o records the same chain transfer as c.
func (c *Contribution) SameAs(o *Contribution) bool {
	return c.ProjectID == o.ProjectID &&
		NormalizeWallet(c.WalletAddress) == NormalizeWallet(o.WalletAddress) &&
		c.Amount.Equal(o.Amount)
}

// NewContribution validates and builds a contribution.
func NewContribution(id, projectID string, pr Principal, amount decimal.Decimal, txRef string, now time.Time) (*Contribution, error) {
	if pr.WalletAddress == "" {
		return nil, apperr.New(apperr.CodeUnauthenticated, "contributor wallet required")
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.CodeInvalidAmount, "amount must be greater than zero")
	}
	return &Contribution{
		ID:            id,
		ProjectID:     projectID,
		WalletAddress: NormalizeWallet(pr.WalletAddress),
		UserID:        pr.UserID,
		Amount:        amount,
		ChainTxRef:    NormalizeTxRef(txRef),
		CreatedAt:     now,
	}, nil
}

// SumContributions adds up contribution amounts exactly.
func SumContributions(cs []*Contribution) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Amount)
	}
	return total
}

// SumFor adds up the contributions made by pr.
func SumFor(cs []*Contribution, pr Principal) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		if pr.Matches(c.WalletAddress, c.UserID) {
			total = total.Add(c.Amount)
		}
	}
	return total
}
