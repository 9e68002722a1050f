package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
)

// MaxMilestones upper bound of milestones per project
const MaxMilestones = 5

func init() {
	// Amounts travel as JSON numbers, matching what clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

// Project funding campaign with its ordered milestone plan
type Project struct {
	ID          string `json:"id"`
	OwnerWallet string `json:"ownerWallet"`         // Creator wallet (normalized)
	OwnerUser   string `json:"ownerUser,omitempty"` // Creator user id, optional

	ChainProjectID *int64 `json:"chainProjectId,omitempty"` // On-chain project id, set once the chain confirms creation

	Title                  string          `json:"title"`
	TargetAmount           decimal.Decimal `json:"targetAmount"`
	RepresentativeImage    string          `json:"representativeImage,omitempty"`
	ExpectedCompletionDate *time.Time      `json:"expectedCompletionDate,omitempty"`
	Description            string          `json:"description"`

	Status     ProjectStatus `json:"status"`
	Milestones []*Milestone  `json:"milestones"` // Position is the chain's milestone index

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MilestoneDraft caller-supplied milestone definition
type MilestoneDraft struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Order           int             `json:"order"`
	AllocatedAmount decimal.Decimal `json:"allocatedAmount"`
}

// ProjectDraft caller-supplied fields of a new project
type ProjectDraft struct {
	Title                  string           `json:"title"`
	TargetAmount           decimal.Decimal  `json:"targetAmount"`
	Description            string           `json:"description"`
	RepresentativeImage    string           `json:"representativeImage"`
	ExpectedCompletionDate *time.Time       `json:"expectedCompletionDate"`
	ChainProjectID         *int64           `json:"chainProjectId"`
	Milestones             []MilestoneDraft `json:"milestones"`
}

// NewProject validates a draft and builds a FUNDING project whose milestones
// are all PENDING with empty tallies, in the order supplied.
func NewProject(owner Principal, d ProjectDraft, now time.Time, newID func() string) (*Project, error) {
	if owner.WalletAddress == "" {
		return nil, apperr.New(apperr.CodeUnauthenticated, "authenticated wallet required")
	}
	title := strings.TrimSpace(d.Title)
	desc := strings.TrimSpace(d.Description)
	if title == "" || desc == "" || d.TargetAmount.IsZero() {
		return nil, apperr.New(apperr.CodeValidation, "title, targetAmount and description are required")
	}
	if !d.TargetAmount.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, "targetAmount must be positive")
	}
	if d.ChainProjectID != nil && *d.ChainProjectID < 0 {
		return nil, apperr.New(apperr.CodeValidation, "chainProjectId must not be negative")
	}
	milestones, err := buildMilestones(d.Milestones, newID)
	if err != nil {
		return nil, err
	}

	return &Project{
		ID:                     newID(),
		OwnerWallet:            owner.WalletAddress,
		OwnerUser:              owner.UserID,
		ChainProjectID:         d.ChainProjectID,
		Title:                  title,
		TargetAmount:           d.TargetAmount,
		RepresentativeImage:    strings.TrimSpace(d.RepresentativeImage),
		ExpectedCompletionDate: d.ExpectedCompletionDate,
		Description:            desc,
		Status:                 ProjectStatusFunding,
		Milestones:             milestones,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

func buildMilestones(drafts []MilestoneDraft, newID func() string) ([]*Milestone, error) {
	if len(drafts) > MaxMilestones {
		return nil, apperr.Newf(apperr.CodeValidation, "at most %d milestones are allowed", MaxMilestones)
	}
	seen := make(map[int]bool, len(drafts))
	out := make([]*Milestone, 0, len(drafts))
	for i, d := range drafts {
		title := strings.TrimSpace(d.Title)
		if title == "" {
			return nil, apperr.Newf(apperr.CodeValidation, "milestone %d: title is required", i+1)
		}
		if d.Order <= 0 {
			return nil, apperr.Newf(apperr.CodeValidation, "milestone %d: order must be positive", i+1)
		}
		if seen[d.Order] {
			return nil, apperr.Newf(apperr.CodeValidation, "milestone order %d is used more than once", d.Order)
		}
		seen[d.Order] = true
		if d.AllocatedAmount.IsNegative() {
			return nil, apperr.Newf(apperr.CodeValidation, "milestone %d: allocatedAmount must not be negative", i+1)
		}
		out = append(out, &Milestone{
			ID:              newID(),
			Title:           title,
			Description:     strings.TrimSpace(d.Description),
			Order:           d.Order,
			AllocatedAmount: d.AllocatedAmount,
			Status:          MilestoneStatusPending,
			Tally:           NewTally(),
			Votes:           []Vote{},
		})
	}
	return out, nil
}

// Owner returns the creator principal.
func (p *Project) Owner() Principal {
	return Principal{WalletAddress: p.OwnerWallet, UserID: p.OwnerUser}
}

// IsOwnedBy reports whether pr may mutate the project.
func (p *Project) IsOwnedBy(pr Principal) bool {
	return pr.Matches(p.OwnerWallet, p.OwnerUser)
}

// AuthorizeOwner fails with Forbidden unless pr owns the project.
func (p *Project) AuthorizeOwner(pr Principal) error {
	if pr.IsZero() {
		return apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	if !p.IsOwnedBy(pr) {
		return apperr.New(apperr.CodeForbidden, "only the project owner may do this")
	}
	return nil
}

// Milestone returns the milestone with the given id and its array position.
func (p *Project) Milestone(id string) (*Milestone, int, error) {
	for i, m := range p.Milestones {
		if m.ID == id {
			return m, i, nil
		}
	}
	return nil, -1, apperr.New(apperr.CodeMilestoneNotFound, "milestone not found")
}

// MilestonesLocked reports whether the milestone plan can no longer be
// replaced: the chain holds its own copy, or backers have started acting on it.
func (p *Project) MilestonesLocked() bool {
	if p.ChainProjectID != nil {
		return true
	}
	for _, m := range p.Milestones {
		if m.RequestSent || len(m.Votes) > 0 || m.Status != MilestoneStatusPending {
			return true
		}
	}
	return false
}

// ReplaceMilestones swaps the milestone plan for a new one.
func (p *Project) ReplaceMilestones(drafts []MilestoneDraft, newID func() string) error {
	if p.MilestonesLocked() {
		return apperr.New(apperr.CodeInvalidState, "milestones can no longer be changed")
	}
	ms, err := buildMilestones(drafts, newID)
	if err != nil {
		return err
	}
	p.Milestones = ms
	return nil
}

// LinkChainProject records the on-chain project id. It can be set once.
func (p *Project) LinkChainProject(id int64) error {
	if id < 0 {
		return apperr.New(apperr.CodeValidation, "chainProjectId must not be negative")
	}
	if p.ChainProjectID != nil {
		if *p.ChainProjectID == id {
			return nil
		}
		return apperr.New(apperr.CodeInvalidState, "project is already linked to a different chain project")
	}
	p.ChainProjectID = &id
	return nil
}

// SetStatus applies a caller-requested status change.
func (p *Project) SetStatus(next ProjectStatus) error {
	if next == p.Status {
		return nil
	}
	if next == ProjectStatusCompleted {
		return apperr.New(apperr.CodeInvalidState, "a project completes only by reaching its target")
	}
	if !p.Status.CanTransitionTo(next) {
		return apperr.Newf(apperr.CodeInvalidState, "cannot move project from %s to %s", p.Status, next)
	}
	p.Status = next
	return nil
}

// PromoteIfFunded moves a FUNDING project to COMPLETED when total reaches
// the target. It reports whether the status changed; repeated calls are no-ops.
func (p *Project) PromoteIfFunded(total decimal.Decimal) bool {
	if !ShouldComplete(p.Status, total, p.TargetAmount) {
		return false
	}
	p.Status = ProjectStatusCompleted
	return true
}
