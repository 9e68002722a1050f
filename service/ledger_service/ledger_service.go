package ledger_service

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
	"trust-fund-service/models/dao"
)

// LedgerService append-only contribution ledger and funding aggregation
type LedgerService struct {
	projects      *dao.ProjectDAO
	contributions *dao.ContributionDAO
	now           func() time.Time
}

// NewLedgerService create ledger service; a nil db means database.DB
func NewLedgerService(db database.Database) *LedgerService {
	return &LedgerService{
		projects:      dao.NewProjectDAO(db),
		contributions: dao.NewContributionDAO(db),
		now:           time.Now,
	}
}

func newContributionID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// Record appends a contribution and re-evaluates the project's funding.
// Recording the same chain reference again for the same project, wallet and
// amount returns the existing entry.
func (s *LedgerService) Record(projectID string, pr model.Principal, amount decimal.Decimal, txRef string) (*model.Contribution, model.Funding, error) {
	if pr.IsZero() {
		return nil, model.Funding{}, apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	now := s.now().UTC()
	c, err := model.NewContribution(newContributionID(now), projectID, pr, amount, txRef, now)
	if err != nil {
		return nil, model.Funding{}, err
	}
	if _, err := s.projects.Get(projectID); err != nil {
		return nil, model.Funding{}, err
	}

	if c.ChainTxRef != "" {
		existing, err := s.replay(c)
		if err != nil {
			return nil, model.Funding{}, err
		}
		if existing != nil {
			f, err := s.Refresh(projectID)
			return existing, f, err
		}
	}

	if err := s.contributions.Add(c); err != nil {
		// Lost a race with the same chain reference.
		if c.ChainTxRef != "" && apperr.IsCategory(err, apperr.CategoryValidation) {
			existing, rerr := s.replay(c)
			if rerr == nil && existing != nil {
				f, ferr := s.Refresh(projectID)
				return existing, f, ferr
			}
		}
		return nil, model.Funding{}, err
	}
	log.Infof("Recorded %s from %s to project %s (tx %q)", c.Amount, c.WalletAddress, projectID, c.ChainTxRef)

	f, err := s.Refresh(projectID)
	if err != nil {
		return nil, model.Funding{}, err
	}
	return c, f, nil
}

// replay returns the entry already recorded under c's chain reference, or
// a validation error if that entry describes a different transfer.
func (s *LedgerService) replay(c *model.Contribution) (*model.Contribution, error) {
	existing, err := s.contributions.GetByTxRef(c.ChainTxRef)
	if err != nil || existing == nil {
		return nil, err
	}
	if !existing.SameAs(c) {
		return nil, apperr.Newf(apperr.CodeValidation, "chain transaction %s is already recorded for a different contribution", c.ChainTxRef)
	}
	return existing, nil
}

// TotalFor sums every contribution to a project.
func (s *LedgerService) TotalFor(projectID string) (decimal.Decimal, error) {
	cs, err := s.contributions.ListByProject(projectID)
	if err != nil {
		return decimal.Zero, err
	}
	return model.SumContributions(cs), nil
}

// TotalForPrincipal sums pr's contributions to a project, matched by user
// id or wallet.
func (s *LedgerService) TotalForPrincipal(projectID string, pr model.Principal) (decimal.Decimal, error) {
	cs, err := s.contributions.ListByProject(projectID)
	if err != nil {
		return decimal.Zero, err
	}
	return model.SumFor(cs, pr), nil
}

// ListByProject lists a project's contributions oldest first.
func (s *LedgerService) ListByProject(projectID string) ([]*model.Contribution, error) {
	if _, err := s.projects.Get(projectID); err != nil {
		return nil, err
	}
	return s.contributions.ListByProject(projectID)
}

// ListFor lists every contribution made by pr.
func (s *LedgerService) ListFor(pr model.Principal) ([]*model.Contribution, error) {
	return s.contributions.ListByPrincipal(pr)
}

// HasContributions reports whether any contribution references the project.
func (s *LedgerService) HasContributions(projectID string) (bool, error) {
	n, err := s.contributions.Count(projectID)
	return n > 0, err
}

// Refresh recomputes a project's funding and promotes it when funded.
func (s *LedgerService) Refresh(projectID string) (model.Funding, error) {
	p, err := s.projects.Get(projectID)
	if err != nil {
		return model.Funding{}, err
	}
	_, f, err := s.Promote(p)
	return f, err
}

// Promote computes p's funding and moves it FUNDING -> COMPLETED once the
// target is reached. It returns the project as stored afterwards.
func (s *LedgerService) Promote(p *model.Project) (*model.Project, model.Funding, error) {
	total, err := s.TotalFor(p.ID)
	if err != nil {
		return nil, model.Funding{}, err
	}
	f := model.NewFunding(total, p.TargetAmount)
	if !model.ShouldComplete(p.Status, total, p.TargetAmount) {
		return p, f, nil
	}

	promoted := false
	updated, err := s.projects.Update(p.ID, func(cur *model.Project) error {
		// Re-check against the stored state; another request may have won.
		promoted = cur.PromoteIfFunded(total)
		if promoted {
			cur.UpdatedAt = s.now().UTC()
		}
		return nil
	})
	if err != nil {
		return nil, model.Funding{}, err
	}
	if promoted {
		log.Infof("Project %s reached its target (%s/%s), now %s", p.ID, total, p.TargetAmount, updated.Status)
	}
	return updated, f, nil
}
