package dao

import (
	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
)

// ContributionDAO contribution ledger data access object
type ContributionDAO struct {
	db database.Database
}

// NewContributionDAO create contribution DAO; a nil db means database.DB
func NewContributionDAO(db database.Database) *ContributionDAO {
	return &ContributionDAO{db: dbOrGlobal(db)}
}

// Add appends a contribution. Reusing a chain reference is a validation
// error that still matches database.ErrDuplicate.
func (d *ContributionDAO) Add(c *model.Contribution) error {
	err := d.db.AddContribution(c)
	if err == database.ErrDuplicate {
		return apperr.Wrap(apperr.CodeValidation, "chain transaction already recorded", err)
	}
	return storeError(err, "add contribution", "", "")
}

// GetByTxRef returns the contribution recorded for a chain reference, or
// nil when there is none.
func (d *ContributionDAO) GetByTxRef(txRef string) (*model.Contribution, error) {
	c, err := d.db.GetContributionByTxRef(txRef)
	if err == database.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "get contribution", "", "")
	}
	return c, nil
}

// ListByProject lists a project's contributions oldest first
func (d *ContributionDAO) ListByProject(projectID string) ([]*model.Contribution, error) {
	cs, err := d.db.ListContributionsByProject(projectID)
	if err != nil {
		return nil, storeError(err, "list project contributions", "", "")
	}
	return cs, nil
}

// ListByPrincipal lists every contribution made by pr
func (d *ContributionDAO) ListByPrincipal(pr model.Principal) ([]*model.Contribution, error) {
	cs, err := d.db.ListContributionsByPrincipal(pr)
	if err != nil {
		return nil, storeError(err, "list principal contributions", "", "")
	}
	out := cs[:0]
	for _, c := range cs {
		if pr.Matches(c.WalletAddress, c.UserID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Count counts a project's contributions
func (d *ContributionDAO) Count(projectID string) (int64, error) {
	n, err := d.db.CountContributions(projectID)
	if err != nil {
		return 0, storeError(err, "count contributions", "", "")
	}
	return n, nil
}
