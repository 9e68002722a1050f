package dashboard_service

import (
	"sort"

	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
	"trust-fund-service/models/dao"
	"trust-fund-service/service/ledger_service"
)

// Funded project a principal backed, with the principal's share
type Funded struct {
	model.ProjectSummary
	MyAmount decimal.Decimal `json:"myAmount"`
}

// Dashboard per-principal view, recomputed on every request
type Dashboard struct {
	MyProjects []model.ProjectSummary `json:"myProjects"`
	MyFundings []Funded               `json:"myFundings"`
}

// DashboardService projects owned and backed campaigns for a principal
type DashboardService struct {
	projects *dao.ProjectDAO
	ledger   *ledger_service.LedgerService
}

// NewDashboardService create dashboard service; a nil db means database.DB
func NewDashboardService(db database.Database, ledger *ledger_service.LedgerService) *DashboardService {
	return &DashboardService{projects: dao.NewProjectDAO(db), ledger: ledger}
}

// Dashboard builds pr's dashboard.
func (s *DashboardService) Dashboard(pr model.Principal) (*Dashboard, error) {
	if pr.IsZero() {
		return nil, apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}

	owned, err := s.projects.ListByOwner(pr)
	if err != nil {
		return nil, err
	}
	out := &Dashboard{
		MyProjects: make([]model.ProjectSummary, 0, len(owned)),
		MyFundings: []Funded{},
	}
	for _, p := range owned {
		total, err := s.ledger.TotalFor(p.ID)
		if err != nil {
			return nil, err
		}
		out.MyProjects = append(out.MyProjects, model.ProjectSummary{Project: p, Funding: model.NewFunding(total, p.TargetAmount)})
	}

	mine, err := s.ledger.ListFor(pr)
	if err != nil {
		return nil, err
	}
	byProject := make(map[string]decimal.Decimal)
	var order []string
	for _, c := range mine {
		sum, seen := byProject[c.ProjectID]
		if !seen {
			order = append(order, c.ProjectID)
		}
		byProject[c.ProjectID] = sum.Add(c.Amount)
	}

	for _, id := range order {
		p, err := s.projects.Get(id)
		if apperr.IsCategory(err, apperr.CategoryNotFound) {
			log.Warnf("Contribution references missing project %s", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		total, err := s.ledger.TotalFor(id)
		if err != nil {
			return nil, err
		}
		out.MyFundings = append(out.MyFundings, Funded{
			ProjectSummary: model.ProjectSummary{Project: p, Funding: model.NewFunding(total, p.TargetAmount)},
			MyAmount:       byProject[id],
		})
	}
	sort.SliceStable(out.MyFundings, func(i, j int) bool {
		return out.MyFundings[i].CreatedAt.After(out.MyFundings[j].CreatedAt)
	})
	log.Debugf("Dashboard for %s: %d owned, %d funded", pr.WalletAddress, len(out.MyProjects), len(out.MyFundings))
	return out, nil
}
