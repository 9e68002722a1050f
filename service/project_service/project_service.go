package project_service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
	"trust-fund-service/models/dao"
	"trust-fund-service/service/ledger_service"
)

// ProjectService project aggregate and milestone lifecycle
type ProjectService struct {
	projects *dao.ProjectDAO
	ledger   *ledger_service.LedgerService
	params   model.VoteParams
	now      func() time.Time
	newID    func() string
}

// NewProjectService create project service; a nil db means database.DB
func NewProjectService(db database.Database, ledger *ledger_service.LedgerService, params model.VoteParams) *ProjectService {
	return &ProjectService{
		projects: dao.NewProjectDAO(db),
		ledger:   ledger,
		params:   params,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ProjectUpdate fields a project owner may change; nil means unchanged
type ProjectUpdate struct {
	Title                  *string                 `json:"title"`
	TargetAmount           *decimal.Decimal        `json:"targetAmount"`
	RepresentativeImage    *string                 `json:"representativeImage"`
	ExpectedCompletionDate *time.Time              `json:"expectedCompletionDate"`
	Description            *string                 `json:"description"`
	ChainProjectID         *int64                  `json:"chainProjectId"`
	Milestones             *[]model.MilestoneDraft `json:"milestones"`
	Status                 *string                 `json:"status"`
}

// CompletionInfo what the chain needs to correlate a milestone request
type CompletionInfo struct {
	ProjectID        string                `json:"projectId"`
	ChainProjectID   *int64                `json:"chainProjectId,omitempty"`
	MilestoneID      string                `json:"milestoneId"`
	MilestoneIndex   int                   `json:"milestoneIndex"` // Zero-based array position
	Order            int                   `json:"order"`
	Title            string                `json:"title"`
	Status           model.MilestoneStatus `json:"status"`
	RequestSent      bool                  `json:"requestSent"`
	RequestAt        *time.Time            `json:"requestAt,omitempty"`
	CompletionDetail string                `json:"completionDetail,omitempty"`
	ProofURL         string                `json:"proofUrl,omitempty"`
}

func requirePrincipal(pr model.Principal) error {
	if pr.IsZero() {
		return apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	return nil
}

// Create validates a draft and stores a new FUNDING project owned by pr.
func (s *ProjectService) Create(pr model.Principal, d model.ProjectDraft) (*model.Project, error) {
	if err := requirePrincipal(pr); err != nil {
		return nil, err
	}
	p, err := model.NewProject(pr, d, s.now().UTC(), s.newID)
	if err != nil {
		return nil, err
	}
	if err := s.projects.Create(p); err != nil {
		return nil, err
	}
	log.Infof("Project %s created by %s with %d milestones", p.ID, p.OwnerWallet, len(p.Milestones))
	return p, nil
}

// List lists projects newest first. page starts at 1. Funding figures are
// computed but status is not re-evaluated here.
func (s *ProjectService) List(status string, page, limit int) ([]model.ProjectSummary, int64, error) {
	var st model.ProjectStatus
	if status != "" {
		var err error
		if st, err = model.ParseProjectStatus(status); err != nil {
			return nil, 0, err
		}
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	ps, total, err := s.projects.List(st, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.ProjectSummary, 0, len(ps))
	for _, p := range ps {
		sum, err := s.ledger.TotalFor(p.ID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, model.ProjectSummary{Project: p, Funding: model.NewFunding(sum, p.TargetAmount)})
	}
	return out, total, nil
}

// Detail loads a project with its funding, promoting it if funded. When
// viewer is known the viewer's own contribution is included.
func (s *ProjectService) Detail(id string, viewer model.Principal) (*model.ProjectDetail, error) {
	p, err := s.projects.Get(id)
	if err != nil {
		return nil, err
	}
	p, f, err := s.ledger.Promote(p)
	if err != nil {
		return nil, err
	}
	mine := decimal.Zero
	if !viewer.IsZero() {
		if mine, err = s.ledger.TotalForPrincipal(id, viewer); err != nil {
			return nil, err
		}
	}
	return model.NewProjectDetail(p, f, viewer, mine), nil
}

// Update applies an owner's changes.
func (s *ProjectService) Update(id string, pr model.Principal, u ProjectUpdate) (*model.Project, error) {
	if err := requirePrincipal(pr); err != nil {
		return nil, err
	}
	var next model.ProjectStatus
	if u.Status != nil {
		var err error
		if next, err = model.ParseProjectStatus(*u.Status); err != nil {
			return nil, err
		}
	}

	p, err := s.projects.Update(id, func(p *model.Project) error {
		if err := p.AuthorizeOwner(pr); err != nil {
			return err
		}
		return s.applyUpdate(p, u, next)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Project %s updated by %s", id, pr.WalletAddress)
	return p, nil
}

func (s *ProjectService) applyUpdate(p *model.Project, u ProjectUpdate, next model.ProjectStatus) error {
	invalid := func(msg string) error { return apperr.New(apperr.CodeValidation, msg) }

	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return invalid("title must not be empty")
		}
		p.Title = title
	}
	if u.Description != nil {
		desc := strings.TrimSpace(*u.Description)
		if desc == "" {
			return invalid("description must not be empty")
		}
		p.Description = desc
	}
	if u.TargetAmount != nil {
		if !u.TargetAmount.IsPositive() {
			return invalid("targetAmount must be positive")
		}
		if p.ChainProjectID != nil && !u.TargetAmount.Equal(p.TargetAmount) {
			return apperr.New(apperr.CodeInvalidState, "targetAmount is fixed once the project is on chain")
		}
		p.TargetAmount = *u.TargetAmount
	}
	if u.RepresentativeImage != nil {
		p.RepresentativeImage = *u.RepresentativeImage
	}
	if u.ExpectedCompletionDate != nil {
		p.ExpectedCompletionDate = u.ExpectedCompletionDate
	}
	if u.Milestones != nil {
		if err := p.ReplaceMilestones(*u.Milestones, s.newID); err != nil {
			return err
		}
	}
	if u.ChainProjectID != nil {
		if err := p.LinkChainProject(*u.ChainProjectID); err != nil {
			return err
		}
	}
	if next != "" {
		if err := p.SetStatus(next); err != nil {
			return err
		}
	}
	p.UpdatedAt = s.now().UTC()
	return nil
}

// LinkChain records the chain's project id once creation is confirmed.
func (s *ProjectService) LinkChain(id string, pr model.Principal, chainProjectID int64) (*model.Project, error) {
	id64 := chainProjectID
	return s.Update(id, pr, ProjectUpdate{ChainProjectID: &id64})
}

// Delete removes a project that has not received any contribution.
func (s *ProjectService) Delete(id string, pr model.Principal) error {
	if err := requirePrincipal(pr); err != nil {
		return err
	}
	p, err := s.projects.Get(id)
	if err != nil {
		return err
	}
	if err := p.AuthorizeOwner(pr); err != nil {
		return err
	}
	funded, err := s.ledger.HasContributions(id)
	if err != nil {
		return err
	}
	if funded {
		return apperr.New(apperr.CodeInvalidState, "a project with contributions cannot be deleted")
	}
	if err := s.projects.Delete(id); err != nil {
		return err
	}
	log.Infof("Project %s deleted by %s", id, pr.WalletAddress)
	return nil
}

// RequestCompletion attaches completion evidence to a milestone and opens
// its voting window.
func (s *ProjectService) RequestCompletion(id, milestoneID string, pr model.Principal, detail, proofURL string) (*model.Milestone, error) {
	if err := requirePrincipal(pr); err != nil {
		return nil, err
	}
	var out *model.Milestone
	_, err := s.projects.Update(id, func(p *model.Project) error {
		if err := p.AuthorizeOwner(pr); err != nil {
			return err
		}
		m, _, err := p.Milestone(milestoneID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := m.RequestCompletion(detail, proofURL, now); err != nil {
			return err
		}
		p.UpdatedAt = now
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Completion requested for milestone %s of project %s", milestoneID, id)
	return out, nil
}

// CompletionInfo returns the milestone's evidence and its chain index.
func (s *ProjectService) CompletionInfo(id, milestoneID string) (*CompletionInfo, error) {
	p, err := s.projects.Get(id)
	if err != nil {
		return nil, err
	}
	m, idx, err := p.Milestone(milestoneID)
	if err != nil {
		return nil, err
	}
	return &CompletionInfo{
		ProjectID:        p.ID,
		ChainProjectID:   p.ChainProjectID,
		MilestoneID:      m.ID,
		MilestoneIndex:   idx,
		Order:            m.Order,
		Title:            m.Title,
		Status:           m.Status,
		RequestSent:      m.RequestSent,
		RequestAt:        m.RequestAt,
		CompletionDetail: m.CompletionDetail,
		ProofURL:         m.ProofURL,
	}, nil
}

// CastVote records a backer's vote. A nil amount weighs the vote by the
// voter's total contribution; a given amount may not exceed it. txRef is the chain vote it mirrors, if any;
// replaying the same txRef is a no-op.
func (s *ProjectService) CastVote(id, milestoneID string, pr model.Principal, choice model.VoteChoice, amount *decimal.Decimal, txRef string) (model.TallyView, error) {
	if err := requirePrincipal(pr); err != nil {
		return model.TallyView{}, err
	}
	if amount != nil && !amount.IsPositive() {
		return model.TallyView{}, apperr.New(apperr.CodeInvalidAmount, "vote amount must be greater than zero")
	}
	txRef = model.NormalizeTxRef(txRef)
	cur, err := s.projects.Get(id)
	if err != nil {
		return model.TallyView{}, err
	}
	if m, _, err := cur.Milestone(milestoneID); err == nil && hasVoteTx(m, pr, txRef) {
		return s.tallyOf(cur, milestoneID, pr)
	}
	backed, err := s.ledger.TotalForPrincipal(id, pr)
	if err != nil {
		return model.TallyView{}, err
	}

	p, err := s.projects.Update(id, func(p *model.Project) error {
		m, _, err := p.Milestone(milestoneID)
		if err != nil {
			return err
		}
		if p.IsOwnedBy(pr) {
			return apperr.New(apperr.CodeForbidden, "the project owner cannot vote on their own milestone")
		}
		if !backed.IsPositive() {
			return apperr.New(apperr.CodeNotBacker, "only backers of the project may vote")
		}
		weight := backed
		if amount != nil {
			if amount.GreaterThan(backed) {
				return apperr.Newf(apperr.CodeInvalidAmount, "vote amount exceeds the %s contributed", backed)
			}
			weight = *amount
		}
		return m.AddVote(model.Vote{
			VoterWallet: pr.WalletAddress,
			VoterUser:   pr.UserID,
			Choice:      choice,
			Amount:      &weight,
			ChainTxRef:  txRef,
			CreatedAt:   s.now().UTC(),
		})
	})
	if err != nil {
		return model.TallyView{}, err
	}
	log.Infof("Vote %s from %s on milestone %s of project %s", choice, pr.WalletAddress, milestoneID, id)
	return s.tallyOf(p, milestoneID, pr)
}

// hasVoteTx reports whether pr's vote mirroring txRef is already recorded.
func hasVoteTx(m *model.Milestone, pr model.Principal, txRef string) bool {
	if txRef == "" {
		return false
	}
	for _, v := range m.Votes {
		if v.ChainTxRef == txRef && pr.Matches(v.VoterWallet, v.VoterUser) {
			return true
		}
	}
	return false
}

// Tally returns the milestone tally as seen by viewer.
func (s *ProjectService) Tally(id, milestoneID string, viewer model.Principal) (model.TallyView, error) {
	p, err := s.projects.Get(id)
	if err != nil {
		return model.TallyView{}, err
	}
	return s.tallyOf(p, milestoneID, viewer)
}

func (s *ProjectService) tallyOf(p *model.Project, milestoneID string, viewer model.Principal) (model.TallyView, error) {
	m, _, err := p.Milestone(milestoneID)
	if err != nil {
		return model.TallyView{}, err
	}
	eligible, err := s.ledger.TotalFor(p.ID)
	if err != nil {
		return model.TallyView{}, err
	}
	return model.ViewTally(m, viewer, eligible, s.params), nil
}

// Resolve mirrors the chain's final decision on a milestone.
func (s *ProjectService) Resolve(id, milestoneID string, pr model.Principal, outcome model.MilestoneStatus, txRef string) (*model.Milestone, error) {
	if err := requirePrincipal(pr); err != nil {
		return nil, err
	}
	txRef = model.NormalizeTxRef(txRef)
	if txRef == "" {
		return nil, apperr.New(apperr.CodeValidation, "chainTxRef is required to resolve a milestone")
	}
	var (
		out     *model.Milestone
		changed bool
	)
	_, err := s.projects.Update(id, func(p *model.Project) error {
		if err := p.AuthorizeOwner(pr); err != nil {
			return err
		}
		m, _, err := p.Milestone(milestoneID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if changed, err = m.Resolve(outcome, txRef, now); err != nil {
			return err
		}
		p.UpdatedAt = now
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Infof("Milestone %s of project %s resolved %s (tx %s)", milestoneID, id, outcome, txRef)
	}
	return out, nil
}
