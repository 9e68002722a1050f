package mirror_service

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
	model "trust-fund-service/models"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/project_service"
)

// ContributionPayload chain funding transfer
type ContributionPayload struct {
	Amount decimal.Decimal `json:"amount"`
}

// ContributionResult mirror state after a contribution
type ContributionResult struct {
	Contribution *model.Contribution `json:"contribution"`
	Funding      model.Funding       `json:"funding"`
}

// VotePayload chain milestone vote
type VotePayload struct {
	Choice model.VoteChoice `json:"choice"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// ResolutionPayload chain release or rejection of a milestone
type ResolutionPayload struct {
	Outcome model.MilestoneStatus `json:"outcome"`
}

// ChainLinkPayload chain project creation
type ChainLinkPayload struct {
	ChainProjectID int64 `json:"chainProjectId"`
}

func decode(w *model.MirrorWrite, v interface{}) error {
	if err := json.Unmarshal(w.Payload, v); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "malformed "+string(w.Kind)+" payload", err)
	}
	return nil
}

// RegisterAppliers wires every mirror write kind to the ledger and project
// services.
func (s *MirrorService) RegisterAppliers(ledger *ledger_service.LedgerService, projects *project_service.ProjectService) {
	s.Register(model.MirrorKindContribution, func(_ context.Context, w *model.MirrorWrite) (interface{}, error) {
		var p ContributionPayload
		if err := decode(w, &p); err != nil {
			return nil, err
		}
		c, f, err := ledger.Record(w.ProjectID, w.Principal, p.Amount, w.TxRef)
		if err != nil {
			return nil, err
		}
		return ContributionResult{Contribution: c, Funding: f}, nil
	})

	s.Register(model.MirrorKindVote, func(_ context.Context, w *model.MirrorWrite) (interface{}, error) {
		var p VotePayload
		if err := decode(w, &p); err != nil {
			return nil, err
		}
		view, err := projects.CastVote(w.ProjectID, w.MilestoneID, w.Principal, p.Choice, p.Amount, w.TxRef)
		if err != nil && (p.Amount == nil || p.Amount.IsPositive()) && s.awaitingContribution(w, err) {
			return nil, apperr.Wrap(apperr.CodeUpstreamFailure, "voter's contribution is not mirrored yet", err)
		}
		return view, err
	})

	s.Register(model.MirrorKindMilestoneResolution, func(_ context.Context, w *model.MirrorWrite) (interface{}, error) {
		var p ResolutionPayload
		if err := decode(w, &p); err != nil {
			return nil, err
		}
		return projects.Resolve(w.ProjectID, w.MilestoneID, w.Principal, p.Outcome, w.TxRef)
	})

	s.Register(model.MirrorKindChainLink, func(_ context.Context, w *model.MirrorWrite) (interface{}, error) {
		var p ChainLinkPayload
		if err := decode(w, &p); err != nil {
			return nil, err
		}
		return projects.LinkChain(w.ProjectID, w.Principal, p.ChainProjectID)
	})
}

// awaitingContribution reports whether a vote rejected with err may succeed
// once the voter's own contribution reaches the mirror. The chain only
// accepts votes from backers, so a verified vote from a wallet the ledger
// does not know yet is ahead of its contribution. Without receipt checks
// the vote waits only while a contribution from the voter is in flight.
func (s *MirrorService) awaitingContribution(w *model.MirrorWrite, err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotBacker:
		if s.opts.VerifyReceipts {
			return true
		}
	case apperr.CodeInvalidAmount:
	default:
		return false
	}
	pending, perr := s.inFlightContribution(w.ProjectID, w.Principal)
	if perr != nil {
		log.Warnf("Look up contributions in flight for %s: %v", w.TxRef, perr)
		return true
	}
	return pending
}

// inFlightContribution reports whether pr has a pending or stalled
// contribution to projectID in the outbox.
func (s *MirrorService) inFlightContribution(projectID string, pr model.Principal) (bool, error) {
	for _, st := range []model.MirrorStatus{model.MirrorStatusPending, model.MirrorStatusStalled} {
		ws, err := s.writes.List(st, 0)
		if err != nil {
			return false, err
		}
		for _, c := range ws {
			if c.Kind == model.MirrorKindContribution && c.ProjectID == projectID && pr.Same(c.Principal) {
				return true, nil
			}
		}
	}
	return false, nil
}
