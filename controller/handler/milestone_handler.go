package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trust-fund-service/controller/respond"
	model "trust-fund-service/models"
	"trust-fund-service/service/mirror_service"
	"trust-fund-service/service/project_service"
)

// MilestoneHandler milestone lifecycle handler
type MilestoneHandler struct {
	projects *project_service.ProjectService
	mirror   *mirror_service.MirrorService
}

// NewMilestoneHandler create milestone handler
func NewMilestoneHandler(projects *project_service.ProjectService, mirror *mirror_service.MirrorService) *MilestoneHandler {
	return &MilestoneHandler{projects: projects, mirror: mirror}
}

// CompletionRequest completion evidence body
type CompletionRequest struct {
	Description string `json:"description" example:"Foundation poured, photos attached"`
	ProofURL    string `json:"proofUrl" example:"https://gateway.pinata.cloud/ipfs/Qm…"`
}

// VoteRequest vote body
type VoteRequest struct {
	Choice     string           `json:"choice" example:"YES"`
	Amount     *decimal.Decimal `json:"amount" swaggertype:"number" example:"1.5"`
	ChainTxRef string           `json:"chainTxRef" example:"0x5c50…"`
}

// ResolveRequest chain release or rejection body
type ResolveRequest struct {
	Outcome    string `json:"outcome" example:"APPROVED"`
	ChainTxRef string `json:"chainTxRef" example:"0x5c50…"`
}

// RequestCompletion attach completion evidence and open the vote
// @Summary Request milestone completion
// @Tags Milestone
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path string true "Project ID"
// @Param milestoneId path string true "Milestone ID"
// @Param body body CompletionRequest true "Completion evidence"
// @Success 200 {object} respond.Response{data=model.Milestone}
// @Failure 403 {object} respond.Response
// @Failure 404 {object} respond.Response
// @Router /api/v1/projects/{id}/milestones/{milestoneId}/request [post]
func (h *MilestoneHandler) RequestCompletion(c *gin.Context) {
	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.InvalidParam(c, "invalid request body")
		return
	}
	m, err := h.projects.RequestCompletion(c.Param("id"), c.Param("milestoneId"), principal(c), req.Description, req.ProofURL)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, m)
}

// CompletionInfo chain correlation data of a milestone
// @Summary Milestone completion info
// @Description milestoneIndex is the zero-based position used by the contract, not the milestone order
// @Tags Milestone
// @Produce json
// @Param id path string true "Project ID"
// @Param milestoneId path string true "Milestone ID"
// @Success 200 {object} respond.Response{data=project_service.CompletionInfo}
// @Failure 404 {object} respond.Response
// @Router /api/v1/projects/{id}/milestones/{milestoneId}/completion-info [get]
func (h *MilestoneHandler) CompletionInfo(c *gin.Context) {
	info, err := h.projects.CompletionInfo(c.Param("id"), c.Param("milestoneId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, info)
}

// Tally vote tally of a milestone
// @Summary Milestone tally
// @Description hasVoted is set for a signed-in caller; projected is advisory
// @Tags Milestone
// @Produce json
// @Param id path string true "Project ID"
// @Param milestoneId path string true "Milestone ID"
// @Success 200 {object} respond.Response{data=model.TallyView}
// @Failure 404 {object} respond.Response
// @Router /api/v1/projects/{id}/milestones/{milestoneId}/tally [get]
func (h *MilestoneHandler) Tally(c *gin.Context) {
	v, err := h.projects.Tally(c.Param("id"), c.Param("milestoneId"), principal(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, v)
}

// Vote cast a backer vote
// @Summary Vote on milestone
// @Description Without amount the vote weighs the caller's total contribution. With chainTxRef the vote goes through the mirror outbox.
// @Tags Milestone
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path string true "Project ID"
// @Param milestoneId path string true "Milestone ID"
// @Param body body VoteRequest true "Vote"
// @Success 200 {object} respond.Response{data=model.TallyView}
// @Success 202 {object} respond.Response{data=model.MirrorWrite}
// @Failure 403 {object} respond.Response
// @Failure 409 {object} respond.Response
// @Router /api/v1/projects/{id}/milestones/{milestoneId}/vote [post]
func (h *MilestoneHandler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.InvalidParam(c, "invalid request body")
		return
	}
	choice, err := model.ParseVoteChoice(req.Choice)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if req.ChainTxRef == "" {
		v, err := h.projects.CastVote(c.Param("id"), c.Param("milestoneId"), principal(c), choice, req.Amount, "")
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Success(c, v)
		return
	}
	w, err := mirror_service.NewWrite(model.MirrorKindVote, req.ChainTxRef, c.Param("id"), c.Param("milestoneId"), principal(c),
		mirror_service.VotePayload{Choice: choice, Amount: req.Amount})
	submitMirror(c, h.mirror, w, err)
}

// Resolve mirror the chain's release or rejection of a milestone
// @Summary Resolve milestone
// @Tags Milestone
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path string true "Project ID"
// @Param milestoneId path string true "Milestone ID"
// @Param body body ResolveRequest true "Outcome and chain transaction"
// @Success 200 {object} respond.Response{data=model.Milestone}
// @Success 202 {object} respond.Response{data=model.MirrorWrite}
// @Failure 403 {object} respond.Response
// @Failure 409 {object} respond.Response
// @Router /api/v1/projects/{id}/milestones/{milestoneId}/resolve [post]
func (h *MilestoneHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.InvalidParam(c, "invalid request body")
		return
	}
	outcome, err := model.ParseMilestoneOutcome(req.Outcome)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if req.ChainTxRef == "" {
		respond.InvalidParam(c, "chainTxRef is required")
		return
	}
	w, err := mirror_service.NewWrite(model.MirrorKindMilestoneResolution, req.ChainTxRef, c.Param("id"), c.Param("milestoneId"), principal(c),
		mirror_service.ResolutionPayload{Outcome: outcome})
	submitMirror(c, h.mirror, w, err)
}
