package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trust-fund-service/controller/respond"
	model "trust-fund-service/models"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/mirror_service"
	"trust-fund-service/service/project_service"
)

// ProjectHandler project and contribution handler
type ProjectHandler struct {
	projects *project_service.ProjectService
	ledger   *ledger_service.LedgerService
	mirror   *mirror_service.MirrorService
}

// NewProjectHandler create project handler
func NewProjectHandler(projects *project_service.ProjectService, ledger *ledger_service.LedgerService, mirror *mirror_service.MirrorService) *ProjectHandler {
	return &ProjectHandler{projects: projects, ledger: ledger, mirror: mirror}
}

// ContributionRequest contribution body
type ContributionRequest struct {
	Amount     *decimal.Decimal `json:"amount" swaggertype:"number" example:"0.5"`
	ChainTxRef string           `json:"chainTxRef" example:"0x5c50…"`
}

// ChainLinkRequest chain project creation body
type ChainLinkRequest struct {
	ChainProjectID *int64 `json:"chainProjectId" example:"12"`
	ChainTxRef     string `json:"chainTxRef" example:"0x5c50…"`
}

// ListProjects list projects, newest first
// @Summary List projects
// @Description Newest first with funding figures. Listing does not re-evaluate project status.
// @Tags Project
// @Produce json
// @Param status query string false "FUNDING, COMPLETED or CANCELLED"
// @Param page query int false "Page, from 1" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} respond.Response{data=respond.ProjectListResponse}
// @Failure 400 {object} respond.Response
// @Router /api/v1/projects [get]
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	ps, total, err := h.projects.List(c.Query("status"), page, limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, respond.ToProjectListResponse(ps, total, page, limit))
}

// CreateProject create a project owned by the caller
// @Summary Create project
// @Tags Project
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param body body model.ProjectDraft true "Project with up to 5 milestones"
// @Success 200 {object} respond.Response{data=model.Project}
// @Failure 400 {object} respond.Response
// @Failure 401 {object} respond.Response
// @Router /api/v1/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var d model.ProjectDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		respond.InvalidParam(c, "invalid request body")
		return
	}
	p, err := h.projects.Create(principal(c), d)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, p)
}

// GetProject project detail; moves a funded project to COMPLETED
// @Summary Project detail
// @Description Includes myAmount and isOwner when the caller is signed in
// @Tags Project
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} respond.Response{data=model.ProjectDetail}
// @Failure 404 {object} respond.Response
// @Router /api/v1/projects/{id} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	d, err := h.projects.Detail(c.Param("id"), principal(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, d)
}

// UpdateProject owner update
// @Summary Update project
// @Tags Project
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path string true "Project ID"
// @Param body body project_service.ProjectUpdate true "Fields to change"
// @Success 200 {object} respond.Response{data=model.Project}
// @Failure 400 {object} respond.Response
// @Failure 403 {object} respond.Response
// @Failure 409 {object} respond.Response
// @Router /api/v1/projects/{id} [put]
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	var u project_service.ProjectUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		respond.InvalidParam(c, "invalid request body")
		return
	}
	p, err := h.projects.Update(c.Param("id"), principal(c), u)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, p)
}

// DeleteProject owner delete, refused once funded
// @Summary Delete project
// @Tags Project
// @Produce json
// @Security CookieAuth
// @Param id path string true "Project ID"
// @Success 200 {object} respond.Response
// @Failure 403 {object} respond.Response
// @Failure 409 {object} respond.Response
// @Router /api/v1/projects/{id} [delete]
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.projects.Delete(c.Param("id"), principal(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, gin.H{"id": c.Param("id")})
}

// LinkChain record the chain project id after the creation transaction
// @Summary Link chain project
// @Tags Project
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path string true "Project ID"
// @Param body body ChainLinkRequest true "Chain project id and creation transaction"
// @Success 200 {object} respond.Response{data=model.Project}
// @Success 202 {object} respond.Response{data=model.MirrorWrite}
// @Failure 409 {object} respond.Response
// @Router /api/v1/projects/{id}/chain-link [post]
func (h *ProjectHandler) LinkChain(c *gin.Context) {
	var req ChainLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChainProjectID == nil {
		respond.InvalidParam(c, "chainProjectId is required")
		return
	}
	if req.ChainTxRef == "" {
		p, err := h.projects.LinkChain(c.Param("id"), principal(c), *req.ChainProjectID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Success(c, p)
		return
	}
	w, err := mirror_service.NewWrite(model.MirrorKindChainLink, req.ChainTxRef, c.Param("id"), "", principal(c),
		mirror_service.ChainLinkPayload{ChainProjectID: *req.ChainProjectID})
	submitMirror(c, h.mirror, w, err)
}

// ListContributions contributions of a project
// @Summary Project contributions
// @Tags Contribution
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} respond.Response{data=respond.ContributionListResponse}
// @Failure 404 {object} respond.Response
// @Router /api/v1/projects/{id}/contributions [get]
func (h *ProjectHandler) ListContributions(c *gin.Context) {
	cs, err := h.ledger.ListByProject(c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if cs == nil {
		cs = []*model.Contribution{}
	}
	respond.Success(c, respond.ContributionListResponse{Contributions: cs, Total: model.SumContributions(cs)})
}

// Contribute record a contribution
// @Summary Record contribution
// @Description With chainTxRef the contribution goes through the mirror outbox and may answer 202 (MirrorPending) until the transaction is confirmed.
// @Tags Contribution
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path string true "Project ID"
// @Param body body ContributionRequest true "Amount and chain transaction"
// @Success 200 {object} respond.Response{data=respond.ContributionResponse}
// @Success 202 {object} respond.Response{data=model.MirrorWrite}
// @Failure 400 {object} respond.Response
// @Failure 404 {object} respond.Response
// @Router /api/v1/projects/{id}/contributions [post]
func (h *ProjectHandler) Contribute(c *gin.Context) {
	var req ContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil {
		respond.InvalidParam(c, "amount is required")
		return
	}
	if req.ChainTxRef == "" {
		con, f, err := h.ledger.Record(c.Param("id"), principal(c), *req.Amount, "")
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Success(c, respond.ContributionResponse{Contribution: con, Funding: f})
		return
	}
	w, err := mirror_service.NewWrite(model.MirrorKindContribution, req.ChainTxRef, c.Param("id"), "", principal(c),
		mirror_service.ContributionPayload{Amount: *req.Amount})
	submitMirror(c, h.mirror, w, err)
}
