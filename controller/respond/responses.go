package respond

import (
	"time"

	"github.com/shopspring/decimal"

	model "trust-fund-service/models"
)

// ProjectListResponse project list response structure
type ProjectListResponse struct {
	Projects []model.ProjectSummary `json:"projects"`
	Total    int64                  `json:"total" example:"42"`
	Page     int                    `json:"page" example:"1"`
	Limit    int                    `json:"limit" example:"20"`
}

// ToProjectListResponse convert project summaries to response
func ToProjectListResponse(ps []model.ProjectSummary, total int64, page, limit int) ProjectListResponse {
	if ps == nil {
		ps = []model.ProjectSummary{}
	}
	return ProjectListResponse{Projects: ps, Total: total, Page: page, Limit: limit}
}

// LoginResponse session issued after a wallet login
type LoginResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// MeResponse resolved principal and stored profile
type MeResponse struct {
	Principal model.Principal `json:"principal"`
	User      *model.User     `json:"user"`
}

// ContributionListResponse contributions of a project
type ContributionListResponse struct {
	Contributions []*model.Contribution `json:"contributions"`
	Total         decimal.Decimal       `json:"total"`
}

// ContributionResponse recorded contribution with refreshed funding
type ContributionResponse struct {
	Contribution *model.Contribution `json:"contribution"`
	Funding      model.Funding       `json:"funding"`
}
