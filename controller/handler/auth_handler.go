package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trust-fund-service/controller/respond"
	model "trust-fund-service/models"
	"trust-fund-service/service/dashboard_service"
	"trust-fund-service/service/identity_service"
)

// CookieOptions session cookie settings
type CookieOptions struct {
	Name   string
	Secure bool
}

// AuthHandler login, profile and dashboard handler
type AuthHandler struct {
	identity  *identity_service.IdentityService
	dashboard *dashboard_service.DashboardService
	cookie    CookieOptions
}

// NewAuthHandler create auth handler
func NewAuthHandler(identity *identity_service.IdentityService, dashboard *dashboard_service.DashboardService, cookie CookieOptions) *AuthHandler {
	return &AuthHandler{identity: identity, dashboard: dashboard, cookie: cookie}
}

// LoginWeb3 upserts the wallet's user and issues a session
// @Summary Wallet login
// @Description Store or update the user bound to a wallet after a Web3Auth login and issue a session token (cookie and body)
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.UserProfile true "Profile reported by the wallet provider"
// @Success 200 {object} respond.Response{data=respond.LoginResponse}
// @Failure 400 {object} respond.Response
// @Router /api/v1/auth/web3 [post]
func (h *AuthHandler) LoginWeb3(c *gin.Context) {
	var p model.UserProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		respond.InvalidParam(c, "invalid request body")
		return
	}
	if p.WalletAddress == "" {
		respond.InvalidParam(c, "walletAddress is required")
		return
	}

	u, token, expires, err := h.identity.Login(p)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(time.Until(expires).Seconds()), "/", "", h.cookie.Secure, true)
	respond.Success(c, respond.LoginResponse{User: u, Token: token, ExpiresAt: expires})
}

// Logout clears the session cookie
// @Summary Logout
// @Tags Auth
// @Produce json
// @Success 200 {object} respond.Response
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	respond.Success(c, nil)
}

// Me returns the caller's principal and profile
// @Summary Current user
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} respond.Response{data=respond.MeResponse}
// @Failure 401 {object} respond.Response
// @Router /api/v1/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	pr := principal(c)
	u, err := h.identity.Profile(pr)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, respond.MeResponse{Principal: pr, User: u})
}

// UpdateProfile updates the caller's stored profile
// @Summary Update profile
// @Description The wallet address always comes from the session, never from the body
// @Tags Auth
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param body body model.UserProfile true "Profile fields"
// @Success 200 {object} respond.Response{data=model.User}
// @Failure 401 {object} respond.Response
// @Router /api/v1/users/info [post]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var p model.UserProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		respond.InvalidParam(c, "invalid request body")
		return
	}
	p.WalletAddress = principal(c).WalletAddress
	u, err := h.identity.UpsertUser(p)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, u)
}

// Dashboard returns the caller's own and backed projects
// @Summary My dashboard
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} respond.Response{data=dashboard_service.Dashboard}
// @Failure 401 {object} respond.Response
// @Router /api/v1/me/dashboard [get]
func (h *AuthHandler) Dashboard(c *gin.Context) {
	d, err := h.dashboard.Dashboard(principal(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, d)
}
