package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"trust-fund-service/apperr"
	"trust-fund-service/controller/respond"
	model "trust-fund-service/models"
	"trust-fund-service/service/identity_service"
)

const principalKey = "principal"

// AuthMiddleware resolves the session credential of a request
type AuthMiddleware struct {
	identity   *identity_service.IdentityService
	cookieName string
}

// NewAuthMiddleware create auth middleware reading cookieName or a bearer header
func NewAuthMiddleware(identity *identity_service.IdentityService, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{identity: identity, cookieName: cookieName}
}

func (m *AuthMiddleware) token(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if v, err := c.Cookie(m.cookieName); err == nil {
		return v
	}
	return ""
}

// Required rejects requests without a valid session
func (m *AuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		pr, err := m.identity.Resolve(m.token(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.Set(principalKey, pr)
		c.Next()
	}
}

// Optional resolves a session when one is present. An invalid credential is
// treated as anonymous.
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := m.token(c); tok != "" {
			pr, err := m.identity.Resolve(tok)
			switch {
			case err == nil:
				c.Set(principalKey, pr)
			case !apperr.IsCategory(err, apperr.CategoryUnauthenticated):
				respond.Error(c, err)
				return
			}
		}
		c.Next()
	}
}

// principal returns the caller resolved by the auth middleware, or the zero
// principal for anonymous requests
func principal(c *gin.Context) model.Principal {
	if v, ok := c.Get(principalKey); ok {
		if pr, ok := v.(model.Principal); ok {
			return pr
		}
	}
	return model.Principal{}
}
