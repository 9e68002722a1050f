package identity_service

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
	"trust-fund-service/models/dao"
)

// Claims session token claims
type Claims struct {
	WalletAddress string `json:"walletAddress"`
	UserID        string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Options token settings
type Options struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// IdentityService turns session tokens into principals and keeps user
// profiles bound to wallets.
type IdentityService struct {
	users *dao.UserDAO
	opts  Options
	now   func() time.Time
}

// NewIdentityService create identity service; a nil db means database.DB
func NewIdentityService(db database.Database, opts Options) *IdentityService {
	return &IdentityService{
		users: dao.NewUserDAO(db),
		opts:  opts,
		now:   time.Now,
	}
}

func unauthenticated(msg string) error {
	return apperr.New(apperr.CodeUnauthenticated, msg)
}

// IssueToken signs a session token for pr.
func (s *IdentityService) IssueToken(pr model.Principal) (string, time.Time, error) {
	if pr.WalletAddress == "" {
		return "", time.Time{}, unauthenticated("wallet address required")
	}
	now := s.now()
	expires := now.Add(s.opts.TTL)
	claims := Claims{
		WalletAddress: pr.WalletAddress,
		UserID:        pr.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.Issuer,
			Subject:   pr.WalletAddress,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return "", time.Time{}, apperr.Internal(err)
	}
	return signed, expires, nil
}

// ParseToken verifies a token and returns its claims. Only HS256 tokens
// from the configured issuer are accepted.
func (s *IdentityService) ParseToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, unauthenticated("authentication required")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		log.Debugf("Rejected token: %v", err)
		return nil, unauthenticated("invalid or expired session")
	}
	return claims, nil
}

// Resolve returns the principal behind a session token. A missing user id
// is filled from the user bound to the wallet; a user id that disagrees
// with that binding is rejected.
func (s *IdentityService) Resolve(token string) (model.Principal, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return model.Principal{}, err
	}
	pr := model.NewPrincipal(claims.WalletAddress, claims.UserID)
	if pr.WalletAddress == "" {
		return model.Principal{}, unauthenticated("session carries no wallet")
	}

	u, err := s.users.GetByWallet(pr.WalletAddress)
	if err != nil {
		return model.Principal{}, err
	}
	if u == nil {
		return pr, nil
	}
	if pr.UserID == "" {
		pr.UserID = u.ID
	} else if pr.UserID != u.ID {
		log.Warnf("Token user %s does not own wallet %s", pr.UserID, pr.WalletAddress)
		return model.Principal{}, unauthenticated("session does not match wallet owner")
	}
	return pr, nil
}

// UpsertUser creates or updates the user bound to the profile's wallet and
// stamps the login time.
func (s *IdentityService) UpsertUser(p model.UserProfile) (*model.User, error) {
	wallet, err := model.ValidateWallet(p.WalletAddress)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	u, err := s.users.GetByWallet(wallet)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = &model.User{
			ID:            uuid.NewString(),
			WalletAddress: wallet,
			CreatedAt:     now,
		}
		log.Infof("New user %s for wallet %s", u.ID, wallet)
	}
	u.Apply(p, now)
	if err := s.users.Save(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login upserts the profile and issues a session token for its user.
func (s *IdentityService) Login(p model.UserProfile) (*model.User, string, time.Time, error) {
	u, err := s.UpsertUser(p)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	token, expires, err := s.IssueToken(u.Principal())
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return u, token, expires, nil
}

// Profile returns the user bound to pr, or nil if none exists.
func (s *IdentityService) Profile(pr model.Principal) (*model.User, error) {
	if pr.UserID != "" {
		u, err := s.users.Get(pr.UserID)
		if err == nil {
			return u, nil
		}
		if !apperr.IsCategory(err, apperr.CategoryNotFound) {
			return nil, err
		}
	}
	return s.users.GetByWallet(pr.WalletAddress)
}
