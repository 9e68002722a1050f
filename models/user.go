package models

import (
	"strings"
	"time"
)

// User profile bound to a wallet
type User struct {
	ID             string     `json:"id"`
	WalletAddress  string     `json:"walletAddress"` // Unique, normalized
	Email          string     `json:"email,omitempty"`
	Name           string     `json:"name,omitempty"`
	ProfileImage   string     `json:"profileImage,omitempty"`
	Provider       string     `json:"provider,omitempty"`       // Login provider, e.g. google
	Web3AuthUserID string     `json:"web3authUserId,omitempty"` // Subject issued by the wallet login provider
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// UserProfile fields supplied on login
type UserProfile struct {
	WalletAddress  string `json:"walletAddress"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	ProfileImage   string `json:"profileImage"`
	Provider       string `json:"provider"`
	Web3AuthUserID string `json:"web3authUserId"`
}

// Apply copies non-empty profile fields onto u and stamps the login time.
func (u *User) Apply(p UserProfile, now time.Time) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&u.Email, p.Email)
	set(&u.Name, p.Name)
	set(&u.ProfileImage, p.ProfileImage)
	set(&u.Provider, p.Provider)
	set(&u.Web3AuthUserID, p.Web3AuthUserID)
	at := now
	u.LastLoginAt = &at
	u.UpdatedAt = now
}

// Principal returns the identity of u.
func (u *User) Principal() Principal {
	return Principal{WalletAddress: u.WalletAddress, UserID: u.ID}
}
