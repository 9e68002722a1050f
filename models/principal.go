package models

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"trust-fund-service/apperr"
)

// Principal resolved identity of a caller
type Principal struct {
	WalletAddress string `json:"walletAddress"`    // Normalized (lowercase) wallet address
	UserID        string `json:"userId,omitempty"` // Internal user id, optional
}

// NewPrincipal builds a principal with a normalized wallet.
func NewPrincipal(wallet, userID string) Principal {
	return Principal{
		WalletAddress: NormalizeWallet(wallet),
		UserID:        strings.TrimSpace(userID),
	}
}

// IsZero reports whether no identity is present.
func (p Principal) IsZero() bool {
	return p.WalletAddress == "" && p.UserID == ""
}

// Matches reports whether p is the identity recorded as (wallet, userID).
// A match on user id or on wallet address is sufficient. Every ownership,
// vote and contribution comparison goes through here.
func (p Principal) Matches(wallet, userID string) bool {
	if p.UserID != "" && userID != "" && p.UserID == userID {
		return true
	}
	w := NormalizeWallet(wallet)
	return w != "" && w == NormalizeWallet(p.WalletAddress)
}

// Same reports whether two principals identify the same caller.
func (p Principal) Same(o Principal) bool {
	return p.Matches(o.WalletAddress, o.UserID)
}

// NormalizeWallet trims and lowercases a wallet address.
func NormalizeWallet(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateWallet checks that s is a 20-byte hex address and returns its
// normalized form. Mixed-case input must carry a valid EIP-55 checksum.
func ValidateWallet(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", apperr.New(apperr.CodeValidation, "wallet address must be 0x followed by 40 hex characters")
	}
	body := s[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", apperr.New(apperr.CodeValidation, "wallet address must be hex encoded")
	}
	lower := strings.ToLower(body)
	if body != lower && body != strings.ToUpper(body) {
		if checksumAddress(lower) != body {
			return "", apperr.New(apperr.CodeValidation, "wallet address checksum mismatch")
		}
	}
	return "0x" + lower, nil
}

// checksumAddress applies EIP-55 mixed-case encoding to a lowercase hex body.
func checksumAddress(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

// NormalizeTxRef trims and lowercases an opaque chain reference.
func NormalizeTxRef(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
