package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim value that unlocks privileged UI actions.
const RoleAdmin = "ADMIN"

// Claims is the payload the backend puts in its bearer tokens.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// User is the in-memory projection of a token's claims.
type User struct {
	Subject string
	Email   string
	Name    string
	Role    string
}

// IsAdmin reports whether the user carries the administrator role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Decode reads the claims of token without verifying its signature.
// Verification is the backend's job; the result must never be used for
// anything but deciding what to show.
func Decode(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}

func (c *Claims) user() User {
	return User{
		Subject: c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		Role:    c.Role,
	}
}
