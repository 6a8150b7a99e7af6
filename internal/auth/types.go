package auth

import (
	"strings"
	"time"
)

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Address      string
	CreatedAt    time.Time
}

// Profile carries the user-supplied attributes of a registration.
type Profile struct {
	UserName  string `json:"userName"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
}

// Registration is the input of Service.Register.
type Registration struct {
	Profile
	Password string
	Roles    []string
}

// Role is a named group used for authorization decisions.
type Role struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalizedName"`
}

// UserInfo is the public view of a user with its current roles.
type UserInfo struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	UserName  string    `json:"userName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	Roles     []string  `json:"roles"`
}

// LoginResult is returned by a successful Service.Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      UserInfo
}

// NewUserInfo builds the public view of u. Roles is never nil.
func NewUserInfo(u User, roles []string) UserInfo {
	out := make([]string, len(roles))
	copy(out, roles)
	return UserInfo{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		UserName:  u.UserName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		Roles:     out,
	}
}

// NormalizeEmail returns the canonical (trimmed, lower-case) form used for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRoleName returns the canonical key a role name is unique under.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
