package domain

import "time"

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// DefaultRoles is the closed set of roles provisioned at process start.
var DefaultRoles = []string{RoleAdmin, RoleUser}

// TokenPurpose identifies what a single-use token may be spent on.
type TokenPurpose string

const (
	PurposeEmailConfirm  TokenPurpose = "email-confirm"
	PurposePasswordReset TokenPurpose = "password-reset"
)

// Identity is one account: credentials, roles, and confirmation state.
// Username and email are globally unique; email uniqueness is
// case-insensitive. An identity is never hard-deleted.
type Identity struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name,omitempty"`
	PasswordHash   string    `json:"-"`
	EmailConfirmed bool      `json:"email_confirmed"`
	Roles          []string  `json:"roles"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasRole reports whether the identity carries the named role.
func (i *Identity) HasRole(name string) bool {
	for _, r := range i.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Display returns the name shown to the user in emails and responses,
// falling back to the username when no display name is set.
func (i *Identity) Display() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}
