// Package models holds the persisted entities of the account server.
package models

import "time"

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Account is a registered identity. Email is stored trimmed and lower-cased.
// Version starts at 1 and grows by one with every committed mutation; storing
// or clearing the refresh or recovery hash is not a mutation.
type Account struct {
	ID        int64
	Email     string
	Name      string
	Telephone string
	ImageURL  string

	PasswordHash      string
	RefreshTokenHash  *string
	RecoveryTokenHash *string

	Status    Status
	Role      Role
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Live reports whether the account may take part in any flow.
func (a *Account) Live() bool {
	return a.Status == StatusActive && a.DeletedAt == nil
}

// Sanitized returns a copy with every secret field cleared.
func (a *Account) Sanitized() *Account {
	c := *a
	c.PasswordHash = ""
	c.RefreshTokenHash = nil
	c.RecoveryTokenHash = nil
	return &c
}

// PersonalData is the self-service patch. Nil fields are left unchanged.
type PersonalData struct {
	Name      *string
	Telephone *string
	ImageURL  *string
}

func (p PersonalData) Empty() bool {
	return p.Name == nil && p.Telephone == nil && p.ImageURL == nil
}

// Patch is the full set of columns a version-conditional update may touch.
type Patch struct {
	PersonalData
	Email *string
	Role  *Role
}

func (p Patch) Empty() bool {
	return p.PersonalData.Empty() && p.Email == nil && p.Role == nil
}
