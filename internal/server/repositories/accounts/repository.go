// Package accounts persists Account rows and performs every
// version-conditional write the account server relies on.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Filter selects which accounts a lookup may return.
type Filter int

const (
	// LiveOnly excludes soft-deleted and INACTIVE accounts.
	LiveOnly Filter = iota
	// AnyStatus returns the row whatever its status, so callers can run the
	// guard themselves and report why an account is unusable.
	AnyStatus
)

// Repository is the credential store. Absent rows yield common.ErrorNotFound,
// lost version or hash races yield common.ErrVersionConflict and duplicate
// emails yield common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	FindByEmail(ctx context.Context, email string, filter Filter) (*models.Account, error)
	FindByID(ctx context.Context, id int64, filter Filter) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error)

	// ConditionalUpdate applies patch only if the stored version still equals
	// expectedVersion, bumping the version in the same statement.
	ConditionalUpdate(ctx context.Context, id, expectedVersion int64, patch models.Patch) (*models.Account, error)
	SoftDelete(ctx context.Context, id, expectedVersion int64) error
	// SetPasswordHash also clears any outstanding recovery hash.
	SetPasswordHash(ctx context.Context, id, expectedVersion int64, hash string) error

	SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error
	// SwapRefreshTokenHash replaces the stored refresh hash only if it still
	// equals expected. At most one concurrent caller wins.
	SwapRefreshTokenHash(ctx context.Context, id int64, expected, next string) error
	SetRecoveryTokenHash(ctx context.Context, id int64, hash *string) error
}
