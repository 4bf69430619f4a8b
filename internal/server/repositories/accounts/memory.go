package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// MemoryRepository keeps accounts in process memory. It honors the same
// conditional-write contract as PostgresRepository and backs the server when
// no database DSN is configured.
type MemoryRepository struct {
	mu     sync.Mutex
	rows   map[int64]*models.Account
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[int64]*models.Account),
		now:  time.Now,
	}
}

func clone(a *models.Account) *models.Account {
	c := *a
	if a.RefreshTokenHash != nil {
		v := *a.RefreshTokenHash
		c.RefreshTokenHash = &v
	}
	if a.RecoveryTokenHash != nil {
		v := *a.RecoveryTokenHash
		c.RecoveryTokenHash = &v
	}
	if a.DeletedAt != nil {
		v := *a.DeletedAt
		c.DeletedAt = &v
	}
	return &c
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (r *MemoryRepository) emailTaken(email string, excludeID int64) bool {
	for id, a := range r.rows {
		if id != excludeID && a.Email == email {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := common.NormalizeEmail(account.Email)
	if r.emailTaken(email, 0) {
		return nil, common.ErrorAlreadyExists
	}

	r.nextID++
	now := r.now()
	a := &models.Account{
		ID:           r.nextID,
		Email:        email,
		Name:         account.Name,
		Telephone:    account.Telephone,
		ImageURL:     account.ImageURL,
		PasswordHash: account.PasswordHash,
		Status:       account.Status,
		Role:         account.Role,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if a.Status == "" {
		a.Status = models.StatusActive
	}
	if a.Role == "" {
		a.Role = models.RoleCustomer
	}
	r.rows[a.ID] = a

	return clone(a), nil
}

func visible(a *models.Account, filter Filter) bool {
	return filter == AnyStatus || a.Live()
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string, filter Filter) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = common.NormalizeEmail(email)
	for _, a := range r.rows {
		if a.Email == email && visible(a, filter) {
			return clone(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) FindByID(ctx context.Context, id int64, filter Filter) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || !visible(a, filter) {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.emailTaken(common.NormalizeEmail(email), excludeID), nil
}

// versioned returns the row if it exists and still has expectedVersion.
func (r *MemoryRepository) versioned(id, expectedVersion int64) (*models.Account, error) {
	a, ok := r.rows[id]
	if !ok || a.Version != expectedVersion {
		return nil, common.ErrVersionConflict
	}
	return a, nil
}

func (r *MemoryRepository) ConditionalUpdate(ctx context.Context, id, expectedVersion int64, patch models.Patch) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.versioned(id, expectedVersion)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil {
		email := common.NormalizeEmail(*patch.Email)
		if r.emailTaken(email, id) {
			return nil, common.ErrorAlreadyExists
		}
		a.Email = email
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Telephone != nil {
		a.Telephone = *patch.Telephone
	}
	if patch.ImageURL != nil {
		a.ImageURL = *patch.ImageURL
	}
	if patch.Role != nil {
		a.Role = *patch.Role
	}
	a.Version++
	a.UpdatedAt = r.now()

	return clone(a), nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.versioned(id, expectedVersion)
	if err != nil {
		return err
	}

	now := r.now()
	a.Status = models.StatusInactive
	a.DeletedAt = &now
	a.Version++
	a.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) SetPasswordHash(ctx context.Context, id, expectedVersion int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.versioned(id, expectedVersion)
	if err != nil {
		return err
	}

	a.PasswordHash = hash
	a.RecoveryTokenHash = nil
	a.Version++
	a.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.RefreshTokenHash = copyPtr(hash)
	return nil
}

func (r *MemoryRepository) SwapRefreshTokenHash(ctx context.Context, id int64, expected, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || a.RefreshTokenHash == nil || *a.RefreshTokenHash != expected {
		return common.ErrVersionConflict
	}
	a.RefreshTokenHash = &next
	return nil
}

func (r *MemoryRepository) SetRecoveryTokenHash(ctx context.Context, id int64, hash *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.RecoveryTokenHash = copyPtr(hash)
	return nil
}
