package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/avatars"
	"github.com/dmitrijs2005/accountkeeper/internal/server/hasher"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// AvatarPresigner hands out presigned object storage URLs for avatars.
type AvatarPresigner interface {
	UploadURL(ctx context.Context, accountID int64) (*avatars.Upload, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

// AccountService applies every account mutation as a version-conditional
// write: a caller holding an outdated version gets a stale version conflict
// and must re-read before retrying.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      hasher.Hasher
	avatars     AvatarPresigner
	logger      logging.Logger
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, h hasher.Hasher, p AvatarPresigner, logger logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		hasher:      h,
		avatars:     p,
		logger:      logger,
	}
}

func (s *AccountService) fail(ctx context.Context, msg string, id int64, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if !errors.Is(err, common.ErrVersionConflict) && !errors.Is(err, common.ErrorAlreadyExists) && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, msg, "account_id", id, "error", err)
	}
	return storeError(err)
}

func requireAdmin(caller *auth.ClaimSet) error {
	if caller == nil || models.Role(caller.Role) != models.RoleAdmin {
		return newError(ReasonAccessDenied)
	}
	return nil
}

// Me returns the caller's own account.
func (s *AccountService) Me(ctx context.Context, caller *auth.ClaimSet) (*models.Account, error) {
	a, err := loadByID(ctx, s.repomanager.Accounts(s.db), caller.ID)
	if err != nil {
		return nil, err
	}
	return a.Sanitized(), nil
}

// Account returns a live account by id.
func (s *AccountService) Account(ctx context.Context, caller *auth.ClaimSet, id int64) (*models.Account, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	a, err := s.repomanager.Accounts(s.db).FindByID(ctx, id, accounts.LiveOnly)
	if err != nil {
		return nil, s.fail(ctx, "account lookup failed", id, err)
	}
	return a.Sanitized(), nil
}

func ownsImage(id int64, key string) bool {
	return key == "" || strings.HasPrefix(key, fmt.Sprintf("avatars/%d/", id))
}

func validatePersonalData(id int64, data *models.PersonalData) error {
	if data.Name != nil {
		name, err := validateName(*data.Name)
		if err != nil {
			return err
		}
		data.Name = &name
	}
	if data.Telephone != nil {
		telephone, err := validateTelephone(*data.Telephone)
		if err != nil {
			return err
		}
		data.Telephone = &telephone
	}
	if data.ImageURL != nil && !ownsImage(id, *data.ImageURL) {
		return newError(ReasonInvalidImage)
	}
	return nil
}

// UpdatePersonalData patches the caller's name, telephone or image key.
// An empty patch returns the account unchanged.
func (s *AccountService) UpdatePersonalData(ctx context.Context, caller *auth.ClaimSet, version int64, data models.PersonalData) (*models.Account, error) {
	repo := s.repomanager.Accounts(s.db)
	a, err := loadByID(ctx, repo, caller.ID)
	if err != nil {
		return nil, err
	}
	if data.Empty() {
		return a.Sanitized(), nil
	}
	if err := validatePersonalData(a.ID, &data); err != nil {
		return nil, err
	}

	updated, err := repo.ConditionalUpdate(ctx, a.ID, version, models.Patch{PersonalData: data})
	if err != nil {
		return nil, s.fail(ctx, "personal data update failed", a.ID, err)
	}
	return updated.Sanitized(), nil
}

// UpdatePassword replaces the caller's password after checking the current
// one. Any pending recovery token is invalidated.
func (s *AccountService) UpdatePassword(ctx context.Context, caller *auth.ClaimSet, version int64, current, next string) error {
	repo := s.repomanager.Accounts(s.db)
	a, err := loadByID(ctx, repo, caller.ID)
	if err != nil {
		return err
	}

	if current == next {
		return newError(ReasonPasswordUnchanged)
	}
	if !s.hasher.Compare(current, a.PasswordHash) {
		return newError(ReasonPasswordMismatch)
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "account_id", a.ID, "error", err)
		return internal()
	}
	if err := repo.SetPasswordHash(ctx, a.ID, version, digest); err != nil {
		return s.fail(ctx, "password update failed", a.ID, err)
	}
	return nil
}

// DeleteSelf soft-deletes the caller's account. Admin accounts are never
// deleted.
func (s *AccountService) DeleteSelf(ctx context.Context, caller *auth.ClaimSet, version int64) error {
	repo := s.repomanager.Accounts(s.db)
	a, err := loadByID(ctx, repo, caller.ID)
	if err != nil {
		return err
	}
	if a.Role == models.RoleAdmin {
		return newError(ReasonAdminDelete)
	}

	if err := repo.SoftDelete(ctx, a.ID, version); err != nil {
		return s.fail(ctx, "account deletion failed", a.ID, err)
	}
	s.logger.Info(ctx, "account deleted", "account_id", a.ID)
	return nil
}

// UpdateAccount is the admin path for changing another account's data,
// email or role.
func (s *AccountService) UpdateAccount(ctx context.Context, caller *auth.ClaimSet, id, version int64, patch models.Patch) (*models.Account, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if caller.ID == id {
		return nil, newError(ReasonSelfTarget)
	}

	repo := s.repomanager.Accounts(s.db)
	a, err := loadByID(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return a.Sanitized(), nil
	}

	if err := validatePersonalData(a.ID, &patch.PersonalData); err != nil {
		return nil, err
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, newError(ReasonInvalidRole)
	}
	if patch.Email != nil {
		email, err := validateEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		patch.Email = &email

		exists, err := repo.ExistsByEmail(ctx, email, a.ID)
		if err != nil {
			return nil, s.fail(ctx, "email lookup failed", a.ID, err)
		}
		if exists {
			return nil, newError(ReasonEmailExists)
		}
	}

	updated, err := repo.ConditionalUpdate(ctx, a.ID, version, patch)
	if err != nil {
		return nil, s.fail(ctx, "account update failed", a.ID, err)
	}
	s.logger.Info(ctx, "account updated by admin", "account_id", a.ID, "admin_id", caller.ID)
	return updated.Sanitized(), nil
}

// DeleteAccount is the admin path for soft-deleting another account.
func (s *AccountService) DeleteAccount(ctx context.Context, caller *auth.ClaimSet, id, version int64) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if caller.ID == id {
		return newError(ReasonSelfTarget)
	}

	repo := s.repomanager.Accounts(s.db)
	a, err := loadByID(ctx, repo, id)
	if err != nil {
		return err
	}
	if a.Role == models.RoleAdmin {
		return newError(ReasonAdminDelete)
	}

	if err := repo.SoftDelete(ctx, a.ID, version); err != nil {
		return s.fail(ctx, "account deletion failed", a.ID, err)
	}
	s.logger.Info(ctx, "account deleted by admin", "account_id", a.ID, "admin_id", caller.ID)
	return nil
}

// CreateAccount is the admin path for creating an account with any role.
func (s *AccountService) CreateAccount(ctx context.Context, caller *auth.ClaimSet, in NewAccount) (*models.Account, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	a, err := createAccount(ctx, s.db, s.repomanager, s.hasher, in)
	if err != nil {
		if ReasonOf(err) == ReasonInternal {
			s.logger.Error(ctx, "account creation failed", "error", err)
		}
		return nil, err
	}
	s.logger.Info(ctx, "account created by admin", "account_id", a.ID, "admin_id", caller.ID)
	return a, nil
}

// EnsureAdmin creates an ADMIN account unless email is already taken by any
// account, live or not. It reports whether an account was created.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, name, password string) (*models.Account, bool, error) {
	a, err := createAccount(ctx, s.db, s.repomanager, s.hasher, NewAccount{
		Email:    email,
		Name:     name,
		Password: password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		if ReasonOf(err) == ReasonEmailExists {
			return nil, false, nil
		}
		return nil, false, err
	}
	return a, true, nil
}

// AvatarUploadURL presigns an upload for a new avatar object. The returned
// key is stored later through UpdatePersonalData.
func (s *AccountService) AvatarUploadURL(ctx context.Context, caller *auth.ClaimSet) (*avatars.Upload, error) {
	a, err := loadByID(ctx, s.repomanager.Accounts(s.db), caller.ID)
	if err != nil {
		return nil, err
	}

	up, err := s.avatars.UploadURL(ctx, a.ID)
	if err != nil {
		s.logger.Error(ctx, "presigning avatar upload failed", "account_id", a.ID, "error", err)
		return nil, internal()
	}
	return up, nil
}

// AvatarDownloadURL presigns a download of the caller's current avatar.
func (s *AccountService) AvatarDownloadURL(ctx context.Context, caller *auth.ClaimSet) (string, error) {
	a, err := loadByID(ctx, s.repomanager.Accounts(s.db), caller.ID)
	if err != nil {
		return "", err
	}
	if a.ImageURL == "" {
		return "", newError(ReasonNotFound)
	}

	link, err := s.avatars.DownloadURL(ctx, a.ImageURL)
	if err != nil {
		s.logger.Error(ctx, "presigning avatar download failed", "account_id", a.ID, "error", err)
		return "", internal()
	}
	return link, nil
}
