package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/hasher"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService mints, verifies and rotates bearer tokens. Only a digest of
// the current refresh token is stored, on the account row itself.
type TokenService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	hasher                       hasher.Hasher
	logger                       logging.Logger
	accessSecret                 []byte
	refreshSecret                []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewTokenService wraps h in a hasher.TokenHasher; signed tokens are far
// longer than what bcrypt reads.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, h hasher.Hasher, logger logging.Logger, cfg *config.Config) *TokenService {
	return &TokenService{
		db:                           db,
		repomanager:                  m,
		hasher:                       hasher.NewTokenHasher(h),
		logger:                       logger,
		accessSecret:                 []byte(cfg.AccessTokenSecret),
		refreshSecret:                []byte(cfg.RefreshTokenSecret),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

func claimsFor(a *models.Account) auth.ClaimSet {
	return auth.ClaimSet{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      string(a.Role),
		Status:    string(a.Status),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		DeletedAt: a.DeletedAt,
	}
}

// mint signs a new pair for a and returns it with the refresh token digest.
func (s *TokenService) mint(a *models.Account) (*TokenPair, string, error) {
	claims := claimsFor(a)

	access, err := auth.GenerateToken(claims, s.accessSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, "", err
	}
	refresh, err := auth.GenerateToken(claims, s.refreshSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, "", err
	}
	digest, err := s.hasher.Hash(refresh)
	if err != nil {
		return nil, "", err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, digest, nil
}

// Issue signs a fresh pair for an already verified account and replaces the
// stored refresh digest. The plaintext tokens are returned exactly once.
func (s *TokenService) Issue(ctx context.Context, a *models.Account) (*TokenPair, error) {
	pair, digest, err := s.mint(a)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "account_id", a.ID, "error", err)
		return nil, internal()
	}

	repo := s.repomanager.Accounts(s.db)
	if err := repo.SetRefreshTokenHash(ctx, a.ID, &digest); err != nil {
		s.logger.Error(ctx, "storing refresh token digest failed", "account_id", a.ID, "error", err)
		return nil, storeError(err)
	}

	return pair, nil
}

// Authenticate verifies an access token and returns its claims.
func (s *TokenService) Authenticate(token string) (*auth.ClaimSet, error) {
	claims, err := auth.ParseToken(token, s.accessSecret)
	if err != nil {
		return nil, newError(ReasonInvalidToken)
	}
	return claims, nil
}

// Refresh verifies a refresh token and rotates it.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := auth.ParseToken(refreshToken, s.refreshSecret)
	if err != nil {
		return nil, newError(ReasonInvalidToken)
	}
	return s.Rotate(ctx, claims, refreshToken)
}

// Rotate exchanges the presented refresh token for a new pair. The account is
// re-read so the new claims reflect its current role, status and version.
// Only the caller holding the currently stored refresh token can win; a
// rotated-away or concurrently rotated token gets Forbidden.
func (s *TokenService) Rotate(ctx context.Context, presented *auth.ClaimSet, refreshToken string) (*TokenPair, error) {
	if presented == nil {
		return nil, newError(ReasonInvalidToken)
	}

	repo := s.repomanager.Accounts(s.db)
	a, err := loadByID(ctx, repo, presented.ID)
	if err != nil {
		return nil, err
	}

	if a.RefreshTokenHash == nil {
		return nil, newError(ReasonAccessDenied)
	}
	stored := *a.RefreshTokenHash
	if !s.hasher.Compare(refreshToken, stored) {
		s.logger.Warn(ctx, "stale refresh token presented", "account_id", a.ID)
		return nil, newError(ReasonAccessDenied)
	}

	pair, digest, err := s.mint(a)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "account_id", a.ID, "error", err)
		return nil, internal()
	}

	if err := repo.SwapRefreshTokenHash(ctx, a.ID, stored, digest); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			s.logger.Warn(ctx, "refresh token rotated concurrently", "account_id", a.ID)
			return nil, newError(ReasonAccessDenied)
		}
		s.logger.Error(ctx, "refresh token swap failed", "account_id", a.ID, "error", err)
		return nil, internal()
	}

	return pair, nil
}

// Logout clears the stored refresh digest so no outstanding refresh token can
// be rotated again. Access tokens stay valid until they expire.
func (s *TokenService) Logout(ctx context.Context, caller *auth.ClaimSet) error {
	repo := s.repomanager.Accounts(s.db)
	if err := repo.SetRefreshTokenHash(ctx, caller.ID, nil); err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "clearing refresh token digest failed", "account_id", caller.ID, "error", err)
		}
		return storeError(err)
	}
	return nil
}

// loadByID fetches an account whatever its status and runs Guard on it.
func loadByID(ctx context.Context, repo accounts.Repository, id int64) (*models.Account, error) {
	a, err := repo.FindByID(ctx, id, accounts.AnyStatus)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, internal()
	}
	if err := Guard(a); err != nil {
		return nil, err
	}
	return a, nil
}
