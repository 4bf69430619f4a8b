package services

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/hasher"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mail"
	"github.com/dmitrijs2005/accountkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// RecoveryService runs the two-step password reset: an emailed single-use
// link, then a new password presented together with the link's token.
type RecoveryService struct {
	db                            *sql.DB
	repomanager                   repomanager.RepositoryManager
	hasher                        hasher.Hasher
	tokenHasher                   hasher.Hasher
	limiter                       ratelimit.Limiter
	mailer                        mail.Sender
	logger                        logging.Logger
	recoverySecret                []byte
	recoveryTokenValidityDuration time.Duration
	recoveryURL                   string
}

func NewRecoveryService(db *sql.DB, m repomanager.RepositoryManager, h hasher.Hasher,
	limiter ratelimit.Limiter, mailer mail.Sender, logger logging.Logger, cfg *config.Config) *RecoveryService {
	return &RecoveryService{
		db:                            db,
		repomanager:                   m,
		hasher:                        h,
		tokenHasher:                   hasher.NewTokenHasher(h),
		limiter:                       limiter,
		mailer:                        mailer,
		logger:                        logger,
		recoverySecret:                []byte(cfg.RecoveryTokenSecret),
		recoveryTokenValidityDuration: cfg.RecoveryTokenValidityDuration,
		recoveryURL:                   cfg.RecoveryURL,
	}
}

func recoveryLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RequestRecovery emails a recovery link. Unknown and inactive emails get
// the same silent success as live ones.
func (s *RecoveryService) RequestRecovery(ctx context.Context, email string) error {
	email = common.NormalizeEmail(email)

	if err := s.limiter.Hit(ctx, email); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			return newError(ReasonTooManyAttempts)
		}
		s.logger.Warn(ctx, "recovery limiter hit failed", "error", err)
	}

	repo := s.repomanager.Accounts(s.db)
	a, err := repo.FindByEmail(ctx, email, accounts.AnyStatus)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "recovery requested for unknown email")
			return nil
		}
		s.logger.Error(ctx, "account lookup failed", "error", err)
		return internal()
	}
	if err := Guard(a); err != nil {
		s.logger.Warn(ctx, "recovery requested for inactive account", "account_id", a.ID)
		return nil
	}

	token, err := auth.GenerateRecoveryToken(a.ID, a.Email, s.recoverySecret, s.recoveryTokenValidityDuration)
	if err != nil {
		s.logger.Error(ctx, "recovery token signing failed", "account_id", a.ID, "error", err)
		return internal()
	}
	digest, err := s.tokenHasher.Hash(token)
	if err != nil {
		s.logger.Error(ctx, "recovery token hashing failed", "account_id", a.ID, "error", err)
		return internal()
	}
	if err := repo.SetRecoveryTokenHash(ctx, a.ID, &digest); err != nil {
		s.logger.Error(ctx, "storing recovery token digest failed", "account_id", a.ID, "error", err)
		return storeError(err)
	}

	link, err := recoveryLink(s.recoveryURL, token)
	if err != nil {
		s.logger.Error(ctx, "building recovery link failed", "error", err)
		return internal()
	}
	msg, err := mail.RecoveryMessage(a.Email, a.Name, link)
	if err != nil {
		s.logger.Error(ctx, "rendering recovery email failed", "account_id", a.ID, "error", err)
		return newError(ReasonMailFailed)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error(ctx, "recovery email not sent", "account_id", a.ID, "error", err)
		return newError(ReasonMailFailed)
	}

	s.logger.Info(ctx, "recovery email sent", "account_id", a.ID)
	return nil
}

// CompleteRecovery sets a new password if token is the one most recently
// issued for its account. Setting the password consumes the token.
func (s *RecoveryService) CompleteRecovery(ctx context.Context, token, newPassword string) error {
	claims, err := auth.ParseRecoveryToken(token, s.recoverySecret)
	if err != nil {
		return newError(ReasonInvalidToken)
	}

	repo := s.repomanager.Accounts(s.db)
	a, err := repo.FindByEmail(ctx, claims.Subject, accounts.AnyStatus)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, "account lookup failed", "error", err)
		return internal()
	}
	if err := Guard(a); err != nil {
		return err
	}
	if a.ID != claims.ID {
		return newError(ReasonInvalidToken)
	}

	if a.RecoveryTokenHash == nil || !s.tokenHasher.Compare(token, *a.RecoveryTokenHash) {
		return newError(ReasonTokenAlreadyUsed)
	}

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "account_id", a.ID, "error", err)
		return internal()
	}

	if err := repo.SetPasswordHash(ctx, a.ID, a.Version, digest); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return newError(ReasonTokenAlreadyUsed)
		}
		s.logger.Error(ctx, "storing password failed", "account_id", a.ID, "error", err)
		return storeError(err)
	}

	s.logger.Info(ctx, "password recovered", "account_id", a.ID)
	return nil
}
