package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/hasher"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mail"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// Registration is the self-service sign-up request.
type Registration struct {
	Email     string
	Name      string
	Telephone string
	Password  string
}

type AuthService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	hasher          hasher.Hasher
	tokens          *TokenService
	limiter         ratelimit.Limiter
	mailer          mail.Sender
	logger          logging.Logger
	registrationURL string

	decoyOnce sync.Once
	decoy     string
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, h hasher.Hasher, tokens *TokenService,
	limiter ratelimit.Limiter, mailer mail.Sender, logger logging.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		db:              db,
		repomanager:     m,
		hasher:          h,
		tokens:          tokens,
		limiter:         limiter,
		mailer:          mailer,
		logger:          logger,
		registrationURL: cfg.RegistrationURL,
	}
}

// decoyDigest is compared against when the email is unknown, so a miss costs
// as much as a wrong password.
func (s *AuthService) decoyDigest() string {
	s.decoyOnce.Do(func() {
		secret, err := common.MakeRandHexString(16)
		if err != nil {
			return
		}
		if d, err := s.hasher.Hash(secret); err == nil {
			s.decoy = d
		}
	})
	return s.decoy
}

// Verify checks an email and password pair. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Verify(ctx context.Context, email, password string) (*models.Account, error) {
	repo := s.repomanager.Accounts(s.db)

	a, err := repo.FindByEmail(ctx, common.NormalizeEmail(email), accounts.AnyStatus)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Compare(password, s.decoyDigest())
			return nil, invalidCredentials()
		}
		s.logger.Error(ctx, "account lookup failed", "error", err)
		return nil, internal()
	}

	if err := Guard(a); err != nil {
		return nil, newErrorAs(common.ErrorUnauthorized, ReasonInactive)
	}

	if !s.hasher.Compare(password, a.PasswordHash) {
		return nil, invalidCredentials()
	}

	return a.Sanitized(), nil
}

// Login verifies credentials and issues a token pair. Failed attempts are
// counted per email; a limiter outage lets the attempt through.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	key := common.NormalizeEmail(email)

	if err := s.limiter.Check(ctx, key); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			return nil, newError(ReasonTooManyAttempts)
		}
		s.logger.Warn(ctx, "login limiter check failed", "error", err)
	}

	a, err := s.Verify(ctx, email, password)
	if err != nil {
		if ReasonOf(err) == ReasonInvalidCredentials {
			if herr := s.limiter.Hit(ctx, key); herr != nil && !errors.Is(herr, common.ErrRateLimited) {
				s.logger.Warn(ctx, "login limiter hit failed", "error", herr)
			}
		}
		return nil, err
	}

	if err := s.limiter.Reset(ctx, key); err != nil {
		s.logger.Warn(ctx, "login limiter reset failed", "error", err)
	}

	return s.tokens.Issue(ctx, a)
}

// Register creates a CUSTOMER account and sends the welcome email. A mail
// failure does not undo the registration.
func (s *AuthService) Register(ctx context.Context, r Registration) (*models.Account, error) {
	a, err := createAccount(ctx, s.db, s.repomanager, s.hasher, NewAccount{
		Email:     r.Email,
		Name:      r.Name,
		Telephone: r.Telephone,
		Password:  r.Password,
		Role:      models.RoleCustomer,
	})
	if err != nil {
		if ReasonOf(err) == ReasonInternal {
			s.logger.Error(ctx, "registration failed", "error", err)
		}
		return nil, err
	}

	s.logger.Info(ctx, "account registered", "account_id", a.ID)

	msg, err := mail.RegistrationMessage(a.Email, a.Name, s.registrationURL)
	if err != nil {
		s.logger.Error(ctx, "rendering registration email failed", "account_id", a.ID, "error", err)
		return a, nil
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn(ctx, "registration email not sent", "account_id", a.ID, "error", err)
	}

	return a, nil
}

// CheckEmailAvailability reports whether email is free for any account other
// than excludeID. Deleted accounts keep their email.
func (s *AuthService) CheckEmailAvailability(ctx context.Context, email string, excludeID int64) (bool, error) {
	email, err := validateEmail(email)
	if err != nil {
		return false, err
	}

	repo := s.repomanager.Accounts(s.db)
	exists, err := repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		s.logger.Error(ctx, "email lookup failed", "error", err)
		return false, internal()
	}
	return !exists, nil
}

// NewAccount is the input of both self-registration and admin creation.
type NewAccount struct {
	Email     string
	Name      string
	Telephone string
	Password  string
	Role      models.Role
}

// createAccount validates in, hashes the password and inserts the row inside
// one transaction after checking the email is free.
func createAccount(ctx context.Context, db *sql.DB, m repomanager.RepositoryManager, h hasher.Hasher, in NewAccount) (*models.Account, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	telephone, err := validateTelephone(in.Telephone)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, newError(ReasonInvalidRole)
	}

	digest, err := h.Hash(in.Password)
	if err != nil {
		return nil, internal()
	}

	var created *models.Account
	err = m.WithTx(ctx, db, func(ctx context.Context, repo accounts.Repository) error {
		exists, err := repo.ExistsByEmail(ctx, email, 0)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrorAlreadyExists
		}

		created, err = repo.Create(ctx, &models.Account{
			Email:        email,
			Name:         name,
			Telephone:    telephone,
			PasswordHash: digest,
			Status:       models.StatusActive,
			Role:         in.Role,
		})
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	return created.Sanitized(), nil
}
