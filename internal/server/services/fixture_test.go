package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/avatars"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/hasher"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mail"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Secret#123"

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) last(t *testing.T) mail.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no mail sent")
	return f.sent[len(f.sent)-1]
}

var tokenParam = regexp.MustCompile(`token=([A-Za-z0-9_\-.]+)`)

// recoveryToken pulls the token out of the most recent recovery email.
func (f *fakeMailer) recoveryToken(t *testing.T) string {
	t.Helper()
	msg := f.last(t)
	require.Equal(t, mail.RecoverySubject, msg.Subject)
	m := tokenParam.FindStringSubmatch(msg.HTML)
	require.Len(t, m, 2, "no token in %q", msg.HTML)
	return m[1]
}

type fakePresigner struct {
	err error
}

func (p *fakePresigner) UploadURL(ctx context.Context, accountID int64) (*avatars.Upload, error) {
	if p.err != nil {
		return nil, p.err
	}
	key := avatars.ObjectKey(accountID)
	return &avatars.Upload{Key: key, URL: "https://s3.local/" + key + "?sig=put"}, nil
}

func (p *fakePresigner) DownloadURL(ctx context.Context, key string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.local/" + key + "?sig=get", nil
}

// brokenLimiter simulates an unreachable Redis.
type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string) error { return ratelimit.ErrUnavailable }
func (brokenLimiter) Hit(context.Context, string) error   { return ratelimit.ErrUnavailable }
func (brokenLimiter) Reset(context.Context, string) error { return ratelimit.ErrUnavailable }

type fixture struct {
	cfg       *config.Config
	repos     *repomanager.InMemoryRepositoryManager
	mailer    *fakeMailer
	presigner *fakePresigner
	tokens    *TokenService
	auth      *AuthService
	recovery  *RecoveryService
	accounts  *AccountService
}

type fixtureOption func(*config.Config, *ratelimit.Limiter, *ratelimit.Limiter)

func withLoginLimiter(l ratelimit.Limiter) fixtureOption {
	return func(_ *config.Config, login, _ *ratelimit.Limiter) { *login = l }
}

func withRecoveryLimiter(l ratelimit.Limiter) fixtureOption {
	return func(_ *config.Config, _, recovery *ratelimit.Limiter) { *recovery = l }
}

func withConfig(fn func(*config.Config)) fixtureOption {
	return func(cfg *config.Config, _, _ *ratelimit.Limiter) { fn(cfg) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := &config.Config{
		AccessTokenSecret:             "access-secret",
		RefreshTokenSecret:            "refresh-secret",
		RecoveryTokenSecret:           "recovery-secret",
		AccessTokenValidityDuration:   15 * time.Minute,
		RefreshTokenValidityDuration:  time.Hour,
		RecoveryTokenValidityDuration: 15 * time.Minute,
		RecoveryURL:                   "http://localhost:3000/recovery-password",
		RegistrationURL:               "http://localhost:3000/login",
	}
	var login, recovery ratelimit.Limiter = ratelimit.Noop{}, ratelimit.Noop{}
	for _, opt := range opts {
		opt(cfg, &login, &recovery)
	}

	h := hasher.NewBcrypt(bcrypt.MinCost)
	log := logging.Discard()
	repos := repomanager.NewInMemoryRepositoryManager()
	mailer := &fakeMailer{}
	presigner := &fakePresigner{}

	tokens := NewTokenService(nil, repos, h, log, cfg)
	return &fixture{
		cfg:       cfg,
		repos:     repos,
		mailer:    mailer,
		presigner: presigner,
		tokens:    tokens,
		auth:      NewAuthService(nil, repos, h, tokens, login, mailer, log, cfg),
		recovery:  NewRecoveryService(nil, repos, h, recovery, mailer, log, cfg),
		accounts:  NewAccountService(nil, repos, h, presigner, log),
	}
}

func (f *fixture) store() accounts.Repository {
	return f.repos.Accounts(nil)
}

// seed creates an account directly, bypassing registration mail.
func (f *fixture) seed(t *testing.T, email string, role models.Role) *models.Account {
	t.Helper()
	a, err := createAccount(context.Background(), nil, f.repos, f.auth.hasher, NewAccount{
		Email:    email,
		Name:     "Test " + string(role),
		Password: testPassword,
		Role:     role,
	})
	require.NoError(t, err)
	return a
}

// login returns the caller's claims and token pair.
func (f *fixture) login(t *testing.T, email, password string) (*auth.ClaimSet, *TokenPair) {
	t.Helper()
	pair, err := f.auth.Login(context.Background(), email, password)
	require.NoError(t, err)
	claims, err := f.tokens.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	return claims, pair
}

func (f *fixture) current(t *testing.T, id int64) *models.Account {
	t.Helper()
	a, err := f.store().FindByID(context.Background(), id, accounts.AnyStatus)
	require.NoError(t, err)
	return a
}

func requireReason(t *testing.T, err error, kind error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, kind), "want kind %v, got %v", kind, err)
	require.Equal(t, reason, ReasonOf(err))
}
