package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/avatars"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/hasher"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mail"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const password = "Secret#123"

type captureMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (m *captureMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

var tokenParam = regexp.MustCompile(`token=([A-Za-z0-9_\-.]+)`)

func (m *captureMailer) recoveryToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs)
	match := tokenParam.FindStringSubmatch(m.msgs[len(m.msgs)-1].HTML)
	require.Len(t, match, 2)
	return match[1]
}

type stubPresigner struct{}

func (stubPresigner) UploadURL(ctx context.Context, accountID int64) (*avatars.Upload, error) {
	key := avatars.ObjectKey(accountID)
	return &avatars.Upload{Key: key, URL: "https://s3.local/" + key}, nil
}

func (stubPresigner) DownloadURL(ctx context.Context, key string) (string, error) {
	return "https://s3.local/" + key, nil
}

type testAPI struct {
	srv    *httptest.Server
	repos  *repomanager.InMemoryRepositoryManager
	hasher hasher.Hasher
	mailer *captureMailer
	tokens *services.TokenService
}

func newTestAPI(t *testing.T, loginLimiter ratelimit.Limiter) *testAPI {
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
	if loginLimiter == nil {
		loginLimiter = ratelimit.Noop{}
	}

	h := hasher.NewBcrypt(bcrypt.MinCost)
	log := logging.Discard()
	repos := repomanager.NewInMemoryRepositoryManager()
	mailer := &captureMailer{}

	ts := services.NewTokenService(nil, repos, h, log, cfg)
	handler := NewHandler(
		services.NewAuthService(nil, repos, h, ts, loginLimiter, mailer, log, cfg),
		ts,
		services.NewRecoveryService(nil, repos, h, ratelimit.Noop{}, mailer, log, cfg),
		services.NewAccountService(nil, repos, h, stubPresigner{}, log),
	)

	srv := httptest.NewServer(NewRouter(handler, log))
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, repos: repos, hasher: h, mailer: mailer, tokens: ts}
}

// seedAdmin inserts an ADMIN account straight into the store.
func (a *testAPI) seedAdmin(t *testing.T, email string) {
	t.Helper()
	digest, err := a.hasher.Hash(password)
	require.NoError(t, err)
	_, err = a.repos.Accounts(nil).Create(context.Background(), &models.Account{
		Email: email, Name: "Admin", PasswordHash: digest, Role: models.RoleAdmin, Status: models.StatusActive,
	})
	require.NoError(t, err)
}

// call sends body as JSON and decodes the response into out when given.
func (a *testAPI) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) register(t *testing.T, email string) accountResponse {
	t.Helper()
	var acc accountResponse
	status := a.call(t, http.MethodPost, "/auth/register", "", registerRequest{
		Email: email, Name: "John", Password: password,
	}, &acc)
	require.Equal(t, http.StatusCreated, status)
	return acc
}

func (a *testAPI) login(t *testing.T, email, pass string) tokenResponse {
	t.Helper()
	var tokens tokenResponse
	status := a.call(t, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: pass}, &tokens)
	require.Equal(t, http.StatusOK, status)
	return tokens
}
