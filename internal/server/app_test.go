package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mail"
	"github.com/dmitrijs2005/accountkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = ""
	c.RedisAddress = ""
	c.SMTPAddress = ""
	c.HashCost = 4
	c.LogLevel = "error"
	return c
}

func TestOpenStore_Memory(t *testing.T) {
	db, m, err := OpenStore(context.Background(), memoryConfig(), logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.IsType(t, &repomanager.InMemoryRepositoryManager{}, m)
}

func withSQLOpen(t *testing.T, fn func(driver, dsn string) (*sql.DB, error)) {
	t.Helper()
	old := sqlOpen
	sqlOpen = fn
	t.Cleanup(func() { sqlOpen = old })
}

func TestOpenStore_OpenError(t *testing.T) {
	withSQLOpen(t, func(string, string) (*sql.DB, error) { return nil, errors.New("bad dsn") })

	cfg := memoryConfig()
	cfg.DatabaseDSN = "postgres://x"
	_, _, err := OpenStore(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "db open error")
}

func TestOpenStore_PingError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	var gotDriver string
	withSQLOpen(t, func(driver, dsn string) (*sql.DB, error) {
		gotDriver = driver
		return db, nil
	})

	cfg := memoryConfig()
	cfg.DatabaseDSN = "postgres://x"
	_, _, err = OpenStore(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "db ping error")
	assert.Equal(t, "pgx", gotDriver)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLimiters(t *testing.T) {
	cfg := memoryConfig()
	client, login, recovery := newLimiters(cfg)
	assert.Nil(t, client)
	assert.Equal(t, ratelimit.Noop{}, login)
	assert.Equal(t, ratelimit.Noop{}, recovery)

	cfg.RedisAddress = "127.0.0.1:6379"
	cfg.LoginAttemptWindow = time.Minute
	client, login, recovery = newLimiters(cfg)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	assert.IsType(t, &ratelimit.RedisLimiter{}, login)
	assert.IsType(t, &ratelimit.RedisLimiter{}, recovery)
}

func TestNewMailer(t *testing.T) {
	cfg := memoryConfig()
	assert.IsType(t, &mail.LogSender{}, newMailer(cfg, logging.Discard()))

	cfg.SMTPAddress = "smtp.local:25"
	assert.IsType(t, &mail.SMTPSender{}, newMailer(cfg, logging.Discard()))
}

func TestNewApp_SeedsAdminInMemory(t *testing.T) {
	cfg := memoryConfig()
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminPassword = "Secret#123"
	ctx := context.Background()

	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)

	_, created, err := app.accountService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword)
	require.NoError(t, err)
	assert.False(t, created, "admin should have been created by NewApp")

	_, err = app.authService.Verify(ctx, "admin@example.com", "Secret#123")
	assert.NoError(t, err)
}

func TestNewApp_BadAdminPassword(t *testing.T) {
	cfg := memoryConfig()
	cfg.AdminPassword = "weak"

	_, err := NewApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "admin seed error")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.HTTPAddress = "127.0.0.1:0"

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
