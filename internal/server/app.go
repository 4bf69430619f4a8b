// Package server wires configuration, storage, throttling, mail and the
// account services together and runs the HTTP API until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/avatars"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/hasher"
	hs "github.com/dmitrijs2005/accountkeeper/internal/server/http"
	"github.com/dmitrijs2005/accountkeeper/internal/server/mail"
	"github.com/dmitrijs2005/accountkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	redis           *redis.Client
	authService     *services.AuthService
	tokenService    *services.TokenService
	recoveryService *services.RecoveryService
	accountService  *services.AccountService
}

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// OpenStore connects to PostgreSQL and migrates it. An empty DSN selects the
// in-memory store, which forgets everything on exit.
func OpenStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*sql.DB, repomanager.RepositoryManager, error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn(ctx, "no database DSN configured, using in-memory store")
		return nil, repomanager.NewInMemoryRepositoryManager(), nil
	}

	db, err := sqlOpen("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}

	return db, m, nil
}

func newLimiters(cfg *config.Config) (client *redis.Client, login, recovery ratelimit.Limiter) {
	if cfg.RedisAddress == "" {
		return nil, ratelimit.Noop{}, ratelimit.Noop{}
	}
	client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	login = ratelimit.NewRedisLimiter(client, "login", cfg.LoginAttemptLimit, cfg.LoginAttemptWindow)
	recovery = ratelimit.NewRedisLimiter(client, "recovery", cfg.RecoveryRequestLimit, cfg.RecoveryRequestWindow)
	return client, login, recovery
}

func newMailer(cfg *config.Config, logger logging.Logger) mail.Sender {
	if cfg.SMTPAddress == "" {
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(cfg.SMTPAddress, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
}

// NewServices builds the account services over an opened store.
func NewServices(cfg *config.Config, db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger, login, recovery ratelimit.Limiter) (*services.AuthService, *services.TokenService, *services.RecoveryService, *services.AccountService) {
	h := hasher.NewBcrypt(cfg.HashCost)
	mailer := newMailer(cfg, logger)

	ts := services.NewTokenService(db, m, h, logger, cfg)
	as := services.NewAuthService(db, m, h, ts, login, mailer, logger, cfg)
	rs := services.NewRecoveryService(db, m, h, recovery, mailer, logger, cfg)
	acs := services.NewAccountService(db, m, h, avatars.NewPresigner(cfg), logger)
	return as, ts, rs, acs
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, m, err := OpenStore(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	client, login, recovery := newLimiters(c)
	as, ts, rs, acs := NewServices(c, db, m, logger, login, recovery)

	app := &App{
		config:          c,
		logger:          logger,
		db:              db,
		redis:           client,
		authService:     as,
		tokenService:    ts,
		recoveryService: rs,
		accountService:  acs,
	}

	if err := app.ensureAdmin(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}

	return app, nil
}

// ensureAdmin creates the configured admin when a password is supplied
// through the environment. cmd/seed covers the interactive case.
func (app *App) ensureAdmin(ctx context.Context) error {
	if app.config.AdminPassword == "" {
		return nil
	}
	a, created, err := app.accountService.EnsureAdmin(ctx, app.config.AdminEmail, app.config.AdminName, app.config.AdminPassword)
	if err != nil {
		return fmt.Errorf("admin seed error: %w", err)
	}
	if created {
		app.logger.Info(ctx, "admin account created", "account_id", a.ID)
	}
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := hs.NewHandler(app.authService, app.tokenService, app.recoveryService, app.accountService)
	s := hs.NewHTTPServer(app.config.HTTPAddress, app.logger, h)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close error", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}
