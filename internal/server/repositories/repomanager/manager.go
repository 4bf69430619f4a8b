package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
)

// RepositoryManager vends repositories bound to a connection or transaction
// and owns the schema lifecycle.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	// WithTx runs fn against a repository bound to a single transaction.
	WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, repo accounts.Repository) error) error
}
