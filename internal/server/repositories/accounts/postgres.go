package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const columns = `id, email, name, telephone, image_url, password_hash, refresh_token_hash,
		 recovery_token_hash, status, role, version, created_at, updated_at, deleted_at`

const liveClause = ` AND status = 'ACTIVE' AND deleted_at IS NULL`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	a := &models.Account{}
	var refresh, recovery sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Telephone, &a.ImageURL, &a.PasswordHash,
		&refresh, &recovery, &a.Status, &a.Role, &a.Version, &a.CreatedAt, &a.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if refresh.Valid {
		a.RefreshTokenHash = &refresh.String
	}
	if recovery.Valid {
		a.RecoveryTokenHash = &recovery.String
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {

	query :=
		`INSERT INTO accounts (email, name, telephone, image_url, password_hash, status, role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING ` + columns

	status := account.Status
	if status == "" {
		status = models.StatusActive
	}
	role := account.Role
	if role == "" {
		role = models.RoleCustomer
	}

	row := r.db.QueryRowContext(ctx, query,
		common.NormalizeEmail(account.Email), account.Name, account.Telephone, account.ImageURL,
		account.PasswordHash, string(status), string(role))

	created, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, filter Filter, arg any) (*models.Account, error) {
	if filter == LiveOnly {
		query += liveClause
	}

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string, filter Filter) (*models.Account, error) {
	query :=
		`SELECT ` + columns + ` FROM accounts
		 WHERE lower(email) = $1`

	return r.findOne(ctx, query, filter, common.NormalizeEmail(email))
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64, filter Filter) (*models.Account, error) {
	query :=
		`SELECT ` + columns + ` FROM accounts
		 WHERE id = $1`

	return r.findOne(ctx, query, filter, id)
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(email) = $1 AND id <> $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, common.NormalizeEmail(email), excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

func (r *PostgresRepository) ConditionalUpdate(ctx context.Context, id, expectedVersion int64, patch models.Patch) (*models.Account, error) {
	query :=
		`UPDATE accounts SET
		 name = COALESCE($3, name),
		 telephone = COALESCE($4, telephone),
		 image_url = COALESCE($5, image_url),
		 email = COALESCE($6, email),
		 role = COALESCE($7, role),
		 version = version + 1,
		 updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING ` + columns

	var email, role any
	if patch.Email != nil {
		email = common.NormalizeEmail(*patch.Email)
	}
	if patch.Role != nil {
		role = string(*patch.Role)
	}

	row := r.db.QueryRowContext(ctx, query, id, expectedVersion,
		nullable(patch.Name), nullable(patch.Telephone), nullable(patch.ImageURL), email, role)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrVersionConflict
		}
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

// exec runs a single-row write and maps zero affected rows to noRows.
func (r *PostgresRepository) exec(ctx context.Context, noRows error, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return noRows
	}

	return nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id, expectedVersion int64) error {
	query :=
		`UPDATE accounts SET status = 'INACTIVE', deleted_at = now(), version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2`

	return r.exec(ctx, common.ErrVersionConflict, query, id, expectedVersion)
}

func (r *PostgresRepository) SetPasswordHash(ctx context.Context, id, expectedVersion int64, hash string) error {
	query :=
		`UPDATE accounts SET password_hash = $3, recovery_token_hash = NULL, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2`

	return r.exec(ctx, common.ErrVersionConflict, query, id, expectedVersion, hash)
}

func (r *PostgresRepository) SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error {
	query :=
		`UPDATE accounts SET refresh_token_hash = $2
		 WHERE id = $1`

	return r.exec(ctx, common.ErrorNotFound, query, id, nullable(hash))
}

func (r *PostgresRepository) SwapRefreshTokenHash(ctx context.Context, id int64, expected, next string) error {
	query :=
		`UPDATE accounts SET refresh_token_hash = $3
		 WHERE id = $1 AND refresh_token_hash = $2`

	return r.exec(ctx, common.ErrVersionConflict, query, id, expected, next)
}

func (r *PostgresRepository) SetRecoveryTokenHash(ctx context.Context, id int64, hash *string) error {
	query :=
		`UPDATE accounts SET recovery_token_hash = $2
		 WHERE id = $1`

	return r.exec(ctx, common.ErrorNotFound, query, id, nullable(hash))
}
