// Package postgres is the PostgreSQL backend, built on a pgx/v5 pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ledger/internal/core"
	"ledger/internal/storage"
)

const uniqueViolation = "23505"

var _ storage.Store = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect migrates the database at url and opens a pool on it.
func Connect(ctx context.Context, url string) (*Repository, error) {
	if err := RunMigrations(url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return core.Transient("ping", r.pool.Ping(ctx))
}

func (r *Repository) Create(ctx context.Context, ownerID string, f core.ExpenseFields) (string, error) {
	f, err := storage.PrepareCreate(ownerID, f)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO expenses (id, owner_id, title, amount_cents, category, date, description, type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, ownerID, f.Title, f.Amount.Cents, f.Category, f.Date.Time, f.Description, string(f.Type), r.now().UTC())
	if err != nil {
		return "", core.Transient("create expense", err)
	}
	return id, nil
}

const expenseColumns = `id, owner_id, title, amount_cents, category, date, description, type, created_at`

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e    core.Expense
		date time.Time
		typ  string
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Amount.Cents, &e.Category, &date, &e.Description, &typ, &e.CreatedAt); err != nil {
		return core.Expense{}, err
	}
	e.Date = core.DateOf(date)
	e.Type = core.ExpenseType(typ)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (r *Repository) Get(ctx context.Context, id string) (core.Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, storage.NotFound(id)
	}
	if err != nil {
		return core.Expense{}, core.Transient("get expense", err)
	}
	return e, nil
}

func (r *Repository) Update(ctx context.Context, id string, p core.ExpensePatch) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return core.Transient("update expense", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanExpense(tx.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.NotFound(id)
	}
	if err != nil {
		return core.Transient("update expense", err)
	}
	next, err := storage.PrepareUpdate(current, p)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE expenses SET title = $1, amount_cents = $2, category = $3, date = $4, description = $5, type = $6 WHERE id = $7`,
		next.Title, next.Amount.Cents, next.Category, next.Date.Time, next.Description, string(next.Type), id)
	if err != nil {
		return core.Transient("update expense", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Transient("update expense", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return core.Transient("delete expense", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFound(id)
	}
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string, f core.TypeFilter) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE owner_id = $1`
	args := []any{ownerID}
	if f != core.AllTypes && f != "" {
		query += ` AND type = $2`
		args = append(args, string(f))
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Transient("list expenses", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, core.Transient("list expenses", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Transient("list expenses", err)
	}
	return out, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return storage.ErrEmailTaken
	}
	return core.Transient("create user", err)
}

const userColumns = `id, email, display_name, password_hash, created_at`

func scanUser(row pgx.Row) (core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, storage.UserNotFound(id)
	}
	if err != nil {
		return core.User{}, core.Transient("get user", err)
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, storage.UserNotFound(email)
	}
	if err != nil {
		return core.User{}, core.Transient("get user", err)
	}
	return u, nil
}

func (r *Repository) UpdateUser(ctx context.Context, u core.User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email = $1, display_name = $2, password_hash = $3 WHERE id = $4`,
		u.Email, u.DisplayName, u.PasswordHash, u.ID)
	if isUniqueViolation(err) {
		return storage.ErrEmailTaken
	}
	if err != nil {
		return core.Transient("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.UserNotFound(u.ID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
