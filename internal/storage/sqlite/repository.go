// Package sqlite is the embedded SQL backend, built on modernc.org/sqlite
// with golang-migrate managing the schema.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Fixed-width UTC timestamps keep created_at lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var _ storage.Store = (*Repository)(nil)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository opens (creating if needed) the database at dbPath and migrates it.
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serialises anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Transient("ping", err)
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, ownerID string, f core.ExpenseFields) (string, error) {
	f, err := storage.PrepareCreate(ownerID, f)
	if err != nil {
		return "", err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (owner_id, title, amount_cents, category, date, description, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, f.Title, f.Amount.Cents, f.Category, f.Date.String(), f.Description, string(f.Type),
		r.now().UTC().Format(timeLayout))
	if err != nil {
		return "", core.Transient("create expense", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", core.Transient("create expense", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", id,
		"owner_id", ownerID,
		"amount_cents", f.Amount.Cents,
		"date", f.Date.String())

	return strconv.FormatInt(id, 10), nil
}

const expenseColumns = `id, owner_id, title, amount_cents, category, date, description, type, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                 core.Expense
		id                int64
		date, typ, create string
	)
	if err := row.Scan(&id, &e.OwnerID, &e.Title, &e.Amount.Cents, &e.Category, &date, &e.Description, &typ, &create); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d has malformed date %q", id, date)
	}
	createdAt, err := time.Parse(timeLayout, create)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d has malformed created_at %q: %w", id, create, err)
	}
	e.ID = strconv.FormatInt(id, 10)
	e.Date = d
	e.Type = core.ExpenseType(typ)
	e.CreatedAt = createdAt
	return e, nil
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil && n > 0
}

func (r *Repository) Get(ctx context.Context, id string) (core.Expense, error) {
	n, ok := parseID(id)
	if !ok {
		return core.Expense{}, storage.NotFound(id)
	}
	return r.get(ctx, r.db, n, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) get(ctx context.Context, q querier, n int64, id string) (core.Expense, error) {
	e, err := scanExpense(q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, n))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, storage.NotFound(id)
	}
	if err != nil {
		return core.Expense{}, core.Transient("get expense", err)
	}
	return e, nil
}

func (r *Repository) Update(ctx context.Context, id string, p core.ExpensePatch) error {
	n, ok := parseID(id)
	if !ok {
		return storage.NotFound(id)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transient("update expense", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx, n, id)
	if err != nil {
		return err
	}
	next, err := storage.PrepareUpdate(current, p)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE expenses SET title = ?, amount_cents = ?, category = ?, date = ?, description = ?, type = ? WHERE id = ?`,
		next.Title, next.Amount.Cents, next.Category, next.Date.String(), next.Description, string(next.Type), n)
	if err != nil {
		return core.Transient("update expense", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Transient("update expense", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	n, ok := parseID(id)
	if !ok {
		return storage.NotFound(id)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, n)
	if err != nil {
		return core.Transient("delete expense", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Transient("delete expense", err)
	}
	if affected == 0 {
		return storage.NotFound(id)
	}
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string, f core.TypeFilter) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE owner_id = ?`
	args := []any{ownerID}
	if f != core.AllTypes && f != "" {
		query += ` AND type = ?`
		args = append(args, string(f))
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt.UTC().Format(timeLayout))
	if isUniqueViolation(err) {
		return storage.ErrEmailTaken
	}
	if err != nil {
		return core.Transient("create user", err)
	}
	return nil
}

const userColumns = `id, email, display_name, password_hash, created_at`

func scanUser(row rowScanner) (core.User, error) {
	var (
		u      core.User
		create string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &create); err != nil {
		return core.User{}, err
	}
	t, err := time.Parse(timeLayout, create)
	if err != nil {
		return core.User{}, fmt.Errorf("user %s has malformed created_at %q: %w", u.ID, create, err)
	}
	u.CreatedAt = t
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, storage.UserNotFound(id)
	}
	if err != nil {
		return core.User{}, core.Transient("get user", err)
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, storage.UserNotFound(email)
	}
	if err != nil {
		return core.User{}, core.Transient("get user", err)
	}
	return u, nil
}

func (r *Repository) UpdateUser(ctx context.Context, u core.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, display_name = ?, password_hash = ? WHERE id = ?`,
		u.Email, u.DisplayName, u.PasswordHash, u.ID)
	if isUniqueViolation(err) {
		return storage.ErrEmailTaken
	}
	if err != nil {
		return core.Transient("update user", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Transient("update user", err)
	}
	if affected == 0 {
		return storage.UserNotFound(u.ID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
