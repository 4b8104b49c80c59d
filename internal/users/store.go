// Package users implements the user-management store behind the admin
// panel: SQLite persistence, bcrypt credential hashing, and the
// validation rules the registration form relies on.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var (
	// ErrNotFound is returned when the requested user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = errors.New("user already exists")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const bcryptCost = 10

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// User is the stored account. Password hashes never leave this package.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUser carries the fields of a registration request.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Update carries a partial edit; nil fields are left unchanged.
type Update struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS users_created_at ON users (created_at DESC);
`

// Store manages SQLite-backed user accounts. Safe for concurrent use;
// each call borrows a pooled connection.
type Store struct {
	pool *sqlitex.Pool
	now  func() time.Time
}

// Open creates the store, creating the database file and schema as
// needed. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("users: database path is required")
	}
	poolSize := 4
	if path == ":memory:" {
		// A literal ":memory:" gives every pooled connection its own
		// database; the shared-cache URI keeps them on one.
		path = "file::memory:?mode=memory&cache=shared"
		poolSize = 1
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{PoolSize: poolSize})
	if err != nil {
		return nil, fmt.Errorf("users: open %s: %w", path, err)
	}
	s := &Store{pool: pool, now: time.Now}

	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("users: take connection: %w", err)
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("users: create schema: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func validateNewUser(u NewUser) error {
	if len(strings.TrimSpace(u.Name)) < 3 {
		return errors.New("name should be at least 3 characters")
	}
	if !emailPattern.MatchString(u.Email) {
		return errors.New("please enter a valid email")
	}
	if len(u.Password) < 6 {
		return errors.New("password should be at least 6 characters")
	}
	if u.Role != "" && u.Role != "user" && u.Role != "admin" {
		return fmt.Errorf("unsupported role %q", u.Role)
	}
	return nil
}

// Create registers a new account. The password is stored as a bcrypt
// hash and never returned.
func (s *Store) Create(ctx context.Context, u NewUser) (User, error) {
	if err := validateNewUser(u); err != nil {
		return User{}, err
	}
	role := u.Role
	if role == "" {
		role = "user"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return User{}, err
	}
	defer s.pool.Put(conn)

	var exists bool
	err = sqlitex.Execute(conn, `SELECT 1 FROM users WHERE email = ?;`, &sqlitex.ExecOptions{
		Args: []any{u.Email},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return User{}, fmt.Errorf("check existing email: %w", err)
	}
	if exists {
		return User{}, ErrDuplicateEmail
	}

	now := s.now().UTC().Truncate(time.Second)
	user := User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(u.Name),
		Email:     u.Email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{Args: []any{
			user.ID, user.Name, user.Email, string(hash), user.Role,
			now.Unix(), now.Unix(),
		}})
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// List returns all accounts, newest first, without credentials.
func (s *Store) List(ctx context.Context) ([]User, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []User
	err = sqlitex.Execute(conn,
		`SELECT id, name, email, role, created_at, updated_at
		 FROM users ORDER BY created_at DESC, id;`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, scanUser(stmt))
			return nil
		}})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// Get returns a single account by id.
func (s *Store) Get(ctx context.Context, id string) (User, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return User{}, err
	}
	defer s.pool.Put(conn)
	return s.getLocked(conn, id)
}

func (s *Store) getLocked(conn *sqlite.Conn, id string) (User, error) {
	var user User
	found := false
	err := sqlitex.Execute(conn,
		`SELECT id, name, email, role, created_at, updated_at FROM users WHERE id = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user = scanUser(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return User{}, ErrNotFound
	}
	return user, nil
}

// Apply updates an account in place. A nil field keeps the stored value.
func (s *Store) Apply(ctx context.Context, id string, upd Update) (User, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return User{}, err
	}
	defer s.pool.Put(conn)

	current, err := s.getLocked(conn, id)
	if err != nil {
		return User{}, err
	}

	if upd.Name != nil {
		if len(strings.TrimSpace(*upd.Name)) < 3 {
			return User{}, errors.New("name should be at least 3 characters")
		}
		current.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		if !emailPattern.MatchString(*upd.Email) {
			return User{}, errors.New("please enter a valid email")
		}
		var taken bool
		err = sqlitex.Execute(conn, `SELECT 1 FROM users WHERE email = ? AND id != ?;`, &sqlitex.ExecOptions{
			Args: []any{*upd.Email, id},
			ResultFunc: func(*sqlite.Stmt) error {
				taken = true
				return nil
			},
		})
		if err != nil {
			return User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return User{}, ErrDuplicateEmail
		}
		current.Email = *upd.Email
	}
	if upd.Role != nil {
		if *upd.Role != "user" && *upd.Role != "admin" {
			return User{}, fmt.Errorf("unsupported role %q", *upd.Role)
		}
		current.Role = *upd.Role
	}

	// One statement, so a failure never leaves a half-applied edit.
	var hash any
	if upd.Password != nil {
		if len(*upd.Password) < 6 {
			return User{}, errors.New("password should be at least 6 characters")
		}
		h, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), bcryptCost)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}

	now := s.now().UTC().Truncate(time.Second)
	current.UpdatedAt = now

	err = sqlitex.Execute(conn,
		`UPDATE users
		 SET name = ?, email = ?, role = ?, updated_at = ?,
		     password_hash = COALESCE(?, password_hash)
		 WHERE id = ?;`,
		&sqlitex.ExecOptions{Args: []any{
			current.Name, current.Email, current.Role, now.Unix(), hash, id,
		}})
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return current, nil
}

// Delete removes an account.
func (s *Store) Delete(ctx context.Context, id string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if _, err := s.getLocked(conn, id); err != nil {
		return err
	}
	err = sqlitex.Execute(conn, `DELETE FROM users WHERE id = ?;`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// Authenticate verifies an email/password pair and returns the account.
// The same error is returned for unknown emails and wrong passwords.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return User{}, err
	}
	defer s.pool.Put(conn)

	var user User
	var hash string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT id, name, email, role, created_at, updated_at, password_hash
		 FROM users WHERE email = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{email},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user = scanUser(stmt)
				hash = stmt.ColumnText(6)
				found = true
				return nil
			},
		})
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Count reports the number of stored accounts.
func (s *Store) Count(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM users;`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func scanUser(stmt *sqlite.Stmt) User {
	return User{
		ID:        stmt.ColumnText(0),
		Name:      stmt.ColumnText(1),
		Email:     stmt.ColumnText(2),
		Role:      stmt.ColumnText(3),
		CreatedAt: time.Unix(stmt.ColumnInt64(4), 0).UTC(),
		UpdatedAt: time.Unix(stmt.ColumnInt64(5), 0).UTC(),
	}
}
