package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"siteops.kr/internal/access"
)

var (
	// ErrUserNotFound is returned for unknown user ids or emails.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidCredentials covers both bad emails and bad passwords so the
	// response never reveals which part failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// User is a platform account. GlobalRole is the platform-wide role; site
// scoped roles come from the assignment registry.
type User struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	Name           string            `json:"name"`
	GlobalRole     access.GlobalRole `json:"global_role"`
	OrganizationID string            `json:"organization_id,omitempty"`
	PasswordHash   string            `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Actor converts the account into its access-control identity.
func (u User) Actor() access.Actor {
	return access.Actor{ID: u.ID, GlobalRole: u.GlobalRole, OrganizationID: u.OrganizationID}
}

// UserStore is the persistence contract for accounts.
type UserStore interface {
	Insert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}

// Authenticate resolves an email/password pair to a user.
func Authenticate(ctx context.Context, store UserStore, email, password string) (User, error) {
	u, err := store.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// MemoryUserStore implements UserStore in process.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

var _ UserStore = (*MemoryUserStore)(nil)

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryUserStore) Insert(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = *u
	m.byEmail[strings.ToLower(u.Email)] = u.ID
	return nil
}

func (m *MemoryUserStore) GetByID(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

// PGUserStore implements UserStore using PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

var _ UserStore = (*PGUserStore)(nil)

// NewPGUserStore wraps an existing connection pool.
func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

func (s *PGUserStore) Insert(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, name, global_role, organization_id, password_hash, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, strings.ToLower(u.Email), u.Name, string(u.GlobalRole), nullIfEmpty(u.OrganizationID), u.PasswordHash, u.CreatedAt)
	return err
}

func (s *PGUserStore) GetByID(ctx context.Context, id string) (User, error) {
	return s.getBy(ctx, "id = $1", id)
}

func (s *PGUserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.getBy(ctx, "email = $1", strings.ToLower(email))
}

func (s *PGUserStore) getBy(ctx context.Context, where string, arg any) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, name, global_role, organization_id, password_hash, created_at
		from users where `+where, arg)
	var u User
	var role string
	var org sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &org, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.GlobalRole = access.GlobalRole(role)
	u.OrganizationID = org.String
	return u, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
