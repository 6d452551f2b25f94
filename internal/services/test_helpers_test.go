package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/models"
	pkgauth "github.com/BradenHooton/authenticator/pkg/auth"
	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "test-secret-key-that-is-at-least-32-characters-long"
	testPassword = "Correct-Horse-9"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc                   func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc                func(ctx context.Context, email string) (*models.User, error)
	CreateFunc                    func(ctx context.Context, user *models.User) (*models.User, error)
	SetTwoFactorFunc              func(ctx context.Context, id string, enabled bool, secret string) (*models.User, error)
	SetResetStateFunc             func(ctx context.Context, id, hash string, expiresAt *time.Time) (*models.User, error)
	SwapResetStateFunc            func(ctx context.Context, id, expectedHash, hash string, expiresAt *time.Time) (*models.User, error)
	UpdatePasswordIfResetHashFunc func(ctx context.Context, id, expectedHash, passwordHash string, changedAt time.Time) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) SetTwoFactor(ctx context.Context, id string, enabled bool, secret string) (*models.User, error) {
	if m.SetTwoFactorFunc != nil {
		return m.SetTwoFactorFunc(ctx, id, enabled, secret)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) SetResetState(ctx context.Context, id, hash string, expiresAt *time.Time) (*models.User, error) {
	if m.SetResetStateFunc != nil {
		return m.SetResetStateFunc(ctx, id, hash, expiresAt)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) SwapResetState(ctx context.Context, id, expectedHash, hash string, expiresAt *time.Time) (*models.User, error) {
	if m.SwapResetStateFunc != nil {
		return m.SwapResetStateFunc(ctx, id, expectedHash, hash, expiresAt)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePasswordIfResetHash(ctx context.Context, id, expectedHash, passwordHash string, changedAt time.Time) (*models.User, error) {
	if m.UpdatePasswordIfResetHashFunc != nil {
		return m.UpdatePasswordIfResetHashFunc(ctx, id, expectedHash, passwordHash, changedAt)
	}
	return nil, models.ErrInternalServer
}

// memUserRepository is a stateful UserRepository. Callers always get copies, the way rows come
// back from Postgres.
type memUserRepository struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUserRepository() *memUserRepository {
	return &memUserRepository{users: make(map[string]models.User)}
}

func (r *memUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, models.ErrConflict
		}
	}
	u := *user
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = u
	return &u, nil
}

// write applies change to the stored row when guard allows it. Like the SQL writes, each caller
// changes only its own columns.
func (r *memUserRepository) write(id string, guard func(models.User) bool, change func(*models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if guard != nil && !guard(u) {
		return nil, models.ErrConflict
	}
	change(&u)
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return &u, nil
}

func hashIs(expected string) func(models.User) bool {
	return func(u models.User) bool { return u.PasswordResetCodeHash == expected }
}

func (r *memUserRepository) SetTwoFactor(ctx context.Context, id string, enabled bool, secret string) (*models.User, error) {
	return r.write(id, nil, func(u *models.User) {
		u.TwoFactorEnabled = enabled
		u.TOTPSecret = secret
	})
}

func (r *memUserRepository) SetResetState(ctx context.Context, id, hash string, expiresAt *time.Time) (*models.User, error) {
	return r.write(id, nil, func(u *models.User) {
		u.PasswordResetCodeHash = hash
		u.PasswordResetExpiresAt = expiresAt
	})
}

func (r *memUserRepository) SwapResetState(ctx context.Context, id, expectedHash, hash string, expiresAt *time.Time) (*models.User, error) {
	u, err := r.write(id, hashIs(expectedHash), func(u *models.User) {
		u.PasswordResetCodeHash = hash
		u.PasswordResetExpiresAt = expiresAt
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrConflict
	}
	return u, err
}

func (r *memUserRepository) UpdatePasswordIfResetHash(ctx context.Context, id, expectedHash, passwordHash string, changedAt time.Time) (*models.User, error) {
	u, err := r.write(id, hashIs(expectedHash), func(u *models.User) {
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = &changedAt
		u.ClearPasswordReset()
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrConflict
	}
	return u, err
}

// get returns the stored row without copying semantics getting in the way of assertions.
func (r *memUserRepository) get(id string) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

// staleUserRepository writes through to the wrapped repository but always reads back the snapshot
// it was built with, like a request that loaded the account before someone else changed it.
type staleUserRepository struct {
	*memUserRepository
	snapshot models.User
}

func (r *staleUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	u := r.snapshot
	return &u, nil
}

func (r *staleUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u := r.snapshot
	return &u, nil
}

// MockChallengeStore implements ChallengeStore for testing. With no ClaimFunc it behaves like
// SETNX over an in-memory set.
type MockChallengeStore struct {
	ClaimFunc func(ctx context.Context, jti string, ttl time.Duration) (bool, error)

	mu      sync.Mutex
	claimed map[string]bool
}

func (m *MockChallengeStore) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, jti, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	if m.claimed[jti] {
		return false, nil
	}
	m.claimed[jti] = true
	return true, nil
}

// MockEmailService implements EmailService for testing and remembers every code it was asked to send.
type MockEmailService struct {
	SendPasswordResetCodeFunc func(ctx context.Context, email, code string, expiresAt time.Time) error

	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (m *MockEmailService) SendPasswordResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	m.sent++
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	m.mu.Unlock()

	if m.SendPasswordResetCodeFunc != nil {
		return m.SendPasswordResetCodeFunc(ctx, email, code, expiresAt)
	}
	return nil
}

func (m *MockEmailService) lastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

func (m *MockEmailService) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// recordingAudit implements AuditRecorder and keeps events for assertions.
type recordingAudit struct {
	mu     sync.Mutex
	events []pkglogger.AuditEvent
}

func (a *recordingAudit) Record(ctx context.Context, event pkglogger.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAudit) last() pkglogger.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return pkglogger.AuditEvent{}
	}
	return a.events[len(a.events)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHasher() *pkgauth.Hasher {
	return pkgauth.NewHasher(bcrypt.MinCost)
}

// testEnv wires the three services over one in-memory repository.
type testEnv struct {
	repo   *memUserRepository
	tm     *auth.TokenManager
	totp   *auth.TOTPManager
	codes  *auth.ResetCodeManager
	email  *MockEmailService
	store  *MockChallengeStore
	audit  *recordingAudit
	auth   *AuthService
	twoFA  *TwoFactorService
	resets *PasswordResetService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:  newMemUserRepository(),
		tm:    auth.NewTokenManager(testSecret, time.Hour, 5*time.Minute),
		totp:  auth.NewTOTPManager("TestIssuer"),
		codes: auth.NewResetCodeManager(10 * time.Minute),
		email: &MockEmailService{},
		store: &MockChallengeStore{},
		audit: &recordingAudit{},
	}
	logger := discardLogger()
	hasher := testHasher()

	env.auth = NewAuthService(env.repo, env.tm, env.totp, hasher, logger, env.audit)
	env.auth.SetChallengeStore(env.store)
	env.twoFA = NewTwoFactorService(env.repo, env.totp, logger, env.audit)
	env.resets = NewPasswordResetService(env.repo, env.codes, hasher, env.email, logger, env.audit)
	return env
}

// seedUser stores an account with testPassword and returns it.
func (e *testEnv) seedUser(email string) *models.User {
	hash, err := testHasher().Hash(testPassword)
	if err != nil {
		panic(err)
	}
	user, err := e.repo.Create(context.Background(), &models.User{Email: email, PasswordHash: hash})
	if err != nil {
		panic(err)
	}
	return user
}

// seedTwoFactorUser stores an account with confirmed 2FA and returns it with its secret.
func (e *testEnv) seedTwoFactorUser(email string) (*models.User, string) {
	user := e.seedUser(email)
	setup, err := e.totp.GenerateSecret(email)
	if err != nil {
		panic(err)
	}
	user, err = e.repo.SetTwoFactor(context.Background(), user.ID, true, setup.Secret)
	if err != nil {
		panic(err)
	}
	return user, setup.Secret
}
