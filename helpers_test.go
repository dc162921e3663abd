package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/password"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/totp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Test123!"

var (
	testSigningKey    = []byte("0123456789abcdef0123456789abcdef")
	testEncryptionKey = []byte("fedcba9876543210fedcba9876543210")
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = EnvTest
	cfg.JWT.SigningKey = testSigningKey
	cfg.TwoFactor.EncryptionKey = testEncryptionKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUserStore struct {
	mu          sync.Mutex
	users       map[string]*UserRecord
	failWith    error
	hashUpdates map[string]string
	activations int
}

func newFakeUserStore(t testing.TB) *fakeUserStore {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	return &fakeUserStore{
		users: map[string]*UserRecord{
			"u1": {
				ID:           "u1",
				Email:        "alice@unsa.ba",
				Username:     "alice",
				PasswordHash: hash,
				Role:         "Student",
				TenantID:     "11111111-1111-1111-1111-111111111111",
				FullName:     "Alice Student",
			},
			"u2": {
				ID:           "u2",
				Email:        "bob@unsa.ba",
				PasswordHash: hash,
				Role:         "Teacher",
				TenantID:     "11111111-1111-1111-1111-111111111111",
				FullName:     "Bob Teacher",
			},
		},
		hashUpdates: map[string]string{},
	}
}

func (s *fakeUserStore) GetByID(_ context.Context, userID string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) SavePendingTwoFactor(_ context.Context, userID, encrypted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorSecretPending = encrypted
	return nil
}

func (s *fakeUserStore) ActivateTwoFactor(_ context.Context, userID, encrypted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorSecretEncrypted = encrypted
	u.TwoFactorSecretPending = ""
	u.TwoFactorEnabled = true
	s.activations++
	return nil
}

func (s *fakeUserStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	s.hashUpdates[userID] = hash
	return nil
}

func (s *fakeUserStore) user(id string) UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *fakeUserStore) remove(id string) {
	s.mu.Lock()
	delete(s.users, id)
	s.mu.Unlock()
}

func (s *fakeUserStore) setFailure(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

var errStoreDown = errors.New("connection refused")

type testEnv struct {
	engine *Engine
	users  *fakeUserStore
	clock  *testClock
	redis  *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestEnv(t testing.TB, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	users := newFakeUserStore(t)
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithUserStore(users).
		WithRedis(rdb).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, clock: clock, redis: mr, rdb: rdb}
}

func (env *testEnv) code(t testing.TB, secret string) string {
	t.Helper()
	m, err := totp.New(totp.Config{})
	if err != nil {
		t.Fatalf("totp.New: %v", err)
	}
	code, err := m.CodeAt(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("CodeAt: %v", err)
	}
	return code
}

// wrongCode returns a well-formed code that does not match secret in the current window.
func (env *testEnv) wrongCode(t testing.TB, secret string) string {
	t.Helper()
	m, err := totp.New(totp.Config{})
	if err != nil {
		t.Fatalf("totp.New: %v", err)
	}
	now := env.clock.Now()
	valid := map[string]bool{}
	for _, off := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := m.CodeAt(secret, now.Add(off))
		if err != nil {
			t.Fatalf("CodeAt: %v", err)
		}
		valid[c] = true
	}
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[candidate] {
			return candidate
		}
	}
	t.Fatal("no wrong code candidate")
	return ""
}

// enroll runs setup and confirmation for userID and returns the plaintext secret.
func (env *testEnv) enroll(t testing.TB, userID string) string {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.EnableTwoFactor(ctx, userID)
	if err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if _, err := env.engine.ConfirmTwoFactorSetup(ctx, userID, env.code(t, setup.Secret)); err != nil {
		t.Fatalf("ConfirmTwoFactorSetup: %v", err)
	}
	return setup.Secret
}
