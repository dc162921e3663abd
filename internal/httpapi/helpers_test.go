package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/password"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/totp"
)

const testPassword = "Test123!"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*identity.UserRecord
}

func (s *memoryUsers) GetByID(_ context.Context, id string) (*identity.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryUsers) GetByEmail(_ context.Context, email string) (*identity.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (s *memoryUsers) SavePendingTwoFactor(_ context.Context, id, enc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.TwoFactorSecretPending = enc
	return nil
}

func (s *memoryUsers) ActivateTwoFactor(_ context.Context, id, enc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.TwoFactorSecretEncrypted = enc
	u.TwoFactorSecretPending = ""
	u.TwoFactorEnabled = true
	return nil
}

func (s *memoryUsers) enabled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].TwoFactorEnabled
}

type apiEnv struct {
	router *gin.Engine
	engine *identity.Engine
	users  *memoryUsers
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	users := &memoryUsers{users: map[string]*identity.UserRecord{
		"s1": {
			ID:           "s1",
			Email:        "niko.nikic@unsa.ba",
			Username:     "student",
			PasswordHash: hash,
			Role:         "Student",
			TenantID:     "11111111-1111-1111-1111-111111111111",
			FullName:     "Niko Nikic",
		},
	}}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := identity.DefaultConfig()
	cfg.Environment = identity.EnvTest
	cfg.JWT.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.TwoFactor.EncryptionKey = []byte("fedcba9876543210fedcba9876543210")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := identity.New().
		WithConfig(cfg).
		WithUserStore(users).
		WithRedis(rdb).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &apiEnv{router: NewRouter(Options{Auth: engine}), engine: engine, users: users}
}

func (env *apiEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "identity-test")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func refreshCookieFrom(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	m, err := totp.New(totp.Config{})
	require.NoError(t, err)
	code, err := m.CodeAt(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a six-digit code outside the accepted window for secret.
func wrongCode(t *testing.T, secret string) string {
	t.Helper()
	m, err := totp.New(totp.Config{})
	require.NoError(t, err)
	now := time.Now()
	valid := map[string]bool{}
	for _, off := range []time.Duration{-60 * time.Second, -30 * time.Second, 0, 30 * time.Second, 60 * time.Second} {
		c, err := m.CodeAt(secret, now.Add(off))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333", "444444", "555555"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no invalid code found")
	return ""
}

// enroll runs enable-2fa and verify-2fa-setup for userID and returns the secret.
func (env *apiEnv) enroll(t *testing.T, userID string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/auth/enable-2fa", map[string]string{"userId": userID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	secret := decode(t, rec)["secret"].(string)

	rec = env.do(t, http.MethodPost, "/api/auth/verify-2fa-setup", map[string]string{"userId": userID, "code": currentCode(t, secret)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return secret
}
