package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the HMAC variant used for access tokens.
type SigningMethod string

const (
	MethodHS256 SigningMethod = "hs256"
	MethodHS384 SigningMethod = "hs384"
	MethodHS512 SigningMethod = "hs512"
)

const (
	maxLeeway    = time.Minute
	minKeyLength = 32
)

var (
	// ErrInvalidSignature covers bad signatures, unexpected algorithms and unknown key ids.
	ErrInvalidSignature = errors.New("jwt: invalid signature")
	// ErrExpired is returned for tokens past exp (or before nbf) beyond the leeway.
	ErrExpired = errors.New("jwt: token expired")
	// ErrWrongAudience is returned when aud does not contain the configured audience.
	ErrWrongAudience = errors.New("jwt: wrong audience")
	// ErrWrongIssuer is returned when iss differs from the configured issuer.
	ErrWrongIssuer = errors.New("jwt: wrong issuer")
	// ErrMalformed is returned for tokens that cannot be decoded or miss required claims.
	ErrMalformed = errors.New("jwt: malformed token")
)

// Config defines signing and validation parameters.
//
// SigningKey is the raw HMAC key. VerifyKeys optionally maps kid values to older keys
// that are still accepted during rotation; KeyID names the active key in tokens.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	SigningKey    []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager issues and parses access tokens. It is immutable after NewManager.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// Identity is the user snapshot embedded in an access token.
type Identity struct {
	UserID   string
	Email    string
	Role     string
	TenantID string
	FullName string
}

// AccessClaims is the decoded payload of an access token.
type AccessClaims struct {
	UID      string `json:"uid"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tid,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("audience is required")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	method, err := methodFor(cfg.SigningMethod)
	if err != nil {
		return nil, err
	}
	if len(cfg.SigningKey) < minKeyLength {
		return nil, fmt.Errorf("%s requires a key of at least %d bytes", cfg.SigningMethod, minKeyLength)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < minKeyLength {
			return nil, fmt.Errorf("verify key for kid %q is too short", kid)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg, method: method}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// CreateAccess signs an access token for id and returns it with its expiry.
func (j *Manager) CreateAccess(id Identity) (string, time.Time, error) {
	if id.UserID == "" {
		return "", time.Time{}, ErrMalformed
	}

	now := j.config.Now()
	expiresAt := now.Add(j.config.AccessTTL)
	claims := AccessClaims{
		UID:      id.UserID,
		Email:    id.Email,
		Role:     id.Role,
		TenantID: id.TenantID,
		Name:     id.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    j.config.Issuer,
			Audience:  jwt.ClaimStrings{j.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies tokenStr and returns its claims. Errors are one of the
// package sentinels.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithIssuer(j.config.Issuer),
		jwt.WithAudience(j.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" || kid == j.config.KeyID {
		if kid == "" && j.config.KeyID != "" {
			return nil, errors.New("missing kid")
		}
		return j.config.SigningKey, nil
	}
	if key, ok := j.config.VerifyKeys[kid]; ok {
		return key, nil
	}
	return nil, errors.New("unknown kid")
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrWrongAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrWrongIssuer
	default:
		return ErrMalformed
	}
}

func methodFor(m SigningMethod) (jwt.SigningMethod, error) {
	switch SigningMethod(strings.ToLower(string(m))) {
	case MethodHS256:
		return jwt.SigningMethodHS256, nil
	case MethodHS384:
		return jwt.SigningMethodHS384, nil
	case MethodHS512:
		return jwt.SigningMethodHS512, nil
	default:
		return nil, errors.New("unsupported signing method")
	}
}
