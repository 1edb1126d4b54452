// Package identity verifies and issues HS256 bearer tokens carrying the caller id
// and role.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Sentinel errors for authentication failures
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Role grants access to privileged operations
type Role string

const (
	RoleDelegator Role = "delegator"
	RoleOperator  Role = "operator"
)

// Caller is an authenticated party
type Caller struct {
	ID   string
	Role Role
}

// Operator reports whether the caller may run governance operations
func (c Caller) Operator() bool {
	return c.Role == RoleOperator
}

// Claims is the token payload
type Claims struct {
	Role Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens
// ------------------------------------------------
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier for tokens signed with secret by issuer. An empty
// issuer accepts any issuer.
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// Verify parses a raw token and returns its caller
func (v *Verifier) Verify(raw string) (Caller, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Caller{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Caller{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}

	role := claims.Role
	if role == "" {
		role = RoleDelegator
	}
	return Caller{ID: claims.Subject, Role: role}, nil
}

// Authenticate verifies the bearer token of a request
func (v *Verifier) Authenticate(r *http.Request) (Caller, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Caller{}, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(raw))
}

// Signer issues tokens, for operator tooling and tests
// ------------------------------------------------
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SignerOption configures the Signer
type SignerOption func(*Signer)

// WithNow injects the time source used for iat and exp
func WithNow(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// NewSigner creates a signer issuing tokens valid for ttl
func NewSigner(secret []byte, issuer string, ttl time.Duration, opts ...SignerOption) *Signer {
	s := &Signer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign issues a token for the caller
func (s *Signer) Sign(c Caller) (string, error) {
	now := s.now()
	claims := Claims{
		Role: c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Context helpers for the authenticated caller
type ctxKeyCaller struct{}

// WithCaller stores the caller in the context
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKeyCaller{}, c)
}

// FromContext returns the caller stored in the context
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKeyCaller{}).(Caller)
	return c, ok
}
