package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 10 * time.Minute

// Token validation failure reasons. ErrInvalidToken is the umbrella callers
// should match on; the specific sentinels wrap it for diagnostics.
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenMalformed    = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenExpired      = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenBadSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
	ErrTokenMissingClaim = fmt.Errorf("%w: missing claim", ErrInvalidToken)
	ErrTokenRevoked      = fmt.Errorf("%w: revoked", ErrInvalidToken)
)

// Claims are the verified contents of a bearer token.
type Claims struct {
	Subject   string
	Roles     []string
	MemberID  int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the wire shape. MemberID is a pointer so that a token
// signed without the claim is distinguishable from memberId 0.
type tokenClaims struct {
	jwt.RegisteredClaims
	Roles    []string `json:"roles"`
	MemberID *int64   `json:"memberId"`
}

// TokenAuthority signs and verifies bearer tokens with a symmetric secret
// (HMAC-SHA512). The clock is injectable for tests.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenAuthority(secret string, ttl time.Duration) *TokenAuthority {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenAuthority{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for issuance and validation.
func (a *TokenAuthority) WithClock(now func() time.Time) *TokenAuthority {
	a.now = now
	return a
}

// TTL returns the configured validity window for newly issued tokens.
func (a *TokenAuthority) TTL() time.Duration {
	return a.ttl
}

// Issue signs a token asserting the identity, its roles, and its member id.
func (a *TokenAuthority) Issue(identity string, roles []string, memberID int64) (string, error) {
	now := a.now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Roles:    roles,
		MemberID: &memberID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Validate verifies the signature and expiry and requires the memberId claim.
// Expected failure modes come back as wrapped ErrInvalidToken sentinels, not
// panics or opaque library errors.
func (a *TokenAuthority) Validate(token string) (*Claims, error) {
	claims := &tokenClaims{}
	parsed, err := a.parser().ParseWithClaims(token, claims, a.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.MemberID == nil {
		return nil, ErrTokenMissingClaim
	}

	out := &Claims{
		Subject:  claims.Subject,
		Roles:    claims.Roles,
		MemberID: *claims.MemberID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, nil
}

// RemainingTTL returns how long the token stays valid, zero if it already
// expired or cannot be read. The signature is still verified so an attacker
// cannot inflate a revocation window with a forged expiry.
func (a *TokenAuthority) RemainingTTL(token string) time.Duration {
	claims := &tokenClaims{}
	if _, err := a.parser(jwt.WithoutClaimsValidation()).ParseWithClaims(token, claims, a.keyFunc); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}

	remaining := claims.ExpiresAt.Time.Sub(a.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (a *TokenAuthority) parser(opts ...jwt.ParserOption) *jwt.Parser {
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(a.now),
	}, opts...)
	return jwt.NewParser(opts...)
}

func (a *TokenAuthority) keyFunc(*jwt.Token) (any, error) {
	return a.secret, nil
}
