package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"trustgate/internal/member"
)

// MemberStore is the external credential store the engine authenticates
// against. The engine never writes login state into it; lockout and
// revocation live in the distributed store.
type MemberStore interface {
	GetByEmail(ctx context.Context, email string) (member.Member, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByTel(ctx context.Context, tel string) (bool, error)
	Create(ctx context.Context, m member.Member, roleName string) (int64, error)
}

// Service coordinates the login, logout, session-extension, and signup
// flows across the attempt guard, token authority, revocation registry, and
// credential store.
type Service struct {
	members     MemberStore
	guard       *AttemptGuard
	tokens      *TokenAuthority
	revocations *RevocationRegistry
	policy      PasswordPolicy
	maxAttempts int64
}

func NewService(members MemberStore, guard *AttemptGuard, tokens *TokenAuthority, revocations *RevocationRegistry) *Service {
	return &Service{
		members:     members,
		guard:       guard,
		tokens:      tokens,
		revocations: revocations,
		policy:      DefaultPasswordPolicy(),
		maxAttempts: defaultMaxLoginFailures,
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, policy PasswordPolicy) {
	if maxAttempts > 0 {
		s.maxAttempts = int64(maxAttempts)
	}
	if policy.MinLength > 0 {
		s.policy.MinLength = policy.MinLength
	}
	if policy.AllowedSymbols != "" {
		s.policy.AllowedSymbols = policy.AllowedSymbols
	}
}

// TokenTTLSeconds exposes the issued tokens' validity window so the HTTP
// layer can size cookies to match.
func (s *Service) TokenTTLSeconds() int {
	return int(s.tokens.TTL().Seconds())
}

// Login checks lockout state, verifies the credential, and issues a bearer
// token. The order is fixed: lock check happens before the credential
// comparison, failure recording after it. Store errors propagate and deny
// the attempt.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	locked, err := s.guard.IsLocked(ctx, email)
	if err != nil {
		return "", fmt.Errorf("check lock state: %w", err)
	}
	if locked {
		return "", ErrAccountLocked
	}

	m, err := s.members.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("load member: %w", err)
	}
	if m.IsDeleted() {
		// Deletion is independent of lockout: a deleted account reads as
		// unknown, never as locked.
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return "", s.recordFailure(ctx, email)
	}

	if err := s.guard.Clear(ctx, email); err != nil {
		return "", fmt.Errorf("clear failures: %w", err)
	}

	token, err := s.tokens.Issue(email, m.Roles, m.ID)
	if err != nil {
		return "", err
	}

	return token, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) error {
	count, err := s.guard.RecordFailure(ctx, email)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if count >= s.maxAttempts {
		if err := s.guard.Lock(ctx, email); err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// Logout revokes the presented token. An invalid or expired token is not an
// error here: logging out of nothing succeeds, so a client can always clear
// its session.
func (s *Service) Logout(ctx context.Context, token string) error {
	if _, err := s.tokens.Validate(token); err != nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Authenticate verifies the token cryptographically and against the
// revocation registry. This is the only path by which the engine accepts a
// token.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// ExtendSession trades a valid token for a fresh one carrying the same
// claims, then revokes the old token. The new token exists before the old
// one's revocation is visible to concurrent readers; that window is bounded
// by one store round-trip and accepted.
func (s *Service) ExtendSession(ctx context.Context, token string) (string, error) {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return "", err
	}

	newToken, err := s.tokens.Issue(claims.Subject, claims.Roles, claims.MemberID)
	if err != nil {
		return "", err
	}

	if err := s.revocations.Revoke(ctx, token); err != nil {
		return "", fmt.Errorf("revoke rotated token: %w", err)
	}

	return newToken, nil
}

// RegisterRequest carries a signup. Birth and Tel feed the password policy's
// sensitive-data rule besides being stored on the member.
type RegisterRequest struct {
	Email    string
	Name     string
	Birth    string
	Password string
	Tel      string
}

// Register rejects duplicate identities, validates the candidate password
// against the policy, and persists the new member with the default role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	taken, err := s.members.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check duplicate email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}

	taken, err = s.members.ExistsByTel(ctx, req.Tel)
	if err != nil {
		return fmt.Errorf("check duplicate tel: %w", err)
	}
	if taken {
		return ErrTelTaken
	}

	if err := ValidatePassword(req.Password, req.Birth, req.Tel, s.policy); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.members.Create(ctx, member.Member{
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(req.Name),
		Tel:          req.Tel,
		Birth:        req.Birth,
	}, member.DefaultRoleName)
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}

	return nil
}

// CheckDuplicateEmail reports whether the email is free to sign up with.
func (s *Service) CheckDuplicateEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	taken, err := s.members.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check duplicate email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTelTaken           = errors.New("tel already registered")
)
