package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/whisper-api/internal/domain"
	"github.com/whisper-api/internal/infrastructure/smtp"
	pkgtoken "github.com/whisper-api/internal/pkg/token"
)

// resetTTL is the password-reset-token validity window. Expiry is enforced
// lazily at consumption; a stale record lingers until the next request
// overwrites it, which is harmless because it is unusable regardless.
const resetTTL = 10 * time.Minute

const (
	fieldResetTokenHash   = "reset_token_hash"
	fieldResetTokenExpiry = "reset_token_expiry"
)

type LoginResult struct {
	Bearer  string
	Account *domain.Account
}

type Service interface {
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, email, newPassword string) error
}

type accountStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	ConsumeResetToken(ctx context.Context, accountID, tokenHash, newPasswordHash string) error
}

type hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hashed string) bool
}

type jwtSigner interface {
	Sign(accountID, username string) (string, error)
}

type service struct {
	repo        accountStore
	hasher      hasher
	notifier    smtp.Notifier
	jwtProvider jwtSigner
	baseURL     string
}

type ServiceDeps struct {
	AccountRepo accountStore
	Hasher      hasher
	Notifier    smtp.Notifier
	JWTProvider jwtSigner
	AppBaseURL  string
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:        deps.AccountRepo,
		hasher:      deps.Hasher,
		notifier:    deps.Notifier,
		jwtProvider: deps.JWTProvider,
		baseURL:     strings.TrimRight(deps.AppBaseURL, "/"),
	}
}

// Login exchanges credentials for a bearer token. Only verified accounts may
// log in; credential failures are indistinct to the caller.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	a, err := s.lookup(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if !s.hasher.Verify(req.Password, a.PasswordHash) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if !a.IsVerified {
		return nil, fmt.Errorf("account not verified: %w", domain.ErrForbidden)
	}
	bearer, err := s.jwtProvider.Sign(a.AccountID, a.Username)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Bearer: bearer, Account: a}, nil
}

func (s *service) lookup(ctx context.Context, identifier string) (*domain.Account, error) {
	if strings.Contains(identifier, "@") {
		return s.repo.GetByEmail(ctx, identifier)
	}
	return s.repo.GetByUsername(ctx, identifier)
}

// RequestPasswordReset issues a fresh reset token. Whether or not the email
// exists the caller gets the same nil result, so responses cannot be used to
// enumerate accounts; on the unknown-email path a token is still generated
// and hashed to keep the two paths close in cost.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	raw, err := pkgtoken.NewResetToken()
	if err != nil {
		return err
	}
	tokenHash, err := s.hasher.Hash(raw)
	if err != nil {
		return err
	}

	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	err = s.repo.Update(ctx, a.AccountID, map[string]interface{}{
		fieldResetTokenHash:   tokenHash,
		fieldResetTokenExpiry: time.Now().Add(resetTTL).Unix(),
	})
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s&email=%s", s.baseURL, raw, url.QueryEscape(email))
	return s.notifier.SendPasswordResetLink(ctx, email, link)
}

// ResetPassword consumes a reset token: the new password hash and the removal
// of both token fields land as one conditional write, so a token can never
// survive its own successful use.
func (s *service) ResetPassword(ctx context.Context, token, email, newPassword string) error {
	if token == "" || email == "" || newPassword == "" {
		return fmt.Errorf("token, email and new password are required: %w", domain.ErrBadRequest)
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("account not found: %w", domain.ErrNotFound)
		}
		return err
	}
	if a.ResetTokenHash == "" || !s.hasher.Verify(token, a.ResetTokenHash) {
		return fmt.Errorf("invalid reset token: %w", domain.ErrUnauthorized)
	}
	if a.ResetTokenExpiry < time.Now().Unix() {
		return fmt.Errorf("reset token expired: %w", domain.ErrUnauthorized)
	}
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.repo.ConsumeResetToken(ctx, a.AccountID, a.ResetTokenHash, newHash)
}
