package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whisper-api/internal/domain"
	"github.com/whisper-api/internal/infrastructure/smtp"
	"github.com/whisper-api/internal/pkg/id"
	pkgtoken "github.com/whisper-api/internal/pkg/token"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldUsername         = "username"
	fieldPasswordHash     = "password_hash"
	fieldVerifyCode       = "verify_code"
	fieldVerifyCodeExpiry = "verify_code_expiry"
)

// otpTTL is the verification-code validity window.
const otpTTL = time.Hour

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) error
	VerifyCode(ctx context.Context, username, code string) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

type accountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetVerifiedByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetVerifiedByEmail(ctx context.Context, email string) (*domain.Account, error)
	Put(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	MarkVerified(ctx context.Context, accountID, code string) error
}

type hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hashed string) bool
}

type service struct {
	repo     accountStore
	hasher   hasher
	notifier smtp.Notifier
}

type ServiceDeps struct {
	AccountRepo accountStore
	Hasher      hasher
	Notifier    smtp.Notifier
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:     deps.AccountRepo,
		hasher:   deps.Hasher,
		notifier: deps.Notifier,
	}
}

// Register runs the sign-up state machine. A verified username always wins as
// the rejection reason; an unverified row holding the email is reclaimed in
// place so an abandoned sign-up never blocks a retry. The account row is
// written before the notification is dispatched — if the email fails the
// caller sees an error, but the unverified row stays and a re-registration
// takes the reclaim path.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) error {
	if _, err := s.repo.GetVerifiedByUsername(ctx, req.Username); err == nil {
		return fmt.Errorf("username already taken: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	code, err := pkgtoken.NewOTP()
	if err != nil {
		return err
	}
	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return err
	}
	expiry := time.Now().Add(otpTTL).Unix()

	existing, err := s.repo.GetByEmail(ctx, req.Email)
	switch {
	case err == nil && existing.IsVerified:
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	case err == nil:
		// Unverified placeholder — reclaim it with the new identity and a fresh code.
		err = s.repo.Update(ctx, existing.AccountID, map[string]interface{}{
			fieldUsername:         req.Username,
			fieldPasswordHash:     passwordHash,
			fieldVerifyCode:       code,
			fieldVerifyCodeExpiry: expiry,
		})
		if err != nil {
			return err
		}
	case errors.Is(err, domain.ErrNotFound):
		now := time.Now().UTC()
		a := &domain.Account{
			AccountID:           id.New(),
			Username:            req.Username,
			Email:               req.Email,
			PasswordHash:        passwordHash,
			IsVerified:          false,
			VerifyCode:          code,
			VerifyCodeExpiry:    expiry,
			IsAcceptingMessages: true,
			Messages:            []domain.Message{},
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.repo.Put(ctx, a); err != nil {
			return err
		}
	default:
		return err
	}

	return s.notifier.SendVerificationCode(ctx, req.Email, req.Username, code)
}

// VerifyCode consumes an outstanding verification code. The transition to
// verified is terminal; a second attempt against a verified account is
// rejected outright rather than re-checking a code that was already cleared.
func (s *service) VerifyCode(ctx context.Context, username, code string) error {
	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("account not found: %w", domain.ErrNotFound)
		}
		return err
	}
	if a.IsVerified {
		return fmt.Errorf("account already verified: %w", domain.ErrConflict)
	}
	// Plain equality is fine here: the OTP is low-entropy and short-lived,
	// unlike the reset token which only ever exists hashed.
	if a.VerifyCode == "" || a.VerifyCode != code {
		return fmt.Errorf("invalid verification code: %w", domain.ErrUnauthorized)
	}
	if a.VerifyCodeExpiry < time.Now().Unix() {
		return fmt.Errorf("verification code expired: %w", domain.ErrUnauthorized)
	}

	// The GSIs cannot enforce uniqueness, so both identity claims are
	// re-checked right before the flag flips. Two unverified rows may share a
	// username or an email; only one can ever verify each.
	if other, err := s.repo.GetVerifiedByUsername(ctx, username); err == nil && other.AccountID != a.AccountID {
		return fmt.Errorf("username already taken: %w", domain.ErrConflict)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if other, err := s.repo.GetVerifiedByEmail(ctx, a.Email); err == nil && other.AccountID != a.AccountID {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	return s.repo.MarkVerified(ctx, a.AccountID, code)
}

func (s *service) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.repo.Get(ctx, accountID)
}
