package account

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/whisper-api/internal/domain"
)

// --- mocks ---

type mockAccountStore struct{ mock.Mock }

func (m *mockAccountStore) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetVerifiedByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetVerifiedByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) Put(ctx context.Context, a *domain.Account) error {
	return m.Called(ctx, a).Error(0)
}
func (m *mockAccountStore) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	return m.Called(ctx, accountID, updates).Error(0)
}
func (m *mockAccountStore) MarkVerified(ctx context.Context, accountID, code string) error {
	return m.Called(ctx, accountID, code).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendVerificationCode(ctx context.Context, email, username, code string) error {
	return m.Called(ctx, email, username, code).Error(0)
}
func (m *mockNotifier) SendPasswordResetLink(ctx context.Context, email, link string) error {
	return m.Called(ctx, email, link).Error(0)
}

type fakeHasher struct{}

func (fakeHasher) Hash(secret string) (string, error) { return "hashed:" + secret, nil }
func (fakeHasher) Verify(secret, hashed string) bool  { return hashed == "hashed:"+secret }

func newService(repo *mockAccountStore, notifier *mockNotifier) Service {
	return NewService(ServiceDeps{
		AccountRepo: repo,
		Hasher:      fakeHasher{},
		Notifier:    notifier,
	})
}

var otpRe = regexp.MustCompile(`^\d{6}$`)

// --- Register ---

func TestRegister_UsernameTakenByVerifiedAccount(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetVerifiedByUsername", mock.Anything, "alice").Return(&domain.Account{AccountID: "a1", Username: "alice", IsVerified: true}, nil)

	err := newService(repo, nil).Register(context.Background(), domain.RegisterRequest{
		Username: "alice", Email: "a@x.com", Password: "secret123",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	repo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestRegister_EmailTakenByVerifiedAccount(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetVerifiedByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	repo.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.Account{AccountID: "a1", IsVerified: true}, nil)

	err := newService(repo, nil).Register(context.Background(), domain.RegisterRequest{
		Username: "alice", Email: "a@x.com", Password: "secret123",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_ReclaimsUnverifiedAccountHoldingEmail(t *testing.T) {
	repo := &mockAccountStore{}
	nt := &mockNotifier{}
	repo.On("GetVerifiedByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	repo.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.Account{AccountID: "a1", Username: "stale", IsVerified: false}, nil)
	repo.On("Update", mock.Anything, "a1", mock.MatchedBy(func(u map[string]interface{}) bool {
		code, _ := u[fieldVerifyCode].(string)
		expiry, _ := u[fieldVerifyCodeExpiry].(int64)
		return u[fieldUsername] == "alice" &&
			u[fieldPasswordHash] == "hashed:secret123" &&
			otpRe.MatchString(code) &&
			expiry > time.Now().Unix()
	})).Return(nil)
	nt.On("SendVerificationCode", mock.Anything, "a@x.com", "alice", mock.Anything).Return(nil)

	err := newService(repo, nt).Register(context.Background(), domain.RegisterRequest{
		Username: "alice", Email: "a@x.com", Password: "secret123",
	})

	require.NoError(t, err)
	repo.AssertExpectations(t)
	nt.AssertExpectations(t)
	repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_CreatesNewUnverifiedAccount(t *testing.T) {
	repo := &mockAccountStore{}
	nt := &mockNotifier{}
	repo.On("GetVerifiedByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	repo.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	repo.On("Put", mock.Anything, mock.MatchedBy(func(a *domain.Account) bool {
		return a.AccountID != "" &&
			a.Username == "alice" &&
			a.Email == "a@x.com" &&
			!a.IsVerified &&
			a.IsAcceptingMessages &&
			otpRe.MatchString(a.VerifyCode) &&
			a.VerifyCodeExpiry > time.Now().Unix() &&
			len(a.Messages) == 0
	})).Return(nil)
	nt.On("SendVerificationCode", mock.Anything, "a@x.com", "alice", mock.Anything).Return(nil)

	err := newService(repo, nt).Register(context.Background(), domain.RegisterRequest{
		Username: "alice", Email: "a@x.com", Password: "secret123",
	})

	require.NoError(t, err)
	repo.AssertExpectations(t)
	nt.AssertExpectations(t)
}

func TestRegister_NotifierFailureSurfacesAfterRowWritten(t *testing.T) {
	repo := &mockAccountStore{}
	nt := &mockNotifier{}
	repo.On("GetVerifiedByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	repo.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	repo.On("Put", mock.Anything, mock.Anything).Return(nil)
	nt.On("SendVerificationCode", mock.Anything, "a@x.com", "alice", mock.Anything).
		Return(errors.New("smtp down"))

	err := newService(repo, nt).Register(context.Background(), domain.RegisterRequest{
		Username: "alice", Email: "a@x.com", Password: "secret123",
	})

	// The row is written and the failure is reported — the unverified account
	// stays reclaimable by a retry.
	require.Error(t, err)
	repo.AssertCalled(t, "Put", mock.Anything, mock.Anything)
}

// --- VerifyCode ---

func TestVerifyCode_AccountNotFound(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	err := newService(repo, nil).VerifyCode(context.Background(), "ghost", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyCode_AlreadyVerified(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{AccountID: "a1", IsVerified: true}, nil)

	err := newService(repo, nil).VerifyCode(context.Background(), "alice", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	repo.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_WrongCode(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{
		AccountID:        "a1",
		VerifyCode:       "654321",
		VerifyCodeExpiry: time.Now().Add(30 * time.Minute).Unix(),
	}, nil)

	err := newService(repo, nil).VerifyCode(context.Background(), "alice", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	repo.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_CorrectCodeButExpired(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{
		AccountID:        "a1",
		VerifyCode:       "123456",
		VerifyCodeExpiry: time.Now().Add(-1 * time.Minute).Unix(),
	}, nil)

	err := newService(repo, nil).VerifyCode(context.Background(), "alice", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	repo.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_UsernameAlreadyVerifiedByOtherAccount(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{
		AccountID:        "a2",
		VerifyCode:       "123456",
		VerifyCodeExpiry: time.Now().Add(30 * time.Minute).Unix(),
	}, nil)
	repo.On("GetVerifiedByUsername", mock.Anything, "alice").Return(&domain.Account{AccountID: "a1", IsVerified: true}, nil)

	err := newService(repo, nil).VerifyCode(context.Background(), "alice", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	repo.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
}

// Two unverified sign-ups may race on the same never-before-seen email under
// different usernames. The first to verify claims the email; the second must
// be rejected so no two verified accounts ever share one.
func TestVerifyCode_EmailAlreadyVerifiedByOtherAccount(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetByUsername", mock.Anything, "bob").Return(&domain.Account{
		AccountID:        "a2",
		Username:         "bob",
		Email:            "a@x.com",
		VerifyCode:       "222222",
		VerifyCodeExpiry: time.Now().Add(30 * time.Minute).Unix(),
	}, nil)
	repo.On("GetVerifiedByUsername", mock.Anything, "bob").Return(nil, domain.ErrNotFound)
	repo.On("GetVerifiedByEmail", mock.Anything, "a@x.com").Return(&domain.Account{
		AccountID: "a1", Username: "alice", Email: "a@x.com", IsVerified: true,
	}, nil)

	err := newService(repo, nil).VerifyCode(context.Background(), "bob", "222222")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	repo.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_HappyPath(t *testing.T) {
	repo := &mockAccountStore{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{
		AccountID:        "a1",
		Email:            "a@x.com",
		VerifyCode:       "123456",
		VerifyCodeExpiry: time.Now().Add(30 * time.Minute).Unix(),
	}, nil)
	repo.On("GetVerifiedByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	repo.On("GetVerifiedByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	repo.On("MarkVerified", mock.Anything, "a1", "123456").Return(nil)

	err := newService(repo, nil).VerifyCode(context.Background(), "alice", "123456")

	require.NoError(t, err)
	repo.AssertExpectations(t)
}
