package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/whisper-api/internal/domain"
	"github.com/whisper-api/internal/transport/http/middleware"
)

func TestMeHandler_ReturnsEnvelopedSafeAccount(t *testing.T) {
	provider := newTestJWTProvider(t)
	bearer, err := provider.Sign("a1", "alice")
	require.NoError(t, err)

	svc := &mockAccountSvc{}
	svc.On("Get", mock.Anything, "a1").Return(&domain.Account{
		AccountID:           "a1",
		Username:            "alice",
		Email:               "a@x.com",
		PasswordHash:        "bcrypt-hash",
		IsVerified:          true,
		IsAcceptingMessages: true,
	}, nil)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(provider))
		r.Get("/v1/accounts/me", NewAccountHandler(svc).Me)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/me", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AccountEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Account)
	assert.Equal(t, "alice", resp.Account.Username)

	// Secrets never leave the server, whatever shape the envelope takes.
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	account, _ := raw["account"].(map[string]interface{})
	require.NotNil(t, account)
	assert.NotContains(t, account, "password_hash")
	assert.NotContains(t, account, "verify_code")
	assert.NotContains(t, account, "reset_token_hash")
}
