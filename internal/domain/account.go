package domain

import "time"

// Account is the single owning document for identity, credential state and
// the embedded inbox. Username/email uniqueness is only meaningful among
// verified accounts: an unverified placeholder row may hold the same
// identifier until someone verifies it.
type Account struct {
	AccountID           string    `json:"id" dynamodbav:"account_id"`
	Username            string    `json:"username" dynamodbav:"username"`
	Email               string    `json:"email" dynamodbav:"email"`
	PasswordHash        string    `json:"-" dynamodbav:"password_hash"`
	IsVerified          bool      `json:"is_verified" dynamodbav:"is_verified"`
	VerifyCode          string    `json:"-" dynamodbav:"verify_code,omitempty"`
	VerifyCodeExpiry    int64     `json:"-" dynamodbav:"verify_code_expiry,omitempty"` // Unix seconds
	IsAcceptingMessages bool      `json:"is_accepting_messages" dynamodbav:"is_accepting_messages"`
	ResetTokenHash      string    `json:"-" dynamodbav:"reset_token_hash,omitempty"`
	ResetTokenExpiry    int64     `json:"-" dynamodbav:"reset_token_expiry,omitempty"` // Unix seconds
	Messages            []Message `json:"-" dynamodbav:"messages"`
	CreatedAt           time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt           time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Message is owned exclusively by its parent Account and has no lifecycle of
// its own: appended at intake, removed individually by the owner.
type Message struct {
	MessageID string    `json:"id" dynamodbav:"message_id"`
	Content   string    `json:"content" dynamodbav:"content"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type VerifyCodeRequest struct {
	Username string `json:"username" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"` // username or email
	Password   string `json:"password" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirm struct {
	Token       string `json:"token" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type AcceptMessagesRequest struct {
	AcceptMessages *bool `json:"accept_messages" validate:"required"`
}
