package http

import (
	"github.com/whisper-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/whisper-api/internal/infrastructure/jwt"
	"github.com/whisper-api/internal/infrastructure/smtp"
	"github.com/whisper-api/internal/pkg/hash"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	AccountRepo *dynamo.AccountRepo
	Notifier    smtp.Notifier
	Hasher      hash.Hasher
	JWTProvider *jwtinfra.Provider
}
