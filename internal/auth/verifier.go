// Package auth decides whether an inbound connection may proceed, and binds
// it to a subject identity. Two credential formats are accepted: an
// externally-issued identity token verified against the provider's JWKS, and
// a locally-issued HMAC session token. Clients do not need to know which kind
// they hold; verification tries the external scheme first and falls back.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	SchemeIDToken = "id_token"
	SchemeSession = "session"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Identity is the subject bound to an admitted connection.
type Identity struct {
	Subject string
	Email   string
	Scheme  string
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	// externalKeys resolves signing keys for externally-issued id tokens.
	// nil disables the external scheme entirely.
	externalKeys  jwt.Keyfunc
	sessionSecret []byte
	logger        *slog.Logger
}

func NewVerifier(logger *slog.Logger, sessionSecret string, externalKeys jwt.Keyfunc) *Verifier {
	return &Verifier{
		externalKeys:  externalKeys,
		sessionSecret: []byte(sessionSecret),
		logger:        logger.With(slog.String("component", "admission_gate")),
	}
}

// NewVerifierFromJWKS builds a Verifier whose external scheme fetches keys
// from the identity provider's JWKS endpoint. An empty URL leaves the
// external scheme disabled; session tokens still verify.
func NewVerifierFromJWKS(ctx context.Context, logger *slog.Logger, sessionSecret, jwksURL string) (*Verifier, error) {
	if jwksURL == "" {
		return NewVerifier(logger, sessionSecret, nil), nil
	}
	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}
	return NewVerifier(logger, sessionSecret, keys.Keyfunc), nil
}

// Verify admits or refuses a credential. The first scheme that verifies
// wins. On refusal the returned error is one of ErrMissingCredential or
// ErrInvalidCredential.
func (v *Verifier) Verify(credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrMissingCredential
	}

	if v.externalKeys != nil {
		if identity, err := v.verifyIDToken(credential); err == nil {
			return identity, nil
		} else {
			v.logger.Debug("External id token verification failed, trying session scheme", slog.Any("error", err))
		}
	}

	identity, err := v.verifySession(credential)
	if err != nil {
		v.logger.Warn("Credential refused", slog.Any("error", err))
		return Identity{}, ErrInvalidCredential
	}
	return identity, nil
}

func (v *Verifier) verifyIDToken(credential string) (Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, v.externalKeys,
		// Identity providers sign asymmetrically; never accept HMAC here.
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
	)
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, errors.New("id token missing 'sub' claim")
	}
	return Identity{Subject: claims.Subject, Email: claims.Email, Scheme: SchemeIDToken}, nil
}

func (v *Verifier) verifySession(credential string) (Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.sessionSecret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, errors.New("session token missing 'sub' claim")
	}
	return Identity{Subject: claims.Subject, Email: claims.Email, Scheme: SchemeSession}, nil
}
