package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/nkiryanov/snapgram/internal/apperrors"
)

const googleKeysTimeout = 10 * time.Second

// Identity asserted by a verified Google credential
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Picture       string
}

// Validates ID token signature, issuer, expiry and audience
type idTokenValidator func(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)

// Google ID token verifier
// Public keys are fetched from Google and cached by idtoken package
type GoogleVerifier struct {
	audience string
	validate idTokenValidator
}

func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, fmt.Errorf("google client id is empty: %w", apperrors.ErrNotConfigured)
	}

	v, err := idtoken.NewValidator(ctx, option.WithHTTPClient(&http.Client{Timeout: googleKeysTimeout}))
	if err != nil {
		return nil, fmt.Errorf("error while creating google token validator. Err: %w", err)
	}

	return &GoogleVerifier{audience: clientID, validate: v.Validate}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (GoogleIdentity, error) {
	if credential == "" {
		return GoogleIdentity{}, apperrors.ErrTokenMissing
	}

	payload, err := v.validate(ctx, credential, v.audience)
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("%w: %w", apperrors.ErrExternalCredential, err)
	}

	identity := GoogleIdentity{Subject: payload.Subject}
	identity.Email, _ = payload.Claims["email"].(string)
	identity.EmailVerified, _ = payload.Claims["email_verified"].(bool)
	identity.Picture, _ = payload.Claims["picture"].(string)

	if identity.Email == "" {
		return GoogleIdentity{}, fmt.Errorf("%w: %w", apperrors.ErrExternalCredential, errors.New("credential has no email"))
	}
	if !identity.EmailVerified {
		return GoogleIdentity{}, fmt.Errorf("%w: %w", apperrors.ErrExternalCredential, errors.New("email is not verified"))
	}

	return identity, nil
}
