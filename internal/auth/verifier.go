package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/ollync/backend-payments/internal/common"
)

// Identity carries the authenticated subject extracted from an access token.
type Identity struct {
	UserID string
	Email  string
}

// Verifier parses and validates access tokens issued by the account service.
type Verifier struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// NewVerifier constructs a Verifier for HS256 access tokens.
func NewVerifier(secret, issuer, audience string, clockSkew time.Duration) (*Verifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Verifier{
		secret: []byte(trimmed),
		validator: TokenValidator{
			Issuer:    strings.TrimSpace(issuer),
			Audience:  strings.TrimSpace(audience),
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithClock overrides the verifier clock.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	if now != nil {
		v.now = now
	}
	return v
}

// VerifyAccessToken parses the token, checks its signature and claims, and returns the identity.
func (v *Verifier) VerifyAccessToken(token string) (Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if v.validator.Algorithm != "" && algorithm != v.validator.Algorithm {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret))
	if err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	subject := strings.TrimSpace(parsed.Subject())
	if subject == "" {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, errors.New("auth: token missing subject"))
	}
	identity := Identity{UserID: subject}
	if raw, ok := parsed.Get("email"); ok {
		if email, ok := raw.(string); ok {
			identity.Email = strings.TrimSpace(email)
		}
	}
	return identity, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
