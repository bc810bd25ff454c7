package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// stateClaims is the payload of the signed OAuth2 state parameter.
type stateClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// stateSigner issues and verifies the state parameter for the redirect flow.
type stateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newStateSigner(secret []byte, ttl time.Duration) *stateSigner {
	return &stateSigner{secret: secret, ttl: ttl, now: time.Now}
}

// Sign produces a short-lived HMAC-signed state token with a random nonce.
func (s *stateSigner) Sign() (string, error) {
	now := s.now()
	claims := stateClaims{
		Nonce: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify checks the state token signature and expiry.
func (s *stateSigner) Verify(state string) error {
	if state == "" {
		return ErrStateInvalid
	}

	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: expired", ErrStateInvalid)
		}
		return fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}
	if claims.Nonce == "" {
		return ErrStateInvalid
	}
	return nil
}
