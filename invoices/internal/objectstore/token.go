package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid upload token")
	ErrExpiredToken = errors.New("upload token expired")
)

const uploadTokenIssuer = "ecx-invoices"

// UploadClaims authorize one PUT of the object named by Subject.
type UploadClaims struct {
	jwt.RegisteredClaims
}

// TokenPresigner issues upload URLs served by the gateway's upload
// endpoint, authorized by an HS256 token bound to the object key.
type TokenPresigner struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewTokenPresigner creates a presigner for URLs under baseURL, e.g.
// http://localhost:8080 yields http://localhost:8080/uploads/<key>?token=...
func NewTokenPresigner(secret, baseURL string) *TokenPresigner {
	return &TokenPresigner{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// PresignPut implements Presigner.
func (p *TokenPresigner) PresignPut(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	now := p.now()
	claims := UploadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			Issuer:    uploadTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign upload token: %w", err)
	}

	return p.baseURL + "/uploads/" + url.PathEscape(key) + "?token=" + url.QueryEscape(token), nil
}

// Verify checks that token authorizes an upload of key.
func (p *TokenPresigner) Verify(token, key string) error {
	var claims UploadClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	},
		jwt.WithIssuer(uploadTokenIssuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject != key {
		return ErrInvalidToken
	}
	return nil
}
