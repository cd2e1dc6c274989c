package objectstore

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenFrom(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestTokenPresigner_RoundTrip(t *testing.T) {
	p := NewTokenPresigner("secret", "http://localhost:8080/")

	raw, err := p.PresignPut(context.Background(), "abc123", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://localhost:8080/uploads/abc123?token="))

	assert.NoError(t, p.Verify(tokenFrom(t, raw), "abc123"))
}

func TestTokenPresigner_BoundToKey(t *testing.T) {
	p := NewTokenPresigner("secret", "http://localhost:8080")
	raw, err := p.PresignPut(context.Background(), "abc123", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Verify(tokenFrom(t, raw), "other"), ErrInvalidToken)
}

func TestTokenPresigner_Expired(t *testing.T) {
	p := NewTokenPresigner("secret", "http://localhost:8080")
	issued := time.Now()
	p.now = func() time.Time { return issued }

	raw, err := p.PresignPut(context.Background(), "abc123", time.Minute)
	require.NoError(t, err)

	p.now = func() time.Time { return issued.Add(2 * time.Minute) }
	assert.ErrorIs(t, p.Verify(tokenFrom(t, raw), "abc123"), ErrExpiredToken)
}

func TestTokenPresigner_WrongSecret(t *testing.T) {
	raw, err := NewTokenPresigner("secret", "http://x").PresignPut(context.Background(), "abc123", time.Minute)
	require.NoError(t, err)

	other := NewTokenPresigner("other-secret", "http://x")
	assert.ErrorIs(t, other.Verify(tokenFrom(t, raw), "abc123"), ErrInvalidToken)
}

func TestTokenPresigner_RejectsNoneAlgorithm(t *testing.T) {
	claims := UploadClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "abc123",
		Issuer:    uploadTokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	p := NewTokenPresigner("secret", "http://x")
	assert.ErrorIs(t, p.Verify(token, "abc123"), ErrInvalidToken)
}

func TestTokenPresigner_InvalidKey(t *testing.T) {
	_, err := NewTokenPresigner("secret", "http://x").PresignPut(context.Background(), "../x", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
