// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid, invalid, expired, wrong-audience and unsigned tokens

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-jwt-signing-0123456789")

func newVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)
	return v
}

func TestNewJWTVerifier_ShortSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v := newVerifier(t)

	token, err := v.Generate("grafana", time.Hour)
	require.NoError(t, err)

	subject, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "grafana", subject)
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	v := newVerifier(t)

	for _, token := range []string{"", "not-a-jwt-token", "header.payload.signature"} {
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	other, err := NewJWTVerifier([]byte(strings.Repeat("x", 40)))
	require.NoError(t, err)
	token, err := other.Generate("someone", time.Hour)
	require.NoError(t, err)

	_, err = newVerifier(t).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := newVerifier(t)
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Generate("old", time.Hour)
	require.NoError(t, err)

	v.now = time.Now
	_, err = v.Verify(token)
	assert.True(t, errors.Is(err, ErrExpiredToken))
}

func TestJWTVerifier_RequiresClaims(t *testing.T) {
	v := newVerifier(t)
	now := time.Now()

	tests := []struct {
		name   string
		claims jwt.RegisteredClaims
		want   error
	}{
		{"wrong audience", jwt.RegisteredClaims{
			Subject: "s", Issuer: Issuer, Audience: jwt.ClaimStrings{"elsewhere"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, ErrInvalidToken},
		{"wrong issuer", jwt.RegisteredClaims{
			Subject: "s", Issuer: "someone-else", Audience: jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, ErrInvalidToken},
		{"no expiry", jwt.RegisteredClaims{
			Subject: "s", Issuer: Issuer, Audience: jwt.ClaimStrings{Audience},
		}, ErrInvalidToken},
		{"no subject", jwt.RegisteredClaims{
			Issuer: Issuer, Audience: jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}, ErrMissingClaim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString(testSecret)
			require.NoError(t, err)

			_, err = v.Verify(token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJWTVerifier_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject: "s", Issuer: Issuer, Audience: jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newVerifier(t).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
