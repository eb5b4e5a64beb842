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

const testSecret = "test-signing-secret"

func newTestTokenService(t *testing.T, opts ...TokenOption) *TokenService {
	t.Helper()
	s, err := NewTokenService(testSecret, opts...)
	require.NoError(t, err)
	return s
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestNewTokenService(t *testing.T) {
	_, err := NewTokenService("")
	assert.Error(t, err)

	s := newTestTokenService(t)
	assert.Equal(t, DefaultTokenTTL, s.TTL())

	s = newTestTokenService(t, WithTokenTTL(time.Hour))
	assert.Equal(t, time.Hour, s.TTL())

	s = newTestTokenService(t, WithTokenTTL(-time.Hour))
	assert.Equal(t, DefaultTokenTTL, s.TTL(), "non-positive TTL is ignored")
}

func TestTokenService_RoundTrip(t *testing.T) {
	s := newTestTokenService(t)

	token, err := s.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, DefaultTokenIssuer, claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
	require.NotNil(t, claims.IssuedAt)
	assert.Equal(t, DefaultTokenTTL, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestTokenService_IssueEmptyUsername(t *testing.T) {
	s := newTestTokenService(t)
	_, err := s.Issue("")
	assert.Error(t, err)
}

func TestTokenService_WrongSecret(t *testing.T) {
	token, err := newTestTokenService(t).Issue("alice")
	require.NoError(t, err)

	other, err := NewTokenService("another-secret")
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestTokenService(t, WithTokenTTL(time.Hour), WithClock(fixedClock(issued)))

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	_, err = newTestTokenService(t, WithClock(fixedClock(issued.Add(30*time.Minute)))).Verify(token)
	assert.NoError(t, err, "token is still fresh")

	_, err = newTestTokenService(t, WithClock(fixedClock(issued.Add(2*time.Hour)))).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, KindInvalidToken, Kind(err))
}

func TestTokenService_ClockSkew(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := newTestTokenService(t, WithTokenTTL(time.Hour), WithClock(fixedClock(issued))).Issue("alice")
	require.NoError(t, err)

	late := issued.Add(time.Hour + 30*time.Second)
	_, err = newTestTokenService(t, WithClock(fixedClock(late))).Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = newTestTokenService(t, WithClock(fixedClock(late)), WithClockSkew(time.Minute)).Verify(token)
	assert.NoError(t, err)
}

func TestTokenService_Malformed(t *testing.T) {
	s := newTestTokenService(t)
	for _, token := range []string{"", "abc", "a.b.c", "not.a.jwt.token", "....."} {
		_, err := s.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestTokenService_Tampered(t *testing.T) {
	s := newTestTokenService(t)
	token, err := s.Issue("alice")
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		b := []byte(token)
		b[i] ^= 0x01
		_, err := s.Verify(string(b))
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("flipping byte %d was accepted (err = %v)", i, err)
		}
	}
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	s := newTestTokenService(t)
	now := time.Now()
	claims := Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultTokenIssuer,
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = s.Verify(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_ClaimChecks(t *testing.T) {
	s := newTestTokenService(t)
	now := time.Now()

	tests := []struct {
		name   string
		claims Claims
	}{
		{
			name: "wrong issuer",
			claims: Claims{Username: "alice", RegisteredClaims: jwt.RegisteredClaims{
				Issuer: "someone-else", Subject: "alice",
				IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}},
		},
		{
			name: "missing expiry",
			claims: Claims{Username: "alice", RegisteredClaims: jwt.RegisteredClaims{
				Issuer: DefaultTokenIssuer, Subject: "alice", IssuedAt: jwt.NewNumericDate(now),
			}},
		},
		{
			name: "missing username",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Issuer: DefaultTokenIssuer, Subject: "alice",
				IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}},
		},
		{
			name: "subject mismatch",
			claims: Claims{Username: "alice", RegisteredClaims: jwt.RegisteredClaims{
				Issuer: DefaultTokenIssuer, Subject: "mallory",
				IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}},
		},
		{
			name: "issued in the future",
			claims: Claims{Username: "alice", RegisteredClaims: jwt.RegisteredClaims{
				Issuer: DefaultTokenIssuer, Subject: "alice",
				IssuedAt: jwt.NewNumericDate(now.Add(time.Hour)), ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString([]byte(testSecret))
			require.NoError(t, err)
			_, err = s.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
