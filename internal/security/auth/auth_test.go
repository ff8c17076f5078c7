package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	digest, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$2a$"))
	assert.NotContains(t, digest, "correct horse")

	assert.True(t, h.Verify("correct horse", digest))
	assert.False(t, h.Verify("wrong horse", digest))
	assert.False(t, h.Verify("correct horse", "not-a-digest"))

	again, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, digest, again, "salt must differ per hash")
}

func TestPasswordHasherRejectsLongInput(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	long := strings.Repeat("a", 73)

	_, err := h.Hash(long)
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	digest, err := h.Hash(long[:72])
	require.NoError(t, err)
	assert.False(t, h.Verify(long, digest))
}

func TestPasswordHasherVerifiesAcrossCosts(t *testing.T) {
	digest, err := NewPasswordHasher(bcrypt.MinCost).Hash("pw")
	require.NoError(t, err)
	assert.True(t, NewPasswordHasher(bcrypt.MinCost+1).Verify("pw", digest))
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
}

func newManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager("secret", "HS256", "portal", time.Hour)
	require.NoError(t, err)
	return tm
}

func TestTokenIssueVerify(t *testing.T) {
	tm := newManager(t)
	now := time.Unix(1_700_000_000, 0)

	token, exp, err := tm.Issue("a@example.com", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).Unix(), exp.Unix())

	sub, err := tm.Verify(token, now)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sub)

	sub, err = tm.Verify(token, exp.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sub)
}

func TestTokenExpiresAtBoundary(t *testing.T) {
	tm := newManager(t)
	now := time.Unix(1_700_000_000, 0)
	token, exp, err := tm.Issue("a@example.com", now)
	require.NoError(t, err)

	_, err = tm.Verify(token, exp)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tm.Verify(token, exp.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejections(t *testing.T) {
	tm := newManager(t)
	now := time.Unix(1_700_000_000, 0)
	token, _, err := tm.Issue("a@example.com", now)
	require.NoError(t, err)

	other, err := NewTokenManager("other-secret", "HS256", "portal", time.Hour)
	require.NoError(t, err)
	hs512, err := NewTokenManager("secret", "HS512", "portal", time.Hour)
	require.NoError(t, err)
	wrongAlg, _, err := hs512.Issue("a@example.com", now)
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "a@example.com",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "a@example.com",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tamper := []byte(token)
	tamper[len(tamper)-2] ^= 0x01

	cases := map[string]struct {
		tm    *TokenManager
		token string
	}{
		"garbage":          {tm, "not.a.token"},
		"empty":            {tm, ""},
		"other secret":     {other, token},
		"wrong algorithm":  {tm, wrongAlg},
		"missing subject":  {tm, noSub},
		"missing expiry":   {tm, noExp},
		"none algorithm":   {tm, unsigned},
		"tampered payload": {tm, string(tamper)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.tm.Verify(tc.token, now)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewTokenManagerValidation(t *testing.T) {
	_, err := NewTokenManager("secret", "RS256", "portal", time.Hour)
	assert.Error(t, err)
	_, err = NewTokenManager("", "HS256", "portal", time.Hour)
	assert.Error(t, err)
	_, err = NewTokenManager("secret", "HS256", "portal", 0)
	assert.Error(t, err)
	tm, err := NewTokenManager("secret", "hs384", "portal", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, tm.TTL())
}

func TestExtractToken(t *testing.T) {
	for _, h := range []string{"Bearer abc", "bearer abc", "BEARER  abc "} {
		tok, err := ExtractToken(h)
		require.NoError(t, err, h)
		assert.Equal(t, "abc", tok)
	}
	for _, h := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, err := ExtractToken(h)
		assert.Error(t, err, h)
	}
}
