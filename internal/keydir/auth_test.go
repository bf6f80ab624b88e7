package keydir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_IssueVerify(t *testing.T) {
	tokens, err := NewTokens([]byte("0123456789abcdef"), time.Minute)
	require.NoError(t, err)

	tok, exp, err := tokens.Issue("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	user, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.String())
}

func TestTokens_RejectsShortSecret(t *testing.T) {
	_, err := NewTokens([]byte("short"), time.Minute)
	require.Error(t, err)
}

func TestTokens_RejectsForeignSignature(t *testing.T) {
	a, err := NewTokens([]byte("0123456789abcdef"), time.Minute)
	require.NoError(t, err)
	b, err := NewTokens([]byte("fedcba9876543210"), time.Minute)
	require.NoError(t, err)

	tok, _, err := a.Issue("alice")
	require.NoError(t, err)
	_, err = b.Verify(tok)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestTokens_RejectsExpired(t *testing.T) {
	tokens, err := NewTokens([]byte("0123456789abcdef"), time.Minute)
	require.NoError(t, err)

	issued := time.Now()
	tokens.now = func() time.Time { return issued }
	tok, _, err := tokens.Issue("alice")
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.Verify(tok)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestLimiter_PerClientBuckets(t *testing.T) {
	l := newLimiter(1, 2, time.Minute)

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"), "burst exhausted")
	assert.True(t, l.allow("b"), "other clients have their own bucket")
}
