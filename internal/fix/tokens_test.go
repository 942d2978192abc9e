package fix

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_WarmUpMintsOnePerIdentity(t *testing.T) {
	remote := newFakeRemote()
	logs := &LogQueue{}
	tc := NewTokenCache(remote, testPool(), 45*time.Minute, logs)

	cred, err := tc.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)
	assert.Equal(t, 2, remote.callCount("mint_token"))
	assert.Equal(t, 2, tc.Size())

	// One summary line plus one line per identity.
	assert.Equal(t, 3, logs.Len())

	// Second acquisition hits the cache.
	_, err = tc.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, remote.callCount("mint_token"))
}

func TestTokenCache_FreshCredentialReturnedUnchanged(t *testing.T) {
	remote := newFakeRemote()
	tc := NewTokenCache(remote, testPool(), 45*time.Minute, nil)
	tc.pick = func(int) int { return 0 }

	first, err := tc.Acquire(context.Background())
	require.NoError(t, err)
	second, err := tc.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestTokenCache_StaleCredentialRefreshedForSameIdentity(t *testing.T) {
	remote := newFakeRemote()
	tc := NewTokenCache(remote, testPool(), 45*time.Minute, nil)

	clock := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	tc.now = func() time.Time { return clock }
	tc.pick = func(int) int { return 1 }

	stale, err := tc.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, "7002", stale.UserID)

	clock = clock.Add(46 * time.Minute)
	fresh, err := tc.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "7002", fresh.UserID)
	assert.NotEqual(t, stale.Token, fresh.Token)
	assert.Equal(t, clock, fresh.RetrievedAt)
	// Pool size unchanged: refresh replaces, never grows.
	assert.Equal(t, 2, tc.Size())
}

func TestTokenCache_AgeNeverExceedsTTL(t *testing.T) {
	remote := newFakeRemote()
	ttl := 45 * time.Minute
	tc := NewTokenCache(remote, testPool(), ttl, nil)

	clock := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	tc.now = func() time.Time { return clock }

	for i := 0; i < 50; i++ {
		cred, err := tc.Acquire(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, clock.Sub(cred.RetrievedAt), ttl)
		clock = clock.Add(7 * time.Minute)
	}
}

func TestTokenCache_EmptyPoolFails(t *testing.T) {
	tc := NewTokenCache(newFakeRemote(), nil, 45*time.Minute, nil)
	_, err := tc.Acquire(context.Background())
	require.Error(t, err)
}

func TestTokenCache_MintFailureClearsWarmUp(t *testing.T) {
	remote := newFakeRemote()
	remote.mintFn = func(call int, userID string) (string, error) {
		if call == 2 {
			return "", transientErr()
		}
		return "tok-" + userID, nil
	}
	tc := NewTokenCache(remote, testPool(), 45*time.Minute, nil)

	_, err := tc.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, tc.Size())

	// The next acquisition warms up from scratch.
	remote.mintFn = nil
	_, err = tc.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tc.Size())
}
