/**
 * Credential broker
 *
 * Hands workers a time-boxed access token for one of the pooled app users.
 * The first acquisition mints a token for every user in the pool (bulk
 * warm-up); after that each acquisition picks a cached token uniformly at
 * random and lazily re-mints it when its age has passed the refresh
 * threshold. One pool-wide lock keeps refreshes single-flight, which
 * matters because minting counts against the auth rate limit.
 *
 * Author: box-fixer team
 */

package fix

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// Credential is one cached delegated-identity token.
type Credential struct {
	Token       string
	UserID      string
	RetrievedAt time.Time
}

// TokenCache is the pool-wide credential cache.
type TokenCache struct {
	mu     sync.Mutex
	remote Remote
	users  []*state.AppUser
	ttl    time.Duration
	creds  []*Credential
	logs   *LogQueue

	// injectable clocks for tests
	now  func() time.Time
	pick func(n int) int
}

// NewTokenCache builds an empty cache over the given identity pool.
func NewTokenCache(remote Remote, users []*state.AppUser, ttl time.Duration, logs *LogQueue) *TokenCache {
	return &TokenCache{
		remote: remote,
		users:  users,
		ttl:    ttl,
		logs:   logs,
		now:    time.Now,
		pick:   rand.Intn,
	}
}

// Acquire returns a credential no older than the refresh threshold, minting
// on first use or on expiry. The caller must not cache the result across
// items.
func (tc *TokenCache) Acquire(ctx context.Context) (*Credential, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if len(tc.creds) == 0 {
		if err := tc.warmUp(ctx); err != nil {
			return nil, err
		}
	}

	i := tc.pick(len(tc.creds))
	cred := tc.creds[i]
	if tc.now().Sub(cred.RetrievedAt) <= tc.ttl {
		return cred, nil
	}

	// Stale: discard and mint a fresh token for the same identity.
	fresh, err := tc.mint(ctx, cred.UserID)
	if err != nil {
		return nil, err
	}
	tc.creds[i] = fresh
	return fresh, nil
}

// warmUp mints one credential per pooled identity. Called with the lock
// held.
func (tc *TokenCache) warmUp(ctx context.Context) error {
	if len(tc.users) == 0 {
		return errors.New(errors.TypeConfiguration, "token_cache", errors.NewSimple("app user pool is empty"))
	}

	tc.log("info", "warming up credential cache", "pool_size", len(tc.users))
	for _, user := range tc.users {
		cred, err := tc.mint(ctx, user.BoxUserID)
		if err != nil {
			tc.creds = nil
			return err
		}
		tc.creds = append(tc.creds, cred)
		tc.log("info", "minted credential", "user_id", user.BoxUserID, "login", user.Login)
	}
	return nil
}

func (tc *TokenCache) mint(ctx context.Context, userID string) (*Credential, error) {
	token, err := tc.remote.MintAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Credential{
		Token:       token,
		UserID:      userID,
		RetrievedAt: tc.now(),
	}, nil
}

func (tc *TokenCache) log(level, msg string, fields ...interface{}) {
	if tc.logs != nil {
		tc.logs.Push(LogRecord{Level: level, Message: msg, Fields: fields})
	}
}

// Size returns the number of cached credentials.
func (tc *TokenCache) Size() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.creds)
}
