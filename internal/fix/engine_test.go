package fix

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/config"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

func testFixConfig(workers int) config.FixConfig {
	return config.FixConfig{
		Workers:           workers,
		RetryAttempts:     3,
		RetryBaseDelay:    0,
		TokenRefreshAfter: 45 * time.Minute,
		PollInterval:      time.Millisecond,
		ShutdownGrace:     time.Millisecond,
	}
}

func testEngine(t *testing.T, m *state.Manager, remote Remote, workers int) *Engine {
	t.Helper()
	log := logger.New(&logger.Config{Output: &bytes.Buffer{}, Level: "info"})
	return NewEngine(testFixConfig(workers), "0", m, remote, log)
}

func seedPool(t *testing.T, m *state.Manager) {
	t.Helper()
	for _, u := range testPool() {
		require.NoError(t, m.AppUsers().Create(context.Background(), u))
	}
}

func TestEngine_RunFixesAllPendingItems(t *testing.T) {
	m := setupManager(t)
	seedPool(t, m)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, m.FixItems().Create(ctx, testItem(0)))
	}
	// Already-complete items must not be requeued.
	done := testItem(0)
	done.WorkingStatus = state.StatusComplete
	require.NoError(t, m.FixItems().Create(ctx, done))

	remote := newFakeRemote()
	engine := testEngine(t, m, remote, 2)
	require.NoError(t, engine.Run(ctx))

	items, err := m.FixItems().All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 4)
	for _, item := range items {
		assert.Equal(t, state.StatusComplete, item.WorkingStatus)
	}

	// One copy per pending item, none for the completed one.
	assert.Equal(t, 3, remote.callCount("copy_file"))

	pending, err := m.FixItems().Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_TerminalFailureRecorded(t *testing.T) {
	m := setupManager(t)
	seedPool(t, m)

	ctx := context.Background()
	require.NoError(t, m.FixItems().Create(ctx, testItem(0)))

	remote := newFakeRemote()
	remote.grantFn = func(int, string, string, string) (string, error) {
		return "", transientErr()
	}
	engine := testEngine(t, m, remote, 1)
	require.NoError(t, engine.Run(ctx))

	items, err := m.FixItems().All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, state.StatusCannotAddCollaboration, items[0].WorkingStatus)
	assert.False(t, items[0].CopyFileID.Valid)
}

func TestEngine_NoPendingItemsIsANoOp(t *testing.T) {
	m := setupManager(t)
	seedPool(t, m)

	remote := newFakeRemote()
	engine := testEngine(t, m, remote, 1)
	require.NoError(t, engine.Run(context.Background()))
	assert.Equal(t, 0, remote.callCount("mint_token"))
}

func TestEngine_UnreachableRootIsFatal(t *testing.T) {
	m := setupManager(t)
	seedPool(t, m)
	require.NoError(t, m.FixItems().Create(context.Background(), testItem(0)))

	remote := newFakeRemote()
	remote.folderInfoFn = func(int, string) (*api.ItemInfo, error) {
		return nil, transientErr()
	}
	engine := testEngine(t, m, remote, 1)

	err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, remote.callCount("copy_file"))
}

func TestEngine_EmptyPoolIsFatal(t *testing.T) {
	m := setupManager(t)
	require.NoError(t, m.FixItems().Create(context.Background(), testItem(0)))

	engine := testEngine(t, m, newFakeRemote(), 1)
	err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app user pool is empty")
}

func TestEngine_CancellationDrainsCurrentItem(t *testing.T) {
	m := setupManager(t)
	seedPool(t, m)

	ctx := context.Background()
	require.NoError(t, m.FixItems().Create(ctx, testItem(0)))
	require.NoError(t, m.FixItems().Create(ctx, testItem(0)))

	runCtx, cancel := context.WithCancel(ctx)
	var shared *Shared
	remote := newFakeRemote()
	remote.copyFn = func(call int, _, _, _ string) (string, error) {
		cancel()
		// Wait until the orchestrator has acknowledged the signal so the
		// post-item stage check is deterministic.
		deadline := time.Now().Add(5 * time.Second)
		for !shared.Lifecycle.ShuttingDown() {
			if time.Now().After(deadline) {
				break
			}
			time.Sleep(time.Millisecond)
		}
		return "copy-1", nil
	}

	engine := testEngine(t, m, remote, 1)
	engine.onShared = func(s *Shared) { shared = s }

	require.NoError(t, engine.Run(runCtx))

	items, err := m.FixItems().All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// The in-flight item finished its full protocol and reported its true
	// outcome; the queued one is untouched.
	assert.Equal(t, state.StatusComplete, items[0].WorkingStatus)
	assert.Equal(t, state.StatusBeforeProcess, items[1].WorkingStatus)
	assert.Equal(t, 1, remote.callCount("copy_file"))
}
