package fix

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

func setupManager(t *testing.T) *state.Manager {
	t.Helper()
	m, err := state.NewManager(state.DBConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		MaxIdleTime:  5 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	return m
}

func createdItem(t *testing.T, m *state.Manager) *state.FixItem {
	t.Helper()
	item := testItem(0)
	require.NoError(t, m.FixItems().Create(context.Background(), item))
	items, err := m.FixItems().All(context.Background())
	require.NoError(t, err)
	return items[len(items)-1]
}

// runWriter drains whatever is queued and returns once the queue is empty.
func runWriter(t *testing.T, shared *Shared, m *state.Manager) {
	t.Helper()
	shared.Lifecycle.Set(StageWorkersStopped)
	w := NewWriter(shared, m.DB(), m.FixItems(), time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not drain")
	}
}

func TestWriter_AppliesStatusCommand(t *testing.T) {
	m := setupManager(t)
	item := createdItem(t, m)

	shared := testShared(newFakeRemote())
	shared.Commands.Push(NewStatusCommand(item.ID, state.StatusCannotCopy))
	runWriter(t, shared, m)

	got, err := m.FixItems().Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCannotCopy, got.WorkingStatus)
}

func TestWriter_AppliesCompleteCommand(t *testing.T) {
	m := setupManager(t)
	item := createdItem(t, m)

	shared := testShared(newFakeRemote())
	shared.Commands.Push(NewCompleteCommand(item.ID, "42", "20", "owner@example.com"))
	runWriter(t, shared, m)

	got, err := m.FixItems().Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusComplete, got.WorkingStatus)
	assert.Equal(t, "42", got.CopyFileID.String)
	assert.Equal(t, "20", got.CopyFolderID.String)
	assert.Equal(t, "owner@example.com", got.CopyFolderName.String)
}

func TestWriter_MalformedCommandLoggedAndDiscarded(t *testing.T) {
	m := setupManager(t)
	item := createdItem(t, m)

	shared := testShared(newFakeRemote())
	shared.Commands.Push(Command{Table: TableFixItems, Op: OpUpdateStatus,
		Args: map[string]interface{}{"id": item.ID}}) // missing status
	shared.Commands.Push(Command{Table: "nonsense", Op: OpUpdateStatus,
		Args: map[string]interface{}{"id": item.ID, "status": state.StatusComplete}})
	shared.Commands.Push(Command{Table: TableFixItems, Op: "truncate",
		Args: map[string]interface{}{"id": item.ID}})
	// A good command behind the bad ones still lands.
	shared.Commands.Push(NewStatusCommand(item.ID, state.StatusCannotAddCollaboration))
	runWriter(t, shared, m)

	got, err := m.FixItems().Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCannotAddCollaboration, got.WorkingStatus)

	errorLogs := 0
	for _, rec := range drainLogs(shared) {
		if rec.Level == "error" {
			errorLogs++
		}
	}
	assert.Equal(t, 3, errorLogs)
}

func TestWriter_UnknownItemLoggedAndDiscarded(t *testing.T) {
	m := setupManager(t)

	shared := testShared(newFakeRemote())
	shared.Commands.Push(NewStatusCommand(9999, state.StatusComplete))
	runWriter(t, shared, m)

	logs := drainLogs(shared)
	require.Len(t, logs, 1)
	assert.Equal(t, "error", logs[0].Level)
}

func TestWriter_IdlesDuringPrepare(t *testing.T) {
	m := setupManager(t)
	item := createdItem(t, m)

	shared := testShared(newFakeRemote())
	shared.Lifecycle.Set(StagePrepare)
	shared.Commands.Push(NewStatusCommand(item.ID, state.StatusComplete))

	w := NewWriter(shared, m.DB(), m.FixItems(), time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, shared.Commands.Len(), "writer must not consume during PREPARE")

	shared.Lifecycle.Set(StageWorkersStopped)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not exit after drain")
	}
	assert.Equal(t, 0, shared.Commands.Len())
}
