package fix

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

func testPolicy() errors.RetryPolicy {
	return errors.RetryPolicy{MaxAttempts: 3, BaseDelay: 0}
}

func runWorkerToCompletion(t *testing.T, shared *Shared, remote Remote) {
	t.Helper()
	w := NewWorker(shared, remote, testPolicy(), time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not finish")
	}
}

func TestWorker_HappyPathCompletesItem(t *testing.T) {
	remote := newFakeRemote()
	remote.listCollabFn = func(_ int, fileID string) ([]api.CollaborationInfo, error) {
		collab := api.CollaborationInfo{ID: "c1", Role: api.RoleEditor}
		collab.AccessibleBy.ID = "7001"
		owner := api.CollaborationInfo{ID: "c2", Role: "owner"}
		owner.AccessibleBy.ID = "501"
		return []api.CollaborationInfo{collab, owner}, nil
	}

	shared := testShared(remote)
	shared.Items.Push(testItem(1))
	runWorkerToCompletion(t, shared, remote)

	cmds := drainCommands(shared)
	require.Len(t, cmds, 1, "exactly one persistence command")
	assert.Equal(t, OpMarkComplete, cmds[0].Op)
	assert.Equal(t, int64(1), cmds[0].Args["id"])
	assert.Equal(t, "copy-1", cmds[0].Args["copy_file_id"])
	assert.Equal(t, "owner@example.com", cmds[0].Args["copy_folder_name"])

	assert.Equal(t, 1, remote.callCount("add_collaboration"))
	assert.Equal(t, 1, remote.callCount("copy_file"))
	// Only the pool collaboration is deleted; the owner's is kept.
	assert.Equal(t, 1, remote.callCount("delete_collaboration"))
}

func TestWorker_GrantExhaustionAbandonsBeforeCopy(t *testing.T) {
	remote := newFakeRemote()
	remote.grantFn = func(int, string, string, string) (string, error) {
		return "", transientErr()
	}

	shared := testShared(remote)
	shared.Items.Push(testItem(1))
	runWorkerToCompletion(t, shared, remote)

	cmds := drainCommands(shared)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpUpdateStatus, cmds[0].Op)
	assert.Equal(t, state.StatusCannotAddCollaboration, cmds[0].Args["status"])

	// Exactly the configured attempt budget, then nothing downstream.
	assert.Equal(t, testPolicy().MaxAttempts, remote.callCount("add_collaboration"))
	assert.Equal(t, 0, remote.callCount("copy_file"))
	assert.Equal(t, 0, remote.callCount("list_collaborations"))
}

func TestWorker_CopyConflictAdoptsExistingFile(t *testing.T) {
	remote := newFakeRemote()
	remote.copyFn = func(call int, _, _, _ string) (string, error) {
		if call <= 2 {
			return "", transientErr()
		}
		return "", copyConflictErr("42")
	}

	shared := testShared(remote)
	shared.Items.Push(testItem(1))
	runWorkerToCompletion(t, shared, remote)

	cmds := drainCommands(shared)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpMarkComplete, cmds[0].Op)
	assert.Equal(t, "42", cmds[0].Args["copy_file_id"])
	assert.Equal(t, 3, remote.callCount("copy_file"))

	retries := 0
	for _, rec := range drainLogs(shared) {
		if rec.Level == "warning" && rec.Message == "remote call failed, retrying" {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestWorker_AlreadyCollaboratorShortCircuits(t *testing.T) {
	remote := newFakeRemote()
	remote.grantFn = func(int, string, string, string) (string, error) {
		return "", alreadyCollaboratorErr()
	}

	shared := testShared(remote)
	shared.Items.Push(testItem(1))
	runWorkerToCompletion(t, shared, remote)

	cmds := drainCommands(shared)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpMarkComplete, cmds[0].Op)
	assert.Equal(t, 1, remote.callCount("add_collaboration"))
	assert.Equal(t, 1, remote.callCount("copy_file"))
}

func TestWorker_RevokeExhaustionLeavesPartialOutcome(t *testing.T) {
	remote := newFakeRemote()
	remote.listCollabFn = func(int, string) ([]api.CollaborationInfo, error) {
		return nil, transientErr()
	}

	shared := testShared(remote)
	shared.Items.Push(testItem(1))
	runWorkerToCompletion(t, shared, remote)

	cmds := drainCommands(shared)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpUpdateStatus, cmds[0].Op)
	assert.Equal(t, state.StatusCannotRemoveCollaboration, cmds[0].Args["status"])
	// The copy happened before the revoke budget ran out.
	assert.Equal(t, 1, remote.callCount("copy_file"))
	assert.Equal(t, testPolicy().MaxAttempts, remote.callCount("list_collaborations"))
}

func TestWorker_ResolverFailureWritesResolveStatus(t *testing.T) {
	remote := newFakeRemote()
	remote.createFn = func(call int, parentID, name string) (*api.ItemInfo, error) {
		if parentID == "0" {
			return &api.ItemInfo{ID: "10", Type: "folder", Name: name}, nil
		}
		return nil, transientErr()
	}

	shared := testShared(remote)
	shared.Items.Push(testItem(1))
	runWorkerToCompletion(t, shared, remote)

	cmds := drainCommands(shared)
	require.Len(t, cmds, 1)
	assert.Equal(t, state.StatusCannotResolveOwnerSubfolder, cmds[0].Args["status"])
	assert.Equal(t, 0, remote.callCount("add_collaboration"))
}

func TestWorker_CredentialFailureSkipsWithoutStatus(t *testing.T) {
	remote := newFakeRemote()
	remote.mintFn = func(int, string) (string, error) {
		return "", transientErr()
	}

	shared := testShared(remote)
	shared.Items.Push(testItem(1))
	shared.Items.Push(testItem(2))
	runWorkerToCompletion(t, shared, remote)

	// No status written: both items stay pending for a future run.
	assert.Empty(t, drainCommands(shared))
	assert.Equal(t, 0, remote.callCount("add_collaboration"))
}

func TestWorker_ShutdownFinishesCurrentItemOnly(t *testing.T) {
	remote := newFakeRemote()
	shared := testShared(remote)
	remote.copyFn = func(call int, _, _, _ string) (string, error) {
		// Shutdown arrives mid-protocol; the current item must still
		// run to completion.
		shared.Lifecycle.BeginShutdown()
		return "copy-1", nil
	}

	shared.Items.Push(testItem(1))
	shared.Items.Push(testItem(2))
	runWorkerToCompletion(t, shared, remote)

	cmds := drainCommands(shared)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpMarkComplete, cmds[0].Op)
	assert.Equal(t, int64(1), cmds[0].Args["id"])

	// The second item is untouched, left for the next run.
	assert.Equal(t, 1, shared.Items.Len())
	assert.Equal(t, 1, remote.callCount("copy_file"))
}

func TestWorker_IdlesDuringPrepare(t *testing.T) {
	remote := newFakeRemote()
	shared := testShared(remote)
	shared.Lifecycle.Set(StagePrepare)
	shared.Items.Push(testItem(1))

	w := NewWorker(shared, remote, testPolicy(), time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, shared.Items.Len(), "worker must not consume during PREPARE")

	shared.Lifecycle.Set(StageWorking)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not finish")
	}
	assert.Equal(t, 0, shared.Items.Len())
}
