/**
 * Fix worker
 *
 * Pulls one item at a time from the work queue and runs the per-item
 * protocol: acquire a delegated credential, resolve the destination
 * folders, grant the delegated identity editor access to the restored file
 * (impersonating the owner), copy the file into the owner's subfolder with
 * the delegated token, then revoke every pool collaboration. Grant, copy
 * and revoke each run under the shared bounded-retry policy; exhausting it
 * marks the item with the matching terminal status and moves on. "Already
 * a collaborator" and "name in use" responses short-circuit to success.
 *
 * Status writes go through the command queue; the worker never touches the
 * database.
 *
 * Author: box-fixer team
 */

package fix

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// Worker processes queue items until the queue empties or shutdown starts.
type Worker struct {
	id     string
	shared *Shared
	remote Remote
	policy errors.RetryPolicy
	poll   time.Duration
}

// NewWorker builds one pool worker with a short random tag for log
// correlation.
func NewWorker(shared *Shared, remote Remote, policy errors.RetryPolicy, poll time.Duration) *Worker {
	return &Worker{
		id:     uuid.NewString()[:8],
		shared: shared,
		remote: remote,
		policy: policy,
		poll:   poll,
	}
}

// Run is the worker loop. During PREPARE it idles without consuming; in
// WORKING it processes items one at a time; an empty queue or a shutdown
// stage ends the loop. The current item always finishes its full protocol
// before the next stage check.
func (w *Worker) Run(ctx context.Context) {
	for {
		switch stage := w.shared.Lifecycle.Stage(); {
		case stage == StagePrepare:
			sleepPoll(ctx, w.poll)

		case stage == StageWorking:
			item, ok := w.shared.Items.TryPop()
			if !ok {
				w.logf("info", "work queue empty, worker done")
				return
			}
			w.processItem(ctx, item)

		default:
			w.logf("info", "shutdown observed, worker done", "stage", stage.String())
			return
		}
	}
}

func (w *Worker) processItem(ctx context.Context, item *state.FixItem) {
	cred, err := w.shared.Tokens.Acquire(ctx)
	if err != nil {
		// No status write: the item stays pending for a future run.
		w.logf("warning", "credential acquisition failed, skipping item",
			"item_id", item.ID, "error", err.Error())
		return
	}

	if _, err := w.shared.Dirs.ResolveUploadFolder(ctx, item.UploaderEmail); err != nil {
		w.abandon(item, state.StatusCannotResolveUploadFolder, "resolve upload folder", err)
		return
	}

	destFolderID, err := w.shared.Dirs.ResolveOwnerSubfolder(ctx, item.UploaderEmail, item.OwnerLogin)
	if err != nil {
		w.abandon(item, state.StatusCannotResolveOwnerSubfolder, "resolve owner subfolder", err)
		return
	}

	if err := w.grant(ctx, item, cred); err != nil {
		w.abandon(item, state.StatusCannotAddCollaboration, "grant", err)
		return
	}

	copyFileID, err := w.copy(ctx, item, cred, destFolderID)
	if err != nil {
		w.abandon(item, state.StatusCannotCopy, "copy", err)
		return
	}

	if err := w.revoke(ctx, item); err != nil {
		// The copy already succeeded; the leftover collaborations are
		// surfaced for operator follow-up, not rolled back.
		w.abandon(item, state.StatusCannotRemoveCollaboration, "revoke", err)
		return
	}

	w.shared.Commands.Push(NewCompleteCommand(item.ID, copyFileID, destFolderID, item.OwnerLogin))
	w.logf("info", "item complete",
		"item_id", item.ID, "file_name", item.FileName, "copy_file_id", copyFileID)
}

// grant adds the delegated identity as an editor on the restored file,
// acting as the owner. An existing collaboration counts as success.
func (w *Worker) grant(ctx context.Context, item *state.FixItem, cred *Credential) error {
	return errors.RetryLinear(ctx, w.policy, func(attempt int) error {
		_, err := w.remote.AddCollaboration(ctx,
			item.OwnerUserID, item.RestoredFileID, cred.UserID, api.RoleEditor)
		if api.IsAlreadyCollaborator(err) {
			return nil
		}
		return err
	}, w.retryLogger(item, "grant"))
}

// copy copies the restored file with the delegated token. A name conflict
// adopts the existing file id as the result.
func (w *Worker) copy(ctx context.Context, item *state.FixItem, cred *Credential, destFolderID string) (string, error) {
	var copyFileID string
	err := errors.RetryLinear(ctx, w.policy, func(attempt int) error {
		id, err := w.remote.CopyFile(ctx, cred.Token, item.RestoredFileID, destFolderID)
		if err != nil {
			if existing := api.ConflictID(err); existing != "" {
				copyFileID = existing
				return nil
			}
			return err
		}
		copyFileID = id
		return nil
	}, w.retryLogger(item, "copy"))
	return copyFileID, err
}

// revoke deletes every collaboration on the restored file whose principal
// belongs to the delegated pool. Retried as one unit.
func (w *Worker) revoke(ctx context.Context, item *state.FixItem) error {
	return errors.RetryLinear(ctx, w.policy, func(attempt int) error {
		collabs, err := w.remote.ListCollaborations(ctx, item.OwnerUserID, item.RestoredFileID)
		if err != nil {
			return err
		}
		for _, collab := range collabs {
			if !w.shared.InPool(collab.AccessibleBy.ID) {
				continue
			}
			if err := w.remote.DeleteCollaboration(ctx, item.OwnerUserID, collab.ID); err != nil {
				return err
			}
		}
		return nil
	}, w.retryLogger(item, "revoke"))
}

// abandon records the terminal status for this run and logs at critical.
func (w *Worker) abandon(item *state.FixItem, status state.WorkingStatus, step string, err error) {
	w.shared.Commands.Push(NewStatusCommand(item.ID, status))
	w.logf("critical", "item abandoned",
		"item_id", item.ID, "file_name", item.FileName,
		"step", step, "status", status.String(), "error", err.Error())
}

func (w *Worker) retryLogger(item *state.FixItem, step string) func(int, error) {
	return func(attempt int, err error) {
		w.logf("warning", "remote call failed, retrying",
			"item_id", item.ID, "step", step,
			"attempt", attempt, "error", err.Error())
	}
}

func (w *Worker) logf(level, msg string, fields ...interface{}) {
	fields = append(fields, "worker", w.id)
	w.shared.Log(level, msg, fields...)
}
