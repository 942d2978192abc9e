/**
 * Persistence writer
 *
 * The only component that mutates the database during a run. Workers push
 * {table, op, args} commands and move on; the writer drains the queue and
 * applies each command in its own transaction. A command that fails or is
 * missing a field is logged and discarded so one bad write never stalls
 * the rest of the run.
 *
 * Author: box-fixer team
 */

package fix

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

const (
	TableFixItems = "fix_items"

	OpUpdateStatus = "update_status"
	OpMarkComplete = "mark_complete"
)

// Command is one persistence instruction. Args carries op-specific values;
// the writer validates them and discards malformed commands.
type Command struct {
	Table string
	Op    string
	Args  map[string]interface{}
}

// NewStatusCommand records a working-status transition for one item.
func NewStatusCommand(itemID int64, status state.WorkingStatus) Command {
	return Command{
		Table: TableFixItems,
		Op:    OpUpdateStatus,
		Args: map[string]interface{}{
			"id":     itemID,
			"status": status,
		},
	}
}

// NewCompleteCommand records a successful copy with its destination fields.
func NewCompleteCommand(itemID int64, copyFileID, copyFolderID, copyFolderName string) Command {
	return Command{
		Table: TableFixItems,
		Op:    OpMarkComplete,
		Args: map[string]interface{}{
			"id":               itemID,
			"copy_file_id":     copyFileID,
			"copy_folder_id":   copyFolderID,
			"copy_folder_name": copyFolderName,
		},
	}
}

// Writer drains the command queue into the store.
type Writer struct {
	shared *Shared
	db     *state.DB
	items  *state.FixItemStore
	poll   time.Duration
	now    func() time.Time
}

// NewWriter builds the single persistence writer for a run.
func NewWriter(shared *Shared, db *state.DB, items *state.FixItemStore, poll time.Duration) *Writer {
	return &Writer{
		shared: shared,
		db:     db,
		items:  items,
		poll:   poll,
		now:    time.Now,
	}
}

// Run loops until the orchestrator reports the workers stopped and the
// queue is drained. During PREPARE the writer idles without consuming.
func (w *Writer) Run(ctx context.Context) {
	for {
		stage := w.shared.Lifecycle.Stage()
		if stage == StagePrepare {
			sleepPoll(ctx, w.poll)
			continue
		}

		cmd, ok := w.shared.Commands.TryPop()
		if !ok {
			if stage >= StageWorkersStopped {
				return
			}
			sleepPoll(ctx, w.poll)
			continue
		}

		w.apply(ctx, cmd)
	}
}

// apply executes one command in its own transaction. Failures are reported
// to the log queue and swallowed.
func (w *Writer) apply(ctx context.Context, cmd Command) {
	err := w.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return w.dispatch(ctx, tx, cmd)
	})
	if err != nil {
		w.shared.Log("error", "persistence command failed",
			"table", cmd.Table, "op", cmd.Op, "error", err.Error())
	}
}

func (w *Writer) dispatch(ctx context.Context, tx *sqlx.Tx, cmd Command) error {
	if cmd.Table != TableFixItems {
		return malformed("unknown table " + cmd.Table)
	}

	id, ok := argInt64(cmd.Args, "id")
	if !ok {
		return malformed("missing item id")
	}

	switch cmd.Op {
	case OpUpdateStatus:
		status, ok := cmd.Args["status"].(state.WorkingStatus)
		if !ok {
			return malformed("missing status")
		}
		return w.items.UpdateStatusTx(ctx, tx, id, status, w.now())

	case OpMarkComplete:
		fileID, okFile := argString(cmd.Args, "copy_file_id")
		folderID, okFolder := argString(cmd.Args, "copy_folder_id")
		folderName, okName := argString(cmd.Args, "copy_folder_name")
		if !okFile || !okFolder || !okName {
			return malformed("missing copy fields")
		}
		return w.items.MarkCompleteTx(ctx, tx, id, fileID, folderID, folderName, w.now())

	default:
		return malformed("unknown op " + cmd.Op)
	}
}

type malformedCommand string

func (m malformedCommand) Error() string { return "malformed command: " + string(m) }

func malformed(reason string) error { return malformedCommand(reason) }

func argInt64(args map[string]interface{}, key string) (int64, bool) {
	v, ok := args[key].(int64)
	return v, ok
}

func argString(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok && v != ""
}

// sleepPoll waits one poll interval, returning early on context cancel.
// Callers still observe the lifecycle register; cancellation here only
// shortens the nap.
func sleepPoll(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
