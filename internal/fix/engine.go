/**
 * Fix run orchestrator
 *
 * Boots shared state, loads the identity pool and the pending items,
 * starts the log writer, the persistence writer and the worker pool, then
 * drives the lifecycle register through its stages. The only component
 * that reacts to the caller's context is the engine itself: cancellation
 * flips WORKING to SHUTDOWN_START, and every other component observes the
 * register instead of the raw signal, so no worker aborts mid-item.
 *
 * Startup failures (unreachable root folder, empty identity pool, store
 * errors) abort the run before any worker starts.
 *
 * Author: box-fixer team
 */

package fix

import (
	"context"
	"sync"
	"time"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/config"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// Engine owns one fix run end to end.
type Engine struct {
	cfg    config.FixConfig
	rootID string
	sm     *state.Manager
	remote Remote
	log    *logger.Logger

	// onShared, when set, observes the run's shared state right before
	// the component tiers start. Test seam.
	onShared func(*Shared)
}

// NewEngine wires an engine from the loaded configuration.
func NewEngine(cfg config.FixConfig, rootFolderID string, sm *state.Manager, remote Remote, log *logger.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		rootID: rootFolderID,
		sm:     sm,
		remote: remote,
		log:    log,
	}
}

// Run executes the whole fix run and blocks until HALT. Cancelling ctx
// requests a graceful shutdown; the run still drains before returning.
func (e *Engine) Run(ctx context.Context) error {
	// Infrastructure prechecks are fatal before any worker starts.
	root, err := e.remote.FolderInfo(ctx, e.rootID)
	if err != nil {
		return errors.Wrapf(err, "root folder %s is not reachable", e.rootID)
	}

	users, err := e.sm.AppUsers().List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load app user pool")
	}
	if len(users) == 0 {
		return errors.NewSimple("app user pool is empty; run 'fixer appuser create' first")
	}

	pending, err := e.sm.FixItems().Pending(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load pending items")
	}
	if len(pending) == 0 {
		e.log.Info("no pending items, nothing to do")
		return nil
	}

	e.log.Info("starting fix run",
		"root_folder", root.Name,
		"pending_items", len(pending),
		"workers", e.cfg.Workers,
		"pool_size", len(users))

	shared := NewShared(e.remote, users, e.rootID, e.cfg.TokenRefreshAfter)
	for _, item := range pending {
		shared.Items.Push(item)
	}
	if e.onShared != nil {
		e.onShared(shared)
	}

	// Detach the components from the caller's context: cancellation must
	// reach them through the lifecycle register, not mid-call aborts.
	runCtx := context.WithoutCancel(ctx)

	var logWG sync.WaitGroup
	logWG.Add(1)
	go func() {
		defer logWG.Done()
		NewLogWriter(shared, e.log, e.cfg.PollInterval).Run(runCtx)
	}()

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		NewWriter(shared, e.sm.DB(), e.sm.FixItems(), e.cfg.PollInterval).Run(runCtx)
	}()

	policy := errors.RetryPolicy{
		MaxAttempts: e.cfg.RetryAttempts,
		BaseDelay:   e.cfg.RetryBaseDelay,
	}
	var workerWG sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			NewWorker(shared, e.remote, policy, e.cfg.PollInterval).Run(runCtx)
		}()
	}

	// Watch for cancellation until the workers are done, whichever comes
	// first.
	workersDone := make(chan struct{})
	go func() {
		workerWG.Wait()
		close(workersDone)
	}()
	go func() {
		select {
		case <-ctx.Done():
			if shared.Lifecycle.BeginShutdown() {
				e.log.Warn("shutdown requested, waiting for workers to finish their items")
			}
		case <-workersDone:
		}
	}()

	shared.Lifecycle.Set(StageWorking)
	<-workersDone

	// Staged teardown: mark each tier stopped, then pause so the next
	// tier can drain what the previous one queued.
	shared.Lifecycle.Set(StageWorkersStopped)
	time.Sleep(e.cfg.ShutdownGrace)
	writerWG.Wait()

	shared.Lifecycle.Set(StageWriterStopped)
	time.Sleep(e.cfg.ShutdownGrace)
	logWG.Wait()

	shared.Lifecycle.Set(StageLoggerStopped)
	time.Sleep(e.cfg.ShutdownGrace)
	shared.Lifecycle.Set(StageHalt)

	e.logSummary(runCtx, len(pending))
	return nil
}

func (e *Engine) logSummary(ctx context.Context, loaded int) {
	counts, err := e.sm.FixItems().CountByStatus(ctx)
	if err != nil {
		e.log.Error(err, "failed to read final status counts")
		return
	}
	fields := []interface{}{"loaded", loaded}
	for _, c := range counts {
		fields = append(fields, c.WorkingStatus.String(), c.Count)
	}
	e.log.Info("fix run finished", fields...)
}
