/**
 * Run lifecycle register
 *
 * A single atomic stage value shared by the orchestrator, the workers, the
 * persistence writer and the log writer. Components never block on shutdown
 * signals; they poll the register between units of work, so every component
 * finishes its current unit before it reacts to a transition.
 *
 * Author: box-fixer team
 */

package fix

import "sync/atomic"

// Stage is one phase of a fix run. Stages only move forward.
type Stage int32

const (
	// StagePrepare holds workers and the writer idle until the work queue
	// is fully populated.
	StagePrepare Stage = iota

	// StageWorking is normal operation.
	StageWorking

	// StageShutdownStart tells workers to finish their current item and
	// exit instead of pulling a new one.
	StageShutdownStart

	// StageWorkersStopped through StageLoggerStopped are set by the
	// orchestrator after joining each tier, so the next tier can drain.
	StageWorkersStopped
	StageWriterStopped
	StageLoggerStopped

	// StageHalt is final.
	StageHalt
)

func (s Stage) String() string {
	switch s {
	case StagePrepare:
		return "PREPARE"
	case StageWorking:
		return "WORKING"
	case StageShutdownStart:
		return "SHUTDOWN_START"
	case StageWorkersStopped:
		return "AFTER_WORKERS_STOPPED"
	case StageWriterStopped:
		return "AFTER_WRITER_STOPPED"
	case StageLoggerStopped:
		return "AFTER_LOGGER_STOPPED"
	case StageHalt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// Lifecycle is the shared stage register.
type Lifecycle struct {
	stage atomic.Int32
}

// NewLifecycle starts at StagePrepare.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Stage returns the current stage.
func (l *Lifecycle) Stage() Stage {
	return Stage(l.stage.Load())
}

// Set advances the register unconditionally. Only the orchestrator calls
// this.
func (l *Lifecycle) Set(s Stage) {
	l.stage.Store(int32(s))
}

// BeginShutdown flips WORKING to SHUTDOWN_START. A signal arriving during
// PREPARE (or after shutdown already began) is ignored; the return value
// reports whether the transition happened.
func (l *Lifecycle) BeginShutdown() bool {
	return l.stage.CompareAndSwap(int32(StageWorking), int32(StageShutdownStart))
}

// ShuttingDown reports whether the run has passed WORKING.
func (l *Lifecycle) ShuttingDown() bool {
	return l.Stage() >= StageShutdownStart
}
