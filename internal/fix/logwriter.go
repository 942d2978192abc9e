/**
 * Log writer
 *
 * Single consumer of the log queue. Workers never write to the log sink
 * directly; funnelling every record through one goroutine keeps interleaved
 * progress output from the pool coherent. After the orchestrator reports
 * the persistence writer stopped, the log writer performs a final drain so
 * records queued during shutdown are not lost.
 *
 * Author: box-fixer team
 */

package fix

import (
	"context"
	"time"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
)

// LogRecord is one queued log message with zerolog-style field pairs.
type LogRecord struct {
	Level   string
	Message string
	Fields  []interface{}
}

// LogWriter drains the log queue into the process logger.
type LogWriter struct {
	shared *Shared
	log    *logger.Logger
	poll   time.Duration
}

// NewLogWriter builds the single log writer for a run.
func NewLogWriter(shared *Shared, log *logger.Logger, poll time.Duration) *LogWriter {
	return &LogWriter{shared: shared, log: log, poll: poll}
}

// Run loops until the writer tier has stopped and the queue is drained.
func (lw *LogWriter) Run(ctx context.Context) {
	for {
		rec, ok := lw.shared.Logs.TryPop()
		if !ok {
			if lw.shared.Lifecycle.Stage() >= StageWriterStopped {
				return
			}
			sleepPoll(ctx, lw.poll)
			continue
		}
		lw.log.LogAt(rec.Level, rec.Message, rec.Fields...)
	}
}
