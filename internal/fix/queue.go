/**
 * Lock-guarded FIFO queues
 *
 * Three queues connect the run's components: the work queue (populated once
 * at startup, many consumers), the persistence command queue (many
 * producers, drained by the single writer) and the log queue (many
 * producers, drained by the log writer). All reads are non-blocking; the
 * consumers pair TryPop with a short poll sleep so the lifecycle register
 * stays in control of termination.
 *
 * Author: box-fixer team
 */

package fix

import (
	"sync"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

type fifo[T any] struct {
	mu    sync.Mutex
	items []T
}

// Push appends one element.
func (q *fifo[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// TryPop removes and returns the head, or reports an empty queue. It never
// blocks.
func (q *fifo[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Len returns the current element count.
func (q *fifo[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ItemQueue holds the FixItem snapshots for one run.
type ItemQueue struct {
	fifo[*state.FixItem]
}

// CommandQueue carries persistence commands from workers to the writer.
type CommandQueue struct {
	fifo[Command]
}

// LogQueue carries log records from workers to the log writer.
type LogQueue struct {
	fifo[LogRecord]
}
