package core

const (
	defaultQueueCap = 16
	maxRetainedCap  = 4096 // Backing arrays above this are released on truncate

	// DefaultMicroTaskQueueCapacity is the number of executed micro tasks
	// after which a queue is compacted.
	DefaultMicroTaskQueueCapacity = 1024
)

// taskQueue is the backing store of one scheduler queue. It is read with an
// external cursor and never shrinks on read; compact shifts the unread
// suffix back to the front instead.
//
// It is not safe for concurrent use; the Scheduler confines it to its owning
// goroutine.
type taskQueue struct {
	tasks []*queuedTask
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: make([]*queuedTask, 0, defaultQueueCap),
	}
}

func (q *taskQueue) push(t *queuedTask) {
	q.tasks = append(q.tasks, t)
}

func (q *taskQueue) at(i int) *queuedTask {
	return q.tasks[i]
}

func (q *taskQueue) len() int {
	return len(q.tasks)
}

func (q *taskQueue) isEmpty() bool {
	return len(q.tasks) == 0
}

// compact drops the first n (already executed) tasks by shifting the rest to
// index 0, and returns the number of tasks shifted.
func (q *taskQueue) compact(n int) int {
	remaining := copy(q.tasks, q.tasks[n:])
	// Zero out the vacated tail so executed tasks can be collected
	clear(q.tasks[remaining:])
	q.tasks = q.tasks[:remaining]
	return remaining
}

// truncate empties the queue. Small backing arrays are kept for reuse.
func (q *taskQueue) truncate() {
	if cap(q.tasks) > maxRetainedCap {
		q.tasks = make([]*queuedTask, 0, defaultQueueCap)
		return
	}
	clear(q.tasks)
	q.tasks = q.tasks[:0]
}
