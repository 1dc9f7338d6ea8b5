// Package queue admits search tasks, throttles identities and fans work
// out to a small worker group. Tasks run in arrival order and a failure
// in one never takes down the workers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"orderscout/internal/extract"
	"orderscout/internal/logging"
	"orderscout/internal/ports"
)

// DefaultCooldown is the minimum spacing between accepted tasks from the
// same identity.
const DefaultCooldown = 2 * time.Minute

const taskBuffer = 256

// BatchSearcher is implemented by orchestrator.Orchestrator.
type BatchSearcher interface {
	BatchSearch(ctx context.Context, identity string, keywords []string) ([]extract.Order, error)
}

// RateLimitedError is returned by Submit when the identity is still in
// cooldown. Wait is how long until the next task would be admitted.
type RateLimitedError struct {
	Identity string
	Wait     time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("identity %s rate limited, retry in %s", e.Identity, e.Wait.Round(time.Second))
}

// ErrQueueFull is returned when the pending buffer is at capacity.
var ErrQueueFull = fmt.Errorf("task queue is full")

// Task is one admitted search request. Quiet tasks come from the
// scheduler and stay silent when nothing new turned up.
type Task struct {
	ID         string
	Identity   string
	Keywords   []string
	EnqueuedAt time.Time
	Quiet      bool
}

// Queue is the admission and dispatch layer in front of the orchestrator.
type Queue struct {
	searcher BatchSearcher
	subs     ports.SubscriptionCheck
	seen     ports.SeenStore
	sink     ports.NotificationSink
	cooldown time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	pending  []*Task

	tasks  chan *Task
	wg     sync.WaitGroup
	stop   chan struct{}
	closed bool
}

// New builds a queue. Start must be called before tasks are processed.
func New(searcher BatchSearcher, subs ports.SubscriptionCheck, seen ports.SeenStore, sink ports.NotificationSink, cooldown time.Duration) *Queue {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Queue{
		searcher: searcher,
		subs:     subs,
		seen:     seen,
		sink:     sink,
		cooldown: cooldown,
		limiters: make(map[string]*rate.Limiter),
		tasks:    make(chan *Task, taskBuffer),
		stop:     make(chan struct{}),
	}
}

// Start launches workers goroutines. Never run more workers than the
// browser pool holds sessions, extra workers would only block inside
// Acquire.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	logging.Queue("started %d workers, cooldown %s", workers, q.cooldown)
}

// Submit admits a task and returns its 1-based queue position. An
// identity still in cooldown is rejected with *RateLimitedError and the
// queue is left untouched.
func (q *Queue) Submit(identity string, keywords []string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, fmt.Errorf("queue closed")
	}

	lim := q.limiterLocked(identity)
	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		logging.Queue("rejected %s, %s of cooldown left", identity, delay.Round(time.Second))
		return 0, &RateLimitedError{Identity: identity, Wait: delay}
	}

	task := &Task{
		ID:         uuid.NewString(),
		Identity:   identity,
		Keywords:   keywords,
		EnqueuedAt: time.Now(),
	}
	pos, err := q.enqueueLocked(task)
	if err != nil {
		res.Cancel()
		return 0, err
	}
	logging.Queue("admitted task %s for %s at position %d (%d keywords)", task.ID, identity, pos, len(keywords))
	return pos, nil
}

// SubmitAuto admits a scheduler tick. It bypasses the per-identity
// cooldown: tick spacing is already enforced by the schedule interval.
func (q *Queue) SubmitAuto(identity string, keywords []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}
	task := &Task{
		ID:         uuid.NewString(),
		Identity:   identity,
		Keywords:   keywords,
		EnqueuedAt: time.Now(),
		Quiet:      true,
	}
	_, err := q.enqueueLocked(task)
	return err
}

func (q *Queue) enqueueLocked(task *Task) (int, error) {
	select {
	case q.tasks <- task:
	default:
		return 0, ErrQueueFull
	}
	q.pending = append(q.pending, task)
	return len(q.pending), nil
}

// Position returns the task's current 1-based place in line, or 0 when
// it is no longer waiting.
func (q *Queue) Position(taskID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.pending {
		if t.ID == taskID {
			return i + 1
		}
	}
	return 0
}

// PendingCount reports how many admitted tasks are still waiting.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting tasks and waits for in-flight work to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	q.wg.Wait()
	logging.Queue("queue closed")
}

func (q *Queue) limiterLocked(identity string) *rate.Limiter {
	lim, ok := q.limiters[identity]
	if !ok {
		lim = rate.NewLimiter(rate.Every(q.cooldown), 1)
		q.limiters[identity] = lim
	}
	return lim
}

func (q *Queue) worker(ctx context.Context, n int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.dequeue(task.ID)
			q.run(ctx, n, task)
		}
	}
}

// dequeue removes the task from the waiting list, shifting everyone
// behind it one position forward.
func (q *Queue) dequeue(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.pending {
		if t.ID == taskID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// run executes one task end to end. Every failure path ends in a single
// status message to the user, never a panic or a dead worker.
func (q *Queue) run(ctx context.Context, worker int, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.QueueError("worker %d panic on task %s: %v", worker, task.ID, r)
			q.notifyStatus(ctx, task.Identity, "Поиск завершился внутренней ошибкой. Попробуйте позже.")
		}
	}()

	logging.Queue("worker %d running task %s for %s", worker, task.ID, task.Identity)

	active, err := q.subs.IsActive(ctx, task.Identity)
	if err != nil {
		logging.QueueError("subscription check for %s: %v", task.Identity, err)
		q.notifyStatus(ctx, task.Identity, "Не удалось проверить подписку. Попробуйте позже.")
		return
	}
	if !active {
		q.notifyStatus(ctx, task.Identity, "Подписка неактивна. Продлите подписку, чтобы продолжить поиск заказов.")
		return
	}

	orders, err := q.searcher.BatchSearch(ctx, task.Identity, task.Keywords)
	if err != nil {
		logging.QueueError("task %s search failed: %v", task.ID, err)
		q.notifyStatus(ctx, task.Identity, FailureText(err))
		return
	}

	fresh := q.filterSeen(ctx, task.Identity, orders)
	if len(fresh) == 0 {
		if !task.Quiet {
			q.notifyStatus(ctx, task.Identity, "Новых заказов по вашим запросам не найдено.")
		}
		return
	}

	delivered := make([]string, 0, len(fresh))
	for _, order := range fresh {
		if err := q.sink.DeliverOrder(ctx, task.Identity, order); err != nil {
			logging.QueueError("deliver order %s to %s: %v", order.ID, task.Identity, err)
			continue
		}
		delivered = append(delivered, order.ID)
	}
	if len(delivered) > 0 {
		if err := q.seen.MarkSeen(ctx, task.Identity, delivered); err != nil {
			logging.QueueError("mark seen for %s: %v", task.Identity, err)
		}
	}
	logging.Queue("task %s done, delivered %d of %d new orders", task.ID, len(delivered), len(fresh))
}

// filterSeen drops orders already delivered to the identity. A store
// failure degrades to delivering everything rather than nothing.
func (q *Queue) filterSeen(ctx context.Context, identity string, orders []extract.Order) []extract.Order {
	known, err := q.seen.Seen(ctx, identity)
	if err != nil {
		logging.QueueError("seen lookup for %s, delivering unfiltered: %v", identity, err)
		return orders
	}
	fresh := orders[:0:0]
	for _, order := range orders {
		if _, ok := known[order.ID]; !ok {
			fresh = append(fresh, order)
		}
	}
	return fresh
}

func (q *Queue) notifyStatus(ctx context.Context, identity, status string) {
	if err := q.sink.DeliverStatus(ctx, identity, status); err != nil {
		logging.QueueError("deliver status to %s: %v", identity, err)
	}
}
