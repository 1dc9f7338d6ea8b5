// Package autosearch runs recurring searches per identity. Each enabled
// identity owns one goroutine that ticks at its chosen interval and
// hands the work to the task queue.
package autosearch

import (
	"context"
	"sync"
	"time"

	"orderscout/internal/logging"
	"orderscout/internal/ports"
)

// Interval bounds. Anything outside is clamped, never rejected.
const (
	MinInterval = 15 * time.Minute
	MaxInterval = 24 * time.Hour
)

// Submitter is the queue-side surface the scheduler needs.
type Submitter interface {
	SubmitAuto(identity string, keywords []string) error
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns one recurring-search loop per enabled identity.
type Scheduler struct {
	queue Submitter
	subs  ports.SubscriptionCheck
	sink  ports.NotificationSink

	mu    sync.Mutex
	loops map[string]*loop
}

func New(queue Submitter, subs ports.SubscriptionCheck, sink ports.NotificationSink) *Scheduler {
	return &Scheduler{
		queue: queue,
		subs:  subs,
		sink:  sink,
		loops: make(map[string]*loop),
	}
}

// Clamp forces interval into the allowed band.
func Clamp(interval time.Duration) time.Duration {
	if interval < MinInterval {
		return MinInterval
	}
	if interval > MaxInterval {
		return MaxInterval
	}
	return interval
}

// Enable starts (or restarts) the identity's loop. The first search runs
// one full interval from now, not immediately: the caller typically just
// ran a manual search.
func (s *Scheduler) Enable(ctx context.Context, identity string, keywords []string, interval time.Duration) time.Duration {
	interval = Clamp(interval)

	// Wait on the old loop outside the lock: a loop stopping itself
	// takes s.mu in forget before it can close done.
	s.mu.Lock()
	old := s.loops[identity]
	delete(s.loops, identity)
	s.mu.Unlock()
	if old != nil {
		old.cancel()
		<-old.done
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &loop{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	displaced := s.loops[identity] // a concurrent Enable got here first
	s.loops[identity] = l
	s.mu.Unlock()
	if displaced != nil {
		displaced.cancel()
		<-displaced.done
	}

	go s.run(lctx, l, identity, keywords, interval)
	logging.AutoSearch("enabled for %s, every %s, %d keywords", identity, interval, len(keywords))
	return interval
}

// Disable stops the identity's loop. Reports whether one was running.
func (s *Scheduler) Disable(identity string) bool {
	s.mu.Lock()
	l, ok := s.loops[identity]
	if ok {
		delete(s.loops, identity)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	l.cancel()
	<-l.done
	logging.AutoSearch("disabled for %s", identity)
	return true
}

// Enabled reports whether identity has a running loop.
func (s *Scheduler) Enabled(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[identity]
	return ok
}

// Close stops every loop and waits for them.
func (s *Scheduler) Close() {
	s.mu.Lock()
	loops := s.loops
	s.loops = make(map[string]*loop)
	s.mu.Unlock()
	for _, l := range loops {
		l.cancel()
		<-l.done
	}
}

func (s *Scheduler) run(ctx context.Context, l *loop, identity string, keywords []string, interval time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		active, err := s.subs.IsActive(ctx, identity)
		if err != nil {
			logging.AutoSearch("subscription check for %s failed, skipping tick: %v", identity, err)
			continue
		}
		if !active {
			logging.AutoSearch("subscription lapsed for %s, stopping", identity)
			s.forget(identity, l)
			if err := s.sink.DeliverStatus(ctx, identity, "Автопоиск остановлен: подписка закончилась."); err != nil {
				logging.NotifyError("autosearch stop notice to %s: %v", identity, err)
			}
			return
		}

		if err := s.queue.SubmitAuto(identity, keywords); err != nil {
			logging.AutoSearch("tick for %s not admitted: %v", identity, err)
		}
	}
}

// forget drops the loop entry if it is still the registered one, so a
// loop that stops itself does not race a concurrent Enable.
func (s *Scheduler) forget(identity string, l *loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.loops[identity]; ok && cur == l {
		delete(s.loops, identity)
	}
}
