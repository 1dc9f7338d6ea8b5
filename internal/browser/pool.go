package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"orderscout/internal/logging"
)

// ErrResourceExhausted means no session freed up within the acquire
// timeout. Retryable: callers should surface "try later", not fail hard.
var ErrResourceExhausted = errors.New("browser pool exhausted")

// ErrPoolClosed is returned once Close has been called.
var ErrPoolClosed = errors.New("browser pool closed")

// Pool is a fixed-capacity collection of automation sessions. Capacity is
// set at construction and stays constant: an unusable session is
// destroyed and replaced, never silently dropped.
type Pool struct {
	factory Factory
	free    chan *Session
	total   int

	mu     sync.Mutex
	inUse  int
	closed bool
	done   chan struct{}

	replaceWG sync.WaitGroup
}

// NewPool creates size sessions up front. Failing to create any of them
// fails construction; a pool that silently starts small would break the
// capacity invariant from the start.
func NewPool(ctx context.Context, factory Factory, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	p := &Pool{
		factory: factory,
		free:    make(chan *Session, size),
		total:   size,
		done:    make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		s, err := factory(ctx)
		if err != nil {
			p.drain()
			return nil, fmt.Errorf("create session %d/%d: %w", i+1, size, err)
		}
		p.free <- s
	}
	logging.Pool("pool ready: %d sessions", size)
	return p, nil
}

// Acquire lends a free session to the caller, waiting up to timeout. The
// wait suspends only the calling goroutine. On timeout the caller gets
// ErrResourceExhausted and should retry later.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Session, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case s := <-p.free:
			if !s.driver.Healthy(ctx) {
				// Stuck or crashed while idle. Replace and keep waiting
				// for a usable one.
				logging.PoolWarn("discarding unhealthy idle session %s", s.ID)
				p.replace(s)
				continue
			}
			p.mu.Lock()
			p.inUse++
			p.mu.Unlock()
			return s, nil
		case <-p.done:
			return nil, ErrPoolClosed
		case <-timer.C:
			return nil, ErrResourceExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release sanitizes the session and returns it to the pool. A session
// that cannot be sanitized is discarded and replaced so the next borrower
// never sees the previous borrower's cookies.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	if p.inUse > 0 {
		p.inUse--
	}
	closed := p.closed
	p.mu.Unlock()
	if closed {
		_ = s.driver.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := s.driver.ClearBrowsingState(ctx)
	cancel()
	if err != nil {
		logging.PoolWarn("sanitize failed for %s, replacing: %v", s.ID, err)
		p.replace(s)
		return
	}

	select {
	case p.free <- s:
	default:
		// Should not happen while the capacity invariant holds.
		logging.PoolError("free list full on release of %s, closing session", s.ID)
		_ = s.driver.Close()
	}
}

// Available reports how many sessions are currently idle.
func (p *Pool) Available() int { return len(p.free) }

// Total reports the configured capacity.
func (p *Pool) Total() int { return p.total }

// InUse reports how many sessions are currently lent out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Close shuts the pool down and closes every idle session. In-flight
// borrowers' sessions are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.replaceWG.Wait()
	p.drain()
	logging.Pool("pool closed")
}

// replace destroys a bad session and creates its successor, keeping total
// capacity constant. Creation retries in the background so a transient
// launch failure does not shrink the pool permanently.
func (p *Pool) replace(bad *Session) {
	_ = bad.driver.Close()
	p.replaceWG.Add(1)
	go func() {
		defer p.replaceWG.Done()
		backoff := time.Second
		for {
			select {
			case <-p.done:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			s, err := p.factory(ctx)
			cancel()
			if err == nil {
				select {
				case p.free <- s:
					logging.Pool("replacement session %s added", s.ID)
				case <-p.done:
					_ = s.driver.Close()
				}
				return
			}
			logging.PoolError("replacement session failed: %v (retry in %v)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-p.done:
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (p *Pool) drain() {
	for {
		select {
		case s := <-p.free:
			_ = s.driver.Close()
		default:
			return
		}
	}
}
