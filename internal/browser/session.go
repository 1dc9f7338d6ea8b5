// Package browser owns the automation sessions and the bounded pool that
// shares them between concurrent searches. A session is one stateful
// remote Chrome instance; it is expensive to create, lent to exactly one
// borrower at a time and sanitized before every return to the pool.
package browser

import (
	"context"
	"time"

	"github.com/google/uuid"

	"orderscout/internal/registry"
)

// PageDriver is the minimal automation surface the executors need. The
// production implementation drives Chrome through rod; tests substitute a
// scripted fake so protocol logic runs without a browser.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Ready reports whether the document has finished loading.
	Ready(ctx context.Context) (bool, error)
	// Exists reports whether any selector in the fallback list matches.
	Exists(ctx context.Context, selectors []string) (bool, error)

	// Type clears the first matching input and types text into it.
	Type(ctx context.Context, selectors []string, text string) error
	// FieldValue reads the current value of the first matching input.
	FieldValue(ctx context.Context, selectors []string) (string, error)
	// Submit presses Enter on the first matching element.
	Submit(ctx context.Context, selectors []string) error
	// Click clicks the first matching visible element.
	Click(ctx context.Context, selectors []string) error

	SetCookies(ctx context.Context, cookies []registry.Cookie) error
	Cookies(ctx context.Context) ([]registry.Cookie, error)
	// ClearBrowsingState wipes cookies and local storage.
	ClearBrowsingState(ctx context.Context) error

	ScrollToBottom(ctx context.Context) error
	Healthy(ctx context.Context) bool
	Close() error
}

// Session is one pooled automation session.
type Session struct {
	ID        string
	CreatedAt time.Time
	driver    PageDriver
}

// Driver exposes the session's automation surface to the borrower.
func (s *Session) Driver() PageDriver { return s.driver }

// NewSession wraps a driver in a tracked session handle.
func NewSession(driver PageDriver) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		driver:    driver,
	}
}

// Factory creates a fresh automation session. The pool calls it at
// startup and whenever a session must be replaced.
type Factory func(ctx context.Context) (*Session, error)
