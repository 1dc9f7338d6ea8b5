// Package executor implements the stateful automation protocols (login,
// search, respond) against sessions borrowed from the pool. Borrowed
// sessions are released on every exit path.
package executor

import "errors"

// The executor failure taxonomy. Callers branch on these with errors.Is;
// everything else wraps one of them.
var (
	// ErrLoginTimeout: the login outcome poll exceeded its bound.
	// Retryable after backoff.
	ErrLoginTimeout = errors.New("login timed out")

	// ErrInvalidCredentials: the page showed its failure marker. Terminal;
	// the user must enter fresh credentials.
	ErrInvalidCredentials = errors.New("invalid marketplace credentials")

	// ErrSearchTimeout: results never stabilized within bounds, on both
	// strategies.
	ErrSearchTimeout = errors.New("search timed out")

	// ErrNoCookiesForSession: the session registry has no jar for this
	// session. The caller should re-authenticate and retry once.
	ErrNoCookiesForSession = errors.New("session has no authentication cookies")

	// ErrRespondUnavailable: the order page shows no usable respond
	// control. Terminal; the order is gone or already taken.
	ErrRespondUnavailable = errors.New("respond action unavailable")

	// ErrRespondTimeout: the response form never appeared or never
	// confirmed within bounds.
	ErrRespondTimeout = errors.New("respond timed out")

	// ErrAutomationFault: an unexpected automation failure (element gone,
	// page crashed). Retryable once.
	ErrAutomationFault = errors.New("automation fault")
)

// Retryable reports whether the caller may reasonably try again.
func Retryable(err error) bool {
	return errors.Is(err, ErrLoginTimeout) ||
		errors.Is(err, ErrSearchTimeout) ||
		errors.Is(err, ErrRespondTimeout) ||
		errors.Is(err, ErrAutomationFault)
}
