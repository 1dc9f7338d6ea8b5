// Package registry tracks authenticated marketplace sessions per identity.
// Only serializable cookie state lives here, never a live browser: a
// session's authentication outlives whichever pooled browser happened to
// perform the login.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderscout/internal/logging"
)

// ErrMissingCredentialState means a nominally valid session has no saved
// cookies. Proceeding would run the search unauthenticated, so dependent
// operations must abort instead.
var ErrMissingCredentialState = errors.New("no authentication cookies saved for session")

// Cookie is one serialized authentication cookie.
type Cookie struct {
	Name    string  `json:"name"`
	Value   string  `json:"value"`
	Domain  string  `json:"domain"`
	Path    string  `json:"path"`
	Expires float64 `json:"expires"` // unix seconds, -1 = session cookie
}

// Record is the registry's view of one authenticated session.
type Record struct {
	SessionID  string
	Identity   string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Registry maps identities to session records and session ids to cookie
// jars. At most one live record exists per identity.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Record
	byOwner   map[string]string // identity -> sessionID
	cookieJar map[string][]Cookie
	now       func() time.Time
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		byID:      make(map[string]*Record),
		byOwner:   make(map[string]string),
		cookieJar: make(map[string][]Cookie),
		now:       time.Now,
	}
}

// GetOrCreate returns the identity's existing live session id, or creates
// a new record. Callers that get a fresh id still need to authenticate
// and save cookies before the session is usable.
func (r *Registry) GetOrCreate(identity string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byOwner[identity]; ok {
		if rec, live := r.byID[id]; live {
			rec.LastUsedAt = r.now()
			logging.Session("reusing session %s for %s", id, identity)
			return id
		}
	}

	id := fmt.Sprintf("session_%s", uuid.NewString())
	now := r.now()
	r.byID[id] = &Record{SessionID: id, Identity: identity, CreatedAt: now, LastUsedAt: now}
	r.byOwner[identity] = id
	logging.Session("created session %s for %s", id, identity)
	return id
}

// SaveCookies stores the jar captured after a successful login.
func (r *Registry) SaveCookies(sessionID string, jar []Cookie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[sessionID]; !ok {
		return fmt.Errorf("save cookies: unknown session %s", sessionID)
	}
	r.cookieJar[sessionID] = jar
	logging.Session("saved %d cookies for %s", len(jar), sessionID)
	return nil
}

// Cookies returns the saved jar. A valid session without cookies is a
// hard error, not an empty result.
func (r *Registry) Cookies(sessionID string) ([]Cookie, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[sessionID]; !ok {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}
	jar, ok := r.cookieJar[sessionID]
	if !ok || len(jar) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrMissingCredentialState)
	}
	return jar, nil
}

// IsValid reports whether sessionID names a live record.
func (r *Registry) IsValid(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[sessionID]
	return ok
}

// HasCookies reports whether a usable jar is saved for sessionID.
func (r *Registry) HasCookies(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cookieJar[sessionID]) > 0
}

// Owner returns the identity owning sessionID.
func (r *Registry) Owner(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[sessionID]
	if !ok {
		return "", false
	}
	return rec.Identity, true
}

// SessionFor returns the live session id for identity, if one exists.
func (r *Registry) SessionFor(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[identity]
	if !ok {
		return "", false
	}
	_, live := r.byID[id]
	return id, live
}

// Invalidate destroys the record and its cookies (logout, expiry).
func (r *Registry) Invalidate(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(r.cookieJar, sessionID)
	delete(r.byID, sessionID)
	if r.byOwner[rec.Identity] == sessionID {
		delete(r.byOwner, rec.Identity)
	}
	logging.Session("invalidated session %s for %s", sessionID, rec.Identity)
}
