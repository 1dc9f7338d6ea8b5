// Package orchestrator coordinates the full search path: cache lookup,
// session establishment, login when needed and the search itself. It is
// the only place that decides when a login happens.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"orderscout/internal/cache"
	"orderscout/internal/executor"
	"orderscout/internal/extract"
	"orderscout/internal/logging"
	"orderscout/internal/ports"
	"orderscout/internal/registry"
)

// Authenticator is implemented by executor.LoginExecutor.
type Authenticator interface {
	Authenticate(ctx context.Context, login, secret string) (string, error)
}

// Searcher is implemented by executor.SearchExecutor.
type Searcher interface {
	Search(ctx context.Context, keyword, sessionID string) ([]extract.Order, error)
}

// Responder is implemented by executor.RespondExecutor.
type Responder interface {
	Respond(ctx context.Context, orderID, message, sessionID string) error
}

// Orchestrator runs searches on behalf of identities. Session records
// are keyed by marketplace login, so two app identities sharing an
// account also share one authenticated session.
type Orchestrator struct {
	cache   *cache.Cache
	reg     *registry.Registry
	login   Authenticator
	search  Searcher
	respond Responder
	creds   ports.CredentialProvider
}

func New(c *cache.Cache, reg *registry.Registry, login Authenticator, search Searcher, respond Responder, creds ports.CredentialProvider) *Orchestrator {
	return &Orchestrator{cache: c, reg: reg, login: login, search: search, respond: respond, creds: creds}
}

// SmartSearch answers from cache when it can, otherwise ensures an
// authenticated session for identity and runs a live search. Stale or
// missing cookies trigger exactly one re-login before the error stands.
func (o *Orchestrator) SmartSearch(ctx context.Context, identity, keyword string) ([]extract.Order, error) {
	if orders, ok := o.cache.Get(keyword); ok {
		logging.Search("cache hit for %q, %d orders", keyword, len(orders))
		return orders, nil
	}

	creds, err := o.creds.Credentials(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials for %s: %w", identity, err)
	}

	sessionID, err := o.ensureSession(ctx, creds)
	if err != nil {
		return nil, err
	}

	orders, err := o.search.Search(ctx, keyword, sessionID)
	if err != nil && needsReauth(err) {
		logging.SearchWarn("session %s unusable for %q, re-authenticating: %v", sessionID, keyword, err)
		o.reg.Invalidate(sessionID)
		sessionID, err = o.login.Authenticate(ctx, creds.Login, creds.Secret)
		if err != nil {
			return nil, fmt.Errorf("re-login for %s: %w", identity, err)
		}
		orders, err = o.search.Search(ctx, keyword, sessionID)
	}
	if err != nil {
		return nil, err
	}

	o.cache.Put(keyword, orders)
	return orders, nil
}

// BatchSearch runs SmartSearch for every keyword concurrently and merges
// the results. Duplicates keep the rank of their first appearance, in
// keyword order. Any keyword failing fails the batch.
func (o *Orchestrator) BatchSearch(ctx context.Context, identity string, keywords []string) ([]extract.Order, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	perKeyword := make([][]extract.Order, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	for i, kw := range keywords {
		g.Go(func() error {
			orders, err := o.SmartSearch(gctx, identity, kw)
			if err != nil {
				return fmt.Errorf("keyword %q: %w", kw, err)
			}
			perKeyword[i] = orders
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var merged []extract.Order
	for _, orders := range perKeyword {
		for _, order := range orders {
			if _, dup := seen[order.ID]; dup {
				continue
			}
			seen[order.ID] = struct{}{}
			merged = append(merged, order)
		}
	}
	logging.Search("batch of %d keywords merged to %d unique orders", len(keywords), len(merged))
	return merged, nil
}

// Respond places a response on orderID for identity, establishing or
// refreshing the session the same way SmartSearch does.
func (o *Orchestrator) Respond(ctx context.Context, identity, orderID, message string) error {
	creds, err := o.creds.Credentials(ctx, identity)
	if err != nil {
		return fmt.Errorf("resolve credentials for %s: %w", identity, err)
	}

	sessionID, err := o.ensureSession(ctx, creds)
	if err != nil {
		return err
	}

	err = o.respond.Respond(ctx, orderID, message, sessionID)
	if err != nil && needsReauth(err) {
		logging.SearchWarn("session %s unusable for respond to %s, re-authenticating: %v", sessionID, orderID, err)
		o.reg.Invalidate(sessionID)
		sessionID, err = o.login.Authenticate(ctx, creds.Login, creds.Secret)
		if err != nil {
			return fmt.Errorf("re-login for %s: %w", identity, err)
		}
		err = o.respond.Respond(ctx, orderID, message, sessionID)
	}
	return err
}

// ensureSession returns a usable session id for the credentials, logging
// in only when no cookie-bearing session exists.
func (o *Orchestrator) ensureSession(ctx context.Context, creds ports.Credentials) (string, error) {
	if id, live := o.reg.SessionFor(creds.Login); live && o.reg.HasCookies(id) {
		return id, nil
	}
	return o.login.Authenticate(ctx, creds.Login, creds.Secret)
}

func needsReauth(err error) bool {
	return errors.Is(err, executor.ErrNoCookiesForSession) ||
		errors.Is(err, registry.ErrMissingCredentialState)
}
