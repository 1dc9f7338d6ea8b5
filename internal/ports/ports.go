// Package ports declares the narrow interfaces the automation core
// consumes from the embedding application. The core never reaches past
// them: user records, payments and chat surfaces stay on the other side.
package ports

import (
	"context"

	"orderscout/internal/extract"
)

// Credentials is a marketplace login/secret pair for one logical user.
type Credentials struct {
	Login  string
	Secret string
}

// CredentialProvider resolves marketplace credentials for an identity.
type CredentialProvider interface {
	Credentials(ctx context.Context, identity string) (Credentials, error)
}

// SubscriptionCheck gates all paid operations.
type SubscriptionCheck interface {
	IsActive(ctx context.Context, identity string) (bool, error)
}

// SeenStore remembers which order ids were already delivered to an
// identity, so the same listing is never re-notified.
type SeenStore interface {
	MarkSeen(ctx context.Context, identity string, ids []string) error
	Seen(ctx context.Context, identity string) (map[string]struct{}, error)
}

// NotificationSink delivers found orders and status texts to the user.
type NotificationSink interface {
	DeliverOrder(ctx context.Context, identity string, order extract.Order) error
	DeliverStatus(ctx context.Context, identity string, status string) error
}
