package events

import "context"

// Subscription is one open push channel. Close is idempotent.
type Subscription interface {
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}
