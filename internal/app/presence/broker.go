package presence

import "context"

// Message is one frame delivered on a subscription.
type Message struct {
	Topic string
	Body  []byte
}

// Subscription is a live topic subscription.
//
// Messages is closed when the subscription ends, either through Close or a transport failure;
// Err then reports the failure, or nil after Close.
type Subscription interface {
	Messages() <-chan Message
	Err() error
	Close() error
}

// Broker opens authenticated subscriptions. token is sent as the bearer credential of the connection.
type Broker interface {
	Subscribe(ctx context.Context, token, topic string) (Subscription, error)
}

// TokenSource returns the current session token. It is consulted on every connection attempt,
// so a refreshed token is picked up by the next reconnect.
type TokenSource func() (string, bool)
