package presence

import (
	"context"
	"errors"
	"sync"
)

// fakeBroker records every Subscribe call and hands out controllable subscriptions.
type fakeBroker struct {
	mu     sync.Mutex
	tokens []string
	topics []string
	subs   []*fakeSub
	fails  int

	subscribed chan *fakeSub
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscribed: make(chan *fakeSub, 16)}
}

func (b *fakeBroker) Subscribe(ctx context.Context, token, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = append(b.tokens, token)
	b.topics = append(b.topics, topic)

	if b.fails > 0 {
		b.fails--
		return nil, errors.New("connection refused")
	}

	sub := &fakeSub{
		topic:  topic,
		ch:     make(chan Message),
		closed: make(chan struct{}),
	}
	b.subs = append(b.subs, sub)
	b.subscribed <- sub
	return sub, nil
}

func (b *fakeBroker) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens)
}

func (b *fakeBroker) tokenAt(i int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[i]
}

type fakeSub struct {
	topic string
	ch    chan Message

	mu        sync.Mutex
	err       error
	ended     bool
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *fakeSub) Messages() <-chan Message { return s.ch }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSub) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// publish hands body to the watcher. It reports false when the subscription was closed
// or failed before the watcher read the message.
func (s *fakeSub) publish(body string) bool {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return false
	}

	select {
	case s.ch <- Message{Topic: s.topic, Body: []byte(body)}:
		return true
	case <-s.closed:
		return false
	}
}

// fail ends the subscription as a transport failure would.
func (s *fakeSub) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.ch)
}
