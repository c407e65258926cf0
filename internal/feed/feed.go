// Package feed delivers "something changed" signals for a user's ledger collections.
// Signals carry no row data; consumers answer every signal with a full re-read.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Op kind of row change
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Notification published after a ledger mutation
type Notification struct {
	Collection  string    `json:"collection"`
	UserAddress string    `json:"user_address"`
	Op          Op        `json:"op"`
	At          time.Time `json:"at"`
}

// Signal invalidate signal delivered to a subscriber
type Signal struct {
	Collection string
	Op         Op
	At         time.Time
}

// Subscription stream of signals for one (collection, user) scope.
// Signals is closed when the subscription drops or is closed.
type Subscription interface {
	Signals() <-chan Signal
	Close() error
}

// Source opens subscriptions
type Source interface {
	Subscribe(ctx context.Context, collection, userAddress string) (Subscription, error)
}

// Publisher announces mutations
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// NopPublisher is used when the store itself emits notifications (Postgres triggers)
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Notification) error { return nil }

// signalBuffer pending signals per subscription; a full buffer already guarantees a re-read
const signalBuffer = 16

// Topic builds "<prefix>.<collection>.<address>"
func Topic(prefix, collection, userAddress string) string {
	if prefix == "" {
		prefix = "ledger"
	}
	return fmt.Sprintf("%s.%s.%s", prefix, collection, strings.ToLower(userAddress))
}

func encode(n Notification) ([]byte, error) {
	n.UserAddress = strings.ToLower(n.UserAddress)
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	return json.Marshal(n)
}

func decodeSignal(data []byte, fallbackCollection string) Signal {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil || n.Collection == "" {
		// an unreadable payload still means "re-read"
		return Signal{Collection: fallbackCollection, Op: OpUpdate, At: time.Now().UTC()}
	}
	return Signal{Collection: n.Collection, Op: n.Op, At: n.At}
}

// trySend delivers without blocking. A dropped signal is fine while another is pending.
func trySend(ch chan Signal, s Signal) bool {
	select {
	case ch <- s:
		return true
	default:
		return false
	}
}

// chanSubscription Subscription backed by a buffered channel.
// send and finish may be called from any goroutine.
type chanSubscription struct {
	ch      chan Signal
	onClose func() error

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newChanSubscription(onClose func() error) *chanSubscription {
	return &chanSubscription{
		ch:      make(chan Signal, signalBuffer),
		onClose: onClose,
	}
}

func (s *chanSubscription) Signals() <-chan Signal { return s.ch }

func (s *chanSubscription) send(sig Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return trySend(s.ch, sig)
}

// finish ends the signal stream without running the close hook (a drop)
func (s *chanSubscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *chanSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the transport resources and ends the stream
func (s *chanSubscription) Close() error {
	var err error
	s.once.Do(func() {
		if s.onClose != nil {
			err = s.onClose()
		}
	})
	s.finish()
	return err
}
