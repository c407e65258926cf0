package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"transfer-backend/internal/db"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const pgPingInterval = 90 * time.Second

// PGFeed Source backed by LISTEN on the channel the ledger triggers NOTIFY.
// One connection serves every subscriber.
type PGFeed struct {
	listener *pq.Listener

	mu   sync.Mutex
	subs map[string]map[*chanSubscription]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewPGFeed opens the listener connection
func NewPGFeed(dsn string, minReconnect, maxReconnect time.Duration) (*PGFeed, error) {
	f := &PGFeed{
		subs: make(map[string]map[*chanSubscription]struct{}),
		done: make(chan struct{}),
	}
	f.listener = pq.NewListener(dsn, minReconnect, maxReconnect, f.onEvent)
	if err := f.listener.Listen(db.ChangeChannel); err != nil {
		_ = f.listener.Close()
		return nil, fmt.Errorf("listen %s: %w", db.ChangeChannel, err)
	}

	logrus.WithField("channel", db.ChangeChannel).Info("✅ [PGFeed] listening for ledger changes")
	go f.run()
	return f, nil
}

func (f *PGFeed) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		logrus.WithError(err).Warn("[PGFeed] listener disconnected")
	case pq.ListenerEventReconnected:
		logrus.Info("[PGFeed] listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		logrus.WithError(err).Warn("[PGFeed] reconnect attempt failed")
	}
}

type pgPayload struct {
	Collection  string `json:"collection"`
	UserAddress string `json:"user_address"`
	Op          Op     `json:"op"`
}

func (f *PGFeed) run() {
	ticker := time.NewTicker(pgPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnected: anything may have been missed
				f.broadcast()
				continue
			}
			f.dispatch(n.Extra)
		case <-ticker.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					logrus.WithError(err).Debug("[PGFeed] ping failed")
				}
			}()
		}
	}
}

func (f *PGFeed) dispatch(payload string) {
	var p pgPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Collection == "" {
		logrus.WithField("payload", payload).Warn("[PGFeed] unreadable notification, broadcasting")
		f.broadcast()
		return
	}

	sig := Signal{Collection: p.Collection, Op: p.Op, At: time.Now().UTC()}
	for _, sub := range f.targets(memoryTopic(p.Collection, p.UserAddress)) {
		sub.send(sig)
	}
}

func (f *PGFeed) broadcast() {
	type target struct {
		sub        *chanSubscription
		collection string
	}

	f.mu.Lock()
	var all []target
	for topic, subs := range f.subs {
		collection, _, _ := strings.Cut(topic, "|")
		for sub := range subs {
			all = append(all, target{sub: sub, collection: collection})
		}
	}
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, t := range all {
		t.sub.send(Signal{Collection: t.collection, Op: OpUpdate, At: now})
	}
}

func (f *PGFeed) targets(topic string) []*chanSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*chanSubscription, 0, len(f.subs[topic]))
	for sub := range f.subs[topic] {
		out = append(out, sub)
	}
	return out
}

// Subscribe registers a subscriber; the listener connection is shared
func (f *PGFeed) Subscribe(ctx context.Context, collection, userAddress string) (Subscription, error) {
	select {
	case <-f.done:
		return nil, fmt.Errorf("postgres feed closed")
	default:
	}

	topic := memoryTopic(collection, userAddress)
	var sub *chanSubscription
	sub = newChanSubscription(func() error {
		f.mu.Lock()
		delete(f.subs[topic], sub)
		if len(f.subs[topic]) == 0 {
			delete(f.subs, topic)
		}
		f.mu.Unlock()
		return nil
	})

	f.mu.Lock()
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[*chanSubscription]struct{})
	}
	f.subs[topic][sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-f.done:
		}
	}()
	return sub, nil
}

// Publish is a no-op: the ledger triggers emit the NOTIFY inside the writing transaction
func (f *PGFeed) Publish(context.Context, Notification) error { return nil }

// Close stops listening and ends every subscription
func (f *PGFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.listener.Close()

		f.mu.Lock()
		subs := f.subs
		f.subs = make(map[string]map[*chanSubscription]struct{})
		f.mu.Unlock()

		for _, set := range subs {
			for sub := range set {
				sub.finish()
			}
		}
	})
	return err
}
