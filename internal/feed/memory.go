package feed

import (
	"context"
	"strings"
	"sync"
)

// MemoryBroker in-process Source and Publisher for single-process runs and tests
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*chanSubscription]struct{} // topic -> subscribers
}

// NewMemoryBroker creates an empty broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*chanSubscription]struct{})}
}

func memoryTopic(collection, userAddress string) string {
	return collection + "|" + strings.ToLower(userAddress)
}

// Subscribe registers a subscriber for (collection, user)
func (b *MemoryBroker) Subscribe(ctx context.Context, collection, userAddress string) (Subscription, error) {
	topic := memoryTopic(collection, userAddress)

	var sub *chanSubscription
	sub = newChanSubscription(func() error {
		b.remove(topic, sub)
		return nil
	})

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*chanSubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

func (b *MemoryBroker) remove(topic string, sub *chanSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[topic], sub)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Publish fans the notification out to every matching subscriber
func (b *MemoryBroker) Publish(_ context.Context, n Notification) error {
	sig := Signal{Collection: n.Collection, Op: n.Op, At: n.At}

	b.mu.Lock()
	targets := make([]*chanSubscription, 0, len(b.subs[memoryTopic(n.Collection, n.UserAddress)]))
	for sub := range b.subs[memoryTopic(n.Collection, n.UserAddress)] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.send(sig)
	}
	return nil
}

// Drop ends every subscription on (collection, user) as if the connection was lost
func (b *MemoryBroker) Drop(collection, userAddress string) {
	topic := memoryTopic(collection, userAddress)

	b.mu.Lock()
	targets := b.subs[topic]
	delete(b.subs, topic)
	b.mu.Unlock()

	for sub := range targets {
		sub.finish()
	}
}

// SubscriberCount number of live subscriptions on (collection, user)
func (b *MemoryBroker) SubscriberCount(collection, userAddress string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[memoryTopic(collection, userAddress)])
}
