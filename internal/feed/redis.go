package feed

import (
	"context"
	"fmt"

	"transfer-backend/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisFeed pub/sub transport on the same topic names as NATS
type RedisFeed struct {
	client *redis.Client
	prefix string
}

// NewRedisFeed wraps a connected client
func NewRedisFeed(client *redis.Client, prefix string) *RedisFeed {
	return &RedisFeed{client: client, prefix: prefix}
}

// Publish sends the notification as JSON
func (f *RedisFeed) Publish(ctx context.Context, n Notification) error {
	data, err := encode(n)
	if err != nil {
		return err
	}
	channel := Topic(f.prefix, n.Collection, n.UserAddress)
	if err := f.client.Publish(ctx, channel, data).Err(); err != nil {
		metrics.FeedNotificationsPublished.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	metrics.FeedNotificationsPublished.WithLabelValues("redis", "ok").Inc()
	return nil
}

// Subscribe subscribes to the scope's channel and waits for the confirmation
func (f *RedisFeed) Subscribe(ctx context.Context, collection, userAddress string) (Subscription, error) {
	channel := Topic(f.prefix, collection, userAddress)

	pubsub := f.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := newChanSubscription(pubsub.Close)

	go func() {
		defer sub.finish()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-msgs:
				if !ok {
					logrus.WithField("channel", channel).Warn("[RedisFeed] subscription channel closed")
					return
				}
				sub.send(decodeSignal([]byte(msg.Payload), collection))
			}
		}
	}()

	return sub, nil
}
