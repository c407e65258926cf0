package feed

import (
	"context"
	"fmt"
	"time"

	"transfer-backend/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const natsClosedCheck = 5 * time.Second

// NATSFeed publishes and subscribes on "<prefix>.<collection>.<address>" subjects
type NATSFeed struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSFeed wraps an established connection
func NewNATSFeed(conn *nats.Conn, prefix string) *NATSFeed {
	return &NATSFeed{conn: conn, prefix: prefix}
}

// Publish sends the notification as JSON
func (f *NATSFeed) Publish(_ context.Context, n Notification) error {
	data, err := encode(n)
	if err != nil {
		return err
	}
	subject := Topic(f.prefix, n.Collection, n.UserAddress)
	if err := f.conn.Publish(subject, data); err != nil {
		metrics.FeedNotificationsPublished.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	metrics.FeedNotificationsPublished.WithLabelValues("nats", "ok").Inc()
	return nil
}

// Subscribe subscribes to the scope's subject. The stream ends when the
// connection closes for good or ctx is done.
func (f *NATSFeed) Subscribe(ctx context.Context, collection, userAddress string) (Subscription, error) {
	subject := Topic(f.prefix, collection, userAddress)

	var natsSub *nats.Subscription
	sub := newChanSubscription(func() error {
		if natsSub != nil && natsSub.IsValid() {
			return natsSub.Unsubscribe()
		}
		return nil
	})

	natsSub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		metrics.NATSMessagesReceived.WithLabelValues(collection).Inc()
		sub.send(decodeSignal(msg.Data, collection))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	logrus.WithField("subject", subject).Debug("[NATSFeed] subscribed")

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	// nats.go resubscribes transparently across reconnects; only a closed
	// connection ends the stream.
	go func() {
		ticker := time.NewTicker(natsClosedCheck)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if sub.isClosed() {
					return
				}
				if f.conn.IsClosed() {
					sub.finish()
					return
				}
			}
		}
	}()

	return sub, nil
}
