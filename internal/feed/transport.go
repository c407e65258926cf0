package feed

import (
	"context"
	"fmt"
	"time"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/config"

	"github.com/sirupsen/logrus"
)

// Transport configured Source/Publisher pair and its cleanup
type Transport struct {
	Name      string
	Source    Source
	Publisher Publisher
	closers   []func() error
}

// Close releases the transport connections
func (t *Transport) Close() error {
	var firstErr error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenTransport connects the transport selected by feed.transport
func OpenTransport(ctx context.Context, cfg *config.Config) (*Transport, error) {
	name := cfg.Feed.Transport
	logrus.WithField("transport", name).Info("🔌 Opening change feed transport")

	switch name {
	case "nats":
		conn, err := clients.ConnectNATS(cfg.NATS)
		if err != nil {
			return nil, err
		}
		f := NewNATSFeed(conn, cfg.NATS.SubjectPrefix)
		return &Transport{
			Name:      name,
			Source:    f,
			Publisher: f,
			closers: []func() error{func() error {
				if err := conn.Drain(); err != nil {
					conn.Close()
				}
				return nil
			}},
		}, nil

	case "redis":
		client, err := clients.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		f := NewRedisFeed(client, cfg.Redis.ChannelPrefix)
		return &Transport{Name: name, Source: f, Publisher: f, closers: []func() error{client.Close}}, nil

	case "postgres":
		f, err := NewPGFeed(cfg.Database.DSN,
			time.Duration(cfg.Feed.ResubscribeMin)*time.Second,
			time.Duration(cfg.Feed.ResubscribeMax)*time.Second)
		if err != nil {
			return nil, err
		}
		return &Transport{Name: name, Source: f, Publisher: NopPublisher{}, closers: []func() error{f.Close}}, nil

	case "memory", "":
		b := NewMemoryBroker()
		return &Transport{Name: "memory", Source: b, Publisher: b}, nil

	default:
		return nil, fmt.Errorf("unknown feed transport %q", name)
	}
}
