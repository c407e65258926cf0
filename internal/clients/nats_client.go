package clients

import (
	"fmt"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ConnectNATS connects to the NATS server used by the change feed
func ConnectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects != 0 {
		maxReconnects = cfg.MaxReconnects
	}

	logrus.WithFields(logrus.Fields{
		"url":     cfg.URL,
		"timeout": connectTimeout,
	}).Info("🔌 Connecting to NATS")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("transfer-backend"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.WithError(err).Warn("NATS connection lost")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			metrics.NATSConnectionStatus.Set(0)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	logrus.Info("✅ NATS connected")
	return conn, nil
}
