package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"transfer-backend/internal/metrics"
	"transfer-backend/internal/session"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Loader performs a full re-read of collection for the session's user
type Loader func(ctx context.Context, sess *session.Session, collection string) (interface{}, error)

// Sink receives every successful snapshot
type Sink func(sess *session.Session, collection string, snapshot interface{})

// ClientOptions tuning for Client
type ClientOptions struct {
	Collections    []string
	ResubscribeMin time.Duration
	ResubscribeMax time.Duration
}

// ErrClientClosed Start or SwitchSession after Close
var ErrClientClosed = errors.New("feed client closed")

// Client keeps one subscription per collection for the current session and
// answers every signal with a full re-read.
type Client struct {
	source Source
	loader Loader
	sink   Sink
	opts   ClientOptions

	mu     sync.Mutex
	parent context.Context
	sess   *session.Session
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed  atomic.Bool
	reloads atomic.Int64
	signals atomic.Int64
}

// NewClient creates an idle client
func NewClient(source Source, loader Loader, sink Sink, opts ClientOptions) *Client {
	if opts.ResubscribeMin <= 0 {
		opts.ResubscribeMin = time.Second
	}
	if opts.ResubscribeMax < opts.ResubscribeMin {
		opts.ResubscribeMax = 30 * time.Second
	}
	return &Client{source: source, loader: loader, sink: sink, opts: opts}
}

// Start subscribes for sess and performs the initial reads
func (c *Client) Start(ctx context.Context, sess *session.Session) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = ctx
	c.startLocked(sess)
	return nil
}

// SwitchSession tears the old subscriptions down before the new ones exist.
// No snapshot for the old session is delivered after it returns.
func (c *Client) SwitchSession(sess *session.Session) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	if c.parent == nil {
		c.parent = context.Background()
	}
	c.startLocked(sess)
	return nil
}

// Session currently subscribed session
func (c *Client) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Close unsubscribes everything; the client cannot be restarted
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Reloads number of completed re-reads
func (c *Client) Reloads() int64 { return c.reloads.Load() }

// Signals number of signals received
func (c *Client) Signals() int64 { return c.signals.Load() }

func (c *Client) startLocked(sess *session.Session) {
	if sess == nil {
		c.sess = nil
		return
	}
	ctx, cancel := context.WithCancel(c.parent)
	c.sess = sess
	c.cancel = cancel
	for _, collection := range c.opts.Collections {
		c.wg.Add(1)
		go func(collection string) {
			defer c.wg.Done()
			c.follow(ctx, sess, collection)
		}(collection)
	}
}

func (c *Client) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.wg.Wait()
	c.sess = nil
}

// follow subscribes, reads, and re-reads on every signal until ctx ends,
// resubscribing with backoff when the subscription drops.
func (c *Client) follow(ctx context.Context, sess *session.Session, collection string) {
	log := logrus.WithFields(logrus.Fields{
		"collection": collection,
		"user":       sess.UserAddress,
		"session":    sess.ID,
	})

	backoff := c.opts.ResubscribeMin
	first := true
	for {
		sub, err := c.source.Subscribe(ctx, collection, sess.UserAddress)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).WithField("retry_in", backoff).Warn("[FeedClient] subscribe failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.opts.ResubscribeMax)
			continue
		}
		if !first {
			metrics.FeedResubscribes.WithLabelValues(collection).Inc()
			log.Info("🔄 [FeedClient] resubscribed")
		}
		first = false
		backoff = c.opts.ResubscribeMin

		// subscribe first, then read, so nothing between the two is missed
		c.reload(ctx, sess, collection)

		for range sub.Signals() {
			c.signals.Inc()
			metrics.FeedSignals.WithLabelValues(collection).Inc()
			if ctx.Err() != nil {
				break
			}
			c.reload(ctx, sess, collection)
		}
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}
		log.WithField("retry_in", backoff).Warn("⚠️ [FeedClient] subscription dropped, keeping last snapshot")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, c.opts.ResubscribeMax)
	}
}

func (c *Client) reload(ctx context.Context, sess *session.Session, collection string) {
	snapshot, err := c.loader(ctx, sess, collection)
	if err != nil {
		if ctx.Err() == nil {
			metrics.FeedReloads.WithLabelValues(collection, "error").Inc()
			logrus.WithError(err).WithField("collection", collection).Warn("[FeedClient] re-read failed, keeping last snapshot")
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.reloads.Inc()
	metrics.FeedReloads.WithLabelValues(collection, "ok").Inc()
	if c.sink != nil {
		c.sink(sess, collection, snapshot)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
