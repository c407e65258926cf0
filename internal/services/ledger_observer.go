package services

import (
	"context"
	"fmt"
	"sync"

	"transfer-backend/internal/feed"
	"transfer-backend/internal/models"
	"transfer-backend/internal/session"
	"transfer-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

// SnapshotData payload of a snapshot push
type SnapshotData struct {
	Collection string      `json:"collection"`
	ChainID    uint64      `json:"chain_id"`
	Items      interface{} `json:"items"`
}

// LedgerObserver keeps one websocket connection's view of its ledger current.
// It owns a feed.Client for the followed collections and a session.Manager
// whose switches re-scope the feed.
type LedgerObserver struct {
	source   feed.Source
	query    *QueryService
	chains   *utils.ChainRegistry
	push     *WebSocketPushService
	conn     *Connection
	sessions *session.Manager
	opts     feed.ClientOptions

	mu          sync.Mutex
	ctx         context.Context
	client      *feed.Client
	collections []string
	closed      bool
}

// NewLedgerObserver creates an observer for conn acting as sess
func NewLedgerObserver(ctx context.Context, source feed.Source, query *QueryService, chains *utils.ChainRegistry,
	push *WebSocketPushService, conn *Connection, sess *session.Session, opts feed.ClientOptions) *LedgerObserver {
	o := &LedgerObserver{
		source:   source,
		query:    query,
		chains:   chains,
		push:     push,
		conn:     conn,
		sessions: session.NewManager(sess),
		opts:     opts,
		ctx:      ctx,
	}
	o.sessions.OnSwitch(o.onSwitch)
	return o
}

// Session the session snapshots are currently read for
func (o *LedgerObserver) Session() *session.Session {
	return o.sessions.Current()
}

// Follow replaces the followed collections and restarts the feed
func (o *LedgerObserver) Follow(collections []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return feed.ErrClientClosed
	}
	if o.client != nil {
		o.client.Close()
		o.client = nil
	}
	o.collections = append([]string(nil), collections...)
	if len(collections) == 0 {
		return nil
	}

	opts := o.opts
	opts.Collections = o.collections
	o.client = feed.NewClient(o.source, o.load, o.deliver, opts)
	return o.client.Start(o.ctx, o.sessions.Current())
}

// SwitchChain moves the observer to another chain; the feed resubscribes for the new session
func (o *LedgerObserver) SwitchChain(chain *utils.ChainInfo) *session.Session {
	current := o.sessions.Current()
	return o.sessions.Switch(current.UserAddress, chain)
}

// Close stops the feed
func (o *LedgerObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.client != nil {
		o.client.Close()
		o.client = nil
	}
}

func (o *LedgerObserver) onSwitch(prev, next *session.Session) {
	o.mu.Lock()
	client := o.client
	o.mu.Unlock()
	if client != nil {
		if err := client.SwitchSession(next); err != nil {
			logrus.WithError(err).WithField("conn_id", o.conn.ID).Warn("[LedgerObserver] feed switch failed")
		}
	}
	o.push.SendToConnection(o.conn, NewPushMessage(MessageTypeSessionSwitched, next.UserAddress, map[string]interface{}{
		"session_id": next.ID,
		"chain_id":   next.ChainID(),
	}))
}

func (o *LedgerObserver) load(ctx context.Context, sess *session.Session, collection string) (interface{}, error) {
	switch collection {
	case models.CollectionTransactions:
		txs, err := o.query.ListTransactions(ctx, sess, TransactionFilter{Scope: ScopeOwn})
		if err != nil {
			return nil, err
		}
		return NewTransactionViews(txs, o.chains), nil
	case models.CollectionRecipients:
		return o.query.ListRecipients(ctx, sess, DefaultRecipientLimit)
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
}

func (o *LedgerObserver) deliver(sess *session.Session, collection string, snapshot interface{}) {
	o.push.SendToConnection(o.conn, NewPushMessage(MessageTypeSnapshot, sess.UserAddress, SnapshotData{
		Collection: collection,
		ChainID:    sess.ChainID(),
		Items:      snapshot,
	}))
}
