package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"transfer-backend/internal/metrics"
	"transfer-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Push message types
const (
	MessageTypeConnected        = "connection_established"
	MessageTypeSnapshot         = "snapshot"
	MessageTypeTransferResolved = "transfer_resolved"
	MessageTypeSessionSwitched  = "session_switched"
)

// Connection one websocket connection; the handler owns reads and writes
type Connection struct {
	ID          string          `json:"id"`
	UserAddress string          `json:"user_address"`
	Conn        *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// NewConnection creates a connection with a buffered send queue
func NewConnection(userAddress string, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		UserAddress: strings.ToLower(userAddress),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		ConnectedAt: time.Now(),
	}
}

// PushMessage base envelope of every server push
type PushMessage struct {
	Type        string      `json:"type"`
	Timestamp   string      `json:"timestamp"`
	MessageID   string      `json:"message_id"`
	UserAddress string      `json:"user_address"`
	Data        interface{} `json:"data"`
}

// NewPushMessage stamps a message
func NewPushMessage(msgType, userAddress string, data interface{}) PushMessage {
	return PushMessage{
		Type:        msgType,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		MessageID:   uuid.New().String(),
		UserAddress: strings.ToLower(userAddress),
		Data:        data,
	}
}

// TransferResolvedData pushed when a watched transfer reaches a terminal status
type TransferResolvedData struct {
	Hash        string `json:"transaction_hash"`
	ChainID     uint64 `json:"chain_id"`
	Status      string `json:"status"`
	GasFee      string `json:"gas_fee"`
	BlockNumber uint64 `json:"block_number"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Error       string `json:"error,omitempty"`
	UserMessage string `json:"user_message"`
}

// WebSocketPushService routes server pushes to a user's open connections
type WebSocketPushService struct {
	connections map[string]*Connection   // key: connectionID
	userConns   map[string][]*Connection // key: userAddress
	mutex       sync.RWMutex
}

// NewWebSocketPushService creates the push service
func NewWebSocketPushService() *WebSocketPushService {
	return &WebSocketPushService{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]*Connection),
	}
}

// RegisterConnectionMapping makes conn reachable by PushToUser
func (s *WebSocketPushService) RegisterConnectionMapping(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections[conn.ID] = conn
	s.userConns[conn.UserAddress] = append(s.userConns[conn.UserAddress], conn)
	metrics.WebSocketConnections.Inc()

	logrus.WithFields(logrus.Fields{"user": conn.UserAddress, "conn_id": conn.ID}).Info("📱 [WebSocketPush] connection registered")
}

// UnregisterConnectionMapping removes conn; the Send channel is left to its owner
func (s *WebSocketPushService) UnregisterConnectionMapping(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.connections[conn.ID]; !ok {
		return
	}
	delete(s.connections, conn.ID)
	metrics.WebSocketConnections.Dec()

	conns := s.userConns[conn.UserAddress]
	for i, c := range conns {
		if c.ID == conn.ID {
			s.userConns[conn.UserAddress] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(s.userConns[conn.UserAddress]) == 0 {
		delete(s.userConns, conn.UserAddress)
	}

	logrus.WithFields(logrus.Fields{"user": conn.UserAddress, "conn_id": conn.ID}).Info("📱 [WebSocketPush] connection unregistered")
}

// PushToUser queues msg on every connection of the message's user. Full queues drop the message.
func (s *WebSocketPushService) PushToUser(msg PushMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("❌ [WebSocketPush] failed to marshal message")
		return 0
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	conns := s.userConns[msg.UserAddress]
	if len(conns) == 0 {
		logrus.WithField("user", msg.UserAddress).Debug("📭 [WebSocketPush] no connections for user")
		return 0
	}

	sent := 0
	for _, conn := range conns {
		if s.enqueue(conn, msg.Type, data) {
			sent++
		}
	}
	logrus.WithFields(logrus.Fields{
		"user":   msg.UserAddress,
		"type":   msg.Type,
		"sent":   sent,
		"failed": len(conns) - sent,
	}).Debug("📤 [WebSocketPush] message delivery summary")
	return sent
}

// SendToConnection queues msg on a single connection
func (s *WebSocketPushService) SendToConnection(conn *Connection, msg PushMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("❌ [WebSocketPush] failed to marshal message")
		return false
	}
	return s.enqueue(conn, msg.Type, data)
}

func (s *WebSocketPushService) enqueue(conn *Connection, msgType string, data []byte) bool {
	select {
	case conn.Send <- data:
		metrics.WebSocketPushes.WithLabelValues(msgType, "queued").Inc()
		return true
	default:
		metrics.WebSocketPushes.WithLabelValues(msgType, "dropped").Inc()
		logrus.WithField("conn_id", conn.ID).Warn("⚠️ [WebSocketPush] send queue full, message dropped")
		return false
	}
}

// ConnectionCount open connections, optionally for one user
func (s *WebSocketPushService) ConnectionCount(userAddress string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if userAddress == "" {
		return len(s.connections)
	}
	return len(s.userConns[strings.ToLower(userAddress)])
}

// NotifyingRecorder records outcomes, then tells the user's open connections
type NotifyingRecorder struct {
	next OutcomeRecorder
	push *WebSocketPushService
}

// NewNotifyingRecorder wraps next
func NewNotifyingRecorder(next OutcomeRecorder, push *WebSocketPushService) *NotifyingRecorder {
	return &NotifyingRecorder{next: next, push: push}
}

// Record implements OutcomeRecorder
func (r *NotifyingRecorder) Record(ctx context.Context, o Outcome) error {
	err := r.next.Record(ctx, o)
	if r.push == nil || o.Session == nil || o.Submission == nil {
		return err
	}

	data := TransferResolvedData{
		Hash:        o.Submission.HashHex(),
		ChainID:     o.Submission.ChainID,
		Status:      string(o.Status),
		GasFee:      "0",
		BlockNumber: o.BlockNumber,
		ExplorerURL: o.Session.Chain.TxURL(o.Submission.HashHex()),
	}
	if o.GasFee != nil {
		data.GasFee = o.GasFee.String()
	}
	if o.Err != nil {
		data.Error = o.Err.Error()
	}
	if o.Status == models.TransactionStatusSuccess {
		data.UserMessage = "🎉 Transfer confirmed"
	} else {
		data.UserMessage = "❌ Transfer failed"
	}
	r.push.PushToUser(NewPushMessage(MessageTypeTransferResolved, o.Session.UserAddress, data))
	return err
}
