package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"transfer-backend/internal/feed"
	"transfer-backend/internal/services"
	"transfer-backend/internal/session"
	"transfer-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// ClientMessage actions a websocket client sends
type ClientMessage struct {
	Action  string                    `json:"action"` // "subscribe", "unsubscribe", "switch_chain"
	Type    services.SubscriptionType `json:"type"`   // collection, or "ping"
	ChainID uint64                    `json:"chain_id,omitempty"`
}

// WebSocketHandler manages WebSocket connections and their ledger feeds
type WebSocketHandler struct {
	tokens   TokenValidator
	chains   *utils.ChainRegistry
	source   feed.Source
	query    *services.QueryService
	push     *services.WebSocketPushService
	subs     *services.WebSocketSubscriptionManager
	feedOpts feed.ClientOptions
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	tokens TokenValidator,
	chains *utils.ChainRegistry,
	source feed.Source,
	query *services.QueryService,
	push *services.WebSocketPushService,
	subs *services.WebSocketSubscriptionManager,
	feedOpts feed.ClientOptions,
	checkOrigin func(r *http.Request) bool,
) *WebSocketHandler {
	return &WebSocketHandler{
		tokens:   tokens,
		chains:   chains,
		source:   source,
		query:    query,
		push:     push,
		subs:     subs,
		feedOpts: feedOpts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWebSocket GET /api/ws?token=
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	sess := h.sessionFromToken(c.Request)
	if sess == nil {
		respondWithError(c, http.StatusUnauthorized, "Unauthorized", "valid token required", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("❌ [WebSocket] upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pc := services.NewConnection(sess.UserAddress, conn)
	log := logrus.WithFields(logrus.Fields{"client_id": pc.ID, "user": pc.UserAddress})

	h.push.RegisterConnectionMapping(pc)
	defer h.push.UnregisterConnectionMapping(pc)
	h.subs.RegisterClient(pc.ID, pc.UserAddress)
	defer h.subs.UnregisterClient(pc.ID)

	observer := services.NewLedgerObserver(ctx, h.source, h.query, h.chains, h.push, pc, sess, h.feedOpts)
	defer observer.Close()

	log.WithField("chain_id", sess.ChainID()).Info("📡 [WebSocket] client connected")
	h.push.SendToConnection(pc, services.NewPushMessage(services.MessageTypeConnected, pc.UserAddress, gin.H{
		"client_id":  pc.ID,
		"session_id": sess.ID,
		"chain_id":   sess.ChainID(),
	}))

	pongChan := make(chan []byte, 10)
	readDone := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("❌ [WebSocket] PANIC recovered in read goroutine: %v", r)
			}
			close(readDone)
		}()

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("🔌 [WebSocket] connection closed")
				} else {
					log.WithError(err).Debug("⚠️ [WebSocket] read ended")
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			if messageType != websocket.TextMessage {
				continue
			}

			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.WithError(err).Debug("⚠️ [WebSocket] unparseable client message")
				continue
			}

			if msg.Action == "" && msg.Type == "ping" {
				pong, _ := json.Marshal(gin.H{"type": "pong", "timestamp": time.Now().UTC()})
				select {
				case pongChan <- pong:
				default:
				}
				continue
			}
			h.handleClientMessage(pc, observer, &msg)
		}
	}()

	// single writer: push queue, pongs and protocol pings
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case message := <-pc.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithError(err).Debug("❌ [WebSocket] write failed")
				return
			}
		case pong := <-pongChan:
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.WithError(err).Debug("❌ [WebSocket] ping failed")
				return
			}
		case <-readDone:
			log.Info("📖 [WebSocket] client disconnected")
			return
		}
	}
}

// handleClientMessage subscribe / unsubscribe / switch_chain
func (h *WebSocketHandler) handleClientMessage(pc *services.Connection, observer *services.LedgerObserver, msg *ClientMessage) {
	reply := func(msgType string, data gin.H) {
		h.push.SendToConnection(pc, services.NewPushMessage(msgType, pc.UserAddress, data))
	}

	switch msg.Action {
	case "subscribe", "unsubscribe":
		var err error
		if msg.Action == "subscribe" {
			err = h.subs.Subscribe(pc.ID, msg.Type)
		} else {
			err = h.subs.Unsubscribe(pc.ID, msg.Type)
		}
		if err != nil {
			reply("error", gin.H{"action": msg.Action, "sub_type": msg.Type, "error": err.Error()})
			return
		}
		if err := observer.Follow(h.subs.Collections(pc.ID)); err != nil {
			reply("error", gin.H{"action": msg.Action, "sub_type": msg.Type, "error": err.Error()})
			return
		}
		reply(msg.Action+"_confirmed", gin.H{"sub_type": msg.Type, "collections": h.subs.Collections(pc.ID)})

	case "switch_chain":
		chain, ok := h.chains.Get(msg.ChainID)
		if !ok {
			reply("error", gin.H{"action": msg.Action, "error": "unknown chain", "chain_id": msg.ChainID})
			return
		}
		// session_switched is pushed by the observer
		observer.SwitchChain(chain)

	default:
		reply("error", gin.H{"action": msg.Action, "error": "unknown action"})
	}
}

// sessionFromToken reads the JWT from ?token= or the Authorization header
func (h *WebSocketHandler) sessionFromToken(r *http.Request) *session.Session {
	token := r.URL.Query().Get("token")
	if token == "" {
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		return nil
	}

	claims, err := h.tokens.ValidateJWTToken(token)
	if err != nil {
		logrus.WithError(err).Debug("❌ [WebSocket] JWT validation failed")
		return nil
	}
	chain, _ := h.chains.Get(claims.ChainID)
	return session.New(claims.UserAddress, chain)
}
