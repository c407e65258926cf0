package services

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"transfer-backend/internal/models"
)

// SubscriptionType ledger collection a websocket client follows
type SubscriptionType string

const (
	SubscriptionTypeTransactions SubscriptionType = models.CollectionTransactions
	SubscriptionTypeRecipients   SubscriptionType = models.CollectionRecipients
)

// Valid reports whether t names a followable collection
func (t SubscriptionType) Valid() bool {
	return t == SubscriptionTypeTransactions || t == SubscriptionTypeRecipients
}

// ClientSubscription one connection and the collections it follows
type ClientSubscription struct {
	ClientID      string
	Address       string // from the JWT, lower-cased
	Subscriptions map[SubscriptionType]bool
	mu            sync.RWMutex
}

// WebSocketSubscriptionManager tracks which connections follow which collections
type WebSocketSubscriptionManager struct {
	clients map[string]*ClientSubscription
	mu      sync.RWMutex

	// collection -> address -> clientID set
	index   map[SubscriptionType]map[string]map[string]bool
	indexMu sync.RWMutex
}

var (
	ErrClientNotFound          = errors.New("client not found")
	ErrSubscriptionNotFound    = errors.New("subscription not found")
	ErrUnknownSubscriptionType = errors.New("unknown subscription type")
)

// NewWebSocketSubscriptionManager creates a new subscription manager
func NewWebSocketSubscriptionManager() *WebSocketSubscriptionManager {
	return &WebSocketSubscriptionManager{
		clients: make(map[string]*ClientSubscription),
		index:   make(map[SubscriptionType]map[string]map[string]bool),
	}
}

// RegisterClient registers a new client connection
func (m *WebSocketSubscriptionManager) RegisterClient(clientID, address string) *ClientSubscription {
	client := &ClientSubscription{
		ClientID:      clientID,
		Address:       strings.ToLower(address),
		Subscriptions: make(map[SubscriptionType]bool),
	}
	m.mu.Lock()
	m.clients[clientID] = client
	m.mu.Unlock()
	return client
}

// UnregisterClient removes a client and all its subscriptions
func (m *WebSocketSubscriptionManager) UnregisterClient(clientID string) {
	m.mu.Lock()
	client, exists := m.clients[clientID]
	delete(m.clients, clientID)
	m.mu.Unlock()
	if !exists {
		return
	}

	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	for _, byAddr := range m.index {
		if set := byAddr[client.Address]; set != nil {
			delete(set, clientID)
			if len(set) == 0 {
				delete(byAddr, client.Address)
			}
		}
	}
}

// Subscribe adds a collection to a client's subscriptions
func (m *WebSocketSubscriptionManager) Subscribe(clientID string, subType SubscriptionType) error {
	if !subType.Valid() {
		return ErrUnknownSubscriptionType
	}
	client, ok := m.GetClient(clientID)
	if !ok {
		return ErrClientNotFound
	}

	client.mu.Lock()
	client.Subscriptions[subType] = true
	client.mu.Unlock()

	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	byAddr := m.index[subType]
	if byAddr == nil {
		byAddr = make(map[string]map[string]bool)
		m.index[subType] = byAddr
	}
	if byAddr[client.Address] == nil {
		byAddr[client.Address] = make(map[string]bool)
	}
	byAddr[client.Address][clientID] = true
	return nil
}

// Unsubscribe removes a collection from a client's subscriptions
func (m *WebSocketSubscriptionManager) Unsubscribe(clientID string, subType SubscriptionType) error {
	client, ok := m.GetClient(clientID)
	if !ok {
		return ErrClientNotFound
	}

	client.mu.Lock()
	_, exists := client.Subscriptions[subType]
	delete(client.Subscriptions, subType)
	client.mu.Unlock()
	if !exists {
		return ErrSubscriptionNotFound
	}

	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	if set := m.index[subType][client.Address]; set != nil {
		delete(set, clientID)
	}
	return nil
}

// Collections returns the client's followed collections, sorted
func (m *WebSocketSubscriptionManager) Collections(clientID string) []string {
	client, ok := m.GetClient(clientID)
	if !ok {
		return nil
	}
	client.mu.RLock()
	defer client.mu.RUnlock()
	out := make([]string, 0, len(client.Subscriptions))
	for t := range client.Subscriptions {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// GetClientsFor returns the clients following subType for address
func (m *WebSocketSubscriptionManager) GetClientsFor(subType SubscriptionType, address string) []string {
	m.indexMu.RLock()
	defer m.indexMu.RUnlock()
	var clientIDs []string
	for clientID := range m.index[subType][strings.ToLower(address)] {
		clientIDs = append(clientIDs, clientID)
	}
	return clientIDs
}

// GetClient returns a client by ID
func (m *WebSocketSubscriptionManager) GetClient(clientID string) (*ClientSubscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[clientID]
	return client, exists
}

// ClientCount number of registered clients
func (m *WebSocketSubscriptionManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
