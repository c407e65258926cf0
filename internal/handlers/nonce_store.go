package handlers

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

const (
	nonceTTL      = 5 * time.Minute
	maxOpenNonces = 10000
)

// nonceStore issued sign-in nonces; each can be redeemed once before it expires
type nonceStore struct {
	mu     sync.Mutex
	issued *lru.Cache // nonce -> issued-at
	now    func() time.Time
}

func newNonceStore() *nonceStore {
	return &nonceStore{issued: lru.New(maxOpenNonces), now: time.Now}
}

func (s *nonceStore) add(nonce string, at time.Time) {
	s.mu.Lock()
	s.issued.Add(nonce, at)
	s.mu.Unlock()
}

// redeem removes nonce and reports whether it was issued within nonceTTL
func (s *nonceStore) redeem(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.issued.Get(nonce)
	if !ok {
		return false
	}
	s.issued.Remove(nonce)
	return s.now().Sub(v.(time.Time)) <= nonceTTL
}
