// Package presence implements the thin Presence Service of spec.md §4.8:
// an in-memory index of who is where, with TTL eviction and streamed
// updates reusing internal/pubsub. Presence storage internals are
// explicitly out of scope (spec.md §1 Non-goals) — this is the reference
// interface and a minimal in-memory backing, not a durable store.
package presence

import (
	"sync"
	"time"

	"github.com/AltairaLabs/collabkit/internal/pubsub"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// Presence is one session's location record.
type Presence struct {
	SessionID  string
	UserID     string
	LocationID string
	Data       []byte
	UpdatedAt  time.Time
}

// Service is the Presence Service contract of spec.md §4.8.
type Service interface {
	Submit(p Presence) error
	Remove(sessionID string) error
	GetBySessionID(sessionID string) (*Presence, error)
	GetByUserID(userID string) ([]Presence, error)
	GetByLocationID(locationID string) ([]Presence, error)
	StreamBySessionID(sessionID string, h pubsub.Handler) pubsub.Subscription
	StreamByUserID(userID string, h pubsub.Handler) pubsub.Subscription
	StreamByLocationID(locationID string, h pubsub.Handler) pubsub.Subscription
}

func sessionTopic(id string) string  { return "presence:session:" + id }
func userTopic(id string) string     { return "presence:user:" + id }
func locationTopic(id string) string { return "presence:location:" + id }

// InMemoryService is the reference Service backing, grounded on the
// teacher's InMemoryTaskStore: a guarded map plus linear-scan secondary
// lookups (the teacher's List(contextID, ...) pattern generalized from
// tasks to presence records).
type InMemoryService struct {
	mu       sync.RWMutex
	sessions map[string]Presence

	bus pubsub.Bus
	ttl time.Duration

	stopSweep chan struct{}
	doneSweep chan struct{}
}

// New constructs an InMemoryService. ttl <= 0 disables eviction.
func New(bus pubsub.Bus, ttl time.Duration) *InMemoryService {
	s := &InMemoryService{
		sessions:  make(map[string]Presence),
		bus:       bus,
		ttl:       ttl,
		stopSweep: make(chan struct{}),
		doneSweep: make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweepLoop()
	} else {
		close(s.doneSweep)
	}
	return s
}

// Close stops the TTL sweep goroutine, if any.
func (s *InMemoryService) Close() {
	select {
	case <-s.stopSweep:
	default:
		close(s.stopSweep)
	}
	<-s.doneSweep
}

// Submit upserts a session's presence record and publishes it on the
// session, user, and location topics.
func (s *InMemoryService) Submit(p Presence) error {
	if p.SessionID == "" {
		return collaberrors.NewInvalidEntity("presence", "Submit", "Presence", p, "sessionID")
	}
	p.UpdatedAt = time.Now()

	s.mu.Lock()
	s.sessions[p.SessionID] = p
	s.mu.Unlock()

	s.bus.Publish(sessionTopic(p.SessionID), p)
	if p.UserID != "" {
		s.bus.Publish(userTopic(p.UserID), p)
	}
	if p.LocationID != "" {
		s.bus.Publish(locationTopic(p.LocationID), p)
	}
	return nil
}

// Remove deletes a session's presence record.
func (s *InMemoryService) Remove(sessionID string) error {
	s.mu.Lock()
	p, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return collaberrors.NewNotFound("presence", "Remove", "session", sessionID)
	}

	gone := p
	gone.Data = nil
	s.bus.Publish(sessionTopic(sessionID), gone)
	if p.UserID != "" {
		s.bus.Publish(userTopic(p.UserID), gone)
	}
	if p.LocationID != "" {
		s.bus.Publish(locationTopic(p.LocationID), gone)
	}
	return nil
}

// GetBySessionID returns the record for sessionID, or NotFound.
func (s *InMemoryService) GetBySessionID(sessionID string) (*Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.sessions[sessionID]
	if !ok {
		return nil, collaberrors.NewNotFound("presence", "GetBySessionID", "session", sessionID)
	}
	return &p, nil
}

// GetByUserID returns every session's record for userID.
func (s *InMemoryService) GetByUserID(userID string) ([]Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Presence
	for _, p := range s.sessions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetByLocationID returns every session's record for locationID.
func (s *InMemoryService) GetByLocationID(locationID string) ([]Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Presence
	for _, p := range s.sessions {
		if p.LocationID == locationID {
			out = append(out, p)
		}
	}
	return out, nil
}

// StreamBySessionID subscribes h to updates for one session.
func (s *InMemoryService) StreamBySessionID(sessionID string, h pubsub.Handler) pubsub.Subscription {
	return s.bus.Subscribe(sessionTopic(sessionID), h)
}

// StreamByUserID subscribes h to updates for any of a user's sessions.
func (s *InMemoryService) StreamByUserID(userID string, h pubsub.Handler) pubsub.Subscription {
	return s.bus.Subscribe(userTopic(userID), h)
}

// StreamByLocationID subscribes h to updates for any session at a
// location.
func (s *InMemoryService) StreamByLocationID(locationID string, h pubsub.Handler) pubsub.Subscription {
	return s.bus.Subscribe(locationTopic(locationID), h)
}

func (s *InMemoryService) sweepLoop() {
	defer close(s.doneSweep)
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *InMemoryService) sweepOnce() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	var expired []Presence
	for id, p := range s.sessions {
		if p.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			expired = append(expired, p)
		}
	}
	s.mu.Unlock()

	for _, p := range expired {
		gone := p
		gone.Data = nil
		s.bus.Publish(sessionTopic(p.SessionID), gone)
		if p.UserID != "" {
			s.bus.Publish(userTopic(p.UserID), gone)
		}
		if p.LocationID != "" {
			s.bus.Publish(locationTopic(p.LocationID), gone)
		}
	}
}
