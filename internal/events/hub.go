package events

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const shardCount = 32

// HubOptions configures a Hub.
type HubOptions struct {
	// Keepalive is how long a subscriber may wait before receiving a keepalive event.
	Keepalive time.Duration
	// Buffer is the per-subscriber queue depth; events beyond it are dropped.
	Buffer int
	// OrphanTTL bounds the lifetime of sessions that never got a subscriber. Zero disables reaping.
	OrphanTTL time.Duration
	Logger    *zap.Logger
}

// Hub is the process-wide session id -> sink registry. Sessions are spread
// over independently locked shards so publish, subscribe and teardown on one
// session never wait on another session's lock.
type Hub struct {
	shards    [shardCount]*shard
	keepalive time.Duration
	buffer    int
	orphanTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

type shard struct {
	mu    sync.RWMutex
	sinks map[string]*sink
}

type sink struct {
	id         string
	createdAt  time.Time
	mu         sync.Mutex
	sub        *Subscription
	subscribed bool
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Keepalive <= 0 {
		opts.Keepalive = 30 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		keepalive: opts.Keepalive,
		buffer:    opts.Buffer,
		orphanTTL: opts.OrphanTTL,
		logger:    opts.Logger,
		now:       time.Now,
	}
	for i := range h.shards {
		h.shards[i] = &shard{sinks: make(map[string]*sink)}
	}
	return h
}

func (h *Hub) shardFor(sessionID string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(sessionID))
	return h.shards[f.Sum32()%shardCount]
}

// Ensure registers the session if it does not exist yet.
func (h *Hub) Ensure(sessionID string) {
	h.ensure(sessionID)
}

func (h *Hub) ensure(sessionID string) *sink {
	sh := h.shardFor(sessionID)
	sh.mu.RLock()
	s, ok := sh.sinks[sessionID]
	sh.mu.RUnlock()
	if ok {
		return s
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sinks[sessionID]; ok {
		return s
	}
	s = &sink{id: sessionID, createdAt: h.now()}
	sh.sinks[sessionID] = s
	return s
}

func (h *Hub) lookup(sessionID string) (*sink, bool) {
	sh := h.shardFor(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sinks[sessionID]
	return s, ok
}

// detach clears sub from its sink and unregisters the sink, but only while
// sub is still the live subscriber. Shard then sink lock order matches
// Subscribe and Reap.
func (h *Hub) detach(sub *Subscription) {
	s := sub.sink
	sh := h.shardFor(s.id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s.mu.Lock()
	current := s.sub == sub
	if current {
		s.sub = nil
	}
	s.mu.Unlock()
	if current {
		if cur, ok := sh.sinks[s.id]; ok && cur == s {
			delete(sh.sinks, s.id)
		}
	}
}

// Exists reports whether the session is registered.
func (h *Hub) Exists(sessionID string) bool {
	_, ok := h.lookup(sessionID)
	return ok
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	n := 0
	for _, sh := range h.shards {
		sh.mu.RLock()
		n += len(sh.sinks)
		sh.mu.RUnlock()
	}
	return n
}

// Publish implements Publisher for in-process delivery.
func (h *Hub) Publish(sessionID string, ev ProgressEvent) {
	h.Deliver(sessionID, ev)
}

// Deliver hands ev to the session's live subscriber without blocking. It
// reports false when the event was dropped: unknown session, no subscriber,
// or a full subscriber queue.
func (h *Hub) Deliver(sessionID string, ev ProgressEvent) bool {
	s, ok := h.lookup(sessionID)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return false
	}
	select {
	case s.sub.ch <- ev:
		return true
	default:
		h.logger.Warn("subscriber queue full, dropping event",
			zap.String("session_id", sessionID), zap.String("step", ev.Step))
		return false
	}
}

// Subscribe attaches a new subscriber to the session, creating the session on
// first touch. A previous subscriber of the same session is superseded.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	sh := h.shardFor(sessionID)
	// attach under the shard lock so a concurrent Close or Reap cannot
	// unregister the sink between lookup and attach
	sh.mu.Lock()
	s, ok := sh.sinks[sessionID]
	if !ok {
		s = &sink{id: sessionID, createdAt: h.now()}
		sh.sinks[sessionID] = s
	}
	sub := &Subscription{
		hub:       h,
		sink:      s,
		ch:        make(chan ProgressEvent, h.buffer),
		done:      make(chan struct{}),
		keepalive: h.keepalive,
	}
	s.mu.Lock()
	prev := s.sub
	s.sub = sub
	s.subscribed = true
	s.mu.Unlock()
	sh.mu.Unlock()
	if prev != nil {
		prev.finish(ErrSuperseded)
	}
	return sub
}

// Reap removes sessions older than the orphan TTL that never had a
// subscriber, and returns how many were removed.
func (h *Hub) Reap() int {
	if h.orphanTTL <= 0 {
		return 0
	}
	cutoff := h.now().Add(-h.orphanTTL)
	removed := 0
	for _, sh := range h.shards {
		sh.mu.Lock()
		for id, s := range sh.sinks {
			s.mu.Lock()
			orphan := !s.subscribed && s.sub == nil && s.createdAt.Before(cutoff)
			s.mu.Unlock()
			if orphan {
				delete(sh.sinks, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Run reaps orphaned sessions until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.orphanTTL <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.orphanTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.Reap(); n > 0 {
				h.logger.Debug("reaped orphan sessions", zap.Int("count", n))
			}
		}
	}
}

// Subscription is the consuming end of a session's event stream. It is
// lazy, unbounded and cannot be restarted once closed.
type Subscription struct {
	hub       *Hub
	sink      *sink
	ch        chan ProgressEvent
	done      chan struct{}
	keepalive time.Duration

	once sync.Once
	err  error
}

// SessionID returns the session this subscription observes.
func (s *Subscription) SessionID() string { return s.sink.id }

// Next blocks until the next event. When no event arrives within the
// keepalive interval a keepalive event is returned instead. It fails with
// ctx.Err(), ErrClosed or ErrSuperseded once the stream has ended.
func (s *Subscription) Next(ctx context.Context) (ProgressEvent, error) {
	select {
	case <-s.done:
		return ProgressEvent{}, s.err
	default:
	}
	timer := time.NewTimer(s.keepalive)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ProgressEvent{}, ctx.Err()
	case <-s.done:
		return ProgressEvent{}, s.err
	case ev := <-s.ch:
		return ev, nil
	case <-timer.C:
		return Keepalive(), nil
	}
}

// Close detaches the subscriber and, if it is still the session's live
// subscriber, destroys the session.
func (s *Subscription) Close() {
	s.hub.detach(s)
	s.finish(ErrClosed)
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
