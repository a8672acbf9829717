// Package redisrelay fans progress events out across service instances over
// Redis pub/sub, so the instance running a pipeline does not need to be the
// one holding the subscriber's stream. Pub/sub keeps the hub's semantics: an
// event nobody listens for is lost.
package redisrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/citesearch/internal/events"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const outboxSize = 1024

type envelope struct {
	ID        string               `json:"id"`
	SessionID string               `json:"session_id"`
	Event     events.ProgressEvent `json:"event"`
}

// Relay publishes local events to Redis and delivers remote events to the
// local hub.
type Relay struct {
	client redis.UniversalClient
	hub    *events.Hub
	prefix string
	logger *zap.Logger

	outbox    chan envelope
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a relay. Run must be started for events to flow.
func New(client redis.UniversalClient, hub *events.Hub, prefix string, logger *zap.Logger) *Relay {
	if prefix == "" {
		prefix = "citesearch:events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		client: client,
		hub:    hub,
		prefix: prefix,
		logger: logger,
		outbox: make(chan envelope, outboxSize),
		ready:  make(chan struct{}),
	}
}

func (r *Relay) channel(sessionID string) string {
	return r.prefix + ":" + sessionID
}

// Publish queues ev for Redis without blocking; a full outbox drops the event.
func (r *Relay) Publish(sessionID string, ev events.ProgressEvent) {
	select {
	case r.outbox <- envelope{ID: uuid.NewString(), SessionID: sessionID, Event: ev}:
	default:
		r.logger.Warn("relay outbox full, dropping event",
			zap.String("session_id", sessionID), zap.String("step", ev.Step))
	}
}

// Ready is closed once the pattern subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Run drains the outbox to Redis and feeds received events into the hub until
// ctx is cancelled. Both directions share one goroutine so a session's events
// leave in publish order.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+":*")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	msgs := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-r.outbox:
			r.send(ctx, env)
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("relay: subscription channel closed")
			}
			r.receive(msg)
		}
	}
}

func (r *Relay) send(ctx context.Context, env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("relay marshal", zap.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.client.Publish(pubCtx, r.channel(env.SessionID), payload).Err(); err != nil {
		r.logger.Warn("relay publish failed", zap.String("session_id", env.SessionID), zap.Error(err))
	}
}

func (r *Relay) receive(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Warn("relay decode failed", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if env.SessionID == "" {
		env.SessionID = strings.TrimPrefix(msg.Channel, r.prefix+":")
	}
	r.hub.Deliver(env.SessionID, env.Event)
}
