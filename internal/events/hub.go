// Package events fans committed game events out to live observers, in process
// through Hub and across instances through RedisRelay.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/obslog"
)

// AllGames subscribes to every game.
const AllGames = ""

const defaultBuffer = 32

type subscriber struct {
	id     int
	gameID string
	ch     chan handbrain.Event
}

// Hub delivers events to in-process subscribers. A subscriber whose buffer is
// full misses the event instead of stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]*subscriber
	nextID int

	dropped atomic.Int64
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = obslog.L()
	}
	return &Hub{subs: make(map[string]map[int]*subscriber), logger: logger}
}

var _ handbrain.Publisher = (*Hub)(nil)

// Subscribe registers for events of gameID (AllGames for every game). The
// returned cancel func unregisters and closes the channel; it is idempotent.
func (h *Hub) Subscribe(gameID string, buffer int) (<-chan handbrain.Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	h.mu.Lock()
	h.nextID++
	sub := &subscriber{id: h.nextID, gameID: gameID, ch: make(chan handbrain.Event, buffer)}
	if h.subs[gameID] == nil {
		h.subs[gameID] = make(map[int]*subscriber)
	}
	h.subs[gameID][sub.id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[gameID], sub.id)
			if len(h.subs[gameID]) == 0 {
				delete(h.subs, gameID)
			}
			close(sub.ch)
		})
	}
}

// Publish never blocks.
func (h *Hub) Publish(ctx context.Context, ev handbrain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.subs[ev.GameID], ev)
	if ev.GameID != AllGames {
		h.deliver(h.subs[AllGames], ev)
	}
}

func (h *Hub) deliver(subs map[int]*subscriber, ev handbrain.Event) {
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Warn("hnb_event_dropped",
				zap.String("game_id", ev.GameID),
				zap.String("type", string(ev.Type)),
				zap.Int("subscriber", sub.id),
			)
		}
	}
}

// Subscribers counts the live subscriptions for gameID.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[gameID])
}

// Dropped reports how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
