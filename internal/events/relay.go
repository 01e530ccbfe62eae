package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/obslog"
)

const channelPrefix = "hnb:events:"

// RedisRelay publishes events on a Redis channel per game and feeds every
// event seen on those channels, including its own, into a local Hub. With the
// relay in place each instance's websocket observers see moves committed by
// any instance.
type RedisRelay struct {
	rdb    *redis.Client
	hub    *Hub
	logger *zap.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = obslog.L()
	}
	return &RedisRelay{rdb: rdb, hub: hub, logger: logger, ready: make(chan struct{})}
}

var _ handbrain.Publisher = (*RedisRelay)(nil)

func channel(gameID string) string { return channelPrefix + gameID }

// Publish failures are logged; observers simply miss the event.
func (r *RedisRelay) Publish(ctx context.Context, ev handbrain.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("hnb_event_encode", zap.String("game_id", ev.GameID), zap.Error(err))
		return
	}
	if err := r.rdb.Publish(context.WithoutCancel(ctx), channel(ev.GameID), raw).Err(); err != nil {
		r.logger.Warn("hnb_event_publish", zap.String("game_id", ev.GameID), zap.Error(err))
	}
}

// Ready is closed once Run's subscription is active.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run forwards channel messages to the hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = ps.Close() }()
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("hnb_event_relay_subscribed", zap.String("pattern", channelPrefix+"*"))

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev handbrain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("hnb_event_decode", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if ev.GameID == "" {
				ev.GameID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			r.hub.Publish(ctx, ev)
		}
	}
}
