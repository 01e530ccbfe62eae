// Package player registers and resolves the people who take seats in games.
package player

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/handbrain-chess/internal/handbrain"
)

// DefaultRating is assigned to newly registered players.
const DefaultRating = 1200

const maxUsernameLen = 32

func newPlayer(username string, now time.Time) (*handbrain.Player, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, &handbrain.Error{Kind: handbrain.KindFormat, Message: "username is required"}
	}
	if len([]rune(name)) > maxUsernameLen {
		return nil, &handbrain.Error{Kind: handbrain.KindFormat, Message: fmt.Sprintf("username longer than %d characters", maxUsernameLen)}
	}
	return &handbrain.Player{ID: uuid.NewString(), Username: name, Rating: DefaultRating, CreatedAt: now.UTC()}, nil
}

func notFound(id string) error {
	return &handbrain.Error{Kind: handbrain.KindNotFound, Message: "player not found: " + id}
}

// MemoryDirectory keeps players in process memory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	players map[string]*handbrain.Player
}

var _ handbrain.Directory = (*MemoryDirectory)(nil)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{players: make(map[string]*handbrain.Player)}
}

func (d *MemoryDirectory) Register(ctx context.Context, username string) (*handbrain.Player, error) {
	p, err := newPlayer(username, time.Now())
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.players[p.ID] = p
	d.mu.Unlock()
	c := *p
	return &c, nil
}

func (d *MemoryDirectory) Resolve(ctx context.Context, playerID string) (*handbrain.Player, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.players[strings.TrimSpace(playerID)]
	if !ok {
		return nil, notFound(playerID)
	}
	c := *p
	return &c, nil
}

// RedisDirectory stores players as JSON under hnb:player:<id>.
type RedisDirectory struct {
	rdb *redis.Client
}

var _ handbrain.Directory = (*RedisDirectory)(nil)

func NewRedisDirectory(rdb *redis.Client) *RedisDirectory { return &RedisDirectory{rdb: rdb} }

func playerKey(id string) string { return "hnb:player:" + strings.TrimSpace(id) }

func (d *RedisDirectory) Register(ctx context.Context, username string) (*handbrain.Player, error) {
	p, err := newPlayer(username, time.Now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if err := d.rdb.Set(ctx, playerKey(p.ID), raw, 0).Err(); err != nil {
		return nil, fmt.Errorf("save player: %w", err)
	}
	return p, nil
}

func (d *RedisDirectory) Resolve(ctx context.Context, playerID string) (*handbrain.Player, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, notFound(playerID)
	}
	raw, err := d.rdb.Get(ctx, playerKey(playerID)).Bytes()
	if err == redis.Nil {
		return nil, notFound(playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load player: %w", err)
	}
	var p handbrain.Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", playerID, err)
	}
	return &p, nil
}
