// Package redisstore persists games in Redis. Updates use WATCH/MULTI
// optimistic transactions and retry on conflict with exponential backoff.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/obslog"
)

const defaultMaxRetries = 8

// Options tunes a Store.
type Options struct {
	// TTL expires idle games; zero keeps them forever.
	TTL time.Duration
	// MaxRetries bounds optimistic retries per Update.
	MaxRetries int
}

type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	max    int
	logger *zap.Logger
}

var _ handbrain.Store = (*Store)(nil)

func New(rdb *redis.Client, opts Options) *Store {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Store{rdb: rdb, ttl: opts.TTL, max: opts.MaxRetries, logger: obslog.L()}
}

// Open connects to redisURL and pings the server.
func Open(ctx context.Context, redisURL string, opts Options) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	ro, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, opts), nil
}

// Client exposes the connection for components sharing it.
func (s *Store) Client() *redis.Client { return s.rdb }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func gameKey(id string) string             { return "hnb:game:" + strings.TrimSpace(id) }
func suggestionsKey(id string) string      { return gameKey(id) + ":suggestions" }
func movesKey(id string) string            { return gameKey(id) + ":moves" }
func allGamesKey() string                  { return "hnb:games" }
func statusKey(st handbrain.Status) string { return "hnb:games:status:" + string(st) }

func (s *Store) CreateGame(ctx context.Context, g *handbrain.Game) error {
	if g == nil || strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("redisstore: game id required")
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	gk := gameKey(g.ID)
	errExists := fmt.Errorf("redisstore: game %s already exists", g.ID)
	// the record and its index entries are written in one MULTI
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, gk).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gk, raw, s.ttl)
			pipe.SAdd(ctx, allGamesKey(), g.ID)
			pipe.SAdd(ctx, statusKey(g.Status), g.ID)
			return nil
		})
		return err
	}, gk)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return errExists
	case errors.Is(err, errExists):
		return err
	case err != nil:
		return fmt.Errorf("redisstore: create %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) LoadGame(ctx context.Context, id string) (*handbrain.Game, error) {
	return getGame(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getGame(ctx context.Context, c getter, id string) (*handbrain.Game, error) {
	raw, err := c.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g handbrain.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

// Update watches the game and its history lists. History lengths double as
// the last sequence numbers, so a concurrent append aborts the EXEC.
func (s *Store) Update(ctx context.Context, id string, fn handbrain.UpdateFunc) (*handbrain.Game, error) {
	gk, sk, mk := gameKey(id), suggestionsKey(id), movesKey(id)
	var committed *handbrain.Game
	attempts := 0

	op := func() error {
		attempts++
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := getGame(ctx, tx, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return handbrain.GameNotFound(id)
			}
			lastS, err := tx.LLen(ctx, sk).Result()
			if err != nil {
				return err
			}
			lastM, err := tx.LLen(ctx, mk).Result()
			if err != nil {
				return err
			}
			prevStatus := cur.Status

			txn := handbrain.NewTxn(cur, lastS, lastM, func() ([]string, error) {
				moves, err := loadMoves(ctx, tx, mk)
				if err != nil {
					return nil, err
				}
				out := make([]string, len(moves))
				for i, mv := range moves {
					out[i] = mv.Notation
				}
				return out, nil
			})
			if err := fn(txn); err != nil {
				return err
			}
			raw, err := json.Marshal(txn.Game)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, gk, raw, s.ttl)
				for _, sg := range txn.Suggestions() {
					b, _ := json.Marshal(sg)
					pipe.RPush(ctx, sk, b)
				}
				for _, mv := range txn.Moves() {
					b, _ := json.Marshal(mv)
					pipe.RPush(ctx, mk, b)
				}
				if s.ttl > 0 {
					pipe.Expire(ctx, sk, s.ttl)
					pipe.Expire(ctx, mk, s.ttl)
				}
				if txn.Game.Status != prevStatus {
					pipe.SRem(ctx, statusKey(prevStatus), id)
					pipe.SAdd(ctx, statusKey(txn.Game.Status), id)
				}
				return nil
			})
			if err != nil {
				return err
			}
			committed = txn.Game
			return nil
		}, gk, sk, mk)
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(op, s.policy(ctx))
	if errors.Is(err, redis.TxFailedErr) {
		s.logger.Warn("hnb_tx_conflict", zap.String("game_id", id), zap.Int("attempts", attempts))
		return nil, fmt.Errorf("redisstore: update %s after %d attempts: %w", id, attempts, handbrain.ErrTxConflict)
	}
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func (s *Store) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * time.Millisecond
	eb.MaxInterval = 50 * time.Millisecond
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.max)), ctx)
}

// ListGames drops stale index members whose game key has expired.
func (s *Store) ListGames(ctx context.Context, status handbrain.Status) ([]*handbrain.Game, error) {
	key := allGamesKey()
	if status != "" {
		key = statusKey(status)
	}
	ids, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*handbrain.Game, 0, len(ids))
	for _, id := range ids {
		g, err := getGame(ctx, s.rdb, id)
		if err != nil {
			return nil, err
		}
		if g == nil {
			_ = s.rdb.SRem(ctx, key, id).Err()
			continue
		}
		if status != "" && g.Status != status {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListSuggestions(ctx context.Context, gameID string) ([]*handbrain.Suggestion, error) {
	raws, err := s.rdb.LRange(ctx, suggestionsKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*handbrain.Suggestion, 0, len(raws))
	for _, raw := range raws {
		var sg handbrain.Suggestion
		if err := json.Unmarshal([]byte(raw), &sg); err != nil {
			return nil, fmt.Errorf("decode suggestion: %w", err)
		}
		out = append(out, &sg)
	}
	return out, nil
}

func (s *Store) ListMoves(ctx context.Context, gameID string) ([]*handbrain.Move, error) {
	return loadMoves(ctx, s.rdb, movesKey(gameID))
}

type lister interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

func loadMoves(ctx context.Context, c lister, key string) ([]*handbrain.Move, error) {
	raws, err := c.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*handbrain.Move, 0, len(raws))
	for _, raw := range raws {
		var mv handbrain.Move
		if err := json.Unmarshal([]byte(raw), &mv); err != nil {
			return nil, fmt.Errorf("decode move: %w", err)
		}
		out = append(out, &mv)
	}
	return out, nil
}

func (s *Store) DeleteGame(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, gameKey(id), suggestionsKey(id), movesKey(id))
		pipe.SRem(ctx, allGamesKey(), id)
		for _, st := range []handbrain.Status{handbrain.StatusForming, handbrain.StatusInProgress, handbrain.StatusFinished} {
			pipe.SRem(ctx, statusKey(st), id)
		}
		return nil
	})
	return err
}
