// Package memstore keeps games in process memory. It is the development
// backend used when no Redis or SQLite store is configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/park285/handbrain-chess/internal/handbrain"
)

type record struct {
	mu          sync.Mutex
	game        *handbrain.Game
	suggestions []*handbrain.Suggestion
	moves       []*handbrain.Move
	deleted     bool
}

// Store serializes updates per game; updates to different games run in parallel.
type Store struct {
	mu    sync.RWMutex
	games map[string]*record
}

var _ handbrain.Store = (*Store)(nil)

func New() *Store {
	return &Store{games: make(map[string]*record)}
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[strings.TrimSpace(id)]
}

func (s *Store) CreateGame(ctx context.Context, g *handbrain.Game) error {
	if g == nil || strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("memstore: game id required")
	}
	id := strings.TrimSpace(g.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[id]; exists {
		return fmt.Errorf("memstore: game %s already exists", id)
	}
	c := g.Clone()
	c.ID = id
	s.games[id] = &record{game: c}
	return nil
}

func (s *Store) LoadGame(ctx context.Context, id string) (*handbrain.Game, error) {
	r := s.lookup(id)
	if r == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return nil, nil
	}
	return r.game.Clone(), nil
}

// Update holds the game's lock for the whole read-validate-write cycle.
func (s *Store) Update(ctx context.Context, id string, fn handbrain.UpdateFunc) (*handbrain.Game, error) {
	r := s.lookup(id)
	if r == nil {
		return nil, handbrain.GameNotFound(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return nil, handbrain.GameNotFound(id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := handbrain.NewTxn(r.game.Clone(),
		lastSeq(len(r.suggestions), func(i int) int64 { return r.suggestions[i].Sequence }),
		lastSeq(len(r.moves), func(i int) int64 { return r.moves[i].Sequence }),
		r.notations)
	if err := fn(tx); err != nil {
		return nil, err
	}

	r.game = tx.Game.Clone()
	for _, sg := range tx.Suggestions() {
		c := *sg
		r.suggestions = append(r.suggestions, &c)
	}
	for _, mv := range tx.Moves() {
		c := *mv
		r.moves = append(r.moves, &c)
	}
	return r.game.Clone(), nil
}

// notations must be called with r.mu held.
func (r *record) notations() ([]string, error) {
	out := make([]string, len(r.moves))
	for i, mv := range r.moves {
		out[i] = mv.Notation
	}
	return out, nil
}

func lastSeq(n int, at func(int) int64) int64 {
	if n == 0 {
		return 0
	}
	return at(n - 1)
}

func (s *Store) ListGames(ctx context.Context, status handbrain.Status) ([]*handbrain.Game, error) {
	s.mu.RLock()
	records := make([]*record, 0, len(s.games))
	for _, r := range s.games {
		records = append(records, r)
	}
	s.mu.RUnlock()

	out := make([]*handbrain.Game, 0, len(records))
	for _, r := range records {
		r.mu.Lock()
		if !r.deleted && (status == "" || r.game.Status == status) {
			out = append(out, r.game.Clone())
		}
		r.mu.Unlock()
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
	r := s.lookup(gameID)
	if r == nil {
		return []*handbrain.Suggestion{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*handbrain.Suggestion, 0, len(r.suggestions))
	for _, sg := range r.suggestions {
		c := *sg
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) ListMoves(ctx context.Context, gameID string) ([]*handbrain.Move, error) {
	r := s.lookup(gameID)
	if r == nil {
		return []*handbrain.Move{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*handbrain.Move, 0, len(r.moves))
	for _, mv := range r.moves {
		c := *mv
		out = append(out, &c)
	}
	return out, nil
}

// DeleteGame is idempotent. A concurrent Update that already holds the game
// finishes first; later ones see the game as missing.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	s.mu.Lock()
	r := s.games[strings.TrimSpace(id)]
	delete(s.games, strings.TrimSpace(id))
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.deleted = true
	r.mu.Unlock()
	return nil
}
