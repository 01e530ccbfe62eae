package handbrain

import (
	"context"
	"fmt"
)

// Piece is an occupant of a board square.
type Piece struct {
	Type PieceType
	Team Team
}

// Rules is the chess legality oracle. Positions are FEN strings.
type Rules interface {
	LegalMoves(position string) ([]MoveSpec, error)
	// PieceAt reports the piece on sq; ok is false for an empty square.
	PieceAt(position string, sq Square) (piece Piece, ok bool, err error)
	// ApplyMove fails when mv is not legal in position.
	ApplyMove(position string, mv MoveSpec) (string, error)
	SAN(position string, mv MoveSpec) (string, error)
	IsCheckmate(position string) (bool, error)
	IsStalemate(position string) (bool, error)
	// DrawReason replays history (UCI) from initial and returns "" unless the
	// final position is drawn by repetition, the move-count rules or material.
	DrawReason(initial string, history []string) (EndReason, error)
}

// Directory resolves player identifiers.
type Directory interface {
	// Resolve returns a NOT_FOUND *Error for unknown players.
	Resolve(ctx context.Context, playerID string) (*Player, error)
}

// UpdateFunc validates and mutates tx.Game. Returning an error aborts the
// transaction without any write. It may run more than once when a store
// retries after an optimistic conflict, so it must not have side effects
// outside tx.
type UpdateFunc func(tx *Txn) error

// Store persists games and their append-only history.
type Store interface {
	CreateGame(ctx context.Context, g *Game) error
	// LoadGame returns (nil, nil) when the game does not exist.
	LoadGame(ctx context.Context, id string) (*Game, error)
	// Update runs fn against the current game and commits the mutated game
	// together with any history appended through tx, atomically. A missing
	// game yields GameNotFound.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Game, error)
	// ListGames returns games in no particular order; status "" means all.
	ListGames(ctx context.Context, status Status) ([]*Game, error)
	ListSuggestions(ctx context.Context, gameID string) ([]*Suggestion, error)
	ListMoves(ctx context.Context, gameID string) ([]*Move, error)
	DeleteGame(ctx context.Context, id string) error
}

// Archiver records finished games outside the live store.
type Archiver interface {
	ArchiveGame(ctx context.Context, g *Game, moves []*Move) error
}

// Txn is the unit of work handed to an UpdateFunc.
type Txn struct {
	Game *Game

	lastSuggestion int64
	lastMove       int64
	history        HistoryFunc
	suggestions    []*Suggestion
	moves          []*Move
}

// HistoryFunc loads the notation of the game's committed moves in sequence
// order. Stores read it inside the same transaction as the game.
type HistoryFunc func() ([]string, error)

// NewTxn is called by stores with a private copy of the game, the highest
// recorded sequence numbers for its history streams and a loader for the
// committed moves. A nil history means no moves were committed.
func NewTxn(g *Game, lastSuggestion, lastMove int64, history HistoryFunc) *Txn {
	return &Txn{Game: g, lastSuggestion: lastSuggestion, lastMove: lastMove, history: history}
}

// History returns the committed move notations followed by the staged ones.
func (t *Txn) History() ([]string, error) {
	var out []string
	if t.history != nil {
		prior, err := t.history()
		if err != nil {
			return nil, fmt.Errorf("load move history: %w", err)
		}
		out = append(out, prior...)
	}
	for _, m := range t.moves {
		out = append(out, m.Notation)
	}
	return out, nil
}

// AppendSuggestion assigns the next suggestion sequence number and stages s.
func (t *Txn) AppendSuggestion(s *Suggestion) {
	t.lastSuggestion++
	s.GameID = t.Game.ID
	s.Sequence = t.lastSuggestion
	t.suggestions = append(t.suggestions, s)
}

// AppendMove assigns the next move sequence number and stages m.
func (t *Txn) AppendMove(m *Move) {
	t.lastMove++
	m.GameID = t.Game.ID
	m.Sequence = t.lastMove
	t.moves = append(t.moves, m)
}

// Suggestions returns the staged suggestions in append order.
func (t *Txn) Suggestions() []*Suggestion { return t.suggestions }

// Moves returns the staged moves in append order.
func (t *Txn) Moves() []*Move { return t.moves }

// GameNotFound is the error stores return for a missing game.
func GameNotFound(id string) *Error { return notFound("game not found: %s", id) }
