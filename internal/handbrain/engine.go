// Package handbrain implements the Hand and Brain turn engine: roster
// assignment, Brain piece-type suggestions, Hand moves bound to those
// suggestions, and game-end bookkeeping on top of an external chess oracle.
package handbrain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/obslog"
)

const tracerName = "github.com/park285/handbrain-chess/internal/handbrain"

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	Archiver  Archiver
	Events    Publisher
	Logger    *zap.Logger
	OpTimeout time.Duration
	Now       func() time.Time
	NewID     func() string
}

// Engine is the turn engine. It is safe for concurrent use; per-game
// serialization is delegated to Store.Update.
type Engine struct {
	store   Store
	rules   Rules
	players Directory
	archive Archiver
	events  Publisher
	logger  *zap.Logger
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

func NewEngine(store Store, rules Rules, players Directory, opts Options) (*Engine, error) {
	if store == nil || rules == nil || players == nil {
		return nil, fmt.Errorf("handbrain: store, rules and players are required")
	}
	e := &Engine{
		store:   store,
		rules:   rules,
		players: players,
		archive: opts.Archiver,
		events:  opts.Events,
		logger:  opts.Logger,
		tracer:  otel.Tracer(tracerName),
		timeout: opts.OpTimeout,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if e.logger == nil {
		e.logger = obslog.L()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// begin opens a span and applies the operation timeout. The returned func
// must be deferred with a pointer to the named error result.
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := e.tracer.Start(ctx, "handbrain."+op, trace.WithAttributes(attrs...))
	cancel := context.CancelFunc(func() {})
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			*errp = classify(op, *errp)
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
			span.SetAttributes(attribute.String("handbrain.error_kind", string(KindOf(*errp))))
		}
		span.End()
		cancel()
	}
}

// GetGame returns the current snapshot of a game.
func (e *Engine) GetGame(ctx context.Context, id string) (g *Game, err error) {
	ctx, end := e.begin(ctx, "get_game", attribute.String("game.id", id))
	defer end(&err)
	return e.load(ctx, id)
}

func (e *Engine) load(ctx context.Context, id string) (*Game, error) {
	g, err := e.store.LoadGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, GameNotFound(id)
	}
	return g, nil
}

// ListGames returns games with the given status; "" lists every game.
func (e *Engine) ListGames(ctx context.Context, status Status) (games []*Game, err error) {
	ctx, end := e.begin(ctx, "list_games", attribute.String("game.status", string(status)))
	defer end(&err)
	if status != "" && !status.Valid() {
		return nil, formatErr("unknown game status %q", status)
	}
	return e.store.ListGames(ctx, status)
}

// ListSuggestions returns a game's suggestions in ascending sequence order.
func (e *Engine) ListSuggestions(ctx context.Context, gameID string) (list []*Suggestion, err error) {
	ctx, end := e.begin(ctx, "list_suggestions", attribute.String("game.id", gameID))
	defer end(&err)
	if _, err := e.load(ctx, gameID); err != nil {
		return nil, err
	}
	return e.store.ListSuggestions(ctx, gameID)
}

// ListMoves returns a game's moves in ascending sequence order.
func (e *Engine) ListMoves(ctx context.Context, gameID string) (list []*Move, err error) {
	ctx, end := e.begin(ctx, "list_moves", attribute.String("game.id", gameID))
	defer end(&err)
	if _, err := e.load(ctx, gameID); err != nil {
		return nil, err
	}
	return e.store.ListMoves(ctx, gameID)
}

// DeleteGame removes a game together with its history.
func (e *Engine) DeleteGame(ctx context.Context, id string) (err error) {
	ctx, end := e.begin(ctx, "delete_game", attribute.String("game.id", id))
	defer end(&err)
	if _, err := e.load(ctx, id); err != nil {
		return err
	}
	if err := e.store.DeleteGame(ctx, id); err != nil {
		return err
	}
	e.logger.Info("hnb_game_delete", zap.String("game_id", id))
	e.publish(ctx, Event{Type: EventGameDeleted, GameID: id})
	return nil
}

// SelectablePieces lists the piece types the team to act can currently move.
func (e *Engine) SelectablePieces(ctx context.Context, gameID string) (out []PieceType, err error) {
	ctx, end := e.begin(ctx, "selectable_pieces", attribute.String("game.id", gameID))
	defer end(&err)
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusInProgress {
		return nil, stateErr("game is not in progress")
	}
	counts, err := e.movesByType(g.Position, g.CurrentTeam)
	if err != nil {
		return nil, err
	}
	for _, pt := range PieceTypes {
		if counts[pt] > 0 {
			out = append(out, pt)
		}
	}
	return out, nil
}

// movesByType counts the legal moves of team per moving piece type.
func (e *Engine) movesByType(position string, team Team) (map[PieceType]int, error) {
	moves, err := e.rules.LegalMoves(position)
	if err != nil {
		return nil, fmt.Errorf("legal moves: %w", err)
	}
	counts := make(map[PieceType]int)
	for _, mv := range moves {
		p, ok, err := e.rules.PieceAt(position, mv.From)
		if err != nil {
			return nil, fmt.Errorf("piece at %s: %w", mv.From, err)
		}
		if ok && p.Team == team {
			counts[p.Type]++
		}
	}
	return counts, nil
}

// settle records end-of-game facts for the position reached after mover's move.
// Draws are judged on the whole move history so repetitions count.
func (e *Engine) settle(tx *Txn, mover Team) error {
	g := tx.Game
	mate, err := e.rules.IsCheckmate(g.Position)
	if err != nil {
		return fmt.Errorf("checkmate check: %w", err)
	}
	if mate {
		g.Status = StatusFinished
		g.Winner = mover
		g.EndReason = EndCheckmate
		return nil
	}
	stale, err := e.rules.IsStalemate(g.Position)
	if err != nil {
		return fmt.Errorf("stalemate check: %w", err)
	}
	if stale {
		g.Status = StatusFinished
		g.EndReason = EndStalemate
		return nil
	}
	history, err := tx.History()
	if err != nil {
		return err
	}
	initial := g.InitialPosition
	if initial == "" {
		initial = StartPosition
	}
	reason, err := e.rules.DrawReason(initial, history)
	if err != nil {
		return fmt.Errorf("draw check: %w", err)
	}
	if reason != "" {
		g.Status = StatusFinished
		g.EndReason = reason
	}
	return nil
}

// archiveIfFinal hands a finished game to the archiver. Failures are logged only.
func (e *Engine) archiveIfFinal(ctx context.Context, g *Game) {
	if e.archive == nil || g == nil || g.Status != StatusFinished {
		return
	}
	moves, err := e.store.ListMoves(ctx, g.ID)
	if err == nil {
		err = e.archive.ArchiveGame(ctx, g, moves)
	}
	if err != nil {
		e.logger.Error("hnb_archive_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	e.logger.Info("hnb_archive", zap.String("game_id", g.ID), zap.String("end_reason", string(g.EndReason)))
}

func (e *Engine) resolvePlayer(ctx context.Context, playerID string) (*Player, error) {
	p, err := e.players.Resolve(ctx, playerID)
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, fmt.Errorf("resolve player: %w", err)
	}
	if p == nil {
		return nil, notFound("player not found: %s", playerID)
	}
	return p, nil
}
