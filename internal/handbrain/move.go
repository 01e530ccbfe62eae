package handbrain

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubmitMove applies the Hand's move, which must use the piece type the team's
// Brain selected, then passes the turn to the other team's Brain.
func (e *Engine) SubmitMove(ctx context.Context, gameID, playerID, notation string) (g *Game, err error) {
	ctx, end := e.begin(ctx, "submit_move",
		attribute.String("game.id", gameID),
		attribute.String("player.id", playerID),
		attribute.String("move.notation", notation),
	)
	defer end(&err)

	var rec *Move
	g, err = e.store.Update(ctx, gameID, func(tx *Txn) error {
		cur := tx.Game
		t, err := checkTurn(cur, ActionMove, playerID)
		if err != nil {
			return err
		}
		if cur.SelectedPiece == "" {
			return ruleErr("brain hasn't selected a piece yet")
		}
		mv, err := ParseMoveNotation(notation)
		if err != nil {
			return err
		}
		if err := e.checkOrigin(cur, mv); err != nil {
			return err
		}
		if err := e.checkLegal(cur.Position, mv); err != nil {
			return err
		}
		san, err := e.rules.SAN(cur.Position, mv)
		if err != nil {
			return fmt.Errorf("encode san: %w", err)
		}
		next, err := e.rules.ApplyMove(cur.Position, mv)
		if err != nil {
			return fmt.Errorf("apply move: %w", err)
		}

		now := e.now()
		mover := cur.CurrentTeam
		rec = &Move{PlayerID: playerID, Notation: mv.String(), SAN: san, Position: next, CreatedAt: now}
		tx.AppendMove(rec)
		cur.Position = next
		cur.SelectedPiece = ""
		t.apply(cur)
		cur.UpdatedAt = now
		return e.settle(tx, mover)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("hnb_move",
		zap.String("game_id", g.ID),
		zap.String("player_id", playerID),
		zap.String("uci", rec.Notation),
		zap.String("san", rec.SAN),
		zap.Int64("sequence", rec.Sequence),
		zap.String("status", string(g.Status)),
		zap.String("end_reason", string(g.EndReason)),
	)
	mv := *rec
	e.publish(ctx, Event{Type: EventMove, GameID: g.ID, Game: g.Clone(), Move: &mv})
	e.archiveIfFinal(ctx, g)
	return g, nil
}

func (e *Engine) checkOrigin(g *Game, mv MoveSpec) error {
	piece, ok, err := e.rules.PieceAt(g.Position, mv.From)
	if err != nil {
		return fmt.Errorf("piece at %s: %w", mv.From, err)
	}
	if !ok {
		return ruleErr("no piece at origin square")
	}
	if piece.Type != g.SelectedPiece {
		return ruleErr("must move the piece type selected by brain")
	}
	if piece.Team != g.CurrentTeam {
		return ruleErr("must move your own piece")
	}
	return nil
}

func (e *Engine) checkLegal(position string, mv MoveSpec) error {
	legal, err := e.rules.LegalMoves(position)
	if err != nil {
		return fmt.Errorf("legal moves: %w", err)
	}
	for _, l := range legal {
		if l == mv {
			return nil
		}
	}
	return ruleErr("illegal move")
}
