package handbrain

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubmitSuggestion records the Brain's piece-type nomination and hands the turn
// to the Hand of the same team.
func (e *Engine) SubmitSuggestion(ctx context.Context, gameID, playerID string, pieceType PieceType) (s *Suggestion, err error) {
	ctx, end := e.begin(ctx, "submit_suggestion",
		attribute.String("game.id", gameID),
		attribute.String("player.id", playerID),
		attribute.String("piece.type", string(pieceType)),
	)
	defer end(&err)

	var rec *Suggestion
	g, err := e.store.Update(ctx, gameID, func(tx *Txn) error {
		cur := tx.Game
		t, err := checkTurn(cur, ActionSuggest, playerID)
		if err != nil {
			return err
		}
		pt, ok := ParsePieceType(string(pieceType))
		if !ok {
			return formatErr("unknown piece type %q", pieceType)
		}
		counts, err := e.movesByType(cur.Position, cur.CurrentTeam)
		if err != nil {
			return err
		}
		if counts[pt] == 0 {
			return ruleErr("no legal moves for selected piece type")
		}
		now := e.now()
		rec = &Suggestion{PlayerID: playerID, PieceType: pt, CreatedAt: now}
		tx.AppendSuggestion(rec)
		cur.SelectedPiece = pt
		t.apply(cur)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("hnb_suggestion",
		zap.String("game_id", g.ID),
		zap.String("player_id", playerID),
		zap.String("piece_type", string(rec.PieceType)),
		zap.Int64("sequence", rec.Sequence),
		zap.String("team", string(g.CurrentTeam)),
	)
	sg := *rec
	e.publish(ctx, Event{Type: EventSuggestion, GameID: g.ID, Game: g.Clone(), Suggestion: &sg})
	return rec, nil
}
