package handbrain

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func validSeat(team Team, role Role) error {
	if !team.Valid() {
		return formatErr("unknown team %q", team)
	}
	if !role.Valid() {
		return formatErr("unknown role %q", role)
	}
	return nil
}

// CreateGame opens a new game in FORMING with the creator bound to the requested seat.
func (e *Engine) CreateGame(ctx context.Context, playerID string, team Team, role Role) (g *Game, err error) {
	ctx, end := e.begin(ctx, "create_game",
		attribute.String("player.id", playerID),
		attribute.String("seat.team", string(team)),
		attribute.String("seat.role", string(role)),
	)
	defer end(&err)

	if err := validSeat(team, role); err != nil {
		return nil, err
	}
	if _, err := e.resolvePlayer(ctx, playerID); err != nil {
		return nil, err
	}
	now := e.now()
	g = &Game{
		ID:        e.newID(),
		Status:    StatusForming,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.bind(team, role, playerID)
	if err := e.store.CreateGame(ctx, g); err != nil {
		return nil, err
	}
	e.logger.Info("hnb_game_create",
		zap.String("game_id", g.ID),
		zap.String("player_id", playerID),
		zap.String("team", string(team)),
		zap.String("role", string(role)),
	)
	e.publish(ctx, Event{Type: EventGameCreated, GameID: g.ID, Game: g.Clone()})
	return g, nil
}

// JoinGame binds playerID to a free seat. Binding the fourth seat starts the game.
func (e *Engine) JoinGame(ctx context.Context, gameID, playerID string, team Team, role Role) (g *Game, err error) {
	ctx, end := e.begin(ctx, "join_game",
		attribute.String("game.id", gameID),
		attribute.String("player.id", playerID),
		attribute.String("seat.team", string(team)),
		attribute.String("seat.role", string(role)),
	)
	defer end(&err)

	if err := validSeat(team, role); err != nil {
		return nil, err
	}
	if _, err := e.load(ctx, gameID); err != nil {
		return nil, err
	}
	if _, err := e.resolvePlayer(ctx, playerID); err != nil {
		return nil, err
	}

	g, err = e.store.Update(ctx, gameID, func(tx *Txn) error {
		cur := tx.Game
		switch holder := cur.PlayerAt(team, role); {
		case holder == playerID:
			// repeat join of the same seat by the same player
			return nil
		case holder != "":
			return conflict("position already taken")
		}
		if seat, ok := cur.SeatOf(playerID); ok {
			return conflict(fmt.Sprintf("player already seated as %s %s", seat.Team, seat.Role))
		}
		if cur.Status != StatusForming {
			return stateErr("game already started")
		}
		cur.bind(team, role, playerID)
		if cur.Full() {
			start(cur)
		}
		cur.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("hnb_game_join",
		zap.String("game_id", g.ID),
		zap.String("player_id", playerID),
		zap.String("team", string(team)),
		zap.String("role", string(role)),
		zap.String("status", string(g.Status)),
	)
	e.publish(ctx, Event{Type: EventPlayerJoined, GameID: g.ID, Game: g.Clone()})
	return g, nil
}
