package httpapi

import (
	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/pkg/handbraindto"
)

func toPlayerDTO(p *handbrain.Player) *handbraindto.Player {
	return &handbraindto.Player{ID: p.ID, Username: p.Username, Rating: p.Rating, CreatedAt: p.CreatedAt}
}

func toGameDTO(g *handbrain.Game) *handbraindto.Game {
	actions := handbrain.AllowedActions(g)
	allowed := make([]string, 0, len(actions))
	for _, a := range actions {
		allowed = append(allowed, string(a))
	}
	return &handbraindto.Game{
		ID:             g.ID,
		Status:         string(g.Status),
		WhiteBrain:     g.WhiteBrain,
		WhiteHand:      g.WhiteHand,
		BlackBrain:     g.BlackBrain,
		BlackHand:      g.BlackHand,
		CurrentTeam:    string(g.CurrentTeam),
		CurrentRole:    string(g.CurrentRole),
		SelectedPiece:  string(g.SelectedPiece),
		Position:       g.Position,
		Winner:         string(g.Winner),
		EndReason:      string(g.EndReason),
		AllowedActions: allowed,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

func toSuggestionDTO(s *handbrain.Suggestion) *handbraindto.Suggestion {
	return &handbraindto.Suggestion{
		GameID:    s.GameID,
		PlayerID:  s.PlayerID,
		Sequence:  s.Sequence,
		PieceType: string(s.PieceType),
		CreatedAt: s.CreatedAt,
	}
}

func toMoveDTO(m *handbrain.Move) *handbraindto.Move {
	return &handbraindto.Move{
		GameID:    m.GameID,
		PlayerID:  m.PlayerID,
		Sequence:  m.Sequence,
		Move:      m.Notation,
		SAN:       m.SAN,
		Position:  m.Position,
		CreatedAt: m.CreatedAt,
	}
}

func toEventDTO(ev handbrain.Event) *handbraindto.Event {
	out := &handbraindto.Event{Type: string(ev.Type), GameID: ev.GameID, At: ev.At}
	if ev.Game != nil {
		out.Game = toGameDTO(ev.Game)
	}
	if ev.Suggestion != nil {
		out.Suggestion = toSuggestionDTO(ev.Suggestion)
	}
	if ev.Move != nil {
		out.Move = toMoveDTO(ev.Move)
	}
	return out
}
