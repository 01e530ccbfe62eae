package handbrain

import (
	"strings"
	"time"
)

// StartPosition is the standard chess starting position in FEN.
const StartPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Team identifies a chess side.
type Team string

const (
	White Team = "WHITE"
	Black Team = "BLACK"
)

// Opponent returns the other team.
func (t Team) Opponent() Team {
	if t == White {
		return Black
	}
	return White
}

func (t Team) Valid() bool { return t == White || t == Black }

// Role is the seat kind within a team.
type Role string

const (
	Brain Role = "BRAIN"
	Hand  Role = "HAND"
)

func (r Role) Valid() bool { return r == Brain || r == Hand }

// Status represents the game lifecycle state.
type Status string

const (
	StatusForming    Status = "FORMING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

func (s Status) Valid() bool {
	return s == StatusForming || s == StatusInProgress || s == StatusFinished
}

// PieceType is the piece kind a Brain nominates.
type PieceType string

const (
	Pawn   PieceType = "PAWN"
	Knight PieceType = "KNIGHT"
	Bishop PieceType = "BISHOP"
	Rook   PieceType = "ROOK"
	Queen  PieceType = "QUEEN"
	King   PieceType = "KING"
)

// PieceTypes lists every piece type in board-value order.
var PieceTypes = []PieceType{Pawn, Knight, Bishop, Rook, Queen, King}

// ParsePieceType accepts any casing of the piece name ("knight", "Knight", "KNIGHT").
func ParsePieceType(s string) (PieceType, bool) {
	v := PieceType(strings.ToUpper(strings.TrimSpace(s)))
	for _, pt := range PieceTypes {
		if pt == v {
			return pt, true
		}
	}
	return "", false
}

// EndReason records why a game finished.
type EndReason string

const (
	EndCheckmate            EndReason = "checkmate"
	EndStalemate            EndReason = "stalemate"
	EndInsufficientMaterial EndReason = "insufficient_material"
	EndFiftyMoveRule        EndReason = "fifty_move_rule"
	EndRepetition           EndReason = "repetition"
	EndDraw                 EndReason = "draw"
)

// Seat is one (team, role) slot of the roster.
type Seat struct {
	Team Team
	Role Role
}

// Seats lists the four roster slots.
var Seats = []Seat{
	{White, Brain},
	{White, Hand},
	{Black, Brain},
	{Black, Hand},
}

// Game is the authoritative snapshot of a single match.
type Game struct {
	ID              string    `json:"id"`
	Status          Status    `json:"status"`
	WhiteHand       string    `json:"white_hand,omitempty"`
	WhiteBrain      string    `json:"white_brain,omitempty"`
	BlackHand       string    `json:"black_hand,omitempty"`
	BlackBrain      string    `json:"black_brain,omitempty"`
	CurrentTeam     Team      `json:"current_team,omitempty"`
	CurrentRole     Role      `json:"current_role,omitempty"`
	SelectedPiece   PieceType `json:"selected_piece,omitempty"`
	Position        string    `json:"position,omitempty"`
	// InitialPosition is the FEN the recorded moves are replayed from.
	InitialPosition string    `json:"initial_position,omitempty"`
	Winner          Team      `json:"winner,omitempty"`
	EndReason       EndReason `json:"end_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a copy safe to mutate independently.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

// PlayerAt returns the player bound to the seat, "" when unassigned.
func (g *Game) PlayerAt(team Team, role Role) string {
	switch {
	case team == White && role == Hand:
		return g.WhiteHand
	case team == White && role == Brain:
		return g.WhiteBrain
	case team == Black && role == Hand:
		return g.BlackHand
	case team == Black && role == Brain:
		return g.BlackBrain
	}
	return ""
}

func (g *Game) bind(team Team, role Role, playerID string) {
	switch {
	case team == White && role == Hand:
		g.WhiteHand = playerID
	case team == White && role == Brain:
		g.WhiteBrain = playerID
	case team == Black && role == Hand:
		g.BlackHand = playerID
	case team == Black && role == Brain:
		g.BlackBrain = playerID
	}
}

// SeatOf reports the seat a player occupies in this game.
func (g *Game) SeatOf(playerID string) (Seat, bool) {
	if strings.TrimSpace(playerID) == "" {
		return Seat{}, false
	}
	for _, s := range Seats {
		if g.PlayerAt(s.Team, s.Role) == playerID {
			return s, true
		}
	}
	return Seat{}, false
}

// Full reports whether all four seats are bound.
func (g *Game) Full() bool {
	for _, s := range Seats {
		if g.PlayerAt(s.Team, s.Role) == "" {
			return false
		}
	}
	return true
}

// Suggestion is a Brain's recorded piece-type nomination.
type Suggestion struct {
	GameID    string    `json:"game_id"`
	PlayerID  string    `json:"player_id"`
	Sequence  int64     `json:"sequence"`
	PieceType PieceType `json:"piece_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Move is a Hand's recorded move with the position it produced.
type Move struct {
	GameID    string    `json:"game_id"`
	PlayerID  string    `json:"player_id"`
	Sequence  int64     `json:"sequence"`
	Notation  string    `json:"notation"`
	SAN       string    `json:"san,omitempty"`
	Position  string    `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Player is the directory record for a participant.
type Player struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}
