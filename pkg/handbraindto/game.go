package handbraindto

import "time"

type Player struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

type Game struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	WhiteBrain     string    `json:"whiteBrain,omitempty"`
	WhiteHand      string    `json:"whiteHand,omitempty"`
	BlackBrain     string    `json:"blackBrain,omitempty"`
	BlackHand      string    `json:"blackHand,omitempty"`
	CurrentTeam    string    `json:"currentTeam,omitempty"`
	CurrentRole    string    `json:"currentRole,omitempty"`
	SelectedPiece  string    `json:"selectedPiece,omitempty"`
	Position       string    `json:"position,omitempty"`
	Winner         string    `json:"winner,omitempty"`
	EndReason      string    `json:"endReason,omitempty"`
	AllowedActions []string  `json:"allowedActions"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type GameList struct {
	Games []*Game `json:"games"`
}

type Suggestion struct {
	GameID    string    `json:"gameId"`
	PlayerID  string    `json:"playerId"`
	Sequence  int64     `json:"sequence"`
	PieceType string    `json:"pieceType"`
	CreatedAt time.Time `json:"createdAt"`
}

type SuggestionList struct {
	Suggestions []*Suggestion `json:"suggestions"`
}

type Move struct {
	GameID    string    `json:"gameId"`
	PlayerID  string    `json:"playerId"`
	Sequence  int64     `json:"sequence"`
	Move      string    `json:"move"`
	SAN       string    `json:"san,omitempty"`
	Position  string    `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

type MoveList struct {
	Moves []*Move `json:"moves"`
}

// PieceList names the piece types the team to act may select.
type PieceList struct {
	PieceTypes []string `json:"pieceTypes"`
}

// Event is one message of the websocket feed.
type Event struct {
	Type       string      `json:"type"`
	GameID     string      `json:"gameId"`
	Game       *Game       `json:"game,omitempty"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	Move       *Move       `json:"move,omitempty"`
	At         time.Time   `json:"at"`
}
