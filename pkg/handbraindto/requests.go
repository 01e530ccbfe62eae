package handbraindto

type RegisterPlayerRequest struct {
	Username string `json:"username"`
}

// SeatRequest creates a game or joins one.
type SeatRequest struct {
	PlayerID string `json:"playerId"`
	Team     string `json:"team"`
	Role     string `json:"role"`
}

type SuggestionRequest struct {
	PlayerID  string `json:"playerId"`
	PieceType string `json:"pieceType"`
}

type MoveRequest struct {
	PlayerID string `json:"playerId"`
	Move     string `json:"move"`
}
