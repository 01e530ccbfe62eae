// Package rules adapts github.com/corentings/chess/v2 to the handbrain.Rules
// oracle. Every call decodes the FEN it is given; the adapter holds no state.
package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/handbrain-chess/internal/handbrain"
)

// Chess is a stateless legality oracle backed by corentings/chess.
type Chess struct{}

func New() *Chess { return &Chess{} }

var _ handbrain.Rules = (*Chess)(nil)

var (
	toPieceType = map[nchess.PieceType]handbrain.PieceType{
		nchess.Pawn:   handbrain.Pawn,
		nchess.Knight: handbrain.Knight,
		nchess.Bishop: handbrain.Bishop,
		nchess.Rook:   handbrain.Rook,
		nchess.Queen:  handbrain.Queen,
		nchess.King:   handbrain.King,
	}
	toTeam = map[nchess.Color]handbrain.Team{
		nchess.White: handbrain.White,
		nchess.Black: handbrain.Black,
	}
)

func load(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("decode fen: %w", err)
	}
	return nchess.NewGame(opt), nil
}

func square(sq handbrain.Square) nchess.Square {
	return nchess.NewSquare(nchess.File(sq.File()), nchess.Rank(sq.Rank()))
}

// LegalMoves lists every legal move of the side to move.
func (c *Chess) LegalMoves(position string) ([]handbrain.MoveSpec, error) {
	game, err := load(position)
	if err != nil {
		return nil, err
	}
	valid := game.Position().ValidMoves()
	out := make([]handbrain.MoveSpec, 0, len(valid))
	for _, mv := range valid {
		from, ok1 := handbrain.ParseSquare(mv.S1().String())
		to, ok2 := handbrain.ParseSquare(mv.S2().String())
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("unexpected square in move %s", mv.String())
		}
		spec := handbrain.MoveSpec{From: from, To: to}
		if promo := mv.Promo(); promo != nchess.NoPieceType {
			spec.Promotion = toPieceType[promo]
		}
		out = append(out, spec)
	}
	return out, nil
}

// PieceAt reports the occupant of sq.
func (c *Chess) PieceAt(position string, sq handbrain.Square) (handbrain.Piece, bool, error) {
	game, err := load(position)
	if err != nil {
		return handbrain.Piece{}, false, err
	}
	p := game.Position().Board().Piece(square(sq))
	if p == nchess.NoPiece {
		return handbrain.Piece{}, false, nil
	}
	return handbrain.Piece{Type: toPieceType[p.Type()], Team: toTeam[p.Color()]}, true, nil
}

// ApplyMove plays mv and returns the resulting FEN.
func (c *Chess) ApplyMove(position string, mv handbrain.MoveSpec) (string, error) {
	game, err := load(position)
	if err != nil {
		return "", err
	}
	if err := game.PushNotationMove(mv.String(), nchess.UCINotation{}, nil); err != nil {
		return "", fmt.Errorf("apply %s: %w", mv.String(), err)
	}
	return game.FEN(), nil
}

// SAN encodes mv in standard algebraic notation for position.
func (c *Chess) SAN(position string, mv handbrain.MoveSpec) (string, error) {
	game, err := load(position)
	if err != nil {
		return "", err
	}
	pos := game.Position()
	decoded, err := nchess.UCINotation{}.Decode(pos, mv.String())
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", mv.String(), err)
	}
	return nchess.AlgebraicNotation{}.Encode(pos, decoded), nil
}

func (c *Chess) IsCheckmate(position string) (bool, error) {
	game, err := load(position)
	if err != nil {
		return false, err
	}
	return game.Position().Status() == nchess.Checkmate, nil
}

func (c *Chess) IsStalemate(position string) (bool, error) {
	game, err := load(position)
	if err != nil {
		return false, err
	}
	return game.Position().Status() == nchess.Stalemate, nil
}

// DrawReason replays history from initial and reports the draw the library
// finds for the final position: automatic draws first, then the threefold
// repetition and fifty-move draws, which are applied without a claim.
func (c *Chess) DrawReason(initial string, history []string) (handbrain.EndReason, error) {
	game, err := replay(initial, history)
	if err != nil {
		return "", err
	}
	switch game.Method() {
	case nchess.InsufficientMaterial:
		return handbrain.EndInsufficientMaterial, nil
	case nchess.FivefoldRepetition:
		return handbrain.EndRepetition, nil
	case nchess.SeventyFiveMoveRule:
		return handbrain.EndFiftyMoveRule, nil
	}
	for _, m := range game.EligibleDraws() {
		switch m {
		case nchess.ThreefoldRepetition:
			return handbrain.EndRepetition, nil
		case nchess.FiftyMoveRule:
			return handbrain.EndFiftyMoveRule, nil
		}
	}
	return "", nil
}

func replay(initial string, history []string) (*nchess.Game, error) {
	game, err := load(initial)
	if err != nil {
		return nil, err
	}
	for i, mv := range history {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return game, nil
}
