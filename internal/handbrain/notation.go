package handbrain

import "strings"

// Square is a board square in algebraic form, e.g. "e2".
type Square string

// ParseSquare validates a two-character square name.
func ParseSquare(s string) (Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return "", false
	}
	if s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return "", false
	}
	return Square(s), true
}

// File returns 0..7 for files a..h.
func (s Square) File() int { return int(s[0] - 'a') }

// Rank returns 0..7 for ranks 1..8.
func (s Square) Rank() int { return int(s[1] - '1') }

// MoveSpec is a fully specified move: origin, destination and optional promotion.
type MoveSpec struct {
	From      Square
	To        Square
	Promotion PieceType
}

var promotionLetters = map[byte]PieceType{
	'q': Queen,
	'r': Rook,
	'b': Bishop,
	'n': Knight,
}

func promotionLetter(pt PieceType) string {
	for l, t := range promotionLetters {
		if t == pt {
			return string(l)
		}
	}
	return ""
}

// String renders the move in UCI long algebraic notation.
func (m MoveSpec) String() string {
	return string(m.From) + string(m.To) + promotionLetter(m.Promotion)
}

// ParseMoveNotation parses UCI long algebraic notation ("g1f3", "e7e8q").
func ParseMoveNotation(raw string) (MoveSpec, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) != 4 && len(s) != 5 {
		return MoveSpec{}, formatErr("invalid move format %q: expected origin and destination squares like g1f3", raw)
	}
	from, ok := ParseSquare(s[0:2])
	if !ok {
		return MoveSpec{}, formatErr("invalid move format %q: bad origin square", raw)
	}
	to, ok := ParseSquare(s[2:4])
	if !ok {
		return MoveSpec{}, formatErr("invalid move format %q: bad destination square", raw)
	}
	if from == to {
		return MoveSpec{}, formatErr("invalid move format %q: origin equals destination", raw)
	}
	mv := MoveSpec{From: from, To: to}
	if len(s) == 5 {
		pt, ok := promotionLetters[s[4]]
		if !ok {
			return MoveSpec{}, formatErr("invalid move format %q: bad promotion piece", raw)
		}
		mv.Promotion = pt
	}
	return mv, nil
}
