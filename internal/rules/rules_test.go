package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/handbrain-chess/internal/handbrain"
)

const (
	foolsMate = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemate = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
)

func mustMove(t *testing.T, s string) handbrain.MoveSpec {
	t.Helper()
	mv, err := handbrain.ParseMoveNotation(s)
	require.NoError(t, err)
	return mv
}

func TestLegalMoves_StartPosition(t *testing.T) {
	moves, err := New().LegalMoves(handbrain.StartPosition)

	require.NoError(t, err)
	assert.Len(t, moves, 20)
	assert.Contains(t, moves, mustMove(t, "g1f3"))
	assert.Contains(t, moves, mustMove(t, "e2e4"))
}

func TestLegalMoves_Promotion(t *testing.T) {
	moves, err := New().LegalMoves("8/4P3/8/8/8/8/k7/4K3 w - - 0 1")

	require.NoError(t, err)
	assert.Contains(t, moves, mustMove(t, "e7e8q"))
	assert.Contains(t, moves, mustMove(t, "e7e8n"))
	assert.NotContains(t, moves, mustMove(t, "e7e8"))
}

func TestPieceAt(t *testing.T) {
	c := New()

	p, ok, err := c.PieceAt(handbrain.StartPosition, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, handbrain.Piece{Type: handbrain.Knight, Team: handbrain.White}, p)

	p, ok, err = c.PieceAt(handbrain.StartPosition, "d8")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, handbrain.Piece{Type: handbrain.Queen, Team: handbrain.Black}, p)

	_, ok, err = c.PieceAt(handbrain.StartPosition, "e4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyMoveAndSAN(t *testing.T) {
	c := New()
	mv := mustMove(t, "g1f3")

	next, err := c.ApplyMove(handbrain.StartPosition, mv)
	require.NoError(t, err)
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/5N2/PPPPPPPP/RNBQKB1R b KQkq - 1 1", next)

	san, err := c.SAN(handbrain.StartPosition, mv)
	require.NoError(t, err)
	assert.Equal(t, "Nf3", san)
}

func TestApplyMove_Illegal(t *testing.T) {
	_, err := New().ApplyMove(handbrain.StartPosition, mustMove(t, "e2e5"))

	require.Error(t, err)
}

func TestBadFEN(t *testing.T) {
	_, err := New().LegalMoves("not a fen")

	require.Error(t, err)
}

func TestEndConditions(t *testing.T) {
	c := New()

	mate, err := c.IsCheckmate(foolsMate)
	require.NoError(t, err)
	assert.True(t, mate)

	mate, err = c.IsCheckmate(handbrain.StartPosition)
	require.NoError(t, err)
	assert.False(t, mate)

	stale, err := c.IsStalemate(stalemate)
	require.NoError(t, err)
	assert.True(t, stale)

	stale, err = c.IsStalemate(foolsMate)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestDrawReason(t *testing.T) {
	cases := []struct {
		name string
		fen  string
		want handbrain.EndReason
	}{
		{"start", handbrain.StartPosition, ""},
		{"bare kings", "8/8/8/4k3/8/8/8/4K3 w - - 0 1", handbrain.EndInsufficientMaterial},
		{"king and bishop", "8/8/8/4k3/8/8/8/3BK3 w - - 0 1", handbrain.EndInsufficientMaterial},
		{"same shade bishops", "8/8/2b5/4k3/8/8/8/3BK3 w - - 0 1", handbrain.EndInsufficientMaterial},
		{"same shade bishops one side", "8/8/8/4k3/8/8/8/3BKB2 w - - 0 1", handbrain.EndInsufficientMaterial},
		{"two knights", "8/8/8/4k3/8/8/8/2NNK3 w - - 0 1", ""},
		{"fifty moves", "8/8/8/4k3/8/8/4P3/4K3 w - - 100 80", handbrain.EndFiftyMoveRule},
		{"seventy-five moves", "8/8/8/4k3/8/8/4P3/4K3 w - - 150 120", handbrain.EndFiftyMoveRule},
		{"pawn on board", "8/8/8/4k3/8/8/4P3/4K3 w - - 12 40", ""},
	}
	c := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.DrawReason(tc.fen, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func knightShuffle(cycles int) []string {
	var out []string
	for i := 0; i < cycles; i++ {
		out = append(out, "g1f3", "g8f6", "f3g1", "f6g8")
	}
	return out
}

func TestDrawReasonRepetition(t *testing.T) {
	c := New()

	got, err := c.DrawReason(handbrain.StartPosition, knightShuffle(1))
	require.NoError(t, err)
	assert.Empty(t, got, "start position seen twice")

	got, err = c.DrawReason(handbrain.StartPosition, knightShuffle(2))
	require.NoError(t, err)
	assert.Equal(t, handbrain.EndRepetition, got)

	got, err = c.DrawReason(handbrain.StartPosition, knightShuffle(4))
	require.NoError(t, err)
	assert.Equal(t, handbrain.EndRepetition, got)

	// same squares, but the position after the last move is new
	got, err = c.DrawReason(handbrain.StartPosition, append(knightShuffle(1), "e2e4"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDrawReasonRejectsBadHistory(t *testing.T) {
	c := New()
	_, err := c.DrawReason(handbrain.StartPosition, []string{"e2e4", "e2e4"})
	require.Error(t, err)

	_, err = c.DrawReason("not a fen", nil)
	require.Error(t, err)
}

func TestClassifyOpening(t *testing.T) {
	op, ok, err := ClassifyOpening([]string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, op.Title, "Ruy Lopez")
	assert.True(t, strings.HasPrefix(op.Code, "C"), op.Code)

	_, ok, err = ClassifyOpening(nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ClassifyOpening([]string{"e2e5"})
	require.Error(t, err)
}
