package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/rules"
)

func finishedGame() *handbrain.Game {
	return &handbrain.Game{
		ID:         "g1",
		Status:     handbrain.StatusFinished,
		WhiteBrain: "wb",
		WhiteHand:  "wh",
		BlackBrain: "bb",
		BlackHand:  `b"h`,
		Winner:     handbrain.Black,
		EndReason:  handbrain.EndCheckmate,
		CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestResultToken(t *testing.T) {
	g := finishedGame()
	if got := ResultToken(g); got != "0-1" {
		t.Fatalf("black win = %q", got)
	}
	g.Winner = handbrain.White
	if got := ResultToken(g); got != "1-0" {
		t.Fatalf("white win = %q", got)
	}
	g.Winner, g.EndReason = "", handbrain.EndStalemate
	if got := ResultToken(g); got != "1/2-1/2" {
		t.Fatalf("draw = %q", got)
	}
	g.Status = handbrain.StatusInProgress
	if got := ResultToken(g); got != "*" {
		t.Fatalf("unfinished = %q", got)
	}
}

func TestBuildPGN(t *testing.T) {
	pgn := BuildPGN(finishedGame(), []string{"f3", "e5", "g4", "Qh4#"}, rules.Opening{})

	for _, want := range []string{
		`[Event "Hand and Brain"]`,
		`[Date "2024.03.01"]`,
		`[White "wb / wh"]`,
		`[Black "bb / b'h"]`,
		`[Termination "checkmate"]`,
		`[Result "0-1"]`,
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %s:\n%s", want, pgn)
		}
	}
	if !strings.HasSuffix(pgn, "1. f3 e5 2. g4 Qh4# 0-1") {
		t.Fatalf("unexpected movetext:\n%s", pgn)
	}
}

func TestBuildPGNOpeningHeaders(t *testing.T) {
	op := rules.Opening{Code: "C60", Title: `Ruy "Spanish" Lopez`}
	pgn := BuildPGN(finishedGame(), []string{"e4"}, op)
	if !strings.Contains(pgn, `[ECO "C60"]`) || !strings.Contains(pgn, `[Opening "Ruy 'Spanish' Lopez"]`) {
		t.Fatalf("missing opening headers:\n%s", pgn)
	}
	if strings.Contains(BuildPGN(finishedGame(), nil, rules.Opening{}), "[ECO") {
		t.Fatalf("ECO header without a code")
	}
}

func TestBuildPGNOddMoveCount(t *testing.T) {
	g := finishedGame()
	g.Winner = handbrain.White
	pgn := BuildPGN(g, []string{"e4", "e5", "Qh5"}, rules.Opening{})
	if !strings.HasSuffix(pgn, "1. e4 e5 2. Qh5 1-0") {
		t.Fatalf("unexpected movetext:\n%s", pgn)
	}
}

func TestNilRepositoryIsNoop(t *testing.T) {
	var r *Repository
	if err := r.ArchiveGame(context.Background(), finishedGame(), nil); err != nil {
		t.Fatalf("nil repository: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestOpenRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
