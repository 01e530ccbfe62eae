// Package storetest is the behavioural contract every handbrain.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/handbrain-chess/internal/handbrain"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) handbrain.Store

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleGame(id string, status handbrain.Status) *handbrain.Game {
	g := &handbrain.Game{
		ID:         id,
		Status:     status,
		WhiteBrain: "p-white-brain",
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}
	if status == handbrain.StatusInProgress {
		g.WhiteHand, g.BlackBrain, g.BlackHand = "p-white-hand", "p-black-brain", "p-black-hand"
		g.CurrentTeam, g.CurrentRole = handbrain.White, handbrain.Brain
		g.Position = handbrain.StartPosition
		g.InitialPosition = handbrain.StartPosition
	}
	return g
}

// Run executes the contract against fresh stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndLoad", func(t *testing.T) { testCreateAndLoad(t, newStore(t)) })
	t.Run("DuplicateCreate", func(t *testing.T) { testDuplicateCreate(t, newStore(t)) })
	t.Run("Absent", func(t *testing.T) { testAbsent(t, newStore(t)) })
	t.Run("UpdateCommits", func(t *testing.T) { testUpdateCommits(t, newStore(t)) })
	t.Run("UpdateAbortsOnError", func(t *testing.T) { testUpdateAborts(t, newStore(t)) })
	t.Run("SequencesContinue", func(t *testing.T) { testSequences(t, newStore(t)) })
	t.Run("HistoryInsideUpdate", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("ListGamesByStatus", func(t *testing.T) { testListGames(t, newStore(t)) })
	t.Run("DeleteRemovesHistory", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func testCreateAndLoad(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-create", handbrain.StatusInProgress)
	if err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	got, err := s.LoadGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if got == nil {
		t.Fatalf("LoadGame returned nil for existing game")
	}
	if got.ID != g.ID || got.Status != g.Status || got.Position != g.Position {
		t.Fatalf("loaded game mismatch: %+v", got)
	}
	if got.WhiteBrain != g.WhiteBrain || got.BlackHand != g.BlackHand {
		t.Fatalf("seats not persisted: %+v", got)
	}
	if got.InitialPosition != handbrain.StartPosition {
		t.Fatalf("initial position not persisted: %+v", got)
	}
	if got.CurrentTeam != handbrain.White || got.CurrentRole != handbrain.Brain {
		t.Fatalf("turn not persisted: %+v", got)
	}
	if !got.CreatedAt.Equal(epoch) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, epoch)
	}

	got.WhiteBrain = "mutated"
	again, _ := s.LoadGame(ctx, g.ID)
	if again.WhiteBrain != g.WhiteBrain {
		t.Fatalf("store returned shared game state")
	}
}

func testDuplicateCreate(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-dup", handbrain.StatusForming)
	mustCreate(t, s, g)

	again := sampleGame("g-dup", handbrain.StatusInProgress)
	if err := s.CreateGame(ctx, again); err == nil {
		t.Fatalf("second CreateGame succeeded")
	}
	loaded, _ := s.LoadGame(ctx, g.ID)
	if loaded == nil || loaded.Status != handbrain.StatusForming {
		t.Fatalf("duplicate create replaced the game: %+v", loaded)
	}
	all, err := s.ListGames(ctx, "")
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(all) != 1 || all[0].ID != g.ID {
		t.Fatalf("ListGames = %+v", all)
	}
	active, _ := s.ListGames(ctx, handbrain.StatusInProgress)
	if len(active) != 0 {
		t.Fatalf("duplicate create indexed the game as IN_PROGRESS")
	}
}

func testAbsent(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	got, err := s.LoadGame(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("LoadGame(missing) = %v, %v; want nil, nil", got, err)
	}
	_, err = s.Update(ctx, "missing", func(tx *handbrain.Txn) error { return nil })
	if handbrain.KindOf(err) != handbrain.KindNotFound {
		t.Fatalf("Update(missing) err = %v; want NOT_FOUND", err)
	}
	moves, err := s.ListMoves(ctx, "missing")
	if err != nil || len(moves) != 0 {
		t.Fatalf("ListMoves(missing) = %v, %v", moves, err)
	}
}

func testUpdateCommits(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-commit", handbrain.StatusInProgress)
	mustCreate(t, s, g)

	updated, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
		tx.Game.SelectedPiece = handbrain.Knight
		tx.Game.CurrentRole = handbrain.Hand
		tx.Game.InitialPosition = "4k3/8/8/8/8/8/8/R3K3 w - - 0 1"
		tx.AppendSuggestion(&handbrain.Suggestion{PlayerID: g.WhiteBrain, PieceType: handbrain.Knight, CreatedAt: epoch})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.SelectedPiece != handbrain.Knight || updated.CurrentRole != handbrain.Hand {
		t.Fatalf("Update returned stale game: %+v", updated)
	}
	loaded, _ := s.LoadGame(ctx, g.ID)
	if loaded.SelectedPiece != handbrain.Knight || loaded.InitialPosition != "4k3/8/8/8/8/8/8/R3K3 w - - 0 1" {
		t.Fatalf("update not persisted: %+v", loaded)
	}
	list, err := s.ListSuggestions(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListSuggestions: %v", err)
	}
	if len(list) != 1 || list[0].Sequence != 1 || list[0].GameID != g.ID || list[0].PieceType != handbrain.Knight {
		t.Fatalf("unexpected suggestions: %+v", list)
	}
}

func testUpdateAborts(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-abort", handbrain.StatusInProgress)
	mustCreate(t, s, g)

	boom := errors.New("boom")
	_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
		tx.Game.SelectedPiece = handbrain.Queen
		tx.AppendSuggestion(&handbrain.Suggestion{PlayerID: g.WhiteBrain, PieceType: handbrain.Queen, CreatedAt: epoch})
		tx.AppendMove(&handbrain.Move{PlayerID: g.WhiteHand, Notation: "e2e4", Position: "x", CreatedAt: epoch})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v; want boom", err)
	}
	loaded, _ := s.LoadGame(ctx, g.ID)
	if loaded.SelectedPiece != "" {
		t.Fatalf("aborted update leaked game changes: %+v", loaded)
	}
	sugg, _ := s.ListSuggestions(ctx, g.ID)
	moves, _ := s.ListMoves(ctx, g.ID)
	if len(sugg) != 0 || len(moves) != 0 {
		t.Fatalf("aborted update leaked history: %d suggestions, %d moves", len(sugg), len(moves))
	}
}

func testSequences(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-seq", handbrain.StatusInProgress)
	mustCreate(t, s, g)

	uci := []string{"e2e4", "e7e5", "g1f3"}
	for i, n := range uci {
		_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
			tx.AppendSuggestion(&handbrain.Suggestion{PlayerID: "b", PieceType: handbrain.Pawn, CreatedAt: epoch.Add(time.Duration(i) * time.Second)})
			tx.AppendMove(&handbrain.Move{PlayerID: "h", Notation: n, SAN: n, Position: fmt.Sprintf("pos-%d", i), CreatedAt: epoch.Add(time.Duration(i) * time.Second)})
			return nil
		})
		if err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}

	moves, err := s.ListMoves(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListMoves: %v", err)
	}
	if len(moves) != len(uci) {
		t.Fatalf("got %d moves, want %d", len(moves), len(uci))
	}
	for i, mv := range moves {
		if mv.Sequence != int64(i+1) || mv.Notation != uci[i] || mv.Position != fmt.Sprintf("pos-%d", i) {
			t.Fatalf("move %d = %+v", i, mv)
		}
	}
	sugg, _ := s.ListSuggestions(ctx, g.ID)
	for i, sg := range sugg {
		if sg.Sequence != int64(i+1) {
			t.Fatalf("suggestion %d has sequence %d", i, sg.Sequence)
		}
	}
}

// testHistory checks that Txn.History sees committed moves in order, then the
// moves staged by the running transaction.
func testHistory(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-history", handbrain.StatusInProgress)
	mustCreate(t, s, g)

	var seen [][]string
	for i, n := range []string{"g1f3", "g8f6", "f3g1"} {
		_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
			before, err := tx.History()
			if err != nil {
				return err
			}
			tx.AppendMove(&handbrain.Move{PlayerID: "h", Notation: n, Position: fmt.Sprintf("pos-%d", i), CreatedAt: epoch})
			after, err := tx.History()
			if err != nil {
				return err
			}
			if len(after) != len(before)+1 || after[len(after)-1] != n {
				return fmt.Errorf("staged move missing: before=%v after=%v", before, after)
			}
			seen = append(seen, before)
			return nil
		})
		if err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}
	want := [][]string{nil, {"g1f3"}, {"g1f3", "g8f6"}}
	for i := range want {
		if fmt.Sprint(seen[i]) != fmt.Sprint(want[i]) {
			t.Fatalf("history before move %d = %v; want %v", i, seen[i], want[i])
		}
	}

	// an aborted transaction's staged moves never reach the history
	_, _ = s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
		tx.AppendMove(&handbrain.Move{PlayerID: "h", Notation: "g8f6", Position: "x", CreatedAt: epoch})
		return errors.New("abort")
	})
	_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
		h, err := tx.History()
		if err != nil {
			return err
		}
		if fmt.Sprint(h) != fmt.Sprint([]string{"g1f3", "g8f6", "f3g1"}) {
			return fmt.Errorf("history = %v", h)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("history after abort: %v", err)
	}
}

func testListGames(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	mustCreate(t, s, sampleGame("g-a", handbrain.StatusForming))
	mustCreate(t, s, sampleGame("g-b", handbrain.StatusInProgress))
	mustCreate(t, s, sampleGame("g-c", handbrain.StatusForming))

	all, err := s.ListGames(ctx, "")
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListGames(all) = %d games", len(all))
	}
	forming, _ := s.ListGames(ctx, handbrain.StatusForming)
	if len(forming) != 2 {
		t.Fatalf("ListGames(FORMING) = %d games", len(forming))
	}

	// Status changes move a game between listings.
	_, err = s.Update(ctx, "g-a", func(tx *handbrain.Txn) error {
		tx.Game.Status = handbrain.StatusInProgress
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	forming, _ = s.ListGames(ctx, handbrain.StatusForming)
	active, _ := s.ListGames(ctx, handbrain.StatusInProgress)
	if len(forming) != 1 || len(active) != 2 {
		t.Fatalf("after start: forming=%d active=%d", len(forming), len(active))
	}
}

func testDelete(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-del", handbrain.StatusInProgress)
	mustCreate(t, s, g)
	_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
		tx.AppendSuggestion(&handbrain.Suggestion{PlayerID: "b", PieceType: handbrain.Pawn, CreatedAt: epoch})
		tx.AppendMove(&handbrain.Move{PlayerID: "h", Notation: "e2e4", Position: "p", CreatedAt: epoch})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := s.DeleteGame(ctx, g.ID); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	if got, _ := s.LoadGame(ctx, g.ID); got != nil {
		t.Fatalf("game still loadable after delete")
	}
	sugg, _ := s.ListSuggestions(ctx, g.ID)
	moves, _ := s.ListMoves(ctx, g.ID)
	if len(sugg) != 0 || len(moves) != 0 {
		t.Fatalf("history survived delete")
	}
	all, _ := s.ListGames(ctx, "")
	if len(all) != 0 {
		t.Fatalf("deleted game still listed")
	}
	if err := s.DeleteGame(ctx, g.ID); err != nil {
		t.Fatalf("second DeleteGame: %v", err)
	}
}

// testConcurrent checks that racing updates never lose a write or reuse a
// sequence number. Stores with optimistic retries may reject some writers
// with ErrTxConflict; those must leave no trace.
func testConcurrent(t *testing.T, s handbrain.Store) {
	ctx := context.Background()
	g := sampleGame("g-race", handbrain.StatusInProgress)
	mustCreate(t, s, g)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
				tx.AppendSuggestion(&handbrain.Suggestion{PlayerID: "b", PieceType: handbrain.Pawn, CreatedAt: epoch})
				return nil
			})
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.Is(err, handbrain.ErrTxConflict):
			default:
				t.Errorf("concurrent Update: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded == 0 {
		t.Fatalf("no concurrent update succeeded")
	}
	sugg, err := s.ListSuggestions(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListSuggestions: %v", err)
	}
	if len(sugg) != succeeded {
		t.Fatalf("got %d suggestions, want %d", len(sugg), succeeded)
	}
	for i, sg := range sugg {
		if sg.Sequence != int64(i+1) {
			t.Fatalf("suggestion %d has sequence %d", i, sg.Sequence)
		}
	}
}

func mustCreate(t *testing.T, s handbrain.Store, g *handbrain.Game) {
	t.Helper()
	if err := s.CreateGame(context.Background(), g); err != nil {
		t.Fatalf("CreateGame(%s): %v", g.ID, err)
	}
}
