package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/store/storetest"
)

func newTestStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, opts), mr
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) handbrain.Store {
		s, _ := newTestStore(t, Options{MaxRetries: 64})
		return s
	})
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), "redis://"+mr.Addr()+"/0", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := Open(context.Background(), "", Options{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := Open(context.Background(), "http://nope", Options{}); err == nil {
		t.Fatalf("expected error for non-redis scheme")
	}
}

func TestTTLAppliedToGameAndHistory(t *testing.T) {
	s, mr := newTestStore(t, Options{TTL: time.Hour})
	ctx := context.Background()
	g := &handbrain.Game{ID: "g1", Status: handbrain.StatusInProgress, CreatedAt: time.Now().UTC()}
	if err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
		tx.AppendMove(&handbrain.Move{PlayerID: "h", Notation: "e2e4", Position: "p"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ttl := mr.TTL(gameKey(g.ID)); ttl != time.Hour {
		t.Fatalf("game ttl = %v", ttl)
	}
	if ttl := mr.TTL(movesKey(g.ID)); ttl != time.Hour {
		t.Fatalf("moves ttl = %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if got, _ := s.LoadGame(ctx, g.ID); got != nil {
		t.Fatalf("expected game to expire")
	}
	list, err := s.ListGames(ctx, "")
	if err != nil || len(list) != 0 {
		t.Fatalf("ListGames after expiry = %v, %v", list, err)
	}
}

func TestUpdateGivesUpAfterMaxRetries(t *testing.T) {
	s, _ := newTestStore(t, Options{MaxRetries: 3})
	ctx := context.Background()
	g := &handbrain.Game{ID: "g-busy", Status: handbrain.StatusInProgress}
	if err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	other := redis.NewClient(&redis.Options{Addr: s.Client().Options().Addr})
	defer other.Close()

	calls := 0
	_, err := s.Update(ctx, g.ID, func(tx *handbrain.Txn) error {
		calls++
		// a competing writer touches the watched list on every attempt
		return other.RPush(ctx, suggestionsKey(g.ID), "{}").Err()
	})
	if !errors.Is(err, handbrain.ErrTxConflict) {
		t.Fatalf("err = %v; want ErrTxConflict", err)
	}
	if handbrain.KindOf(err) != handbrain.KindUnavailable {
		t.Fatalf("kind = %s", handbrain.KindOf(err))
	}
	if calls != 4 {
		t.Fatalf("fn ran %d times; want 4", calls)
	}
}

func TestUpdateDoesNotRetryDomainErrors(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	if err := s.CreateGame(ctx, &handbrain.Game{ID: "g2", Status: handbrain.StatusForming}); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	calls := 0
	_, err := s.Update(ctx, "g2", func(tx *handbrain.Txn) error {
		calls++
		return handbrain.ErrState
	})
	if !errors.Is(err, handbrain.ErrState) || calls != 1 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}

func TestCreateGameIndexesAtomically(t *testing.T) {
	s, mr := newTestStore(t, Options{})
	ctx := context.Background()

	// a record without index entries must not be overwritten or indexed
	mr.Set(gameKey("g-orphan"), `{"id":"g-orphan","status":"FORMING"}`)
	if err := s.CreateGame(ctx, &handbrain.Game{ID: "g-orphan", Status: handbrain.StatusInProgress}); err == nil {
		t.Fatalf("CreateGame over an existing key succeeded")
	}
	if ok, _ := mr.SIsMember(allGamesKey(), "g-orphan"); ok {
		t.Fatalf("failed create indexed the game")
	}
	if mr.Exists(statusKey(handbrain.StatusInProgress)) {
		t.Fatalf("failed create touched the status index")
	}

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.CreateGame(ctx, &handbrain.Game{ID: "g-race", Status: handbrain.StatusForming}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d racing creates succeeded; want 1", wins)
	}
	members, err := mr.SMembers(statusKey(handbrain.StatusForming))
	if err != nil || len(members) != 1 || members[0] != "g-race" {
		t.Fatalf("FORMING index = %v, %v", members, err)
	}
	games, err := s.ListGames(ctx, "")
	if err != nil || len(games) != 1 || games[0].ID != "g-race" {
		t.Fatalf("ListGames = %+v, %v", games, err)
	}
}
