package httpapi_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/events"
	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/httpapi"
	"github.com/park285/handbrain-chess/internal/player"
	"github.com/park285/handbrain-chess/internal/rules"
	"github.com/park285/handbrain-chess/internal/store/memstore"
	"github.com/park285/handbrain-chess/pkg/handbrainclient"
	"github.com/park285/handbrain-chess/pkg/handbraindto"
)

type feedFixture struct {
	hub    *events.Hub
	engine *handbrain.Engine
	wsURL  string
	ids    []string
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()
	hub := events.NewHub(zap.NewNop())
	dir := player.NewMemoryDirectory()
	engine, err := handbrain.NewEngine(memstore.New(), rules.New(), dir, handbrain.Options{Events: hub})
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewFeed(hub).Handler())
	t.Cleanup(srv.Close)

	f := &feedFixture{hub: hub, engine: engine, wsURL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	for _, name := range []string{"wb", "wh", "bb", "bh"} {
		p, err := dir.Register(context.Background(), name)
		require.NoError(t, err)
		f.ids = append(f.ids, p.ID)
	}
	return f
}

func (f *feedFixture) watch(t *testing.T, gameID string) (*handbrainclient.Watcher, <-chan *handbraindto.Event) {
	t.Helper()
	got := make(chan *handbraindto.Event, 16)
	w := handbrainclient.NewWatcher(f.wsURL, gameID, 0)
	w.OnEvent(func(ev *handbraindto.Event) { got <- ev })
	require.NoError(t, w.Connect(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Close(ctx)
	})
	require.Eventually(t, func() bool { return f.hub.Subscribers(gameID) == 1 }, 2*time.Second, 10*time.Millisecond)
	return w, got
}

func next(t *testing.T, ch <-chan *handbraindto.Event) *handbraindto.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestFeedStreamsGameEvents(t *testing.T) {
	f := newFeedFixture(t)
	ctx := context.Background()

	g, err := f.engine.CreateGame(ctx, f.ids[0], handbrain.White, handbrain.Brain)
	require.NoError(t, err)
	w, got := f.watch(t, g.ID)
	assert.Equal(t, handbrainclient.WatchConnected, w.State())

	seats := []handbrain.Seat{{Team: handbrain.White, Role: handbrain.Hand}, {Team: handbrain.Black, Role: handbrain.Brain}, {Team: handbrain.Black, Role: handbrain.Hand}}
	for i, seat := range seats {
		_, err := f.engine.JoinGame(ctx, g.ID, f.ids[i+1], seat.Team, seat.Role)
		require.NoError(t, err)
	}
	_, err = f.engine.SubmitSuggestion(ctx, g.ID, f.ids[0], handbrain.Knight)
	require.NoError(t, err)
	_, err = f.engine.SubmitMove(ctx, g.ID, f.ids[1], "g1f3")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "player_joined", next(t, got).Type)
	}
	sg := next(t, got)
	assert.Equal(t, "suggestion", sg.Type)
	require.NotNil(t, sg.Suggestion)
	assert.Equal(t, "KNIGHT", sg.Suggestion.PieceType)
	assert.Equal(t, "HAND", sg.Game.CurrentRole)

	mv := next(t, got)
	assert.Equal(t, "move", mv.Type)
	require.NotNil(t, mv.Move)
	assert.Equal(t, "Nf3", mv.Move.SAN)
	assert.Equal(t, "BLACK", mv.Game.CurrentTeam)

	require.NoError(t, f.engine.DeleteGame(ctx, g.ID))
	assert.Equal(t, "game_deleted", next(t, got).Type)
	assert.Eventually(t, func() bool { return w.State() == handbrainclient.WatchClosed }, 3*time.Second, 10*time.Millisecond)
}

func TestFeedAllGames(t *testing.T) {
	f := newFeedFixture(t)
	_, got := f.watch(t, events.AllGames)

	g1, err := f.engine.CreateGame(context.Background(), f.ids[0], handbrain.White, handbrain.Brain)
	require.NoError(t, err)
	g2, err := f.engine.CreateGame(context.Background(), f.ids[1], handbrain.Black, handbrain.Hand)
	require.NoError(t, err)

	first, second := next(t, got), next(t, got)
	assert.Equal(t, "game_created", first.Type)
	assert.Equal(t, g1.ID, first.GameID)
	assert.Equal(t, g2.ID, second.GameID)
	assert.Equal(t, "FORMING", second.Game.Status)
}

func TestWatcherFailsWithoutServer(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	w := handbrainclient.NewWatcher(url, "g-1", 0)
	require.Error(t, w.Connect(context.Background()))
	assert.Equal(t, handbrainclient.WatchFailed, w.State())
	require.NoError(t, w.Close(context.Background()))
}
