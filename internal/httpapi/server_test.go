package httpapi_test

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/httpapi"
	"github.com/park285/handbrain-chess/internal/player"
	"github.com/park285/handbrain-chess/internal/rules"
	"github.com/park285/handbrain-chess/internal/store/memstore"
	"github.com/park285/handbrain-chess/pkg/handbrainclient"
)

func newEngine(t *testing.T) (*handbrain.Engine, *player.MemoryDirectory) {
	t.Helper()
	dir := player.NewMemoryDirectory()
	e, err := handbrain.NewEngine(memstore.New(), rules.New(), dir, handbrain.Options{})
	require.NoError(t, err)
	return e, dir
}

// serve runs handler on an in-memory listener and returns a client for it.
func serve(t *testing.T, handler fasthttp.RequestHandler, opts ...handbrainclient.Option) *handbrainclient.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	opts = append(opts, handbrainclient.WithDialer(func(string) (net.Conn, error) { return ln.Dial() }))
	return handbrainclient.New("http://handbrain.test", opts...)
}

func apiError(t *testing.T, err error) *handbrainclient.APIError {
	t.Helper()
	var apiErr *handbrainclient.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	return apiErr
}

func TestGameFlowOverHTTP(t *testing.T) {
	engine, dir := newEngine(t)
	c := serve(t, httpapi.New(engine, dir, nil).Handler())
	ctx := context.Background()

	ids := make([]string, 4)
	for i, name := range []string{"wb", "wh", "bb", "bh"} {
		p, err := c.RegisterPlayer(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, player.DefaultRating, p.Rating)
		ids[i] = p.ID
	}

	g, err := c.CreateGame(ctx, ids[0], "white", "brain")
	require.NoError(t, err)
	assert.Equal(t, "FORMING", g.Status)
	assert.Equal(t, []string{"join"}, g.AllowedActions)

	_, err = c.JoinGame(ctx, g.ID, ids[1], "WHITE", "BRAIN")
	assert.Equal(t, 409, apiError(t, err).Status)

	_, err = c.JoinGame(ctx, g.ID, ids[1], "WHITE", "HAND")
	require.NoError(t, err)
	_, err = c.JoinGame(ctx, g.ID, ids[2], "BLACK", "BRAIN")
	require.NoError(t, err)
	g, err = c.JoinGame(ctx, g.ID, ids[3], "BLACK", "HAND")
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", g.Status)
	assert.Equal(t, "WHITE", g.CurrentTeam)
	assert.Equal(t, "BRAIN", g.CurrentRole)

	pieces, err := c.Pieces(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAWN", "KNIGHT"}, pieces)

	sg, err := c.Suggest(ctx, g.ID, ids[0], "knight")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sg.Sequence)
	assert.Equal(t, "KNIGHT", sg.PieceType)

	_, err = c.Move(ctx, g.ID, ids[1], "e2e4")
	apiErr := apiError(t, err)
	assert.Equal(t, 422, apiErr.Status)
	assert.Equal(t, "RULE", apiErr.Code)
	assert.Equal(t, "must move the piece type selected by brain", apiErr.Message)

	g, err = c.Move(ctx, g.ID, ids[1], "g1f3")
	require.NoError(t, err)
	assert.Equal(t, "BLACK", g.CurrentTeam)
	assert.Equal(t, "BRAIN", g.CurrentRole)
	assert.Empty(t, g.SelectedPiece)

	_, err = c.Suggest(ctx, g.ID, ids[2], "bishop")
	apiErr = apiError(t, err)
	assert.Equal(t, 422, apiErr.Status)
	assert.Equal(t, "RULE", apiErr.Code)
	assert.Equal(t, "no legal moves for selected piece type", apiErr.Message)

	_, err = c.Suggest(ctx, g.ID, ids[0], "pawn")
	apiErr = apiError(t, err)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, "TURN", apiErr.Code)
	assert.False(t, apiErr.Retryable)

	_, err = c.Suggest(ctx, g.ID, ids[2], "dragon")
	assert.Equal(t, 422, apiError(t, err).Status)

	moves, err := c.Moves(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, "g1f3", moves[0].Move)
	assert.Equal(t, "Nf3", moves[0].SAN)

	suggestions, err := c.Suggestions(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	active, err := c.Games(ctx, "in_progress")
	require.NoError(t, err)
	require.Len(t, active, 1)
	forming, err := c.Games(ctx, "FORMING")
	require.NoError(t, err)
	assert.Empty(t, forming)

	require.NoError(t, c.DeleteGame(ctx, g.ID))
	_, err = c.Game(ctx, g.ID)
	apiErr = apiError(t, err)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestUnknownStatusFilter(t *testing.T) {
	engine, dir := newEngine(t)
	c := serve(t, httpapi.New(engine, dir, nil).Handler())

	_, err := c.Games(context.Background(), "paused")
	assert.Equal(t, 422, apiError(t, err).Status)
}

func do(h fasthttp.RequestHandler, method, path, body string) *fasthttp.RequestCtx {
	var rc fasthttp.RequestCtx
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(path)
	if body != "" {
		rc.Request.SetBodyString(body)
	}
	h(&rc)
	return &rc
}

func TestRoutingErrors(t *testing.T) {
	engine, dir := newEngine(t)
	h := httpapi.New(engine, dir, nil).Handler()

	rc := do(h, fasthttp.MethodGet, "/nowhere", "")
	assert.Equal(t, fasthttp.StatusNotFound, rc.Response.StatusCode())
	assert.Contains(t, string(rc.Response.Body()), "No route for GET /nowhere")

	rc = do(h, fasthttp.MethodPut, "/games", "")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, rc.Response.StatusCode())

	rc = do(h, fasthttp.MethodPatch, "/games/abc/moves", "")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, rc.Response.StatusCode())

	rc = do(h, fasthttp.MethodGet, "/games/abc/boards", "")
	assert.Equal(t, fasthttp.StatusNotFound, rc.Response.StatusCode())

	rc = do(h, fasthttp.MethodPost, "/games", "{not json")
	assert.Equal(t, fasthttp.StatusBadRequest, rc.Response.StatusCode())
	assert.Contains(t, string(rc.Response.Body()), `"code":"FORMAT"`)

	rc = do(h, fasthttp.MethodGet, "/healthz", "")
	assert.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
}

type flakyEngine struct {
	httpapi.Engine
	calls atomic.Int32
}

func (f *flakyEngine) GetGame(ctx context.Context, id string) (*handbrain.Game, error) {
	if f.calls.Add(1) < 3 {
		return nil, &handbrain.Error{Kind: handbrain.KindUnavailable, Message: "get_game: timed out", Retryable: true}
	}
	return &handbrain.Game{ID: id, Status: handbrain.StatusForming}, nil
}

type brokenEngine struct {
	httpapi.Engine
}

func (brokenEngine) GetGame(ctx context.Context, id string) (*handbrain.Game, error) {
	return nil, errors.New("disk on fire")
}

func TestRetryableErrorsAreRetriedByClient(t *testing.T) {
	eng := &flakyEngine{}
	c := serve(t, httpapi.New(eng, nil, nil).Handler(), handbrainclient.WithRetry(3), handbrainclient.WithTimeout(5*time.Second))

	g, err := c.Game(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Equal(t, "g-1", g.ID)
	assert.Equal(t, int32(3), eng.calls.Load())
}

func TestRetryableErrorSurfacesAfterLastAttempt(t *testing.T) {
	eng := &flakyEngine{}
	c := serve(t, httpapi.New(eng, nil, nil).Handler(), handbrainclient.WithRetry(2))

	_, err := c.Game(context.Background(), "g-1")
	apiErr := apiError(t, err)
	assert.Equal(t, 503, apiErr.Status)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, "UNAVAILABLE", apiErr.Code)
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	h := httpapi.New(brokenEngine{}, nil, nil).Handler()

	rc := do(h, fasthttp.MethodGet, "/games/g-1", "")
	assert.Equal(t, fasthttp.StatusInternalServerError, rc.Response.StatusCode())
	assert.NotContains(t, string(rc.Response.Body()), "disk on fire")
	assert.Contains(t, string(rc.Response.Body()), `"code":"INTERNAL"`)
}

func TestBoardImage(t *testing.T) {
	engine, dir := newEngine(t)
	c := serve(t, httpapi.New(engine, dir, nil).Handler())
	ctx := context.Background()

	ids := make([]string, 4)
	for i, name := range []string{"wb", "wh", "bb", "bh"} {
		p, err := c.RegisterPlayer(ctx, name)
		require.NoError(t, err)
		ids[i] = p.ID
	}
	g, err := c.CreateGame(ctx, ids[0], "WHITE", "BRAIN")
	require.NoError(t, err)

	raw, err := c.Board(ctx, g.ID)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	for i, seat := range [][2]string{{"WHITE", "HAND"}, {"BLACK", "BRAIN"}, {"BLACK", "HAND"}} {
		_, err := c.JoinGame(ctx, g.ID, ids[i+1], seat[0], seat[1])
		require.NoError(t, err)
	}
	_, err = c.Suggest(ctx, g.ID, ids[0], "PAWN")
	require.NoError(t, err)
	_, err = c.Move(ctx, g.ID, ids[1], "e2e4")
	require.NoError(t, err)
	_, err = c.Suggest(ctx, g.ID, ids[2], "KNIGHT")
	require.NoError(t, err)

	raw, err = c.Board(ctx, g.ID)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 8*32)

	_, err = c.Board(ctx, "missing")
	assert.Equal(t, 404, apiError(t, err).Status)

	rc := do(httpapi.New(engine, dir, nil).Handler(), fasthttp.MethodPost, "/games/"+g.ID+"/board.png", "")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, rc.Response.StatusCode())
}
