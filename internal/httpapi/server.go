// Package httpapi exposes the turn engine as a JSON API over fasthttp.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/boardimg"
	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/msgcat"
	"github.com/park285/handbrain-chess/internal/obslog"
	"github.com/park285/handbrain-chess/pkg/handbraindto"
)

// Engine is the subset of *handbrain.Engine the API drives.
type Engine interface {
	CreateGame(ctx context.Context, playerID string, team handbrain.Team, role handbrain.Role) (*handbrain.Game, error)
	JoinGame(ctx context.Context, gameID, playerID string, team handbrain.Team, role handbrain.Role) (*handbrain.Game, error)
	SubmitSuggestion(ctx context.Context, gameID, playerID string, pieceType handbrain.PieceType) (*handbrain.Suggestion, error)
	SubmitMove(ctx context.Context, gameID, playerID, notation string) (*handbrain.Game, error)
	GetGame(ctx context.Context, id string) (*handbrain.Game, error)
	ListGames(ctx context.Context, status handbrain.Status) ([]*handbrain.Game, error)
	ListSuggestions(ctx context.Context, gameID string) ([]*handbrain.Suggestion, error)
	ListMoves(ctx context.Context, gameID string) ([]*handbrain.Move, error)
	SelectablePieces(ctx context.Context, gameID string) ([]handbrain.PieceType, error)
	DeleteGame(ctx context.Context, id string) error
}

// Registry registers new players.
type Registry interface {
	Register(ctx context.Context, username string) (*handbrain.Player, error)
}

type Server struct {
	engine  Engine
	players Registry
	msgs    *msgcat.Catalog
	board   *boardimg.Renderer
	logger  *zap.Logger
}

func New(engine Engine, players Registry, msgs *msgcat.Catalog) *Server {
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	return &Server{engine: engine, players: players, msgs: msgs, board: boardimg.New(0), logger: obslog.L()}
}

// Handler routes requests and logs each one.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		started := time.Now()
		s.route(rc)
		s.logger.Debug("hnb_http",
			zap.ByteString("method", rc.Method()),
			zap.ByteString("path", rc.Path()),
			zap.Int("status", rc.Response.StatusCode()),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
}

func (s *Server) route(rc *fasthttp.RequestCtx) {
	parts := strings.Split(strings.Trim(string(rc.Path()), "/"), "/")
	method := string(rc.Method())

	switch {
	case len(parts) == 1 && parts[0] == "healthz":
		if method == fasthttp.MethodGet {
			rc.SetStatusCode(fasthttp.StatusOK)
			rc.SetBodyString("ok")
			return
		}
	case len(parts) == 1 && parts[0] == "players":
		if method == fasthttp.MethodPost {
			s.registerPlayer(rc)
			return
		}
	case len(parts) == 1 && parts[0] == "games":
		switch method {
		case fasthttp.MethodPost:
			s.createGame(rc)
			return
		case fasthttp.MethodGet:
			s.listGames(rc)
			return
		}
	case len(parts) == 2 && parts[0] == "games" && parts[1] != "":
		switch method {
		case fasthttp.MethodGet:
			s.getGame(rc, parts[1])
			return
		case fasthttp.MethodDelete:
			s.deleteGame(rc, parts[1])
			return
		}
	case len(parts) == 3 && parts[0] == "games" && parts[1] != "":
		if h := s.gameSubroute(parts[2], method); h != nil {
			h(rc, parts[1])
			return
		}
		if !knownSubroute(parts[2]) {
			s.routeNotFound(rc)
			return
		}
	default:
		s.routeNotFound(rc)
		return
	}
	s.methodNotAllowed(rc)
}

func knownSubroute(name string) bool {
	switch name {
	case "players", "suggestions", "moves", "pieces", "board.png":
		return true
	}
	return false
}

func (s *Server) gameSubroute(name, method string) func(*fasthttp.RequestCtx, string) {
	switch {
	case name == "players" && method == fasthttp.MethodPost:
		return s.joinGame
	case name == "suggestions" && method == fasthttp.MethodPost:
		return s.submitSuggestion
	case name == "suggestions" && method == fasthttp.MethodGet:
		return s.listSuggestions
	case name == "moves" && method == fasthttp.MethodPost:
		return s.submitMove
	case name == "moves" && method == fasthttp.MethodGet:
		return s.listMoves
	case name == "pieces" && method == fasthttp.MethodGet:
		return s.selectablePieces
	case name == "board.png" && method == fasthttp.MethodGet:
		return s.boardImage
	}
	return nil
}

func (s *Server) registerPlayer(rc *fasthttp.RequestCtx) {
	var req handbraindto.RegisterPlayerRequest
	if !s.decode(rc, &req) {
		return
	}
	p, err := s.players.Register(rc, req.Username)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	writeJSON(rc, fasthttp.StatusCreated, toPlayerDTO(p))
}

func (s *Server) createGame(rc *fasthttp.RequestCtx) {
	var req handbraindto.SeatRequest
	if !s.decode(rc, &req) {
		return
	}
	g, err := s.engine.CreateGame(rc, req.PlayerID, parseTeam(req.Team), parseRole(req.Role))
	if err != nil {
		s.writeError(rc, err)
		return
	}
	writeJSON(rc, fasthttp.StatusCreated, toGameDTO(g))
}

func (s *Server) listGames(rc *fasthttp.RequestCtx) {
	status := handbrain.Status(strings.ToUpper(strings.TrimSpace(string(rc.QueryArgs().Peek("status")))))
	games, err := s.engine.ListGames(rc, status)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	out := handbraindto.GameList{Games: make([]*handbraindto.Game, 0, len(games))}
	for _, g := range games {
		out.Games = append(out.Games, toGameDTO(g))
	}
	writeJSON(rc, fasthttp.StatusOK, out)
}

func (s *Server) getGame(rc *fasthttp.RequestCtx, id string) {
	g, err := s.engine.GetGame(rc, id)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	writeJSON(rc, fasthttp.StatusOK, toGameDTO(g))
}

func (s *Server) deleteGame(rc *fasthttp.RequestCtx, id string) {
	if err := s.engine.DeleteGame(rc, id); err != nil {
		s.writeError(rc, err)
		return
	}
	rc.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) joinGame(rc *fasthttp.RequestCtx, id string) {
	var req handbraindto.SeatRequest
	if !s.decode(rc, &req) {
		return
	}
	g, err := s.engine.JoinGame(rc, id, req.PlayerID, parseTeam(req.Team), parseRole(req.Role))
	if err != nil {
		s.writeError(rc, err)
		return
	}
	writeJSON(rc, fasthttp.StatusOK, toGameDTO(g))
}

func (s *Server) submitSuggestion(rc *fasthttp.RequestCtx, id string) {
	var req handbraindto.SuggestionRequest
	if !s.decode(rc, &req) {
		return
	}
	sg, err := s.engine.SubmitSuggestion(rc, id, req.PlayerID, handbrain.PieceType(req.PieceType))
	if err != nil {
		s.writeError(rc, err)
		return
	}
	writeJSON(rc, fasthttp.StatusCreated, toSuggestionDTO(sg))
}

func (s *Server) listSuggestions(rc *fasthttp.RequestCtx, id string) {
	list, err := s.engine.ListSuggestions(rc, id)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	out := handbraindto.SuggestionList{Suggestions: make([]*handbraindto.Suggestion, 0, len(list))}
	for _, sg := range list {
		out.Suggestions = append(out.Suggestions, toSuggestionDTO(sg))
	}
	writeJSON(rc, fasthttp.StatusOK, out)
}

func (s *Server) submitMove(rc *fasthttp.RequestCtx, id string) {
	var req handbraindto.MoveRequest
	if !s.decode(rc, &req) {
		return
	}
	g, err := s.engine.SubmitMove(rc, id, req.PlayerID, req.Move)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	writeJSON(rc, fasthttp.StatusOK, toGameDTO(g))
}

func (s *Server) listMoves(rc *fasthttp.RequestCtx, id string) {
	list, err := s.engine.ListMoves(rc, id)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	out := handbraindto.MoveList{Moves: make([]*handbraindto.Move, 0, len(list))}
	for _, mv := range list {
		out.Moves = append(out.Moves, toMoveDTO(mv))
	}
	writeJSON(rc, fasthttp.StatusOK, out)
}

func (s *Server) selectablePieces(rc *fasthttp.RequestCtx, id string) {
	pieces, err := s.engine.SelectablePieces(rc, id)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	out := handbraindto.PieceList{PieceTypes: make([]string, 0, len(pieces))}
	for _, pt := range pieces {
		out.PieceTypes = append(out.PieceTypes, string(pt))
	}
	writeJSON(rc, fasthttp.StatusOK, out)
}

// boardImage renders the current position with the last move and, while the
// Hand is to move, the squares holding the selected piece type.
func (s *Server) boardImage(rc *fasthttp.RequestCtx, id string) {
	g, err := s.engine.GetGame(rc, id)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	moves, err := s.engine.ListMoves(rc, id)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	position := g.Position
	if position == "" {
		position = handbrain.StartPosition
	}
	opts := boardimg.Options{Header: s.boardHeader(g)}
	if g.Status == handbrain.StatusInProgress && g.CurrentRole == handbrain.Hand {
		opts.Selected = g.SelectedPiece
	}
	if n := len(moves); n > 0 {
		if mv, err := handbrain.ParseMoveNotation(moves[n-1].Notation); err == nil {
			opts.LastMove = &mv
		}
	}
	img, err := s.board.RenderPNG(rc, position, opts)
	if err != nil {
		s.writeError(rc, err)
		return
	}
	rc.SetStatusCode(fasthttp.StatusOK)
	rc.SetContentType("image/png")
	rc.SetBody(img)
}

func (s *Server) boardHeader(g *handbrain.Game) string {
	data := map[string]string{
		"Team":   string(g.CurrentTeam),
		"Role":   string(g.CurrentRole),
		"Piece":  strings.ToLower(string(g.SelectedPiece)),
		"Reason": strings.ReplaceAll(string(g.EndReason), "_", " "),
	}
	key := "board.forming"
	switch {
	case g.Status == handbrain.StatusFinished && g.Winner != "":
		key, data["Team"] = "board.won", string(g.Winner)
	case g.Status == handbrain.StatusFinished:
		key = "board.drawn"
	case g.Status == handbrain.StatusInProgress && g.SelectedPiece != "":
		key = "board.to_move_selected"
	case g.Status == handbrain.StatusInProgress:
		key = "board.to_move"
	}
	return s.render(key, data, "")
}

func (s *Server) decode(rc *fasthttp.RequestCtx, dst any) bool {
	if err := json.Unmarshal(rc.PostBody(), dst); err != nil {
		msg := s.render("api.bad_json", map[string]string{"Detail": err.Error()}, "invalid json body")
		writeJSON(rc, fasthttp.StatusBadRequest, handbraindto.ErrorResponse{Code: string(handbrain.KindFormat), Message: msg})
		return false
	}
	return true
}

func (s *Server) routeNotFound(rc *fasthttp.RequestCtx) {
	msg := s.render("api.route_not_found", requestData(rc), "route not found")
	writeJSON(rc, fasthttp.StatusNotFound, handbraindto.ErrorResponse{Code: string(handbrain.KindNotFound), Message: msg})
}

func (s *Server) methodNotAllowed(rc *fasthttp.RequestCtx) {
	msg := s.render("api.method_not_allowed", requestData(rc), "method not allowed")
	writeJSON(rc, fasthttp.StatusMethodNotAllowed, handbraindto.ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: msg})
}

func requestData(rc *fasthttp.RequestCtx) map[string]string {
	return map[string]string{"Method": string(rc.Method()), "Path": string(rc.Path())}
}

// statusByKind maps engine error kinds to HTTP statuses.
var statusByKind = map[handbrain.Kind]int{
	handbrain.KindNotFound:    fasthttp.StatusNotFound,
	handbrain.KindConflict:    fasthttp.StatusConflict,
	handbrain.KindTurn:        fasthttp.StatusConflict,
	handbrain.KindState:       fasthttp.StatusConflict,
	handbrain.KindRule:        fasthttp.StatusUnprocessableEntity,
	handbrain.KindFormat:      fasthttp.StatusUnprocessableEntity,
	handbrain.KindUnavailable: fasthttp.StatusServiceUnavailable,
}

func (s *Server) writeError(rc *fasthttp.RequestCtx, err error) {
	kind := handbrain.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		kind, status = handbrain.KindInternal, fasthttp.StatusInternalServerError
	}
	resp := handbraindto.ErrorResponse{Code: string(kind)}
	var de *handbrain.Error
	detail := ""
	if errors.As(err, &de) {
		detail = de.Message
		resp.Retryable = de.Retryable
	}
	if kind == handbrain.KindInternal {
		s.logger.Error("hnb_http_error", zap.ByteString("path", rc.Path()), zap.Error(err))
		detail = ""
	}
	resp.Message = s.render("errors."+string(kind), map[string]string{"Detail": detail}, detail)
	writeJSON(rc, status, resp)
}

func (s *Server) render(key string, data map[string]string, fallback string) string {
	msg, err := s.msgs.Render(key, data)
	if err != nil {
		s.logger.Warn("hnb_msgcat_render", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return msg
}

func writeJSON(rc *fasthttp.RequestCtx, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetStatusCode(status)
	rc.SetContentType("application/json")
	rc.SetBody(raw)
}

func parseTeam(s string) handbrain.Team { return handbrain.Team(strings.ToUpper(strings.TrimSpace(s))) }
func parseRole(s string) handbrain.Role { return handbrain.Role(strings.ToUpper(strings.TrimSpace(s))) }
