// Package handbrainclient is a fasthttp client for the Hand and Brain HTTP API.
package handbrainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fasthttp"

	"github.com/park285/handbrain-chess/pkg/handbraindto"
)

// APIError is a non-2xx reply decoded from the server's error body.
type APIError struct {
	Status int
	handbraindto.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("handbrain api: status=%d code=%s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithRetry bounds attempts for requests the server marks retryable.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDialer replaces the TCP dialer, e.g. with an in-memory listener.
func WithDialer(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health succeeds when the server answers its liveness check.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, nil)
}

func (c *Client) RegisterPlayer(ctx context.Context, username string) (*handbraindto.Player, error) {
	var out handbraindto.Player
	req := handbraindto.RegisterPlayerRequest{Username: username}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/players", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateGame(ctx context.Context, playerID, team, role string) (*handbraindto.Game, error) {
	var out handbraindto.Game
	req := handbraindto.SeatRequest{PlayerID: playerID, Team: team, Role: role}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/games", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinGame(ctx context.Context, gameID, playerID, team, role string) (*handbraindto.Game, error) {
	var out handbraindto.Game
	req := handbraindto.SeatRequest{PlayerID: playerID, Team: team, Role: role}
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "players"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Suggest(ctx context.Context, gameID, playerID, pieceType string) (*handbraindto.Suggestion, error) {
	var out handbraindto.Suggestion
	req := handbraindto.SuggestionRequest{PlayerID: playerID, PieceType: pieceType}
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "suggestions"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Move(ctx context.Context, gameID, playerID, move string) (*handbraindto.Game, error) {
	var out handbraindto.Game
	req := handbraindto.MoveRequest{PlayerID: playerID, Move: move}
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "moves"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Game(ctx context.Context, gameID string) (*handbraindto.Game, error) {
	var out handbraindto.Game
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(gameID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Games lists games; status "" lists all.
func (c *Client) Games(ctx context.Context, status string) ([]*handbraindto.Game, error) {
	path := "/games"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out handbraindto.GameList
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Games, nil
}

func (c *Client) Suggestions(ctx context.Context, gameID string) ([]*handbraindto.Suggestion, error) {
	var out handbraindto.SuggestionList
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(gameID, "suggestions"), nil, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

func (c *Client) Moves(ctx context.Context, gameID string) ([]*handbraindto.Move, error) {
	var out handbraindto.MoveList
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(gameID, "moves"), nil, &out); err != nil {
		return nil, err
	}
	return out.Moves, nil
}

func (c *Client) Pieces(ctx context.Context, gameID string) ([]string, error) {
	var out handbraindto.PieceList
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(gameID, "pieces"), nil, &out); err != nil {
		return nil, err
	}
	return out.PieceTypes, nil
}

// Board fetches the rendered position as PNG.
func (c *Client) Board(ctx context.Context, gameID string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + gamePath(gameID, "board.png"))
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, decodeAPIError(resp)
	}
	return append([]byte(nil), resp.Body()...), nil
}

func (c *Client) DeleteGame(ctx context.Context, gameID string) error {
	return c.doJSON(ctx, fasthttp.MethodDelete, gamePath(gameID, ""), nil, nil)
}

func gamePath(id, sub string) string {
	p := "/games/" + url.PathEscape(strings.TrimSpace(id))
	if sub != "" {
		p += "/" + sub
	}
	return p
}

// doJSON retries transport failures and replies flagged retryable; other
// API errors are returned on the first attempt.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	op := func() error {
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		status := resp.StatusCode()
		if status >= 200 && status < 300 {
			if out != nil && len(resp.Body()) > 0 {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return backoff.Permanent(fmt.Errorf("decode response: %w", err))
				}
			}
			return nil
		}
		apiErr := decodeAPIError(resp)
		if !apiErr.Retryable {
			return backoff.Permanent(apiErr)
		}
		return apiErr
	}
	return backoff.Retry(op, c.retryPolicy(ctx))
}

// retryPolicy allows retryMax attempts in total.
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	retries := c.retryMax - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(retries)), ctx)
}

// newBackOff starts at 50ms and grows to at most 1.6s between attempts.
// Callers bound the number of attempts.
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 1600 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func decodeAPIError(resp *fasthttp.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), &apiErr.ErrorResponse); err != nil {
		apiErr.Message = truncate(string(resp.Body()), 512)
	}
	return apiErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
