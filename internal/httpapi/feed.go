package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/obslog"
)

// Subscriber hands out live event streams; gameID "" streams every game.
type Subscriber interface {
	Subscribe(gameID string, buffer int) (<-chan handbrain.Event, func())
}

// Feed streams committed game events to websocket clients. It runs on
// net/http because websocket upgrades need the connection hijack fasthttp
// does not expose through a net/http ResponseWriter.
type Feed struct {
	hub          Subscriber
	logger       *zap.Logger
	buffer       int
	writeTimeout time.Duration
	pingInterval time.Duration
}

func NewFeed(hub Subscriber) *Feed {
	return &Feed{
		hub:          hub,
		logger:       obslog.L(),
		buffer:       64,
		writeTimeout: 5 * time.Second,
		pingInterval: 30 * time.Second,
	}
}

func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		f.serve(w, r, "")
	})
	mux.HandleFunc("GET /games/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		f.serve(w, r, r.PathValue("id"))
	})
	return mux
}

func (f *Feed) serve(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		f.logger.Debug("hnb_feed_accept", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "feed stopped") }()

	events, cancel := f.hub.Subscribe(gameID, f.buffer)
	defer cancel()
	f.logger.Info("hnb_feed_open", zap.String("game_id", gameID), zap.String("remote", r.RemoteAddr))

	// clients only ever send control frames
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("hnb_feed_close", zap.String("game_id", gameID))
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "unsubscribed")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, f.writeTimeout)
			err := wsjson.Write(wctx, conn, toEventDTO(ev))
			wcancel()
			if err != nil {
				f.logger.Debug("hnb_feed_write", zap.String("game_id", gameID), zap.Error(err))
				return
			}
			if ev.Type == handbrain.EventGameDeleted && gameID != "" {
				_ = conn.Close(websocket.StatusNormalClosure, "game deleted")
				return
			}
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, f.writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				f.logger.Debug("hnb_feed_ping", zap.String("game_id", gameID), zap.Error(err))
				return
			}
		}
	}
}
