// Command handbrain-check checks a running handbrain-server: the HTTP API
// first, then (optionally) the websocket event feed for a short window.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/obslog"
	"github.com/park285/handbrain-chess/pkg/handbrainclient"
	"github.com/park285/handbrain-chess/pkg/handbraindto"
)

func main() {
	baseURL := os.Getenv("HNB_BASE_URL")
	eventsURL := os.Getenv("HNB_EVENTS_URL")
	gameID := os.Getenv("HNB_WATCH_GAME")

	if baseURL == "" {
		log.Fatal("HNB_BASE_URL is required")
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	client := handbrainclient.New(baseURL, handbrainclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		logger.Error("hnb_check_health", zap.String("base_url", baseURL), zap.Error(err))
		os.Exit(1)
	}
	games, err := client.Games(ctx, "IN_PROGRESS")
	if err != nil {
		logger.Error("hnb_check_games", zap.Error(err))
	} else {
		logger.Info("hnb_check_ok", zap.String("base_url", baseURL), zap.Int("games_in_progress", len(games)))
	}

	if eventsURL == "" {
		logger.Info("hnb_check_skip_feed", zap.String("reason", "HNB_EVENTS_URL not set"))
		return
	}

	w := handbrainclient.NewWatcher(eventsURL, gameID, 5)
	w.OnStateChange(func(state handbrainclient.WatchState) {
		logger.Info("hnb_check_feed_state", zap.String("state", string(state)))
	})
	w.OnEvent(func(ev *handbraindto.Event) {
		fields := []zap.Field{zap.String("type", ev.Type), zap.String("game_id", ev.GameID)}
		if ev.Move != nil {
			fields = append(fields, zap.String("san", ev.Move.SAN))
		}
		if ev.Suggestion != nil {
			fields = append(fields, zap.String("piece_type", ev.Suggestion.PieceType))
		}
		logger.Info("hnb_check_event", fields...)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := w.Connect(cctx); err != nil {
		logger.Error("hnb_check_feed_connect", zap.String("events_url", eventsURL), zap.Error(err))
		return
	}

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = w.Close(closeCtx)
}
