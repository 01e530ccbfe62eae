package handbrainclient

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/handbrain-chess/pkg/handbraindto"
)

type WatchState string

const (
	WatchDisconnected WatchState = "disconnected"
	WatchConnecting   WatchState = "connecting"
	WatchConnected    WatchState = "connected"
	WatchReconnecting WatchState = "reconnecting"
	WatchClosed       WatchState = "closed"
	WatchFailed       WatchState = "failed"
)

type EventCallback func(ev *handbraindto.Event)

type StateCallback func(state WatchState)

type eventEntry struct {
	id       int
	callback EventCallback
}

type stateEntry struct {
	id       int
	callback StateCallback
}

// Watcher follows the server's websocket event feed and reconnects with
// backoff when the connection drops. A normal closure from the server, sent
// when the watched game is deleted, ends the watch.
type Watcher struct {
	wsURL string

	conn  *websocket.Conn
	connM sync.Mutex

	state  WatchState
	stateM sync.RWMutex

	eventCbs []eventEntry
	stateCbs []stateEntry
	nextCbID int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewWatcher targets eventsURL (ws:// or wss://). gameID "" watches every game.
func NewWatcher(eventsURL, gameID string, maxReconnectAttempts int) *Watcher {
	u := strings.TrimRight(eventsURL, "/")
	if gameID == "" {
		u += "/events"
	} else {
		u += "/games/" + url.PathEscape(gameID) + "/events"
	}
	return &Watcher{
		wsURL:                u,
		state:                WatchDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

func (w *Watcher) Connect(ctx context.Context) error {
	switch w.State() {
	case WatchConnected, WatchConnecting, WatchReconnecting:
		return nil
	}
	w.rootCtx, w.rootCancel = context.WithCancel(context.Background())
	w.setState(WatchConnecting)

	conn, err := w.dial(ctx)
	if err != nil {
		w.setState(WatchFailed)
		w.scheduleReconnect()
		return err
	}
	w.attach(conn)
	return nil
}

func (w *Watcher) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, w.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	return conn, err
}

func (w *Watcher) attach(conn *websocket.Conn) {
	w.connM.Lock()
	w.conn = conn
	w.connM.Unlock()
	w.setState(WatchConnected)

	connCtx, cancel := context.WithCancel(w.rootCtx)
	w.wg.Add(2)
	go w.listen(conn, cancel)
	go w.pingLoop(connCtx, conn)
}

func (w *Watcher) listen(conn *websocket.Conn, stopPing context.CancelFunc) {
	defer w.wg.Done()
	defer stopPing()
	for {
		var ev handbraindto.Event
		if err := wsjson.Read(w.rootCtx, conn, &ev); err != nil {
			if w.isStopping() {
				return
			}
			w.dropConn(conn, websocket.StatusGoingAway, "reconnect")
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				w.setState(WatchClosed)
				return
			}
			w.setState(WatchDisconnected)
			w.scheduleReconnect()
			return
		}

		w.cbM.RLock()
		callbacks := make([]eventEntry, len(w.eventCbs))
		copy(callbacks, w.eventCbs)
		w.cbM.RUnlock()
		for _, entry := range callbacks {
			entry.callback(&ev)
		}
	}
}

// pingLoop closes a connection that misses two pings in a row; listen then
// notices the failed read and reconnects.
func (w *Watcher) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer w.wg.Done()
	t := time.NewTicker(w.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (w *Watcher) scheduleReconnect() {
	if w.maxReconnectAttempts <= 0 {
		w.setState(WatchFailed)
		return
	}
	w.setState(WatchReconnecting)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		b := backoff.WithMaxRetries(newBackOff(), uint64(w.maxReconnectAttempts))
		for {
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				w.setState(WatchFailed)
				return
			}
			t := time.NewTimer(wait)
			select {
			case <-w.stopCh:
				t.Stop()
				return
			case <-t.C:
			}
			conn, err := w.dial(w.rootCtx)
			if err != nil {
				continue
			}
			w.attach(conn)
			return
		}
	}()
}

func (w *Watcher) OnEvent(cb EventCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextCbID++
	w.eventCbs = append(w.eventCbs, eventEntry{id: w.nextCbID, callback: cb})
	return w.nextCbID
}

func (w *Watcher) RemoveEventCallback(id int) {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	for i, cb := range w.eventCbs {
		if cb.id == id {
			w.eventCbs = append(w.eventCbs[:i], w.eventCbs[i+1:]...)
			break
		}
	}
}

func (w *Watcher) OnStateChange(cb StateCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextCbID++
	w.stateCbs = append(w.stateCbs, stateEntry{id: w.nextCbID, callback: cb})
	return w.nextCbID
}

func (w *Watcher) State() WatchState {
	w.stateM.RLock()
	defer w.stateM.RUnlock()
	return w.state
}

func (w *Watcher) setState(state WatchState) {
	w.stateM.Lock()
	w.state = state
	w.stateM.Unlock()

	w.cbM.RLock()
	callbacks := make([]stateEntry, len(w.stateCbs))
	copy(callbacks, w.stateCbs)
	w.cbM.RUnlock()
	for _, entry := range callbacks {
		entry.callback(state)
	}
}

// Close stops reconnecting, closes the connection and waits for the
// watcher's goroutines until ctx is done.
func (w *Watcher) Close(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.connM.Lock()
	conn := w.conn
	w.connM.Unlock()
	if conn != nil {
		w.dropConn(conn, websocket.StatusNormalClosure, "close")
	}
	if w.rootCancel != nil {
		w.rootCancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *Watcher) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	w.connM.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.connM.Unlock()
	_ = conn.Close(code, reason)
}

func (w *Watcher) isStopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}
