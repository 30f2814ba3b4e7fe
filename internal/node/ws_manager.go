package node

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dicesettle/internal/events"
)

const writeWait = 10 * time.Second

// WSManager streams committed events to websocket subscribers
type WSManager struct {
	events  *events.Broadcaster
	log     logrus.FieldLogger
	metrics *Metrics

	// WebSocket configuration
	upgrader websocket.Upgrader

	// Connection tracking. mu orders activeConns.Add against Stop's Wait.
	mu          sync.Mutex
	stopped     bool
	activeConns sync.WaitGroup
	done        chan struct{}
}

// NewWSManager creates a new WebSocket manager
func NewWSManager(broadcaster *events.Broadcaster, log logrus.FieldLogger, metrics *Metrics) *WSManager {
	return &WSManager{
		events:  broadcaster,
		log:     log,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		done: make(chan struct{}),
	}
}

// Stop closes every stream and waits for the handlers to return
func (wm *WSManager) Stop() {
	wm.mu.Lock()
	if !wm.stopped {
		wm.stopped = true
		close(wm.done)
	}
	wm.mu.Unlock()
	wm.activeConns.Wait()
}

// track registers a stream unless the manager is already stopping
func (wm *WSManager) track() bool {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.stopped {
		return false
	}
	wm.activeConns.Add(1)
	return true
}

// handleWebSocket upgrades the request and streams events until either side
// closes. The optional kind query parameter filters events by kind.
func (wm *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	kinds := r.URL.Query()["kind"]

	conn, err := wm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wm.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	if !wm.track() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "node shutting down")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	wm.metrics.Subscribers.Inc()
	defer func() {
		conn.Close()
		wm.metrics.Subscribers.Dec()
		wm.activeConns.Done()
	}()

	sub, cancel := wm.events.Subscribe()
	defer cancel()

	// Subscribers only listen; reading detects the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if !matchesKind(kinds, ev.Kind) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				wm.log.WithError(err).Debug("Event stream write failed")
				return
			}
		case <-closed:
			return
		case <-wm.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "node shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func matchesKind(kinds []string, kind string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
