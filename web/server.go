// Package web exposes live training progress over HTTP: a JSON stats
// endpoint for polling and a websocket that streams log entries as they
// are produced.
package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/tsawler/go-mobilenet/training"
)

// Stats is the monitor's current view of the run.
type Stats struct {
	Running  bool                `json:"running"`
	Latest   *training.LogEntry  `json:"latest,omitempty"`
	TrainLog []training.LogEntry `json:"train_log"`
	ValLog   []training.LogEntry `json:"val_log"`
}

// Monitor collects training progress and serves it to HTTP and websocket
// clients. Publish is safe to call from the training goroutine while
// clients connect and disconnect.
type Monitor struct {
	mu       sync.Mutex
	stats    Stats
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the monitor's HTTP routes.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/stats", m.handleStats).Methods("GET")
	r.HandleFunc("/ws", m.handleWebsocket)
	return r
}

// Serve starts an HTTP server on addr. It blocks, so run it in its own
// goroutine alongside training.
func (m *Monitor) Serve(addr string) error {
	return http.ListenAndServe(addr, m.Handler())
}

// PublishTrain records a training log entry and pushes it to every
// connected websocket client.
func (m *Monitor) PublishTrain(entry training.LogEntry) {
	m.mu.Lock()
	m.stats.Running = true
	m.stats.Latest = &entry
	m.stats.TrainLog = append(m.stats.TrainLog, entry)
	m.broadcastLocked(wsMessage{Kind: "train", Entry: entry})
	m.mu.Unlock()
}

// PublishVal records a validation log entry and pushes it to clients.
func (m *Monitor) PublishVal(entry training.LogEntry) {
	m.mu.Lock()
	m.stats.Running = true
	m.stats.ValLog = append(m.stats.ValLog, entry)
	m.broadcastLocked(wsMessage{Kind: "val", Entry: entry})
	m.mu.Unlock()
}

// Finish marks the run complete.
func (m *Monitor) Finish() {
	m.mu.Lock()
	m.stats.Running = false
	m.broadcastLocked(wsMessage{Kind: "done"})
	m.mu.Unlock()
}

type wsMessage struct {
	Kind  string            `json:"kind"`
	Entry training.LogEntry `json:"entry"`
}

func (m *Monitor) handleStats(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.stats); err != nil {
		log.Printf("web: failed to encode stats: %v", err)
	}
}

func (m *Monitor) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade failed: %v", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = true
	m.mu.Unlock()

	// Reader loop exists only to detect disconnects.
	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.clients, conn)
			m.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *Monitor) clientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *Monitor) broadcastLocked(msg wsMessage) {
	for conn := range m.clients {
		if err := conn.WriteJSON(msg); err != nil {
			delete(m.clients, conn)
			conn.Close()
		}
	}
}
