package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Allow same-origin (no Origin header)
		if origin == "" {
			return true
		}

		allowedOrigins := []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
			"http://[::1]:8080",
		}
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}

		log.Printf("WebSocket: Rejected origin: %s", origin)
		return false
	},
}

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSManager pushes live pipeline activity to connected dashboards.
type WSManager struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewWSManager() *WSManager {
	return &WSManager{clients: make(map[*websocket.Conn]struct{})}
}

func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()

	// Drain reads until disconnect, then clean up.
	go func() {
		defer conn.Close()
		defer func() {
			m.mu.Lock()
			delete(m.clients, conn)
			m.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// BroadcastThreat sends a detected threat to all connected clients.
func (m *WSManager) BroadcastThreat(event *domain.ThreatEvent) {
	m.broadcastMessage(WSMessage{Type: "threat", Payload: event})
}

// BroadcastOutcome sends a protection outcome to all connected clients.
func (m *WSManager) BroadcastOutcome(outcome *domain.ProtectionOutcome) {
	m.broadcastMessage(WSMessage{Type: "protection", Payload: outcome})
}

func (m *WSManager) broadcastMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("JSON marshal error:", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}
