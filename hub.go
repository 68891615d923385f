package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// SpectatorFrame is the JSON message pushed to spectators.
type SpectatorFrame struct {
	Type   string      `json:"type"` // phase | event | game_over
	GameID string      `json:"game_id"`
	Phase  Phase       `json:"phase,omitempty"`
	Round  int         `json:"round"`
	Text   string      `json:"text,omitempty"`
	Event  *GameEvent  `json:"event,omitempty"`
	Result *GameResult `json:"result,omitempty"`
}

// Client is one spectator connection.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // Serialize writes to WebSocket (required by gorilla/websocket)
}

// Hub fans public game progress out to every connected spectator. It only
// ever sends public events; nothing a client writes reaches the game.
type Hub struct {
	clients    map[*websocket.Conn]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn
	history    [][]byte
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
	}
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) send(client *Client, message []byte) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	return client.conn.WriteMessage(websocket.TextMessage, message)
}

// start launches the hub loop; stop waits for it.
func (h *Hub) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			backlog := append([][]byte(nil), h.history...)
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Spectator connected. Total: %d", count)
			// Late joiners get the game so far.
			for _, msg := range backlog {
				if err := h.send(client, msg); err != nil {
					log.Printf("WebSocket backlog write error: %v", err)
					break
				}
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Spectator disconnected. Total: %d", count)

		case message := <-h.broadcast:
			LogWSMessage("OUT", "spectators", string(message))
			h.mu.Lock()
			h.history = append(h.history, message)
			for conn, client := range h.clients {
				if err := h.send(client, message); err != nil {
					log.Printf("WebSocket write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) publish(frame SpectatorFrame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		logError("hub.publish: marshal", err)
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		log.Printf("Spectator hub backlog full, dropping %s frame", frame.Type)
	}
}

func (h *Hub) PhaseStarted(gameID string, phase Phase, round int) {
	h.publish(SpectatorFrame{Type: "phase", GameID: gameID, Phase: phase, Round: round})
}

func (h *Hub) EventAdded(gameID string, ev GameEvent) {
	if !ev.Public {
		return
	}
	h.publish(SpectatorFrame{Type: "event", GameID: gameID, Phase: ev.Phase, Round: ev.Round, Text: FormatEvent(ev), Event: &ev})
}

func (h *Hub) GameEnded(gameID string, result GameResult) {
	h.publish(SpectatorFrame{Type: "game_over", GameID: gameID, Round: result.Rounds, Result: &result})
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // read-only feed
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error from %s: %v", r.RemoteAddr, err)
		return
	}

	DebugLog("handleWebSocket", "Spectator %s connected", r.RemoteAddr)
	client := &Client{conn: conn}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Drain incoming frames until the client leaves.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			LogWSMessage("IN", r.RemoteAddr, string(message))
		}
	}()
}

// handleHistory returns every frame published so far as a JSON array.
func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	frames := make([]json.RawMessage, len(h.history))
	for i, msg := range h.history {
		frames[i] = msg
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(frames); err != nil {
		logError("handleHistory", err)
	}
}

// newSpectatorMux serves the live feed at /ws and the backlog at /history.
func newSpectatorMux(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("GET /history", h.handleHistory)
	return mux
}
