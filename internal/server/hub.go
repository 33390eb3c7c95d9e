package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hungryghost/karma-server-go/internal/game"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Message types exchanged over the socket.
const (
	TypeState    = "state"
	TypeEvent    = "event"
	TypeRejected = "rejected"
	TypeError    = "error"
	TypeAction   = "action"
	TypeNewGame  = "new_game"
	TypeReset    = "reset"
)

const writeWait = 10 * time.Second

// ClientMessage is sent by a browser.
type ClientMessage struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Target string `json:"target,omitempty"`
}

// ServerMessage is sent to browsers.
type ServerMessage struct {
	Type      string              `json:"type"`
	GameID    string              `json:"gameId,omitempty"`
	State     *game.State         `json:"state,omitempty"`
	Available []game.Availability `json:"available,omitempty"`
	Event     *rules.Event        `json:"event,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

// Saver persists committed states.
type Saver interface {
	Save(ctx context.Context, gameID string, state game.State) (bool, error)
}

// Loader fetches a stored game that is not running.
type Loader interface {
	Load(ctx context.Context, gameID string) (game.State, error)
}

// Store is the persistence the hub autosaves to.
type Store interface {
	Saver
	Loader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	game *game.Controller
}

// watch is the hub's subscription to one table's events.
type watch struct {
	handle  int
	clients int
}

// Hub bridges websocket clients to running games. Every client sharing a
// game id sees the same table.
type Hub struct {
	logger    *zap.Logger
	manager   *game.Manager
	store     Store
	readLimit int64
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool

	watchMu sync.Mutex
	watched map[*game.Controller]*watch
}

// NewHub creates a hub serving games from manager. store may be nil.
func NewHub(manager *game.Manager, store Store, readLimit int64, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if readLimit <= 0 {
		readLimit = 4096
	}
	return &Hub{
		logger:    logger,
		manager:   manager,
		store:     store,
		readLimit: readLimit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
		watched: make(map[*game.Controller]*watch),
	}
}

// Handler returns the HTTP routes of the hub.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/games", h.serveGames)
	mux.HandleFunc("GET /replays/{id}", h.serveReplay)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *Hub) serveGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.manager.List()); err != nil {
		h.logger.Warn("failed to write game list", zap.Error(err))
	}
}

// serveReplay returns one rebuilt step of a game's replay. The step
// defaults to the first one.
func (h *Hub) serveReplay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	replay, err := h.manager.Replay(id)
	if errors.Is(err, game.ErrReplayNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Warn("failed to load replay", zap.String("game_id", id), zap.Error(err))
		http.Error(w, "failed to load replay", http.StatusInternalServerError)
		return
	}

	step := 0
	if raw := r.URL.Query().Get("step"); raw != "" {
		step, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid step", http.StatusBadRequest)
			return
		}
	}
	frame, ok := replay.Frame(step)
	if !ok {
		http.Error(w, "step out of range", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(frame); err != nil {
		h.logger.Warn("failed to write replay frame", zap.Error(err))
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	var (
		c   *game.Controller
		err error
	)
	if id := r.URL.Query().Get("game"); id != "" {
		c, err = h.controller(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	} else {
		c = h.manager.Create()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.readLimit)

	cl := &client{
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.attach(cl, c)

	h.logger.Info("client connected",
		zap.String("game_id", c.ID()),
		zap.String("remote", r.RemoteAddr),
	)

	go h.writePump(cl)
	go h.readPump(cl)
}

// controller finds a running game or resumes a stored one.
func (h *Hub) controller(ctx context.Context, id string) (*game.Controller, error) {
	c, err := h.manager.Get(id)
	if err == nil || !errors.Is(err, game.ErrGameNotFound) || h.store == nil {
		return c, err
	}

	return h.manager.GetOrAdopt(id, func() (game.State, error) {
		state, loadErr := h.store.Load(ctx, id)
		if loadErr != nil && !errors.Is(loadErr, game.ErrInvalidState) {
			h.logger.Debug("no stored game", zap.String("game_id", id), zap.Error(loadErr))
			return game.State{}, err
		}
		h.logger.Info("resumed stored game", zap.String("game_id", id))
		return state, nil
	})
}

// attach moves cl to c's table and sends it the current snapshot.
func (h *Hub) attach(cl *client, c *game.Controller) {
	h.watch(c)

	h.mu.Lock()
	prev := cl.game
	cl.game = c
	h.clients[cl] = true
	h.mu.Unlock()

	if prev != nil {
		h.release(prev)
	}
	h.sendTo(cl, h.stateMessage(c))
}

// watch forwards c's committed log entries to its clients and counts one
// more client on the table.
func (h *Hub) watch(c *game.Controller) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	if w, ok := h.watched[c]; ok {
		w.clients++
		return
	}
	id := c.ID()
	handle := c.Events().Subscribe(func(e rules.Event) {
		h.broadcast(c, ServerMessage{Type: TypeEvent, GameID: id, Event: &e})
	})
	h.watched[c] = &watch{handle: handle, clients: 1}
}

// release drops one client from c's table and stops listening once the
// table is empty.
func (h *Hub) release(c *game.Controller) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	w, ok := h.watched[c]
	if !ok {
		return
	}
	if w.clients--; w.clients > 0 {
		return
	}
	c.Events().Unsubscribe(w.handle)
	delete(h.watched, c)
	h.logger.Debug("stopped watching game", zap.String("game_id", c.ID()))
}

func (h *Hub) detach(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	if ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	c := cl.game
	h.mu.Unlock()

	if ok && c != nil {
		h.release(c)
	}
}

func (h *Hub) stateMessage(c *game.Controller) ServerMessage {
	s, available := c.View()
	return ServerMessage{
		Type:      TypeState,
		GameID:    c.ID(),
		State:     &s,
		Available: available,
	}
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		h.detach(cl)
		cl.conn.Close()
	}()

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendTo(cl, ServerMessage{Type: TypeError, Reason: "malformed message"})
			continue
		}
		h.handleMessage(cl, msg)
	}
}

func (h *Hub) writePump(cl *client) {
	defer cl.conn.Close()

	for message := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) handleMessage(cl *client, msg ClientMessage) {
	switch msg.Type {
	case TypeNewGame:
		h.attach(cl, h.manager.Create())

	case TypeReset:
		c, err := h.table(cl)
		if err != nil {
			h.sendTo(cl, ServerMessage{Type: TypeError, Reason: err.Error()})
			return
		}
		c.Reset()
		h.committed(c)

	case TypeAction:
		c, err := h.table(cl)
		if err != nil {
			h.sendTo(cl, ServerMessage{Type: TypeError, Reason: err.Error()})
			return
		}
		kind, err := game.ParseActionKind(msg.Action)
		if err != nil {
			h.sendTo(cl, ServerMessage{Type: TypeError, GameID: c.ID(), Reason: err.Error()})
			return
		}
		out := c.Dispatch(game.Action{Kind: kind, Target: location.ID(msg.Target)})
		if !out.Allowed {
			h.sendTo(cl, ServerMessage{Type: TypeRejected, GameID: c.ID(), Reason: out.Reason})
			return
		}
		h.committed(c)

	default:
		h.sendTo(cl, ServerMessage{Type: TypeError, Reason: "unknown message type " + msg.Type})
	}
}

// table returns the controller now registered under cl's game id,
// following the client across a replaced controller.
func (h *Hub) table(cl *client) (*game.Controller, error) {
	h.mu.RLock()
	current := cl.game
	h.mu.RUnlock()

	c, err := h.manager.Get(current.ID())
	if err != nil {
		return nil, err
	}
	if c != current {
		h.attach(cl, c)
	}
	return c, nil
}

// committed broadcasts the new snapshot and autosaves it.
func (h *Hub) committed(c *game.Controller) {
	msg := h.stateMessage(c)
	h.broadcast(c, msg)

	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.store.Save(ctx, c.ID(), *msg.State); err != nil {
		h.logger.Warn("autosave failed", zap.String("game_id", c.ID()), zap.Error(err))
	}
}

func (h *Hub) broadcast(c *game.Controller, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		if cl.game != c {
			continue
		}
		select {
		case cl.send <- data:
		default:
			h.logger.Warn("client send buffer full", zap.String("game_id", c.ID()))
		}
	}
}

func (h *Hub) sendTo(cl *client, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[cl] {
		return
	}
	select {
	case cl.send <- data:
	default:
		h.logger.Warn("client send buffer full", zap.String("game_id", cl.game.ID()))
	}
}

// Close disconnects every client and stops listening to every table.
func (h *Hub) Close() {
	h.mu.Lock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()

	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	for c, w := range h.watched {
		c.Events().Unsubscribe(w.handle)
		delete(h.watched, c)
	}
}

// watching reports how many tables the hub is subscribed to.
func (h *Hub) watching() int {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	return len(h.watched)
}
