package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hungryghost/karma-server-go/internal/game"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type memoryStore struct {
	mu     sync.Mutex
	states map[string]game.State
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]game.State)}
}

func (m *memoryStore) Save(_ context.Context, id string, s game.State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = s.Clone()
	m.saves++
	return true, nil
}

func (m *memoryStore) Load(_ context.Context, id string) (game.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return game.State{}, game.ErrGameNotFound
	}
	return s.Clone(), nil
}

func (m *memoryStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type testHub struct {
	hub     *Hub
	manager *game.Manager
	store   *memoryStore
	server  *httptest.Server
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return newTestHubWith(t, game.NewManager(logger, nil, []string{"Ann", "Bo"}))
}

func newTestHubWith(t *testing.T, manager *game.Manager) *testHub {
	t.Helper()
	store := newMemoryStore()
	// Socket pumps may still log after the test returns.
	hub := NewHub(manager, store, 0, zap.NewNop())
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testHub{hub: hub, manager: manager, store: store, server: srv}
}

func (th *testHub) dial(t *testing.T, gameID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(th.server.URL, "http") + "/ws"
	if gameID != "" {
		url += "?game=" + gameID
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads messages until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, msgType string) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestConnectWithoutGameCreatesOne(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, "")

	msg := readType(t, conn, TypeState)
	require.NotNil(t, msg.State)
	assert.NotEmpty(t, msg.GameID)
	assert.Equal(t, []string{"Ann", "Bo"}, msg.State.Names())
	assert.Equal(t, rules.PhaseMorning, msg.State.Phase)
	assert.NotEmpty(t, msg.Available)

	_, err := th.manager.Get(msg.GameID)
	assert.NoError(t, err)
}

func TestUnknownGameIsNotFound(t *testing.T) {
	th := newTestHub(t)
	url := "ws" + strings.TrimPrefix(th.server.URL, "http") + "/ws?game=missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActionBroadcastsToTable(t *testing.T) {
	th := newTestHub(t)
	c := th.manager.Create()

	first := th.dial(t, c.ID())
	second := th.dial(t, c.ID())
	readType(t, first, TypeState)
	readType(t, second, TypeState)

	send(t, first, ClientMessage{Type: TypeAction, Action: "move", Target: "forest"})

	for _, conn := range []*websocket.Conn{first, second} {
		ev := readType(t, conn, TypeEvent)
		require.NotNil(t, ev.Event)
		assert.Equal(t, rules.EventMoved, ev.Event.Type)

		msg := readType(t, conn, TypeState)
		require.NotNil(t, msg.State)
		assert.Equal(t, location.Forest, msg.State.Players[0].Location)
		assert.Equal(t, rules.PhaseAfternoon, msg.State.Phase)
	}

	assert.Eventually(t, func() bool { return th.store.saveCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestRejectionGoesOnlyToCaller(t *testing.T) {
	th := newTestHub(t)
	c := th.manager.Create()

	caller := th.dial(t, c.ID())
	readType(t, caller, TypeState)

	send(t, caller, ClientMessage{Type: TypeAction, Action: "meditate"})
	msg := readType(t, caller, TypeRejected)
	assert.Equal(t, "Must be a meditator to meditate", msg.Reason)

	send(t, caller, ClientMessage{Type: TypeAction, Action: "move", Target: "moon"})
	msg = readType(t, caller, TypeRejected)
	assert.NotEmpty(t, msg.Reason)

	assert.Zero(t, th.store.saveCount())
	assert.Equal(t, rules.PhaseMorning, c.State().Phase)
}

func TestUnknownActionIsAnError(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, "")
	readType(t, conn, TypeState)

	send(t, conn, ClientMessage{Type: TypeAction, Action: "levitate"})
	msg := readType(t, conn, TypeError)
	assert.Contains(t, msg.Reason, "levitate")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg = readType(t, conn, TypeError)
	assert.Equal(t, "malformed message", msg.Reason)
}

func TestNewGameMovesClient(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, "")
	first := readType(t, conn, TypeState)

	send(t, conn, ClientMessage{Type: TypeNewGame})
	second := readType(t, conn, TypeState)
	assert.NotEqual(t, first.GameID, second.GameID)
	assert.Len(t, th.manager.List(), 2)

	send(t, conn, ClientMessage{Type: TypeAction, Action: "advancePhase"})
	msg := readType(t, conn, TypeState)
	assert.Equal(t, second.GameID, msg.GameID)

	c, err := th.manager.Get(first.GameID)
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseMorning, c.State().Phase)
}

func TestResetBroadcastsFreshState(t *testing.T) {
	th := newTestHub(t)
	c := th.manager.Create()
	require.True(t, c.Move(location.Cave).Allowed)

	conn := th.dial(t, c.ID())
	readType(t, conn, TypeState)

	send(t, conn, ClientMessage{Type: TypeReset})
	msg := readType(t, conn, TypeState)
	assert.Equal(t, location.Town, msg.State.Players[0].Location)
	assert.Equal(t, rules.EventReset, msg.State.Log[len(msg.State.Log)-1].Type)
}

func TestResumesStoredGame(t *testing.T) {
	th := newTestHub(t)

	s := game.NewState("Cy", "Di")
	played, out := game.Apply(s, game.Action{Kind: game.ActionAdvancePhase})
	require.True(t, out.Allowed)
	_, err := th.store.Save(context.Background(), "saved", played)
	require.NoError(t, err)

	conn := th.dial(t, "saved")
	msg := readType(t, conn, TypeState)
	assert.Equal(t, "saved", msg.GameID)
	assert.Equal(t, []string{"Cy", "Di"}, msg.State.Names())
	assert.Equal(t, rules.PhaseAfternoon, msg.State.Phase)

	_, err = th.manager.Get("saved")
	assert.NoError(t, err)
}

func TestGamesEndpoint(t *testing.T) {
	th := newTestHub(t)
	th.manager.Adopt("a", game.NewState())

	resp, err := http.Get(th.server.URL + "/games")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []game.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	resp, err = http.Post(th.server.URL+"/games", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestConcurrentResumeSharesController(t *testing.T) {
	th := newTestHub(t)
	_, err := th.store.Save(context.Background(), "saved", game.NewState("Cy", "Di"))
	require.NoError(t, err)

	const callers = 8
	got := make([]*game.Controller, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := th.hub.controller(context.Background(), "saved")
			assert.NoError(t, err)
			got[i] = c
		}(i)
	}
	wg.Wait()

	running, err := th.manager.Get("saved")
	require.NoError(t, err)
	for _, c := range got {
		assert.Same(t, running, c)
	}
}

func TestLastClientLeavingStopsWatching(t *testing.T) {
	th := newTestHub(t)
	c := th.manager.Create()

	first := th.dial(t, c.ID())
	second := th.dial(t, c.ID())
	readType(t, first, TypeState)
	readType(t, second, TypeState)
	assert.Equal(t, 1, c.Events().Len())
	assert.Equal(t, 1, th.hub.watching())

	require.NoError(t, first.Close())
	send(t, second, ClientMessage{Type: TypeAction, Action: "advancePhase"})
	readType(t, second, TypeState)
	assert.Equal(t, 1, c.Events().Len())

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool {
		return c.Events().Len() == 0 && th.hub.watching() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNewGameReleasesPreviousTable(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, "")
	first := readType(t, conn, TypeState)
	old, err := th.manager.Get(first.GameID)
	require.NoError(t, err)
	require.Equal(t, 1, old.Events().Len())

	send(t, conn, ClientMessage{Type: TypeNewGame})
	readType(t, conn, TypeState)

	assert.Equal(t, 0, old.Events().Len())
	assert.Equal(t, 1, th.hub.watching())
}

func TestClientFollowsReplacedGame(t *testing.T) {
	th := newTestHub(t)
	c := th.manager.Create()
	conn := th.dial(t, c.ID())
	readType(t, conn, TypeState)

	replacement := th.manager.Adopt(c.ID(), game.NewState("Cy", "Di"))
	send(t, conn, ClientMessage{Type: TypeAction, Action: "advancePhase"})

	msg := readType(t, conn, TypeState)
	assert.Equal(t, []string{"Cy", "Di"}, msg.State.Names())
	msg = readType(t, conn, TypeState)
	assert.Equal(t, rules.PhaseAfternoon, msg.State.Phase)
	assert.Equal(t, rules.PhaseAfternoon, replacement.State().Phase)
	assert.Equal(t, 0, c.Events().Len())
	assert.Equal(t, 1, replacement.Events().Len())
}

func TestReplayEndpoint(t *testing.T) {
	logger := zaptest.NewLogger(t)
	recorder := game.NewReplayRecorder(logger, "")
	th := newTestHubWith(t, game.NewManager(logger, recorder, []string{"Ann", "Bo"}))

	c := th.manager.Create()
	require.True(t, c.Move(location.Cave).Allowed)
	require.True(t, c.AdvancePhase().Allowed)

	get := func(path string) (*http.Response, game.Frame) {
		resp, err := http.Get(th.server.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var frame game.Frame
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&frame))
		}
		return resp, frame
	}

	resp, frame := get("/replays/" + c.ID())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, frame.Step)
	assert.Equal(t, 3, frame.Steps)
	assert.Equal(t, location.Town, frame.State.Players[0].Location)

	resp, frame = get("/replays/" + c.ID() + "?step=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, game.ActionAdvancePhase, frame.Action)
	assert.Equal(t, c.State().Checksum(), frame.Checksum)
	assert.Equal(t, c.State().Checksum(), frame.State.Checksum())
	assert.Equal(t, location.Cave, frame.State.Players[0].Location)

	resp, _ = get("/replays/" + c.ID() + "?step=3")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get("/replays/" + c.ID() + "?step=last")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = get("/replays/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
