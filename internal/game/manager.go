package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// ErrGameNotFound is returned for unknown game ids.
var ErrGameNotFound = errors.New("game not found")

// Summary is a short description of a running game.
type Summary struct {
	ID        string      `json:"id"`
	Players   []string    `json:"players"`
	TurnCount int         `json:"turnCount"`
	Phase     rules.Phase `json:"phase"`
	Winner    *int        `json:"winner,omitempty"`
}

// Manager keeps every running game by id.
type Manager struct {
	mu          sync.RWMutex
	games       map[string]*Controller
	logger      *zap.Logger
	recorder    *ReplayRecorder
	playerNames []string
}

// NewManager creates a manager seating new games with playerNames.
func NewManager(logger *zap.Logger, recorder *ReplayRecorder, playerNames []string) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(playerNames) == 0 {
		playerNames = DefaultPlayerNames
	}
	return &Manager{
		games:       make(map[string]*Controller),
		logger:      logger,
		recorder:    recorder,
		playerNames: append([]string(nil), playerNames...),
	}
}

// Create starts a new game and returns its controller.
func (m *Manager) Create() *Controller {
	id := uuid.New().String()
	c := NewController(id, NewState(m.playerNames...), m.logger, m.recorder)

	m.mu.Lock()
	m.games[id] = c
	m.mu.Unlock()

	m.logger.Info("game created",
		zap.String("game_id", id),
		zap.Strings("players", m.playerNames),
	)
	return c
}

// Adopt registers a loaded state under id, replacing any game already
// running there. Invalid states are re-initialized by the controller.
func (m *Manager) Adopt(id string, s State) *Controller {
	c := NewController(id, s, m.logger, m.recorder)

	m.mu.Lock()
	m.games[id] = c
	m.mu.Unlock()

	m.logger.Info("game adopted",
		zap.String("game_id", id),
		zap.Int("turn", s.TurnCount),
	)
	return c
}

// GetOrAdopt returns the running game id, or registers the state returned
// by load under it. Concurrent callers for the same id share one
// controller; load runs at most once while the game is missing.
func (m *Manager) GetOrAdopt(id string, load func() (State, error)) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.games[id]; ok {
		return c, nil
	}
	s, err := load()
	if err != nil {
		return nil, err
	}
	c := NewController(id, s, m.logger, m.recorder)
	m.games[id] = c

	m.logger.Info("game adopted",
		zap.String("game_id", id),
		zap.Int("turn", s.TurnCount),
	)
	return c, nil
}

// Replay returns the recorded replay of a running or finished game.
func (m *Manager) Replay(id string) (*Replay, error) {
	if m.recorder == nil {
		return nil, fmt.Errorf("%w: %s", ErrReplayNotFound, id)
	}
	return m.recorder.LoadReplay(id)
}

// Get returns the controller for id.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return c, nil
}

// Remove drops a game from memory.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	_, ok := m.games[id]
	delete(m.games, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	if m.recorder != nil {
		m.recorder.ClearReplay(id)
	}
	m.logger.Info("game removed", zap.String("game_id", id))
	return nil
}

// List summarizes all games ordered by id.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	controllers := make([]*Controller, 0, len(m.games))
	for _, c := range m.games {
		controllers = append(controllers, c)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(controllers))
	for _, c := range controllers {
		s := c.State()
		out = append(out, Summary{
			ID:        c.ID(),
			Players:   s.Names(),
			TurnCount: s.TurnCount,
			Phase:     s.Phase,
			Winner:    s.Winner,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
