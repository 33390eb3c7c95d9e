package game

import (
	"sync"
	"time"

	"github.com/hungryghost/karma-server-go/internal/game/karma"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Controller owns one game's authoritative state. It serializes every
// call, runs the reducer and publishes the log entries it produced.
type Controller struct {
	id       string
	logger   *zap.Logger
	bus      *rules.EventBus
	recorder *ReplayRecorder

	mu      sync.Mutex
	state   State
	pending []rules.Event

	// pubMu is held while draining pending, so batches reach the bus in
	// commit order.
	pubMu sync.Mutex
}

// NewController wraps an existing state. The state is validated first;
// an invalid one is replaced with a fresh game seated with the same names.
func NewController(id string, initial State, logger *zap.Logger, recorder *ReplayRecorder) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	state, err := Restore(initial, initial.Names()...)
	if err != nil {
		logger.Warn("discarded invalid game state",
			zap.String("game_id", id),
			zap.Error(err),
		)
	}

	c := &Controller{
		id:       id,
		logger:   logger,
		bus:      rules.NewEventBus(),
		recorder: recorder,
		state:    state,
	}
	if recorder != nil {
		recorder.StartRecording(id)
		recorder.RecordState(id, "", state)
	}
	return c
}

// ID returns the game identifier.
func (c *Controller) ID() string { return c.id }

// Events exposes the bus committed log entries are published on. Entries
// arrive in Seq order. Listeners may read the controller but must not
// dispatch from inside a callback.
func (c *Controller) Events() *rules.EventBus { return c.bus }

// State returns a deep copy of the current state. Two calls with no
// action in between return equal values.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// CurrentPlayer returns the player whose turn it is.
func (c *Controller) CurrentPlayer() karma.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CurrentPlayer()
}

// AvailableMeditationSlots counts free meditation slots at loc.
func (c *Controller) AvailableMeditationSlots(loc location.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AvailableMeditationSlots(c.state, loc)
}

// View returns the state together with the actions available in it.
func (c *Controller) View() (State, []Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone(), AvailableActions(c.state)
}

// AvailableActions reports which actions the current player may take.
func (c *Controller) AvailableActions() []Availability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AvailableActions(c.state)
}

// Stats summarizes the table.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Stats()
}

func (c *Controller) Move(target location.ID) Outcome {
	return c.Dispatch(Action{Kind: ActionMove, Target: target})
}

func (c *Controller) Meditate() Outcome { return c.Dispatch(Action{Kind: ActionMeditate}) }
func (c *Controller) GoodDeed() Outcome { return c.Dispatch(Action{Kind: ActionGoodDeed}) }
func (c *Controller) BadDeed() Outcome  { return c.Dispatch(Action{Kind: ActionBadDeed}) }
func (c *Controller) Alms() Outcome     { return c.Dispatch(Action{Kind: ActionAlms}) }
func (c *Controller) Ordain() Outcome   { return c.Dispatch(Action{Kind: ActionOrdain}) }

func (c *Controller) ToggleMoveMode() Outcome { return c.Dispatch(Action{Kind: ActionToggleMoveMode}) }
func (c *Controller) AgeNormally() Outcome    { return c.Dispatch(Action{Kind: ActionAgeNormally}) }
func (c *Controller) PayToSurvive() Outcome   { return c.Dispatch(Action{Kind: ActionPayToSurvive}) }
func (c *Controller) ChooseToDie() Outcome    { return c.Dispatch(Action{Kind: ActionChooseToDie}) }
func (c *Controller) ChooseNirvana() Outcome  { return c.Dispatch(Action{Kind: ActionChooseNirvana}) }

func (c *Controller) ChooseBodhisattva() Outcome {
	return c.Dispatch(Action{Kind: ActionChooseBodhisattva})
}

func (c *Controller) ConfirmReincarnation() Outcome {
	return c.Dispatch(Action{Kind: ActionConfirmReincarnation})
}

func (c *Controller) AdvancePhase() Outcome { return c.Dispatch(Action{Kind: ActionAdvancePhase}) }

// Dispatch applies a to the current state. Rejections leave the state
// untouched and are only logged at debug level.
func (c *Controller) Dispatch(a Action) Outcome {
	c.mu.Lock()
	player := c.state.CurrentPlayerIndex
	next, out := apply(c.state, a, true)
	if !out.Allowed {
		c.mu.Unlock()
		c.logger.Debug("action rejected",
			zap.String("game_id", c.id),
			zap.String("action", string(a.Kind)),
			zap.Int("player", player),
			zap.String("reason", out.Reason),
		)
		return out
	}
	c.state = next
	c.enqueue(out.Entries)
	over := next.Over()
	if c.recorder != nil {
		c.recorder.RecordState(c.id, a.Kind, next)
	}
	c.mu.Unlock()

	c.logger.Debug("action applied",
		zap.String("game_id", c.id),
		zap.String("action", string(a.Kind)),
		zap.Int("player", player),
		zap.Int("entries", len(out.Entries)),
	)
	c.flush()

	if over {
		c.logger.Info("game finished",
			zap.String("game_id", c.id),
			zap.Int("winner", *next.Winner),
			zap.Int("turn", next.TurnCount),
		)
		if c.recorder != nil {
			if err := c.recorder.SaveReplay(c.id); err != nil {
				c.logger.Warn("failed to save replay", zap.String("game_id", c.id), zap.Error(err))
			}
		}
	}
	return out
}

// Reset discards the current game and seats the same players afresh.
func (c *Controller) Reset() State {
	c.mu.Lock()
	fresh := NewState(c.state.Names()...)
	fresh.logNeutral(rules.EventReset, nil, "The wheel turns anew. A new game begins.")
	c.state = fresh
	c.enqueue(fresh.Log)
	if c.recorder != nil {
		c.recorder.StartRecording(c.id)
		c.recorder.RecordState(c.id, "", fresh)
	}
	snapshot := fresh.Clone()
	c.mu.Unlock()

	c.logger.Info("game reset", zap.String("game_id", c.id))
	c.flush()
	return snapshot
}

// enqueue turns committed entries into events. Callers hold c.mu.
func (c *Controller) enqueue(entries []LogEntry) {
	now := time.Now()
	for _, e := range entries {
		c.pending = append(c.pending, rules.Event{
			GameID:    c.id,
			Seq:       e.Seq,
			Type:      e.Type,
			Category:  e.Category,
			PlayerID:  e.PlayerID,
			Message:   e.Message,
			Timestamp: now,
		})
	}
}

// flush publishes everything queued so far. A caller that finds the queue
// already drained by a concurrent flush publishes nothing.
func (c *Controller) flush() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.bus.PublishBatch(batch)
}
