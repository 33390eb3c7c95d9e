package rules

import (
	"sync"
	"time"
)

// EventType indicates what a log entry records.
type EventType string

const (
	// Game/turn events
	EventGameStarted  EventType = "GAME_STARTED"
	EventPhaseChanged EventType = "PHASE_CHANGED"
	EventTurnStarted  EventType = "TURN_STARTED"
	EventMoveMode     EventType = "MOVE_MODE"
	EventSkipped      EventType = "SKIPPED"
	EventReset        EventType = "RESET"

	// Actions
	EventMoved      EventType = "MOVED"
	EventMeditated  EventType = "MEDITATED"
	EventGoodDeed   EventType = "GOOD_DEED"
	EventDanaGiven  EventType = "DANA_GIVEN"
	EventBadDeed    EventType = "BAD_DEED"
	EventDanaLost   EventType = "DANA_LOST"
	EventAlms       EventType = "ALMS"
	EventOrdained   EventType = "ORDAINED"
	EventGreedyTown EventType = "GREEDY_TOWN"

	// Arrival interactions
	EventTaught EventType = "TAUGHT"
	EventRobbed EventType = "ROBBED"

	// Evening
	EventAged          EventType = "AGED"
	EventLifeExtended  EventType = "LIFE_EXTENDED"
	EventRealmDecay    EventType = "REALM_DECAY"
	EventDeathChosen   EventType = "DEATH_CHOSEN"
	EventDied          EventType = "DIED"
	EventReincarnated  EventType = "REINCARNATED"
	EventBodhisattva   EventType = "BODHISATTVA"
	EventNirvana       EventType = "NIRVANA"
	EventDelusionClear EventType = "DELUSION_CLEARED"
)

// Category groups log entries for colouring in a view.
type Category string

const (
	CategoryNeutral Category = "neutral"
	CategoryPlayer  Category = "player"
)

// Event is a committed state change delivered to subscribers.
type Event struct {
	GameID    string    `json:"gameId"`
	Seq       int       `json:"seq"`
	Type      EventType `json:"type"`
	Category  Category  `json:"category"`
	PlayerID  *int      `json:"playerId,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives published events.
type Listener func(Event)

// EventBus delivers events to its listeners synchronously, in publish order.
type EventBus struct {
	mu         sync.RWMutex
	listeners  map[int]Listener
	order      []int
	nextHandle int
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[int]Listener)}
}

// Subscribe registers listener and returns a handle for Unsubscribe.
// A nil listener is ignored and yields -1.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	bus.order = append(bus.order, handle)
	return handle
}

// Unsubscribe removes the listener behind handle. Unknown handles are a no-op.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if _, ok := bus.listeners[handle]; !ok {
		return
	}
	delete(bus.listeners, handle)
	for i, h := range bus.order {
		if h == handle {
			bus.order = append(bus.order[:i:i], bus.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of subscribed listeners.
func (bus *EventBus) Len() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.listeners)
}

// Publish delivers a single event.
func (bus *EventBus) Publish(event Event) {
	bus.PublishBatch([]Event{event})
}

// PublishBatch delivers events in order. Each listener sees the whole
// batch before the next listener is called; listeners subscribed in the
// middle of a batch wait for the next one.
func (bus *EventBus) PublishBatch(events []Event) {
	if len(events) == 0 {
		return
	}
	bus.mu.RLock()
	listeners := make([]Listener, 0, len(bus.order))
	for _, h := range bus.order {
		listeners = append(listeners, bus.listeners[h])
	}
	bus.mu.RUnlock()

	for _, listener := range listeners {
		for _, event := range events {
			listener(event)
		}
	}
}
