package game

import (
	"errors"
	"fmt"

	"github.com/hungryghost/karma-server-go/internal/game/karma"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/reincarnation"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
)

// ErrInvalidState is wrapped by every structural validation failure.
var ErrInvalidState = errors.New("invalid game state")

// DefaultPlayerNames seats a standard three-player game.
var DefaultPlayerNames = []string{"Blue", "Green", "Red"}

// LogEntry is one line of the append-only game log.
type LogEntry struct {
	Seq      int             `json:"seq"`
	Type     rules.EventType `json:"type"`
	Message  string          `json:"message"`
	Category rules.Category  `json:"category"`
	PlayerID *int            `json:"playerId,omitempty"`
}

// State is the complete, serializable game. Values handed out by the
// controller are deep copies; mutating them has no effect on the game.
type State struct {
	TurnCount               int                 `json:"turnCount"`
	CurrentPlayerIndex      int                 `json:"currentPlayerIndex"`
	Phase                   rules.Phase         `json:"phase"`
	Winner                  *int                `json:"winner"`
	ShowEveningChoice       bool                `json:"showEveningChoice"`
	ShowReincarnationChoice bool                `json:"showReincarnationChoice"`
	PendingReincarnation    *reincarnation.Plan `json:"pendingReincarnation"`
	IsMoving                bool                `json:"isMoving"`
	Players                 []karma.Player      `json:"players"`
	Log                     []LogEntry          `json:"log"`
}

// NewState seats one human player per name in town. With no names the
// default three seats are used.
func NewState(names ...string) State {
	if len(names) == 0 {
		names = DefaultPlayerNames
	}
	s := State{
		TurnCount: 1,
		Phase:     rules.PhaseMorning,
		Players:   make([]karma.Player, len(names)),
		Log:       []LogEntry{},
	}
	for i, name := range names {
		s.Players[i] = karma.NewPlayer(i, name)
	}
	s.appendLog(rules.EventGameStarted, rules.CategoryNeutral, nil, "Game started. Welcome to the Human Realm.")
	return s
}

// Names returns the seat names in turn order.
func (s State) Names() []string {
	names := make([]string, len(s.Players))
	for i, p := range s.Players {
		names[i] = p.Name
	}
	return names
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Players = karma.CloneAll(s.Players)
	if s.Log != nil {
		out.Log = make([]LogEntry, len(s.Log))
		for i, e := range s.Log {
			if e.PlayerID != nil {
				id := *e.PlayerID
				e.PlayerID = &id
			}
			out.Log[i] = e
		}
	}
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	if s.PendingReincarnation != nil {
		plan := *s.PendingReincarnation
		out.PendingReincarnation = &plan
	}
	return out
}

// fork copies s for a transition without copying log entries, which are
// never modified once appended. Unless owned is set the log is capped so
// the first append reallocates instead of writing past the end of s.Log.
// owned means nothing else will ever append to s.
func (s State) fork(owned bool) State {
	log := s.Log
	s.Log = nil
	out := s.Clone()
	switch {
	case log == nil:
	case owned:
		out.Log = log
	default:
		out.Log = log[:len(log):len(log)]
	}
	return out
}

// CurrentPlayer returns the player whose turn it is.
func (s State) CurrentPlayer() karma.Player {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return karma.Player{}
	}
	return s.Players[s.CurrentPlayerIndex].Clone()
}

// Over reports whether somebody has won.
func (s State) Over() bool {
	return s.Winner != nil
}

func (s *State) appendLog(t rules.EventType, cat rules.Category, playerID *int, msg string) {
	seq := 1
	if n := len(s.Log); n > 0 {
		seq = s.Log[n-1].Seq + 1
	}
	s.Log = append(s.Log, LogEntry{Seq: seq, Type: t, Message: msg, Category: cat, PlayerID: playerID})
}

func (s *State) logPlayer(t rules.EventType, id int, msg string) {
	s.appendLog(t, rules.CategoryPlayer, &id, msg)
}

func (s *State) logNeutral(t rules.EventType, id *int, msg string) {
	s.appendLog(t, rules.CategoryNeutral, id, msg)
}

// Validate checks the structure and numeric invariants of a state that came
// from outside the engine.
func (s State) Validate() error {
	if len(s.Players) == 0 {
		return fmt.Errorf("%w: no players", ErrInvalidState)
	}
	if s.Log == nil {
		return fmt.Errorf("%w: missing log", ErrInvalidState)
	}
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return fmt.Errorf("%w: current player index %d out of range", ErrInvalidState, s.CurrentPlayerIndex)
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %d", ErrInvalidState, int(s.Phase))
	}
	if s.TurnCount < 1 {
		return fmt.Errorf("%w: turn count %d", ErrInvalidState, s.TurnCount)
	}
	if s.Winner != nil && (*s.Winner < 0 || *s.Winner >= len(s.Players)) {
		return fmt.Errorf("%w: winner %d is not seated", ErrInvalidState, *s.Winner)
	}
	if plan := s.PendingReincarnation; plan != nil && plan.PlayerID != s.CurrentPlayerIndex {
		return fmt.Errorf("%w: pending reincarnation for player %d out of turn", ErrInvalidState, plan.PlayerID)
	}
	for i, p := range s.Players {
		if err := validatePlayer(i, p); err != nil {
			return err
		}
	}
	return nil
}

func validatePlayer(i int, p karma.Player) error {
	switch {
	case p.ID != i:
		return fmt.Errorf("%w: player at seat %d has id %d", ErrInvalidState, i, p.ID)
	case !p.Realm.Valid():
		return fmt.Errorf("%w: player %d has unknown realm", ErrInvalidState, i)
	case !location.Valid(p.Location):
		return fmt.Errorf("%w: player %d at unknown location %q", ErrInvalidState, i, p.Location)
	case p.Merit < karma.MinMerit || p.Merit > karma.MaxMerit:
		return fmt.Errorf("%w: player %d merit %d", ErrInvalidState, i, p.Merit)
	case p.Age < 0 || p.Age > karma.TrackEnd:
		return fmt.Errorf("%w: player %d age %d", ErrInvalidState, i, p.Age)
	case p.Dana < 0 || p.Dana > p.MaxDana():
		return fmt.Errorf("%w: player %d dana %d", ErrInvalidState, i, p.Dana)
	case p.Delusion < 0 || p.Delusion > karma.MaxDelusion:
		return fmt.Errorf("%w: player %d delusion %d", ErrInvalidState, i, p.Delusion)
	case p.Insight < 0 || p.Life < 0:
		return fmt.Errorf("%w: player %d negative counters", ErrInvalidState, i)
	case p.PlacedDana == nil:
		return fmt.Errorf("%w: player %d missing placed dana", ErrInvalidState, i)
	}
	return nil
}

// Restore accepts a loaded state if it validates. Otherwise it discards it
// and returns a fresh game seated with names, along with the reason.
func Restore(s State, names ...string) (State, error) {
	if err := s.Validate(); err != nil {
		return NewState(names...), err
	}
	return s.Clone(), nil
}

// Stats summarizes the table.
type Stats struct {
	TurnCount    int     `json:"turnCount"`
	Humans       int     `json:"humans"`
	Heaven       int     `json:"heaven"`
	Hell         int     `json:"hell"`
	Monks        int     `json:"monks"`
	Teachers     int     `json:"teachers"`
	Meditators   int     `json:"meditators"`
	Greedy       int     `json:"greedy"`
	AverageMerit float64 `json:"averageMerit"`
	TotalInsight int     `json:"totalInsight"`
	LogEntries   int     `json:"logEntries"`
}

// Stats computes table-wide counts.
func (s State) Stats() Stats {
	st := Stats{TurnCount: s.TurnCount, LogEntries: len(s.Log)}
	merit := 0
	for _, p := range s.Players {
		switch p.Realm {
		case karma.RealmHuman:
			st.Humans++
		case karma.RealmHeaven:
			st.Heaven++
		case karma.RealmHell:
			st.Hell++
		}
		if p.IsMonk {
			st.Monks++
		}
		if p.IsTeacher {
			st.Teachers++
		}
		if p.IsMeditator {
			st.Meditators++
		}
		if p.IsGreedy {
			st.Greedy++
		}
		merit += p.Merit
		st.TotalInsight += p.Insight
	}
	if len(s.Players) > 0 {
		st.AverageMerit = float64(merit) / float64(len(s.Players))
	}
	return st
}
