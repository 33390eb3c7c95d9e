package rules

import (
	"fmt"
	"strings"
)

// Phase is one third of a player's day.
type Phase int

const (
	PhaseMorning Phase = iota
	PhaseAfternoon
	PhaseEvening
)

var phaseNames = map[Phase]string{
	PhaseMorning:   "morning",
	PhaseAfternoon: "afternoon",
	PhaseEvening:   "evening",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase_%d", int(p))
}

// Valid reports whether p is a declared phase.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// ParsePhase converts a phase name back into its variant.
func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for phase, name := range phaseNames {
		if name == s {
			return phase, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type transitionKey struct {
	from  Phase
	human bool
}

type transition struct {
	to       Phase
	endsTurn bool
}

// transitions is the full phase table. Players outside the human realm
// have no afternoon; evening always hands the turn on.
var transitions = map[transitionKey]transition{
	{PhaseMorning, true}:    {PhaseAfternoon, false},
	{PhaseAfternoon, true}:  {PhaseEvening, false},
	{PhaseEvening, true}:    {PhaseMorning, true},
	{PhaseMorning, false}:   {PhaseEvening, false},
	{PhaseAfternoon, false}: {PhaseEvening, false},
	{PhaseEvening, false}:   {PhaseMorning, true},
}

// NextPhase returns the phase after from, and whether reaching it starts
// the next player's turn. human selects the table row for the current player.
func NextPhase(from Phase, human bool) (Phase, bool) {
	t, ok := transitions[transitionKey{from, human}]
	if !ok {
		return PhaseMorning, true
	}
	return t.to, t.endsTurn
}

// NextPlayer rotates the seat index around a table of n seats.
func NextPlayer(current, n int) int {
	if n <= 0 {
		return 0
	}
	return (current + 1) % n
}

// TransitionMessage is the log line announcing a phase change.
func TransitionMessage(to Phase, playerName string) string {
	switch to {
	case PhaseMorning:
		return fmt.Sprintf("It is Morning. %s's turn begins.", playerName)
	case PhaseAfternoon:
		return "It is now Afternoon."
	case PhaseEvening:
		return "It is now Evening. Time for the end of day ritual."
	default:
		return ""
	}
}
