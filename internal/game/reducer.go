package game

import (
	"fmt"

	"github.com/hungryghost/karma-server-go/internal/game/actions"
	"github.com/hungryghost/karma-server-go/internal/game/karma"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/reincarnation"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
)

// ActionKind names every call the controller accepts.
type ActionKind string

const (
	ActionMove                 ActionKind = "move"
	ActionMeditate             ActionKind = "meditate"
	ActionGoodDeed             ActionKind = "goodDeed"
	ActionBadDeed              ActionKind = "badDeed"
	ActionAlms                 ActionKind = "alms"
	ActionOrdain               ActionKind = "ordain"
	ActionToggleMoveMode       ActionKind = "toggleMoveMode"
	ActionAgeNormally          ActionKind = "ageNormally"
	ActionPayToSurvive         ActionKind = "payToSurvive"
	ActionChooseToDie          ActionKind = "chooseToDie"
	ActionChooseNirvana        ActionKind = "chooseNirvana"
	ActionChooseBodhisattva    ActionKind = "chooseBodhisattva"
	ActionConfirmReincarnation ActionKind = "confirmReincarnation"
	ActionAdvancePhase         ActionKind = "advancePhase"
)

// ActionKinds lists every action in display order.
var ActionKinds = []ActionKind{
	ActionMove, ActionMeditate, ActionGoodDeed, ActionBadDeed, ActionAlms, ActionOrdain,
	ActionToggleMoveMode, ActionAgeNormally, ActionPayToSurvive, ActionChooseToDie,
	ActionChooseNirvana, ActionChooseBodhisattva, ActionConfirmReincarnation, ActionAdvancePhase,
}

// ParseActionKind validates a wire name.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range ActionKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Action is one request against the current player. Target is only read
// by ActionMove.
type Action struct {
	Kind   ActionKind  `json:"kind"`
	Target location.ID `json:"target,omitempty"`
}

// Outcome reports whether an action was applied and what it logged.
type Outcome struct {
	Allowed bool       `json:"allowed"`
	Reason  string     `json:"reason,omitempty"`
	Entries []LogEntry `json:"entries,omitempty"`
}

func reject(res actions.Result) Outcome {
	return Outcome{Reason: res.Reason}
}

var turnActions = map[ActionKind]actions.Kind{
	ActionMove:     actions.KindMove,
	ActionMeditate: actions.KindMeditate,
	ActionGoodDeed: actions.KindGoodDeed,
	ActionBadDeed:  actions.KindBadDeed,
	ActionAlms:     actions.KindAlms,
	ActionOrdain:   actions.KindOrdain,
}

var eveningChoices = map[ActionKind]reincarnation.Choice{
	ActionAgeNormally:       reincarnation.ChoiceAge,
	ActionPayToSurvive:      reincarnation.ChoiceExtend,
	ActionChooseToDie:       reincarnation.ChoiceDie,
	ActionChooseNirvana:     reincarnation.ChoiceNirvana,
	ActionChooseBodhisattva: reincarnation.ChoiceBodhisattva,
}

func actionContext(s State) actions.Context {
	return actions.Context{
		Phase:    s.Phase,
		IsMoving: s.IsMoving,
		Players:  s.Players,
		ActorID:  s.CurrentPlayerIndex,
	}
}

// Check evaluates a's preconditions against s without changing anything.
func Check(s State, a Action) actions.Result {
	if s.Over() {
		return actions.Deny("The game is over")
	}
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return actions.Deny("No current player")
	}
	cur := s.Players[s.CurrentPlayerIndex]

	if kind, ok := turnActions[a.Kind]; ok {
		if a.Kind == ActionMove && a.Target != "" {
			return actions.CheckMove(actionContext(s), a.Target)
		}
		return actions.Check(actionContext(s), kind)
	}

	if choice, ok := eveningChoices[a.Kind]; ok {
		if s.PendingReincarnation != nil {
			if s.PendingReincarnation.Kind == reincarnation.PlanVictory &&
				(choice == reincarnation.ChoiceNirvana || choice == reincarnation.ChoiceBodhisattva) {
				return reincarnation.Check(cur, s.Phase, choice)
			}
			return actions.Deny("Confirm reincarnation first")
		}
		return reincarnation.Check(cur, s.Phase, choice)
	}

	switch a.Kind {
	case ActionToggleMoveMode:
		if s.Phase == rules.PhaseEvening {
			return actions.Deny("Cannot move during evening")
		}
		if !cur.Active() {
			return actions.Deny("Only human realm players can move")
		}
		return actions.Allow()

	case ActionConfirmReincarnation:
		if s.PendingReincarnation == nil {
			return actions.Deny("No reincarnation pending")
		}
		return actions.Allow()

	case ActionAdvancePhase:
		if s.Phase == rules.PhaseEvening {
			if s.PendingReincarnation != nil {
				return actions.Deny("Confirm reincarnation first")
			}
			if s.ShowEveningChoice {
				return actions.Deny("Choose how to end the day first")
			}
			return actions.Allow()
		}
		if !cur.Active() {
			return actions.Allow()
		}
		return actions.Check(actionContext(s), actions.KindSkip)
	}

	return actions.Deny("unknown action %q", a.Kind)
}

// Apply is the transition function: it returns the state after a together
// with the outcome. A rejected action returns s unchanged. The result shares
// log entries with s, which must be treated as read-only.
func Apply(s State, a Action) (State, Outcome) {
	return apply(s, a, false)
}

// apply runs a transition. owned is set by the controller, which never
// hands its log out, so appends can reuse spare capacity.
func apply(s State, a Action, owned bool) (State, Outcome) {
	if res := Check(s, a); !res.Allowed {
		return s, reject(res)
	}
	if a.Kind == ActionMove && a.Target == "" {
		return s, Outcome{Reason: "Choose a location to move to"}
	}

	next := s.fork(owned)
	mark := len(next.Log)
	id := next.CurrentPlayerIndex
	cur := next.Players[id]

	switch a.Kind {
	case ActionMove:
		next.commit(actions.Move(next.Players, id, a.Target))
		next.IsMoving = false
		next.advance()

	case ActionMeditate:
		next.commit(actions.Meditate(next.Players, id))
		next.advance()

	case ActionGoodDeed:
		next.commit(actions.GoodDeed(next.Players, id))
		next.advance()

	case ActionBadDeed:
		next.commit(actions.BadDeed(next.Players, id))
		next.advance()

	case ActionAlms:
		next.commit(actions.Alms(next.Players, id))
		next.advance()

	case ActionOrdain:
		next.commit(actions.Ordain(next.Players, id))

	case ActionToggleMoveMode:
		next.IsMoving = !next.IsMoving
		if next.IsMoving {
			next.logPlayer(rules.EventMoveMode, id, "Select a location to move to.")
		}

	case ActionAdvancePhase:
		if next.Phase != rules.PhaseEvening && cur.Active() {
			next.commit(actions.Skip(next.Players, id))
		}
		next.advance()

	case ActionAgeNormally:
		p, note := reincarnation.Age(cur)
		next.setPlayer(p, note)
		next.ShowEveningChoice = false
		next.advance()

	case ActionPayToSurvive:
		p, note := reincarnation.Extend(cur)
		next.setPlayer(p, note)
		next.ShowEveningChoice = false
		next.advance()

	case ActionChooseToDie:
		plan := reincarnation.Prepare(cur)
		next.ShowEveningChoice = false
		next.ShowReincarnationChoice = true
		next.PendingReincarnation = &plan
		next.logPlayer(rules.EventDeathChosen, id, fmt.Sprintf("%s has reached the end of this life. %s", cur.Name, plan.Message))

	case ActionChooseNirvana:
		next.win(cur)

	case ActionChooseBodhisattva:
		p, note := reincarnation.Bodhisattva(cur)
		next.setPlayer(p, note)
		next.clearChoices()
		next.advance()

	case ActionConfirmReincarnation:
		plan := *next.PendingReincarnation
		if plan.Kind == reincarnation.PlanVictory {
			next.win(cur)
			break
		}
		p, notes := reincarnation.Execute(cur, plan)
		next.setPlayer(p, notes...)
		next.clearChoices()
		next.advance()
	}

	entries := append([]LogEntry(nil), next.Log[mark:]...)
	return next, Outcome{Allowed: true, Entries: entries}
}

func (s *State) commit(e actions.Effect) {
	s.Players = e.Players
	s.note(e.Notes...)
}

func (s *State) setPlayer(p karma.Player, notes ...actions.Note) {
	s.Players = karma.Replace(s.Players, p)
	s.note(notes...)
}

func (s *State) note(notes ...actions.Note) {
	for _, n := range notes {
		cat := rules.CategoryPlayer
		if n.Type == rules.EventRealmDecay || n.Type == rules.EventNirvana {
			cat = rules.CategoryNeutral
		}
		id := n.PlayerID
		s.appendLog(n.Type, cat, &id, n.Message)
	}
}

func (s *State) clearChoices() {
	s.ShowEveningChoice = false
	s.ShowReincarnationChoice = false
	s.PendingReincarnation = nil
}

func (s *State) win(p karma.Player) {
	id := p.ID
	s.Winner = &id
	s.clearChoices()
	s.note(reincarnation.Nirvana(p))
}

// advance moves to the next phase, handing the turn on after evening.
func (s *State) advance() {
	cur := s.Players[s.CurrentPlayerIndex]
	to, endsTurn := rules.NextPhase(s.Phase, cur.Active())
	s.IsMoving = false
	if endsTurn {
		s.startTurn()
		return
	}
	s.Phase = to
	s.logNeutral(rules.EventPhaseChanged, nil, rules.TransitionMessage(to, cur.Name))
	if to == rules.PhaseEvening {
		s.enterEvening()
	}
}

func (s *State) startTurn() {
	s.clearChoices()
	s.IsMoving = false
	s.TurnCount++
	s.CurrentPlayerIndex = rules.NextPlayer(s.CurrentPlayerIndex, len(s.Players))
	s.Phase = rules.PhaseMorning

	p := s.Players[s.CurrentPlayerIndex]
	p.DayCount++
	s.Players[s.CurrentPlayerIndex] = p

	id := p.ID
	s.logNeutral(rules.EventTurnStarted, &id, rules.TransitionMessage(rules.PhaseMorning, p.Name))

	// Heaven and hell have no daytime.
	if !p.Active() {
		s.advance()
	}
}

// enterEvening runs the start-of-evening bookkeeping. Humans get the
// choice prompt; spiritual players decay and may be due for rebirth.
func (s *State) enterEvening() {
	p := s.Players[s.CurrentPlayerIndex]
	if p.Active() {
		s.ShowEveningChoice = true
		return
	}

	p, notes := reincarnation.ApplySpiritualDecay(p)
	s.setPlayer(p, notes...)
	if reincarnation.ShouldReincarnate(p) {
		plan := reincarnation.Prepare(p)
		s.PendingReincarnation = &plan
		s.ShowReincarnationChoice = true
		s.logPlayer(rules.EventDeathChosen, p.ID, fmt.Sprintf("%s's time in the %s realm is over. %s", p.Name, p.Realm, plan.Message))
	}
}

// Availability pairs an action with its current verdict.
type Availability struct {
	Action ActionKind     `json:"action"`
	Result actions.Result `json:"result"`
}

// AvailableActions evaluates every action against s.
func AvailableActions(s State) []Availability {
	out := make([]Availability, 0, len(ActionKinds))
	for _, k := range ActionKinds {
		out = append(out, Availability{Action: k, Result: Check(s, Action{Kind: k})})
	}
	return out
}

// AvailableMeditationSlots counts free meditation slots at loc.
func AvailableMeditationSlots(s State, loc location.ID) int {
	return actions.FreeSlots(s.Players, loc, -1)
}
