// Package actions validates and applies the in-turn actions a human player
// may take during morning and afternoon. Every function here is pure: the
// roster passed in is never modified.
package actions

import (
	"fmt"
	"strings"

	"github.com/hungryghost/karma-server-go/internal/game/interaction"
	"github.com/hungryghost/karma-server-go/internal/game/karma"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
)

// Kind names an in-turn action.
type Kind string

const (
	KindMove     Kind = "move"
	KindMeditate Kind = "meditate"
	KindGoodDeed Kind = "goodDeed"
	KindBadDeed  Kind = "badDeed"
	KindAlms     Kind = "alms"
	KindOrdain   Kind = "ordain"
	KindSkip     Kind = "skip"
)

// Kinds lists the in-turn actions in display order.
var Kinds = []Kind{KindMove, KindMeditate, KindGoodDeed, KindBadDeed, KindAlms, KindOrdain, KindSkip}

// Result is a precondition verdict. Reason is empty when Allowed is true.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the positive verdict.
func Allow() Result { return Result{Allowed: true} }

// Deny builds a rejection.
func Deny(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Context is the slice of game state an action is judged against.
type Context struct {
	Phase    rules.Phase
	IsMoving bool
	Players  []karma.Player
	ActorID  int
}

func (c Context) actor() (karma.Player, bool) {
	i := karma.IndexOf(c.Players, c.ActorID)
	if i < 0 {
		return karma.Player{}, false
	}
	return c.Players[i], true
}

// MustOrdain reports whether the actor stands in the temple as a human
// non-monk outside the evening. Until ordained, nothing else is allowed.
func MustOrdain(c Context) bool {
	p, ok := c.actor()
	if !ok {
		return false
	}
	return c.Phase != rules.PhaseEvening && p.Active() && !p.IsMonk && location.IsOrdinationSite(p.Location)
}

// FreeSlots is the number of unoccupied meditation slots at loc, not
// counting a slot held by excludeID.
func FreeSlots(players []karma.Player, loc location.ID, excludeID int) int {
	return max(0, location.MeditationSlotsAt(loc)-karma.MeditatingAt(players, loc, excludeID))
}

// Check evaluates the preconditions for kind. Move is checked without a
// destination; use CheckMove to validate a concrete target.
func Check(c Context, kind Kind) Result {
	p, ok := c.actor()
	if !ok {
		return Deny("unknown player %d", c.ActorID)
	}

	if kind == KindOrdain {
		switch {
		case !p.Active():
			return Deny("Only human realm players can ordain")
		case !location.IsOrdinationSite(p.Location):
			return Deny("Must be in temple to ordain")
		case p.IsMonk:
			return Deny("Already a monk")
		}
		return Allow()
	}

	if c.Phase == rules.PhaseEvening {
		return Deny("Cannot %s during evening", verb(kind))
	}
	if !p.Active() {
		return Deny("Only human realm players can %s", verb(kind))
	}
	if MustOrdain(c) {
		return Deny("Must take robes in the temple first")
	}

	others := karma.At(c.Players, p.Location, p.ID)

	switch kind {
	case KindMove, KindSkip:
		return Allow()

	case KindMeditate:
		switch {
		case c.IsMoving:
			return Deny("Cannot meditate while in move mode")
		case !p.IsMeditator:
			return Deny("Must be a meditator to meditate")
		case location.MeditationSlotsAt(p.Location) == 0:
			return Deny("Cannot meditate in %s", location.Name(p.Location))
		case FreeSlots(c.Players, p.Location, p.ID) == 0:
			return Deny("All meditation slots occupied in %s", location.Name(p.Location))
		}
		return Allow()

	case KindGoodDeed:
		switch {
		case c.IsMoving:
			return Deny("Cannot perform good deeds while in move mode")
		case p.Dana < 1:
			return Deny("Need at least 1 dana to perform a good deed")
		}
		return Allow()

	case KindBadDeed:
		switch {
		case c.IsMoving:
			return Deny("Cannot perform bad deeds while in move mode")
		case p.Dana >= p.MaxDana():
			return Deny("Already holding maximum dana")
		case !location.IsAlmsSite(p.Location) && len(withDana(others)) == 0:
			return Deny("Nothing to steal here")
		}
		return Allow()

	case KindAlms:
		switch {
		case c.Phase != rules.PhaseMorning:
			return Deny("Can only collect alms in the morning")
		case c.IsMoving:
			return Deny("Cannot collect alms while in move mode")
		case !p.IsMonk:
			return Deny("Must be a monk to collect alms")
		case !location.IsAlmsSite(p.Location):
			return Deny("Must be in town to collect alms")
		case p.Dana >= p.MaxDana():
			return Deny("Already holding maximum dana")
		}
		return Allow()
	}

	return Deny("unknown action %q", kind)
}

// CheckMove validates a move to target.
func CheckMove(c Context, target location.ID) Result {
	if res := Check(c, KindMove); !res.Allowed {
		return res
	}
	p, _ := c.actor()
	if !location.Valid(target) {
		return Deny("Unknown location %q", target)
	}
	if !location.AreAdjacent(p.Location, target) {
		return Deny("Too far! You can only move to adjacent locations")
	}
	return Allow()
}

func verb(kind Kind) string {
	switch kind {
	case KindMove:
		return "move"
	case KindMeditate:
		return "meditate"
	case KindGoodDeed:
		return "perform good deeds"
	case KindBadDeed:
		return "perform bad deeds"
	case KindAlms:
		return "collect alms"
	case KindSkip:
		return "skip"
	default:
		return string(kind)
	}
}

func withDana(players []karma.Player) []karma.Player {
	var out []karma.Player
	for _, p := range players {
		if p.Dana > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Note is a log line produced by an effect.
type Note struct {
	Type     rules.EventType
	PlayerID int
	Message  string
}

// Effect is the outcome of applying an action: the new roster and what to log.
type Effect struct {
	Players []karma.Player
	Notes   []Note
}

func (e *Effect) note(t rules.EventType, id int, format string, args ...any) {
	e.Notes = append(e.Notes, Note{Type: t, PlayerID: id, Message: fmt.Sprintf(format, args...)})
}

// Move relocates the actor, applies the greedy town toll and then runs
// arrival interactions. Callers must have passed CheckMove.
func Move(players []karma.Player, actorID int, target location.ID) Effect {
	out := karma.CloneAll(players)
	i := karma.IndexOf(out, actorID)
	p := out[i]
	from := p.Location

	e := Effect{}
	p.Location = target
	p.IsMeditating = false
	if p.IsGreedy && target == location.Town {
		p = p.AdjustMerit(-1).AdjustDana(1)
		e.note(rules.EventGreedyTown, p.ID, "%s (Greedy) stole Dana +1 entering Town for Merit -1 (Dana: %d, Merit: %d)", p.Name, p.Dana, p.Merit)
	}
	out[i] = p
	e.note(rules.EventMoved, p.ID, "%s moved from %s to %s.", p.Name, location.Name(from), location.Name(target))

	res := interaction.Resolve(out, actorID)
	for _, in := range res.Interactions {
		actor := res.Players[karma.IndexOf(res.Players, in.ActorID)]
		subject := res.Players[karma.IndexOf(res.Players, in.SubjectID)]
		switch in.Kind {
		case interaction.KindTeaching:
			e.note(rules.EventTaught, actor.ID, "%s taught %s to meditate for Merit +1 (Merit: %d)", actor.Name, subject.Name, actor.Merit)
		case interaction.KindTheft:
			e.note(rules.EventRobbed, actor.ID, "%s (Greedy) stole Dana +1 from %s for Merit -1 (Merit: %d)", actor.Name, subject.Name, actor.Merit)
		}
	}
	e.Players = res.Players
	return e
}

// DelusionDrop is how much one meditation is worth at loc given the number
// of other players present.
func DelusionDrop(loc location.ID, othersPresent int) int {
	switch loc {
	case location.Temple:
		return 1 + othersPresent
	case location.Forest:
		return 1
	case location.Cave:
		return 2
	default:
		return 0
	}
}

// Meditate reduces delusion or, once delusion is gone, raises insight.
// The actor takes a meditation slot.
func Meditate(players []karma.Player, actorID int) Effect {
	out := karma.CloneAll(players)
	i := karma.IndexOf(out, actorID)
	p := out[i]
	drop := DelusionDrop(p.Location, len(karma.At(out, p.Location, p.ID)))

	e := Effect{}
	if p.Delusion > 0 {
		before := p.Delusion
		p = p.AdjustDelusion(-drop)
		e.note(rules.EventMeditated, p.ID, "%s meditated for Delusion -%d (Delusion: %d)", p.Name, drop, p.Delusion)
		if p.Delusion == 0 && before > 0 {
			e.note(rules.EventDelusionClear, p.ID, "%s has cleared all delusion!", p.Name)
		}
	} else {
		p = p.AdjustInsight(drop)
		e.note(rules.EventMeditated, p.ID, "%s meditated in clarity for Insight +%d (Insight: %d)", p.Name, drop, p.Insight)
	}
	p.IsMeditating = true
	out[i] = p
	e.Players = out
	return e
}

// GoodDeed spends one dana for one merit. Outside town the first other
// player present receives the dana; otherwise it is a donation.
func GoodDeed(players []karma.Player, actorID int) Effect {
	out := karma.CloneAll(players)
	i := karma.IndexOf(out, actorID)
	p := out[i].AdjustDana(-1).AdjustMerit(1)
	p.IsMeditating = false
	out[i] = p

	e := Effect{}
	others := karma.At(out, p.Location, p.ID)
	if p.Location != location.Town && len(others) > 0 {
		ri := karma.IndexOf(out, others[0].ID)
		out[ri] = out[ri].AdjustDana(1)
		r := out[ri]
		e.note(rules.EventGoodDeed, p.ID, "%s gave Dana -1 to %s for Merit +1 (Dana: %d, Merit: %d)", p.Name, r.Name, p.Dana, p.Merit)
		e.note(rules.EventDanaGiven, r.ID, "%s received Dana +1 from %s's good deed (Dana: %d)", r.Name, p.Name, r.Dana)
	} else if p.Location == location.Town {
		e.note(rules.EventGoodDeed, p.ID, "%s helped someone in town with Dana -1 for Merit +1 (Dana: %d, Merit: %d)", p.Name, p.Dana, p.Merit)
	} else {
		e.note(rules.EventGoodDeed, p.ID, "%s left an offering in %s with Dana -1 for Merit +1 (Dana: %d, Merit: %d)", p.Name, location.Name(p.Location), p.Dana, p.Merit)
	}
	e.Players = out
	return e
}

// BadDeed takes one dana from every other present player holding any,
// plus one from town itself. The actor loses as much merit as was taken.
func BadDeed(players []karma.Player, actorID int) Effect {
	out := karma.CloneAll(players)
	i := karma.IndexOf(out, actorID)
	p := out[i]
	victims := withDana(karma.At(out, p.Location, p.ID))
	townBonus := 0
	if p.Location == location.Town {
		townBonus = 1
	}
	total := len(victims) + townBonus

	p = p.AdjustDana(total).AdjustMerit(-total)
	p.IsMeditating = false
	out[i] = p

	e := Effect{}
	if total == 0 {
		e.note(rules.EventBadDeed, p.ID, "%s committed a bad deed but found nothing to steal", p.Name)
		e.Players = out
		return e
	}

	sources := make([]string, 0, total)
	if townBonus > 0 {
		sources = append(sources, "Town")
	}
	for _, v := range victims {
		sources = append(sources, v.Name)
	}
	e.note(rules.EventBadDeed, p.ID, "%s committed a bad deed and stole Dana +%d (%s) for Merit -%d (Dana: %d, Merit: %d)",
		p.Name, total, strings.Join(sources, ", "), total, p.Dana, p.Merit)

	for _, v := range victims {
		vi := karma.IndexOf(out, v.ID)
		out[vi] = out[vi].AdjustDana(-1)
		e.note(rules.EventDanaLost, v.ID, "%s lost Dana -1 from %s's theft (Dana: %d)", v.Name, p.Name, out[vi].Dana)
	}
	e.Players = out
	return e
}

// Alms gives a monk one dana in town.
func Alms(players []karma.Player, actorID int) Effect {
	out := karma.CloneAll(players)
	i := karma.IndexOf(out, actorID)
	p := out[i].AdjustDana(1)
	p.IsMeditating = false
	out[i] = p

	e := Effect{Players: out}
	e.note(rules.EventAlms, p.ID, "%s collected Dana +1 from alms (Dana: %d)", p.Name, p.Dana)
	return e
}

// Ordain makes the actor a monk and forfeits all dana.
func Ordain(players []karma.Player, actorID int) Effect {
	out := karma.CloneAll(players)
	i := karma.IndexOf(out, actorID)
	p := out[i]
	lost := p.Dana
	p.IsMonk = true
	p.Dana = 0
	out[i] = p

	e := Effect{Players: out}
	e.note(rules.EventOrdained, p.ID, "%s ordained as a Monk (lost all Dana -%d, Dana: 0)", p.Name, lost)
	return e
}

// Skip passes the current phase without an effect.
func Skip(players []karma.Player, actorID int) Effect {
	out := karma.CloneAll(players)
	p := out[karma.IndexOf(out, actorID)]
	e := Effect{Players: out}
	e.note(rules.EventSkipped, p.ID, "%s let the moment pass.", p.Name)
	return e
}
