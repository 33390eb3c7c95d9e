// Package reincarnation decides what happens to a player at the end of the
// day: walking the age track, decaying in a spiritual realm, and being
// reborn according to accumulated merit.
package reincarnation

import (
	"fmt"

	"github.com/hungryghost/karma-server-go/internal/game/actions"
	"github.com/hungryghost/karma-server-go/internal/game/karma"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
)

// Choice is an evening decision available to a human player.
type Choice string

const (
	ChoiceAge         Choice = "age"
	ChoiceExtend      Choice = "extend"
	ChoiceDie         Choice = "die"
	ChoiceNirvana     Choice = "nirvana"
	ChoiceBodhisattva Choice = "bodhisattva"
)

// Choices lists the evening decisions in display order.
var Choices = []Choice{ChoiceAge, ChoiceExtend, ChoiceDie, ChoiceNirvana, ChoiceBodhisattva}

// Check evaluates whether p may take choice during phase.
func Check(p karma.Player, phase rules.Phase, choice Choice) actions.Result {
	if phase != rules.PhaseEvening {
		return actions.Deny("Can only %s during evening", choiceVerb(choice))
	}
	if !p.Active() {
		return actions.Deny("Only human realm players choose how to end the day")
	}

	switch choice {
	case ChoiceAge:
		if p.AtAgeLimit() {
			return actions.Deny("Already at the end of the life track")
		}
	case ChoiceExtend:
		if !p.AtAgeLimit() {
			return actions.Deny("Can only extend life at age limit")
		}
		if p.Dana <= 0 {
			return actions.Deny("Need dana to extend life")
		}
	case ChoiceDie:
		if !p.AtAgeLimit() {
			return actions.Deny("Can only die at age limit")
		}
	case ChoiceNirvana, ChoiceBodhisattva:
		if !p.AtAgeLimit() {
			return actions.Deny("Can only %s at age limit", choiceVerb(choice))
		}
		if !p.Enlightened() {
			return actions.Deny("Need %d insight to %s", karma.WinningInsight, choiceVerb(choice))
		}
	default:
		return actions.Deny("unknown choice %q", choice)
	}
	return actions.Allow()
}

func choiceVerb(c Choice) string {
	switch c {
	case ChoiceAge:
		return "age"
	case ChoiceExtend:
		return "extend life"
	case ChoiceDie:
		return "die"
	case ChoiceNirvana:
		return "enter nirvana"
	case ChoiceBodhisattva:
		return "take the bodhisattva path"
	default:
		return string(c)
	}
}

// Age steps one position along the life section of the track.
func Age(p karma.Player) (karma.Player, actions.Note) {
	before := p.Life
	next := p.AdvanceAge(p.Age + 1)
	if next.Life > before {
		return next, actions.Note{Type: rules.EventAged, PlayerID: p.ID,
			Message: fmt.Sprintf("%s aged and removed a heart from position %d (Life: %d)", p.Name, next.Age, next.Life)}
	}
	return next, actions.Note{Type: rules.EventAged, PlayerID: p.ID,
		Message: fmt.Sprintf("%s aged through empty position %d", p.Name, next.Age)}
}

// Extend pays one dana, leaves it at the current track position and steps
// forward.
func Extend(p karma.Player) (karma.Player, actions.Note) {
	from := p.Age
	next := p.AdjustDana(-1).DepositDana(from).AdvanceAge(from + 1)
	return next, actions.Note{Type: rules.EventLifeExtended, PlayerID: p.ID,
		Message: fmt.Sprintf("%s paid Dana -1, placed it at position %d, and aged to position %d (Dana: %d)", p.Name, from, next.Age, next.Dana)}
}

// ApplySpiritualDecay is the once-per-evening drift of a heaven or hell
// dweller toward zero merit. Life follows the remaining merit. Human
// players are returned unchanged.
func ApplySpiritualDecay(p karma.Player) (karma.Player, []actions.Note) {
	switch p.Realm {
	case karma.RealmHeaven:
		life := max(0, p.Merit-1)
		p = p.AdjustDelusion(-1)
		p.Merit = max(0, p.Merit-1)
		p.Life = life
		return p, []actions.Note{{Type: rules.EventRealmDecay, PlayerID: p.ID,
			Message: fmt.Sprintf("%s heavenly existence: Delusion -1, Merit -1 (Delusion: %d, Merit: %d, Life: %d)", p.Name, p.Delusion, p.Merit, p.Life)}}
	case karma.RealmHell:
		life := max(0, abs(p.Merit)-1)
		p = p.AdjustDelusion(1)
		p.Merit = min(0, p.Merit+1)
		p.Life = life
		return p, []actions.Note{{Type: rules.EventRealmDecay, PlayerID: p.ID,
			Message: fmt.Sprintf("%s hellish suffering: Delusion +1, Merit +1 (Delusion: %d, Merit: %d, Life: %d)", p.Name, p.Delusion, p.Merit, p.Life)}}
	}
	return p, nil
}

// ShouldReincarnate reports whether a spiritual stay is over.
func ShouldReincarnate(p karma.Player) bool {
	return p.Realm.Spiritual() && (p.Merit == 0 || p.Life <= 0)
}

// EvaluateKarma maps merit to the realm of the next birth.
func EvaluateKarma(merit int) karma.Realm {
	switch {
	case merit > 0:
		return karma.RealmHeaven
	case merit < 0:
		return karma.RealmHell
	default:
		return karma.RealmHuman
	}
}

// StartingLife is the life a player is born with in realm.
func StartingLife(merit int, realm karma.Realm) int {
	if realm.Spiritual() {
		return max(0, abs(merit)-1)
	}
	return karma.InitialLife
}

// Roles are the flags a player is reborn with.
type Roles struct {
	IsMonk      bool `json:"isMonk"`
	IsMeditator bool `json:"isMeditator"`
	IsTeacher   bool `json:"isTeacher"`
	IsGreedy    bool `json:"isGreedy"`
}

// RolesFor returns the roles granted when moving from one realm to another.
// Only arrival in the human realm from a spiritual one grants anything.
func RolesFor(from, to karma.Realm) Roles {
	if to != karma.RealmHuman {
		return Roles{}
	}
	switch from {
	case karma.RealmHeaven:
		return Roles{IsTeacher: true, IsMeditator: true}
	case karma.RealmHell:
		return Roles{IsGreedy: true}
	}
	return Roles{}
}

// PlanKind separates an enlightened death from an ordinary one.
type PlanKind string

const (
	PlanVictory     PlanKind = "victory"
	PlanReincarnate PlanKind = "reincarnate"
)

// Plan is a prepared, not yet executed, end of an incarnation.
type Plan struct {
	Kind         PlanKind    `json:"kind"`
	PlayerID     int         `json:"playerId"`
	FromRealm    karma.Realm `json:"fromRealm"`
	NextRealm    karma.Realm `json:"nextRealm"`
	Roles        Roles       `json:"roles"`
	StartingLife int         `json:"startingLife"`
	Message      string      `json:"message"`
}

// Prepare works out where p goes next. Enlightenment takes precedence over
// karma.
func Prepare(p karma.Player) Plan {
	if p.Enlightened() {
		return Plan{
			Kind:      PlanVictory,
			PlayerID:  p.ID,
			FromRealm: p.Realm,
			NextRealm: p.Realm,
			Message:   "Enlightenment achieved! You may choose Nirvana or the Bodhisattva path.",
		}
	}
	next := EvaluateKarma(p.Merit)
	return Plan{
		Kind:         PlanReincarnate,
		PlayerID:     p.ID,
		FromRealm:    p.Realm,
		NextRealm:    next,
		Roles:        RolesFor(p.Realm, next),
		StartingLife: StartingLife(p.Merit, next),
		Message:      TransitionMessage(p.Realm, next, p.Merit),
	}
}

// Execute rebirths p according to plan. Victory plans leave p untouched.
func Execute(p karma.Player, plan Plan) (karma.Player, []actions.Note) {
	if plan.Kind != PlanReincarnate {
		return p, nil
	}
	notes := []actions.Note{{Type: rules.EventDied, PlayerID: p.ID,
		Message: fmt.Sprintf("%s has died.", p.Name)}}

	merit := p.Merit
	if p.Realm != karma.RealmHuman {
		merit = 0
	}
	roles := plan.Roles
	if roles.IsTeacher {
		roles.IsMeditator = true
	}

	p = reborn(p, plan.NextRealm, plan.StartingLife, merit, roles)
	notes = append(notes, actions.Note{Type: rules.EventReincarnated, PlayerID: p.ID,
		Message: fmt.Sprintf("%s reincarnated in the %s realm! %s", p.Name, realmTitle(plan.NextRealm), plan.Message)})
	return p, notes
}

// Bodhisattva returns p to town as a teacher with full life, keeping merit.
func Bodhisattva(p karma.Player) (karma.Player, actions.Note) {
	merit := p.Merit
	next := reborn(p, karma.RealmHuman, karma.InitialLife, merit, Roles{IsTeacher: true, IsMeditator: true})
	return next, actions.Note{Type: rules.EventBodhisattva, PlayerID: p.ID,
		Message: fmt.Sprintf("%s chose the Bodhisattva path - reborn as Teacher keeping Merit %+d", p.Name, merit)}
}

// Nirvana is the log line for a winning exit.
func Nirvana(p karma.Player) actions.Note {
	return actions.Note{Type: rules.EventNirvana, PlayerID: p.ID,
		Message: fmt.Sprintf("*** %s HAS ACHIEVED NIRVANA! GAME OVER ***", p.Name)}
}

func reborn(p karma.Player, realm karma.Realm, life, merit int, roles Roles) karma.Player {
	p.Realm = realm
	p.Life = life
	p.Merit = merit
	p.Dana = 0
	p.Insight = 0
	p.Age = 0
	p.PlacedDana = []int{}
	p.Location = location.Town
	p.LifeCount++
	p.IsMonk = roles.IsMonk
	p.IsMeditator = roles.IsMeditator
	p.IsTeacher = roles.IsTeacher
	p.IsGreedy = roles.IsGreedy
	p.IsMeditating = false
	return p
}

// TransitionMessage describes a realm change for the log.
func TransitionMessage(from, to karma.Realm, merit int) string {
	switch {
	case from == to:
		return fmt.Sprintf("Reborn in the same %s realm.", to)
	case to == karma.RealmHeaven:
		return fmt.Sprintf("Positive merit (%d) has earned a place in Heaven.", merit)
	case to == karma.RealmHell:
		return fmt.Sprintf("Negative merit (%d) leads to Hell for purification.", merit)
	default:
		return "Balanced karma returns to the Human realm for another chance."
	}
}

func realmTitle(r karma.Realm) string {
	switch r {
	case karma.RealmHuman:
		return "Human"
	case karma.RealmHeaven:
		return "Heaven"
	case karma.RealmHell:
		return "Hell"
	}
	return r.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
