// Package interaction applies what happens when a player walks into a
// location that is already occupied.
package interaction

import "github.com/hungryghost/karma-server-go/internal/game/karma"

// Kind classifies an arrival interaction.
type Kind string

const (
	KindTeaching Kind = "teaching"
	KindTheft    Kind = "theft"
)

// Interaction describes one effect for the log. For teaching the actor is
// the teacher and the subject the student; for theft the actor is the thief.
type Interaction struct {
	Kind      Kind
	ActorID   int
	SubjectID int
}

// Result carries the updated roster and what happened.
type Result struct {
	Players      []karma.Player
	Interactions []Interaction
}

// Resolve runs arrival effects for arrivingID against everyone already at
// the arriving player's location. Teaching happens before theft. The input
// slice is not modified.
func Resolve(players []karma.Player, arrivingID int) Result {
	out := karma.CloneAll(players)
	idx := karma.IndexOf(out, arrivingID)
	if idx < 0 {
		return Result{Players: out}
	}
	arriving := out[idx]
	present := karma.At(out, arriving.Location, arriving.ID)

	var interactions []Interaction

	var teachers []karma.Player
	for _, p := range present {
		if p.IsTeacher {
			teachers = append(teachers, p)
		}
	}
	if len(teachers) > 0 && !arriving.IsMeditator {
		arriving.IsMeditator = true
		for _, teacher := range teachers {
			ti := karma.IndexOf(out, teacher.ID)
			out[ti] = out[ti].AdjustMerit(1)
			interactions = append(interactions, Interaction{
				Kind:      KindTeaching,
				ActorID:   teacher.ID,
				SubjectID: arriving.ID,
			})
		}
	}

	for _, p := range present {
		if !p.IsGreedy || arriving.Dana <= 0 {
			continue
		}
		arriving = arriving.AdjustDana(-1)
		gi := karma.IndexOf(out, p.ID)
		out[gi] = out[gi].AdjustDana(1).AdjustMerit(-1)
		interactions = append(interactions, Interaction{
			Kind:      KindTheft,
			ActorID:   p.ID,
			SubjectID: arriving.ID,
		})
	}

	out[idx] = arriving
	return Result{Players: out, Interactions: interactions}
}
