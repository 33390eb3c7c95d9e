package karma

import "github.com/hungryghost/karma-server-go/internal/game/location"

// At returns the human-realm players standing at loc, in seat order,
// leaving out the player with excludeID. Pass -1 to keep everyone.
func At(players []Player, loc location.ID, excludeID int) []Player {
	present := make([]Player, 0, len(players))
	for _, p := range players {
		if p.ID == excludeID || p.Realm != RealmHuman || p.Location != loc {
			continue
		}
		present = append(present, p)
	}
	return present
}

// IndexOf returns the slice index of the player with the given id, or -1.
func IndexOf(players []Player, id int) int {
	for i := range players {
		if players[i].ID == id {
			return i
		}
	}
	return -1
}

// Replace returns a copy of players with the entry matching p.ID swapped for p.
func Replace(players []Player, p Player) []Player {
	out := CloneAll(players)
	if i := IndexOf(out, p.ID); i >= 0 {
		out[i] = p
	}
	return out
}

// CloneAll deep-copies a roster.
func CloneAll(players []Player) []Player {
	out := make([]Player, len(players))
	for i, p := range players {
		out[i] = p.Clone()
	}
	return out
}

// MeditatingAt counts players occupying a meditation slot at loc.
func MeditatingAt(players []Player, loc location.ID, excludeID int) int {
	n := 0
	for _, p := range At(players, loc, excludeID) {
		if p.IsMeditating {
			n++
		}
	}
	return n
}
