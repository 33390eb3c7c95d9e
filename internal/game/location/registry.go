// Package location holds the static board: four places on a line, what each
// one allows, and which ones touch.
package location

import (
	"fmt"
	"strings"
)

// ID identifies a board location.
type ID string

const (
	Cave   ID = "cave"
	Forest ID = "forest"
	Town   ID = "town"
	Temple ID = "temple"
)

// Type tags what kind of activity a location supports.
type Type string

const (
	TypeMeditation Type = "meditation"
	TypeSocial     Type = "social"
	TypeMixed      Type = "mixed"
)

// Location is a read-only board entry.
type Location struct {
	ID              ID
	Name            string
	Capacity        int // informational; movement never checks it
	Type            Type
	MeditationSlots int
}

// board is ordered along the adjacency chain.
var board = []Location{
	{ID: Cave, Name: "Cave", Capacity: 1, Type: TypeMeditation, MeditationSlots: 1},
	{ID: Forest, Name: "Forest", Capacity: 2, Type: TypeMeditation, MeditationSlots: 2},
	{ID: Town, Name: "Town", Capacity: 99, Type: TypeSocial, MeditationSlots: 0},
	{ID: Temple, Name: "Temple", Capacity: 99, Type: TypeMixed, MeditationSlots: 3},
}

// All returns the board in chain order.
func All() []Location {
	out := make([]Location, len(board))
	copy(out, board)
	return out
}

// Get looks up a location by id.
func Get(id ID) (Location, bool) {
	if i := indexOf(id); i >= 0 {
		return board[i], true
	}
	return Location{}, false
}

// Valid reports whether id names a board location.
func Valid(id ID) bool {
	return indexOf(id) >= 0
}

// Parse normalizes user input into a location id.
func Parse(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if !Valid(id) {
		return "", fmt.Errorf("unknown location %q", s)
	}
	return id, nil
}

// AdjacentTo returns the neighbours of id along the chain.
func AdjacentTo(id ID) []ID {
	i := indexOf(id)
	if i < 0 {
		return nil
	}
	adjacent := make([]ID, 0, 2)
	if i > 0 {
		adjacent = append(adjacent, board[i-1].ID)
	}
	if i < len(board)-1 {
		adjacent = append(adjacent, board[i+1].ID)
	}
	return adjacent
}

// AreAdjacent reports whether a and b are direct neighbours.
func AreAdjacent(a, b ID) bool {
	i, j := indexOf(a), indexOf(b)
	if i < 0 || j < 0 {
		return false
	}
	return i-j == 1 || j-i == 1
}

// MeditationSlotsAt returns how many players may meditate at id at once.
func MeditationSlotsAt(id ID) int {
	loc, ok := Get(id)
	if !ok {
		return 0
	}
	return loc.MeditationSlots
}

// IsSocial reports whether deeds have a natural audience at id.
func IsSocial(id ID) bool {
	loc, ok := Get(id)
	return ok && (loc.Type == TypeSocial || loc.Type == TypeMixed)
}

func IsOrdinationSite(id ID) bool { return id == Temple }

func IsAlmsSite(id ID) bool { return id == Town }

// Name returns the display name, or the raw id for unknown locations.
func Name(id ID) string {
	if loc, ok := Get(id); ok {
		return loc.Name
	}
	return string(id)
}

func indexOf(id ID) int {
	for i := range board {
		if board[i].ID == id {
			return i
		}
	}
	return -1
}
