package karma

import (
	"fmt"
	"strings"

	"github.com/hungryghost/karma-server-go/internal/game/location"
)

// Resource bounds.
const (
	MaxMerit        = 5
	MinMerit        = -5
	MaxDelusion     = 30
	InitialDelusion = 30
	WinningInsight  = 7
	InitialLife     = 5
)

// Age track layout: position 0 is the start, 1..LifeSlots hold hearts and
// the following DanaSlots positions hold deposited currency.
const (
	LifeSlots = 5
	DanaSlots = 10
	TrackEnd  = LifeSlots + DanaSlots
)

// Realm is the plane a player currently inhabits.
type Realm int

const (
	RealmHuman Realm = iota
	RealmHeaven
	RealmHell
)

var realmNames = map[Realm]string{
	RealmHuman:  "human",
	RealmHeaven: "heaven",
	RealmHell:   "hell",
}

func (r Realm) String() string {
	if name, ok := realmNames[r]; ok {
		return name
	}
	return fmt.Sprintf("realm_%d", int(r))
}

// Valid reports whether r is one of the declared realms.
func (r Realm) Valid() bool {
	_, ok := realmNames[r]
	return ok
}

// Spiritual reports whether r is heaven or hell.
func (r Realm) Spiritual() bool {
	return r == RealmHeaven || r == RealmHell
}

// ParseRealm converts a realm name back into its variant.
func ParseRealm(s string) (Realm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for realm, name := range realmNames {
		if name == s {
			return realm, nil
		}
	}
	return 0, fmt.Errorf("unknown realm %q", s)
}

func (r Realm) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid realm %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Realm) UnmarshalText(text []byte) error {
	parsed, err := ParseRealm(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Player is one seat's resource record. Values are copied, never shared;
// every adjustment returns a new Player.
type Player struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	Location     location.ID `json:"location"`
	Realm        Realm       `json:"realm"`
	Life         int         `json:"life"`
	Merit        int         `json:"merit"`
	Dana         int         `json:"dana"`
	Delusion     int         `json:"delusion"`
	Insight      int         `json:"insight"`
	DayCount     int         `json:"dayCount"`
	LifeCount    int         `json:"lifeCount"`
	Age          int         `json:"age"`
	PlacedDana   []int       `json:"placedDana"`
	IsMonk       bool        `json:"isMonk"`
	IsMeditator  bool        `json:"isMeditator"`
	IsTeacher    bool        `json:"isTeacher"`
	IsGreedy     bool        `json:"isGreedy"`
	IsMeditating bool        `json:"isMeditating"`
}

// NewPlayer creates a first-incarnation human standing in town.
func NewPlayer(id int, name string) Player {
	return Player{
		ID:         id,
		Name:       name,
		Location:   location.Town,
		Realm:      RealmHuman,
		Life:       InitialLife,
		Delusion:   InitialDelusion,
		DayCount:   1,
		LifeCount:  1,
		PlacedDana: []int{},
	}
}

// MaxDana is the usable currency capacity at the given age track position.
// It shrinks by one for every step taken past the life section.
func MaxDana(age int) int {
	return max(0, DanaSlots-max(0, age-LifeSlots))
}

// MaxDana is the player's current currency capacity.
func (p Player) MaxDana() int {
	return MaxDana(p.Age)
}

// Clone returns a deep copy.
func (p Player) Clone() Player {
	p.PlacedDana = append([]int{}, p.PlacedDana...)
	return p
}

func (p Player) AdjustMerit(delta int) Player {
	p.Merit = clamp(p.Merit+delta, MinMerit, MaxMerit)
	return p
}

func (p Player) AdjustDana(delta int) Player {
	p.Dana = clamp(p.Dana+delta, 0, p.MaxDana())
	return p
}

func (p Player) AdjustDelusion(delta int) Player {
	p.Delusion = clamp(p.Delusion+delta, 0, MaxDelusion)
	return p
}

func (p Player) AdjustInsight(delta int) Player {
	p.Insight = max(0, p.Insight+delta)
	return p
}

// AdvanceAge moves the player along the age track. Entering a heart slot
// for the first time this incarnation grants one life. Dana is re-clamped
// to the capacity of the new position.
func (p Player) AdvanceAge(newPos int) Player {
	newPos = clamp(newPos, 0, TrackEnd)
	if newPos > p.Age && newPos >= 1 && newPos <= LifeSlots {
		p.Life++
	}
	p.Age = newPos
	p.Dana = clamp(p.Dana, 0, p.MaxDana())
	return p
}

// DepositDana records a currency token left on the track at pos.
func (p Player) DepositDana(pos int) Player {
	p.PlacedDana = append(append([]int{}, p.PlacedDana...), pos)
	return p
}

// Enlightened reports whether the player has reached the victory threshold.
func (p Player) Enlightened() bool {
	return p.Insight >= WinningInsight
}

// AtAgeLimit reports whether the life section of the track is exhausted.
func (p Player) AtAgeLimit() bool {
	return p.Age >= LifeSlots
}

// Active reports whether the player is on the board (human realm).
func (p Player) Active() bool {
	return p.Realm == RealmHuman
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
