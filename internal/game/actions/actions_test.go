package actions

import (
	"testing"

	"github.com/hungryghost/karma-server-go/internal/game/karma"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seat(id int, name string, loc location.ID) karma.Player {
	p := karma.NewPlayer(id, name)
	p.Location = loc
	return p
}

func ctx(phase rules.Phase, players ...karma.Player) Context {
	return Context{Phase: phase, Players: players, ActorID: players[0].ID}
}

func TestGoodDeedAloneInCave(t *testing.T) {
	p := seat(0, "Blue", location.Cave)
	p.Dana = 1

	c := ctx(rules.PhaseMorning, p)
	require.True(t, Check(c, KindGoodDeed).Allowed)

	e := GoodDeed(c.Players, 0)
	assert.Equal(t, 1, e.Players[0].Merit)
	assert.Equal(t, 0, e.Players[0].Dana)
	require.Len(t, e.Notes, 1)
	assert.Equal(t, rules.EventGoodDeed, e.Notes[0].Type)
}

func TestGoodDeedGivesToFirstOtherOutsideTown(t *testing.T) {
	giver := seat(0, "Blue", location.Forest)
	giver.Dana = 2
	first := seat(1, "Green", location.Forest)
	second := seat(2, "Red", location.Forest)

	e := GoodDeed([]karma.Player{giver, first, second}, 0)

	assert.Equal(t, 1, e.Players[0].Dana)
	assert.Equal(t, 1, e.Players[1].Dana)
	assert.Equal(t, 0, e.Players[2].Dana)
	require.Len(t, e.Notes, 2)
	assert.Equal(t, rules.EventDanaGiven, e.Notes[1].Type)
	assert.Equal(t, 1, e.Notes[1].PlayerID)
}

func TestGoodDeedInTownIsADonation(t *testing.T) {
	giver := seat(0, "Blue", location.Town)
	giver.Dana = 1
	other := seat(1, "Green", location.Town)

	e := GoodDeed([]karma.Player{giver, other}, 0)
	assert.Equal(t, 0, e.Players[1].Dana)
	assert.Equal(t, 1, e.Players[0].Merit)
}

func TestGoodDeedNeedsDana(t *testing.T) {
	c := ctx(rules.PhaseMorning, seat(0, "Blue", location.Town))
	res := Check(c, KindGoodDeed)
	assert.False(t, res.Allowed)
	assert.NotEmpty(t, res.Reason)
}

func TestBadDeedInTownWithTwoVictims(t *testing.T) {
	attacker := seat(0, "Blue", location.Town)
	v1 := seat(1, "Green", location.Town)
	v1.Dana = 1
	v2 := seat(2, "Red", location.Town)
	v2.Dana = 1

	c := ctx(rules.PhaseAfternoon, attacker, v1, v2)
	require.True(t, Check(c, KindBadDeed).Allowed)

	e := BadDeed(c.Players, 0)
	assert.Equal(t, 3, e.Players[0].Dana)
	assert.Equal(t, -3, e.Players[0].Merit)
	assert.Equal(t, 0, e.Players[1].Dana)
	assert.Equal(t, 0, e.Players[2].Dana)
	assert.Len(t, e.Notes, 3)
	assert.Contains(t, e.Notes[0].Message, "Town, Green, Red")
}

func TestBadDeedMeritFloors(t *testing.T) {
	attacker := seat(0, "Blue", location.Town)
	attacker.Merit = -4
	v1 := seat(1, "Green", location.Town)
	v1.Dana = 1
	v2 := seat(2, "Red", location.Town)
	v2.Dana = 1

	e := BadDeed([]karma.Player{attacker, v1, v2}, 0)
	assert.Equal(t, karma.MinMerit, e.Players[0].Merit)
	assert.Equal(t, 3, e.Players[0].Dana)
}

func TestBadDeedPreconditions(t *testing.T) {
	alone := seat(0, "Blue", location.Forest)
	broke := seat(1, "Green", location.Forest)
	res := Check(ctx(rules.PhaseMorning, alone, broke), KindBadDeed)
	assert.False(t, res.Allowed)
	assert.Equal(t, "Nothing to steal here", res.Reason)

	full := seat(0, "Blue", location.Town)
	full.Dana = karma.DanaSlots
	assert.False(t, Check(ctx(rules.PhaseMorning, full), KindBadDeed).Allowed)

	// capacity shrinks with age
	old := seat(0, "Blue", location.Town)
	old.Age = 8
	old.Dana = 7
	assert.False(t, Check(ctx(rules.PhaseMorning, old), KindBadDeed).Allowed)
}

func TestCaveSlotIsExclusive(t *testing.T) {
	sitting := seat(0, "Blue", location.Cave)
	sitting.IsMeditator, sitting.IsMeditating = true, true
	second := seat(1, "Green", location.Cave)
	second.IsMeditator = true

	c := Context{Phase: rules.PhaseMorning, Players: []karma.Player{sitting, second}, ActorID: 1}
	res := Check(c, KindMeditate)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "occupied")

	// the occupant may keep meditating in its own slot
	c.ActorID = 0
	assert.True(t, Check(c, KindMeditate).Allowed)
}

func TestMeditatePreconditions(t *testing.T) {
	novice := seat(0, "Blue", location.Forest)
	assert.Equal(t, "Must be a meditator to meditate", Check(ctx(rules.PhaseMorning, novice), KindMeditate).Reason)

	inTown := seat(0, "Blue", location.Town)
	inTown.IsMeditator = true
	assert.False(t, Check(ctx(rules.PhaseMorning, inTown), KindMeditate).Allowed)

	moving := seat(0, "Blue", location.Forest)
	moving.IsMeditator = true
	c := ctx(rules.PhaseMorning, moving)
	c.IsMoving = true
	assert.False(t, Check(c, KindMeditate).Allowed)

	assert.False(t, Check(ctx(rules.PhaseEvening, moving), KindMeditate).Allowed)
}

func TestDelusionDrop(t *testing.T) {
	assert.Equal(t, 2, DelusionDrop(location.Cave, 0))
	assert.Equal(t, 1, DelusionDrop(location.Forest, 1))
	assert.Equal(t, 0, DelusionDrop(location.Town, 2))
	assert.Equal(t, 3, DelusionDrop(location.Temple, 2))
}

func TestMeditateReducesDelusionThenGainsInsight(t *testing.T) {
	p := seat(0, "Blue", location.Cave)
	p.IsMeditator = true
	p.Delusion = 1

	e := Meditate([]karma.Player{p}, 0)
	got := e.Players[0]
	assert.Equal(t, 0, got.Delusion)
	assert.Equal(t, 0, got.Insight)
	assert.True(t, got.IsMeditating)
	require.Len(t, e.Notes, 2)
	assert.Equal(t, rules.EventDelusionClear, e.Notes[1].Type)

	e = Meditate(e.Players, 0)
	assert.Equal(t, 2, e.Players[0].Insight)
}

func TestTempleMeditationCountsCompany(t *testing.T) {
	p := seat(0, "Blue", location.Temple)
	p.IsMeditator, p.IsMonk, p.Delusion = true, true, 10
	o1 := seat(1, "Green", location.Temple)
	o2 := seat(2, "Red", location.Temple)

	e := Meditate([]karma.Player{p, o1, o2}, 0)
	assert.Equal(t, 7, e.Players[0].Delusion)
}

func TestAlmsOnlyForMonksInTownMornings(t *testing.T) {
	monk := seat(0, "Blue", location.Town)
	monk.IsMonk = true

	assert.True(t, Check(ctx(rules.PhaseMorning, monk), KindAlms).Allowed)
	assert.Equal(t, "Can only collect alms in the morning", Check(ctx(rules.PhaseAfternoon, monk), KindAlms).Reason)

	lay := seat(0, "Blue", location.Town)
	assert.Equal(t, "Must be a monk to collect alms", Check(ctx(rules.PhaseMorning, lay), KindAlms).Reason)

	e := Alms([]karma.Player{monk}, 0)
	assert.Equal(t, 1, e.Players[0].Dana)
}

func TestOrdainIsMandatoryInTemple(t *testing.T) {
	p := seat(0, "Blue", location.Temple)
	p.Dana = 4
	p.IsMeditator = true
	c := ctx(rules.PhaseAfternoon, p)

	assert.True(t, MustOrdain(c))
	for _, kind := range []Kind{KindMove, KindMeditate, KindSkip} {
		assert.False(t, Check(c, kind).Allowed, kind)
	}
	require.True(t, Check(c, KindOrdain).Allowed)

	e := Ordain(c.Players, 0)
	assert.True(t, e.Players[0].IsMonk)
	assert.Equal(t, 0, e.Players[0].Dana)

	c.Players = e.Players
	assert.False(t, MustOrdain(c))
	assert.Equal(t, "Already a monk", Check(c, KindOrdain).Reason)
	assert.True(t, Check(c, KindMeditate).Allowed)
}

func TestOrdainNeedsTemple(t *testing.T) {
	c := ctx(rules.PhaseMorning, seat(0, "Blue", location.Town))
	assert.Equal(t, "Must be in temple to ordain", Check(c, KindOrdain).Reason)
}

func TestCheckMove(t *testing.T) {
	c := ctx(rules.PhaseMorning, seat(0, "Blue", location.Town))

	assert.True(t, CheckMove(c, location.Forest).Allowed)
	assert.True(t, CheckMove(c, location.Temple).Allowed)
	assert.False(t, CheckMove(c, location.Cave).Allowed)
	assert.False(t, CheckMove(c, location.ID("moon")).Allowed)
	assert.False(t, CheckMove(ctx(rules.PhaseEvening, c.Players...), location.Forest).Allowed)

	ghost := seat(0, "Blue", location.Town)
	ghost.Realm = karma.RealmHeaven
	assert.False(t, CheckMove(ctx(rules.PhaseMorning, ghost), location.Forest).Allowed)
}

func TestMoveClearsMeditationAndRunsInteractions(t *testing.T) {
	mover := seat(0, "Blue", location.Forest)
	mover.IsMeditating = true
	mover.Dana = 2
	teacher := seat(1, "Green", location.Town)
	teacher.IsTeacher, teacher.IsMeditator = true, true
	thief := seat(2, "Red", location.Town)
	thief.IsGreedy = true

	in := []karma.Player{mover, teacher, thief}
	e := Move(in, 0, location.Town)

	got := e.Players[0]
	assert.Equal(t, location.Town, got.Location)
	assert.False(t, got.IsMeditating)
	assert.True(t, got.IsMeditator)
	assert.Equal(t, 1, got.Dana)
	assert.Equal(t, 1, e.Players[1].Merit)
	assert.Equal(t, -1, e.Players[2].Merit)

	types := make([]rules.EventType, 0, len(e.Notes))
	for _, n := range e.Notes {
		types = append(types, n.Type)
	}
	assert.Equal(t, []rules.EventType{rules.EventMoved, rules.EventTaught, rules.EventRobbed}, types)

	assert.Equal(t, location.Forest, in[0].Location)
}

func TestGreedyTollEnteringTown(t *testing.T) {
	g := seat(0, "Blue", location.Forest)
	g.IsGreedy = true

	e := Move([]karma.Player{g}, 0, location.Town)
	assert.Equal(t, 1, e.Players[0].Dana)
	assert.Equal(t, -1, e.Players[0].Merit)
	assert.Equal(t, rules.EventGreedyTown, e.Notes[0].Type)
}
