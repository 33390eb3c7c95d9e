package game

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hungryghost/karma-server-go/internal/game/karma"
	"github.com/hungryghost/karma-server-go/internal/game/location"
	"github.com/hungryghost/karma-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestControllerStateIsStableBetweenActions(t *testing.T) {
	c := NewController("g1", NewState(), zaptest.NewLogger(t), nil)

	first := c.State()
	second := c.State()
	assert.Equal(t, first, second)

	// Mutating a returned copy never leaks back.
	first.Players[0].Merit = 5
	assert.Zero(t, c.State().Players[0].Merit)
}

func TestControllerPublishesCommittedEntries(t *testing.T) {
	c := NewController("g1", NewState(), zaptest.NewLogger(t), nil)

	var got []rules.Event
	c.Events().Subscribe(func(e rules.Event) { got = append(got, e) })

	var moved int
	c.Events().Subscribe(func(e rules.Event) {
		if e.Type == rules.EventMoved {
			moved++
		}
	})

	out := c.Move(location.Forest)
	require.True(t, out.Allowed)
	require.Len(t, got, len(out.Entries))
	for i, e := range got {
		assert.Equal(t, "g1", e.GameID)
		assert.Equal(t, out.Entries[i].Seq, e.Seq)
		assert.Equal(t, out.Entries[i].Type, e.Type)
		assert.Equal(t, out.Entries[i].Message, e.Message)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, 1, moved)
}

func TestControllerRejectionPublishesNothing(t *testing.T) {
	c := NewController("g1", NewState(), zaptest.NewLogger(t), nil)
	before := c.State()

	published := 0
	c.Events().Subscribe(func(rules.Event) { published++ })

	out := c.Meditate()
	assert.False(t, out.Allowed)
	assert.Equal(t, "Must be a meditator to meditate", out.Reason)
	assert.Empty(t, out.Entries)
	assert.Zero(t, published)
	assert.Equal(t, before.Checksum(), c.State().Checksum())
}

func TestControllerFullDay(t *testing.T) {
	s := NewState()
	s.Players[0].IsMeditator = true
	c := NewController("g1", s, zaptest.NewLogger(t), nil)

	require.True(t, c.ToggleMoveMode().Allowed)
	require.True(t, c.Move(location.Forest).Allowed)
	require.True(t, c.Meditate().Allowed)
	assert.Equal(t, rules.PhaseEvening, c.State().Phase)
	assert.True(t, c.State().ShowEveningChoice)

	require.True(t, c.AgeNormally().Allowed)
	assert.Equal(t, 1, c.CurrentPlayer().ID)
	assert.Equal(t, 1, c.State().Players[0].Age)
	assert.Equal(t, 1, c.AvailableMeditationSlots(location.Forest))
	assert.Zero(t, c.AvailableMeditationSlots(location.Town))
}

func TestControllerReplacesInvalidState(t *testing.T) {
	bad := NewState("Ann", "Bo")
	bad.Players[0].Merit = 42

	c := NewController("g1", bad, zaptest.NewLogger(t), nil)
	s := c.State()
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{"Ann", "Bo"}, s.Names())
	assert.Zero(t, s.Players[0].Merit)
}

func TestControllerReset(t *testing.T) {
	c := NewController("g1", NewState("Ann", "Bo"), zaptest.NewLogger(t), nil)
	require.True(t, c.Move(location.Cave).Allowed)

	var types []rules.EventType
	c.Events().Subscribe(func(e rules.Event) { types = append(types, e.Type) })

	s := c.Reset()
	assert.Equal(t, []string{"Ann", "Bo"}, s.Names())
	assert.Equal(t, rules.PhaseMorning, s.Phase)
	assert.Equal(t, location.Town, s.Players[0].Location)
	assert.Equal(t, rules.EventReset, s.Log[len(s.Log)-1].Type)
	assert.Contains(t, types, rules.EventReset)
}

func TestControllerRecordsReplay(t *testing.T) {
	recorder := NewReplayRecorder(zaptest.NewLogger(t), "")
	c := NewController("g1", NewState(), zaptest.NewLogger(t), recorder)

	require.True(t, c.AdvancePhase().Allowed)
	c.Meditate() // rejected, not recorded
	require.True(t, c.AdvancePhase().Allowed)

	replay, ok := recorder.GetReplay("g1")
	require.True(t, ok)
	require.Equal(t, 3, replay.Size())
	assert.Equal(t, ActionAdvancePhase, replay.GetStateAt(2).Action)
	assert.Equal(t, c.State().Checksum(), replay.GetStateAt(2).Checksum)
}

func TestControllerSavesReplayOnWin(t *testing.T) {
	dir := t.TempDir()
	recorder := NewReplayRecorder(zaptest.NewLogger(t), dir)

	s := evening(t, func(p *karma.Player) {
		p.Age = karma.LifeSlots
		p.Insight = karma.WinningInsight
	})
	c := NewController("winner", s, zaptest.NewLogger(t), recorder)

	out := c.ChooseNirvana()
	require.True(t, out.Allowed)
	require.NotNil(t, c.State().Winner)

	_, err := os.Stat(filepath.Join(dir, "winner.replay"))
	require.NoError(t, err)

	loaded, err := LoadReplayFromFile(dir, "winner")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Size())

	assert.False(t, c.AdvancePhase().Allowed)
}

func TestControllerStats(t *testing.T) {
	s := NewState()
	s.Players[1].Realm = karma.RealmHell
	s.Players[1].Merit = -2
	s.Players[2].IsMonk = true
	s.Players[2].Merit = 2
	c := NewController("g1", s, nil, nil)

	st := c.Stats()
	assert.Equal(t, 2, st.Humans)
	assert.Equal(t, 1, st.Hell)
	assert.Equal(t, 1, st.Monks)
	assert.InDelta(t, 0.0, st.AverageMerit, 1e-9)
	assert.Equal(t, 1, st.LogEntries)
}

func TestControllerConcurrentDispatch(t *testing.T) {
	c := NewController("g1", NewState(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.AdvancePhase()
				c.AgeNormally()
				_ = c.State()
			}
		}()
	}
	wg.Wait()

	s := c.State()
	require.NoError(t, s.Validate())
	for i, e := range s.Log {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestControllerPublishesInCommitOrder(t *testing.T) {
	c := NewController("g1", NewState(), nil, nil)

	var seqs []int
	c.Events().Subscribe(func(e rules.Event) { seqs = append(seqs, e.Seq) })

	const workers, rounds = 8, 300
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				c.ToggleMoveMode()
			}
		}()
	}
	wg.Wait()

	s := c.State()
	require.Len(t, seqs, len(s.Log)-1)
	for i := 1; i < len(seqs); i++ {
		require.Equal(t, seqs[i-1]+1, seqs[i], "event %d out of order", i)
	}
	assert.Equal(t, s.Log[len(s.Log)-1].Seq, seqs[len(seqs)-1])
}

func TestControllerViewMatchesState(t *testing.T) {
	c := NewController("g1", NewState(), nil, nil)
	require.True(t, c.ToggleMoveMode().Allowed)

	s, available := c.View()
	assert.Equal(t, c.State(), s)
	assert.Equal(t, AvailableActions(s), available)
}

func TestControllerReplayFrameMatchesState(t *testing.T) {
	recorder := NewReplayRecorder(nil, "")
	c := NewController("g1", NewState(), nil, recorder)
	require.True(t, c.Move(location.Forest).Allowed)
	require.True(t, c.AdvancePhase().Allowed)

	replay, err := recorder.LoadReplay("g1")
	require.NoError(t, err)
	frame, ok := replay.Frame(replay.Size() - 1)
	require.True(t, ok)
	assert.Equal(t, c.State(), frame.State)
	assert.Equal(t, c.State().Checksum(), frame.Checksum)
}
