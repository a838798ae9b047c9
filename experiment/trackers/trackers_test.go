package trackers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/samuelfneumann/expdqn/agent"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

type fixedAgent struct {
	value float64
}

func (f *fixedAgent) Step(ts.TimeStep) (int, error) { return 0, nil }
func (f *fixedAgent) Reset()                        {}
func (f *fixedAgent) Statistics() agent.Statistics {
	return agent.Statistics{StateValue: f.value}
}

func step(stepType ts.StepType, reward float64) ts.TimeStep {
	return ts.New(stepType, reward, 1, nil, 0)
}

func TestReturn(t *testing.T) {
	r := NewReturn()
	a := &fixedAgent{}

	r.Track(step(ts.First, 0), a)
	r.Track(step(ts.Mid, 1), a)
	r.Track(step(ts.Mid, 2), a)
	assert.Equal(t, map[string]float64{EpisodeReturn: 3, NumEpisodes: 0},
		r.Get(), "partial episode return")

	r.Track(step(ts.Last, 3), a)
	r.Track(step(ts.First, 0), a)
	r.Track(step(ts.Last, 4), a)
	r.Track(step(ts.First, 0), a)
	r.Track(step(ts.Mid, 100), a)
	assert.Equal(t, map[string]float64{EpisodeReturn: 5, NumEpisodes: 2},
		r.Get(), "mean of completed episodes")

	r.Reset()
	assert.Equal(t, map[string]float64{EpisodeReturn: 0, NumEpisodes: 0},
		r.Get())
}

func TestStepRate(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }

	s := NewStepRate(now)
	assert.Equal(t, 0.0, s.Get()[StepRate], "no time passed")

	for i := 0; i < 10; i++ {
		s.Track(step(ts.Mid, 0), nil)
	}
	clock = clock.Add(2 * time.Second)
	assert.Equal(t, 5.0, s.Get()[StepRate])

	s.Reset()
	clock = clock.Add(time.Second)
	assert.Equal(t, 0.0, s.Get()[StepRate])
}

func TestStateValue(t *testing.T) {
	a := &fixedAgent{value: 7}
	s := NewStateValue(a, 0.5)
	assert.Equal(t, 7.0, s.Get()[StateValue], "initial statistics")

	// The first update replaces the initial value entirely
	a.value = 2
	s.Track(step(ts.First, 0), a)
	assert.InDelta(t, 2.0, s.Get()[StateValue], 1e-12)

	// trace = 0.75, step size = 2/3
	a.value = 5
	s.Track(step(ts.Mid, 0), a)
	assert.InDelta(t, 4.0, s.Get()[StateValue], 1e-12)

	s.Reset()
	assert.Equal(t, 7.0, s.Get()[StateValue])
}

func TestGenerate(t *testing.T) {
	clock := time.Unix(0, 0)
	a := &fixedAgent{value: 1}
	trackers := Default(a, func() time.Time { return clock })

	for _, tracker := range trackers {
		tracker.Track(step(ts.First, 0), a)
		tracker.Track(step(ts.Last, 2), a)
	}
	clock = clock.Add(time.Second)

	stats := Generate(trackers)
	assert.Equal(t, map[string]float64{
		EpisodeReturn: 2,
		NumEpisodes:   1,
		StepRate:      2,
		StateValue:    1,
	}, stats)

	Reset(trackers)
	assert.Equal(t, 0.0, Generate(trackers)[NumEpisodes])
}
