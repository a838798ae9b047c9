// Package expreplay implements a bounded experience replay buffer
// which samples transitions from a mixture of a uniform distribution
// and a temperature-scaled softmax over transition priorities.
package expreplay

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/expdqn/schedule"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// initialMaxSeenPriority is the priority of the first transitions
// added to an empty buffer
const initialMaxSeenPriority = 1.0

// Config implements a specific configuration of a TransitionReplay
type Config struct {
	// Capacity is the maximum number of transitions stored
	Capacity int

	// UniformSampleProbability is the weight u of the uniform
	// distribution in the sampling mixture
	UniformSampleProbability float64

	// NormalizeWeights determines whether importance sampling weights
	// are divided by their maximum in each batch
	NormalizeWeights bool

	// ImportanceSamplingExponent is the exponent β of the importance
	// sampling weights
	ImportanceSamplingExponent float64
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("validate: capacity must be >= 1, have %v",
			c.Capacity)
	}
	if c.UniformSampleProbability < 0 || c.UniformSampleProbability > 1 {
		return fmt.Errorf("validate: uniform sample probability must be "+
			"in [0, 1], have %v", c.UniformSampleProbability)
	}
	if c.ImportanceSamplingExponent < 0 {
		return fmt.Errorf("validate: importance sampling exponent must be "+
			"non-negative, have %v", c.ImportanceSamplingExponent)
	}
	return nil
}

// Sample is a batch of transitions sampled from a TransitionReplay.
// Weights[i] is the importance sampling weight of Transitions[i] and
// Indices[i] its insertion index.
type Sample struct {
	Transitions []ts.Transition
	Weights     []float64
	Indices     []int64
}

// StoredTransition is a transition in the form in which it is stored
// in a TransitionReplay
type StoredTransition struct {
	StateBefore EncodedState
	Action      int
	Reward      float64
	Discount    float64
	StateAfter  EncodedState
}

// Option configures a TransitionReplay
type Option func(*TransitionReplay)

// WithLogger sets the logger used by a TransitionReplay
func WithLogger(logger zerolog.Logger) Option {
	return func(t *TransitionReplay) {
		t.logger = logger
	}
}

// TransitionReplay implements a fixed capacity circular buffer of
// transitions, each tagged with a priority and a monotonically
// increasing insertion index. When full, the oldest transition is
// evicted first.
//
// Transitions are sampled with replacement from the distribution
//
//	P = u * Uniform + (1 - u) * Softmax(priority / T)
//
// where u is the uniform sample probability and T is the value of the
// temperature schedule at the number of transitions added so far.
// Newly added transitions receive the largest priority ever applied to
// the buffer.
//
// TransitionReplay is not safe for concurrent use.
type TransitionReplay struct {
	config      Config
	temperature schedule.Schedule
	codec       Codec
	logger      zerolog.Logger

	// The transition with insertion index i is stored in slot
	// i % capacity
	storage    []StoredTransition
	priorities []float64

	added           int64
	maxSeenPriority float64
}

// NewTransitionReplay returns a new, empty TransitionReplay. If codec is
// nil, states are stored uncompressed.
func NewTransitionReplay(config Config, temperature schedule.Schedule,
	codec Codec, opts ...Option) (*TransitionReplay, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newTransitionReplay: %v", err)
	}
	if temperature == nil {
		return nil, fmt.Errorf("newTransitionReplay: nil temperature " +
			"schedule")
	}
	if codec == nil {
		codec = Identity{}
	}

	replay := &TransitionReplay{
		config:          config,
		temperature:     temperature,
		codec:           codec,
		logger:          zerolog.Nop(),
		storage:         make([]StoredTransition, config.Capacity),
		priorities:      make([]float64, config.Capacity),
		maxSeenPriority: initialMaxSeenPriority,
	}

	for _, opt := range opts {
		opt(replay)
	}

	return replay, nil
}

// Add adds a transition to the buffer with the maximum priority seen
// so far, evicting the oldest transition if the buffer is full. The
// insertion index of the transition is returned.
func (t *TransitionReplay) Add(transition ts.Transition) (int64, error) {
	before, err := t.codec.Encode(transition.StateBefore)
	if err != nil {
		return 0, &ReplayError{Op: "add", Err: err}
	}
	after, err := t.codec.Encode(transition.StateAfter)
	if err != nil {
		return 0, &ReplayError{Op: "add", Err: err}
	}

	index := t.added
	slot := t.slot(index)
	t.storage[slot] = StoredTransition{
		StateBefore: before,
		Action:      transition.Action,
		Reward:      transition.Reward,
		Discount:    transition.Discount,
		StateAfter:  after,
	}
	t.priorities[slot] = t.maxSeenPriority
	t.added++

	return index, nil
}

// Sample samples a batch of batchSize transitions, with replacement,
// along with their importance sampling weights and insertion indices
func (t *TransitionReplay) Sample(batchSize int,
	rng *rand.Rand) (Sample, error) {
	if t.Size() == 0 || batchSize > t.Size() {
		return Sample{}, &ReplayError{
			Op: "sample",
			Err: fmt.Errorf("%w: cannot sample %v transitions from %v",
				ErrInsufficientData, batchSize, t.Size()),
		}
	}
	if batchSize <= 0 {
		return Sample{}, fmt.Errorf("sample: batch size must be positive, "+
			"have %v", batchSize)
	}

	probs := t.Probabilities()
	categorical := distuv.NewCategorical(probs, rng)

	n := float64(len(probs))
	oldest := t.oldest()
	sample := Sample{
		Transitions: make([]ts.Transition, batchSize),
		Weights:     make([]float64, batchSize),
		Indices:     make([]int64, batchSize),
	}

	for i := 0; i < batchSize; i++ {
		position := int(categorical.Rand())
		index := oldest + int64(position)

		transition, err := t.decode(t.storage[t.slot(index)])
		if err != nil {
			return Sample{}, &ReplayError{Op: "sample", Err: err}
		}

		sample.Transitions[i] = transition
		sample.Indices[i] = index
		sample.Weights[i] = math.Pow(1/n/probs[position],
			t.config.ImportanceSamplingExponent)
	}

	if t.config.NormalizeWeights {
		floats.Scale(1/floats.Max(sample.Weights), sample.Weights)
	}

	return sample, nil
}

// Probabilities returns the probability of sampling each stored
// transition, ordered from oldest to newest
func (t *TransitionReplay) Probabilities() []float64 {
	priorities := t.Priorities()
	n := len(priorities)
	if n == 0 {
		return nil
	}

	probs := softmax(priorities, t.Temperature())
	u := t.config.UniformSampleProbability
	for i := range probs {
		probs[i] = u/float64(n) + (1-u)*probs[i]
	}

	return probs
}

// softmax returns the softmax of priorities at a given temperature.
// At a non-positive temperature, or one so small that priority /
// temperature overflows, all probability mass is shared equally
// between the maximum priorities.
func softmax(priorities []float64, temperature float64) []float64 {
	if temperature <= 0 || math.IsNaN(temperature) {
		return argmaxProbs(priorities)
	}

	probs := make([]float64, len(priorities))
	for i, p := range priorities {
		probs[i] = p / temperature
		if math.IsInf(probs[i], 0) || math.IsNaN(probs[i]) {
			return argmaxProbs(priorities)
		}
	}
	logSum := floats.LogSumExp(probs)
	if math.IsInf(logSum, 0) || math.IsNaN(logSum) {
		return argmaxProbs(priorities)
	}
	for i := range probs {
		probs[i] = math.Exp(probs[i] - logSum)
	}

	return probs
}

// argmaxProbs splits all probability mass evenly between the maximum
// priorities
func argmaxProbs(priorities []float64) []float64 {
	probs := make([]float64, len(priorities))
	max := floats.Max(priorities)
	count := 0.0
	for _, p := range priorities {
		if p == max {
			count++
		}
	}
	for i, p := range priorities {
		if p == max {
			probs[i] = 1 / count
		}
	}
	return probs
}

// UpdatePriorities sets the priorities of the transitions with the
// given insertion indices. Indices of transitions which have since been
// evicted are ignored. If an index appears more than once, its last
// priority is used.
func (t *TransitionReplay) UpdatePriorities(indices []int64,
	priorities []float64) error {
	if len(indices) != len(priorities) {
		return &ReplayError{
			Op: "updatePriorities",
			Err: fmt.Errorf("have %v indices but %v priorities",
				len(indices), len(priorities)),
		}
	}
	for _, p := range priorities {
		if !validPriority(p) {
			return &ReplayError{
				Op: "updatePriorities",
				Err: fmt.Errorf("priorities must be finite and "+
					"non-negative, have %v", p),
			}
		}
	}

	for i, index := range indices {
		if !t.resident(index) {
			t.logger.Debug().
				Int64("index", index).
				Int64("added", t.added).
				Err(ErrStaleIndex).
				Msg("dropping priority update")
			continue
		}

		t.priorities[t.slot(index)] = priorities[i]
		t.maxSeenPriority = math.Max(t.maxSeenPriority, priorities[i])
	}

	return nil
}

// validPriority returns whether p is finite and non-negative
func validPriority(p float64) bool {
	return p >= 0 && !math.IsInf(p, 1)
}

// Get returns the transition with insertion index index
func (t *TransitionReplay) Get(index int64) (ts.Transition, error) {
	if !t.resident(index) {
		return ts.Transition{}, &ReplayError{
			Op:  "get",
			Err: fmt.Errorf("%w: %v", ErrStaleIndex, index),
		}
	}

	transition, err := t.decode(t.storage[t.slot(index)])
	if err != nil {
		return ts.Transition{}, &ReplayError{Op: "get", Err: err}
	}
	return transition, nil
}

// Priorities returns a copy of the priorities of the stored
// transitions, ordered from oldest to newest
func (t *TransitionReplay) Priorities() []float64 {
	priorities := make([]float64, t.Size())
	oldest := t.oldest()
	for i := range priorities {
		priorities[i] = t.priorities[t.slot(oldest+int64(i))]
	}
	return priorities
}

// Size returns the number of transitions stored
func (t *TransitionReplay) Size() int {
	if t.added < int64(t.config.Capacity) {
		return int(t.added)
	}
	return t.config.Capacity
}

// Capacity returns the maximum number of transitions stored
func (t *TransitionReplay) Capacity() int {
	return t.config.Capacity
}

// Added returns the number of transitions ever added
func (t *TransitionReplay) Added() int64 {
	return t.added
}

// MaxSeenPriority returns the largest priority ever applied to the
// buffer, which is the priority given to newly added transitions
func (t *TransitionReplay) MaxSeenPriority() float64 {
	return t.maxSeenPriority
}

// Temperature returns the current sampling temperature
func (t *TransitionReplay) Temperature() float64 {
	return t.temperature.Value(int(t.added))
}

// ImportanceSamplingExponent returns the exponent of the importance
// sampling weights
func (t *TransitionReplay) ImportanceSamplingExponent() float64 {
	return t.config.ImportanceSamplingExponent
}

// oldest returns the insertion index of the oldest stored transition
func (t *TransitionReplay) oldest() int64 {
	return t.added - int64(t.Size())
}

// resident returns whether the transition with a given insertion index
// is currently stored
func (t *TransitionReplay) resident(index int64) bool {
	return index >= t.oldest() && index < t.added
}

func (t *TransitionReplay) slot(index int64) int {
	return int(index % int64(t.config.Capacity))
}

func (t *TransitionReplay) decode(s StoredTransition) (ts.Transition,
	error) {
	before, err := t.codec.Decode(s.StateBefore)
	if err != nil {
		return ts.Transition{}, err
	}
	after, err := t.codec.Decode(s.StateAfter)
	if err != nil {
		return ts.Transition{}, err
	}

	return ts.Transition{
		StateBefore: before,
		Action:      s.Action,
		Reward:      s.Reward,
		Discount:    s.Discount,
		StateAfter:  after,
	}, nil
}
