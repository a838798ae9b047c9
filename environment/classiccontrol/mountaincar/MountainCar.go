// Package mountaincar implements the discrete action classic control
// environment "Mountain Car"
package mountaincar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r1"
	"gorgonia.org/tensor"

	env "github.com/samuelfneumann/expdqn/environment"
	ts "github.com/samuelfneumann/expdqn/timestep"
	"github.com/samuelfneumann/expdqn/utils/floatutils"
)

const (
	MinPosition float64 = -1.2
	MaxPosition float64 = 0.6
	MaxSpeed    float64 = 0.07
	Power       float64 = 0.0015 // Engine power
	Gravity     float64 = 0.0025

	// Bounds on the starting position. Cars always start at rest.
	MinStartPosition float64 = -0.6
	MaxStartPosition float64 = -0.4

	// Discrete Actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2
	NumActions        int = MaxDiscreteAction - MinDiscreteAction + 1

	ObservationDims int = 2
)

// MountainCar implements the classic control Mountain Car environment.
// In this environment, the agent controls a car in a valley between two
// hills. The car is underpowered and cannot drive up the hill unless
// it rocks back and forth from hill to hill, using its momentum to
// gradually climb higher.
//
// State features consist of the x position of the car and its velocity.
// These features are bounded by the MinPosition, MaxPosition, and
// MaxSpeed constants defined in this package. Upon reaching the
// minimum position, the velocity of the car is set to 0. Observations
// are float64 tensors of shape [2].
//
// Actions are discrete and determine in which direction to apply full
// accelerating force to the car:
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
//
// Illegal actions will cause the environment to panic.
type MountainCar struct {
	env.Task
	state          []float64
	stepNumber     int
	started        bool
	discount       float64
	positionBounds r1.Interval
	speedBounds    r1.Interval
}

// New creates a new Mountain Car environment with the argument task.
// Reset must be called before the first Step.
func New(t env.Task, discount float64) *MountainCar {
	return &MountainCar{
		Task:           t,
		discount:       discount,
		positionBounds: r1.Interval{Min: MinPosition, Max: MaxPosition},
		speedBounds:    r1.Interval{Min: -MaxSpeed, Max: MaxSpeed},
	}
}

// NewBuilder returns an environment.Builder which constructs Mountain
// Car environments running the Goal task. Episodes are cut off after
// episodeSteps steps, or never if episodeSteps is 0.
func NewBuilder(episodeSteps int, discount float64) env.Builder {
	return func(seed uint64) (env.Environment, error) {
		if episodeSteps < 0 {
			return nil, fmt.Errorf("newBuilder: episode steps must be "+
				"non-negative, have %v", episodeSteps)
		}
		bounds := []r1.Interval{
			{Min: MinStartPosition, Max: MaxStartPosition},
			{Min: 0, Max: 0},
		}
		starter := env.NewUniformStarter(bounds, seed)
		task := NewGoal(starter, episodeSteps, GoalPosition)

		return New(task, discount), nil
	}
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (m *MountainCar) Reset() (ts.TimeStep, error) {
	state := m.Start()
	if err := m.validateState(state); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	m.state = state
	m.stepNumber = 0
	m.started = true

	return ts.New(ts.First, 0, m.discount, m.observation(), 0), nil
}

// ActionSpec returns the action specification of the environment
func (m *MountainCar) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(NumActions)
}

// ObservationSpec returns the observation specification of the
// environment
func (m *MountainCar) ObservationSpec() env.Spec {
	return env.NewObservationSpec([]int{ObservationDims}, tensor.Float64)
}

// Step takes one environmental step given action a and returns the next
// state as a timestep.TimeStep
func (m *MountainCar) Step(action int) (ts.TimeStep, error) {
	if !m.started {
		return ts.TimeStep{}, fmt.Errorf("step: environment must be reset " +
			"before stepping")
	}

	// Ensure a legal action was selected
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		panic(fmt.Sprintf("illegal action %v ∉ (0, 1, 2)", action))
	}
	force := float64(action - 1)

	position, velocity := m.state[0], m.state[1]

	// Update the velocity
	velocity += force*Power - Gravity*math.Cos(3*position)
	velocity = floatutils.Clip(velocity, m.speedBounds.Min, m.speedBounds.Max)

	// Update the position
	position += velocity
	position = floatutils.Clip(position, m.positionBounds.Min,
		m.positionBounds.Max)

	// The car stops when it hits the left wall
	if position <= m.positionBounds.Min && velocity < 0 {
		velocity = 0
	}

	newState := []float64{position, velocity}
	reward := m.GetReward(m.state, action, newState)
	m.state = newState
	m.stepNumber++

	nextStep := ts.New(ts.Mid, reward, m.discount, m.observation(),
		m.stepNumber)
	if m.End(&nextStep) {
		m.started = false
	}

	return nextStep, nil
}

// observation returns the current state as a new tensor
func (m *MountainCar) observation() *tensor.Dense {
	obs := make([]float64, len(m.state))
	copy(obs, m.state)
	return ts.NewState([]int{ObservationDims}, obs)
}

// validateState validates the state to ensure the position and speed
// are within the environmental limits
func (m *MountainCar) validateState(s []float64) error {
	if len(s) != ObservationDims {
		return fmt.Errorf("state should have %v features, have %v",
			ObservationDims, len(s))
	}

	position := s[0]
	if position < m.positionBounds.Min || position > m.positionBounds.Max {
		return fmt.Errorf("illegal position %v ∉ [%v, %v]", position,
			m.positionBounds.Min, m.positionBounds.Max)
	}

	speed := s[1]
	if speed < m.speedBounds.Min || speed > m.speedBounds.Max {
		return fmt.Errorf("illegal speed %v ∉ [%v, %v]", speed,
			m.speedBounds.Min, m.speedBounds.Max)
	}
	return nil
}

// String returns a string representation of the environment
func (m *MountainCar) String() string {
	if m.state == nil {
		return "Mountain Car  |  not started"
	}
	str := "Mountain Car  |  Position: %v  |  Speed: %v"
	return fmt.Sprintf(str, m.state[0], m.state[1])
}
