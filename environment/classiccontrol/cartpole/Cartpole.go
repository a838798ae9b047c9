// Package cartpole implements the Cartpole classic control environment
package cartpole

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
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	TotalMass      float64 = CartMass + PoleMass
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Bounds (+/-) on state variabels
	PositionBounds        float64 = 4.8
	SpeedBounds           float64 = math.MaxFloat64
	AngleBounds           float64 = math.Pi
	AngularVelocityBounds float64 = math.MaxFloat64

	// StartBounds (+/-) on every state variable at the start of an episode
	StartBounds float64 = 0.05

	// Discrete Actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2
	NumActions        int = MaxDiscreteAction - MinDiscreteAction + 1

	ObservationDims int = 4
)

// Cartpole implements the classic control environment Cartpole. In
// this environment, a pole is attached to a cart, which can move
// horizontally. The agent must get the pole to face straight up for
// as long as possible.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity. Observations are float64
// tensors of shape [4].
//
// Actions are discrete and consist of the force applied to the cart:
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
//
// Illegal actions will cause the environment to panic.
type Cartpole struct {
	env.Task
	state                 []float64
	stepNumber            int
	started               bool
	discount              float64
	positionBounds        r1.Interval
	speedBounds           r1.Interval
	angleBounds           r1.Interval
	angularVelocityBounds r1.Interval
}

// New constructs a new Cartpole environment. Reset must be called
// before the first Step.
func New(t env.Task, discount float64) *Cartpole {
	return &Cartpole{
		Task:           t,
		discount:       discount,
		positionBounds: r1.Interval{Min: -PositionBounds, Max: PositionBounds},
		speedBounds:    r1.Interval{Min: -SpeedBounds, Max: SpeedBounds},
		angleBounds:    r1.Interval{Min: -AngleBounds, Max: AngleBounds},
		angularVelocityBounds: r1.Interval{Min: -AngularVelocityBounds,
			Max: AngularVelocityBounds},
	}
}

// NewBuilder returns an environment.Builder which constructs Cartpole
// environments running the Balance task. Episodes are cut off after
// episodeSteps steps, or never if episodeSteps is 0.
func NewBuilder(episodeSteps int, discount float64) env.Builder {
	return func(seed uint64) (env.Environment, error) {
		if episodeSteps < 0 {
			return nil, fmt.Errorf("newBuilder: episode steps must be "+
				"non-negative, have %v", episodeSteps)
		}
		bounds := make([]r1.Interval, ObservationDims)
		for i := range bounds {
			bounds[i] = r1.Interval{Min: -StartBounds, Max: StartBounds}
		}
		starter := env.NewUniformStarter(bounds, seed)
		task := NewBalance(starter, episodeSteps, FailAngle)

		return New(task, discount), nil
	}
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (c *Cartpole) Reset() (ts.TimeStep, error) {
	state := c.Start()
	if err := c.validateState(state); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	c.state = state
	c.stepNumber = 0
	c.started = true

	return ts.New(ts.First, 0, c.discount, c.observation(), 0), nil
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(NumActions)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	return env.NewObservationSpec([]int{ObservationDims}, tensor.Float64)
}

// Step takes one environmental step given action a and returns the next
// state as a timestep.TimeStep
func (c *Cartpole) Step(action int) (ts.TimeStep, error) {
	if !c.started {
		return ts.TimeStep{}, fmt.Errorf("step: environment must be reset " +
			"before stepping")
	}

	// Ensure a legal action was selected
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		panic(fmt.Sprintf("illegal action %v ∉ (0, 1, 2)", action))
	}

	// Get state variables
	x, xDot := c.state[0], c.state[1]
	th, thDot := c.state[2], c.state[3]

	// Magnify the action force in the appropriate direction
	var force float64
	if action == 0 {
		force = -ForceMag
	} else if action == 2 {
		force = ForceMag
	}

	// Calculate physical variables to determine next state
	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	poleMassOverLength := PoleMass / HalfPoleLength

	temp := (force + poleMassOverLength*thDot*thDot*sinTheta) / TotalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/TotalMass))
	xAcc := temp - poleMassOverLength*thAcc*cosTheta/TotalMass

	// Update state variables using Euler kinematic integration
	x += (Dt * xDot)
	x = floatutils.Clip(x, c.positionBounds.Min, c.positionBounds.Max)
	if x == c.positionBounds.Min || x == c.positionBounds.Max {
		xDot = 0
	} else {
		xDot += (Dt * xAcc)
	}

	th += (Dt * thDot)
	th = normalizeAngle(th, c.angleBounds)

	thDot += (Dt * thAcc)

	// Create the new timestep
	newState := []float64{x, xDot, th, thDot}
	reward := c.GetReward(c.state, action, newState)
	c.state = newState
	c.stepNumber++

	nextStep := ts.New(ts.Mid, reward, c.discount, c.observation(),
		c.stepNumber)

	// Check if the step ends the episode
	if c.End(&nextStep) {
		c.started = false
	}

	return nextStep, nil
}

// observation returns the current state as a new tensor
func (c *Cartpole) observation() *tensor.Dense {
	obs := make([]float64, len(c.state))
	copy(obs, c.state)
	return ts.NewState([]int{ObservationDims}, obs)
}

// validateState ensures that a state observation is valid and between
// the physical bounds of the Cartpole environment
func (c *Cartpole) validateState(obs []float64) error {
	if len(obs) != ObservationDims {
		return fmt.Errorf("state should have %v features, have %v",
			ObservationDims, len(obs))
	}

	bounds := []r1.Interval{c.positionBounds, c.speedBounds, c.angleBounds,
		c.angularVelocityBounds}
	names := []string{"position", "speed", "angle", "angular velocity"}
	for i := range bounds {
		if obs[i] > bounds[i].Max || obs[i] < bounds[i].Min {
			return fmt.Errorf("%v is not within bounds %v", names[i],
				bounds[i])
		}
	}
	return nil
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	if c.state == nil {
		return "Cartpole  |  not started"
	}
	return fmt.Sprintf(msg, c.state[0], c.state[1], c.state[2], c.state[3])
}

// normalizeAngle normalizes the pole angle to the appropriate limits
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if angleBounds.Max != -angleBounds.Min {
		panic("angle bounds should be centered around 0")
	}

	if th > angleBounds.Max {
		divisor := int(th / angleBounds.Max)
		return -math.Pi + th - (angleBounds.Max * float64(divisor))
	} else if th < angleBounds.Min {
		divisor := int(th / angleBounds.Min)
		return math.Pi + th - (angleBounds.Min * float64(divisor))
	} else {
		return th
	}
}
