package mountaincar

import (
	"math"

	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/expdqn/environment"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

const (
	// Commonly used goal position
	GoalPosition float64 = 0.5
)

// Goal implements the classic control task of reaching a goal on
// Mountain Car. In this task, the agent must learn to drive the car
// up the hill and reach the goal state. Since the car is underpowered,
// it must rock back and forth from hill to hill until it reaches the
// goal.
//
// Rewards are -1 on each timestep and 0 for the action which
// transitions the car to the goal.
//
// Episodes end after a step limit (truncation) or when the car reaches
// the goal state (termination).
type Goal struct {
	env.Starter
	goalEnder *env.IntervalLimit
	stepEnder env.StepLimit
	goalX     float64 // x position of goal
}

// NewGoal creates and returns a new Goal struct given a Starter, which
// determines the starting states; the maximum number of episode
// steps; and the goal x position.
func NewGoal(s env.Starter, episodeSteps int, goalX float64) *Goal {
	stepEnder := env.NewStepLimit(episodeSteps)

	// The goal is reached when the position leaves (-∞, goalX)
	interval := []r1.Interval{{Min: math.Inf(-1),
		Max: math.Nextafter(goalX, math.Inf(-1))}}
	positionIndex := []int{0}
	goalEnder := env.NewIntervalLimit(interval, positionIndex)
	return &Goal{s, goalEnder, stepEnder, goalX}
}

// AtGoal returns whether or not the argument state is a goal state
func (g *Goal) AtGoal(state []float64) bool {
	return state[0] >= g.goalX
}

// GetReward returns the reward for a given state and action, resulting
// in a given next state. Since this is a cost-to-goal Task, rewards are
// -1.0 for all actions, except for an action which leads to the goal
// state, which results in a reward of 0.0
func (g *Goal) GetReward(_ []float64, _ int, nextState []float64) float64 {
	if g.AtGoal(nextState) {
		return 0.0
	}
	return -1.0
}

// Min returns the minimum attainable reward over all timesteps
func (g *Goal) Min() float64 { return -1.0 }

// Max returns the maximum attainable reward over all timesteps
func (g *Goal) Max() float64 { return 0.0 }

// End determines if a timestep is the last timestep in the episode.
// If so, it changes the TimeStep's StepType to timestep.Last.
func (g *Goal) End(t *ts.TimeStep) bool {
	if end := g.goalEnder.End(t); end {
		return true
	}
	return g.stepEnder.End(t)
}
