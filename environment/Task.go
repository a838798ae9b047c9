package environment

// Task implements the goal of an environment: where episodes start,
// when they end, and how the agent is rewarded along the way
type Task interface {
	Starter
	Ender
	GetReward(state []float64, action int, nextState []float64) float64
}
