package agent

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/expdqn/utils/floatutils"
)

// eGreedy implements an ε-greedy policy over the action values given
// by a Learner. Ties between greedy actions are broken uniformly at
// random.
type eGreedy struct {
	learner    Learner
	numActions int
}

func newEGreedy(learner Learner, numActions int) (eGreedy, error) {
	if learner == nil {
		return eGreedy{}, fmt.Errorf("newEGreedy: nil learner")
	}
	if numActions < 1 {
		return eGreedy{}, fmt.Errorf("newEGreedy: need at least one "+
			"action, have %v", numActions)
	}
	return eGreedy{learner, numActions}, nil
}

// selectAction selects an action in a state, returning the action and
// the maximum action value in the state
func (e eGreedy) selectAction(p Params, obs *tensor.Dense, epsilon float64,
	rng *rand.Rand) (int, float64, error) {
	actionValues, err := e.learner.ActionValues(p, obs)
	if err != nil {
		return 0, 0, fmt.Errorf("selectAction: %v", err)
	}
	if len(actionValues) != e.numActions {
		return 0, 0, fmt.Errorf("selectAction: have %v action values for "+
			"%v actions", len(actionValues), e.numActions)
	}

	maxValue, greedyActions := floatutils.MaxSlice(actionValues)

	// Calculate the ε probability of choosing any action at random
	prob := epsilon / float64(e.numActions)
	actionProbabilities := make([]float64, e.numActions)
	for i := range actionProbabilities {
		actionProbabilities[i] = prob
	}

	// Adjust the probability of choosing the greedy actions
	greedyProb := (1.0 - epsilon) / float64(len(greedyActions))
	for _, action := range greedyActions {
		actionProbabilities[action] += greedyProb
	}

	dist := distuv.NewCategorical(actionProbabilities, rng)
	return int(dist.Rand()), maxValue, nil
}
