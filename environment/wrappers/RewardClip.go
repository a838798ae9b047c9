package wrappers

import (
	"fmt"

	env "github.com/samuelfneumann/expdqn/environment"
	ts "github.com/samuelfneumann/expdqn/timestep"
	"github.com/samuelfneumann/expdqn/utils/floatutils"
)

// RewardClip wraps an environment so that every reward is clipped to
// [-maxAbs, maxAbs]
type RewardClip struct {
	env.Environment
	maxAbs float64
}

// NewRewardClip returns a new RewardClip
func NewRewardClip(e env.Environment, maxAbs float64) (*RewardClip, error) {
	if maxAbs <= 0 {
		return nil, fmt.Errorf("newRewardClip: bound must be positive, "+
			"have %v", maxAbs)
	}
	return &RewardClip{e, maxAbs}, nil
}

// Step takes one step in the wrapped environment and clips the reward
func (r *RewardClip) Step(action int) (ts.TimeStep, error) {
	step, err := r.Environment.Step(action)
	if err != nil {
		return ts.TimeStep{}, err
	}

	step.Reward = floatutils.Clip(step.Reward, -r.maxAbs, r.maxAbs)
	return step, nil
}

// ClipRewards returns an environment.Builder whose environments clip
// rewards to [-maxAbs, maxAbs]. If maxAbs is 0, rewards are not
// clipped.
func ClipRewards(build env.Builder, maxAbs float64) env.Builder {
	if maxAbs == 0 {
		return build
	}

	return func(seed uint64) (env.Environment, error) {
		e, err := build(seed)
		if err != nil {
			return nil, err
		}
		return NewRewardClip(e, maxAbs)
	}
}
