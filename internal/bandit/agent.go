package bandit

import "fmt"

// namedArm pairs an arm name with its Arm. Agent keeps these in a slice,
// not a map, so SampleAction's tie-break by first-occurrence order is
// well defined.
type namedArm struct {
	name string
	arm  *Arm
}

// Agent is a fixed collection of uniquely-named arms. It never grows after
// construction.
type Agent struct {
	arms []namedArm
	index map[string]int
}

// NewAgent builds an agent over the given arm names, each starting with a
// fresh Arm using decay and its own private random source.
func NewAgent(names []string, decay float64) *Agent {
	a := &Agent{index: make(map[string]int, len(names))}
	for _, n := range names {
		a.addArm(n, NewArm(decay, nil))
	}
	return a
}

// NewAgentWithArms builds an agent from explicit (name, arm) pairs,
// rejecting duplicate names.
func NewAgentWithArms(pairs map[string]*Arm, order []string) (*Agent, error) {
	a := &Agent{index: make(map[string]int, len(order))}
	for _, name := range order {
		arm, ok := pairs[name]
		if !ok {
			return nil, fmt.Errorf("bandit: arm %q missing from pairs", name)
		}
		if err := a.addArmChecked(name, arm); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) addArm(name string, arm *Arm) {
	a.index[name] = len(a.arms)
	a.arms = append(a.arms, namedArm{name: name, arm: arm})
}

func (a *Agent) addArmChecked(name string, arm *Arm) error {
	if _, dup := a.index[name]; dup {
		return fmt.Errorf("bandit: duplicate arm name %q", name)
	}
	a.addArm(name, arm)
	return nil
}

// Names returns the arm names in construction order.
func (a *Agent) Names() []string {
	out := make([]string, len(a.arms))
	for i, na := range a.arms {
		out[i] = na.name
	}
	return out
}

// Arm returns the named arm, or nil if no such arm exists.
func (a *Agent) Arm(name string) *Arm {
	i, ok := a.index[name]
	if !ok {
		return nil
	}
	return a.arms[i].arm
}

// SampleAction samples every arm once and returns the name of the arm with
// the maximum draw. Ties are broken by first-occurrence (construction)
// order.
func (a *Agent) SampleAction() string {
	best := ""
	bestVal := -1.0
	for _, na := range a.arms {
		v := na.arm.Sample()
		if v > bestVal {
			bestVal = v
			best = na.name
		}
	}
	return best
}

// ReceiveReward updates the named arm's posterior. It returns an error if
// the arm does not exist or the reward is invalid.
func (a *Agent) ReceiveReward(name string, r int) error {
	arm := a.Arm(name)
	if arm == nil {
		return fmt.Errorf("bandit: unknown arm %q", name)
	}
	return arm.ReceiveReward(r)
}
