package bandit

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleBetaInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := sampleBeta(2, 3, rng)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestReceiveRewardSkewsTowardA(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := NewArm(0.95, rng)
	for i := 0; i < 10000; i++ {
		require.NoError(t, a.ReceiveReward(1))
	}
	require.Greater(t, a.A, a.B)
}

func TestReceiveRewardInvalid(t *testing.T) {
	a := NewArm(0.95, nil)
	err := a.ReceiveReward(2)
	require.ErrorIs(t, err, ErrInvalidReward)
}

func TestAgentSampleActionReturnsKnownArm(t *testing.T) {
	agent := NewAgent([]string{"generate", "mutate"}, 0.95)
	name := agent.SampleAction()
	require.Contains(t, []string{"generate", "mutate"}, name)
}

func TestAgentRewardRoundTrip(t *testing.T) {
	agent := NewAgent([]string{"a", "b"}, 0.95)
	require.NoError(t, agent.ReceiveReward("a", 1))
	require.Error(t, agent.ReceiveReward("missing", 1))
}
