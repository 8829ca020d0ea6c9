package optim_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/optim"
)

func TestSquaredErrorInitAndResiduals(t *testing.T) {
	require := require.New(t)

	c, err := optim.New(optim.SquaredError, []float64{1, 1, 1, 0, 0, 0}, 0, nil)
	require.NoError(err)

	c.Init(nil)
	// initial yhat is the sample mean = 0.5, residual = yhat - y.
	require.InDelta(0.5, c.YHatOld()[0], 1e-9)
	require.InDelta(-0.5, c.G()[0], 1e-9)
	require.InDelta(0.5, c.G()[3], 1e-9)
	for _, h := range c.H() {
		require.Equal(1.0, h)
	}
}

func TestLogisticRejectsNonBinaryTargets(t *testing.T) {
	require := require.New(t)

	_, err := optim.New(optim.Logistic, []float64{0, 1, 2}, 0, nil)
	require.Error(err)
}

func TestUpdateYHatOldZeroDenominatorReturnsZero(t *testing.T) {
	require := require.New(t)

	c, err := optim.New(optim.SquaredError, []float64{1, 2, 3}, 0, nil)
	require.NoError(err)
	c.Init(nil)

	rate := c.UpdateYHatOld(nil, []float64{0, 0, 0}, 1.0)
	require.Equal(0.0, rate)
}

func TestUpdateYHatOldReducesLoss(t *testing.T) {
	require := require.New(t)

	target := []float64{1, 1, 1, 0, 0, 0}
	c, err := optim.New(optim.SquaredError, target, 0, nil)
	require.NoError(err)
	c.Init(nil)

	before := sumSquaredResidual(c.YHatOld(), target)

	predictions := []float64{1, 1, 1, 1, 0, 0}
	c.UpdateYHatOld(nil, predictions, 1.0)

	after := sumSquaredResidual(c.YHatOld(), target)
	require.Less(after, before)
}

func sumSquaredResidual(yhat, target []float64) float64 {
	var s float64
	for i := range yhat {
		d := yhat[i] - target[i]
		s += d * d
	}
	return s
}

func TestMakeSampleWeightsNilWhenNoSampling(t *testing.T) {
	require := require.New(t)

	c, err := optim.New(optim.SquaredError, []float64{1, 2, 3}, 0, nil)
	require.NoError(err)
	require.Nil(c.MakeSampleWeights())
}
