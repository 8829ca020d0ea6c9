// Package optim implements the optimization criterion described in
// spec §4.3: per-sample gradients/Hessians, line search for a new
// feature's shrinkage-scaled contribution, and residual refresh.
package optim

import (
	"math"

	"github.com/relboost/relboost/errs"
)

// Loss selects the criterion's loss function.
type Loss int

const (
	// SquaredError is plain least-squares regression.
	SquaredError Loss = iota
	// Logistic is binary classification; targets must be in {0,1}.
	Logistic
	// CrossEntropyMultiClass is the loss recovered from
	// original_source/src/relmt/LossFunctionImpl.cpp. CalcResiduals
	// treats it per sample as a sigmoid cross-entropy with a floored
	// Hessian; no caller in this module selects it.
	CrossEntropyMultiClass
)

// Criterion maintains yhat, residuals (g, h) and the sample weights for
// one ensemble fit.
type Criterion struct {
	loss Loss

	target []float64

	yhatOld        []float64
	g              []float64
	h              []float64
	samplingFactor float64

	rng func() float64 // uniform [0,1); injected for determinism in tests
}

// New returns a Criterion for the given loss and target column. rng may
// be nil, in which case bootstrap sampling is disabled regardless of
// samplingFactor.
func New(loss Loss, target []float64, samplingFactor float64, rng func() float64) (*Criterion, error) {
	if loss == Logistic {
		for _, v := range target {
			if v != 0 && v != 1 {
				return nil, errs.InvalidInput.New("logistic loss requires targets in {0,1}")
			}
		}
	}
	for _, v := range target {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errs.InvalidInput.New("target contains NaN or Inf")
		}
	}
	return &Criterion{loss: loss, target: target, samplingFactor: samplingFactor, rng: rng}, nil
}

// Init computes the initial yhatOld (the sample mean under the loss's
// natural link) and the first residuals, given the initial sample
// weights.
func (c *Criterion) Init(sampleWeights []float32) {
	n := len(c.target)
	c.yhatOld = make([]float64, n)
	c.g = make([]float64, n)
	c.h = make([]float64, n)

	init := initialPrediction(c.loss, c.target, sampleWeights)
	for i := range c.yhatOld {
		c.yhatOld[i] = init
	}
	c.CalcResiduals()
}

func initialPrediction(loss Loss, target []float64, sampleWeights []float32) float64 {
	var sumW, sumWY float64
	for i, y := range target {
		w := float64(1)
		if sampleWeights != nil {
			w = float64(sampleWeights[i])
		}
		sumW += w
		sumWY += w * y
	}
	if sumW == 0 {
		return 0
	}
	mean := sumWY / sumW
	switch loss {
	case Logistic:
		mean = clampProb(mean)
		return math.Log(mean / (1 - mean))
	default:
		return mean
	}
}

func clampProb(p float64) float64 {
	const eps = 1e-12
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// CalcResiduals refreshes g and h from the current yhatOld.
func (c *Criterion) CalcResiduals() {
	for i, y := range c.target {
		switch c.loss {
		case SquaredError:
			c.g[i] = c.yhatOld[i] - y
			c.h[i] = 1
		case Logistic:
			p := clampProb(sigmoid(c.yhatOld[i]))
			c.g[i] = p - y
			c.h[i] = p * (1 - p)
		case CrossEntropyMultiClass:
			p := clampProb(sigmoid(c.yhatOld[i]))
			c.g[i] = p - y
			c.h[i] = math.Max(p*(1-p), 1e-6)
		}
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// G returns the per-sample gradient.
func (c *Criterion) G() []float64 { return c.g }

// H returns the per-sample Hessian.
func (c *Criterion) H() []float64 { return c.h }

// YHatOld returns the current accumulated prediction.
func (c *Criterion) YHatOld() []float64 { return c.yhatOld }

// UpdateYHatOld performs a scalar line search minimizing
//
//	sum_i sw_i * (g_i * p_i + 0.5 * h_i * p_i^2), p_i = predictions_i * rate
//
// reducing to rate = -sum(g*p) / sum(h*p^2) (0 on a zero denominator),
// then commits yhatOld += shrinkage * rate * predictions, and refreshes
// residuals.
func (c *Criterion) UpdateYHatOld(sampleWeights []float32, predictions []float64, shrinkage float64) float64 {
	var num, den float64
	for i, p := range predictions {
		w := float64(1)
		if sampleWeights != nil {
			w = float64(sampleWeights[i])
		}
		num += w * c.g[i] * p
		den += w * c.h[i] * p * p
	}
	rate := 0.0
	if den != 0 {
		rate = -num / den
	}
	for i, p := range predictions {
		c.yhatOld[i] += shrinkage * rate * p
	}
	c.CalcResiduals()
	return rate
}

// PotentialGain scores a candidate feature's predictions by the same
// quantity UpdateYHatOld's line search would maximize
// (sum(g*p)^2 / sum(h*p^2)) without mutating yhatOld or residuals -
// used by the ensemble driver to rank a pool of candidate trees before
// committing to the best one.
func (c *Criterion) PotentialGain(sampleWeights []float32, predictions []float64) float64 {
	var num, den float64
	for i, p := range predictions {
		w := float64(1)
		if sampleWeights != nil {
			w = float64(sampleWeights[i])
		}
		num += w * c.g[i] * p
		den += w * c.h[i] * p * p
	}
	if den == 0 {
		return 0
	}
	return (num * num) / den
}

// MakeSampleWeights returns the next bootstrap sample weights when
// samplingFactor > 0, or nil (meaning "use all rows with weight 1") when
// it is 0.
func (c *Criterion) MakeSampleWeights() []float32 {
	if c.samplingFactor <= 0 || c.rng == nil {
		return nil
	}
	n := len(c.target)
	weights := make([]float32, n)
	for i := 0; i < n; i++ {
		if c.rng() < c.samplingFactor {
			weights[i] = 1
		}
	}
	return weights
}
