package rpc

import (
	"sort"

	"github.com/relboost/relboost/errs"
)

// LiftCurveRequest carries model scores paired with binary outcome
// labels (1 = positive, 0 = negative), spec §6's LiftCurve command.
type LiftCurveRequest struct {
	Scores  []float64
	Labels  []float64
	NumBins int // default 10 if <= 0
}

// LiftPoint is one decile (or NumBins-tile) of the sorted-by-score
// population: the share of all positives captured by the top bins up
// to and including this one, against the share of the population
// examined so far.
type LiftPoint struct {
	PopulationShare float64
	Lift            float64 // capture rate / PopulationShare; 1.0 == random
}

// LiftCurveResponse carries the ordered lift points, highest score
// first.
type LiftCurveResponse struct {
	Points []LiftPoint
}

// LiftCurve sorts req.Scores descending, buckets rows into NumBins
// equal-size groups, and reports each bucket's cumulative lift over a
// random baseline.
func LiftCurve(req LiftCurveRequest) (LiftCurveResponse, error) {
	idx, totalPos, err := sortByScoreDesc(req.Scores, req.Labels)
	if err != nil {
		return LiftCurveResponse{}, err
	}
	if totalPos == 0 {
		return LiftCurveResponse{}, errs.InvalidInput.New("rpc: lift curve requires at least one positive label")
	}

	bins := req.NumBins
	if bins <= 0 {
		bins = 10
	}
	n := len(idx)

	var points []LiftPoint
	var cumPos float64
	for b := 1; b <= bins; b++ {
		cut := n * b / bins
		for i := lastCut(n, bins, b-1); i < cut; i++ {
			cumPos += req.Labels[idx[i]]
		}
		popShare := float64(cut) / float64(n)
		captureRate := cumPos / float64(totalPos)
		lift := 1.0
		if popShare > 0 {
			lift = captureRate / popShare
		}
		points = append(points, LiftPoint{PopulationShare: popShare, Lift: lift})
	}
	return LiftCurveResponse{Points: points}, nil
}

func lastCut(n, bins, b int) int {
	if b <= 0 {
		return 0
	}
	return n * b / bins
}

// PrecisionRecallCurveRequest carries scores and binary labels.
type PrecisionRecallCurveRequest struct {
	Scores []float64
	Labels []float64
}

// PRPoint is one threshold's precision/recall pair.
type PRPoint struct {
	Threshold float64
	Precision float64
	Recall    float64
}

// PrecisionRecallCurveResponse carries every distinct-score threshold's
// precision/recall, sorted by descending threshold (recall increasing).
type PrecisionRecallCurveResponse struct {
	Points []PRPoint
}

// PrecisionRecallCurve sweeps a decision threshold over every distinct
// score value, spec §6's PrecisionRecallCurve command.
func PrecisionRecallCurve(req PrecisionRecallCurveRequest) (PrecisionRecallCurveResponse, error) {
	idx, totalPos, err := sortByScoreDesc(req.Scores, req.Labels)
	if err != nil {
		return PrecisionRecallCurveResponse{}, err
	}
	if totalPos == 0 {
		return PrecisionRecallCurveResponse{}, errs.InvalidInput.New("rpc: precision-recall curve requires at least one positive label")
	}

	var points []PRPoint
	var tp, fp float64
	for i, ix := range idx {
		if req.Labels[ix] > 0 {
			tp++
		} else {
			fp++
		}
		if i+1 < len(idx) && req.Scores[idx[i+1]] == req.Scores[ix] {
			continue // keep sweeping through a run of tied scores as one threshold
		}
		points = append(points, PRPoint{
			Threshold: req.Scores[ix],
			Precision: tp / (tp + fp),
			Recall:    tp / float64(totalPos),
		})
	}
	return PrecisionRecallCurveResponse{Points: points}, nil
}

// ROCCurveRequest carries scores and binary labels.
type ROCCurveRequest struct {
	Scores []float64
	Labels []float64
}

// ROCPoint is one threshold's false/true positive rate pair.
type ROCPoint struct {
	FalsePositiveRate float64
	TruePositiveRate  float64
}

// ROCCurveResponse carries the ROC curve points plus its area (AUC),
// computed by the trapezoid rule over the same points.
type ROCCurveResponse struct {
	Points []ROCPoint
	AUC    float64
}

// ROCCurve sweeps a decision threshold over every distinct score value
// and reports the resulting ROC curve and its AUC, spec §6's ROCCurve
// command.
func ROCCurve(req ROCCurveRequest) (ROCCurveResponse, error) {
	idx, totalPos, err := sortByScoreDesc(req.Scores, req.Labels)
	if err != nil {
		return ROCCurveResponse{}, err
	}
	totalNeg := float64(len(idx)) - totalPos
	if totalPos == 0 || totalNeg == 0 {
		return ROCCurveResponse{}, errs.InvalidInput.New("rpc: roc curve requires both classes present")
	}

	points := []ROCPoint{{0, 0}}
	var tp, fp float64
	for i, ix := range idx {
		if req.Labels[ix] > 0 {
			tp++
		} else {
			fp++
		}
		if i+1 < len(idx) && req.Scores[idx[i+1]] == req.Scores[ix] {
			continue
		}
		points = append(points, ROCPoint{FalsePositiveRate: fp / totalNeg, TruePositiveRate: tp / totalPos})
	}

	var auc float64
	for i := 1; i < len(points); i++ {
		dx := points[i].FalsePositiveRate - points[i-1].FalsePositiveRate
		avgY := (points[i].TruePositiveRate + points[i-1].TruePositiveRate) / 2
		auc += dx * avgY
	}

	return ROCCurveResponse{Points: points, AUC: auc}, nil
}

// sortByScoreDesc returns indexes into scores/labels sorted by
// descending score, plus the total positive-label count.
func sortByScoreDesc(scores, labels []float64) ([]int, float64, error) {
	if len(scores) != len(labels) {
		return nil, 0, errs.InvalidInput.New("rpc: scores and labels must be the same length")
	}
	if len(scores) == 0 {
		return nil, 0, errs.InvalidInput.New("rpc: empty scores")
	}

	idx := make([]int, len(scores))
	var totalPos float64
	for i := range idx {
		idx[i] = i
		if labels[i] > 0 {
			totalPos++
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	return idx, totalPos, nil
}
