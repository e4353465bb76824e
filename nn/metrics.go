package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// mapeEpsilon keeps the percentage error finite for zero targets.
const mapeEpsilon = 1e-7

// EpochLog is what Fit reports after each epoch. Loss is the mean squared
// error; the remaining metrics are for observation only.
type EpochLog struct {
	Epoch  int     `json:"epoch"` // 1-based
	Loss   float64 `json:"loss"`
	MSE    float64 `json:"mse"`
	MAE    float64 `json:"mae"`
	MAPE   float64 `json:"mape"`
	Cosine float64 `json:"cosine"`
}

// mseGrad returns the mean squared error of pred against target and writes
// d(loss)/d(pred) scaled by 1/batch into grad.
func mseGrad(pred, target, grad []float64, batch int) float64 {
	n := float64(len(pred))
	loss := 0.0
	for i := range pred {
		diff := pred[i] - target[i]
		loss += diff * diff
		grad[i] = 2 * diff / (n * float64(batch))
	}
	return loss / n
}

// MeanSquaredError returns mean((pred-target)^2).
func MeanSquaredError(pred, target []float64) float64 {
	d := floats.Distance(pred, target, 2)
	return d * d / float64(len(pred))
}

// MeanAbsoluteError returns mean(|pred-target|).
func MeanAbsoluteError(pred, target []float64) float64 {
	return floats.Distance(pred, target, 1) / float64(len(pred))
}

// MeanAbsolutePercentageError returns 100*mean(|pred-target|/|target|) with
// |target| clipped from below.
func MeanAbsolutePercentageError(pred, target []float64) float64 {
	sum := 0.0
	for i := range pred {
		sum += math.Abs(pred[i]-target[i]) / math.Max(math.Abs(target[i]), mapeEpsilon)
	}
	return 100 * sum / float64(len(pred))
}

// CosineSimilarity returns the cosine between pred and target, 0 if either
// has zero norm.
func CosineSimilarity(pred, target []float64) float64 {
	np, nt := floats.Norm(pred, 2), floats.Norm(target, 2)
	if np == 0 || nt == 0 {
		return 0
	}
	return floats.Dot(pred, target) / (np * nt)
}

type metricAccumulator struct {
	n      int
	loss   float64
	mae    float64
	mape   float64
	cosine float64
}

func (a *metricAccumulator) add(pred, target []float64, loss float64) {
	a.n++
	a.loss += loss
	a.mae += MeanAbsoluteError(pred, target)
	a.mape += MeanAbsolutePercentageError(pred, target)
	a.cosine += CosineSimilarity(pred, target)
}

func (a *metricAccumulator) log(epoch int) EpochLog {
	if a.n == 0 {
		return EpochLog{Epoch: epoch}
	}
	n := float64(a.n)
	return EpochLog{
		Epoch:  epoch,
		Loss:   a.loss / n,
		MSE:    a.loss / n,
		MAE:    a.mae / n,
		MAPE:   a.mape / n,
		Cosine: a.cosine / n,
	}
}
