package common

import (
	"errors"
)

// ErrConstantSignal is returned by ZScore when the input has zero spread.
var ErrConstantSignal = errors.New("constant signal: standard deviation is zero")

// ConstantPolicy decides what ZScore does with a zero-spread input.
type ConstantPolicy int

const (
	// ConstantFail returns ErrConstantSignal.
	ConstantFail ConstantPolicy = iota
	// ConstantCenter substitutes std = 1, leaving the input mean-centred.
	ConstantCenter
)

// constantEpsilon is the spread below which a signal counts as constant.
const constantEpsilon = 1e-12

// ZScoreStats holds the statistics ZScore normalized with.
type ZScoreStats struct {
	Mean float64
	Std  float64
}

// ZScore maps every value to (x-mean)/std using the population standard
// deviation. An empty input yields an empty output.
func ZScore(data []float64, policy ConstantPolicy) ([]float64, ZScoreStats, error) {
	if len(data) == 0 {
		return []float64{}, ZScoreStats{}, nil
	}

	mean, std := PopulationMeanStd(data)
	if std < constantEpsilon {
		if policy == ConstantFail {
			return nil, ZScoreStats{Mean: mean, Std: std}, ErrConstantSignal
		}
		std = 1.0
	}

	normalized := make([]float64, len(data))
	for i, val := range data {
		normalized[i] = (val - mean) / std
	}

	return normalized, ZScoreStats{Mean: mean, Std: std}, nil
}
