// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import "math"

// Logprobs sub-method coefficients. The four components balance average
// fluency (geometric mean), sensitivity to weak tokens (harmonic mean and
// minimum) and the spread of per-token surprisal.
const (
	geometricWeight = 0.35
	harmonicWeight  = 0.25
	minimumWeight   = 0.20
	spreadWeight    = 0.20
)

// logprobsConfidence converts per-token negative log-probabilities into a
// confidence value in [0,1]. Values are normalized to surprisals, so raw
// log-probabilities with either sign convention are accepted. The slice must
// be non-empty.
func logprobsConfidence(logprobs []float64) float64 {
	n := float64(len(logprobs))

	var sumSurprisal, sumInverseProb float64
	minProb := 1.0
	surprisals := make([]float64, 0, len(logprobs))
	for _, lp := range logprobs {
		surprisal := lp
		if surprisal < 0 {
			surprisal = -surprisal
		}
		surprisals = append(surprisals, surprisal)

		prob := math.Exp(-surprisal)
		if prob < 1e-12 {
			prob = 1e-12
		}
		sumSurprisal += surprisal
		sumInverseProb += 1.0 / prob
		if prob < minProb {
			minProb = prob
		}
	}

	geometric := math.Exp(-sumSurprisal / n)
	harmonic := n / sumInverseProb
	spread := 1.0 / (1.0 + surprisalStddev(surprisals, sumSurprisal/n))

	confidence := geometricWeight*geometric +
		harmonicWeight*harmonic +
		minimumWeight*minProb +
		spreadWeight*spread

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// surprisalStddev measures how unevenly distributed the per-token surprisal
// is. A uniform stream has zero spread.
func surprisalStddev(surprisals []float64, mean float64) float64 {
	if len(surprisals) < 2 {
		return 0
	}
	var sumSquares float64
	for _, s := range surprisals {
		d := s - mean
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(surprisals)))
}
