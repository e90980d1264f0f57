// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package aco is the rating model: a logistic curve over the rating difference,
// blended with the win rates actually observed for that difference.
package aco

import (
	"math"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/mathutil"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

type Model struct {
	// R is the rating difference at which the stronger side is expected to win 10 of 11 games.
	R float64
	// K is the largest possible adjustment of a single duel.
	K float64
	// Power damps the adjustment as the observed outcome becomes more likely.
	Power float64
	// Confidence is the number of observed games at which the empirical rate
	// and the logistic curve weigh 1/e and 1-1/e.
	Confidence float64
}

func NewModel(cfg *config.Config) *Model {
	return &Model{
		R:          cfg.AcoR,
		K:          cfg.AcoK,
		Power:      cfg.AcoPower,
		Confidence: cfg.AcoConfidence,
	}
}

// Expected returns the logistic probability that a player rated diff above the opponent wins.
func (m *Model) Expected(diff float64) float64 {
	return 1 / (1 + math.Pow(10, -diff/m.R))
}

// EstimateWinProbability blends the logistic curve with the empirical bucket nearest to |diff|.
// Buckets hold the win rate of the higher rated side, so a negative diff is answered
// from the opponent's side and inverted.
func (m *Model) EstimateWinProbability(diff float64, buckets []models.WinRateBucket) float64 {
	if diff < 0 {
		return 1 - m.EstimateWinProbability(-diff, buckets)
	}

	logistic := m.Expected(diff)
	winRate, numGames, ok := empiricalWinRate(diff, buckets)
	if !ok {
		return logistic
	}

	weight := 1.0
	if m.Confidence > 0 {
		weight = math.Exp(-numGames / m.Confidence)
	}
	return mathutil.Clamp(weight*logistic+(1-weight)*winRate, 0, 1)
}

// Adjustment is the rating change of one duel.
//
// p is the estimated probability of winning and score the actual result (1 win, 0.5 draw, 0 loss).
// The learning rate shrinks as the observed outcome gets more likely, so upsets move ratings
// more than expected wins. Using the probability of the observed outcome keeps a duel zero-sum:
// both sides see the same outcome probability. For the winner pOutcome is p, so the winner's
// change equals K * (score - p) * (1 - p)^Power * multiplier.
func (m *Model) Adjustment(p, score, multiplier float64) float64 {
	pOutcome := score*p + (1-score)*(1-p)
	return m.K * (score - p) * math.Pow(1-pOutcome, m.Power) * multiplier
}

// empiricalWinRate finds the bucket containing diff. When that bucket holds no games the
// rate is interpolated between the nearest populated midpoints on either side.
func empiricalWinRate(diff float64, buckets []models.WinRateBucket) (winRate float64, numGames float64, ok bool) {
	var below, above *models.WinRateBucket
	for i := range buckets {
		bucket := &buckets[i]
		if bucket.NumGames <= 0 {
			continue
		}
		if diff >= bucket.MinDiff && diff < bucket.MaxDiff {
			return bucket.WinRate, bucket.NumGames, true
		}
		if bucket.Midpoint <= diff && (below == nil || bucket.Midpoint > below.Midpoint) {
			below = bucket
		}
		if bucket.Midpoint >= diff && (above == nil || bucket.Midpoint < above.Midpoint) {
			above = bucket
		}
	}

	switch {
	case below != nil && above != nil:
		if above.Midpoint == below.Midpoint {
			return below.WinRate, below.NumGames, true
		}
		t := (diff - below.Midpoint) / (above.Midpoint - below.Midpoint)
		return below.WinRate + t*(above.WinRate-below.WinRate), math.Min(below.NumGames, above.NumGames), true
	case below != nil:
		return below.WinRate, below.NumGames, true
	case above != nil:
		return above.WinRate, above.NumGames, true
	}
	return 0, 0, false
}
