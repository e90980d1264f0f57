// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package rebalance

import (
	"math"
	"math/rand/v2"

	"github.com/elliotchance/pie/v2"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/mathutil"
)

// WinProbability returns the probability that a player rated diff above the opponent wins.
type WinProbability func(diff float64) float64

// Weigh sets the weight of every candidate:
//
//	avgWinProbability ^ RatingPower * OddPenalty ^ oddGroups
//
// Teams are already even, so only noop and split candidates pay the odd penalty.
func Weigh(candidates []Candidate, winProbability WinProbability, params Params) {
	for i := range candidates {
		c := &candidates[i]
		var avg float64
		if c.Kind == KindTeams {
			avg = TeamsWinProbability(c.Groups, winProbability)
		} else {
			avg = AverageWinProbability(c.Groups, winProbability)
		}

		weight := math.Pow(avg, params.RatingPower)
		if c.Kind != KindTeams {
			odd := len(pie.Filter(c.Groups, func(group []Member) bool { return mathutil.IsOdd(len(group)) }))
			weight *= math.Pow(params.OddPenalty, float64(odd))
		}
		if math.IsNaN(weight) || weight < 0 {
			weight = 0
		}
		c.Weight = weight
	}
}

// AverageWinProbability is the chance of the members of each group to beat the best player of
// their group, averaged over the group and weighted by group size. It ranges from 0 (hopeless)
// to 0.5 (everyone equal). A lone member has nobody to play against and counts as 0.
func AverageWinProbability(groups [][]Member, winProbability WinProbability) float64 {
	values := make([]float64, 0, len(groups))
	weights := make([]float64, 0, len(groups))
	for _, group := range groups {
		values = append(values, groupWinProbability(group, winProbability))
		weights = append(weights, float64(len(group)))
	}
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, weights)
}

func groupWinProbability(group []Member, winProbability WinProbability) float64 {
	if len(group) < 2 {
		return 0
	}
	best := 0
	for i, m := range group {
		if m.Rating > group[best].Rating {
			best = i
		}
	}
	probabilities := make([]float64, 0, len(group)-1)
	for i, m := range group {
		if i != best {
			probabilities = append(probabilities, winProbability(m.Rating-group[best].Rating))
		}
	}
	return stat.Mean(probabilities, nil)
}

// TeamsWinProbability is the chance of each team to beat the strongest team, by mean rating,
// averaged over the other teams.
func TeamsWinProbability(teams [][]Member, winProbability WinProbability) float64 {
	if len(teams) < 2 {
		return 0
	}
	means := make([]float64, len(teams))
	for i, team := range teams {
		means[i] = stat.Mean(pie.Map(team, func(m Member) float64 { return m.Rating }), nil)
	}
	best := 0
	for i := range means {
		if means[i] > means[best] {
			best = i
		}
	}
	probabilities := make([]float64, 0, len(teams)-1)
	for i := range means {
		if i != best {
			probabilities = append(probabilities, winProbability(means[i]-means[best]))
		}
	}
	return stat.Mean(probabilities, nil)
}

// ChooseWeighted picks a candidate with probability proportional to its weight. Candidates of
// weight 0 are never picked; it returns false when every weight is 0.
func ChooseWeighted(candidates []Candidate, src rand.Source) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	weights := pie.Map(candidates, func(c Candidate) float64 { return c.Weight })
	idx, ok := sampleuv.NewWeighted(weights, src).Take()
	if !ok {
		return Candidate{}, false
	}
	return candidates[idx], true
}
