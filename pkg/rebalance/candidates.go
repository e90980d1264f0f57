// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package rebalance generates the ways a game can be rebalanced (leave it, split it, team it up)
// and picks one of them at random, favoring the balanced ones.
package rebalance

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

type Kind string

const (
	KindNoop  Kind = "noop"
	KindSplit Kind = "split"
	KindTeams Kind = "teams"
)

// Member is a participant as seen by the rebalancer. ID is whatever the caller
// partitions by: connection ids for splits, hero ids for teams.
type Member struct {
	ID         string
	Rating     float64
	Identified bool
	IsBot      bool
}

// Candidate is one way to rebalance. A noop has a single group holding everyone,
// a split has one group per fork and teams have one group per team.
type Candidate struct {
	Kind   Kind
	Groups [][]Member
	Weight float64
}

// IDs returns the member ids of every group.
func (c Candidate) IDs() [][]string {
	ids := make([][]string, len(c.Groups))
	for i, group := range c.Groups {
		ids[i] = make([]string, len(group))
		for j, m := range group {
			ids[i][j] = m.ID
		}
	}
	return ids
}

type Params struct {
	MinPartitionSize int
	MaxPartitionSize int
	// Neighborhood is the number of split indices tried on each side of the seed.
	Neighborhood  int
	MaxCandidates int
	RatingPower   float64
	OddPenalty    float64
	AllowBotTeams bool
}

func ParamsFromConfig(cfg models.GameConfig) Params {
	return Params{
		MinPartitionSize: cfg.MinPartitionSize,
		MaxPartitionSize: cfg.MaxPlayers,
		Neighborhood:     cfg.SplitNeighborhood,
		MaxCandidates:    cfg.MaxCandidates,
		RatingPower:      cfg.RatingPower,
		OddPenalty:       cfg.OddPenalty,
		AllowBotTeams:    cfg.AllowBotTeams,
	}
}

// SortByRating returns a copy of the members ordered by rating, then id.
func SortByRating(members []Member) []Member {
	sorted := append([]Member(nil), members...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Rating != sorted[j].Rating {
			return sorted[i].Rating < sorted[j].Rating
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func NoopCandidate(members []Member) Candidate {
	return Candidate{Kind: KindNoop, Groups: [][]Member{SortByRating(members)}}
}

// SplitCandidates cuts the rating-sorted members in two. The cut with the largest rating gap
// seeds the search and the cuts around it are tried too, as long as both sides stay within
// [MinPartitionSize, MaxPartitionSize]. When no cut near the seed is valid, the closest valid
// cut is used. It returns nil when no valid cut exists.
func SplitCandidates(members []Member, params Params) []Candidate {
	sorted := SortByRating(members)
	n := len(sorted)
	if n < 2 || n < 2*params.MinPartitionSize {
		return nil
	}

	valid := func(cut int) bool {
		return cut >= params.MinPartitionSize && n-cut >= params.MinPartitionSize &&
			cut <= params.MaxPartitionSize && n-cut <= params.MaxPartitionSize
	}
	split := func(cut int) Candidate {
		return Candidate{Kind: KindSplit, Groups: [][]Member{sorted[:cut:cut], sorted[cut:]}}
	}

	seed := largestGap(sorted)
	maxCandidates := max(params.MaxCandidates, 1)
	var candidates []Candidate
	for offset := 0; offset <= params.Neighborhood && len(candidates) < maxCandidates; offset++ {
		cuts := []int{seed - offset, seed + offset}
		if offset == 0 {
			cuts = cuts[:1]
		}
		for _, cut := range cuts {
			if valid(cut) && len(candidates) < maxCandidates {
				candidates = append(candidates, split(cut))
			}
		}
	}
	if len(candidates) > 0 {
		return candidates
	}

	for offset := 1; offset < n; offset++ {
		for _, cut := range []int{seed - offset, seed + offset} {
			if valid(cut) {
				return []Candidate{split(cut)}
			}
		}
	}
	return nil
}

// largestGap returns the cut index i in [1, n-1] with the largest rating gap between
// members i-1 and i. Ties go to the most balanced cut.
func largestGap(sorted []Member) int {
	n := len(sorted)
	best := 1
	bestGap := math.Inf(-1)
	for cut := 1; cut < n; cut++ {
		gap := sorted[cut].Rating - sorted[cut-1].Rating
		if gap > bestGap || (gap == bestGap && imbalance(cut, n) < imbalance(best, n)) {
			best, bestGap = cut, gap
		}
	}
	return best
}

func imbalance(cut, n int) int {
	return abs(n - 2*cut)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// TeamCandidates proposes teams for every team count dividing the number of members, from 2 up
// to n/2. Each count yields a team assignment dealt in snake order over the rating-sorted members
// and another over a shuffled order. Teams are only proposed when every human is identified and
// bots are absent or allowed.
func TeamCandidates(members []Member, params Params, rng *rand.Rand) []Candidate {
	for _, m := range members {
		if m.IsBot {
			if !params.AllowBotTeams {
				return nil
			}
			continue
		}
		if !m.Identified {
			return nil
		}
	}

	n := len(members)
	sorted := SortByRating(members)
	shuffled := append([]Member(nil), sorted...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var candidates []Candidate
	for numTeams := 2; numTeams <= n/2; numTeams++ {
		if n%numTeams != 0 {
			continue
		}
		candidates = append(candidates,
			Candidate{Kind: KindTeams, Groups: Snake(sorted, numTeams)},
			Candidate{Kind: KindTeams, Groups: Snake(shuffled, numTeams)},
		)
	}
	return candidates
}

// Snake deals the members into numTeams teams in the order 0,1,..,k-1,k-1,..,1,0,0,1,...
func Snake(members []Member, numTeams int) [][]Member {
	teams := make([][]Member, numTeams)
	for i, m := range members {
		round, pos := i/numTeams, i%numTeams
		if round%2 == 1 {
			pos = numTeams - 1 - pos
		}
		teams[pos] = append(teams[pos], m)
	}
	return teams
}
