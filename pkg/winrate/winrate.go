// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package winrate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

// GameSource streams the finished games of a category.
type GameSource interface {
	StreamGames(ctx context.Context, category string, fn func(models.GameRecord) error) error
}

type snapshot map[string][]models.WinRateBucket

// Provider serves the latest win-rate distribution of every category. The distribution is
// rebuilt in the background and swapped in whole, so readers never see a partial rebuild.
type Provider struct {
	source     GameSource
	bucketSize float64
	categories []string
	metrics    metrics.SessionMetrics
	current    atomic.Pointer[snapshot]
}

func NewProvider(source GameSource, bucketSize float64, sessionMetrics metrics.SessionMetrics, categories ...string) *Provider {
	p := &Provider{
		source:     source,
		bucketSize: bucketSize,
		categories: categories,
		metrics:    sessionMetrics,
	}
	p.current.Store(&snapshot{})
	return p
}

// Buckets returns the distribution of the category, sorted by rating difference.
func (p *Provider) Buckets(category string) []models.WinRateBucket {
	return (*p.current.Load())[category]
}

// Rebuild scans the whole game history of every category and swaps in the new distribution.
// On error the previous distribution stays in place.
func (p *Provider) Rebuild(rootScope *envelope.Scope) error {
	scope := rootScope.NewChildScope("winrate.Rebuild")
	defer scope.Finish()

	next := make(snapshot, len(p.categories))
	for _, category := range p.categories {
		acc := NewAccumulator(p.bucketSize)
		err := p.source.StreamGames(scope.Ctx, category, func(record models.GameRecord) error {
			acc.Add(record)
			return nil
		})
		if err != nil {
			return fmt.Errorf("stream %s games: %w", category, err)
		}
		next[category] = acc.Buckets()
		p.metrics.SetWinRateGames(category, acc.TotalGames())
		scope.Log.WithField("category", category).
			WithField("numBuckets", len(next[category])).
			Debug("win-rate distribution rebuilt")
	}
	p.current.Store(&next)
	return nil
}

// Run rebuilds the distribution immediately and then on every interval until the scope's context ends.
func (p *Provider) Run(rootScope *envelope.Scope, interval time.Duration) {
	if err := p.Rebuild(rootScope); err != nil {
		rootScope.Log.WithError(err).Error("unable to build win-rate distribution")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rootScope.Ctx.Done():
			return
		case <-ticker.C:
			if err := p.Rebuild(rootScope); err != nil {
				rootScope.Log.WithError(err).Error("unable to rebuild win-rate distribution")
			}
		}
	}
}

// Accumulator folds finished games into buckets of the absolute rating difference.
// Every opposing pair of a game is counted from the higher rated player's side, each
// pair weighing 1/numPairs so that every game adds up to one.
type Accumulator struct {
	bucketSize float64
	buckets    map[int]*models.WinRateBucket
}

func NewAccumulator(bucketSize float64) *Accumulator {
	return &Accumulator{bucketSize: bucketSize, buckets: make(map[int]*models.WinRateBucket)}
}

type pair struct {
	higher, lower models.RecordPlayer
}

func (a *Accumulator) Add(record models.GameRecord) {
	if !record.Corroborated() {
		return
	}

	var pairs []pair
	for i, first := range record.Players {
		for _, second := range record.Players[i+1:] {
			if first.IsBot || second.IsBot || first.Rank == 0 || second.Rank == 0 {
				continue
			}
			if first.Team > 0 && first.Team == second.Team {
				continue
			}
			if first.Rating >= second.Rating {
				pairs = append(pairs, pair{higher: first, lower: second})
			} else {
				pairs = append(pairs, pair{higher: second, lower: first})
			}
		}
	}
	if len(pairs) == 0 {
		return
	}

	weight := 1 / float64(len(pairs))
	for _, pr := range pairs {
		win := 0.5
		if pr.higher.Rank < pr.lower.Rank {
			win = 1
		} else if pr.higher.Rank > pr.lower.Rank {
			win = 0
		}

		index := int(math.Floor((pr.higher.Rating - pr.lower.Rating) / a.bucketSize))
		bucket, ok := a.buckets[index]
		if !ok {
			bucket = &models.WinRateBucket{
				MinDiff:  float64(index) * a.bucketSize,
				MaxDiff:  float64(index+1) * a.bucketSize,
				Midpoint: (float64(index) + 0.5) * a.bucketSize,
			}
			a.buckets[index] = bucket
		}
		bucket.NumGames += weight
		bucket.ExpectedWins += weight * win
	}
}

// Buckets returns the populated buckets sorted by rating difference.
func (a *Accumulator) Buckets() []models.WinRateBucket {
	buckets := make([]models.WinRateBucket, 0, len(a.buckets))
	for _, bucket := range a.buckets {
		b := *bucket
		b.WinRate = b.ExpectedWins / b.NumGames
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].MinDiff < buckets[j].MinDiff })
	return buckets
}

// TotalGames is the weighted number of games folded in.
func (a *Accumulator) TotalGames() float64 {
	total := 0.0
	for _, bucket := range a.buckets {
		total += bucket.NumGames
	}
	return total
}
