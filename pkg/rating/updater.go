// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package rating applies the outcome of finished games to the rating documents of their
// players and claws back old gains over time.
package rating

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/aco"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/store"
)

// BucketSource provides the empirical win-rate distribution of a category.
type BucketSource interface {
	Buckets(category string) []models.WinRateBucket
}

type Updater struct {
	cfg      *config.Config
	store    *store.Store
	model    *aco.Model
	winRates BucketSource
	metrics  metrics.SessionMetrics
	clock    func() time.Time
}

type Option func(*Updater)

// WithClock replaces the wall clock, mostly used by tests.
func WithClock(clock func() time.Time) Option {
	return func(u *Updater) {
		u.clock = clock
	}
}

func NewUpdater(cfg *config.Config, st *store.Store, model *aco.Model, winRates BucketSource, sessionMetrics metrics.SessionMetrics, opts ...Option) *Updater {
	u := &Updater{
		cfg:      cfg,
		store:    st,
		model:    model,
		winRates: winRates,
		metrics:  sessionMetrics,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Change is the rating change of one user.
type Change struct {
	UserID string
	Delta  float64
	Rating float64
}

func ratingID(category, userID string) string {
	return category + "/" + userID
}

func decayID(category, day, userID string) string {
	return category + "/" + day + "/" + userID
}

// Get returns the rating document of the user, or a fresh one when the user has none.
func (u *Updater) Get(rootScope *envelope.Scope, userID, category string) (*models.UserRating, error) {
	rating := models.NewUserRating(userID, category, u.cfg.InitialRating)
	err := u.store.Get(rootScope.Ctx, constants.CollectionRatings, ratingID(category, userID), rating)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return rating, nil
}

// Update applies the outcome of a finished game to every identified player in one transaction.
// Games without a corroborated outcome leave ratings untouched.
func (u *Updater) Update(rootScope *envelope.Scope, record models.GameRecord) ([]Change, error) {
	scope := rootScope.NewChildScope("rating.Update")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, record.GameID)

	if !record.Corroborated() {
		scope.Log.WithField("gameID", record.GameID).Info("no corroborated outcome, ratings unchanged")
		return nil, nil
	}

	var rated []models.RecordPlayer
	numAnonymous := 0
	for _, p := range record.Players {
		switch {
		case p.IsBot:
		case p.UserID == "":
			numAnonymous++
		default:
			rated = append(rated, p)
		}
	}
	teams := buildTeams(rated)
	if len(teams) < 2 {
		scope.Log.WithField("gameID", record.GameID).
			WithField("numAnonymous", numAnonymous).
			Info("nobody to rate")
		return nil, nil
	}

	buckets := u.buckets(record.Category)
	now := u.clock()
	var changes []Change
	err := u.store.RunTransaction(scope.Ctx, func(tx *store.Tx) error {
		changes = changes[:0]
		ratings, err := u.load(tx, record, teams)
		if err != nil {
			return err
		}
		for _, team := range teams {
			for _, p := range team.players {
				rating, ok := ratings[p.UserID]
				if !ok {
					continue
				}
				delta := u.delta(team, teams, buckets)
				u.apply(rating, p, delta, record.Ranked, now)
				if err := tx.Set(constants.CollectionRatings, ratingID(record.Category, p.UserID), rating); err != nil {
					return err
				}
				if record.Ranked {
					if err := u.recordDecay(tx, rating, delta, now); err != nil {
						return err
					}
				}
				changes = append(changes, Change{UserID: p.UserID, Delta: delta, Rating: rating.Effective(record.Ranked)})
			}
		}
		return nil
	})
	u.metrics.AddRatingUpdate(record.Category, record.Ranked, err)
	if err != nil {
		return nil, fmt.Errorf("update ratings of game %s: %w", record.GameID, err)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].UserID < changes[j].UserID })
	scope.Log.WithField("gameID", record.GameID).
		WithField("ranked", record.Ranked).
		WithField("numRated", len(changes)).
		WithField("numAnonymous", numAnonymous).
		Info("ratings updated")
	return changes, nil
}

// load reads the rating of every player and refreshes the team means with them.
func (u *Updater) load(tx *store.Tx, record models.GameRecord, teams []*team) (map[string]*models.UserRating, error) {
	ratings := make(map[string]*models.UserRating)
	for _, t := range teams {
		sum := 0.0
		for _, p := range t.players {
			rating := models.NewUserRating(p.UserID, record.Category, u.cfg.InitialRating)
			if _, err := tx.Get(constants.CollectionRatings, ratingID(record.Category, p.UserID), rating); err != nil {
				return nil, err
			}
			ratings[p.UserID] = rating
			sum += rating.Effective(record.Ranked)
		}
		t.mean = sum / float64(len(t.players))
	}
	return ratings, nil
}

// delta sums one duel against every other team. Bigger teams learn slower, and the summed
// learning rate is capped at MaxLearningRate.
func (u *Updater) delta(own *team, teams []*team, buckets []models.WinRateBucket) float64 {
	multiplier := 1 / math.Sqrt(float64(len(own.players)))
	delta, totalRate := 0.0, 0.0
	for _, other := range teams {
		if other == own {
			continue
		}
		p := u.model.EstimateWinProbability(own.mean-other.mean, buckets)
		delta += u.model.Adjustment(p, duelScore(own.rank, other.rank), multiplier)
		totalRate += multiplier
	}
	if totalRate > u.cfg.MaxLearningRate {
		delta *= u.cfg.MaxLearningRate / totalRate
	}
	return delta
}

func (u *Updater) apply(rating *models.UserRating, p models.RecordPlayer, delta float64, ranked bool, now time.Time) {
	if ranked {
		rating.Aco += delta
		rating.AcoUnranked += delta * u.cfg.UnrankedMirrorFraction
		rating.AcoGames++
	} else {
		rating.AcoUnranked += delta
		rating.AcoUnrankedGames++
	}
	rating.AcoUnranked = math.Max(rating.AcoUnranked, rating.Aco-u.cfg.UnrankedFloorGap)

	rating.NumGames++
	window := float64(min(rating.NumGames, max(u.cfg.StatsWindow, 1)))
	won := 0.0
	if p.Rank == 1 {
		won = 1
	}
	rating.DamagePerGame += (p.Damage - rating.DamagePerGame) / window
	rating.KillsPerGame += (float64(p.Kills) - rating.KillsPerGame) / window
	rating.WinRate += (won - rating.WinRate) / window
	rating.UpdatedAt = now
}

func (u *Updater) recordDecay(tx *store.Tx, rating *models.UserRating, delta float64, now time.Time) error {
	day := models.DayBucket(now)
	id := decayID(rating.Category, day, rating.UserID)
	record := &models.DecayRecord{UserID: rating.UserID, Category: rating.Category, Day: day}
	if _, err := tx.Get(constants.CollectionDecay, id, record); err != nil {
		return err
	}
	record.Delta += delta
	record.At = now
	return tx.Set(constants.CollectionDecay, id, record)
}

func (u *Updater) buckets(category string) []models.WinRateBucket {
	if u.winRates == nil {
		return nil
	}
	return u.winRates.Buckets(category)
}

type team struct {
	players []models.RecordPlayer
	rank    int
	mean    float64
}

// buildTeams groups the ranked players by team. Callers pass identified humans only, bots and
// anonymous players never take part in rating. Without teams every player is on their own.
// A team ranks as its best member.
func buildTeams(players []models.RecordPlayer) []*team {
	byTeam := make(map[int]*team)
	var teams []*team
	for _, p := range players {
		if p.Rank <= 0 {
			continue
		}
		var t *team
		if p.Team > 0 {
			t = byTeam[p.Team]
		}
		if t == nil {
			t = &team{rank: p.Rank}
			teams = append(teams, t)
			if p.Team > 0 {
				byTeam[p.Team] = t
			}
		}
		t.players = append(t.players, p)
		t.rank = min(t.rank, p.Rank)
	}
	return teams
}

func duelScore(ownRank, otherRank int) float64 {
	switch {
	case ownRank < otherRank:
		return 1
	case ownRank > otherRank:
		return 0
	}
	return 0.5
}
