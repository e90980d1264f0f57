// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package games is the session registry: the authoritative in-memory state of every live
// game and party. The registry is owned by a single goroutine and is not safe for
// concurrent use. Every visible change is queued as a control message; the registry
// never broadcasts by itself.
package games

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/elliotchance/pie/v2"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/utils"
)

type Registry struct {
	games   map[string]*models.Game
	parties map[string]*models.Party
	// gameOf and partyOf index connections to the game or party they are in.
	gameOf  map[string]string
	partyOf map[string]string

	rng     *rand.Rand
	pool    *models.Pool
	metrics metrics.SessionMetrics
	clock   func() time.Time
}

type Option func(*Registry)

// WithClock replaces the wall clock, mostly used by tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

func NewRegistry(sessionMetrics metrics.SessionMetrics, rng *rand.Rand, opts ...Option) *Registry {
	r := &Registry{
		games:   make(map[string]*models.Game),
		parties: make(map[string]*models.Party),
		gameOf:  make(map[string]string),
		partyOf: make(map[string]string),
		rng:     rng,
		pool:    models.NewPool(),
		metrics: sessionMetrics,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateGame registers a new empty game in the segment.
func (r *Registry) CreateGame(rootScope *envelope.Scope, config models.GameConfig, segment string) *models.Game {
	scope := rootScope.NewChildScope("Registry.CreateGame")
	defer scope.Finish()

	g := models.NewGame(utils.GenerateUUID(), utils.NewUniverseID(), segment, config, r.clock())
	r.register(g)

	scope.SetAttributes(envelope.GameIDTag, g.ID)
	scope.SetAttributes(envelope.SegmentTag, segment)
	scope.Log.WithField("gameID", g.ID).WithField("segment", segment).Info("game created")
	return g
}

// Game returns the live game with the id.
func (r *Registry) Game(gameID string) (*models.Game, bool) {
	g, ok := r.games[gameID]
	return g, ok
}

// GameOf returns the id of the game the connection plays or observes.
func (r *Registry) GameOf(connID string) (string, bool) {
	gameID, ok := r.gameOf[connID]
	return gameID, ok
}

// GamesInSegment returns the live games of the segment, oldest first.
func (r *Registry) GamesInSegment(segment string) []*models.Game {
	var games []*models.Game
	for _, g := range r.games {
		if g.Segment == segment {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool {
		if !games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].CreatedAt.Before(games[j].CreatedAt)
		}
		return games[i].ID < games[j].ID
	})
	return games
}

func (r *Registry) NumGames() int {
	return len(r.games)
}

// HasPendingWork reports whether any game needs the ticker.
func (r *Registry) HasPendingWork() bool {
	for _, g := range r.games {
		if g.HasPendingWork() {
			return true
		}
	}
	return false
}

func (r *Registry) register(g *models.Game) {
	r.games[g.ID] = g
	for connID := range g.Active {
		r.gameOf[connID] = g.ID
	}
	for connID := range g.Observers {
		r.gameOf[connID] = g.ID
	}
	r.metrics.SetActiveGames(len(r.games))
}

func (r *Registry) unregister(g *models.Game) {
	delete(r.games, g.ID)
	for _, connID := range g.ConnIDs() {
		if r.gameOf[connID] == g.ID {
			delete(r.gameOf, connID)
		}
	}
	r.metrics.SetActiveGames(len(r.games))
}

// newControlKey draws a non-zero key that is not bound in the game.
func (r *Registry) newControlKey(g *models.Game) models.ControlKey {
	for {
		key := models.ControlKey(r.rng.Uint32())
		if key == 0 {
			continue
		}
		if _, taken := g.ControlKeys[key]; !taken {
			return key
		}
	}
}

// bindHero revokes every key of the hero and binds a fresh one.
func (r *Registry) bindHero(g *models.Game, heroID string) models.ControlKey {
	r.revokeHero(g, heroID)
	key := r.newControlKey(g)
	g.ControlKeys[key] = heroID
	return key
}

func (r *Registry) revokeHero(g *models.Game, heroID string) {
	for key, hero := range g.ControlKeys {
		if hero == heroID {
			delete(g.ControlKeys, key)
		}
	}
}

// sortedBots returns bot hero ids in order.
func sortedBots(g *models.Game) []string {
	return pie.Sort(pie.Keys(g.Bots))
}
