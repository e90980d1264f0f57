// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package coordinator owns the session registry. A single goroutine runs Run and applies
// every inbound event and every ticker turn, so nothing below it takes locks. Only the
// persistence of finished games leaves the loop.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/games"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/matchmaker"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/rating"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/ticker"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/transport"
)

const eventBufferSize = 1024

// Hub delivers messages to connections and routes tick packets by subscription.
type Hub interface {
	ticker.Broadcaster
	EmitToConnection(connID string, msg interface{})
	Subscribe(connID, gameID string)
	Unsubscribe(connID string)
}

// Archiver persists finished games.
type Archiver interface {
	SaveGame(ctx context.Context, record models.GameRecord) error
}

// RatingUpdater applies the outcome of a finished game to the ratings of its players.
type RatingUpdater interface {
	Update(rootScope *envelope.Scope, record models.GameRecord) ([]rating.Change, error)
}

type Coordinator struct {
	cfg        *config.Config
	registry   *games.Registry
	matchmaker matchmaker.Matchmaker
	ticker     *ticker.Ticker
	hub        Hub
	archive    Archiver
	ratings    RatingUpdater
	metrics    metrics.SessionMetrics
	clock      func() time.Time

	events      chan func(scope *envelope.Scope)
	done        chan struct{}
	stopOnce    sync.Once
	persistence sync.WaitGroup
}

type Option func(*Coordinator)

// WithClock replaces the wall clock stamped on finished games, mostly used by tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// New builds the coordinator and the ticker it drives. Archive and ratings may be nil.
func New(cfg *config.Config, registry *games.Registry, mm matchmaker.Matchmaker, hub Hub, archive Archiver, ratings RatingUpdater, sessionMetrics metrics.SessionMetrics, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		registry:   registry,
		matchmaker: mm,
		hub:        hub,
		archive:    archive,
		ratings:    ratings,
		metrics:    sessionMetrics,
		clock:      time.Now,
		events:     make(chan func(scope *envelope.Scope), eventBufferSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ticker = ticker.New(cfg, registry, hub, c, c, sessionMetrics)
	return c
}

// Run applies submitted events and ticker turns until the context ends. It waits for
// finished games still being persisted before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	defer func() {
		c.stopOnce.Do(func() { close(c.done) })
		c.ticker.Stop()
		c.persistence.Wait()
	}()

	logScope := envelope.NewRootScope(ctx, "Coordinator.Run", "")
	logScope.Log.WithField("turnPeriod", c.cfg.TurnPeriod()).Info("coordinator started")
	logScope.Finish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.events:
			scope := envelope.NewRootScope(ctx, "Coordinator.Event", "")
			fn(scope)
			c.ticker.Wake()
			scope.Finish()
		case <-c.ticker.C():
			scope := envelope.NewRootScope(ctx, "Coordinator.Turn", "")
			c.ticker.Turn(scope)
			scope.Finish()
		}
	}
}

// Submit queues fn to run on the event loop. It reports false once the loop has stopped.
func (c *Coordinator) Submit(fn func(scope *envelope.Scope)) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// HandleEvent queues a transport event for the event loop.
func (c *Coordinator) HandleEvent(scope *envelope.Scope, event transport.Event) {
	if !c.Submit(func(loopScope *envelope.Scope) {
		c.Handle(loopScope, event)
	}) {
		scope.Log.WithField("event", event.Type()).Debug("coordinator stopped, event discarded")
	}
}

// GameClosed lets the matchmaker rebalance a game once it stops accepting players.
func (c *Coordinator) GameClosed(rootScope *envelope.Scope, gameID string) {
	scope := rootScope.NewChildScope("Coordinator.GameClosed")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, gameID)

	decision, err := c.matchmaker.ChooseTeams(scope, gameID)
	if err != nil {
		scope.Log.WithError(err).WithField("gameID", gameID).Warn("unable to rebalance closed game")
		return
	}
	scope.Log.WithField("gameID", gameID).WithField("decision", decision.Kind).Debug("closed game rebalanced")
	if decision.Split != nil {
		c.notifySplit(scope, decision.Split, "")
	}
}

// GameFinished releases the connections of a finished game and persists it in the background.
func (c *Coordinator) GameFinished(rootScope *envelope.Scope, g *models.Game) {
	scope := rootScope.NewChildScope("Coordinator.GameFinished")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, g.ID)

	connOf := make(map[string]string, len(g.Active))
	for connID, p := range g.Active {
		if p.UserID != "" {
			connOf[p.UserID] = connID
		}
	}
	for _, connID := range g.ConnIDs() {
		c.hub.Unsubscribe(connID)
	}

	record := models.NewGameRecord(g, c.clock())
	scope.Log.WithField("gameID", g.ID).
		WithField("numTicks", record.NumTicks).
		WithField("corroborated", record.Corroborated()).
		Info("game finished")

	c.persistence.Add(1)
	go func() {
		defer c.persistence.Done()
		c.persist(scope.TraceID, record, connOf)
	}()
}

func (c *Coordinator) persist(traceID string, record models.GameRecord, connOf map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ArchiveTimeout)
	defer cancel()
	scope := envelope.NewRootScope(ctx, "Coordinator.Persist", traceID)
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, record.GameID)

	if c.archive != nil {
		if err := c.archive.SaveGame(scope.Ctx, record); err != nil {
			scope.Log.WithError(err).WithField("gameID", record.GameID).Error("unable to archive game")
		}
	}
	if c.ratings == nil {
		return
	}
	changes, err := c.ratings.Update(scope, record)
	if err != nil {
		scope.Log.WithError(err).WithField("gameID", record.GameID).Error("unable to update ratings")
		return
	}
	for _, change := range changes {
		connID, ok := connOf[change.UserID]
		if !ok {
			continue
		}
		c.hub.EmitToConnection(connID, transport.Message{Type: MessageRatingChanged, Payload: RatingChanged{
			GameID:   record.GameID,
			Category: record.Category,
			Ranked:   record.Ranked,
			Delta:    change.Delta,
			Rating:   change.Rating,
		}})
	}
}

// Wait blocks until finished games handed to the background are persisted.
func (c *Coordinator) Wait() {
	c.persistence.Wait()
}
