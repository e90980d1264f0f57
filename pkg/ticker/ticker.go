// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package ticker advances every live game at a fixed rate and hands the resulting tick packets
// to the transport. It runs on the event loop that owns the registry: the loop selects on C()
// and calls Turn, and calls Wake after queueing input.
package ticker

import (
	"time"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/games"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

// Broadcaster delivers the packets of a game to its subscribers in order.
type Broadcaster interface {
	EmitToSession(gameID string, packets []models.TickPacket)
}

// Finisher takes ownership of games that finished and were unregistered.
type Finisher interface {
	GameFinished(rootScope *envelope.Scope, g *models.Game)
}

// CloseHandler is told when a game stops accepting new players.
type CloseHandler interface {
	GameClosed(rootScope *envelope.Scope, gameID string)
}

type Ticker struct {
	registry     *games.Registry
	broadcaster  Broadcaster
	finisher     Finisher
	closeHandler CloseHandler
	metrics      metrics.SessionMetrics

	period       time.Duration
	ticksPerTurn int
	timer        *time.Ticker
}

func New(cfg *config.Config, registry *games.Registry, broadcaster Broadcaster, finisher Finisher, closeHandler CloseHandler, sessionMetrics metrics.SessionMetrics) *Ticker {
	return &Ticker{
		registry:     registry,
		broadcaster:  broadcaster,
		finisher:     finisher,
		closeHandler: closeHandler,
		metrics:      sessionMetrics,
		period:       cfg.TurnPeriod(),
		ticksPerTurn: cfg.TicksPerTurn,
	}
}

// C fires once per turn while there is work. It is nil, and blocks forever in a select,
// while the ticker is disabled.
func (t *Ticker) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.C
}

func (t *Ticker) Enabled() bool {
	return t.timer != nil
}

// Wake enables the timer when some game has work to do.
func (t *Ticker) Wake() {
	if t.timer == nil && t.registry.HasPendingWork() {
		t.timer = time.NewTicker(t.period)
	}
}

func (t *Ticker) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Turn advances every game by one turn and dispatches the outcome: packets to the broadcaster,
// closed games to the close handler and finished games to the finisher. The timer is disabled
// once no game has work left.
func (t *Ticker) Turn(rootScope *envelope.Scope) games.TurnResult {
	scope := rootScope.NewChildScope("Ticker.Turn")
	defer scope.Finish()

	start := time.Now()
	result := t.registry.AdvanceTurn(scope, t.ticksPerTurn)

	for _, emission := range result.Emissions {
		t.broadcaster.EmitToSession(emission.GameID, emission.Packets)
	}
	if t.closeHandler != nil {
		for _, gameID := range result.Closed {
			t.closeHandler.GameClosed(scope, gameID)
		}
	}
	if t.finisher != nil {
		for _, g := range result.Finished {
			t.finisher.GameFinished(scope, g)
		}
	}

	elapsed := time.Since(start)
	t.metrics.ObserveTurnDuration(elapsed)
	if budget := time.Duration(float64(t.period) * constants.TurnBudgetWarnRatio); elapsed > budget {
		t.metrics.AddTurnOverrun()
		scope.Log.WithField("elapsed", elapsed).
			WithField("period", t.period).
			WithField("numGames", t.registry.NumGames()).
			Warn("turn took longer than its budget")
	}

	if !t.registry.HasPendingWork() {
		t.Stop()
	}
	return result
}
