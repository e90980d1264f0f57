// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package games

import (
	"sort"

	"github.com/elliotchance/pie/v2"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

// Emission is the packets one game produced in a turn, in tick order.
type Emission struct {
	GameID  string
	Packets []models.TickPacket
}

type TurnResult struct {
	Emissions []Emission
	// Closed lists the games whose join window closed during the turn.
	Closed []string
	// Finished games are already unregistered and owned by the caller.
	Finished []*models.Game
}

// AdvanceTurn advances every game by up to ticksPerTurn ticks. Idle games are not advanced but
// are still checked for having lost all their players. Each advanced tick yields exactly one
// packet holding everything queued before it.
func (r *Registry) AdvanceTurn(rootScope *envelope.Scope, ticksPerTurn int) TurnResult {
	scope := rootScope.NewChildScope("Registry.AdvanceTurn")
	defer scope.Finish()
	scope.SetAttributes(envelope.NumGamesTag, len(r.games))

	var result TurnResult
	for _, gameID := range pie.Sort(pie.Keys(r.games)) {
		g := r.games[gameID]
		packets, closed := r.advanceGame(scope, g, ticksPerTurn)
		if len(packets) > 0 {
			result.Emissions = append(result.Emissions, Emission{GameID: g.ID, Packets: packets})
		}
		if closed {
			result.Closed = append(result.Closed, g.ID)
		}
		if g.Finished {
			r.unregister(g)
			result.Finished = append(result.Finished, g)
		}
	}
	return result
}

func (r *Registry) advanceGame(scope *envelope.Scope, g *models.Game, ticksPerTurn int) ([]models.TickPacket, bool) {
	if !g.HasPendingWork() {
		r.checkFinish(scope, g)
		if !g.HasPendingWork() {
			return nil, false
		}
	}

	packets := make([]models.TickPacket, 0, ticksPerTurn)
	closed := false
	for i := 0; i < ticksPerTurn; i++ {
		g.Tick++
		if g.Joinable && g.Tick >= g.CloseTick {
			g.Joinable = false
			closed = true
			g.ControlMessages = append(g.ControlMessages, models.NewCloseMessage(g.CloseTick))
		}
		r.checkFinish(scope, g)

		packet := r.assemblePacket(g)
		r.appendHistory(scope, g, packet)
		packets = append(packets, packet)
		if g.Finished {
			break
		}
	}
	return packets, closed
}

// assemblePacket drains the queues of the game into the packet of its current tick.
func (r *Registry) assemblePacket(g *models.Game) models.TickPacket {
	packet := models.TickPacket{UniverseID: g.UniverseID, Tick: g.Tick}

	if len(g.ControlMessages) > 0 {
		packet.ControlMessages = g.ControlMessages
		g.ControlMessages = nil
	}

	if len(g.Actions) > 0 {
		heroIDs := r.pool.HeroIDs.Get()[:0]
		for heroID := range g.Actions {
			heroIDs = append(heroIDs, heroID)
		}
		sort.Strings(heroIDs)

		packet.Actions = make([]models.Action, 0, len(heroIDs))
		for _, heroID := range heroIDs {
			packet.Actions = append(packet.Actions, g.Actions[heroID])
		}
		r.pool.HeroIDs.Put(heroIDs)
		clear(g.Actions)
	}

	packet.SyncSnapshot = g.Sync
	g.Sync = nil
	return packet
}

func (r *Registry) appendHistory(scope *envelope.Scope, g *models.Game, packet models.TickPacket) {
	if g.HistoryExceeded {
		return
	}
	if len(g.History) >= g.Config.MaxHistoryLength {
		g.HistoryExceeded = true
		g.Joinable = false
		scope.Log.WithField("gameID", g.ID).
			WithField("tick", g.Tick).
			Warn("tick history exceeded, game closed to new players")
		return
	}
	g.History = append(g.History, packet)
}
