// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package games

import (
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/mathutil"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

// QueueAction queues the action for the next tick on behalf of the hero its control key is bound to.
// Actions with an unbound key are dropped: they come from a client that lost control of its hero.
// A queued action is only replaced by one of equal or higher precedence.
func (r *Registry) QueueAction(rootScope *envelope.Scope, gameID string, action models.Action) bool {
	g, ok := r.games[gameID]
	if !ok {
		r.dropAction(rootScope, gameID, action, constants.DropReasonGameNotFound)
		return false
	}
	if g.Finished {
		r.dropAction(rootScope, gameID, action, constants.DropReasonFinished)
		return false
	}
	heroID, ok := g.ControlKeys[action.ControlKey]
	if !ok || (action.HeroID != "" && action.HeroID != heroID) || !action.Type.Valid() {
		r.dropAction(rootScope, gameID, action, constants.DropReasonStaleControlKey)
		return false
	}
	action.HeroID = heroID

	if queued, ok := g.Actions[heroID]; ok && models.ComparePrecedence(action, queued) < 0 {
		r.dropAction(rootScope, gameID, action, constants.DropReasonLowerPrecedence)
		return false
	}
	g.Actions[heroID] = action

	if action.Type == models.ActionSpell {
		g.CloseTick = mathutil.Min(g.CloseTick, g.Tick+g.Config.JoinPeriodTicks)
	}
	if _, isBot := g.Bots[heroID]; !isBot {
		g.ActiveTick = g.Tick
		if p, ok := g.PlayerByHero(heroID); ok {
			p.NumActionMessages++
		}
	}
	return true
}

func (r *Registry) dropAction(scope *envelope.Scope, gameID string, action models.Action, reason string) {
	r.metrics.AddDroppedAction(reason)
	scope.Log.WithField("gameID", gameID).
		WithField("heroID", action.HeroID).
		WithField("actionType", action.Type).
		WithField("reason", reason).
		Debug("action dropped")
}

// QueueControlMessage queues the message for the next tick.
func (r *Registry) QueueControlMessage(rootScope *envelope.Scope, gameID string, msg models.ControlMessage) bool {
	g, ok := r.games[gameID]
	if !ok {
		return false
	}
	if err := msg.Validate(); err != nil {
		rootScope.Log.WithError(err).WithField("gameID", gameID).Debug("invalid control message")
		return false
	}
	g.ControlMessages = append(g.ControlMessages, msg)
	return true
}

// QueueSync stores a world snapshot sent by a player. Only the latest snapshot of a tick is kept.
func (r *Registry) QueueSync(rootScope *envelope.Scope, gameID, connID string, snapshot models.SyncSnapshot) bool {
	g, ok := r.games[gameID]
	if !ok || g.Finished {
		return false
	}
	if _, active := g.Active[connID]; !active {
		return false
	}
	g.Sync = &snapshot
	return true
}

// AssignTeams records the teams and announces them in the next tick.
func (r *Registry) AssignTeams(rootScope *envelope.Scope, gameID string, teams [][]string) bool {
	g, ok := r.games[gameID]
	if !ok || g.Finished {
		return false
	}
	msg := models.NewTeamsMessage(teams)
	if err := msg.Validate(); err != nil {
		return false
	}
	for _, team := range teams {
		for _, heroID := range team {
			if _, ok := g.Heroes[heroID]; !ok {
				return false
			}
		}
	}

	msg.Teams = copyTeams(teams)
	g.Teams = copyTeams(teams)
	g.ControlMessages = append(g.ControlMessages, msg)
	rootScope.Log.WithField("gameID", gameID).WithField("numTeams", len(teams)).Info("teams assigned")
	return true
}

func copyTeams(teams [][]string) [][]string {
	copied := make([][]string, len(teams))
	for i, team := range teams {
		copied[i] = append([]string(nil), team...)
	}
	return copied
}
