// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package coordinator

import (
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/games"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/matchmaker"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/transport"
)

// Handle applies one event. It must run on the event loop.
func (c *Coordinator) Handle(rootScope *envelope.Scope, event transport.Event) {
	scope := rootScope.NewChildScope("Coordinator.Handle")
	defer scope.Finish()
	scope.SetAttributes(envelope.ConnectionTag, event.Conn())

	switch e := event.(type) {
	case transport.JoinEvent:
		c.join(scope, e)
	case transport.ObserveEvent:
		c.observe(scope, e)
	case transport.ActionEvent:
		if gameID, ok := c.gameOf(scope, e.Conn()); ok {
			c.registry.QueueAction(scope, gameID, e.Action())
		} else {
			c.metrics.AddDroppedAction(constants.DropReasonGameNotFound)
		}
	case transport.LeaveEvent:
		c.leaveGame(scope, e.Conn())
	case transport.ScoreEvent:
		if gameID, ok := c.gameOf(scope, e.Conn()); ok {
			c.registry.ReceiveScore(scope, gameID, e.Conn(), e.Report)
		}
	case transport.SyncEvent:
		if gameID, ok := c.gameOf(scope, e.Conn()); ok {
			c.registry.QueueSync(scope, gameID, e.Conn(), e.Snapshot)
		}
	case transport.BotsEvent:
		if gameID, ok := c.gameOf(scope, e.Conn()); ok {
			c.registry.AddBots(scope, gameID, e.Conn())
		}
	case transport.TakeBotEvent:
		c.takeBot(scope, e)
	case transport.PartyCreateEvent:
		roomID := e.RoomID
		if roomID == "" {
			roomID = constants.DefaultRoomID
		}
		party := c.registry.CreateParty(scope, roomID, models.PartyMember{ConnID: e.Conn(), UserID: e.UserID, Name: e.Name, Rating: e.Rating})
		c.emitParty(party)
	case transport.PartyJoinEvent:
		previous, _ := c.registry.PartyOf(e.Conn())
		party, err := c.registry.JoinParty(scope, e.PartyID, models.PartyMember{ConnID: e.Conn(), UserID: e.UserID, Name: e.Name, Rating: e.Rating})
		if err != nil {
			c.hub.EmitToConnection(e.Conn(), joinFailed(err))
			return
		}
		if previous != "" && previous != party.ID {
			c.emitPartyByID(previous)
		}
		c.emitParty(party)
	case transport.PartyUpdateEvent:
		c.updateParty(scope, e)
	case transport.PartyLeaveEvent:
		c.leaveParty(scope, e.PartyID, e.Conn())
	case transport.PartyStartEvent:
		c.startParty(scope, e)
	case transport.DisconnectEvent:
		c.leaveGame(scope, e.Conn())
		if partyID, ok := c.registry.PartyOf(e.Conn()); ok {
			c.leaveParty(scope, partyID, e.Conn())
		}
		c.hub.Unsubscribe(e.Conn())
	default:
		scope.Log.WithField("event", event.Type()).Warn("unhandled event")
	}
}

func (c *Coordinator) gameOf(scope *envelope.Scope, connID string) (string, bool) {
	gameID, ok := c.registry.GameOf(connID)
	if !ok {
		scope.Log.WithField("connID", connID).Debug("connection is not in a game")
	}
	return gameID, ok
}

func (c *Coordinator) join(scope *envelope.Scope, e transport.JoinEvent) {
	if gameID, ok := c.registry.GameOf(e.Conn()); ok && gameID != e.ReconnectGameID {
		c.leaveGame(scope, e.Conn())
	}

	placement, err := c.matchmaker.FindNewGame(scope, matchmaker.JoinRequest{
		ConnID:          e.Conn(),
		UserID:          e.UserID,
		Name:            e.Name,
		Rating:          e.Rating,
		RoomID:          e.RoomID,
		Category:        e.Category,
		Ranked:          e.Ranked,
		ReconnectGameID: e.ReconnectGameID,
		ReconnectKey:    e.ReconnectKey,
	})
	if err != nil {
		c.hub.EmitToConnection(e.Conn(), joinFailed(err))
		return
	}
	if placement.Split != nil {
		c.notifySplit(scope, placement.Split, e.Conn())
	}
	c.joined(e.Conn(), placement.Result)
}

func (c *Coordinator) observe(scope *envelope.Scope, e transport.ObserveEvent) {
	if gameID, ok := c.registry.GameOf(e.Conn()); ok && gameID != e.GameID {
		c.leaveGame(scope, e.Conn())
	}
	result, err := c.registry.Observe(scope, e.GameID, games.ObserveParams{ConnID: e.Conn(), UserID: e.UserID, Name: e.Name})
	if err != nil {
		c.hub.EmitToConnection(e.Conn(), joinFailed(err))
		return
	}
	c.metrics.AddJoinOutcome(constants.CategoryPvP, constants.JoinOutcomeObserved)
	c.joined(e.Conn(), result)
}

func (c *Coordinator) joined(connID string, result *games.JoinResult) {
	c.hub.Subscribe(connID, result.GameID)
	c.hub.EmitToConnection(connID, transport.Message{Type: MessageJoined, Payload: result})
}

// leaveGame removes the connection from its game. Its hero is handed to a bot.
func (c *Coordinator) leaveGame(scope *envelope.Scope, connID string) {
	gameID, ok := c.registry.GameOf(connID)
	if !ok {
		return
	}
	c.registry.Leave(scope, gameID, connID, true)
	c.hub.Unsubscribe(connID)
}

func (c *Coordinator) takeBot(scope *envelope.Scope, e transport.TakeBotEvent) {
	gameID, ok := c.gameOf(scope, e.Conn())
	if !ok {
		return
	}
	key, ok := c.registry.TakeBotControl(scope, gameID, e.HeroID, e.Conn())
	if !ok {
		scope.Log.WithField("gameID", gameID).WithField("heroID", e.HeroID).Debug("bot control refused")
		return
	}
	c.hub.EmitToConnection(e.Conn(), transport.Message{Type: MessageBotControl, Payload: BotControl{GameID: gameID, HeroID: e.HeroID, ControlKey: key}})
}

// notifySplit moves the subscriptions of every connection of the forks and tells all but skip
// where they continue.
func (c *Coordinator) notifySplit(scope *envelope.Scope, split *matchmaker.Split, skip string) {
	for _, fork := range split.Forks {
		for _, connID := range fork.ConnIDs() {
			c.hub.Subscribe(connID, fork.ID)
			if connID == skip {
				continue
			}
			notice := SplitNotice{ParentID: split.ParentID, GameID: fork.ID, UniverseID: fork.UniverseID, Tick: fork.Tick}
			if p, ok := fork.Active[connID]; ok {
				notice.HeroID = p.HeroID
				notice.ControlKey, _ = fork.ControlKeyOf(p.HeroID)
			}
			c.hub.EmitToConnection(connID, transport.Message{Type: MessageSplit, Payload: notice})
		}
	}
	scope.Log.WithField("parentID", split.ParentID).WithField("numForks", len(split.Forks)).Debug("split announced")
}

func (c *Coordinator) updateParty(scope *envelope.Scope, e transport.PartyUpdateEvent) {
	memberID := e.MemberConnID
	if memberID == "" {
		memberID = e.Conn()
	}
	party, err := c.registry.UpdatePartyMember(scope, e.PartyID, e.Conn(), models.PartyMember{
		ConnID:     memberID,
		Name:       e.Name,
		Ready:      e.Ready,
		IsObserver: e.IsObserver,
		Team:       e.Team,
	})
	if err != nil {
		c.hub.EmitToConnection(e.Conn(), joinFailed(err))
		return
	}
	c.emitParty(party)
}

func (c *Coordinator) leaveParty(scope *envelope.Scope, partyID, connID string) {
	party, exists := c.registry.LeaveParty(scope, partyID, connID)
	c.hub.EmitToConnection(connID, transport.Message{Type: MessagePartyLeft, Payload: map[string]string{"partyId": partyID}})
	if exists {
		c.emitParty(party)
	}
}

func (c *Coordinator) startParty(scope *envelope.Scope, e transport.PartyStartEvent) {
	party, ok := c.registry.Party(e.PartyID)
	if ok && party.LeaderConnID == e.Conn() && party.IsReady() {
		for connID := range party.Members {
			c.leaveGame(scope, connID)
		}
	}

	placements, err := c.matchmaker.StartParty(scope, e.PartyID, e.Conn())
	if err != nil {
		c.hub.EmitToConnection(e.Conn(), joinFailed(err))
		return
	}
	for _, placement := range placements {
		if placement.Err != nil {
			c.hub.EmitToConnection(placement.ConnID, joinFailed(placement.Err))
			continue
		}
		c.joined(placement.ConnID, placement.Result)
	}
	c.emitParty(party)
}

func (c *Coordinator) emitParty(party *models.Party) {
	state := partyState(party)
	for _, m := range state.Members {
		c.hub.EmitToConnection(m.ConnID, transport.Message{Type: MessageParty, Payload: state})
	}
}

func (c *Coordinator) emitPartyByID(partyID string) {
	if party, ok := c.registry.Party(partyID); ok {
		c.emitParty(party)
	}
}
