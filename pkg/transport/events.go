// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownEvent     = errors.New("unknown event type")
)

// EventType is the closed set of messages a client can send.
type EventType string

const (
	EventJoin        EventType = "join"
	EventObserve     EventType = "observe"
	EventAction      EventType = "action"
	EventLeave       EventType = "leave"
	EventScore       EventType = "score"
	EventSync        EventType = "sync"
	EventBots        EventType = "bots"
	EventTakeBot     EventType = "takeBot"
	EventPartyCreate EventType = "party.create"
	EventPartyJoin   EventType = "party.join"
	EventPartyUpdate EventType = "party.update"
	EventPartyLeave  EventType = "party.leave"
	EventPartyStart  EventType = "party.start"

	// EventDisconnect is raised by the hub when a connection goes away.
	EventDisconnect EventType = "disconnect"
)

// Event is a decoded inbound message. Every event names the connection it came from.
type Event interface {
	Type() EventType
	Conn() string
}

type ConnEvent struct {
	ConnID string `json:"-"`
}

func (e ConnEvent) Conn() string {
	return e.ConnID
}

type JoinEvent struct {
	ConnEvent
	UserID          string  `json:"userId"`
	Name            string  `json:"name"`
	Rating          float64 `json:"rating"`
	RoomID          string  `json:"roomId"`
	Category        string  `json:"category"`
	Ranked          bool    `json:"ranked"`
	ReconnectGameID string  `json:"reconnectGameId"`
	ReconnectKey    string  `json:"reconnectKey"`
}

func (JoinEvent) Type() EventType { return EventJoin }

type ObserveEvent struct {
	ConnEvent
	GameID string `json:"gameId"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

func (ObserveEvent) Type() EventType { return EventObserve }

// ActionEvent carries the control key on the wire, unlike models.Action which never echoes it.
type ActionEvent struct {
	ConnEvent
	ControlKey models.ControlKey `json:"controlKey"`
	HeroID     string            `json:"heroId"`
	ActionType models.ActionType `json:"type"`
	SpellID    string            `json:"spellId"`
	Target     *models.Vec2      `json:"target"`
}

func (ActionEvent) Type() EventType { return EventAction }

func (e ActionEvent) Action() models.Action {
	return models.Action{
		HeroID:     e.HeroID,
		ControlKey: e.ControlKey,
		Type:       e.ActionType,
		SpellID:    e.SpellID,
		Target:     e.Target,
	}
}

type LeaveEvent struct {
	ConnEvent
}

func (LeaveEvent) Type() EventType { return EventLeave }

type ScoreEvent struct {
	ConnEvent
	Report models.ScoreReport `json:"report"`
}

func (ScoreEvent) Type() EventType { return EventScore }

type SyncEvent struct {
	ConnEvent
	Snapshot models.SyncSnapshot `json:"snapshot"`
}

func (SyncEvent) Type() EventType { return EventSync }

type BotsEvent struct {
	ConnEvent
}

func (BotsEvent) Type() EventType { return EventBots }

type TakeBotEvent struct {
	ConnEvent
	HeroID string `json:"heroId"`
}

func (TakeBotEvent) Type() EventType { return EventTakeBot }

type PartyCreateEvent struct {
	ConnEvent
	RoomID string  `json:"roomId"`
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

func (PartyCreateEvent) Type() EventType { return EventPartyCreate }

type PartyJoinEvent struct {
	ConnEvent
	PartyID string  `json:"partyId"`
	UserID  string  `json:"userId"`
	Name    string  `json:"name"`
	Rating  float64 `json:"rating"`
}

func (PartyJoinEvent) Type() EventType { return EventPartyJoin }

// PartyUpdateEvent changes the flags of MemberConnID, the sender itself when empty.
type PartyUpdateEvent struct {
	ConnEvent
	PartyID      string `json:"partyId"`
	MemberConnID string `json:"memberConnId"`
	Name         string `json:"name"`
	Ready        bool   `json:"ready"`
	IsObserver   bool   `json:"isObserver"`
	Team         int    `json:"team"`
}

func (PartyUpdateEvent) Type() EventType { return EventPartyUpdate }

type PartyLeaveEvent struct {
	ConnEvent
	PartyID string `json:"partyId"`
}

func (PartyLeaveEvent) Type() EventType { return EventPartyLeave }

type PartyStartEvent struct {
	ConnEvent
	PartyID string `json:"partyId"`
}

func (PartyStartEvent) Type() EventType { return EventPartyStart }

type DisconnectEvent struct {
	ConnEvent
}

func (DisconnectEvent) Type() EventType { return EventDisconnect }

func NewDisconnectEvent(connID string) DisconnectEvent {
	return DisconnectEvent{ConnEvent{ConnID: connID}}
}

type inbound struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one inbound frame of the connection into its typed event.
func Decode(connID string, frame []byte) (Event, error) {
	var env inbound
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	base := ConnEvent{ConnID: connID}

	switch env.Type {
	case EventJoin:
		return decodePayload(env.Payload, &JoinEvent{ConnEvent: base})
	case EventObserve:
		return decodePayload(env.Payload, &ObserveEvent{ConnEvent: base})
	case EventAction:
		action := ActionEvent{ConnEvent: base}
		if _, err := decodePayload(env.Payload, &action); err != nil {
			return nil, err
		}
		if !action.ActionType.Valid() {
			return nil, fmt.Errorf("%w: action type %q", ErrMalformedMessage, action.ActionType)
		}
		return action, nil
	case EventLeave:
		return decodePayload(env.Payload, &LeaveEvent{ConnEvent: base})
	case EventScore:
		return decodePayload(env.Payload, &ScoreEvent{ConnEvent: base})
	case EventSync:
		return decodePayload(env.Payload, &SyncEvent{ConnEvent: base})
	case EventBots:
		return decodePayload(env.Payload, &BotsEvent{ConnEvent: base})
	case EventTakeBot:
		return decodePayload(env.Payload, &TakeBotEvent{ConnEvent: base})
	case EventPartyCreate:
		return decodePayload(env.Payload, &PartyCreateEvent{ConnEvent: base})
	case EventPartyJoin:
		return decodePayload(env.Payload, &PartyJoinEvent{ConnEvent: base})
	case EventPartyUpdate:
		return decodePayload(env.Payload, &PartyUpdateEvent{ConnEvent: base})
	case EventPartyLeave:
		return decodePayload(env.Payload, &PartyLeaveEvent{ConnEvent: base})
	case EventPartyStart:
		return decodePayload(env.Payload, &PartyStartEvent{ConnEvent: base})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
}

func decodePayload[E Event](payload json.RawMessage, event *E) (Event, error) {
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, event); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
	}
	return *event, nil
}

// Message is an outbound frame.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// TickMessage carries the packets of one game, in tick order.
type TickMessage struct {
	GameID  string              `json:"gameId"`
	Packets []models.TickPacket `json:"packets"`
}

const (
	MessageWelcome = "welcome"
	MessageTick    = "tick"
)
