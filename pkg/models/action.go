// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"cmp"
	"encoding/json"
	"fmt"

	"github.com/go-openapi/swag"
)

// ControlKey binds the inbound messages of one connection to exactly one hero.
type ControlKey uint32

// ActionType is the closed set of per-hero actions.
//
// Precedence order, lowest first: move < retarget < spell < stop.
// A queued action is only replaced by an action of equal or higher precedence.
type ActionType string

const (
	ActionMove     ActionType = "move"
	ActionRetarget ActionType = "retarget"
	ActionSpell    ActionType = "spell"
	ActionStop     ActionType = "stop"
)

// Precedence returns the rank of the action type, 0 for unknown types.
func (t ActionType) Precedence() int {
	switch t {
	case ActionMove:
		return 1
	case ActionRetarget:
		return 2
	case ActionSpell:
		return 3
	case ActionStop:
		return 4
	}
	return 0
}

func (t ActionType) Valid() bool {
	return t.Precedence() > 0
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Action is one hero input queued for the next tick.
type Action struct {
	HeroID     string     `json:"heroId"`
	ControlKey ControlKey `json:"-"`
	Type       ActionType `json:"type"`
	SpellID    string     `json:"spellId,omitempty"`
	Target     *Vec2      `json:"target,omitempty"`
}

// ComparePrecedence orders two actions by the precedence of their type.
func ComparePrecedence(a, b Action) int {
	return cmp.Compare(a.Type.Precedence(), b.Type.Precedence())
}

// ControlType is the closed set of control messages broadcast inside tick packets.
type ControlType string

const (
	ControlJoin   ControlType = "join"
	ControlLeave  ControlType = "leave"
	ControlBot    ControlType = "bot"
	ControlTeams  ControlType = "teams"
	ControlClose  ControlType = "close"
	ControlFinish ControlType = "finish"
)

// ControlMessage is a membership or lifecycle change. Only the fields of its Type are set.
type ControlMessage struct {
	Type       ControlType `json:"type"`
	HeroID     string      `json:"heroId,omitempty"`
	ControlKey ControlKey  `json:"controlKey,omitempty"`
	UserID     string      `json:"userId,omitempty"`
	Name       string      `json:"name,omitempty"`
	Rating     *float64    `json:"rating,omitempty"`
	Teams      [][]string  `json:"teams,omitempty"`
	CloseTick  *int64      `json:"closeTick,omitempty"`
}

func NewJoinMessage(hero Hero, key ControlKey) ControlMessage {
	return ControlMessage{
		Type:       ControlJoin,
		HeroID:     hero.HeroID,
		ControlKey: key,
		UserID:     hero.UserID,
		Name:       hero.Name,
		Rating:     swag.Float64(hero.Rating),
	}
}

func NewLeaveMessage(heroID string) ControlMessage {
	return ControlMessage{Type: ControlLeave, HeroID: heroID}
}

func NewBotMessage(heroID string, key ControlKey) ControlMessage {
	return ControlMessage{Type: ControlBot, HeroID: heroID, ControlKey: key}
}

func NewTeamsMessage(teams [][]string) ControlMessage {
	return ControlMessage{Type: ControlTeams, Teams: teams}
}

func NewCloseMessage(closeTick int64) ControlMessage {
	return ControlMessage{Type: ControlClose, CloseTick: swag.Int64(closeTick)}
}

func NewFinishMessage() ControlMessage {
	return ControlMessage{Type: ControlFinish}
}

// Validate checks that the fields required by the message type are present.
func (m ControlMessage) Validate() error {
	switch m.Type {
	case ControlJoin, ControlBot:
		if m.HeroID == "" || m.ControlKey == 0 {
			return fmt.Errorf("%s message requires hero and control key", m.Type)
		}
	case ControlLeave:
		if m.HeroID == "" {
			return fmt.Errorf("%s message requires hero", m.Type)
		}
	case ControlTeams:
		if len(m.Teams) < 2 {
			return fmt.Errorf("%s message requires at least two teams", m.Type)
		}
	case ControlClose:
		if m.CloseTick == nil {
			return fmt.Errorf("%s message requires close tick", m.Type)
		}
	case ControlFinish:
	default:
		return fmt.Errorf("unknown control message type %q", m.Type)
	}
	return nil
}

// SyncSnapshot is a client-provided world snapshot. Its payload is opaque to the coordinator.
type SyncSnapshot struct {
	Tick    int64           `json:"tick"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TickPacket is everything that happened in one tick. Empty payload fields are omitted.
type TickPacket struct {
	UniverseID      string           `json:"universeId"`
	Tick            int64            `json:"tick"`
	ControlMessages []ControlMessage `json:"controlMessages,omitempty"`
	Actions         []Action         `json:"actions,omitempty"`
	SyncSnapshot    *SyncSnapshot    `json:"syncSnapshot,omitempty"`
}

// IsEmpty reports whether the packet carries no payload.
func (p TickPacket) IsEmpty() bool {
	return len(p.ControlMessages) == 0 && len(p.Actions) == 0 && p.SyncSnapshot == nil
}
