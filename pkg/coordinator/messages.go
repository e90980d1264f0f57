// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package coordinator

import (
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/transport"
)

// outbound message types.
const (
	MessageJoined        = "joined"
	MessageJoinFailed    = "joinFailed"
	MessageSplit         = "split"
	MessageBotControl    = "botControl"
	MessageParty         = "party"
	MessagePartyLeft     = "partyLeft"
	MessageRatingChanged = "ratingChanged"
)

type JoinFailed struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func joinFailed(err error) transport.Message {
	return transport.Message{Type: MessageJoinFailed, Payload: JoinFailed{Code: models.JoinErrorCode(err), Message: err.Error()}}
}

// SplitNotice tells a connection which fork of its game it continues in. Observers get no hero.
type SplitNotice struct {
	ParentID   string            `json:"parentId"`
	GameID     string            `json:"gameId"`
	UniverseID string            `json:"universeId"`
	Tick       int64             `json:"tick"`
	HeroID     string            `json:"heroId,omitempty"`
	ControlKey models.ControlKey `json:"controlKey,omitempty"`
}

type BotControl struct {
	GameID     string            `json:"gameId"`
	HeroID     string            `json:"heroId"`
	ControlKey models.ControlKey `json:"controlKey"`
}

// PartyState is a snapshot of a party sent to each of its members.
type PartyState struct {
	PartyID      string               `json:"partyId"`
	RoomID       string               `json:"roomId"`
	LeaderConnID string               `json:"leaderConnId"`
	Version      int                  `json:"version"`
	Members      []models.PartyMember `json:"members"`
}

func partyState(party *models.Party) PartyState {
	return PartyState{
		PartyID:      party.ID,
		RoomID:       party.RoomID,
		LeaderConnID: party.LeaderConnID,
		Version:      party.Version,
		Members:      party.SortedMembers(),
	}
}

type RatingChanged struct {
	GameID   string  `json:"gameId"`
	Category string  `json:"category"`
	Ranked   bool    `json:"ranked"`
	Delta    float64 `json:"delta"`
	Rating   float64 `json:"rating"`
}
