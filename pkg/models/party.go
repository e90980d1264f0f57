// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"sort"
	"time"
)

// PartyMember is a connection waiting in a party.
type PartyMember struct {
	ConnID     string    `json:"connId"`
	UserID     string    `json:"userId,omitempty"`
	Name       string    `json:"name"`
	Rating     float64   `json:"rating"`
	Ready      bool      `json:"ready"`
	IsObserver bool      `json:"isObserver"`
	Team       int       `json:"team"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Party is a waiting room. Once every player is ready the members are moved into a game
// of the party's private segment.
type Party struct {
	ID           string                  `json:"id"`
	RoomID       string                  `json:"roomId"`
	LeaderConnID string                  `json:"leaderConnId"`
	Members      map[string]*PartyMember `json:"members"`
	Version      int                     `json:"version"`
	CreatedAt    time.Time               `json:"createdAt"`
}

func NewParty(id, roomID string, leader PartyMember, now time.Time) *Party {
	leader.JoinedAt = now
	return &Party{
		ID:           id,
		RoomID:       roomID,
		LeaderConnID: leader.ConnID,
		Members:      map[string]*PartyMember{leader.ConnID: &leader},
		CreatedAt:    now,
	}
}

// SortedMembers returns members in the order they joined.
func (p *Party) SortedMembers() []PartyMember {
	members := make([]PartyMember, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ConnID < members[j].ConnID
	})
	return members
}

// IsReady reports the ready quorum: at least one player and every player ready.
func (p *Party) IsReady() bool {
	numPlayers := 0
	for _, m := range p.Members {
		if m.IsObserver {
			continue
		}
		if !m.Ready {
			return false
		}
		numPlayers++
	}
	return numPlayers > 0
}
