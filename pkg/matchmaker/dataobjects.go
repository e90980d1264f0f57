// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaker

import (
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/games"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/rebalance"
)

// JoinRequest is a player asking to be placed. UserID is empty for anonymous players
// and Rating is already resolved by the identity layer.
type JoinRequest struct {
	ConnID   string
	UserID   string
	Name     string
	Rating   float64
	RoomID   string
	Category string
	Ranked   bool

	// ReconnectGameID and ReconnectKey resume a hero the player lost on a dropped connection.
	ReconnectGameID string
	ReconnectKey    string
}

func (r JoinRequest) joinParams() games.JoinParams {
	return games.JoinParams{
		ConnID:       r.ConnID,
		UserID:       r.UserID,
		Name:         r.Name,
		Rating:       r.Rating,
		ReconnectKey: r.ReconnectKey,
	}
}

// Placement is where a join request ended up.
type Placement struct {
	Result  *games.JoinResult
	Outcome string
	// Split is set when the game was split to make room. The requester is in one of its forks,
	// the other players of the parent have to be told which fork they continue in.
	Split *Split
}

// Split is a game that was replaced by forks.
type Split struct {
	ParentID string
	Forks    []*models.Game
}

// PartyPlacement is the game a party member was moved into.
type PartyPlacement struct {
	ConnID string
	Result *games.JoinResult
	Err    error
}

// Decision is what ChooseTeams did to a game.
type Decision struct {
	Kind  rebalance.Kind
	Teams [][]string
	Split *Split
}
