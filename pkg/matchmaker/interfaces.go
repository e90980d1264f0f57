// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package matchmaker places players into live games by skill and decides how games are
// rebalanced: left alone, split into forks or divided into teams.
package matchmaker

import (
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

/*
Matchmaker runs on the event loop that owns the session registry. Every method mutates the
registry directly and returns what the caller has to tell the affected connections: the join
result of the requester and the forks other players were moved into.

FindNewGame places one player. It picks the joinable game of the player's segment closest in
skill, and when the game would exceed its capacity it is split first, the player landing in
one of the forks.

StartParty moves a ready party into a fresh game of the party's private segment.

ChooseTeams runs when a game closes to new players and either leaves it alone, divides its
heroes into teams or splits it.
*/
type Matchmaker interface {
	FindNewGame(rootScope *envelope.Scope, request JoinRequest) (*Placement, error)

	StartParty(rootScope *envelope.Scope, partyID, connID string) ([]PartyPlacement, error)

	ChooseTeams(rootScope *envelope.Scope, gameID string) (*Decision, error)
}

// BucketSource provides the empirical win-rate distribution of a category.
type BucketSource interface {
	Buckets(category string) []models.WinRateBucket
}
