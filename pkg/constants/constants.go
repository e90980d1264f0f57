// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package constants

import "time"

const (
	// TurnBudgetWarnRatio is the fraction of the turn period after which a turn is logged as slow.
	TurnBudgetWarnRatio = 0.8

	// ArchiveTimeout bounds the time a finished game may spend being persisted.
	ArchiveTimeout = 30 * time.Second
)

const (
	CategoryPvP = "PvP"

	// DefaultRoomID is used when a join request does not name a room.
	DefaultRoomID = "default"

	// CollectionRatings and CollectionDecay are the document collections in the store.
	CollectionRatings = "ratings"
	CollectionDecay   = "decay"
)

const (
	JoinFunction       = "join"
	SplitFunction      = "split"
	TeamsFunction      = "teams"
	NewGameFunction    = "newGame"
	StartPartyFunction = "startParty"

	// join outcome constants.
	JoinOutcomeJoined    = "joined"
	JoinOutcomeCreated   = "created"
	JoinOutcomeSplit     = "split"
	JoinOutcomeReconnect = "reconnect"
	JoinOutcomeRefused   = "refused"
	JoinOutcomeObserved  = "observed"

	// dropped action reason constants.
	DropReasonStaleControlKey = "stale_control_key"
	DropReasonGameNotFound    = "game_not_found"
	DropReasonLowerPrecedence = "lower_precedence"
	DropReasonFinished        = "finished"
)
