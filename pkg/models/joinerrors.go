// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"errors"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrGameNotJoinable  = errors.New("game is no longer joinable")
	ErrGameFull         = errors.New("game is full")
	ErrPartyNotFound    = errors.New("party not found")
	ErrNotPartyLeader   = errors.New("only the party leader may do this")
	ErrPartyNotReady    = errors.New("party is not ready")
	ErrInvalidPartition = errors.New("partitions must be disjoint, non-empty and name active players")
)

var joinErrorCodeMap = map[error]int{
	ErrGameNotFound:     510201,
	ErrGameNotJoinable:  510202,
	ErrGameFull:         510203,
	ErrPartyNotFound:    510204,
	ErrNotPartyLeader:   510205,
	ErrPartyNotReady:    510206,
	ErrInvalidPartition: 510207,
}

// JoinErrorCode returns a code for the error sent to the client with a joinFailed message.
// It returns 20002 if the error is not registered in the map.
func JoinErrorCode(err error) int {
	for known, code := range joinErrorCodeMap {
		if errors.Is(err, known) {
			return code
		}
	}
	return 20002
}
