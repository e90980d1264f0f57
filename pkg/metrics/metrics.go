// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type SessionMetrics interface {
	SetActiveGames(numGames int)
	ObserveTurnDuration(elapsedTime time.Duration)
	AddTurnOverrun()
	AddMatchmakerElapsedTimeMs(category, function string, elapsedTime time.Duration)
	AddJoinOutcome(category, outcome string)
	AddSplit(category string, numForks int)
	AddDroppedAction(reason string)
	AddRatingUpdate(category string, ranked bool, err error)
	SetWinRateGames(category string, numGames float64)
}

func NewMetrics(registry *prometheus.Registry) SessionMetrics {
	return setupPrometheusMetrics(registry)
}
