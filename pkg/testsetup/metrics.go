package testsetup

import (
	"time"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
)

type stubMetricsCollection struct{}

func (s stubMetricsCollection) SetActiveGames(numGames int) {
}

func (s stubMetricsCollection) ObserveTurnDuration(elapsedTime time.Duration) {
}

func (s stubMetricsCollection) AddTurnOverrun() {
}

func (s stubMetricsCollection) AddMatchmakerElapsedTimeMs(category, function string, elapsedTime time.Duration) {
}

func (s stubMetricsCollection) AddJoinOutcome(category, outcome string) {
}

func (s stubMetricsCollection) AddSplit(category string, numForks int) {
}

func (s stubMetricsCollection) AddDroppedAction(reason string) {
}

func (s stubMetricsCollection) AddRatingUpdate(category string, ranked bool, err error) {
}

func (s stubMetricsCollection) SetWinRateGames(category string, numGames float64) {
}

func NewMetrics() metrics.SessionMetrics {
	return stubMetricsCollection{}
}
