// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	activeGames           prometheus.Gauge
	turnDuration          prometheus.Histogram
	turnOverruns          prometheus.Counter
	matchmakerElapsedTime prometheus.HistogramVec
	joinOutcomes          prometheus.CounterVec
	splits                prometheus.CounterVec
	droppedActions        prometheus.CounterVec
	ratingUpdates         prometheus.CounterVec
	winRateGames          prometheus.GaugeVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	activeGames := factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "lockstep_active_games",
			Help: "Number of games registered in the live set",
		})

	//nolint:promlinter
	turnDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lockstep_turn_duration_ms",
			Help:    "A histogram of the time spent advancing every game in one turn, in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		})

	turnOverruns := factory.NewCounter(
		prometheus.CounterOpts{
			Name: "lockstep_turn_overruns_total",
			Help: "Number of turns that used most of their period",
		})

	//nolint:promlinter
	matchmakerElapsedTime := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lockstep_matchmaker_elapsed_time_ms",
			Help:    "A histogram of matchmaker functions elapsed time in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"category", "function"})

	joinOutcomes := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_join_outcomes_total",
			Help: "Number of join requests per outcome",
		}, []string{"category", "outcome"})

	splits := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_splits_total",
			Help: "Number of games split, labelled by the number of forks",
		}, []string{"category", "forks"})

	droppedActions := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_dropped_actions_total",
			Help: "Number of actions dropped before reaching a tick packet",
		}, []string{"reason"})

	ratingUpdates := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_rating_updates_total",
			Help: "Number of rating transactions per result",
		}, []string{"category", "ranked", "result"})

	winRateGames := factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lockstep_win_rate_games",
			Help: "Weighted number of games in the current win-rate distribution",
		}, []string{"category"})

	return prometheusMetrics{
		activeGames:           activeGames,
		turnDuration:          turnDuration,
		turnOverruns:          turnOverruns,
		matchmakerElapsedTime: *matchmakerElapsedTime,
		joinOutcomes:          *joinOutcomes,
		splits:                *splits,
		droppedActions:        *droppedActions,
		ratingUpdates:         *ratingUpdates,
		winRateGames:          *winRateGames,
	}
}

func (metrics prometheusMetrics) SetActiveGames(numGames int) {
	metrics.activeGames.Set(float64(numGames))
}

func (metrics prometheusMetrics) ObserveTurnDuration(elapsedTime time.Duration) {
	metrics.turnDuration.Observe(float64(elapsedTime.Microseconds()) / 1000)
}

func (metrics prometheusMetrics) AddTurnOverrun() {
	metrics.turnOverruns.Inc()
}

func (metrics prometheusMetrics) AddMatchmakerElapsedTimeMs(category, function string, elapsedTime time.Duration) {
	metrics.matchmakerElapsedTime.With(prometheus.Labels{"category": category, "function": function}).Observe(float64(elapsedTime.Milliseconds()))
}

func (metrics prometheusMetrics) AddJoinOutcome(category, outcome string) {
	metrics.joinOutcomes.With(prometheus.Labels{"category": category, "outcome": outcome}).Inc()
}

func (metrics prometheusMetrics) AddSplit(category string, numForks int) {
	metrics.splits.With(prometheus.Labels{"category": category, "forks": strconv.Itoa(numForks)}).Inc()
}

func (metrics prometheusMetrics) AddDroppedAction(reason string) {
	metrics.droppedActions.With(prometheus.Labels{"reason": reason}).Inc()
}

func (metrics prometheusMetrics) AddRatingUpdate(category string, ranked bool, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ratingUpdates.With(prometheus.Labels{"category": category, "ranked": strconv.FormatBool(ranked), "result": result}).Inc()
}

func (metrics prometheusMetrics) SetWinRateGames(category string, numGames float64) {
	metrics.winRateGames.With(prometheus.Labels{"category": category}).Set(numGames)
}
