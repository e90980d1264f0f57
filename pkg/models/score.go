// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"fmt"
	"sort"
	"strings"
)

// PlayerScore is one hero's outcome as computed by a client. Rank 1 is the winner.
type PlayerScore struct {
	HeroID string  `json:"heroId"`
	Rank   int     `json:"rank"`
	Damage float64 `json:"damage"`
	Kills  int     `json:"kills"`
}

// ScoreReport is the outcome a single client computed locally.
type ScoreReport struct {
	Tick    int64         `json:"tick"`
	Players []PlayerScore `json:"players"`
}

func (r ScoreReport) Copy() ScoreReport {
	r.Players = append([]PlayerScore(nil), r.Players...)
	return r
}

// OutcomeKey identifies the outcome of the report. Two reports corroborate each other
// when their keys are equal: same heroes with the same ranks.
func (r ScoreReport) OutcomeKey() string {
	ranks := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		ranks = append(ranks, fmt.Sprintf("%s:%d", p.HeroID, p.Rank))
	}
	sort.Strings(ranks)
	return strings.Join(ranks, ",")
}

// Winners returns the heroes ranked first.
func (r ScoreReport) Winners() []string {
	var winners []string
	for _, p := range r.Players {
		if p.Rank == 1 {
			winners = append(winners, p.HeroID)
		}
	}
	sort.Strings(winners)
	return winners
}

// GameResult is a corroborated outcome.
type GameResult struct {
	WinTick        int64         `json:"winTick"`
	Players        []PlayerScore `json:"players"`
	Corroborations int           `json:"corroborations"`
	Reporters      int           `json:"reporters"`
}

// ScoreOf returns the hero's score in the result.
func (r GameResult) ScoreOf(heroID string) (PlayerScore, bool) {
	for _, p := range r.Players {
		if p.HeroID == heroID {
			return p, true
		}
	}
	return PlayerScore{}, false
}
