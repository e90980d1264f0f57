// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package games

import (
	"sort"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

// ReceiveScore records the outcome a player computed. Once every live player has reported,
// the game finishes with the outcome a strict majority of the reporters agree on, if any.
func (r *Registry) ReceiveScore(rootScope *envelope.Scope, gameID, connID string, report models.ScoreReport) bool {
	scope := rootScope.NewChildScope("Registry.ReceiveScore")
	defer scope.Finish()

	g, ok := r.games[gameID]
	if !ok || g.Finished {
		return false
	}
	if _, active := g.Active[connID]; !active {
		return false
	}
	g.Scores[connID] = report.Copy()
	r.checkScores(scope, g)
	return true
}

func (r *Registry) checkScores(scope *envelope.Scope, g *models.Game) {
	if len(g.Scores) == 0 || g.Finished {
		return
	}
	for _, p := range awaitedReporters(g) {
		if _, reported := g.Scores[p.ConnID]; !reported {
			return
		}
	}
	r.finish(scope, g)
}

// awaitedReporters returns the players a score is waited for. A player who never sent an
// action is a silent controller and is not waited for, unless nobody sent any.
func awaitedReporters(g *models.Game) []*models.Player {
	var live, all []*models.Player
	for _, p := range g.Active {
		all = append(all, p)
		if p.NumActionMessages > 0 {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return all
	}
	return live
}

// checkFinish finishes a game nobody plays anymore.
func (r *Registry) checkFinish(scope *envelope.Scope, g *models.Game) {
	if !g.Finished && len(g.Active) == 0 {
		r.finish(scope, g)
	}
}

func (r *Registry) finish(scope *envelope.Scope, g *models.Game) {
	if g.Finished {
		return
	}
	g.Result = Corroborate(g.Scores)
	if g.Result != nil {
		g.WinTick = g.Result.WinTick
	}
	g.Finished = true
	g.Joinable = false
	g.ControlMessages = append(g.ControlMessages, models.NewFinishMessage())

	scope.Log.WithField("gameID", g.ID).
		WithField("reporters", len(g.Scores)).
		WithField("corroborated", g.Result != nil).
		Info("game finished")
}

// Corroborate returns the outcome reported by a strict majority of the reporters, or nil.
func Corroborate(scores map[string]models.ScoreReport) *models.GameResult {
	if len(scores) == 0 {
		return nil
	}

	votes := make(map[string][]models.ScoreReport)
	for _, report := range scores {
		key := report.OutcomeKey()
		votes[key] = append(votes[key], report)
	}

	bestKey := ""
	for key, reports := range votes {
		if bestKey == "" || len(reports) > len(votes[bestKey]) || (len(reports) == len(votes[bestKey]) && key < bestKey) {
			bestKey = key
		}
	}
	agreeing := votes[bestKey]
	if len(agreeing)*2 <= len(scores) {
		return nil
	}

	winTick := agreeing[0].Tick
	for _, report := range agreeing[1:] {
		winTick = min(winTick, report.Tick)
	}
	players := append([]models.PlayerScore(nil), agreeing[0].Players...)
	sort.Slice(players, func(i, j int) bool {
		if players[i].Rank != players[j].Rank {
			return players[i].Rank < players[j].Rank
		}
		return players[i].HeroID < players[j].HeroID
	})

	return &models.GameResult{
		WinTick:        winTick,
		Players:        players,
		Corroborations: len(agreeing),
		Reporters:      len(scores),
	}
}
