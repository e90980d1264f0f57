// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"sort"
	"time"
)

// RecordPlayer is a hero as persisted with a finished game.
type RecordPlayer struct {
	HeroID string  `json:"heroId"`
	UserID string  `json:"userId,omitempty"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
	IsBot  bool    `json:"isBot,omitempty"`
	Rank   int     `json:"rank"`
	Team   int     `json:"team"`
	Damage float64 `json:"damage"`
	Kills  int     `json:"kills"`
}

// GameRecord is the archived summary of a finished game.
type GameRecord struct {
	GameID     string         `json:"gameId"`
	UniverseID string         `json:"universeId"`
	Category   string         `json:"category"`
	Ranked     bool           `json:"ranked"`
	WinTick    int64          `json:"winTick"`
	NumTicks   int64          `json:"numTicks"`
	Splits     []SplitRecord  `json:"splits,omitempty"`
	Players    []RecordPlayer `json:"players"`
	FinishedAt time.Time      `json:"finishedAt"`

	// History is the tick packets of the game, the replay of it.
	History []TickPacket `json:"history,omitempty"`
}

// Corroborated reports whether the record carries a majority-confirmed outcome.
func (r GameRecord) Corroborated() bool {
	for _, p := range r.Players {
		if p.Rank > 0 {
			return true
		}
	}
	return false
}

// NewGameRecord summarizes a finished game. Ranks and stats are only filled in when
// the game has a corroborated result.
func NewGameRecord(g *Game, now time.Time) GameRecord {
	teamOf := make(map[string]int)
	for i, team := range g.Teams {
		for _, heroID := range team {
			teamOf[heroID] = i + 1
		}
	}

	players := make([]RecordPlayer, 0, len(g.Heroes))
	for _, hero := range g.Heroes {
		player := RecordPlayer{
			HeroID: hero.HeroID,
			UserID: hero.UserID,
			Name:   hero.Name,
			Rating: hero.Rating,
			IsBot:  hero.IsBot,
			Team:   teamOf[hero.HeroID],
		}
		if g.Result != nil {
			if score, ok := g.Result.ScoreOf(hero.HeroID); ok {
				player.Rank = score.Rank
				player.Damage = score.Damage
				player.Kills = score.Kills
			}
		}
		players = append(players, player)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].HeroID < players[j].HeroID })

	record := GameRecord{
		GameID:     g.ID,
		UniverseID: g.UniverseID,
		Category:   g.Config.Category,
		Ranked:     g.Config.Ranked && g.Result != nil,
		NumTicks:   g.Tick,
		Splits:     append([]SplitRecord(nil), g.Splits...),
		Players:    players,
		FinishedAt: now,
		History:    append([]TickPacket(nil), g.History...),
	}
	if g.Result != nil {
		record.WinTick = g.Result.WinTick
	}
	return record
}
