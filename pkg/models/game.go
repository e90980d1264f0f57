// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
)

// NeverTick is the close tick of a game that has not started closing.
const NeverTick int64 = math.MaxInt64

// GameConfig is the matchmaking configuration a game is created with.
type GameConfig struct {
	Category          string  `json:"category"`
	Ranked            bool    `json:"ranked"`
	MaxPlayers        int     `json:"maxPlayers"`
	HardMaxPlayers    int     `json:"hardMaxPlayers"`
	MinPlayers        int     `json:"minPlayers"`
	AllowBots         bool    `json:"allowBots"`
	AllowBotTeams     bool    `json:"allowBotTeams"`
	JoinPeriodTicks   int64   `json:"joinPeriodTicks"`
	IdleTicks         int64   `json:"idleTicks"`
	MaxHistoryLength  int     `json:"maxHistoryLength"`
	MinPartitionSize  int     `json:"minPartitionSize"`
	SplitNeighborhood int     `json:"splitNeighborhood"`
	MaxCandidates     int     `json:"maxCandidates"`
	RatingPower       float64 `json:"ratingPower"`
	OddPenalty        float64 `json:"oddPenalty"`
}

// Hero is every hero that ever took part in a game, kept for scoring after players leave.
type Hero struct {
	HeroID string  `json:"heroId"`
	UserID string  `json:"userId,omitempty"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
	IsBot  bool    `json:"isBot,omitempty"`
}

// Player is an active human member of a game.
type Player struct {
	ConnID            string  `json:"connId"`
	HeroID            string  `json:"heroId"`
	UserID            string  `json:"userId,omitempty"`
	Name              string  `json:"name"`
	Rating            float64 `json:"rating"`
	NumActionMessages int     `json:"numActionMessages"`
	JoinTick          int64   `json:"joinTick"`
}

// IsAnonymous reports whether the player is excluded from rating.
func (p Player) IsAnonymous() bool {
	return p.UserID == ""
}

type Observer struct {
	ConnID string `json:"connId"`
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
}

// SplitRecord records the game a fork originated from and the tick it was forked at.
type SplitRecord struct {
	GameID string `json:"gameId"`
	Tick   int64  `json:"tick"`
}

// Game is the authoritative in-memory state of one live session.
type Game struct {
	ID         string     `json:"id"`
	UniverseID string     `json:"universeId"`
	Segment    string     `json:"segment"`
	Config     GameConfig `json:"config"`
	CreatedAt  time.Time  `json:"createdAt"`

	Active        map[string]*Player    `json:"active"`
	Observers     map[string]*Observer  `json:"observers"`
	Bots          map[string]string     `json:"bots"`
	ControlKeys   map[ControlKey]string `json:"controlKeys"`
	ReconnectKeys map[string]string     `json:"reconnectKeys"`
	Heroes        map[string]*Hero      `json:"heroes"`
	NextHeroNum   int                   `json:"nextHeroNum"`

	Tick            int64         `json:"tick"`
	ActiveTick      int64         `json:"activeTick"`
	Joinable        bool          `json:"joinable"`
	CloseTick       int64         `json:"closeTick"`
	WinTick         int64         `json:"winTick"`
	Finished        bool          `json:"finished"`
	History         []TickPacket  `json:"history"`
	HistoryExceeded bool          `json:"historyExceeded"`
	Splits          []SplitRecord `json:"splits"`
	Teams           [][]string    `json:"teams,omitempty"`

	Actions         map[string]Action      `json:"-"`
	ControlMessages []ControlMessage       `json:"-"`
	Sync            *SyncSnapshot          `json:"-"`
	Scores          map[string]ScoreReport `json:"-"`
	Result          *GameResult            `json:"result,omitempty"`
}

func NewGame(id, universeID, segment string, config GameConfig, now time.Time) *Game {
	return &Game{
		ID:            id,
		UniverseID:    universeID,
		Segment:       segment,
		Config:        config,
		CreatedAt:     now,
		Active:        make(map[string]*Player),
		Observers:     make(map[string]*Observer),
		Bots:          make(map[string]string),
		ControlKeys:   make(map[ControlKey]string),
		ReconnectKeys: make(map[string]string),
		Heroes:        make(map[string]*Hero),
		Joinable:      true,
		CloseTick:     NeverTick,
		Actions:       make(map[string]Action),
		Scores:        make(map[string]ScoreReport),
	}
}

// IsJoinable reports whether new players may join.
func (g *Game) IsJoinable() bool {
	return g.Joinable && !g.Finished && !g.HistoryExceeded && g.Tick < g.CloseTick
}

func (g *Game) NumActive() int {
	return len(g.Active)
}

// NumSlots counts active humans plus bots, the number of heroes alive in the world.
func (g *Game) NumSlots() int {
	return len(g.Active) + len(g.Bots)
}

// HasPendingWork reports whether the game has queued input or has not gone idle.
func (g *Game) HasPendingWork() bool {
	if len(g.Actions) > 0 || len(g.ControlMessages) > 0 || g.Sync != nil {
		return true
	}
	return !g.IsIdle()
}

// IsIdle reports whether the game stopped receiving input long enough to stop advancing.
func (g *Game) IsIdle() bool {
	return g.Tick-g.ActiveTick >= g.Config.IdleTicks
}

// PlayerByHero returns the active player controlling the hero.
func (g *Game) PlayerByHero(heroID string) (*Player, bool) {
	for _, p := range g.Active {
		if p.HeroID == heroID {
			return p, true
		}
	}
	return nil, false
}

// ControlKeyOf returns the control key currently bound to the hero.
func (g *Game) ControlKeyOf(heroID string) (ControlKey, bool) {
	for key, hero := range g.ControlKeys {
		if hero == heroID {
			return key, true
		}
	}
	return 0, false
}

// SortedPlayers returns active players ordered by rating, then connection id.
func (g *Game) SortedPlayers() []Player {
	players := make([]Player, 0, len(g.Active))
	for _, p := range g.Active {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Rating != players[j].Rating {
			return players[i].Rating < players[j].Rating
		}
		return players[i].ConnID < players[j].ConnID
	})
	return players
}

// AllIdentified reports whether every active player carries a user id.
func (g *Game) AllIdentified() bool {
	for _, p := range g.Active {
		if p.IsAnonymous() {
			return false
		}
	}
	return true
}

// ConnIDs returns active and observer connection ids in sorted order.
func (g *Game) ConnIDs() []string {
	ids := append(pie.Keys(g.Active), pie.Keys(g.Observers)...)
	return pie.Sort(ids)
}

// SegmentKey groups games that may be matched together.
func SegmentKey(roomID, partyID, protocolVersion string) string {
	return strings.Join([]string{"r=" + roomID, "p=" + partyID, "v=" + protocolVersion}, "/")
}
