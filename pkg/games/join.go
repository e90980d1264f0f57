// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package games

import (
	"fmt"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/utils"
)

type JoinParams struct {
	ConnID       string
	UserID       string
	Name         string
	Rating       float64
	ReconnectKey string
}

type ObserveParams struct {
	ConnID string
	UserID string
	Name   string
}

// JoinResult is what a connection needs to take part in a game: the hero it controls,
// the key to control it with and the history to catch up from.
type JoinResult struct {
	GameID       string              `json:"gameId"`
	UniverseID   string              `json:"universeId"`
	HeroID       string              `json:"heroId,omitempty"`
	ControlKey   models.ControlKey   `json:"controlKey,omitempty"`
	ReconnectKey string              `json:"reconnectKey,omitempty"`
	Tick         int64               `json:"tick"`
	History      []models.TickPacket `json:"history"`
	Observer     bool                `json:"observer,omitempty"`
	Reconnected  bool                `json:"reconnected,omitempty"`
}

// Join adds the connection to the game as a player. A valid reconnect key resumes the hero
// it was issued for, even once joining has closed. Otherwise the player takes over an
// unclaimed bot or gets a new hero.
func (r *Registry) Join(rootScope *envelope.Scope, gameID string, params JoinParams) (*JoinResult, error) {
	scope := rootScope.NewChildScope("Registry.Join")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, gameID)
	scope.SetAttributes(envelope.ConnectionTag, params.ConnID)

	g, ok := r.games[gameID]
	if !ok {
		return nil, models.ErrGameNotFound
	}
	if p, active := g.Active[params.ConnID]; active {
		key, _ := g.ControlKeyOf(p.HeroID)
		return r.joinResult(g, p.HeroID, key), nil
	}

	if params.ReconnectKey != "" && !g.Finished {
		if heroID, ok := g.ReconnectKeys[params.ReconnectKey]; ok {
			if _, controlled := g.PlayerByHero(heroID); !controlled {
				return r.reconnect(scope, g, heroID, params), nil
			}
		}
	}

	if !g.IsJoinable() {
		return nil, models.ErrGameNotJoinable
	}
	heroID, claimed := r.freeBot(g)
	if !claimed && g.NumSlots() >= g.Config.HardMaxPlayers {
		return nil, models.ErrGameFull
	}
	if claimed {
		delete(g.Bots, heroID)
	} else {
		heroID = r.nextHeroID(g)
	}

	delete(g.Observers, params.ConnID)
	g.Heroes[heroID] = &models.Hero{HeroID: heroID, UserID: params.UserID, Name: params.Name, Rating: params.Rating}
	reconnectKey := utils.GenerateUUID()
	g.ReconnectKeys[reconnectKey] = heroID
	key := r.addPlayer(g, heroID, params)

	scope.Log.WithField("gameID", g.ID).
		WithField("heroID", heroID).
		WithField("claimedBot", claimed).
		Debug("player joined")

	result := r.joinResult(g, heroID, key)
	result.ReconnectKey = reconnectKey
	return result, nil
}

func (r *Registry) reconnect(scope *envelope.Scope, g *models.Game, heroID string, params JoinParams) *JoinResult {
	delete(g.Bots, heroID)
	delete(g.Observers, params.ConnID)
	if hero, ok := g.Heroes[heroID]; ok {
		hero.IsBot = false
	}
	key := r.addPlayer(g, heroID, params)

	scope.Log.WithField("gameID", g.ID).WithField("heroID", heroID).Info("player reconnected")

	result := r.joinResult(g, heroID, key)
	result.ReconnectKey = params.ReconnectKey
	result.Reconnected = true
	return result
}

func (r *Registry) addPlayer(g *models.Game, heroID string, params JoinParams) models.ControlKey {
	key := r.bindHero(g, heroID)
	g.Active[params.ConnID] = &models.Player{
		ConnID:   params.ConnID,
		HeroID:   heroID,
		UserID:   params.UserID,
		Name:     params.Name,
		Rating:   params.Rating,
		JoinTick: g.Tick,
	}
	r.gameOf[params.ConnID] = g.ID
	g.ActiveTick = g.Tick
	g.ControlMessages = append(g.ControlMessages, models.NewJoinMessage(*g.Heroes[heroID], key))
	return key
}

func (r *Registry) joinResult(g *models.Game, heroID string, key models.ControlKey) *JoinResult {
	return &JoinResult{
		GameID:     g.ID,
		UniverseID: g.UniverseID,
		HeroID:     heroID,
		ControlKey: key,
		Tick:       g.Tick,
		History:    g.History[:len(g.History):len(g.History)],
	}
}

func (r *Registry) freeBot(g *models.Game) (string, bool) {
	for _, heroID := range sortedBots(g) {
		if g.Bots[heroID] == "" {
			return heroID, true
		}
	}
	return "", false
}

func (r *Registry) nextHeroID(g *models.Game) string {
	g.NextHeroNum++
	return fmt.Sprintf("h%d", g.NextHeroNum)
}

// Observe adds the connection to the game as a spectator. A player of the game becomes an observer
// and their hero is handed to a bot when the game allows bots.
func (r *Registry) Observe(rootScope *envelope.Scope, gameID string, params ObserveParams) (*JoinResult, error) {
	scope := rootScope.NewChildScope("Registry.Observe")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, gameID)

	g, ok := r.games[gameID]
	if !ok {
		return nil, models.ErrGameNotFound
	}
	if g.Finished || g.HistoryExceeded {
		return nil, models.ErrGameNotJoinable
	}
	if _, active := g.Active[params.ConnID]; active {
		r.leave(scope, g, params.ConnID, g.Config.AllowBots)
	}

	g.Observers[params.ConnID] = &models.Observer{ConnID: params.ConnID, UserID: params.UserID, Name: params.Name}
	r.gameOf[params.ConnID] = g.ID

	result := r.joinResult(g, "", 0)
	result.Observer = true
	return result, nil
}

// Leave removes the connection from the game. The hero of a leaving player is kept in the world
// under bot control with a fresh key when replaceWithBot is set and the game allows bots.
// Either way the key the player held stops being valid.
func (r *Registry) Leave(rootScope *envelope.Scope, gameID, connID string, replaceWithBot bool) bool {
	scope := rootScope.NewChildScope("Registry.Leave")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, gameID)
	scope.SetAttributes(envelope.ConnectionTag, connID)

	g, ok := r.games[gameID]
	if !ok {
		return false
	}
	if _, observing := g.Observers[connID]; observing {
		delete(g.Observers, connID)
		delete(r.gameOf, connID)
		return true
	}
	if _, active := g.Active[connID]; !active {
		return false
	}
	r.leave(scope, g, connID, replaceWithBot)
	return true
}

func (r *Registry) leave(scope *envelope.Scope, g *models.Game, connID string, replaceWithBot bool) {
	p := g.Active[connID]
	r.revokeHero(g, p.HeroID)
	delete(g.Active, connID)
	delete(r.gameOf, connID)

	for heroID, controller := range g.Bots {
		if controller == connID {
			g.Bots[heroID] = ""
		}
	}

	if replaceWithBot && g.Config.AllowBots && !g.Finished {
		key := r.bindHero(g, p.HeroID)
		g.Bots[p.HeroID] = ""
		g.ControlMessages = append(g.ControlMessages, models.NewBotMessage(p.HeroID, key))
	} else {
		g.ControlMessages = append(g.ControlMessages, models.NewLeaveMessage(p.HeroID))
	}
	g.ActiveTick = g.Tick

	scope.Log.WithField("gameID", g.ID).
		WithField("heroID", p.HeroID).
		WithField("replacedWithBot", replaceWithBot).
		Debug("player left")

	r.checkScores(scope, g)
}

// AddBots fills the game with bots up to its minimum number of players. The requesting
// player controls the new bots. It returns the number of bots added.
func (r *Registry) AddBots(rootScope *envelope.Scope, gameID, connID string) int {
	scope := rootScope.NewChildScope("Registry.AddBots")
	defer scope.Finish()

	g, ok := r.games[gameID]
	if !ok || !g.Config.AllowBots || !g.IsJoinable() {
		return 0
	}
	requester, ok := g.Active[connID]
	if !ok {
		return 0
	}

	added := 0
	for g.NumSlots() < g.Config.MinPlayers {
		heroID := r.nextHeroID(g)
		g.Heroes[heroID] = &models.Hero{
			HeroID: heroID,
			Name:   fmt.Sprintf("Bot %d", g.NextHeroNum),
			Rating: requester.Rating,
			IsBot:  true,
		}
		key := r.bindHero(g, heroID)
		g.Bots[heroID] = connID
		g.ControlMessages = append(g.ControlMessages, models.NewBotMessage(heroID, key))
		added++
	}
	if added > 0 {
		g.ActiveTick = g.Tick
		scope.Log.WithField("gameID", g.ID).WithField("numBots", added).Debug("bots added")
	}
	return added
}

// TakeBotControl hands the bot to the connection under a fresh key.
func (r *Registry) TakeBotControl(rootScope *envelope.Scope, gameID, heroID, connID string) (models.ControlKey, bool) {
	scope := rootScope.NewChildScope("Registry.TakeBotControl")
	defer scope.Finish()

	g, ok := r.games[gameID]
	if !ok || g.Finished {
		return 0, false
	}
	if _, isBot := g.Bots[heroID]; !isBot {
		return 0, false
	}
	if _, active := g.Active[connID]; !active {
		return 0, false
	}

	key := r.bindHero(g, heroID)
	g.Bots[heroID] = connID
	g.ControlMessages = append(g.ControlMessages, models.NewBotMessage(heroID, key))
	return key, true
}
