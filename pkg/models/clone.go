// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"fmt"

	"github.com/mitchellh/copystructure"
)

// Clone deep-copies the game. Every owned collection is copied so a fork never
// shares mutable state with the game it was forked from.
func (g *Game) Clone() (*Game, error) {
	history, err := CopyHistory(g.History)
	if err != nil {
		return nil, err
	}

	clone := *g
	clone.Active = make(map[string]*Player, len(g.Active))
	for connID, p := range g.Active {
		player := *p
		clone.Active[connID] = &player
	}
	clone.Observers = make(map[string]*Observer, len(g.Observers))
	for connID, o := range g.Observers {
		observer := *o
		clone.Observers[connID] = &observer
	}
	clone.Bots = make(map[string]string, len(g.Bots))
	for heroID, connID := range g.Bots {
		clone.Bots[heroID] = connID
	}
	clone.ControlKeys = make(map[ControlKey]string, len(g.ControlKeys))
	for key, heroID := range g.ControlKeys {
		clone.ControlKeys[key] = heroID
	}
	clone.ReconnectKeys = make(map[string]string, len(g.ReconnectKeys))
	for key, heroID := range g.ReconnectKeys {
		clone.ReconnectKeys[key] = heroID
	}
	clone.Heroes = make(map[string]*Hero, len(g.Heroes))
	for heroID, h := range g.Heroes {
		hero := *h
		clone.Heroes[heroID] = &hero
	}
	clone.History = history
	clone.Splits = append([]SplitRecord(nil), g.Splits...)
	clone.Teams = copyTeams(g.Teams)

	clone.Actions = make(map[string]Action, len(g.Actions))
	for heroID, action := range g.Actions {
		clone.Actions[heroID] = copyAction(action)
	}
	clone.ControlMessages = make([]ControlMessage, 0, len(g.ControlMessages))
	for _, msg := range g.ControlMessages {
		clone.ControlMessages = append(clone.ControlMessages, copyControlMessage(msg))
	}
	if g.Sync != nil {
		sync := SyncSnapshot{Tick: g.Sync.Tick, Payload: append([]byte(nil), g.Sync.Payload...)}
		clone.Sync = &sync
	}
	clone.Scores = make(map[string]ScoreReport, len(g.Scores))
	for connID, report := range g.Scores {
		clone.Scores[connID] = report.Copy()
	}
	if g.Result != nil {
		result := *g.Result
		result.Players = append([]PlayerScore(nil), g.Result.Players...)
		clone.Result = &result
	}
	return &clone, nil
}

// CopyHistory deep-copies tick packets, which carry pointers and raw payloads.
func CopyHistory(history []TickPacket) ([]TickPacket, error) {
	if history == nil {
		return nil, nil
	}
	copied, err := copystructure.Copy(history)
	if err != nil {
		return nil, fmt.Errorf("copy tick history: %w", err)
	}
	packets, ok := copied.([]TickPacket)
	if !ok {
		return nil, fmt.Errorf("copy tick history: unexpected type %T", copied)
	}
	return packets, nil
}

func copyTeams(teams [][]string) [][]string {
	if teams == nil {
		return nil
	}
	copied := make([][]string, len(teams))
	for i, team := range teams {
		copied[i] = append([]string(nil), team...)
	}
	return copied
}

func copyAction(a Action) Action {
	if a.Target != nil {
		target := *a.Target
		a.Target = &target
	}
	return a
}

func copyControlMessage(m ControlMessage) ControlMessage {
	if m.Rating != nil {
		rating := *m.Rating
		m.Rating = &rating
	}
	if m.CloseTick != nil {
		closeTick := *m.CloseTick
		m.CloseTick = &closeTick
	}
	m.Teams = copyTeams(m.Teams)
	return m
}
