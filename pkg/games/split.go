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

// SplitGame forks the game once per partition of its active players. Every fork continues the
// same world under a new id and universe id, keeping only the players of its partition.
// Observers follow the first fork. The parent game is unregistered.
func (r *Registry) SplitGame(rootScope *envelope.Scope, gameID string, partitions [][]string) ([]*models.Game, error) {
	scope := rootScope.NewChildScope("Registry.SplitGame")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, gameID)

	g, ok := r.games[gameID]
	if !ok {
		return nil, models.ErrGameNotFound
	}
	if g.Finished {
		return nil, models.ErrGameNotJoinable
	}
	if err := validatePartitions(g, partitions); err != nil {
		return nil, err
	}

	forks := make([]*models.Game, 0, len(partitions))
	for i, partition := range partitions {
		fork, err := g.Clone()
		if err != nil {
			return nil, fmt.Errorf("fork game %s: %w", g.ID, err)
		}
		fork.ID = utils.GenerateUUID()
		fork.UniverseID = utils.NewUniverseID()
		fork.CreatedAt = r.clock()
		fork.Splits = append(fork.Splits, models.SplitRecord{GameID: g.ID, Tick: g.Tick})
		fork.Scores = make(map[string]models.ScoreReport)
		fork.Teams = nil

		keep := make(map[string]bool, len(partition))
		for _, connID := range partition {
			keep[connID] = true
		}
		for _, p := range fork.SortedPlayers() {
			if keep[p.ConnID] {
				continue
			}
			r.revokeHero(fork, p.HeroID)
			delete(fork.Active, p.ConnID)
			fork.ControlMessages = append(fork.ControlMessages, models.NewLeaveMessage(p.HeroID))
		}
		for heroID, controller := range fork.Bots {
			if controller != "" && !keep[controller] {
				fork.Bots[heroID] = ""
			}
		}
		if i > 0 {
			fork.Observers = make(map[string]*models.Observer)
		}
		forks = append(forks, fork)
	}

	r.unregister(g)
	for _, fork := range forks {
		r.register(fork)
	}
	r.metrics.AddSplit(g.Config.Category, len(forks))

	scope.Log.WithField("gameID", g.ID).
		WithField("tick", g.Tick).
		WithField("numForks", len(forks)).
		Info("game split")
	return forks, nil
}

// validatePartitions checks the partitions cover every active player exactly once.
func validatePartitions(g *models.Game, partitions [][]string) error {
	if len(partitions) == 0 {
		return models.ErrInvalidPartition
	}
	seen := make(map[string]bool, len(g.Active))
	for _, partition := range partitions {
		if len(partition) == 0 {
			return models.ErrInvalidPartition
		}
		for _, connID := range partition {
			if _, active := g.Active[connID]; !active || seen[connID] {
				return fmt.Errorf("%w: connection %s", models.ErrInvalidPartition, connID)
			}
			seen[connID] = true
		}
	}
	if len(seen) != len(g.Active) {
		return fmt.Errorf("%w: %d of %d players assigned", models.ErrInvalidPartition, len(seen), len(g.Active))
	}
	return nil
}
