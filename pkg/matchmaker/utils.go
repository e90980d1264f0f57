// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaker

import (
	"math"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/rebalance"
)

// skillDistance is the smallest rating difference between the player and any hero in the game.
// A game without heroes is infinitely far.
func skillDistance(g *models.Game, rating float64) float64 {
	distance := math.Inf(1)
	for _, p := range g.Active {
		distance = math.Min(distance, math.Abs(p.Rating-rating))
	}
	for heroID := range g.Bots {
		if hero, ok := g.Heroes[heroID]; ok {
			distance = math.Min(distance, math.Abs(hero.Rating-rating))
		}
	}
	return distance
}

// playerMembers returns the active players of the game keyed by connection id.
func playerMembers(g *models.Game) []rebalance.Member {
	members := make([]rebalance.Member, 0, len(g.Active)+1)
	for _, p := range g.SortedPlayers() {
		members = append(members, rebalance.Member{ID: p.ConnID, Rating: p.Rating, Identified: !p.IsAnonymous()})
	}
	return members
}

// heroMembers returns every hero in the world, players and bots, keyed by hero id.
func heroMembers(g *models.Game) []rebalance.Member {
	members := make([]rebalance.Member, 0, g.NumSlots())
	for _, p := range g.SortedPlayers() {
		members = append(members, rebalance.Member{ID: p.HeroID, Rating: p.Rating, Identified: !p.IsAnonymous()})
	}
	for heroID := range g.Bots {
		rating := 0.0
		if hero, ok := g.Heroes[heroID]; ok {
			rating = hero.Rating
		}
		members = append(members, rebalance.Member{ID: heroID, Rating: rating, IsBot: true})
	}
	return rebalance.SortByRating(members)
}

// withoutMember removes the member id from every group and drops the groups left empty.
// It returns the index the member was found in among the remaining groups, or -1 when the
// member was alone in its group or absent.
func withoutMember(groups [][]string, id string) ([][]string, int) {
	partitions := make([][]string, 0, len(groups))
	found := -1
	for _, group := range groups {
		kept := make([]string, 0, len(group))
		contains := false
		for _, member := range group {
			if member == id {
				contains = true
				continue
			}
			kept = append(kept, member)
		}
		if len(kept) == 0 {
			continue
		}
		if contains {
			found = len(partitions)
		}
		partitions = append(partitions, kept)
	}
	return partitions, found
}
