// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaker

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/aco"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/games"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/rebalance"
)

var _ Matchmaker = (*MatchMaker)(nil)

type MatchMaker struct {
	cfg      *config.Config
	registry *games.Registry
	model    *aco.Model
	winRates BucketSource
	rng      *rand.Rand
	metrics  metrics.SessionMetrics
}

func NewMatchMaker(cfg *config.Config, registry *games.Registry, model *aco.Model, winRates BucketSource, rng *rand.Rand, sessionMetrics metrics.SessionMetrics) *MatchMaker {
	return &MatchMaker{
		cfg:      cfg,
		registry: registry,
		model:    model,
		winRates: winRates,
		rng:      rng,
		metrics:  sessionMetrics,
	}
}

// FindNewGame places the player in the closest joinable game of its segment, creating one when
// there is none. Joining may split the game, in which case the joiner is part of the split.
func (mm *MatchMaker) FindNewGame(rootScope *envelope.Scope, request JoinRequest) (*Placement, error) {
	scope := rootScope.NewChildScope("MatchMaker.FindNewGame")
	defer scope.Finish()
	scope.SetAttributes(envelope.ConnectionTag, request.ConnID)

	category := request.Category
	if category == "" {
		category = constants.CategoryPvP
	}
	start := time.Now()
	defer func() {
		mm.metrics.AddMatchmakerElapsedTimeMs(category, constants.JoinFunction, time.Since(start))
	}()

	placement, err := mm.findNewGame(scope, request, category)
	if err != nil {
		mm.metrics.AddJoinOutcome(category, constants.JoinOutcomeRefused)
		scope.Log.WithError(err).WithField("connID", request.ConnID).Info("join refused")
		return nil, err
	}
	mm.metrics.AddJoinOutcome(category, placement.Outcome)
	scope.SetAttributes(envelope.GameIDTag, placement.Result.GameID)
	return placement, nil
}

func (mm *MatchMaker) findNewGame(scope *envelope.Scope, request JoinRequest, category string) (*Placement, error) {
	if request.ReconnectGameID != "" && request.ReconnectKey != "" {
		result, err := mm.registry.Join(scope, request.ReconnectGameID, request.joinParams())
		if err == nil {
			outcome := constants.JoinOutcomeJoined
			if result.Reconnected {
				outcome = constants.JoinOutcomeReconnect
			}
			return &Placement{Result: result, Outcome: outcome}, nil
		}
		scope.Log.WithError(err).WithField("gameID", request.ReconnectGameID).Debug("cannot resume game, matchmaking instead")
	}
	request.ReconnectKey = ""

	roomID := request.RoomID
	if roomID == "" {
		roomID = constants.DefaultRoomID
	}
	segment := models.SegmentKey(roomID, "", mm.cfg.ProtocolVersion)

	g := mm.closestGame(segment, category, request)
	if g == nil {
		return mm.newGame(scope, segment, category, request)
	}
	return mm.joinOrSplit(scope, g, category, request)
}

// closestGame returns the joinable game of the segment with the smallest skill distance to the
// player. Ties go to the oldest game.
func (mm *MatchMaker) closestGame(segment, category string, request JoinRequest) *models.Game {
	var closest *models.Game
	closestDistance := math.Inf(1)
	for _, g := range mm.registry.GamesInSegment(segment) {
		if !g.IsJoinable() || g.NumActive() == 0 {
			continue
		}
		if g.Config.Category != category || g.Config.Ranked != request.Ranked {
			continue
		}
		if distance := skillDistance(g, request.Rating); closest == nil || distance < closestDistance {
			closest, closestDistance = g, distance
		}
	}
	return closest
}

func (mm *MatchMaker) newGame(scope *envelope.Scope, segment, category string, request JoinRequest) (*Placement, error) {
	start := time.Now()
	defer func() {
		mm.metrics.AddMatchmakerElapsedTimeMs(category, constants.NewGameFunction, time.Since(start))
	}()

	g := mm.registry.CreateGame(scope, mm.cfg.GameConfig(category, request.Ranked), segment)
	result, err := mm.registry.Join(scope, g.ID, request.joinParams())
	if err != nil {
		return nil, err
	}
	return &Placement{Result: result, Outcome: constants.JoinOutcomeCreated}, nil
}

// joinOrSplit joins the player directly while the game stays within MaxPlayers. Beyond it the
// game is split with the joiner included. When no split is valid the player joins anyway and
// the registry refuses beyond HardMaxPlayers.
func (mm *MatchMaker) joinOrSplit(scope *envelope.Scope, g *models.Game, category string, request JoinRequest) (*Placement, error) {
	members := append(playerMembers(g), rebalance.Member{
		ID:         request.ConnID,
		Rating:     request.Rating,
		Identified: request.UserID != "",
	})
	if len(members) > g.Config.MaxPlayers {
		params := rebalance.ParamsFromConfig(g.Config)
		candidates := rebalance.SplitCandidates(members, params)
		rebalance.Weigh(candidates, mm.winProbability(category), params)
		if choice, ok := rebalance.ChooseWeighted(candidates, mm.rng); ok {
			return mm.splitAndJoin(scope, g, category, choice, request)
		}
	}

	result, err := mm.registry.Join(scope, g.ID, request.joinParams())
	if err != nil {
		return nil, err
	}
	return &Placement{Result: result, Outcome: constants.JoinOutcomeJoined}, nil
}

func (mm *MatchMaker) splitAndJoin(scope *envelope.Scope, g *models.Game, category string, choice rebalance.Candidate, request JoinRequest) (*Placement, error) {
	start := time.Now()
	defer func() {
		mm.metrics.AddMatchmakerElapsedTimeMs(category, constants.SplitFunction, time.Since(start))
	}()

	partitions, joinerPartition := withoutMember(choice.IDs(), request.ConnID)
	forks, err := mm.registry.SplitGame(scope, g.ID, partitions)
	if err != nil {
		return nil, fmt.Errorf("split game %s: %w", g.ID, err)
	}
	split := &Split{ParentID: g.ID, Forks: forks}

	if joinerPartition < 0 {
		placement, err := mm.newGame(scope, g.Segment, category, request)
		if err != nil {
			return nil, err
		}
		placement.Split = split
		placement.Outcome = constants.JoinOutcomeSplit
		return placement, nil
	}

	result, err := mm.registry.Join(scope, forks[joinerPartition].ID, request.joinParams())
	if err != nil {
		return nil, err
	}
	scope.Log.WithField("gameID", g.ID).
		WithField("forkID", result.GameID).
		WithField("weight", choice.Weight).
		Info("game split to place player")
	return &Placement{Result: result, Outcome: constants.JoinOutcomeSplit, Split: split}, nil
}

// StartParty moves the members of a ready party into a new game of the party's private
// segment. Only the leader can start. Players join, observers observe, and when every player
// picked a team the teams are announced right away.
func (mm *MatchMaker) StartParty(rootScope *envelope.Scope, partyID, connID string) ([]PartyPlacement, error) {
	scope := rootScope.NewChildScope("MatchMaker.StartParty")
	defer scope.Finish()

	party, ok := mm.registry.Party(partyID)
	if !ok {
		return nil, models.ErrPartyNotFound
	}
	if party.LeaderConnID != connID {
		return nil, models.ErrNotPartyLeader
	}
	start := time.Now()
	defer func() {
		mm.metrics.AddMatchmakerElapsedTimeMs(constants.CategoryPvP, constants.StartPartyFunction, time.Since(start))
	}()

	// every start gets a segment of its own so a party never lands in its previous game
	segment := models.SegmentKey(party.RoomID, party.ID+"."+strconv.Itoa(party.Version), mm.cfg.ProtocolVersion)
	members := mm.registry.ReadyParty(scope, partyID)
	if members == nil {
		return nil, models.ErrPartyNotReady
	}

	g := mm.registry.CreateGame(scope, mm.cfg.GameConfig(constants.CategoryPvP, false), segment)
	placements := make([]PartyPlacement, 0, len(members))
	teams := make(map[int][]string)
	for _, m := range members {
		var (
			result *games.JoinResult
			err    error
		)
		if m.IsObserver {
			result, err = mm.registry.Observe(scope, g.ID, games.ObserveParams{ConnID: m.ConnID, UserID: m.UserID, Name: m.Name})
		} else {
			result, err = mm.registry.Join(scope, g.ID, games.JoinParams{ConnID: m.ConnID, UserID: m.UserID, Name: m.Name, Rating: m.Rating})
		}
		if err == nil && !m.IsObserver {
			teams[m.Team] = append(teams[m.Team], result.HeroID)
		}
		placements = append(placements, PartyPlacement{ConnID: m.ConnID, Result: result, Err: err})
	}

	if _, unassigned := teams[0]; !unassigned && len(teams) >= 2 {
		numbers := make([]int, 0, len(teams))
		for team := range teams {
			numbers = append(numbers, team)
		}
		sort.Ints(numbers)
		assigned := make([][]string, 0, len(numbers))
		for _, team := range numbers {
			assigned = append(assigned, teams[team])
		}
		mm.registry.AssignTeams(scope, g.ID, assigned)
	}

	scope.Log.WithField("partyID", partyID).
		WithField("gameID", g.ID).
		WithField("numMembers", len(members)).
		Info("party started")
	return placements, nil
}

// ChooseTeams decides what happens to a game once it closes to new players: nothing, teams
// over all its heroes or a split of its players.
func (mm *MatchMaker) ChooseTeams(rootScope *envelope.Scope, gameID string) (*Decision, error) {
	scope := rootScope.NewChildScope("MatchMaker.ChooseTeams")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, gameID)

	g, ok := mm.registry.Game(gameID)
	if !ok {
		return nil, models.ErrGameNotFound
	}
	category := g.Config.Category
	start := time.Now()
	defer func() {
		mm.metrics.AddMatchmakerElapsedTimeMs(category, constants.TeamsFunction, time.Since(start))
	}()

	params := rebalance.ParamsFromConfig(g.Config)
	heroes := heroMembers(g)
	candidates := []rebalance.Candidate{rebalance.NoopCandidate(heroes)}
	candidates = append(candidates, rebalance.TeamCandidates(heroes, params, mm.rng)...)
	candidates = append(candidates, rebalance.SplitCandidates(playerMembers(g), params)...)
	rebalance.Weigh(candidates, mm.winProbability(category), params)

	choice, ok := rebalance.ChooseWeighted(candidates, mm.rng)
	if !ok {
		return &Decision{Kind: rebalance.KindNoop}, nil
	}

	switch choice.Kind {
	case rebalance.KindTeams:
		teams := choice.IDs()
		if !mm.registry.AssignTeams(scope, g.ID, teams) {
			return &Decision{Kind: rebalance.KindNoop}, nil
		}
		return &Decision{Kind: rebalance.KindTeams, Teams: teams}, nil
	case rebalance.KindSplit:
		forks, err := mm.registry.SplitGame(scope, g.ID, choice.IDs())
		if err != nil {
			return nil, fmt.Errorf("split game %s: %w", g.ID, err)
		}
		return &Decision{Kind: rebalance.KindSplit, Split: &Split{ParentID: g.ID, Forks: forks}}, nil
	}
	return &Decision{Kind: rebalance.KindNoop}, nil
}

// winProbability evaluates the rating model against the current distribution of the category.
func (mm *MatchMaker) winProbability(category string) rebalance.WinProbability {
	var buckets []models.WinRateBucket
	if mm.winRates != nil {
		buckets = mm.winRates.Buckets(category)
	}
	return func(diff float64) float64 {
		return mm.model.EstimateWinProbability(diff, buckets)
	}
}
