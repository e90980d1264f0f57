// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaker

import (
	"fmt"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/aco"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/games"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/rebalance"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/testsetup"
)

func newTestMatchMaker(cfg *config.Config, seed uint64) (*MatchMaker, *games.Registry) {
	registry := games.NewRegistry(testsetup.NewMetrics(), testsetup.NewRand(seed))
	mm := NewMatchMaker(cfg, registry, aco.NewModel(cfg), nil, testsetup.NewRand(seed+1), testsetup.NewMetrics())
	return mm, registry
}

func joinRequest(i int, rating float64) JoinRequest {
	return JoinRequest{
		ConnID: fmt.Sprintf("conn-%d", i),
		UserID: fmt.Sprintf("user-%d", i),
		Name:   fmt.Sprintf("player %d", i),
		Rating: rating,
		Ranked: true,
	}
}

func TestFindNewGame_CreatesGameForFirstPlayer(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, registry := newTestMatchMaker(config.Default(), 1)

	first, err := mm.FindNewGame(g.TestScope, joinRequest(0, 1000))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(first.Outcome).To(Equal(constants.JoinOutcomeCreated))

	second, err := mm.FindNewGame(g.TestScope, joinRequest(1, 1000))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(second.Outcome).To(Equal(constants.JoinOutcomeJoined))
	g.Expect(second.Result.GameID).To(Equal(first.Result.GameID))
	g.Expect(second.Split).To(BeNil())

	game, ok := registry.Game(first.Result.GameID)
	g.Expect(ok).To(BeTrue())
	g.Expect(game.NumActive()).To(Equal(2))
	g.Expect(game.Segment).To(Equal(models.SegmentKey(constants.DefaultRoomID, "", "1")))
	g.Expect(registry.NumGames()).To(Equal(1))
}

func TestFindNewGame_SegmentsAreSeparate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *JoinRequest)
	}{
		{name: "other_room", mutate: func(r *JoinRequest) { r.RoomID = "other" }},
		{name: "other_category", mutate: func(r *JoinRequest) { r.Category = "coop" }},
		{name: "unranked", mutate: func(r *JoinRequest) { r.Ranked = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm, registry := newTestMatchMaker(config.Default(), 1)
			scope := testsetup.NewTestScope()

			first, err := mm.FindNewGame(scope, joinRequest(0, 1000))
			require.NoError(t, err)

			request := joinRequest(1, 1000)
			tt.mutate(&request)
			second, err := mm.FindNewGame(scope, request)
			require.NoError(t, err)

			assert.Equal(t, constants.JoinOutcomeCreated, second.Outcome)
			assert.NotEqual(t, first.Result.GameID, second.Result.GameID)
			assert.Equal(t, 2, registry.NumGames())
		})
	}
}

func TestFindNewGame_PicksClosestGame(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, registry := newTestMatchMaker(config.Default(), 1)
	segment := models.SegmentKey(constants.DefaultRoomID, "", "1")
	gameConfig := config.Default().GameConfig(constants.CategoryPvP, true)

	low := registry.CreateGame(g.TestScope, gameConfig, segment)
	high := registry.CreateGame(g.TestScope, gameConfig, segment)
	_, err := registry.Join(g.TestScope, low.ID, games.JoinParams{ConnID: "low", UserID: "low", Rating: 1000})
	g.Expect(err).ToNot(HaveOccurred())
	_, err = registry.Join(g.TestScope, high.ID, games.JoinParams{ConnID: "high", UserID: "high", Rating: 2000})
	g.Expect(err).ToNot(HaveOccurred())

	placement, err := mm.FindNewGame(g.TestScope, joinRequest(1, 1900))

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(placement.Result.GameID).To(Equal(high.ID))
}

func TestFindNewGame_SplitsOverFullGame(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			g := testsetup.ParallelWithGomega(t)
			cfg := config.Default()
			mm, registry := newTestMatchMaker(cfg, seed)
			game := registry.CreateGame(g.TestScope, cfg.GameConfig(constants.CategoryPvP, true), models.SegmentKey(constants.DefaultRoomID, "", "1"))
			for i := 0; i < 9; i++ {
				request := joinRequest(i, 1000+float64(i)*25)
				_, err := registry.Join(g.TestScope, game.ID, request.joinParams())
				g.Expect(err).ToNot(HaveOccurred())
			}

			placement, err := mm.FindNewGame(g.TestScope, joinRequest(9, 1500))

			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(placement.Outcome).To(Equal(constants.JoinOutcomeSplit))
			g.Expect(placement.Split).ToNot(BeNil())
			g.Expect(placement.Split.ParentID).To(Equal(game.ID))
			_, parentAlive := registry.Game(game.ID)
			g.Expect(parentAlive).To(BeFalse())

			fork, ok := registry.Game(placement.Result.GameID)
			g.Expect(ok).To(BeTrue())
			g.Expect(fork.Active).To(HaveKey("conn-9"))
			g.Expect(fork.NumActive()).To(BeNumerically(">=", 2))
			g.Expect(fork.NumActive()).To(BeNumerically("<=", 8))

			seen := map[string]int{}
			for _, f := range placement.Split.Forks {
				g.Expect(f.Splits).To(ConsistOf(models.SplitRecord{GameID: game.ID, Tick: game.Tick}))
				for connID := range f.Active {
					seen[connID]++
				}
			}
			g.Expect(seen).To(HaveLen(10))
			for connID, count := range seen {
				g.Expect(count).To(Equal(1), connID)
			}
		})
	}
}

func TestFindNewGame_NeverSplitsWithinCapacity(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	cfg := config.Default()
	segment := models.SegmentKey(constants.DefaultRoomID, "", "1")

	for seed := uint64(1); seed <= 50; seed++ {
		mm, registry := newTestMatchMaker(cfg, seed)
		game := registry.CreateGame(g.TestScope, cfg.GameConfig(constants.CategoryPvP, true), segment)
		for i := 0; i < 3; i++ {
			request := joinRequest(i, 1000)
			_, err := registry.Join(g.TestScope, game.ID, request.joinParams())
			g.Expect(err).ToNot(HaveOccurred())
		}

		placement, err := mm.FindNewGame(g.TestScope, joinRequest(3, 1000))

		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(placement.Split).To(BeNil(), "seed %d", seed)
		g.Expect(placement.Outcome).To(Equal(constants.JoinOutcomeJoined))
		g.Expect(placement.Result.GameID).To(Equal(game.ID))
		g.Expect(registry.NumGames()).To(Equal(1))
	}
}

func TestFindNewGame_RefusedBeyondHardMax(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	cfg := config.Default()
	// no split can keep 7 players on both sides of 13
	cfg.MinPartitionSize = 7
	mm, registry := newTestMatchMaker(cfg, 1)

	var gameID string
	for i := 0; i < cfg.HardMaxPlayers; i++ {
		placement, err := mm.FindNewGame(g.TestScope, joinRequest(i, 1000))
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(placement.Split).To(BeNil())
		gameID = placement.Result.GameID
	}
	game, _ := registry.Game(gameID)
	g.Expect(game.NumActive()).To(Equal(cfg.HardMaxPlayers))

	_, err := mm.FindNewGame(g.TestScope, joinRequest(cfg.HardMaxPlayers, 1000))
	g.Expect(err).To(MatchError(models.ErrGameFull))
	g.Expect(registry.NumGames()).To(Equal(1))
}

func TestFindNewGame_Reconnect(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, registry := newTestMatchMaker(config.Default(), 1)

	first, err := mm.FindNewGame(g.TestScope, joinRequest(0, 1000))
	g.Expect(err).ToNot(HaveOccurred())
	_, err = mm.FindNewGame(g.TestScope, joinRequest(1, 1000))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(registry.Leave(g.TestScope, first.Result.GameID, "conn-0", true)).To(BeTrue())

	request := joinRequest(0, 1000)
	request.ConnID = "conn-0-again"
	request.ReconnectGameID = first.Result.GameID
	request.ReconnectKey = first.Result.ReconnectKey
	resumed, err := mm.FindNewGame(g.TestScope, request)

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(resumed.Outcome).To(Equal(constants.JoinOutcomeReconnect))
	g.Expect(resumed.Result.HeroID).To(Equal(first.Result.HeroID))
	g.Expect(resumed.Result.ControlKey).ToNot(Equal(first.Result.ControlKey))
}

func TestFindNewGame_StaleReconnectFallsBackToMatchmaking(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, _ := newTestMatchMaker(config.Default(), 1)

	request := joinRequest(0, 1000)
	request.ReconnectGameID = "gone"
	request.ReconnectKey = "stale"
	placement, err := mm.FindNewGame(g.TestScope, request)

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(placement.Outcome).To(Equal(constants.JoinOutcomeCreated))
}

func startReadyParty(t *testing.T, registry *games.Registry, teams ...int) *models.Party {
	t.Helper()
	scope := testsetup.NewTestScope()
	party := registry.CreateParty(scope, "room", models.PartyMember{ConnID: "leader", UserID: "u-leader", Rating: 1000})
	_, err := registry.JoinParty(scope, party.ID, models.PartyMember{ConnID: "friend", UserID: "u-friend", Rating: 1100})
	require.NoError(t, err)
	_, err = registry.JoinParty(scope, party.ID, models.PartyMember{ConnID: "watcher", Name: "watcher"})
	require.NoError(t, err)

	for i, connID := range []string{"leader", "friend"} {
		team := 0
		if i < len(teams) {
			team = teams[i]
		}
		_, err = registry.UpdatePartyMember(scope, party.ID, connID, models.PartyMember{ConnID: connID, Ready: true, Team: team})
		require.NoError(t, err)
	}
	_, err = registry.UpdatePartyMember(scope, party.ID, "watcher", models.PartyMember{ConnID: "watcher", IsObserver: true})
	require.NoError(t, err)
	return party
}

func TestStartParty(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, registry := newTestMatchMaker(config.Default(), 1)
	party := startReadyParty(t, registry)

	placements, err := mm.StartParty(g.TestScope, party.ID, "leader")

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(placements).To(HaveLen(3))
	gameID := placements[0].Result.GameID
	for _, placement := range placements {
		g.Expect(placement.Err).ToNot(HaveOccurred())
		g.Expect(placement.Result.GameID).To(Equal(gameID))
		g.Expect(placement.Result.Observer).To(Equal(placement.ConnID == "watcher"))
	}

	game, _ := registry.Game(gameID)
	g.Expect(game.Segment).To(Equal(models.SegmentKey("room", party.ID+".0", "1")))
	g.Expect(game.Config.Ranked).To(BeFalse())
	g.Expect(game.Teams).To(BeNil())
	g.Expect(party.Version).To(Equal(1))
	g.Expect(party.IsReady()).To(BeFalse())
}

func TestStartParty_AssignsChosenTeams(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, registry := newTestMatchMaker(config.Default(), 1)
	party := startReadyParty(t, registry, 2, 1)

	placements, err := mm.StartParty(g.TestScope, party.ID, "leader")
	g.Expect(err).ToNot(HaveOccurred())

	heroOf := map[string]string{}
	for _, placement := range placements {
		heroOf[placement.ConnID] = placement.Result.HeroID
	}
	game, _ := registry.Game(placements[0].Result.GameID)
	g.Expect(game.Teams).To(Equal([][]string{{heroOf["friend"]}, {heroOf["leader"]}}))
}

func TestStartParty_Refused(t *testing.T) {
	tests := []struct {
		name    string
		partyID func(party *models.Party) string
		connID  string
		ready   bool
		wantErr error
	}{
		{name: "unknown_party", partyID: func(*models.Party) string { return "nope" }, connID: "leader", ready: true, wantErr: models.ErrPartyNotFound},
		{name: "not_leader", partyID: func(p *models.Party) string { return p.ID }, connID: "friend", ready: true, wantErr: models.ErrNotPartyLeader},
		{name: "not_ready", partyID: func(p *models.Party) string { return p.ID }, connID: "leader", ready: false, wantErr: models.ErrPartyNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm, registry := newTestMatchMaker(config.Default(), 1)
			scope := testsetup.NewTestScope()
			party := startReadyParty(t, registry)
			if !tt.ready {
				_, err := registry.UpdatePartyMember(scope, party.ID, "friend", models.PartyMember{ConnID: "friend"})
				require.NoError(t, err)
			}

			_, err := mm.StartParty(scope, tt.partyID(party), tt.connID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, registry.NumGames())
		})
	}
}

func TestChooseTeams_LoneHeroIsLeftAlone(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, _ := newTestMatchMaker(config.Default(), 1)
	placement, err := mm.FindNewGame(g.TestScope, joinRequest(0, 1000))
	g.Expect(err).ToNot(HaveOccurred())

	decision, err := mm.ChooseTeams(g.TestScope, placement.Result.GameID)

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(decision.Kind).To(Equal(rebalance.KindNoop))
}

func TestChooseTeams_UnknownGame(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	mm, _ := newTestMatchMaker(config.Default(), 1)

	_, err := mm.ChooseTeams(g.TestScope, "missing")
	g.Expect(err).To(MatchError(models.ErrGameNotFound))
}

func TestChooseTeams_AppliesDecision(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			g := testsetup.ParallelWithGomega(t)
			cfg := config.Default()
			mm, registry := newTestMatchMaker(cfg, seed)
			game := registry.CreateGame(g.TestScope, cfg.GameConfig(constants.CategoryPvP, true), "s")
			for i := 0; i < 4; i++ {
				request := joinRequest(i, 1000)
				_, err := registry.Join(g.TestScope, game.ID, request.joinParams())
				g.Expect(err).ToNot(HaveOccurred())
			}

			decision, err := mm.ChooseTeams(g.TestScope, game.ID)
			g.Expect(err).ToNot(HaveOccurred())

			switch decision.Kind {
			case rebalance.KindNoop:
				g.Expect(game.Teams).To(BeNil())
				g.Expect(registry.NumGames()).To(Equal(1))
			case rebalance.KindTeams:
				g.Expect(game.Teams).To(Equal(decision.Teams))
				g.Expect(len(decision.Teams)).To(Equal(2))
			case rebalance.KindSplit:
				_, parentAlive := registry.Game(game.ID)
				g.Expect(parentAlive).To(BeFalse())
				g.Expect(decision.Split.Forks).To(HaveLen(2))
				for _, fork := range decision.Split.Forks {
					g.Expect(fork.NumActive()).To(Equal(2))
				}
			}
		})
	}
}
