// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package games

import (
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/testsetup"
)

func newTestRegistry() *Registry {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return NewRegistry(testsetup.NewMetrics(), testsetup.NewRand(1), WithClock(clock))
}

func testGameConfig() models.GameConfig {
	return config.Default().GameConfig("PvP", true)
}

func joinPlayers(t *testing.T, r *Registry, g *models.Game, n int) []*JoinResult {
	t.Helper()
	scope := testsetup.NewTestScope()
	results := make([]*JoinResult, 0, n)
	for i := 0; i < n; i++ {
		result, err := r.Join(scope, g.ID, JoinParams{
			ConnID: fmt.Sprintf("conn-%d", i),
			UserID: fmt.Sprintf("user-%d", i),
			Name:   fmt.Sprintf("player %d", i),
			Rating: 1000 + float64(i)*10,
		})
		require.NoError(t, err)
		results = append(results, result)
	}
	return results
}

func TestRegistry_CreateGame(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()

	game := r.CreateGame(g.TestScope, testGameConfig(), "r=default/p=/v=1")

	g.Expect(game.ID).To(HaveLen(32))
	g.Expect(game.UniverseID).ToNot(BeEmpty())
	g.Expect(game.IsJoinable()).To(BeTrue())
	g.Expect(game.CloseTick).To(Equal(models.NeverTick))
	g.Expect(r.NumGames()).To(Equal(1))
	g.Expect(r.GamesInSegment("r=default/p=/v=1")).To(ConsistOf(game))
	g.Expect(r.GamesInSegment("r=other/p=/v=1")).To(BeEmpty())
}

func TestRegistry_JoinIssuesUniqueControlKeys(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")

	results := joinPlayers(t, r, game, 6)

	keys := map[models.ControlKey]bool{}
	heroes := map[string]bool{}
	for _, result := range results {
		g.Expect(result.ControlKey).ToNot(BeZero())
		g.Expect(keys).ToNot(HaveKey(result.ControlKey))
		g.Expect(heroes).ToNot(HaveKey(result.HeroID))
		g.Expect(result.ReconnectKey).ToNot(BeEmpty())
		keys[result.ControlKey] = true
		heroes[result.HeroID] = true
	}
	g.Expect(game.ControlKeys).To(HaveLen(6))
	g.Expect(game.ControlMessages).To(HaveLen(6))
	g.Expect(game.ControlMessages[0].Type).To(Equal(models.ControlJoin))
	g.Expect(*game.ControlMessages[0].Rating).To(Equal(1000.0))
}

func TestRegistry_JoinFailures(t *testing.T) {
	scope := testsetup.NewTestScope()

	t.Run("unknown_game", func(t *testing.T) {
		r := newTestRegistry()
		_, err := r.Join(scope, "missing", JoinParams{ConnID: "c"})
		assert.ErrorIs(t, err, models.ErrGameNotFound)
	})

	t.Run("full_game", func(t *testing.T) {
		r := newTestRegistry()
		cfg := testGameConfig()
		cfg.HardMaxPlayers = 2
		game := r.CreateGame(scope, cfg, "s")
		joinPlayers(t, r, game, 2)

		_, err := r.Join(scope, game.ID, JoinParams{ConnID: "late"})
		assert.ErrorIs(t, err, models.ErrGameFull)
	})

	t.Run("closed_game", func(t *testing.T) {
		r := newTestRegistry()
		game := r.CreateGame(scope, testGameConfig(), "s")
		joinPlayers(t, r, game, 1)
		game.CloseTick = 0

		_, err := r.Join(scope, game.ID, JoinParams{ConnID: "late"})
		assert.ErrorIs(t, err, models.ErrGameNotJoinable)
	})
}

func TestRegistry_LeaveWithBotRejectsStaleKey(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	results := joinPlayers(t, r, game, 2)
	leaver := results[0]

	g.Expect(r.Leave(g.TestScope, game.ID, "conn-0", true)).To(BeTrue())

	g.Expect(game.Bots).To(HaveKeyWithValue(leaver.HeroID, ""))
	botKey, ok := game.ControlKeyOf(leaver.HeroID)
	g.Expect(ok).To(BeTrue())
	g.Expect(botKey).ToNot(Equal(leaver.ControlKey))
	g.Expect(game.ControlMessages[len(game.ControlMessages)-1]).To(Equal(models.NewBotMessage(leaver.HeroID, botKey)))

	stale := models.Action{ControlKey: leaver.ControlKey, Type: models.ActionMove, Target: &models.Vec2{X: 1, Y: 1}}
	g.Expect(r.QueueAction(g.TestScope, game.ID, stale)).To(BeFalse())
	g.Expect(game.Actions).ToNot(HaveKey(leaver.HeroID))

	botAction := models.Action{ControlKey: botKey, Type: models.ActionMove, Target: &models.Vec2{X: 2, Y: 2}}
	g.Expect(r.QueueAction(g.TestScope, game.ID, botAction)).To(BeTrue())
	g.Expect(game.Actions[leaver.HeroID].Target).To(Equal(&models.Vec2{X: 2, Y: 2}))
}

func TestRegistry_LeaveWithoutBot(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	results := joinPlayers(t, r, game, 2)

	g.Expect(r.Leave(g.TestScope, game.ID, "conn-1", false)).To(BeTrue())
	g.Expect(r.Leave(g.TestScope, game.ID, "conn-1", false)).To(BeFalse())
	g.Expect(r.Leave(g.TestScope, "missing", "conn-0", false)).To(BeFalse())

	g.Expect(game.Active).ToNot(HaveKey("conn-1"))
	g.Expect(game.ControlKeys).ToNot(HaveKey(results[1].ControlKey))
	g.Expect(game.ControlMessages[len(game.ControlMessages)-1]).To(Equal(models.NewLeaveMessage(results[1].HeroID)))
	_, inGame := r.GameOf("conn-1")
	g.Expect(inGame).To(BeFalse())
}

func TestRegistry_Reconnect(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	results := joinPlayers(t, r, game, 2)
	r.Leave(g.TestScope, game.ID, "conn-0", true)
	game.CloseTick = 0

	result, err := r.Join(g.TestScope, game.ID, JoinParams{ConnID: "conn-0b", ReconnectKey: results[0].ReconnectKey, Rating: 1000})

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Reconnected).To(BeTrue())
	g.Expect(result.HeroID).To(Equal(results[0].HeroID))
	g.Expect(result.ControlKey).ToNot(Equal(results[0].ControlKey))
	g.Expect(game.Bots).To(BeEmpty())
	g.Expect(game.ControlKeys).To(HaveLen(2))
}

func TestRegistry_JoinClaimsFreeBot(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	results := joinPlayers(t, r, game, 2)
	r.Leave(g.TestScope, game.ID, "conn-0", true)

	result, err := r.Join(g.TestScope, game.ID, JoinParams{ConnID: "newcomer", UserID: "user-new", Rating: 1200})

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.HeroID).To(Equal(results[0].HeroID))
	g.Expect(game.Heroes[result.HeroID].UserID).To(Equal("user-new"))
	g.Expect(game.Bots).To(BeEmpty())
}

func TestRegistry_AddBotsAndTakeControl(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	cfg := testGameConfig()
	cfg.MinPlayers = 4
	game := r.CreateGame(g.TestScope, cfg, "s")
	joinPlayers(t, r, game, 2)

	g.Expect(r.AddBots(g.TestScope, game.ID, "conn-0")).To(Equal(2))
	g.Expect(r.AddBots(g.TestScope, game.ID, "conn-0")).To(Equal(0))
	g.Expect(game.Bots).To(HaveLen(2))
	g.Expect(game.NumSlots()).To(Equal(4))

	botHero := sortedBots(game)[0]
	oldKey, _ := game.ControlKeyOf(botHero)
	newKey, ok := r.TakeBotControl(g.TestScope, game.ID, botHero, "conn-1")

	g.Expect(ok).To(BeTrue())
	g.Expect(newKey).ToNot(Equal(oldKey))
	g.Expect(game.Bots[botHero]).To(Equal("conn-1"))
	g.Expect(game.ControlKeys).ToNot(HaveKey(oldKey))

	_, ok = r.TakeBotControl(g.TestScope, game.ID, "not-a-bot", "conn-1")
	g.Expect(ok).To(BeFalse())
}

func TestRegistry_QueueActionPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		queued models.ActionType
		next   models.ActionType
		want   models.ActionType
		ok     bool
	}{
		{name: "move_replaced_by_spell", queued: models.ActionMove, next: models.ActionSpell, want: models.ActionSpell, ok: true},
		{name: "spell_kept_over_move", queued: models.ActionSpell, next: models.ActionMove, want: models.ActionSpell, ok: false},
		{name: "stop_replaces_everything", queued: models.ActionSpell, next: models.ActionStop, want: models.ActionStop, ok: true},
		{name: "same_type_replaces", queued: models.ActionRetarget, next: models.ActionRetarget, want: models.ActionRetarget, ok: true},
		{name: "retarget_kept_over_move", queued: models.ActionRetarget, next: models.ActionMove, want: models.ActionRetarget, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := testsetup.NewTestScope()
			r := newTestRegistry()
			game := r.CreateGame(scope, testGameConfig(), "s")
			result := joinPlayers(t, r, game, 1)[0]

			require.True(t, r.QueueAction(scope, game.ID, models.Action{ControlKey: result.ControlKey, Type: tt.queued}))
			assert.Equal(t, tt.ok, r.QueueAction(scope, game.ID, models.Action{ControlKey: result.ControlKey, Type: tt.next}))
			assert.Equal(t, tt.want, game.Actions[result.HeroID].Type)
		})
	}
}

func TestRegistry_SpellPullsCloseTickForward(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	result := joinPlayers(t, r, game, 1)[0]
	game.Tick = 100

	r.QueueAction(g.TestScope, game.ID, models.Action{ControlKey: result.ControlKey, Type: models.ActionMove})
	g.Expect(game.CloseTick).To(Equal(models.NeverTick))
	g.Expect(game.ActiveTick).To(Equal(int64(100)))

	r.QueueAction(g.TestScope, game.ID, models.Action{ControlKey: result.ControlKey, Type: models.ActionSpell, SpellID: "fireball"})
	g.Expect(game.CloseTick).To(Equal(100 + game.Config.JoinPeriodTicks))

	game.Tick = 150
	r.QueueAction(g.TestScope, game.ID, models.Action{ControlKey: result.ControlKey, Type: models.ActionSpell, SpellID: "fireball"})
	g.Expect(game.CloseTick).To(Equal(100 + game.Config.JoinPeriodTicks))
}

func TestRegistry_UnknownGameIsNoop(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()

	g.Expect(r.QueueAction(g.TestScope, "missing", models.Action{ControlKey: 1, Type: models.ActionMove})).To(BeFalse())
	g.Expect(r.QueueControlMessage(g.TestScope, "missing", models.NewFinishMessage())).To(BeFalse())
	g.Expect(r.QueueSync(g.TestScope, "missing", "c", models.SyncSnapshot{})).To(BeFalse())
	g.Expect(r.ReceiveScore(g.TestScope, "missing", "c", models.ScoreReport{})).To(BeFalse())
	g.Expect(r.AssignTeams(g.TestScope, "missing", [][]string{{"h1"}, {"h2"}})).To(BeFalse())
	g.Expect(r.AddBots(g.TestScope, "missing", "c")).To(BeZero())
}

func TestRegistry_QueueSyncLatestWins(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	joinPlayers(t, r, game, 1)

	g.Expect(r.QueueSync(g.TestScope, game.ID, "conn-0", models.SyncSnapshot{Tick: 1, Payload: []byte(`{"a":1}`)})).To(BeTrue())
	g.Expect(r.QueueSync(g.TestScope, game.ID, "conn-0", models.SyncSnapshot{Tick: 2, Payload: []byte(`{"a":2}`)})).To(BeTrue())
	g.Expect(r.QueueSync(g.TestScope, game.ID, "stranger", models.SyncSnapshot{Tick: 3})).To(BeFalse())
	g.Expect(game.Sync.Tick).To(Equal(int64(2)))
}

func TestRegistry_AssignTeams(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	results := joinPlayers(t, r, game, 2)

	g.Expect(r.AssignTeams(g.TestScope, game.ID, [][]string{{results[0].HeroID}, {results[1].HeroID}})).To(BeTrue())
	g.Expect(game.Teams).To(HaveLen(2))
	g.Expect(game.ControlMessages[len(game.ControlMessages)-1].Type).To(Equal(models.ControlTeams))

	g.Expect(r.AssignTeams(g.TestScope, game.ID, [][]string{{results[0].HeroID}, {"ghost"}})).To(BeFalse())
}
