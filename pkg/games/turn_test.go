// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package games

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/testsetup"
)

func TestRegistry_AdvanceTurnAssemblesPackets(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	results := joinPlayers(t, r, game, 3)
	for i := len(results) - 1; i >= 0; i-- {
		r.QueueAction(g.TestScope, game.ID, models.Action{ControlKey: results[i].ControlKey, Type: models.ActionMove})
	}
	r.QueueSync(g.TestScope, game.ID, "conn-0", models.SyncSnapshot{Tick: 0})

	turn := r.AdvanceTurn(g.TestScope, 2)

	g.Expect(turn.Emissions).To(HaveLen(1))
	packets := turn.Emissions[0].Packets
	g.Expect(packets).To(HaveLen(2))
	g.Expect(packets[0].Tick).To(Equal(int64(1)))
	g.Expect(packets[0].UniverseID).To(Equal(game.UniverseID))
	g.Expect(packets[0].ControlMessages).To(HaveLen(3))
	g.Expect(packets[0].SyncSnapshot).ToNot(BeNil())
	g.Expect(packets[0].Actions).To(HaveLen(3))
	for i := 1; i < len(packets[0].Actions); i++ {
		g.Expect(packets[0].Actions[i-1].HeroID < packets[0].Actions[i].HeroID).To(BeTrue())
	}

	g.Expect(packets[1].Tick).To(Equal(int64(2)))
	g.Expect(packets[1].IsEmpty()).To(BeTrue())
	g.Expect(game.History).To(Equal(packets))
	g.Expect(game.Actions).To(BeEmpty())
}

func TestRegistry_AdvanceTurnSkipsIdleGames(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	cfg := testGameConfig()
	cfg.IdleTicks = 4
	game := r.CreateGame(g.TestScope, cfg, "s")
	results := joinPlayers(t, r, game, 1)

	r.AdvanceTurn(g.TestScope, 2)
	r.AdvanceTurn(g.TestScope, 2)
	g.Expect(game.Tick).To(Equal(int64(4)))
	g.Expect(r.HasPendingWork()).To(BeFalse())

	turn := r.AdvanceTurn(g.TestScope, 2)
	g.Expect(turn.Emissions).To(BeEmpty())
	g.Expect(game.Tick).To(Equal(int64(4)))

	r.QueueAction(g.TestScope, game.ID, models.Action{ControlKey: results[0].ControlKey, Type: models.ActionMove})
	g.Expect(r.HasPendingWork()).To(BeTrue())
	turn = r.AdvanceTurn(g.TestScope, 2)
	g.Expect(turn.Emissions[0].Packets[0].Tick).To(Equal(int64(5)))
}

func TestRegistry_AdvanceTurnFinishesEmptyGames(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	game := r.CreateGame(g.TestScope, testGameConfig(), "s")
	joinPlayers(t, r, game, 1)
	r.AdvanceTurn(g.TestScope, 2)
	r.Leave(g.TestScope, game.ID, "conn-0", true)

	turn := r.AdvanceTurn(g.TestScope, 4)

	g.Expect(turn.Finished).To(ConsistOf(game))
	packets := turn.Emissions[0].Packets
	g.Expect(packets).To(HaveLen(1))
	last := packets[0].ControlMessages[len(packets[0].ControlMessages)-1]
	g.Expect(last.Type).To(Equal(models.ControlFinish))
	g.Expect(game.Result).To(BeNil())
	g.Expect(r.NumGames()).To(BeZero())
}

func TestRegistry_AdvanceTurnBoundsHistory(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	r := newTestRegistry()
	cfg := testGameConfig()
	cfg.MaxHistoryLength = 3
	game := r.CreateGame(g.TestScope, cfg, "s")
	joinPlayers(t, r, game, 1)

	r.AdvanceTurn(g.TestScope, 5)

	g.Expect(game.History).To(HaveLen(3))
	g.Expect(game.HistoryExceeded).To(BeTrue())
	g.Expect(game.IsJoinable()).To(BeFalse())
	_, err := r.Join(g.TestScope, game.ID, JoinParams{ConnID: "late"})
	g.Expect(err).To(MatchError(models.ErrGameNotJoinable))
}
