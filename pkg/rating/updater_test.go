// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package rating

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/aco"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/store"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/testsetup"
)

var day0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.Store {
	s := miniredis.RunT(t)
	st := store.NewRedisStore(store.Options{Addr: s.Addr()}, "test", 5)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestUpdater(st *store.Store, now time.Time) *Updater {
	cfg := config.Default()
	return NewUpdater(cfg, st, aco.NewModel(cfg), nil, testsetup.NewMetrics(), WithClock(func() time.Time { return now }))
}

func player(userID string, rank, team int) models.RecordPlayer {
	return models.RecordPlayer{HeroID: "h-" + userID, UserID: userID, Rating: 1500, Rank: rank, Team: team}
}

func record(ranked bool, players ...models.RecordPlayer) models.GameRecord {
	return models.GameRecord{GameID: "game", Category: constants.CategoryPvP, Ranked: ranked, Players: players}
}

func changesByUser(changes []Change) map[string]float64 {
	deltas := make(map[string]float64, len(changes))
	for _, c := range changes {
		deltas[c.UserID] = c.Delta
	}
	return deltas
}

func TestUpdate_RankedDuel(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)
	winner := player("a", 1, 0)
	winner.Damage, winner.Kills = 120, 3

	changes, err := updater.Update(g.TestScope, record(true, winner, player("b", 2, 0)))

	g.Expect(err).ToNot(HaveOccurred())
	deltas := changesByUser(changes)
	// K * (1 - 0.5) * (1 - 0.5) for two equally rated players
	g.Expect(deltas["a"]).To(BeNumerically("~", 8, 1e-9))
	g.Expect(deltas["b"]).To(BeNumerically("~", -8, 1e-9))

	a, err := updater.Get(g.TestScope, "a", constants.CategoryPvP)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(a.Aco).To(BeNumerically("~", 1508, 1e-9))
	g.Expect(a.AcoUnranked).To(BeNumerically("~", 1504, 1e-9))
	g.Expect(a.AcoGames).To(Equal(1))
	g.Expect(a.NumGames).To(Equal(1))
	g.Expect(a.DamagePerGame).To(BeNumerically("~", 120, 1e-9))
	g.Expect(a.KillsPerGame).To(BeNumerically("~", 3, 1e-9))
	g.Expect(a.WinRate).To(BeNumerically("~", 1, 1e-9))
	g.Expect(a.UpdatedAt.Equal(day0)).To(BeTrue())

	b, err := updater.Get(g.TestScope, "b", constants.CategoryPvP)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(b.Aco).To(BeNumerically("~", 1492, 1e-9))
	g.Expect(b.WinRate).To(BeZero())

	var decay models.DecayRecord
	g.Expect(st.Get(g.TestScope.Ctx, constants.CollectionDecay, decayID(constants.CategoryPvP, "2025-03-01", "a"), &decay)).To(Succeed())
	g.Expect(decay.Delta).To(BeNumerically("~", 8, 1e-9))
}

func TestUpdate_DuelIsZeroSum(t *testing.T) {
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)
	scope := testsetup.NewTestScope()
	rng := testsetup.NewRand(7)

	for i := 0; i < 50; i++ {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		for _, userID := range []string{a, b} {
			doc := models.NewUserRating(userID, constants.CategoryPvP, 800+rng.Float64()*1400)
			require.NoError(t, st.Set(scope.Ctx, constants.CollectionRatings, ratingID(constants.CategoryPvP, userID), doc))
		}
		rankA, rankB := 1, 2
		switch rng.IntN(3) {
		case 1:
			rankA, rankB = 2, 1
		case 2:
			rankB = 1
		}

		changes, err := updater.Update(scope, record(true, player(a, rankA, 0), player(b, rankB, 0)))
		require.NoError(t, err)
		require.Len(t, changes, 2)
		deltas := changesByUser(changes)
		assert.InDelta(t, 0, deltas[a]+deltas[b], 1e-9, "game %d", i)
	}
}

func TestUpdate_Skipped(t *testing.T) {
	tests := []struct {
		name   string
		record models.GameRecord
	}{
		{name: "not_corroborated", record: record(true, player("a", 0, 0), player("b", 0, 0))},
		{name: "only_anonymous", record: record(true, player("", 1, 0), player("", 2, 0))},
		{name: "single_team", record: record(true, player("a", 1, 1), player("b", 1, 1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			updater := newTestUpdater(st, day0)
			scope := testsetup.NewTestScope()

			changes, err := updater.Update(scope, tt.record)
			require.NoError(t, err)
			assert.Empty(t, changes)

			err = st.StreamQuery(scope.Ctx, constants.CollectionRatings, "", func(id string, _ []byte) error {
				return fmt.Errorf("unexpected rating %s", id)
			})
			assert.NoError(t, err)
		})
	}
}

func TestUpdate_Unranked(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)

	_, err := updater.Update(g.TestScope, record(false, player("a", 2, 0), player("b", 1, 0)))
	g.Expect(err).ToNot(HaveOccurred())

	a, err := updater.Get(g.TestScope, "a", constants.CategoryPvP)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(a.Aco).To(Equal(1500.0))
	g.Expect(a.AcoUnranked).To(BeNumerically("~", 1492, 1e-9))
	g.Expect(a.AcoGames).To(BeZero())
	g.Expect(a.AcoUnrankedGames).To(Equal(1))

	var decay models.DecayRecord
	err = st.Get(g.TestScope.Ctx, constants.CollectionDecay, decayID(constants.CategoryPvP, "2025-03-01", "a"), &decay)
	g.Expect(err).To(MatchError(store.ErrNotFound))
}

func TestUpdate_UnrankedFloor(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)
	doc := models.NewUserRating("a", constants.CategoryPvP, 1500)
	doc.AcoUnranked = 1200
	g.Expect(st.Set(g.TestScope.Ctx, constants.CollectionRatings, ratingID(constants.CategoryPvP, "a"), doc)).To(Succeed())

	_, err := updater.Update(g.TestScope, record(true, player("a", 2, 0), player("b", 1, 0)))
	g.Expect(err).ToNot(HaveOccurred())

	a, err := updater.Get(g.TestScope, "a", constants.CategoryPvP)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(a.AcoUnranked).To(BeNumerically("~", a.Aco-200, 1e-9))
}

func TestUpdate_BotsAndAnonymousPlayersAreIgnored(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)
	anonymous := player("", 3, 0)
	anonymous.HeroID = "h-anonymous"
	bot := player("", 2, 0)
	bot.HeroID = "h-bot"
	bot.IsBot = true

	for i := 0; i < 10; i++ {
		changes, err := updater.Update(g.TestScope, record(true, player("a", 1, 0), bot, anonymous))
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(changes).To(BeEmpty())
	}

	a, err := updater.Get(g.TestScope, "a", constants.CategoryPvP)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(a.Aco).To(Equal(1500.0))
	g.Expect(a.AcoGames).To(BeZero())
}

func TestUpdate_AnonymousPlayerDoesNotCountTowardsTeamMean(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)
	anonymous := player("", 2, 1)
	anonymous.HeroID = "h-anonymous"
	anonymous.Rating = 100

	changes, err := updater.Update(g.TestScope, record(true, player("a", 1, 1), anonymous, player("b", 3, 2)))

	g.Expect(err).ToNot(HaveOccurred())
	deltas := changesByUser(changes)
	g.Expect(deltas).To(HaveLen(2))
	// a plays alone against b at equal ratings
	g.Expect(deltas["a"]).To(BeNumerically("~", 8, 1e-9))
	g.Expect(deltas["b"]).To(BeNumerically("~", -8, 1e-9))
}

func TestUpdate_TeamsLearnSlower(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)

	changes, err := updater.Update(g.TestScope, record(true,
		player("a", 1, 1), player("b", 3, 1),
		player("c", 2, 2), player("d", 4, 2),
	))

	g.Expect(err).ToNot(HaveOccurred())
	deltas := changesByUser(changes)
	g.Expect(deltas).To(HaveLen(4))
	want := 8 / math.Sqrt(2)
	g.Expect(deltas["a"]).To(BeNumerically("~", want, 1e-9))
	g.Expect(deltas["b"]).To(BeNumerically("~", want, 1e-9))
	g.Expect(deltas["c"]).To(BeNumerically("~", -want, 1e-9))
	g.Expect(deltas["d"]).To(BeNumerically("~", -want, 1e-9))
}

func TestUpdate_LearningRateIsCapped(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	updater := newTestUpdater(st, day0)

	changes, err := updater.Update(g.TestScope, record(true,
		player("a", 1, 0), player("b", 2, 0), player("c", 3, 0), player("d", 4, 0),
	))

	g.Expect(err).ToNot(HaveOccurred())
	deltas := changesByUser(changes)
	// three duels of 8 scaled from a summed rate of 3 down to 1.5
	g.Expect(deltas["a"]).To(BeNumerically("~", 12, 1e-9))
	g.Expect(deltas["d"]).To(BeNumerically("~", -12, 1e-9))
	g.Expect(deltas["b"]).To(BeNumerically("~", 4, 1e-9))
	g.Expect(deltas["c"]).To(BeNumerically("~", -4, 1e-9))
}

func TestDecay(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	st := newTestStore(t)
	_, err := newTestUpdater(st, day0).Update(g.TestScope, record(true, player("a", 1, 0), player("b", 2, 0)))
	g.Expect(err).ToNot(HaveOccurred())

	applied, err := newTestUpdater(st, day0.AddDate(0, 0, 5)).Decay(g.TestScope)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(applied).To(BeZero())

	later := newTestUpdater(st, day0.AddDate(0, 0, 15))
	applied, err = later.Decay(g.TestScope)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(applied).To(Equal(2))

	a, err := later.Get(g.TestScope, "a", constants.CategoryPvP)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(a.Aco).To(BeNumerically("~", 1504, 1e-9))
	g.Expect(a.AcoDeflate).To(BeNumerically("~", 4, 1e-9))

	b, err := later.Get(g.TestScope, "b", constants.CategoryPvP)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(b.Aco).To(BeNumerically("~", 1492, 1e-9))
	g.Expect(b.AcoDeflate).To(BeZero())

	applied, err = later.Decay(g.TestScope)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(applied).To(BeZero())
}
