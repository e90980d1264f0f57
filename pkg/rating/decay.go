// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package rating

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/store"
)

// Decay claws back a fraction of every daily gain older than DecayAfterDays. The clawed back
// rating moves from Aco to AcoDeflate. Losses are not given back. Each record is applied once.
// It returns the number of records applied.
func (u *Updater) Decay(rootScope *envelope.Scope) (int, error) {
	scope := rootScope.NewChildScope("rating.Decay")
	defer scope.Finish()

	cutoff := models.DayBucket(u.clock().AddDate(0, 0, -u.cfg.DecayAfterDays))
	var due []string
	err := u.store.StreamQuery(scope.Ctx, constants.CollectionDecay, "", func(id string, raw []byte) error {
		var record models.DecayRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			scope.Log.WithError(err).WithField("decayID", id).Warn("skipping unreadable decay record")
			return nil
		}
		if !record.Applied && record.Day < cutoff {
			due = append(due, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, id := range due {
		ok, err := u.applyDecay(scope, id)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	scope.Log.WithField("numApplied", applied).WithField("cutoff", cutoff).Info("rating decay applied")
	return applied, nil
}

func (u *Updater) applyDecay(scope *envelope.Scope, id string) (bool, error) {
	applied := false
	err := u.store.RunTransaction(scope.Ctx, func(tx *store.Tx) error {
		applied = false
		var record models.DecayRecord
		found, err := tx.Get(constants.CollectionDecay, id, &record)
		if err != nil || !found || record.Applied {
			return err
		}

		if record.Delta > 0 {
			rating := models.NewUserRating(record.UserID, record.Category, u.cfg.InitialRating)
			if _, err := tx.Get(constants.CollectionRatings, ratingID(record.Category, record.UserID), rating); err != nil {
				return err
			}
			clawback := record.Delta * u.cfg.DecayFraction
			rating.Aco -= clawback
			rating.AcoDeflate += clawback
			if err := tx.Set(constants.CollectionRatings, ratingID(record.Category, record.UserID), rating); err != nil {
				return err
			}
		}
		record.Applied = true
		applied = true
		return tx.Set(constants.CollectionDecay, id, record)
	})
	return applied, err
}

// RunDecay applies decay now and then once a day until the scope's context ends.
func (u *Updater) RunDecay(rootScope *envelope.Scope) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := u.Decay(rootScope); err != nil {
			rootScope.Log.WithError(err).Error("rating decay failed")
		}
		select {
		case <-rootScope.Ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
