// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import "time"

// UserRating is the rating document of one user in one game category.
type UserRating struct {
	UserID           string    `json:"userId"`
	Category         string    `json:"category"`
	Aco              float64   `json:"aco"`
	AcoUnranked      float64   `json:"acoUnranked"`
	AcoGames         int       `json:"acoGames"`
	AcoUnrankedGames int       `json:"acoUnrankedGames"`
	AcoDeflate       float64   `json:"acoDeflate"`
	DamagePerGame    float64   `json:"damagePerGame"`
	KillsPerGame     float64   `json:"killsPerGame"`
	WinRate          float64   `json:"winRate"`
	NumGames         int       `json:"numGames"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func NewUserRating(userID, category string, initial float64) *UserRating {
	return &UserRating{
		UserID:      userID,
		Category:    category,
		Aco:         initial,
		AcoUnranked: initial,
	}
}

// Effective is the rating used for matchmaking.
func (r *UserRating) Effective(ranked bool) float64 {
	if ranked {
		return r.Aco
	}
	return r.AcoUnranked
}

// WinRateBucket aggregates finished games whose rating difference falls in [MinDiff, MaxDiff).
// Counts are weighted so that large games do not dominate.
type WinRateBucket struct {
	MinDiff      float64 `json:"minDiff"`
	MaxDiff      float64 `json:"maxDiff"`
	Midpoint     float64 `json:"midpoint"`
	NumGames     float64 `json:"numGames"`
	ExpectedWins float64 `json:"expectedWins"`
	WinRate      float64 `json:"winRate"`
}

// DecayRecord is the rating gained by a user in one category on one day.
type DecayRecord struct {
	UserID   string    `json:"userId"`
	Category string    `json:"category"`
	Day      string    `json:"day"`
	Delta    float64   `json:"delta"`
	Applied  bool      `json:"applied"`
	At       time.Time `json:"at"`
}

// DayBucket formats the day a decay record is keyed by.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
