// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package archive keeps the records of finished games in SQLite. The win-rate distribution
// is rebuilt from it.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

var ErrNotFound = errors.New("game record not found")

const schema = `
CREATE TABLE IF NOT EXISTS games (
  game_id     TEXT PRIMARY KEY,
  universe_id TEXT NOT NULL,
  category    TEXT NOT NULL,
  ranked      INTEGER NOT NULL,
  win_tick    INTEGER NOT NULL,
  num_ticks   INTEGER NOT NULL,
  splits      TEXT NOT NULL,
  players     TEXT NOT NULL,
  finished_at INTEGER NOT NULL,
  history     TEXT NOT NULL DEFAULT 'null'
);
CREATE INDEX IF NOT EXISTS games_category_finished_at ON games (category, finished_at);
`

type Archive struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the archive at path and creates its schema.
func Open(path string) (*Archive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Archive{sqlDB: sqlDB}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.sqlDB == nil {
		return nil
	}
	return a.sqlDB.Close()
}

// SaveGame stores the record, replacing any previous record of the same game.
func (a *Archive) SaveGame(ctx context.Context, record models.GameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.GameID == "" {
		return fmt.Errorf("game id is required")
	}
	splits, err := json.Marshal(record.Splits)
	if err != nil {
		return fmt.Errorf("encode splits: %w", err)
	}
	players, err := json.Marshal(record.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	history, err := json.Marshal(record.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = a.sqlDB.ExecContext(
		ctx,
		`INSERT INTO games (
		   game_id,
		   universe_id,
		   category,
		   ranked,
		   win_tick,
		   num_ticks,
		   splits,
		   players,
		   finished_at,
		   history
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(game_id) DO UPDATE SET
		   universe_id = excluded.universe_id,
		   category = excluded.category,
		   ranked = excluded.ranked,
		   win_tick = excluded.win_tick,
		   num_ticks = excluded.num_ticks,
		   splits = excluded.splits,
		   players = excluded.players,
		   finished_at = excluded.finished_at,
		   history = excluded.history`,
		record.GameID,
		record.UniverseID,
		record.Category,
		record.Ranked,
		record.WinTick,
		record.NumTicks,
		string(splits),
		string(players),
		toMillis(record.FinishedAt),
		string(history),
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", record.GameID, err)
	}
	return nil
}

const selectColumns = `game_id, universe_id, category, ranked, win_tick, num_ticks, splits, players, finished_at`

// GetGame returns the record of the game including its tick history.
func (a *Archive) GetGame(ctx context.Context, gameID string) (models.GameRecord, error) {
	row := a.sqlDB.QueryRowContext(ctx, `SELECT `+selectColumns+`, history FROM games WHERE game_id = ?`, gameID)
	var history string
	record, err := scanRecord(row, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GameRecord{}, ErrNotFound
	}
	if err != nil {
		return models.GameRecord{}, err
	}
	if err := json.Unmarshal([]byte(history), &record.History); err != nil {
		return models.GameRecord{}, fmt.Errorf("decode history of %s: %w", record.GameID, err)
	}
	return record, nil
}

// StreamGames calls fn with every game of the category, oldest first. Records are streamed
// without their history. It stops at the first error fn returns.
func (a *Archive) StreamGames(ctx context.Context, category string, fn func(models.GameRecord) error) error {
	rows, err := a.sqlDB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM games WHERE category = ? ORDER BY finished_at, game_id`, category)
	if err != nil {
		return fmt.Errorf("query %s games: %w", category, err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the selected columns followed by the extra destinations.
func scanRecord(row scanner, extra ...any) (models.GameRecord, error) {
	var (
		record     models.GameRecord
		splits     string
		players    string
		finishedAt int64
	)
	dest := append([]any{
		&record.GameID,
		&record.UniverseID,
		&record.Category,
		&record.Ranked,
		&record.WinTick,
		&record.NumTicks,
		&splits,
		&players,
		&finishedAt,
	}, extra...)
	err := row.Scan(dest...)
	if err != nil {
		return models.GameRecord{}, err
	}
	if err := json.Unmarshal([]byte(splits), &record.Splits); err != nil {
		return models.GameRecord{}, fmt.Errorf("decode splits of %s: %w", record.GameID, err)
	}
	if err := json.Unmarshal([]byte(players), &record.Players); err != nil {
		return models.GameRecord{}, fmt.Errorf("decode players of %s: %w", record.GameID, err)
	}
	record.FinishedAt = fromMillis(finishedAt)
	return record, nil
}
