// internal/history/store.go
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id          UUID PRIMARY KEY,
	lobby_code  TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	settings    JSONB NOT NULL,
	blue_score  INT NOT NULL,
	red_score   INT NOT NULL,
	winner      TEXT NOT NULL,
	blue_team   JSONB NOT NULL,
	red_team    JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS game_rounds (
	game_id      UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	round_number INT NOT NULL,
	question     TEXT NOT NULL,
	answer       TEXT NOT NULL,
	tag          TEXT NOT NULL,
	blue_answer  TEXT NOT NULL,
	red_answer   TEXT NOT NULL,
	blue_steal   BOOLEAN NOT NULL,
	red_steal    BOOLEAN NOT NULL,
	blue_correct BOOLEAN NOT NULL,
	red_correct  BOOLEAN NOT NULL,
	winner       TEXT NOT NULL,
	blue_points  INT NOT NULL,
	red_points   INT NOT NULL,
	timed_out    BOOLEAN NOT NULL,
	PRIMARY KEY (game_id, round_number)
);
`

// Connect opens a pgx pool for url and pings it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// Store writes finished games to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

// Record writes one game. It satisfies Recorder for deployments without Redis.
func (s *Store) Record(ctx context.Context, rec GameRecord) error {
	return s.RecordBatch(ctx, []GameRecord{rec})
}

// RecordBatch writes recs in a single transaction. Re-recording a game replaces it.
func (s *Store) RecordBatch(ctx context.Context, recs []GameRecord) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertGameTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("game %s: %w", rec.GameID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx record games: %w", err)
	}
	return nil
}

func insertGameTx(ctx context.Context, tx pgx.Tx, rec GameRecord) error {
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return err
	}
	blue, err := json.Marshal(rec.BlueTeam)
	if err != nil {
		return err
	}
	red, err := json.Marshal(rec.RedTeam)
	if err != nil {
		return err
	}

	upsertGame := `
		INSERT INTO games (id, lobby_code, started_at, ended_at, settings, blue_score, red_score, winner, blue_team, red_team)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			blue_score = EXCLUDED.blue_score,
			red_score = EXCLUDED.red_score,
			winner = EXCLUDED.winner
	`
	if _, err := tx.Exec(ctx, upsertGame,
		rec.GameID, rec.LobbyCode, rec.StartedAt, rec.EndedAt, settings,
		rec.Scores.Blue, rec.Scores.Red, string(rec.Winner), blue, red,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM game_rounds WHERE game_id = $1`, rec.GameID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range rec.Rounds {
		batch.Queue(`
			INSERT INTO game_rounds (
				game_id, round_number, question, answer, tag, blue_answer, red_answer,
				blue_steal, red_steal, blue_correct, red_correct, winner, blue_points, red_points, timed_out
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			rec.GameID, r.RoundNumber, r.Question, r.Answer, r.Tag, r.BlueAnswer, r.RedAnswer,
			r.BlueSteal, r.RedSteal, r.BlueCorrect, r.RedCorrect, r.Winner, r.BluePoints, r.RedPoints, r.TimedOut,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}
