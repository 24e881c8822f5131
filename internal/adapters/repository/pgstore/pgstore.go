// Package pgstore persists route scores in PostgreSQL.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS route_scores (
		route_id          TEXT             NOT NULL,
		time_bucket       TEXT             NOT NULL,
		reliability_score DOUBLE PRECISION NOT NULL,
		safety_score      DOUBLE PRECISION NOT NULL,
		punctuality_score DOUBLE PRECISION NOT NULL,
		comfort_score     DOUBLE PRECISION NOT NULL,
		overall_score     DOUBLE PRECISION NOT NULL,
		total_reports     INTEGER          NOT NULL,
		last_calculated   TIMESTAMPTZ      NOT NULL,
		PRIMARY KEY (route_id, time_bucket)
	)
`

// Every column is overwritten on conflict so a row never mixes two passes.
const upsertScore = `
	INSERT INTO route_scores (
		route_id, time_bucket, reliability_score, safety_score,
		punctuality_score, comfort_score, overall_score, total_reports, last_calculated
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (route_id, time_bucket) DO UPDATE SET
		reliability_score = EXCLUDED.reliability_score,
		safety_score      = EXCLUDED.safety_score,
		punctuality_score = EXCLUDED.punctuality_score,
		comfort_score     = EXCLUDED.comfort_score,
		overall_score     = EXCLUDED.overall_score,
		total_reports     = EXCLUDED.total_reports,
		last_calculated   = EXCLUDED.last_calculated
`

const selectScores = `
	SELECT route_id, time_bucket, reliability_score, safety_score,
		   punctuality_score, comfort_score, overall_score, total_reports, last_calculated
	FROM route_scores
	WHERE route_id = $1
	ORDER BY CASE time_bucket
		WHEN 'morning' THEN 0 WHEN 'afternoon' THEN 1 WHEN 'evening' THEN 2 ELSE 3 END
`

const selectKeys = `SELECT route_id, time_bucket FROM route_scores ORDER BY route_id, time_bucket`

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ScoreStore implements repository.ScoreStore.
type ScoreStore struct {
	db querier
}

// NewScoreStore wraps a pgx pool.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{db: pool}
}

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: health check failed: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the scores table when missing.
func (s *ScoreStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// Upsert implements repository.ScoreStore.
func (s *ScoreStore) Upsert(ctx context.Context, sc model.Score) error {
	_, err := s.db.Exec(ctx, upsertScore,
		sc.RouteID, string(sc.TimeBucket), sc.Reliability, sc.Safety,
		sc.Punctuality, sc.Comfort, sc.Overall, sc.TotalReports, sc.LastCalculated,
	)
	if err != nil {
		return repository.Transient("postgres: failed to upsert score", err)
	}
	return nil
}

// Scores implements repository.ScoreStore.
func (s *ScoreStore) Scores(ctx context.Context, routeID string) ([]model.Score, error) {
	rows, err := s.db.Query(ctx, selectScores, routeID)
	if err != nil {
		return nil, repository.Transient("postgres: failed to query scores", err)
	}
	defer rows.Close()

	var out []model.Score
	for rows.Next() {
		var sc model.Score
		var bucket string
		err := rows.Scan(
			&sc.RouteID, &bucket, &sc.Reliability, &sc.Safety,
			&sc.Punctuality, &sc.Comfort, &sc.Overall, &sc.TotalReports, &sc.LastCalculated,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan score row: %w", err)
		}
		sc.TimeBucket = model.TimeBucket(bucket)
		sc.LastCalculated = sc.LastCalculated.UTC()
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Transient("postgres: failed to read scores", err)
	}
	return out, nil
}

// Keys implements repository.ScoreStore.
func (s *ScoreStore) Keys(ctx context.Context) ([]model.BucketKey, error) {
	rows, err := s.db.Query(ctx, selectKeys)
	if err != nil {
		return nil, repository.Transient("postgres: failed to query score keys", err)
	}
	defer rows.Close()

	var out []model.BucketKey
	for rows.Next() {
		var k model.BucketKey
		var bucket string
		if err := rows.Scan(&k.RouteID, &bucket); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan score key: %w", err)
		}
		k.Bucket = model.TimeBucket(bucket)
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Transient("postgres: failed to read score keys", err)
	}
	return out, nil
}
