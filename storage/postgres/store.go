package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	pool_id      TEXT PRIMARY KEY,
	currency0    TEXT NOT NULL,
	currency1    TEXT NOT NULL,
	fee          BIGINT NOT NULL,
	tick_spacing INTEGER NOT NULL,
	hooks        TEXT NOT NULL,
	tick         INTEGER NOT NULL,
	sqrt_price   NUMERIC NOT NULL,
	liquidity    NUMERIC NOT NULL,
	view         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertPool = `
INSERT INTO pool_snapshots (
	pool_id, currency0, currency1, fee, tick_spacing, hooks, tick, sqrt_price, liquidity, view, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
ON CONFLICT (pool_id)
DO UPDATE SET
	tick = EXCLUDED.tick,
	sqrt_price = EXCLUDED.sqrt_price,
	liquidity = EXCLUDED.liquidity,
	view = EXCLUDED.view,
	updated_at = now()`

// Store persists the latest view of every pool in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// SavePool upserts the view of one pool.
func (s *Store) SavePool(ctx context.Context, view clamm.PoolView) error {
	args, err := poolRow(view)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, upsertPool, args...); err != nil {
		return fmt.Errorf("upsert pool %s: %w", view.ID.Hex(), err)
	}
	return nil
}

// SavePools upserts many views in one batch.
func (s *Store) SavePools(ctx context.Context, views []clamm.PoolView) error {
	if len(views) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, view := range views {
		args, err := poolRow(view)
		if err != nil {
			return err
		}
		batch.Queue(upsertPool, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range views {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Pools loads every stored view ordered by pool id.
func (s *Store) Pools(ctx context.Context) ([]clamm.PoolView, error) {
	rows, err := s.pool.Query(ctx, `SELECT view FROM pool_snapshots ORDER BY pool_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []clamm.PoolView
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var view clamm.PoolView
		if err := json.Unmarshal(raw, &view); err != nil {
			return nil, fmt.Errorf("decode stored pool: %w", err)
		}
		out = append(out, view)
	}
	return out, rows.Err()
}

// poolRow lays a view out in upsertPool argument order. Big integers travel as
// decimal strings so NUMERIC keeps full precision.
func poolRow(view clamm.PoolView) ([]any, error) {
	if view.Slot0.SqrtPriceX96 == nil || view.Liquidity == nil {
		return nil, fmt.Errorf("pool %s: incomplete view", view.ID.Hex())
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	return []any{
		view.ID.Hex(),
		view.Key.Currency0.Hex(),
		view.Key.Currency1.Hex(),
		int64(view.Key.Fee),
		int32(view.Key.TickSpacing),
		view.Key.Hooks.Hex(),
		view.Slot0.Tick,
		view.Slot0.SqrtPriceX96.String(),
		view.Liquidity.String(),
		raw,
	}, nil
}
