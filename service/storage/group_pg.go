package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS shared_group (
    id      TEXT PRIMARY KEY,
    version BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS shared_group_field (
    group_id TEXT NOT NULL REFERENCES shared_group (id) ON DELETE CASCADE,
    field    TEXT NOT NULL,
    value    TEXT NOT NULL,
    PRIMARY KEY (group_id, field)
);`

// PgGroupStore keeps groups in two tables. The version check is a row lock on
// the shared_group row held for the whole write.
type PgGroupStore struct {
	pool *pgxpool.Pool
}

func NewPgGroupStore(pool *pgxpool.Pool) *PgGroupStore {
	return &PgGroupStore{pool: pool}
}

// OpenPgGroupStore connects and makes sure the schema exists.
func OpenPgGroupStore(ctx context.Context, url string) (*PgGroupStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	s := NewPgGroupStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgGroupStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

func (s *PgGroupStore) Close() { s.pool.Close() }

func (s *PgGroupStore) CreateGroup(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO shared_group (id, version) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("pg: create group %s: %w", id, err)
	}
	return nil
}

func (s *PgGroupStore) ReadGroup(ctx context.Context, id string, keys ...string) (*Group, error) {
	var filter []string
	if len(keys) > 0 {
		filter = keys
	}
	rows, err := s.pool.Query(ctx, `
SELECT g.version, f.field, f.value
FROM shared_group g
LEFT JOIN shared_group_field f
       ON f.group_id = g.id AND ($2::text[] IS NULL OR f.field = ANY($2))
WHERE g.id = $1`, id, filter)
	if err != nil {
		return nil, fmt.Errorf("pg: read group %s: %w", id, err)
	}
	defer rows.Close()

	var g *Group
	for rows.Next() {
		var (
			ver          int64
			field, value *string
		)
		if err := rows.Scan(&ver, &field, &value); err != nil {
			return nil, fmt.Errorf("pg: read group %s: %w", id, err)
		}
		if g == nil {
			g = &Group{ID: id, Version: ver, Fields: make(map[string]string)}
		}
		if field != nil && value != nil {
			g.Fields[*field] = *value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: read group %s: %w", id, err)
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

func (s *PgGroupStore) WriteGroup(ctx context.Context, id string, fields map[string]string, expectVersion int64) (int64, error) {
	var nv int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO shared_group (id, version) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`, id); err != nil {
			return err
		}
		var cur int64
		if err := tx.QueryRow(ctx,
			`SELECT version FROM shared_group WHERE id = $1 FOR UPDATE`, id).Scan(&cur); err != nil {
			return err
		}
		if expectVersion >= 0 && cur != expectVersion {
			return ErrVersionConflict
		}

		batch := &pgx.Batch{}
		for k, v := range fields {
			if v == "" {
				batch.Queue(`DELETE FROM shared_group_field WHERE group_id = $1 AND field = $2`, id, k)
				continue
			}
			batch.Queue(`
INSERT INTO shared_group_field (group_id, field, value) VALUES ($1, $2, $3)
ON CONFLICT (group_id, field) DO UPDATE SET value = EXCLUDED.value`, id, k, v)
		}
		nv = cur + 1
		batch.Queue(`UPDATE shared_group SET version = $2 WHERE id = $1`, id, nv)
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("pg: write group %s: %w", id, err)
	}
	return nv, nil
}

func (s *PgGroupStore) DeleteGroup(ctx context.Context, id string, expectVersion int64) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var cur int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM shared_group WHERE id = $1 FOR UPDATE`, id).Scan(&cur)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if expectVersion >= 0 && cur != expectVersion {
			return ErrVersionConflict
		}
		_, err = tx.Exec(ctx, `DELETE FROM shared_group WHERE id = $1`, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ErrVersionConflict
		}
		return fmt.Errorf("pg: delete group %s: %w", id, err)
	}
	return nil
}

// truncate empties both tables; tests only.
func (s *PgGroupStore) truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE shared_group_field, shared_group`)
	return err
}
