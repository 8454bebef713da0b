package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haasonsaas/nexus/pkg/events"
)

// CockroachIndex mirrors conversation metadata (id, status, timestamps)
// into a CockroachDB/Postgres table, as an optional secondary index for
// deployments searching across more conversations than comfortably fit in
// convservice.Service.List's in-memory scan. It is never load-bearing: a
// nil *CockroachIndex is always safe to call through, the same
// optional-collaborator shape internal/webhook's Subscriber uses.
type CockroachIndex struct {
	pool *pgxpool.Pool
}

// OpenCockroachIndex connects to dsn and ensures the mirror table exists.
func OpenCockroachIndex(ctx context.Context, dsn string) (*CockroachIndex, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect cockroach index: %w", err)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS conversations (
		id STRING PRIMARY KEY,
		status STRING NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: init cockroach index: %w", err)
	}
	return &CockroachIndex{pool: pool}, nil
}

// Upsert mirrors a conversation's searchable fields. internal/convservice
// calls it on create, pause, resume and delete; status changes the step
// loop makes in between are not mirrored until the next such call, and the
// per-conversation meta.json stays authoritative.
func (c *CockroachIndex) Upsert(ctx context.Context, conv events.Conversation) error {
	if c == nil {
		return nil
	}
	const stmt = `UPSERT INTO conversations (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`
	_, err := c.pool.Exec(ctx, stmt, conv.ID, string(conv.Status), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert cockroach index: %w", err)
	}
	return nil
}

// Delete removes a conversation's mirrored row, called when the
// conversation itself is deleted.
func (c *CockroachIndex) Delete(ctx context.Context, id string) error {
	if c == nil {
		return nil
	}
	_, err := c.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete from cockroach index: %w", err)
	}
	return nil
}

// Close releases the connection pool. Safe on a nil receiver.
func (c *CockroachIndex) Close() {
	if c != nil {
		c.pool.Close()
	}
}
