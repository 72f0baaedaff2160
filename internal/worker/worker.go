// Package worker bootstraps the River job queue and defines the connector
// sync job. Syncs always run through the queue so only one job per
// connection is in flight at a time.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	syncpkg "github.com/saulto/saulto/internal/sync"
)

// SyncArgs queues one connector sync for a connection.
type SyncArgs struct {
	ConnectionID string `json:"connection_id"`
}

// Kind returns the unique job type identifier for connector sync jobs.
func (SyncArgs) Kind() string { return "connector_sync" }

// InsertOpts deduplicates pending jobs per connection so repeated manual
// triggers do not stack redundant syncs.
func (SyncArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

type syncWorker struct {
	river.WorkerDefaults[SyncArgs]
	orchestrator *syncpkg.Orchestrator
	log          *slog.Logger
}

func (w *syncWorker) Work(ctx context.Context, job *river.Job[SyncArgs]) error {
	w.log.Info("sync job started", "connection", job.Args.ConnectionID, "attempt", job.Attempt)
	_, err := w.orchestrator.Run(ctx, job.Args.ConnectionID)
	return err
}

// Queue is the interface exposed by both the real River client and noopQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EnqueueSync(ctx context.Context, connectionID string) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// EnqueueSync inserts a connector sync job for the connection.
func (c *Client) EnqueueSync(ctx context.Context, connectionID string) error {
	if _, err := c.client.Insert(ctx, SyncArgs{ConnectionID: connectionID}, nil); err != nil {
		return fmt.Errorf("enqueue sync for %s: %w", connectionID, err)
	}
	return nil
}

// noopQueue is used when River is unavailable (e.g. DB_DRIVER=sqlite).
// Sync jobs run inline instead of being queued.
type noopQueue struct {
	orchestrator *syncpkg.Orchestrator
	log          *slog.Logger
}

func (n *noopQueue) Start(_ context.Context) error {
	n.log.Info("worker queue disabled (sqlite driver — River requires postgres), syncs run inline")
	return nil
}
func (n *noopQueue) Stop(_ context.Context) error { return nil }

func (n *noopQueue) EnqueueSync(ctx context.Context, connectionID string) error {
	_, err := n.orchestrator.Run(ctx, connectionID)
	return err
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a fully-functional River client backed by pool.
//   - anything else: returns a queue that runs sync jobs inline.
//
// pool may be nil when driver != "postgres".
func New(ctx context.Context, pool *pgxpool.Pool, driver string, concurrency int, orchestrator *syncpkg.Orchestrator, log *slog.Logger) (Queue, error) {
	if driver != "postgres" {
		return &noopQueue{orchestrator: orchestrator, log: log}, nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &syncWorker{orchestrator: orchestrator, log: log})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
