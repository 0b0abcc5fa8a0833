package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reelnotes/backend/internal/db"
	"github.com/reelnotes/backend/internal/logging"
)

const (
	listenBaseBackoff = 250 * time.Millisecond
	listenMaxBackoff  = 10 * time.Second
)

// ChangeSink receives project change notifications.
type ChangeSink interface {
	Publish(ctx context.Context, projectID string)
}

// PostgresChangeFeed relays comment thread changes between instances over
// LISTEN/NOTIFY. Every instance, including the notifier, hears each change
// once through Listen.
type PostgresChangeFeed struct {
	pool    db.Pool
	channel string
}

// NewPostgresChangeFeed constructs a feed on the named notification channel.
func NewPostgresChangeFeed(pool db.Pool, channel string) *PostgresChangeFeed {
	return &PostgresChangeFeed{pool: pool, channel: channel}
}

// Publish notifies every listening instance that the project changed. A
// failed notification is logged; the committed write stands.
func (f *PostgresChangeFeed) Publish(ctx context.Context, projectID string) {
	if err := f.notify(ctx, projectID); err != nil {
		logging.FromContext(ctx).Error("publish project change", "project_id", projectID, "channel", f.channel, "error", err)
	}
}

func (f *PostgresChangeFeed) notify(ctx context.Context, projectID string) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_notify($1, $2)`, f.channel, projectID); err != nil {
		return fmt.Errorf("notify %s: %w", f.channel, err)
	}
	return nil
}

// Listen forwards notifications to sink until ctx is cancelled, reconnecting
// with backoff when the connection drops.
func (f *PostgresChangeFeed) Listen(ctx context.Context, sink ChangeSink) error {
	logger := logging.FromContext(ctx).With("channel", f.channel)
	backoff := listenBaseBackoff

	for {
		err := f.listenOnce(ctx, sink, func() { backoff = listenBaseBackoff })
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("change feed interrupted", "error", err, "retry_in", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, listenMaxBackoff)
	}
}

// listenConn is the slice of *pgx.Conn a LISTEN session needs.
type listenConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

func (f *PostgresChangeFeed) listenOnce(ctx context.Context, sink ChangeSink, connected func()) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	// A session that ran LISTEN never goes back to the pool.
	return f.serve(ctx, conn.Hijack(), sink, connected)
}

// serve owns conn and closes it on every return.
func (f *PostgresChangeFeed) serve(ctx context.Context, conn listenConn, sink ChangeSink, connected func()) error {
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", f.channel, err)
	}
	connected()
	logging.FromContext(ctx).Info("change feed listening", "channel", f.channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if notification.Payload == "" {
			continue
		}
		sink.Publish(ctx, notification.Payload)
	}
}
