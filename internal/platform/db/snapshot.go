package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// SnapshotReader is one read executed against a shared database snapshot.
type SnapshotReader func(ctx context.Context, q Querier) error

var readOnlySnapshot = pgx.TxOptions{
	IsoLevel:   pgx.RepeatableRead,
	AccessMode: pgx.ReadOnly,
}

// Snapshots runs groups of reads that must describe one instant. The reads
// share a REPEATABLE READ transaction opened on the tenant connection. Up to
// a quarter of the pool may be borrowed, across all callers, to run reads in
// parallel on the exported snapshot; a read that finds no spare connection
// runs on the lead transaction instead of waiting for one.
type Snapshots struct {
	pool  *pgxpool.Pool
	spare chan struct{}
}

func NewSnapshots(pool *pgxpool.Pool) *Snapshots {
	return &Snapshots{
		pool:  pool,
		spare: make(chan struct{}, readerBudget(pool.Config().MaxConns)),
	}
}

// readerBudget is the number of extra connections snapshot reads may hold at
// once. It stays below the pool size so requests holding a tenant connection
// can always finish.
func readerBudget(maxConns int32) int {
	if maxConns < 4 {
		return 0
	}
	return int(maxConns / 4)
}

// Read runs every reader against one snapshot of schema.
func (s *Snapshots) Read(ctx context.Context, schema string, readers ...SnapshotReader) error {
	if tx := TxFromContext(ctx); tx != nil {
		return runReaders(ctx, tx, noSpare, readers)
	}

	var lead pgx.Tx
	var err error
	if conn := ConnFromContext(ctx); conn != nil {
		lead, err = conn.BeginTx(ctx, readOnlySnapshot)
	} else {
		lead, err = s.pool.BeginTx(ctx, readOnlySnapshot)
	}
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	// the exporting transaction must stay open until every reader has
	// imported the snapshot
	defer lead.Rollback(ctx) //nolint:errcheck

	if _, err := lead.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	borrow := noSpare
	if len(readers) > 1 && cap(s.spare) > 0 {
		var snapshotID string
		if err := lead.QueryRow(ctx, "SELECT pg_export_snapshot()").Scan(&snapshotID); err != nil {
			return fmt.Errorf("export snapshot: %w", err)
		}
		borrow = s.borrower(schema, snapshotID)
	}
	return runReaders(ctx, lead, borrow, readers)
}

// borrowFunc hands out a querier on a spare connection, or ok=false when
// none is available.
type borrowFunc func(ctx context.Context) (q Querier, release func(), ok bool)

func noSpare(context.Context) (Querier, func(), bool) { return nil, nil, false }

func (s *Snapshots) borrower(schema, snapshotID string) borrowFunc {
	return func(ctx context.Context) (Querier, func(), bool) {
		select {
		case s.spare <- struct{}{}:
		default:
			return nil, nil, false
		}
		giveBack := func() { <-s.spare }

		tx, err := s.pool.BeginTx(ctx, readOnlySnapshot)
		if err != nil {
			giveBack()
			return nil, nil, false
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET TRANSACTION SNAPSHOT '%s'", snapshotID)); err == nil {
			_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema))
			if err == nil {
				return tx, func() {
					tx.Rollback(context.Background()) //nolint:errcheck
					giveBack()
				}, true
			}
		}
		tx.Rollback(context.Background()) //nolint:errcheck
		giveBack()
		return nil, nil, false
	}
}

// runReaders starts each reader on a borrowed querier when one is available
// and otherwise on lead. Readers sharing lead run one at a time.
func runReaders(ctx context.Context, lead Querier, borrow borrowFunc, readers []SnapshotReader) error {
	g, gctx := errgroup.WithContext(ctx)
	var leadMu sync.Mutex
	for _, read := range readers {
		read := read
		if q, release, ok := borrow(gctx); ok {
			g.Go(func() error {
				defer release()
				return read(gctx, q)
			})
			continue
		}
		g.Go(func() error {
			leadMu.Lock()
			defer leadMu.Unlock()
			return read(gctx, lead)
		})
	}
	return g.Wait()
}
