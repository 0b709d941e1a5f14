// Package ledger tracks the net position per instrument, in lots. The
// ledger is the single source of truth for long/short/flat between
// reconciliations; live broker positions overwrite it on conflict.
package ledger

import "context"

// Ledger is a durable keyed store of signed lot counts. Get on an
// absent key returns 0, never an error.
type Ledger interface {
	Get(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, lots int64) error
	Clear(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]int64, error)
	// Reset zeroes every record, used by the administrative exit-all.
	Reset(ctx context.Context) error
}
