// Package broker defines the order gateway boundary the decision engine
// drives. Implementations live in the fyers and xts subpackages; both
// classify every placement into accepted, rejected, or unknown, and the
// executor treats transport errors as unknown outcomes that force a
// reconciliation before the next decision on that instrument.
package broker

import (
	"context"

	"orderbridge/internal/model"
)

// Gateway is one broker backend.
type Gateway interface {
	Name() string

	// Place submits one order. A returned error is a transport-level
	// failure and means the outcome is unknown; a definitive broker
	// refusal comes back as StatusRejected with a nil error.
	Place(ctx context.Context, cmd model.OrderCommand) (model.OrderResult, error)

	// CancelPending cancels open orders for the instrument.
	CancelPending(ctx context.Context, inst model.ResolvedInstrument) error

	// Positions returns live net positions in units.
	Positions(ctx context.Context) ([]model.NetPosition, error)

	// ExitPosition squares off units of one instrument with an opposing
	// order. The decision engine expresses its exits as Place commands
	// for uniform acknowledgement handling; this is the direct square-off
	// for administrative use.
	ExitPosition(ctx context.Context, inst model.ResolvedInstrument, units int64, side model.OrderSide) error

	// ExitAll squares off every open position at the broker.
	ExitAll(ctx context.Context) error

	// CancelAll cancels every pending order at the broker.
	CancelAll(ctx context.Context) error
}
