package ledger

import (
	"context"
	"fmt"
	"log"

	"orderbridge/internal/model"
)

// Reconcile overwrites the ledger entry for key from the broker's live
// positions. Live truth wins: units are floor-divided by lot size, and
// a key absent from the live list means flat.
func Reconcile(ctx context.Context, led Ledger, live []model.NetPosition, key string, lotSize int64) (int64, error) {
	if lotSize <= 0 {
		return 0, fmt.Errorf("ledger: reconcile %s: lot size %d", key, lotSize)
	}
	var units int64
	for _, p := range live {
		if p.Key == key {
			units = p.Units
			break
		}
	}
	lots := floorDiv(units, lotSize)
	if err := led.Set(ctx, key, lots); err != nil {
		return 0, err
	}
	log.Printf("[ledger] reconciled %s: live %d units -> %d lots", key, units, lots)
	return lots, nil
}

// floorDiv rounds toward negative infinity so short positions keep
// their sign under truncation.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
