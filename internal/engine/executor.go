package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"orderbridge/internal/audit"
	"orderbridge/internal/broker"
	"orderbridge/internal/ledger"
	"orderbridge/internal/logger"
	"orderbridge/internal/model"
	"orderbridge/internal/notification"
)

// Outcome classifies a processed signal for metrics and audit.
type Outcome string

const (
	OutcomePlaced    Outcome = "placed"
	OutcomeNoop      Outcome = "noop"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeRejected  Outcome = "rejected"
	OutcomeUnknown   Outcome = "unknown"
	OutcomeError     Outcome = "error"
	// OutcomeDropped covers payloads the normalizer refused before an
	// intent existed (gate, format, or safety failures).
	OutcomeDropped Outcome = "dropped"
)

// Resolver is the slice of the refdata store the executor needs.
type Resolver interface {
	Resolve(raw string, exchange model.Exchange, future bool) (model.ResolvedInstrument, error)
	ResolveXTS(inst *model.ResolvedInstrument) error
}

// Dedup claims a content-hash key for a window; a false return means
// the same signal was already seen inside the window.
type Dedup interface {
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
}

// AuditSink records one entry per terminal outcome.
type AuditSink interface {
	Record(ctx context.Context, e audit.Entry) error
}

// MetricsSink is the slice of the metrics registry the executor drives.
type MetricsSink interface {
	Signal(outcome string)
	Order(broker, side, status string)
	Duration(seconds float64)
	ResolveError()
	DedupDrop()
	Reconciled()
	SetOpenPositions(n int)
	GatewayCall(broker, op string, seconds float64)
}

// Executor runs the full pipeline for one normalized intent.
type Executor struct {
	Gateway  broker.Gateway
	Ledger   ledger.Ledger
	Locks    *ledger.KeyMutex
	Resolver Resolver
	Dedup    Dedup
	Window   time.Duration
	Notifier notification.Notifier
	Audit    AuditSink
	Metrics  MetricsSink

	// SegmentLookup enables the second, XTS-specific resolution step.
	SegmentLookup bool
	// ReconcileOnSignal overwrites the ledger from live positions
	// before every decision, not only after unknown outcomes.
	ReconcileOnSignal bool

	mu    sync.Mutex
	dirty map[string]bool
}

// MarkDirty flags an instrument for reconciliation before its next
// decision. Called on unknown placement outcomes and on out-of-band
// order-stream rejections.
func (e *Executor) MarkDirty(key string) {
	e.mu.Lock()
	if e.dirty == nil {
		e.dirty = make(map[string]bool)
	}
	e.dirty[key] = true
	e.mu.Unlock()
}

func (e *Executor) takeDirty(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dirty[key] {
		delete(e.dirty, key)
		return true
	}
	return false
}

// Handle processes one intent to a terminal outcome. It never returns
// an error for signal-level failures; those become outcomes with a
// notice so the boundary can always answer the webhook.
func (e *Executor) Handle(ctx context.Context, in *model.Intent) (Outcome, string) {
	start := time.Now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(in.RawSymbol, in.ReceivedAt))

	outcome, notice, orderIDs := e.handle(ctx, in)

	e.report(ctx, in, outcome, notice, orderIDs)
	if e.Metrics != nil {
		e.Metrics.Signal(string(outcome))
		e.Metrics.Duration(time.Since(start).Seconds())
	}
	return outcome, notice
}

func (e *Executor) handle(ctx context.Context, in *model.Intent) (Outcome, string, []string) {
	if in.Kind == model.KindIgnore {
		return OutcomeNoop, "ignored: unrecognized signal", nil
	}

	inst, err := e.Resolver.Resolve(in.RawSymbol, in.Exchange, in.Future)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.ResolveError()
		}
		return OutcomeNotFound, fmt.Sprintf("symbol not found: %v", err), nil
	}
	if e.SegmentLookup {
		if err := e.Resolver.ResolveXTS(&inst); err != nil {
			return OutcomeNotFound, fmt.Sprintf("segment lookup failed: %v", err), nil
		}
	}

	// Claimed only after resolution: a signal that fails on a missing
	// dataset keeps its window so a redelivery can retry.
	if e.Dedup != nil && e.Window > 0 {
		ok, err := e.Dedup.Claim(ctx, dedupKey(in), e.Window)
		if err != nil {
			log.Printf("[engine] dedup check failed, continuing: %v", err)
		} else if !ok {
			if e.Metrics != nil {
				e.Metrics.DedupDrop()
			}
			return OutcomeDuplicate, "dropped: duplicate delivery", nil
		}
	}

	key := inst.Key()
	unlock := e.Locks.Lock(key)
	defer unlock()

	if e.takeDirty(key) || e.ReconcileOnSignal {
		if err := e.reconcile(ctx, key, inst.LotSize); err != nil {
			// Without a trustworthy ledger no safe decision exists.
			e.MarkDirty(key)
			return OutcomeError, fmt.Sprintf("reconciliation failed: %v", err), nil
		}
	}

	net, err := e.Ledger.Get(ctx, key)
	if err != nil {
		return OutcomeError, fmt.Sprintf("ledger read failed: %v", err), nil
	}

	d := Decide(in, inst, net)
	if len(d.Commands) == 0 {
		return OutcomeNoop, d.Notice, nil
	}

	if isEntry(in.Kind) {
		if err := e.Gateway.CancelPending(ctx, inst); err != nil {
			log.Printf("[engine] cancel pending %s: %v", key, err)
		}
	}

	var orderIDs []string
	for _, cmd := range d.Commands {
		callStart := time.Now()
		res, err := e.Gateway.Place(ctx, cmd)
		if e.Metrics != nil {
			e.Metrics.GatewayCall(e.Gateway.Name(), "place", time.Since(callStart).Seconds())
			e.Metrics.Order(e.Gateway.Name(), string(cmd.Side), string(res.Status))
		}
		if err != nil || res.Status == model.StatusUnknown {
			e.MarkDirty(key)
			return OutcomeUnknown, fmt.Sprintf("order outcome unknown for %s: %s", key, res.Message), orderIDs
		}
		if res.Status == model.StatusRejected {
			// A rejection after an accepted leg (flip exit done, entry
			// refused) leaves the broker ahead of the ledger; force a
			// reconciliation before the next decision on this key.
			if len(orderIDs) > 0 {
				e.MarkDirty(key)
			}
			return OutcomeRejected, fmt.Sprintf("order rejected for %s: %s", key, res.Message), orderIDs
		}
		orderIDs = append(orderIDs, res.OrderID)
	}

	// Commit only after every command is acknowledged non-rejected.
	if err := e.Ledger.Set(ctx, key, d.NewNet); err != nil {
		e.MarkDirty(key)
		return OutcomeError, fmt.Sprintf("ledger commit failed: %v", err), orderIDs
	}
	e.gaugePositions(ctx)

	return OutcomePlaced, fmt.Sprintf("placed %s: net %d -> %d", key, net, d.NewNet), orderIDs
}

func (e *Executor) reconcile(ctx context.Context, key string, lotSize int64) error {
	live, err := e.Gateway.Positions(ctx)
	if err != nil {
		return err
	}
	if _, err := ledger.Reconcile(ctx, e.Ledger, live, key, lotSize); err != nil {
		return err
	}
	if e.Metrics != nil {
		e.Metrics.Reconciled()
	}
	return nil
}

// ExitAllPositions is the administrative square-off: broker-side exit
// of everything, then a full ledger reset.
func (e *Executor) ExitAllPositions(ctx context.Context) error {
	if err := e.Gateway.ExitAll(ctx); err != nil {
		return fmt.Errorf("engine: exit all: %w", err)
	}
	if err := e.Ledger.Reset(ctx); err != nil {
		return fmt.Errorf("engine: ledger reset after exit all: %w", err)
	}
	e.gaugePositions(ctx)
	e.notify(ctx, notification.AlertWarning, "Exit all", "all positions squared off, ledger reset")
	return nil
}

// gaugePositions refreshes the open-position gauge after ledger writes.
func (e *Executor) gaugePositions(ctx context.Context) {
	if e.Metrics == nil {
		return
	}
	all, err := e.Ledger.All(ctx)
	if err != nil {
		return
	}
	e.Metrics.SetOpenPositions(len(all))
}

// CancelAllOrders cancels every pending order at the broker. The ledger
// is untouched; pending orders never made it into a position.
func (e *Executor) CancelAllOrders(ctx context.Context) error {
	if err := e.Gateway.CancelAll(ctx); err != nil {
		return fmt.Errorf("engine: cancel all: %w", err)
	}
	e.notify(ctx, notification.AlertInfo, "Cancel all", "all pending orders cancelled")
	return nil
}

// ReportRejected records a payload the normalizer refused. No intent
// exists at that point, but the rejection is still a terminal outcome
// and reaches the audit trail and the notifier like any other.
func (e *Executor) ReportRejected(ctx context.Context, parseErr error) {
	now := time.Now().UTC()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("rejected", now))
	notice := fmt.Sprintf("dropped: %v", parseErr)

	if e.Audit != nil {
		entry := audit.Entry{
			TraceID:    logger.TraceID(ctx),
			Kind:       "REJECTED",
			Outcome:    string(OutcomeDropped),
			Notice:     notice,
			ReceivedAt: now,
		}
		if err := e.Audit.Record(ctx, entry); err != nil {
			log.Printf("[engine] audit: %v", err)
		}
	}
	if e.Metrics != nil {
		e.Metrics.Signal(string(OutcomeDropped))
	}
	e.notify(ctx, notification.AlertInfo, "Signal dropped", notice)
}

// report writes the audit entry and sends the outcome notification.
// Every terminal outcome passes through here; there is no silent path.
func (e *Executor) report(ctx context.Context, in *model.Intent, outcome Outcome, notice string, orderIDs []string) {
	if e.Audit != nil {
		entry := audit.Entry{
			TraceID:    logger.TraceID(ctx),
			Exchange:   string(in.Exchange),
			Symbol:     in.RawSymbol,
			Future:     in.Future,
			Kind:       string(in.Kind),
			Lots:       in.Lots,
			MatchLots:  in.MatchLots,
			Price:      in.RefPrice,
			Style:      string(in.Style),
			Outcome:    string(outcome),
			Notice:     notice,
			OrderIDs:   strings.Join(orderIDs, ","),
			ReceivedAt: in.ReceivedAt,
		}
		if err := e.Audit.Record(ctx, entry); err != nil {
			log.Printf("[engine] audit: %v", err)
		}
	}

	level := notification.AlertInfo
	switch outcome {
	case OutcomeRejected, OutcomeUnknown:
		level = notification.AlertWarning
	case OutcomeError:
		level = notification.AlertCritical
	}
	title := fmt.Sprintf("%s %s %s", in.Exchange, in.RawSymbol, in.Kind)
	e.notify(ctx, level, title, notice)
}

func (e *Executor) notify(ctx context.Context, level notification.AlertLevel, title, msg string) {
	if e.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Notifier.Send(nctx, notification.Alert{Level: level, Title: title, Message: msg}); err != nil {
		log.Printf("[engine] notify: %v", err)
	}
}

func isEntry(k model.IntentKind) bool {
	switch k {
	case model.KindEnterLong, model.KindEnterShort, model.KindDelta:
		return true
	}
	return false
}

// dedupKey hashes the normalized intent content. ReceivedAt is left
// out: two deliveries of the same alert differ only in receipt time.
func dedupKey(in *model.Intent) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%v|%s|%d|%d|%d|%s",
		in.Exchange, in.RawSymbol, in.Future, in.Kind, in.Lots, in.MatchLots, in.RefPrice, in.Style)))
	return "bridge:dedup:" + hex.EncodeToString(h[:])
}
