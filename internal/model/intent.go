package model

import "time"

// Exchange identifies the market a signal targets.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
	ExchangeMCX Exchange = "MCX"
)

// Valid reports whether the exchange is one the bridge routes to.
func (e Exchange) Valid() bool {
	switch e {
	case ExchangeNSE, ExchangeBSE, ExchangeMCX:
		return true
	}
	return false
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the opposing side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStyle selects market vs limit execution.
type OrderStyle string

const (
	StyleMarket OrderStyle = "MARKET"
	StyleLimit  OrderStyle = "LIMIT"
)

// IntentKind is the canonical classification of an incoming signal.
// Structured signals arrive as KindDelta/KindFlatten; legacy comment
// vocabulary is folded into the remaining kinds by the normalizer.
type IntentKind string

const (
	// KindDelta applies a signed lot change toward a target position.
	KindDelta IntentKind = "DELTA"
	// KindFlatten closes whatever position exists (signed target 0).
	KindFlatten IntentKind = "FLATTEN"
	// KindEnterLong opens (or flips to) a long of Lots lots.
	KindEnterLong IntentKind = "ENTER_LONG"
	// KindEnterShort opens (or flips to) a short of Lots lots.
	KindEnterShort IntentKind = "ENTER_SHORT"
	// KindExitLong closes a long position if one exists.
	KindExitLong IntentKind = "EXIT_LONG"
	// KindExitShort closes a short position if one exists.
	KindExitShort IntentKind = "EXIT_SHORT"
	// KindExitAll closes the position regardless of direction.
	KindExitAll IntentKind = "EXIT_ALL"
	// KindScaleDown reduces the position to MatchLots lots, keeping direction.
	KindScaleDown IntentKind = "SCALE_DOWN"
	// KindIgnore is a recognized but non-actionable signal (log-only).
	KindIgnore IntentKind = "IGNORE"
)

// Intent is a normalized trading signal, the single shape the decision
// engine consumes regardless of which webhook payload produced it.
type Intent struct {
	Exchange  Exchange
	RawSymbol string // ticker as received, before resolution
	Future    bool   // continuous-future ticker (trailing "!")

	Kind      IntentKind
	Lots      int64 // signed lots for KindDelta/entries; 0 otherwise
	MatchLots int64 // target lots for KindScaleDown

	RefPrice  int64 // reference close in paise, 0 if absent
	Style     OrderStyle
	Product   string // broker product type, e.g. MARGIN / NRML
	Source    string // webhook source tag
	Comment   string // legacy comment text, truncated
	OrderTag  string // order_type free text, truncated

	ReceivedAt time.Time // UTC
}

// ReceivedAtIST returns the receipt time in Indian Standard Time.
func (in *Intent) ReceivedAtIST() time.Time {
	return in.ReceivedAt.In(IST)
}

// IST is the fixed +05:30 zone used for audit timestamps and schedules.
var IST = time.FixedZone("IST", 5*3600+30*60)
