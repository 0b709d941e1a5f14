package model

import "time"

// ResolvedInstrument is a tradable contract looked up from the symbol
// masters. TradingSymbol is the broker-facing symbol; XTSSegment and
// XTSInstrumentID are only set once the XTS lookup has run.
type ResolvedInstrument struct {
	TradingSymbol string
	Underlying    string
	Exchange      Exchange
	LotSize       int64
	Expiry        time.Time

	Strike     int64  // paise, 0 for futures
	OptionType string // CE / PE, empty for futures

	XTSSegment      string // NSEFO / BSEFO / MCXFO
	XTSInstrumentID int64
}

// Key is the ledger and locking key for this instrument.
func (r *ResolvedInstrument) Key() string {
	return string(r.Exchange) + ":" + r.TradingSymbol
}
