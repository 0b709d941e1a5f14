package model

// PositionRecord is one ledger entry: the net position the bridge
// believes it holds for an instrument, in lots.
type PositionRecord struct {
	Key  string `json:"key"`  // "EXCHANGE:TRADINGSYMBOL"
	Lots int64  `json:"lots"` // positive = long, negative = short
}

// NetPosition is a live broker position, in units (not lots).
type NetPosition struct {
	Key   string `json:"key"`
	Units int64  `json:"units"` // positive = long, negative = short
}
