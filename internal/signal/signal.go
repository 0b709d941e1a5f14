// Package signal normalizes incoming webhook alerts into model.Intent.
// Two payload shapes are accepted: a structured JSON alert and a legacy
// free-text alert. Both pass the same authorization and safety gates and
// fold into the same canonical intent kinds.
package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"orderbridge/internal/model"
)

var (
	// ErrUnauthorized means the payload lacks the required marker words.
	ErrUnauthorized = errors.New("signal: unauthorized payload")
	// ErrUnsafeContent means the payload is oversized or carries
	// script-injection patterns.
	ErrUnsafeContent = errors.New("signal: unsafe content")
	// ErrInvalidFormat means a required field is missing or unparsable.
	ErrInvalidFormat = errors.New("signal: invalid format")
)

const (
	maxPayloadBytes = 10000
	maxCommentLen   = 100
	maxOrderTagLen  = 20

	markerOne = "radhe"
	markerTwo = "algo"
)

// unsafePatterns are rejected anywhere in the payload, case-insensitive.
var unsafePatterns = []string{"<script", "javascript:", "vbscript:", "onload=", "onerror="}

// Parse normalizes a raw webhook body into an Intent. isJSON selects the
// structured shape; otherwise the legacy text shape is used.
func Parse(raw []byte, isJSON bool) (*model.Intent, error) {
	if len(raw) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds limit", ErrUnsafeContent, len(raw))
	}
	lower := strings.ToLower(string(bytes.TrimSpace(raw)))
	for _, p := range unsafePatterns {
		if strings.Contains(lower, p) {
			return nil, fmt.Errorf("%w: pattern %q", ErrUnsafeContent, p)
		}
	}

	if isJSON {
		return parseJSON(raw)
	}
	return parseText(string(raw), lower)
}

// authorized reports whether both marker words co-occur in s (already
// lowercased).
func authorized(s string) bool {
	return strings.Contains(s, markerOne) && strings.Contains(s, markerTwo)
}

// jsonAlert is the structured webhook payload shape.
type jsonAlert struct {
	Strategy struct {
		Action       string          `json:"action"`
		Contracts    json.RawMessage `json:"contracts"`
		PositionSize json.RawMessage `json:"position_size"`
	} `json:"strategy"`
	Symbol struct {
		Exchange string `json:"exchange"`
		Ticker   string `json:"ticker"`
	} `json:"symbol"`
	Price struct {
		Close json.RawMessage `json:"close"`
	} `json:"price"`
	Meta struct {
		Tag       string `json:"tag"`
		OrderType string `json:"order_type"`
		Source    string `json:"source"`
	} `json:"meta"`
}

func parseJSON(raw []byte) (*model.Intent, error) {
	var a jsonAlert
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if !authorized(strings.ToLower(a.Meta.Tag)) {
		return nil, fmt.Errorf("%w: tag %q", ErrUnauthorized, truncate(a.Meta.Tag, maxOrderTagLen))
	}

	exch := model.Exchange(strings.ToUpper(strings.TrimSpace(a.Symbol.Exchange)))
	if !exch.Valid() {
		return nil, fmt.Errorf("%w: exchange %q", ErrInvalidFormat, a.Symbol.Exchange)
	}
	ticker, future := normalizeTicker(a.Symbol.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", ErrInvalidFormat)
	}

	action := strings.ToLower(strings.TrimSpace(a.Strategy.Action))
	if action != "buy" && action != "sell" {
		return nil, fmt.Errorf("%w: action %q", ErrInvalidFormat, a.Strategy.Action)
	}
	contracts, err := requireInt(a.Strategy.Contracts, "strategy.contracts")
	if err != nil {
		return nil, err
	}
	if contracts <= 0 {
		return nil, fmt.Errorf("%w: contracts must be positive, got %d", ErrInvalidFormat, contracts)
	}
	posSize, err := requireInt(a.Strategy.PositionSize, "strategy.position_size")
	if err != nil {
		return nil, err
	}

	var price int64
	if len(a.Price.Close) > 0 {
		price, err = parsePaise(a.Price.Close)
		if err != nil {
			return nil, fmt.Errorf("%w: price.close: %v", ErrInvalidFormat, err)
		}
	}

	in := &model.Intent{
		Exchange:   exch,
		RawSymbol:  ticker,
		Future:     future,
		RefPrice:   price,
		Style:      model.StyleMarket,
		Source:     truncate(a.Meta.Source, maxOrderTagLen),
		OrderTag:   truncate(a.Meta.OrderType, maxOrderTagLen),
		ReceivedAt: time.Now().UTC(),
	}
	if strings.EqualFold(a.Meta.OrderType, "limit") {
		in.Style = model.StyleLimit
	}

	if posSize == 0 {
		in.Kind = model.KindFlatten
		return in, nil
	}
	in.Kind = model.KindDelta
	if action == "buy" {
		in.Lots = contracts
	} else {
		in.Lots = -contracts
	}
	return in, nil
}

// Legacy free-text field extractors.
var (
	reFilledOn  = regexp.MustCompile(`filled on (\S+):(\S+)`)
	rePosition  = regexp.MustCompile(`New strategy position is ([\-\d]+)`)
	reComment   = regexp.MustCompile(`comment = ([^\r\n]+)`)
	reOpenPrice = regexp.MustCompile(`open : ([\d.]+)`)
	reOrderType = regexp.MustCompile(`order_type : (\S+)`)
	reTime      = regexp.MustCompile(`time : (\S+)`)
)

func parseText(raw, lower string) (*model.Intent, error) {
	if !authorized(lower) {
		return nil, ErrUnauthorized
	}

	m := reFilledOn.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("%w: missing exchange:ticker", ErrInvalidFormat)
	}
	exch := model.Exchange(strings.ToUpper(m[1]))
	if !exch.Valid() {
		return nil, fmt.Errorf("%w: exchange %q", ErrInvalidFormat, m[1])
	}
	ticker, future := normalizeTicker(m[2])
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", ErrInvalidFormat)
	}

	pm := rePosition.FindStringSubmatch(raw)
	if pm == nil {
		return nil, fmt.Errorf("%w: missing strategy position", ErrInvalidFormat)
	}
	position, err := strconv.ParseInt(pm[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: strategy position %q", ErrInvalidFormat, pm[1])
	}

	in := &model.Intent{
		Exchange:   exch,
		RawSymbol:  ticker,
		Future:     future,
		Style:      model.StyleMarket,
		Source:     "legacy",
		ReceivedAt: time.Now().UTC(),
	}

	if cm := reComment.FindStringSubmatch(raw); cm != nil {
		in.Comment = truncate(strings.TrimSpace(cm[1]), maxCommentLen)
	}
	if om := reOrderType.FindStringSubmatch(raw); om != nil {
		in.OrderTag = truncate(om[1], maxOrderTagLen)
		if strings.EqualFold(om[1], "limit") {
			in.Style = model.StyleLimit
		}
	}
	if prm := reOpenPrice.FindStringSubmatch(raw); prm != nil {
		if p, perr := parsePaise([]byte(prm[1])); perr == nil {
			in.RefPrice = p
		}
	}
	if tm := reTime.FindStringSubmatch(raw); tm != nil {
		if ts, terr := time.Parse(time.RFC3339, tm[1]); terr == nil {
			in.ReceivedAt = ts.UTC()
		}
	}

	kind, lots, match := classifyComment(in.Comment, position)
	in.Kind = kind
	in.Lots = lots
	in.MatchLots = match
	return in, nil
}

// normalizeTicker uppercases and strips the continuous-future suffix.
// "NIFTY1!" resolves to underlying NIFTY with the future flag set;
// ordinary tickers lose trailing punctuation only.
func normalizeTicker(t string) (string, bool) {
	t = strings.ToUpper(strings.TrimSpace(t))
	if strings.HasSuffix(t, "!") {
		base := strings.TrimRight(t, "!")
		base = strings.TrimRight(base, "0123456789")
		return base, true
	}
	return strings.TrimRight(t, "!."), false
}

// requireInt parses a JSON number or numeric string, rejecting absent
// values. Alerts never default to zero quantities.
func requireInt(raw json.RawMessage, field string) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidFormat, field)
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidFormat, field)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// TradingView sends whole-lot floats like 2.0
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("%w: %s %q", ErrInvalidFormat, field, s)
		}
		n = int64(f)
	}
	return n, nil
}

// parsePaise converts a rupee price (JSON number or string) to paise.
func parsePaise(raw []byte) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f*100 + 0.5), nil
}

// truncate cuts to n runes, never splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
