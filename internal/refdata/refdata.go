// Package refdata loads the exchange symbol masters and resolves raw
// alert tickers to tradable contracts. Masters are headerless CSV files
// published per exchange segment; the store keeps them in memory and is
// reloaded atomically when the files are refreshed.
package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"orderbridge/internal/model"
)

var (
	// ErrNotFound means no contract matched the lookup.
	ErrNotFound = errors.New("refdata: instrument not found")
	// ErrBadSymbol means an option ticker did not decompose.
	ErrBadSymbol = errors.New("refdata: bad symbol format")
	// ErrUnavailable means the master file for the exchange is missing
	// or unreadable. Callers treat it like a not-found.
	ErrUnavailable = fmt.Errorf("refdata: dataset unavailable: %w", ErrNotFound)
)

// masterFile describes one exchange's master CSV.
type masterFile struct {
	name   string
	exchNo int
}

var masters = map[model.Exchange]masterFile{
	model.ExchangeNSE: {"NSE_FO.csv", 11},
	model.ExchangeBSE: {"BSE_FO.csv", 14},
	model.ExchangeMCX: {"MCX_COM.csv", 30},
}

// bseAliases remaps index shorthands used by the alert source to the
// master's underlying names. Any other BSE underlying is refused
// outright rather than passed through.
var bseAliases = map[string]string{
	"BSX": "SENSEX",
	"BKX": "BANKEX",
}

// xtsSegments maps exchanges to the segment codes the XTS API expects.
var xtsSegments = map[model.Exchange]string{
	model.ExchangeNSE: "NSEFO",
	model.ExchangeBSE: "BSEFO",
	model.ExchangeMCX: "MCXFO",
}

// Master CSV column positions (headerless, 21 columns).
const (
	colDescription = 1
	colExchNo      = 2
	colLotSize     = 3
	colSymbol      = 9
	colToken       = 12
	colUnderlying  = 13
	colStrike      = 15
	colOptionType  = 16
	minColumns     = 17
)

// contract is one master row.
type contract struct {
	TradingSymbol string
	Underlying    string
	LotSize       int64
	Expiry        time.Time
	Strike        int64 // paise
	OptionType    string
	InstrumentID  int64
}

// Store holds the loaded masters and answers resolutions.
type Store struct {
	dataDir string

	mu     sync.RWMutex
	tables map[model.Exchange][]contract
	bySym  map[string]contract // "EXCH:SYMBOL" -> row, for the XTS lookup
	gen    atomic.Uint64

	memo *memo

	// now is stubbed in tests for expiry filtering.
	now func() time.Time
}

// NewStore creates a store over dataDir and performs an initial load.
// Missing files are tolerated; their exchanges stay unavailable until a
// successful Reload.
func NewStore(dataDir string) *Store {
	s := &Store{
		dataDir: dataDir,
		tables:  make(map[model.Exchange][]contract),
		bySym:   make(map[string]contract),
		memo:    newMemo(),
		now:     time.Now,
	}
	s.Reload()
	return s
}

// Reload re-reads every master file and swaps the tables in one step.
// The memo generation is bumped so stale resolutions cannot be served.
func (s *Store) Reload() {
	tables := make(map[model.Exchange][]contract, len(masters))
	bySym := make(map[string]contract)

	for exch, mf := range masters {
		rows, err := loadMaster(filepath.Join(s.dataDir, mf.name), mf.exchNo)
		if err != nil {
			log.Printf("[refdata] %s: %v (exchange unavailable)", mf.name, err)
			continue
		}
		tables[exch] = rows
		for _, c := range rows {
			bySym[string(exch)+":"+c.TradingSymbol] = c
		}
		log.Printf("[refdata] loaded %s: %d contracts", mf.name, len(rows))
	}

	s.mu.Lock()
	s.tables = tables
	s.bySym = bySym
	s.mu.Unlock()
	s.gen.Add(1)
}

// Generation returns the current dataset generation, bumped on reload.
func (s *Store) Generation() uint64 { return s.gen.Load() }

// Loaded reports whether at least one exchange master is usable.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables) > 0
}

// Resolve maps a raw ticker to a tradable contract. future selects
// nearest-expiry future lookup; otherwise raw is decomposed as an
// encoded option.
func (s *Store) Resolve(raw string, exchange model.Exchange, future bool) (model.ResolvedInstrument, error) {
	gen := s.gen.Load()
	key := memoKey{raw: raw, exchange: exchange, future: future}
	if inst, ok := s.memo.get(key, gen); ok {
		return inst, nil
	}

	inst, err := s.resolve(raw, exchange, future)
	if err != nil {
		return model.ResolvedInstrument{}, err
	}
	s.memo.put(key, gen, inst)
	return inst, nil
}

func (s *Store) resolve(raw string, exchange model.Exchange, future bool) (model.ResolvedInstrument, error) {
	s.mu.RLock()
	rows, ok := s.tables[exchange]
	s.mu.RUnlock()
	if !ok {
		return model.ResolvedInstrument{}, fmt.Errorf("%w: no dataset for %s", ErrUnavailable, exchange)
	}

	if future {
		underlying, err := aliasUnderlying(raw, exchange)
		if err != nil {
			return model.ResolvedInstrument{}, err
		}
		return nearestFuture(rows, underlying, exchange, s.now())
	}

	od, err := DecomposeOption(raw)
	if err != nil {
		return model.ResolvedInstrument{}, err
	}
	underlying, err := aliasUnderlying(od.Underlying, exchange)
	if err != nil {
		return model.ResolvedInstrument{}, err
	}
	strikeRupees, err := strconv.ParseInt(od.Strike, 10, 64)
	if err != nil {
		return model.ResolvedInstrument{}, fmt.Errorf("%w: strike %q", ErrBadSymbol, od.Strike)
	}
	strike := strikeRupees * 100

	for _, c := range rows {
		if c.OptionType != od.OptionType {
			continue
		}
		if c.Strike != strike {
			continue
		}
		if !strings.EqualFold(c.Underlying, underlying) {
			continue
		}
		if !sameDate(c.Expiry, od.Expiry) {
			continue
		}
		return toResolved(c, exchange), nil
	}
	return model.ResolvedInstrument{}, fmt.Errorf("%w: %s %s %s %s", ErrNotFound,
		underlying, od.Expiry.Format("2006-01-02"), od.OptionType, od.Strike)
}

// ResolveXTS fills in the segment code and numeric instrument id the
// XTS gateway needs. A separate fallible step: the symbol can be absent
// even when the first lookup succeeded against an older dataset.
func (s *Store) ResolveXTS(inst *model.ResolvedInstrument) error {
	seg, ok := xtsSegments[inst.Exchange]
	if !ok {
		return fmt.Errorf("%w: no segment for %s", ErrNotFound, inst.Exchange)
	}
	s.mu.RLock()
	c, ok := s.bySym[inst.Key()]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s has no instrument id", ErrNotFound, inst.TradingSymbol)
	}
	inst.XTSSegment = seg
	inst.XTSInstrumentID = c.InstrumentID
	return nil
}

func aliasUnderlying(u string, exchange model.Exchange) (string, error) {
	if exchange != model.ExchangeBSE {
		return u, nil
	}
	full, ok := bseAliases[strings.ToUpper(u)]
	if !ok {
		return "", fmt.Errorf("%w: unrecognized BSE underlying %q", ErrNotFound, u)
	}
	return full, nil
}

func nearestFuture(rows []contract, underlying string, exchange model.Exchange, now time.Time) (model.ResolvedInstrument, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var best *contract
	for i := range rows {
		c := &rows[i]
		if c.OptionType == "CE" || c.OptionType == "PE" {
			continue
		}
		if !strings.EqualFold(c.Underlying, underlying) {
			continue
		}
		if c.Expiry.Before(today) {
			continue
		}
		if best == nil || c.Expiry.Before(best.Expiry) {
			best = c
		}
	}
	if best == nil {
		return model.ResolvedInstrument{}, fmt.Errorf("%w: no live future for %s", ErrNotFound, underlying)
	}
	return toResolved(*best, exchange), nil
}

func toResolved(c contract, exchange model.Exchange) model.ResolvedInstrument {
	return model.ResolvedInstrument{
		TradingSymbol: c.TradingSymbol,
		Underlying:    c.Underlying,
		Exchange:      exchange,
		LotSize:       c.LotSize,
		Expiry:        c.Expiry,
		Strike:        c.Strike,
		OptionType:    c.OptionType,
	}
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// reExpiry pulls the "YY Mon DD" expiry out of the description column.
var reExpiry = regexp.MustCompile(`(\d{2} [A-Z][a-z]{2} \d{2})`)

// loadMaster parses one headerless master CSV. Rows that do not carry
// the expected exchange number or are too short are skipped.
func loadMaster(path string, exchNo int) ([]contract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows []contract
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if len(rec) < minColumns {
			continue
		}
		if n, _ := strconv.Atoi(strings.TrimSpace(rec[colExchNo])); n != exchNo {
			continue
		}

		lot, err := strconv.ParseInt(strings.TrimSpace(rec[colLotSize]), 10, 64)
		if err != nil || lot <= 0 {
			continue
		}
		token, _ := strconv.ParseInt(strings.TrimSpace(rec[colToken]), 10, 64)

		var strike int64
		if sv, err := strconv.ParseFloat(strings.TrimSpace(rec[colStrike]), 64); err == nil && sv > 0 {
			strike = int64(sv*100 + 0.5)
		}

		var expiry time.Time
		if m := reExpiry.FindString(rec[colDescription]); m != "" {
			if t, perr := time.Parse("06 Jan 02", m); perr == nil {
				expiry = t
			}
		}

		rows = append(rows, contract{
			TradingSymbol: strings.TrimSpace(rec[colSymbol]),
			Underlying:    strings.TrimSpace(rec[colUnderlying]),
			LotSize:       lot,
			Expiry:        expiry,
			Strike:        strike,
			OptionType:    strings.TrimSpace(rec[colOptionType]),
			InstrumentID:  token,
		})
	}
	if len(rows) == 0 {
		return nil, errors.New("no usable rows")
	}
	return rows, nil
}
