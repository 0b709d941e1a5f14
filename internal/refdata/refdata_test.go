package refdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/model"
)

// masterRow builds one 21-column master line in the published layout.
func masterRow(desc string, exchNo int, lot int64, sym string, token int64, underlying, strike, otype string) string {
	cols := make([]string, 21)
	cols[colDescription] = desc
	cols[colExchNo] = fmt.Sprint(exchNo)
	cols[colLotSize] = fmt.Sprint(lot)
	cols[colSymbol] = sym
	cols[colToken] = fmt.Sprint(token)
	cols[colUnderlying] = underlying
	cols[colStrike] = strike
	cols[colOptionType] = otype
	return strings.Join(cols, ",")
}

func writeMaster(t *testing.T, dir, name string, rows ...string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(rows, "\n")+"\n"), 0o644)
	require.NoError(t, err)
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()

	writeMaster(t, dir, "NSE_FO.csv",
		masterRow("BANKNIFTY 24 Nov 13 52500 CE", 11, 15, "BANKNIFTY24N1352500CE", 48227, "BANKNIFTY", "52500", "CE"),
		masterRow("BANKNIFTY 24 Nov 13 52500 PE", 11, 15, "BANKNIFTY24N1352500PE", 48228, "BANKNIFTY", "52500", "PE"),
		masterRow("NIFTY 26 Sep 24 FUT", 11, 75, "NIFTY26SEPFUT", 53001, "NIFTY", "-1", "XX"),
		masterRow("NIFTY 26 Aug 27 FUT", 11, 75, "NIFTY26AUGFUT", 53000, "NIFTY", "-1", "XX"),
		masterRow("NIFTY 26 Jan 29 FUT", 11, 75, "NIFTY26JANFUT", 52999, "NIFTY", "-1", "XX"),
	)
	writeMaster(t, dir, "BSE_FO.csv",
		masterRow("SENSEX 26 Aug 25 FUT", 14, 10, "SENSEX26AUGFUT", 88001, "SENSEX", "-1", "XX"),
	)

	s := NewStore(dir)
	s.now = func() time.Time { return time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC) }
	return s, dir
}

func TestDecomposeOption(t *testing.T) {
	od, err := DecomposeOption("BANKNIFTY24N1352500CE")
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY", od.Underlying)
	assert.Equal(t, time.Date(2024, 11, 13, 0, 0, 0, 0, time.UTC), od.Expiry)
	assert.Equal(t, "CE", od.OptionType)
	assert.Equal(t, "52500", od.Strike)

	od, err = DecomposeOption("NIFTY241128P22500")
	require.NoError(t, err)
	assert.Equal(t, "NIFTY", od.Underlying)
	assert.Equal(t, time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC), od.Expiry)
	assert.Equal(t, "PE", od.OptionType)
	assert.Equal(t, "22500", od.Strike)

	for _, bad := range []string{"NIFTY", "NIFTY24FUT", "241113C22500", "NIFTY241345C22500", "NIFTY24N3252500CE"} {
		_, err := DecomposeOption(bad)
		assert.ErrorIs(t, err, ErrBadSymbol, bad)
	}
}

func TestResolve_OptionExactMatch(t *testing.T) {
	s, _ := newTestStore(t)

	inst, err := s.Resolve("BANKNIFTY24N1352500CE", model.ExchangeNSE, false)
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY24N1352500CE", inst.TradingSymbol)
	assert.Equal(t, int64(15), inst.LotSize)
	assert.Equal(t, "CE", inst.OptionType)
	assert.Equal(t, int64(5250000), inst.Strike)
	assert.Equal(t, "NSE:BANKNIFTY24N1352500CE", inst.Key())

	// Strike mismatch is a clean not-found.
	_, err = s.Resolve("BANKNIFTY24N1399999CE", model.ExchangeNSE, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_FutureNearestExpiry(t *testing.T) {
	s, _ := newTestStore(t)

	inst, err := s.Resolve("NIFTY", model.ExchangeNSE, true)
	require.NoError(t, err)
	// Jan 29 already expired relative to the stubbed clock; Aug 27 is
	// the nearest live expiry even though Sep 24 sorts first in file order.
	assert.Equal(t, "NIFTY26AUGFUT", inst.TradingSymbol)
	assert.Equal(t, int64(75), inst.LotSize)
}

func TestResolve_Deterministic(t *testing.T) {
	s, _ := newTestStore(t)

	a, err := s.Resolve("BANKNIFTY24N1352500CE", model.ExchangeNSE, false)
	require.NoError(t, err)
	b, err := s.Resolve("BANKNIFTY24N1352500CE", model.ExchangeNSE, false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolve_MissingDataset(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Resolve("CRUDEOIL", model.ExchangeMCX, true)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_BSEAliases(t *testing.T) {
	s, _ := newTestStore(t)

	inst, err := s.Resolve("BSX", model.ExchangeBSE, true)
	require.NoError(t, err)
	assert.Equal(t, "SENSEX26AUGFUT", inst.TradingSymbol)

	// Unrecognized BSE underlyings are refused, never passed through.
	_, err = s.Resolve("RELIANCE", model.ExchangeBSE, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemo_InvalidatedOnReload(t *testing.T) {
	s, dir := newTestStore(t)

	inst, err := s.Resolve("BANKNIFTY24N1352500CE", model.ExchangeNSE, false)
	require.NoError(t, err)
	assert.Equal(t, int64(15), inst.LotSize)

	// Replace the master with a revised lot size and reload.
	writeMaster(t, dir, "NSE_FO.csv",
		masterRow("BANKNIFTY 24 Nov 13 52500 CE", 11, 30, "BANKNIFTY24N1352500CE", 48227, "BANKNIFTY", "52500", "CE"),
	)
	gen := s.Generation()
	s.Reload()
	assert.Greater(t, s.Generation(), gen)

	inst, err = s.Resolve("BANKNIFTY24N1352500CE", model.ExchangeNSE, false)
	require.NoError(t, err)
	assert.Equal(t, int64(30), inst.LotSize, "memoized resolution served after reload")
}

func TestResolveXTS(t *testing.T) {
	s, _ := newTestStore(t)

	inst, err := s.Resolve("BANKNIFTY24N1352500CE", model.ExchangeNSE, false)
	require.NoError(t, err)

	require.NoError(t, s.ResolveXTS(&inst))
	assert.Equal(t, "NSEFO", inst.XTSSegment)
	assert.Equal(t, int64(48227), inst.XTSInstrumentID)

	ghost := model.ResolvedInstrument{TradingSymbol: "GHOST", Exchange: model.ExchangeNSE}
	assert.ErrorIs(t, s.ResolveXTS(&ghost), ErrNotFound)
}
