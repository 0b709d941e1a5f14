package signal

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/model"
)

func TestParseJSON_Delta(t *testing.T) {
	raw := []byte(`{
		"strategy": {"action": "buy", "contracts": 2, "position_size": 2},
		"symbol": {"exchange": "NSE", "ticker": "NIFTY1!"},
		"price": {"close": 22510.55},
		"meta": {"tag": "radhe-algo-v2", "order_type": "market", "source": "tv"}
	}`)

	in, err := Parse(raw, true)
	require.NoError(t, err)
	assert.Equal(t, model.ExchangeNSE, in.Exchange)
	assert.Equal(t, "NIFTY", in.RawSymbol)
	assert.True(t, in.Future)
	assert.Equal(t, model.KindDelta, in.Kind)
	assert.Equal(t, int64(2), in.Lots)
	assert.Equal(t, int64(2251055), in.RefPrice)
	assert.Equal(t, model.StyleMarket, in.Style)
}

func TestParseJSON_SellIsNegativeLots(t *testing.T) {
	raw := []byte(`{
		"strategy": {"action": "sell", "contracts": 3, "position_size": -3},
		"symbol": {"exchange": "MCX", "ticker": "CRUDEOIL1!"},
		"meta": {"tag": "radhe algo"}
	}`)

	in, err := Parse(raw, true)
	require.NoError(t, err)
	assert.Equal(t, model.KindDelta, in.Kind)
	assert.Equal(t, int64(-3), in.Lots)
}

func TestParseJSON_PositionSizeZeroIsFlatten(t *testing.T) {
	raw := []byte(`{
		"strategy": {"action": "sell", "contracts": 2, "position_size": 0},
		"symbol": {"exchange": "NSE", "ticker": "BANKNIFTY24N1352500CE"},
		"meta": {"tag": "radhe algo"}
	}`)

	in, err := Parse(raw, true)
	require.NoError(t, err)
	assert.Equal(t, model.KindFlatten, in.Kind)
	assert.False(t, in.Future)
	assert.Equal(t, "BANKNIFTY24N1352500CE", in.RawSymbol)
}

func TestParseJSON_GateRequiresBothMarkers(t *testing.T) {
	for _, tag := range []string{"", "algo-only", "radhe-only", "random"} {
		raw := []byte(fmt.Sprintf(`{
			"strategy": {"action": "buy", "contracts": 1, "position_size": 1},
			"symbol": {"exchange": "NSE", "ticker": "NIFTY1!"},
			"meta": {"tag": %q}
		}`, tag))
		_, err := Parse(raw, true)
		assert.ErrorIs(t, err, ErrUnauthorized, "tag=%q", tag)
	}
}

func TestParseJSON_MissingFieldsNeverDefaultToZero(t *testing.T) {
	cases := map[string]string{
		"no contracts": `{"strategy": {"action": "buy", "position_size": 1},
			"symbol": {"exchange": "NSE", "ticker": "NIFTY1!"}, "meta": {"tag": "radhe algo"}}`,
		"no position_size": `{"strategy": {"action": "buy", "contracts": 1},
			"symbol": {"exchange": "NSE", "ticker": "NIFTY1!"}, "meta": {"tag": "radhe algo"}}`,
		"bad action": `{"strategy": {"action": "hold", "contracts": 1, "position_size": 1},
			"symbol": {"exchange": "NSE", "ticker": "NIFTY1!"}, "meta": {"tag": "radhe algo"}}`,
		"bad exchange": `{"strategy": {"action": "buy", "contracts": 1, "position_size": 1},
			"symbol": {"exchange": "NYSE", "ticker": "AAPL"}, "meta": {"tag": "radhe algo"}}`,
		"fractional contracts": `{"strategy": {"action": "buy", "contracts": 1.5, "position_size": 1},
			"symbol": {"exchange": "NSE", "ticker": "NIFTY1!"}, "meta": {"tag": "radhe algo"}}`,
	}
	for name, payload := range cases {
		_, err := Parse([]byte(payload), true)
		assert.ErrorIs(t, err, ErrInvalidFormat, name)
	}
}

func TestParse_UnsafeContent(t *testing.T) {
	_, err := Parse([]byte(`radhe algo <script>alert(1)</script>`), false)
	assert.ErrorIs(t, err, ErrUnsafeContent)

	_, err = Parse([]byte(`radhe algo javascript:void(0)`), false)
	assert.ErrorIs(t, err, ErrUnsafeContent)

	big := strings.Repeat("x", 10001)
	_, err = Parse([]byte(big), false)
	assert.ErrorIs(t, err, ErrUnsafeContent)
}

func legacyAlert(comment string, position int64) string {
	return fmt.Sprintf(
		"radhe algo order %s filled on NSE:NIFTY1!. New strategy position is %d\n"+
			"comment = %s\nopen : 22510.55\norder_type : market\ntime : 2026-08-21T09:30:00Z",
		comment, position, comment)
}

func TestParseText_LongEntry(t *testing.T) {
	in, err := Parse([]byte(legacyAlert("Long Entry", 2)), false)
	require.NoError(t, err)
	assert.Equal(t, model.KindEnterLong, in.Kind)
	assert.Equal(t, int64(2), in.Lots)
	assert.Equal(t, "NIFTY", in.RawSymbol)
	assert.True(t, in.Future)
	assert.Equal(t, int64(2251055), in.RefPrice)
	assert.Equal(t, time.Date(2026, 8, 21, 9, 30, 0, 0, time.UTC), in.ReceivedAt)
}

func TestParseText_CommentVocabulary(t *testing.T) {
	cases := []struct {
		comment  string
		position int64
		kind     model.IntentKind
		lots     int64
		match    int64
	}{
		{"exit all", 0, model.KindExitAll, 0, 0},
		{"Short Exit", 0, model.KindExitShort, 0, 0},
		{"Short SL", 0, model.KindExitShort, 0, 0},
		{"Short TP", 0, model.KindExitShort, 0, 0},
		{"Short BE", 0, model.KindExitShort, 0, 0},
		{"Stop Loss Short", 0, model.KindExitShort, 0, 0},
		{"Remaining Short Exit", 0, model.KindExitShort, 0, 0},
		// Closes the short; only the bare "Short Entry" opens one.
		{"Close entry(s) order Short Entry", -2, model.KindExitShort, 0, 0},
		{"Long Exit", 0, model.KindExitLong, 0, 0},
		{"Long SL", 0, model.KindExitLong, 0, 0},
		{"Long TP", 0, model.KindExitLong, 0, 0},
		{"Long BE", 0, model.KindExitLong, 0, 0},
		{"Stop Loss Long Exit", 0, model.KindExitLong, 0, 0},
		{"Remaining Long Exit", 0, model.KindExitLong, 0, 0},
		{"Close entry(s) order Long Entry", 3, model.KindExitLong, 0, 0},
		{"Short Entry", -3, model.KindEnterShort, 3, 0},
		{"Long Entry", 4, model.KindEnterLong, 4, 0},
		{"Exit fifty at two x", 4, model.KindScaleDown, 0, 4},
		{"long exit fifty at three x", -6, model.KindScaleDown, 0, 6},
		{"something else", 5, model.KindIgnore, 0, 0},
		{"Long Exit Half", 1, model.KindIgnore, 0, 0},
	}
	for _, tc := range cases {
		in, err := Parse([]byte(legacyAlert(tc.comment, tc.position)), false)
		require.NoError(t, err, tc.comment)
		assert.Equal(t, tc.kind, in.Kind, tc.comment)
		assert.Equal(t, tc.lots, in.Lots, tc.comment)
		assert.Equal(t, tc.match, in.MatchLots, tc.comment)
	}
}

func TestParseText_GateAndFormat(t *testing.T) {
	_, err := Parse([]byte("order filled on NSE:NIFTY1!. New strategy position is 2"), false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = Parse([]byte("radhe algo but no fill line here"), false)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Parse([]byte("radhe algo order filled on NSE:NIFTY1!. no position line"), false)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseText_AbsentTimeDefaultsToNow(t *testing.T) {
	raw := "radhe algo order Long Entry filled on NSE:NIFTY1!. New strategy position is 1\ncomment = Long Entry"
	before := time.Now().UTC()
	in, err := Parse([]byte(raw), false)
	require.NoError(t, err)
	assert.False(t, in.ReceivedAt.Before(before))
}

func TestNormalizeTicker(t *testing.T) {
	cases := []struct {
		in     string
		out    string
		future bool
	}{
		{"NIFTY1!", "NIFTY", true},
		{"CRUDEOIL1!", "CRUDEOIL", true},
		{"BANKNIFTY2!", "BANKNIFTY", true},
		{"NIFTY!", "NIFTY", true},
		{"BANKNIFTY24N1352500CE", "BANKNIFTY24N1352500CE", false},
		{"reliance.", "RELIANCE", false},
	}
	for _, tc := range cases {
		got, future := normalizeTicker(tc.in)
		assert.Equal(t, tc.out, got, tc.in)
		assert.Equal(t, tc.future, future, tc.in)
	}
}

func TestTruncate_CutsOnRuneBoundary(t *testing.T) {
	s := strings.Repeat("₹", maxCommentLen+10)
	got := truncate(s, maxCommentLen)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxCommentLen, utf8.RuneCountInString(got))

	// Short strings pass through untouched.
	assert.Equal(t, "Long Entry", truncate("Long Entry", maxCommentLen))
}
