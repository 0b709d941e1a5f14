package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/model"
)

var testInst = model.ResolvedInstrument{
	TradingSymbol: "NIFTY26AUGFUT",
	Underlying:    "NIFTY",
	Exchange:      model.ExchangeNSE,
	LotSize:       75,
}

func deltaIntent(lots int64) *model.Intent {
	return &model.Intent{
		Exchange:  model.ExchangeNSE,
		RawSymbol: "NIFTY",
		Future:    true,
		Kind:      model.KindDelta,
		Lots:      lots,
		Style:     model.StyleMarket,
	}
}

func kindIntent(kind model.IntentKind, lots, match int64) *model.Intent {
	return &model.Intent{
		Exchange:  model.ExchangeNSE,
		RawSymbol: "NIFTY",
		Future:    true,
		Kind:      kind,
		Lots:      lots,
		MatchLots: match,
		Style:     model.StyleMarket,
	}
}

func TestDecide_DuplicateDeltaIsNoop(t *testing.T) {
	d := Decide(deltaIntent(5), testInst, 5)
	assert.Empty(t, d.Commands)
	assert.Equal(t, int64(5), d.NewNet)
	assert.Contains(t, d.Notice, "no change")
}

func TestDecide_FlattenWhenFlatIsSkipped(t *testing.T) {
	d := Decide(kindIntent(model.KindFlatten, 0, 0), testInst, 0)
	assert.Empty(t, d.Commands)
	assert.Equal(t, int64(0), d.NewNet)
	assert.Contains(t, d.Notice, "skipped")
}

func TestDecide_FlattenClosesPosition(t *testing.T) {
	d := Decide(kindIntent(model.KindFlatten, 0, 0), testInst, 3)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.SideSell, d.Commands[0].Side)
	assert.Equal(t, int64(3*75), d.Commands[0].Units)
	assert.Equal(t, int64(0), d.NewNet)

	d = Decide(kindIntent(model.KindFlatten, 0, 0), testInst, -2)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.SideBuy, d.Commands[0].Side)
	assert.Equal(t, int64(2*75), d.Commands[0].Units)
	assert.Equal(t, int64(0), d.NewNet)
}

func TestDecide_DeltaProperties(t *testing.T) {
	cases := []struct {
		net, lots int64
		side      model.OrderSide
	}{
		{0, 5, model.SideBuy},
		{0, -3, model.SideSell},
		{2, 4, model.SideBuy},
		{-2, -1, model.SideSell},
		{5, -2, model.SideSell},
	}
	for _, tc := range cases {
		d := Decide(deltaIntent(tc.lots), testInst, tc.net)
		require.Len(t, d.Commands, 1, "net=%d lots=%d", tc.net, tc.lots)
		cmd := d.Commands[0]
		assert.Equal(t, tc.side, cmd.Side)
		if tc.lots < 0 {
			assert.Equal(t, -tc.lots*75, cmd.Units)
		} else {
			assert.Equal(t, tc.lots*75, cmd.Units)
		}
		assert.Equal(t, tc.net+tc.lots, d.NewNet)
	}
}

func TestDecide_EnterShortFlipExitsLongFirst(t *testing.T) {
	d := Decide(kindIntent(model.KindEnterShort, 2, 0), testInst, 3)
	require.Len(t, d.Commands, 2)
	// Exit of the long comes first, then the fresh short.
	assert.Equal(t, model.SideSell, d.Commands[0].Side)
	assert.Equal(t, int64(3*75), d.Commands[0].Units)
	assert.Equal(t, model.SideSell, d.Commands[1].Side)
	assert.Equal(t, int64(2*75), d.Commands[1].Units)
	assert.Equal(t, int64(-2), d.NewNet)
}

func TestDecide_EnterShortAddsToExistingShort(t *testing.T) {
	d := Decide(kindIntent(model.KindEnterShort, 2, 0), testInst, -1)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.SideSell, d.Commands[0].Side)
	assert.Equal(t, int64(2*75), d.Commands[0].Units)
	assert.Equal(t, int64(-3), d.NewNet)
}

func TestDecide_EnterLongFlipExitsShortFirst(t *testing.T) {
	d := Decide(kindIntent(model.KindEnterLong, 4, 0), testInst, -2)
	require.Len(t, d.Commands, 2)
	assert.Equal(t, model.SideBuy, d.Commands[0].Side)
	assert.Equal(t, int64(2*75), d.Commands[0].Units)
	assert.Equal(t, model.SideBuy, d.Commands[1].Side)
	assert.Equal(t, int64(4*75), d.Commands[1].Units)
	assert.Equal(t, int64(4), d.NewNet)
}

func TestDecide_ExitShortPrecondition(t *testing.T) {
	d := Decide(kindIntent(model.KindExitShort, 0, 0), testInst, -4)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.SideBuy, d.Commands[0].Side)
	assert.Equal(t, int64(4*75), d.Commands[0].Units)
	assert.Equal(t, int64(0), d.NewNet)

	for _, net := range []int64{0, 3} {
		d := Decide(kindIntent(model.KindExitShort, 0, 0), testInst, net)
		assert.Empty(t, d.Commands, "net=%d", net)
		assert.Equal(t, net, d.NewNet)
	}
}

func TestDecide_ExitLongPrecondition(t *testing.T) {
	d := Decide(kindIntent(model.KindExitLong, 0, 0), testInst, 2)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.SideSell, d.Commands[0].Side)
	assert.Equal(t, int64(0), d.NewNet)

	for _, net := range []int64{0, -3} {
		d := Decide(kindIntent(model.KindExitLong, 0, 0), testInst, net)
		assert.Empty(t, d.Commands, "net=%d", net)
	}
}

func TestDecide_ScaleDown(t *testing.T) {
	// Long 5, match 2: sell 3 lots, keep direction.
	d := Decide(kindIntent(model.KindScaleDown, 0, 2), testInst, 5)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.SideSell, d.Commands[0].Side)
	assert.Equal(t, int64(3*75), d.Commands[0].Units)
	assert.Equal(t, int64(2), d.NewNet)

	// Short 5, match 2: buy 3 lots, stays short.
	d = Decide(kindIntent(model.KindScaleDown, 0, 2), testInst, -5)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.SideBuy, d.Commands[0].Side)
	assert.Equal(t, int64(-2), d.NewNet)

	// Already at or below the match: no-op.
	for _, net := range []int64{2, -2, 1, 0} {
		d := Decide(kindIntent(model.KindScaleDown, 0, 2), testInst, net)
		assert.Empty(t, d.Commands, "net=%d", net)
		assert.Equal(t, net, d.NewNet)
	}
}

func TestDecide_LimitStyleCarriesPrice(t *testing.T) {
	in := deltaIntent(1)
	in.Style = model.StyleLimit
	in.RefPrice = 2251055
	d := Decide(in, testInst, 0)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.StyleLimit, d.Commands[0].Style)
	assert.Equal(t, int64(2251055), d.Commands[0].Price)
}

func TestDecide_ExitLegsAlwaysGoAtMarket(t *testing.T) {
	// A limit signal's reference price belongs to the new entry; the
	// flip's exit leg must not carry it.
	in := kindIntent(model.KindEnterShort, 2, 0)
	in.Style = model.StyleLimit
	in.RefPrice = 2251055
	d := Decide(in, testInst, 3)
	require.Len(t, d.Commands, 2)
	assert.Equal(t, model.StyleMarket, d.Commands[0].Style)
	assert.Equal(t, int64(0), d.Commands[0].Price)
	assert.Equal(t, model.StyleLimit, d.Commands[1].Style)
	assert.Equal(t, int64(2251055), d.Commands[1].Price)

	// Plain exits too.
	in = kindIntent(model.KindExitLong, 0, 0)
	in.Style = model.StyleLimit
	in.RefPrice = 2251055
	d = Decide(in, testInst, 2)
	require.Len(t, d.Commands, 1)
	assert.Equal(t, model.StyleMarket, d.Commands[0].Style)
	assert.Equal(t, int64(0), d.Commands[0].Price)
}
