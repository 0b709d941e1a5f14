// Package engine is the signal-to-order core: a pure decision function
// over (intent, instrument, net position) and an executor that wraps it
// with dedup, resolution, locking, placement and ledger commits.
package engine

import (
	"fmt"

	"orderbridge/internal/model"
)

// Decision is the outcome of one decide step. Commands are placed in
// order (a flip emits the exit first). NewNet is the ledger value to
// commit once every command is acknowledged. Notice explains no-op
// decisions for the audit trail.
type Decision struct {
	Commands []model.OrderCommand
	NewNet   int64
	Notice   string
}

// Decide computes the delta operation that moves net toward the
// intent's target. It never mutates anything; the executor owns ledger
// writes and broker calls.
func Decide(in *model.Intent, inst model.ResolvedInstrument, net int64) Decision {
	switch in.Kind {
	case model.KindIgnore:
		return Decision{NewNet: net, Notice: "ignored: unrecognized signal"}

	case model.KindExitAll, model.KindFlatten:
		if net == 0 {
			return Decision{NewNet: 0, Notice: "skipped: no position"}
		}
		return Decision{
			Commands: []model.OrderCommand{exitCommand(in, inst, net)},
			NewNet:   0,
		}

	case model.KindExitShort:
		if net >= 0 {
			return Decision{NewNet: net, Notice: "skipped: no short position"}
		}
		return Decision{
			Commands: []model.OrderCommand{exitCommand(in, inst, net)},
			NewNet:   0,
		}

	case model.KindExitLong:
		if net <= 0 {
			return Decision{NewNet: net, Notice: "skipped: no long position"}
		}
		return Decision{
			Commands: []model.OrderCommand{exitCommand(in, inst, net)},
			NewNet:   0,
		}

	case model.KindEnterShort:
		if in.Lots <= 0 {
			return Decision{NewNet: net, Notice: "skipped: zero entry quantity"}
		}
		cmds := make([]model.OrderCommand, 0, 2)
		if net > 0 {
			cmds = append(cmds, exitCommand(in, inst, net))
		}
		cmds = append(cmds, orderCommand(in, inst, model.SideSell, in.Lots))
		newNet := net - in.Lots
		if net > 0 {
			newNet = -in.Lots
		}
		return Decision{Commands: cmds, NewNet: newNet}

	case model.KindEnterLong:
		if in.Lots <= 0 {
			return Decision{NewNet: net, Notice: "skipped: zero entry quantity"}
		}
		cmds := make([]model.OrderCommand, 0, 2)
		if net < 0 {
			cmds = append(cmds, exitCommand(in, inst, net))
		}
		cmds = append(cmds, orderCommand(in, inst, model.SideBuy, in.Lots))
		newNet := net + in.Lots
		if net < 0 {
			newNet = in.Lots
		}
		return Decision{Commands: cmds, NewNet: newNet}

	case model.KindScaleDown:
		if abs(net) <= in.MatchLots {
			return Decision{NewNet: net, Notice: fmt.Sprintf("skipped: position %d already at or below %d", net, in.MatchLots)}
		}
		delta := abs(net) - in.MatchLots
		side := model.SideSell // reduce a long
		newNet := in.MatchLots
		if net < 0 {
			side = model.SideBuy
			newNet = -in.MatchLots
		}
		return Decision{
			Commands: []model.OrderCommand{orderCommand(in, inst, side, delta)},
			NewNet:   newNet,
		}

	case model.KindDelta:
		if in.Lots == net {
			return Decision{NewNet: net, Notice: "ignored: no change"}
		}
		side := model.SideBuy
		if in.Lots < 0 {
			side = model.SideSell
		}
		return Decision{
			Commands: []model.OrderCommand{orderCommand(in, inst, side, abs(in.Lots))},
			NewNet:   net + in.Lots,
		}
	}

	return Decision{NewNet: net, Notice: fmt.Sprintf("ignored: kind %q", in.Kind)}
}

// exitCommand closes the whole net position with an opposing order.
// Exits always go at market: a limit signal's reference price belongs
// to the new entry, not to unwinding the old side.
func exitCommand(in *model.Intent, inst model.ResolvedInstrument, net int64) model.OrderCommand {
	side := model.SideSell
	if net < 0 {
		side = model.SideBuy
	}
	cmd := orderCommand(in, inst, side, abs(net))
	cmd.Style = model.StyleMarket
	cmd.Price = 0
	return cmd
}

func orderCommand(in *model.Intent, inst model.ResolvedInstrument, side model.OrderSide, lots int64) model.OrderCommand {
	cmd := model.OrderCommand{
		Instrument: inst,
		Side:       side,
		Units:      lots * inst.LotSize,
		Style:      in.Style,
		Product:    in.Product,
	}
	if in.Style == model.StyleLimit {
		cmd.Price = in.RefPrice
	}
	return cmd
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
