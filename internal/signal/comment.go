package signal

import (
	"strings"

	"orderbridge/internal/model"
)

// Legacy alerts carry a fixed comment vocabulary instead of structured
// fields. classifyComment maps that vocabulary onto canonical intent
// kinds. Comments are matched whole (case-insensitive, trimmed), never
// by substring: "Close entry(s) order Short Entry" closes a short, and
// only the bare "Short Entry" opens one. position is the signed strategy
// position from the alert text and supplies the lot counts where the
// kind needs one.
func classifyComment(comment string, position int64) (kind model.IntentKind, lots, match int64) {
	switch strings.ToLower(strings.TrimSpace(comment)) {
	case "exit all":
		return model.KindExitAll, 0, 0

	case "exit fifty at two x", "long exit fifty at three x":
		return model.KindScaleDown, 0, abs(position)

	case "remaining short exit", "stop loss short", "short sl", "short tp",
		"short be", "short exit", "close entry(s) order short entry":
		return model.KindExitShort, 0, 0

	case "stop loss long exit", "remaining long exit", "long sl", "long tp",
		"long be", "long exit", "close entry(s) order long entry":
		return model.KindExitLong, 0, 0

	case "short entry":
		return model.KindEnterShort, abs(position), 0

	case "long entry":
		return model.KindEnterLong, abs(position), 0
	}

	// Unrecognized comments are logged upstream and dropped, never traded.
	return model.KindIgnore, 0, 0
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
