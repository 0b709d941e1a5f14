package refdata

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// OptionDetails is the decomposition of an encoded option ticker.
type OptionDetails struct {
	Underlying string
	Expiry     time.Time
	OptionType string // CE / PE
	Strike     string // integer string, rupees
}

// Two encodings appear in alerts:
//   - numeric: underlying + YY + MM + DD + C/P + strike
//     (BANKNIFTY241113C52500)
//   - exchange-native: underlying + YY + month-code + DD + strike + CE/PE
//     where the month code is 1-9 for Jan-Sep and O/N/D for Oct-Dec
//     (BANKNIFTY24N1352500CE)
var (
	reNumericOpt = regexp.MustCompile(`^([A-Z][A-Z0-9]*?)(\d{2})(\d{2})(\d{2})([CP])(\d+)$`)
	reNativeOpt  = regexp.MustCompile(`^([A-Z][A-Z-]*?)(\d{2})([1-9OND])(\d{2})(\d+)(CE|PE)$`)
)

var monthCodes = map[string]time.Month{
	"1": time.January, "2": time.February, "3": time.March,
	"4": time.April, "5": time.May, "6": time.June,
	"7": time.July, "8": time.August, "9": time.September,
	"O": time.October, "N": time.November, "D": time.December,
}

// DecomposeOption splits an encoded option ticker into its parts.
// Returns ErrBadSymbol when the text matches neither encoding.
func DecomposeOption(raw string) (OptionDetails, error) {
	if m := reNativeOpt.FindStringSubmatch(raw); m != nil {
		yy, _ := strconv.Atoi(m[2])
		dd, _ := strconv.Atoi(m[4])
		month := monthCodes[m[3]]
		expiry := time.Date(2000+yy, month, dd, 0, 0, 0, 0, time.UTC)
		if expiry.Day() != dd {
			return OptionDetails{}, fmt.Errorf("%w: impossible date in %q", ErrBadSymbol, raw)
		}
		return OptionDetails{
			Underlying: m[1],
			Expiry:     expiry,
			OptionType: m[6],
			Strike:     m[5],
		}, nil
	}

	if m := reNumericOpt.FindStringSubmatch(raw); m != nil {
		yy, _ := strconv.Atoi(m[2])
		mm, _ := strconv.Atoi(m[3])
		dd, _ := strconv.Atoi(m[4])
		if mm < 1 || mm > 12 {
			return OptionDetails{}, fmt.Errorf("%w: month %02d in %q", ErrBadSymbol, mm, raw)
		}
		expiry := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
		if expiry.Day() != dd {
			return OptionDetails{}, fmt.Errorf("%w: impossible date in %q", ErrBadSymbol, raw)
		}
		ot := "CE"
		if m[5] == "P" {
			ot = "PE"
		}
		return OptionDetails{
			Underlying: m[1],
			Expiry:     expiry,
			OptionType: ot,
			Strike:     m[6],
		}, nil
	}

	return OptionDetails{}, fmt.Errorf("%w: %q", ErrBadSymbol, raw)
}
