package transforms

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

// Epoch values above this threshold are interpreted as milliseconds rather
// than seconds.
const millisThreshold = 10_000_000_000

// isoLayouts are tried in order against ISO 8601 inputs, with and without
// fractional seconds and zone designators.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// applyTimestamp parses the subject into a UTC millisecond epoch, returned as
// a decimal string. Accepted surfaces: integer epoch (seconds or
// milliseconds), ISO 8601, "YYYY-MM-DD HH:MM:SS", "YYYY-MM-DD", and US
// "MM/DD/YYYY". An op-level format regex, when present, gates the input
// surface before parsing.
func applyTimestamp(op contracts.TimestampOp, v any) (any, error) {
	if v == nil {
		return nil, faults.OpFailure(contracts.OpParseTimestamp, "timestamp input is null")
	}
	input := strings.TrimSpace(values.SafeToString(v))
	if input == "" {
		return nil, faults.OpFailure(contracts.OpParseTimestamp, "timestamp input is empty")
	}

	if op.Format != "" {
		re, err := regexp.Compile(op.Format)
		if err != nil {
			return nil, faults.Wrap(faults.KindOpFailure, err, "invalid timestamp format %q", op.Format)
		}
		if !re.MatchString(input) {
			return nil, faults.OpFailure(contracts.OpParseTimestamp, "input %q does not match format %q", input, op.Format)
		}
	}

	if ms, ok := parseEpoch(input); ok {
		return strconv.FormatInt(ms, 10), nil
	}

	ms, err := parseCalendar(input)
	if err != nil {
		return nil, err
	}
	return strconv.FormatInt(ms, 10), nil
}

// parseEpoch handles bare numeric inputs.
func parseEpoch(input string) (int64, bool) {
	n, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, false
	}
	if n > millisThreshold {
		return int64(n), true
	}
	return int64(n * 1000), true
}

func parseCalendar(input string) (int64, error) {
	candidate := input

	// "YYYY-MM-DD HH:MM:SS" becomes ISO by replacing the first space.
	if len(candidate) > 10 && candidate[10] == ' ' {
		candidate = candidate[:10] + "T" + candidate[11:]
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}

	// Date-only forms parse as midnight UTC.
	if t, err := time.Parse("2006-01-02", candidate); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse("01/02/2006", candidate); err == nil {
		return t.UnixMilli(), nil
	}

	return 0, faults.OpFailure(contracts.OpParseTimestamp, "unsupported timestamp %q", input)
}
