package sheets

// coerce.go converts raw fetched cell values into schema-conformant record
// values. Coercion never fails a sync: values of an unexpected shape degrade
// to their string form and the mismatch is logged as a data-quality warning.

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// serialEpoch is the spreadsheet serial day number of 1970-01-01T00:00:00Z.
// Day 0 of the serial calendar is 1899-12-30.
const serialEpoch = 25569

const secondsPerDay = 86400

// maxFloatDigits is the decimal precision guaranteed by the schema's
// multipleOf contract; floats with more fractional digits are rounded to it.
const maxFloatDigits = 15

// Coercer converts raw cell values for one sheet's columns.
type Coercer struct {
	Sheet      string
	NullValues []string
	Logger     *slog.Logger
}

// Coerce converts one cell for the given column. rowNum is the absolute
// sheet row, used only for warning context.
func (c *Coercer) Coerce(col Column, cell Cell, rowNum int) any {
	raw := cell.Value

	// Absent and sentinel values are null whatever the column type is.
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		if s == "" || slices.Contains(c.NullValues, s) {
			return nil
		}
	}

	// Link columns always yield strings: the hyperlink when the cell has
	// one, the display value otherwise.
	if col.Link {
		if cell.Hyperlink != "" {
			return cell.Hyperlink
		}
		return stringify(raw)
	}

	switch col.Type {
	case TypeDateTime:
		if serial, ok := asNumber(raw); ok {
			if t, ok := serialToTime(serial); ok {
				return t.Format(time.RFC3339)
			}
		}
		c.warn(col, rowNum, raw, "expected a date-time serial number")
		return stringify(raw)

	case TypeDate:
		if serial, ok := asNumber(raw); ok {
			if t, ok := serialToTime(serial); ok {
				return t.Format(time.DateOnly)
			}
		}
		c.warn(col, rowNum, raw, "expected a date serial number")
		return stringify(raw)

	case TypeTime:
		if serial, ok := asNumber(raw); ok {
			if s, ok := serialToClock(serial); ok {
				return s
			}
		}
		c.warn(col, rowNum, raw, "expected a time-of-day serial number")
		return stringify(raw)

	case TypeNumber:
		if v, ok := asNumber(raw); ok {
			return roundFloat(v)
		}
		c.warn(col, rowNum, raw, "expected a number")
		return stringify(raw)

	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(v) {
			case "true", "t", "yes", "y":
				return true
			case "false", "f", "no", "n":
				return false
			}
		case float64:
			if v == math.Trunc(v) {
				switch int64(v) {
				case 1, -1:
					return true
				case 0:
					return false
				}
			}
		}
		c.warn(col, rowNum, raw, "expected a boolean")
		return stringify(raw)

	default:
		return stringify(raw)
	}
}

// warn logs a data-quality warning for a value that did not match its
// column's resolved type.
func (c *Coercer) warn(col Column, rowNum int, value any, reason string) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("possible data type mismatch, value degraded to string",
		"sheet", c.Sheet,
		"column", col.Name,
		"cell", fmt.Sprintf("%s%d", col.Letter, rowNum),
		"column_type", col.Type.String(),
		"value", fmt.Sprintf("%v", value),
		"reason", reason,
	)
}

// asNumber reports the raw value as a float64 if it is numeric.
func asNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// serialToTime converts a day-count serial number to a UTC timestamp.
// Serial 25569 is exactly 1970-01-01T00:00:00Z.
func serialToTime(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, false
	}
	seconds := math.Round((serial - serialEpoch) * secondsPerDay)
	if seconds < math.MinInt64 || seconds > math.MaxInt64 {
		return time.Time{}, false
	}
	return time.Unix(int64(seconds), 0).UTC(), true
}

// serialToClock converts a day-fraction serial to an HH:MM:SS string with no
// date part. Serials of a day or more keep accumulating hours.
func serialToClock(serial float64) (string, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 0 {
		return "", false
	}
	total := int64(math.Round(serial * secondsPerDay))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60), true
}

// roundFloat rounds a float to maxFloatDigits fractional digits when it
// carries more than that; shorter values pass through untouched. Integral
// values always pass through.
func roundFloat(v float64) float64 {
	if v == math.Trunc(v) {
		return v
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 || len(s)-dot-1 <= maxFloatDigits {
		return v
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', maxFloatDigits, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}

// stringify renders a raw cell value the way the record's string form should
// read: floats without exponent notation, bools as true/false.
func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
