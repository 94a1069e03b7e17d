package tableapi

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cast"
)

// Conversions between the HTML form string boundary and the store's typed
// columns. Statement values travel as parameters; the quoting helpers below
// remain only for identifiers and the few places where text must be embedded
// into statement bodies.

var sqlLiteralStrip = regexp.MustCompile(`['()"!^+\-%&@]|--|/\*|\*/`)

// SQLLiteral strips statement-syntax characters from a value so it can be
// embedded as a bare identifier or literal. This is a legacy compatibility
// shim, not a security boundary: identifiers should come from trusted
// metadata and values should be parameters.
func SQLLiteral(v any) string {
	if v == nil {
		return "NULL"
	}
	return sqlLiteralStrip.ReplaceAllString(cast.ToString(v), "")
}

var sqlStringQuote = regexp.MustCompile(`'`)

// SQLString renders a value as a single-quoted string literal, doubling any
// embedded quotes. nil becomes the literal NULL.
func SQLString(v any) string {
	if v == nil {
		return "NULL"
	}
	return "'" + sqlStringQuote.ReplaceAllString(cast.ToString(v), "''") + "'"
}

// Year, month and day groups; optional hour/minute and second groups.
var rfc3339Like = regexp.MustCompile(`(\d{4})-?(\d{2})-?(\d{2})(?:T(\d{2}):?(\d{2}):?(\d{2})?)?`)

// HTMLDateToSQLDate rewrites an HTML date/datetime-local submission into a
// form the store parses unambiguously: a dash-less YYYYMMDD for bare dates
// (dashed dates parse locale-dependently), or YYYY-MM-DDTHH:MM:SS with
// missing time parts zero-filled. Strings longer than 20 characters or not
// matching pass through unchanged; the length cap keeps the regex off
// pathological input.
func HTMLDateToSQLDate(value string) string {
	if len(value) == 0 || len(value) > 20 {
		return value
	}
	m := rfc3339Like.FindStringSubmatch(value)
	if m == nil {
		return value
	}

	year, month, day := m[1], m[2], m[3]
	hour, min, sec := m[4], m[5], m[6]

	if hour == "" && min == "" && sec == "" {
		return year + month + day
	}
	if hour == "" {
		hour = "00"
	}
	if min == "" {
		min = "00"
	}
	if sec == "" {
		sec = "00"
	}
	return fmt.Sprintf("%s-%s-%sT%s:%s:%s", year, month, day, hour, min, sec)
}

// CheckboxColumnHandler builds a ColumnHandler that collapses HTML checkbox
// submissions for the named columns into 1/0. Checkboxes submit nothing when
// unchecked, so forms pair them with a hidden "off" input; duplicated field
// names arrive as a slice whose first element wins.
func CheckboxColumnHandler(columns ...string) ColumnHandler {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return func(column string, value any, _ int) any {
		if !set[column] {
			return value
		}
		if vs, ok := value.([]string); ok && len(vs) > 0 {
			value = vs[0]
		}
		switch value {
		case "on":
			return 1
		case "off":
			return 0
		}
		return value
	}
}

// NicifyString turns an identifier-like string into a display label: "_"
// becomes a space and an upper-case letter directly after a lower-case one
// gets a space before it. Acronym prefixes nicify asymmetrically
// ("IDOfOrders" vs "OrdersOfID"); that is accepted.
func NicifyString(value string) string {
	result := make([]byte, 0, len(value)+4)
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch == '_' {
			result = append(result, ' ')
			continue
		}
		if ch >= 'A' && ch <= 'Z' && i > 0 {
			prev := value[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, ' ')
			}
		}
		result = append(result, ch)
	}
	return string(result)
}

// FormatDisplayDate renders a store temporal value as DD/MM/YYYY for the
// presentation layer.
func FormatDisplayDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// CoerceRowDates replaces every temporal value in the row with its display
// string. Mutates the row in place.
func CoerceRowDates(row map[string]any) {
	for k, v := range row {
		if t, ok := v.(time.Time); ok {
			row[k] = FormatDisplayDate(t)
		}
	}
}
