package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DefaultAuctionWindow is the assumed bidding window applied when a source
// publishes a start time without an end time. The two-day default mirrors
// what the marketplaces themselves display for most auctions; it is a
// heuristic, not a guarantee, so keep it overridable.
var DefaultAuctionWindow = 48 * time.Hour

// MinPlausibleSize is the smallest bare numeric value treated as a building
// size when scanning loosely-keyed asset structures. Anything smaller is
// likely a unit count, bedroom count, or similar.
const MinPlausibleSize = 100.0

var (
	nonNumericRegexp = regexp.MustCompile(`[^\d.,]`)
	netDateRegexp    = regexp.MustCompile(`/Date\((\d+)([+-]\d{4})?\)/`)
	slugStripRegexp  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugDashRegexp   = regexp.MustCompile(`[\s-]+`)
)

// dateFormats is the ordered list of layouts FormatDate tries. ISO first,
// then US-style, then European, then long-form month names.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// CleanText collapses internal whitespace and trims the result.
func CleanText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// ParseCurrency converts a raw currency value (string or numeric) to a
// non-negative float. Comma handling: when both comma and dot appear, the
// separator that comes last is the decimal point and the other is a
// thousands separator; a lone comma followed by at most two digits is a
// decimal separator (European format); otherwise thousands. Empty or
// unparsable input yields 0.
func ParseCurrency(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		if n < 0 {
			return 0
		}
		return n
	case float32:
		return ParseCurrency(float64(n))
	case int:
		return ParseCurrency(float64(n))
	case int64:
		return ParseCurrency(float64(n))
	case string:
		cleaned := nonNumericRegexp.ReplaceAllString(n, "")
		if cleaned == "" {
			return 0
		}
		hasComma := strings.Contains(cleaned, ",")
		hasDot := strings.Contains(cleaned, ".")
		switch {
		case hasComma && hasDot:
			if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
				cleaned = strings.ReplaceAll(cleaned, ".", "")
				cleaned = strings.Replace(cleaned, ",", ".", 1)
			} else {
				cleaned = strings.ReplaceAll(cleaned, ",", "")
			}
		case hasComma:
			parts := strings.Split(cleaned, ",")
			if len(parts) == 2 && len(parts[1]) <= 2 {
				cleaned = parts[0] + "." + parts[1]
			} else {
				cleaned = strings.ReplaceAll(cleaned, ",", "")
			}
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || f < 0 {
			return 0
		}
		return f
	default:
		return ParseCurrency(fmt.Sprint(v))
	}
}

// ParseSize strips unit suffixes ("SF", "Sq Ft") and thousands separators
// from a raw size string. The second return value is false when no size
// could be read.
func ParseSize(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, suffix := range []string{"Sq Ft", "sq ft", "SQ FT", "SF", "sf"} {
		s = strings.ReplaceAll(s, suffix, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// FormatDate normalizes a raw date value to RFC3339. Strings are tried
// against the known layouts in order; time.Time values are formatted
// directly. When nothing matches, the trimmed original text is returned;
// callers treat that fallback as unparsed, not as a real date.
func FormatDate(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case time.Time:
		if d.IsZero() {
			return ""
		}
		return d.Format(time.RFC3339)
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return ""
		}
		for _, layout := range dateFormats {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(time.RFC3339)
			}
		}
		return CleanText(s)
	default:
		return FormatDate(fmt.Sprint(v))
	}
}

// CalculateBiddingEnd derives a bidding end time from a start time when the
// source provides none, using DefaultAuctionWindow. Returns "" when the
// start itself is not a valid timestamp.
func CalculateBiddingEnd(start string) string {
	s := strings.TrimSpace(start)
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
		if err != nil {
			return ""
		}
	}
	return t.Add(DefaultAuctionWindow).Format(time.RFC3339)
}

// ParseNetDate parses the .NET JSON date format ("/Date(1758556800000-0400)/")
// that LoopNet's Angular payloads carry. Returns "" when the input doesn't
// match.
func ParseNetDate(s string) string {
	m := netDateRegexp.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// placeholderBrokers are tokens that carry no information and are dropped
// rather than exported as broker names.
var placeholderBrokers = map[string]struct{}{
	"n/a":     {},
	"na":      {},
	"none":    {},
	"unknown": {},
	"-":       {},
}

// CleanBrokers trims entries, drops empty and placeholder values, and caps
// the result at three brokers, preserving source order.
func CleanBrokers(entries ...string) []string {
	out := make([]string, 0, 3)
	for _, e := range entries {
		name := CleanText(e)
		if name == "" {
			continue
		}
		if _, skip := placeholderBrokers[strings.ToLower(name)]; skip {
			continue
		}
		out = append(out, name)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// BrokerDisplay composes a broker display string from a name and optional
// brokerage and license number. Uninformative brokerage values ("Unknown"
// and friends) are filtered out rather than appended.
func BrokerDisplay(name, brokerage, license string) string {
	name = CleanText(name)
	if name == "" {
		return ""
	}
	display := name
	brokerage = CleanText(brokerage)
	if brokerage != "" {
		if _, skip := placeholderBrokers[strings.ToLower(brokerage)]; !skip {
			display += " (" + brokerage + ")"
		}
	}
	license = CleanText(license)
	if license != "" {
		display += " Lic. " + license
	}
	return display
}

// sizeKeywords are substrings matched case-insensitively against keys when
// hunting for a building size in loosely-typed asset structures.
var sizeKeywords = []string{
	"building_size", "buildingsize", "size", "area", "sqft", "sf",
	"gross_leasable_area", "grossleasablearea", "totalarea", "total_area",
}

// ExtractBuildingSize scans heterogeneously-keyed maps for a size-like
// field. Keyed matches win; failing that, the first bare numeric value
// above MinPlausibleSize is used so that small integers (unit counts,
// bedrooms) are not mistaken for square footage.
func ExtractBuildingSize(items []map[string]any) float64 {
	for _, item := range items {
		for key, value := range item {
			lower := strings.ToLower(key)
			for _, kw := range sizeKeywords {
				if strings.Contains(lower, kw) {
					if size := ParseCurrency(value); size > 0 {
						return size
					}
				}
			}
		}
	}
	for _, item := range items {
		for _, value := range item {
			switch n := value.(type) {
			case float64:
				if n > MinPlausibleSize {
					return n
				}
			case int:
				if float64(n) > MinPlausibleSize {
					return float64(n)
				}
			}
		}
	}
	return 0
}

// Slugify builds a URL-friendly slug from a property name, the way the
// RI marketplace builds its auction URLs.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugStripRegexp.ReplaceAllString(slug, "")
	slug = slugDashRegexp.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
