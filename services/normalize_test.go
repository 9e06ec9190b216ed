package services

import (
	"strings"
	"testing"
	"time"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		raw  any
		want float64
	}{
		{"$1,234", 1234.0},
		{"1234", 1234.0},
		{"", 0.0},
		{"1.234,56", 1234.56},
		{"€2.500.000,75", 2500000.75},
		{"1,50", 1.50},
		{"$2,500,000.75", 2500000.75},
		{"free", 0.0},
		{nil, 0.0},
		{1500.25, 1500.25},
		{42, 42.0},
		{-10.0, 0.0},
	}

	for _, tt := range tests {
		got := ParseCurrency(tt.raw)
		if got != tt.want {
			t.Errorf("ParseCurrency(%v) = %v; want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"43,750 SF", 43750, true},
		{"6,000 Sq Ft", 6000, true},
		{"1200", 1200, true},
		{"", 0, false},
		{"unknown", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseSize(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSize(%q) = (%d, %v); want (%d, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormatDateKnownFormats(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2025-09-22T16:00:00Z", "2025-09-22T16:00:00Z"},
		{"2025-09-22", "2025-09-22T00:00:00Z"},
		{"09/22/2025", "2025-09-22T00:00:00Z"},
		{"22/12/2025", "2025-12-22T00:00:00Z"},
		{"September 22, 2025", "2025-09-22T00:00:00Z"},
		{"Sep 22, 2025", "2025-09-22T00:00:00Z"},
		{"2025-09-22 16:30:00", "2025-09-22T16:30:00Z"},
	}

	for _, tt := range tests {
		got := FormatDate(tt.raw)
		if got != tt.want {
			t.Errorf("FormatDate(%q) = %q; want %q", tt.raw, got, tt.want)
		}
		if _, err := time.Parse(time.RFC3339, got); err != nil {
			t.Errorf("FormatDate(%q) = %q is not RFC3339: %v", tt.raw, got, err)
		}
	}
}

func TestFormatDateFallback(t *testing.T) {
	got := FormatDate("  TBD   soon  ")
	if got != "TBD soon" {
		t.Errorf("unparsable date: got %q, want trimmed original %q", got, "TBD soon")
	}
	if FormatDate("") != "" {
		t.Errorf("empty input should yield empty output")
	}
}

func TestFormatDateIdempotent(t *testing.T) {
	inputs := []string{"2025-09-22T16:00:00Z", "09/22/2025", "not a date at all"}
	for _, in := range inputs {
		once := FormatDate(in)
		twice := FormatDate(once)
		if once != twice {
			t.Errorf("FormatDate not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCalculateBiddingEnd(t *testing.T) {
	got := CalculateBiddingEnd("2025-09-22T16:00:00Z")
	want := "2025-09-24T16:00:00Z"
	if got != want {
		t.Errorf("CalculateBiddingEnd = %q; want %q", got, want)
	}

	if CalculateBiddingEnd("") != "" {
		t.Error("empty start should yield empty end")
	}
	if CalculateBiddingEnd("garbage") != "" {
		t.Error("unparsable start should yield empty end")
	}
}

func TestCalculateBiddingEndOverridableWindow(t *testing.T) {
	orig := DefaultAuctionWindow
	defer func() { DefaultAuctionWindow = orig }()

	DefaultAuctionWindow = 24 * time.Hour
	got := CalculateBiddingEnd("2025-09-22T16:00:00Z")
	if got != "2025-09-23T16:00:00Z" {
		t.Errorf("with 24h window: got %q", got)
	}
}

func TestParseNetDate(t *testing.T) {
	got := ParseNetDate("/Date(1758556800000-0400)/")
	want := time.UnixMilli(1758556800000).UTC().Format(time.RFC3339)
	if got != want {
		t.Errorf("ParseNetDate = %q; want %q", got, want)
	}
	if ParseNetDate("2025-09-22") != "" {
		t.Error("non .NET date should yield empty string")
	}
}

func TestCleanBrokers(t *testing.T) {
	got := CleanBrokers("  Jane Doe ", "", "N/A", "John Smith", "Unknown", "Ann Lee", "Bob Ray")
	if len(got) > 3 {
		t.Fatalf("CleanBrokers returned %d entries; max is 3", len(got))
	}
	want := []string{"Jane Doe", "John Smith", "Ann Lee"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("broker[%d] = %q; want %q", i, got[i], w)
		}
	}
	for _, b := range got {
		if strings.TrimSpace(b) == "" {
			t.Errorf("CleanBrokers produced a blank entry")
		}
	}
}

func TestCleanBrokersAllEmpty(t *testing.T) {
	got := CleanBrokers("", "   ", "none", "-")
	if len(got) != 0 {
		t.Errorf("expected no brokers, got %v", got)
	}
}

func TestBrokerDisplay(t *testing.T) {
	tests := []struct {
		name, brokerage, license string
		want                     string
	}{
		{"Jane Doe", "Acme Realty", "RE-123", "Jane Doe (Acme Realty) Lic. RE-123"},
		{"Jane Doe", "Unknown", "", "Jane Doe"},
		{"Jane Doe", "", "", "Jane Doe"},
		{"", "Acme Realty", "RE-123", ""},
	}

	for _, tt := range tests {
		got := BrokerDisplay(tt.name, tt.brokerage, tt.license)
		if got != tt.want {
			t.Errorf("BrokerDisplay(%q, %q, %q) = %q; want %q",
				tt.name, tt.brokerage, tt.license, got, tt.want)
		}
	}
}

func TestExtractBuildingSize(t *testing.T) {
	items := []map[string]any{
		{"bedrooms": 3.0, "units": 12.0},
		{"grossLeasableArea": "43,750"},
	}
	if got := ExtractBuildingSize(items); got != 43750 {
		t.Errorf("keyed match: got %v, want 43750", got)
	}

	// No keyed match: first plausible bare numeric wins, small ints skipped.
	items = []map[string]any{
		{"bedrooms": 3.0},
		{"something": 6000.0},
	}
	if got := ExtractBuildingSize(items); got != 6000 {
		t.Errorf("bare numeric fallback: got %v, want 6000", got)
	}

	if got := ExtractBuildingSize(nil); got != 0 {
		t.Errorf("nil input: got %v, want 0", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"Greenfield of Perkiomen Valley", "greenfield-of-perkiomen-valley"},
		{"  123 Main St. — Retail!  ", "123-main-st-retail"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.raw); got != tt.want {
			t.Errorf("Slugify(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}
