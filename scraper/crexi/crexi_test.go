package crexi

import (
	"encoding/json"
	"testing"

	"auction-scraper/models"
	"auction-scraper/scraper/intercept"
)

func TestExtractPropertyID(t *testing.T) {
	tests := []struct {
		url    string
		wantID string
		wantOK bool
	}{
		{"https://www.crexi.com/properties/2093norwood/123456/main-street-retail", "", false},
		{"https://www.crexi.com/properties/1845233/tx-dallas-office-tower", "1845233", true},
		{"https://www.crexi.com/properties/99/lot", "99", true},
		{"https://www.crexi.com/lease/enterprise", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		id, ok := ExtractPropertyID(tt.url)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ExtractPropertyID(%q) = (%q, %v), want (%q, %v)",
				tt.url, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestParseAuctionLinks(t *testing.T) {
	html := `<html><body>
		<a class="cui-card-cover-link" href="/properties/111/first-listing"></a>
		<a class="cui-card-cover-link" href="https://www.crexi.com/properties/222/second-listing"></a>
		<a class="cui-card-cover-link" href="/lease/not-an-auction"></a>
		<a class="other-link" href="/properties/333/not-a-card"></a>
	</body></html>`

	got := ParseAuctionLinks(html, "https://www.crexi.com")
	want := []string{
		"https://www.crexi.com/properties/111/first-listing",
		"https://www.crexi.com/properties/222/second-listing",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d links %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHasNextPage(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"enabled next", `<a data-cy="nextPage" href="/page2">Next</a>`, true},
		{"disabled next", `<a data-cy="nextPage" disabled>Next</a>`, false},
		{"no control", `<a href="/page2">Next</a>`, false},
	}
	for _, tt := range tests {
		if got := HasNextPage(tt.html); got != tt.want {
			t.Errorf("%s: HasNextPage = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBuildPropertyMergePrecedence(t *testing.T) {
	auction := `{
		"propertyName": "Auction Name",
		"propertyAddress": "100 Main St, Dallas, TX 75201",
		"propertyType": "Office",
		"auctionStartsOn": "2026-09-10T17:00:00Z",
		"auctionEndsOn": "2026-09-12T17:00:00Z",
		"startingBid": 500000,
		"currentBidAmount": 650000,
		"bidIncrementAmount": 25000,
		"minimumBidAmount": 500000,
		"auctionStatus": "Live",
		"reserveMet": true,
		"stats": {"numberOfRegisteredBidders": 14}
	}`
	// Asset values override auction values where both are present.
	asset := `{"propertyName": "Asset Name", "yearBuilt": 1998, "buildingSize": 42000}`
	brokers := `[
		{"firstName": "Jane", "lastName": "Smith",
		 "brokerage": {"name": "Acme Realty"}, "licenses": ["TX-123"]},
		{"firstName": "Bob", "lastName": "Jones",
		 "brokerage": {"name": "Unknown"}, "licenses": []}
	]`

	p := BuildProperty("https://www.crexi.com/properties/1845233/tower", map[intercept.Kind]json.RawMessage{
		intercept.KindAuction: json.RawMessage(auction),
		intercept.KindAsset:   json.RawMessage(asset),
		intercept.KindBrokers: json.RawMessage(brokers),
	})

	if p.PropertyName != "Asset Name" {
		t.Errorf("PropertyName = %q, want asset value to override auction", p.PropertyName)
	}
	if p.Address != "100 Main St, Dallas, TX 75201" {
		t.Errorf("Address = %q", p.Address)
	}
	if p.YearBuilt != "1998" {
		t.Errorf("YearBuilt = %q, want 1998", p.YearBuilt)
	}
	if p.BuildingSize != 42000 {
		t.Errorf("BuildingSize = %v, want 42000", p.BuildingSize)
	}
	if p.CurrentBid != 650000 {
		t.Errorf("CurrentBid = %v, want 650000", p.CurrentBid)
	}
	if p.ReserveStatus != models.ReserveMet {
		t.Errorf("ReserveStatus = %q, want %q", p.ReserveStatus, models.ReserveMet)
	}
	if p.RegisteredBidders != 14 {
		t.Errorf("RegisteredBidders = %d, want 14", p.RegisteredBidders)
	}
	if len(p.Brokers) != 2 {
		t.Fatalf("Brokers = %v, want 2 entries", p.Brokers)
	}
	if p.Brokers[0] != "Jane Smith (Acme Realty) Lic. TX-123" {
		t.Errorf("Brokers[0] = %q", p.Brokers[0])
	}
	if p.Brokers[1] != "Bob Jones" {
		t.Errorf("Brokers[1] = %q, want placeholder brokerage dropped", p.Brokers[1])
	}
	if p.Source != models.SourceCrexi {
		t.Errorf("Source = %q", p.Source)
	}
}

func TestBuildPropertyAuctionOnlyStillEmitsRecord(t *testing.T) {
	auction := `{
		"propertyName": "Solo Auction",
		"propertyAddress": "5 Elm St, Austin, TX 78701",
		"auctionStartsOn": "2026-09-10T17:00:00Z",
		"auctionStatus": "Scheduled"
	}`

	p := BuildProperty("https://www.crexi.com/properties/42/solo", map[intercept.Kind]json.RawMessage{
		intercept.KindAuction: json.RawMessage(auction),
	})

	if !p.Usable() {
		t.Fatal("auction-only capture should still produce a usable record")
	}
	if p.PropertyName != "Solo Auction" {
		t.Errorf("PropertyName = %q", p.PropertyName)
	}
	// No end time published: derived from the start plus the default window.
	if p.BiddingEnds != "2026-09-12T17:00:00Z" {
		t.Errorf("BiddingEnds = %q, want start + default window", p.BiddingEnds)
	}
	if p.ReserveStatus != models.ReserveUnknown {
		t.Errorf("ReserveStatus = %q, want %q", p.ReserveStatus, models.ReserveUnknown)
	}
	if len(p.Brokers) != 0 {
		t.Errorf("Brokers = %v, want none", p.Brokers)
	}
}

func TestBuildPropertyBrokerFallbackToAuctioneer(t *testing.T) {
	auction := `{
		"propertyName": "No Broker Lot",
		"complianceAuctioneer": {"display": "Crexi Auction Services"}
	}`

	p := BuildProperty("https://www.crexi.com/properties/7/lot", map[intercept.Kind]json.RawMessage{
		intercept.KindAuction: json.RawMessage(auction),
		intercept.KindBrokers: json.RawMessage(`[]`),
	})

	if len(p.Brokers) != 1 || p.Brokers[0] != "Crexi Auction Services" {
		t.Errorf("Brokers = %v, want auctioneer fallback", p.Brokers)
	}
}

func TestFallbackRecord(t *testing.T) {
	s := &Scraper{}
	p := s.Fallback("https://www.crexi.com/properties/1845233/tower")

	if p.PropertyName != "Property 1845233" {
		t.Errorf("PropertyName = %q", p.PropertyName)
	}
	if p.PropertyURL == "" || p.Source != models.SourceCrexi {
		t.Errorf("fallback record incomplete: %+v", p)
	}
	if p.AuctionStatus != "Unknown" {
		t.Errorf("AuctionStatus = %q, want Unknown", p.AuctionStatus)
	}
}
