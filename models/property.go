package models

import "time"

// Source identifiers for the marketplaces the pipeline knows about.
const (
	SourceCrexi   = "Crexi"
	SourceLoopNet = "LoopNet"
	SourceRMI     = "RMI"
)

// Reserve status values. Sources that don't expose a reserve report Unknown.
const (
	ReserveMet     = "Reserve Met"
	ReserveNextBid = "Next Bid Meets Reserve"
	ReserveNotMet  = "Reserve Not Met"
	ReserveUnknown = "Unknown"
)

// MaxBrokers is the number of broker slots carried per property.
const MaxBrokers = 3

// Property is the canonical, source-agnostic auction record every adapter
// produces. PropertyURL is the natural key for upserts.
type Property struct {
	PropertyURL  string `json:"property_url"`
	PropertyName string `json:"property_name"`
	Address      string `json:"address"`

	PropertyType string  `json:"property_type"`
	AssetType    string  `json:"asset_type"`
	YearBuilt    string  `json:"year_built"`
	BuildingSize float64 `json:"building_size"`
	Units        string  `json:"units"`
	Size         float64 `json:"size"`

	BiddingStarts string  `json:"bidding_starts"` // RFC3339 or ""
	BiddingEnds   string  `json:"bidding_ends"`   // RFC3339 or ""
	StartingBid   float64 `json:"starting_bid"`
	CurrentBid    float64 `json:"current_bid"`
	BidIncrement  float64 `json:"bid_increment"`
	MinimumBid    float64 `json:"minimum_bid"`

	ReserveStatus     string `json:"reserve_status"`
	AuctionStatus     string `json:"auction_status"`
	RegisteredBidders int    `json:"registered_bidders"`

	// at most MaxBrokers entries, no empties
	Brokers []string `json:"brokers,omitempty"`

	Source    string    `json:"source"`
	DateAdded string    `json:"date_added,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Broker returns the broker display string for slot i (0-based), or "N/A"
// when the slot is unfilled. Keeps the fixed three-column export shape.
func (p *Property) Broker(i int) string {
	if i >= 0 && i < len(p.Brokers) && p.Brokers[i] != "" {
		return p.Brokers[i]
	}
	return "N/A"
}

// Usable reports whether the record carries enough identity to be worth
// emitting. A record with no name and no address is a failed extraction.
func (p *Property) Usable() bool {
	if p.PropertyURL == "" {
		return false
	}
	return p.PropertyName != "" || p.Address != ""
}
