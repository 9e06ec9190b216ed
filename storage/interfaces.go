package storage

import "auction-scraper/models"

// Sink is the interface any storage backend must satisfy. Write persists a
// full batch; a sink may tolerate individual bad records and report only
// batch-level failure.
type Sink interface {
	Write(properties []*models.Property) error
	Close() error
}

// Columns is the canonical export column order. The CSV sink writes it and
// the importer expects it, so the two stay in lockstep.
var Columns = []string{
	"property_url",
	"property_name",
	"address",
	"property_type",
	"asset_type",
	"year_built",
	"building_size",
	"units",
	"size",
	"bidding_starts",
	"bidding_ends",
	"starting_bid",
	"current_bid",
	"bid_increment",
	"minimum_bid",
	"reserve_status",
	"auction_status",
	"registered_bidders",
	"broker_1",
	"broker_2",
	"broker_3",
	"source",
	"date_added",
	"scraped_at",
}
