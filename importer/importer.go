package importer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"auction-scraper/models"
	"auction-scraper/services"
	"auction-scraper/storage"
	"auction-scraper/utils"
)

// Importer re-ingests previously exported canonical CSV files into a sink,
// typically to backfill the database from batches scraped on another
// machine. Rows are matched by header name, so column order and extra
// columns are tolerated.
type Importer struct {
	logger *utils.Logger
}

func New(logger *utils.Logger) *Importer {
	return &Importer{logger: logger}
}

// Summary reports what an import run ingested.
type Summary struct {
	Files    int
	Records  int
	Skipped  int // rows without a property URL
	BadFiles []string
}

// ImportDir ingests every .csv file under dir into the sink, one Write per
// file. Unreadable files are recorded and skipped, not fatal.
func (im *Importer) ImportDir(dir string, sink storage.Sink) (*Summary, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("importer: list %q: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("importer: no CSV files in %q", dir)
	}
	sort.Strings(paths)

	summary := &Summary{}
	for _, path := range paths {
		batch, skipped, err := im.readFile(path)
		if err != nil {
			im.logger.Warn("[importer] Skipping %s: %v", filepath.Base(path), err)
			summary.BadFiles = append(summary.BadFiles, filepath.Base(path))
			continue
		}
		if err := sink.Write(batch); err != nil {
			return summary, fmt.Errorf("importer: store %s: %w", filepath.Base(path), err)
		}

		summary.Files++
		summary.Records += len(batch)
		summary.Skipped += skipped
		im.logger.Info("[importer] %s: %d records (%d skipped)",
			filepath.Base(path), len(batch), skipped)
	}
	return summary, nil
}

func (im *Importer) readFile(path string) ([]*models.Property, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, 0, err
	}
	if len(rows) < 1 {
		return nil, 0, fmt.Errorf("empty file")
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := header["property_url"]; !ok {
		return nil, 0, fmt.Errorf("no property_url column")
	}

	var batch []*models.Property
	skipped := 0
	for _, row := range rows[1:] {
		p := parseRow(header, row)
		if p.PropertyURL == "" {
			skipped++
			continue
		}
		batch = append(batch, p)
	}
	return batch, skipped, nil
}

func parseRow(header map[string]int, row []string) *models.Property {
	cell := func(name string) string {
		i, ok := header[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	scrapedAt := time.Time{}
	if t, err := time.Parse(time.RFC3339, cell("scraped_at")); err == nil {
		scrapedAt = t
	}
	bidders, _ := strconv.Atoi(cell("registered_bidders"))

	return &models.Property{
		PropertyURL:  cell("property_url"),
		PropertyName: cell("property_name"),
		Address:      cell("address"),

		PropertyType: cell("property_type"),
		AssetType:    cell("asset_type"),
		YearBuilt:    cell("year_built"),
		BuildingSize: services.ParseCurrency(cell("building_size")),
		Units:        cell("units"),
		Size:         services.ParseCurrency(cell("size")),

		BiddingStarts: services.FormatDate(cell("bidding_starts")),
		BiddingEnds:   services.FormatDate(cell("bidding_ends")),
		StartingBid:   services.ParseCurrency(cell("starting_bid")),
		CurrentBid:    services.ParseCurrency(cell("current_bid")),
		BidIncrement:  services.ParseCurrency(cell("bid_increment")),
		MinimumBid:    services.ParseCurrency(cell("minimum_bid")),

		ReserveStatus:     cell("reserve_status"),
		AuctionStatus:     cell("auction_status"),
		RegisteredBidders: bidders,

		Brokers: services.CleanBrokers(cell("broker_1"), cell("broker_2"), cell("broker_3")),

		Source:    cell("source"),
		DateAdded: cell("date_added"),
		ScrapedAt: scrapedAt,
	}
}
