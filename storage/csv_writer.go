package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"auction-scraper/models"
)

// CSVWriter writes canonical property records to a timestamped CSV file,
// one file per batch. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates a timestamped CSV file for the given source under
// dir and writes the header row. Intermediate directories are created
// automatically.
func NewCSVWriter(dir, source string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	name := fmt.Sprintf("%s_auctions_%s.csv",
		strings.ToLower(source), time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{path: path, file: f, writer: w}, nil
}

// Path returns the file this writer is producing.
func (c *CSVWriter) Path() string { return c.path }

// Write appends the batch. Records without a property URL are skipped, not
// fatal: a partially bad batch should still land on disk.
func (c *CSVWriter) Write(properties []*models.Property) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range properties {
		if p == nil || p.PropertyURL == "" {
			continue
		}
		if err := c.writer.Write(Row(p)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// Row renders a property in the canonical column order.
func Row(p *models.Property) []string {
	scrapedAt := ""
	if !p.ScrapedAt.IsZero() {
		scrapedAt = p.ScrapedAt.Format(time.RFC3339)
	}
	return []string{
		p.PropertyURL,
		p.PropertyName,
		p.Address,
		p.PropertyType,
		p.AssetType,
		p.YearBuilt,
		formatFloat(p.BuildingSize),
		p.Units,
		formatFloat(p.Size),
		p.BiddingStarts,
		p.BiddingEnds,
		formatFloat(p.StartingBid),
		formatFloat(p.CurrentBid),
		formatFloat(p.BidIncrement),
		formatFloat(p.MinimumBid),
		p.ReserveStatus,
		p.AuctionStatus,
		strconv.Itoa(p.RegisteredBidders),
		p.Broker(0),
		p.Broker(1),
		p.Broker(2),
		p.Source,
		p.DateAdded,
		scrapedAt,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
