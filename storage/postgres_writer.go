package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"auction-scraper/models"
)

// PostgresWriter persists canonical property records to PostgreSQL.
// Records are upserted on property_url: an existing row keeps its original
// auction data and only the live fields (current bid, status, last-seen)
// move.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS properties (
			id                 SERIAL PRIMARY KEY,
			property_url       TEXT UNIQUE NOT NULL,
			property_name      TEXT        NOT NULL DEFAULT '',
			address            TEXT        NOT NULL DEFAULT '',
			property_type      TEXT        NOT NULL DEFAULT '',
			asset_type         TEXT        NOT NULL DEFAULT '',
			year_built         TEXT        NOT NULL DEFAULT '',
			building_size      NUMERIC(14,2) NOT NULL DEFAULT 0,
			units              TEXT        NOT NULL DEFAULT '',
			size               NUMERIC(14,2) NOT NULL DEFAULT 0,
			bidding_starts     TEXT        NOT NULL DEFAULT '',
			bidding_ends       TEXT        NOT NULL DEFAULT '',
			starting_bid       NUMERIC(14,2) NOT NULL DEFAULT 0,
			current_bid        NUMERIC(14,2) NOT NULL DEFAULT 0,
			bid_increment      NUMERIC(14,2) NOT NULL DEFAULT 0,
			minimum_bid        NUMERIC(14,2) NOT NULL DEFAULT 0,
			reserve_status     TEXT        NOT NULL DEFAULT '',
			auction_status     TEXT        NOT NULL DEFAULT '',
			registered_bidders INTEGER     NOT NULL DEFAULT 0,
			broker_1           TEXT        NOT NULL DEFAULT '',
			broker_2           TEXT        NOT NULL DEFAULT '',
			broker_3           TEXT        NOT NULL DEFAULT '',
			source             VARCHAR(50) NOT NULL,
			date_added         TEXT        NOT NULL DEFAULT '',
			first_seen         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_properties_source         ON properties(source);
		CREATE INDEX IF NOT EXISTS idx_properties_auction_status ON properties(auction_status);
		CREATE INDEX IF NOT EXISTS idx_properties_bidding_ends   ON properties(bidding_ends);
	`)
	return err
}

// Write upserts the batch one record at a time so a single bad record
// fails alone instead of sinking the batch.
func (pw *PostgresWriter) Write(properties []*models.Property) error {
	const query = `
		INSERT INTO properties (
			property_url, property_name, address, property_type, asset_type,
			year_built, building_size, units, size,
			bidding_starts, bidding_ends, starting_bid, current_bid,
			bid_increment, minimum_bid, reserve_status, auction_status,
			registered_bidders, broker_1, broker_2, broker_3,
			source, date_added, last_seen
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,NOW())
		ON CONFLICT (property_url) DO UPDATE SET
			current_bid    = EXCLUDED.current_bid,
			auction_status = EXCLUDED.auction_status,
			last_seen      = NOW()
	`

	var firstErr error
	failed := 0
	for _, p := range properties {
		if p == nil || p.PropertyURL == "" {
			continue
		}
		_, err := pw.db.Exec(query,
			p.PropertyURL, p.PropertyName, p.Address, p.PropertyType, p.AssetType,
			p.YearBuilt, p.BuildingSize, p.Units, p.Size,
			p.BiddingStarts, p.BiddingEnds, p.StartingBid, p.CurrentBid,
			p.BidIncrement, p.MinimumBid, p.ReserveStatus, p.AuctionStatus,
			p.RegisteredBidders, p.Broker(0), p.Broker(1), p.Broker(2),
			p.Source, p.DateAdded,
		)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("postgres: %d of %d upserts failed, first error: %w",
			failed, len(properties), firstErr)
	}
	return nil
}

// CountBySource reports how many properties each source has stored.
func (pw *PostgresWriter) CountBySource() (map[string]int, error) {
	rows, err := pw.db.Query(`SELECT source, COUNT(*) FROM properties GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("postgres: count by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan count: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
