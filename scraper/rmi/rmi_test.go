package rmi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-scraper/config"
	"auction-scraper/models"
	"auction-scraper/utils"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		RMIBaseURL:   baseURL,
		RMIPageLimit: 60,
		MaxRetries:   2,
		RetryDelayMs: 1,
		TimeoutS:     5,
	}
}

func newTestScraper(baseURL string) *Scraper {
	return New(testConfig(baseURL), utils.NewQuietLogger())
}

// apiStub is a minimal stand-in for the marketplace API.
type apiStub struct {
	authCalls   int
	searchCalls int
	detailCalls int
	expiresIn   int64
}

func (a *apiStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/authenticate", func(w http.ResponseWriter, r *http.Request) {
		a.authCalls++
		w.Header().Set("Content-Type", "application/json")
		expires := a.expiresIn
		if expires == 0 {
			expires = 3600
		}
		json.NewEncoder(w).Encode(map[string]any{
			"error": false,
			"results": map[string]any{
				"token":     "tok-123",
				"expiresIn": expires,
			},
		})
	})

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		a.searchCalls++
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("legend") != "auction" || r.URL.Query().Get("sortOrder") != "ASC" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		page := r.URL.Query().Get("page")
		property := []map[string]any{}
		switch page {
		case "1":
			property = append(property, map[string]any{
				"propertyId":         1001,
				"propertyName":       "Harborview Plaza",
				"propertyCity":       "Providence",
				"stateName":          "RI",
				"property_type_name": "Retail",
				"auctionStartDate":   "2026-09-10",
				"auctionEndDate":     "2026-09-12",
				"start_bid":          "250,000",
				"current_bid":        "310,000",
			})
		case "2":
			property = append(property, map[string]any{
				"propertyId":   "1002",
				"propertyName": "Mill District Lofts",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"error": false,
			"data": map[string]any{
				"count":    2,
				"pages":    2,
				"property": property,
			},
		})
	})

	mux.HandleFunc("/auction", func(w http.ResponseWriter, r *http.Request) {
		a.detailCalls++
		w.Header().Set("Content-Type", "application/json")
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["propertyId"] != "1001" {
			json.NewEncoder(w).Encode(map[string]any{"error": true, "message": "not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"error": false,
			"data": map[string]any{
				"propertyList": []map[string]any{{
					"information": map[string]any{
						"propertyName":    "Harborview Plaza",
						"propertyAddress": "1 Harbor Way",
						"propertyCity":    "Providence",
						"propertyState":   "RI",
						"propertyZip":     "02903",
						"startBidding":    "2026-09-10",
						"endBidding":      "2026-09-12",
						"start_bid":       "250000",
						"current_bid":     "325000",
						"yearBuilt":       "1962",
					},
					"asset_info": []map[string]any{
						{"label": "Parking Spaces", "value": 40},
						{"building_size": "18,500"},
					},
				}},
				"listedBrokers": []map[string]any{
					{"name": "Dana Reyes"},
					{"name": "N/A"},
				},
			},
		})
	})

	return mux
}

func TestDiscoverPagesAndCachesListings(t *testing.T) {
	stub := &apiStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	s := newTestScraper(srv.URL)
	ids, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{"1001", "1002"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
	if stub.searchCalls != 2 {
		t.Errorf("searchCalls = %d, want 2", stub.searchCalls)
	}
	// One authentication serves the whole run while the token is fresh.
	if stub.authCalls != 1 {
		t.Errorf("authCalls = %d, want 1", stub.authCalls)
	}
}

func TestFetchDetailBuildsCanonicalRecord(t *testing.T) {
	stub := &apiStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	s := newTestScraper(srv.URL)
	if _, err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	p, err := s.FetchDetail(context.Background(), "1001")
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}

	if p.PropertyURL != "https://rimarketplace.com/auction/1001/harborview-plaza" {
		t.Errorf("PropertyURL = %q", p.PropertyURL)
	}
	if p.PropertyName != "Harborview Plaza" {
		t.Errorf("PropertyName = %q", p.PropertyName)
	}
	if p.Address != "1 Harbor Way Providence RI 02903" {
		t.Errorf("Address = %q", p.Address)
	}
	// Detail data wins over the cached search payload.
	if p.CurrentBid != 325000 {
		t.Errorf("CurrentBid = %v, want detail value 325000", p.CurrentBid)
	}
	if p.YearBuilt != "1962" {
		t.Errorf("YearBuilt = %q", p.YearBuilt)
	}
	if p.BuildingSize != 18500 {
		t.Errorf("BuildingSize = %v, want 18500 from asset info", p.BuildingSize)
	}
	if len(p.Brokers) != 1 || p.Brokers[0] != "Dana Reyes" {
		t.Errorf("Brokers = %v, want placeholder dropped", p.Brokers)
	}
	if p.BiddingStarts != "2026-09-10T00:00:00Z" {
		t.Errorf("BiddingStarts = %q", p.BiddingStarts)
	}
	if p.Source != models.SourceRMI {
		t.Errorf("Source = %q", p.Source)
	}
}

func TestFetchDetailRetriesThenFails(t *testing.T) {
	stub := &apiStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	s := newTestScraper(srv.URL)
	if _, err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	_, err := s.FetchDetail(context.Background(), "9999")
	if err == nil {
		t.Fatal("expected error for unknown property")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want api message surfaced", err)
	}
	if stub.detailCalls != 2 {
		t.Errorf("detailCalls = %d, want one call per retry attempt", stub.detailCalls)
	}
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	stub := &apiStub{expiresIn: 60}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	s := newTestScraper(srv.URL)
	current := time.Now()
	s.now = func() time.Time { return current }

	if _, err := s.validToken(context.Background()); err != nil {
		t.Fatalf("validToken: %v", err)
	}
	if _, err := s.validToken(context.Background()); err != nil {
		t.Fatalf("validToken: %v", err)
	}
	if stub.authCalls != 1 {
		t.Fatalf("authCalls = %d, want 1 while token fresh", stub.authCalls)
	}

	current = current.Add(61 * time.Second)
	if _, err := s.validToken(context.Background()); err != nil {
		t.Fatalf("validToken after expiry: %v", err)
	}
	if stub.authCalls != 2 {
		t.Errorf("authCalls = %d, want re-authentication after expiry", stub.authCalls)
	}
}

func TestFallbackUsesCachedSearchData(t *testing.T) {
	stub := &apiStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	s := newTestScraper(srv.URL)
	if _, err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	p := s.Fallback("1001")
	if p.PropertyName != "Harborview Plaza" {
		t.Errorf("PropertyName = %q", p.PropertyName)
	}
	if p.Address != "Providence RI" {
		t.Errorf("Address = %q", p.Address)
	}
	if p.StartingBid != 250000 || p.CurrentBid != 310000 {
		t.Errorf("bids = %v/%v, want cached search values", p.StartingBid, p.CurrentBid)
	}
	if !p.Usable() {
		t.Error("fallback record should be usable")
	}

	// Unknown id still yields an addressable record.
	q := s.Fallback("424242")
	if q.PropertyURL != "https://rimarketplace.com/auction/424242/unknown-property" {
		t.Errorf("PropertyURL = %q", q.PropertyURL)
	}
}

func TestAuctionURL(t *testing.T) {
	tests := []struct {
		id, name, want string
	}{
		{"77", "Mill District Lofts", "https://rimarketplace.com/auction/77/mill-district-lofts"},
		{"77", "!!!", "https://rimarketplace.com/property/77"},
		{"77", "", "https://rimarketplace.com/property/77"},
	}
	for _, tt := range tests {
		if got := AuctionURL(tt.id, tt.name); got != tt.want {
			t.Errorf("AuctionURL(%q, %q) = %q, want %q", tt.id, tt.name, got, tt.want)
		}
	}
}
