package loopnet

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"auction-scraper/config"
	"auction-scraper/models"
	"auction-scraper/services"
	"auction-scraper/session"
	"auction-scraper/utils"
)

// LoopNet ships its auction data server-side rendered: inside Angular
// constant blobs, a JSON-LD schema block, and the page text itself. The
// scraper reads all three, preferring structured sources over regexes on
// prose.

const (
	// Detail pages below this length are challenge shells or error
	// pages, not listings.
	minDetailContentLength = 5000

	detailLoadRetries = 3
)

var (
	paginationRegexp   = regexp.MustCompile(`(\d+)-(\d+)\s+of\s+(\d+)`)
	addressRegexp      = regexp.MustCompile(`(\d+\s+[^,]+,\s*[^,]+,\s*[A-Z]{2}\s+\d+)`)
	addressLooseRegexp = []*regexp.Regexp{
		addressRegexp,
		regexp.MustCompile(`(\d+\s+[^,]+,\s*[^,]+,\s*[A-Z]{2})`),
		regexp.MustCompile(`(\d+\s+[^,]+,\s*[A-Z]{2}\s+\d+)`),
	}
	squareFootRegexp = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})*)\s*square\s*foot`)
	floorSizeRegexp  = regexp.MustCompile(`"Floor Size"[^}]*"value":\s*"([^"]+)"`)
	sizeDigitsRegexp = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*)`)
	yearBuiltRegexp  = regexp.MustCompile(`(?i)Built\s+in\s+(\d{4})`)
	bareYearRegexp   = regexp.MustCompile(`(\d{4})`)
)

// Scraper crawls LoopNet's auction search and detail pages through a shared
// browser session.
type Scraper struct {
	cfg      *config.Config
	logger   *utils.Logger
	sessions *session.Manager
}

func New(cfg *config.Config, logger *utils.Logger, sessions *session.Manager) *Scraper {
	return &Scraper{cfg: cfg, logger: logger, sessions: sessions}
}

// Source returns the canonical source name for records this scraper emits.
func (s *Scraper) Source() string { return models.SourceLoopNet }

// Discover walks every search result page and returns the deduplicated
// listing URLs found in each page's listings schema.
func (s *Scraper) Discover(ctx context.Context) ([]string, error) {
	h, err := s.sessions.Current()
	if err != nil {
		return nil, err
	}

	html, err := s.loadPage(h, s.cfg.LoopNetBaseURL)
	if err != nil {
		return nil, fmt.Errorf("loopnet: open search: %w", err)
	}

	totalPages := TotalPages(html)
	s.logger.Info("[loopnet] Search reports %d page(s)", totalPages)

	seen := utils.NewURLSet()
	var urls []string
	collect := func(pageURLs []string) int {
		added := 0
		for _, u := range pageURLs {
			if seen.Add(u) {
				urls = append(urls, u)
				added++
			}
		}
		return added
	}

	collect(ParseListingURLs(html))
	s.logger.Info("[loopnet] Page 1: %d URLs", seen.Size())

	for page := 2; page <= totalPages; page++ {
		select {
		case <-ctx.Done():
			return urls, ctx.Err()
		default:
		}

		pageURL := fmt.Sprintf("%s%d/", s.cfg.LoopNetBaseURL, page)
		var pageURLs []string
		for attempt := 1; attempt <= detailLoadRetries; attempt++ {
			html, err := s.loadPage(h, pageURL)
			if err != nil {
				s.logger.Warn("[loopnet] Page %d attempt %d: %v", page, attempt, err)
				continue
			}
			if pageURLs = ParseListingURLs(html); len(pageURLs) > 0 {
				break
			}
			time.Sleep(2 * time.Second)
		}

		if len(pageURLs) == 0 {
			s.logger.Warn("[loopnet] Page %d yielded no URLs after %d attempts", page, detailLoadRetries)
			continue
		}
		added := collect(pageURLs)
		s.logger.Info("[loopnet] Page %d: %d URLs (%d new)", page, len(pageURLs), added)
		time.Sleep(time.Second)
	}

	s.logger.Info("[loopnet] Discovery complete: %d listing URLs", len(urls))
	return urls, nil
}

// FetchDetail loads one listing page and parses the canonical record out of
// its embedded data. Pages that never render auction content are reloaded a
// few times before giving up.
func (s *Scraper) FetchDetail(ctx context.Context, listingURL string) (*models.Property, error) {
	h, err := s.sessions.TrackRequest()
	if err != nil {
		return nil, err
	}

	var html string
	for attempt := 1; attempt <= detailLoadRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		html, err = s.loadPage(h, listingURL)
		if err != nil {
			s.logger.Warn("[loopnet] Load %s attempt %d: %v", listingURL, attempt, err)
			continue
		}
		if HasAuctionContent(html) {
			break
		}
		s.logger.Warn("[loopnet] Auction content not ready on %s (attempt %d), reloading", listingURL, attempt)
		time.Sleep(2 * time.Second)
	}
	if html == "" {
		return nil, fmt.Errorf("loopnet: could not load %s: %w", listingURL, err)
	}

	p := ParseDetail(html, listingURL)
	if !p.Usable() {
		return nil, fmt.Errorf("loopnet: no property identity extracted from %s", listingURL)
	}
	return p, nil
}

// Fallback produces the minimal record for a listing whose every fetch
// attempt failed.
func (s *Scraper) Fallback(listingURL string) *models.Property {
	return &models.Property{
		PropertyURL:   listingURL,
		PropertyName:  "LoopNet Listing",
		PropertyType:  "Commercial",
		AssetType:     "Real Estate",
		ReserveStatus: models.ReserveUnknown,
		AuctionStatus: "Unknown",
		Source:        models.SourceLoopNet,
		ScrapedAt:     time.Now(),
	}
}

func (s *Scraper) loadPage(h *session.Handle, url string) (string, error) {
	navCtx, cancel := context.WithTimeout(h.Tab, s.cfg.Timeout())
	defer cancel()

	var html string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return "", err
	}
	s.sessions.AwaitChallengeResolution(h.Tab, s.cfg.Timeout())

	readCtx, cancelRead := context.WithTimeout(h.Tab, s.cfg.Timeout())
	defer cancelRead()
	if err := chromedp.Run(readCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

// HasAuctionContent reports whether a detail page has rendered far enough
// to carry auction data.
func HasAuctionContent(html string) bool {
	if len(html) < minDetailContentLength {
		return false
	}
	lower := strings.ToLower(html)
	return strings.Contains(lower, "auction") || strings.Contains(lower, "bid")
}

// TotalPages reads the result count ("1-20 of 150") from the search page
// and derives the page count. When the counter is absent it falls back to
// the highest data-pg link, and finally to a single page.
func TotalPages(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	text := doc.Find(".total-results-paging-digits").First().Text()
	if m := paginationRegexp.FindStringSubmatch(text); m != nil {
		first := atoi(m[1])
		last := atoi(m[2])
		total := atoi(m[3])
		perPage := last - first + 1
		if perPage > 0 && total > 0 {
			return (total + perPage - 1) / perPage
		}
	}

	maxPage := 1
	doc.Find("a[data-pg]").Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("data-pg"); ok {
			if n := atoi(v); n > maxPage {
				maxPage = n
			}
		}
	})
	return maxPage
}

// listingsSchema is the shape of the script#listings-schema JSON block.
type listingsSchema struct {
	MainEntity struct {
		ItemListElement []struct {
			URL string `json:"url"`
		} `json:"itemListElement"`
	} `json:"mainEntity"`
}

// ParseListingURLs extracts listing URLs from the search page's embedded
// listings schema.
func ParseListingURLs(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	raw := strings.TrimSpace(doc.Find("script#listings-schema").First().Text())
	if raw == "" {
		return nil
	}

	var schema listingsSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil
	}

	var urls []string
	for _, item := range schema.MainEntity.ItemListElement {
		if item.URL != "" {
			urls = append(urls, item.URL)
		}
	}
	return urls
}

// ExtractAngularConstant pulls the JSON object bound to a named Angular
// constant out of inline script text. The object is found by brace matching
// from the first opening brace after the constant name, since the scripts
// are not themselves valid JSON.
func ExtractAngularConstant(script, name string) ([]byte, bool) {
	idx := strings.Index(script, `"`+name+`"`)
	if idx < 0 {
		return nil, false
	}
	start := strings.Index(script[idx:], "{")
	if start < 0 {
		return nil, false
	}
	start += idx

	depth := 0
	for i := start; i < len(script); i++ {
		switch script[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				blob := []byte(script[start : i+1])
				if !json.Valid(blob) {
					return nil, false
				}
				return blob, true
			}
		}
	}
	return nil, false
}

// auctionBanner is the Auction object inside the auctionBannerState
// constant. Dates arrive in .NET wire format.
type auctionBanner struct {
	Auction struct {
		StartingBid         any    `json:"StartingBid"`
		CurrentBid          any    `json:"CurrentBid"`
		CurrentBidIncrement any    `json:"CurrentBidIncrement"`
		StartTime           string `json:"StartTime"`
		EndTime             string `json:"EndTime"`
		IsReserveMet        bool   `json:"IsReserveMet"`
		IsReserveNextBid    bool   `json:"IsReserveNextBid"`
	} `json:"Auction"`
}

type listingProfile struct {
	CategoryTitle string `json:"CategoryTitle"`
}

// jsonLDListing is the RealEstateListing JSON-LD block on a detail page.
type jsonLDListing struct {
	Type        string `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Provider    []struct {
		Type string `json:"@type"`
		Name string `json:"name"`
	} `json:"provider"`
}

// ParseDetail extracts the canonical record from a rendered detail page.
func ParseDetail(html, listingURL string) *models.Property {
	p := &models.Property{
		PropertyURL:   listingURL,
		AssetType:     "Real Estate",
		ReserveStatus: models.ReserveUnknown,
		AuctionStatus: "Unknown",
		Source:        models.SourceLoopNet,
		ScrapedAt:     time.Now(),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return p
	}

	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, "auctionBannerState") {
			return true
		}
		blob, ok := ExtractAngularConstant(text, "auctionBannerState")
		if !ok {
			return true
		}
		var banner auctionBanner
		if err := json.Unmarshal(blob, &banner); err != nil {
			return true
		}

		a := banner.Auction
		p.StartingBid = services.ParseCurrency(a.StartingBid)
		p.CurrentBid = services.ParseCurrency(a.CurrentBid)
		p.BidIncrement = services.ParseCurrency(a.CurrentBidIncrement)
		p.BiddingStarts = services.ParseNetDate(a.StartTime)
		p.BiddingEnds = services.ParseNetDate(a.EndTime)
		switch {
		case a.IsReserveMet:
			p.ReserveStatus = models.ReserveMet
		case a.IsReserveNextBid:
			p.ReserveStatus = models.ReserveNextBid
		default:
			p.ReserveStatus = models.ReserveNotMet
		}
		p.AuctionStatus = "Live"
		return false
	})

	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, "listingProfileState") {
			return true
		}
		if blob, ok := ExtractAngularConstant(text, "listingProfileState"); ok {
			var profile listingProfile
			if err := json.Unmarshal(blob, &profile); err == nil {
				p.PropertyType = services.CleanText(profile.CategoryTitle)
			}
		}
		return false
	})

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var listing jsonLDListing
		if err := json.Unmarshal([]byte(sel.Text()), &listing); err != nil {
			return true
		}
		if listing.Type != "RealEstateListing" {
			return true
		}

		p.PropertyName = services.CleanText(listing.Name)
		if m := addressRegexp.FindStringSubmatch(listing.Description); m != nil {
			p.Address = services.CleanText(m[1])
		}
		var brokers []string
		for _, provider := range listing.Provider {
			if provider.Type == "RealEstateAgent" && provider.Name != "" {
				brokers = append(brokers, provider.Name)
			}
		}
		p.Brokers = services.CleanBrokers(brokers...)
		return false
	})

	p.BuildingSize = extractBuildingSize(html)
	p.Size = p.BuildingSize
	p.YearBuilt = extractYearBuilt(html, doc)
	fillIdentityFallbacks(p, doc)

	if p.BiddingEnds == "" && p.BiddingStarts != "" {
		p.BiddingEnds = services.CalculateBiddingEnd(p.BiddingStarts)
	}
	return p
}

// extractBuildingSize scans the page text for a size. Prose ("43,750
// square foot") wins, then the Floor Size additionalProperty entry.
func extractBuildingSize(html string) float64 {
	if m := squareFootRegexp.FindStringSubmatch(html); m != nil {
		return services.ParseCurrency(m[1])
	}
	if m := floorSizeRegexp.FindStringSubmatch(html); m != nil {
		if digits := sizeDigitsRegexp.FindStringSubmatch(m[1]); digits != nil {
			return services.ParseCurrency(digits[1])
		}
	}
	return 0
}

// extractYearBuilt tries prose ("Built in 1969") first, then the
// feature-grid fact cells.
func extractYearBuilt(html string, doc *goquery.Document) string {
	if m := yearBuiltRegexp.FindStringSubmatch(html); m != nil {
		return m[1]
	}

	year := ""
	doc.Find(`td[data-fact-type="YearBuiltRenovated"], td[data-fact-type="YearBuilt"]`).
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := strings.TrimSpace(sel.Text())
			if m := bareYearRegexp.FindStringSubmatch(text); m != nil {
				// "1969/2005" means built then renovated; the first match
				// is the build year.
				year = m[1]
				return false
			}
			return true
		})
	if year != "" {
		return year
	}

	doc.Find("div.fact-name").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), "Year Built") {
			return true
		}
		if parent := sel.Parent(); parent != nil {
			if m := bareYearRegexp.FindStringSubmatch(parent.Text()); m != nil {
				year = m[1]
				return false
			}
		}
		return true
	})
	return year
}

// fillIdentityFallbacks recovers a name and address from the title, h1, and
// page text when the structured sources yielded none.
func fillIdentityFallbacks(p *models.Property, doc *goquery.Document) {
	title := services.CleanText(doc.Find("title").First().Text())

	if p.PropertyName == "" && title != "" {
		p.PropertyName = title
	}
	if p.Address == "" && title != "" {
		if m := addressRegexp.FindStringSubmatch(title); m != nil {
			p.Address = services.CleanText(m[1])
		}
	}

	if p.PropertyName == "" {
		p.PropertyName = services.CleanText(doc.Find("h1").First().Text())
	}
	if p.Address == "" {
		text := doc.Text()
		for _, re := range addressLooseRegexp {
			if m := re.FindStringSubmatch(text); m != nil {
				p.Address = services.CleanText(m[1])
				break
			}
		}
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
