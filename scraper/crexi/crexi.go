package crexi

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"auction-scraper/config"
	"auction-scraper/models"
	"auction-scraper/scraper/intercept"
	"auction-scraper/services"
	"auction-scraper/session"
	"auction-scraper/utils"
)

// apiHost is where the listing pages fetch their real data from. The DOM is
// a rendering of these responses, so the scraper reads the responses.
const apiHost = "api.crexi.com"

const (
	cardLinkSelector = "a.cui-card-cover-link"
	nextPageSelector = `a[data-cy="nextPage"]`
	maxSearchPages   = 50
)

var propertyIDRegexp = regexp.MustCompile(`/properties/(\d+)/`)

// Scraper crawls Crexi auction listings. Discovery walks the paginated
// auction search; detail pages are resolved by intercepting the three
// background API calls each page makes (auction, asset, brokers) and
// merging them into one record.
type Scraper struct {
	cfg        *config.Config
	logger     *utils.Logger
	sessions   *session.Manager
	correlator *intercept.Correlator

	attachedTo *session.Handle
}

// New creates a Crexi scraper sharing the given browser session manager.
func New(cfg *config.Config, logger *utils.Logger, sessions *session.Manager) *Scraper {
	return &Scraper{
		cfg:        cfg,
		logger:     logger,
		sessions:   sessions,
		correlator: intercept.NewCorrelator(apiHost),
	}
}

// Source returns the canonical source name for records this scraper emits.
func (s *Scraper) Source() string { return models.SourceCrexi }

// ensureAttached wires the correlator to the session's tab. Rotation swaps
// the tab out, so attachment is re-checked before every browser operation.
func (s *Scraper) ensureAttached(h *session.Handle) error {
	if s.attachedTo == h {
		return nil
	}
	if err := s.correlator.Attach(h.Tab); err != nil {
		return fmt.Errorf("crexi: attach interceptor: %w", err)
	}
	s.attachedTo = h
	return nil
}

// Discover walks the paginated auction search and returns the set of
// listing URLs found, deduplicated across pages.
func (s *Scraper) Discover(ctx context.Context) ([]string, error) {
	h, err := s.sessions.Current()
	if err != nil {
		return nil, err
	}
	if err := s.ensureAttached(h); err != nil {
		return nil, err
	}

	// Hitting the homepage first establishes cookies before the search
	// URL, which reduces challenge frequency.
	s.logger.Info("[crexi] Establishing session via homepage")
	navCtx, cancel := context.WithTimeout(h.Tab, s.cfg.Timeout())
	err = chromedp.Run(navCtx, chromedp.Navigate(s.cfg.CrexiBaseURL))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("crexi: open homepage: %w", err)
	}
	s.sessions.AwaitChallengeResolution(h.Tab, s.cfg.Timeout())

	s.logger.Info("[crexi] Navigating to auctions search")
	navCtx, cancel = context.WithTimeout(h.Tab, s.cfg.Timeout())
	err = chromedp.Run(navCtx,
		chromedp.Navigate(s.cfg.CrexiAuctionsURL),
		chromedp.WaitVisible(cardLinkSelector, chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("crexi: open auctions search: %w", err)
	}
	s.sessions.AwaitChallengeResolution(h.Tab, s.cfg.Timeout())

	seen := utils.NewURLSet()
	var links []string

	for page := 1; page <= maxSearchPages; page++ {
		select {
		case <-ctx.Done():
			return links, ctx.Err()
		default:
		}

		var html string
		pageCtx, cancel := context.WithTimeout(h.Tab, s.cfg.Timeout())
		err := chromedp.Run(pageCtx, chromedp.OuterHTML("html", &html))
		cancel()
		if err != nil {
			return links, fmt.Errorf("crexi: read page %d: %w", page, err)
		}

		pageLinks := ParseAuctionLinks(html, s.cfg.CrexiBaseURL)
		added := 0
		for _, link := range pageLinks {
			if seen.Add(link) {
				links = append(links, link)
				added++
			}
		}
		s.logger.Info("[crexi] Page %d: %d listings (%d new)", page, len(pageLinks), added)

		if added == 0 && page > 1 {
			break
		}
		if !HasNextPage(html) {
			break
		}

		clickCtx, cancel := context.WithTimeout(h.Tab, s.cfg.Timeout())
		err = chromedp.Run(clickCtx,
			chromedp.Click(nextPageSelector, chromedp.ByQuery),
			chromedp.Sleep(2*time.Second),
			chromedp.WaitVisible(cardLinkSelector, chromedp.ByQuery),
		)
		cancel()
		if err != nil {
			s.logger.Warn("[crexi] Pagination stopped at page %d: %v", page, err)
			break
		}
	}

	s.logger.Info("[crexi] Discovery complete: %d listing URLs", len(links))
	return links, nil
}

// FetchDetail loads one listing page and assembles its record from the
// intercepted API responses. A partial capture (auction data only) still
// yields a record; only a total capture failure is an error.
func (s *Scraper) FetchDetail(ctx context.Context, listingURL string) (*models.Property, error) {
	propertyID, ok := ExtractPropertyID(listingURL)
	if !ok {
		return nil, fmt.Errorf("crexi: no property id in url %q", listingURL)
	}

	h, err := s.sessions.TrackRequest()
	if err != nil {
		return nil, err
	}
	if err := s.ensureAttached(h); err != nil {
		return nil, err
	}

	// Stale captures from the previous listing must never leak into this
	// one.
	s.correlator.Reset()

	navCtx, cancel := context.WithTimeout(h.Tab, s.cfg.Timeout())
	err = chromedp.Run(navCtx, chromedp.Navigate(listingURL))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("crexi: navigate %s: %w", listingURL, err)
	}
	s.sessions.AwaitChallengeResolution(h.Tab, s.cfg.Timeout())

	payloads, complete := s.correlator.Await(ctx, propertyID, intercept.AllKinds, s.cfg.Timeout(), 1)
	if len(payloads) == 0 {
		s.sessions.MarkDetected()
		return nil, fmt.Errorf("crexi: no API responses captured for property %s", propertyID)
	}
	if !complete {
		s.logger.Warn("[crexi] Partial capture for property %s (%d of %d endpoints)",
			propertyID, len(payloads), len(intercept.AllKinds))
	}

	p := BuildProperty(listingURL, payloads)
	if !p.Usable() {
		return nil, fmt.Errorf("crexi: captured responses for %s carry no identity", propertyID)
	}
	return p, nil
}

// Fallback produces the minimal record emitted when every fetch attempt for
// a listing failed, so the run output still accounts for it.
func (s *Scraper) Fallback(listingURL string) *models.Property {
	propertyID, _ := ExtractPropertyID(listingURL)
	if propertyID == "" {
		propertyID = "unknown"
	}
	return &models.Property{
		PropertyURL:   listingURL,
		PropertyName:  "Property " + propertyID,
		PropertyType:  "Commercial",
		AssetType:     "Real Estate",
		ReserveStatus: models.ReserveUnknown,
		AuctionStatus: "Unknown",
		Source:        models.SourceCrexi,
		ScrapedAt:     time.Now(),
	}
}

// ExtractPropertyID pulls the numeric listing id out of a detail URL. The id
// is what correlates the page with its API responses.
func ExtractPropertyID(url string) (string, bool) {
	if m := propertyIDRegexp.FindStringSubmatch(url); m != nil {
		return m[1], true
	}
	return "", false
}

// ParseAuctionLinks extracts listing URLs from a search results page.
// Relative hrefs are made absolute against baseURL.
func ParseAuctionLinks(html, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find(cardLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !strings.Contains(href, "/properties/") {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = strings.TrimRight(baseURL, "/") + href
		}
		links = append(links, href)
	})
	return links
}

// HasNextPage reports whether the search page offers an enabled next-page
// control.
func HasNextPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	next := doc.Find(nextPageSelector).First()
	if next.Length() == 0 {
		return false
	}
	_, disabled := next.Attr("disabled")
	return !disabled
}

// auctionPayload covers the fields read from the /auctions/{id} response.
// The /assets/{id} response shares the key space and is decoded over the
// top of it, so asset values override auction values field by field.
type auctionPayload struct {
	PropertyName             string  `json:"propertyName"`
	PropertyAddress          string  `json:"propertyAddress"`
	PropertyType             string  `json:"propertyType"`
	YearBuilt                any     `json:"yearBuilt"`
	BuildingSize             any     `json:"buildingSize"`
	Units                    any     `json:"units"`
	Size                     any     `json:"size"`
	AuctionStartsOn          string  `json:"auctionStartsOn"`
	AuctionEndsOn            string  `json:"auctionEndsOn"`
	AuctionMarketingStartsOn string  `json:"auctionMarketingStartsOn"`
	StartingBid              any     `json:"startingBid"`
	CurrentBidAmount         any     `json:"currentBidAmount"`
	BidIncrementAmount       any     `json:"bidIncrementAmount"`
	MinimumBidAmount         any     `json:"minimumBidAmount"`
	AuctionStatus            string  `json:"auctionStatus"`
	ReserveMet               bool    `json:"reserveMet"`
	Stats struct {
		NumberOfRegisteredBidders int `json:"numberOfRegisteredBidders"`
	} `json:"stats"`
	ComplianceAuctioneer struct {
		Display string `json:"display"`
	} `json:"complianceAuctioneer"`
}

type brokerPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Brokerage struct {
		Name string `json:"name"`
	} `json:"brokerage"`
	Licenses []string `json:"licenses"`
}

// BuildProperty merges the captured API responses into the canonical
// record. Precedence: the auction response is the base, the asset response
// overrides field by field, and the brokers response only contributes the
// broker list.
func BuildProperty(listingURL string, payloads map[intercept.Kind]json.RawMessage) *models.Property {
	var merged auctionPayload
	if raw, ok := payloads[intercept.KindAuction]; ok {
		_ = json.Unmarshal(raw, &merged)
	}
	if raw, ok := payloads[intercept.KindAsset]; ok {
		_ = json.Unmarshal(raw, &merged)
	}

	var brokers []brokerPayload
	if raw, ok := payloads[intercept.KindBrokers]; ok {
		_ = json.Unmarshal(raw, &brokers)
	}

	biddingStarts := services.FormatDate(merged.AuctionStartsOn)
	biddingEnds := services.FormatDate(merged.AuctionEndsOn)
	if biddingEnds == "" && biddingStarts != "" {
		biddingEnds = services.CalculateBiddingEnd(biddingStarts)
	}

	var brokerEntries []string
	for _, b := range brokers {
		license := ""
		if len(b.Licenses) > 0 {
			license = b.Licenses[0]
		}
		name := strings.TrimSpace(b.FirstName + " " + b.LastName)
		if display := services.BrokerDisplay(name, b.Brokerage.Name, license); display != "" {
			brokerEntries = append(brokerEntries, display)
		}
	}
	if len(brokerEntries) == 0 && merged.ComplianceAuctioneer.Display != "" {
		brokerEntries = append(brokerEntries, merged.ComplianceAuctioneer.Display)
	}

	reserve := models.ReserveUnknown
	if merged.ReserveMet {
		reserve = models.ReserveMet
	}

	status := merged.AuctionStatus
	if status == "" {
		status = "Unknown"
	}

	return &models.Property{
		PropertyURL:  listingURL,
		PropertyName: services.CleanText(merged.PropertyName),
		Address:      services.CleanText(merged.PropertyAddress),

		PropertyType: services.CleanText(merged.PropertyType),
		AssetType:    "Real Estate",
		YearBuilt:    services.CleanText(fmt.Sprint(anyOrEmpty(merged.YearBuilt))),
		BuildingSize: services.ParseCurrency(merged.BuildingSize),
		Units:        services.CleanText(fmt.Sprint(anyOrEmpty(merged.Units))),
		Size:         services.ParseCurrency(merged.Size),

		BiddingStarts: biddingStarts,
		BiddingEnds:   biddingEnds,
		StartingBid:   services.ParseCurrency(merged.StartingBid),
		CurrentBid:    services.ParseCurrency(merged.CurrentBidAmount),
		BidIncrement:  services.ParseCurrency(merged.BidIncrementAmount),
		MinimumBid:    services.ParseCurrency(merged.MinimumBidAmount),

		ReserveStatus:     reserve,
		AuctionStatus:     status,
		RegisteredBidders: merged.Stats.NumberOfRegisteredBidders,

		Brokers: services.CleanBrokers(brokerEntries...),

		Source:    models.SourceCrexi,
		DateAdded: services.FormatDate(merged.AuctionMarketingStartsOn),
		ScrapedAt: time.Now(),
	}
}

func anyOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
