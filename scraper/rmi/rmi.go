package rmi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"

	"auction-scraper/config"
	"auction-scraper/models"
	"auction-scraper/services"
	"auction-scraper/utils"
)

// publicSite is where listing URLs point; the API itself lives on a
// separate host behind bot protection.
const publicSite = "https://rimarketplace.com"

// Scraper pulls auctions from the RI Marketplace JSON API. Unlike the
// browser-driven sources this one is plain HTTP: authenticate for a bearer
// token, page through the search endpoint, then post for each property's
// detail.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	http   *resty.Client
	retry  utils.RetryConfig

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	listings    map[string]searchAuction

	now func() time.Time
}

// New creates an RMI scraper with a bot-protection-aware HTTP client.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	client := resty.New().
		SetBaseURL(cfg.RMIBaseURL).
		SetTimeout(cfg.Timeout()).
		SetHeader("Accept", "application/json, text/plain, */*").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetHeader("Origin", publicSite).
		SetHeader("Referer", publicSite+"/").
		SetHeader("User-Agent", browser.Chrome())
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	return &Scraper{
		cfg:    cfg,
		logger: logger,
		http:   client,
		retry: utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     utils.LinearBackoff(cfg.RetryDelay()),
			Logger:      logger,
		},
		listings: make(map[string]searchAuction),
		now:      time.Now,
	}
}

// Source returns the canonical source name for records this scraper emits.
func (s *Scraper) Source() string { return models.SourceRMI }

type authResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Results struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expiresIn"`
	} `json:"results"`
}

// flexID accepts the property id whether the API sends it as a number or a
// string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	*f = flexID(strings.Trim(string(b), `"`))
	return nil
}

type searchAuction struct {
	PropertyID       flexID `json:"propertyId"`
	PropertyName     string `json:"propertyName"`
	PropertyCity     string `json:"propertyCity"`
	StateName        string `json:"stateName"`
	PropertyTypeName string `json:"property_type_name"`
	AuctionStartDate string `json:"auctionStartDate"`
	AuctionEndDate   string `json:"auctionEndDate"`
	StartBid         any    `json:"start_bid"`
	CurrentBid       any    `json:"current_bid"`
}

type searchResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Data    struct {
		Count    int             `json:"count"`
		Pages    int             `json:"pages"`
		Property []searchAuction `json:"property"`
	} `json:"data"`
}

type detailResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Data    struct {
		PropertyList []struct {
			Information map[string]any   `json:"information"`
			AssetInfo   []map[string]any `json:"asset_info"`
		} `json:"propertyList"`
		ListedBrokers []struct {
			Name string `json:"name"`
		} `json:"listedBrokers"`
	} `json:"data"`
}

// authenticate requests a fresh bearer token. The endpoint takes an empty
// POST and returns the token with its lifetime.
func (s *Scraper) authenticate(ctx context.Context) (string, error) {
	var auth authResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&auth).
		Post("/authenticate")
	if err != nil {
		return "", fmt.Errorf("rmi: authenticate: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("rmi: authenticate: status %s", resp.Status())
	}
	if auth.Error || auth.Results.Token == "" {
		return "", fmt.Errorf("rmi: authenticate: %s", messageOr(auth.Message, "no token in response"))
	}

	s.mu.Lock()
	s.token = auth.Results.Token
	s.tokenExpiry = s.now().Add(time.Duration(auth.Results.ExpiresIn) * time.Second)
	s.mu.Unlock()

	s.logger.Info("[rmi] Authenticated, token valid for %ds", auth.Results.ExpiresIn)
	return auth.Results.Token, nil
}

// validToken returns the cached token, refreshing it once it has expired.
func (s *Scraper) validToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	token, expiry := s.token, s.tokenExpiry
	s.mu.Unlock()

	if token != "" && s.now().Before(expiry) {
		return token, nil
	}
	return s.authenticate(ctx)
}

// Discover pages through the auction search and returns the property ids
// found. The per-auction search payloads are cached so FetchDetail and
// Fallback can fill gaps the detail endpoint leaves.
func (s *Scraper) Discover(ctx context.Context) ([]string, error) {
	first, err := s.fetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}

	totalPages := first.Data.Pages
	if totalPages < 1 {
		totalPages = 1
	}
	s.logger.Info("[rmi] Search reports %d auctions across %d page(s)", first.Data.Count, totalPages)

	auctions := first.Data.Property
	for page := 2; page <= totalPages; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(s.cfg.RequestDelay())

		pageResp, err := s.fetchPage(ctx, page)
		if err != nil {
			s.logger.Warn("[rmi] Page %d failed, continuing: %v", page, err)
			continue
		}
		auctions = append(auctions, pageResp.Data.Property...)
	}

	ids := make([]string, 0, len(auctions))
	s.mu.Lock()
	for _, a := range auctions {
		id := string(a.PropertyID)
		if id == "" {
			continue
		}
		if _, dup := s.listings[id]; dup {
			continue
		}
		s.listings[id] = a
		ids = append(ids, id)
	}
	s.mu.Unlock()

	s.logger.Info("[rmi] Discovery complete: %d auctions", len(ids))
	return ids, nil
}

func (s *Scraper) fetchPage(ctx context.Context, page int) (*searchResponse, error) {
	var result searchResponse
	err := s.retry.DoContext(ctx, fmt.Sprintf("rmi search page %d", page), func() error {
		token, err := s.validToken(ctx)
		if err != nil {
			return err
		}

		resp, err := s.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(map[string]string{
				"legend":    "auction",
				"limit":     fmt.Sprint(s.cfg.RMIPageLimit),
				"page":      fmt.Sprint(page),
				"sortOrder": "ASC",
			}).
			SetResult(&result).
			Get("/search")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("status %s", resp.Status())
		}
		if result.Error {
			return fmt.Errorf("api error: %s", messageOr(result.Message, "unknown"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchDetail posts for one property's detail payload and merges it with
// the cached search data into the canonical record.
func (s *Scraper) FetchDetail(ctx context.Context, propertyID string) (*models.Property, error) {
	s.mu.Lock()
	auction := s.listings[propertyID]
	s.mu.Unlock()
	if auction.PropertyID == "" {
		auction.PropertyID = flexID(propertyID)
	}

	var detail detailResponse
	err := s.retry.DoContext(ctx, "rmi detail "+propertyID, func() error {
		token, err := s.validToken(ctx)
		if err != nil {
			return err
		}

		resp, err := s.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]any{
				"propertyId": propertyID,
				"userId":     "",
				"isCmsUrl":   false,
			}).
			SetResult(&detail).
			Post("/auction")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("status %s", resp.Status())
		}
		if detail.Error {
			return fmt.Errorf("api error: %s", messageOr(detail.Message, "unknown"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return BuildProperty(auction, &detail), nil
}

// Fallback builds the minimal record from the cached search payload when
// the detail endpoint never answered.
func (s *Scraper) Fallback(propertyID string) *models.Property {
	s.mu.Lock()
	auction := s.listings[propertyID]
	s.mu.Unlock()
	if auction.PropertyID == "" {
		auction.PropertyID = flexID(propertyID)
	}

	name := services.CleanText(auction.PropertyName)
	if name == "" {
		name = "Unknown Property"
	}
	return &models.Property{
		PropertyURL:   AuctionURL(propertyID, name),
		PropertyName:  name,
		Address:       services.CleanText(auction.PropertyCity + " " + auction.StateName),
		PropertyType:  textOr(auction.PropertyTypeName, "Unknown"),
		AssetType:     "Real Estate",
		BiddingStarts: services.FormatDate(auction.AuctionStartDate),
		BiddingEnds:   services.FormatDate(auction.AuctionEndDate),
		StartingBid:   services.ParseCurrency(auction.StartBid),
		CurrentBid:    services.ParseCurrency(auction.CurrentBid),
		ReserveStatus: models.ReserveUnknown,
		AuctionStatus: "Unknown",
		Source:        models.SourceRMI,
		ScrapedAt:     time.Now(),
	}
}

// AuctionURL reconstructs the public listing URL from the property id and a
// slug of its name. Without a usable slug the bare property path is used.
func AuctionURL(propertyID, propertyName string) string {
	slug := services.Slugify(propertyName)
	if propertyID != "" && slug != "" {
		return fmt.Sprintf("%s/auction/%s/%s", publicSite, propertyID, slug)
	}
	return fmt.Sprintf("%s/property/%s", publicSite, propertyID)
}

// grossLeasableAreaKeys are tried in order when the asset info carried no
// recognizable size field.
var grossLeasableAreaKeys = []string{
	"office_grossLeasableArea",
	"retail_grossLeasableArea",
	"industrial_grossLeasableArea",
	"multifamily_grossLeasableArea",
	"grossLeasableArea",
}

// BuildProperty merges a search payload with the detail response. Detail
// information wins; search fields fill whatever it omits.
func BuildProperty(auction searchAuction, detail *detailResponse) *models.Property {
	var info map[string]any
	var assetInfo []map[string]any
	if len(detail.Data.PropertyList) > 0 {
		info = detail.Data.PropertyList[0].Information
		assetInfo = detail.Data.PropertyList[0].AssetInfo
	}

	var brokerNames []string
	for _, b := range detail.Data.ListedBrokers {
		brokerNames = append(brokerNames, b.Name)
	}

	buildingSize := services.ExtractBuildingSize(assetInfo)
	if buildingSize == 0 {
		for _, key := range grossLeasableAreaKeys {
			if buildingSize = services.ParseCurrency(info[key]); buildingSize > 0 {
				break
			}
		}
	}

	addressParts := []string{
		infoString(info, "propertyAddress"),
		textOr(infoString(info, "propertyCity"), auction.PropertyCity),
		textOr(infoString(info, "propertyState"), auction.StateName),
		infoString(info, "propertyZip"),
	}
	address := services.CleanText(strings.Join(addressParts, " "))

	name := textOr(infoString(info, "propertyName"), auction.PropertyName)
	if name = services.CleanText(name); name == "" {
		name = "Unknown Property"
	}
	propertyID := string(auction.PropertyID)

	return &models.Property{
		PropertyURL:  AuctionURL(propertyID, name),
		PropertyName: name,
		Address:      address,

		PropertyType: textOr(infoString(info, "property_type_name"), textOr(auction.PropertyTypeName, "Unknown")),
		AssetType:    textOr(infoString(info, "asset_type_name"), "Real Estate"),
		YearBuilt:    infoString(info, "yearBuilt"),
		BuildingSize: buildingSize,

		BiddingStarts: services.FormatDate(anyOr(info["startBidding"], auction.AuctionStartDate)),
		BiddingEnds:   services.FormatDate(anyOr(info["endBidding"], auction.AuctionEndDate)),
		StartingBid:   services.ParseCurrency(anyOr(info["start_bid"], auction.StartBid)),
		CurrentBid:    services.ParseCurrency(anyOr(info["current_bid"], auction.CurrentBid)),

		ReserveStatus: models.ReserveUnknown,
		AuctionStatus: "Unknown",

		Brokers: services.CleanBrokers(brokerNames...),

		Source:    models.SourceRMI,
		ScrapedAt: time.Now(),
	}
}

func infoString(info map[string]any, key string) string {
	if info == nil {
		return ""
	}
	v, ok := info[key]
	if !ok || v == nil {
		return ""
	}
	return services.CleanText(fmt.Sprint(v))
}

func textOr(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func anyOr(v any, fallback any) any {
	switch t := v.(type) {
	case nil:
		return fallback
	case string:
		if strings.TrimSpace(t) == "" {
			return fallback
		}
	}
	return v
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) != "" {
		return msg
	}
	return fallback
}
