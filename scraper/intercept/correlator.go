package intercept

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Kind identifies which background API endpoint a captured response came from.
type Kind string

const (
	KindAsset   Kind = "asset"
	KindAuction Kind = "auction"
	KindBrokers Kind = "brokers"
)

// AllKinds is the full endpoint set an API-interception adapter may require.
var AllKinds = []Kind{KindAuction, KindAsset, KindBrokers}

var (
	brokersPathRegexp = regexp.MustCompile(`/assets/(\d+)/brokers`)
	assetPathRegexp   = regexp.MustCompile(`/assets/(\d+)`)
	auctionPathRegexp = regexp.MustCompile(`/auctions/(\d+)`)
)

type captureKey struct {
	entityID string
	kind     Kind
}

// Correlator associates asynchronous API responses captured during a page
// visit with the entity they describe. Listing pages render client-side and
// expose their real data only through background API calls, so the network
// layer is observed directly rather than the DOM. Responses may arrive in
// any order, repeat (last write wins), or never fire at all.
type Correlator struct {
	apiHost string

	mu       sync.Mutex
	pending  map[network.RequestID]string // request id -> url, body not yet available
	captures map[captureKey]json.RawMessage
}

// NewCorrelator creates a Correlator that only observes responses from the
// given API host.
func NewCorrelator(apiHost string) *Correlator {
	return &Correlator{
		apiHost:  apiHost,
		pending:  make(map[network.RequestID]string),
		captures: make(map[captureKey]json.RawMessage),
	}
}

// Attach enables CDP network events on the tab and registers the response
// listener. Bodies are only retrievable once loading finishes, so responses
// are tracked at EventResponseReceived and fetched at EventLoadingFinished.
func (c *Correlator) Attach(tabCtx context.Context) error {
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		return err
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if !strings.Contains(e.Response.URL, c.apiHost) {
				return
			}
			c.mu.Lock()
			c.pending[e.RequestID] = e.Response.URL
			c.mu.Unlock()

		case *network.EventLoadingFinished:
			c.mu.Lock()
			url, ok := c.pending[e.RequestID]
			if ok {
				delete(c.pending, e.RequestID)
			}
			c.mu.Unlock()
			if !ok {
				return
			}

			// Body retrieval needs the tab's CDP executor; it must not
			// block the event listener.
			go func(reqID network.RequestID, respURL string) {
				_ = chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
					body, err := network.GetResponseBody(reqID).Do(ctx)
					if err != nil || len(body) == 0 {
						return nil
					}
					c.Observe(respURL, body)
					return nil
				}))
			}(e.RequestID, url)
		}
	})

	return nil
}

// Observe classifies a captured response by URL pattern and stores it keyed
// by (entity id, endpoint kind). A repeated response for the same key
// overwrites the previous one. Non-JSON bodies and URLs outside the target
// host are ignored.
func (c *Correlator) Observe(url string, body []byte) {
	if !strings.Contains(url, c.apiHost) {
		return
	}
	entityID, kind, ok := Classify(url)
	if !ok {
		return
	}
	if !json.Valid(body) {
		return
	}

	c.mu.Lock()
	c.captures[captureKey{entityID: entityID, kind: kind}] = json.RawMessage(body)
	c.mu.Unlock()
}

// Classify maps an API URL to the entity id embedded in its path and the
// endpoint kind. The brokers pattern is checked first since it would also
// match the bare asset pattern.
func Classify(url string) (entityID string, kind Kind, ok bool) {
	if m := brokersPathRegexp.FindStringSubmatch(url); m != nil {
		return m[1], KindBrokers, true
	}
	if m := auctionPathRegexp.FindStringSubmatch(url); m != nil {
		return m[1], KindAuction, true
	}
	if m := assetPathRegexp.FindStringSubmatch(url); m != nil {
		return m[1], KindAsset, true
	}
	return "", "", false
}

// Captured returns the responses currently held for the entity, one per kind.
func (c *Correlator) Captured(entityID string) map[Kind]json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Kind]json.RawMessage)
	for key, body := range c.captures {
		if key.entityID == entityID {
			out[key.kind] = body
		}
	}
	return out
}

// Await polls until every required kind has been captured for the entity or
// the timeout elapses. On timeout it retries up to maxRetries fresh poll
// windows (no page reload) and finally returns whatever partial set was
// captured. The bool result reports whether the set is complete.
func (c *Correlator) Await(ctx context.Context, entityID string, required []Kind, timeout time.Duration, maxRetries int) (map[Kind]json.RawMessage, bool) {
	const pollInterval = 500 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			got := c.Captured(entityID)
			if containsAll(got, required) {
				return got, true
			}

			select {
			case <-ctx.Done():
				return c.Captured(entityID), false
			case <-time.After(pollInterval):
			}
		}
	}

	got := c.Captured(entityID)
	return got, containsAll(got, required)
}

// Reset discards all captured and pending responses. Called before each new
// listing navigation so one listing never reads another's responses.
func (c *Correlator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[network.RequestID]string)
	c.captures = make(map[captureKey]json.RawMessage)
}

func containsAll(got map[Kind]json.RawMessage, required []Kind) bool {
	for _, k := range required {
		if _, ok := got[k]; !ok {
			return false
		}
	}
	return true
}
