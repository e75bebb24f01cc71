package listing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spigell/career-match/internal/query"
)

const (
	userAgent   = "spigell/career-match"
	searchPath  = "/listings"
	perPage     = 100
	defaultRate = 5
)

// ClientConfig configures the listing API client.
type ClientConfig struct {
	APIURL      string        `mapstructure:"api-url"`
	UserAgent   string        `mapstructure:"user-agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerSec  float64       `mapstructure:"rate-per-sec"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxPages    int           `mapstructure:"max-pages"`
}

// Client talks to the listing API.
type Client struct {
	token       string
	logger      *zap.Logger
	limiter     *rate.Limiter
	concurrency int
	maxPages    int

	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// NewClient builds a client. An empty token sends no Authorization header.
func NewClient(cfg ClientConfig, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRate
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = userAgent
	}

	return &Client{
		token:       strings.TrimSpace(token),
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(rps), concurrency),
		concurrency: concurrency,
		maxPages:    cfg.MaxPages,
		HTTPClient:  &http.Client{Timeout: timeout},
		UserAgent:   ua,
		APIURL:      strings.TrimRight(cfg.APIURL, "/"),
	}
}

// Listings fetches every page of listings matching criteria.
func (c *Client) Listings(ctx context.Context, criteria query.Criteria) (*Listings, error) {
	items, err := c.GetItems(ctx, c.APIURL+searchPath, buildParams(criteria))
	if err != nil {
		return nil, err
	}

	var listings []*Listing
	cfg := &mapstructure.DecoderConfig{
		Result:  &listings,
		TagName: "mapstructure",
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}

	c.logger.Debug("got listings", zap.Int("count", len(listings)))

	return &Listings{Items: listings}, nil
}

// GetItems requests the first page, then the remaining pages concurrently,
// and returns all items in page order.
func (c *Client) GetItems(ctx context.Context, rawURL string, q url.Values) ([]Item, error) {
	first, err := c.getPage(ctx, rawURL, q, 0)
	if err != nil {
		return nil, err
	}

	pages := first.Pages
	if c.maxPages > 0 && pages > c.maxPages {
		c.logger.Debug("limiting pages", zap.Int("pages", pages), zap.Int("max_pages", c.maxPages))
		pages = c.maxPages
	}

	if pages <= 1 {
		return first.Items, nil
	}

	c.logger.Debug("additional requests needed", zap.Int("pages", pages))

	rest := make([][]Item, pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for page := 1; page < pages; page++ {
		g.Go(func() error {
			resp, err := c.getPage(gctx, rawURL, q, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			rest[page] = resp.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := append([]Item(nil), first.Items...)
	for _, pageItems := range rest[1:] {
		items = append(items, pageItems...)
	}

	return items, nil
}

func buildParams(c query.Criteria) url.Values {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))

	if c.Role != "" {
		q.Set("text", c.Role)
	}
	if c.Location != "" {
		q.Set("location", c.Location)
	}
	if c.JobType != "" {
		q.Set("job_type", string(c.JobType))
	}
	if c.WorkArrangement != "" {
		q.Set("work_arrangement", string(c.WorkArrangement))
	}
	if c.SalaryMin != nil {
		q.Set("salary_min", strconv.Itoa(*c.SalaryMin))
	}
	for _, s := range c.Skills {
		q.Add("skill", s)
	}

	return q
}
