package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kwatanabe/amazon-order-scraper/internal/config"
	"github.com/kwatanabe/amazon-order-scraper/internal/metrics"
	"github.com/kwatanabe/amazon-order-scraper/internal/models"
	"github.com/kwatanabe/amazon-order-scraper/internal/parser"
	"github.com/kwatanabe/amazon-order-scraper/internal/ratelimit"
	"github.com/kwatanabe/amazon-order-scraper/internal/retry"
	"github.com/kwatanabe/amazon-order-scraper/internal/session"
	"github.com/kwatanabe/amazon-order-scraper/internal/status"
)

// historyURLFormat addresses one order history list page: a year filter
// plus a zero-based page index.
const historyURLFormat = "/gp/css/order-history?digitalOrders=1&unifiedOrders=1&orderFilter=year-%d&startIndex=%d"

// PageFetcher is the slice of the session client the crawler needs.
type PageFetcher interface {
	GetPage(ctx context.Context, rawURL string) (*session.Page, error)
}

// CategoryResolver enriches an item with its breadcrumb categories.
type CategoryResolver interface {
	Resolve(ctx context.Context, productID, displayName string, offset int) models.CategoryInfo
}

// AssetSaver caches an item's thumbnail on disk.
type AssetSaver interface {
	EnsureSaved(ctx context.Context, productID, imageURL string)
}

// CheckpointStore persists crawl progress at page boundaries.
type CheckpointStore interface {
	Load() *models.CrawlState
	Save(state *models.CrawlState) error
}

// Crawler walks the order history year by year, page by page, turning
// every order into LineItems. Progress is checkpointed after each
// completed page, so a killed run resumes with at most one page of
// rework and never duplicates prior results.
type Crawler struct {
	fetcher    PageFetcher
	categories CategoryResolver
	assets     AssetSaver
	store      CheckpointStore
	limiter    *ratelimit.CourtesyLimiter
	metrics    *metrics.Metrics
	cfg        config.CrawlConfig
	baseURL    string
	logger     *slog.Logger

	runID     string
	startedAt time.Time

	mu      sync.Mutex
	current models.CrawlCursor
	count   int
}

func New(
	fetcher PageFetcher,
	categories CategoryResolver,
	assets AssetSaver,
	store CheckpointStore,
	limiter *ratelimit.CourtesyLimiter,
	m *metrics.Metrics,
	cfg config.CrawlConfig,
	baseURL string,
) *Crawler {
	return &Crawler{
		fetcher:    fetcher,
		categories: categories,
		assets:     assets,
		store:      store,
		limiter:    limiter,
		metrics:    m,
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     slog.Default().With("component", "crawler"),
		runID:      uuid.NewString(),
		startedAt:  time.Now(),
	}
}

// RunID identifies this harvest run in logs and the status endpoint.
func (c *Crawler) RunID() string {
	return c.runID
}

// Snapshot reports the crawl position for the status server.
func (c *Crawler) Snapshot() status.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return status.Snapshot{
		RunID:     c.runID,
		StartedAt: c.startedAt,
		Year:      c.current.Year,
		Page:      c.current.Page,
		Items:     c.count,
	}
}

// Run harvests every year from the configured start year through the
// current one and returns the accumulated line items. Only
// authentication failures (and cancellation) abort the run; everything
// else degrades locally.
func (c *Crawler) Run(ctx context.Context) ([]models.LineItem, error) {
	state := c.store.Load()
	items := state.Items

	startYear := c.cfg.StartYear
	resumePage := 0
	if !state.Empty() {
		startYear = state.Cursor.Year
		resumePage = state.Cursor.Page + 1
		c.logger.Info("resuming from checkpoint",
			"year", state.Cursor.Year, "page", resumePage, "items", len(items))
	}

	endYear := time.Now().Year()

	for year := startYear; year <= endYear; year++ {
		page := 1
		if year == startYear && resumePage > 0 {
			page = resumePage
		}

		for {
			if err := ctx.Err(); err != nil {
				return items, err
			}

			listPage, err := c.fetchListPage(ctx, year, page)
			if err != nil {
				return items, err
			}

			c.logger.Info("processing history page",
				"year", year, "page", page, "orders", len(listPage.Orders))

			for _, order := range listPage.Orders {
				harvested, err := c.harvestOrder(ctx, order)
				if err != nil {
					return items, err
				}
				items = append(items, harvested...)
				c.metrics.IncItems(len(harvested))
			}

			if err := c.store.Save(&models.CrawlState{
				Cursor: models.CrawlCursor{Year: year, Page: page},
				Items:  items,
			}); err != nil {
				return items, fmt.Errorf("failed to checkpoint at year %d page %d: %w", year, page, err)
			}

			c.setProgress(year, page, len(items))
			c.limiter.RecordSuccess()

			if !listPage.HasNext {
				break
			}
			page++
		}
	}

	c.logger.Info("harvest complete", "items", len(items))
	return items, nil
}

// fetchListPage fetches and parses one history list page with bounded
// retry. Authentication failures are permanent and bubble out.
func (c *Crawler) fetchListPage(ctx context.Context, year, page int) (*parser.ListPage, error) {
	url := fmt.Sprintf(c.baseURL+historyURLFormat, year, page-1)

	var listPage *parser.ListPage
	err := retry.Do(ctx, c.cfg.DetailAttempts, c.cfg.DetailRetryWait, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		start := time.Now()
		pg, err := c.fetcher.GetPage(ctx, url)
		c.metrics.ObserveDuration(time.Since(start))
		if err != nil {
			if errors.Is(err, session.ErrAuthentication) || errors.Is(err, session.ErrNoCredentials) {
				return retry.Permanent(err)
			}
			c.metrics.IncRetry()
			c.metrics.IncError("list_fetch")
			return err
		}

		parsed, err := parser.ParseOrderList(string(pg.Body), c.baseURL)
		if err != nil {
			c.metrics.IncError("list_parse")
			return err
		}

		listPage = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history page year %d page %d: %w", year, page, err)
	}

	c.metrics.IncPage()
	return listPage, nil
}

// harvestOrder turns one order summary into enriched line items.
// Per-order failures are contained here: the order is logged and
// skipped, the crawl goes on. Only authentication failures and
// cancellation propagate.
func (c *Crawler) harvestOrder(ctx context.Context, summary parser.OrderSummary) ([]models.LineItem, error) {
	order, err := c.fetchOrderDetail(ctx, summary)
	if err != nil {
		if errors.Is(err, session.ErrAuthentication) || errors.Is(err, session.ErrNoCredentials) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.logger.Warn("skipping order", "date", summary.Date, "url", summary.DetailURL, "error", err)
		c.metrics.IncError("order")
		return nil, nil
	}

	c.metrics.IncOrder(order.Kind.String())

	items := make([]models.LineItem, 0, len(order.Items))
	for _, parsed := range order.Items {
		info := c.categories.Resolve(ctx, parsed.ProductID, parsed.Name, order.Kind.BreadcrumbOffset())
		c.assets.EnsureSaved(ctx, parsed.ProductID, parsed.ImageURL)

		items = append(items, models.LineItem{
			Name:         parsed.Name,
			ProductID:    parsed.ProductID,
			URL:          parsed.URL,
			Quantity:     parsed.Quantity,
			TotalPrice:   parsed.TotalPrice,
			Category:     info.Category,
			Subcategory:  info.Subcategory,
			Seller:       parsed.Seller,
			PurchaseDate: summary.Date,
		})

		c.logger.Info("item harvested",
			"date", summary.Date, "name", parsed.Name, "quantity", parsed.Quantity, "price", parsed.TotalPrice)
	}

	return items, nil
}

// fetchOrderDetail fetches and parses one detail page with bounded
// retry. The site's transient error banner is retried; a page with no
// recognizable order content is not.
func (c *Crawler) fetchOrderDetail(ctx context.Context, summary parser.OrderSummary) (*parser.Order, error) {
	var order *parser.Order
	err := retry.Do(ctx, c.cfg.DetailAttempts, c.cfg.DetailRetryWait, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		start := time.Now()
		pg, err := c.fetcher.GetPage(ctx, summary.DetailURL)
		c.metrics.ObserveDuration(time.Since(start))
		if err != nil {
			if errors.Is(err, session.ErrAuthentication) || errors.Is(err, session.ErrNoCredentials) {
				return retry.Permanent(err)
			}
			c.metrics.IncRetry()
			c.metrics.IncError("detail_fetch")
			return err
		}

		parsed, err := parser.ParseOrderDetail(string(pg.Body), summary.InlineImages, c.baseURL)
		if err != nil {
			if errors.Is(err, parser.ErrServiceBanner) {
				c.metrics.IncRetry()
				c.metrics.IncError("service_banner")
				return err
			}
			return retry.Permanent(err)
		}

		order = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Crawler) setProgress(year, page, count int) {
	c.mu.Lock()
	c.current = models.CrawlCursor{Year: year, Page: page}
	c.count = count
	c.mu.Unlock()
}
