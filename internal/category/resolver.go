package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kwatanabe/amazon-order-scraper/internal/config"
	"github.com/kwatanabe/amazon-order-scraper/internal/models"
	"github.com/kwatanabe/amazon-order-scraper/internal/retry"
	"github.com/kwatanabe/amazon-order-scraper/internal/session"
)

var (
	errProductGone     = errors.New("product page no longer exists")
	errEmptyBreadcrumb = errors.New("breadcrumb trail is empty")
)

// PageFetcher is the slice of the session client the resolver needs.
type PageFetcher interface {
	GetPage(ctx context.Context, rawURL string) (*session.Page, error)
}

// Resolver looks up a product's category and subcategory from the
// breadcrumb trail on its canonical page. Results are memoized per
// (product id, offset) because the same product shows up across many
// orders. An unresolvable product yields empty strings; that is a
// terminal degraded result, never a crawl failure.
type Resolver struct {
	fetcher PageFetcher
	baseURL string
	cfg     config.CategoryConfig
	cache   *lru.Cache[string, models.CategoryInfo]
	logger  *slog.Logger
}

func NewResolver(fetcher PageFetcher, baseURL string, cfg config.CategoryConfig) (*Resolver, error) {
	cache, err := lru.New[string, models.CategoryInfo](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create category cache: %w", err)
	}
	return &Resolver{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		cache:   cache,
		logger:  slog.Default().With("component", "category"),
	}, nil
}

// Resolve fetches the breadcrumb for productID. The offset selects the
// top-level crumb; the subcategory sits two slots later because the
// trail interleaves separator entries. Empty breadcrumbs are treated as
// a transient rendering glitch and retried; a 404-class response means
// the product is gone for good and is not retried.
func (r *Resolver) Resolve(ctx context.Context, productID, displayName string, offset int) models.CategoryInfo {
	if productID == "" {
		return models.CategoryInfo{}
	}

	key := fmt.Sprintf("%s#%d", productID, offset)
	if info, ok := r.cache.Get(key); ok {
		return info
	}

	var info models.CategoryInfo
	err := retry.Do(ctx, r.cfg.MaxAttempts, r.cfg.RetryDelay, func() error {
		page, err := r.fetcher.GetPage(ctx, r.baseURL+"/dp/"+productID)
		if err != nil {
			return err
		}
		if page.Status == http.StatusNotFound || page.Status == http.StatusGone {
			return retry.Permanent(errProductGone)
		}

		crumbs := breadcrumbs(page.Doc)
		if len(crumbs) == 0 {
			return errEmptyBreadcrumb
		}

		if offset < len(crumbs) {
			info.Category = crumbs[offset]
		}
		if offset+2 < len(crumbs) {
			info.Subcategory = crumbs[offset+2]
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, errProductGone) {
			r.logger.Info("product page gone, leaving category empty", "product_id", productID, "name", displayName)
			r.cache.Add(key, models.CategoryInfo{})
		} else {
			r.logger.Warn("category lookup failed, leaving category empty",
				"product_id", productID, "name", displayName, "error", err)
		}
		return models.CategoryInfo{}
	}

	r.cache.Add(key, info)
	return info
}

// breadcrumbs collects the raw breadcrumb entries, separators included;
// the offset convention depends on them.
func breadcrumbs(doc *goquery.Document) []string {
	var crumbs []string
	doc.Find("#wayfinding-breadcrumbs_feature_div .a-list-item").Each(func(i int, s *goquery.Selection) {
		crumbs = append(crumbs, strings.TrimSpace(s.Text()))
	})
	return crumbs
}
