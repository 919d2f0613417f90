package assets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kwatanabe/amazon-order-scraper/internal/config"
	"github.com/kwatanabe/amazon-order-scraper/internal/retry"
)

// Downloader is the slice of the session client the fetcher needs.
type Downloader interface {
	Download(ctx context.Context, rawURL string) ([]byte, int, error)
}

// Fetcher persists one thumbnail per line item under the image
// directory, named by product id. Downloads are idempotent: a non-empty
// file on disk is never fetched again, which keeps resumed harvests
// cheap.
type Fetcher struct {
	downloader Downloader
	dir        string
	cfg        config.AssetsConfig
	logger     *slog.Logger
}

func NewFetcher(downloader Downloader, dir string, cfg config.AssetsConfig) *Fetcher {
	return &Fetcher{
		downloader: downloader,
		dir:        dir,
		cfg:        cfg,
		logger:     slog.Default().With("component", "assets"),
	}
}

// EnsureSaved downloads imageURL to the product's image path unless a
// non-empty file already exists there. A persistent failure is reported
// with a warning and swallowed; the item simply keeps no image.
func (f *Fetcher) EnsureSaved(ctx context.Context, productID, imageURL string) {
	if productID == "" || imageURL == "" {
		return
	}

	target := f.ImagePath(productID, imageURL)
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		return
	}

	err := retry.Do(ctx, f.cfg.MaxAttempts, f.cfg.RetryDelay, func() error {
		body, status, err := f.downloader.Download(ctx, imageURL)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("unexpected status %d", status)
		}
		if len(body) == 0 {
			return fmt.Errorf("empty image body")
		}
		return os.WriteFile(target, body, 0o644)
	})
	if err != nil {
		f.logger.Warn("giving up on thumbnail", "product_id", productID, "url", imageURL, "error", err)
	}
}

// ImagePath returns the cache path for a product's thumbnail: the
// product id plus the original file extension.
func (f *Fetcher) ImagePath(productID, imageURL string) string {
	ext := strings.ToLower(path.Ext(stripQuery(imageURL)))
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	return filepath.Join(f.dir, productID+ext)
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
