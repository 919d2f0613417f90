package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/kwatanabe/amazon-order-scraper/internal/models"
)

var (
	// ErrServiceBanner is returned when a detail page carries the site's
	// application-level error banner instead of order content. The fetch
	// layer retries these.
	ErrServiceBanner = errors.New("order page shows a service error banner")

	// ErrNoOrderContent is returned when a detail page has neither a
	// normal item grid nor a digital summary table.
	ErrNoOrderContent = errors.New("order page has no recognizable content")
)

// OrderKind tags the page layout an order detail page uses. It is
// decided once during parsing; digital product pages also carry a
// deeper breadcrumb trail, which the kind's breadcrumb offset accounts
// for.
type OrderKind int

const (
	KindNormal OrderKind = iota
	KindDigital
)

func (k OrderKind) String() string {
	if k == KindDigital {
		return "digital"
	}
	return "normal"
}

// BreadcrumbOffset returns the index of the top-level category within
// the breadcrumb trail of a product page reached from this order kind.
func (k OrderKind) BreadcrumbOffset() int {
	if k == KindDigital {
		return 2
	}
	return 0
}

// OrderSummary is one order block on a history list page.
type OrderSummary struct {
	Date      models.Date
	DetailURL string
	// InlineImages maps product id to the high resolution thumbnail URL
	// shown on the list page. Digital detail pages omit their image, so
	// this map is the only source for it.
	InlineImages map[string]string
}

// ListPage is the parsed form of one order history page.
type ListPage struct {
	Orders  []OrderSummary
	HasNext bool
}

// Item is a purchased product extracted from a detail page, before
// category enrichment. TotalPrice is quantity-scaled.
type Item struct {
	Name       string
	ProductID  string
	URL        string
	Quantity   int
	TotalPrice int
	Seller     string
	ImageURL   string
}

// Order is the parsed form of one detail page.
type Order struct {
	Kind  OrderKind
	Items []Item
}

var (
	dateRe      = regexp.MustCompile(`(\d{4})年\s*(\d{1,2})月\s*(\d{1,2})日`)
	productIDRe = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)
	quantityRe  = regexp.MustCompile(`^(.+?)、\s*数量\s*[:：]\s*(\d+)\s*$`)
	yenRe       = regexp.MustCompile(`[0-9,]+`)
	imageSizeRe = regexp.MustCompile(`\._[^./]*_\.`)
)

// parseYen converts a price string like "￥ 1,000" to an integer amount.
func parseYen(s string) (int, bool) {
	m := yenRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// productIDFromURL pulls the opaque catalog id out of a product link.
func productIDFromURL(href string) string {
	m := productIDRe.FindStringSubmatch(href)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// fullResImageURL strips the size constraint token from a thumbnail URL
// so the original resolution image is fetched.
func fullResImageURL(src string) string {
	return imageSizeRe.ReplaceAllString(src, ".")
}

// splitQuantity separates the trailing quantity marker from an item
// name. Names without the marker default to quantity 1.
func splitQuantity(name string) (string, int) {
	m := quantityRe.FindStringSubmatch(name)
	if len(m) < 3 {
		return strings.TrimSpace(name), 1
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return strings.TrimSpace(m[1]), 1
	}
	return strings.TrimSpace(m[1]), n
}
