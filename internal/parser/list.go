package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kwatanabe/amazon-order-scraper/internal/models"
)

// ParseOrderList extracts the order summaries from one history list
// page. Order blocks whose date or detail link cannot be located are
// dropped; the caller decides how loudly to complain. The second return
// value reports whether another page follows this one.
func ParseOrderList(html string, baseURL string) (*ListPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse list page: %w", err)
	}

	page := &ListPage{}

	doc.Find("div.order").Each(func(i int, order *goquery.Selection) {
		summary, ok := parseOrderBlock(order, baseURL)
		if !ok {
			return
		}
		page.Orders = append(page.Orders, summary)
	})

	page.HasNext = hasNextPage(doc)

	return page, nil
}

func parseOrderBlock(order *goquery.Selection, baseURL string) (OrderSummary, bool) {
	date, ok := parseOrderDate(order.Find(".order-info").Text())
	if !ok {
		return OrderSummary{}, false
	}

	detailHref, ok := order.Find(`a[href*="order-details"]`).First().Attr("href")
	if !ok || detailHref == "" {
		return OrderSummary{}, false
	}

	summary := OrderSummary{
		Date:         date,
		DetailURL:    absoluteURL(baseURL, detailHref),
		InlineImages: map[string]string{},
	}

	// Digital items on the list page carry the only copy of their
	// thumbnail URL; detail pages for them have no image at all.
	order.Find(`a[href*="/dp/"], a[href*="/gp/product/"]`).Each(func(i int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		id := productIDFromURL(href)
		if id == "" {
			return
		}
		src, ok := link.Find("img").First().Attr("src")
		if !ok || src == "" {
			return
		}
		if _, seen := summary.InlineImages[id]; !seen {
			summary.InlineImages[id] = fullResImageURL(src)
		}
	})

	return summary, true
}

func parseOrderDate(text string) (models.Date, bool) {
	m := dateRe.FindStringSubmatch(text)
	if len(m) < 4 {
		return models.Date{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return models.Date{}, false
	}
	return models.NewDate(year, time.Month(month), day), true
}

// hasNextPage inspects the pagination control. A missing control or a
// disabled "next" entry means this is the last page for the year.
func hasNextPage(doc *goquery.Document) bool {
	next := doc.Find("ul.a-pagination li.a-last")
	if next.Length() == 0 {
		return false
	}
	if next.HasClass("a-disabled") {
		return false
	}
	return next.Find("a").Length() > 0
}

func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
