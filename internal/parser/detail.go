package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseOrderDetail parses one order detail page into its line items.
// The layout is dispatched once: pages carrying the digital order
// marker use the single-item summary-table format, everything else the
// multi-item grid format. inlineImages comes from the list page and is
// only consulted for digital orders.
func ParseOrderDetail(html string, inlineImages map[string]string, baseURL string) (*Order, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}

	body := doc.Text()
	if strings.Contains(body, "問題が発生しました") {
		return nil, ErrServiceBanner
	}

	if strings.Contains(body, "デジタル注文") {
		return parseDigitalOrder(doc, inlineImages, baseURL)
	}
	return parseNormalOrder(doc, baseURL)
}

// parseNormalOrder handles the multi-item physical order layout: one
// grid block per line item.
func parseNormalOrder(doc *goquery.Document, baseURL string) (*Order, error) {
	order := &Order{Kind: KindNormal}

	doc.Find("div.a-fixed-left-grid").Each(func(i int, block *goquery.Selection) {
		item, ok := parseItemBlock(block, baseURL)
		if !ok {
			return
		}
		order.Items = append(order.Items, item)
	})

	if len(order.Items) == 0 {
		return nil, ErrNoOrderContent
	}
	return order, nil
}

func parseItemBlock(block *goquery.Selection, baseURL string) (Item, bool) {
	link := block.Find(`.a-col-right a[href*="/dp/"], .a-col-right a[href*="/gp/product/"]`).First()
	if link.Length() == 0 {
		return Item{}, false
	}

	href, _ := link.Attr("href")
	name, quantity := splitQuantity(strings.TrimSpace(link.Text()))
	if name == "" {
		return Item{}, false
	}

	item := Item{
		Name:      name,
		ProductID: productIDFromURL(href),
		URL:       absoluteURL(baseURL, href),
		Quantity:  quantity,
	}

	// The price element shows the unit price; the harvested value is
	// the quantity-scaled total. A missing price degrades the item to
	// zero rather than failing the order.
	if unit, ok := parseYen(block.Find(".a-color-price").First().Text()); ok {
		item.TotalPrice = unit * quantity
	}

	item.Seller = extractSeller(block)

	if src, ok := block.Find(".a-col-left img").First().Attr("src"); ok && src != "" {
		item.ImageURL = fullResImageURL(src)
	}

	return item, true
}

// extractSeller finds the first "販売:" line in an item block. When the
// label's own element carries no value the seller name sits in the next
// sibling element.
func extractSeller(block *goquery.Selection) string {
	var seller string
	block.Find("span, div").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if !strings.HasPrefix(text, "販売:") && !strings.HasPrefix(text, "販売：") {
			return true
		}
		value := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "販売:"), "販売："))
		if value == "" {
			value = strings.TrimSpace(sel.Next().Text())
		}
		seller = value
		return false
	})
	return seller
}

// parseDigitalOrder handles the single-item digital layout: a fixed
// shape summary table with seller, price and name. A product that has
// been removed from the catalog has no link; its id, url and category
// stay empty, which is not an error.
func parseDigitalOrder(doc *goquery.Document, inlineImages map[string]string, baseURL string) (*Order, error) {
	table := doc.Find("table").FilterFunction(func(i int, t *goquery.Selection) bool {
		return strings.Contains(t.Text(), "販売元")
	}).First()
	if table.Length() == 0 {
		return nil, ErrNoOrderContent
	}

	item := Item{Quantity: 1}

	nameSel := table.Find("b").First()
	item.Name = strings.TrimSpace(nameSel.Text())

	if href, ok := nameSel.Find("a").First().Attr("href"); ok && href != "" {
		item.ProductID = productIDFromURL(href)
		item.URL = absoluteURL(baseURL, href)
	} else if href, ok := nameSel.Closest("a").Attr("href"); ok && href != "" {
		item.ProductID = productIDFromURL(href)
		item.URL = absoluteURL(baseURL, href)
	}

	table.Find("td, span").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if strings.HasPrefix(text, "販売元") {
			value := strings.TrimLeft(strings.TrimPrefix(text, "販売元"), ":： 　")
			item.Seller = strings.TrimSpace(value)
			return false
		}
		return true
	})

	if price, ok := parseYen(table.Find(".a-color-price").First().Text()); ok {
		item.TotalPrice = price
	}

	item.ImageURL = digitalImageURL(item.ProductID, inlineImages)

	if item.Name == "" {
		return nil, ErrNoOrderContent
	}

	return &Order{Kind: KindDigital, Items: []Item{item}}, nil
}

// digitalImageURL picks the thumbnail for a digital item from the list
// page's image map. When no entry matches the product id, any entry is
// better than none, so the first one wins.
func digitalImageURL(productID string, inlineImages map[string]string) string {
	if url, ok := inlineImages[productID]; ok {
		return url
	}
	for _, url := range inlineImages {
		return url
	}
	return ""
}
