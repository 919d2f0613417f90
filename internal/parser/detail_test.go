package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalDetailHTML() string {
	return `<!DOCTYPE html>
<html><body>
	<div class="a-box shipment">
		<div class="a-fixed-left-grid">
			<div class="a-fixed-left-grid-col a-col-left">
				<img src="https://img.example/I/one._SS160_.jpg">
			</div>
			<div class="a-fixed-left-grid-col a-col-right">
				<div class="a-row"><a class="a-link-normal" href="/dp/B00AAA1111/ref=x">単三電池パック、数量：3</a></div>
				<div class="a-row"><span class="a-size-small">販売: Amazon.co.jp</span></div>
				<div class="a-row"><span class="a-color-price">￥ 1,000</span></div>
			</div>
		</div>
		<div class="a-fixed-left-grid">
			<div class="a-fixed-left-grid-col a-col-left">
				<img src="https://img.example/I/two._SS160_.jpg">
			</div>
			<div class="a-fixed-left-grid-col a-col-right">
				<div class="a-row"><a class="a-link-normal" href="/gp/product/B00BBB2222">文庫本</a></div>
				<div class="a-row"><span class="a-size-small">販売:</span><span>書店センター</span></div>
				<div class="a-row"><span class="a-color-price">￥ 650</span></div>
			</div>
		</div>
	</div>
</body></html>`
}

func TestParseOrderDetailNormal(t *testing.T) {
	order, err := ParseOrderDetail(normalDetailHTML(), nil, baseURL)
	require.NoError(t, err)

	assert.Equal(t, KindNormal, order.Kind)
	require.Len(t, order.Items, 2)

	first := order.Items[0]
	assert.Equal(t, "単三電池パック", first.Name)
	assert.Equal(t, "B00AAA1111", first.ProductID)
	assert.Equal(t, "https://www.amazon.co.jp/dp/B00AAA1111/ref=x", first.URL)
	assert.Equal(t, 3, first.Quantity)
	assert.Equal(t, 3000, first.TotalPrice, "price must be quantity-scaled")
	assert.Equal(t, "Amazon.co.jp", first.Seller)
	assert.Equal(t, "https://img.example/I/one.jpg", first.ImageURL)

	second := order.Items[1]
	assert.Equal(t, "文庫本", second.Name)
	assert.Equal(t, "B00BBB2222", second.ProductID)
	assert.Equal(t, 1, second.Quantity)
	assert.Equal(t, 650, second.TotalPrice)
	assert.Equal(t, "書店センター", second.Seller, "seller label with empty value falls back to the next sibling")
}

func TestParseOrderDetailNormalMissingPriceDegrades(t *testing.T) {
	html := `<html><body>
	<div class="a-fixed-left-grid">
		<div class="a-fixed-left-grid-col a-col-right">
			<a href="/dp/B00CCC3333">値札のない商品</a>
		</div>
	</div>
</body></html>`

	order, err := ParseOrderDetail(html, nil, baseURL)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 0, order.Items[0].TotalPrice)
	assert.Empty(t, order.Items[0].Seller)
	assert.Empty(t, order.Items[0].ImageURL)
}

func digitalDetailHTML(withLink bool) string {
	name := `<b>Kindle本のタイトル</b>`
	if withLink {
		name = `<b><a href="/dp/B00DDD4444/ref=docs">Kindle本のタイトル</a></b>`
	}
	return `<!DOCTYPE html>
<html><body>
	<p>デジタル注文: 2015年3月14日</p>
	<table class="sample">
		<tr><td>` + name + `</td></tr>
		<tr><td>販売元: Amazon Services International, Inc.</td></tr>
		<tr><td><span class="a-color-price">￥ 500</span></td></tr>
	</table>
</body></html>`
}

func TestParseOrderDetailDigital(t *testing.T) {
	images := map[string]string{"B00DDD4444": "https://img.example/I/kindle.jpg"}

	order, err := ParseOrderDetail(digitalDetailHTML(true), images, baseURL)
	require.NoError(t, err)

	assert.Equal(t, KindDigital, order.Kind)
	require.Len(t, order.Items, 1)

	item := order.Items[0]
	assert.Equal(t, "Kindle本のタイトル", item.Name)
	assert.Equal(t, "B00DDD4444", item.ProductID)
	assert.Equal(t, "https://www.amazon.co.jp/dp/B00DDD4444/ref=docs", item.URL)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, 500, item.TotalPrice)
	assert.Equal(t, "Amazon Services International, Inc.", item.Seller)
	assert.Equal(t, "https://img.example/I/kindle.jpg", item.ImageURL)
}

func TestParseOrderDetailDigitalVanishedProduct(t *testing.T) {
	order, err := ParseOrderDetail(digitalDetailHTML(false), nil, baseURL)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)

	item := order.Items[0]
	assert.Equal(t, "Kindle本のタイトル", item.Name)
	assert.Empty(t, item.ProductID, "removed products keep an empty id")
	assert.Empty(t, item.URL)
	assert.Equal(t, 500, item.TotalPrice)
}

func TestParseOrderDetailDigitalImageFallback(t *testing.T) {
	// The single map entry wins even though its key does not match the
	// resolved product id.
	images := map[string]string{"B00ZZZ9999": "https://img.example/I/other.jpg"}

	order, err := ParseOrderDetail(digitalDetailHTML(true), images, baseURL)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "https://img.example/I/other.jpg", order.Items[0].ImageURL)
}

func TestParseOrderDetailErrors(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		wantErr error
	}{
		{
			name:    "service error banner",
			html:    `<html><body><div class="a-alert">問題が発生しました。後でもう一度試してください。</div></body></html>`,
			wantErr: ErrServiceBanner,
		},
		{
			name:    "no order content",
			html:    `<html><body><p>空のページ</p></body></html>`,
			wantErr: ErrNoOrderContent,
		},
		{
			name:    "digital marker but no summary table",
			html:    `<html><body><p>デジタル注文: 2015年3月14日</p></body></html>`,
			wantErr: ErrNoOrderContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOrderDetail(tt.html, nil, baseURL)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
