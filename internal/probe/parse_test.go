package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(product string) string {
	return `<html><body>
<header>Fresh Dairy Storefront — milk, butter, cheese and more delivered to your doorstep every morning.</header>
` + product + `
<footer>Contact us | Terms of service | Privacy policy</footer>
</body></html>`
}

func TestParseStockInStock(t *testing.T) {
	html := page(`
<div class="product">
  <h1>High Protein Buttermilk</h1>
  <span class="product-price">₹ 399</span>
  <button class="add-btn">Add to Cart</button>
</div>`)

	r, err := parseStock(html)
	require.NoError(t, err)
	assert.True(t, r.InStock)
	assert.Equal(t, "₹ 399", r.Price)
}

func TestParseStockSoldOutMarker(t *testing.T) {
	html := page(`
<div class="product">
  <h1>High Protein Paneer</h1>
  <span class="product-price">Rs. 1,299.00</span>
  <div class="availability"><span>Sold Out</span></div>
  <button class="add-btn">Add to Cart</button>
</div>`)

	r, err := parseStock(html)
	require.NoError(t, err)
	assert.False(t, r.InStock)
	assert.Equal(t, "Rs. 1,299.00", r.Price)
}

func TestParseStockNotifyMeMarker(t *testing.T) {
	html := page(`
<div class="product">
  <h1>Chocolate Milkshake</h1>
  <span class="price">₹89</span>
  <button class="add-btn">Add to Cart</button>
  <a href="#notify">Notify Me</a>
</div>`)

	r, err := parseStock(html)
	require.NoError(t, err)
	assert.False(t, r.InStock)
}

func TestParseStockDisabledControl(t *testing.T) {
	html := page(`
<div class="product">
  <h1>Gouda Cheese Wedge</h1>
  <button class="add-btn sold-out" disabled>Add to Cart</button>
</div>`)

	r, err := parseStock(html)
	require.NoError(t, err)
	assert.False(t, r.InStock)
}

func TestParseStockNoCartControl(t *testing.T) {
	html := page(`
<div class="product">
  <h1>Seasonal Mango Lassi</h1>
  <p>This product is currently unavailable in your area.</p>
</div>`)

	r, err := parseStock(html)
	require.NoError(t, err)
	assert.False(t, r.InStock)
}

func TestParseStockUnrenderedPage(t *testing.T) {
	_, err := parseStock(`<html><body><div id="root"></div></body></html>`)
	require.ErrorIs(t, err, ErrTransient)
}

func TestFindPriceFallsBackToBodyText(t *testing.T) {
	html := page(`
<div class="product">
  <h1>Organic Ghee Jar</h1>
  <p>Special offer: INR 549 only, this week.</p>
  <button>Add to Cart</button>
</div>`)

	r, err := parseStock(html)
	require.NoError(t, err)
	assert.Equal(t, "INR 549", r.Price)
}
