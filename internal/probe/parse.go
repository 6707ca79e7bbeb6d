package probe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// priceRe matches rupee-style price strings ("₹ 299", "Rs. 1,299.00", "MRP: ₹599").
var priceRe = regexp.MustCompile(`(?:₹|Rs\.?|INR)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

// parseStock extracts the in-stock signal from rendered product page HTML.
//
// The heuristic mirrors how these storefronts mark availability: the page
// carries one primary Add-to-Cart control, and a sold-out product shows a
// "Sold Out" marker in the same section (or disables the control with a
// sold-out class). Pages without any cart control read as out of stock.
//
// An empty or obviously unrendered document is a transient failure, not a
// stock reading.
func parseStock(html string) (Reading, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: parse html: %v", ErrTransient, err)
	}
	body := doc.Find("body")
	if body.Length() == 0 || len(strings.TrimSpace(body.Text())) < 64 {
		return Reading{}, fmt.Errorf("%w: page not rendered", ErrTransient)
	}

	r := Reading{Price: findPrice(doc)}

	cart := findCartControl(doc)
	if cart == nil {
		// No Add-to-Cart control anywhere: the storefront hides it for
		// unavailable products.
		return r, nil
	}

	if soldOutNear(cart) || controlDisabled(cart) {
		return r, nil
	}

	r.InStock = true
	return r, nil
}

// findCartControl returns the first visible-ish element whose own text is an
// add-to-cart label.
func findCartControl(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("button, a, div, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.ToLower(strings.TrimSpace(s.Text()))
		// Match the control itself, not a container that merely includes it.
		if strings.Contains(txt, "add to cart") && len(txt) <= 40 {
			found = s
			return false
		}
		return true
	})
	return found
}

// soldOutNear reports whether a "Sold Out" marker appears within the cart
// control's enclosing section (up to three ancestor levels, matching how
// these pages group the title/price/cart block).
func soldOutNear(cart *goquery.Selection) bool {
	section := cart
	for i := 0; i < 3; i++ {
		parent := section.Parent()
		if parent.Length() == 0 {
			break
		}
		section = parent
	}
	out := false
	section.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.ToLower(strings.TrimSpace(s.Text()))
		if (txt == "sold out" || txt == "out of stock" || txt == "notify me") && s.Children().Length() == 0 {
			out = true
			return false
		}
		return true
	})
	return out
}

func controlDisabled(cart *goquery.Selection) bool {
	if _, ok := cart.Attr("disabled"); !ok {
		return false
	}
	class, _ := cart.Attr("class")
	class = strings.ToLower(class)
	for _, marker := range []string{"sold", "out", "unavailable", "disabled"} {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}

func findPrice(doc *goquery.Document) string {
	price := ""
	doc.Find("[class*=price], [id*=price]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := priceRe.FindString(strings.TrimSpace(s.Text())); m != "" {
			price = m
			return false
		}
		return true
	})
	if price == "" {
		if m := priceRe.FindString(doc.Find("body").Text()); m != "" {
			price = m
		}
	}
	return strings.Join(strings.Fields(price), " ")
}
