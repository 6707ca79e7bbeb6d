package notify

import (
	"fmt"
	"strings"
	"time"
)

// Alert describes one back-in-stock event to announce.
type Alert struct {
	ProductID   string
	ProductName string
	URL         string
	Price       string
	Pincode     string
	At          time.Time
}

func subject(a Alert) string {
	return fmt.Sprintf("Back in stock: %s", a.ProductName)
}

func body(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is back in stock.\n\n", a.ProductName)
	if a.Price != "" {
		fmt.Fprintf(&b, "Price: %s\n", a.Price)
	}
	if a.Pincode != "" {
		fmt.Fprintf(&b, "Delivery area: %s\n", a.Pincode)
	}
	fmt.Fprintf(&b, "Checked at: %s\n\n", a.At.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Order now: %s\n", a.URL)
	return b.String()
}
