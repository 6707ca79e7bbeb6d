// Package probe loads a product page and reads its stock indicator.
//
// Two implementations exist: a headless-Chrome prober for storefronts that
// render stock state client-side (and need a delivery pincode set on the
// browser session), and a static HTTP prober for pages that render
// server-side. Both feed the same HTML parser.
package probe

import (
	"context"
	"errors"
	"time"
)

// ErrTransient marks failures worth retrying on the next scheduled cycle:
// navigation timeouts, missing pages, half-rendered DOMs. Callers must not
// treat a transient failure as a stock reading.
var ErrTransient = errors.New("transient probe failure")

// Target identifies one product page to check.
type Target struct {
	ID   string
	Name string
	URL  string
}

// Reading is the extracted stock signal for one target.
type Reading struct {
	InStock   bool
	Price     string
	CheckedAt time.Time
}

// Prober opens per-cycle sessions. A session carries whatever page state the
// storefront keeps per browser session (the delivery pincode, cookies).
type Prober interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session checks targets sequentially within one scrape cycle.
type Session interface {
	// SetPincode establishes the delivery location for the session, using the
	// given product page to reach the pincode selector. Implementations that
	// have no session state treat this as a no-op.
	SetPincode(ctx context.Context, productURL, pincode string) error

	Check(ctx context.Context, t Target) (Reading, error)

	Close() error
}
