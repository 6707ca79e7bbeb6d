package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	logx "stockwatch/pkg/logx"
)

// HeadlessConfig controls the chromedp-backed prober.
type HeadlessConfig struct {
	NavTimeout time.Duration
	UserAgent  string
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

// Headless drives a headless Chrome via chromedp. One allocator is shared
// for the process lifetime; each scrape cycle opens a fresh browser session
// so the pincode (and any cookies) start clean.
type Headless struct {
	cfg         HeadlessConfig
	log         logx.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

func NewHeadless(cfg HeadlessConfig, log logx.Logger) *Headless {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1920,1080"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Headless{
		cfg:         cfg,
		log:         log,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close cancels the allocator context (terminates the browser pool).
func (h *Headless) Close() error {
	h.allocCancel()
	return nil
}

func (h *Headless) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskCtx, taskCancel := chromedp.NewContext(h.allocator)

	// Stop the browser when the cycle context goes away.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	s := &headlessSession{cfg: h.cfg, log: h.log, ctx: taskCtx, cancel: taskCancel}

	// Spin the browser up front so a broken Chrome install fails the cycle
	// early instead of on the first product.
	if err := s.run(ctx, s.setupActions()...); err != nil {
		taskCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type headlessSession struct {
	cfg    HeadlessConfig
	log    logx.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *headlessSession) Close() error {
	s.cancel()
	return nil
}

// run executes actions against the session browser, bounded by NavTimeout.
func (s *headlessSession) run(parent context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(s.ctx, s.cfg.NavTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tctx, actions...) }()

	select {
	case err := <-done:
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: navigation timeout: %v", ErrTransient, err)
			}
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil
	case <-parent.Done():
		return parent.Err()
	}
}

func (s *headlessSession) setupActions() []chromedp.Action {
	return []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			return emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx)
		}),
	}
}

// pincode selector candidates, most specific first.
var pincodeSelectors = []string{
	`input[placeholder*='pincode' i]`,
	`input[placeholder*='pin' i]`,
	`input[name*='pincode' i]`,
	`input[id*='pincode' i]`,
	`#pincode`,
	`#pin-code`,
	`#delivery-pincode`,
}

// SetPincode loads productURL, fills the storefront's pincode selector and
// clicks the matching suggestion. The pincode then applies site-wide for the
// session. A storefront without a pincode widget is not an error.
func (s *headlessSession) SetPincode(ctx context.Context, productURL, pincode string) error {
	var filled, clicked bool

	err := s.run(ctx,
		chromedp.Navigate(productURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(fillPincodeScript(pincode), &filled),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(clickPincodeOptionScript(pincode), &clicked),
		chromedp.Sleep(3*time.Second),
	)
	if err != nil {
		return err
	}
	if !filled {
		s.log.Debug("pincode input not found; continuing without location", logx.String("url", productURL))
		return nil
	}
	if !clicked {
		s.log.Warn("pincode suggestion not clickable; location may be unset", logx.String("pincode", pincode))
	}
	return nil
}

func (s *headlessSession) Check(ctx context.Context, t Target) (Reading, error) {
	var html string
	err := s.run(ctx,
		chromedp.Navigate(t.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Reading{}, err
	}

	r, err := parseStock(html)
	if err != nil {
		return Reading{}, err
	}
	r.CheckedAt = time.Now()
	return r, nil
}

// fillPincodeScript fills the first visible pincode input and fires an input
// event so framework bindings notice the change. Returns whether an input
// was found.
func fillPincodeScript(pincode string) string {
	sels := ""
	for i, sel := range pincodeSelectors {
		if i > 0 {
			sels += ","
		}
		sels += strconv.Quote(sel)
	}
	return `(function() {
	const sels = [` + sels + `];
	for (const sel of sels) {
		for (const el of document.querySelectorAll(sel)) {
			if (el.offsetParent === null) continue;
			el.focus();
			el.value = ` + strconv.Quote(pincode) + `;
			el.dispatchEvent(new Event('input', {bubbles: true}));
			return true;
		}
	}
	return false;
})()`
}

// clickPincodeOptionScript clicks the first visible suggestion containing
// the pincode text. Returns whether anything was clicked.
func clickPincodeOptionScript(pincode string) string {
	return `(function() {
	const pin = ` + strconv.Quote(pincode) + `;
	const candidates = document.querySelectorAll("li, [role='option'], [class*='option'], [class*='item'], [class*='dropdown']");
	for (const el of candidates) {
		if (el.offsetParent === null) continue;
		if ((el.textContent || '').includes(pin)) {
			el.click();
			return true;
		}
	}
	return false;
})()`
}
