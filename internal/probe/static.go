package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	logx "stockwatch/pkg/logx"
)

// StaticConfig controls the plain-HTTP prober.
type StaticConfig struct {
	NavTimeout time.Duration
	UserAgent  string
}

// Static fetches product pages over plain HTTP. It is cheap and needs no
// browser, but it cannot set a delivery pincode and only works for
// storefronts that render availability server-side.
type Static struct {
	cfg StaticConfig
	log logx.Logger
}

func NewStatic(cfg StaticConfig, log logx.Logger) *Static {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Static{cfg: cfg, log: log}
}

func (s *Static) Close() error { return nil }

func (s *Static) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.cfg.NavTimeout)
	return &staticSession{log: s.log, collector: c}, nil
}

type staticSession struct {
	log       logx.Logger
	collector *colly.Collector
}

func (s *staticSession) Close() error { return nil }

// SetPincode is a no-op: without a browser there is no widget to drive.
func (s *staticSession) SetPincode(_ context.Context, _ string, pincode string) error {
	s.log.Debug("static prober cannot set pincode; availability is location-agnostic",
		logx.String("pincode", pincode))
	return nil
}

func (s *staticSession) Check(ctx context.Context, t Target) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	var body []byte
	c := s.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	if err := c.Visit(t.URL); err != nil {
		return Reading{}, fmt.Errorf("%w: fetch %s: %v", ErrTransient, t.URL, err)
	}
	c.Wait()

	if len(body) == 0 {
		return Reading{}, fmt.Errorf("%w: empty response from %s", ErrTransient, t.URL)
	}

	r, err := parseStock(string(body))
	if err != nil {
		return Reading{}, err
	}
	r.CheckedAt = time.Now()
	return r, nil
}
