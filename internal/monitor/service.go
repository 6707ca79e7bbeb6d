package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"stockwatch/internal/config"
	"stockwatch/internal/metrics"
	"stockwatch/internal/notify"
	"stockwatch/internal/probe"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

// AlertSender delivers a back-in-stock alert. Implemented by notify.Mailer.
type AlertSender interface {
	SendAlert(ctx context.Context, cfg config.EmailConfig, a Alert) (int, error)
}

// Alert aliases the notifier's alert payload so callers of this package
// don't import notify directly.
type Alert = notify.Alert

// Service runs the check loop. One goroutine owns the whole cycle; manual
// triggers and config reloads feed into the same select so cycles never
// overlap.
type Service struct {
	mgr    *config.Manager
	prober probe.Prober
	sender AlertSender
	store  storage.Store
	log    logx.Logger

	tracker *Tracker
	trigger chan struct{}

	lastCycle  atomic.Int64 // unix seconds, 0 until the first cycle finishes
	cycleCount atomic.Int64
}

func NewService(mgr *config.Manager, prober probe.Prober, sender AlertSender, store storage.Store, log logx.Logger) *Service {
	return &Service{
		mgr:     mgr,
		prober:  prober,
		sender:  sender,
		store:   store,
		log:     log,
		tracker: NewTracker(),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate cycle. Requests arriving while a cycle is
// already pending coalesce into one.
func (s *Service) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// LastCycle returns when the previous cycle finished, or the zero time if
// none has run yet.
func (s *Service) LastCycle() time.Time {
	ts := s.lastCycle.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

func (s *Service) CycleCount() int64 { return s.cycleCount.Load() }

// Tracker exposes the runtime stock state, read by the control surface.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Run blocks until ctx is cancelled. The first cycle starts immediately;
// afterwards the loop follows the configured interval, re-reading it when
// the config changes.
func (s *Service) Run(ctx context.Context) error {
	cfgCh := s.mgr.Subscribe(1)
	defer s.mgr.Unsubscribe(cfgCh)

	interval := intervalOf(s.mgr.Get())
	sched, err := cron.ParseStandard(fmt.Sprintf("@every %s", interval))
	if err != nil {
		return fmt.Errorf("parse check schedule: %w", err)
	}

	s.log.Info("monitor started", logx.Duration("interval", interval))
	s.seedFromLedger(ctx)
	s.cycle(ctx)

	timer := time.NewTimer(time.Until(sched.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			s.cycle(ctx)

		case <-s.trigger:
			s.log.Info("manual check triggered")
			s.cycle(ctx)

		case cfg := <-cfgCh:
			if next := intervalOf(cfg); next != interval {
				interval = next
				sched, err = cron.ParseStandard(fmt.Sprintf("@every %s", interval))
				if err != nil {
					return fmt.Errorf("parse check schedule: %w", err)
				}
				s.log.Info("check interval changed", logx.Duration("interval", interval))
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(sched.Next(time.Now())))
	}
}

// seedFromLedger restores cooldown stamps from the sqlite ledger. The config
// file carries them too, but the ledger survives hand edits of the file, so
// the later of the two wins.
func (s *Service) seedFromLedger(ctx context.Context) {
	cfg := s.mgr.Get()
	s.tracker.Sync(cfg.Products)
	for _, p := range cfg.Products {
		at, ok, err := s.store.LastNotified(ctx, p.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrDisabled) {
				s.log.Debug("ledger seed failed", logx.String("product", p.ID), logx.Err(err))
			}
			continue
		}
		if ok && at.After(p.LastNotified) {
			s.tracker.MarkNotified(p.ID, at)
		}
	}
}

func intervalOf(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Monitor.IntervalMinutes) * time.Minute
}

// checkResult carries per-product state back into the config file.
type checkResult struct {
	id           string
	inStock      bool
	price        string
	lastNotified time.Time
	markNotified bool
}

func (s *Service) cycle(ctx context.Context) {
	cfg := s.mgr.Get()
	if len(cfg.Products) == 0 {
		s.log.Debug("no products configured; skipping cycle")
		return
	}

	start := time.Now()
	s.log.Info("check cycle starting", logx.Int("products", len(cfg.Products)))

	session, err := s.prober.NewSession(ctx)
	if err != nil {
		metrics.ObserveProbeError("session")
		s.log.Error("probe session failed", logx.Err(err))
		return
	}
	defer session.Close()

	if err := session.SetPincode(ctx, cfg.Products[0].URL, cfg.Monitor.Pincode); err != nil {
		// A failed pincode still yields readings, just for the default area.
		metrics.ObserveProbeError("pincode")
		s.log.Warn("pincode not applied", logx.String("pincode", cfg.Monitor.Pincode), logx.Err(err))
	}

	s.tracker.Sync(cfg.Products)
	cooldown := cfg.CooldownOrDefault()

	var results []checkResult
	for _, p := range cfg.Products {
		if ctx.Err() != nil {
			return
		}
		res, ok := s.checkProduct(ctx, session, cfg, p, cooldown)
		if ok {
			results = append(results, res)
		}
	}

	s.persistResults(ctx, results)

	s.lastCycle.Store(time.Now().Unix())
	s.cycleCount.Add(1)
	metrics.ObserveCycle(time.Since(start))
	s.log.Info("check cycle finished",
		logx.Int("checked", len(results)),
		logx.Int("skipped", len(cfg.Products)-len(results)),
		logx.Duration("took", time.Since(start)))
}

func (s *Service) checkProduct(ctx context.Context, session probe.Session, cfg *config.Config, p config.Product, cooldown time.Duration) (checkResult, bool) {
	reading, err := session.Check(ctx, probe.Target{ID: p.ID, Name: p.Name, URL: p.URL})
	if err != nil {
		// A failed probe is no reading: the product keeps its last known
		// state rather than being guessed out of stock.
		kind := "error"
		if errors.Is(err, probe.ErrTransient) {
			kind = "transient"
		}
		metrics.ObserveCheck(p.ID, kind)
		metrics.ObserveProbeError(kind)
		s.log.Warn("product check failed",
			logx.String("product", p.ID),
			logx.String("kind", kind),
			logx.Err(err))
		return checkResult{}, false
	}

	result := "out_of_stock"
	if reading.InStock {
		result = "in_stock"
	}
	metrics.ObserveCheck(p.ID, result)

	out := s.tracker.Observe(p.ID, reading, cooldown, reading.CheckedAt)
	res := checkResult{id: p.ID, inStock: reading.InStock, price: reading.Price, lastNotified: p.LastNotified}

	if out.Transitioned {
		metrics.ObserveTransition(p.ID, reading.InStock)
		s.log.Info("stock transition",
			logx.String("product", p.ID),
			logx.Bool("in_stock", reading.InStock),
			logx.String("price", reading.Price))
		if err := s.store.RecordTransition(ctx, storage.Transition{
			ProductID: p.ID,
			At:        reading.CheckedAt,
			InStock:   reading.InStock,
			Price:     reading.Price,
		}); err != nil && !errors.Is(err, storage.ErrDisabled) {
			s.log.Warn("transition not recorded", logx.String("product", p.ID), logx.Err(err))
		}
	}

	if out.Notify {
		sent, err := s.sender.SendAlert(ctx, cfg.Email, Alert{
			ProductID:   p.ID,
			ProductName: p.Name,
			URL:         p.URL,
			Price:       reading.Price,
			Pincode:     cfg.Monitor.Pincode,
			At:          reading.CheckedAt,
		})
		if err != nil {
			s.log.Error("alert not delivered", logx.String("product", p.ID), logx.Err(err))
		}
		if sent > 0 {
			s.tracker.MarkNotified(p.ID, reading.CheckedAt)
			res.lastNotified = reading.CheckedAt
			res.markNotified = true
			if err := s.store.SetLastNotified(ctx, p.ID, reading.CheckedAt); err != nil && !errors.Is(err, storage.ErrDisabled) {
				s.log.Warn("last-notified not recorded", logx.String("product", p.ID), logx.Err(err))
			}
		}
	}

	return res, true
}

// persistResults writes the cycle's readings back into the config file so a
// restart resumes with current stock state and cooldown stamps.
func (s *Service) persistResults(ctx context.Context, results []checkResult) {
	if len(results) == 0 {
		return
	}
	_, err := s.mgr.Update(ctx, func(cfg *config.Config) error {
		for _, r := range results {
			i := cfg.FindProduct(r.id)
			if i < 0 {
				continue // removed mid-cycle
			}
			cfg.Products[i].InStock = r.inStock
			if r.price != "" {
				cfg.Products[i].LastPrice = r.price
			}
			if r.markNotified {
				cfg.Products[i].LastNotified = r.lastNotified
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("product state not persisted", logx.Err(err))
	}
}
