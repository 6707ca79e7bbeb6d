// Package app wires the pieces together: config manager, logging service,
// Telegram adapter, prober, monitor loop, control surface, health server
// and the sqlite ledger.
package app

import (
	"context"
	"fmt"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/control"
	"stockwatch/internal/health"
	"stockwatch/internal/metrics"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/probe"
	"stockwatch/internal/runtime/supervisor"
	"stockwatch/internal/storage"
	kit "stockwatch/internal/transport"
	telegram "stockwatch/internal/transport/telegram/adapter"
	logx "stockwatch/pkg/logx"
)

type App struct {
	mgr *config.Manager
	sup *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   storage.Store
	prober  probe.Prober
	mon     *monitor.Service
	router  *control.Router
	healthy *health.Server
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink disabled: the target chat must be set
	// before Apply() enables forwarding, or it warns about a missing target.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, adapter)
	log = log.With(logx.String("comp", "app"))

	if cfg.Telegram.LogChatID != 0 {
		logSvc.SetTelegramTarget(cfg.Telegram.LogChatID)
	}
	logSvc.Apply(mapLogConfig(cfg))

	metrics.Init()

	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Path != "" {
		log.Info("ledger enabled", logx.String("path", cfg.Storage.Path))
	}

	prober, err := newProber(cfg, log)
	if err != nil {
		return nil, err
	}

	mailer := notify.NewMailer(log.With(logx.String("comp", "mailer")))
	mon := monitor.NewService(mgr, prober, mailer, store, log.With(logx.String("comp", "monitor")))
	router := control.NewRouter(adapter, mgr, mon, store, log.With(logx.String("comp", "control")))

	var healthy *health.Server
	if cfg.Health.Enabled {
		addr := cfg.Health.Addr
		if addr == "" {
			addr = ":8080"
		}
		healthy = health.NewServer(addr, log.With(logx.String("comp", "health")))
	}

	return &App{
		mgr:     mgr,
		log:     log,
		logs:    logSvc,
		adapter: adapter,
		store:   store,
		prober:  prober,
		mon:     mon,
		router:  router,
		healthy: healthy,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || cfg.Logging.Level == "", // console on by default
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func newProber(cfg *config.Config, log logx.Logger) (probe.Prober, error) {
	navTimeout, err := config.ParseDurationOrDefault("probe.nav_timeout", cfg.Probe.NavTimeout, 45*time.Second)
	if err != nil {
		return nil, err
	}
	switch cfg.Probe.Mode {
	case "", "headless":
		return probe.NewHeadless(probe.HeadlessConfig{
			NavTimeout: navTimeout,
			UserAgent:  cfg.Probe.UserAgent,
		}, log.With(logx.String("comp", "probe"))), nil
	case "static":
		return probe.NewStatic(probe.StaticConfig{
			NavTimeout: navTimeout,
			UserAgent:  cfg.Probe.UserAgent,
		}, log.With(logx.String("comp", "probe"))), nil
	default:
		return nil, fmt.Errorf("unknown probe mode %q", cfg.Probe.Mode)
	}
}

// Done is closed when the app context unwinds (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.mgr.SetLogger(a.log.With(logx.String("comp", "config")))

	a.sup.Go("config.watch", a.mgr.Watch)
	a.sup.Go("control.router", a.router.Run)
	a.sup.Go("monitor.loop", a.mon.Run)
	if a.healthy != nil {
		a.sup.Go("health.http", a.healthy.Run)
	}

	// Hot-reload fan-out: apply logging changes live; everything else reads
	// the manager directly.
	sub := a.mgr.Subscribe(8)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.mgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts; only the latest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.logs.SetTelegramTarget(cfg.Telegram.LogChatID)
				a.logs.Apply(mapLogConfig(cfg))
				a.log.Info("config reloaded",
					logx.Int("products", len(cfg.Products)),
					logx.Int("interval_min", cfg.Monitor.IntervalMinutes))
			}
		}
	})

	a.log.Info("stockwatch started")
	return nil
}

// Stop cancels the run context and shuts components down in order, each
// step bounded so one component cannot stall the whole exit.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step failed", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached", logx.String("name", name))
		}
	}

	step("supervised", 10*time.Second, func(c context.Context) error {
		return a.sup.Wait(c)
	})
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("prober", 3*time.Second, func(context.Context) error {
		return a.prober.Close()
	})
	step("storage", 2*time.Second, func(context.Context) error {
		return a.store.Close()
	})
	step("logging", time.Second, func(context.Context) error {
		return a.logs.Close()
	})
	return nil
}
