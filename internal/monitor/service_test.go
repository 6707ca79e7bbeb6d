package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/config"
	"stockwatch/internal/probe"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

type fakeSession struct {
	readings map[string]probe.Reading
	errs     map[string]error
	pincode  string
	checks   int
}

func (s *fakeSession) SetPincode(_ context.Context, _ string, pincode string) error {
	s.pincode = pincode
	return nil
}

func (s *fakeSession) Check(_ context.Context, t probe.Target) (probe.Reading, error) {
	s.checks++
	if err := s.errs[t.ID]; err != nil {
		return probe.Reading{}, err
	}
	r := s.readings[t.ID]
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now()
	}
	return r, nil
}

func (s *fakeSession) Close() error { return nil }

type fakeProber struct {
	session *fakeSession
}

func (p *fakeProber) NewSession(context.Context) (probe.Session, error) { return p.session, nil }
func (p *fakeProber) Close() error                                      { return nil }

type fakeSender struct {
	alerts []Alert
	sent   int
}

func (f *fakeSender) SendAlert(_ context.Context, _ config.EmailConfig, a Alert) (int, error) {
	f.alerts = append(f.alerts, a)
	return f.sent, nil
}

func writeConfig(t *testing.T, cfg config.Config) string {
	t.Helper()
	raw, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func newTestService(t *testing.T, cfg config.Config, session *fakeSession, sender *fakeSender) (*Service, *config.Manager) {
	t.Helper()
	mgr := config.NewManager(writeConfig(t, cfg))
	_, err := mgr.Load()
	require.NoError(t, err)

	store, err := storage.Open(storage.Config{}, logx.Nop())
	require.NoError(t, err)

	return NewService(mgr, &fakeProber{session: session}, sender, store, logx.Nop()), mgr
}

func baseConfig() config.Config {
	return config.Config{
		Monitor: config.MonitorConfig{IntervalMinutes: 15, Pincode: "560001"},
		Products: []config.Product{
			{ID: "buttermilk", Name: "High Protein Buttermilk", URL: "https://shop.example.com/p/buttermilk"},
		},
	}
}

func TestCycleNotifiesOnBackInStock(t *testing.T) {
	session := &fakeSession{readings: map[string]probe.Reading{
		"buttermilk": {InStock: true, Price: "₹ 399"},
	}}
	sender := &fakeSender{sent: 1}
	svc, mgr := newTestService(t, baseConfig(), session, sender)

	svc.cycle(context.Background())

	require.Len(t, sender.alerts, 1)
	assert.Equal(t, "buttermilk", sender.alerts[0].ProductID)
	assert.Equal(t, "₹ 399", sender.alerts[0].Price)
	assert.Equal(t, "560001", sender.alerts[0].Pincode)
	assert.Equal(t, "560001", session.pincode)

	// State lands back in the config file.
	cfg := mgr.Get()
	require.GreaterOrEqual(t, cfg.FindProduct("buttermilk"), 0)
	p := cfg.Products[cfg.FindProduct("buttermilk")]
	assert.True(t, p.InStock)
	assert.Equal(t, "₹ 399", p.LastPrice)
	assert.False(t, p.LastNotified.IsZero())

	// Still in stock next cycle: no repeat alert.
	svc.cycle(context.Background())
	assert.Len(t, sender.alerts, 1)
}

func TestCycleCooldownSuppressesRepeatAlert(t *testing.T) {
	cfg := baseConfig()
	cfg.Products[0].LastNotified = time.Now().Add(-time.Hour) // within the 6h default

	session := &fakeSession{readings: map[string]probe.Reading{
		"buttermilk": {InStock: true},
	}}
	sender := &fakeSender{sent: 1}
	svc, _ := newTestService(t, cfg, session, sender)

	svc.cycle(context.Background())
	assert.Empty(t, sender.alerts)
}

func TestCycleOutOfStockRearms(t *testing.T) {
	cfg := baseConfig()
	cfg.Products[0].InStock = true

	session := &fakeSession{readings: map[string]probe.Reading{
		"buttermilk": {InStock: false},
	}}
	sender := &fakeSender{sent: 1}
	svc, mgr := newTestService(t, cfg, session, sender)

	svc.cycle(context.Background())
	assert.Empty(t, sender.alerts)

	got := mgr.Get()
	assert.False(t, got.Products[0].InStock)

	// Back in stock later (past cooldown): alert fires.
	session.readings["buttermilk"] = probe.Reading{InStock: true, CheckedAt: time.Now().Add(7 * time.Hour)}
	svc.cycle(context.Background())
	assert.Len(t, sender.alerts, 1)
}

func TestCycleTransientErrorKeepsState(t *testing.T) {
	cfg := baseConfig()
	cfg.Products[0].InStock = true
	cfg.Products[0].LastPrice = "₹ 399"

	session := &fakeSession{errs: map[string]error{"buttermilk": probe.ErrTransient}}
	sender := &fakeSender{sent: 1}
	svc, mgr := newTestService(t, cfg, session, sender)

	svc.cycle(context.Background())

	assert.Empty(t, sender.alerts)
	got := mgr.Get()
	assert.True(t, got.Products[0].InStock, "failed probe must not flip state")
	assert.Equal(t, "₹ 399", got.Products[0].LastPrice)
}

func TestCycleUndeliveredAlertLeavesCooldownUnset(t *testing.T) {
	session := &fakeSession{readings: map[string]probe.Reading{
		"buttermilk": {InStock: true},
	}}
	sender := &fakeSender{sent: 0} // every recipient failed
	svc, mgr := newTestService(t, baseConfig(), session, sender)

	svc.cycle(context.Background())

	require.Len(t, sender.alerts, 1)
	got := mgr.Get()
	assert.True(t, got.Products[0].LastNotified.IsZero(),
		"cooldown must only start after a delivered alert")
}

func TestSeedFromLedgerRestoresCooldown(t *testing.T) {
	ctx := context.Background()

	mgr := config.NewManager(writeConfig(t, baseConfig()))
	_, err := mgr.Load()
	require.NoError(t, err)

	store, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "ledger.db")}, logx.Nop())
	require.NoError(t, err)
	defer store.Close()

	// The ledger remembers an alert the config file does not.
	require.NoError(t, store.SetLastNotified(ctx, "buttermilk", time.Now().Add(-time.Hour)))

	session := &fakeSession{readings: map[string]probe.Reading{
		"buttermilk": {InStock: true},
	}}
	sender := &fakeSender{sent: 1}
	svc := NewService(mgr, &fakeProber{session: session}, sender, store, logx.Nop())

	svc.seedFromLedger(ctx)
	svc.cycle(ctx)

	assert.Empty(t, sender.alerts, "ledger cooldown stamp must gate the alert")
}

func TestTriggerCoalesces(t *testing.T) {
	svc := &Service{trigger: make(chan struct{}, 1)}
	svc.Trigger()
	svc.Trigger()
	svc.Trigger()

	<-svc.trigger
	select {
	case <-svc.trigger:
		t.Fatal("pending triggers should coalesce into one")
	default:
	}
}
