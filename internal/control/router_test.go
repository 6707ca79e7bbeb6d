package control

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/config"
	"stockwatch/internal/storage"
	kit "stockwatch/internal/transport"
	logx "stockwatch/pkg/logx"
)

const ownerID int64 = 42

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) lastSent(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeMonitor struct {
	triggers int
}

func (f *fakeMonitor) Trigger()             { f.triggers++ }
func (f *fakeMonitor) LastCycle() time.Time { return time.Time{} }
func (f *fakeMonitor) CycleCount() int64    { return 0 }

func newTestRouter(t *testing.T) (*Router, *fakeAdapter, *fakeMonitor, *config.Manager) {
	t.Helper()

	cfg := config.Config{
		Telegram: config.TelegramConfig{OwnerUserIDs: []int64{ownerID}},
		Monitor:  config.MonitorConfig{IntervalMinutes: 15, Pincode: "560001"},
		Products: []config.Product{
			{ID: "buttermilk", Name: "High Protein Buttermilk", URL: "https://shop.example.com/p/buttermilk"},
		},
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	mgr := config.NewManager(path)
	_, err = mgr.Load()
	require.NoError(t, err)

	store, err := storage.Open(storage.Config{}, logx.Nop())
	require.NoError(t, err)

	ad := &fakeAdapter{}
	mon := &fakeMonitor{}
	return NewRouter(ad, mgr, mon, store, logx.Nop()), ad, mon, mgr
}

func msgFrom(userID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: userID, FromID: userID, Text: text,
	}}
}

func cbFrom(userID int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", FromID: userID, ChatID: userID, MessageID: 7, Data: data,
	}}
}

func TestUnauthorizedSenderRejected(t *testing.T) {
	r, ad, mon, mgr := newTestRouter(t)

	r.dispatch(context.Background(), msgFrom(999, "/check"))

	assert.Equal(t, 0, mon.triggers)
	assert.Equal(t, "Not authorized.", ad.lastSent(t))

	r.dispatch(context.Background(), cbFrom(999, "menu:check"))
	assert.Equal(t, 0, mon.triggers)

	// Config untouched.
	assert.Len(t, mgr.Get().Products, 1)
}

func TestStartShowsMenu(t *testing.T) {
	r, ad, _, _ := newTestRouter(t)

	r.dispatch(context.Background(), msgFrom(ownerID, "/start"))
	assert.Contains(t, ad.lastSent(t), "Stockwatch")
}

func TestCheckCommandTriggersCycle(t *testing.T) {
	r, _, mon, _ := newTestRouter(t)

	r.dispatch(context.Background(), msgFrom(ownerID, "/check"))
	assert.Equal(t, 1, mon.triggers)
}

func TestAddProductFlow(t *testing.T) {
	r, ad, _, mgr := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, cbFrom(ownerID, "prod:add"))
	assert.Contains(t, ad.lastSent(t), "URL")

	// Malformed URL is rejected and the chat stays in the URL state.
	r.dispatch(ctx, msgFrom(ownerID, "not a url"))
	assert.Contains(t, ad.lastSent(t), "doesn't look like a product URL")

	r.dispatch(ctx, msgFrom(ownerID, "https://shop.example.com/p/lassi"))
	assert.Contains(t, ad.lastSent(t), "name")

	r.dispatch(ctx, msgFrom(ownerID, "Mango Lassi"))

	cfg := mgr.Get()
	require.Len(t, cfg.Products, 2)
	added := cfg.Products[1]
	assert.Equal(t, "mango-lassi", added.ID)
	assert.Equal(t, "Mango Lassi", added.Name)
	assert.Equal(t, "https://shop.example.com/p/lassi", added.URL)
}

func TestRemoveProductCallback(t *testing.T) {
	r, _, _, mgr := newTestRouter(t)

	r.dispatch(context.Background(), cbFrom(ownerID, "prod:rm:buttermilk"))
	assert.Empty(t, mgr.Get().Products)
}

func TestSetIntervalCallback(t *testing.T) {
	r, ad, _, mgr := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, cbFrom(ownerID, "intv:set:30"))
	assert.Equal(t, 30, mgr.Get().Monitor.IntervalMinutes)

	// 7 is not an allowed interval: rejected, config unchanged.
	r.dispatch(ctx, cbFrom(ownerID, "intv:set:7"))
	assert.Equal(t, 30, mgr.Get().Monitor.IntervalMinutes)
	require.NotEmpty(t, ad.answers)
	assert.Contains(t, ad.answers[len(ad.answers)-1], "interval_minutes")
}

func TestSetPincodeFlow(t *testing.T) {
	r, ad, _, mgr := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, msgFrom(ownerID, "/pincode"))
	assert.Contains(t, ad.lastSent(t), "pincode")

	r.dispatch(ctx, msgFrom(ownerID, "12ab56"))
	assert.Equal(t, "560001", mgr.Get().Monitor.Pincode)

	// The awaiting state was consumed; re-enter it and send a valid code.
	r.dispatch(ctx, msgFrom(ownerID, "/pincode"))
	r.dispatch(ctx, msgFrom(ownerID, "110001"))
	assert.Equal(t, "110001", mgr.Get().Monitor.Pincode)
}

func TestAddEmailFlow(t *testing.T) {
	r, ad, _, mgr := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, cbFrom(ownerID, "mail:add"))
	r.dispatch(ctx, msgFrom(ownerID, "not-an-email"))
	assert.Contains(t, ad.lastSent(t), "email address")
	assert.Empty(t, mgr.Get().Email.Recipients)

	// Recipients require smtp_host and sender to validate; set them first.
	_, err := mgr.Update(ctx, func(cfg *config.Config) error {
		cfg.Email.SMTPHost = "smtp.example.com"
		cfg.Email.Sender = "alerts@example.com"
		return nil
	})
	require.NoError(t, err)

	r.dispatch(ctx, cbFrom(ownerID, "mail:add"))
	r.dispatch(ctx, msgFrom(ownerID, "ops@example.com"))
	assert.Equal(t, []string{"ops@example.com"}, mgr.Get().Email.Recipients)

	// Duplicate is refused.
	r.dispatch(ctx, cbFrom(ownerID, "mail:add"))
	r.dispatch(ctx, msgFrom(ownerID, "ops@example.com"))
	assert.Len(t, mgr.Get().Email.Recipients, 1)
}

func TestRemoveEmailCallback(t *testing.T) {
	r, _, _, mgr := newTestRouter(t)
	ctx := context.Background()

	_, err := mgr.Update(ctx, func(cfg *config.Config) error {
		cfg.Email.SMTPHost = "smtp.example.com"
		cfg.Email.Sender = "alerts@example.com"
		cfg.Email.Recipients = []string{"ops@example.com"}
		return nil
	})
	require.NoError(t, err)

	r.dispatch(ctx, cbFrom(ownerID, "mail:rm:ops@example.com"))
	assert.Empty(t, mgr.Get().Email.Recipients)
}

func TestHistoryWithoutLedger(t *testing.T) {
	r, ad, _, _ := newTestRouter(t)

	r.dispatch(context.Background(), msgFrom(ownerID, "/history"))
	assert.Contains(t, ad.lastSent(t), "No transitions recorded yet.")
}

func TestCancelClearsAwaitingState(t *testing.T) {
	r, _, _, mgr := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, cbFrom(ownerID, "prod:add"))
	r.dispatch(ctx, msgFrom(ownerID, "/cancel"))
	r.dispatch(ctx, msgFrom(ownerID, "https://shop.example.com/p/x"))

	// The URL was not consumed as product input.
	assert.Len(t, mgr.Get().Products, 1)
}
