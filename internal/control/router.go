// Package control is the Telegram-facing operator surface: commands and
// inline menus for inspecting monitor status and editing the product list,
// alert recipients, pincode and check interval at runtime.
package control

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/storage"
	kit "stockwatch/internal/transport"
	logx "stockwatch/pkg/logx"
)

// Monitor is the slice of the check loop the control surface needs.
type Monitor interface {
	Trigger()
	LastCycle() time.Time
	CycleCount() int64
}

// awaiting values for the per-chat input state machine. A chat is either
// idle or waiting for exactly one free-text field; everything else goes
// through inline buttons.
const (
	awaitNone        = ""
	awaitProductURL  = "product_url"
	awaitProductName = "product_name"
	awaitEmail       = "email"
	awaitPincode     = "pincode"
)

type chatState struct {
	awaiting   string
	pendingURL string
}

type Router struct {
	adapter kit.Adapter
	mgr     *config.Manager
	mon     Monitor
	store   storage.Store
	log     logx.Logger

	mu     sync.Mutex
	states map[int64]*chatState
}

func NewRouter(adapter kit.Adapter, mgr *config.Manager, mon Monitor, store storage.Store, log logx.Logger) *Router {
	return &Router{
		adapter: adapter,
		mgr:     mgr,
		mon:     mon,
		store:   store,
		log:     log,
		states:  make(map[int64]*chatState),
	}
}

// Run starts the adapter and consumes its updates until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	updates := make(chan kit.Update, 64)
	if err := r.adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("start chat adapter: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := r.adapter.Stop(stopCtx)
			cancel()
			if err != nil {
				r.log.Warn("chat adapter stop", logx.Err(err))
			}
			return ctx.Err()

		case u := <-updates:
			r.dispatch(ctx, u)
		}
	}
}

// dispatch handles one update, recovering from handler panics so a single
// malformed interaction cannot take the router down.
func (r *Router) dispatch(ctx context.Context, u kit.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic",
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	switch u.Kind {
	case kit.UpdateMessage:
		if u.Message == nil {
			return
		}
		if !r.authorized(ctx, u.Message.FromID, "message") {
			r.reply(ctx, u.Message.ChatID, "Not authorized.")
			return
		}
		r.handleMessage(ctx, u.Message)

	case kit.UpdateCallback:
		if u.Callback == nil {
			return
		}
		if !r.authorized(ctx, u.Callback.FromID, "callback") {
			r.answer(ctx, u.Callback.ID, "Not authorized")
			return
		}
		r.handleCallback(ctx, u.Callback)
	}
}

// authorized checks the sender against the configured owner set. Unknown
// senders are logged and audited; with no owners configured everyone is
// rejected, which fails closed on a fresh install.
func (r *Router) authorized(ctx context.Context, userID int64, via string) bool {
	for _, id := range r.mgr.Get().Telegram.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	r.log.Warn("unauthorized access attempt",
		logx.Int64("user_id", userID),
		logx.String("via", via))
	r.audit(ctx, storage.AuditEntry{
		At:      time.Now(),
		ActorID: userID,
		Action:  "unauthorized_" + via,
		OK:      false,
		Error:   "not an owner",
	})
	return false
}

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		r.setAwaiting(m.ChatID, awaitNone, "")
		r.handleCommand(ctx, m, text)
		return
	}

	st := r.state(m.ChatID)
	if st.awaiting == awaitNone {
		r.reply(ctx, m.ChatID, "Use /start for the menu.")
		return
	}
	r.handleInput(ctx, m, st, text)
}

func (r *Router) state(chatID int64) chatState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[chatID]; ok {
		return *st
	}
	return chatState{}
}

func (r *Router) setAwaiting(chatID int64, awaiting, pendingURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if awaiting == awaitNone {
		delete(r.states, chatID)
		return
	}
	r.states[chatID] = &chatState{awaiting: awaiting, pendingURL: pendingURL}
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if _, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil); err != nil {
		r.log.Warn("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
}

func (r *Router) audit(ctx context.Context, e storage.AuditEntry) {
	if err := r.store.AppendAudit(ctx, e); err != nil && !errors.Is(err, storage.ErrDisabled) {
		r.log.Debug("audit append failed", logx.Err(err))
	}
}

// auditAction records a control-surface mutation attempt.
func (r *Router) auditAction(ctx context.Context, actor int64, action, target string, err error) {
	e := storage.AuditEntry{At: time.Now(), ActorID: actor, Action: action, Target: target, OK: err == nil}
	if err != nil {
		e.Error = err.Error()
	}
	r.audit(ctx, e)
}
