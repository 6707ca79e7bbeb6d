package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stockwatch/internal/config"
	kit "stockwatch/internal/transport"
	logx "stockwatch/pkg/logx"
	"stockwatch/pkg/tgui"
)

func (r *Router) handleCommand(ctx context.Context, m *kit.Message, text string) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	// Strip "@botname" suffix used in group chats.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	to := kit.ChatTarget{ChatID: m.ChatID}
	cfg := r.mgr.Get()

	switch cmd {
	case "/start", "/help", "/menu":
		r.send(ctx, to, mainMenu())
	case "/status":
		r.send(ctx, to, statusMessage(cfg, r.mon))
	case "/products":
		r.send(ctx, to, productsMessage(cfg))
	case "/emails":
		r.send(ctx, to, emailsMessage(cfg))
	case "/interval":
		r.send(ctx, to, intervalMessage(cfg))
	case "/history":
		r.send(ctx, to, r.historyMessage(ctx))
	case "/pincode":
		r.setAwaiting(m.ChatID, awaitPincode, "")
		r.send(ctx, to, pincodePrompt(cfg))
	case "/check":
		r.triggerCheck(ctx, m.FromID)
		r.reply(ctx, m.ChatID, "Check triggered; running now.")
	case "/cancel":
		r.reply(ctx, m.ChatID, "Cancelled.")
	default:
		r.reply(ctx, m.ChatID, "Unknown command. Use /start for the menu.")
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	scope, action, payload := tgui.SplitData(cb.Data)
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	cfg := r.mgr.Get()

	switch scope {
	case scopeMenu:
		r.menuCallback(ctx, cb, ref, cfg, action)

	case scopeProduct:
		switch action {
		case "add":
			r.setAwaiting(cb.ChatID, awaitProductURL, "")
			r.answer(ctx, cb.ID, "")
			r.reply(ctx, cb.ChatID, "Send the product page URL, or /cancel.")
		case "rm":
			err := r.removeProduct(ctx, cb.FromID, payload)
			r.answerResult(ctx, cb.ID, "Product removed", err)
			r.edit(ctx, ref, productsMessage(r.mgr.Get()))
		default:
			r.answer(ctx, cb.ID, "")
		}

	case scopeEmail:
		switch action {
		case "add":
			r.setAwaiting(cb.ChatID, awaitEmail, "")
			r.answer(ctx, cb.ID, "")
			r.reply(ctx, cb.ChatID, "Send the recipient email address, or /cancel.")
		case "rm":
			err := r.removeEmail(ctx, cb.FromID, payload)
			r.answerResult(ctx, cb.ID, "Recipient removed", err)
			r.edit(ctx, ref, emailsMessage(r.mgr.Get()))
		default:
			r.answer(ctx, cb.ID, "")
		}

	case scopeInterval:
		if action != "set" {
			r.answer(ctx, cb.ID, "")
			return
		}
		minutes, convErr := strconv.Atoi(payload)
		var err error
		if convErr != nil {
			err = fmt.Errorf("bad interval payload %q", payload)
		} else {
			err = r.setInterval(ctx, cb.FromID, minutes)
		}
		r.answerResult(ctx, cb.ID, "Interval updated", err)
		r.edit(ctx, ref, intervalMessage(r.mgr.Get()))

	default:
		r.answer(ctx, cb.ID, "")
	}
}

func (r *Router) menuCallback(ctx context.Context, cb *kit.Callback, ref kit.MessageRef, cfg *config.Config, action string) {
	switch action {
	case "main":
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, ref, mainMenu())
	case "status":
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, ref, statusMessage(cfg, r.mon))
	case "products":
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, ref, productsMessage(cfg))
	case "emails":
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, ref, emailsMessage(cfg))
	case "interval":
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, ref, intervalMessage(cfg))
	case "history":
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, ref, r.historyMessage(ctx))
	case "pincode":
		r.setAwaiting(cb.ChatID, awaitPincode, "")
		r.answer(ctx, cb.ID, "")
		r.send(ctx, kit.ChatTarget{ChatID: cb.ChatID}, pincodePrompt(cfg))
	case "check":
		r.triggerCheck(ctx, cb.FromID)
		r.answer(ctx, cb.ID, "Check triggered")
		r.edit(ctx, ref, statusMessage(cfg, r.mon))
	default:
		r.answer(ctx, cb.ID, "")
	}
}

// handleInput consumes free text for whichever field the chat is awaiting.
func (r *Router) handleInput(ctx context.Context, m *kit.Message, st chatState, text string) {
	switch st.awaiting {
	case awaitProductURL:
		if err := config.ValidateProductURL(text); err != nil {
			r.reply(ctx, m.ChatID, "That doesn't look like a product URL. Send an https:// link, or /cancel.")
			return
		}
		r.setAwaiting(m.ChatID, awaitProductName, text)
		r.reply(ctx, m.ChatID, "Got it. Now send a short name for the product.")

	case awaitProductName:
		err := r.addProduct(ctx, m.FromID, st.pendingURL, text)
		r.setAwaiting(m.ChatID, awaitNone, "")
		if err != nil {
			r.reply(ctx, m.ChatID, "Could not add product: "+err.Error())
			return
		}
		r.send(ctx, kit.ChatTarget{ChatID: m.ChatID}, productsMessage(r.mgr.Get()))

	case awaitEmail:
		err := r.addEmail(ctx, m.FromID, text)
		r.setAwaiting(m.ChatID, awaitNone, "")
		if err != nil {
			if errors.Is(err, config.ErrValidation) {
				r.reply(ctx, m.ChatID, "That doesn't look like an email address. Try again via the menu.")
				return
			}
			r.reply(ctx, m.ChatID, "Could not add recipient: "+err.Error())
			return
		}
		r.send(ctx, kit.ChatTarget{ChatID: m.ChatID}, emailsMessage(r.mgr.Get()))

	case awaitPincode:
		err := r.setPincode(ctx, m.FromID, text)
		r.setAwaiting(m.ChatID, awaitNone, "")
		if err != nil {
			if errors.Is(err, config.ErrValidation) {
				r.reply(ctx, m.ChatID, "Pincode must be exactly 6 digits. Try again via the menu.")
				return
			}
			r.reply(ctx, m.ChatID, "Could not set pincode: "+err.Error())
			return
		}
		r.reply(ctx, m.ChatID, "Pincode updated. It applies from the next check.")
	}
}

// historyMessage renders the last few recorded stock transitions per
// product, straight from the sqlite ledger.
func (r *Router) historyMessage(ctx context.Context) tgui.Message {
	cfg := r.mgr.Get()
	b := tgui.New().Title("🕘", "Recent transitions")

	found := false
	for _, p := range cfg.Products {
		transitions, err := r.store.RecentTransitions(ctx, p.ID, 5)
		if err != nil {
			r.log.Debug("history lookup failed", logx.String("product", p.ID), logx.Err(err))
			continue
		}
		if len(transitions) == 0 {
			continue
		}
		found = true
		b.RawLine(tgui.B(p.Name).String())
		for _, tr := range transitions {
			state := "out of stock"
			if tr.InStock {
				state = "in stock"
			}
			line := tr.At.Format("Jan 02 15:04") + " · " + state
			if tr.Price != "" {
				line += " (" + tr.Price + ")"
			}
			b.Line(line)
		}
		b.Blank()
	}
	if !found {
		b.Line("No transitions recorded yet.")
	}
	return b.Inline(backRow()).Build()
}

// --- mutations ------------------------------------------------------------

func (r *Router) addProduct(ctx context.Context, actor int64, url, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("empty product name")
	}

	var id string
	_, err := r.mgr.Update(ctx, func(cfg *config.Config) error {
		id = uniqueProductID(cfg, slugify(name))
		cfg.Products = append(cfg.Products, config.Product{ID: id, Name: name, URL: url})
		return nil
	})
	r.auditAction(ctx, actor, "product_add", id, err)
	if err == nil {
		r.log.Info("product added", logx.String("product", id), logx.Int64("actor", actor))
	}
	return err
}

func (r *Router) removeProduct(ctx context.Context, actor int64, id string) error {
	_, err := r.mgr.Update(ctx, func(cfg *config.Config) error {
		i := cfg.FindProduct(id)
		if i < 0 {
			return fmt.Errorf("unknown product %q", id)
		}
		cfg.Products = append(cfg.Products[:i], cfg.Products[i+1:]...)
		return nil
	})
	r.auditAction(ctx, actor, "product_remove", id, err)
	return err
}

func (r *Router) addEmail(ctx context.Context, actor int64, addr string) error {
	addr = strings.TrimSpace(addr)
	if err := config.ValidateEmail(addr); err != nil {
		r.auditAction(ctx, actor, "email_add", addr, err)
		return err
	}

	_, err := r.mgr.Update(ctx, func(cfg *config.Config) error {
		for _, existing := range cfg.Email.Recipients {
			if strings.EqualFold(existing, addr) {
				return fmt.Errorf("%s is already a recipient", addr)
			}
		}
		cfg.Email.Recipients = append(cfg.Email.Recipients, addr)
		return nil
	})
	r.auditAction(ctx, actor, "email_add", addr, err)
	return err
}

func (r *Router) removeEmail(ctx context.Context, actor int64, addr string) error {
	_, err := r.mgr.Update(ctx, func(cfg *config.Config) error {
		for i, existing := range cfg.Email.Recipients {
			if strings.EqualFold(existing, addr) {
				cfg.Email.Recipients = append(cfg.Email.Recipients[:i], cfg.Email.Recipients[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%s is not a recipient", addr)
	})
	r.auditAction(ctx, actor, "email_remove", addr, err)
	return err
}

func (r *Router) setInterval(ctx context.Context, actor int64, minutes int) error {
	_, err := r.mgr.Update(ctx, func(cfg *config.Config) error {
		cfg.Monitor.IntervalMinutes = minutes
		return nil
	})
	r.auditAction(ctx, actor, "interval_set", strconv.Itoa(minutes), err)
	return err
}

func (r *Router) setPincode(ctx context.Context, actor int64, pincode string) error {
	pincode = strings.TrimSpace(pincode)
	_, err := r.mgr.Update(ctx, func(cfg *config.Config) error {
		cfg.Monitor.Pincode = pincode
		return nil
	})
	r.auditAction(ctx, actor, "pincode_set", pincode, err)
	return err
}

func (r *Router) triggerCheck(ctx context.Context, actor int64) {
	r.mon.Trigger()
	r.auditAction(ctx, actor, "check_trigger", "", nil)
}

// --- send helpers ---------------------------------------------------------

func (r *Router) send(ctx context.Context, to kit.ChatTarget, msg tgui.Message) {
	if _, err := msg.Send(ctx, r.adapter, to); err != nil {
		r.log.Warn("send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (r *Router) edit(ctx context.Context, ref kit.MessageRef, msg tgui.Message) {
	if err := msg.Edit(ctx, r.adapter, ref); err != nil {
		r.log.Debug("edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
}

func (r *Router) answerResult(ctx context.Context, callbackID, okText string, err error) {
	if err != nil {
		r.answer(ctx, callbackID, trimCallbackText(err.Error()))
		return
	}
	r.answer(ctx, callbackID, okText)
}

// Telegram caps callback answers at 200 characters.
func trimCallbackText(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:197] + "..."
}

// slugify derives a product ID from its display name.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if s == "" {
		s = "product"
	}
	return s
}

func uniqueProductID(cfg *config.Config, base string) string {
	if cfg.FindProduct(base) < 0 {
		return base
	}
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s-%d", base, n)
		if cfg.FindProduct(id) < 0 {
			return id
		}
	}
}
