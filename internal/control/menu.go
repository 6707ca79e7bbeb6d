package control

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"stockwatch/internal/config"
	"stockwatch/pkg/tgui"
)

// Callback scopes. Actions are packed as "scope:action:payload".
const (
	scopeMenu     = "menu"
	scopeProduct  = "prod"
	scopeEmail    = "mail"
	scopeInterval = "intv"
)

func mainMenu() tgui.Message {
	kb := tgui.NewInline().
		Row(
			tgui.Btn("📊 Status", tgui.Data(scopeMenu, "status", "")),
			tgui.Btn("🔄 Check now", tgui.Data(scopeMenu, "check", "")),
		).
		Row(
			tgui.Btn("📦 Products", tgui.Data(scopeMenu, "products", "")),
			tgui.Btn("📧 Emails", tgui.Data(scopeMenu, "emails", "")),
		).
		Row(
			tgui.Btn("⏱ Interval", tgui.Data(scopeMenu, "interval", "")),
			tgui.Btn("📍 Pincode", tgui.Data(scopeMenu, "pincode", "")),
		).
		Row(
			tgui.Btn("🕘 History", tgui.Data(scopeMenu, "history", "")),
		)

	return tgui.New().
		Title("🛒", "Stockwatch").
		Line("Product availability monitor.").
		Blank().
		Line("Pick an action:").
		Inline(kb).
		Build()
}

func statusMessage(cfg *config.Config, mon Monitor) tgui.Message {
	inStock := 0
	for _, p := range cfg.Products {
		if p.InStock {
			inStock++
		}
	}

	b := tgui.New().
		Title("📊", "Status").
		KV("Products", fmt.Sprintf("%d (%d in stock)", len(cfg.Products), inStock)).
		KV("Interval", fmt.Sprintf("%d min", cfg.Monitor.IntervalMinutes)).
		KV("Pincode", cfg.Monitor.Pincode).
		KV("Recipients", strconv.Itoa(len(cfg.Email.Recipients))).
		KV("Cycles", strconv.FormatInt(mon.CycleCount(), 10))

	if last := mon.LastCycle(); !last.IsZero() {
		b.KV("Last check", last.Format("2006-01-02 15:04:05"))
	} else {
		b.KV("Last check", "not yet")
	}

	return b.Inline(backRow()).Build()
}

func productsMessage(cfg *config.Config) tgui.Message {
	b := tgui.New().Title("📦", "Products")
	if len(cfg.Products) == 0 {
		b.Line("No products monitored yet.")
	}

	kb := tgui.NewInline()
	for _, p := range cfg.Products {
		state := "❌ out of stock"
		if p.InStock {
			state = "✅ in stock"
		}
		line := "• " + tgui.Link(p.Name, p.URL).String() + " — " + tgui.Esc(state).String()
		if p.LastPrice != "" {
			line += " (" + tgui.Esc(p.LastPrice).String() + ")"
		}
		b.RawLine(line)
		kb.Row(tgui.Btn("🗑 "+p.Name, tgui.Data(scopeProduct, "rm", p.ID)))
	}

	kb.Row(tgui.Btn("➕ Add product", tgui.Data(scopeProduct, "add", "")))
	kb.Row(backBtn())
	return b.Inline(kb).Build()
}

func emailsMessage(cfg *config.Config) tgui.Message {
	b := tgui.New().Title("📧", "Alert recipients")
	if len(cfg.Email.Recipients) == 0 {
		b.Line("No recipients configured; alerts go nowhere.")
	}

	kb := tgui.NewInline()
	for _, rcpt := range cfg.Email.Recipients {
		b.RawLine("• " + tgui.Code(rcpt).String())
		kb.Row(tgui.Btn("🗑 "+rcpt, tgui.Data(scopeEmail, "rm", rcpt)))
	}

	kb.Row(tgui.Btn("➕ Add recipient", tgui.Data(scopeEmail, "add", "")))
	kb.Row(backBtn())
	return b.Inline(kb).Build()
}

func intervalMessage(cfg *config.Config) tgui.Message {
	row := make([]tele.Btn, 0, len(config.AllowedIntervals))
	for _, m := range config.AllowedIntervals {
		label := fmt.Sprintf("%dm", m)
		if m == cfg.Monitor.IntervalMinutes {
			label = "• " + label
		}
		row = append(row, tgui.Btn(label, tgui.Data(scopeInterval, "set", strconv.Itoa(m))))
	}

	kb := tgui.NewInline().Row(row...).Row(backBtn())
	return tgui.New().
		Title("⏱", "Check interval").
		Line(fmt.Sprintf("Currently every %d minutes.", cfg.Monitor.IntervalMinutes)).
		Inline(kb).
		Build()
}

func pincodePrompt(cfg *config.Config) tgui.Message {
	return tgui.New().
		Title("📍", "Delivery pincode").
		Line(fmt.Sprintf("Current pincode: %s", cfg.Monitor.Pincode)).
		Line("Send the new 6-digit pincode, or /cancel.").
		Build()
}

func backBtn() tele.Btn {
	return tgui.Btn("⬅️ Menu", tgui.Data(scopeMenu, "main", ""))
}

func backRow() *tgui.Inline {
	return tgui.NewInline().Row(backBtn())
}
