package config

import "time"

// Config is the persisted process-wide state: monitored products, alert
// recipients, monitor knobs and service settings. It is loaded at startup,
// mutated by control-surface commands (and flushed to disk after every
// mutation) and hot-reloaded on external file edits.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Email    EmailConfig    `json:"email"`
	Monitor  MonitorConfig  `json:"monitor"`
	Probe    ProbeConfig    `json:"probe,omitempty"`
	Health   HealthConfig   `json:"health,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`

	Products []Product `json:"products"`
}

// Product is one monitored product page. Scrape cycles update the last-known
// fields; the control surface adds/removes entries.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`

	LastPrice    string    `json:"last_price,omitempty"`
	InStock      bool      `json:"in_stock,omitempty"`
	LastNotified time.Time `json:"last_notified,omitzero"`
}

type TelegramConfig struct {
	// Token may be empty in the file and provided via STOCKWATCH_BOT_TOKEN.
	Token string `json:"token,omitempty"`

	// OwnerUserIDs is the authorized operator set. Anyone else is rejected.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// PollTimeout is a Go duration string (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// LogChatID receives forwarded WARN+ log lines when logging.telegram is
	// enabled. Zero disables forwarding.
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type EmailConfig struct {
	SMTPHost string `json:"smtp_host,omitempty"`
	SMTPPort int    `json:"smtp_port,omitempty"`
	Sender   string `json:"sender,omitempty"`

	// Password may be empty in the file and provided via
	// STOCKWATCH_SMTP_PASSWORD (app password, not the account password).
	Password string `json:"password,omitempty"`

	Recipients []string `json:"recipients"`
}

type MonitorConfig struct {
	// IntervalMinutes must be one of AllowedIntervals.
	IntervalMinutes int `json:"interval_minutes"`

	// Pincode is the 6-digit delivery pincode set on the storefront session.
	Pincode string `json:"pincode"`

	// Cooldown is the minimum gap between repeat alerts for the same product
	// (Go duration string, default "6h").
	Cooldown string `json:"cooldown,omitempty"`
}

type ProbeConfig struct {
	// Mode selects the prober: "headless" (default) or "static".
	Mode string `json:"mode,omitempty"`

	// NavTimeout bounds a single page load (Go duration string, default "45s").
	NavTimeout string `json:"nav_timeout,omitempty"`

	UserAgent string `json:"user_agent,omitempty"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
}

type StorageConfig struct {
	// Path of the sqlite ledger. Empty disables persistence of transition
	// history and cooldown state.
	Path string `json:"path,omitempty"`
}

type LoggingConfig struct {
	Level    string             `json:"level,omitempty"`
	Console  bool               `json:"console,omitempty"`
	File     LogFileConfig      `json:"file,omitempty"`
	Telegram LogTelegramConfig  `json:"telegram,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type LogTelegramConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// FindProduct returns the index of the product with the given ID, or -1.
func (c *Config) FindProduct(id string) int {
	for i := range c.Products {
		if c.Products[i].ID == id {
			return i
		}
	}
	return -1
}
