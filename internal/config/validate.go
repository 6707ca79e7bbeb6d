package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

// ErrValidation tags all config validation failures so callers can tell a
// user mistake apart from an I/O problem.
var ErrValidation = errors.New("invalid config")

// AllowedIntervals is the enumerated set of polling intervals (minutes).
var AllowedIntervals = []int{5, 10, 15, 30, 60}

func IntervalAllowed(minutes int) bool {
	for _, v := range AllowedIntervals {
		if v == minutes {
			return true
		}
	}
	return false
}

// ValidatePincode checks the 6-digit numeric invariant.
func ValidatePincode(s string) error {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return fmt.Errorf("%w: pincode must be exactly 6 digits", ErrValidation)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: pincode must be numeric", ErrValidation)
		}
	}
	return nil
}

// ValidateEmail checks basic syntactic correctness (RFC 5322 address).
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%w: email is empty", ErrValidation)
	}
	a, err := mail.ParseAddress(s)
	if err != nil || a.Address != s {
		return fmt.Errorf("%w: malformed email %q", ErrValidation, s)
	}
	return nil
}

// ValidateProductURL requires an absolute http(s) URL with a host.
func ValidateProductURL(s string) error {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: malformed url %q", ErrValidation, s)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute http(s): %q", ErrValidation, s)
	}
	return nil
}

// Validate checks the whole config against the stored-state invariants.
// It is used both at load time and before committing hot reloads and
// control-surface mutations.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrValidation)
	}

	if !IntervalAllowed(c.Monitor.IntervalMinutes) {
		return fmt.Errorf("%w: monitor.interval_minutes must be one of %v (got %d)",
			ErrValidation, AllowedIntervals, c.Monitor.IntervalMinutes)
	}
	if err := ValidatePincode(c.Monitor.Pincode); err != nil {
		return err
	}
	if _, err := ParseDurationField("monitor.cooldown", c.Monitor.Cooldown); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ParseDurationField("probe.nav_timeout", c.Probe.NavTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch strings.TrimSpace(c.Probe.Mode) {
	case "", "headless", "static":
	default:
		return fmt.Errorf("%w: probe.mode must be \"headless\" or \"static\" (got %q)",
			ErrValidation, c.Probe.Mode)
	}

	seen := make(map[string]struct{}, len(c.Products))
	for i := range c.Products {
		p := &c.Products[i]
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: products[%d]: empty id", ErrValidation, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate product id %q", ErrValidation, p.ID)
		}
		seen[p.ID] = struct{}{}
		if err := ValidateProductURL(p.URL); err != nil {
			return fmt.Errorf("products[%d]: %w", i, err)
		}
	}

	for _, r := range c.Email.Recipients {
		if err := ValidateEmail(r); err != nil {
			return err
		}
	}
	if len(c.Email.Recipients) > 0 {
		if strings.TrimSpace(c.Email.SMTPHost) == "" || strings.TrimSpace(c.Email.Sender) == "" {
			return fmt.Errorf("%w: email recipients configured but smtp_host/sender missing", ErrValidation)
		}
	}

	return nil
}

// CooldownOrDefault returns the parsed notification cooldown.
func (c *Config) CooldownOrDefault() time.Duration {
	d, _ := ParseDurationOrDefault("monitor.cooldown", c.Monitor.Cooldown, DefaultCooldown)
	return d
}
