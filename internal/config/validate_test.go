package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Monitor: MonitorConfig{IntervalMinutes: 15, Pincode: "560001"},
		Products: []Product{
			{ID: "buttermilk", Name: "High Protein Buttermilk", URL: "https://shop.example.com/p/buttermilk"},
		},
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateInterval(t *testing.T) {
	for _, m := range AllowedIntervals {
		cfg := validConfig()
		cfg.Monitor.IntervalMinutes = m
		assert.NoError(t, cfg.Validate(), "interval %d", m)
	}
	for _, m := range []int{0, 1, 7, 45, 120, -5} {
		cfg := validConfig()
		cfg.Monitor.IntervalMinutes = m
		assert.ErrorIs(t, cfg.Validate(), ErrValidation, "interval %d", m)
	}
}

func TestValidatePincode(t *testing.T) {
	assert.NoError(t, ValidatePincode("110001"))
	assert.NoError(t, ValidatePincode(" 560001 "))

	for _, bad := range []string{"", "12345", "1234567", "12ab56", "12345x", "½23456"} {
		assert.ErrorIs(t, ValidatePincode(bad), ErrValidation, "pincode %q", bad)
	}
}

func TestValidateEmailAddress(t *testing.T) {
	assert.NoError(t, ValidateEmail("ops@example.com"))

	for _, bad := range []string{"", "ops", "ops@", "@example.com", "Ops <ops@example.com>", "a b@example.com"} {
		assert.ErrorIs(t, ValidateEmail(bad), ErrValidation, "email %q", bad)
	}
}

func TestValidateProductURL(t *testing.T) {
	assert.NoError(t, ValidateProductURL("https://shop.example.com/p/x"))
	assert.NoError(t, ValidateProductURL("http://shop.example.com/"))

	for _, bad := range []string{"", "shop.example.com/p/x", "ftp://shop.example.com/x", "https://", "/p/x"} {
		assert.ErrorIs(t, ValidateProductURL(bad), ErrValidation, "url %q", bad)
	}
}

func TestValidateRejectsDuplicateProductIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Products = append(cfg.Products, cfg.Products[0])
	assert.ErrorIs(t, cfg.Validate(), ErrValidation)
}

func TestValidateRecipientsNeedSMTP(t *testing.T) {
	cfg := validConfig()
	cfg.Email.Recipients = []string{"ops@example.com"}
	assert.ErrorIs(t, cfg.Validate(), ErrValidation)

	cfg.Email.SMTPHost = "smtp.example.com"
	cfg.Email.Sender = "alerts@example.com"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMalformedRecipient(t *testing.T) {
	cfg := validConfig()
	cfg.Email.SMTPHost = "smtp.example.com"
	cfg.Email.Sender = "alerts@example.com"
	cfg.Email.Recipients = []string{"not-an-email"}
	assert.ErrorIs(t, cfg.Validate(), ErrValidation)
}

func TestValidateProbeMode(t *testing.T) {
	for _, mode := range []string{"", "headless", "static"} {
		cfg := validConfig()
		cfg.Probe.Mode = mode
		assert.NoError(t, cfg.Validate(), "mode %q", mode)
	}
	cfg := validConfig()
	cfg.Probe.Mode = "webdriver"
	assert.ErrorIs(t, cfg.Validate(), ErrValidation)
}

func TestCooldownOrDefault(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, DefaultCooldown, cfg.CooldownOrDefault())

	cfg.Monitor.Cooldown = "2h30m"
	assert.Equal(t, 2*time.Hour+30*time.Minute, cfg.CooldownOrDefault())
}
