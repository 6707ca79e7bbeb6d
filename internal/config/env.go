package config

import (
	"os"
	"strconv"
	"strings"
)

// Env variable names for secrets that should not live in the config file.
const (
	EnvBotToken     = "STOCKWATCH_BOT_TOKEN"
	EnvSMTPPassword = "STOCKWATCH_SMTP_PASSWORD"
	EnvOwnerIDs     = "STOCKWATCH_OWNER_IDS" // comma-separated Telegram user IDs
)

// applyEnvOverrides lets the environment win over file-provided secrets.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSMTPPassword)); v != "" {
		cfg.Email.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOwnerIDs)); v != "" {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if id, err := strconv.ParseInt(part, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			cfg.Telegram.OwnerUserIDs = ids
		}
	}
}
