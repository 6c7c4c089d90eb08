package config

import (
	"fmt"
	"strconv"
	"time"

	"steward/internal/accounts"
	"steward/pkg/config"
	"steward/pkg/email"
)

// Config stores environment configuration for Steward.
type Config struct {
	Port string

	AnyRouterAccounts   []accounts.Account
	AgentRouterAccounts []accounts.Account

	BalanceHashFile string
	BalanceDataFile string
	HistoryDB       string
	HistoryRetain   time.Duration

	AccountPacing time.Duration
	CronSchedule  string

	SMTP           email.Config
	NotifyEmailTo  string
	TelegramToken  string
	TelegramChatID int64
}

// LoadConfig loads the Steward configuration from environment variables.
// Malformed account lists are an error; everything else falls back to
// defaults.
func LoadConfig() (Config, error) {
	anyrouter, err := parseAccounts(accounts.AnyRouter, config.GetEnv("STEWARD_ANYROUTER_ACCOUNTS", ""))
	if err != nil {
		return Config{}, err
	}
	agentrouter, err := parseAccounts(accounts.AgentRouter, config.GetEnv("STEWARD_AGENTROUTER_ACCOUNTS", ""))
	if err != nil {
		return Config{}, err
	}

	return Config{
		Port:                config.GetEnv("PORT", "18030"),
		AnyRouterAccounts:   anyrouter,
		AgentRouterAccounts: agentrouter,
		BalanceHashFile:     config.GetEnv("STEWARD_BALANCE_HASH_FILE", "balance_hash.txt"),
		BalanceDataFile:     config.GetEnv("STEWARD_BALANCE_DATA_FILE", "balance_data.json"),
		HistoryDB:           config.GetEnv("STEWARD_HISTORY_DB", ""),
		HistoryRetain:       config.GetEnvDuration("STEWARD_HISTORY_RETENTION", 90*24*time.Hour),
		AccountPacing:       config.GetEnvDuration("STEWARD_ACCOUNT_PACING", 2*time.Second),
		CronSchedule:        config.GetEnv("STEWARD_CRON", ""),
		SMTP: email.Config{
			Host:     config.GetEnv("SMTP_HOST", ""),
			Port:     config.GetEnv("SMTP_PORT", "587"),
			User:     config.GetEnv("SMTP_USER", ""),
			Password: config.GetEnv("SMTP_PASS", ""),
			From:     config.GetEnv("SMTP_FROM", config.GetEnv("SMTP_USER", "")),
			FromName: config.GetEnv("SMTP_FROM_NAME", "Steward"),
		},
		NotifyEmailTo:  config.GetEnv("STEWARD_EMAIL_TO", ""),
		TelegramToken:  config.GetEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: parseChatID(config.GetEnv("TELEGRAM_CHAT_ID", "")),
	}, nil
}

// Grouped returns the configured accounts keyed by platform.
func (c Config) Grouped() map[accounts.Platform][]accounts.Account {
	grouped := make(map[accounts.Platform][]accounts.Account)
	if len(c.AnyRouterAccounts) > 0 {
		grouped[accounts.AnyRouter] = c.AnyRouterAccounts
	}
	if len(c.AgentRouterAccounts) > 0 {
		grouped[accounts.AgentRouter] = c.AgentRouterAccounts
	}
	return grouped
}

// TotalAccounts counts configured accounts across platforms.
func (c Config) TotalAccounts() int {
	return len(c.AnyRouterAccounts) + len(c.AgentRouterAccounts)
}

func parseAccounts(platform accounts.Platform, raw string) ([]accounts.Account, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := accounts.Parse(platform, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s accounts: %w", platform, err)
	}
	return parsed, nil
}

func parseChatID(raw string) int64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
