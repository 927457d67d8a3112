// Package config handles application configuration from environment variables
// and the operator settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken    string
	TelegramAPIEndpoint string
	DatabasePath        string
	LogLevel            string
	LogFile             string
	AllowedUsers        []int64
	SettingsPath        string
	HTTPAddr            string
}

// LoadDotEnv loads variables from the given files into the environment,
// without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		TelegramBotToken:    token,
		TelegramAPIEndpoint: os.Getenv("TELEGRAM_API_ENDPOINT"),
		DatabasePath:        envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFile:             os.Getenv("LOG_FILE"),
		AllowedUsers:        allowedUsers,
		SettingsPath:        envOrDefault("SETTINGS_PATH", "./config.yaml"),
		HTTPAddr:            os.Getenv("HTTP_ADDR"),
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
