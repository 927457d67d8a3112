package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"media_bot/internal/filter"
)

// Settings are the operator settings read from the YAML settings file.
type Settings struct {
	SavePath        string         `yaml:"save_path"`
	MaxDownloadTask int            `yaml:"max_download_task"`
	RetryDelay      time.Duration  `yaml:"retry_delay"`
	BrowseTTL       time.Duration  `yaml:"browse_ttl"`
	Timezone        string         `yaml:"timezone"`
	Upload          UploadSettings `yaml:"upload"`
	Chats           []ChatSettings `yaml:"chats"`

	location *time.Location
}

// UploadSettings configures the optional cloud upload of finished downloads.
type UploadSettings struct {
	Driver      string `yaml:"driver"`
	Endpoint    string `yaml:"endpoint"`
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	UseSSL      bool   `yaml:"use_ssl"`
	Prefix      string `yaml:"prefix"`
	DeleteLocal bool   `yaml:"delete_local"`
}

// ChatSettings configures one source chat.
type ChatSettings struct {
	ChatID          int64  `yaml:"chat_id"`
	DownloadFilter  string `yaml:"download_filter"`
	Schedule        string `yaml:"schedule"`
	ForwardTo       int64  `yaml:"forward_to"`
	RestrictForward bool   `yaml:"restrict_forward"`
	FeedURL         string `yaml:"feed_url"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		SavePath:        "./downloads",
		MaxDownloadTask: 5,
		RetryDelay:      2 * time.Second,
		BrowseTTL:       30 * time.Minute,
		Timezone:        "UTC",
		location:        time.UTC,
	}
}

// LoadSettings reads the settings file at path. A missing file yields the
// defaults.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML settings over the defaults and validates them.
func ParseSettings(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.MaxDownloadTask <= 0 {
		return fmt.Errorf("max_download_task must be positive, got %d", s.MaxDownloadTask)
	}
	if s.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %s", s.RetryDelay)
	}
	if s.BrowseTTL <= 0 {
		return fmt.Errorf("browse_ttl must be positive, got %s", s.BrowseTTL)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	s.location = loc

	switch s.Upload.Driver {
	case "", "minio", "s3":
	default:
		return fmt.Errorf("unknown upload driver %q", s.Upload.Driver)
	}
	if s.Upload.Driver != "" && s.Upload.Bucket == "" {
		return fmt.Errorf("upload bucket is required for driver %q", s.Upload.Driver)
	}

	seen := make(map[int64]bool, len(s.Chats))
	for _, c := range s.Chats {
		if c.ChatID == 0 {
			return fmt.Errorf("chat entry without chat_id")
		}
		if seen[c.ChatID] {
			return fmt.Errorf("duplicate chat %d", c.ChatID)
		}
		seen[c.ChatID] = true
		if c.Schedule != "" {
			if _, err := cron.ParseStandard(c.Schedule); err != nil {
				return fmt.Errorf("chat %d: invalid schedule %q: %w", c.ChatID, c.Schedule, err)
			}
		}
		if c.DownloadFilter != "" {
			if err := filter.Validate(c.DownloadFilter, loc); err != nil {
				return fmt.Errorf("chat %d: invalid download_filter: %w", c.ChatID, err)
			}
		}
	}
	return nil
}

// Location is the time zone for timestamp literals in filters.
func (s *Settings) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// Chat returns the settings of a configured chat.
func (s *Settings) Chat(chatID int64) (ChatSettings, bool) {
	for _, c := range s.Chats {
		if c.ChatID == chatID {
			return c, true
		}
	}
	return ChatSettings{}, false
}
