package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/gookit/validate"
)

// APIKeyEnv overrides the configured API key.
const APIKeyEnv = "TRIALRANK_API_KEY"

// Settings is the merged, validated configuration of one invocation.
type Settings struct {
	APIKey  string
	BaseURL string        `validate:"required|fullUrl"`
	Timeout time.Duration `validate:"required|min:1"`

	DBPath     string `validate:"required"`
	Sheet      string `validate:"required"`
	DateLayout string `validate:"required"`
	Timezone   string `validate:"required"`

	RetryInitial     time.Duration `validate:"required|min:1"`
	RetryMaxInterval time.Duration `validate:"required|min:1"`
	RetryMaxElapsed  time.Duration `validate:"required|min:1"`

	LogLevel string `validate:"required|in:debug,info,warn,error"`
	LogFile  string

	CacheSizeMB int `validate:"min:0"`
	CacheTTL    time.Duration
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		BaseURL:          "https://www.esologs.com",
		Timeout:          60 * time.Second,
		DBPath:           DefaultDBPath(),
		Sheet:            "rank",
		DateLayout:       "2006/01/02",
		Timezone:         "UTC",
		RetryInitial:     time.Second,
		RetryMaxInterval: 64 * time.Second,
		RetryMaxElapsed:  80 * time.Second,
		LogLevel:         "info",
		CacheSizeMB:      16,
		CacheTTL:         time.Hour,
	}
}

// Apply overlays the values set in the file.
func (s *Settings) Apply(cfg FileConfig) error {
	setString(&s.APIKey, cfg.ESOLogs.APIKey)
	setString(&s.BaseURL, cfg.ESOLogs.BaseURL)
	setString(&s.DBPath, cfg.Ledger.DBPath)
	setString(&s.Sheet, cfg.Ledger.Sheet)
	setString(&s.DateLayout, cfg.Ledger.DateLayout)
	setString(&s.Timezone, cfg.Ledger.Timezone)
	setString(&s.LogLevel, cfg.Log.Level)
	setString(&s.LogFile, cfg.Log.File)
	if cfg.Cache.SizeMB != nil {
		s.CacheSizeMB = *cfg.Cache.SizeMB
	}

	durations := []struct {
		key    string
		target *time.Duration
		value  *string
	}{
		{"esologs.timeout", &s.Timeout, cfg.ESOLogs.Timeout},
		{"retry.initial", &s.RetryInitial, cfg.Retry.Initial},
		{"retry.max-interval", &s.RetryMaxInterval, cfg.Retry.MaxInterval},
		{"retry.max-elapsed", &s.RetryMaxElapsed, cfg.Retry.MaxElapsed},
		{"cache.ttl", &s.CacheTTL, cfg.Cache.TTL},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(*d.value))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}
	return nil
}

// ApplyEnv overlays environment overrides using getenv.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(APIKeyEnv)); v != "" {
		s.APIKey = v
	}
}

// Validate checks the settings and the timezone name.
func (s Settings) Validate() error {
	v := validate.Struct(&s)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %w", v.Errors)
	}
	if s.RetryMaxInterval < s.RetryInitial {
		return fmt.Errorf("invalid config: retry max-interval is shorter than initial")
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// RequireAPIKey reports a missing API key for commands that fetch reports.
func (s Settings) RequireAPIKey() error {
	if s.APIKey == "" {
		return fmt.Errorf("no API key: set [esologs] api-key or %s", APIKeyEnv)
	}
	return nil
}

// Location loads the configured timezone.
func (s Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// CacheBytes returns the payload cache size in bytes.
func (s Settings) CacheBytes() int {
	return s.CacheSizeMB << 20
}

func setString(target, value *string) {
	if value == nil {
		return
	}
	*target = *value
}
