package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"staffcal/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// StaffConfig describes a single staff member and the calendar feed that
// holds their meetings.
type StaffConfig struct {
	// ID is the assignee identifier used to route meetings to columns.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the column header.
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email,omitempty" json:"email,omitempty"`
	Role  string `yaml:"role,omitempty" json:"role,omitempty"`
	// ICSURL is the ICS subscription endpoint with this person's meetings.
	// Empty means the person has no feed (column stays empty).
	ICSURL string `yaml:"ics_url,omitempty" json:"ics_url,omitempty"`
	// Inactive hides the person from boards without deleting the entry.
	Inactive bool `yaml:"inactive,omitempty" json:"inactive,omitempty"`
}

// BoardConfig holds geometry shared by every rendered day board.
type BoardConfig struct {
	// RowHeight is the pixel height of one hour row.
	RowHeight int `yaml:"row_height" json:"row_height"`
	// Gutter is the pixel gap subtracted from each lane's width.
	Gutter int `yaml:"gutter" json:"gutter"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "Asia/Kolkata").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in week and month views. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic meeting refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of future days kept in the meeting snapshot.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// ShowAllDay toggles whether all-day meetings appear on boards.
	ShowAllDay bool `yaml:"show_all_day" json:"show_all_day"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir is where ICS bodies and HTTP cache metadata are kept.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Board BoardConfig `yaml:"board" json:"board"`

	// Staff is the list of bookable people, in config order.
	Staff []StaffConfig `yaml:"staff" json:"staff"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultWeekStart   = "monday"
	defaultRefreshCron = "*/15 * * * *"
	defaultHorizonDays = 7
	defaultLogLevel    = "info"
	defaultCacheDir    = "/var/lib/staffcal/ics-cache"
	defaultRowHeight   = 60
	defaultGutter      = 6
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		WeekStart:   defaultWeekStart,
		RefreshCron: defaultRefreshCron,
		HorizonDays: defaultHorizonDays,
		ShowAllDay:  true,
		LogLevel:    defaultLogLevel,
		CacheDir:    defaultCacheDir,
		Board: BoardConfig{
			RowHeight: defaultRowHeight,
			Gutter:    defaultGutter,
		},
		Staff:     []StaffConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = defaultWeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Board.RowHeight <= 0 {
		c.Board.RowHeight = defaultRowHeight
	}
	if c.Board.Gutter < 0 {
		c.Board.Gutter = 0
	}
	if c.Staff == nil {
		c.Staff = []StaffConfig{}
	}
}

// Validate reports configuration problems that defaults cannot fix.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	seen := make(map[string]bool, len(c.Staff))
	for i, s := range c.Staff {
		if s.ID == "" {
			return fmt.Errorf("config: staff[%d] has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate staff id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local when it is
// empty or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// FirstWeekday maps WeekStart to a time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".staffcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function:
//
//	cfg, _ := config.Load(path)
//	// ... mutate cfg ...
//	if err := cfg.Save(path); err != nil { ... }
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// StaffMembers converts the staff entries into model values, keeping
// config order.
func (c *Config) StaffMembers() []model.Staff {
	out := make([]model.Staff, 0, len(c.Staff))
	for _, s := range c.Staff {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		out = append(out, model.Staff{
			ID:     s.ID,
			Name:   name,
			Email:  s.Email,
			Role:   s.Role,
			Active: !s.Inactive,
		})
	}
	return out
}
