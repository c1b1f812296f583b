package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
timezone: Asia/Kolkata
week_start: friday
board:
  gutter: -3
staff:
  - id: u1
    name: Asha
    ics_url: https://example.com/a.ics
  - id: u2
    inactive: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Asia/Kolkata", cfg.Timezone)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, defaultRefreshCron, cfg.RefreshCron)
	assert.Equal(t, defaultHorizonDays, cfg.HorizonDays)
	assert.Equal(t, defaultRowHeight, cfg.Board.RowHeight)
	assert.Equal(t, 0, cfg.Board.Gutter)
	require.Len(t, cfg.Staff, 2)

	members := cfg.StaffMembers()
	assert.Equal(t, "Asha", members[0].Name)
	assert.True(t, members[0].Active)
	assert.Equal(t, "u2", members[1].Name)
	assert.False(t, members[1].Active)

	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
	assert.Equal(t, time.Monday, cfg.FirstWeekday())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad timezone", "timezone: Mars/Olympus\n", "invalid timezone"},
		{"bad cron", "refresh: every now and then\n", "invalid refresh schedule"},
		{"missing staff id", "staff:\n  - name: nobody\n", "has no id"},
		{"duplicate staff id", "staff:\n  - id: a\n  - id: a\n", "duplicate staff id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.WeekStart = "sunday"
	cfg.Staff = []StaffConfig{{ID: "u1", Name: "Asha", ICSURL: "https://example.com/a.ics"}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, time.Sunday, loaded.FirstWeekday())
}

func TestSaveRejectsEmptyInput(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	updated := DefaultConfig()
	updated.Staff = []StaffConfig{{ID: "u9", Name: "New Hire"}}
	require.NoError(t, Save(path, updated))

	select {
	case c := <-got:
		require.Len(t, c.Staff, 1)
		assert.Equal(t, "u9", c.Staff[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
