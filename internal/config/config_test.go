package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "http://localhost:3000", cfg.CORSOrigin())
	require.Equal(t, "file:chorus.db", cfg.DatabaseURL())
	require.Equal(t, 50, cfg.DefaultPageLimit())
	require.Equal(t, 200, cfg.MaxPageLimit())
	require.Equal(t, "60s", cfg.ReaperInterval())
}

func TestNewEnvOverridesDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHORUS_HTTP_ADDR", ":9090")
	t.Setenv("CHORUS_CORS_ORIGIN", "https://agents.example.com")
	t.Setenv("CHORUS_PAGE_DEFAULT_LIMIT", "25")

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "https://agents.example.com", cfg.CORSOrigin())
	require.Equal(t, 25, cfg.DefaultPageLimit())
}

func TestNewDiscoversConfigFileByWalkingUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	yaml := "http:\n  addr: \":7070\"\ncors:\n  origin: \"https://from-file.example.com\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "chorus.yaml"), []byte(yaml), 0o644))

	chdir(t, nested)

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, ":7070", cfg.HTTPAddr())
	require.Equal(t, "https://from-file.example.com", cfg.CORSOrigin())
	// database.url was never set in the file, so the default still applies.
	require.Equal(t, "file:chorus.db", cfg.DatabaseURL())
}

func TestEnvTakesPrecedenceOverConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "cors:\n  origin: \"https://from-file.example.com\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chorus.yaml"), []byte(yaml), 0o644))
	chdir(t, dir)
	t.Setenv("CHORUS_CORS_ORIGIN", "https://from-env.example.com")

	cfg, err := New()
	require.NoError(t, err)

	require.Equal(t, "https://from-env.example.com", cfg.CORSOrigin())
}

// chdir switches the working directory for the duration of the test and
// restores it afterward; discoverConfigFile walks up from os.Getwd().
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
