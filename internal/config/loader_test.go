package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadResolvesYAMLIncludeForWebhooks(t *testing.T) {
	dir := t.TempDir()

	webhooksPath := filepath.Join(dir, "webhooks.yaml")
	require.NoError(t, os.WriteFile(webhooksPath, []byte(`
webhooks:
  - base_url: https://hooks.example.com/nexus
    event_buffer_size: 20
    flush_delay: 2.5
    num_retries: 3
`), 0o644))

	mainPath := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(mainPath, []byte(`{
		$include: "webhooks.yaml",
		conversations_path: "/tmp/convos",
		workspace_path: "/tmp/workspaces",
	}`), 0o644))

	cfg, err := Load(mainPath)
	require.NoError(t, err)
	require.Equal(t, "/tmp/convos", cfg.ConversationsPath)
	require.Len(t, cfg.Webhooks, 1)
	require.Equal(t, "https://hooks.example.com/nexus", cfg.Webhooks[0].BaseURL)
	require.Equal(t, 20, cfg.Webhooks[0].EventBufferSize)
	require.Equal(t, 3, cfg.Webhooks[0].NumRetries)
}

func TestLoadRawDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()

	aPath := filepath.Join(dir, "a.json5")
	bPath := filepath.Join(dir, "b.json5")
	require.NoError(t, os.WriteFile(aPath, []byte(`{$include: "b.json5"}`), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte(`{$include: "a.json5"}`), 0o644))

	_, err := LoadRaw(aPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "include cycle")
}

func TestLoadRawAcceptsIncludeList(t *testing.T) {
	dir := t.TempDir()

	webhooksPath := filepath.Join(dir, "webhooks.yaml")
	require.NoError(t, os.WriteFile(webhooksPath, []byte("webhooks:\n  - base_url: https://a.example.com\n"), 0o644))

	loggingPath := filepath.Join(dir, "logging.yaml")
	require.NoError(t, os.WriteFile(loggingPath, []byte("logging:\n  level: debug\n"), 0o644))

	mainPath := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(mainPath, []byte(`{
		$include: ["webhooks.yaml", "logging.yaml"],
		conversations_path: "/tmp/convos",
		workspace_path: "/tmp/workspaces",
	}`), 0o644))

	cfg, err := Load(mainPath)
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 1)
	require.Equal(t, "https://a.example.com", cfg.Webhooks[0].BaseURL)
	require.Equal(t, "debug", cfg.Logging.Level)
}
