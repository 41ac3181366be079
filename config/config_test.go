package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/coinbook/internal/errs"
)

var envNames = []string{
	"KUCOIN_API_KEY", "KUCOIN_API_SECRET", "KUCOIN_API_PASSPHRASE", "KUCOIN_BASE_URL", "KUCOIN_KEY_VERSION",
	"NOTION_TOKEN", "NOTION_DATABASE_ID", "NOTION_VERSION", "COINBOOK_LOG_LEVEL", "MCP_HOST", "MCP_PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func writeYaml(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultKuCoinBaseURL, c.KuCoin.BaseURL)
	assert.Equal(t, "2", c.KuCoin.KeyVersion)
	assert.Equal(t, []string{"main", "trade"}, c.KuCoin.Partitions)
	assert.Equal(t, DefaultNotionVersion, c.Notion.Version)
	assert.Equal(t, 3.0, c.Notion.RequestsPerSecond)
	assert.Equal(t, 20*time.Second, c.HTTP.Timeout)
	assert.Equal(t, ":3333", c.Server.Addr)
	assert.Equal(t, DefaultJournalDir, c.Journal.Dir)
	assert.Equal(t, 0, c.Retry.MaxRetries)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadYamlWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeYaml(t, `
kucoin:
  api_key: file-key
  api_secret: file-secret
  api_passphrase: file-pass
  partitions: [trade]
notion:
  token: file-token
  database_id: db-1
  requests_per_second: 1.5
http:
  timeout: 5s
server:
  addr: 127.0.0.1:9000
retry:
  max_retries: 2
  initial_interval: 250ms
log:
  level: debug
`)
	t.Setenv("KUCOIN_API_KEY", "env-key")
	t.Setenv("NOTION_TOKEN", "env-token")
	t.Setenv("MCP_PORT", "4444")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", c.KuCoin.APIKey)
	assert.Equal(t, "file-secret", c.KuCoin.APISecret)
	assert.Equal(t, []string{"trade"}, c.KuCoin.Partitions)
	assert.Equal(t, "env-token", c.Notion.Token)
	assert.Equal(t, "db-1", c.Notion.DatabaseID)
	assert.Equal(t, 1.5, c.Notion.RequestsPerSecond)
	assert.Equal(t, 5*time.Second, c.HTTP.Timeout)
	assert.Equal(t, "127.0.0.1:4444", c.Server.Addr)
	assert.Equal(t, 2, c.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, c.Retry.InitialInterval)
	assert.Equal(t, DefaultRetryMax, c.Retry.MaxInterval)
	assert.Equal(t, "debug", c.Log.Level)
	assert.NoError(t, c.Validate())
}

func TestLoadMCPHost(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_HOST", "0.0.0.0")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3333", c.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = Load(writeYaml(t, "kucoin: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeYaml(t, "retry:\n  max_retries: -1\n"))
	assert.Error(t, err)
}

func TestValidateListsEveryMissingValue(t *testing.T) {
	clearEnv(t)
	c, err := Load("")
	require.NoError(t, err)

	err = c.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
	for _, name := range []string{"KUCOIN_API_KEY", "KUCOIN_API_SECRET", "KUCOIN_API_PASSPHRASE", "NOTION_TOKEN", "NOTION_DATABASE_ID"} {
		assert.Contains(t, err.Error(), name)
	}
	assert.NotContains(t, err.Error(), "KUCOIN_BASE_URL")

	c.KuCoin.APIKey, c.KuCoin.APISecret, c.KuCoin.APIPassphrase = "k", "s", "p"
	assert.NoError(t, c.ValidateKuCoin())

	err = c.ValidateNotion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTION_TOKEN")
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.gen.yaml")
	in := Config{
		KuCoin: KuCoin{APIKey: "k", APISecret: "s", APIPassphrase: "p"},
		Notion: Notion{Token: "t", DatabaseID: "db"},
	}
	require.NoError(t, Write(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "k", out.KuCoin.APIKey)
	assert.Equal(t, "db", out.Notion.DatabaseID)
	assert.NoError(t, out.Validate())
}
