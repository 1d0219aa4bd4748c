package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_SECRET_KEY", "secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
}

func TestGetYaml(t *testing.T) {
	setCredentials(t)
	path := writeConfig(t, `
telegram_chat_id: 42
telegram_verbose: true
order_id_pattern: "^deal_"
volume_scale: "1.05"
quote_coverage: "0.4"
excluded_symbols:
  - SHIBUSDT
rebalance_hour_utc: 3
rebalance_minute_utc: 15
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.Equal(t, int64(42), cfg.TelegramChatID)
	require.True(t, cfg.TelegramVerbose)
	require.True(t, cfg.OrderIDPattern.MatchString("deal_BTCUSDT_101_so1"))
	require.False(t, cfg.OrderIDPattern.MatchString("web_abc"))
	require.Equal(t, "1.05", cfg.VolumeScale.String())
	require.Equal(t, "0.4", cfg.QuoteCoverage.String())
	require.Equal(t, "USDT", cfg.ReferenceAsset)
	require.Equal(t, []string{"SHIBUSDT"}, cfg.ExcludedSymbols)
	require.Equal(t, 3, cfg.RebalanceHourUTC)
	require.Equal(t, 15, cfg.RebalanceMinuteUTC)
	require.False(t, cfg.DryRun)
}

func TestGetYamlDefaults(t *testing.T) {
	setCredentials(t)
	path := writeConfig(t, `
telegram_chat_id: 42
order_id_pattern: "^deal_"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.Equal(t, "1.05", cfg.VolumeScale.String())
	require.Equal(t, "0.5", cfg.QuoteCoverage.String())
	require.Equal(t, defaultRebalanceHour, cfg.RebalanceHourUTC)
	require.Equal(t, 0, cfg.RebalanceMinuteUTC)
}

func TestGetYamlValidation(t *testing.T) {
	setCredentials(t)

	for name, body := range map[string]string{
		"missing pattern":   "telegram_chat_id: 42\n",
		"invalid pattern":   "telegram_chat_id: 42\norder_id_pattern: \"[\"\n",
		"scale not above 1": "telegram_chat_id: 42\norder_id_pattern: \"^deal_\"\nvolume_scale: \"1.0\"\n",
		"coverage above 1":  "telegram_chat_id: 42\norder_id_pattern: \"^deal_\"\nquote_coverage: \"1.5\"\n",
		"bad hour":          "telegram_chat_id: 42\norder_id_pattern: \"^deal_\"\nrebalance_hour_utc: 25\n",
		"missing chat id":   "order_id_pattern: \"^deal_\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := getYaml(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestGetYamlRequiresCredentials(t *testing.T) {
	setCredentials(t)
	t.Setenv("BINANCE_API_KEY", "")
	path := writeConfig(t, "telegram_chat_id: 42\norder_id_pattern: \"^deal_\"\n")

	_, err := getYaml(path)
	require.Error(t, err)
}
