package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultVolumeScale    = "1.05"
	defaultQuoteCoverage  = "0.5"
	defaultReferenceAsset = "USDT"
	defaultRebalanceHour  = 2
)

type Config struct {
	BinanceAPIKey    string
	BinanceSecretKey string

	TelegramToken   string
	TelegramChatID  int64
	TelegramVerbose bool

	// OrderIDPattern matches client order IDs placed by the DCA bot.
	OrderIDPattern *regexp.Regexp
	// VolumeScale must equal the DCA bot's safety-order volume multiplier.
	VolumeScale decimal.Decimal
	// QuoteCoverage is the fraction of total projected next-order cost kept
	// liquid, between 0 and 1.
	QuoteCoverage   decimal.Decimal
	ReferenceAsset  string
	ExcludedSymbols []string

	RebalanceHourUTC   int
	RebalanceMinuteUTC int

	DryRun bool
}

type configTmp struct {
	TelegramChatID     int64    `yaml:"telegram_chat_id"`
	TelegramVerbose    bool     `yaml:"telegram_verbose"`
	OrderIDPattern     string   `yaml:"order_id_pattern"`
	VolumeScale        string   `yaml:"volume_scale,omitempty"`
	QuoteCoverage      string   `yaml:"quote_coverage,omitempty"`
	ReferenceAsset     string   `yaml:"reference_asset,omitempty"`
	ExcludedSymbols    []string `yaml:"excluded_symbols,omitempty"`
	RebalanceHourUTC   *int     `yaml:"rebalance_hour_utc,omitempty"`
	RebalanceMinuteUTC int      `yaml:"rebalance_minute_utc,omitempty"`
	DryRun             bool     `yaml:"dry_run,omitempty"`
}

// Get loads configuration from the yaml file named by the -config flag.
// Credentials come from the environment, never from the file.
func Get() (Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	return getYaml(*path)
}

func getYaml(path string) (Config, error) {
	var tmp configTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		TelegramChatID:     tmp.TelegramChatID,
		TelegramVerbose:    tmp.TelegramVerbose,
		ReferenceAsset:     tmp.ReferenceAsset,
		ExcludedSymbols:    tmp.ExcludedSymbols,
		RebalanceHourUTC:   defaultRebalanceHour,
		RebalanceMinuteUTC: tmp.RebalanceMinuteUTC,
		DryRun:             tmp.DryRun,
	}

	if cfg.BinanceAPIKey = os.Getenv("BINANCE_API_KEY"); cfg.BinanceAPIKey == "" {
		return Config{}, fmt.Errorf("BINANCE_API_KEY environment variable is not set")
	}
	if cfg.BinanceSecretKey = os.Getenv("BINANCE_SECRET_KEY"); cfg.BinanceSecretKey == "" {
		return Config{}, fmt.Errorf("BINANCE_SECRET_KEY environment variable is not set")
	}
	if cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN"); cfg.TelegramToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	if cfg.TelegramChatID == 0 {
		if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
			cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Config{}, fmt.Errorf("incorrect TELEGRAM_CHAT_ID environment variable: %w", err)
			}
		}
	}
	if cfg.TelegramChatID == 0 {
		return Config{}, fmt.Errorf("'telegram_chat_id' param is required in yaml config")
	}

	if tmp.OrderIDPattern == "" {
		return Config{}, fmt.Errorf("'order_id_pattern' param is required in yaml config")
	}
	cfg.OrderIDPattern, err = regexp.Compile(tmp.OrderIDPattern)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'order_id_pattern' param in yaml config: %w", err)
	}

	if tmp.VolumeScale == "" {
		tmp.VolumeScale = defaultVolumeScale
	}
	cfg.VolumeScale, err = decimal.NewFromString(tmp.VolumeScale)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'volume_scale' param in yaml config (must be a decimal), error: %w", err)
	}
	if cfg.VolumeScale.LessThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("incorrect 'volume_scale' param in yaml config: must be greater than 1.0, got %s", cfg.VolumeScale)
	}

	if tmp.QuoteCoverage == "" {
		tmp.QuoteCoverage = defaultQuoteCoverage
	}
	cfg.QuoteCoverage, err = decimal.NewFromString(tmp.QuoteCoverage)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'quote_coverage' param in yaml config (must be a decimal), error: %w", err)
	}
	if cfg.QuoteCoverage.IsNegative() || cfg.QuoteCoverage.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("incorrect 'quote_coverage' param in yaml config: must be between 0 and 1, got %s", cfg.QuoteCoverage)
	}

	if cfg.ReferenceAsset == "" {
		cfg.ReferenceAsset = defaultReferenceAsset
	}

	if tmp.RebalanceHourUTC != nil {
		cfg.RebalanceHourUTC = *tmp.RebalanceHourUTC
	}
	if cfg.RebalanceHourUTC < 0 || cfg.RebalanceHourUTC > 23 {
		return Config{}, fmt.Errorf("incorrect 'rebalance_hour_utc' param in yaml config: %d", cfg.RebalanceHourUTC)
	}
	if cfg.RebalanceMinuteUTC < 0 || cfg.RebalanceMinuteUTC > 59 {
		return Config{}, fmt.Errorf("incorrect 'rebalance_minute_utc' param in yaml config: %d", cfg.RebalanceMinuteUTC)
	}

	return cfg, nil
}
