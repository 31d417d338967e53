package conf

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/tokengate/tokengate/internal/utils/log"
)

type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Database struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

type Upstream struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type Rates struct {
	BaseURL    string `mapstructure:"base_url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// Currency describes one supported settlement rail.
type Currency struct {
	Code             string  `mapstructure:"code"`    // e.g. "usdt-trc20"
	Symbol           string  `mapstructure:"symbol"`  // e.g. "USDT"
	RateID           string  `mapstructure:"rate_id"` // identifier at the rate provider
	Indexer          string  `mapstructure:"indexer"` // tron | esplora | etherscan
	IndexerURL       string  `mapstructure:"indexer_url"`
	PollSeconds      int     `mapstructure:"poll_seconds"`
	MinConfirmations int     `mapstructure:"min_confirmations"`
	MinAmount        float64 `mapstructure:"min_amount"`    // smallest transferable amount
	FallbackRate     float64 `mapstructure:"fallback_rate"` // USD rate used when the provider is down
}

type Payment struct {
	MasterSecret string     `mapstructure:"master_secret"`
	ExpiryHours  int        `mapstructure:"expiry_hours"`
	Currencies   []Currency `mapstructure:"currencies"`
}

type Notify struct {
	UserWebhook     string `mapstructure:"user_webhook"`
	OperatorWebhook string `mapstructure:"operator_webhook"`
}

type Config struct {
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Database Database `mapstructure:"database"`
	Upstream Upstream `mapstructure:"upstream"`
	Rates    Rates    `mapstructure:"rates"`
	Payment  Payment  `mapstructure:"payment"`
	Notify   Notify   `mapstructure:"notify"`
}

var AppConfig Config

func Load(path string) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("json")
		viper.AddConfigPath("data")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(APP_NAME)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		log.Infof("Using config file: %s", viper.ConfigFileUsed())
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Infof("Config file not found, creating default config")
			if err := os.MkdirAll("data", 0755); err != nil {
				log.Errorf("Failed to create data directory: %v", err)
			}
			if err := viper.SafeWriteConfigAs("data/config.json"); err != nil {
				log.Errorf("Failed to create default config: %v", err)
			}
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return Validate(&AppConfig)
}

func Validate(cfg *Config) error {
	if cfg.Payment.MasterSecret == "" {
		return fmt.Errorf("payment.master_secret must be set")
	}
	if cfg.Payment.ExpiryHours <= 0 {
		return fmt.Errorf("payment.expiry_hours must be positive")
	}
	seen := make(map[string]struct{}, len(cfg.Payment.Currencies))
	for _, cur := range cfg.Payment.Currencies {
		if cur.Code == "" {
			return fmt.Errorf("payment currency with empty code")
		}
		if _, ok := seen[cur.Code]; ok {
			return fmt.Errorf("duplicate payment currency: %s", cur.Code)
		}
		seen[cur.Code] = struct{}{}
	}
	return nil
}

// CurrencyByCode returns the configured rail for code, if any.
func CurrencyByCode(code string) (Currency, bool) {
	for _, cur := range AppConfig.Payment.Currencies {
		if cur.Code == code {
			return cur, true
		}
	}
	return Currency{}, false
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.path", "data/data.db")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("upstream.base_url", "https://api.openai.com")
	viper.SetDefault("rates.base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("rates.ttl_seconds", 120)
	viper.SetDefault("payment.expiry_hours", 24)
	viper.SetDefault("payment.currencies", defaultCurrencies())
}

func defaultCurrencies() []map[string]any {
	return []map[string]any{
		{
			"code": "usdt-trc20", "symbol": "USDT", "rate_id": "tether",
			"indexer": "tron", "indexer_url": "https://api.trongrid.io",
			"poll_seconds": 30, "min_confirmations": 19,
			"min_amount": 1, "fallback_rate": 1,
		},
		{
			"code": "eth", "symbol": "ETH", "rate_id": "ethereum",
			"indexer": "etherscan", "indexer_url": "https://api.etherscan.io/api",
			"poll_seconds": 60, "min_confirmations": 12,
			"min_amount": 0.002, "fallback_rate": 3000,
		},
		{
			"code": "btc", "symbol": "BTC", "rate_id": "bitcoin",
			"indexer": "esplora", "indexer_url": "https://blockstream.info/api",
			"poll_seconds": 120, "min_confirmations": 2,
			"min_amount": 0.0002, "fallback_rate": 60000,
		},
	}
}
