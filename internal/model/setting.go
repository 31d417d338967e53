package model

import (
	"fmt"
	"net/url"
	"strconv"
)

type SettingKey string

const (
	SettingKeyProxyURL            SettingKey = "proxy_url"
	SettingKeyMarkupPercent       SettingKey = "markup_percent"         // markup applied on upstream unit price (%)
	SettingKeyOrderCapUSD         SettingKey = "order_cap_usd"          // hard cap for one order (USD)
	SettingKeyMinQuota            SettingKey = "min_quota"              // minimum purchasable quota amount
	SettingKeyPriceTTLMinutes     SettingKey = "price_ttl_minutes"      // upstream pricing cache TTL (minutes)
	SettingKeyStatsSaveInterval   SettingKey = "stats_save_interval"    // stats flush period (minutes)
	SettingKeyUsageLogKeepPeriod  SettingKey = "usage_log_keep_period"  // usage log retention (days)
	SettingKeyUsageLogKeepEnabled SettingKey = "usage_log_keep_enabled" // whether usage logs are persisted
	SettingKeyCORSAllowOrigins    SettingKey = "cors_allow_origins"     // comma separated list, "" = none, "*" = all
)

type Setting struct {
	Key   SettingKey `json:"key" gorm:"primaryKey"`
	Value string     `json:"value" gorm:"not null"`
}

func DefaultSettings() []Setting {
	return []Setting{
		{Key: SettingKeyProxyURL, Value: ""},
		{Key: SettingKeyMarkupPercent, Value: "20"},
		{Key: SettingKeyOrderCapUSD, Value: "20"},
		{Key: SettingKeyMinQuota, Value: "100"},
		{Key: SettingKeyPriceTTLMinutes, Value: "10"},
		{Key: SettingKeyStatsSaveInterval, Value: "10"},
		{Key: SettingKeyUsageLogKeepPeriod, Value: "7"},
		{Key: SettingKeyUsageLogKeepEnabled, Value: "true"},
		{Key: SettingKeyCORSAllowOrigins, Value: ""},
	}
}

func (s *Setting) Validate() error {
	switch s.Key {
	case SettingKeyMinQuota, SettingKeyPriceTTLMinutes, SettingKeyStatsSaveInterval, SettingKeyUsageLogKeepPeriod:
		v, err := strconv.Atoi(s.Value)
		if err != nil || v < 0 {
			return fmt.Errorf("%s must be a non-negative integer", s.Key)
		}
		return nil
	case SettingKeyMarkupPercent, SettingKeyOrderCapUSD:
		v, err := strconv.ParseFloat(s.Value, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("%s must be a non-negative number", s.Key)
		}
		return nil
	case SettingKeyUsageLogKeepEnabled:
		if s.Value != "true" && s.Value != "false" {
			return fmt.Errorf("usage log keep enabled must be true or false")
		}
		return nil
	case SettingKeyProxyURL:
		if s.Value == "" {
			return nil
		}
		parsedURL, err := url.Parse(s.Value)
		if err != nil {
			return fmt.Errorf("proxy URL is invalid: %w", err)
		}
		validSchemes := map[string]bool{
			"http":  true,
			"https": true,
			"socks": true,
		}
		if !validSchemes[parsedURL.Scheme] {
			return fmt.Errorf("proxy URL scheme must be http, https, or socks")
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("proxy URL must have a host")
		}
		return nil
	}

	return nil
}
