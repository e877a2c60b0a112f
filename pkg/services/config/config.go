// Package config loads the immutable runtime configuration. Everything comes
// from environment variables (optionally a config file), is validated once at
// startup, and is passed by value into the components that need it.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

const DefaultCloudZeroURL = "https://api.cloudzero.com"

type Config struct {
	SumoAccessKey  string `mapstructure:"sumo_access_key"`
	SumoSecretKey  string `mapstructure:"sumo_secret_key"`
	SumoOrgID      string `mapstructure:"sumo_org_id"`
	SumoDeployment string `mapstructure:"sumo_deployment"`

	CZAuthKey  string `mapstructure:"cz_auth_key"`
	CZStreamID string `mapstructure:"cz_anycost_stream_connection_id"`
	CZURL      string `mapstructure:"cz_url"`

	// Credit rates convert gigabytes (or kDPM for metrics) into Sumo credits
	// inside the usage queries.
	LogContinuousCreditRate     float64 `mapstructure:"log_continuous_credit_rate"`
	LogFrequentCreditRate       float64 `mapstructure:"log_frequent_credit_rate"`
	LogInfrequentCreditRate     float64 `mapstructure:"log_infrequent_credit_rate"`
	LogInfrequentScanCreditRate float64 `mapstructure:"log_infrequent_scan_credit_rate"`
	MetricsCreditRate           float64 `mapstructure:"metrics_credit_rate"`
	TracingCreditRate           float64 `mapstructure:"tracing_credit_rate"`
	CostPerCredit               float64 `mapstructure:"cost_per_credit"`

	QueryTimeDays  float64 `mapstructure:"query_time_days"`
	QueryTimeHours float64 `mapstructure:"query_time_hours"`
}

// Load reads configuration from the environment, plus an optional config file
// when path is non-empty. Missing credentials are a fatal startup error.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("cz_url", DefaultCloudZeroURL)
	v.SetDefault("log_continuous_credit_rate", 20.0)
	v.SetDefault("log_frequent_credit_rate", 9.0)
	v.SetDefault("log_infrequent_credit_rate", 0.4)
	v.SetDefault("log_infrequent_scan_credit_rate", 0.016)
	v.SetDefault("metrics_credit_rate", 3.0)
	v.SetDefault("tracing_credit_rate", 14.0)
	v.SetDefault("cost_per_credit", 0.15)
	v.SetDefault("query_time_days", 1.0)
	v.SetDefault("query_time_hours", 0.0)

	v.AutomaticEnv()
	// AutomaticEnv alone does not surface env-only keys to Unmarshal.
	for _, key := range []string{
		"sumo_access_key", "sumo_secret_key", "sumo_org_id", "sumo_deployment",
		"cz_auth_key", "cz_anycost_stream_connection_id", "cz_url",
		"log_continuous_credit_rate", "log_frequent_credit_rate",
		"log_infrequent_credit_rate", "log_infrequent_scan_credit_rate",
		"metrics_credit_rate", "tracing_credit_rate", "cost_per_credit",
		"query_time_days", "query_time_hours",
	} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.QueryTimeHours == 0 {
		cfg.QueryTimeHours = cfg.QueryTimeDays * 24
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	required := []struct{ name, value string }{
		{"SUMO_ACCESS_KEY", c.SumoAccessKey},
		{"SUMO_SECRET_KEY", c.SumoSecretKey},
		{"SUMO_ORG_ID", c.SumoOrgID},
		{"SUMO_DEPLOYMENT", c.SumoDeployment},
		{"CZ_AUTH_KEY", c.CZAuthKey},
		{"CZ_ANYCOST_STREAM_CONNECTION_ID", c.CZStreamID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s not set", r.name)
		}
	}
	return nil
}
