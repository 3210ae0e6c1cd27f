// Package config provides a reusable loader for flureedb's configuration
// files and environment variables (viper-backed, mirroring the teacher's
// pkg/config.Load / LoadFromEnv contract).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"flureedb/pkg/ferr"
)

// Config is the unified configuration for a flureedb connection.
type Config struct {
	Ledger struct {
		DefaultAlias      string `mapstructure:"default_alias" json:"default_alias"`
		IndexingDisabled  bool   `mapstructure:"indexing_disabled" json:"indexing_disabled"`
		MaxOldIndexes     int    `mapstructure:"max_old_indexes" json:"max_old_indexes"`
		ReindexMinBytes   int64  `mapstructure:"reindex_min_bytes" json:"reindex_min_bytes"`
		ReindexMaxBytes   int64  `mapstructure:"reindex_max_bytes" json:"reindex_max_bytes"`
	} `mapstructure:"ledger" json:"ledger"`

	Storage struct {
		Method        string `mapstructure:"method" json:"method"`
		CommitDir     string `mapstructure:"commit_dir" json:"commit_dir"`
		IndexDir      string `mapstructure:"index_dir" json:"index_dir"`
		CacheEntries  int    `mapstructure:"cache_entries" json:"cache_entries"`
	} `mapstructure:"storage" json:"storage"`

	Nameservice struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		Topic          string   `mapstructure:"topic" json:"topic"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"nameservice" json:"nameservice"`

	Conn struct {
		ParallelismLimit int `mapstructure:"parallelism_limit" json:"parallelism_limit"`
		IdleTTLSeconds   int `mapstructure:"idle_ttl_seconds" json:"idle_ttl_seconds"`
	} `mapstructure:"conn" json:"conn"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("ledger.max_old_indexes", 3)
	viper.SetDefault("ledger.reindex_min_bytes", 100_000)
	viper.SetDefault("ledger.reindex_max_bytes", 500_000)
	viper.SetDefault("storage.method", "file")
	viper.SetDefault("storage.cache_entries", 4096)
	viper.SetDefault("nameservice.topic", "flureedb/commits")
	viper.SetDefault("conn.parallelism_limit", 4)
	viper.SetDefault("conn.idle_ttl_seconds", 300)
	viper.SetDefault("logging.level", "info")
}

// Load reads configuration files and merges any environment-specific
// overrides, the way the teacher's pkg/config.Load does. The result is
// stored in AppConfig and returned.
func Load(env string) (*Config, error) {
	setDefaults()
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ferr.Wrap(ferr.KindUnexpectedError, err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, ferr.Wrap(ferr.KindUnexpectedError, err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, ferr.Wrap(ferr.KindUnexpectedError, err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the FLUREEDB_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(EnvOrDefault("FLUREEDB_ENV", ""))
}

// LoadYAMLFile reads a standalone YAML document straight into Config,
// bypassing viper entirely. This is the path an embedder takes to hand
// us a one-off devnet/testnet-style file rather than the layered
// default+env config Load merges from a config/ directory.
func LoadYAMLFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindUnexpectedError, err, fmt.Sprintf("read config file %s", path))
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, ferr.Wrap(ferr.KindUnexpectedError, err, fmt.Sprintf("parse config file %s", path))
	}
	// Config's json tags carry the same snake_case keys Load reads through
	// viper, so the document is decoded through them.
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindUnexpectedError, err, fmt.Sprintf("parse config file %s", path))
	}
	var cfg Config
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, ferr.Wrap(ferr.KindUnexpectedError, err, fmt.Sprintf("parse config file %s", path))
	}
	return &cfg, nil
}
