package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rpattn/paperatlas/internal/db"
)

// Config is the full process configuration.
type Config struct {
	DB        db.Config
	Addr      string
	Embedding EmbeddingConfig
	Query     QueryConfig
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	BaseURL string
	Token   string
	Model   string
}

// QueryConfig holds query-engine tunables.
type QueryConfig struct {
	PrefilterCap       int
	StatementTimeoutMs int
	SeqScanRowWarn     int64
	NodeSelfTimeWarnMs float64
}

// Load reads config.yaml plus environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{
		DB:   db.DefaultConfig(),
		Addr: ":8080",
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()             // allow environment overrides
	v.SetEnvPrefix("PAPERATLAS") // map env vars like PAPERATLAS_DATABASE_HOST

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("embedding.base_url")
	v.BindEnv("embedding.token")
	v.BindEnv("embedding.model")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.DB.MaxConns = int32(v.GetInt("database.max_conns"))
	}

	if v.IsSet("server.addr") {
		cfg.Addr = v.GetString("server.addr")
	}

	if v.IsSet("embedding.base_url") {
		cfg.Embedding.BaseURL = v.GetString("embedding.base_url")
	}
	if v.IsSet("embedding.token") {
		cfg.Embedding.Token = v.GetString("embedding.token")
	}
	if v.IsSet("embedding.model") {
		cfg.Embedding.Model = v.GetString("embedding.model")
	}

	if v.IsSet("query.prefilter_cap") {
		cfg.Query.PrefilterCap = v.GetInt("query.prefilter_cap")
	}
	if v.IsSet("query.statement_timeout_ms") {
		cfg.Query.StatementTimeoutMs = v.GetInt("query.statement_timeout_ms")
	}
	if v.IsSet("query.seq_scan_row_warn") {
		cfg.Query.SeqScanRowWarn = v.GetInt64("query.seq_scan_row_warn")
	}
	if v.IsSet("query.node_self_time_warn_ms") {
		cfg.Query.NodeSelfTimeWarnMs = v.GetFloat64("query.node_self_time_warn_ms")
	}

	return cfg, nil
}
