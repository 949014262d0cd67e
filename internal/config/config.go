package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourcesConfig configures the public drug-data providers.
type SourcesConfig struct {
	OpenFDA  SourceConfig `yaml:"openfda" mapstructure:"openfda"`
	DailyMed SourceConfig `yaml:"dailymed" mapstructure:"dailymed"`
	RxNorm   SourceConfig `yaml:"rxnorm" mapstructure:"rxnorm"`
	NADAC    SourceConfig `yaml:"nadac" mapstructure:"nadac"`
}

// SourceConfig holds per-provider connection settings. RequestsPerSec is
// the adapter's self-imposed rate limit; these APIs are keyless and strict.
type SourceConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// IngestConfig configures the ingestion orchestrator.
type IngestConfig struct {
	AdapterTimeoutSecs int `yaml:"adapter_timeout_secs" mapstructure:"adapter_timeout_secs"`
	LookupWorkers      int `yaml:"lookup_workers" mapstructure:"lookup_workers"`
}

// DiscoveryConfig configures the batch discovery driver.
type DiscoveryConfig struct {
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxBatches int    `yaml:"max_batches" mapstructure:"max_batches"`
	SeedFile   string `yaml:"seed_file" mapstructure:"seed_file"`
}

// EmbeddingConfig configures the optional search-embedding enrichment.
type EmbeddingConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DRUGFACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "drugfacts.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.adapter_timeout_secs", 90)
	v.SetDefault("ingest.lookup_workers", 4)
	v.SetDefault("discovery.batch_size", 20)
	v.SetDefault("discovery.max_batches", 5)
	v.SetDefault("sources.openfda.base_url", "https://api.fda.gov")
	v.SetDefault("sources.openfda.requests_per_sec", 0.66)
	v.SetDefault("sources.openfda.timeout_secs", 30)
	v.SetDefault("sources.openfda.max_retries", 3)
	v.SetDefault("sources.dailymed.base_url", "https://dailymed.nlm.nih.gov/dailymed")
	v.SetDefault("sources.dailymed.requests_per_sec", 1)
	v.SetDefault("sources.dailymed.timeout_secs", 45)
	v.SetDefault("sources.dailymed.max_retries", 3)
	v.SetDefault("sources.rxnorm.base_url", "https://rxnav.nlm.nih.gov/REST")
	v.SetDefault("sources.rxnorm.requests_per_sec", 2)
	v.SetDefault("sources.rxnorm.timeout_secs", 30)
	v.SetDefault("sources.rxnorm.max_retries", 3)
	v.SetDefault("sources.nadac.base_url", "https://data.medicaid.gov/api/1")
	v.SetDefault("sources.nadac.requests_per_sec", 2)
	v.SetDefault("sources.nadac.timeout_secs", 30)
	v.SetDefault("sources.nadac.max_retries", 3)
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
