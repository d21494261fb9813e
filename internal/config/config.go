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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Connectors ConnectorsConfig `yaml:"connectors" mapstructure:"connectors"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Apply      ApplyConfig      `yaml:"apply" mapstructure:"apply"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LLMConfig selects and configures the extraction backend.
type LLMConfig struct {
	Backend   string          `yaml:"backend" mapstructure:"backend"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
}

// OpenAIConfig holds settings for any OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ConnectorsConfig configures the evidence sources.
type ConnectorsConfig struct {
	FamilySearch FamilySearchConfig `yaml:"familysearch" mapstructure:"familysearch"`
	NARA         NARAConfig         `yaml:"nara" mapstructure:"nara"`
	LOC          LOCConfig          `yaml:"loc" mapstructure:"loc"`
	Local        LocalConfig        `yaml:"local" mapstructure:"local"`
	File         string             `yaml:"file" mapstructure:"file"`
}

// FamilySearchConfig holds FamilySearch API credentials.
type FamilySearchConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
}

// NARAConfig holds National Archives catalog API settings.
type NARAConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// LOCConfig holds Library of Congress search settings.
type LOCConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// LocalConfig configures the local records folder connector.
type LocalConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	FolderPath string `yaml:"folder_path" mapstructure:"folder_path"`
}

// ResearchConfig configures the research pipeline.
type ResearchConfig struct {
	MaxPeople             int     `yaml:"max_people" mapstructure:"max_people"`
	MaxRetries            int     `yaml:"max_retries" mapstructure:"max_retries"`
	MaxPerConnector       int     `yaml:"max_per_connector" mapstructure:"max_per_connector"`
	MaxTotal              int     `yaml:"max_total" mapstructure:"max_total"`
	MaxParallelConnectors int     `yaml:"max_parallel_connectors" mapstructure:"max_parallel_connectors"`
	MinimumScore          float64 `yaml:"minimum_score" mapstructure:"minimum_score"`
	PromptTemplateVersion string  `yaml:"prompt_template_version" mapstructure:"prompt_template_version"`
	JobTimeoutSecs        int     `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
	ConnectorTimeoutSecs  int     `yaml:"connector_timeout_secs" mapstructure:"connector_timeout_secs"`
}

// ApplyConfig configures the apply stage.
type ApplyConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
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
	v.SetEnvPrefix("DEEPGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "deepgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("llm.backend", "none")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("research.max_people", 10)
	v.SetDefault("research.max_retries", 2)
	v.SetDefault("research.max_per_connector", 6)
	v.SetDefault("research.max_total", 24)
	v.SetDefault("research.max_parallel_connectors", 4)
	v.SetDefault("research.minimum_score", 0.35)
	v.SetDefault("research.prompt_template_version", "v2")
	v.SetDefault("research.job_timeout_secs", 0)
	v.SetDefault("research.connector_timeout_secs", 8)
	v.SetDefault("apply.similarity_threshold", 0.93)

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

// Validate checks the invariants commands rely on before touching the
// store or the network.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch c.LLM.Backend {
	case "none", "openai", "anthropic":
	default:
		problems = append(problems, "llm.backend must be none, openai or anthropic")
	}

	if c.Research.MaxPeople < 1 {
		problems = append(problems, "research.max_people must be >= 1")
	}
	if c.Research.MaxRetries < 0 {
		problems = append(problems, "research.max_retries must be >= 0")
	}
	if c.Research.MaxPerConnector < 1 || c.Research.MaxTotal < 1 {
		problems = append(problems, "research caps must be >= 1")
	}
	if c.Research.MaxParallelConnectors < 1 {
		problems = append(problems, "research.max_parallel_connectors must be >= 1")
	}
	if c.Research.MinimumScore < 0 || c.Research.MinimumScore > 1 {
		problems = append(problems, "research.minimum_score must be within [0, 1]")
	}
	if c.Apply.SimilarityThreshold < 0 || c.Apply.SimilarityThreshold > 1 {
		problems = append(problems, "apply.similarity_threshold must be within [0, 1]")
	}

	if len(problems) > 0 {
		return eris.New("config: invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
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
