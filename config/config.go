package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the search service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Events    EventsConfig    `mapstructure:"events"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

// LLMConfig selects the text generation provider and the models used per stage.
type LLMConfig struct {
	Provider    string          `mapstructure:"provider"` // openai, anthropic
	OpenAI      OpenAIConfig    `mapstructure:"openai"`
	Anthropic   AnthropicConfig `mapstructure:"anthropic"`
	Routing     LLMRouting      `mapstructure:"routing"`
	MaxTokens   int             `mapstructure:"max_tokens"`
	Temperature float64         `mapstructure:"temperature"`
}

// OpenAIConfig covers both api.openai.com and Azure OpenAI deployments.
type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	APIVersion string        `mapstructure:"api_version"` // set for Azure
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig contains Anthropic Messages API settings
type AnthropicConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMRouting defines which model to use for each pipeline stage
type LLMRouting struct {
	Decomposition string `mapstructure:"decomposition"`
	Synthesis     string `mapstructure:"synthesis"`
}

func (c LLMConfig) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.Provider)
	}
	if strings.TrimSpace(c.Routing.Decomposition) == "" || strings.TrimSpace(c.Routing.Synthesis) == "" {
		return fmt.Errorf("llm.routing.decomposition and llm.routing.synthesis are required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0")
	}
	return nil
}

// SearchConfig selects the document search provider.
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // coveo, serper, brave, local
	Locale       string        `mapstructure:"locale"`
	SortCriteria string        `mapstructure:"sort_criteria"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Coveo        CoveoConfig   `mapstructure:"coveo"`
	Serper       APIKeyConfig  `mapstructure:"serper"`
	Brave        APIKeyConfig  `mapstructure:"brave"`
	Local        LocalConfig   `mapstructure:"local"`
}

// CoveoConfig contains Coveo search REST API settings
type CoveoConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Token         string `mapstructure:"token"`
	ExcerptLength int    `mapstructure:"excerpt_length"`
}

type APIKeyConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LocalConfig points the bleve provider at a JSON corpus.
type LocalConfig struct {
	CorpusPath string `mapstructure:"corpus_path"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "coveo":
		if strings.TrimSpace(s.Coveo.Endpoint) == "" {
			return fmt.Errorf("search.coveo.endpoint required")
		}
	case "serper", "brave":
	case "local":
		if strings.TrimSpace(s.Local.CorpusPath) == "" {
			return fmt.Errorf("search.local.corpus_path required")
		}
	default:
		return fmt.Errorf("search.provider must be one of coveo, serper, brave, local, got %q", s.Provider)
	}
	return nil
}

// PipelineConfig holds the static tunables of the query pipeline.
type PipelineConfig struct {
	MaxSubQueries     int           `mapstructure:"max_sub_queries"`
	ResultsPerQuery   int           `mapstructure:"results_per_query"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
	OrphanTTL         time.Duration `mapstructure:"orphan_ttl"`
}

// maxPipelineFanOut caps both the sub-query count and the results kept per
// sub-query.
const maxPipelineFanOut = 3

func (p PipelineConfig) Validate() error {
	if p.MaxSubQueries <= 0 || p.MaxSubQueries > maxPipelineFanOut {
		return fmt.Errorf("pipeline.max_sub_queries must be between 1 and %d, got %d", maxPipelineFanOut, p.MaxSubQueries)
	}
	if p.ResultsPerQuery <= 0 || p.ResultsPerQuery > maxPipelineFanOut {
		return fmt.Errorf("pipeline.results_per_query must be between 1 and %d, got %d", maxPipelineFanOut, p.ResultsPerQuery)
	}
	if p.KeepaliveInterval <= 0 {
		return fmt.Errorf("pipeline.keepalive_interval must be > 0")
	}
	return nil
}

// EventsConfig selects where progress events are published.
type EventsConfig struct {
	Backend       string `mapstructure:"backend"` // memory, redis
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

func (e EventsConfig) Validate() error {
	switch e.Backend {
	case "memory", "redis":
		return nil
	default:
		return fmt.Errorf("events.backend must be memory or redis, got %q", e.Backend)
	}
}

// StorageConfig contains external storage settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// TelemetryConfig contains tracing and metrics settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.max_processing_time", 5*time.Minute)
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.timeout", 60*time.Second)
	v.SetDefault("llm.anthropic.timeout", 60*time.Second)
	v.SetDefault("llm.routing.decomposition", "gpt-4o-mini")
	v.SetDefault("llm.routing.synthesis", "gpt-4o")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("search.provider", "coveo")
	v.SetDefault("search.locale", "en")
	v.SetDefault("search.sort_criteria", "relevancy")
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.coveo.excerpt_length", 10000)
	v.SetDefault("pipeline.max_sub_queries", 3)
	v.SetDefault("pipeline.results_per_query", 3)
	v.SetDefault("pipeline.keepalive_interval", 30*time.Second)
	v.SetDefault("pipeline.subscriber_buffer", 64)
	v.SetDefault("pipeline.orphan_ttl", 10*time.Minute)
	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.channel_prefix", "citesearch:events")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("telemetry.service_name", "citesearch")

	// registered so AutomaticEnv can populate them during Unmarshal
	for _, key := range []string{
		"log.file",
		"llm.openai.api_key", "llm.openai.api_version", "llm.anthropic.api_key",
		"search.coveo.endpoint", "search.coveo.token",
		"search.serper.api_key", "search.brave.api_key", "search.local.corpus_path",
		"storage.redis.host", "storage.redis.password",
		"telemetry.otlp_endpoint",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads configuration from path (or the default search paths when empty)
// and the CITESEARCH_* environment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CITESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	if c.Events.Backend == "redis" {
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig loads config from file and panics on failure
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
