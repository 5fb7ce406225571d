package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Logger       LoggerConfig
	Redis        RedisConfig
	Embedding    EmbeddingConfig
	Scoring      ScoringConfig
	Retriever    RetrieverConfig
	Evaluation   EvaluationConfig
	AnswerParser AnswerParserConfig
	Confidence   ConfidenceConfig
	CacheTTLs    CacheTTLConfig
	OpenAIAPIKey string `yaml:"openai_api_key"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EmbeddingConfig struct {
	Model string `yaml:"model"`
}

type ScoringConfig struct {
	ServerURL   string        `yaml:"server_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RetrieverConfig struct {
	TopK             int           `yaml:"top_k"`
	ContextCharLimit int           `yaml:"context_char_limit"`
	MinKeywordLength int           `yaml:"min_keyword_length"`
	KeywordBoostCap  int           `yaml:"keyword_boost_cap"`
	KeywordBoostStep float64       `yaml:"keyword_boost_step"`
	Timeout          time.Duration `yaml:"timeout"`
}

type EvaluationConfig struct {
	Workers              int     `yaml:"workers"`
	FallbackConfidence   float64 `yaml:"fallback_confidence"`
	ExpectedCharsPerMark int     `yaml:"expected_chars_per_mark"`
}

type AnswerParserConfig struct {
	MCQMinShortFragments int `yaml:"mcq_min_short_fragments"`
	MCQMaxFragmentLength int `yaml:"mcq_max_fragment_length"`
}

// ConfidenceConfig holds the weights of the four confidence terms.
// Weights are expected to sum to 1; the result is clamped either way.
type ConfidenceConfig struct {
	RelevanceWeight   float64 `yaml:"relevance_weight"`
	LengthWeight      float64 `yaml:"length_weight"`
	KeywordWeight     float64 `yaml:"keyword_weight"`
	ConsistencyWeight float64 `yaml:"consistency_weight"`
}

type CacheTTLConfig struct {
	Embedding string `yaml:"embedding"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if os.Getenv("ENV") == "test" {
		viper.AddConfigPath("../../config")
		viper.AddConfigPath("../../")
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{
		Logger: LoggerConfig{
			Level: viper.GetString("logger.level"),
			Env:   viper.GetString("logger.env"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Embedding: EmbeddingConfig{
			Model: viper.GetString("embedding.model"),
		},
		Scoring: ScoringConfig{
			ServerURL:   viper.GetString("scoring.server_url"),
			Model:       viper.GetString("scoring.model"),
			Temperature: viper.GetFloat64("scoring.temperature"),
			Timeout:     viper.GetDuration("scoring.timeout"),
		},
		Retriever: RetrieverConfig{
			TopK:             viper.GetInt("retriever.top_k"),
			ContextCharLimit: viper.GetInt("retriever.context_char_limit"),
			MinKeywordLength: viper.GetInt("retriever.min_keyword_length"),
			KeywordBoostCap:  viper.GetInt("retriever.keyword_boost_cap"),
			KeywordBoostStep: viper.GetFloat64("retriever.keyword_boost_step"),
			Timeout:          viper.GetDuration("retriever.timeout"),
		},
		Evaluation: EvaluationConfig{
			Workers:              viper.GetInt("evaluation.workers"),
			FallbackConfidence:   viper.GetFloat64("evaluation.fallback_confidence"),
			ExpectedCharsPerMark: viper.GetInt("evaluation.expected_chars_per_mark"),
		},
		AnswerParser: AnswerParserConfig{
			MCQMinShortFragments: viper.GetInt("answer_parser.mcq_min_short_fragments"),
			MCQMaxFragmentLength: viper.GetInt("answer_parser.mcq_max_fragment_length"),
		},
		Confidence: ConfidenceConfig{
			RelevanceWeight:   viper.GetFloat64("confidence.relevance_weight"),
			LengthWeight:      viper.GetFloat64("confidence.length_weight"),
			KeywordWeight:     viper.GetFloat64("confidence.keyword_weight"),
			ConsistencyWeight: viper.GetFloat64("confidence.consistency_weight"),
		},
		CacheTTLs: CacheTTLConfig{
			Embedding: viper.GetString("cache_ttls.embedding"),
		},
		OpenAIAPIKey: viper.GetString("openai_api_key"),
	}

	// Environment variable overrides for deployment
	if addr := os.Getenv("REDIS_ADDRESS"); addr != "" {
		config.Redis.Address = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if server := os.Getenv("SCORING_SERVER"); server != "" {
		config.Scoring.ServerURL = server
	}
	if model := os.Getenv("SCORING_MODEL"); model != "" {
		config.Scoring.Model = model
	}
	if openAIKey := os.Getenv("OPENAI_API_KEY"); openAIKey != "" {
		config.OpenAIAPIKey = openAIKey
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.env", "development")
	viper.SetDefault("embedding.model", "text-embedding-ada-002")
	viper.SetDefault("scoring.server_url", "http://localhost:11434")
	viper.SetDefault("scoring.model", "llama3.2:3b")
	viper.SetDefault("scoring.temperature", 0.3)
	viper.SetDefault("scoring.timeout", "30s")
	viper.SetDefault("retriever.top_k", 5)
	viper.SetDefault("retriever.context_char_limit", 2000)
	viper.SetDefault("retriever.min_keyword_length", 3)
	viper.SetDefault("retriever.keyword_boost_cap", 5)
	viper.SetDefault("retriever.keyword_boost_step", 0.02)
	viper.SetDefault("retriever.timeout", "10s")
	viper.SetDefault("evaluation.workers", 4)
	viper.SetDefault("evaluation.fallback_confidence", 0.2)
	viper.SetDefault("evaluation.expected_chars_per_mark", 40)
	viper.SetDefault("answer_parser.mcq_min_short_fragments", 10)
	viper.SetDefault("answer_parser.mcq_max_fragment_length", 3)
	viper.SetDefault("confidence.relevance_weight", 0.4)
	viper.SetDefault("confidence.length_weight", 0.2)
	viper.SetDefault("confidence.keyword_weight", 0.2)
	viper.SetDefault("confidence.consistency_weight", 0.2)
	viper.SetDefault("cache_ttls.embedding", "168h")
}

// ParseTTLStringOrDefault parses a duration string from config, falling back
// to def when the string is empty or malformed.
func (c *Config) ParseTTLStringOrDefault(ttl string, def time.Duration) time.Duration {
	if ttl == "" {
		return def
	}
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return def
	}
	return d
}
