package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported model providers
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for the GitHub activity agent service
type Config struct {
	// Server configuration
	Port               string   `envconfig:"PORT" default:"8000"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	GRPCHealthPort     string   `envconfig:"GRPC_HEALTH_PORT" default:""` // empty disables the gRPC health service

	// Model provider configuration
	ModelProvider    string  `envconfig:"MODEL_PROVIDER" default:"groq"` // groq, openai, anthropic
	GroqAPIKey       string  `envconfig:"GROQ_API_KEY"`
	OpenAIAPIKey     string  `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey  string  `envconfig:"ANTHROPIC_API_KEY"`
	ModelName        string  `envconfig:"MODEL_NAME" default:"llama3-8b-8192"`
	ModelBaseURL     string  `envconfig:"MODEL_BASE_URL" default:""` // empty uses the provider's public endpoint
	ModelTemperature float64 `envconfig:"MODEL_TEMPERATURE" default:"0"`
	ModelMaxTokens   int64   `envconfig:"MODEL_MAX_TOKENS" default:"4096"`

	// Agent configuration
	AgentMaxSteps      int      `envconfig:"AGENT_MAX_STEPS" default:"25"`
	ToolResultPrefixes []string `envconfig:"TOOL_RESULT_PREFIXES" default:"I called the tool"`

	// GitHub CLI configuration
	GitHubOrg         string `envconfig:"GITHUB_ORG" default:"Chili-Piper"`
	GitHubDefaultRepo string `envconfig:"GITHUB_DEFAULT_REPO" default:"frontend"`
	GHBinary          string `envconfig:"GH_BINARY" default:"gh"`

	// Resilience configuration for model calls
	CircuitBreakerMaxFailures  int           `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout time.Duration `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30s"`
	RetryMaxAttempts           int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        time.Duration `envconfig:"RETRY_INITIAL_BACKOFF" default:"200ms"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that envconfig tags cannot express.
// A missing credential for the selected provider is fatal at startup.
func (c *Config) Validate() error {
	c.ModelProvider = strings.ToLower(strings.TrimSpace(c.ModelProvider))
	switch c.ModelProvider {
	case ProviderGroq, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported MODEL_PROVIDER %q", c.ModelProvider)
	}

	if c.APIKey() == "" {
		return fmt.Errorf("%s is required for provider %s", c.APIKeyEnv(), c.ModelProvider)
	}
	if c.AgentMaxSteps <= 0 {
		return fmt.Errorf("AGENT_MAX_STEPS must be positive, got %d", c.AgentMaxSteps)
	}
	if c.GitHubOrg == "" {
		return fmt.Errorf("GITHUB_ORG is required")
	}
	return nil
}

// APIKey returns the credential for the configured provider
func (c *Config) APIKey() string {
	switch c.ModelProvider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	default:
		return c.GroqAPIKey
	}
}

// APIKeyEnv names the environment variable holding the provider credential
func (c *Config) APIKeyEnv() string {
	switch c.ModelProvider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "GROQ_API_KEY"
	}
}

// GroqBaseURL is the OpenAI-compatible endpoint used for the groq provider
const GroqBaseURL = "https://api.groq.com/openai/v1"

// BaseURL returns the model endpoint, falling back to the provider default
func (c *Config) BaseURL() string {
	if c.ModelBaseURL != "" {
		return c.ModelBaseURL
	}
	if c.ModelProvider == ProviderGroq {
		return GroqBaseURL
	}
	return ""
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
