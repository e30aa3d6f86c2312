package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Queue        QueueConfig        `yaml:"queue"`
	Store        StoreConfig        `yaml:"store"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Reflection   ReflectionConfig   `yaml:"reflection"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Lua          LuaConfig          `yaml:"lua"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type LLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	TriageModel string `yaml:"triage_model"`
	SafetyModel string `yaml:"safety_model"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type QueueConfig struct {
	RedisAddr  string `yaml:"redis_addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	InboundKey string `yaml:"inbound_key"`
}

type StoreConfig struct {
	// Driver is "sqlite" or "postgres". Postgres covers Supabase deployments.
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

type OrchestratorConfig struct {
	MaxIterations     int           `yaml:"max_iterations"`
	CapabilityTimeout time.Duration `yaml:"capability_timeout"`
	FailureThreshold  int           `yaml:"failure_threshold"`
}

type ReflectionConfig struct {
	Enabled bool `yaml:"enabled"`
}

type GatewayConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type SchedulerConfig struct {
	Approvers      []string       `yaml:"approvers"`
	MaxJobsPerUser int            `yaml:"max_jobs_per_user"`
	Jobs           []SchedulerJob `yaml:"jobs"`
}

// SchedulerJob is a config-defined job. Dynamic jobs created at runtime
// persist under the store's data directory instead.
type SchedulerJob struct {
	Name      string `yaml:"name"`
	Spec      string `yaml:"spec"`
	Message   string `yaml:"message"`
	RespondTo string `yaml:"respond_to"`
}

type LuaConfig struct {
	CapabilitiesDir string `yaml:"capabilities_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func (c *Config) expandSecrets() {
	c.LLM.BaseURL = expandEnv(c.LLM.BaseURL)
	c.LLM.APIKey = expandEnv(c.LLM.APIKey)
	c.Queue.RedisAddr = expandEnv(c.Queue.RedisAddr)
	c.Queue.Password = expandEnv(c.Queue.Password)
	c.Store.DSN = expandEnv(c.Store.DSN)
}

func (c *Config) applyDefaults() {
	if c.LLM.TriageModel == "" {
		c.LLM.TriageModel = c.LLM.Model
	}
	if c.LLM.SafetyModel == "" {
		c.LLM.SafetyModel = c.LLM.Model
	}
	if c.Queue.InboundKey == "" {
		c.Queue.InboundKey = "coachartie:inbound"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "./data"
	}
	if c.Orchestrator.MaxIterations <= 0 {
		c.Orchestrator.MaxIterations = 10
	}
	if c.Orchestrator.CapabilityTimeout <= 0 {
		c.Orchestrator.CapabilityTimeout = 30 * time.Second
	}
	if c.Orchestrator.FailureThreshold <= 0 {
		c.Orchestrator.FailureThreshold = 3
	}
	if c.Gateway.ListenAddr == "" {
		c.Gateway.ListenAddr = ":8787"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("config: llm.model is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return fmt.Errorf("config: store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for postgres")
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandSecrets()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
