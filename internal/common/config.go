package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment"` // "development" or "production"
	Server        ServerConfig        `toml:"server"`
	Workers       WorkersConfig       `toml:"workers"`
	Job           JobConfig           `toml:"job"`
	Broker        BrokerConfig        `toml:"broker"`
	Model         ModelConfig         `toml:"model"`
	Scanner       ScannerConfig       `toml:"scanner"`
	Analyzer      AnalyzerConfig      `toml:"analyzer"`
	Generator     GeneratorConfig     `toml:"generator"`
	ArtifactStore ArtifactStoreConfig `toml:"artifact_store"`
	Storage       StorageConfig       `toml:"storage"`
	Workspace     WorkspaceConfig     `toml:"workspace"`
	Logging       LoggingConfig       `toml:"logging"`
	Reaper        ReaperConfig        `toml:"reaper"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// WorkersConfig controls the job processing pool
type WorkersConfig struct {
	Count        int    `toml:"count"`         // Number of concurrent job slots
	PollInterval string `toml:"poll_interval"` // e.g., "1s" - how often idle slots poll the broker
}

// JobConfig controls per-job execution deadlines
type JobConfig struct {
	SoftDeadline string `toml:"soft_deadline"` // e.g., "55m" - checked between pipeline stages
	HardDeadline string `toml:"hard_deadline"` // e.g., "60m" - forcibly cancels the running job
	FetchTimeout string `toml:"fetch_timeout"` // e.g., "5m" - clone stage timeout
}

// BrokerConfig contains Redis task broker configuration
type BrokerConfig struct {
	Addr              string `toml:"addr"`               // Redis host:port
	Password          string `toml:"password"`           // Redis password (empty = no auth)
	DB                int    `toml:"db"`                 // Redis database number
	QueueName         string `toml:"queue_name"`         // Key prefix for broker structures
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "60m" - reservation lifetime, must cover the hard deadline
	MaxDeliveries     int    `toml:"max_deliveries"`     // Max times an item can be delivered before poison-pill
	EnqueueTimeout    string `toml:"enqueue_timeout"`    // e.g., "5s" - budget for handing a job to the broker
	ReclaimInterval   string `toml:"reclaim_interval"`   // e.g., "30s" - how often expired reservations are swept
}

// ModelConfig contains Anthropic Claude API configuration
type ModelConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`       // Model for generation (default: "claude-sonnet-4-20250514")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8000)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.3)
	Timeout     string  `toml:"timeout"`     // Per-call timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum spacing between calls (default: "1s")
	MaxRetries  int     `toml:"max_retries"` // Retries for transient model failures (default: 2)
}

// ScannerConfig bounds the repository tree walk
type ScannerConfig struct {
	MaxDepth   int      `toml:"max_depth"`   // Maximum directory depth below the repo root
	MaxFiles   int      `toml:"max_files"`   // Maximum files recorded in the inventory
	IgnoreDirs []string `toml:"ignore_dirs"` // Extra directory names to skip, merged with built-ins
}

// AnalyzerConfig bounds structural extraction
type AnalyzerConfig struct {
	MaxFiles int `toml:"max_files"` // Maximum code files analyzed per job
}

// GeneratorConfig controls documentation prompt assembly
type GeneratorConfig struct {
	ReadmeLimit int `toml:"readme_limit"` // Max README characters included in the prompt
}

// ArtifactStoreConfig contains S3-compatible artifact storage configuration.
// An empty bucket leaves the store unconfigured and publishing degrades to
// local output only.
type ArtifactStoreConfig struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Endpoint        string `toml:"endpoint"` // Optional override for S3-compatible stores
	CacheControl    string `toml:"cache_control"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// WorkspaceConfig locates scratch space for clones and published output
type WorkspaceConfig struct {
	Root string `toml:"root"` // Clones live under {root}/repos, docs under {root}/docs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// ReaperConfig controls background maintenance sweeps
type ReaperConfig struct {
	Enabled       bool   `toml:"enabled"`
	Schedule      string `toml:"schedule"`       // Cron schedule for the sweep
	PendingMaxAge string `toml:"pending_max_age"` // Pending jobs older than this fail with enqueue-timeout
	Retention     string `toml:"retention"`       // Terminal jobs older than this are purged
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in describo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Workers: WorkersConfig{
			Count:        2,
			PollInterval: "1s",
		},
		Job: JobConfig{
			SoftDeadline: "55m",
			HardDeadline: "60m",
			FetchTimeout: "5m",
		},
		Broker: BrokerConfig{
			Addr:              "localhost:6379",
			Password:          "",
			DB:                0,
			QueueName:         "describo",
			VisibilityTimeout: "60m",
			MaxDeliveries:     3,
			EnqueueTimeout:    "5s",
			ReclaimInterval:   "30s",
		},
		Model: ModelConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8000,
			Temperature: 0.3,
			Timeout:     "5m",
			RateLimit:   "1s",
			MaxRetries:  2,
		},
		Scanner: ScannerConfig{
			MaxDepth:   10,
			MaxFiles:   1000,
			IgnoreDirs: []string{},
		},
		Analyzer: AnalyzerConfig{
			MaxFiles: 20,
		},
		Generator: GeneratorConfig{
			ReadmeLimit: 3000,
		},
		ArtifactStore: ArtifactStoreConfig{
			Bucket:       "", // Empty = unconfigured, publishing degrades to local output
			Region:       "us-east-1",
			CacheControl: "max-age=3600",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Workspace: WorkspaceConfig{
			Root: "./workspace",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Reaper: ReaperConfig{
			Enabled:       true,
			Schedule:      "*/10 * * * *", // Every 10 minutes
			PendingMaxAge: "30m",
			Retention:     "168h", // 7 days
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DESCRIBO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("DESCRIBO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DESCRIBO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Workers configuration
	if count := os.Getenv("DESCRIBO_WORKERS_COUNT"); count != "" {
		if c, err := strconv.Atoi(count); err == nil {
			config.Workers.Count = c
		}
	}
	if pollInterval := os.Getenv("DESCRIBO_WORKERS_POLL_INTERVAL"); pollInterval != "" {
		config.Workers.PollInterval = pollInterval
	}

	// Job deadlines
	if soft := os.Getenv("DESCRIBO_JOB_SOFT_DEADLINE"); soft != "" {
		config.Job.SoftDeadline = soft
	}
	if hard := os.Getenv("DESCRIBO_JOB_HARD_DEADLINE"); hard != "" {
		config.Job.HardDeadline = hard
	}
	if fetchTimeout := os.Getenv("DESCRIBO_JOB_FETCH_TIMEOUT"); fetchTimeout != "" {
		config.Job.FetchTimeout = fetchTimeout
	}

	// Broker configuration
	if addr := os.Getenv("DESCRIBO_BROKER_ADDR"); addr != "" {
		config.Broker.Addr = addr
	}
	if password := os.Getenv("DESCRIBO_BROKER_PASSWORD"); password != "" {
		config.Broker.Password = password
	}
	if db := os.Getenv("DESCRIBO_BROKER_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			config.Broker.DB = d
		}
	}
	if queueName := os.Getenv("DESCRIBO_BROKER_QUEUE_NAME"); queueName != "" {
		config.Broker.QueueName = queueName
	}
	if visibilityTimeout := os.Getenv("DESCRIBO_BROKER_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Broker.VisibilityTimeout = visibilityTimeout
	}
	if maxDeliveries := os.Getenv("DESCRIBO_BROKER_MAX_DELIVERIES"); maxDeliveries != "" {
		if md, err := strconv.Atoi(maxDeliveries); err == nil {
			config.Broker.MaxDeliveries = md
		}
	}
	if enqueueTimeout := os.Getenv("DESCRIBO_BROKER_ENQUEUE_TIMEOUT"); enqueueTimeout != "" {
		config.Broker.EnqueueTimeout = enqueueTimeout
	}

	// Model configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Model.APIKey = apiKey
	}
	if apiKey := os.Getenv("DESCRIBO_MODEL_API_KEY"); apiKey != "" {
		config.Model.APIKey = apiKey // DESCRIBO_ prefix takes priority
	}
	if model := os.Getenv("DESCRIBO_MODEL_NAME"); model != "" {
		config.Model.Model = model
	}
	if maxTokens := os.Getenv("DESCRIBO_MODEL_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Model.MaxTokens = mt
		}
	}
	if temperature := os.Getenv("DESCRIBO_MODEL_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Model.Temperature = float32(t)
		}
	}
	if timeout := os.Getenv("DESCRIBO_MODEL_TIMEOUT"); timeout != "" {
		config.Model.Timeout = timeout
	}
	if rateLimit := os.Getenv("DESCRIBO_MODEL_RATE_LIMIT"); rateLimit != "" {
		config.Model.RateLimit = rateLimit
	}
	if maxRetries := os.Getenv("DESCRIBO_MODEL_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Model.MaxRetries = mr
		}
	}

	// Scanner configuration
	if maxDepth := os.Getenv("DESCRIBO_SCANNER_MAX_DEPTH"); maxDepth != "" {
		if md, err := strconv.Atoi(maxDepth); err == nil {
			config.Scanner.MaxDepth = md
		}
	}
	if maxFiles := os.Getenv("DESCRIBO_SCANNER_MAX_FILES"); maxFiles != "" {
		if mf, err := strconv.Atoi(maxFiles); err == nil {
			config.Scanner.MaxFiles = mf
		}
	}
	if ignoreDirs := os.Getenv("DESCRIBO_SCANNER_IGNORE_DIRS"); ignoreDirs != "" {
		dirs := []string{}
		for _, d := range strings.Split(ignoreDirs, ",") {
			trimmed := strings.TrimSpace(d)
			if trimmed != "" {
				dirs = append(dirs, trimmed)
			}
		}
		if len(dirs) > 0 {
			config.Scanner.IgnoreDirs = dirs
		}
	}

	// Analyzer configuration
	if maxFiles := os.Getenv("DESCRIBO_ANALYZER_MAX_FILES"); maxFiles != "" {
		if mf, err := strconv.Atoi(maxFiles); err == nil {
			config.Analyzer.MaxFiles = mf
		}
	}

	// Artifact store configuration
	if bucket := os.Getenv("DESCRIBO_ARTIFACT_BUCKET"); bucket != "" {
		config.ArtifactStore.Bucket = bucket
	}
	if region := os.Getenv("DESCRIBO_ARTIFACT_REGION"); region != "" {
		config.ArtifactStore.Region = region
	}
	if accessKey := os.Getenv("DESCRIBO_ARTIFACT_ACCESS_KEY_ID"); accessKey != "" {
		config.ArtifactStore.AccessKeyID = accessKey
	}
	if secretKey := os.Getenv("DESCRIBO_ARTIFACT_SECRET_ACCESS_KEY"); secretKey != "" {
		config.ArtifactStore.SecretAccessKey = secretKey
	}
	if endpoint := os.Getenv("DESCRIBO_ARTIFACT_ENDPOINT"); endpoint != "" {
		config.ArtifactStore.Endpoint = endpoint
	}

	// Storage configuration
	if badgerPath := os.Getenv("DESCRIBO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Workspace configuration
	if root := os.Getenv("DESCRIBO_WORKSPACE_ROOT"); root != "" {
		config.Workspace.Root = root
	}

	// Logging configuration
	if level := os.Getenv("DESCRIBO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DESCRIBO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("DESCRIBO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Reaper configuration
	if enabled := os.Getenv("DESCRIBO_REAPER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Reaper.Enabled = e
		}
	}
	if schedule := os.Getenv("DESCRIBO_REAPER_SCHEDULE"); schedule != "" {
		config.Reaper.Schedule = schedule
	}
	if pendingMaxAge := os.Getenv("DESCRIBO_REAPER_PENDING_MAX_AGE"); pendingMaxAge != "" {
		config.Reaper.PendingMaxAge = pendingMaxAge
	}
	if retention := os.Getenv("DESCRIBO_REAPER_RETENTION"); retention != "" {
		config.Reaper.Retention = retention
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks internal consistency of duration and bound settings
func (c *Config) Validate() error {
	soft, err := time.ParseDuration(c.Job.SoftDeadline)
	if err != nil {
		return fmt.Errorf("invalid job.soft_deadline %q: %w", c.Job.SoftDeadline, err)
	}
	hard, err := time.ParseDuration(c.Job.HardDeadline)
	if err != nil {
		return fmt.Errorf("invalid job.hard_deadline %q: %w", c.Job.HardDeadline, err)
	}
	if soft >= hard {
		return fmt.Errorf("job.soft_deadline (%s) must be shorter than job.hard_deadline (%s)", soft, hard)
	}

	for name, value := range map[string]string{
		"job.fetch_timeout":         c.Job.FetchTimeout,
		"workers.poll_interval":     c.Workers.PollInterval,
		"broker.visibility_timeout": c.Broker.VisibilityTimeout,
		"broker.enqueue_timeout":    c.Broker.EnqueueTimeout,
		"broker.reclaim_interval":   c.Broker.ReclaimInterval,
		"model.timeout":             c.Model.Timeout,
		"model.rate_limit":          c.Model.RateLimit,
		"reaper.pending_max_age":    c.Reaper.PendingMaxAge,
		"reaper.retention":          c.Reaper.Retention,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}

	// A reservation shorter than the hard deadline would let the broker
	// reclaim a job that is still running on a healthy worker.
	visibility, _ := time.ParseDuration(c.Broker.VisibilityTimeout)
	if visibility < hard {
		return fmt.Errorf("broker.visibility_timeout (%s) must be at least job.hard_deadline (%s)", visibility, hard)
	}

	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	if c.Broker.MaxDeliveries < 1 {
		return fmt.Errorf("broker.max_deliveries must be at least 1, got %d", c.Broker.MaxDeliveries)
	}
	if c.Scanner.MaxDepth < 1 || c.Scanner.MaxFiles < 1 {
		return fmt.Errorf("scanner bounds must be positive (max_depth=%d, max_files=%d)", c.Scanner.MaxDepth, c.Scanner.MaxFiles)
	}
	if c.Analyzer.MaxFiles < 1 {
		return fmt.Errorf("analyzer.max_files must be at least 1, got %d", c.Analyzer.MaxFiles)
	}

	if c.Reaper.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Reaper.Schedule); err != nil {
			return fmt.Errorf("invalid reaper.schedule %q: %w", c.Reaper.Schedule, err)
		}
	}

	return nil
}

// Duration helpers parse pre-validated duration strings.

func (c *Config) SoftDeadline() time.Duration     { return mustDuration(c.Job.SoftDeadline) }
func (c *Config) HardDeadline() time.Duration     { return mustDuration(c.Job.HardDeadline) }
func (c *Config) FetchTimeout() time.Duration     { return mustDuration(c.Job.FetchTimeout) }
func (c *Config) PollInterval() time.Duration     { return mustDuration(c.Workers.PollInterval) }
func (c *Config) VisibilityTimeout() time.Duration {
	return mustDuration(c.Broker.VisibilityTimeout)
}
func (c *Config) EnqueueTimeout() time.Duration  { return mustDuration(c.Broker.EnqueueTimeout) }
func (c *Config) ReclaimInterval() time.Duration { return mustDuration(c.Broker.ReclaimInterval) }
func (c *Config) ModelTimeout() time.Duration    { return mustDuration(c.Model.Timeout) }
func (c *Config) ModelRateLimit() time.Duration  { return mustDuration(c.Model.RateLimit) }
func (c *Config) PendingMaxAge() time.Duration   { return mustDuration(c.Reaper.PendingMaxAge) }
func (c *Config) Retention() time.Duration       { return mustDuration(c.Reaper.Retention) }

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
