package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-ask.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Record store (PostgreSQL) holding the metadata catalog and records
	Database DatabaseConfig `yaml:"database"`

	// Optional SQL Server record store
	SQLServer SQLServerConfig `yaml:"sqlserver"`

	// Optional Redis backend for outcome metrics
	Redis RedisConfig `yaml:"redis"`

	// Answer history persistence
	History HistoryConfig `yaml:"history"`

	// Plan oracle (LLM) configuration
	LLM LLMConfig `yaml:"llm"`

	Planner     PlannerConfig     `yaml:"planner"`
	Detection   DetectionConfig   `yaml:"detection"`
	SchemaCache SchemaCacheConfig `yaml:"schema_cache"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL record store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_records"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// SQLServerConfig holds the optional SQL Server record store configuration.
// The store is disabled when Host is empty.
type SQLServerConfig struct {
	Host     string `yaml:"host" env:"MSSQL_HOST" env-default:""`
	Port     int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	User     string `yaml:"user" env:"MSSQL_USER" env-default:""`
	Password string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"MSSQL_DATABASE" env-default:""`
}

// Enabled returns true if a SQL Server store is configured.
func (c *SQLServerConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis configuration. Redis is optional; when Host is
// empty outcome metrics are kept in process memory.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
}

// HistoryConfig controls the asynchronous answer history writer.
type HistoryConfig struct {
	Enabled    bool `yaml:"enabled" env:"HISTORY_ENABLED" env-default:"true"`
	BufferSize int  `yaml:"buffer_size" env:"HISTORY_BUFFER_SIZE" env-default:"256"`
}

// LLMConfig configures the plan oracle client.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2000"`

	// RequestsPerSecond limits oracle calls across all requests (0 disables).
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"LLM_REQUESTS_PER_SECOND" env-default:"5"`
	Burst             int     `yaml:"burst" env:"LLM_BURST" env-default:"10"`

	// TransportRetries retries transient transport failures inside one oracle call.
	TransportRetries int `yaml:"transport_retries" env:"LLM_TRANSPORT_RETRIES" env-default:"1"`

	CircuitThreshold  int           `yaml:"circuit_threshold" env:"LLM_CIRCUIT_THRESHOLD" env-default:"5"`
	CircuitResetAfter time.Duration `yaml:"circuit_reset_after" env:"LLM_CIRCUIT_RESET_AFTER" env-default:"30s"`
}

// PlannerConfig configures validation, correction and the retry controller.
type PlannerConfig struct {
	// MaxRetries bounds corrections after the first attempt (2 = 3 attempts).
	MaxRetries int `yaml:"max_retries" env:"PLANNER_MAX_RETRIES" env-default:"2"`

	SchemaTimeout    time.Duration `yaml:"schema_timeout" env:"PLANNER_SCHEMA_TIMEOUT" env-default:"5s"`
	OracleTimeout    time.Duration `yaml:"oracle_timeout" env:"PLANNER_ORACLE_TIMEOUT" env-default:"60s"`
	ExecutionTimeout time.Duration `yaml:"execution_timeout" env:"PLANNER_EXECUTION_TIMEOUT" env-default:"30s"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"PLANNER_REQUEST_TIMEOUT" env-default:"90s"`

	// Dialect of generated queries: "postgres" or "sqlserver".
	Dialect string `yaml:"dialect" env:"PLANNER_DIALECT" env-default:"postgres"`

	// TablePrefix is prepended to entity type names to form table names.
	TablePrefix string `yaml:"table_prefix" env:"PLANNER_TABLE_PREFIX" env-default:"tab"`

	// Default boundary clause added to unfiltered joins: <column> = <value>.
	BoundaryColumn string `yaml:"boundary_column" env:"PLANNER_BOUNDARY_COLUMN" env-default:"docstatus"`
	BoundaryValue  string `yaml:"boundary_value" env:"PLANNER_BOUNDARY_VALUE" env-default:"1"`

	// MetaFields are accepted on every entity in addition to declared fields.
	MetaFields []string `yaml:"meta_fields" env:"PLANNER_META_FIELDS" env-separator:"," env-default:"name,docstatus,creation,modified,modified_by,owner"`

	ResultLimit int `yaml:"result_limit" env:"PLANNER_RESULT_LIMIT" env-default:"100"`
}

// FallbackRule maps interrogative or domain keywords to an entity type when
// no entity type clears the confidence floor.
type FallbackRule struct {
	Keywords   []string `yaml:"keywords"`
	EntityType string   `yaml:"entity_type"`
}

// DetectionConfig holds the entity detector's tunable constants.
type DetectionConfig struct {
	MinConfidence      float64 `yaml:"min_confidence" env:"DETECTION_MIN_CONFIDENCE" env-default:"0.7"`
	ExactPhraseScore   float64 `yaml:"exact_phrase_score" env:"DETECTION_EXACT_PHRASE_SCORE" env-default:"0.98"`
	ExactWordScore     float64 `yaml:"exact_word_score" env:"DETECTION_EXACT_WORD_SCORE" env-default:"0.9"`
	PartialScore       float64 `yaml:"partial_score" env:"DETECTION_PARTIAL_SCORE" env-default:"0.6"`
	PerMatchBonus      float64 `yaml:"per_match_bonus" env:"DETECTION_PER_MATCH_BONUS" env-default:"0.02"`
	MaxConfidence      float64 `yaml:"max_confidence" env:"DETECTION_MAX_CONFIDENCE" env-default:"0.98"`
	FallbackConfidence float64 `yaml:"fallback_confidence" env:"DETECTION_FALLBACK_CONFIDENCE" env-default:"0.6"`

	ShortQueryTokens  int `yaml:"short_query_tokens" env:"DETECTION_SHORT_QUERY_TOKENS" env-default:"5"`
	MediumQueryTokens int `yaml:"medium_query_tokens" env:"DETECTION_MEDIUM_QUERY_TOKENS" env-default:"10"`
	ShortCap          int `yaml:"short_cap" env:"DETECTION_SHORT_CAP" env-default:"1"`
	MediumCap         int `yaml:"medium_cap" env:"DETECTION_MEDIUM_CAP" env-default:"2"`
	LongCap           int `yaml:"long_cap" env:"DETECTION_LONG_CAP" env-default:"3"`

	Aliases            map[string][]string `yaml:"aliases"`
	FallbackRules      []FallbackRule      `yaml:"fallback_rules"`
	DefaultEntityTypes []string            `yaml:"default_entity_types" env:"DETECTION_DEFAULT_ENTITY_TYPES" env-separator:","`
}

// SchemaCacheConfig controls the schema context cache.
type SchemaCacheConfig struct {
	TTL        time.Duration `yaml:"ttl" env:"SCHEMA_CACHE_TTL" env-default:"5m"`
	MaxEntries int           `yaml:"max_entries" env:"SCHEMA_CACHE_MAX_ENTRIES" env-default:"500"`
}

// MetricsConfig controls outcome metrics windows.
type MetricsConfig struct {
	Retention time.Duration `yaml:"retention" env:"METRICS_RETENTION" env-default:"24h"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from the given YAML file with environment
// variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks cross-field constraints that struct tags cannot express.
func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}

	switch c.Planner.Dialect {
	case "postgres", "sqlserver":
	default:
		return fmt.Errorf("planner.dialect must be postgres or sqlserver, got %q", c.Planner.Dialect)
	}
	if c.Planner.Dialect == "sqlserver" && !c.SQLServer.Enabled() {
		return fmt.Errorf("planner.dialect is sqlserver but sqlserver.host is not set")
	}

	if c.Planner.MaxRetries < 0 {
		return fmt.Errorf("planner.max_retries must not be negative")
	}

	d := c.Detection
	if d.MinConfidence < 0 || d.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be within [0,1]")
	}
	if d.MaxConfidence < d.MinConfidence || d.MaxConfidence > 1 {
		return fmt.Errorf("detection.max_confidence must be within [min_confidence,1]")
	}
	if d.ShortQueryTokens <= 0 || d.MediumQueryTokens < d.ShortQueryTokens {
		return fmt.Errorf("detection token thresholds must satisfy 0 < short <= medium")
	}
	if d.ShortCap < 1 || d.MediumCap < d.ShortCap || d.LongCap < d.MediumCap {
		return fmt.Errorf("detection caps must satisfy 1 <= short <= medium <= long")
	}
	for _, rule := range d.FallbackRules {
		if strings.TrimSpace(rule.EntityType) == "" || len(rule.Keywords) == 0 {
			return fmt.Errorf("detection.fallback_rules entries need keywords and entity_type")
		}
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the database as a postgres:// URL, as required by migrations.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ConnectionString returns a SQL Server connection URL.
func (c *SQLServerConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		RawQuery: url.Values{"database": {c.Database}}.Encode(),
	}
	return u.String()
}

// Addr returns the Redis host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}
