package domain

// Config holds the complete Quantra configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier determines which infrastructure backends are used
	Tier Tier `json:"tier" mapstructure:"tier" validate:"oneof=community pro"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"eventbus"`

	// Scoring inputs
	Models     ModelsConfig     `json:"models" mapstructure:"models"`
	Remote     RemoteConfig     `json:"remote" mapstructure:"remote"`
	Breaker    BreakerConfig    `json:"breaker" mapstructure:"breaker"`
	Scoring    ScoringConfig    `json:"scoring" mapstructure:"scoring"`
	Assistant  AssistantConfig  `json:"assistant" mapstructure:"assistant"`
	Enrichment EnrichmentConfig `json:"enrichment" mapstructure:"enrichment"`
	RateLimit  RateLimitConfig  `json:"rateLimit" mapstructure:"ratelimit"`
	Worker     WorkerConfig     `json:"worker" mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"readtimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"writetimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" mapstructure:"format" validate:"oneof=json text"`

	// File enables rotated file output in addition to stdout.
	File       string `json:"file" mapstructure:"file"`
	MaxSizeMB  int    `json:"maxSizeMb" mapstructure:"maxsizemb"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxbackups"`
	MaxAgeDays int    `json:"maxAgeDays" mapstructure:"maxagedays"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"servicename"`
}

// ModelsConfig locates the trained artifacts.
type ModelsConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// RemoteConfig holds the endpoints of the image inference sidecar.
// An empty URL leaves the matching capability absent.
type RemoteConfig struct {
	DocumentURL string `json:"documentUrl" mapstructure:"documenturl"`
	OCRURL      string `json:"ocrUrl" mapstructure:"ocrurl"`
	FaceURL     string `json:"faceUrl" mapstructure:"faceurl"`
	Timeout     int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// BreakerConfig tunes the circuit breakers around remote inference.
type BreakerConfig struct {
	MaxRequests         uint32 `json:"maxRequests" mapstructure:"maxrequests"`
	Interval            int    `json:"interval" mapstructure:"interval"` // seconds
	Timeout             int    `json:"timeout" mapstructure:"timeout"`   // seconds
	ConsecutiveFailures uint32 `json:"consecutiveFailures" mapstructure:"consecutivefailures"`
}

// ScoringConfig holds feature extraction settings.
type ScoringConfig struct {
	// HomeMarker is the location value treated as domestic.
	HomeMarker string `json:"homeMarker" mapstructure:"homemarker"`
}

// AssistantConfig holds the optional LLM endpoint of the chat facade.
type AssistantConfig struct {
	LLMURL   string `json:"llmUrl" mapstructure:"llmurl"`
	LLMKey   string `json:"llmKey" mapstructure:"llmkey"`
	LLMModel string `json:"llmModel" mapstructure:"llmmodel"`
	Timeout  int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// EnrichmentConfig controls server-side velocity and history lookup.
type EnrichmentConfig struct {
	Enabled       bool `json:"enabled" mapstructure:"enabled"`
	WindowHours   int  `json:"windowHours" mapstructure:"windowhours"`
	HistoryDays   int  `json:"historyDays" mapstructure:"historydays"`
	HistoryLimit  int  `json:"historyLimit" mapstructure:"historylimit"`
	AssessmentTTL int  `json:"assessmentTtl" mapstructure:"assessmentttl"` // seconds
}

// RateLimitConfig holds per-tenant request limits.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `json:"requestsPerSecond" mapstructure:"requestspersecond"`
	Burst             int     `json:"burst" mapstructure:"burst"`
}

// WorkerConfig controls the asynchronous scoring worker.
type WorkerConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Concurrency bounds the messages scored at once.
	Concurrency int `json:"concurrency" mapstructure:"concurrency" validate:"min=0"`

	// TenantIDs limits the worker to these tenants; empty subscribes globally.
	TenantIDs []string `json:"tenantIds" mapstructure:"tenantids"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./quantra.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Models: ModelsConfig{
			Dir: "./models",
		},
		Remote: RemoteConfig{
			Timeout: 10,
		},
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            60,
			Timeout:             30,
			ConsecutiveFailures: 5,
		},
		Scoring: ScoringConfig{
			HomeMarker: "userCountry",
		},
		Assistant: AssistantConfig{
			LLMModel: "gpt-4o-mini",
			Timeout:  20,
		},
		Enrichment: EnrichmentConfig{
			Enabled:       true,
			WindowHours:   24,
			HistoryDays:   30,
			HistoryLimit:  100,
			AssessmentTTL: 3600,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			Burst:             200,
		},
		Worker: WorkerConfig{
			Enabled:     true,
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "quantra",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "quantra",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       60,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.RateLimit.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
