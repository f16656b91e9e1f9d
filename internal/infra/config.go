package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config - корневая структура конфигурации шлюза.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Content  ContentConfig  `mapstructure:"content"`
	Egress   EgressConfig   `mapstructure:"egress"`
	Tools    []ToolConfig   `mapstructure:"tools"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ResourceURL публикуется в /.well-known/oauth-protected-resource
	ResourceURL string `mapstructure:"resource_url"`
}

type GRPCConfig struct {
	Port int `mapstructure:"port"` // health-check сервис
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL = аудит в лог.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и состояние агентов). Пустой Addr = только локально.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig - проверка входящих RS256 токенов.
type AuthConfig struct {
	PublicKeyPath        string   `mapstructure:"public_key_path"`
	Issuer               string   `mapstructure:"issuer"`
	Audience             string   `mapstructure:"audience"`
	TenantClaim          string   `mapstructure:"tenant_claim"`
	AuthorizationServers []string `mapstructure:"authorization_servers"`
	ScopesSupported      []string `mapstructure:"scopes_supported"`
	PublicKey            []byte
}

// EngineConfig содержит настройки Data Plane: аудит, Circuit Breaker, начальные списки агентов.
type EngineConfig struct {
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`

	// Настройки Circuit Breaker для upstream-провайдеров
	CBMaxRequests      uint32        `mapstructure:"cb_max_requests"`
	CBInterval         time.Duration `mapstructure:"cb_interval"`
	CBTimeout          time.Duration `mapstructure:"cb_timeout"`
	CBFailureThreshold uint32        `mapstructure:"cb_failure_threshold"`

	BlockedAgents []string `mapstructure:"blocked_agents"`
	SandboxAgents []string `mapstructure:"sandbox_agents"`
}

type LimitsConfig struct {
	RateLimit  RateLimitSection  `mapstructure:"rate_limit"`
	Budget     BudgetSection     `mapstructure:"budget"`
	AgentGuard AgentGuardSection `mapstructure:"agent_guard"`
}

type RateLimitSection struct {
	Enabled     bool          `mapstructure:"enabled"`
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type ModelLimit struct {
	Model    string  `mapstructure:"model"`
	MaxSpend float64 `mapstructure:"max_spend"`
}

type BudgetSection struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxSpend    float64       `mapstructure:"max_spend"`
	Period      time.Duration `mapstructure:"period"`
	ModelLimits []ModelLimit  `mapstructure:"model_limits"`
}

type AgentGuardSection struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxToolCalls    int           `mapstructure:"max_tool_calls"`
	MaxWorkflowCost float64       `mapstructure:"max_workflow_cost"`
	MaxDuration     time.Duration `mapstructure:"max_duration"`
}

// PolicyConfig: источник наборов политик - yaml (каталог) или postgres.
type PolicyConfig struct {
	Source string `mapstructure:"source"`
	Dir    string `mapstructure:"dir"`
}

type ContentConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	RedactionMode  string   `mapstructure:"redaction_mode"` // mask|remove|placeholder
	MaskChar       string   `mapstructure:"mask_char"`
	KeepChars      int      `mapstructure:"keep_chars"`
	Placeholder    string   `mapstructure:"placeholder"`
	RedactTypes    []string `mapstructure:"redact_types"`
	RedactRequest  bool     `mapstructure:"redact_request"`
	RedactResponse bool     `mapstructure:"redact_response"`
	// BlockThreshold: запрос с riskScore >= порога отклоняется; 0 = выключено
	BlockThreshold int  `mapstructure:"block_threshold"`
	AutoKill       bool `mapstructure:"auto_kill"`
}

type EgressConfig struct {
	DefaultProvider string           `mapstructure:"default_provider"`
	UserAgent       string           `mapstructure:"user_agent"`
	Providers       []ProviderConfig `mapstructure:"providers"`
}

type ProviderConfig struct {
	Key              string            `mapstructure:"key"`
	BaseURL          string            `mapstructure:"base_url"`
	AuthMode         string            `mapstructure:"auth_mode"`
	APIKeyHeader     string            `mapstructure:"api_key_header"`
	APIKeyValue      string            `mapstructure:"api_key_value"`
	ServiceToken     string            `mapstructure:"service_token"`
	AllowedHosts     []string          `mapstructure:"allowed_hosts"`
	AllowHTTP        bool              `mapstructure:"allow_http"`
	AllowPrivateIPs  bool              `mapstructure:"allow_private_ips"`
	Timeout          time.Duration     `mapstructure:"timeout"`
	MaxResponseBytes int               `mapstructure:"max_response_bytes"`
	Headers          map[string]string `mapstructure:"headers"`
	RateLimitRPS     float64           `mapstructure:"rate_limit_rps"`
	Burst            int               `mapstructure:"burst"`
}

// ToolConfig - маршрут инструмента на провайдера и правила его проверки.
type ToolConfig struct {
	Name                string         `mapstructure:"name"`
	Provider            string         `mapstructure:"provider"`
	Method              string         `mapstructure:"method"`
	Path                string         `mapstructure:"path"`
	RequiredPermissions []string       `mapstructure:"required_permissions"`
	AnyPermissions      []string       `mapstructure:"any_permissions"`
	PolicySet           string         `mapstructure:"policy_set"`
	ContentPolicySet    string         `mapstructure:"content_policy_set"`
	InputSchema         map[string]any `mapstructure:"input_schema"`
	JSONSchema          string         `mapstructure:"json_schema"`
	EstimatedCost       float64        `mapstructure:"estimated_cost"`
	Cost                float64        `mapstructure:"cost"`
}

// AdminConfig: bcrypt-хэш ключа для админских ручек. Пустой = админка выключена.
type AdminConfig struct {
	KeyHash string `mapstructure:"key_hash"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	return load(v)
}

// LoadConfigFile читает конкретный файл (флаг -config, тесты).
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// PEM-ключ может прийти прямо в ENV (Docker/K8s), иначе читаем файл
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 130*time.Second)
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("auth.tenant_claim", "tenant_id")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.cb_failure_threshold", 5)

	v.SetDefault("limits.rate_limit.enabled", true)
	v.SetDefault("limits.rate_limit.window", time.Minute)
	v.SetDefault("limits.rate_limit.max_requests", 60)
	v.SetDefault("limits.budget.period", 24*time.Hour)
	v.SetDefault("limits.agent_guard.enabled", true)

	v.SetDefault("policy.source", "yaml")
	v.SetDefault("policy.dir", "./configs/policies")

	v.SetDefault("content.enabled", true)
	v.SetDefault("content.redaction_mode", "mask")
	v.SetDefault("content.mask_char", "*")
	v.SetDefault("content.keep_chars", 2)
	v.SetDefault("content.placeholder", "[{TYPE}]")

	v.SetDefault("egress.user_agent", "spaceai-governance-gateway/1.0")
}

// Validate ловит ошибки конфигурации до старта (ссылки tools -> providers, дубли).
func (c *Config) Validate() error {
	providers := make(map[string]struct{}, len(c.Egress.Providers))
	for _, p := range c.Egress.Providers {
		if p.Key == "" {
			return fmt.Errorf("config: egress provider without key")
		}
		if _, dup := providers[p.Key]; dup {
			return fmt.Errorf("config: duplicate egress provider %q", p.Key)
		}
		providers[p.Key] = struct{}{}
	}
	if d := c.Egress.DefaultProvider; d != "" {
		if _, ok := providers[d]; !ok {
			return fmt.Errorf("config: default provider %q is not defined", d)
		}
	}

	tools := make(map[string]struct{}, len(c.Tools))
	for _, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("config: tool without name")
		}
		if _, dup := tools[t.Name]; dup {
			return fmt.Errorf("config: duplicate tool %q", t.Name)
		}
		tools[t.Name] = struct{}{}
		if t.Provider != "" {
			if _, ok := providers[t.Provider]; !ok {
				return fmt.Errorf("config: tool %q references unknown provider %q", t.Name, t.Provider)
			}
		}
	}

	switch c.Policy.Source {
	case "", "yaml", "postgres":
	default:
		return fmt.Errorf("config: unknown policy source %q", c.Policy.Source)
	}
	return nil
}

// Tool ищет инструмент по имени.
func (c *Config) Tool(name string) (ToolConfig, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolConfig{}, false
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
