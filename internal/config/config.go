package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix — префикс всех переменных окружения сервиса.
const EnvPrefix = "STOCKWATCH"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	NotifyStoreMemory     = "memory"
	NotifyStoreRedis      = "redis"
	NotifyStorePostgres   = "postgres"
	SalesSourceOzon       = "ozon"
	SalesSourcePostgres   = "postgres"
)

// legalEntities — юрлица продавцов по умолчанию.
var legalEntities = map[string]string{
	"amodecor":      "Амодекор",
	"stroy_otdelka": "СтройОтделка",
	"orion":         "Орион",
}

// Credentials — учётные данные продавца для Seller API и Performance API.
type Credentials struct {
	APIKey          string `json:"api_key" yaml:"api_key"`
	ClientID        string `json:"client_id" yaml:"client_id"`
	AdvClientID     string `json:"adv_client_id" yaml:"adv_client_id"`
	AdvClientSecret string `json:"adv_client_secret" yaml:"adv_client_secret"`
	LegalEntity     string `json:"legal_entity" yaml:"legal_entity"`
}

// HasSellerAPI сообщает, заданы ли ключи Seller API.
func (c Credentials) HasSellerAPI() bool {
	return c.APIKey != "" && c.ClientID != ""
}

// HasPerformanceAPI сообщает, заданы ли ключи рекламного API.
func (c Credentials) HasPerformanceAPI() bool {
	return c.AdvClientID != "" && c.AdvClientSecret != ""
}

// CredentialSet — учётные данные по имени продавца.
type CredentialSet map[string]Credentials

// Decode реализует envconfig.Decoder: значение переменной — JSON-объект.
func (c *CredentialSet) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*c = CredentialSet{}
		return nil
	}
	parsed := CredentialSet{}
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("decode credentials json: %w", err)
	}
	*c = parsed
	return nil
}

// Lookup возвращает учётные данные продавца.
func (c CredentialSet) Lookup(seller string) (Credentials, bool) {
	creds, ok := c[seller]
	return creds, ok
}

// Seller описывает продавца, для которого выполняется проход.
type Seller struct {
	Name        string
	LegalEntity string
}

// GatewayConfig — политика повторов и пул соединений HTTP-шлюза.
type GatewayConfig struct {
	MaxAttempts     uint          `envconfig:"MAX_ATTEMPTS" default:"5"`
	MinBackoff      time.Duration `envconfig:"MIN_BACKOFF" default:"5s"`
	MaxBackoff      time.Duration `envconfig:"MAX_BACKOFF" default:"20s"`
	Timeout         time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxConns        int           `envconfig:"MAX_CONNS" default:"100"`
	MaxConnsPerHost int           `envconfig:"MAX_CONNS_PER_HOST" default:"10"`
	DNSCacheTTL     time.Duration `envconfig:"DNS_CACHE_TTL" default:"300s"`
}

// OzonConfig — адреса API и пауза между страницами и пачками.
type OzonConfig struct {
	SellerURL        string        `envconfig:"SELLER_URL" default:"https://api-seller.ozon.ru"`
	PerformanceURL   string        `envconfig:"PERFORMANCE_URL" default:"https://api-performance.ozon.ru"`
	PageInterval     time.Duration `envconfig:"PAGE_INTERVAL" default:"1s"`
	ProductBatchSize int           `envconfig:"PRODUCT_BATCH_SIZE" default:"10"`
}

// WatchConfig — параметры прохода по продавцам.
type WatchConfig struct {
	WindowDays        int           `envconfig:"WINDOW_DAYS" default:"30"`
	LowStock          bool          `envconfig:"LOW_STOCK" default:"true"`
	SellerConcurrency int           `envconfig:"SELLER_CONCURRENCY" default:"1"`
	CampaignBatchSize int           `envconfig:"CAMPAIGN_BATCH_SIZE" default:"5"`
	BatchInterval     time.Duration `envconfig:"BATCH_INTERVAL" default:"1s"`
	// SalesSource: ozon (аналитика маркетплейса) или postgres (накопленная история).
	SalesSource string `envconfig:"SALES_SOURCE" default:"ozon"`
}

// StorageConfig — хранилище агрегатов товаров.
type StorageConfig struct {
	Driver      string `envconfig:"DRIVER" default:"memory"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`
}

// NotifyConfig — хранилище состояния эскалации уведомлений.
type NotifyConfig struct {
	Store string `envconfig:"STORE" default:"memory"`
}

// RedisConfig задаёт подключение к Redis.
type RedisConfig struct {
	Addr      string `envconfig:"ADDR" default:"localhost:6379"`
	Password  string `envconfig:"PASSWORD"`
	DB        int    `envconfig:"DB" default:"0"`
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"stockwatch"`
}

// KafkaConfig — шина событий; пустой список брокеров отключает Kafka.
type KafkaConfig struct {
	Brokers        []string `envconfig:"BROKERS"`
	TopicZeroStock string   `envconfig:"TOPIC_ZERO_STOCK" default:"stockwatch.zero-stock-advertised"`
	TopicLowStock  string   `envconfig:"TOPIC_LOW_STOCK" default:"stockwatch.low-stock"`
}

// Config содержит явно сконструированную конфигурацию сервиса.
type Config struct {
	HTTPAddr           string        `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr           string        `envconfig:"GRPC_ADDR"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat          string        `envconfig:"LOG_FORMAT" default:"text"`
	RunTimeout         time.Duration `envconfig:"RUN_TIMEOUT" default:"30m"`
	Sellers            []string      `envconfig:"SELLERS" default:"amodecor,stroy_otdelka,orion"`
	Credentials        CredentialSet `envconfig:"CREDENTIALS"`
	CredentialsFile    string        `envconfig:"CREDENTIALS_FILE"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Gateway GatewayConfig
	Ozon    OzonConfig
	Watch   WatchConfig
	Storage StorageConfig
	Notify  NotifyConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
}

// Load читает .env (если есть) и переменные окружения STOCKWATCH_*.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv собирает конфигурацию только из окружения процесса.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if cfg.CredentialsFile != "" {
		fromFile, err := LoadCredentialsFile(cfg.CredentialsFile)
		if err != nil {
			return Config{}, err
		}
		// Переменная окружения перекрывает файл.
		for seller, creds := range cfg.Credentials {
			fromFile[seller] = creds
		}
		cfg.Credentials = fromFile
	}
	if cfg.Credentials == nil {
		cfg.Credentials = CredentialSet{}
	}

	cfg.Sellers = normalizeList(cfg.Sellers)
	cfg.Kafka.Brokers = normalizeList(cfg.Kafka.Brokers)
	cfg.CORSAllowedOrigins = normalizeList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadCredentialsFile читает YAML-файл вида `seller: {api_key: ..., client_id: ...}`.
func LoadCredentialsFile(path string) (CredentialSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	set := CredentialSet{}
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	return set, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if len(c.Sellers) == 0 {
		errs = append(errs, errors.New("at least one seller is required"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires STOCKWATCH_STORAGE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}
	switch c.Notify.Store {
	case NotifyStoreMemory:
	case NotifyStoreRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis notification store requires STOCKWATCH_REDIS_ADDR"))
		}
	case NotifyStorePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres notification store requires STOCKWATCH_STORAGE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported notification store %q", c.Notify.Store))
	}
	switch c.Watch.SalesSource {
	case SalesSourceOzon:
	case SalesSourcePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres sales source requires STOCKWATCH_STORAGE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported sales source %q", c.Watch.SalesSource))
	}
	if c.Watch.WindowDays <= 0 {
		errs = append(errs, errors.New("window days must be positive"))
	}
	if c.Watch.SellerConcurrency <= 0 {
		errs = append(errs, errors.New("seller concurrency must be positive"))
	}
	if c.Watch.CampaignBatchSize <= 0 || c.Ozon.ProductBatchSize <= 0 {
		errs = append(errs, errors.New("batch sizes must be positive"))
	}

	return errors.Join(errs...)
}

// SellerList возвращает продавцов прохода с подписями юрлиц.
func (c Config) SellerList() []Seller {
	out := make([]Seller, 0, len(c.Sellers))
	for _, name := range c.Sellers {
		legal := name
		if creds, ok := c.Credentials.Lookup(name); ok && creds.LegalEntity != "" {
			legal = creds.LegalEntity
		} else if def, ok := legalEntities[name]; ok {
			legal = def
		}
		out = append(out, Seller{Name: name, LegalEntity: legal})
	}
	return out
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// NeedsPostgres сообщает, использует ли хоть один компонент PostgreSQL.
func (c Config) NeedsPostgres() bool {
	return c.Storage.Driver == StorageDriverPostgres ||
		c.Notify.Store == NotifyStorePostgres ||
		c.Watch.SalesSource == SalesSourcePostgres
}
