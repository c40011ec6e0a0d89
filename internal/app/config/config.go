package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"

	RealtimeNone     = "none"
	RealtimeSupabase = "supabase"
	RealtimeKafka    = "kafka"

	KVMemory = "memory"
	KVRedis  = "redis"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	Backend       string
	DatabaseURL   string
	DBMaxConns    int
	DBMinConns    int
	RunMigrations bool

	SupabaseURL   string
	SupabaseKey   string
	StorageBucket string

	JWTSecret     string
	SecureCookies bool

	RealtimeDriver      string
	RealtimeRestaurants []string
	RealtimeHeartbeat   time.Duration
	KafkaBrokers        []string
	KafkaTopics         []string
	KafkaConsumerGroup  string
	KafkaMinBytes       int
	KafkaMaxBytes       int

	KVDriver    string
	RedisURL    string
	RedisPrefix string

	AMQPURL       string
	AMQPExchange  string
	TelegramToken string
	TelegramChats map[string]int64

	CacheStaleTime       time.Duration
	CacheWarmRestaurants []string
	CacheRefreshSpec     string
	MaintenanceSpec      string

	CartSubmitDelay    time.Duration
	CartTTL            time.Duration
	CartIdleEviction   time.Duration
	SubmitRateInterval time.Duration
	SubmitRateBurst    int
	ToastCapacity      int
	ToastTTL           time.Duration

	ShutdownTimeout time.Duration
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	c.HTTPAddr = getenv("APP_HTTP_ADDR", ":8081")
	c.LogLevel = getenv("LOG_LEVEL", "info")
	c.LogFormat = getenv("LOG_FORMAT", "json")

	c.Backend = strings.ToLower(getenv("BACKEND", BackendPostgres))
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.DBMaxConns = getenvInt("DB_MAX_CONNS", 10)
	c.DBMinConns = getenvInt("DB_MIN_CONNS", 1)
	c.RunMigrations = getenvBool("RUN_MIGRATIONS", true)

	c.SupabaseURL = os.Getenv("SUPABASE_URL")
	c.SupabaseKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	c.StorageBucket = getenv("STORAGE_BUCKET", "menu-images")

	c.JWTSecret = os.Getenv("JWT_SECRET")
	c.SecureCookies = getenvBool("SECURE_COOKIES", false)

	c.RealtimeDriver = strings.ToLower(getenv("REALTIME_DRIVER", RealtimeNone))
	c.RealtimeRestaurants = splitCSV(os.Getenv("REALTIME_RESTAURANTS"))
	c.RealtimeHeartbeat = getenvDuration("REALTIME_HEARTBEAT", 30*time.Second)
	c.KafkaBrokers = splitCSV(os.Getenv("KAFKA_BROKERS"))
	c.KafkaTopics = splitCSV(getenv("KAFKA_TOPICS", "menu360.public.orders,menu360.public.order_items,menu360.public.menu_items,menu360.public.menu_categories"))
	c.KafkaConsumerGroup = getenv("KAFKA_CONSUMER_GROUP", "menu360")
	c.KafkaMinBytes = getenvInt("KAFKA_MIN_BYTES", 1e3)
	c.KafkaMaxBytes = getenvInt("KAFKA_MAX_BYTES", 10e6)

	c.KVDriver = strings.ToLower(getenv("KV_DRIVER", KVMemory))
	c.RedisURL = os.Getenv("REDIS_URL")
	c.RedisPrefix = getenv("REDIS_PREFIX", "menu360:")

	c.AMQPURL = os.Getenv("AMQP_URL")
	c.AMQPExchange = getenv("AMQP_EXCHANGE", "menu360.orders")
	c.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	chats, err := parseChats(os.Getenv("TELEGRAM_CHATS"))
	if err != nil {
		return Config{}, err
	}
	c.TelegramChats = chats

	c.CacheStaleTime = getenvDuration("CACHE_STALE_TIME", 5*time.Minute)
	c.CacheWarmRestaurants = splitCSV(os.Getenv("CACHE_WARM_RESTAURANTS"))
	c.CacheRefreshSpec = getenv("CACHE_REFRESH_SPEC", "@every 5m")
	c.MaintenanceSpec = getenv("MAINTENANCE_SPEC", "@every 1m")

	c.CartSubmitDelay = getenvDuration("CART_SUBMIT_DELAY", 800*time.Millisecond)
	c.CartTTL = getenvDuration("CART_TTL", 24*time.Hour)
	c.CartIdleEviction = getenvDuration("CART_IDLE_EVICTION", 2*time.Hour)
	c.SubmitRateInterval = getenvDuration("SUBMIT_RATE_INTERVAL", 10*time.Second)
	c.SubmitRateBurst = getenvInt("SUBMIT_RATE_BURST", 3)
	c.ToastCapacity = getenvInt("TOAST_CAPACITY", 20)
	c.ToastTTL = getenvDuration("TOAST_TTL", 2*time.Minute)

	c.ShutdownTimeout = getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for BACKEND=postgres"))
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for BACKEND=supabase"))
		}
	default:
		errs = append(errs, fmt.Errorf("BACKEND must be postgres or supabase, got %q", c.Backend))
	}

	switch c.RealtimeDriver {
	case RealtimeNone:
	case RealtimeSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			errs = append(errs, errors.New("REALTIME_DRIVER=supabase needs SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY"))
		}
		if len(c.RealtimeRestaurants) == 0 {
			errs = append(errs, errors.New("REALTIME_RESTAURANTS is required for REALTIME_DRIVER=supabase"))
		}
	case RealtimeKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for REALTIME_DRIVER=kafka"))
		}
		if len(c.KafkaTopics) == 0 {
			errs = append(errs, errors.New("KAFKA_TOPICS must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("REALTIME_DRIVER must be none, supabase or kafka, got %q", c.RealtimeDriver))
	}

	switch c.KVDriver {
	case KVMemory:
	case KVRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for KV_DRIVER=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("KV_DRIVER must be memory or redis, got %q", c.KVDriver))
	}

	for name, spec := range map[string]string{"CACHE_REFRESH_SPEC": c.CacheRefreshSpec, "MAINTENANCE_SPEC": c.MaintenanceSpec} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		errs = append(errs, errors.New("DB_MIN_CONNS must not exceed DB_MAX_CONNS"))
	}
	if c.SubmitRateInterval <= 0 {
		errs = append(errs, errors.New("SUBMIT_RATE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseChats reads "restaurantID=chatID" pairs. "*" is the fallback chat.
func parseChats(s string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, pair := range splitCSV(s) {
		rid, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(rid) == "" {
			return nil, fmt.Errorf("TELEGRAM_CHATS: %q is not restaurant=chat", pair)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHATS: chat id for %s: %w", rid, err)
		}
		out[strings.TrimSpace(rid)] = id
	}
	return out, nil
}
