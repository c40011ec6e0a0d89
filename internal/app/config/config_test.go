package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/menu360")
	t.Setenv("BACKEND", "")
	t.Setenv("REALTIME_DRIVER", "")
	t.Setenv("KV_DRIVER", "")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", c.HTTPAddr)
	assert.Equal(t, BackendPostgres, c.Backend)
	assert.Equal(t, RealtimeNone, c.RealtimeDriver)
	assert.Equal(t, KVMemory, c.KVDriver)
	assert.Equal(t, "@every 5m", c.CacheRefreshSpec)
	assert.Equal(t, 800*time.Millisecond, c.CartSubmitDelay)
	assert.True(t, c.RunMigrations)
	assert.Len(t, c.KafkaTopics, 4)
}

func TestLoadSupabaseKafka(t *testing.T) {
	t.Setenv("BACKEND", "Supabase")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")
	t.Setenv("REALTIME_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_TOPICS", "cdc.orders")
	t.Setenv("TELEGRAM_CHATS", "r1=-1001, *=42")
	t.Setenv("SUBMIT_RATE_INTERVAL", "nonsense")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSupabase, c.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, []string{"cdc.orders"}, c.KafkaTopics)
	assert.Equal(t, map[string]int64{"r1": -1001, "*": 42}, c.TelegramChats)
	assert.Equal(t, 10*time.Second, c.SubmitRateInterval, "unparsable values keep the default")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	c := Config{
		Backend:            "mysql",
		RealtimeDriver:     RealtimeKafka,
		KVDriver:           KVRedis,
		CacheRefreshSpec:   "every now and then",
		MaintenanceSpec:    "@every 1m",
		DBMinConns:         5,
		DBMaxConns:         2,
		SubmitRateInterval: time.Second,
	}
	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"BACKEND", "KAFKA_BROKERS", "REDIS_URL", "CACHE_REFRESH_SPEC", "DB_MIN_CONNS"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidateSupabaseRealtimeNeedsRestaurants(t *testing.T) {
	c := Config{
		Backend:            BackendSupabase,
		SupabaseURL:        "https://abc.supabase.co",
		SupabaseKey:        "k",
		RealtimeDriver:     RealtimeSupabase,
		KVDriver:           KVMemory,
		CacheRefreshSpec:   "@every 5m",
		MaintenanceSpec:    "*/5 * * * *",
		SubmitRateInterval: time.Second,
	}
	assert.ErrorContains(t, c.Validate(), "REALTIME_RESTAURANTS")
	c.RealtimeRestaurants = []string{"r1"}
	assert.NoError(t, c.Validate())
}

func TestParseChats(t *testing.T) {
	_, err := parseChats("r1")
	assert.Error(t, err)
	_, err = parseChats("r1=abc")
	assert.Error(t, err)
	m, err := parseChats("")
	require.NoError(t, err)
	assert.Empty(t, m)
}
