package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CronSpec   string
	ArchiveDir string

	LogLevel  string
	LogFormat string

	// 抓取重试与超时
	FetchMaxAttempts int
	FetchBaseDelay   time.Duration
	FetchTimeout     time.Duration

	// 启用的数据源，为空表示全部
	EnabledProviders []string
	// 定时任务只抓取这些兴趣 ID，为空表示全部启用的兴趣
	TopicIDs []uint
	// NewsData 套餐：free / paid，决定 size 上限
	NewsDataPlan string

	APIKeys map[string]string

	BasicAuthUser string
	BasicAuthPass string
}

// 各数据源密钥对应的环境变量
var apiKeyEnv = map[string]string{
	"newsdata":   "NEWSDATA_API_KEY",
	"newsapi":    "NEWSAPI_KEY",
	"gnews":      "GNEWS_API_KEY",
	"mediastack": "MEDIASTACK_API_KEY",
	"currents":   "CURRENTS_API_KEY",
}

func Load() *Config {
	// .env 不存在时忽略即可
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:          getEnv("APP_PORT", "9000"),
		PostgresDSN:      getEnv("POSTGRES_DSN", "host=localhost user=newshub password=newshub dbname=newshub port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		CronSpec:         getEnv("CRON_SPEC", "0 */6 * * *"),
		ArchiveDir:       getEnv("ARCHIVE_DIR", "fetched_news"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		FetchMaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBaseDelay:   getEnvDuration("FETCH_BASE_DELAY", time.Second),
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
		EnabledProviders: splitList(getEnv("ENABLED_PROVIDERS", "")),
		TopicIDs:         parseIDs(getEnv("TOPIC_IDS", "")),
		NewsDataPlan:     strings.ToLower(getEnv("NEWSDATA_PLAN", "free")),
		APIKeys:          make(map[string]string, len(apiKeyEnv)),
		BasicAuthUser:    getEnv("APP_BASIC_USER", ""),
		BasicAuthPass:    getEnv("APP_BASIC_PASS", ""),
	}

	for name, env := range apiKeyEnv {
		if v := os.Getenv(env); v != "" {
			cfg.APIKeys[name] = v
		}
	}

	log.Printf("config loaded: port=%s cron=%s providers=%v", cfg.AppPort, cfg.CronSpec, cfg.EnabledProviders)
	return cfg
}

// PaidNewsData 是否为 NewsData 付费套餐
func (c *Config) PaidNewsData() bool {
	return c.NewsDataPlan == "paid"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		log.Printf("warn: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d < 0 {
		log.Printf("warn: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

// splitList 按逗号拆分并去掉空白项
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) []uint {
	var ids []uint
	for _, part := range splitList(s) {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			log.Printf("warn: ignore invalid topic id %q", part)
			continue
		}
		ids = append(ids, uint(n))
	}
	return ids
}
