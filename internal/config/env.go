package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr string
	GinMode string

	DBDSN      string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string

	StoreDriver string // mysql | memory
	SeedPath    string // fixtures for the memory store
	LockBackend string // local | mysql | redis
	RedisURL    string

	MQTTBroker string
	MQTTTopic  string

	JWTSecret       string
	TariffRulesPath string
	CORSOrigins     []string
	RateLimitRPS    float64

	LogLevel  string
	LogFormat string
}

// LoadDotEnv reads .env when present; a missing file is not an error.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

func LoadEnv() Env {
	return Env{
		AppAddr: getEnv("APP_ADDR", ":8080"),
		GinMode: getEnv("GIN_MODE", ""),

		DBDSN:      getEnv("DB_DSN", ""),
		DBHost:     getEnv("DB_HOST", "127.0.0.1:3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "charter_ops"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "mysql")),
		SeedPath:    getEnv("SEED_PATH", ""),
		LockBackend: strings.ToLower(getEnv("LOCK_BACKEND", "mysql")),
		RedisURL:    getEnv("REDIS_URL", ""),

		MQTTBroker: getEnv("MQTT_BROKER", ""),
		MQTTTopic:  getEnv("MQTT_TOPIC", "charter/notifications"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		TariffRulesPath: getEnv("TARIFF_RULES_PATH", ""),
		CORSOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitRPS:    getFloat("RATE_LIMIT_RPS", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
