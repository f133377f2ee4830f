package app

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime wiring options for the CLI and the key directory.
type Config struct {
	Home          string // state directory, e.g. $HOME/.signalcore
	KeyDirURL     string // key directory base URL, e.g. http://127.0.0.1:8080
	RedisAddr     string // when set, protocol state lives in Redis instead of Home
	RedisPassword string
	RedisPrefix   string
	LogMode       string // "production" or "development"
	PreKeyCount   int    // one-time pre-keys per publish
	HTTPTimeout   time.Duration

	ListenAddr    string // key directory listen address
	TrustRootFile string // key directory trust-root private key
	ServerKeyID   uint32
	CertTTL       time.Duration

	HTTP *http.Client // optional; defaults to a client with HTTPTimeout
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() *Config {
	// A missing .env is normal; the environment still applies.
	_ = godotenv.Load()

	return &Config{
		Home:          getEnv("SIGNALCORE_HOME", defaultHome()),
		KeyDirURL:     getEnv("SIGNALCORE_KEYDIR_URL", "http://127.0.0.1:8080"),
		RedisAddr:     getEnv("SIGNALCORE_REDIS_ADDR", ""),
		RedisPassword: getEnv("SIGNALCORE_REDIS_PASSWORD", ""),
		RedisPrefix:   getEnv("SIGNALCORE_REDIS_PREFIX", "signalcore"),
		LogMode:       getEnv("SIGNALCORE_LOG_MODE", "production"),
		PreKeyCount:   getEnvAsInt("SIGNALCORE_PREKEY_COUNT", 20),
		HTTPTimeout:   time.Duration(getEnvAsInt("SIGNALCORE_HTTP_TIMEOUT_SEC", 10)) * time.Second,

		ListenAddr:    getEnv("KEYDIR_ADDR", ":8080"),
		TrustRootFile: getEnv("KEYDIR_TRUST_ROOT_FILE", "keydir-trust-root.json"),
		ServerKeyID:   uint32(getEnvAsInt("KEYDIR_SERVER_KEY_ID", 1)),
		CertTTL:       time.Duration(getEnvAsInt("KEYDIR_CERT_TTL_HOURS", 24)) * time.Hour,
	}
}

func defaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".signalcore"
	}
	return filepath.Join(dir, ".signalcore")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
