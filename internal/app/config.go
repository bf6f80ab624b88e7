package app

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"convokey/internal/logger"
	"convokey/internal/services/e2e"
)

// Secure store modes.
const (
	SecureStoreEncrypted = "encrypted"
	SecureStorePlain     = "plain"
	SecureStoreMemory    = "memory"
)

// Directory server backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds runtime wiring options for the CLI and the directory server.
type Config struct {
	Home        string            `mapstructure:"home"` // e.g. $HOME/.convokey
	Directory   DirectoryConfig   `mapstructure:"directory"`
	SecureStore SecureStoreConfig `mapstructure:"secure_store"`
	Log         logger.Config     `mapstructure:"log"`
	TopUp       e2e.TopUpConfig   `mapstructure:"topup"`
	Messaging   MessagingConfig   `mapstructure:"messaging"`

	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`

	HTTP *http.Client `mapstructure:"-"` // optional; overrides the directory client transport
}

// DirectoryConfig points the client at a key directory server.
type DirectoryConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecureStoreConfig selects where key pairs are kept on this device.
type SecureStoreConfig struct {
	Mode    string `mapstructure:"mode"`
	ScryptN int    `mapstructure:"scrypt_n"`
}

// MessagingConfig tunes the message service.
type MessagingConfig struct {
	AllowPlaintextFallback bool `mapstructure:"allow_plaintext_fallback"`
}

// ServerConfig configures cmd/keydir.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Backend         string        `mapstructure:"backend"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	RequireRecordID bool          `mapstructure:"require_record_id"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// PostgresConfig is used by the postgres backend.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MongoConfig is used by the mongo backend.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// LoadConfig returns a viper instance with defaults, CONVOKEY_* environment
// overrides, and the YAML file at path if path is not empty.
func LoadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("convokey")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

// ParseConfig decodes v into a Config and resolves the home directory.
func ParseConfig(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	home, err := expandHome(c.Home)
	if err != nil {
		return Config{}, err
	}
	c.Home = home
	return c, nil
}

func setDefaults(v *viper.Viper) {
	def := e2e.DefaultTopUpConfig()

	v.SetDefault("home", "~/.convokey")
	v.SetDefault("directory.url", "http://127.0.0.1:8080")
	v.SetDefault("directory.timeout", 10*time.Second)
	v.SetDefault("secure_store.mode", SecureStoreEncrypted)
	v.SetDefault("secure_store.scrypt_n", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("topup.queue_size", def.QueueSize)
	v.SetDefault("topup.rate_per_second", def.RatePerSecond)
	v.SetDefault("topup.burst", def.Burst)
	v.SetDefault("topup.drain_timeout", def.DrainTimeout)
	v.SetDefault("messaging.allow_plaintext_fallback", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.backend", BackendMemory)
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", time.Hour)
	v.SetDefault("server.require_record_id", false)
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "convokey")
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, strings.TrimPrefix(p, "~")), nil
}
