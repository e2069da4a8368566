package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	Host                    string        `env:"HOST,default=0.0.0.0"`
	Port                    int           `env:"PORT,default=5000"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath          string        `env:"BADGER_FILEPATH,default=./data/badger"`
	JWTSecret               string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration       time.Duration `env:"AUTH_TOKEN_DURATION,default=168h"`
	HistoryPageSize         int           `env:"HISTORY_PAGE_SIZE,default=50"`
	MaxContentLength        int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	ConnectionBufferSize    int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxFrameSize            int64         `env:"MAX_FRAME_SIZE,default=8192"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=*"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	RestartInterval         time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval          time.Duration `env:"METRIC_INTERVAL,default=10s"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	DebugPort               int           `env:"DEBUG_PORT,default=8081"`
	CensoredWords           string        `env:"CENSORED_WORDS"`
	CensoredChar            string        `env:"CENSORED_CHAR,default=*"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("PORT must be a valid port, got %d", c.Port)
	case c.HistoryPageSize <= 0:
		return fmt.Errorf("HISTORY_PAGE_SIZE must be positive, got %d", c.HistoryPageSize)
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.AuthTokenDuration <= 0:
		return fmt.Errorf("AUTH_TOKEN_DURATION must be positive, got %s", c.AuthTokenDuration)
	default:
		return nil
	}
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Words splits CENSORED_WORDS on commas.
func (c Config) Words() []string {
	return splitList(c.CensoredWords)
}

// CensorRune returns the first rune of CENSORED_CHAR, '*' when empty.
func (c Config) CensorRune() rune {
	for _, r := range c.CensoredChar {
		return r
	}
	return '*'
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
