package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	SourceAPI    = "api"
	SourceScylla = "scylla"
	SinkKafka    = "kafka"

	TransportWS    = "ws"
	TransportRedis = "redis"
)

// Config is the client configuration, read from the environment and an
// optional .env file.
type Config struct {
	APIURL   string `env:"API_URL,default=http://localhost:8081" validate:"required,url"`
	WSURL    string `env:"WS_URL,default=ws://localhost:8080/ws" validate:"required,url"`
	User     string `env:"CHAT_USER"`
	Password string `env:"CHAT_PASSWORD"`
	Token    string `env:"TOKEN"`

	LogLevel    string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn warning error"`
	MetricsAddr string `env:"METRICS_ADDR"`

	HistorySource string `env:"HISTORY_SOURCE,default=api" validate:"oneof=api scylla"`
	PersistSink   string `env:"PERSIST_SINK,default=api" validate:"oneof=api kafka scylla"`
	Transport     string `env:"TRANSPORT,default=ws" validate:"oneof=ws redis"`

	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	KafkaBrokers   string `env:"KAFKA_BROKERS,default=localhost:9092"`
	KafkaTopic     string `env:"KAFKA_TOPIC,default=chat-messages"`
	KafkaGroup     string `env:"KAFKA_GROUP,default=logchat-archiver"`
	ScyllaHosts    string `env:"SCYLLA_HOSTS,default=localhost"`
	ScyllaKeyspace string `env:"SCYLLA_KEYSPACE,default=chat"`
	ArchiveLimit   int    `env:"ARCHIVE_LIMIT,default=200" validate:"gt=0"`

	JWTSecret      string        `env:"JWT_SECRET,default=secret"`
	TokenTTL       time.Duration `env:"TOKEN_TTL,default=24h" validate:"gt=0"`
	NodeID         int64         `env:"NODE_ID,default=1" validate:"gte=0,lte=1023"`
	StrictOrder    bool          `env:"STRICT_ORDER,default=false"`
	TranscriptLog  string        `env:"TRANSCRIPT_LOG"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=15s" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env when present, then the process environment, and
// validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	if _, err := env.UnmarshalFromEnviron(&c); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Field() + " (" + fe.Tag() + ")"
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) Brokers() []string { return splitList(c.KafkaBrokers) }

func (c Config) Hosts() []string { return splitList(c.ScyllaHosts) }

// NeedsScylla reports whether any backend reads or writes the archive.
func (c Config) NeedsScylla() bool {
	return c.HistorySource == SourceScylla || c.PersistSink == SourceScylla
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
