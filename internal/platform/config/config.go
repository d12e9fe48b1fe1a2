package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
)

type AuthMode string

const (
	AuthDev        AuthMode = "dev"
	AuthJWT        AuthMode = "jwt"
	AuthIntrospect AuthMode = "introspect"
)

type ArchiveDriver string

const (
	ArchiveNone   ArchiveDriver = "none"
	ArchiveMemory ArchiveDriver = "memory"
	ArchiveS3     ArchiveDriver = "s3"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
	AppName   string

	Registry Registry
	Store    Store
	Auth     Auth
	Notify   Notify
	Archive  Archive
}

// Registry identifica la instancia: el owner se otorga en el arranque.
type Registry struct {
	Owner         string
	ContractHash  string // hex de 32 bytes
	ContractLabel string // si no hay hash, se usa keccak256(label)
}

type Store struct {
	Driver     StoreDriver
	DSN        string
	SQLitePath string
}

type Auth struct {
	Mode            AuthMode
	JWTSigningKey   string
	JWTIssuer       string
	IntrospectURL   string
	IntrospectToken string
}

type Notify struct {
	RedisURL     string
	RedisStream  string
	KafkaBrokers []string
	KafkaTopic   string
}

type Archive struct {
	Driver    ArchiveDriver
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Load lee .env si existe y después el entorno del proceso.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup arma la config desde una función tipo os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	addr := get("HTTP_ADDR", "")
	if addr == "" {
		addr = ":" + get("PORT", "8080")
	}

	shutdown, err := time.ParseDuration(get("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	pathStyle, err := strconv.ParseBool(get("ARCHIVE_S3_PATH_STYLE", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("ARCHIVE_S3_PATH_STYLE: %w", err)
	}

	cfg := Config{
		HTTPAddr:        addr,
		ShutdownTimeout: shutdown,
		LogLevel:        get("LOG_LEVEL", "info"),
		LogFormat:       get("LOG_FORMAT", "text"),
		AppName:         get("APP_NAME", "certivax"),
		Registry: Registry{
			Owner:         get("REGISTRY_OWNER", ""),
			ContractHash:  get("REGISTRY_CONTRACT_HASH", ""),
			ContractLabel: get("REGISTRY_CONTRACT_LABEL", "certivax"),
		},
		Store: Store{
			Driver:     StoreDriver(strings.ToLower(get("STORE_DRIVER", ""))),
			DSN:        get("DB_DSN", ""),
			SQLitePath: get("SQLITE_PATH", "certivax.db"),
		},
		Auth: Auth{
			Mode:            AuthMode(strings.ToLower(get("AUTH_MODE", string(AuthDev)))),
			JWTSigningKey:   get("JWT_SIGNING_KEY", ""),
			JWTIssuer:       get("JWT_ISSUER", ""),
			IntrospectURL:   get("AUTH_INTROSPECT_URL", ""),
			IntrospectToken: get("AUTH_INTROSPECT_API_KEY", ""),
		},
		Notify: Notify{
			RedisURL:     get("NOTIFY_REDIS_URL", ""),
			RedisStream:  get("NOTIFY_REDIS_STREAM", "certivax:notifications"),
			KafkaBrokers: splitList(get("NOTIFY_KAFKA_BROKERS", "")),
			KafkaTopic:   get("NOTIFY_KAFKA_TOPIC", "certivax.notifications"),
		},
		Archive: Archive{
			Driver:    ArchiveDriver(strings.ToLower(get("ARCHIVE_DRIVER", string(ArchiveNone)))),
			Bucket:    get("ARCHIVE_S3_BUCKET", ""),
			Region:    get("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:  get("ARCHIVE_S3_ENDPOINT", ""),
			PathStyle: pathStyle,
		},
	}

	// Igual que antes: si hay DSN y no se eligió driver, Postgres.
	if cfg.Store.Driver == "" {
		if cfg.Store.DSN != "" {
			cfg.Store.Driver = StorePostgres
		} else {
			cfg.Store.Driver = StoreMemory
		}
	}

	return cfg, nil
}

// Validate reporta todos los problemas juntos.
func (c Config) Validate() error {
	var errs []error

	if c.Registry.Owner == "" {
		errs = append(errs, errors.New("REGISTRY_OWNER is required"))
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for postgres store"))
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Auth.Mode {
	case AuthDev:
	case AuthJWT:
		if c.Auth.JWTSigningKey == "" {
			errs = append(errs, errors.New("JWT_SIGNING_KEY is required for jwt auth"))
		}
	case AuthIntrospect:
		if c.Auth.IntrospectURL == "" {
			errs = append(errs, errors.New("AUTH_INTROSPECT_URL is required for introspect auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode))
	}

	switch c.Archive.Driver {
	case ArchiveNone, ArchiveMemory:
	case ArchiveS3:
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("ARCHIVE_S3_BUCKET is required for s3 archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_DRIVER %q", c.Archive.Driver))
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
