package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	defaultConfigPath = "./config/config.yaml"
)

type Config struct {
	Env          string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer   `yaml:"http_server"`
	Storage      `yaml:"storage"`
	Mongo        `yaml:"mongo"`
	Postgres     `yaml:"postgres"`
	Redis        `yaml:"redis"`
	RabbitMQ     `yaml:"rabbitmq"`
	SMTP         `yaml:"smtp"`
	Tokens       `yaml:"tokens"`
	Verification `yaml:"verification"`
}

// ResetPasswordURL is the page that receives ?token= from the reset email
// and POSTs the new password to /auth/reset-password.
type HTTPServer struct {
	Address          string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout          time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" env-default:"60s"`
	PublicURL        string        `yaml:"public_url" env:"PUBLIC_URL" env-default:"http://localhost:8080"`
	ResetPasswordURL string        `yaml:"reset_password_url" env:"RESET_PASSWORD_URL" env-default:"http://localhost:3000/reset-password"`
}

type Storage struct {
	Driver       string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mongo"`
	CleanupEvery time.Duration `yaml:"cleanup_every" env-default:"1h"`
}

type Mongo struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"code_auth"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"postgres"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type RabbitMQ struct {
	URL        string `yaml:"url" env:"RABBITMQ_URL" env-required:"true"`
	EmailQueue string `yaml:"email_queue" env-default:"email"`
	SMSQueue   string `yaml:"sms_queue" env-default:"sms"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

type Tokens struct {
	Secret           string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	Issuer           string        `yaml:"issuer" env-default:"code_auth"`
	AccessTTL        time.Duration `yaml:"access_ttl" env-default:"30m"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl" env-default:"720h"`
	ResetPasswordTTL time.Duration `yaml:"reset_password_ttl" env-default:"10m"`
	VerifyEmailTTL   time.Duration `yaml:"verify_email_ttl" env-default:"10m"`
	TemporaryTTL     time.Duration `yaml:"temporary_ttl" env-default:"2m"`
}

type Verification struct {
	CodeGenerator string `yaml:"code_generator" env:"CODE_GENERATOR" env-default:"numeric"`
	CodeLength    int    `yaml:"code_length" env-default:"6"`
	MaxAttempts   int    `yaml:"max_attempts" env:"VERIFICATION_MAX_ATTEMPTS" env-default:"5"`
}

// MustLoad reads the file named by CONFIG_PATH (./config/config.yaml by
// default) after loading an optional .env file.
func MustLoad() *Config {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := Load(configPath)
	if err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMongo, DriverMemory:
	case DriverPostgres:
		if c.Postgres.User == "" || c.Postgres.DBName == "" {
			return errors.New("postgres driver requires postgres.user and postgres.dbname")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if len(c.Tokens.Secret) < 16 {
		return errors.New("tokens.secret must be at least 16 characters")
	}

	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 || c.Tokens.TemporaryTTL <= 0 ||
		c.Tokens.ResetPasswordTTL <= 0 || c.Tokens.VerifyEmailTTL <= 0 {
		return errors.New("token ttls must be positive")
	}

	if c.Verification.MaxAttempts <= 0 {
		return errors.New("verification.max_attempts must be positive")
	}

	if c.Storage.CleanupEvery <= 0 {
		return errors.New("storage.cleanup_every must be positive")
	}

	return nil
}
