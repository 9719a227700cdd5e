package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Migrations MigrationsConfig `yaml:"migrations"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
}

// JWTConfig настройка jwt, время жизни в минутах (по умолчанию 7 дней)
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"10080"`
}

// TelegramConfig - токен бота нужен для проверки initData WebApp.
// MaxAge = 0 отключает проверку свежести auth_date.
type TelegramConfig struct {
	BotToken string        `yaml:"-" env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	MaxAge   time.Duration `yaml:"max_age" env-default:"0s"`
}

// GatewayConfig настройка платёжного шлюза
type GatewayConfig struct {
	BaseURL     string        `yaml:"base_url" env-default:"https://api.chapa.co"`
	SecretKey   string        `yaml:"-" env:"GATEWAY_SECRET_KEY" env-required:"true"`
	PublicKey   string        `yaml:"public_key" env:"GATEWAY_PUBLIC_KEY"`
	Currency    string        `yaml:"currency" env-default:"ETB"`
	CallbackURL string        `yaml:"callback_url"`
	ReturnURL   string        `yaml:"return_url"`
	Timeout     time.Duration `yaml:"timeout" env-default:"15s"`
}

// PricingConfig - цена = base_fee + per_km * км
type PricingConfig struct {
	BaseFee float64 `yaml:"base_fee" env:"BASE_FEE" env-default:"40"`
	PerKm   float64 `yaml:"per_km" env:"PER_KM" env-default:"12"`
}

// RedisConfig - пустой адрес отключает кэш котировок
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	QuoteTTL time.Duration `yaml:"quote_ttl" env-default:"10m"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" env-default:"tolo"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("can't read config file " + configPath + ": " + err.Error())
	}

	return &cfg
}

// TokenTTL возвращает время жизни сессионного токена
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWT.TokenTTL) * time.Minute
}
