package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB string `yaml:"db_dsn"`

	Quotes struct {
		WSURL       string `yaml:"ws_url"`
		PollURL     string `yaml:"poll_url"`
		SymbolsFile string `yaml:"symbols_file"`
	} `yaml:"quotes"`

	Health struct {
		Addr string `yaml:"addr"`
	} `yaml:"health"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Риск-движок.
	// MarginCheckInterval — окно планировщика маржин-свипа;
	// внутри окна выполняется MarginSubChecks под-проверок.
	Engine struct {
		MarginCheckInterval  time.Duration `yaml:"margin_check_interval"`
		MarginSubChecks      int           `yaml:"margin_sub_checks"`
		CacheRefreshInterval time.Duration `yaml:"cache_refresh_interval"`
		// Кулдаун после успешного закрытия (гасит всплеск тиков по символу)
		PositionCooldown time.Duration `yaml:"position_cooldown"`
		// Кулдаун после неудачного закрытия — до ретрая бэкап-свипом
		TriggerCooldown time.Duration `yaml:"trigger_cooldown"`
		CloseQueueSize  int           `yaml:"close_queue_size"`
		PollInterval    time.Duration `yaml:"poll_interval"`
	} `yaml:"engine"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{}

	// дефолты движка
	config.Engine.MarginCheckInterval = durationFromEnv("MARGIN_CHECK_INTERVAL", "60s")
	config.Engine.MarginSubChecks = intFromEnv("MARGIN_SUB_CHECKS", 1)
	config.Engine.CacheRefreshInterval = durationFromEnv("CACHE_REFRESH_INTERVAL", "30s")
	config.Engine.PositionCooldown = durationFromEnv("POSITION_COOLDOWN", "1s")
	config.Engine.TriggerCooldown = durationFromEnv("TRIGGER_COOLDOWN", "10s")
	config.Engine.CloseQueueSize = intFromEnv("CLOSE_QUEUE_SIZE", 256)
	config.Engine.PollInterval = durationFromEnv("QUOTES_POLL_INTERVAL", "5s")
	config.Health.Addr = getenvDefault("HEALTH_ADDR", ":8080")

	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
