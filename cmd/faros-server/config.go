package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/faros-robotics/faros-server/internal/api/http"
	"github.com/faros-robotics/faros-server/internal/db"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig
	Http       http.Config
	Db         db.Config
	Auth       AuthConfig
	DeviceFlow DeviceFlowConfig `mapstructure:"device_flow"`
	Commands   CommandsConfig
}

type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret" json:"-"`
	TokenExpireMinutes int    `mapstructure:"token_expire_minutes"`
}

type DeviceFlowConfig struct {
	ExpireMinutes       int `mapstructure:"expire_minutes"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

type CommandsConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/faros-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("db.url", "DATABASE_URL")
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
