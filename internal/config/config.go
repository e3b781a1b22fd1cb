package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	SQLitePath             string
	RedisURL               string
	NATSURL                string
	RealtimeChannel        string
	JWTSecret              string
	JWTRefreshSecret       string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxSizeMB        int
	SSEKeepAlive           time.Duration
	WebsocketPingInterval  time.Duration
	WebsocketSendBuffer    int
	ChatRateLimit          int
	ChatRateWindow         time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("NEWLEARN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "NewLearn Messaging API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("realtime.channel", "newlearn:realtime")
	v.SetDefault("cloudinary.folder", "newlearn/chat")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("sse.keepalive", "30s")
	v.SetDefault("ws.ping_interval", "30s")
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("chat.rate_limit", 30)
	v.SetDefault("chat.rate_window", "10s")

	keepAlive, err := parseDuration(v, "sse.keepalive", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := parseDuration(v, "ws.ping_interval", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "chat.rate_window", 10*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		SQLitePath:             v.GetString("sqlite.path"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTRefreshSecret:       v.GetString("jwt.refresh_secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		SSEKeepAlive:           keepAlive,
		WebsocketPingInterval:  pingInterval,
		WebsocketSendBuffer:    v.GetInt("ws.send_buffer"),
		ChatRateLimit:          v.GetInt("chat.rate_limit"),
		ChatRateWindow:         rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return Config{}, fmt.Errorf("either database url or sqlite path must be provided")
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	if cfg.WebsocketSendBuffer <= 0 {
		cfg.WebsocketSendBuffer = 64
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}

	return parsed, nil
}
