package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Simulator   SimulatorConfig           `json:"simulator"`
}

type BasicConfig struct {
	ServerAddress       string `json:"server_address"`
	StoreBackend        string `json:"store_backend"`
	DataPath            string `json:"data_path"`
	AuthTokenTTLMinutes int    `json:"auth_token_ttl_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SimulatorConfig holds the artificial delay windows and batch limits for the
// reply simulator. Zero values fall back to the built-in defaults.
type SimulatorConfig struct {
	ReplyDelayMinMs int `json:"reply_delay_min_ms"`
	ReplyDelayMaxMs int `json:"reply_delay_max_ms"`
	RoomDelayMinMs  int `json:"room_delay_min_ms"`
	RoomDelayMaxMs  int `json:"room_delay_max_ms"`
	TrainingDelayMs int `json:"training_delay_ms"`
	RoomReplyGapMs  int `json:"room_reply_gap_ms"`
	MaxRoomRepliers int `json:"max_room_repliers"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.StoreBackend == "" {
		cfg.BasicConfig.StoreBackend = "file"
	}
	if cfg.BasicConfig.DataPath == "" {
		cfg.BasicConfig.DataPath = "data/characterlab.json"
	}
	if !filepath.IsAbs(cfg.BasicConfig.DataPath) {
		cfg.BasicConfig.DataPath = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.DataPath)
	}

	return &cfg, nil
}

// Delay converts a millisecond setting to a duration, falling back when the
// setting is absent or negative.
func Delay(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
