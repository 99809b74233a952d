package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	MaxRoomCount   int
	PostgresURL    string
	AllowedOrigins []string
	KafkaBrokers   []string
	KafkaTopic     string
	EventRate      float64
	EventBurst     int
	Debug          bool
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Port:           getEnv("PORT", "3000"),
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "gennia.room-events"),
	}
	if cfg.PostgresURL == "" {
		return Config{}, fmt.Errorf("failed to get variable for POSTGRES_URL")
	}

	var err error
	if cfg.MaxRoomCount, err = getInt("MAX_ROOM_COUNT", 5); err != nil {
		return Config{}, err
	}
	if cfg.EventBurst, err = getInt("EVENT_BURST", 40); err != nil {
		return Config{}, err
	}
	if cfg.EventRate, err = getFloat("EVENT_RATE", 20); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid DEBUG %q: %w", v, err)
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
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
