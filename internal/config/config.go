package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	Storage     string // postgres|memory
	HTTPAddr    string
	Location    *time.Location
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string

	JWTSecret     string
	ApproverRoles []string

	DirectoryURL      string
	DirectoryToken    string
	DirectoryTimeout  time.Duration
	RedisURL          string
	DirectoryCacheTTL time.Duration

	HallOfFameLevels []string

	ReconcileInterval     time.Duration
	FeatureExpiryInterval time.Duration

	BotToken     string
	BotApprovers []BotApprover
}

// BotApprover — согласующий в телеграм-боте: chat id, id пользователя, имя.
type BotApprover struct {
	TelegramID int64
	UserID     string
	Name       string
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Asia/Jakarta")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	storage := strings.ToLower(getenv("STORAGE", "postgres"))
	if storage != "postgres" && storage != "memory" {
		return nil, fmt.Errorf("STORAGE: unknown value %q", storage)
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Storage:     storage,
		HTTPAddr:    getenv("HTTP_ADDR", ":3005"),
		Location:    loc,
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("ENV", "dev"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		ApproverRoles: parseList(getenv("APPROVER_ROLES", "BK")),

		DirectoryURL:   os.Getenv("DIRECTORY_URL"),
		DirectoryToken: os.Getenv("DIRECTORY_TOKEN"),
		RedisURL:       os.Getenv("REDIS_URL"),

		HallOfFameLevels: parseList(getenv("HOF_LEVELS", "NASIONAL,INTERNASIONAL")),

		BotToken: os.Getenv("BOT_TOKEN"),
	}
	if cfg.Storage == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for STORAGE=postgres")
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"DIRECTORY_TIMEOUT", 5 * time.Second, &cfg.DirectoryTimeout},
		{"DIRECTORY_CACHE_TTL", 10 * time.Minute, &cfg.DirectoryCacheTTL},
		{"RECONCILE_INTERVAL", time.Hour, &cfg.ReconcileInterval},
		{"FEATURE_EXPIRY_INTERVAL", 15 * time.Minute, &cfg.FeatureExpiryInterval},
	}
	for _, d := range durations {
		v, err := parseDuration(os.Getenv(d.key), d.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	approvers, err := parseApprovers(os.Getenv("BOT_APPROVERS"))
	if err != nil {
		return nil, fmt.Errorf("BOT_APPROVERS: %w", err)
	}
	cfg.BotApprovers = approvers
	return cfg, nil
}

// MustEnv — для обязательных переменных отдельных бинарников (BOT_TOKEN и т.п.).
func MustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToUpper(p))
	}
	return out
}

// parseDuration: "" — значение по умолчанию, "0" — выключено.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	if s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// parseApprovers разбирает "123:u-bk:Pak Budi,456:u-bk2:Bu Sari".
func parseApprovers(s string) ([]BotApprover, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []BotApprover
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("bad approver %q", item)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad telegram id %q: %w", parts[0], err)
		}
		a := BotApprover{TelegramID: id, UserID: parts[1]}
		if len(parts) == 3 {
			a.Name = parts[2]
		}
		out = append(out, a)
	}
	return out, nil
}
