package config

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct{ v *viper.Viper }

func New() *Config {
	vv := viper.New()
	vv.AutomaticEnv()
	return &Config{v: vv}
}

// GetDsn resolves the final DSN using env vars
func (c *Config) GetDsn() (*url.URL, error) {
	source := c.v.GetString("DSN")
	if source == "" {
		user := c.v.GetString("PGUSER")
		if user == "" {
			user = c.v.GetString("USER")
		}
		if user == "" {
			user = "postgres"
		}

		dbName := c.v.GetString("PGDATABASE")
		if dbName == "" {
			dbName = "postgres"
		}

		host := c.v.GetString("PGHOST")
		if host == "" {
			host = "localhost"
		}

		port := c.v.GetString("PGPORT")
		hasPortEnv := port != ""
		if !hasPortEnv || port == "" {
			port = "5432"
		}

		if strings.HasPrefix(host, "/") {
			socketDir := host

			// If PGHOST points to a file, derive directory and only infer port when PGPORT isn't set.
			if fi, err := os.Stat(host); err == nil && !fi.IsDir() {
				socketDir = filepath.Dir(host)
				if !hasPortEnv {
					base := filepath.Base(host)
					// Expected filename pattern: ".s.PGSQL.<port>"
					if strings.HasPrefix(base, ".s.PGSQL.") {
						if inferred := strings.TrimPrefix(base, ".s.PGSQL."); inferred != "" {
							if _, err := strconv.Atoi(inferred); err == nil {
								port = inferred
							}
						}
					}
				}
			}

			q := url.Values{}
			q.Set("host", socketDir)
			q.Set("port", port)
			q.Set("sslmode", "disable")
			source = "postgres://" + user + "@/" + dbName + "?" + q.Encode()
		} else {
			source = "postgres://" + user + "@" + host + ":" + port + "/" + dbName + "?sslmode=disable"
		}
	}

	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return nil, errors.New("invalid DSN: must be in format driver://dataSourceName")
	}
	return u, nil
}

func (c *Config) GetGitHubToken() string {
	if t := c.v.GetString("GITHUB_TOKEN"); t != "" {
		return t
	}
	return c.v.GetString("GH_TOKEN")
}

// GetYouTubeAPIKey returns the YouTube Data API key from env var YOUTUBE_API_KEY.
func (c *Config) GetYouTubeAPIKey() string { return c.v.GetString("YOUTUBE_API_KEY") }

func (c *Config) GetAddr() string {
	port := c.v.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	host := c.v.GetString("HOST")
	if host == "" {
		host = "localhost"
	}
	return host + ":" + port
}

// GetResultCacheTTL returns the TTL for aggregation result cache entries.
// Reads duration from env var RESULT_CACHE_TTL; defaults to 7 days.
func (c *Config) GetResultCacheTTL() time.Duration {
	const def = 7 * 24 * time.Hour
	if v := c.v.GetString("RESULT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// GetPlannerTimeout returns the bound on a single planner LLM round trip.
// Reads duration from env var PLANNER_TIMEOUT; defaults to 30s.
func (c *Config) GetPlannerTimeout() time.Duration {
	const def = 30 * time.Second
	if v := c.v.GetString("PLANNER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// GetOpenAIBaseURL returns the OpenAI API base URL from env var OPENAI_BASE_URL.
func (c *Config) GetOpenAIBaseURL() string { return c.v.GetString("OPENAI_BASE_URL") }

// GetOpenAIAPIKey returns the OpenAI API key from env var OPENAI_API_KEY.
func (c *Config) GetOpenAIAPIKey() string { return c.v.GetString("OPENAI_API_KEY") }

// GetPlannerModel returns the chat model used for plan generation from env var PLANNER_MODEL.
func (c *Config) GetPlannerModel() string {
	if m := c.v.GetString("PLANNER_MODEL"); m != "" {
		return m
	}
	return "gpt-4o-mini"
}

// GetServiceName returns the service name reported in telemetry.
func (c *Config) GetServiceName() string {
	if n := c.v.GetString("SERVICE_NAME"); n != "" {
		return n
	}
	return "learntrail"
}

func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

// GetLogLevel returns the log level from env var LOG_LEVEL mapped to slog.Level.
// Recognized values: debug, info (default), warn|warning, error.
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToLower(c.v.GetString("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OnLogLevelChange calls fn with the slog.Level whenever it changes.
// The initial call is made immediately.
func (c *Config) OnLogLevelChange(fn func(slog.Level)) {
	apply := func() { fn(c.GetLogLevel()) }
	apply()
	c.v.OnConfigChange(func(e fsnotify.Event) { apply() })
}

// Watch watches for changes in the config file and env vars.
func (c *Config) Watch(ctx context.Context) {
	c.v.WatchConfig()
	go func() { <-ctx.Done() }()
}
