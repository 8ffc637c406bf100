// Package config loads runtime options from an ini-style settings file with
// EMBERCHAT_* environment variable overrides.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const settingsFile = "config/emberchat.ini"

// Config describes runtime options for the daemon.
type Config struct {
	ListenAddr string

	// Persistence: "sqlite" (default) or "postgres".
	DBDriver    string
	DBPath      string
	PostgresDSN string

	// Seed files.
	ModelsFile string

	// Remote backend.
	RemoteBaseURL string
	RemoteAPIKey  string
	RemoteTimeout time.Duration

	// Local subprocess backend.
	LocalExecPath string
	LocalTimeout  time.Duration

	// Prompt inputs supplied outside the orchestration core.
	PromptTemplate string
	UserProfile    string

	LogFile  string
	LogLevel string
}

// Load reads the settings file under root (missing file is fine; defaults and
// environment apply) and resolves each option as env > file > default.
func Load(root string) (Config, error) {
	merged, err := readSettings(filepath.Join(root, settingsFile))
	if err != nil {
		return Config{}, err
	}

	get := func(envKey, fileKey, def string) string {
		return firstNonEmpty(os.Getenv(envKey), merged[fileKey], def)
	}

	cfg := Config{
		ListenAddr:     get("EMBERCHAT_LISTEN_ADDR", "listen_addr", ":8080"),
		DBDriver:       get("EMBERCHAT_DB_DRIVER", "db_driver", "sqlite"),
		DBPath:         get("EMBERCHAT_DB_PATH", "db_path", "data/emberchat.db"),
		PostgresDSN:    get("EMBERCHAT_POSTGRES_DSN", "postgres_dsn", ""),
		ModelsFile:     get("EMBERCHAT_MODELS_FILE", "models_file", ""),
		RemoteBaseURL:  get("EMBERCHAT_REMOTE_BASE_URL", "remote_base_url", ""),
		RemoteAPIKey:   get("EMBERCHAT_REMOTE_API_KEY", "remote_api_key", ""),
		LocalExecPath:  get("EMBERCHAT_LOCAL_EXEC_PATH", "local_exec_path", ""),
		PromptTemplate: get("EMBERCHAT_PROMPT_TEMPLATE", "prompt_template", ""),
		UserProfile:    get("EMBERCHAT_USER_PROFILE", "user_profile", ""),
		LogFile:        get("EMBERCHAT_LOG_FILE", "log_file", ""),
		LogLevel:       get("EMBERCHAT_LOG_LEVEL", "log_level", "info"),
	}

	cfg.RemoteTimeout, err = parseDuration(get("EMBERCHAT_REMOTE_TIMEOUT", "remote_timeout", "120s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: remote_timeout: %w", err)
	}
	cfg.LocalTimeout, err = parseDuration(get("EMBERCHAT_LOCAL_TIMEOUT", "local_timeout", "5m"))
	if err != nil {
		return Config{}, fmt.Errorf("config: local_timeout: %w", err)
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("config: unknown db_driver %q", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: db_driver postgres requires postgres_dsn")
	}

	return cfg, nil
}

// readSettings parses simple "key=value" lines; '#' and ';' start comments.
func readSettings(path string) (map[string]string, error) {
	merged := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return merged, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		merged[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return merged, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}
