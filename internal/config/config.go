package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".repomaint"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".repomaint/repomaint.db"
	DefaultLogFile    = ".repomaint/logs/repomaint.log"
	EnvPrefix         = "REPOMAINT"
)

// Load reads the config file (defaults apply if absent) and returns a
// populated Config. The configPath flag may override the default location.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Ignoring unreadable .env file", "error", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	applyEnvCredentials(&cfg)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	path, err := ConfigPath(configPath)
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("git.default_provider", "github")
	v.SetDefault("git.timeout", 30*time.Second)
	v.SetDefault("git.clone_timeout", 10*time.Minute)
	v.SetDefault("git.retry_attempts", 3)

	v.SetDefault("vector.backend", "none")
	v.SetDefault("vector.url", "http://localhost:6333")
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.dimension", 384)
	v.SetDefault("vector.distance", "Cosine")

	v.SetDefault("tasks.workers", 4)
	v.SetDefault("tasks.queue_size", 64)
	v.SetDefault("tasks.soft_timeout", 25*time.Minute)
	v.SetDefault("tasks.hard_timeout", 30*time.Minute)
	v.SetDefault("tasks.retention", 24*time.Hour)

	v.SetDefault("indexer.work_dir", "")
	v.SetDefault("indexer.max_file_bytes", 1<<20)

	v.SetDefault("miner.advisories", false)
	v.SetDefault("miner.osv_url", "https://api.osv.dev/v1")
	v.SetDefault("miner.osv_timeout", 15*time.Second)

	v.SetDefault("implementer.step_delay", time.Second)
	v.SetDefault("implementer.test_delay", 3*time.Second)

	v.SetDefault("reviewer.default_agents", []string{"security-agent", "performance-agent", "style-agent"})
	v.SetDefault("reviewer.model", "gpt-4o")
	v.SetDefault("reviewer.base_url", "")

	v.SetDefault("gateway.port", 6090)

	v.SetDefault("log.file", filepath.Join(home, DefaultLogFile))
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// applyEnvCredentials adds provider entries from the conventional
// GITHUB_TOKEN, GITLAB_TOKEN/GITLAB_URL and AZURE_DEVOPS_* variables when the
// config file does not define any for that platform.
func applyEnvCredentials(cfg *Config) {
	if len(cfg.Git.GitHub) == 0 {
		if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
			cfg.Git.GitHub = append(cfg.Git.GitHub, GitHubConfig{Token: tok, Host: os.Getenv("GITHUB_HOST")})
		}
	}
	if len(cfg.Git.GitLab) == 0 {
		if tok := os.Getenv("GITLAB_TOKEN"); tok != "" {
			cfg.Git.GitLab = append(cfg.Git.GitLab, GitLabConfig{Token: tok, Host: hostOf(os.Getenv("GITLAB_URL"))})
		}
	}
	if len(cfg.Git.Azure) == 0 {
		if tok := os.Getenv("AZURE_DEVOPS_TOKEN"); tok != "" {
			cfg.Git.Azure = append(cfg.Git.Azure, AzureConfig{Token: tok, Org: os.Getenv("AZURE_DEVOPS_ORGANIZATION")})
		}
	}
	if cfg.Reviewer.OpenAIKey == "" {
		cfg.Reviewer.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// hostOf strips the scheme and path from a base URL.
func hostOf(raw string) string {
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Indexer.WorkDir = expandHome(cfg.Indexer.WorkDir, home)
	cfg.Reviewer.ProfilesFile = expandHome(cfg.Reviewer.ProfilesFile, home)
	cfg.Log.File = expandHome(cfg.Log.File, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
