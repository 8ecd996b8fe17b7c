package config

import "time"

// Config is the root configuration structure for repomaint.
// Serialised to ~/.repomaint/config.json.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"    json:"database"`
	Git         GitConfig         `mapstructure:"git"         json:"git"`
	Vector      VectorConfig      `mapstructure:"vector"      json:"vector"`
	Tasks       TasksConfig       `mapstructure:"tasks"       json:"tasks"`
	Indexer     IndexerConfig     `mapstructure:"indexer"     json:"indexer"`
	Miner       MinerConfig       `mapstructure:"miner"       json:"miner"`
	Implementer ImplementerConfig `mapstructure:"implementer" json:"implementer"`
	Reviewer    ReviewerConfig    `mapstructure:"reviewer"    json:"reviewer"`
	Notify      NotifyConfig      `mapstructure:"notify"      json:"notify"`
	Gateway     GatewayConfig     `mapstructure:"gateway"     json:"gateway"`
	Log         LogConfig         `mapstructure:"log"         json:"log"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default), "mysql" or "memory".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// GitConfig holds credentials for each supported git hosting platform.
type GitConfig struct {
	GitHub []GitHubConfig `mapstructure:"github" json:"github"`
	GitLab []GitLabConfig `mapstructure:"gitlab" json:"gitlab"`
	Azure  []AzureConfig  `mapstructure:"azure"  json:"azure"`
	// DefaultProvider is used when neither the caller nor the URL names one.
	DefaultProvider string `mapstructure:"default_provider" json:"default_provider"`
	// Timeout bounds every provider API call.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// CloneTimeout bounds a single clone.
	CloneTimeout time.Duration `mapstructure:"clone_timeout" json:"clone_timeout"`
	// RetryAttempts applies to idempotent provider calls only.
	RetryAttempts uint `mapstructure:"retry_attempts" json:"retry_attempts"`
}

// GitHubConfig holds credentials for a single GitHub instance.
type GitHubConfig struct {
	Token string `mapstructure:"token" json:"token"`
	// Host allows enterprise GitHub (e.g. github.mycompany.com).
	Host string `mapstructure:"host"  json:"host"`
}

// GitLabConfig holds credentials for a single GitLab instance.
type GitLabConfig struct {
	Token string `mapstructure:"token" json:"token"`
	Host  string `mapstructure:"host"  json:"host"`
}

// AzureConfig holds credentials for an Azure DevOps organisation.
type AzureConfig struct {
	Token string `mapstructure:"token" json:"token"`
	Org   string `mapstructure:"org"   json:"org"`
	Host  string `mapstructure:"host"  json:"host"`
}

// VectorConfig selects the blob/vector index backend.
type VectorConfig struct {
	// Backend is "qdrant" or "none" (default).
	Backend   string `mapstructure:"backend"   json:"backend"`
	URL       string `mapstructure:"url"       json:"url"`
	APIKey    string `mapstructure:"api_key"   json:"api_key"`
	Dimension int    `mapstructure:"dimension" json:"dimension"`
	Distance  string `mapstructure:"distance"  json:"distance"`
}

// TasksConfig bounds the background worker pool.
type TasksConfig struct {
	Workers     int           `mapstructure:"workers"      json:"workers"`
	QueueSize   int           `mapstructure:"queue_size"   json:"queue_size"`
	SoftTimeout time.Duration `mapstructure:"soft_timeout" json:"soft_timeout"`
	HardTimeout time.Duration `mapstructure:"hard_timeout" json:"hard_timeout"`
	// Retention is how long terminal task records are kept.
	Retention time.Duration `mapstructure:"retention" json:"retention"`
}

// IndexerConfig controls clone and file walk behaviour.
type IndexerConfig struct {
	// WorkDir is the parent of per-repository temporary clone directories.
	// Empty means os.TempDir().
	WorkDir      string `mapstructure:"work_dir"       json:"work_dir"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes" json:"max_file_bytes"`
}

// ImplementerConfig holds the simulated execution delays.
type ImplementerConfig struct {
	StepDelay time.Duration `mapstructure:"step_delay" json:"step_delay"`
	TestDelay time.Duration `mapstructure:"test_delay" json:"test_delay"`
}

// ReviewerConfig controls the review agent catalog.
type ReviewerConfig struct {
	DefaultAgents []string `mapstructure:"default_agents" json:"default_agents"`
	// ProfilesFile is an optional YAML file with extra scripted agents.
	ProfilesFile string `mapstructure:"profiles_file"  json:"profiles_file"`
	OpenAIKey    string `mapstructure:"openai_api_key" json:"openai_api_key"`
	Model        string `mapstructure:"model"          json:"model"`
	// BaseURL overrides the API endpoint (useful for Azure OpenAI or proxies).
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// NotifyConfig configures outbound notifications.
type NotifyConfig struct {
	Slack   SlackNotifyConfig   `mapstructure:"slack"   json:"slack"`
	Webhook WebhookNotifyConfig `mapstructure:"webhook" json:"webhook"`
	// Events filters which event types are sent. Empty means defaults.
	Events []string `mapstructure:"events" json:"events"`
	// MinSeverity drops review events below this severity.
	MinSeverity string `mapstructure:"min_severity" json:"min_severity"`
}

// SlackNotifyConfig is a Slack incoming webhook.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// WebhookNotifyConfig is a generic JSON webhook with optional HMAC signing.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}

// GatewayConfig controls the persistent gateway daemon.
type GatewayConfig struct {
	// Port is the HTTP port the gateway listens on (default: 6090).
	Port      int              `mapstructure:"port"      json:"port"`
	Schedules []ScheduleConfig `mapstructure:"schedules" json:"schedules"`
}

// ScheduleConfig is a cron-driven reindex of one repository.
type ScheduleConfig struct {
	Name     string `mapstructure:"name"     json:"name"`
	Expr     string `mapstructure:"expr"     json:"expr"`
	URL      string `mapstructure:"url"      json:"url"`
	Provider string `mapstructure:"provider" json:"provider"`
	Branch   string `mapstructure:"branch"   json:"branch"`
}

// LogConfig controls the rotating daemon log file.
// MinerConfig tunes opportunity detection.
type MinerConfig struct {
	// Advisories enables OSV lookups for pinned dependencies in indexed
	// manifests. The scripted security findings are kept either way.
	Advisories bool   `mapstructure:"advisories"  json:"advisories"`
	OSVURL     string `mapstructure:"osv_url"     json:"osv_url"`
	// OSVTimeout bounds one querybatch call.
	OSVTimeout time.Duration `mapstructure:"osv_timeout" json:"osv_timeout"`
}

type LogConfig struct {
	File       string `mapstructure:"file"         json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"  json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool   `mapstructure:"compress"     json:"compress"`
}
