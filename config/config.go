package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// DBConfig database configuration
type DBConfig struct {
	Type     string `yaml:"type" json:"type"` // postgres | sqlite
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WebConfig web server configuration
type WebConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Secret    string `yaml:"secret" json:"secret"`
	JwtExpire int    `yaml:"jwt_expire" json:"jwt_expire"` // hours
	// AllowOrigins is a comma separated CORS origin list
	AllowOrigins string `yaml:"allow_origins" json:"allow_origins"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"` // development | production
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// MailConfig SMTP settings for dispatch notifications.
// Notifications are disabled while Host is empty.
type MailConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
	// DispatchDesk receives "ready to dispatch" notices
	DispatchDesk string `yaml:"dispatch_desk" json:"dispatch_desk"`
}

// WorkflowConfig tunes the fulfillment workflow
type WorkflowConfig struct {
	// IdempotencyTTLDays is how long advance results are kept for replay
	IdempotencyTTLDays int `yaml:"idempotency_ttl_days" json:"idempotency_ttl_days"`
	// OprLogDays is how long operator logs are kept
	OprLogDays int `yaml:"opr_log_days" json:"opr_log_days"`
	// EventWorkers bounds the pool running event subscribers
	EventWorkers int `yaml:"event_workers" json:"event_workers"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Database DBConfig       `yaml:"database" json:"database"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
	Mail     MailConfig     `yaml:"mail" json:"mail"`
	Workflow WorkflowConfig `yaml:"workflow" json:"workflow"`
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return filepath.Join(c.System.Workdir, "data")
}

func (c *AppConfig) initDirs() {
	_ = os.MkdirAll(c.GetLogDir(), 0o700)
	_ = os.MkdirAll(c.GetDataDir(), 0o700)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "PackFlow",
		Location: "Asia/Kolkata",
		Workdir:  "/var/packflow",
		Debug:    true,
	},
	Web: WebConfig{
		Host:      "0.0.0.0",
		Port:      1816,
		Secret:    "9b6de5cc-0731-4bf1-packflow-3e2fb2a1c1a4",
		JwtExpire: 12,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "packflow",
		User:     "postgres",
		Passwd:   "myroot",
		MaxConn:  100,
		IdleConn: 10,
		Debug:    false,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/packflow/logs/packflow.log",
		MaxSizeMB:  64,
		MaxBackups: 7,
		MaxAgeDays: 7,
	},
	Mail: MailConfig{
		Port: 587,
	},
	Workflow: WorkflowConfig{
		IdempotencyTTLDays: 30,
		OprLogDays:         365,
		EventWorkers:       8,
	},
}

// LoadConfig reads the yaml file at cfile (when present), then applies
// PACKFLOW_* environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := *DefaultAppConfig
	if cfile == "" {
		cfile = "packflow.yml"
	}
	if data, err := os.ReadFile(cfile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", cfile, err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.initDirs()
	return &cfg, nil
}

// Validate rejects configurations the application cannot start with
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Database.Type) {
	case "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	if strings.TrimSpace(c.Web.Secret) == "" {
		return fmt.Errorf("web secret must not be empty")
	}
	return nil
}

func setEnvValue(name string, val *string) {
	if v := os.Getenv(name); v != "" {
		*val = v
	}
}

func setEnvBoolValue(name string, val *bool) {
	if v := os.Getenv(name); v != "" {
		*val = cast.ToBool(v)
	}
}

func setEnvIntValue(name string, val *int) {
	if v := os.Getenv(name); v != "" {
		if i, err := cast.ToIntE(v); err == nil {
			*val = i
		}
	}
}

func applyEnv(cfg *AppConfig) {
	setEnvValue("PACKFLOW_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvValue("PACKFLOW_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("PACKFLOW_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("PACKFLOW_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("PACKFLOW_WEB_PORT", &cfg.Web.Port)
	setEnvValue("PACKFLOW_WEB_SECRET", &cfg.Web.Secret)
	setEnvIntValue("PACKFLOW_WEB_JWT_EXPIRE", &cfg.Web.JwtExpire)
	setEnvValue("PACKFLOW_WEB_ALLOW_ORIGINS", &cfg.Web.AllowOrigins)

	setEnvValue("PACKFLOW_DB_TYPE", &cfg.Database.Type)
	setEnvValue("PACKFLOW_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("PACKFLOW_DB_PORT", &cfg.Database.Port)
	setEnvValue("PACKFLOW_DB_NAME", &cfg.Database.Name)
	setEnvValue("PACKFLOW_DB_USER", &cfg.Database.User)
	setEnvValue("PACKFLOW_DB_PWD", &cfg.Database.Passwd)
	setEnvIntValue("PACKFLOW_DB_MAX_CONN", &cfg.Database.MaxConn)
	setEnvIntValue("PACKFLOW_DB_IDLE_CONN", &cfg.Database.IdleConn)
	setEnvBoolValue("PACKFLOW_DB_DEBUG", &cfg.Database.Debug)

	setEnvValue("PACKFLOW_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("PACKFLOW_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvValue("PACKFLOW_LOGGER_FILENAME", &cfg.Logger.Filename)
	setEnvIntValue("PACKFLOW_LOGGER_MAX_SIZE_MB", &cfg.Logger.MaxSizeMB)

	setEnvValue("PACKFLOW_MAIL_HOST", &cfg.Mail.Host)
	setEnvIntValue("PACKFLOW_MAIL_PORT", &cfg.Mail.Port)
	setEnvValue("PACKFLOW_MAIL_USERNAME", &cfg.Mail.Username)
	setEnvValue("PACKFLOW_MAIL_PASSWORD", &cfg.Mail.Password)
	setEnvValue("PACKFLOW_MAIL_FROM", &cfg.Mail.From)
	setEnvValue("PACKFLOW_MAIL_DISPATCH_DESK", &cfg.Mail.DispatchDesk)

	setEnvIntValue("PACKFLOW_WORKFLOW_IDEMPOTENCY_TTL_DAYS", &cfg.Workflow.IdempotencyTTLDays)
	setEnvIntValue("PACKFLOW_WORKFLOW_OPR_LOG_DAYS", &cfg.Workflow.OprLogDays)
	setEnvIntValue("PACKFLOW_WORKFLOW_EVENT_WORKERS", &cfg.Workflow.EventWorkers)
}
