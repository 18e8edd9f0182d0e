package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string `yaml:"server.port"`

	// Database configuration
	DatabaseURL string `yaml:"database.url"`

	// Browser automation configuration
	BrowserHeadless   bool   `yaml:"browser.headless"`
	BrowserCookiesDir string `yaml:"browser.cookies_dir"` // One <account_id>.json per account
	BrowserUserAgent  string `yaml:"browser.user_agent"`
	PlatformBaseURL   string `yaml:"browser.base_url"`

	// Shadow-ban probe configuration
	ShadowBanAPIURL string `yaml:"shadowban.api_base_url"`

	// Automation scheduler configuration
	MaxConcurrency          int           `yaml:"automation.max_concurrency"`
	SessionRetryLimit       int           `yaml:"automation.session_retry_limit"`
	SessionRetryInterval    time.Duration `yaml:"-"`
	SessionRetryIntervalStr string        `yaml:"automation.session_retry_interval"`
	DispatchPerMinute       int           `yaml:"automation.dispatch_per_minute"` // 0 disables pacing

	// Per-action timeouts
	CheckTimeout         time.Duration `yaml:"-"`
	CheckTimeoutStr      string        `yaml:"automation.timeouts.check"`
	ShadowBanTimeout     time.Duration `yaml:"-"`
	ShadowBanTimeoutStr  string        `yaml:"automation.timeouts.shadow_ban"`
	EngagementTimeout    time.Duration `yaml:"-"`
	EngagementTimeoutStr string        `yaml:"automation.timeouts.engagement"`
	PostTimeout          time.Duration `yaml:"-"`
	PostTimeoutStr       string        `yaml:"automation.timeouts.post"`

	// Retry/backoff configuration
	RetryInitialDelay    time.Duration `yaml:"-"`
	RetryInitialDelayStr string        `yaml:"retry.initial_delay"`
	RetryMaxDelay        time.Duration `yaml:"-"`
	RetryMaxDelayStr     string        `yaml:"retry.max_delay"`
	RetryMaxAttempts     int           `yaml:"retry.max_attempts"`

	// Post scheduler configuration
	PollInterval        time.Duration `yaml:"-"`
	PollIntervalStr     string        `yaml:"scheduler.poll_interval"`
	HealthCheckSchedule string        `yaml:"scheduler.health_check_schedule"` // Cron expression, empty disables

	// HTTP client tuning
	HTTPClientTimeout    time.Duration `yaml:"-"`
	HTTPClientTimeoutStr string        `yaml:"performance.http_client_timeout"`
	MaxIdleConns         int           `yaml:"performance.max_idle_conns"`
	MaxConnsPerHost      int           `yaml:"performance.max_conns_per_host"`

	// Logging configuration
	LogDirectory  string `yaml:"logging.dir"`
	LogOutputFile string `yaml:"logging.output_file"`
	LogErrorFile  string `yaml:"logging.error_file"`

	// Bootstrap accounts
	BootstrapAccounts []AccountBootstrap `yaml:"accounts"`
}

// AccountBootstrap defines an account loaded from config
type AccountBootstrap struct {
	Username string `yaml:"username"`
	Proxy    string `yaml:"proxy,omitempty"`
	IsActive *bool  `yaml:"is_active,omitempty"`
}

type serverSection struct {
	Port string `yaml:"port"`
}

type databaseSection struct {
	URL string `yaml:"url"`
}

type browserSection struct {
	Headless   bool   `yaml:"headless"`
	CookiesDir string `yaml:"cookies_dir"`
	UserAgent  string `yaml:"user_agent"`
	BaseURL    string `yaml:"base_url"`
}

type shadowBanSection struct {
	APIBaseURL string `yaml:"api_base_url"`
}

type timeoutsSection struct {
	Check      string `yaml:"check"`
	ShadowBan  string `yaml:"shadow_ban"`
	Engagement string `yaml:"engagement"`
	Post       string `yaml:"post"`
}

type automationSection struct {
	MaxConcurrency       int             `yaml:"max_concurrency"`
	SessionRetryLimit    int             `yaml:"session_retry_limit"`
	SessionRetryInterval string          `yaml:"session_retry_interval"`
	DispatchPerMinute    int             `yaml:"dispatch_per_minute"`
	Timeouts             timeoutsSection `yaml:"timeouts"`
}

type retrySection struct {
	InitialDelay string `yaml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

type schedulerSection struct {
	PollInterval        string `yaml:"poll_interval"`
	HealthCheckSchedule string `yaml:"health_check_schedule"`
}

type performanceSection struct {
	HTTPClientTimeout string `yaml:"http_client_timeout"`
	MaxIdleConns      int    `yaml:"max_idle_conns"`
	MaxConnsPerHost   int    `yaml:"max_conns_per_host"`
}

type loggingSection struct {
	Directory  string `yaml:"dir"`
	OutputFile string `yaml:"output_file"`
	ErrorFile  string `yaml:"error_file"`
}

// configFile represents the YAML structure
type configFile struct {
	Server      serverSection      `yaml:"server"`
	Database    databaseSection    `yaml:"database"`
	Browser     browserSection     `yaml:"browser"`
	ShadowBan   shadowBanSection   `yaml:"shadowban"`
	Automation  automationSection  `yaml:"automation"`
	Retry       retrySection       `yaml:"retry"`
	Scheduler   schedulerSection   `yaml:"scheduler"`
	Performance performanceSection `yaml:"performance"`
	Logging     loggingSection     `yaml:"logging"`
	Accounts    []AccountBootstrap `yaml:"accounts"`
}

// Manager handles configuration loading and saving
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager creates a new configuration manager
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = "config.yaml"
	}
	return &Manager{
		configPath: configPath,
	}
}

// Load reads configuration from YAML file
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		// If file doesn't exist, create default config
		if os.IsNotExist(err) {
			return m.createDefaultConfig()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(data, &cfgFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &Config{
		ServerPort:              cfgFile.Server.Port,
		DatabaseURL:             cfgFile.Database.URL,
		BrowserHeadless:         cfgFile.Browser.Headless,
		BrowserCookiesDir:       cfgFile.Browser.CookiesDir,
		BrowserUserAgent:        cfgFile.Browser.UserAgent,
		PlatformBaseURL:         cfgFile.Browser.BaseURL,
		ShadowBanAPIURL:         cfgFile.ShadowBan.APIBaseURL,
		MaxConcurrency:          cfgFile.Automation.MaxConcurrency,
		SessionRetryLimit:       cfgFile.Automation.SessionRetryLimit,
		SessionRetryIntervalStr: cfgFile.Automation.SessionRetryInterval,
		DispatchPerMinute:       cfgFile.Automation.DispatchPerMinute,
		CheckTimeoutStr:         cfgFile.Automation.Timeouts.Check,
		ShadowBanTimeoutStr:     cfgFile.Automation.Timeouts.ShadowBan,
		EngagementTimeoutStr:    cfgFile.Automation.Timeouts.Engagement,
		PostTimeoutStr:          cfgFile.Automation.Timeouts.Post,
		RetryInitialDelayStr:    cfgFile.Retry.InitialDelay,
		RetryMaxDelayStr:        cfgFile.Retry.MaxDelay,
		RetryMaxAttempts:        cfgFile.Retry.MaxAttempts,
		PollIntervalStr:         cfgFile.Scheduler.PollInterval,
		HealthCheckSchedule:     cfgFile.Scheduler.HealthCheckSchedule,
		HTTPClientTimeoutStr:    cfgFile.Performance.HTTPClientTimeout,
		MaxIdleConns:            cfgFile.Performance.MaxIdleConns,
		MaxConnsPerHost:         cfgFile.Performance.MaxConnsPerHost,
		LogDirectory:            cfgFile.Logging.Directory,
		LogOutputFile:           cfgFile.Logging.OutputFile,
		LogErrorFile:            cfgFile.Logging.ErrorFile,
		BootstrapAccounts:       cfgFile.Accounts,
	}

	applyDefaults(cfg)

	m.config = cfg
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "sqlite3:./data.db"
	}
	if cfg.BrowserCookiesDir == "" {
		cfg.BrowserCookiesDir = "./cookies"
	}
	if cfg.BrowserUserAgent == "" {
		cfg.BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if cfg.PlatformBaseURL == "" {
		cfg.PlatformBaseURL = "https://x.com"
	}
	if cfg.ShadowBanAPIURL == "" {
		cfg.ShadowBanAPIURL = "https://shadowban-api.yuzurisa.com:444"
	}
	// Three parallel browsers per host stays under the platform's soft limits
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if cfg.SessionRetryLimit <= 0 {
		cfg.SessionRetryLimit = 30
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = "./logs"
	}
	if cfg.LogOutputFile == "" {
		cfg.LogOutputFile = "app.log"
	}
	if cfg.LogErrorFile == "" {
		cfg.LogErrorFile = "app.error.log"
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 20
	}

	cfg.SessionRetryInterval = parseDuration(cfg.SessionRetryIntervalStr, 2*time.Second)
	cfg.CheckTimeout = parseDuration(cfg.CheckTimeoutStr, 90*time.Second)
	cfg.ShadowBanTimeout = parseDuration(cfg.ShadowBanTimeoutStr, 60*time.Second)
	cfg.EngagementTimeout = parseDuration(cfg.EngagementTimeoutStr, 2*time.Minute)
	cfg.PostTimeout = parseDuration(cfg.PostTimeoutStr, 5*time.Minute)
	cfg.RetryInitialDelay = parseDuration(cfg.RetryInitialDelayStr, 5*time.Second)
	cfg.RetryMaxDelay = parseDuration(cfg.RetryMaxDelayStr, 2*time.Minute)
	cfg.PollInterval = parseDuration(cfg.PollIntervalStr, 30*time.Second)
	cfg.HTTPClientTimeout = parseDuration(cfg.HTTPClientTimeoutStr, 30*time.Second)
}

// parseDuration falls back to def when s is empty, malformed or not positive
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Save writes configuration to YAML file
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saveUnlocked(cfg)
}

// saveUnlocked persists config assuming caller already holds the write lock.
func (m *Manager) saveUnlocked(cfg *Config) error {
	cfgFile := configFile{
		Server:   serverSection{Port: cfg.ServerPort},
		Database: databaseSection{URL: cfg.DatabaseURL},
		Browser: browserSection{
			Headless:   cfg.BrowserHeadless,
			CookiesDir: cfg.BrowserCookiesDir,
			UserAgent:  cfg.BrowserUserAgent,
			BaseURL:    cfg.PlatformBaseURL,
		},
		ShadowBan: shadowBanSection{APIBaseURL: cfg.ShadowBanAPIURL},
		Automation: automationSection{
			MaxConcurrency:       cfg.MaxConcurrency,
			SessionRetryLimit:    cfg.SessionRetryLimit,
			SessionRetryInterval: cfg.SessionRetryInterval.String(),
			DispatchPerMinute:    cfg.DispatchPerMinute,
			Timeouts: timeoutsSection{
				Check:      cfg.CheckTimeout.String(),
				ShadowBan:  cfg.ShadowBanTimeout.String(),
				Engagement: cfg.EngagementTimeout.String(),
				Post:       cfg.PostTimeout.String(),
			},
		},
		Retry: retrySection{
			InitialDelay: cfg.RetryInitialDelay.String(),
			MaxDelay:     cfg.RetryMaxDelay.String(),
			MaxAttempts:  cfg.RetryMaxAttempts,
		},
		Scheduler: schedulerSection{
			PollInterval:        cfg.PollInterval.String(),
			HealthCheckSchedule: cfg.HealthCheckSchedule,
		},
		Performance: performanceSection{
			HTTPClientTimeout: cfg.HTTPClientTimeout.String(),
			MaxIdleConns:      cfg.MaxIdleConns,
			MaxConnsPerHost:   cfg.MaxConnsPerHost,
		},
		Logging: loggingSection{
			Directory:  cfg.LogDirectory,
			OutputFile: cfg.LogOutputFile,
			ErrorFile:  cfg.LogErrorFile,
		},
		Accounts: cfg.BootstrapAccounts,
	}

	data, err := yaml.Marshal(&cfgFile)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.config = cfg
	return nil
}

// Get returns the current configuration (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Reload reloads configuration from file
func (m *Manager) Reload() (*Config, error) {
	return m.Load()
}

// createDefaultConfig writes a default configuration file
func (m *Manager) createDefaultConfig() (*Config, error) {
	cfg := &Config{
		BrowserHeadless:     true,
		HealthCheckSchedule: "0 0 */6 * * *",
	}
	applyDefaults(cfg)

	if err := m.saveUnlocked(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns an in-memory configuration with every default applied
func Default() *Config {
	cfg := &Config{BrowserHeadless: true}
	applyDefaults(cfg)
	return cfg
}

// Global config manager instance
var globalManager *Manager

// Load loads configuration from YAML file using the global manager
func Load(configPath string) (*Config, error) {
	return GetManager(configPath).Load()
}

// GetManager returns the global config manager
func GetManager(configPath string) *Manager {
	if globalManager == nil {
		if configPath == "" {
			configPath = "config.yaml"
			// Check if config/config.yaml exists, if so use it as default
			if _, err := os.Stat("config/config.yaml"); err == nil {
				configPath = "config/config.yaml"
			}
		}
		globalManager = NewManager(configPath)
	}
	return globalManager
}
