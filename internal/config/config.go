// Package config provides configuration management for checkweb.
package config

import (
	"time"
)

var AppVersion = "-unset-" // will be set at build time

const (
	// Default web settings
	DefaultListenPort       = 5000
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultHotReloadTimeout = 30 * time.Second

	// Session defaults
	DefaultSessionExpiry     = 3 * time.Hour
	DefaultPermSessionExpiry = 14 * 24 * time.Hour

	// Memory cache defaults
	DefaultCacheMaxEntries = 10000
	DefaultCacheMaxAge     = 24 * time.Hour
	DefaultCacheCleanup    = 1 * time.Minute
)

// MainConfig holds the main configuration for checkweb
type MainConfig struct {
	// Host behaviour, mirrors the settings the app host reads at startup
	Host HostConfig `mapstructure:"host" json:"host"`

	// Web interface settings
	Web WebConfig `mapstructure:"web" json:"web"`

	// Plugins toggles the optional features registered into the host
	Plugins PluginsConfig `mapstructure:"plugins" json:"plugins"`

	// Auth settings
	Auth AuthConfig `mapstructure:"auth" json:"auth"`

	// Cache client settings
	Cache CacheConfig `mapstructure:"cache" json:"cache"`

	// Database settings
	Database DatabaseConfig `mapstructure:"database" json:"database"`

	// Log settings
	Log LogConfig `mapstructure:"log" json:"log"`

	AppVersion string `mapstructure:"-" json:"app_version"` // Application version, set at build time
}

// HostConfig holds the app host switches
type HostConfig struct {
	DebugMode                      bool   `mapstructure:"debug_mode" json:"debug_mode"`
	AddRedirectParamsToQueryString bool   `mapstructure:"add_redirect_params_to_query_string" json:"add_redirect_params_to_query_string"`
	UseSameSiteCookies             bool   `mapstructure:"use_same_site_cookies" json:"use_same_site_cookies"`
	HtmlRedirect                   string `mapstructure:"html_redirect" json:"html_redirect"`                 // where anonymous HTML callers are sent
	DefaultRedirectPath            string `mapstructure:"default_redirect_path" json:"default_redirect_path"` // after login without a continue param
}

// WebConfig holds web interface configuration
type WebConfig struct {
	ListenPort      int           `mapstructure:"listen_port" json:"listen_port"`
	SSL             bool          `mapstructure:"ssl" json:"ssl"`
	CertFile        string        `mapstructure:"cert_file" json:"cert_file,omitempty"`
	KeyFile         string        `mapstructure:"key_file" json:"key_file,omitempty"`
	PagesDir        string        `mapstructure:"pages_dir" json:"pages_dir"` // empty = embedded pages
	ViewsDir        string        `mapstructure:"views_dir" json:"views_dir"` // empty = embedded views
	CORS            bool          `mapstructure:"cors" json:"cors"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies" json:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// PluginsConfig enables or disables host features
type PluginsConfig struct {
	TemplatePages    bool          `mapstructure:"template_pages" json:"template_pages"`
	Views            bool          `mapstructure:"views" json:"views"`
	HotReload        bool          `mapstructure:"hot_reload" json:"hot_reload"` // only honoured in debug mode
	HotReloadTimeout time.Duration `mapstructure:"hot_reload_timeout" json:"hot_reload_timeout"`
	Validation       bool          `mapstructure:"validation" json:"validation"`
	Metadata         bool          `mapstructure:"metadata" json:"metadata"`
	Metrics          bool          `mapstructure:"metrics" json:"metrics"`
}

// AuthConfig holds session and login settings
type AuthConfig struct {
	SessionExpiry     time.Duration `mapstructure:"session_expiry" json:"session_expiry"`
	PermSessionExpiry time.Duration `mapstructure:"perm_session_expiry" json:"perm_session_expiry"`
	MaxLoginAttempts  int           `mapstructure:"max_login_attempts" json:"max_login_attempts"`
	LockoutTime       time.Duration `mapstructure:"lockout_time" json:"lockout_time"`
}

// CacheConfig selects and configures the registered cache client
type CacheConfig struct {
	Provider   string        `mapstructure:"provider" json:"provider"` // memory | redis
	MaxEntries int           `mapstructure:"max_entries" json:"max_entries"`
	MaxAge     time.Duration `mapstructure:"max_age" json:"max_age"`
	Cleanup    time.Duration `mapstructure:"cleanup" json:"cleanup"`
	Redis      RedisConfig   `mapstructure:"redis" json:"redis"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr      string `mapstructure:"addr" json:"addr"`
	Password  string `mapstructure:"password" json:"-"`
	DB        int    `mapstructure:"db" json:"db"`
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	MainDB string `mapstructure:"main_db" json:"main_db"` // Path to the user database
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *MainConfig {
	return &MainConfig{
		AppVersion: AppVersion,
		Host: HostConfig{
			DebugMode:                      false,
			AddRedirectParamsToQueryString: true,
			UseSameSiteCookies:             true,
			HtmlRedirect:                   "/login",
			DefaultRedirectPath:            "/",
		},
		Web: WebConfig{
			ListenPort:      DefaultListenPort,
			TrustedProxies:  []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Plugins: PluginsConfig{
			TemplatePages:    true,
			Views:            true,
			HotReload:        true,
			HotReloadTimeout: DefaultHotReloadTimeout,
			Validation:       true,
			Metadata:         true,
			Metrics:          true,
		},
		Auth: AuthConfig{
			SessionExpiry:     DefaultSessionExpiry,
			PermSessionExpiry: DefaultPermSessionExpiry,
			MaxLoginAttempts:  5,
			LockoutTime:       15 * time.Minute,
		},
		Cache: CacheConfig{
			Provider:   "memory",
			MaxEntries: DefaultCacheMaxEntries,
			MaxAge:     DefaultCacheMaxAge,
			Cleanup:    DefaultCacheCleanup,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "checkweb:",
			},
		},
		Database: DatabaseConfig{
			MainDB: "data/checkweb.sq3",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// HotReloadEnabled reports whether the hot reload feature should be registered
func (c *MainConfig) HotReloadEnabled() bool {
	return c.Host.DebugMode && c.Plugins.HotReload
}
