package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CHECKWEB_WEB_LISTEN_PORT
const EnvPrefix = "CHECKWEB"

// debugModeKey is the flat settings key the host reads its debug switch from
const debugModeKey = "debugmode"

// LoadDotEnv loads .env style files into the process environment.
// Missing files are ignored, malformed ones are not.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from the given file (or the default search
// paths when empty) and the environment, on top of NewDefaultConfig.
func Load(configFile string) (*MainConfig, error) {
	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("checkweb")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/checkweb")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, NewDefaultConfig())
	// flat key, not part of the defaults tree
	_ = v.BindEnv(debugModeKey)
	return v
}

func decode(v *viper.Viper) (*MainConfig, error) {
	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if v.IsSet(debugModeKey) {
		cfg.Host.DebugMode = v.GetBool(debugModeKey)
	}
	cfg.AppVersion = AppVersion
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the server fail later in less obvious ways
func (c *MainConfig) Validate() error {
	if c.Web.ListenPort < 1 || c.Web.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d (must be between 1 and 65535)", c.Web.ListenPort)
	}
	if c.Web.SSL && (c.Web.CertFile == "" || c.Web.KeyFile == "") {
		return errors.New("SSL enabled but cert_file or key_file not specified in config")
	}
	switch c.Cache.Provider {
	case "memory":
	case "redis":
		// FlushAll deletes everything matching the prefix
		if strings.TrimSpace(c.Cache.Redis.KeyPrefix) == "" {
			return errors.New("cache.redis.key_prefix must not be empty")
		}
	default:
		return fmt.Errorf("unknown cache provider %q (memory or redis)", c.Cache.Provider)
	}
	if c.Host.HtmlRedirect != "" && !strings.HasPrefix(c.Host.HtmlRedirect, "/") {
		return fmt.Errorf("html_redirect must be an absolute path: %q", c.Host.HtmlRedirect)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *MainConfig) {
	v.SetDefault("host.debug_mode", d.Host.DebugMode)
	v.SetDefault("host.add_redirect_params_to_query_string", d.Host.AddRedirectParamsToQueryString)
	v.SetDefault("host.use_same_site_cookies", d.Host.UseSameSiteCookies)
	v.SetDefault("host.html_redirect", d.Host.HtmlRedirect)
	v.SetDefault("host.default_redirect_path", d.Host.DefaultRedirectPath)

	v.SetDefault("web.listen_port", d.Web.ListenPort)
	v.SetDefault("web.ssl", d.Web.SSL)
	v.SetDefault("web.cert_file", d.Web.CertFile)
	v.SetDefault("web.key_file", d.Web.KeyFile)
	v.SetDefault("web.pages_dir", d.Web.PagesDir)
	v.SetDefault("web.views_dir", d.Web.ViewsDir)
	v.SetDefault("web.cors", d.Web.CORS)
	v.SetDefault("web.trusted_proxies", d.Web.TrustedProxies)
	v.SetDefault("web.shutdown_timeout", d.Web.ShutdownTimeout)

	v.SetDefault("plugins.template_pages", d.Plugins.TemplatePages)
	v.SetDefault("plugins.views", d.Plugins.Views)
	v.SetDefault("plugins.hot_reload", d.Plugins.HotReload)
	v.SetDefault("plugins.hot_reload_timeout", d.Plugins.HotReloadTimeout)
	v.SetDefault("plugins.validation", d.Plugins.Validation)
	v.SetDefault("plugins.metadata", d.Plugins.Metadata)
	v.SetDefault("plugins.metrics", d.Plugins.Metrics)

	v.SetDefault("auth.session_expiry", d.Auth.SessionExpiry)
	v.SetDefault("auth.perm_session_expiry", d.Auth.PermSessionExpiry)
	v.SetDefault("auth.max_login_attempts", d.Auth.MaxLoginAttempts)
	v.SetDefault("auth.lockout_time", d.Auth.LockoutTime)

	v.SetDefault("cache.provider", d.Cache.Provider)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.max_age", d.Cache.MaxAge)
	v.SetDefault("cache.cleanup", d.Cache.Cleanup)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.redis.key_prefix", d.Cache.Redis.KeyPrefix)

	v.SetDefault("database.main_db", d.Database.MainDB)

	v.SetDefault("log.level", d.Log.Level)
}
