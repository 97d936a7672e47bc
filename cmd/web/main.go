// checkweb web host: demo operations, auth, template pages and hot reload
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	prof "github.com/go-while/go-cpu-mem-profiler"
	"go.uber.org/zap"

	"github.com/go-while/checkweb/internal/config"
	"github.com/go-while/checkweb/internal/database"
	"github.com/go-while/checkweb/internal/logging"
	"github.com/go-while/checkweb/internal/metrics"
	"github.com/go-while/checkweb/internal/web"
)

var (
	// command-line flags
	configFile string
	envFiles   string
	webport    int
	webssl     bool
	certFile   string
	keyFile    string
	debugMode  bool
	pagesDir   string
	viewsDir   string
	pprofAddr  string
	logLevel   string

	Prof *prof.Profiler
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion
	log.Printf("[WEB]: checkweb (version: %s)", config.AppVersion)

	flag.StringVar(&configFile, "config", "", "Path to config file (default: search ./checkweb.yaml, ./config, /etc/checkweb)")
	flag.StringVar(&envFiles, "env", ".env", "Comma separated .env files to load before reading config")
	flag.IntVar(&webport, "webport", 0, "Web server port (default: 5000 or config value)")
	flag.BoolVar(&webssl, "webssl", false, "Enable SSL")
	flag.StringVar(&certFile, "webcert", "", "SSL certificate file (/path/to/fullchain.pem)")
	flag.StringVar(&keyFile, "webkey", "", "SSL key file (/path/to/privkey.pem)")
	flag.BoolVar(&debugMode, "debug", false, "Enable debug mode (developer error pages, hot reload)")
	flag.StringVar(&pagesDir, "pages", "", "Serve template pages from this directory instead of the embedded ones")
	flag.StringVar(&viewsDir, "views", "", "Serve views from this directory instead of the embedded ones")
	flag.StringVar(&pprofAddr, "pprof", "", "Enable pprof HTTP server on specified address (e.g., ':6060')")
	flag.StringVar(&logLevel, "loglevel", "", "Log level: debug, info, warn, error")
	flag.Parse()

	if err := config.LoadDotEnv(splitList(envFiles)...); err != nil {
		log.Fatalf("[WEB]: %v", err)
	}

	mainConfig, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("[WEB]: Failed to load config: %v", err)
	}
	applyFlagOverrides(mainConfig)
	if err := mainConfig.Validate(); err != nil {
		log.Fatalf("[WEB]: Invalid configuration: %v", err)
	}

	logger := logging.NewLogger(mainConfig.Log.Level, mainConfig.Host.DebugMode)
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if pprofAddr != "" {
		Prof = prof.NewProf()
		go Prof.PprofWeb(pprofAddr)
		Prof.StartMemProfile(5*time.Minute, 30*time.Second)
		logger.Info("pprof enabled", zap.String("addr", pprofAddr))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.OpenDatabase(database.DefaultDBConfig(mainConfig.Database.MainDB), logging.Component(logger, "database"))
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply database migrations", zap.Error(err))
	}

	cacheClient, err := openCache(ctx, mainConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache client", zap.Error(err))
	}

	tmpl, err := openTemplates(mainConfig, logging.Component(logger, "templates"))
	if err != nil {
		logger.Fatal("Failed to load templates", zap.Error(err))
	}

	var m *metrics.Metrics
	if mainConfig.Plugins.Metrics {
		m = metrics.New(cacheClient)
	}

	watcher, err := startWatcher(ctx, mainConfig, tmpl, m, logging.Component(logger, "watcher"))
	if err != nil {
		logger.Warn("Template hot reload disabled", zap.Error(err))
	}

	server, err := web.NewServer(web.Deps{
		Config:    mainConfig,
		Logger:    logger,
		Cache:     cacheClient,
		Users:     db,
		Pages:     tmpl.pages,
		Views:     tmpl.views,
		HotReload: tmpl.hotReload,
		Metrics:   m,
	})
	if err != nil {
		logger.Fatal("Failed to create web server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	webServerErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			webServerErrChan <- err
		}
	}()

	logger.Info("Server started. Press Ctrl+C to gracefully shutdown...",
		zap.Int("port", mainConfig.Web.ListenPort),
		zap.Bool("ssl", mainConfig.Web.SSL),
		zap.Bool("debug", mainConfig.Host.DebugMode))

	updateFileChan := make(chan bool, 1)
	go monitorUpdateFile(ctx, updateFileChan, logger)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal, initiating graceful shutdown...", zap.String("signal", sig.String()))
	case err := <-webServerErrChan:
		logger.Error("Web server failed", zap.Error(err))
	case <-updateFileChan:
		logger.Info("Update file detected, initiating graceful shutdown for update...")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), mainConfig.Web.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping web server", zap.Error(err))
	}
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			logger.Warn("Error closing file watcher", zap.Error(err))
		}
	}
	if err := cacheClient.Close(); err != nil {
		logger.Warn("Error closing cache client", zap.Error(err))
	}
	if err := db.Shutdown(); err != nil {
		logger.Error("Failed to shutdown database", zap.Error(err))
	} else {
		logger.Info("Database shutdown successfully")
	}

	logger.Info("Graceful shutdown completed")
} // end main

// applyFlagOverrides lets command-line flags win over file and env values
func applyFlagOverrides(cfg *config.MainConfig) {
	if webport > 0 {
		log.Printf("[WEB]: Overriding listen port with command-line flag: %d", webport)
		cfg.Web.ListenPort = webport
	}
	if webssl {
		log.Printf("[WEB]: Overriding SSL with command-line flag")
		cfg.Web.SSL = true
	}
	if certFile != "" {
		cfg.Web.CertFile = certFile
	}
	if keyFile != "" {
		cfg.Web.KeyFile = keyFile
	}
	if debugMode {
		log.Printf("[WEB]: Debug mode enabled by command-line flag")
		cfg.Host.DebugMode = true
	}
	if pagesDir != "" {
		cfg.Web.PagesDir = pagesDir
	}
	if viewsDir != "" {
		cfg.Web.ViewsDir = viewsDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}
