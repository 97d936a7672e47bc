package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/go-while/checkweb/internal/cache"
	"github.com/go-while/checkweb/internal/config"
	"github.com/go-while/checkweb/internal/metrics"
	"github.com/go-while/checkweb/internal/templates"
)

// updateFilePath triggers a graceful shutdown when it appears in the working directory
const updateFilePath = ".update"

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// openCache creates the cache client selected by cache.provider
func openCache(ctx context.Context, cfg *config.MainConfig, logger *zap.Logger) (cache.Client, error) {
	cc := cfg.Cache
	switch cc.Provider {
	case "redis":
		rc := cache.NewRedisClient(&redis.Options{
			Addr:     cc.Redis.Addr,
			Password: cc.Redis.Password,
			DB:       cc.Redis.DB,
		}, cc.Redis.KeyPrefix, cc.MaxAge)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			rc.Close()
			return nil, fmt.Errorf("redis %s: %w", cc.Redis.Addr, err)
		}
		logger.Info("Using redis cache client", zap.String("addr", cc.Redis.Addr), zap.String("prefix", cc.Redis.KeyPrefix))
		return rc, nil
	default:
		logger.Info("Using memory cache client",
			zap.Int("max_entries", cc.MaxEntries),
			zap.Duration("max_age", cc.MaxAge))
		return cache.NewMemoryClient(cc.MaxEntries, cc.MaxAge, cc.Cleanup), nil
	}
}

// templateSet groups the engines that share one hot reload notifier
type templateSet struct {
	pages     *templates.Engine
	views     *templates.Engine
	hotReload *templates.HotReload
	dirs      []string // on-disk roots, empty when embedded
}

func (ts *templateSet) engines() []*templates.Engine {
	var out []*templates.Engine
	for _, e := range []*templates.Engine{ts.pages, ts.views} {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// openTemplates loads pages and views from their configured directories,
// falling back to the embedded defaults
func openTemplates(cfg *config.MainConfig, logger *zap.Logger) (*templateSet, error) {
	ts := &templateSet{}
	notifier := templates.NewNotifier()

	load := func(name, dir string, embedded fs.FS) (*templates.Engine, error) {
		fsys := embedded
		if dir != "" {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("%s dir: %w", name, err)
			}
			fsys = os.DirFS(dir)
			ts.dirs = append(ts.dirs, dir)
		}
		e, err := templates.NewEngine(templates.EngineConfig{
			Name:     name,
			FS:       fsys,
			Notifier: notifier,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Templates loaded",
			zap.String("engine", name),
			zap.String("dir", dir),
			zap.Int("pages", len(e.Pages())))
		return e, nil
	}

	var err error
	if cfg.Plugins.TemplatePages {
		if ts.pages, err = load("pages", cfg.Web.PagesDir, templates.DefaultPages()); err != nil {
			return nil, err
		}
	}
	if cfg.Plugins.Views {
		if ts.views, err = load("views", cfg.Web.ViewsDir, templates.DefaultViews()); err != nil {
			return nil, err
		}
	}
	if cfg.HotReloadEnabled() {
		ts.hotReload = templates.NewHotReload(notifier, ts.engines()...)
	}
	return ts, nil
}

// startWatcher watches on-disk template roots in debug mode. It returns a nil
// watcher when there is nothing to watch.
func startWatcher(ctx context.Context, cfg *config.MainConfig, ts *templateSet, m *metrics.Metrics, logger *zap.Logger) (*templates.Watcher, error) {
	if !cfg.HotReloadEnabled() || len(ts.dirs) == 0 {
		return nil, nil
	}
	w, err := templates.NewWatcher(ts.dirs, ts.engines(), templates.DefaultDebounce, logger)
	if err != nil {
		return nil, err
	}
	if m != nil {
		w.OnReload = m.TemplatesReloaded
	}
	w.Start(ctx)
	return w, nil
}

// monitorUpdateFile checks for the update file once a minute and signals
// shutdown when it shows up
func monitorUpdateFile(ctx context.Context, shutdownChan chan<- bool, logger *zap.Logger) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	logger.Debug("Update file monitor started", zap.String("file", updateFilePath))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := os.Stat(updateFilePath); err != nil {
			continue
		}
		logger.Info("Update file detected, triggering graceful shutdown", zap.String("file", updateFilePath))
		if err := os.Rename(updateFilePath, updateFilePath+".todo"); err != nil {
			logger.Warn("Failed to rename update file", zap.String("file", updateFilePath), zap.Error(err))
			continue
		}
		select {
		case shutdownChan <- true:
		default:
		}
		return
	}
}
