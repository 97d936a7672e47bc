// Package templates renders html/template pages and views from an fs.FS
// and reloads them when the files change.
package templates

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultLayout wraps every page through its "body" block
const DefaultLayout = "_layout.html"

// EngineConfig configures an Engine
type EngineConfig struct {
	Name     string // used in logs
	FS       fs.FS
	Layout   string // empty = DefaultLayout
	Funcs    template.FuncMap
	Notifier *Notifier // shared between engines watched together
	Logger   *zap.Logger
}

type compiled struct {
	set   *template.Template
	entry string
}

// Engine holds the parsed template set of one root
type Engine struct {
	name     string
	fsys     fs.FS
	layout   string
	funcs    template.FuncMap
	notifier *Notifier
	logger   *zap.Logger

	mu    sync.RWMutex
	pages map[string]*compiled
	etag  string

	generation atomic.Uint64
}

// NewEngine creates an engine and performs the initial load
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.FS == nil {
		return nil, fmt.Errorf("templates %q: no filesystem", cfg.Name)
	}
	if cfg.Layout == "" {
		cfg.Layout = DefaultLayout
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewNotifier()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	funcs := template.FuncMap{
		"json": toJSON,
	}
	for k, v := range cfg.Funcs {
		funcs[k] = v
	}
	e := &Engine{
		name:     cfg.Name,
		fsys:     cfg.FS,
		layout:   cfg.Layout,
		funcs:    funcs,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

func toJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// isPartial reports whether a file is a layout or partial rather than a page
func isPartial(name string) bool {
	return strings.HasPrefix(path.Base(name), "_")
}

// Reload re-parses every *.html file and notifies waiters. On error the
// previous set stays active.
func (e *Engine) Reload() error {
	if err := e.load(); err != nil {
		return err
	}
	e.notifier.Notify()
	return nil
}

// load swaps in a freshly parsed set without notifying
func (e *Engine) load() error {
	sources := make(map[string]string)
	err := fs.WalkDir(e.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}
		b, err := fs.ReadFile(e.fsys, p)
		if err != nil {
			return err
		}
		sources[p] = string(b)
		return nil
	})
	if err != nil {
		return fmt.Errorf("templates %q: %w", e.name, err)
	}

	pages := make(map[string]*compiled)
	for name, src := range sources {
		if isPartial(name) {
			continue
		}
		c, err := e.compile(name, src, sources)
		if err != nil {
			return fmt.Errorf("templates %q: %w", e.name, err)
		}
		pages[name] = c
	}

	gen := e.generation.Add(1)
	etag := strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(gen, 10)

	e.mu.Lock()
	e.pages = pages
	e.etag = etag
	e.mu.Unlock()

	e.logger.Debug("templates loaded", zap.String("engine", e.name), zap.Int("pages", len(pages)), zap.String("etag", etag))
	return nil
}

// compile parses one page together with all partials and the layout
func (e *Engine) compile(name, src string, sources map[string]string) (*compiled, error) {
	set := template.New(name).Funcs(e.funcs)
	for pname, psrc := range sources {
		if !isPartial(pname) || pname == e.layout {
			continue
		}
		if _, err := set.New(pname).Parse(psrc); err != nil {
			return nil, err
		}
	}

	layout, ok := sources[e.layout]
	if !ok {
		if _, err := set.Parse(src); err != nil {
			return nil, err
		}
		return &compiled{set: set, entry: name}, nil
	}
	if _, err := set.New(e.layout).Parse(layout); err != nil {
		return nil, err
	}
	if _, err := set.New("body").Parse(src); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &compiled{set: set, entry: e.layout}, nil
}

// ETag changes on every successful reload
func (e *Engine) ETag() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.etag
}

// Has reports whether a page with this file name exists
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.pages[name]
	return ok
}

// Pages returns all page file names, sorted
func (e *Engine) Pages() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.pages))
	for name := range e.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a request path to a page file name:
// "/" -> index.html, "/login" -> login.html, "/a/" -> a/index.html.
func (e *Engine) Resolve(urlPath string) (string, bool) {
	clean := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	var candidates []string
	switch {
	case clean == "":
		candidates = []string{"index.html"}
	case strings.HasSuffix(urlPath, "/"):
		candidates = []string{clean + "/index.html"}
	case strings.HasSuffix(clean, ".html"):
		candidates = []string{clean}
	default:
		candidates = []string{clean + ".html", clean + "/index.html"}
	}
	for _, c := range candidates {
		if isPartial(c) {
			continue
		}
		if e.Has(c) {
			return c, true
		}
	}
	return "", false
}

// Render executes page name with data
func (e *Engine) Render(w io.Writer, name string, data any) error {
	e.mu.RLock()
	c, ok := e.pages[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("templates %q: page %q not found", e.name, name)
	}
	return c.set.ExecuteTemplate(w, c.entry, data)
}
