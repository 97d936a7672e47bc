package templates

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/url"

	"github.com/go-while/checkweb/internal/models"
)

//go:embed all:defaults
var defaultsFS embed.FS

// DefaultPages returns the embedded template pages
func DefaultPages() fs.FS {
	sub, err := fs.Sub(defaultsFS, "defaults/pages")
	if err != nil {
		panic("templates: embedded pages missing: " + err.Error())
	}
	return sub
}

// DefaultViews returns the embedded views
func DefaultViews() fs.FS {
	sub, err := fs.Sub(defaultsFS, "defaults/views")
	if err != nil {
		panic("templates: embedded views missing: " + err.Error())
	}
	return sub
}

// PageData is passed to every page, view and report
type PageData struct {
	Title      string
	Path       string
	Query      url.Values
	Model      any
	Session    *models.AuthUserSession
	HotReload  bool
	DebugMode  bool
	AppVersion string
}

var reportTemplate = template.Must(template.New("report.html").
	Funcs(template.FuncMap{"json": toJSON}).
	ParseFS(defaultsFS, "defaults/report.html", "defaults/pages/_hotreload.html"))

// RenderReport writes the built-in HTML view of a DTO without its own view
func RenderReport(w io.Writer, data PageData) error {
	return reportTemplate.ExecuteTemplate(w, "report.html", data)
}
