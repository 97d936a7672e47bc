package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-while/checkweb/internal/models"
	"github.com/go-while/checkweb/internal/templates"
	"github.com/go-while/checkweb/internal/validation"
	"go.uber.org/zap"
)

// Response formats
const (
	FormatJSON = "json"
	FormatXML  = "xml"
	FormatYAML = "yaml"
	FormatHTML = "html"
)

const (
	formatContextKey = "response_format"
	mimeYAML2        = "application/yaml"
)

// ResponseFormat resolves the format from ?format=, then the Accept header.
// JSON is the default.
func ResponseFormat(c *gin.Context) string {
	if v, ok := c.Get(formatContextKey); ok {
		return v.(string)
	}
	format := FormatJSON
	switch q := strings.ToLower(c.Query("format")); q {
	case FormatJSON, FormatXML, FormatYAML, FormatHTML:
		format = q
	default:
		switch c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML, gin.MIMEXML, gin.MIMEXML2, gin.MIMEYAML, mimeYAML2) {
		case gin.MIMEHTML:
			format = FormatHTML
		case gin.MIMEXML, gin.MIMEXML2:
			format = FormatXML
		case gin.MIMEYAML, mimeYAML2:
			format = FormatYAML
		}
	}
	c.Set(formatContextKey, format)
	return format
}

// WantsHTML reports whether the caller accepts HTML
func (s *WebServer) WantsHTML(c *gin.Context) bool {
	return ResponseFormat(c) == FormatHTML
}

// typeName returns the name of the dto type without package or pointers
func typeName(dto any) string {
	t := reflect.TypeOf(dto)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// Respond writes dto in the negotiated format
func (s *WebServer) Respond(c *gin.Context, status int, dto any) {
	switch ResponseFormat(c) {
	case FormatXML:
		c.XML(status, dto)
	case FormatYAML:
		c.YAML(status, dto)
	case FormatHTML:
		s.renderHTML(c, status, dto)
	default:
		c.JSON(status, dto)
	}
}

// renderHTML uses the view named after the dto type, else the built-in report
func (s *WebServer) renderHTML(c *gin.Context, status int, dto any) {
	name := typeName(dto)
	data := s.pageData(c, name, dto)

	var buf bytes.Buffer
	var err error
	if view := name + ".html"; s.views != nil && name != "" && s.views.Has(view) {
		err = s.views.Render(&buf, view, data)
	} else {
		err = templates.RenderReport(&buf, data)
	}
	if err != nil {
		s.logger.Error("failed to render html", zap.String("type", name), zap.Error(err))
		c.String(http.StatusInternalServerError, "Template Error: %v", err)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// renderPage renders a template page by file name
func (s *WebServer) renderPage(c *gin.Context, status int, page string, model any) {
	var buf bytes.Buffer
	if err := s.pages.Render(&buf, page, s.pageData(c, "", model)); err != nil {
		s.logger.Error("failed to render page", zap.String("page", page), zap.Error(err))
		s.writeError(c, http.StatusInternalServerError, "TemplateError", "failed to render page", err)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (s *WebServer) pageData(c *gin.Context, title string, model any) templates.PageData {
	data := templates.PageData{
		Title:      title,
		Path:       c.Request.URL.Path,
		Query:      c.Request.URL.Query(),
		Model:      model,
		HotReload:  s.Config.HotReloadEnabled() && s.hotReload != nil,
		DebugMode:  s.Config.Host.DebugMode,
		AppVersion: s.Config.AppVersion,
	}
	if session, err := s.auth.LoadSession(c); err == nil {
		data.Session = session
	}
	return data
}

// Bind fills dto from the path, query, form or body and validates it.
// On failure the error response is written and false returned.
func (s *WebServer) Bind(c *gin.Context, dto any) bool {
	var err error
	if c.Request.ContentLength == 0 {
		err = c.ShouldBindQuery(dto)
	} else {
		err = c.ShouldBind(dto)
	}
	if err == nil && len(c.Params) > 0 {
		err = c.ShouldBindUri(dto)
	}
	if err != nil {
		s.writeError(c, http.StatusBadRequest, "SerializationException", err.Error(), nil)
		return false
	}

	if s.validator == nil {
		return true
	}
	if err := s.validator.Struct(dto); err != nil {
		var ve validation.Errors
		if errors.As(err, &ve) {
			if s.metrics != nil {
				s.metrics.ValidationError(typeName(dto))
			}
			s.Respond(c, http.StatusBadRequest, models.ErrorResponse{ResponseStatus: ve.ResponseStatus()})
			return false
		}
		s.writeError(c, http.StatusInternalServerError, "Exception", "validation failed", err)
		return false
	}
	return true
}

// writeError responds with an ErrorResponse; server errors are logged
func (s *WebServer) writeError(c *gin.Context, status int, code, msg string, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	if err != nil && msg == "" {
		msg = err.Error()
	}
	resp := models.ErrorResponse{ResponseStatus: models.ResponseStatus{ErrorCode: code, Message: msg}}
	s.Respond(c, status, resp)
}

// recoverWithResponse runs after ginzap logged the panic
func (s *WebServer) recoverWithResponse(c *gin.Context, recovered any) {
	if s.metrics != nil {
		s.metrics.PanicRecovered(c)
	}
	status := models.ResponseStatus{
		ErrorCode: "Exception",
		Message:   fmt.Sprint(recovered),
	}
	if s.Config.Host.DebugMode {
		status.StackTrace = string(debug.Stack())
	} else {
		status.Message = "Internal Server Error"
	}
	s.Respond(c, http.StatusInternalServerError, models.ErrorResponse{ResponseStatus: status})
	c.Abort()
}
