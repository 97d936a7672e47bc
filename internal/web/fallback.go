package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-while/checkweb/internal/models"
)

const indexPage = "index.html"

// fallbackHandler serves template pages by path, then the entry page for
// any HTML caller, and a 404 for everyone else
func (s *WebServer) fallbackHandler(c *gin.Context) {
	path := c.Request.URL.Path
	method := c.Request.Method

	if s.pages != nil && (method == http.MethodGet || method == http.MethodHead) {
		if page, ok := s.pages.Resolve(path); ok {
			s.renderPage(c, http.StatusOK, page, nil)
			return
		}
	}

	if s.WantsHTML(c) && s.pages != nil && s.pages.Has(indexPage) {
		s.renderPage(c, http.StatusOK, indexPage, models.FallbackForClientRoutes{PathInfo: path})
		return
	}

	s.writeError(c, http.StatusNotFound, "NotFound", "Handler for Request not found: "+method+" "+path, nil)
}

// hotReloadHandler long-polls until the templates change
func (s *WebServer) hotReloadHandler(c *gin.Context) {
	status := s.hotReload.Wait(c.Request.Context(), c.Query("eTag"), s.Config.Plugins.HotReloadTimeout)
	c.Header("Cache-Control", "no-cache")
	s.Respond(c, http.StatusOK, status)
}
