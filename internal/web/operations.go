package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/go-while/checkweb/internal/auth"
	"github.com/go-while/checkweb/internal/models"
	"go.uber.org/zap"
)

// Operation describes one request DTO and the routes serving it
type Operation struct {
	Name                string
	Routes              []string
	RequestType         any
	ResponseType        any
	RequiresAuth        bool
	ExcludeFromMetadata bool
	Handler             gin.HandlerFunc
}

// OperationInfo is the metadata view of an Operation
type OperationInfo struct {
	Name         string   `json:"name" xml:"Name" yaml:"name"`
	Routes       []string `json:"routes" xml:"Routes>Route" yaml:"routes"`
	Request      string   `json:"request" xml:"Request" yaml:"request"`
	Response     string   `json:"response,omitempty" xml:"Response,omitempty" yaml:"response,omitempty"`
	RequiresAuth bool     `json:"requires_auth" xml:"RequiresAuth" yaml:"requires_auth"`
}

// MetadataResponse lists the public operations
type MetadataResponse struct {
	Operations []OperationInfo `json:"operations" xml:"Operations>Operation" yaml:"operations"`
}

func (s *WebServer) defaultOperations() []Operation {
	return []Operation{
		{
			Name:         "Hello",
			Routes:       []string{"/hello", "/hello/:name"},
			RequestType:  models.Hello{},
			ResponseType: models.HelloResponse{},
			Handler:      s.helloHandler,
		},
		{
			Name:         "TestAuth",
			Routes:       []string{"/testauth"},
			RequestType:  models.TestAuth{},
			ResponseType: models.TestAuth{},
			Handler:      s.testAuthHandler,
		},
		{
			Name:         "Session",
			Routes:       []string{"/session"},
			RequestType:  models.Session{},
			ResponseType: models.AuthUserSession{},
			RequiresAuth: true,
			Handler:      s.sessionHandler,
		},
		{
			Name:        "TransGif",
			Routes:      []string{"/gif"},
			RequestType: models.TransGif{},
			Handler:     s.gifHandler,
		},
		{
			Name:        "TransGif2",
			Routes:      []string{"/gif2"},
			RequestType: models.TransGif2{},
			Handler:     s.gif2Handler,
		},
		{
			Name:        "TransGif3",
			Routes:      []string{"/gif3"},
			RequestType: models.TransGif3{},
			Handler:     s.gif3Handler,
		},
		{
			// served from NoRoute
			Name:                "FallbackForClientRoutes",
			Routes:              []string{"/{PathInfo*}"},
			RequestType:         models.FallbackForClientRoutes{},
			ExcludeFromMetadata: true,
		},
	}
}

// Operations returns the registered operations
func (s *WebServer) Operations() []Operation {
	return s.operations
}

func (s *WebServer) registerOperation(op Operation) {
	if op.Handler == nil {
		return
	}
	handlers := make([]gin.HandlerFunc, 0, 2)
	if op.RequiresAuth {
		handlers = append(handlers, s.auth.Authenticate())
	}
	handlers = append(handlers, op.Handler)
	for _, route := range op.Routes {
		s.Router.Any(route, handlers...)
	}
}

func (s *WebServer) helloHandler(c *gin.Context) {
	var req models.Hello
	if !s.Bind(c, &req) {
		return
	}
	s.Respond(c, http.StatusOK, models.HelloResponse{Result: "Hello, " + req.Name + "!"})
}

// testAuthHandler echoes its request
func (s *WebServer) testAuthHandler(c *gin.Context) {
	var req models.TestAuth
	if !s.Bind(c, &req) {
		return
	}
	s.Respond(c, http.StatusOK, req)
}

func (s *WebServer) sessionHandler(c *gin.Context) {
	s.Respond(c, http.StatusOK, auth.CurrentSession(c))
}

// gifHandler writes the raw bytes
func (s *WebServer) gifHandler(c *gin.Context) {
	c.Data(http.StatusOK, "application/octet-stream", models.TransparentGif())
}

// gif2Handler writes the bytes after setting the content type itself
func (s *WebServer) gif2Handler(c *gin.Context) {
	c.Header("Content-Type", "image/gif")
	c.Status(http.StatusOK)
	if _, err := c.Writer.Write(models.TransparentGif()); err != nil {
		s.logger.Debug("gif2 write failed", zap.Error(err))
	}
}

// gif3Handler returns a result object carrying bytes and content type
func (s *WebServer) gif3Handler(c *gin.Context) {
	c.Render(http.StatusOK, render.Data{ContentType: "image/gif", Data: models.TransparentGif()})
}

func (s *WebServer) metadataHandler(c *gin.Context) {
	resp := MetadataResponse{Operations: make([]OperationInfo, 0, len(s.operations))}
	for _, op := range s.operations {
		if op.ExcludeFromMetadata {
			continue
		}
		info := OperationInfo{
			Name:         op.Name,
			Routes:       op.Routes,
			Request:      typeName(op.RequestType),
			RequiresAuth: op.RequiresAuth,
		}
		if op.ResponseType != nil {
			info.Response = typeName(op.ResponseType)
		}
		resp.Operations = append(resp.Operations, info)
	}
	s.Respond(c, http.StatusOK, resp)
}
