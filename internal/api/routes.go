package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/youruser/canvasapp/internal/batch"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Composer     Composer
	Archiver     Archiver
	Batches      batch.Store
	ImagesRoot   string
	ZipRoot      string
	PublicPrefix string
	MaxBodyBytes int64
}

// NewRouter returns a gin engine with middleware and all routes mounted.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(requestIDMiddleware(), requestLogger(), recovery())
	RegisterRoutes(r, d)

	// Ensure all responses, including 404s, return JSON
	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Not Found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := &Handler{
		composer:   d.Composer,
		archiver:   d.Archiver,
		batches:    d.Batches,
		imagesRoot: d.ImagesRoot,
		zipRoot:    d.ZipRoot,
		maxBody:    d.MaxBodyBytes,
	}

	r.POST("/canvas", h.canvasHandler)

	api := r.Group("/api")
	{
		api.GET("/health", health)
		api.POST("/canvas", h.canvasHandler)
		api.GET("/canvas/:folderId", h.batchHandler)
	}

	prefix := strings.TrimSuffix(d.PublicPrefix, "/")
	if prefix == "" {
		prefix = "/public"
	}
	r.GET(prefix+"/*filepath", h.fileHandler)
	r.HEAD(prefix+"/*filepath", h.fileHandler)
}
