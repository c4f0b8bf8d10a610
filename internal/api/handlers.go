package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youruser/canvasapp/internal/archive"
	"github.com/youruser/canvasapp/internal/batch"
	"github.com/youruser/canvasapp/internal/canvas"
	"github.com/youruser/canvasapp/internal/logging"
)

type Composer interface {
	Compose(ctx context.Context, req canvas.CompositionRequest) (canvas.RenderedBatch, error)
}

type Archiver interface {
	Archive(ctx context.Context, name, folderID string, deleteSource bool) (archive.Result, error)
}

// Handler serves the canvas endpoints and the rendered files.
type Handler struct {
	composer   Composer
	archiver   Archiver
	batches    batch.Store
	imagesRoot string
	zipRoot    string
	maxBody    int64
}

// fail writes the error envelope used by every endpoint.
func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"code": -1, "data": "", "msg": msg})
}

// health
func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// canvasHandler renders every image of the request into one batch folder and
// zips it when asked to. Domain failures answer 200 with code -1.
func (h *Handler) canvasHandler(c *gin.Context) {
	if h.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}
	var req canvas.CompositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	result, err := h.composer.Compose(ctx, req)
	if err != nil {
		logging.Warn("composition failed", "request_id", requestID(c), "error", err)
		fail(c, http.StatusOK, err.Error())
		return
	}
	rec := batch.Record{RenderedBatch: result, CreatedAt: time.Now().UTC()}

	if req.Zip == nil {
		h.remember(ctx, rec)
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": result, "msg": "success"})
		return
	}

	archived, err := h.archiver.Archive(ctx, req.Zip.ArchiveName, result.FolderID, req.Zip.DeleteSourceFolder)
	if err != nil {
		fail(c, http.StatusOK, "archive failed")
		return
	}
	rec.Zip = archived.Path
	rec.SourceDeleted = archived.SourceDeleted
	h.remember(ctx, rec)

	c.JSON(http.StatusOK, gin.H{
		"code":        0,
		"msg":         "success",
		"zip":         archived.Path,
		"folderId":    result.FolderID,
		"outputPaths": result.OutputPaths,
	})
}

// remember is best effort: a registry outage must not fail a rendered batch.
func (h *Handler) remember(ctx context.Context, rec batch.Record) {
	if h.batches == nil {
		return
	}
	if err := h.batches.Save(ctx, rec); err != nil {
		logging.Warn("could not record batch", "folder", rec.FolderID, "error", err)
	}
}

func (h *Handler) batchHandler(c *gin.Context) {
	if h.batches == nil {
		fail(c, http.StatusNotFound, batch.ErrNotFound.Error())
		return
	}
	rec, err := h.batches.Get(c.Request.Context(), c.Param("folderId"))
	if errors.Is(err, batch.ErrNotFound) {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logging.Error("batch lookup failed", "folder", c.Param("folderId"), "error", err)
		fail(c, http.StatusInternalServerError, "batch lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": rec, "msg": "success"})
}

// fileHandler serves {prefix}/zip/... from the zip root and everything else
// from the images root.
func (h *Handler) fileHandler(c *gin.Context) {
	p := path.Clean("/" + c.Param("filepath"))
	root := h.imagesRoot
	if rest, ok := strings.CutPrefix(p, "/zip/"); ok {
		root, p = h.zipRoot, "/"+rest
	}
	file := filepath.Join(root, filepath.FromSlash(p))

	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		fail(c, http.StatusNotFound, "Not Found")
		return
	}
	c.File(file)
}
