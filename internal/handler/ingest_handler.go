package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/service"
	"github.com/tatankam/eventmap/pkg/response"
)

// EventIngester loads an events document
type EventIngester interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*service.IngestResult, error)
}

// IngestHandler handles event uploads
type IngestHandler struct {
	ingester EventIngester
	maxBytes int64
}

// NewIngestHandler creates a new ingest handler; maxBytes <= 0 disables the size check
func NewIngestHandler(ingester EventIngester, maxBytes int64) *IngestHandler {
	return &IngestHandler{ingester: ingester, maxBytes: maxBytes}
}

// IngestEvents handles POST /api/v1/ingestevents
func (h *IngestHandler) IngestEvents(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "Missing upload field \"file\"")
		return
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".json") {
		response.BadRequest(c, "Only .json files are accepted")
		return
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", h.maxBytes))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.InternalError(c, "Failed to read upload")
		return
	}
	defer f.Close()

	result, err := h.ingester.Ingest(c.Request.Context(), filepath.Base(fh.Filename), f)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, result)
}
