package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tatankam/eventmap/internal/extraction"
	"github.com/tatankam/eventmap/pkg/response"
)

// SentenceInput is the body of POST /api/v1/sentencetopayload
type SentenceInput struct {
	Sentence string `json:"sentence" binding:"required"`
}

// ExtractionHandler turns sentences into route events payloads
type ExtractionHandler struct {
	extractor extraction.Extractor
}

// NewExtractionHandler creates a new extraction handler. A nil extractor
// makes the endpoint answer 503.
func NewExtractionHandler(extractor extraction.Extractor) *ExtractionHandler {
	return &ExtractionHandler{extractor: extractor}
}

// SentenceToPayload handles POST /api/v1/sentencetopayload
func (h *ExtractionHandler) SentenceToPayload(c *gin.Context) {
	if h.extractor == nil {
		response.Error(c, http.StatusServiceUnavailable, extraction.ErrNotConfigured.Error())
		return
	}

	var in SentenceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	payload, err := h.extractor.Extract(c.Request.Context(), in.Sentence)
	if err != nil {
		var verr *extraction.ValidationError
		switch {
		case errors.As(err, &verr):
			response.Unprocessable(c, verr.Error(), verr.Fields)
		case errors.Is(err, extraction.ErrNotConfigured):
			response.Error(c, http.StatusServiceUnavailable, err.Error())
		default:
			response.InternalError(c, "Unexpected error: "+err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, payload)
}
