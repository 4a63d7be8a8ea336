package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koopa0/lore/internal/app"
	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/retrieval"
)

// maxContextBody caps POST /api/v1/context payloads. Base64 image
// queries are the large case; 8 MiB of JSON covers a ~6 MB image.
const maxContextBody = 8 << 20

// queryHandler serves the retrieval endpoint.
type queryHandler struct {
	service *app.Service
	logger  log.Logger
}

// contextRequest is the POST /api/v1/context payload.
type contextRequest struct {
	Base     string `json:"base"`
	Text     string `json:"text"`
	ImageB64 string `json:"image_b64,omitempty"`
}

// answer handles POST /api/v1/context — answers a query against one base
// and returns the retrieval outcome. Provider failures never surface
// here; they degrade to the base's fallback inside a 200 outcome.
func (h *queryHandler) answer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxContextBody)

	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	var image []byte
	if req.ImageB64 != "" {
		var err error
		image, err = base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_image", "image_b64 is not valid base64")
			return
		}
	}

	outcome, err := h.service.AnswerContext(r.Context(), req.Base, retrieval.Query{Text: req.Text, Image: image})
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrUnknownBase):
			writeError(w, http.StatusNotFound, "unknown_base", err.Error())
		case errors.Is(err, retrieval.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "empty_query", "text must not be empty")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// The client is usually gone by now; the write is best effort.
			h.logger.Debug("context query canceled", "base", req.Base)
			writeError(w, http.StatusGatewayTimeout, "timeout", "query timed out")
		default:
			h.logger.Error("answering context query", "error", err, "base", req.Base)
			writeError(w, http.StatusInternalServerError, "query_failed", "failed to answer query")
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}
