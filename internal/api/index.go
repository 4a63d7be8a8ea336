package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koopa0/lore/internal/app"
	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/rag"
)

// maxIndexBody caps POST /api/v1/index payloads — the only valid
// payload names a base.
const maxIndexBody = 4 << 10

// indexHandler serves base listing and re-indexing.
type indexHandler struct {
	service *app.Service
	logger  log.Logger
}

// listBases handles GET /api/v1/bases.
func (h *indexHandler) listBases(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bases": h.service.Bases()})
}

// indexRequest is the POST /api/v1/index payload.
type indexRequest struct {
	Base string `json:"base"`
}

// indexResponse is the JSON shape of one finished index run. Failed
// documents flatten to message strings so the envelope stays plain
// JSON.
type indexResponse struct {
	Base        string   `json:"base"`
	RunID       string   `json:"run_id"`
	Documents   int      `json:"documents"`
	ChunksTotal int      `json:"chunks_total"`
	ChunksNew   int      `json:"chunks_new"`
	ChunksKept  int      `json:"chunks_kept"`
	ChunksStale int      `json:"chunks_stale"`
	Failed      []string `json:"failed,omitempty"`
	Duration    string   `json:"duration"`
}

func toIndexResponse(res *rag.IndexResult) indexResponse {
	out := indexResponse{
		Base:        res.Base,
		RunID:       res.RunID,
		Documents:   res.Documents,
		ChunksTotal: res.ChunksTotal,
		ChunksNew:   res.ChunksNew,
		ChunksKept:  res.ChunksKept,
		ChunksStale: res.ChunksStale,
		Duration:    res.Duration.String(),
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, f.Error())
	}
	return out
}

// reindex handles POST /api/v1/index — synchronously re-indexes one
// base and returns the run summary. A run already in flight for the
// same base answers 409 so the caller can retry later.
func (h *indexHandler) reindex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIndexBody)

	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	result, err := h.service.ReindexBase(r.Context(), req.Base)
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrUnknownBase):
			writeError(w, http.StatusNotFound, "unknown_base", err.Error())
		case errors.Is(err, rag.ErrIndexInProgress):
			writeError(w, http.StatusConflict, "index_in_progress", "a re-index for this base is already running")
		default:
			h.logger.Error("re-indexing base", "error", err, "base", req.Base)
			writeError(w, http.StatusInternalServerError, "index_failed", "failed to re-index base")
		}
		return
	}

	writeJSON(w, http.StatusOK, toIndexResponse(result))
}
