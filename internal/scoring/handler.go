// Package scoring implements the contract a classification endpoint must
// honour: {"data": [[...]]} in, {"predictions": [...]} or {"error": "..."} out.
package scoring

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/mushroom/internal/domain"
)

// Predictor labels rows of feature codes
type Predictor interface {
	Predict(rows [][]float64) ([]string, error)
}

// Handler serves a Predictor over HTTP
type Handler struct {
	predictor Predictor
	apiKey    string
	logger    *zap.Logger
}

// NewHandler wraps p. An empty apiKey disables the bearer check.
func NewHandler(p Predictor, apiKey string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{predictor: p, apiKey: strings.TrimSpace(apiKey), logger: logger}
}

type scoreRequest struct {
	Data [][]float64 `json:"data"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+h.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.fail(w, fmt.Errorf("read body: %w", err))
		return
	}
	var req scoreRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.fail(w, fmt.Errorf("decode body: %w", err))
		return
	}
	if len(req.Data) == 0 {
		h.fail(w, fmt.Errorf("no rows in data"))
		return
	}
	for _, row := range req.Data {
		if len(row) != domain.NumFeatures {
			h.fail(w, fmt.Errorf("Expected %d features, got %d", domain.NumFeatures, len(row)))
			return
		}
	}

	preds, err := h.predictor.Predict(req.Data)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Debug("scored rows", zap.Int("rows", len(req.Data)))
	writeJSON(w, http.StatusOK, map[string][]string{"predictions": preds})
}

// fail reports a model-side error in the body, as scoring scripts do
func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Info("scoring failed", zap.Error(err))
	writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
