package http

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/text/message"

	"github.com/roisanwr/Water-Potability-Clasification/db"
	"github.com/roisanwr/Water-Potability-Clasification/ml"
	"github.com/roisanwr/Water-Potability-Clasification/monitoring"
)

// Predictor runs the parse, scale and classify steps for one submission.
type Predictor interface {
	Predict(values url.Values) (ml.Prediction, error)
}

// HistoryStore keeps successful predictions.
type HistoryStore interface {
	Save(ctx context.Context, record db.Record) error
	Recent(ctx context.Context, limit int) ([]db.Record, error)
}

// VerdictFeed pushes verdicts to websocket subscribers.
type VerdictFeed interface {
	http.Handler
	Publish(event monitoring.VerdictEvent)
}

// Handler serves the form page and the predict endpoint.
type Handler struct {
	predictor Predictor
	pages     *renderer
	history   HistoryStore
	feed      VerdictFeed
	logger    *zap.Logger
}

type HandlerOption func(*Handler)

func WithHistory(history HistoryStore) HandlerOption {
	return func(h *Handler) { h.history = history }
}

func WithFeed(feed VerdictFeed) HandlerOption {
	return func(h *Handler) { h.feed = feed }
}

func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler fails only when language is not one the page is translated to.
func NewHandler(predictor Predictor, language string, opts ...HandlerOption) (*Handler, error) {
	pages, err := newRenderer(language)
	if err != nil {
		return nil, err
	}
	h := &Handler{
		predictor: predictor,
		pages:     pages,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /api/health", handleHealth)
	if h.history != nil {
		mux.HandleFunc("GET /api/history", h.handleHistory)
	}
	if h.feed != nil {
		mux.Handle("GET /ws/verdicts", h.feed)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.pages.render(w, r, nil); err != nil {
		h.renderFailed(w, err)
	}
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	prediction, err := h.predict(r)
	result := func(p *message.Printer) *PredictionResult {
		if err != nil {
			return h.pages.failure(p, err)
		}
		return h.pages.verdict(p, prediction)
	}
	if err := h.pages.render(w, r, result); err != nil {
		h.renderFailed(w, err)
	}
}

func (h *Handler) predict(r *http.Request) (ml.Prediction, error) {
	if err := parseForm(r); err != nil {
		h.logger.Debug("form parse failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		return ml.Prediction{}, &ml.StageError{Stage: ml.StageParse, Err: err}
	}

	prediction, err := h.predictor.Predict(r.PostForm)
	if err != nil {
		stage, _ := ml.FailedStage(err)
		h.logger.Debug("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("stage", string(stage)),
			zap.Error(err))
		return ml.Prediction{}, err
	}

	h.observe(r.Context(), prediction)
	return prediction, nil
}

// maxFormMemory bounds multipart values held in memory; the body itself is
// already capped by RequestSizeMiddleware.
const maxFormMemory = 32 << 10

// parseForm fills r.PostForm from urlencoded or multipart bodies.
func parseForm(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return r.ParseForm()
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return err
	}
	return r.MultipartForm.RemoveAll()
}

// observe hands a verdict to history and feed; neither affects the response.
func (h *Handler) observe(ctx context.Context, prediction ml.Prediction) {
	features := prediction.Features.Map()
	if h.history != nil {
		err := h.history.Save(ctx, db.Record{
			Features:   features,
			Label:      prediction.Label,
			Potable:    prediction.Potable,
			Confidence: prediction.Confidence,
		})
		if err != nil {
			h.logger.Warn("save prediction history failed", zap.Error(err))
		}
	}
	if h.feed != nil {
		h.feed.Publish(monitoring.VerdictEvent{
			Potable:    prediction.Potable,
			Label:      prediction.Label,
			Confidence: prediction.Confidence,
			Features:   features,
		})
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Warn("load prediction history failed", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]interface{}{
		"count": len(records),
		"data":  records,
	})
}

func (h *Handler) renderFailed(w http.ResponseWriter, err error) {
	h.logger.Error("render page failed", zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
