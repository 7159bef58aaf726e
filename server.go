package lab

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jinseisieko/se-toolkit-lab-4/interactions"
	"github.com/jinseisieko/se-toolkit-lab-4/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

func (l *Lab) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /interactions", l.instrument("list_interactions", l.handleListInteractions))
	mux.Handle("POST /interactions", l.instrument("create_interaction", l.handleCreateInteraction))
	mux.Handle("GET /healthz", l.instrument("healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	mux.Handle("GET /metrics", promhttp.HandlerFor(l.gatherer, promhttp.HandlerOpts{}))

	return mux
}

func (l *Lab) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseItemID(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}

	logs, err := l.reader.ListInteractions(r.Context())
	if err != nil {
		l.logger.Error("failed to list interactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "failed to list interactions"})
		return
	}

	if logs == nil {
		logs = []models.InteractionLog{}
	}

	writeJSON(w, http.StatusOK, interactions.FilterByItemID(logs, itemID))
}

func (l *Lab) handleCreateInteraction(w http.ResponseWriter, r *http.Request) {
	var in CreateInteraction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "malformed request body"})
		return
	}

	rec, err := l.handleCreate(r.Context(), &in)
	if err != nil {
		if errors.Is(err, ErrInvalidInteraction) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
			return
		}

		l.logger.Error("failed to create interaction", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "failed to create interaction"})
		return
	}

	writeJSON(w, http.StatusAccepted, rec)
}

// parseItemID returns nil when item_id is absent from the query.
func parseItemID(r *http.Request) (*int64, error) {
	q := r.URL.Query()
	if !q.Has("item_id") {
		return nil, nil
	}

	raw := q.Get("item_id")
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("item_id must be an integer")
	}

	return &v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (l *Lab) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		h(rec, r)

		elapsed := time.Since(start)
		l.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		l.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		l.logger.Debug("handled request", "route", route, "status", rec.status, "duration", elapsed)
	})
}
