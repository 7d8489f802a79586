package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"Go2NetSketch/internal/metrics"
	"Go2NetSketch/internal/query"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Historian reads persisted heavy hitters.
type Historian interface {
	History(ctx context.Context, req query.HistoryRequest) ([]query.HistoryPoint, error)
}

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	querier query.Querier
	history Historian
}

// NewRouter builds the HTTP routes. history may be nil, in which case the
// history route is not registered.
func NewRouter(q query.Querier, history Historian) *mux.Router {
	h := &Handler{querier: q, history: history}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/tasks", h.tasksHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/estimate", h.estimateHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/tasks/{task}/heavy-hitters", h.heavyHittersHandler).Methods(http.MethodGet)
	if history != nil {
		r.HandleFunc("/api/v1/tasks/{task}/history", h.historyHandler).Methods(http.MethodGet)
	}
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *Handler) tasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.querier.Tasks(r.Context())
	metrics.IncAPIQuery("http", "tasks", err)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := tasksStruct(tasks)
	writeStruct(w, st, err)
}

// estimateHandler answers a single flow lookup. The body is a JSON object
// with task, flow and an optional strategy.
func (h *Handler) estimateHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	var req structpb.Struct
	if err := protojson.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	f := req.GetFields()
	task, flow := f["task"].GetStringValue(), f["flow"].GetStringValue()
	if task == "" || flow == "" {
		http.Error(w, "task and flow are required", http.StatusBadRequest)
		return
	}

	est, err := h.querier.Estimate(r.Context(), task, flow, f["strategy"].GetStringValue())
	metrics.IncAPIQuery("http", "estimate", err)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := estimateStruct(est)
	writeStruct(w, st, err)
}

func (h *Handler) heavyHittersHandler(w http.ResponseWriter, r *http.Request) {
	task := mux.Vars(r)["task"]
	limit, err := intParam(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hs, err := h.querier.HeavyHitters(r.Context(), task, limit)
	metrics.IncAPIQuery("http", "heavy_hitters", err)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := hittersStruct(task, hs)
	writeStruct(w, st, err)
}

func (h *Handler) historyHandler(w http.ResponseWriter, r *http.Request) {
	req := query.HistoryRequest{
		Task: mux.Vars(r)["task"],
		Flow: r.URL.Query().Get("flow"),
	}
	var err error
	if req.Limit, err = intParam(r, "limit"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if req.Since, err = time.Parse(time.RFC3339, since); err != nil {
			http.Error(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
			return
		}
	}

	points, err := h.history.History(r.Context(), req)
	metrics.IncAPIQuery("http", "history", err)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := historyStruct(req.Task, points)
	writeStruct(w, st, err)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, query.ErrUnknownTask):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeStruct(w http.ResponseWriter, st *structpb.Struct, err error) {
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build response: %v", err), http.StatusInternalServerError)
		return
	}
	jsonBytes, err := protojson.Marshal(st)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Debug().Err(err).Msg("[api] failed to write response")
	}
}
