package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"alertgateway/internal/config"
	"alertgateway/internal/domain"
	"alertgateway/internal/metrics"
)

const apiKeyHeader = "X-API-Key"

// Publisher enqueues alerts.
type Publisher interface {
	Publish(ctx context.Context, queue string, event domain.AlertEvent, serviceIDs []int) (string, error)
}

// Options wires API handler dependencies.
// Params: API config, static records, publisher, readiness probe, metrics, and logger.
// Returns: handler construction input.
type Options struct {
	Config    config.APIConfig
	Queues    []domain.QueueRecord
	Services  []domain.ServiceRecord
	Publisher Publisher
	Ready     func() bool
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Handler serves the publish endpoint, read-only catalog endpoints, and probes.
type Handler struct {
	opts      Options
	keys      [][]byte
	queueByID map[int]domain.QueueRecord
	services  []serviceView
	serviceBy map[int]serviceView
	logger    *slog.Logger
}

// serviceView is the public projection of a destination; credentials are never exposed.
type serviceView struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Recipient string `json:"recipient"`
}

type publishResponse struct {
	Message   string            `json:"message"`
	MessageID string            `json:"message_id"`
	Alert     domain.AlertEvent `json:"alert"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// New builds API handler with routes registered on a fresh mux.
// Params: options.
// Returns: http handler.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		opts:      opts,
		queueByID: make(map[int]domain.QueueRecord, len(opts.Queues)),
		serviceBy: make(map[int]serviceView, len(opts.Services)),
		logger:    logger,
	}
	for _, key := range opts.Config.APIKeys {
		h.keys = append(h.keys, []byte(key))
	}
	for _, queue := range opts.Queues {
		h.queueByID[queue.ID] = queue
	}
	for _, service := range opts.Services {
		view := serviceView{ID: service.ID, Name: service.Name, Type: service.Type(), Recipient: service.Recipient}
		h.services = append(h.services, view)
		h.serviceBy[service.ID] = view
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+opts.Config.HealthPath, h.health)
	mux.HandleFunc("GET "+opts.Config.ReadyPath, h.ready)
	mux.Handle("GET "+opts.Config.MetricsPath, opts.Metrics.Handler())
	mux.Handle("POST /alert", h.authorized(h.publish))
	mux.Handle("POST /alert/", h.authorized(h.publish))
	mux.Handle("GET /queues", h.authorized(h.listQueues))
	mux.Handle("GET /queues/{id}", h.authorized(h.getQueue))
	mux.Handle("GET /services", h.authorized(h.listServices))
	mux.Handle("GET /services/{id}", h.authorized(h.getService))
	return mux
}

// authorized rejects requests without a configured X-API-Key.
func (h *Handler) authorized(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !h.validKey(request.Header.Get(apiKeyHeader)) {
			h.logger.Warn("invalid api key", "path", request.URL.Path, "remote", request.RemoteAddr)
			writeJSON(writer, http.StatusUnauthorized, errorResponse{Detail: "Invalid API Key"})
			return
		}
		next(writer, request)
	})
}

func (h *Handler) validKey(candidate string) bool {
	if candidate == "" {
		return false
	}
	valid := false
	for _, key := range h.keys {
		if subtle.ConstantTimeCompare(key, []byte(candidate)) == 1 {
			valid = true
		}
	}
	return valid
}

func (h *Handler) health(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ok"))
}

func (h *Handler) ready(writer http.ResponseWriter, _ *http.Request) {
	if h.opts.Ready != nil && !h.opts.Ready() {
		writer.WriteHeader(http.StatusServiceUnavailable)
		_, _ = writer.Write([]byte("not-ready"))
		return
	}
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ready"))
}

// publish validates one alert and enqueues it on the queue selected by queue_id.
// Params: HTTP request with JSON alert body.
// Returns: 400 invalid body/queue, 500 publish failure, 200 with echoed alert.
func (h *Handler) publish(writer http.ResponseWriter, request *http.Request) {
	request.Body = http.MaxBytesReader(writer, request.Body, h.opts.Config.MaxBodyBytes)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(writer, http.StatusRequestEntityTooLarge, errorResponse{Detail: "Request body too large"})
			return
		}
		writeJSON(writer, http.StatusBadRequest, errorResponse{Detail: "Unreadable request body"})
		return
	}

	var event domain.AlertEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse{Detail: "Invalid alert: " + err.Error()})
		return
	}
	if err := event.Validate(); err != nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse{Detail: "Invalid alert: " + err.Error()})
		return
	}

	queue, ok := h.queueByID[event.QueueID]
	if !ok {
		h.logger.Warn("invalid queue id", "queue_id", event.QueueID)
		writeJSON(writer, http.StatusBadRequest, errorResponse{Detail: "Invalid queue id."})
		return
	}

	id, err := h.opts.Publisher.Publish(request.Context(), queue.Name, event, queue.ServiceIDs)
	if err != nil {
		h.logger.Error("publish alert failed", "queue", queue.Name, "error", err)
		writeJSON(writer, http.StatusInternalServerError, errorResponse{Detail: "Internal server error"})
		return
	}
	h.logger.Info("alert published", "queue", queue.Name, "message_id", id, "services", len(queue.ServiceIDs))
	writeJSON(writer, http.StatusOK, publishResponse{
		Message:   "Alert published successfully",
		MessageID: id,
		Alert:     event,
	})
}

func (h *Handler) listQueues(writer http.ResponseWriter, _ *http.Request) {
	queues := h.opts.Queues
	if queues == nil {
		queues = []domain.QueueRecord{}
	}
	writeJSON(writer, http.StatusOK, queues)
}

func (h *Handler) getQueue(writer http.ResponseWriter, request *http.Request) {
	id, err := strconv.Atoi(request.PathValue("id"))
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse{Detail: "Queue id must be an integer"})
		return
	}
	queue, ok := h.queueByID[id]
	if !ok {
		writeJSON(writer, http.StatusNotFound, errorResponse{Detail: "Queue Not Found"})
		return
	}
	writeJSON(writer, http.StatusOK, queue)
}

func (h *Handler) listServices(writer http.ResponseWriter, _ *http.Request) {
	services := h.services
	if services == nil {
		services = []serviceView{}
	}
	writeJSON(writer, http.StatusOK, services)
}

func (h *Handler) getService(writer http.ResponseWriter, request *http.Request) {
	id, err := strconv.Atoi(request.PathValue("id"))
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse{Detail: "Service id must be an integer"})
		return
	}
	service, ok := h.serviceBy[id]
	if !ok {
		writeJSON(writer, http.StatusNotFound, errorResponse{Detail: "Service Not Found"})
		return
	}
	writeJSON(writer, http.StatusOK, service)
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}
