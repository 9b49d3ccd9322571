package api

import (
	"context"
	"errors"
	"io"
	"lunchbell/internal/types"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

// Inbound is the set of operations exposed over HTTP.
type Inbound interface {
	HandleText(ctx context.Context, messageID, from, body string) string
	Subscribers() types.Snapshot
	BindPush(ctx context.Context, identity, token string) error
	UnbindPush(ctx context.Context, identity string) error
	TriggerLunch(message string) string
	Menu() (string, bool)
}

type Handler struct {
	Inbound  Inbound
	Gatherer prometheus.Gatherer
}

func NewHandler(in Inbound, gatherer prometheus.Gatherer) *Handler {
	return &Handler{Inbound: in, Gatherer: gatherer}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}
	h.Register(r)
	return r
}

// Register mounts the lunchbell routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sms", h.handleSMS)
	r.Get("/subscribers", h.handleSubscribers)
	r.Put("/push/{identity}", h.handleBindPush)
	r.Delete("/push/{identity}", h.handleUnbindPush)
	r.Post("/lunch", h.handleLunch)
	r.Get("/menu", h.handleMenu)
}

// handleSMS takes the SMS gateway's form-encoded webhook (MessageSid, From, Body) and
// answers with the reply text for the sender.
func (h *Handler) handleSMS(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}
	reply := h.Inbound.HandleText(r.Context(), r.PostForm.Get("MessageSid"), from, r.PostForm.Get("Body"))
	writeText(w, http.StatusOK, reply)
}

func (h *Handler) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, h.Inbound.Subscribers()); err != nil {
		log.WithError(err).Warn("failed to write subscribers")
	}
}

type pushRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleBindPush(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	var req pushRequest
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	err := h.Inbound.BindPush(r.Context(), identity, strings.TrimSpace(req.Token))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, types.ErrMalformedCommand):
		http.Error(w, "identity and token are required", http.StatusBadRequest)
	case errors.Is(err, types.ErrChannelBinding):
		http.Error(w, "push binding failed", http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleUnbindPush(w http.ResponseWriter, r *http.Request) {
	err := h.Inbound.UnbindPush(r.Context(), chi.URLParam(r, "identity"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, types.ErrNotFound):
		http.Error(w, "no push binding", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type lunchRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleLunch(w http.ResponseWriter, r *http.Request) {
	var req lunchRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	id := h.Inbound.TriggerLunch(req.Message)
	if err := writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "dispatch_initiated",
		"id":     id,
	}); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func (h *Handler) handleMenu(w http.ResponseWriter, r *http.Request) {
	menu, ok := h.Inbound.Menu()
	if !ok {
		if err := writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "menu_unavailable"}); err != nil {
			log.WithError(err).Warn("failed to write response")
		}
		return
	}
	writeText(w, http.StatusOK, menu)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"client_ip":  clientIP(r),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request served")
	})
}

// clientIP extracts the real client IP from X-Forwarded-For or RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If SplitHostPort fails, return the RemoteAddr as-is
		return r.RemoteAddr
	}
	return host
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer func() {
		_ = r.Body.Close()
	}()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, code int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, s)
}
