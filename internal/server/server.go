package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"podcast-player/internal/browse"
	"podcast-player/internal/controller"
	"podcast-player/internal/fetch"
	"podcast-player/internal/models"
)

const (
	maxBodyBytes    = 1 << 16
	upstreamTimeout = 20 * time.Second
)

// Player is the playback surface the handlers drive.
type Player interface {
	Play(ep models.Episode) error
	TogglePause() bool
	Seek(fraction float64) bool
	Dismiss()
	CurrentPosition() controller.Snapshot
}

// Catalog resolves searches and selections against the listings shown to the user.
type Catalog interface {
	Search(ctx context.Context, term string) ([]models.Show, error)
	SelectShow(ctx context.Context, id string) (models.Show, []models.Episode, error)
	Episode(id string) (models.Episode, error)
	Shows() []models.Show
	Episodes() (models.Show, []models.Episode, bool)
}

type serverHandler struct {
	player  Player
	catalog Catalog
	logger  *log.Logger
}

// New creates the HTTP handler exposing search, selection and player
// controls. metricsHandler may be nil.
func New(player Player, catalog Catalog, metricsHandler http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &serverHandler{
		player:  player,
		catalog: catalog,
		logger:  logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/shows", h.handleShows).Methods(http.MethodGet)
	r.HandleFunc("/episodes", h.handleEpisodes).Methods(http.MethodGet)
	r.HandleFunc("/select", h.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/player", h.handlePlayer).Methods(http.MethodGet)
	r.HandleFunc("/player/toggle", h.handleToggle).Methods(http.MethodPost)
	r.HandleFunc("/player/seek", h.handleSeek).Methods(http.MethodPost)
	r.HandleFunc("/player/dismiss", h.handleDismiss).Methods(http.MethodPost)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	return logRequests(corsHandler.Handler(r), logger)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

func (h *serverHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "term is required", h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	shows, err := h.catalog.Search(ctx, term)
	if err != nil {
		h.logger.Printf("search %q failed: %v", term, err)
		writeError(w, http.StatusBadGateway, "search failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"shows": shows}, h.logger)
}

func (h *serverHandler) handleShows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"shows": h.catalog.Shows()}, h.logger)
}

func (h *serverHandler) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	show, episodes, ok := h.catalog.Episodes()
	if !ok {
		writeError(w, http.StatusNotFound, "no show selected", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"show": show, "episodes": episodes}, h.logger)
}

func (h *serverHandler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var sel browse.Selection
	if err := decodeBody(r, &sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.logger)
		return
	}
	if err := sel.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}

	switch sel.Kind {
	case browse.KindShow:
		ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
		defer cancel()

		show, episodes, err := h.catalog.SelectShow(ctx, sel.ID)
		if err != nil {
			if errors.Is(err, browse.ErrUnknownShow) {
				writeError(w, http.StatusNotFound, err.Error(), h.logger)
				return
			}
			h.logger.Printf("load show %s failed: %v", sel.ID, err)
			writeError(w, http.StatusBadGateway, "could not load episodes", h.logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"show": show, "episodes": episodes}, h.logger)

	case browse.KindEpisode:
		ep, err := h.catalog.Episode(sel.ID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error(), h.logger)
			return
		}
		if err := h.player.Play(ep); err != nil {
			if errors.Is(err, fetch.ErrReferenceMissing) {
				writeError(w, http.StatusUnprocessableEntity, "episode has no audio", h.logger)
				return
			}
			h.logger.Printf("play %s failed: %v", ep.ID, err)
			writeError(w, http.StatusInternalServerError, "could not start playback", h.logger)
			return
		}
		writeJSON(w, http.StatusAccepted, h.player.CurrentPosition(), h.logger)
	}
}

func (h *serverHandler) handlePlayer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.player.CurrentPosition(), h.logger)
}

func (h *serverHandler) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !h.player.TogglePause() {
		writeError(w, http.StatusConflict, "nothing to pause or resume", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.player.CurrentPosition(), h.logger)
}

type seekRequest struct {
	Fraction *float64 `json:"fraction"`
}

func (h *serverHandler) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil || req.Fraction == nil {
		writeError(w, http.StatusBadRequest, "fraction is required", h.logger)
		return
	}

	if !h.player.Seek(*req.Fraction) {
		writeError(w, http.StatusConflict, "episode is not ready for seeking", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.player.CurrentPosition(), h.logger)
}

func (h *serverHandler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	h.player.Dismiss()
	writeJSON(w, http.StatusOK, h.player.CurrentPosition(), h.logger)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, logger *log.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, logger)
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start)
		logger.Printf("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, sw.status, sw.size, duration)
	})
}
