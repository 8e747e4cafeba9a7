package relay

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTP struct {
	server *http.Server
	logger Logger

	port  uint16
	hub   *ClientHub
	store *SessionStore
}

func NewHTTP(port uint16, hub *ClientHub, store *SessionStore, logger Logger) *HTTP {
	return &HTTP{
		port:   port,
		hub:    hub,
		store:  store,
		logger: logger,
	}
}

func (h *HTTP) Listen() error {
	h.logger.Infof("HTTP server listening on port: %d", h.port)

	h.server = &http.Server{
		Handler: h.Router(),
		Addr:    fmt.Sprintf(":%d", h.port),
	}

	go func() {
		err := h.server.ListenAndServe()

		if err == http.ErrServerClosed {
			return
		} else if err != nil {
			h.logger.WithError(err).Errorf("Could not start HTTP server")
		}
	}()

	return nil
}

func (h *HTTP) Router() http.Handler {
	router := chi.NewRouter()
	router.Mount("/stream", h.hub)
	router.Mount("/metrics", promhttp.Handler())
	router.Get("/health", h.Health)
	router.Get("/sessions", h.Sessions)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debugf("Could not find HTTP response for URL: %s", r.URL.String())

		http.NotFound(w, r)
	})

	return router
}

type healthResponse struct {
	Status       string `json:"status"`
	LiveSessions int    `json:"live_sessions"`
	Clients      int    `json:"clients"`
}

func (h *HTTP) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&healthResponse{
		Status:       "ok",
		LiveSessions: h.store.Len(),
		Clients:      h.hub.NumClients(),
	})
}

func (h *HTTP) Sessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.store.Snapshot())
}

func (h *HTTP) Close() error {
	h.logger.Debugf("Closing HTTP listener")

	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
