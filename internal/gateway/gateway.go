// Package gateway is the ops surface: a health endpoint, prometheus
// metrics, the capability inventory, and a websocket for talking to the
// assistant directly (debugging, local clients, smoke tests).
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/channel"
	"github.com/room302studio/coachartie2-sub006/internal/version"
)

// Server serves the ops endpoints. The websocket path feeds messages to the
// same handler the queue consumer uses, so a ws client exercises the full
// orchestration path.
type Server struct {
	handler  channel.HandlerFunc
	registry *capability.Registry
	gatherer prometheus.Gatherer
	log      zerolog.Logger

	httpServer *http.Server
}

func New(addr string, handler channel.HandlerFunc, registry *capability.Registry, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		handler:  handler,
		registry: registry,
		gatherer: gatherer,
		log:      log.With().Str("component", "gateway").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /capabilities", s.handleCapabilities)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("gateway listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info := version.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": info.Version,
		"commit":  info.Commit,
	})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleWS runs a simple request/reply conversation: the client sends
// normalized messages as JSON frames and gets one reply frame per message.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		var msg channel.IncomingMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			s.log.Debug().Err(err).Msg("websocket read ended")
			return
		}
		if msg.ID == "" {
			msg.ID = channel.NewMessageID("gateway")
		}
		if msg.Source == "" {
			msg.Source = "gateway"
		}

		reply := s.handler(ctx, msg)
		out := channel.Outgoing{MessageID: msg.ID, Response: reply}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			s.log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
