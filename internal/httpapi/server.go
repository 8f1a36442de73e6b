// Package httpapi serves everything the outside world touches: the overlay
// page and its websocket, audio artifact retrieval, the control API, Twitch
// webhook ingestion and the OAuth flows.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/crierhq/crier/internal/config"
	"github.com/crierhq/crier/internal/dispatch"
	"github.com/crierhq/crier/internal/hub"
	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/processor"
	"github.com/crierhq/crier/internal/protocol"
	"github.com/crierhq/crier/internal/tts"
	"github.com/crierhq/crier/internal/twitch"
	"github.com/crierhq/crier/internal/youtube"
)

const (
	wsReadLimit    = 2 << 20
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 45 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// Prober reports whether the TTS backend is reachable. Implemented by the
// Wyoming client.
type Prober interface {
	Probe(ctx context.Context) error
}

// Server holds the handlers and their collaborators. The twitch and youtube
// services are nil when the platform is disabled; every handler that touches
// them checks first.
type Server struct {
	cfg        config.Config
	dispatcher *dispatch.Dispatcher
	overlays   *hub.Hub
	processor  *processor.Processor
	synth      *tts.Synthesizer
	prober     Prober
	twitch     *twitch.Service
	youtube    *youtube.Service
	metrics    *observability.Metrics
	log        *slog.Logger
	upgrader   websocket.Upgrader
	static     http.Handler
	startedAt  time.Time
}

func New(cfg config.Config, dispatcher *dispatch.Dispatcher, overlays *hub.Hub, proc *processor.Processor, synth *tts.Synthesizer, prober Prober, tw *twitch.Service, yt *youtube.Service, metrics *observability.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		overlays:   overlays,
		processor:  proc,
		synth:      synth,
		prober:     prober,
		twitch:     tw,
		youtube:    yt,
		metrics:    metrics,
		log:        log.With("component", "httpapi"),
		static:     newStaticHandler(),
		startedAt:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin. OBS browser sources send no Origin header, so
				// they pass either way.
				if cfg.Server.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleOverlayPage)
	r.Get("/overlay", s.handleOverlayPage)
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws", s.handleOverlayWS)
	r.Get("/audio/{id}", s.handleAudio)

	r.Get("/api/settings", s.handleSettings)
	r.Get("/api/queue", s.handleQueue)
	r.Post("/api/queue/clear", s.handleQueueClear)
	r.Post("/api/queue/skip", s.handleQueueSkip)
	r.Post("/api/test", s.handleTestEvent)
	r.Post("/api/tts/test", s.handleTestTTS)

	r.Post("/webhooks/twitch", s.handleTwitchWebhook)

	r.Get("/auth/status", s.handleAuthStatus)
	r.Get("/auth/{platform}", s.handleAuthBegin)
	r.Get("/auth/{platform}/callback", s.handleAuthCallback)

	return r
}

// platformStatus is the per-platform fragment of the health and auth status
// responses.
type platformStatus struct {
	Enabled       bool `json:"enabled"`
	Authenticated bool `json:"authenticated"`
}

func (s *Server) platformStatuses() (platformStatus, platformStatus) {
	tw := platformStatus{Enabled: s.twitch != nil}
	if tw.Enabled {
		tw.Authenticated = s.twitch.Authenticated()
	}
	yt := platformStatus{Enabled: s.youtube != nil}
	if yt.Enabled {
		yt.Authenticated = s.youtube.Authenticated()
	}
	return tw, yt
}

// handleHealth reports overall service health: degraded (and 503) when the
// TTS backend is unreachable, since alerts cannot be voiced without it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ttsHealthy := s.prober != nil && s.prober.Probe(r.Context()) == nil

	status, code := "healthy", http.StatusOK
	ttsStatus := "healthy"
	if !ttsHealthy {
		status, code = "degraded", http.StatusServiceUnavailable
		ttsStatus = "unhealthy"
	}

	tw, yt := s.platformStatuses()
	queueStatus := s.dispatcher.Status()

	respondJSON(w, code, map[string]any{
		"status":         status,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"services": map[string]any{
			"tts":     ttsStatus,
			"twitch":  tw,
			"youtube": yt,
		},
		"queue": map[string]any{
			"size":     queueStatus.Size,
			"max_size": queueStatus.MaxSize,
		},
		"overlay_clients": s.overlays.Count(),
	})
}

// handleAudio serves one cached WAV artifact. The cache validates the id, so
// traversal attempts resolve to nothing.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	path, err := s.synth.Cache().Resolve(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "audio_not_found", "no artifact with that id")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

// handleOverlayWS upgrades the connection, registers it with the hub and
// pumps client acks into the dispatcher until the peer goes away. Writes to
// the socket are owned by the hub's per-client writer.
func (s *Server) handleOverlayWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := s.overlays.Register(conn)
	defer s.overlays.Unregister(client)

	s.overlays.Send(client, protocol.TypeConnected, protocol.NewConnected())
	s.overlays.Send(client, protocol.TypeQueueUpdate, s.dispatcher.Status())

	stopPing := make(chan struct{})
	defer close(stopPing)
	go pingLoop(conn, stopPing)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.log.Warn("overlay sent invalid message", "error", err)
			continue
		}

		switch msg := parsed.(type) {
		case protocol.PlayComplete:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypePlayComplete)).Inc()
			s.dispatcher.HandlePlayComplete(msg.ID)
		case protocol.ClientError:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientError)).Inc()
			s.dispatcher.HandleClientError(msg.ID, msg.Error)
		case protocol.ClientReady:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientReady)).Inc()
			// A reconnecting overlay missed the in-flight ready event;
			// resend it rather than stalling until the next alert.
			if ready, ok := s.dispatcher.CurrentReady(); ok {
				s.overlays.Send(client, protocol.TypeTTSReady, ready)
			} else {
				s.dispatcher.Kick()
			}
		}
	}
}

// pingLoop keeps otherwise idle overlay connections alive; browsers answer
// pings automatically. WriteControl is safe alongside the hub's writer.
func pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
