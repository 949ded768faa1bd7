// Package server exposes negotiations over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lorenzotomasdiez/negotiator/internal/events"
	"github.com/lorenzotomasdiez/negotiator/internal/llm"
	"github.com/lorenzotomasdiez/negotiator/internal/logging"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
)

const maxBodyBytes = 1 << 20

// Runner executes a stored session. *negotiation.Engine implements it.
type Runner interface {
	Run(ctx context.Context, id string, emit negotiation.EmitFunc) error
}

type Options struct {
	Store      negotiation.Store
	Engine     Runner
	Summarizer negotiation.Summarizer
	// Premium builds the structured gateway for standalone summaries sent
	// with a bearer token. Optional.
	Premium negotiation.PremiumFactory
	// Publisher mirrors every event to NATS when set.
	Publisher     events.Publisher
	SubjectPrefix string
	Logger        *logging.Logger
}

type Server struct {
	store         negotiation.Store
	engine        Runner
	summarizer    negotiation.Summarizer
	premium       negotiation.PremiumFactory
	publisher     events.Publisher
	subjectPrefix string
	log           *logging.Logger
	upgrader      websocket.Upgrader
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		store:         opts.Store,
		engine:        opts.Engine,
		summarizer:    opts.Summarizer,
		premium:       opts.Premium,
		publisher:     opts.Publisher,
		subjectPrefix: opts.SubjectPrefix,
		log:           log.WithComponent("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/negotiate", s.handleCreate)
	mux.HandleFunc("POST /api/negotiate/summary", s.handleSummary)
	mux.HandleFunc("GET /api/negotiate/{id}", s.handleSnapshot)
	mux.HandleFunc("GET /api/negotiate/{id}/stream", s.handleStream)
	mux.HandleFunc("POST /api/negotiate/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /api/negotiate/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.logRequests(mux)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req negotiation.CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AccessToken == "" {
		req.AccessToken = bearerToken(r)
	}

	sess, err := s.store.Create(req)
	if err != nil {
		var ve *negotiation.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Reason)
			return
		}
		s.log.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.Info("session created", "session_id", sess.ID, "backend", sess.PartyA.Backend)
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleStream runs the session and streams its events. The run is detached
// from the request: a client that goes away stops receiving events, but the
// negotiation still completes and is recorded.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sse := events.NewSSEWriter(w)
	s.run(r.Context(), id, sse)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	sink := events.NewWebSocketSink(conn)

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.run(r.Context(), id, sink)
	if err := sink.Close("negotiation finished"); err != nil {
		s.log.Debug("websocket close", "session_id", id, "error", err)
	}
}

func (s *Server) run(ctx context.Context, id string, sink events.Sink) {
	sinks := []events.Sink{sink}
	if s.publisher != nil {
		sinks = append(sinks, events.NewNATSSink(s.publisher, s.subjectPrefix, id))
	}
	emit := events.Emitter(s.log.WithSession(id), sinks...)
	if err := s.engine.Run(context.WithoutCancel(ctx), id, emit); err != nil {
		s.log.Warn("negotiation ended with error", "session_id", id, "error", err)
	}
}

type summaryRequest struct {
	Topic       string                `json:"topic"`
	PositionA   string                `json:"position_a"`
	PositionB   string                `json:"position_b"`
	RedLineA    string                `json:"red_line_a,omitempty"`
	RedLineB    string                `json:"red_line_b,omitempty"`
	InstanceAID string                `json:"instance_a_id,omitempty"`
	Messages    []negotiation.Message `json:"messages"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, negotiation.ReasonMissing)
		return
	}

	in := negotiation.SummaryInput{
		Topic:    req.Topic,
		PartyA:   negotiation.Party{Name: "Party A", Position: req.PositionA, RedLine: req.RedLineA},
		PartyB:   negotiation.Party{Name: "Party B", Position: req.PositionB, RedLine: req.RedLineB},
		Messages: req.Messages,
	}
	if gw := s.structuredFor(bearerToken(r), req.InstanceAID); gw != nil {
		in.Structured = gw
	}

	sum, err := s.summarizer.Summarize(r.Context(), in)
	if err != nil {
		s.log.Warn("standalone summary aborted", "error", err)
		writeError(w, http.StatusServiceUnavailable, "summary aborted")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) structuredFor(token, instanceID string) llm.Gateway {
	if s.premium == nil || token == "" || instanceID == "" {
		return nil
	}
	gw, err := s.premium(token, instanceID)
	if err != nil {
		s.log.Warn("premium summary backend unavailable", "error", err)
		return nil
	}
	return gw
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// statusWriter records the response status. It exposes the wrapped writer
// for flushing and hijacking.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}
