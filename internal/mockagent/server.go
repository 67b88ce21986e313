package mockagent

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bazelment/agentconsole/transport"
)

// Routes served by the mock agent.
const (
	StreamPath   = "/v1/agent/stream"
	ApprovalPath = "/v1/agent/approvals"
	HealthPath   = "/health"
)

// Request is a recorded stream request.
type Request struct {
	Context  map[string]interface{}
	Prompt   string
	Token    string
	TenantID string
	UserID   string
}

// Server replays scripts over HTTP.
type Server struct {
	logger    *slog.Logger
	approved  chan transport.ApprovalRequest
	scripts   []Script
	requests  []Request
	approvals []transport.ApprovalRequest
	mu        sync.Mutex
}

// New creates a server. The first script whose Match prefixes the prompt is
// replayed; the first script with an empty Match is the fallback.
func New(logger *slog.Logger, scripts ...Script) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(scripts) == 0 {
		scripts = []Script{DefaultScript()}
	}
	return &Server{
		logger:   logger,
		scripts:  scripts,
		approved: make(chan transport.ApprovalRequest, 16),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", transport.HeaderTenantID, transport.HeaderUserID},
		MaxAge:         300,
	}))

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(StreamPath, s.handleStream)
	r.Post(ApprovalPath, s.handleApproval)
	return r
}

// Requests returns the stream requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Approvals returns the approval decisions received so far.
func (s *Server) Approvals() []transport.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.ApprovalRequest, len(s.approvals))
	copy(out, s.approvals)
	return out
}

func (s *Server) match(prompt string) Script {
	var fallback *Script
	for i := range s.scripts {
		sc := &s.scripts[i]
		if sc.Match == "" {
			if fallback == nil {
				fallback = sc
			}
			continue
		}
		if strings.HasPrefix(prompt, sc.Match) {
			return *sc
		}
	}
	if fallback != nil {
		return *fallback
	}
	return s.scripts[0]
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Context map[string]interface{} `json:"context"`
		Prompt  string                 `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Prompt:   body.Prompt,
		Context:  body.Context,
		Token:    strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		TenantID: r.Header.Get(transport.HeaderTenantID),
		UserID:   r.Header.Get(transport.HeaderUserID),
	})
	s.mu.Unlock()

	script := s.match(body.Prompt)
	if script.Status != 0 && (script.Status < 200 || script.Status > 299) {
		writeJSON(w, script.Status, map[string]string{"error": http.StatusText(script.Status)})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	status := script.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	out := &chunkWriter{w: w, size: script.ChunkSize}
	if f, ok := w.(http.Flusher); ok {
		out.flusher = f
	}

	ctx := r.Context()
	for i, frame := range script.Frames {
		if frame.Delay > 0 {
			select {
			case <-time.After(frame.Delay):
			case <-ctx.Done():
				return
			}
		}
		if frame.AwaitApproval {
			select {
			case req := <-s.approved:
				s.logger.Debug("stream resumed by approval", "script", script.Name, "request_id", req.RequestID)
			case <-ctx.Done():
				return
			}
		}
		text, err := frame.Lines()
		if err != nil {
			s.logger.Warn("skipping frame", "script", script.Name, "index", i, "error", err)
			continue
		}
		if err := out.write(text); err != nil {
			return
		}
	}
	if !script.OmitDone {
		_ = out.write("data: [DONE]\n\n")
	}
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	var req transport.ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requestId is required"})
		return
	}
	req.TenantID = r.Header.Get(transport.HeaderTenantID)
	req.UserID = r.Header.Get(transport.HeaderUserID)
	req.Token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	s.approvals = append(s.approvals, req)
	s.mu.Unlock()

	select {
	case s.approved <- req:
	default:
		s.logger.Warn("approval queue full", "request_id", req.RequestID)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Debug("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"latency", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

// chunkWriter splits writes into fixed-size flushed chunks so that clients
// see frames cut at arbitrary byte offsets.
type chunkWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	size    int
}

func (c *chunkWriter) write(text string) error {
	if c.size <= 0 {
		return c.emit(text)
	}
	for len(text) > 0 {
		n := c.size
		if n > len(text) {
			n = len(text)
		}
		if err := c.emit(text[:n]); err != nil {
			return err
		}
		text = text[n:]
	}
	return nil
}

func (c *chunkWriter) emit(chunk string) error {
	if _, err := c.w.Write([]byte(chunk)); err != nil {
		return err
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
