// Package httpapi is the HTTP/WebSocket edge from spec §4.10: a thin
// transport layer over the orchestrator, substrate reader, and reports
// store, with bearer-token gating on /api/* and a 1 MiB body cap on
// /hooks/*.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sipeed/cortexd/pkg/gateway"
	"github.com/sipeed/cortexd/pkg/orchestrator"
	"github.com/sipeed/cortexd/pkg/reports"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// maxHookBodyBytes is the body-size cap for /hooks/* per spec §4.10.
const maxHookBodyBytes = 1 << 20

// Server wires the orchestrator, substrate reader, reports store, and
// WebSocket hub into a single HTTP handler.
type Server struct {
	Orch        *orchestrator.Orchestrator
	Reader      *substrate.Reader
	Reports     *reports.Store
	Hub         *Hub
	BearerToken string
	StartedAt   time.Time
	HealthFunc  func() map[string]any

	mux *http.ServeMux
}

// New builds a Server and registers every route from spec §4.10.
func New(s *Server) *Server {
	s.mux = http.NewServeMux()
	s.routes()
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/loop/status", s.auth(s.handleStatus))
	s.mux.Handle("GET /api/loop/metrics", s.auth(s.handleMetrics))
	s.mux.Handle("POST /api/loop/start", s.auth(s.handleTransition(s.Orch.Start)))
	s.mux.Handle("POST /api/loop/pause", s.auth(s.handleTransition(s.Orch.Pause)))
	s.mux.Handle("POST /api/loop/resume", s.auth(s.handleTransition(s.Orch.Resume)))
	s.mux.Handle("POST /api/loop/stop", s.auth(s.handleTransition(s.Orch.Stop)))
	s.mux.Handle("POST /api/loop/audit", s.auth(s.handleAudit))
	s.mux.Handle("POST /api/conversation/send", s.auth(s.handleConversationSend))
	s.mux.Handle("GET /api/substrate/{id}", s.auth(s.handleSubstrateGet))
	s.mux.Handle("GET /api/reports", s.auth(s.handleReportsList))
	s.mux.Handle("GET /api/reports/latest", s.auth(s.handleReportsLatest))
	s.mux.Handle("GET /api/health", s.auth(s.handleHealth))
	s.mux.Handle("GET /api/health/critical", s.auth(s.handleHealthCritical))
	s.mux.Handle("POST /hooks/agent", s.hookBodyLimit(s.handleHooksAgent))
	s.mux.HandleFunc("GET /ws", s.Hub.ServeWS)
}

// auth enforces the bearer token on /api/* when one is configured,
// returning 401 otherwise.
func (s *Server) auth(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.BearerToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got == "" || got != s.BearerToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		h(w, r)
	})
}

// hookBodyLimit caps /hooks/* bodies at 1 MiB, returning 413 on overflow,
// per spec §4.10. /hooks/* is exempt from the bearer check.
func (s *Server) hookBodyLimit(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxHookBodyBytes)
		h(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   s.Orch.State(),
		"metrics": s.Orch.MetricsSnapshot(),
		"uptime":  humanize.Time(s.StartedAt),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Orch.MetricsSnapshot())
}

// handleTransition adapts an orchestrator state-transition method (which
// returns an error on an illegal transition) to the 409 status code spec
// §4.10 requires.
func (s *Server) handleTransition(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": s.Orch.State()})
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	s.Orch.RequestAudit()
	writeJSON(w, http.StatusOK, map[string]any{"requested": true})
}

type conversationSendRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleConversationSend(w http.ResponseWriter, r *http.Request) {
	var req conversationSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	s.Orch.HandleUserMessage(r.Context(), req.Message)
	s.Orch.Nudge()
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

func (s *Server) handleSubstrateGet(w http.ResponseWriter, r *http.Request) {
	raw := strings.ToUpper(r.PathValue("id"))
	id, ok := knownIdentifiers[substrate.Identifier(raw)]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown substrate identifier")
		return
	}

	res, err := s.Reader.Read(id)
	if err != nil {
		if k, ok := substrate.AsKind(err); ok && k == substrate.KindNotFound {
			writeError(w, http.StatusNotFound, "substrate file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"identifier":   res.Metadata.Identifier,
		"path":         res.Metadata.Path,
		"lastModified": res.Metadata.LastModified,
		"hash":         res.Metadata.Hash,
		"raw":          res.Raw,
	})
}

var knownIdentifiers = func() map[substrate.Identifier]substrate.Identifier {
	m := make(map[substrate.Identifier]substrate.Identifier)
	for id := range substrate.DefaultLayout() {
		m[id] = id
	}
	return m
}()

func (s *Server) handleReportsList(w http.ResponseWriter, r *http.Request) {
	if s.Reports == nil {
		writeError(w, http.StatusInternalServerError, "reports store unconfigured")
		return
	}
	list, err := s.Reports.List(0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": list})
}

func (s *Server) handleReportsLatest(w http.ResponseWriter, r *http.Request) {
	if s.Reports == nil {
		writeError(w, http.StatusInternalServerError, "reports store unconfigured")
		return
	}
	list, err := s.Reports.List(1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(list) == 0 {
		writeError(w, http.StatusNotFound, "no reports yet")
		return
	}
	body, err := s.Reports.Get(list[0].ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": list[0], "body": body})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.healthPayload())
}

func (s *Server) handleHealthCritical(w http.ResponseWriter, r *http.Request) {
	payload := s.healthPayload()
	healthy, _ := payload["healthy"].(bool)
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) healthPayload() map[string]any {
	payload := map[string]any{"healthy": true, "state": s.Orch.State()}
	if s.HealthFunc != nil {
		for k, v := range s.HealthFunc() {
			payload[k] = v
		}
	}
	if s.Orch.State() == orchestrator.StateStopped {
		payload["healthy"] = false
	}
	return payload
}

// handleHooksAgent satisfies the generic POST /hooks/agent surface: any
// gateway connector not wired directly can still deliver an Envelope here.
func (s *Server) handleHooksAgent(w http.ResponseWriter, r *http.Request) {
	var env gateway.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}
	if strings.TrimSpace(env.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	s.Orch.HandleUserMessage(r.Context(), env.Text)
	s.Orch.Nudge()
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

// GatewaySink adapts an Orchestrator into a gateway.Sink suitable for any
// Connector, routing every inbound Envelope's text through the same path
// as POST /hooks/agent.
func (s *Server) GatewaySink(orch *orchestrator.Orchestrator) gateway.Sink {
	return func(ctx context.Context, env gateway.Envelope) error {
		if strings.TrimSpace(env.Text) == "" {
			return nil
		}
		orch.HandleUserMessage(ctx, env.Text)
		orch.Nudge()
		return nil
	}
}
