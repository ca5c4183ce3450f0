// Package server exposes the dashboard over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/assistants"
	"github.com/effective-security/opsdash/callbacks"
	"github.com/effective-security/opsdash/config"
	"github.com/effective-security/opsdash/integrations/clickup"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/pkg/llmfactory"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/opsdash/syncer"
	"github.com/effective-security/opsdash/tools/dashboard"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash", "server")

// MaxRequestBody limits the size of JSON request bodies.
const MaxRequestBody = 1 << 20

// TaskTracker is the task management service.
type TaskTracker interface {
	dashboard.TaskTracker
	IsConfigured(ctx context.Context) bool
	Ping(ctx context.Context) error
}

// Mailer is the mailbox of the signed in user.
type Mailer interface {
	dashboard.Mailer
	IsAuthenticated(ctx context.Context) bool
}

// Calendar is the external calendar.
type Calendar interface {
	dashboard.Calendar
	Ping(ctx context.Context) error
}

// Authenticator runs the Google sign in.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
	IsAuthenticated(ctx context.Context) bool
}

// Assistant answers the chat requests.
type Assistant interface {
	Run(ctx context.Context, model llms.Model, messages []llms.Message) (*assistants.Result, error)
}

// Syncer imports the external records.
type Syncer interface {
	SyncClickUp(ctx context.Context) (*syncer.Result, error)
	SyncCalendar(ctx context.Context) (*syncer.Result, error)
}

var (
	_ Syncer        = (*syncer.Syncer)(nil)
	_ Assistant     = (*assistants.Orchestrator)(nil)
	_ TaskTracker   = (*clickup.Client)(nil)
	_ Mailer        = (*google.Gmail)(nil)
	_ Calendar      = (*google.Calendar)(nil)
	_ Authenticator = (*google.OAuth)(nil)
)

// Deps are the collaborators of the server.
// Store, Resolver, Models and Assistant are required.
type Deps struct {
	Store     store.Store
	Resolver  *config.Resolver
	Models    llmfactory.Factory
	Assistant Assistant
	Tasks     TaskTracker
	Mail      Mailer
	Calendar  Calendar
	OAuth     Authenticator
	Syncer    Syncer
	// RunStats collects the counters of the chat runs, optional.
	// It must also be registered as a callback of the Assistant.
	RunStats *callbacks.Stats
	// PublicURL is the base of the redirects after sign in.
	PublicURL string
	// Now returns the current time, time.Now when nil.
	Now func() time.Time
}

// Server is the HTTP API.
type Server struct {
	Deps
	mux *http.ServeMux
}

// New returns the server with all routes registered.
func New(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{
		Deps: d,
		mux:  http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/ai/chat", s.chat)
	s.mux.HandleFunc("POST /api/ai/switch", s.switchProvider)
	s.mux.HandleFunc("GET /api/ai/debug", s.debug)

	s.mux.HandleFunc("GET /api/health", s.health)
	s.mux.HandleFunc("GET /api/settings", s.getSettings)
	s.mux.HandleFunc("POST /api/settings", s.putSettings)

	s.mux.HandleFunc("GET /api/clients", s.listClients)
	s.mux.HandleFunc("POST /api/clients", s.createClient)
	s.mux.HandleFunc("DELETE /api/clients", s.deleteClient)
	s.mux.HandleFunc("GET /api/projects", s.listProjects)
	s.mux.HandleFunc("POST /api/projects", s.createProject)
	s.mux.HandleFunc("DELETE /api/projects", s.deleteProject)
	s.mux.HandleFunc("GET /api/invoices", s.listInvoices)
	s.mux.HandleFunc("POST /api/invoices", s.createInvoice)
	s.mux.HandleFunc("DELETE /api/invoices", s.deleteInvoice)
	s.mux.HandleFunc("GET /api/calendar/events", s.listEvents)
	s.mux.HandleFunc("POST /api/calendar/events", s.createEvent)
	s.mux.HandleFunc("DELETE /api/calendar/events", s.deleteEvent)

	s.mux.HandleFunc("GET /api/clickup/lists", s.clickUpLists)
	s.mux.HandleFunc("GET /api/clickup/tasks", s.clickUpTasks)
	s.mux.HandleFunc("POST /api/clickup/tasks", s.clickUpCreateTask)
	s.mux.HandleFunc("GET /api/gmail/inbox", s.gmailInbox)
	s.mux.HandleFunc("POST /api/gmail/send", s.gmailSend)
	s.mux.HandleFunc("GET /api/auth/google", s.googleAuth)
	s.mux.HandleFunc("GET /api/auth/google/callback", s.googleCallback)

	s.mux.HandleFunc("POST /api/sync/clickup", s.syncClickUp)
	s.mux.HandleFunc("POST /api/sync/calendar", s.syncCalendar)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)
	logger.ContextKV(r.Context(), xlog.DEBUG,
		"method", r.Method,
		"path", r.URL.Path,
		"status", sw.status,
		"took", time.Since(started).String(),
	)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// errorResponse is returned by every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	// Authenticated is set by the mail routes.
	Authenticated *bool `json:"authenticated,omitempty"`
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.KV(xlog.ERROR, "reason", "encode", "err", err.Error())
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.ContextKV(r.Context(), xlog.ERROR,
			"path", r.URL.Path,
			"status", status,
			"err", err.Error(),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decode reads the JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBody)).Decode(v)
	if err != nil {
		logger.ContextKV(r.Context(), xlog.DEBUG,
			"reason", "invalid_body",
			"path", r.URL.Path,
			"err", slices.StringUpto(err.Error(), 256),
		)
		writeError(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return false
	}
	return true
}

var errIDRequired = errors.New("ID required")

// requireID returns the id query parameter.
func requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, errIDRequired)
		return "", false
	}
	return id, true
}

func (s *Server) now() time.Time {
	return s.Now()
}
