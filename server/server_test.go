package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/assistants"
	"github.com/effective-security/opsdash/callbacks"
	"github.com/effective-security/opsdash/config"
	"github.com/effective-security/opsdash/integrations/clickup"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/pkg/llmfactory"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/server"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/opsdash/syncer"
	"github.com/effective-security/opsdash/tools/dashboard"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type step struct {
	resp *llms.ContentResponse
	err  error
}

type fakeModel struct {
	lock     sync.Mutex
	provider llms.ProviderType
	steps    []step
	calls    int
	pingErr  error
}

func (m *fakeModel) GetProviderType() llms.ProviderType { return m.provider }
func (m *fakeModel) GetName() string                    { return "fake-" + m.provider.String() }

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls++
	if m.calls > len(m.steps) {
		return nil, errors.New("unexpected call")
	}
	s := m.steps[m.calls-1]
	return s.resp, s.err
}

func (m *fakeModel) ListModels(_ context.Context) ([]string, error) {
	if m.pingErr != nil {
		return nil, m.pingErr
	}
	return []string{"llama3.1:8b"}, nil
}

func (m *fakeModel) Ping(ctx context.Context) error {
	_, err := m.ListModels(ctx)
	return err
}

// fakeFactory resolves the provider like the service does, and returns the fake of its type.
type fakeFactory struct {
	resolver *config.Resolver
	models   map[llms.ProviderType]*fakeModel
}

func (f *fakeFactory) Model(ctx context.Context, requested string) (llms.Model, *llmfactory.Provider, error) {
	p, err := llmfactory.Resolve(requested, f.resolver.Snapshot(ctx))
	if err != nil {
		return nil, nil, err
	}
	return f.models[p.Type], p, nil
}

type fakeTasks struct {
	tasks   []*clickup.Task
	created []*clickup.NewTask
}

func (f *fakeTasks) IsConfigured(context.Context) bool { return true }
func (f *fakeTasks) Ping(context.Context) error        { return nil }

func (f *fakeTasks) GetLists(context.Context) ([]clickup.List, error) {
	return []clickup.List{{ID: "l1", Name: "Delivery"}}, nil
}

func (f *fakeTasks) GetTasks(context.Context, string) ([]*clickup.Task, error) {
	return f.tasks, nil
}

func (f *fakeTasks) CreateTask(_ context.Context, listID string, t *clickup.NewTask) (*clickup.Task, error) {
	f.created = append(f.created, t)
	return &clickup.Task{ID: "t-new", Name: t.Name}, nil
}

type sentMail struct {
	to, subject, body string
}

type fakeMail struct {
	authenticated bool
	sent          []sentMail
}

func (f *fakeMail) IsAuthenticated(context.Context) bool { return f.authenticated }

func (f *fakeMail) ListMessages(context.Context, google.ListOptions) ([]*google.Email, error) {
	return []*google.Email{{ID: "m1", Subject: "Hello"}}, nil
}

func (f *fakeMail) Send(_ context.Context, to, subject, body string) (string, error) {
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return "msg-1", nil
}

type fakeCalendar struct {
	created []*google.Event
	deleted []string
}

func (f *fakeCalendar) IsConfigured(context.Context) bool { return true }
func (f *fakeCalendar) Ping(context.Context) error        { return nil }

func (f *fakeCalendar) CreateEvent(_ context.Context, e *google.Event) (*google.Event, error) {
	f.created = append(f.created, e)
	n := *e
	n.ID = "g-1"
	return &n, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeAuth struct {
	authenticated bool
	code          string
}

func (f *fakeAuth) AuthURL(state string) string {
	return "https://accounts.test/auth?state=" + state
}

func (f *fakeAuth) Exchange(_ context.Context, code string) error {
	if code != "good" {
		return errors.New("invalid_grant")
	}
	f.code = code
	f.authenticated = true
	return nil
}

func (f *fakeAuth) IsAuthenticated(context.Context) bool { return f.authenticated }

type fakeSyncer struct {
	err error
}

func (f *fakeSyncer) SyncClickUp(context.Context) (*syncer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &syncer.Result{Synced: 3, Message: "Synced 3 tasks from ClickUp"}, nil
}

func (f *fakeSyncer) SyncCalendar(context.Context) (*syncer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &syncer.Result{Synced: 2, Errors: 1, Message: "Synced 2 events from Google Calendar"}, nil
}

type fixture struct {
	st       store.Store
	srv      *server.Server
	ollama   *fakeModel
	openai   *fakeModel
	tasks    *fakeTasks
	mail     *fakeMail
	calendar *fakeCalendar
	auth     *fakeAuth
	sync     *fakeSyncer
	stats    *callbacks.Stats
}

func newFixture(t *testing.T) *fixture {
	t.Setenv(config.EnvName(config.KeyAIProvider), "")
	t.Setenv(config.EnvName(config.KeyOpenAIAPIKey), "")

	st := store.NewMemoryStore()
	resolver := config.NewResolver(st, &config.Config{})
	f := &fixture{
		st:       st,
		ollama:   &fakeModel{provider: llms.ProviderOllama},
		openai:   &fakeModel{provider: llms.ProviderOpenAI},
		tasks:    &fakeTasks{},
		mail:     &fakeMail{},
		calendar: &fakeCalendar{},
		auth:     &fakeAuth{},
		sync:     &fakeSyncer{},
	}
	clock := func() time.Time { return now }

	reg, err := dashboard.NewRegistry(dashboard.Deps{Store: st, Now: clock})
	require.NoError(t, err)
	f.stats = callbacks.NewStats()

	f.srv = server.New(server.Deps{
		Store:    st,
		Resolver: resolver,
		Models: &fakeFactory{
			resolver: resolver,
			models: map[llms.ProviderType]*fakeModel{
				llms.ProviderOllama: f.ollama,
				llms.ProviderOpenAI: f.openai,
			},
		},
		Assistant: assistants.New(reg, assistants.WithClock(clock), assistants.WithCallback(f.stats)),
		Tasks:     f.tasks,
		Mail:      f.mail,
		Calendar:  f.calendar,
		OAuth:     f.auth,
		Syncer:    f.sync,
		RunStats:  f.stats,
		PublicURL: "http://localhost:3000/",
		Now:       clock,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		js, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(js)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)

	res := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w.Code, res
}

func chatBody(text string) map[string]any {
	return map[string]any{"messages": []map[string]string{{"role": "user", "content": text}}}
}

func TestChat(t *testing.T) {
	t.Run("answer", func(t *testing.T) {
		f := newFixture(t)
		f.ollama.steps = []step{{resp: &llms.ContentResponse{Content: "Hi there"}}}
		code, res := f.do(t, http.MethodPost, "/api/ai/chat", chatBody("hello"))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, res["success"])
		assert.Equal(t, "Hi there", res["response"])
		assert.Equal(t, "ollama", res["provider"])
		assert.NotEmpty(t, res["run_id"])
		assert.Equal(t, 1, f.ollama.calls)
	})

	t.Run("tools", func(t *testing.T) {
		f := newFixture(t)
		f.ollama.steps = []step{
			{resp: &llms.ContentResponse{ToolCalls: []llms.ToolCall{{Name: "get_clients", Arguments: `{}`}}}},
			{resp: &llms.ContentResponse{Content: "You have no clients yet."}},
		}
		code, res := f.do(t, http.MethodPost, "/api/ai/chat", chatBody("list clients"))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "You have no clients yet.", res["response"])
		assert.Equal(t, 2, f.ollama.calls)
	})

	t.Run("requested_provider", func(t *testing.T) {
		f := newFixture(t)
		f.ollama.pingErr = errors.New("connection refused")
		f.openai.steps = []step{{resp: &llms.ContentResponse{Content: "from the cloud"}}}
		body := chatBody("hello")
		body["provider"] = "openai"
		code, res := f.do(t, http.MethodPost, "/api/ai/chat", body)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "from the cloud", res["response"])
		assert.Equal(t, 0, f.ollama.calls)
	})

	tcases := []struct {
		name   string
		body   any
		steps  []step
		ping   error
		status int
		err    string
	}{
		{name: "no_messages", body: map[string]any{}, status: http.StatusBadRequest, err: "messages array is required"},
		{name: "bad_json", body: `{"messages": "hi"}`, status: http.StatusBadRequest, err: "invalid request body"},
		{name: "bad_role", body: map[string]any{"messages": []map[string]string{{"role": "tool", "content": "x"}}}, status: http.StatusBadRequest, err: "unexpected role"},
		{name: "bad_provider", body: map[string]any{"messages": []any{}, "provider": "claude"}, status: http.StatusBadRequest, err: "invalid provider"},
		{name: "local_down", body: chatBody("hi"), ping: errors.New("dial tcp"), status: http.StatusServiceUnavailable, err: "AI service unavailable. Make sure Ollama is running."},
		{name: "first_failed", body: chatBody("hi"), steps: []step{{err: errors.New("model crashed")}}, status: http.StatusInternalServerError, err: "model crashed"},
		{name: "first_empty", body: chatBody("hi"), steps: []step{{resp: &llms.ContentResponse{}}}, status: http.StatusInternalServerError, err: "Failed to get AI response"},
		{
			name: "final_failed",
			body: chatBody("hi"),
			steps: []step{
				{resp: &llms.ContentResponse{ToolCalls: []llms.ToolCall{{Name: "get_dashboard_stats"}}}},
				{err: errors.New("timeout")},
			},
			status: http.StatusInternalServerError,
			err:    "Failed to get final response",
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.ollama.steps = tc.steps
			f.ollama.pingErr = tc.ping
			code, res := f.do(t, http.MethodPost, "/api/ai/chat", tc.body)
			assert.Equal(t, tc.status, code)
			assert.Equal(t, false, res["success"])
			assert.Contains(t, res["error"], tc.err)
		})
	}
}

func TestSwitchAndSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, res := f.do(t, http.MethodPost, "/api/ai/switch", map[string]string{"provider": "gemini"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, res["error"], "invalid provider")

	code, res = f.do(t, http.MethodPost, "/api/ai/switch", map[string]string{"provider": "OpenAI"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "AI provider switched to openai", res["message"])

	s, err := f.st.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "openai", s[config.KeyAIProvider])

	code, _ = f.do(t, http.MethodPost, "/api/settings", map[string]any{
		"settings": map[string]string{config.KeyOpenAIModel: "gpt-4o-mini", config.KeyOpenAIAPIKey: "sk-test"},
	})
	assert.Equal(t, http.StatusOK, code)

	code, res = f.do(t, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{
		config.KeyAIProvider:   "openai",
		config.KeyOpenAIModel:  "gpt-4o-mini",
		config.KeyOpenAIAPIKey: "sk-test",
	}, res["settings"])

	code, res = f.do(t, http.MethodGet, "/api/ai/debug", nil)
	assert.Equal(t, http.StatusOK, code)
	debug := res["debug"].(map[string]any)
	assert.Equal(t, "openai", debug["configuredProvider"])
	assert.Equal(t, "openai", debug["dbProvider"])
	assert.Equal(t, true, debug["hasOpenAIKey"])
	assert.Equal(t, []any{config.KeyAIProvider, config.KeyOpenAIAPIKey, config.KeyOpenAIModel}, debug["dbSettingsKeys"])
	assert.Equal(t, true, debug["ollamaStatus"].(map[string]any)["success"])
	assert.Equal(t, true, debug["openaiStatus"].(map[string]any)["success"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.st.CreateClient(ctx, &store.Client{Name: "John", EstimatedValue: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	code, res := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	svc := res["services"].(map[string]any)
	assert.Equal(t, true, svc["database"])
	assert.Equal(t, true, svc["clickup"])
	assert.Equal(t, true, svc["calendar"])
	assert.Equal(t, true, svc["ollama"])
	assert.Equal(t, []any{"llama3.1:8b"}, svc["ollama_models"])
	assert.Equal(t, "ollama", svc["ai_provider"])
	assert.Equal(t, false, svc["openai"])

	stats := res["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["active_leads"])
	assert.EqualValues(t, 1, stats["total_clients"])
	assert.Equal(t, "1000", stats["pipeline_value"])

	f.ollama.pingErr = errors.New("down")
	_, res = f.do(t, http.MethodGet, "/api/health", nil)
	svc = res["services"].(map[string]any)
	assert.Equal(t, false, svc["ollama"])
	assert.Equal(t, []any{}, svc["ollama_models"])
}

func TestClients(t *testing.T) {
	f := newFixture(t)

	code, res := f.do(t, http.MethodPost, "/api/clients", map[string]any{"email": "a@b.test"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Client name is required", res["error"])

	code, res = f.do(t, http.MethodPost, "/api/clients", map[string]any{
		"name":            "John Smith",
		"company":         "Acme",
		"estimated_value": 2500,
	})
	require.Equal(t, http.StatusOK, code)
	client := res["client"].(map[string]any)
	assert.Equal(t, "lead", client["status"])
	id := client["id"].(string)

	_, res = f.do(t, http.MethodGet, "/api/clients", nil)
	assert.EqualValues(t, 1, res["count"])
	_, res = f.do(t, http.MethodGet, "/api/clients?status=won", nil)
	assert.EqualValues(t, 0, res["count"])
	assert.Equal(t, []any{}, res["clients"])

	code, res = f.do(t, http.MethodDelete, "/api/clients", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ID required", res["error"])

	code, _ = f.do(t, http.MethodDelete, "/api/clients?id="+id, nil)
	assert.Equal(t, http.StatusOK, code)
	_, res = f.do(t, http.MethodGet, "/api/clients?status=all", nil)
	assert.EqualValues(t, 0, res["count"])
}

func TestProjects(t *testing.T) {
	f := newFixture(t)

	code, res := f.do(t, http.MethodPost, "/api/projects", map[string]any{"budget": 100})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Project name is required", res["error"])

	code, res = f.do(t, http.MethodPost, "/api/projects", map[string]any{"name": "Site", "due_date": "03/20/2026"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, res["error"], "invalid due_date")

	code, res = f.do(t, http.MethodPost, "/api/projects", map[string]any{
		"name":     "Site",
		"status":   "active",
		"budget":   5000,
		"due_date": "2026-03-20",
	})
	require.Equal(t, http.StatusOK, code)
	p := res["project"].(map[string]any)
	assert.EqualValues(t, 100, p["health_score"])
	assert.Equal(t, "active", p["status"])
	assert.True(t, strings.HasPrefix(p["due_date"].(string), "2026-03-20"))

	_, res = f.do(t, http.MethodGet, "/api/projects?status=active", nil)
	assert.EqualValues(t, 1, res["count"])

	code, _ = f.do(t, http.MethodDelete, "/api/projects?id="+p["id"].(string), nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestInvoices(t *testing.T) {
	f := newFixture(t)

	code, res := f.do(t, http.MethodPost, "/api/invoices", map[string]any{"invoice_number": "INV-1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invoice_number, amount, issue_date, and due_date are required", res["error"])

	for _, inv := range []map[string]any{
		{"invoice_number": "INV-1", "amount": 100.50, "status": "overdue", "issue_date": "2026-01-01", "due_date": "2026-02-01"},
		{"invoice_number": "INV-2", "amount": "20", "issue_date": "2026-03-01", "due_date": "2026-04-01"},
	} {
		code, res = f.do(t, http.MethodPost, "/api/invoices", inv)
		require.Equal(t, http.StatusOK, code, res)
	}
	assert.Equal(t, "draft", res["invoice"].(map[string]any)["status"])

	code, res = f.do(t, http.MethodGet, "/api/invoices", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, res["count"])
	total, err := decimal.NewFromString(res["totalOverdue"].(string))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.5").Equal(total), total.String())

	first := res["invoices"].([]any)[0].(map[string]any)
	code, _ = f.do(t, http.MethodDelete, "/api/invoices?id="+first["id"].(string), nil)
	assert.Equal(t, http.StatusOK, code)
	_, res = f.do(t, http.MethodGet, "/api/invoices?status=overdue", nil)
	assert.EqualValues(t, 0, res["count"])
}

func TestCalendarEvents(t *testing.T) {
	f := newFixture(t)
	start := now.Add(24 * time.Hour)

	code, res := f.do(t, http.MethodPost, "/api/calendar/events", map[string]any{"summary": "Kickoff"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Summary, Start Time, and End Time are required", res["error"])

	code, res = f.do(t, http.MethodPost, "/api/calendar/events", map[string]any{
		"summary":    "Kickoff",
		"start_time": start,
		"end_time":   start.Add(time.Hour),
		"attendees":  []string{"john@acme.test"},
	})
	require.Equal(t, http.StatusOK, code)
	e := res["event"].(map[string]any)
	assert.Equal(t, "g-1", e["google_event_id"])
	require.Len(t, f.calendar.created, 1)
	assert.Equal(t, "Kickoff", f.calendar.created[0].Summary)

	_, res = f.do(t, http.MethodGet, "/api/calendar/events", nil)
	events := res["events"].([]any)
	require.Len(t, events, 1)

	code, _ = f.do(t, http.MethodDelete, "/api/calendar/events?id=missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodDelete, "/api/calendar/events?id="+e["id"].(string), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"g-1"}, f.calendar.deleted)

	_, res = f.do(t, http.MethodGet, "/api/calendar/events", nil)
	assert.Empty(t, res["events"])
}

func TestClickUp(t *testing.T) {
	f := newFixture(t)
	f.tasks.tasks = []*clickup.Task{{ID: "t1", Name: "Design"}}

	code, res := f.do(t, http.MethodGet, "/api/clickup/lists", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, res["lists"], 1)

	code, res = f.do(t, http.MethodGet, "/api/clickup/tasks", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, res["count"])

	code, res = f.do(t, http.MethodPost, "/api/clickup/tasks", map[string]any{"name": "Build"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Name and List ID are required", res["error"])

	code, res = f.do(t, http.MethodPost, "/api/clickup/tasks", map[string]any{
		"name":     "Build",
		"list_id":  "l1",
		"due_date": "2026-04-01",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "t-new", res["task"].(map[string]any)["id"])
	require.Len(t, f.tasks.created, 1)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), f.tasks.created[0].DueDate)
}

func TestGmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, res := f.do(t, http.MethodGet, "/api/gmail/inbox", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, res["authenticated"])
	assert.Equal(t, google.ErrNotAuthenticated.Error(), res["error"])

	f.mail.authenticated = true
	code, res = f.do(t, http.MethodGet, "/api/gmail/inbox", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, res["count"])

	code, res = f.do(t, http.MethodPost, "/api/gmail/send", map[string]any{"to": "a@b.test"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request. Provide type=invoice_reminders or to/subject/body", res["error"])

	code, res = f.do(t, http.MethodPost, "/api/gmail/send", map[string]any{
		"to":      "a@b.test",
		"subject": "Hi",
		"content": "<p>Hello</p>",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "msg-1", res["messageId"])
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "<p>Hello</p>", f.mail.sent[0].body)

	t.Run("reminders", func(t *testing.T) {
		f.mail.sent = nil
		_, res := f.do(t, http.MethodPost, "/api/gmail/send", map[string]any{"type": "invoice_reminders"})
		assert.Equal(t, "No overdue invoices to send reminders for", res["message"])

		c, err := f.st.CreateClient(ctx, &store.Client{Name: "John Smith", Email: "john@acme.test"})
		require.NoError(t, err)
		_, err = f.st.CreateInvoice(ctx, &store.Invoice{
			InvoiceNumber: "INV-7",
			ClientID:      c.ID,
			Amount:        decimal.RequireFromString("1250.50"),
			Status:        store.InvoiceOverdue,
			IssueDate:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			DueDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		// no email, skipped
		_, err = f.st.CreateInvoice(ctx, &store.Invoice{
			InvoiceNumber: "INV-8",
			Amount:        decimal.NewFromInt(10),
			Status:        store.InvoiceOverdue,
			DueDate:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		code, res := f.do(t, http.MethodPost, "/api/gmail/send", map[string]any{"type": "invoice_reminders"})
		assert.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1, res["sent"])
		assert.EqualValues(t, 0, res["errors"])
		assert.Equal(t, "Sent 1 invoice reminders", res["message"])

		require.Len(t, f.mail.sent, 1)
		m := f.mail.sent[0]
		assert.Equal(t, "john@acme.test", m.to)
		assert.Equal(t, "Payment Reminder: Invoice INV-7", m.subject)
		assert.Contains(t, m.body, "Dear John Smith,")
		assert.Contains(t, m.body, "$1,250.50")
		assert.Contains(t, m.body, "10 days overdue")
		assert.Contains(t, m.body, "Mar 1, 2026")

		roi, err := f.st.GetROI(ctx, now)
		require.NoError(t, err)
		assert.InDelta(t, 0.1, roi.TimeSavedHours, 0.0001)
	})
}

func TestGoogleAuth(t *testing.T) {
	f := newFixture(t)

	code, res := f.do(t, http.MethodGet, "/api/auth/google", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, res["authenticated"])
	assert.Equal(t, "https://accounts.test/auth?state=opsdash", res["authUrl"])

	tcases := []struct {
		query    string
		location string
	}{
		{"error=access_denied", "http://localhost:3000/email?error=access_denied"},
		{"", "http://localhost:3000/email?error=no_code"},
		{"code=bad", "http://localhost:3000/email?error=invalid_grant"},
		{"code=good", "http://localhost:3000/email?success=true"},
	}
	for _, tc := range tcases {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?"+tc.query, nil)
		w := httptest.NewRecorder()
		f.srv.ServeHTTP(w, req)
		assert.Equal(t, http.StatusFound, w.Code, tc.query)
		assert.Equal(t, tc.location, w.Header().Get("Location"), tc.query)
	}

	_, res = f.do(t, http.MethodGet, "/api/auth/google", nil)
	assert.Equal(t, true, res["authenticated"])
	assert.Nil(t, res["authUrl"])
}

func TestSync(t *testing.T) {
	f := newFixture(t)

	code, res := f.do(t, http.MethodPost, "/api/sync/clickup", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, res["success"])
	assert.EqualValues(t, 3, res["synced"])
	assert.Equal(t, "Synced 3 tasks from ClickUp", res["message"])

	code, res = f.do(t, http.MethodPost, "/api/sync/calendar", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, res["errors"])

	f.sync.err = clickup.ErrNotConfigured
	code, res = f.do(t, http.MethodPost, "/api/sync/clickup", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ClickUp credentials not configured", res["error"])
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/api/ai/chat", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	code, _ = f.do(t, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
