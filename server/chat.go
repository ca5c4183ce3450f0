package server

import (
	"context"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/chatmodel"
	"github.com/effective-security/opsdash/config"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/errgroup"
)

var (
	errMessagesRequired = errors.New("messages array is required")
	// errLocalUnavailable is returned when the local provider does not answer the pre-check.
	errLocalUnavailable = errors.New("AI service unavailable. Make sure Ollama is running.")
	errNotTested        = errors.New("Not tested")
)

type chatRequest struct {
	Messages []llms.Message `json:"messages"`
	Provider string         `json:"provider,omitempty"`
}

type chatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Provider string `json:"provider,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Messages == nil {
		writeError(w, r, http.StatusBadRequest, errMessagesRequired)
		return
	}
	for i, m := range req.Messages {
		role, err := llms.ParseRole(string(m.Role))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		req.Messages[i].Role = role
	}

	model, p, err := s.Models.Model(ctx, req.Provider)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, llms.ErrUnsupportedProvider) {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, err)
		return
	}

	if p.Type.IsLocal() {
		if pinger, ok := model.(llms.Pinger); ok {
			if err = pinger.Ping(ctx); err != nil {
				logger.ContextKV(ctx, xlog.WARNING,
					"reason", "local_unavailable",
					"err", err.Error(),
				)
				writeError(w, r, http.StatusServiceUnavailable, errLocalUnavailable)
				return
			}
		}
	}

	ctx, _ = chatmodel.EnsureRunContext(ctx, p.Type.String())
	res, err := s.Assistant.Run(ctx, model, req.Messages)
	s.logRunStats(ctx)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Success:  true,
		Response: res.Content,
		Provider: res.Provider,
		RunID:    res.RunID,
	})
}

func (s *Server) logRunStats(ctx context.Context) {
	if s.RunStats == nil {
		return
	}
	st := s.RunStats.EndRun(ctx)
	if st == nil {
		return
	}
	logger.ContextKV(ctx, xlog.INFO,
		"run_id", st.RunID,
		"provider", st.Provider,
		"failed", st.Failed,
		"llm_calls", st.LLMCalls,
		"tool_calls", st.ToolCalls,
		"tool_failed", st.ToolCallsFailed,
		"took", st.Duration.String(),
	)
}

type switchRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) switchProvider(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decode(w, r, &req) {
		return
	}
	typ, err := llms.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.Store.PutSettings(r.Context(), map[string]string{config.KeyAIProvider: typ.String()})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	logger.ContextKV(r.Context(), xlog.NOTICE, "status", "provider_switched", "provider", typ)
	writeJSON(w, http.StatusOK, okResponse{
		Success: true,
		Message: "AI provider switched to " + typ.String(),
	})
}

// connStatus is the result of a connectivity check.
type connStatus struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Models  []string `json:"models,omitempty"`
}

func failed(err error) connStatus {
	return connStatus{Error: err.Error()}
}

type modelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// checkProvider connects to the provider, and lists the installed models when supported.
func (s *Server) checkProvider(ctx context.Context, provider llms.ProviderType) connStatus {
	model, _, err := s.Models.Model(ctx, provider.String())
	if err != nil {
		return failed(err)
	}
	if l, ok := model.(modelLister); ok {
		names, err := l.ListModels(ctx)
		if err != nil {
			return failed(err)
		}
		return connStatus{Success: true, Models: names}
	}
	if pinger, ok := model.(llms.Pinger); ok {
		if err = pinger.Ping(ctx); err != nil {
			return failed(err)
		}
	}
	return connStatus{Success: true}
}

type debugInfo struct {
	ConfiguredProvider string     `json:"configuredProvider"`
	HasOpenAIKey       bool       `json:"hasOpenAIKey"`
	EnvProvider        string     `json:"envProvider,omitempty"`
	DBProvider         string     `json:"dbProvider,omitempty"`
	OllamaStatus       connStatus `json:"ollamaStatus"`
	OpenAIStatus       connStatus `json:"openaiStatus"`
	DBSettingsKeys     []string   `json:"dbSettingsKeys"`
}

type debugResponse struct {
	Success bool       `json:"success"`
	Debug   *debugInfo `json:"debug"`
}

func (s *Server) debug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := s.Resolver.Snapshot(ctx)

	info := &debugInfo{
		ConfiguredProvider: v.Get(config.KeyAIProvider),
		HasOpenAIKey:       v.Get(config.KeyOpenAIAPIKey) != "",
		EnvProvider:        os.Getenv(config.EnvName(config.KeyAIProvider)),
		DBProvider:         v.Setting(config.KeyAIProvider),
		OpenAIStatus:       failed(errNotTested),
		DBSettingsKeys:     v.SettingKeys(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info.OllamaStatus = s.checkProvider(gctx, llms.ProviderOllama)
		return nil
	})
	if info.HasOpenAIKey {
		g.Go(func() error {
			info.OpenAIStatus = s.checkProvider(gctx, llms.ProviderOpenAI)
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, debugResponse{Success: true, Debug: info})
}
