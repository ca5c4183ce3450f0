package server

import (
	"context"
	"net/http"
	"time"

	"github.com/effective-security/opsdash/config"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/errgroup"
)

type services struct {
	Database     bool     `json:"database"`
	ClickUp      bool     `json:"clickup"`
	Calendar     bool     `json:"calendar"`
	Ollama       bool     `json:"ollama"`
	OllamaModels []string `json:"ollama_models"`
	AIProvider   string   `json:"ai_provider"`
	OpenAIModel  string   `json:"openai_model"`
	OpenAI       bool     `json:"openai"`
	HasOpenAIKey bool     `json:"has_openai_key"`
}

type healthResponse struct {
	Success   bool                  `json:"success"`
	Services  *services             `json:"services"`
	Stats     *store.DashboardStats `json:"stats"`
	Timestamp time.Time             `json:"timestamp"`
}

// pingFunc reports whether the service answered.
func pingFunc(ctx context.Context, name string, ping func(context.Context) error) bool {
	if err := ping(ctx); err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"service", name,
			"err", err.Error(),
		)
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := s.Resolver.Snapshot(ctx)
	now := s.now()

	provider, err := llms.ParseProvider(v.Get(config.KeyAIProvider))
	if err != nil {
		provider = llms.DefaultProvider
	}
	svc := &services{
		AIProvider:   provider.String(),
		OpenAIModel:  v.Get(config.KeyOpenAIModel),
		HasOpenAIKey: v.Get(config.KeyOpenAIAPIKey) != "",
		OllamaModels: []string{},
	}

	var stats *store.DashboardStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.Store.Stats(gctx, now)
		return err
	})
	if s.Tasks != nil {
		g.Go(func() error {
			svc.ClickUp = pingFunc(gctx, "clickup", s.Tasks.Ping)
			return nil
		})
	}
	if s.Calendar != nil {
		g.Go(func() error {
			svc.Calendar = pingFunc(gctx, "calendar", s.Calendar.Ping)
			return nil
		})
	}
	g.Go(func() error {
		st := s.checkProvider(gctx, llms.ProviderOllama)
		svc.Ollama = st.Success
		if st.Models != nil {
			svc.OllamaModels = st.Models
		}
		return nil
	})
	if provider == llms.ProviderOpenAI && svc.HasOpenAIKey {
		g.Go(func() error {
			svc.OpenAI = s.checkProvider(gctx, llms.ProviderOpenAI).Success
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	svc.Database = true

	writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Services:  svc,
		Stats:     stats,
		Timestamp: now.UTC(),
	})
}

type settingsPayload struct {
	Success  bool              `json:"success,omitempty"`
	Settings map[string]string `json:"settings"`
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{Success: true, Settings: settings})
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if !decode(w, r, &req) {
		return
	}
	if err := s.Store.PutSettings(r.Context(), req.Settings); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	logger.ContextKV(r.Context(), xlog.NOTICE, "status", "settings_saved", "count", len(req.Settings))
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
