// Command opsdash serves the operations dashboard API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/assistants"
	"github.com/effective-security/opsdash/callbacks"
	"github.com/effective-security/opsdash/config"
	"github.com/effective-security/opsdash/integrations/clickup"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/pkg/llmfactory"
	"github.com/effective-security/opsdash/pkg/llmutils"
	"github.com/effective-security/opsdash/pkg/tokenstore"
	"github.com/effective-security/opsdash/server"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/opsdash/store/pgstore"
	"github.com/effective-security/opsdash/syncer"
	"github.com/effective-security/opsdash/tools/dashboard"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"

	// embedded zone data for the configured timezone
	_ "time/tzdata"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash", "main")

// ShutdownTimeout bounds the graceful shutdown.
const ShutdownTimeout = 15 * time.Second

var levels = map[string]xlog.LogLevel{
	"TRACE":    xlog.TRACE,
	"DEBUG":    xlog.DEBUG,
	"INFO":     xlog.INFO,
	"NOTICE":   xlog.NOTICE,
	"WARNING":  xlog.WARNING,
	"ERROR":    xlog.ERROR,
	"CRITICAL": xlog.CRITICAL,
}

func main() {
	cfgFile := flag.String("cfg", "", "path to the configuration file")
	migrate := flag.Bool("migrate", false, "apply the database migrations at start")
	trace := flag.Bool("trace", false, "print the assistant runs to stderr")
	describe := flag.String("tools", "", "print the assistant tools as yaml or json, and exit")
	flag.Parse()

	if *describe != "" {
		if err := describeTools(os.Stdout, *describe); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*cfgFile, *migrate, *trace); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		os.Exit(1)
	}
}

func run(cfgFile string, migrate, trace bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	level, ok := levels[strings.ToUpper(cfg.LogLevel)]
	if !ok {
		return errors.Errorf("invalid log_level: %s", cfg.LogLevel)
	}
	xlog.SetGlobalLogLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, migrate || cfg.Database.Migrate)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, closeTokens, err := openTokenStore(cfg)
	if err != nil {
		return err
	}
	defer closeTokens()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	resolver := config.NewResolver(st, cfg)

	tasks := clickup.New(func(ctx context.Context) (string, string) {
		v := resolver.Snapshot(ctx)
		return v.Get(config.KeyClickUpToken), v.Get(config.KeyClickUpSpaceID)
	}, clickup.WithBaseURL(cfg.ClickUp.BaseURL))

	oauth := google.NewOAuth(google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL), tokens)
	mail := google.NewGmail(oauth)
	calendar := google.NewCalendar(oauth, func(ctx context.Context) google.ServiceAccount {
		v := resolver.Snapshot(ctx)
		return google.ServiceAccount{
			Email:      v.Get(config.KeyGoogleClientEmail),
			PrivateKey: v.Get(config.KeyGooglePrivateKey),
			Subject:    v.Get(config.KeyGmailSenderEmail),
		}
	}, cfg.Google.CalendarID)

	registry, err := dashboard.NewRegistry(dashboard.Deps{
		Store:    st,
		Tasks:    tasks,
		Mail:     mail,
		Calendar: calendar,
		Location: loc,
	})
	if err != nil {
		return err
	}

	stats := callbacks.NewStats()
	fanout := callbacks.NewFanout(
		callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/opsdash", "assistant")),
		stats,
	)
	if trace {
		fanout.Add(callbacks.NewPrinter(os.Stderr, callbacks.ModeVerbose))
	}
	assistant := assistants.New(registry,
		assistants.WithMaxToolRounds(cfg.AI.MaxToolRounds),
		assistants.WithLocation(loc),
		assistants.WithCallback(fanout),
	)

	srv := server.New(server.Deps{
		Store:     st,
		Resolver:  resolver,
		Models:    llmfactory.New(resolver),
		Assistant: assistant,
		Tasks:     tasks,
		Mail:      mail,
		Calendar:  calendar,
		OAuth:     oauth,
		Syncer:    syncer.New(st, tasks, calendar),
		RunStats:  stats,
		PublicURL: cfg.PublicURL,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenURL,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.KV(xlog.NOTICE,
			"status", "listening",
			"addr", cfg.ListenURL,
			"tools", len(registry.Names()),
		)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.KV(xlog.NOTICE, "status", "shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return errors.WithStack(httpServer.Shutdown(shutdownCtx))
}

// openStore connects to Postgres, or returns the in-memory store when no DSN is configured.
func openStore(ctx context.Context, cfg *config.Config, migrate bool) (store.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.KV(xlog.WARNING, "reason", "no_database", "store", "memory")
		return store.NewMemoryStore(), func() {}, nil
	}

	p, err := pgstore.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err = p.Migrate(); err != nil {
			_ = p.Close()
			return nil, nil, err
		}
	}
	return p, func() { _ = p.Close() }, nil
}

// openTokenStore returns the Redis token store, or the file one when Redis is not configured.
func openTokenStore(cfg *config.Config) (tokenstore.Store, func(), error) {
	if cfg.Redis.URL == "" {
		return tokenstore.NewFileStore(cfg.Google.TokenFile), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid redis url")
	}
	client := redis.NewClient(opts)
	return tokenstore.NewRedisStore(client, cfg.Redis.Prefix, "google"), func() { _ = client.Close() }, nil
}

type toolInfo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// describeTools prints the tool names and descriptions as yaml,
// or the full definitions sent to the model as json.
func describeTools(w io.Writer, format string) error {
	reg, err := dashboard.NewRegistry(dashboard.Deps{Store: store.NewMemoryStore()})
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "yaml":
		list := make([]toolInfo, 0, reg.Len())
		for _, t := range reg.Tools() {
			list = append(list, toolInfo{Name: t.Name(), Description: t.Description()})
		}
		_, err = io.WriteString(w, llmutils.ToYAML(list))
	case "json":
		_, err = fmt.Fprintln(w, llmutils.ToJSONIndent(reg.Definitions()))
	default:
		return errors.Errorf("unsupported format: %s", format)
	}
	return errors.WithStack(err)
}
