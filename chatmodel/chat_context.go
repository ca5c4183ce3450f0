// Package chatmodel carries the per run context of a chat request.
package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// RunContext describes a single chat run.
// Runs are stateless, the context lives for one request.
type RunContext interface {
	// RunID is unique per run and is used to correlate the logs.
	RunID() string
	// Provider is the resolved model provider of the run.
	Provider() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type runContext struct {
	runID    string
	provider string
	metadata sync.Map
}

func (c *runContext) RunID() string {
	return c.runID
}

func (c *runContext) Provider() string {
	return c.provider
}

func (c *runContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *runContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewRunContext returns the run context, a new run ID is generated when empty.
func NewRunContext(runID, provider string) RunContext {
	return &runContext{
		runID:    values.StringsCoalesce(runID, NewRunID()),
		provider: provider,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithRunContext returns a new context with RunContext value
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, keyContext, rc)
}

// GetRunContext retrieves the RunContext from the context
func GetRunContext(ctx context.Context) RunContext {
	if v, ok := ctx.Value(keyContext).(RunContext); ok {
		return v
	}
	return nil
}

// GetRunID retrieves the run ID from the context,
// empty when the context does not carry a RunContext.
func GetRunID(ctx context.Context) string {
	if v := GetRunContext(ctx); v != nil {
		return v.RunID()
	}
	return ""
}

// EnsureRunContext returns the context with a RunContext,
// the existing one is kept.
func EnsureRunContext(ctx context.Context, provider string) (context.Context, RunContext) {
	if rc := GetRunContext(ctx); rc != nil {
		return ctx, rc
	}
	rc := NewRunContext("", provider)
	return WithRunContext(ctx, rc), rc
}

// NewRunID generates a new run ID using the flake ID generator.
func NewRunID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
