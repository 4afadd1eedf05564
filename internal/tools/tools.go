// Package tools implements the external data-source collaborators behind the
// executor's ToolRunner contract. Each operation returns an opaque Record
// payload plus the SourceMeta the quality gate scores; the runners own all
// HTTP concerns including timeouts.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaehyun-park/krdaily/internal/executor"
	"github.com/jaehyun-park/krdaily/internal/planner"
)

// ErrUnknownOperation indicates a call for an operation no provider serves.
// Compiled plans only contain whitelisted operations, so hitting this means
// runner and whitelist have drifted apart.
var ErrUnknownOperation = fmt.Errorf("unknown operation")

// Record is the payload shape produced by all providers.
type Record struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags,omitempty"`
}

// PayloadTitle implements the report package's TitledPayload.
func (r Record) PayloadTitle() string { return r.Title }

// PayloadBody implements the report package's TitledPayload.
func (r Record) PayloadBody() string { return r.Body }

// Provider serves one operation.
type Provider interface {
	Fetch(ctx context.Context, params map[string]interface{}) (executor.Result, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, params map[string]interface{}) (executor.Result, error)

func (f ProviderFunc) Fetch(ctx context.Context, params map[string]interface{}) (executor.Result, error) {
	return f(ctx, params)
}

// Runner dispatches operations to registered providers. It implements
// executor.ToolRunner.
type Runner struct {
	providers map[string]Provider
}

// NewRunner creates an empty runner.
func NewRunner() *Runner {
	return &Runner{providers: make(map[string]Provider)}
}

// Register binds an operation name to a provider, replacing any previous
// binding.
func (r *Runner) Register(operation string, p Provider) {
	r.providers[operation] = p
}

// Call implements executor.ToolRunner.
func (r *Runner) Call(ctx context.Context, operation string, params map[string]interface{}) (executor.Result, error) {
	p, ok := r.providers[operation]
	if !ok {
		return executor.Result{}, fmt.Errorf("%w: %s", ErrUnknownOperation, operation)
	}
	return p.Fetch(ctx, params)
}

// Operations returns the registered operation names.
func (r *Runner) Operations() []string {
	out := make([]string, 0, len(r.providers))
	for op := range r.providers {
		out = append(out, op)
	}
	return out
}

// stringParam reads a string parameter, falling back to def.
func stringParam(params map[string]interface{}, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// intParam reads an integer parameter; JSON decoding yields float64.
// Plan parameters are untrusted, so negative values are floored at zero.
func intParam(params map[string]interface{}, key string, def int) int {
	n := def
	switch v := params[key].(type) {
	case int:
		n = v
	case float64:
		n = int(v)
	}
	if n < 0 {
		return 0
	}
	return n
}

// stringsParam reads a list-of-strings parameter, tolerating both []string
// and the []interface{} that JSON decoding produces.
func stringsParam(params map[string]interface{}, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func joinTopics(topics []string) string {
	if len(topics) == 0 {
		return "the broader market"
	}
	return strings.Join(topics, ", ")
}

// requiredOperations lists what a fully wired runner must serve.
var requiredOperations = []string{
	planner.OpIndexSnapshot,
	planner.OpMacroSnapshot,
	planner.OpDartFilings,
	planner.OpTopSectors,
	planner.OpStockNews,
	planner.OpForumSentiment,
}

// Validate checks the runner covers every whitelisted operation.
func (r *Runner) Validate() error {
	for _, op := range requiredOperations {
		if _, ok := r.providers[op]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownOperation, op)
		}
	}
	return nil
}
