// Package content produces the short texts the assistant broadcasts. It asks
// a chat completions service first and falls back to static pools, so callers
// always get deliverable text.
package content

import (
	"context"
	"errors"

	"fitbuddy/internal/observability/metrics"
	logx "fitbuddy/pkg/logx"
)

// Completer is the remote text source.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	remote Completer
	pools  Pools
	log    logx.Logger
}

// NewGenerator builds a generator. remote may be nil, in which case every
// request is served from pools.
func NewGenerator(remote Completer, pools Pools, log logx.Logger) *Generator {
	if pools == nil {
		pools = DefaultPools()
	}
	return &Generator{remote: remote, pools: pools, log: log}
}

// Generate returns completion text for prompt, or a pool entry for category on
// any failure. It never returns an empty string.
func (g *Generator) Generate(ctx context.Context, prompt string, category Category) string {
	if g.remote != nil {
		text, err := g.remote.Complete(ctx, prompt)
		if err == nil {
			metrics.RecordCompletion(string(category), false)
			return text
		}
		if errors.Is(err, ErrNoCredential) {
			g.log.Debug("completion skipped, no credential", logx.String("category", string(category)))
		} else {
			g.log.Warn("completion failed, using fallback", logx.String("category", string(category)), logx.Err(err))
		}
	}
	metrics.RecordCompletion(string(category), true)
	return g.pools.Pick(category)
}

// Pick returns a pool entry without contacting the remote service.
func (g *Generator) Pick(category Category) string {
	return g.pools.Pick(category)
}
