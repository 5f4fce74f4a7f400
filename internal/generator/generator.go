// Package generator produces exam questions from source material, either
// through a hosted LLM or a local rule-based fallback.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/metrics"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/rs/zerolog"
)

var errEmptyResponse = errors.New("empty response")

// Request describes the questions to generate.
type Request struct {
	Texts      []string
	Count      int
	Difficulty string
	Types      []model.QuestionType
	FocusArea  string
}

// Normalize fills in defaults.
func (r Request) Normalize() Request {
	if r.Count <= 0 {
		r.Count = 5
	}
	if r.Difficulty == "" {
		r.Difficulty = "medium"
	}
	if len(r.Types) == 0 {
		r.Types = []model.QuestionType{model.QuestionTypeMCQ}
	}
	return r
}

// Generator turns a Request into question drafts. Drafts are validated by
// the caller before they are stored.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]model.QuestionInput, error)
}

// Result is what a Chain produced and how.
type Result struct {
	Generator     string
	Questions     []model.QuestionInput
	ProcessingLog []string
}

// Chain tries the primary generator and falls back on any failure.
// The primary may be nil when no API key is configured.
type Chain struct {
	primary  Generator
	fallback Generator
	timeout  time.Duration
	log      zerolog.Logger
}

// NewChain creates a new Chain.
func NewChain(primary, fallback Generator, timeout time.Duration, log zerolog.Logger) *Chain {
	if fallback == nil {
		fallback = Fallback{}
	}
	return &Chain{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		log:      log.With().Str("component", "generator").Logger(),
	}
}

// Generate never surfaces a primary failure; it is recorded in the
// processing log and the fallback answers instead.
func (c *Chain) Generate(ctx context.Context, req Request) (*Result, error) {
	req = req.Normalize()
	res := &Result{}
	res.logf("Generating %d %s question(s) from %d source text(s)", req.Count, req.Difficulty, len(req.Texts))

	if c.primary != nil {
		pctx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		qs, err := c.primary.Generate(pctx, req)
		if err == nil && len(qs) > 0 {
			res.Generator = c.primary.Name()
			res.Questions = qs
			res.logf("%s generated %d question(s)", c.primary.Name(), len(qs))
			metrics.QuestionGenerationsTotal.WithLabelValues(res.Generator).Inc()
			return res, nil
		}
		if err == nil {
			err = errEmptyResponse
		}
		c.log.Warn().Err(err).Str("generator", c.primary.Name()).Msg("Primary generator failed, using fallback")
		res.logf("%s generation failed: %v", c.primary.Name(), err)
	} else {
		res.logf("No AI generator configured")
	}

	res.logf("Using %s generator", c.fallback.Name())
	qs, err := c.fallback.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fallback generator: %w", err)
	}
	res.Generator = c.fallback.Name()
	res.Questions = qs
	res.logf("%s generated %d question(s)", c.fallback.Name(), len(qs))
	metrics.QuestionGenerationsTotal.WithLabelValues(res.Generator).Inc()
	return res, nil
}

func (r *Result) logf(format string, args ...any) {
	r.ProcessingLog = append(r.ProcessingLog, fmt.Sprintf(format, args...))
}
