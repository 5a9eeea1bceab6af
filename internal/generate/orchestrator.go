package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNoUsableResults is returned when every provider call failed or every
// candidate was rejected by the quality gates.
var ErrNoUsableResults = errors.New("no usable generation results")

// rewriteSuffix is appended to the prompt for the corrective fallback call
// after the temperature ladder produced only gated-out candidates.
const rewriteSuffix = "\n\nIMPORTANT: Use the → arrow format. Include 2-4 bullet points. " +
	"Add personality. Keep it under 280 chars."

// ladder is the temperature sequence tried per candidate before the
// corrective rewrite.
var ladder = []float64{0.7, 0.6, 0.5}

// Provider is the slice of the AI backend the orchestrator needs.
type Provider interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Result is the outcome of one generation request.
type Result struct {
	Mode    string
	Options []string
}

// Orchestrator produces a set of distinct, gate-passing post options per
// request. Candidates are drafted concurrently, deduplicated in first-seen
// order, and topped up serially when the fan-out came back short.
type Orchestrator struct {
	Provider Provider
	Prompts  *PromptBuilder

	// TargetOptions is how many distinct options a request aims for.
	TargetOptions int
	// BackfillTries bounds the serial top-up attempts after the fan-out.
	BackfillTries int

	// Now supplies the current time; defaults to time.Now.
	Now func() time.Time
}

// Mode returns the content mode in effect right now.
func (o *Orchestrator) Mode() string {
	return ModeFor(o.now())
}

// Options drafts post options for the given mode and context. The caller
// derives the mode (see Mode) so one clock read covers both cache keying and
// generation. Individual call failures are logged and tolerated; only a fully
// empty outcome is an error.
func (o *Orchestrator) Options(ctx context.Context, mode string, c Context) (*Result, error) {
	ctx, span := otel.Tracer("generate").Start(ctx, "Orchestrator.Options")
	defer span.End()

	prompt := o.Prompts.Build(mode, c)
	span.SetAttributes(attribute.String("generate.mode", mode))

	target := o.TargetOptions
	if target < 1 {
		target = 1
	}

	// Fan out one goroutine per wanted option. Results keep their slot so
	// dedup order is deterministic regardless of completion order.
	type slot struct {
		idx  int
		text string
		err  error
	}
	ch := make(chan slot, target)
	var wg sync.WaitGroup
	for i := 0; i < target; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			text, err := o.generateOne(ctx, prompt, 0.6+float64(idx)*0.1)
			ch <- slot{idx: idx, text: text, err: err}
		}(i)
	}
	wg.Wait()
	close(ch)

	ordered := make([]slot, target)
	for s := range ch {
		ordered[s.idx] = s
	}

	seen := make(map[string]bool)
	var options []string
	for _, s := range ordered {
		if s.err != nil {
			log.Warn().Err(s.err).Str("mode", mode).Msg("generation call failed")
			continue
		}
		if s.text != "" && !seen[s.text] {
			seen[s.text] = true
			options = append(options, s.text)
		}
	}

	for tries := o.BackfillTries; len(options) < target && tries > 0; tries-- {
		text, err := o.generateOne(ctx, prompt, 0.6)
		if err != nil {
			log.Warn().Err(err).Str("mode", mode).Msg("backfill generation failed")
			continue
		}
		if text != "" && !seen[text] {
			seen[text] = true
			options = append(options, text)
		}
	}

	if len(options) == 0 {
		return nil, ErrNoUsableResults
	}
	span.SetAttributes(attribute.Int("generate.options", len(options)))
	return &Result{Mode: mode, Options: options}, nil
}

// generateOne drafts a single gate-passing candidate. It walks the
// temperature ladder starting near startTemp and falls back to one
// corrective rewrite when every rung was rejected.
func (o *Orchestrator) generateOne(ctx context.Context, prompt string, startTemp float64) (string, error) {
	var lastErr error
	for _, temp := range ladderFrom(startTemp) {
		text, err := o.Provider.Generate(ctx, prompt, temp)
		if err != nil {
			lastErr = err
			continue
		}
		text = strings.TrimSpace(text)
		if passesGates(text) {
			return text, nil
		}
	}

	text, err := o.Provider.Generate(ctx, prompt+rewriteSuffix, 0.6)
	if err != nil {
		if lastErr != nil {
			return "", lastErr
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ladderFrom returns the temperature ladder with startTemp leading; the
// remaining rungs keep their usual order.
func ladderFrom(startTemp float64) []float64 {
	out := []float64{startTemp}
	for _, t := range ladder {
		if t != startTemp {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}
