package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finanzas/internal/archive"
	"github.com/dvloznov/finanzas/internal/llm"
	"github.com/dvloznov/finanzas/internal/logger"
	"github.com/dvloznov/finanzas/internal/normalize"
	"github.com/dvloznov/finanzas/internal/schema"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		start := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().
			Str("step", step.Name()).
			Dur("duration", time.Since(start)).
			Int("records", len(state.Records)).
			Msg("Pipeline step completed")
	}
	return nil
}

// Deps are the collaborators of the ingestion pipeline. Archiver, Extractor
// and Submitter are optional.
type Deps struct {
	Archiver   archive.Archiver
	Extractor  llm.Extractor
	Validator  *schema.Validator
	Normalizer *normalize.Normalizer
	Submitter  Submitter
}

// NewIngestionPipeline builds archive → extract → parse → validate →
// normalize → submit from deps. A dry run stops before submit.
func NewIngestionPipeline(d Deps, dryRun bool) *Pipeline {
	var steps []PipelineStep
	if d.Archiver != nil {
		steps = append(steps, &ArchiveStep{Archiver: d.Archiver})
	}
	if d.Extractor != nil {
		steps = append(steps, &ExtractStep{Extractor: d.Extractor})
	}
	steps = append(steps,
		&ParseStep{},
		&ValidateStep{Validator: d.Validator},
		&NormalizeStep{Normalizer: d.Normalizer},
	)
	if !dryRun && d.Submitter != nil {
		steps = append(steps, &SubmitStep{Submitter: d.Submitter})
	}
	return NewPipeline(steps...)
}
