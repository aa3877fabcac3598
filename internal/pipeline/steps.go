package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/finanzas/internal/archive"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/llm"
	"github.com/dvloznov/finanzas/internal/normalize"
	"github.com/dvloznov/finanzas/internal/schema"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// Rejection records an input that did not make it into Records.
type Rejection struct {
	Index int
	Err   error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	// IngestionID names the archived raw input.
	IngestionID string

	// Text is free text for the extractor. YAML skips extraction when set.
	Text string
	YAML string

	ArchiveURI string
	Inputs     []schema.RawInput
	Results    []*schema.Result
	Records    []domain.Transaction
	Outcomes   []ingest.Outcome
	Rejected   []Rejection
	Warnings   []string
}

// ArchiveStep stores the raw text before anything else touches it.
type ArchiveStep struct {
	Archiver archive.Archiver
}

func (s *ArchiveStep) Name() string { return "archive" }

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	raw := state.Text
	if raw == "" {
		raw = state.YAML
	}
	if s.Archiver == nil || raw == "" || state.ArchiveURI != "" {
		return nil
	}
	uri, err := s.Archiver.ArchiveRaw(ctx, state.IngestionID, raw)
	if err != nil {
		return err
	}
	state.ArchiveURI = uri
	return nil
}

// ExtractStep turns free text into YAML with the LLM.
type ExtractStep struct {
	Extractor llm.Extractor
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.YAML != "" {
		return nil
	}
	if state.Text == "" {
		return fmt.Errorf("%w: no text to extract from", domain.ErrValidation)
	}
	out, err := s.Extractor.Extract(ctx, state.Text)
	if err != nil {
		return err
	}
	state.YAML = out
	return nil
}

// ParseStep decodes YAML documents into raw inputs.
type ParseStep struct{}

func (s *ParseStep) Name() string { return "parse" }

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Inputs) > 0 {
		return nil
	}
	inputs, err := schema.ParseDocuments(state.YAML)
	if err != nil {
		return err
	}
	state.Inputs = inputs
	return nil
}

// ValidateStep checks every input. Invalid inputs are set aside in Rejected;
// the step fails only when nothing valid is left.
type ValidateStep struct {
	Validator *schema.Validator
}

func (s *ValidateStep) Name() string { return "validate" }

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Results = state.Results[:0]
	for i, in := range state.Inputs {
		res, err := s.Validator.Validate(in)
		if err != nil {
			state.Rejected = append(state.Rejected, Rejection{Index: i, Err: err})
			continue
		}
		for _, w := range res.Warnings {
			state.Warnings = append(state.Warnings, fmt.Sprintf("record %d: %s", i+1, w))
		}
		for _, k := range res.Ignored {
			state.Warnings = append(state.Warnings, fmt.Sprintf("record %d: ignored field %q", i+1, k))
		}
		state.Results = append(state.Results, res)
	}
	if len(state.Results) == 0 {
		if len(state.Rejected) == 1 {
			return state.Rejected[0].Err
		}
		return fmt.Errorf("%w: none of %d records is valid", domain.ErrValidation, len(state.Inputs))
	}
	return nil
}

// NormalizeStep fills defaults so every record is complete.
type NormalizeStep struct {
	Normalizer *normalize.Normalizer
}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	records := make([]domain.Transaction, 0, len(state.Results))
	for _, res := range state.Results {
		tx, err := s.Normalizer.Result(res)
		if err != nil {
			return err
		}
		records = append(records, tx)
	}
	state.Records = records
	return nil
}

// SubmitStep hands the normalized records to the persistence boundary.
type SubmitStep struct {
	Submitter Submitter
}

func (s *SubmitStep) Name() string { return "submit" }

func (s *SubmitStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Records) == 0 {
		return nil
	}
	outcomes, err := s.Submitter.SubmitBatch(ctx, state.Records)
	if err != nil {
		return err
	}
	state.Outcomes = outcomes
	return nil
}
