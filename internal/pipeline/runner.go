package pipeline

import (
	"context"
	"fmt"

	"mathcanvas/internal/logging"
)

// DefaultMaxRetries is the per-block attempt budget when the caller does not
// ask for a specific one.
const DefaultMaxRetries = 3

// RenderResult is the renderer collaborator's answer for one attempt.
// OK=false signals a retryable generation failure; a mechanism fault is
// returned as an error instead and aborts the run.
type RenderResult struct {
	OK       bool
	Artifact string
}

// VerifyResult is the verifier collaborator's assessment of an artifact.
type VerifyResult struct {
	Passed bool
	Errors []string
}

// Renderer produces a rendering artifact for a directive kind and body.
type Renderer interface {
	Render(ctx context.Context, kind Kind, body string, opts Options) (RenderResult, error)
}

// Verifier assesses whether a rendered artifact meets acceptance rules.
// An error means the verification mechanism itself failed; that is never
// reported as "verified and failed".
type Verifier interface {
	Verify(ctx context.Context, kind Kind, artifact string) (VerifyResult, error)
}

// Config controls one pipeline run.
type Config struct {
	// Verify requests visual verification of each generated artifact.
	Verify bool
	// MaxRetries bounds the attempts per block. Zero or negative is
	// clamped to 1 so every block gets at least one attempt.
	MaxRetries int
}

// DefaultConfig returns the standard run configuration.
func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries}
}

// ItemResult is the final, immutable outcome for one block. Artifact holds
// the last generated render even when no attempt was accepted.
type ItemResult struct {
	Kind               Kind     `json:"kind"`
	RawDirective       string   `json:"raw_directive"`
	SourcePosition     int      `json:"source_position"`
	Artifact           string   `json:"artifact,omitempty"`
	Succeeded          bool     `json:"succeeded"`
	AttemptsMade       int      `json:"attempts_made"`
	Verified           *bool    `json:"verified,omitempty"`
	VerificationErrors []string `json:"verification_errors,omitempty"`
}

// Report is the aggregated outcome of a pipeline run. Items keep the source
// position order of the extracted blocks.
type Report struct {
	Items          []ItemResult `json:"items"`
	TotalFound     int          `json:"total_found"`
	TotalSucceeded int          `json:"total_succeeded"`
}

// Runner drives the generate-and-verify loop over extracted blocks. It holds
// no state across runs; all per-run state lives on the stack.
type Runner struct {
	cfg      Config
	renderer Renderer
	verifier Verifier
}

// NewRunner creates a runner. The verifier may be nil when cfg.Verify is
// false.
func NewRunner(cfg Config, renderer Renderer, verifier Verifier) *Runner {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Runner{cfg: cfg, renderer: renderer, verifier: verifier}
}

// Run extracts every directive from the document, processes each in source
// order, and aggregates the results. A single block exhausting its retries
// never aborts the run; a collaborator-level fault does, since a broken
// collaborator invalidates all remaining items too.
func (r *Runner) Run(ctx context.Context, document string) (Report, error) {
	blocks := ExtractBlocks(document)
	logging.Pipeline("run started: %d block(s), verify=%v, max_retries=%d",
		len(blocks), r.cfg.Verify, r.cfg.MaxRetries)

	items := make([]ItemResult, 0, len(blocks))
	for _, block := range blocks {
		// Cooperative cancellation point between items.
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		item, err := r.ProcessBlock(ctx, block)
		if err != nil {
			return Report{}, err
		}
		items = append(items, item)
	}

	report := Aggregate(blocks, items)
	logging.Pipeline("run finished: %d/%d succeeded", report.TotalSucceeded, report.TotalFound)
	return report, nil
}

// ProcessBlock runs the bounded generate-and-verify loop for a single block.
// The returned error is reserved for collaborator-level faults; generation
// and verification failures are absorbed into the result.
func (r *Runner) ProcessBlock(ctx context.Context, block VisualBlock) (ItemResult, error) {
	result := ItemResult{
		Kind:           block.Kind,
		RawDirective:   block.RawDirective,
		SourcePosition: block.SourcePosition,
	}

	var (
		lastArtifact string
		haveArtifact bool
		lastErrors   []string
	)

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		result.AttemptsMade = attempt

		// Re-parsed fresh each attempt; parsing is pure and cheap.
		opts := ParseOptions(block.OptionsText)

		rendered, err := r.renderer.Render(ctx, block.Kind, block.BodyText, opts)
		if err != nil {
			return result, fmt.Errorf("render %s block at offset %d: %w",
				block.Kind, block.SourcePosition, err)
		}
		if !rendered.OK {
			logging.PipelineDebug("%s@%d attempt %d: generation failed",
				block.Kind, block.SourcePosition, attempt)
			continue
		}

		lastArtifact = rendered.Artifact
		haveArtifact = true

		if !r.cfg.Verify {
			result.Artifact = rendered.Artifact
			result.Succeeded = true
			return result, nil
		}

		verdict, err := r.verifier.Verify(ctx, block.Kind, rendered.Artifact)
		if err != nil {
			return result, fmt.Errorf("verify %s block at offset %d: %w",
				block.Kind, block.SourcePosition, err)
		}
		if verdict.Passed {
			passed := true
			result.Artifact = rendered.Artifact
			result.Succeeded = true
			result.Verified = &passed
			result.VerificationErrors = nil
			return result, nil
		}

		lastErrors = verdict.Errors
		logging.PipelineDebug("%s@%d attempt %d: verification failed: %v",
			block.Kind, block.SourcePosition, attempt, verdict.Errors)
	}

	// Exhausted. Best-effort preservation: the caller still receives the
	// most recent render and the errors that determined the final state.
	if haveArtifact {
		result.Artifact = lastArtifact
		if r.cfg.Verify {
			failed := false
			result.Verified = &failed
			result.VerificationErrors = lastErrors
		}
	}
	logging.PipelineWarn("%s@%d exhausted after %d attempt(s)",
		block.Kind, block.SourcePosition, result.AttemptsMade)
	return result, nil
}

// Aggregate builds the final report from blocks and their results. It never
// fails; an empty block list yields a report with empty items and zero
// totals.
func Aggregate(blocks []VisualBlock, items []ItemResult) Report {
	report := Report{Items: items, TotalFound: len(blocks)}
	if report.Items == nil {
		report.Items = []ItemResult{}
	}
	for _, item := range items {
		if item.Succeeded {
			report.TotalSucceeded++
		}
	}
	return report
}
