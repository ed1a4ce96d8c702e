// Package pipeline is the orchestrator spec §6 describes: it wires
// validation, lexing/parsing, recovery, post-parse validation, and
// serialization into the handful of job types an external caller may
// submit. The core conversion logic is a library; this package is its
// only stateful surface (it owns a resource.Governor, a pool.Pool, and
// an errsan.Sanitizer).
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/legacybridge/rtfmd/core/doctree"
	"github.com/legacybridge/rtfmd/errsan"
	"github.com/legacybridge/rtfmd/intern"
	"github.com/legacybridge/rtfmd/markdown/parser"
	"github.com/legacybridge/rtfmd/pool"
	"github.com/legacybridge/rtfmd/recovery"
	"github.com/legacybridge/rtfmd/resource"
	"github.com/legacybridge/rtfmd/rtf/lexer"
	rtfparser "github.com/legacybridge/rtfmd/rtf/parser"
	"github.com/legacybridge/rtfmd/serialize/mdgen"
	"github.com/legacybridge/rtfmd/serialize/rtfgen"
	"github.com/legacybridge/rtfmd/validate/postvalidate"
	"github.com/legacybridge/rtfmd/validate/prevalidate"
)

// Config recognizes the pipeline configuration options spec §6 lists.
type Config struct {
	StrictValidation   bool
	AutoRecovery       bool
	Template           string
	PreserveFormatting bool
	LegacyMode         bool
}

// DefaultConfig matches spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		StrictValidation:   true,
		AutoRecovery:       true,
		Template:           "default",
		PreserveFormatting: true,
		LegacyMode:         false,
	}
}

// Result is the shape returned by the simple, non-pipeline job types.
type Result struct {
	Success bool
	Output  string
	Error   *errsan.WireError
}

// PipelineResult additionally surfaces validation findings and
// recovery actions, per spec §6's *_pipeline job types.
type PipelineResult struct {
	Success  bool
	Output   string
	Error    *errsan.WireError
	Findings []postvalidate.Finding
	Recovery []recovery.Action
}

// FailedConversion is one entry of BatchResult.Failed.
type FailedConversion struct {
	Path   string
	Reason string
}

// BatchResult is the shape of batch_convert's response.
type BatchResult struct {
	Success   bool
	Converted []string
	Failed    []FailedConversion
}

// MaxBatchSize is spec §6's batch size ceiling.
const MaxBatchSize = 100

// Orchestrator owns the process-wide resources a conversion job needs:
// a memory governor, a worker pool for concurrent/batch jobs, and an
// error sanitizer. Construct one per process (or per test) rather than
// reading any of this through package-level state.
type Orchestrator struct {
	governor  *resource.Governor
	workers   *pool.Pool
	sanitizer *errsan.Sanitizer
	interner  *intern.Interner
	logger    hclog.Logger
}

// New constructs an Orchestrator with spec-default resource ceilings
// and a worker pool sized to the host.
func New(logger hclog.Logger) *Orchestrator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	maxConcurrent := runtime.NumCPU() * 2
	return &Orchestrator{
		governor:  resource.NewGovernor(100*1024*1024, maxConcurrent),
		workers:   pool.New(pool.Options{MinThreads: 1, MaxThreads: maxConcurrent, Logger: logger}),
		sanitizer: errsan.NewSanitizer(logger, 200),
		interner:  intern.New(0, 0),
		logger:    logger,
	}
}

// Shutdown drains the worker pool. Call once the orchestrator is no
// longer needed.
func (o *Orchestrator) Shutdown() { o.workers.Shutdown() }

// Sanitizer exposes the orchestrator's error sanitizer, primarily so
// callers (e.g. cmd/rtfmd) can inspect Recent() for operator triage.
func (o *Orchestrator) Sanitizer() *errsan.Sanitizer { return o.sanitizer }

// InternerStats exposes the orchestrator's shared string interner's
// hit/miss statistics (spec §4.3), primarily for metrics surfacing.
func (o *Orchestrator) InternerStats() intern.Stats { return o.interner.Stats() }

// RTFToMarkdown runs the simple job type: no validation findings or
// recovery actions are surfaced, only success/failure.
func (o *Orchestrator) RTFToMarkdown(text []byte) Result {
	pr := o.RTFToMarkdownPipeline(text, DefaultConfig())
	return Result{Success: pr.Success, Output: pr.Output, Error: pr.Error}
}

// MarkdownToRTF runs the simple job type's Markdown-to-RTF direction.
func (o *Orchestrator) MarkdownToRTF(text []byte) Result {
	pr := o.MarkdownToRTFPipeline(text, DefaultConfig())
	return Result{Success: pr.Success, Output: pr.Output, Error: pr.Error}
}

// RTFToMarkdownPipeline converts RTF to Markdown, applying recovery on
// a lex/parse failure when cfg.AutoRecovery is set, and surfacing
// post-parse validation findings.
func (o *Orchestrator) RTFToMarkdownPipeline(text []byte, cfg Config) PipelineResult {
	if err := prevalidate.ValidateSize(text, "rtf input", 0); err != nil {
		return o.fail(err)
	}

	doc, findings, actions, err := o.buildRTFDocument(text, cfg)
	if err != nil {
		return o.failWithRecovery(err, actions)
	}

	if postvalidate.HasErrors(findings, cfg.StrictValidation) {
		return PipelineResult{
			Success:  false,
			Error:    o.sanitizer.Sanitize(fmt.Errorf("document failed post-parse validation")),
			Findings: findings,
			Recovery: actions,
		}
	}

	out := mdgen.Serialize(doc, mdgen.Options{LegacyMode: cfg.LegacyMode})
	return PipelineResult{Success: true, Output: out, Findings: findings, Recovery: actions}
}

// buildRTFDocument runs pre-validation, lex, and parse, falling back
// to the recovery engine on a lex/parse failure when AutoRecovery is
// enabled. It always returns whatever findings apply to the document
// it ultimately produced.
func (o *Orchestrator) buildRTFDocument(text []byte, cfg Config) (*doctree.Document, []postvalidate.Finding, []recovery.Action, error) {
	lim := doctree.DefaultLimits()

	preErr := prevalidate.PreValidateRTF(text)
	if preErr == nil {
		toks, lexErr := lexer.Lex(text, lexer.Options{})
		if lexErr == nil {
			parseOpts := rtfparser.DefaultOptions()
			parseOpts.Limits = lim
			parseOpts.Governor = o.governor
			parseOpts.Interner = o.interner
			if doc, parseErr := rtfparser.Parse(toks, parseOpts); parseErr == nil {
				findings := postvalidate.Validate(doc, postvalidate.Options{Limits: lim, RawSource: text})
				return doc, findings, nil, nil
			} else if !cfg.AutoRecovery {
				return nil, nil, nil, parseErr
			}
		} else if !cfg.AutoRecovery {
			return nil, nil, nil, lexErr
		}
	} else if !cfg.AutoRecovery {
		return nil, nil, nil, preErr
	}

	doc, actions, err := recovery.Recover(text, recovery.Options{Limits: lim})
	if err != nil {
		return nil, nil, actions, err
	}
	findings := postvalidate.Validate(doc, postvalidate.Options{Limits: lim, RawSource: text})
	return doc, findings, actions, nil
}

// MarkdownToRTFPipeline converts Markdown to RTF. The recovery engine
// targets RTF structural repair and has no Markdown-side equivalent,
// so a pre-validation failure here is always terminal regardless of
// AutoRecovery, matching spec §4.6's scope (lex/parse failures, which
// only the RTF side of the pipeline produces).
func (o *Orchestrator) MarkdownToRTFPipeline(text []byte, cfg Config) PipelineResult {
	if err := prevalidate.ValidateSize(text, "markdown input", 0); err != nil {
		return o.fail(err)
	}
	if err := prevalidate.PreValidateMarkdown(text); err != nil {
		return o.fail(err)
	}

	doc := parser.Parse(text)
	lim := doctree.DefaultLimits()
	findings := postvalidate.Validate(doc, postvalidate.Options{Limits: lim})
	if postvalidate.HasErrors(findings, cfg.StrictValidation) {
		return PipelineResult{
			Success:  false,
			Error:    o.sanitizer.Sanitize(fmt.Errorf("document failed post-parse validation")),
			Findings: findings,
		}
	}

	tmpl, tmplErr := rtfgen.ParseTemplate(cfg.Template)
	if tmplErr != nil {
		tmpl = rtfgen.TemplateDefault
	}
	out, genErr := rtfgen.Serialize(doc, rtfgen.Options{Template: tmpl, Budgets: rtfgen.DefaultBudgets()})
	if genErr != nil {
		return PipelineResult{Success: false, Error: o.sanitizer.Sanitize(genErr), Findings: findings}
	}
	return PipelineResult{Success: true, Output: out, Findings: findings}
}

func (o *Orchestrator) fail(err error) PipelineResult {
	return PipelineResult{Success: false, Error: o.sanitizer.Sanitize(err)}
}

func (o *Orchestrator) failWithRecovery(err error, actions []recovery.Action) PipelineResult {
	return PipelineResult{Success: false, Error: o.sanitizer.Sanitize(err), Recovery: actions}
}

// BatchConvert reads, converts, and writes every file in inputPaths
// into outputDir. Direction is inferred from each input's extension.
// Concurrency is bounded by the orchestrator's worker pool, matching
// spec §5's processor model; batch size is capped at MaxBatchSize.
//
// It mints its own batch identifier and scopes cancellation to it via
// the resource governor (spec §9's Design Notes resolve the source's
// ambiguous global-cancellation flag in favor of exactly this:
// per-batch scope). Use CancelBatch with BatchConvertWithID's id to
// cancel a batch that's running on another goroutine; BatchConvert
// itself has no way to hand back an id before it returns, so callers
// that need to cancel should call BatchConvertWithID directly.
func (o *Orchestrator) BatchConvert(inputPaths []string, outputDir string) BatchResult {
	return o.BatchConvertWithID(uuid.NewString(), inputPaths, outputDir)
}

// CancelBatch requests that an in-flight BatchConvertWithID(batchID, ...)
// stop submitting further items. Items already submitted to the worker
// pool still run to completion; only items not yet submitted are
// skipped, each recorded in BatchResult.Failed.
func (o *Orchestrator) CancelBatch(batchID string) {
	o.governor.CancelBatch(batchID)
}

// BatchConvertWithID is BatchConvert with an explicit, caller-chosen
// batch identifier so a concurrent call to CancelBatch can target it.
func (o *Orchestrator) BatchConvertWithID(batchID string, inputPaths []string, outputDir string) BatchResult {
	defer o.governor.ForgetBatch(batchID)

	if len(inputPaths) > MaxBatchSize {
		inputPaths = inputPaths[:MaxBatchSize]
	}

	futures := make([]*pool.Future, len(inputPaths))
	outPaths := make([]string, len(inputPaths))
	var result BatchResult

	for i, p := range inputPaths {
		if o.governor.IsCancelled(batchID) {
			result.Failed = append(result.Failed, FailedConversion{Path: p, Reason: "batch cancelled"})
			continue
		}

		clean, err := prevalidate.SanitizePath(p, "", true)
		if err != nil {
			result.Failed = append(result.Failed, FailedConversion{Path: p, Reason: "invalid path"})
			continue
		}
		outPath, direction, ok := o.resolveBatchTarget(clean, outputDir)
		if !ok {
			result.Failed = append(result.Failed, FailedConversion{Path: p, Reason: "unsupported extension"})
			continue
		}
		outPaths[i] = outPath

		dir := direction
		future, err := o.workers.Submit(pool.Job{
			Fn: func(ctx context.Context) ([]byte, error) {
				return o.convertForBatch(clean, dir)
			},
			Deadline: time.Now().Add(30 * time.Second),
		})
		if err != nil {
			result.Failed = append(result.Failed, FailedConversion{Path: p, Reason: "submission rejected"})
			continue
		}
		futures[i] = future
	}

	for i, f := range futures {
		if f == nil {
			continue
		}
		out, err := f.Wait(context.Background())
		if err != nil {
			result.Failed = append(result.Failed, FailedConversion{Path: inputPaths[i], Reason: "conversion failed"})
			continue
		}
		if err := os.WriteFile(outPaths[i], out, 0o644); err != nil {
			result.Failed = append(result.Failed, FailedConversion{Path: inputPaths[i], Reason: "write failed"})
			continue
		}
		result.Converted = append(result.Converted, outPaths[i])
	}
	result.Success = len(result.Failed) == 0
	return result
}

type batchDirection int

const (
	directionRTFToMD batchDirection = iota
	directionMDToRTF
)

func (o *Orchestrator) resolveBatchTarget(inputPath, outputDir string) (string, batchDirection, bool) {
	ext := strings.ToLower(filepath.Ext(inputPath))
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	switch ext {
	case ".rtf":
		return filepath.Join(outputDir, base+".md"), directionRTFToMD, true
	case ".md", ".markdown":
		return filepath.Join(outputDir, base+".rtf"), directionMDToRTF, true
	default:
		return "", 0, false
	}
}

// convertForBatch reads and converts a single file. Reading from disk
// happens inside the submitted job rather than before Submit, so the
// worker pool's concurrency cap also bounds how many files are open
// at once.
func (o *Orchestrator) convertForBatch(path string, dir batchDirection) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res PipelineResult
	if dir == directionRTFToMD {
		res = o.RTFToMarkdownPipeline(data, DefaultConfig())
	} else {
		res = o.MarkdownToRTFPipeline(data, DefaultConfig())
	}
	if !res.Success {
		return nil, fmt.Errorf("conversion failed: %s", res.Error.Message)
	}
	return []byte(res.Output), nil
}
