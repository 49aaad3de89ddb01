// Package pipeline sequences the extraction stages for one inquiry
// and fans batches out over the worker pool. Per inquiry the stages
// run strictly in order: normalize, statistical extraction, pattern
// extraction, fusion, optional strict projection. Each stage is timed
// and the orchestrator assembles exactly one immutable result per
// inquiry, including for failures.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/files"
	"github.com/tripdesk/tripdesk/internal/fusion"
	"github.com/tripdesk/tripdesk/internal/model"
	"github.com/tripdesk/tripdesk/internal/ner"
	"github.com/tripdesk/tripdesk/internal/rules"
	"github.com/tripdesk/tripdesk/internal/textprep"
	"github.com/tripdesk/tripdesk/internal/worker"
)

// Options tune per-call behavior without rebuilding the pipeline.
type Options struct {
	// Strict projects each fused record onto the closed trip schema.
	Strict bool
}

// Pipeline wires the extraction components together. Safe for
// concurrent use; all components are either immutable or internally
// synchronized.
type Pipeline struct {
	cfg    config.Config
	norm   *textprep.Normalizer
	stat   *ner.Extractor
	pat    *rules.Extractor
	fuse   *fusion.Engine
	reader *files.Reader
	pool   *worker.Pool
	log    *zap.Logger
}

// New constructs the full pipeline from configuration. Pattern or
// schema compilation failures are construction errors; a missing NER
// model is not, the statistical extractor degrades instead.
func New(cfg config.Config, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pat, err := rules.New(cfg, log.Named("rules"))
	if err != nil {
		return nil, fmt.Errorf("building pattern extractor: %w", err)
	}
	fuse, err := fusion.New(cfg, log.Named("fusion"))
	if err != nil {
		return nil, fmt.Errorf("building fusion engine: %w", err)
	}

	return &Pipeline{
		cfg:    cfg,
		norm:   textprep.NewNormalizer(cfg.Limits, log.Named("textprep")),
		stat:   ner.New(cfg, log.Named("ner")),
		pat:    pat,
		fuse:   fuse,
		reader: files.NewReader(log.Named("files")),
		pool:   worker.NewPool(cfg.Workers.PoolSize, cfg.Workers.TaskTimeout, log.Named("worker")),
		log:    log,
	}, nil
}

// Close releases model resources.
func (p *Pipeline) Close() error {
	return p.stat.Close()
}

// ProcessInquiry runs the full stage sequence for one inquiry. It
// always returns a result: short or empty input short-circuits with
// the matching status, and a panic anywhere inside the stages is
// contained here as an ERROR result.
func (p *Pipeline) ProcessInquiry(ctx context.Context, sourceID, text string, opts Options) (res model.Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("inquiry panic",
				zap.String("source_id", sourceID),
				zap.Any("panic", r))
			res = errorResult(sourceID, fmt.Sprintf("internal panic: %v", r))
			res.Timings.Total = time.Since(started)
		}
	}()

	res = model.Result{SourceID: sourceID}

	if isBlank(text) {
		res.Status = model.StatusEmptyFile
		res.Fused = emptyFused()
		res.Timings.Total = time.Since(started)
		return res
	}

	normStart := time.Now()
	bundle := p.norm.Normalize(text)
	res.Timings.Normalize = time.Since(normStart)
	res.Stats = bundle.Stats
	res.Languages = bundle.Languages

	switch bundle.Status {
	case model.StatusTextTooShort:
		res.Status = model.StatusTextTooShort
		res.Fused = emptyFused()
		res.Timings.Total = time.Since(started)
		return res
	case model.StatusError:
		res.Status = model.StatusError
		res.StatusError = bundle.StatusError
		res.Fused = emptyFused()
		res.Timings.Total = time.Since(started)
		return res
	}

	statStart := time.Now()
	entities := p.stat.Extract(ctx, bundle.NERText)
	res.Timings.Statistical = time.Since(statStart)

	patStart := time.Now()
	patterns := p.pat.Extract(bundle.RulesText)
	res.Timings.Pattern = time.Since(patStart)

	fuseStart := time.Now()
	res.Fused = p.fuse.Fuse(bundle.CleanedText, entities, patterns)
	res.Timings.Fusion = time.Since(fuseStart)

	if opts.Strict {
		trip, err := p.fuse.ValidateAndFormat(sourceID, bundle.CleanedText, res.Fused)
		if err != nil {
			p.log.Warn("schema validation failed",
				zap.String("source_id", sourceID),
				zap.Error(err))
			res.SchemaError = err.Error()
		} else {
			res.Trip = trip
			res.SchemaValid = true
		}
	}

	res.Status = model.StatusSuccess
	res.Timings.Total = time.Since(started)
	return res
}

// ProcessFile reads and processes one inquiry file.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, opts Options) model.Result {
	inq, err := p.reader.Read(path)
	if err != nil {
		return errorResult(filepath.Base(path), err.Error())
	}
	if inq.Empty {
		res := model.Result{SourceID: inq.SourceID, Status: model.StatusEmptyFile, Fused: emptyFused()}
		return res
	}
	return p.ProcessInquiry(ctx, inq.SourceID, inq.Text, opts)
}

func isBlank(text string) bool {
	for _, r := range text {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func emptyFused() model.FusedRecord {
	return model.FusedRecord{Methods: model.NoneMethods()}
}

func errorResult(sourceID, reason string) model.Result {
	return model.Result{
		SourceID:    sourceID,
		Status:      model.StatusError,
		StatusError: reason,
		Fused:       emptyFused(),
	}
}
