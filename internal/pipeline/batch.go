package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/model"
	"github.com/tripdesk/tripdesk/internal/worker"
)

// TimingPercentiles summarizes per-inquiry total processing time.
type TimingPercentiles struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	Max time.Duration `json:"max"`
}

// ConfidenceDistribution buckets successful inquiries by confidence.
type ConfidenceDistribution struct {
	High   int `json:"high"`   // >= 0.8
	Medium int `json:"medium"` // >= 0.5
	Low    int `json:"low"`    // > 0
	Zero   int `json:"zero"`
}

// LanguageDistribution counts detected script flags over a batch. The
// flags are not exclusive, so the counts may sum past the total.
type LanguageDistribution struct {
	English  int `json:"english"`
	Hindi    int `json:"hindi"`
	Hinglish int `json:"hinglish"`
}

// BatchStats aggregates one batch run.
type BatchStats struct {
	Total         int                    `json:"total"`
	Succeeded     int                    `json:"succeeded"`
	EmptyFiles    int                    `json:"empty_files"`
	TooShort      int                    `json:"too_short"`
	Errors        int                    `json:"errors"`
	SuccessRate   float64                `json:"success_rate"`
	AvgConfidence float64                `json:"avg_confidence"`
	Confidence    ConfidenceDistribution `json:"confidence_distribution"`
	Languages     LanguageDistribution   `json:"language_distribution"`
	Methods       map[model.Method]int   `json:"method_histogram"`
	Timing        TimingPercentiles      `json:"timing"`
	Elapsed       time.Duration          `json:"elapsed"`
}

// BatchReport is the output of one batch run: per-inquiry results in
// source-id order plus the aggregate stats.
type BatchReport struct {
	Results []model.Result `json:"results"`
	Stats   BatchStats     `json:"stats"`
}

// ProcessBatch scans dir for inquiry files and processes them over
// the worker pool. Results come back sorted by source id. An
// unreadable directory is the only hard error; per-file failures are
// ERROR results inside the report.
func (p *Pipeline) ProcessBatch(ctx context.Context, dir string, opts Options) (BatchReport, error) {
	started := time.Now()

	paths, err := p.reader.Scan(dir)
	if err != nil {
		return BatchReport{}, err
	}
	if len(paths) == 0 {
		return BatchReport{}, fmt.Errorf("no inquiry files in %s", dir)
	}

	p.log.Info("batch started",
		zap.String("dir", dir),
		zap.Int("files", len(paths)),
		zap.Int("workers", p.pool.Size()))

	tasks := make([]worker.Task, 0, len(paths))
	for _, path := range paths {
		path := path
		tasks = append(tasks, worker.Task{
			SourceID: filepath.Base(path),
			Run: func(ctx context.Context) model.Result {
				return p.ProcessFile(ctx, path, opts)
			},
		})
	}

	results := p.pool.Process(ctx, tasks)
	stats := summarize(results, time.Since(started))

	p.log.Info("batch finished",
		zap.Int("total", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Float64("success_rate", stats.SuccessRate),
		zap.Duration("elapsed", stats.Elapsed))

	return BatchReport{Results: results, Stats: stats}, nil
}

// summarize folds per-inquiry results into batch stats. Success rate
// is an exact percentage of successful inquiries over total; average
// confidence, the confidence distribution, and the method histogram
// cover successful inquiries only.
func summarize(results []model.Result, elapsed time.Duration) BatchStats {
	stats := BatchStats{
		Total:   len(results),
		Elapsed: elapsed,
		Methods: make(map[model.Method]int),
	}

	var confSum float64
	totals := make([]time.Duration, 0, len(results))
	for _, r := range results {
		totals = append(totals, r.Timings.Total)
		if r.Languages.English {
			stats.Languages.English++
		}
		if r.Languages.Hindi {
			stats.Languages.Hindi++
		}
		if r.Languages.Hinglish {
			stats.Languages.Hinglish++
		}

		switch r.Status {
		case model.StatusSuccess:
			stats.Succeeded++
			confSum += r.Fused.Confidence
			bucketConfidence(&stats.Confidence, r.Fused.Confidence)
			for _, m := range r.Fused.Methods.All() {
				stats.Methods[m]++
			}
		case model.StatusEmptyFile:
			stats.EmptyFiles++
		case model.StatusTextTooShort:
			stats.TooShort++
		default:
			stats.Errors++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total) * 100
	}
	if stats.Succeeded > 0 {
		stats.AvgConfidence = confSum / float64(stats.Succeeded)
	}
	stats.Timing = timingPercentiles(totals)
	return stats
}

func bucketConfidence(d *ConfidenceDistribution, c float64) {
	switch {
	case c >= 0.8:
		d.High++
	case c >= 0.5:
		d.Medium++
	case c > 0:
		d.Low++
	default:
		d.Zero++
	}
}

// timingPercentiles uses nearest-rank selection, which is exact for
// the small batch sizes this pipeline sees.
func timingPercentiles(totals []time.Duration) TimingPercentiles {
	if len(totals) == 0 {
		return TimingPercentiles{}
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
	rank := func(p float64) time.Duration {
		i := int(p*float64(len(totals))+0.5) - 1
		if i < 0 {
			i = 0
		}
		if i >= len(totals) {
			i = len(totals) - 1
		}
		return totals[i]
	}
	return TimingPercentiles{
		P50: rank(0.50),
		P95: rank(0.95),
		Max: totals[len(totals)-1],
	}
}

// ComponentHealth describes one pipeline component's readiness.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Health reports per-component readiness. The pipeline is healthy as
// long as every component short of the NER model is ready; a degraded
// statistical extractor lowers quality, not availability.
type Health struct {
	Healthy    bool              `json:"healthy"`
	Components []ComponentHealth `json:"components"`
}

// HealthCheck probes each component with a tiny end-to-end exercise.
func (p *Pipeline) HealthCheck(ctx context.Context) Health {
	h := Health{Healthy: true}

	probe := p.ProcessInquiry(ctx, "healthcheck", "health probe trip to Goa for 2 people", Options{})
	if probe.Status != model.StatusSuccess {
		h.Healthy = false
	}
	h.Components = append(h.Components,
		ComponentHealth{
			Name:   "normalizer",
			Ready:  probe.Status == model.StatusSuccess,
			Detail: probe.StatusError,
		},
		ComponentHealth{
			Name:  "statistical_extractor",
			Ready: true,
			Detail: map[bool]string{
				true:  "model loaded",
				false: "degraded: heuristics only",
			}[p.stat.Available()],
		},
		ComponentHealth{
			Name:  "pattern_extractor",
			Ready: probe.Status == model.StatusSuccess && probe.Fused.Methods.Destinations != model.MethodNone,
		},
		ComponentHealth{
			Name:  "fusion_engine",
			Ready: probe.Status == model.StatusSuccess && probe.Fused.Confidence > 0,
		},
		ComponentHealth{
			Name:   "worker_pool",
			Ready:  p.pool.Size() > 0,
			Detail: fmt.Sprintf("%d workers", p.pool.Size()),
		},
	)
	for _, c := range h.Components {
		if !c.Ready {
			h.Healthy = false
		}
	}
	return h
}
