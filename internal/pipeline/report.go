package pipeline

import (
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// Outcome is the final status of a pass.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeWarning Outcome = "warning"
	OutcomeFailed  Outcome = "failed"
)

// Report summarises one build pass.
type Report struct {
	PassID string
	Mode   config.Mode
	Start  time.Time
	End    time.Time

	// Artifacts lists emitted output paths, sorted, after exclusion filtering.
	Artifacts []string
	// Sizes maps each emitted artifact to its byte size.
	Sizes map[string]int
	// Excluded lists planned paths removed by the exclusion filter.
	Excluded []string
	// Warnings holds non-fatal issues such as planning conflicts.
	Warnings []error
	// Reasons maps each source file, relative to the config directory, to
	// the files that pulled it into the build.
	Reasons map[string][]string

	CacheHits      int
	CacheMisses    int
	StageDurations map[string]time.Duration
	Outcome        Outcome
	// Err is the fatal error that aborted the pass, if any.
	Err error
}

func newReport(passID string, mode config.Mode) *Report {
	return &Report{
		PassID:         passID,
		Mode:           mode,
		Start:          time.Now(),
		Sizes:          make(map[string]int),
		Reasons:        make(map[string][]string),
		StageDurations: make(map[string]time.Duration),
	}
}

// Duration is the wall time of the pass.
func (r *Report) Duration() time.Duration {
	if r.End.IsZero() {
		return time.Since(r.Start)
	}
	return r.End.Sub(r.Start)
}

// TotalBytes sums the sizes of the emitted artifacts.
func (r *Report) TotalBytes() int {
	total := 0
	for _, n := range r.Sizes {
		total += n
	}
	return total
}

// AddWarning records a non-fatal issue.
func (r *Report) AddWarning(err error) {
	if err != nil {
		r.Warnings = append(r.Warnings, err)
	}
}

// WarningMessages returns the warnings as display strings.
func (r *Report) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		if ce, ok := ferrors.AsClassified(w); ok {
			out = append(out, ce.Message()+contextSuffix(ce))
			continue
		}
		out = append(out, w.Error())
	}
	return out
}

func contextSuffix(ce *ferrors.ClassifiedError) string {
	if p, ok := ce.Context().GetString("path"); ok {
		return " (" + p + ")"
	}
	return ""
}

func (r *Report) finish(err error) {
	r.End = time.Now()
	r.Err = err
	sort.Strings(r.Artifacts)
	sort.Strings(r.Excluded)
	switch {
	case err != nil:
		r.Outcome = OutcomeFailed
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// LogStats writes the parts of the report selected by stats. The summary
// line is always logged.
func (r *Report) LogStats(logger *slog.Logger, stats config.StatsConfig) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []any{logfields.PassID(r.PassID), slog.String("mode", string(r.Mode)), logfields.Duration(r.Duration())}
	if r.Err != nil {
		logger.Error("Build pass failed", append(base, logfields.Error(r.Err))...)
		return
	}
	logger.Info("Build pass complete", append(base,
		logfields.Count(len(r.Artifacts)),
		slog.String("size", humanize.Bytes(uint64(r.TotalBytes()))),
		slog.Int("warnings", len(r.Warnings)),
	)...)

	if stats.Assets {
		for _, a := range r.Artifacts {
			logger.Info("Asset", logfields.Artifact(a), slog.String("size", humanize.Bytes(uint64(r.Sizes[a]))))
		}
		for _, a := range r.Excluded {
			logger.Info("Asset excluded", logfields.Artifact(a))
		}
	}
	if stats.Cached {
		logger.Info("Transform cache", slog.Int("hits", r.CacheHits), slog.Int("misses", r.CacheMisses))
	}
	if stats.Reasons {
		files := make([]string, 0, len(r.Reasons))
		for f := range r.Reasons {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			logger.Info("Module included", logfields.Path(f), slog.Any("by", r.Reasons[f]))
		}
	}
	if stats.Warnings {
		for _, w := range r.WarningMessages() {
			logger.Warn("Build warning", slog.String("warning", w))
		}
	}
}

// relTo renders p relative to base for display, falling back to p.
func relTo(base, p string) string {
	if rel, err := filepath.Rel(base, p); err == nil && !filepath.IsAbs(rel) && rel != ".." && !startsWithParent(rel) {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(p)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
