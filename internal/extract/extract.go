// Package extract runs the resolve, fetch, decode and filter pipeline for a
// single package and reduces every outcome to a Result.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
	"github.com/keithlinneman/linnemanlabs-starter/internal/npm"
	"github.com/keithlinneman/linnemanlabs-starter/internal/tarball"
	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

const (
	// VersionUnknown means extraction worked but no manifest version was found
	VersionUnknown = "unknown"
	// VersionError means extraction failed, Files is empty
	VersionError = "error"

	manifestPath = "package.json"
)

// Outcome labels reported to the Observer
const (
	OutcomeOK         = "ok"
	OutcomeUnknown    = "unknown_version"
	OutcomeResolution = "resolution"
	OutcomeFetch      = "fetch"
	OutcomeFormat     = "format"
	OutcomeError      = "error"
)

// Files maps normalized package paths to raw content.
type Files map[string][]byte

// Paths returns the keys in sorted order.
func (f Files) Paths() []string {
	out := make([]string, 0, len(f))
	for p := range f {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Result is the outcome of extracting one package.
type Result struct {
	Name    string
	Version string
	Files   Files
	// Err is set only when Version is VersionError
	Err error
}

// Failed reports whether extraction failed.
func (r Result) Failed() bool { return r.Version == VersionError }

// Registry resolves descriptors and downloads their tarballs. *npm.Client
// satisfies it.
type Registry interface {
	Resolve(ctx context.Context, d npm.Descriptor) (npm.Dist, error)
	Fetch(ctx context.Context, dist npm.Dist) ([]byte, error)
}

// Observer receives one call per extraction.
type Observer interface {
	ObserveExtraction(module, outcome string, seconds float64)
}

// Extractor is safe for concurrent use.
type Extractor struct {
	registry Registry
	filter   tarball.Filter
	decoder  tarball.Decoder
	logger   log.Logger
	observer Observer
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for failure diagnostics.
func WithLogger(l log.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver reports each extraction outcome, typically to metrics.
func WithObserver(o Observer) Option {
	return func(e *Extractor) { e.observer = o }
}

// WithFilter replaces the default npm path filter.
func WithFilter(f tarball.Filter) Option {
	return func(e *Extractor) { e.filter = f }
}

// WithDecoder sets per-member and total size limits.
func WithDecoder(d tarball.Decoder) Option {
	return func(e *Extractor) { e.decoder = d }
}

// New returns an Extractor backed by reg.
func New(reg Registry, opts ...Option) *Extractor {
	e := &Extractor{
		registry: reg,
		filter:   tarball.NPM,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never returns an error. Resolution, fetch and archive failures
// become a Result with VersionError and empty Files, and are logged.
func (e *Extractor) Extract(ctx context.Context, d npm.Descriptor) Result {
	start := time.Now()
	name := d.FullName()

	res, err := e.extract(ctx, d)
	if err != nil {
		res = Result{Name: name, Version: VersionError, Files: Files{}, Err: err}
		e.logger.Error(ctx, err, "package extraction failed",
			"module", name,
			"requested_version", d.Version,
			"kind", kindName(err),
		)
	} else {
		e.logger.Debug(ctx, "package extracted",
			"module", name,
			"version", res.Version,
			"files", len(res.Files),
		)
	}

	if e.observer != nil {
		e.observer.ObserveExtraction(name, outcome(res), time.Since(start).Seconds())
	}
	return res
}

func (e *Extractor) extract(ctx context.Context, d npm.Descriptor) (Result, error) {
	dist, err := e.registry.Resolve(ctx, d)
	if err != nil {
		return Result{}, xerrors.Mark(npm.ErrResolution, err)
	}
	data, err := e.registry.Fetch(ctx, dist)
	if err != nil {
		return Result{}, xerrors.Mark(npm.ErrFetch, err)
	}

	files := Files{}
	for entry, err := range e.decoder.Entries(data) {
		if err != nil {
			return Result{}, xerrors.Mark(tarball.ErrFormat, err)
		}
		if p, ok := e.filter.Normalize(entry.Path); ok {
			files[p] = entry.Data
		}
	}

	return Result{
		Name:    d.FullName(),
		Version: manifestVersion(files),
		Files:   files,
	}, nil
}

// manifestVersion reads the version field of package.json. A missing,
// unparseable or empty manifest version is VersionUnknown.
func manifestVersion(files Files) string {
	raw, ok := files[manifestPath]
	if !ok {
		return VersionUnknown
	}
	var m struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &m); err != nil || m.Version == "" {
		return VersionUnknown
	}
	return m.Version
}

func kindName(err error) string {
	switch {
	case errors.Is(err, npm.ErrResolution):
		return OutcomeResolution
	case errors.Is(err, npm.ErrFetch):
		return OutcomeFetch
	case errors.Is(err, tarball.ErrFormat):
		return OutcomeFormat
	default:
		return OutcomeError
	}
}

func outcome(r Result) string {
	switch {
	case r.Failed():
		return kindName(r.Err)
	case r.Version == VersionUnknown:
		return OutcomeUnknown
	default:
		return OutcomeOK
	}
}
