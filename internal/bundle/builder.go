package bundle

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/linnemanlabs-starter/internal/extract"
	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
	"github.com/keithlinneman/linnemanlabs-starter/internal/npm"
	"github.com/keithlinneman/linnemanlabs-starter/internal/webassets"
	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
	"github.com/keithlinneman/linnemanlabs-starter/internal/ziparchive"
)

// DefaultPrefix starts every archive file name
const DefaultPrefix = "p5-starter"

// Extractor turns one descriptor into a Result and never fails.
// *extract.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, d npm.Descriptor) extract.Result
}

// Observer receives one call per finished bundle.
type Observer interface {
	ObserveBundle(mode string, degraded bool, seconds float64, bytes int)
}

// Config is fixed for the life of a Builder.
type Config struct {
	Packages  []npm.Descriptor
	Libraries []Library
	// Concurrency caps simultaneous extractions, 0 runs all at once
	Concurrency int
	Prefix      string
	Title       string
}

// Module summarizes one package in a built bundle.
type Module struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Files   int    `json:"files"`
	Error   string `json:"error,omitempty"`
}

// Bundle is a finished archive.
type Bundle struct {
	ID        string
	Mode      Mode
	Filename  string
	Data      []byte
	Entries   []string
	Modules   []Module
	Degraded  []string
	CreatedAt time.Time
}

// Builder is safe for concurrent use.
type Builder struct {
	ex       Extractor
	cfg      Config
	logger   log.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the build logger, nil keeps the nop logger.
func WithLogger(l log.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithObserver reports every finished build to o.
func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// WithClock replaces time.Now for file names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDFunc replaces the random build id generator.
func WithIDFunc(f func() string) Option {
	return func(b *Builder) {
		if f != nil {
			b.newID = f
		}
	}
}

// NewBuilder validates cfg and fills defaults.
func NewBuilder(ex Extractor, cfg Config, opts ...Option) (*Builder, error) {
	if ex == nil {
		return nil, xerrors.New("bundle: extractor is required")
	}
	if len(cfg.Packages) == 0 {
		return nil, xerrors.New("bundle: at least one package is required")
	}
	if cfg.Libraries == nil {
		cfg.Libraries = DefaultLibraries()
	}
	if err := ValidateLibraries(cfg.Libraries); err != nil {
		return nil, xerrors.Wrap(err, "bundle")
	}
	if cfg.Concurrency < 0 {
		return nil, xerrors.Newf("bundle: negative concurrency %d", cfg.Concurrency)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Title == "" {
		cfg.Title = webassets.DefaultTitle
	}
	cfg.Packages = append([]npm.Descriptor(nil), cfg.Packages...)
	cfg.Libraries = append([]Library(nil), cfg.Libraries...)

	b := &Builder{
		ex:     ex,
		cfg:    cfg,
		logger: log.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Packages returns a copy of the configured descriptors.
func (b *Builder) Packages() []npm.Descriptor {
	return append([]npm.Descriptor(nil), b.cfg.Packages...)
}

// Libraries returns a copy of the library table.
func (b *Builder) Libraries() []Library {
	return append([]Library(nil), b.cfg.Libraries...)
}

// Filename is the download name of an archive built at t.
func (b *Builder) Filename(m Mode, t time.Time) string {
	return fmt.Sprintf("%s-%d-%s.zip", b.cfg.Prefix, t.UnixMilli(), m)
}

// Build extracts all packages and assembles the archive. Package failures
// degrade the bundle but never fail it, the only error is ErrAssembly.
// Cancelling ctx does not stop extractions already started.
func (b *Builder) Build(ctx context.Context, m Mode) (*Bundle, error) {
	start := b.now()
	id := b.newID()
	lg := b.logger.With("bundle_id", id, "mode", m.String())

	results := b.extractAll(ctx)

	arc, err := b.Assemble(m, results)
	if err != nil {
		lg.Error(ctx, err, "bundle assembly failed")
		return nil, err
	}
	data, err := arc.Bytes()
	if err != nil {
		lg.Error(ctx, err, "bundle serialization failed")
		return nil, err
	}

	out := &Bundle{
		ID:        id,
		Mode:      m,
		Filename:  b.Filename(m, start),
		Data:      data,
		Entries:   arc.Paths(),
		CreatedAt: start,
	}
	for _, r := range results {
		mod := Module{Name: r.Name, Version: r.Version, Files: len(r.Files)}
		if r.Failed() {
			out.Degraded = append(out.Degraded, r.Name)
			if r.Err != nil {
				mod.Error = r.Err.Error()
			}
		}
		out.Modules = append(out.Modules, mod)
	}

	elapsed := b.now().Sub(start)
	if len(out.Degraded) > 0 {
		lg.Warn(ctx, "bundle built with failed packages", "failed", out.Degraded)
	}
	lg.Info(ctx, "bundle built",
		"filename", out.Filename,
		"entries", len(out.Entries),
		"bytes", len(out.Data),
		"duration_ms", elapsed.Milliseconds(),
	)
	if b.observer != nil {
		b.observer.ObserveBundle(m.String(), len(out.Degraded) > 0, elapsed.Seconds(), len(out.Data))
	}
	return out, nil
}

// extractAll runs every extraction and waits for all of them. Each task
// writes only its own slot.
func (b *Builder) extractAll(ctx context.Context) []extract.Result {
	ctx = context.WithoutCancel(ctx)
	results := make([]extract.Result, len(b.cfg.Packages))

	var g errgroup.Group
	if b.cfg.Concurrency > 0 {
		g.SetLimit(b.cfg.Concurrency)
	}
	for i, d := range b.cfg.Packages {
		g.Go(func() error {
			results[i] = b.ex.Extract(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Assemble lays results out for m. Results are read only.
func (b *Builder) Assemble(m Mode, results []extract.Result) (*ziparchive.Archive, error) {
	layout := LayoutFor(m, b.cfg.Libraries)
	arc := ziparchive.New()

	if layout.EditorFiles() {
		for _, f := range webassets.EditorFiles() {
			arc.Add(f.Path, f.Data)
		}
	}

	page := webassets.IndexPage{Title: b.cfg.Title}
	for _, lib := range b.cfg.Libraries {
		page.Scripts = append(page.Scripts, webassets.Script{Src: layout.ScriptRef(lib), Enabled: lib.Enabled})
	}
	html, err := webassets.RenderIndex(page)
	if err != nil {
		return nil, xerrors.Mark(ziparchive.ErrAssembly, err)
	}
	arc.Add("index.html", html)
	arc.Add("index.js", webassets.IndexJS())

	if skipped := placeModules(arc, layout, results); len(skipped) > 0 {
		b.logger.Warn(context.Background(), "skipped package files with unusable archive paths",
			"mode", m.String(), "count", len(skipped), "paths", skipped)
	}
	return arc, nil
}

// ranker settles which file keeps a destination several files map to.
type ranker interface {
	rank(module, file, dest string) int
}

// placeModules copies module files to their layout paths. When several files
// land on one path the highest ranked wins, ties keep the first in module then
// path order. Without a ranker an exact base name match wins. Destinations the
// archive would refuse are skipped and returned.
func placeModules(arc *ziparchive.Archive, layout Layout, results []extract.Result) []string {
	rk, _ := layout.(ranker)
	claimed := make(map[string]int)
	var skipped []string
	for _, r := range results {
		for _, p := range r.Files.Paths() {
			dest, ok := layout.Place(r.Name, p)
			if !ok {
				continue
			}
			if !ziparchive.ValidName(dest) {
				skipped = append(skipped, dest)
				continue
			}
			score := 0
			if rk != nil {
				score = rk.rank(r.Name, p, dest)
			} else if path.Base(p) == path.Base(dest) {
				score = 2
			}
			if prev, taken := claimed[dest]; taken && score <= prev {
				continue
			}
			claimed[dest] = score
			arc.Add(dest, r.Files[p])
		}
	}
	return skipped
}
