// Package bundlehttp serves starter bundles over HTTP.
package bundlehttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-starter/internal/archivestore"
	"github.com/keithlinneman/linnemanlabs-starter/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
	"github.com/keithlinneman/linnemanlabs-starter/internal/npm"
	"github.com/keithlinneman/linnemanlabs-starter/internal/ziparchive"
)

// Builder produces bundles. *bundle.Builder satisfies it.
type Builder interface {
	Build(ctx context.Context, m bundle.Mode) (*bundle.Bundle, error)
	Packages() []npm.Descriptor
	Libraries() []bundle.Library
}

// Publisher stores a copy of each served archive. *archivestore.S3Publisher
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, obj archivestore.Object) (string, error)
}

// PublishObserver is told how each publish attempt went.
type PublishObserver interface {
	ObservePublish(ok bool)
}

// API implements the bundle endpoints
type API struct {
	builder   Builder
	logger    log.Logger
	publisher Publisher
	observer  PublishObserver

	publishTimeout time.Duration
	wg             sync.WaitGroup
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the fallback logger for requests without one in context.
func WithLogger(l log.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPublisher uploads every archive after it has been served.
func WithPublisher(p Publisher) Option {
	return func(a *API) { a.publisher = p }
}

// WithPublishObserver is told the outcome of every upload.
func WithPublishObserver(o PublishObserver) Option {
	return func(a *API) { a.observer = o }
}

// WithPublishTimeout bounds each upload, default 30s.
func WithPublishTimeout(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.publishTimeout = d
		}
	}
}

// NewAPI serves archives built by b.
func NewAPI(b Builder, opts ...Option) *API {
	a := &API{builder: b, logger: log.Nop(), publishTimeout: 30 * time.Second}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches the bundle endpoints. bundleMW wraps only the
// archive endpoint, typically with the rate limiter.
func (a *API) RegisterRoutes(r chi.Router, bundleMW ...func(http.Handler) http.Handler) {
	r.With(bundleMW...).Get("/api/package", a.HandlePackage)
	r.Get("/api/packages", a.HandlePackages)
}

// ModeFromQuery maps ?minimal=true to Minimal. Any other value, or none,
// selects Full.
func ModeFromQuery(r *http.Request) bundle.Mode {
	if r.URL.Query().Get("minimal") == "true" {
		return bundle.Minimal
	}
	return bundle.Full
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandlePackage builds and streams the starter archive.
func (a *API) HandlePackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := ModeFromQuery(r)

	b, err := a.builder.Build(ctx, m)
	if err != nil {
		msg := "internal error"
		if errors.Is(err, ziparchive.ErrAssembly) {
			msg = "archive assembly failed"
		}
		a.log(ctx).Error(ctx, err, "bundle request failed", "mode", m.String())
		a.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: msg})
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", `attachment; filename="`+b.Filename+`"`)
	h.Set("Content-Length", strconv.Itoa(len(b.Data)))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Bundle-Id", b.ID)
	h.Set("X-Bundle-Mode", b.Mode.String())
	if len(b.Degraded) > 0 {
		h.Set("X-Bundle-Degraded", strings.Join(b.Degraded, ","))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b.Data); err != nil {
		a.log(ctx).Warn(ctx, "client went away during download", "bundle_id", b.ID, "error", err)
	}

	a.publish(ctx, b)
}

// publish runs in the background so the download is not held up. Failures
// are logged and counted, never surfaced to the client.
func (a *API) publish(ctx context.Context, b *bundle.Bundle) {
	if a.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	lg := a.log(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, a.publishTimeout)
		defer cancel()

		loc, err := a.publisher.Publish(ctx, archivestore.Object{
			Filename: b.Filename,
			Data:     b.Data,
			Metadata: map[string]string{
				"bundle-id": b.ID,
				"mode":      b.Mode.String(),
				"degraded":  strings.Join(b.Degraded, ","),
			},
		})
		if a.observer != nil {
			a.observer.ObservePublish(err == nil)
		}
		if err != nil {
			lg.Error(ctx, err, "archive publish failed", "bundle_id", b.ID)
			return
		}
		lg.Info(ctx, "archive published", "bundle_id", b.ID, "location", loc)
	}()
}

func (a *API) log(ctx context.Context) log.Logger {
	return log.FromContextOr(ctx, a.logger)
}

// Wait blocks until background publishes have finished.
func (a *API) Wait() { a.wg.Wait() }

// PackagesResponse describes what a bundle will contain.
type PackagesResponse struct {
	Packages  []PackageInfo    `json:"packages"`
	Libraries []bundle.Library `json:"libraries"`
}

// PackageInfo is one configured package. Version is "latest" when unpinned.
type PackageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HandlePackages lists the configured packages and libraries.
func (a *API) HandlePackages(w http.ResponseWriter, r *http.Request) {
	resp := PackagesResponse{Libraries: a.builder.Libraries()}
	for _, d := range a.builder.Packages() {
		resp.Packages = append(resp.Packages, PackageInfo{Name: d.FullName(), Version: d.Version})
	}
	a.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (a *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log(ctx).Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
