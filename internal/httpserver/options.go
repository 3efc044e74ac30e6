package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-starter/internal/health"
	"github.com/keithlinneman/linnemanlabs-starter/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func(ctx context.Context, v any)
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	// APIRoutes mounts the application endpoints on the router
	APIRoutes    func(chi.Router)
	ClientIPOpts httpmw.ClientIPOptions
	// CSP overrides httpmw.APIContentSecurityPolicy
	CSP string

	// WriteTimeout bounds a whole bundle build plus download
	WriteTimeout time.Duration
}
