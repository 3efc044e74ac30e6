package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-starter/internal/archivestore"
	"github.com/keithlinneman/linnemanlabs-starter/internal/bundlehttp"
	"github.com/keithlinneman/linnemanlabs-starter/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-starter/internal/health"
	"github.com/keithlinneman/linnemanlabs-starter/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
	"github.com/keithlinneman/linnemanlabs-starter/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-starter/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-starter/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-starter/internal/pipeline"
	"github.com/keithlinneman/linnemanlabs-starter/internal/prof"
	"github.com/keithlinneman/linnemanlabs-starter/internal/ratelimit"
	v "github.com/keithlinneman/linnemanlabs-starter/internal/version"
)

const (
	appName   = "starter"
	component = "server"
	// load balancer health checks need a few intervals to notice the gate
	drainPeriod = 20 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s\n", appName, vi)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "STARTER_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	L, err := log.New(log.Options{
		App:               appName,
		Component:         component,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"registry_url", conf.RegistryURL,
		"packages", conf.Packages,
		"packages_file", conf.PackagesFile,
		"packages_ssm_param", conf.PackagesSSMParam,
		"concurrency", conf.Concurrency,
		"fetch_timeout", conf.FetchTimeout.String(),
		"archive_s3_bucket", conf.ArchiveS3Bucket,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, component, vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName + "." + component,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"version": vi.Version,
			"commit":  vi.Commit,
		},
	})
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	// collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, continuing without export")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	deps := pipeline.Deps{Logger: L, Observer: m}
	var publisher *archivestore.S3Publisher
	if pipeline.NeedsAWS(conf) {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		if conf.PackagesSSMParam != "" {
			deps.SSM = ssm.NewFromConfig(awsCfg)
		}
		if conf.ArchiveS3Bucket != "" {
			publisher, err = archivestore.NewS3Publisher(s3.NewFromConfig(awsCfg), conf.ArchiveS3Bucket, conf.ArchiveS3Prefix)
			if err != nil {
				L.Error(ctx, err, "failed to create archive publisher")
				os.Exit(1)
			}
		}
	}

	builder, _, err := pipeline.Build(ctx, conf, deps)
	if err != nil {
		L.Error(ctx, err, "failed to set up bundle pipeline")
		os.Exit(1)
	}

	apiOpts := []bundlehttp.Option{
		bundlehttp.WithLogger(L),
		bundlehttp.WithPublishObserver(m),
	}
	if publisher != nil {
		apiOpts = append(apiOpts, bundlehttp.WithPublisher(publisher))
	}
	api := bundlehttp.NewAPI(builder, apiOpts...)

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			m.IncRateLimitVisitor()
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)

	var gate health.ShutdownGate
	readiness := gate.Probe()

	// worst case build: every package resolves and fetches at the timeout
	writeTimeout := 4*conf.FetchTimeout + httpserver.DefaultWriteTimeout
	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      func(context.Context, any) { m.IncHttpPanic() },
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes: func(r chi.Router) {
			api.RegisterRoutes(r, limiter.Middleware)
		},
		WriteTimeout: writeTimeout,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}

	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain_period", drainPeriod.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(bg); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	// uploads started by served requests finish before exit
	api.Wait()
	if err := opsHTTPStop(bg); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(bg); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	L.Info(bg, "shutdown complete")
}

func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("dial notify socket: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("write notify socket: %w", err)
	}
	return nil
}
