package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	EnablePprof bool

	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	// package sources, first non-empty wins: file, ssm param, inline list
	Packages         string
	PackagesFile     string
	PackagesSSMParam string

	RegistryURL     string
	FetchTimeout    time.Duration
	MaxTarballBytes int64
	Concurrency     int

	ArchivePrefix string
	PageTitle     string

	ArchiveS3Bucket string
	ArchiveS3Prefix string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")

	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.Packages, "packages", "p5,@ff6347/p5-easing", "comma separated packages to bundle (name, @scope/name, optional @version)")
	fs.StringVar(&c.PackagesFile, "packages-file", "", "TOML manifest with [[package]] and [[library]] tables, overrides -packages")
	fs.StringVar(&c.PackagesSSMParam, "packages-ssm-param", "", "ssm parameter holding the comma separated package list, overrides -packages")

	fs.StringVar(&c.RegistryURL, "registry-url", "https://registry.npmjs.org", "npm registry base url")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", 15*time.Second, "timeout for each registry metadata or tarball request")
	fs.Int64Var(&c.MaxTarballBytes, "max-tarball-bytes", 50*1024*1024, "maximum size of a downloaded package tarball")
	fs.IntVar(&c.Concurrency, "concurrency", 0, "max packages extracted at once (0 = all at once)")

	fs.StringVar(&c.ArchivePrefix, "archive-prefix", "p5-starter", "download filename prefix")
	fs.StringVar(&c.PageTitle, "page-title", "p5.js Starter Project", "title of the generated index.html")

	fs.StringVar(&c.ArchiveS3Bucket, "archive-s3-bucket", "", "if set, every assembled archive is also uploaded to this bucket")
	fs.StringVar(&c.ArchiveS3Prefix, "archive-s3-prefix", "starter/bundles", "s3 key prefix for uploaded archives")

	fs.Float64Var(&c.RateLimitPerSecond, "rate-limit-rps", 1, "bundle requests per second per client ip")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 5, "bundle request burst per client ip")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvKey maps a flag name to its environment variable
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if err := validateHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if strings.TrimSpace(c.Packages) == "" && c.PackagesFile == "" && c.PackagesSSMParam == "" {
		errs = append(errs, fmt.Errorf("one of PACKAGES, PACKAGES_FILE or PACKAGES_SSM_PARAM is required"))
	}
	if u, err := url.Parse(c.RegistryURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("REGISTRY_URL must be an http(s) URL (got %q)", c.RegistryURL))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive (got %s)", c.FetchTimeout))
	}
	if c.MaxTarballBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_TARBALL_BYTES must be positive (got %d)", c.MaxTarballBytes))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("CONCURRENCY must be >= 0 (got %d)", c.Concurrency))
	}
	if c.ArchivePrefix == "" || strings.ContainsAny(c.ArchivePrefix, `/\"`) {
		errs = append(errs, fmt.Errorf("ARCHIVE_PREFIX must be non-empty without slashes or quotes (got %q)", c.ArchivePrefix))
	}
	if c.ArchiveS3Bucket != "" && strings.Contains(c.ArchiveS3Bucket, "/") {
		errs = append(errs, fmt.Errorf("ARCHIVE_S3_BUCKET must be a bucket name, not a path (got %q)", c.ArchiveS3Bucket))
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be > 0 and RATE_LIMIT_BURST >= 1 (got %.2f, %d)", c.RateLimitPerSecond, c.RateLimitBurst))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateHostPort rejects URLs, which SplitHostPort alone accepts
// ("http://x" splits into host "http" and port "//x").
func validateHostPort(s string) error {
	if strings.Contains(s, "://") {
		return errors.New("scheme not allowed")
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
