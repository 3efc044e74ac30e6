// Package npm resolves package descriptors against an npm compatible
// registry and downloads their tarballs.
package npm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-starter/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

const (
	// DefaultRegistry is the public npm registry
	DefaultRegistry = "https://registry.npmjs.org"

	defaultTimeout = 15 * time.Second

	defaultMaxTarball int64 = 50 * 1024 * 1024 // 50MB

	// metadata documents for a single version are small
	maxMetadataSize int64 = 4 * 1024 * 1024
)

var (
	// ErrResolution marks a failed metadata lookup or a document without a tarball
	ErrResolution = xerrors.New("package resolution failed")
	// ErrFetch marks a failed, oversized or corrupt tarball download
	ErrFetch = xerrors.New("package fetch failed")
)

// Dist is the download information for one resolved version.
type Dist struct {
	Version   string
	Tarball   string
	Shasum    string
	Integrity string
}

type versionDoc struct {
	Version string `json:"version"`
	Dist    struct {
		Tarball   string `json:"tarball"`
		Shasum    string `json:"shasum"`
		Integrity string `json:"integrity"`
	} `json:"dist"`
}

// Client talks to one registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxTarball int64
	verify     bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default traced HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds each metadata and tarball request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxTarballBytes caps the size of a downloaded tarball.
func WithMaxTarballBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTarball = n
		}
	}
}

// WithIntegrityCheck toggles verification of dist.integrity / dist.shasum.
func WithIntegrityCheck(on bool) Option {
	return func(c *Client) { c.verify = on }
}

// New creates a registry client. An empty baseURL selects DefaultRegistry.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultRegistry
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, xerrors.Newf("registry url must be http(s): %q", baseURL)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:    defaultTimeout,
		maxTarball: defaultMaxTarball,
		verify:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MetadataURL is the per-version document for d.
func (c *Client) MetadataURL(d Descriptor) string {
	v := d.Version
	if v == "" {
		v = DefaultVersion
	}
	return c.baseURL + "/" + d.FullName() + "/" + v
}

// Resolve looks up the tarball location of d. Every failure is marked
// ErrResolution.
func (c *Client) Resolve(ctx context.Context, d Descriptor) (Dist, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.MetadataURL(d)
	body, status, err := c.get(ctx, u, maxMetadataSize)
	if err != nil {
		return Dist{}, xerrors.Mark(ErrResolution, xerrors.Wrapf(err, "get %s", u))
	}
	if status < 200 || status > 299 {
		return Dist{}, xerrors.Markf(ErrResolution, "get %s: status %d", u, status)
	}

	var doc versionDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return Dist{}, xerrors.Mark(ErrResolution, xerrors.Wrapf(err, "decode metadata for %s", d.FullName()))
	}
	if doc.Dist.Tarball == "" {
		return Dist{}, xerrors.Markf(ErrResolution, "metadata for %s has no dist.tarball", d.FullName())
	}
	return Dist{
		Version:   doc.Version,
		Tarball:   doc.Dist.Tarball,
		Shasum:    doc.Dist.Shasum,
		Integrity: doc.Dist.Integrity,
	}, nil
}

// Fetch downloads the tarball named by dist and, unless disabled, checks it
// against the published digests. Every failure is marked ErrFetch.
func (c *Client) Fetch(ctx context.Context, dist Dist) ([]byte, error) {
	if dist.Tarball == "" {
		return nil, xerrors.Markf(ErrFetch, "empty tarball url")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, status, err := c.get(ctx, dist.Tarball, c.maxTarball)
	if err != nil {
		return nil, xerrors.Mark(ErrFetch, xerrors.Wrapf(err, "get %s", dist.Tarball))
	}
	if status < 200 || status > 299 {
		return nil, xerrors.Markf(ErrFetch, "get %s: status %d", dist.Tarball, status)
	}
	if c.verify {
		if err := cryptoutil.Verify(body, dist.Integrity, dist.Shasum); err != nil {
			return nil, xerrors.Mark(ErrFetch, xerrors.Wrapf(err, "verify %s", dist.Tarball))
		}
	}
	return body, nil
}

// get reads at most limit bytes of the response body. The body is only read
// for 2xx responses.
func (c *Client) get(ctx context.Context, url string, limit int64) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, xerrors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json, application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, resp.StatusCode, xerrors.Wrap(err, "read body")
	}
	if int64(len(data)) > limit {
		return nil, resp.StatusCode, xerrors.Newf("response exceeds max size (limit %d)", limit)
	}
	return data, resp.StatusCode, nil
}
