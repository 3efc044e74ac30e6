// Package pipeline wires configuration into a ready bundle.Builder. The
// server and starterctl share it so both build identical archives.
package pipeline

import (
	"context"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-starter/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-starter/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-starter/internal/extract"
	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
	"github.com/keithlinneman/linnemanlabs-starter/internal/manifest"
	"github.com/keithlinneman/linnemanlabs-starter/internal/npm"
	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// Observer receives both extraction and bundle measurements.
// *metrics.ServerMetrics satisfies it.
type Observer interface {
	extract.Observer
	bundle.Observer
}

type Deps struct {
	Logger   log.Logger
	Observer Observer
	// SSM is required only when the package list lives in parameter store
	SSM manifest.ParameterGetter
	// HTTPClient overrides the registry client, mainly for tests
	HTTPClient *http.Client
}

// NeedsAWS reports whether conf references SSM or S3.
func NeedsAWS(conf cfg.App) bool {
	return conf.PackagesSSMParam != "" || conf.ArchiveS3Bucket != ""
}

// Sources maps the package flags onto manifest sources.
func Sources(conf cfg.App) manifest.Sources {
	return manifest.Sources{
		File:     conf.PackagesFile,
		SSMParam: conf.PackagesSSMParam,
		Inline:   conf.Packages,
	}
}

// Build loads the manifest and assembles registry client, extractor and
// builder from conf.
func Build(ctx context.Context, conf cfg.App, deps Deps) (*bundle.Builder, manifest.Manifest, error) {
	lg := deps.Logger
	if lg == nil {
		lg = log.Nop()
	}

	man, err := manifest.Load(ctx, Sources(conf), deps.SSM)
	if err != nil {
		return nil, manifest.Manifest{}, xerrors.Wrap(err, "load package manifest")
	}
	lg.Info(ctx, "package manifest loaded",
		"source", man.Source,
		"packages", len(man.Packages),
		"libraries", len(man.Libraries),
	)

	npmOpts := []npm.Option{
		npm.WithTimeout(conf.FetchTimeout),
		npm.WithMaxTarballBytes(conf.MaxTarballBytes),
	}
	if deps.HTTPClient != nil {
		npmOpts = append(npmOpts, npm.WithHTTPClient(deps.HTTPClient))
	}
	client, err := npm.New(conf.RegistryURL, npmOpts...)
	if err != nil {
		return nil, man, xerrors.Wrap(err, "create registry client")
	}

	exOpts := []extract.Option{extract.WithLogger(lg.With("component", "extract"))}
	bOpts := []bundle.Option{bundle.WithLogger(lg.With("component", "bundle"))}
	if deps.Observer != nil {
		exOpts = append(exOpts, extract.WithObserver(deps.Observer))
		bOpts = append(bOpts, bundle.WithObserver(deps.Observer))
	}

	b, err := bundle.NewBuilder(extract.New(client, exOpts...), bundle.Config{
		Packages:    man.Packages,
		Libraries:   man.Libraries,
		Concurrency: conf.Concurrency,
		Prefix:      conf.ArchivePrefix,
		Title:       conf.PageTitle,
	}, bOpts...)
	if err != nil {
		return nil, man, xerrors.Wrap(err, "create bundle builder")
	}
	return b, man, nil
}
