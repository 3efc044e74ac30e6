// Package manifest loads the list of packages to bundle and the library
// table from an inline list, a TOML file or an SSM parameter.
package manifest

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/pelletier/go-toml/v2"

	"github.com/keithlinneman/linnemanlabs-starter/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-starter/internal/npm"
	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// Manifest is what a Builder is configured from. Nil Libraries means the
// defaults.
type Manifest struct {
	Packages  []npm.Descriptor
	Libraries []bundle.Library
	// Source describes where the manifest came from, for logs
	Source string
}

type fileDoc struct {
	Package []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Library []bundle.Library `toml:"library"`
}

// ParseList parses a comma or whitespace separated descriptor list.
func ParseList(s string) ([]npm.Descriptor, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	out := make([]npm.Descriptor, 0, len(fields))
	for _, f := range fields {
		d, err := npm.ParseDescriptor(f)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := checkPackages(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode reads a TOML manifest:
//
//	[[package]]
//	name = "p5"
//	version = "1.9.0"
//
//	[[library]]
//	module = "p5"
//	path = "lib/p5.min.js"
//	enabled = true
func Decode(r io.Reader) (Manifest, error) {
	var doc fileDoc
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&doc); err != nil {
		return Manifest{}, xerrors.Wrap(err, "parse manifest")
	}

	var m Manifest
	for i, p := range doc.Package {
		d, err := npm.ParseDescriptor(p.Name)
		if err != nil {
			return Manifest{}, xerrors.Wrapf(err, "package %d", i)
		}
		if v := strings.TrimSpace(p.Version); v != "" {
			d.Version = v
		}
		m.Packages = append(m.Packages, d)
	}
	if err := checkPackages(m.Packages); err != nil {
		return Manifest{}, err
	}
	if len(doc.Library) > 0 {
		if err := bundle.ValidateLibraries(doc.Library); err != nil {
			return Manifest{}, xerrors.Wrap(err, "manifest libraries")
		}
		m.Libraries = doc.Library
	}
	return m, nil
}

// LoadFile decodes the TOML manifest at path.
func LoadFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, xerrors.Wrapf(err, "open manifest %s", path)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return Manifest{}, xerrors.Wrapf(err, "manifest %s", path)
	}
	m.Source = "file:" + path
	return m, nil
}

// ParameterGetter is the part of the SSM client the loader uses.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads a manifest from a parameter holding either a TOML document
// or a plain descriptor list.
type SSMSource struct {
	client ParameterGetter
	name   string
}

func NewSSMSource(client ParameterGetter, name string) (*SSMSource, error) {
	if client == nil {
		return nil, xerrors.New("ssm client is required")
	}
	if name == "" {
		return nil, xerrors.New("ssm parameter name is required")
	}
	return &SSMSource{client: client, name: name}, nil
}

// Load fetches and parses the parameter.
func (s *SSMSource) Load(ctx context.Context) (Manifest, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Manifest{}, xerrors.Wrapf(err, "get SSM parameter %s", s.name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return Manifest{}, xerrors.Newf("SSM parameter %s has no value", s.name)
	}
	val := strings.TrimSpace(*out.Parameter.Value)
	if val == "" {
		return Manifest{}, xerrors.Newf("SSM parameter %s is empty", s.name)
	}

	var m Manifest
	if strings.Contains(val, "[[") {
		m, err = Decode(bytes.NewReader([]byte(val)))
	} else {
		m.Packages, err = ParseList(val)
	}
	if err != nil {
		return Manifest{}, xerrors.Wrapf(err, "SSM parameter %s", s.name)
	}
	m.Source = "ssm:" + s.name
	return m, nil
}

// Sources names every place a manifest may come from. The first set one
// wins: File, then SSMParam, then Inline.
type Sources struct {
	File     string
	SSMParam string
	Inline   string
}

// Load resolves srcs. ssmClient is only used when SSMParam is set and may be
// nil otherwise.
func Load(ctx context.Context, srcs Sources, ssmClient ParameterGetter) (Manifest, error) {
	switch {
	case srcs.File != "":
		return LoadFile(srcs.File)
	case srcs.SSMParam != "":
		src, err := NewSSMSource(ssmClient, srcs.SSMParam)
		if err != nil {
			return Manifest{}, err
		}
		return src.Load(ctx)
	default:
		pkgs, err := ParseList(srcs.Inline)
		if err != nil {
			return Manifest{}, err
		}
		return Manifest{Packages: pkgs, Source: "inline"}, nil
	}
}

func checkPackages(pkgs []npm.Descriptor) error {
	if len(pkgs) == 0 {
		return xerrors.New("manifest lists no packages")
	}
	seen := make(map[string]bool, len(pkgs))
	for _, d := range pkgs {
		name := d.FullName()
		if seen[name] {
			return xerrors.Newf("package %s listed twice", name)
		}
		seen[name] = true
	}
	return nil
}
