package npm

import (
	"strings"

	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// DefaultVersion is the dist-tag used when a descriptor names no version
const DefaultVersion = "latest"

// Descriptor identifies one registry package. Scope is stored without the
// leading "@".
type Descriptor struct {
	Scope   string
	Name    string
	Version string
}

// ParseDescriptor accepts name, @scope/name, name@version and
// @scope/name@version.
func ParseDescriptor(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Descriptor{}, xerrors.New("empty package descriptor")
	}

	var d Descriptor
	rest := s
	if strings.HasPrefix(rest, "@") {
		scope, after, ok := strings.Cut(rest[1:], "/")
		if !ok || scope == "" {
			return Descriptor{}, xerrors.Newf("scoped package %q missing name", s)
		}
		d.Scope = scope
		rest = after
	}
	if name, version, ok := strings.Cut(rest, "@"); ok {
		if version == "" {
			return Descriptor{}, xerrors.Newf("package %q has empty version", s)
		}
		rest, d.Version = name, version
	}
	d.Name = rest

	if d.Name == "" || strings.ContainsAny(d.Name, "/\\ \t@") || strings.ContainsAny(d.Scope, "/\\ \t@") ||
		strings.HasPrefix(d.Name, ".") || strings.HasPrefix(d.Scope, ".") {
		return Descriptor{}, xerrors.Newf("invalid package descriptor %q", s)
	}
	if strings.ContainsAny(d.Version, " \t/") {
		return Descriptor{}, xerrors.Newf("invalid version in %q", s)
	}
	if d.Version == "" {
		d.Version = DefaultVersion
	}
	return d, nil
}

// MustParse is ParseDescriptor for literals, it panics on error.
func MustParse(s string) Descriptor {
	d, err := ParseDescriptor(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FullName is the registry name, "@scope/name" or "name".
func (d Descriptor) FullName() string {
	if d.Scope == "" {
		return d.Name
	}
	return "@" + d.Scope + "/" + d.Name
}

func (d Descriptor) String() string {
	v := d.Version
	if v == "" {
		v = DefaultVersion
	}
	return d.FullName() + "@" + v
}
