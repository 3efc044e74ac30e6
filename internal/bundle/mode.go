package bundle

import (
	"strings"

	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// Mode selects the archive layout.
type Mode int

const (
	Full Mode = iota
	Minimal
)

func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case Minimal:
		return "minimal"
	default:
		return "unknown"
	}
}

// ParseMode accepts "full" and "minimal", case-insensitively. Empty is Full.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return Full, nil
	case "minimal":
		return Minimal, nil
	default:
		return Full, xerrors.Newf("unknown bundle mode %q (want full or minimal)", s)
	}
}
