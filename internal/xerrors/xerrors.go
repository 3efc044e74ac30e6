// Package xerrors adds call-site and stack information to errors and lets
// callers tag an error with a sentinel kind that survives further wrapping.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }
func (w *withStack) IsXerrorsWrapper()   {}

// captureStack skips runtime.Callers, captureStack and `skip` more frames
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func stacked(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip + 1)}
}

// New returns an error with msg and the caller's stack.
func New(msg string) error { return stacked(errors.New(msg), 1) }

// Newf is New with fmt formatting. %w verbs are honored.
func Newf(format string, args ...any) error { return stacked(fmt.Errorf(format, args...), 1) }

// WithStack attaches the caller's stack to err.
func WithStack(err error) error { return stacked(err, 1) }

// EnsureTrace attaches a stack only if no error in the chain carries one yet.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return stacked(err, 1)
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string     { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error     { return w.err }
func (w *wrap) PC() uintptr       { return w.pc }
func (w *wrap) IsXerrorsWrapper() {}

// Wrap prefixes err with msg and records the caller. Wrap(nil, ...) is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

// Wrapf is Wrap with fmt formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// kinded tags a cause with a sentinel kind. errors.Is matches both the kind
// and anything in the cause chain.
type kinded struct {
	kind  error
	cause error
	pc    uintptr
}

func (k *kinded) Error() string {
	if k.cause == nil {
		return k.kind.Error()
	}
	return k.kind.Error() + ": " + k.cause.Error()
}
func (k *kinded) Unwrap() []error {
	if k.cause == nil {
		return []error{k.kind}
	}
	return []error{k.kind, k.cause}
}
func (k *kinded) PC() uintptr       { return k.pc }
func (k *kinded) IsXerrorsWrapper() {}

// Mark tags cause with kind so errors.Is(err, kind) holds. A nil cause yields
// an error that is just the kind plus the caller position. A cause that
// already matches kind is returned as is.
func Mark(kind, cause error) error {
	if kind == nil {
		return cause
	}
	if cause != nil && errors.Is(cause, kind) {
		return cause
	}
	return &kinded{kind: kind, cause: cause, pc: callerPC(1)}
}

// Markf tags a freshly formatted cause with kind.
func Markf(kind error, format string, args ...any) error {
	return &kinded{kind: kind, cause: fmt.Errorf(format, args...), pc: callerPC(1)}
}

// KindOf returns the first of kinds that err matches, or nil.
func KindOf(err error, kinds ...error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
