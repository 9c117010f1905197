// SPDX-License-Identifier: MIT

// Package pipeline defines the error taxonomy shared by every stage, so
// a worker can decide whether a failure is recoverable (downgrade to
// recompute) or fatal (abort the tile).
package pipeline

import "fmt"

// Kind classifies a stage error per SPEC_FULL.md / spec.md §7.
type Kind int

const (
	// InvalidInput covers bad magic, wrong version, missing sidecars,
	// malformed DXF.
	InvalidInput Kind = iota
	// Io covers filesystem failures and interrupted reads.
	Io
	// Stale is a version mismatch on a binary artifact; treated like
	// InvalidInput, but reported separately so operators know to
	// remove the file or bypass the cache instead of inspecting content.
	Stale
	// Invariant is fatal: a NaN escaped heightmap synthesis, or a
	// bounds invariant was violated.
	Invariant
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case Io:
		return "io"
	case Stale:
		return "stale"
	case Invariant:
		return "invariant violated"
	default:
		return "unknown"
	}
}

// Error wraps a stage failure with its kind and the artifact it was
// working on, so the worker's top-level log line can name both without
// every call site formatting its own message.
type Error struct {
	Kind     Kind
	Artifact string
	Err      error
}

func (e *Error) Error() string {
	if e.Artifact != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Artifact, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error of the given kind around err, naming the
// artifact that the stage was reading or writing when it failed.
func Wrap(kind Kind, artifact string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Artifact: artifact, Err: err}
}
