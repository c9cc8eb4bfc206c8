// Package errs defines the error taxonomy shared by hashkit, renamerule,
// hashindex, config and the orchestrator. Each type carries the fields a
// caller needs to log or react to; none wrap a third-party error library.
package errs

import (
	"fmt"
	"time"
)

// UnsupportedAlgorithm is returned by hashkit.New for an unknown algorithm id.
type UnsupportedAlgorithm struct {
	Algo string
}

func (e *UnsupportedAlgorithm) Error() string {
	return fmt.Sprintf("unsupported hash algorithm: %q", e.Algo)
}

// InvalidIndex is returned by hashindex when an on-disk CSV's header columns
// don't match the expected path,size,mtime,<algo> shape.
type InvalidIndex struct {
	Path   string
	Reason string
}

func (e *InvalidIndex) Error() string {
	return fmt.Sprintf("invalid hash index %q: %s", e.Path, e.Reason)
}

// InvalidConfig is fatal at construction; the orchestrator exits nonzero.
type InvalidConfig struct {
	Field  string
	Reason string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Reason)
}

// MalformedMeta is returned by renamerule when a MetaRecord fails a
// precondition (missing extension, missing title on a non-torrent kind).
type MalformedMeta struct {
	Path   string
	Reason string
}

func (e *MalformedMeta) Error() string {
	return fmt.Sprintf("malformed metadata for %q: %s", e.Path, e.Reason)
}

// CorruptEvent describes an event of unknown kind. The ingestor does not
// construct it: it logs every unknown-kind event it receives (each
// occurrence, not once per kind), acks it and drops it.
type CorruptEvent struct {
	Kind string
}

func (e *CorruptEvent) Error() string {
	return fmt.Sprintf("corrupt or unknown event kind: %q", e.Kind)
}

// NoLeader is the orchestrator's startup precondition failure: no leader
// info became available before the configured timeout.
type NoLeader struct {
	Waited time.Duration
}

func (e *NoLeader) Error() string {
	return fmt.Sprintf("no leader info available after waiting %s", e.Waited)
}
