package archive

import (
	"errors"
	"fmt"
)

var (
	ErrMissingManifest = errors.New("missing content-type manifest")
	ErrUnsafePath      = errors.New("entry path escapes the working area")
	ErrDuplicateEntry  = errors.New("duplicate entry")
	ErrReadOnly        = errors.New("part is read-only")
	ErrDangling        = errors.New("dangling relationship")
	ErrUnregistered    = errors.New("part not registered in manifest")
	ErrClosed          = errors.New("workspace closed")
)

// ArchiveError reports a malformed or inconsistent container. It is always
// fatal to the run.
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// NotFoundError reports a part path absent from the workspace.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("part not found: %s", e.Path)
}
