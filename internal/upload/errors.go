package upload

import (
	"errors"
	"fmt"
)

// Kind classifies upload failures for the transport layer.
type Kind int

const (
	// BadInput failures are detected before anything is persisted.
	BadInput Kind = iota + 1
	// InvalidArchive failures remove the persisted archive.
	InvalidArchive
	// ServerError covers failures after the archive has been committed.
	ServerError
)

func (k Kind) String() string {
	switch k {
	case BadInput:
		return "bad_input"
	case InvalidArchive:
		return "invalid_archive"
	case ServerError:
		return "server_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrNoFile     = errors.New("no file provided")
	ErrNoFilename = errors.New("no file selected")
	ErrFileType   = errors.New("invalid file type")
	ErrTooLarge   = errors.New("file too large")
)

// Error carries the failure kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind recorded in err, or ServerError for errors that
// did not originate in this package.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ServerError
}
