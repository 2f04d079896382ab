package storage

import (
	"errors"
	"io"
)

// ErrNotExist is returned by Open when nothing is stored under the path.
var ErrNotExist = errors.New("stored file does not exist")

// FileStore keeps payload scripts. Paths returned by Save are opaque keys
// that the same store resolves later.
type FileStore interface {
	Save(name string, reader io.Reader) (path string, size int64, err error)
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
}
