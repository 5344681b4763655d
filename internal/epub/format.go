// Package epub loads and saves EPUB package archives.
//
// An EPUB is a zip whose first entry is literally "mimetype", stored
// uncompressed, containing the package media type. A container
// descriptor at META-INF/container.xml points to the package document
// (OPF), which carries the manifest, spine, and metadata. The loader
// decodes text members into the content store; the saver serializes the
// store back while preserving untouched binary members and the
// structural invariants above.
package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Structural constants of the container format.
const (
	MimetypeEntry = "mimetype"
	MediaType     = "application/epub+zip"
	ContainerPath = "META-INF/container.xml"
	Extension     = ".epub"
)

// Validation errors.
var (
	ErrBadExtension = errors.New("not an .epub file")
	ErrBadArchive   = errors.New("invalid or corrupt archive")
	ErrMimetype     = errors.New("mimetype entry missing, misplaced, compressed, or wrong")
	ErrNoContainer  = errors.New("container descriptor missing")
	ErrNoPackageDoc = errors.New("package document missing")
)

// State tracks loader progress. Loaded and Failed are terminal.
type State int

const (
	StateUnopened State = iota
	StateValidated
	StateParsed
	StateLoaded
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateValidated:
		return "validated"
	case StateParsed:
		return "parsed"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ValidateArchive checks the structural invariants of an open archive:
// a mimetype first entry, stored uncompressed with exact bytes, and the
// container descriptor at its fixed path.
func ValidateArchive(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer zr.Close()

	return validateReader(&zr.Reader)
}

func validateReader(zr *zip.Reader) error {
	if len(zr.File) == 0 {
		return ErrMimetype
	}

	first := zr.File[0]
	if first.Name != MimetypeEntry || first.Method != zip.Store {
		return ErrMimetype
	}

	data, err := readEntry(first)
	if err != nil || !bytes.Equal(data, []byte(MediaType)) {
		return ErrMimetype
	}

	for _, f := range zr.File {
		if normalizeName(f.Name) == ContainerPath {
			return nil
		}
	}
	return ErrNoContainer
}

// readEntry reads one archive member fully.
func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// normalizeName converts archive member names to POSIX-style slashes.
func normalizeName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

// findEntry locates an archive member by normalized name.
func findEntry(zr *zip.Reader, name string) (*zip.File, bool) {
	for _, f := range zr.File {
		if normalizeName(f.Name) == name {
			return f, true
		}
	}
	return nil, false
}
