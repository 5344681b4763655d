package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"

	"github.com/dshills/quire/internal/corpus"
)

// Default backup policy.
const (
	DefaultBackupDir  = "backups"
	DefaultMaxBackups = 5
)

// Saver serializes the content store back into a package archive. It
// reads the original source archive for structure and untouched bytes;
// the in-memory corpus is never used as a zip source.
type Saver struct {
	store *corpus.Store

	// BackupDir receives timestamped backups before in-place saves.
	// Relative values resolve against the source archive's directory.
	backupDir  string
	maxBackups int
}

// NewSaver creates a saver over the given store. An empty backupDir or
// non-positive maxBackups fall back to the defaults.
func NewSaver(store *corpus.Store, backupDir string, maxBackups int) *Saver {
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	return &Saver{store: store, backupDir: backupDir, maxBackups: maxBackups}
}

// Save writes the corpus back into an archive. An empty outputPath (or
// one equal to sourcePath) saves in place, which mandates a backup when
// createBackup is set; backup creation failure aborts before any write.
// The archive is written to a temp file, structurally validated, then
// atomically moved to the destination. On failure the destination is
// untouched and the temp file discarded. The returned message explains
// the outcome either way.
func (sv *Saver) Save(sourcePath, outputPath string, createBackup bool) (bool, string) {
	if outputPath == "" {
		outputPath = sourcePath
	}
	inPlace := outputPath == sourcePath

	backupNote := "no backup created"
	if inPlace && createBackup {
		backupPath, err := sv.createBackup(sourcePath)
		if err != nil {
			return false, fmt.Sprintf("backup creation failed: %v", err)
		}
		backupNote = "backup at " + backupPath
	}

	if err := sv.writeArchive(sourcePath, outputPath); err != nil {
		return false, fmt.Sprintf("save failed: %v", err)
	}

	if inPlace {
		sv.store.ClearModified()
	}
	return true, "saved successfully; " + backupNote
}

// writeArchive builds the output in a fresh temp directory and replaces
// target atomically.
func (sv *Saver) writeArchive(source, target string) error {
	workDir := filepath.Join(os.TempDir(), "quire-save-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	tempFile := filepath.Join(workDir, filepath.Base(target))
	if err := sv.writeZip(source, tempFile); err != nil {
		return err
	}

	// The loader's structural checks gate the replace: a save that
	// would produce a broken package aborts with the destination
	// untouched.
	if err := ValidateArchive(tempFile); err != nil {
		return fmt.Errorf("post-write validation: %w", err)
	}

	return replaceFile(tempFile, target)
}

// writeZip writes the new archive: the mimetype entry first, stored
// uncompressed with the original's exact bytes, then every other
// original entry in original order, substituting corpus content (UTF-8)
// for paths present in the store and raw original bytes otherwise.
func (sv *Saver) writeZip(source, dest string) error {
	src, err := zip.OpenReader(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer src.Close()

	mimetype, ok := findEntry(&src.Reader, MimetypeEntry)
	if !ok {
		return ErrMimetype
	}
	mimetypeData, err := readEntry(mimetype)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	w, err := zw.CreateHeader(&zip.FileHeader{Name: MimetypeEntry, Method: zip.Store})
	if err != nil {
		return err
	}
	if _, err := w.Write(mimetypeData); err != nil {
		return err
	}

	for _, f := range src.File {
		if f.Name == MimetypeEntry {
			continue
		}

		content, inCorpus := sv.store.Get(normalizeName(f.Name))
		if !inCorpus {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}

		header := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
			Comment:  f.Comment,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

// replaceFile moves src over dest atomically, falling back to an
// adjacent temp copy plus rename when rename crosses devices.
func replaceFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	adjacent := dest + ".tmp"
	if err := copyFile(src, adjacent); err != nil {
		return fmt.Errorf("staging replacement: %w", err)
	}
	if err := os.Rename(adjacent, dest); err != nil {
		os.Remove(adjacent)
		return fmt.Errorf("replacing destination: %w", err)
	}
	return nil
}

// copyFile copies src to dest, preserving nothing but bytes.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
