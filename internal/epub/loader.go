package epub

import (
	"archive/zip"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dshills/quire/internal/corpus"
)

// ProgressFunc is invoked once per manifest entry during Load.
type ProgressFunc func(index, total int, label string)

// Text-like manifest extensions decoded into the corpus.
var textExtensions = map[string]struct{}{
	".html": {}, ".xhtml": {}, ".xml": {}, ".opf": {},
	".ncx": {}, ".css": {}, ".js": {}, ".txt": {},
}

// Classification patterns for Structure.
var (
	imageExtRe = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|svg|webp)$`)
	fontExtRe  = regexp.MustCompile(`(?i)\.(ttf|otf|woff|woff2)$`)
)

// Loader opens an archive, parses its container descriptor and package
// document, and decodes text members into the content store.
//
// State moves Unopened -> Validated -> Parsed -> Loaded, or Failed at
// any stage. A failed load never exposes a partial corpus: the store is
// reset before returning.
type Loader struct {
	mu    sync.RWMutex
	store *corpus.Store

	state     State
	path      string
	manifest  map[string]string
	spine     []string
	metadata  map[string][]MetaEntry
	structure map[string][]string
}

// NewLoader creates a loader feeding the given store.
func NewLoader(store *corpus.Store) *Loader {
	return &Loader{store: store, state: StateUnopened}
}

// Validate checks that path names a well-formed package archive: the
// .epub extension, an openable zip, the mimetype entry first and stored
// with exact bytes, and the container descriptor at its fixed path.
func (l *Loader) Validate(archivePath string) error {
	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	if !strings.EqualFold(filepath.Ext(archivePath), Extension) {
		return ErrBadExtension
	}
	if err := ValidateArchive(archivePath); err != nil {
		return err
	}

	l.mu.Lock()
	if l.state == StateUnopened {
		l.state = StateValidated
	}
	l.mu.Unlock()
	return nil
}

// Load re-validates, parses the container descriptor and package
// document, and decodes every text-like manifest member into the store.
// Members missing from the archive or undecodable are skipped silently;
// binary members are not loaded. Any zip or XML failure fails the whole
// load. progress, when non-nil, is called once per manifest entry.
func (l *Loader) Load(archivePath string, progress ProgressFunc) error {
	if err := l.Validate(archivePath); err != nil {
		return l.fail(err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return l.fail(fmt.Errorf("%w: %v", ErrBadArchive, err))
	}
	defer zr.Close()

	container, ok := findEntry(&zr.Reader, ContainerPath)
	if !ok {
		return l.fail(ErrNoContainer)
	}
	containerData, err := readEntry(container)
	if err != nil {
		return l.fail(fmt.Errorf("%w: %v", ErrBadArchive, err))
	}
	opfPath, err := parseContainer(containerData)
	if err != nil {
		return l.fail(fmt.Errorf("parsing container descriptor: %w", err))
	}

	opfEntry, ok := findEntry(&zr.Reader, normalizeName(opfPath))
	if !ok {
		return l.fail(ErrNoPackageDoc)
	}
	opfData, err := readEntry(opfEntry)
	if err != nil {
		return l.fail(fmt.Errorf("%w: %v", ErrBadArchive, err))
	}
	doc, err := parseOPF(opfData)
	if err != nil {
		return l.fail(fmt.Errorf("parsing package document: %w", err))
	}

	opfDir := path.Dir(normalizeName(opfPath))

	manifest := make(map[string]string, len(doc.Manifest.Items))
	for _, item := range doc.Manifest.Items {
		if item.ID != "" && item.Href != "" {
			manifest[item.ID] = item.Href
		}
	}

	var spine []string
	for _, ref := range doc.Spine.Itemrefs {
		if href, ok := manifest[ref.IDRef]; ok {
			spine = append(spine, joinMember(opfDir, href))
		}
	}

	l.mu.Lock()
	l.state = StateParsed
	l.path = archivePath
	l.manifest = manifest
	l.spine = spine
	l.metadata = doc.Metadata.entries
	l.mu.Unlock()

	l.store.Reset()

	total := len(doc.Manifest.Items)
	for i, item := range doc.Manifest.Items {
		member := joinMember(opfDir, item.Href)
		if progress != nil {
			progress(i, total, "Loading "+member)
		}

		if !isTextMember(item.Href) {
			continue
		}
		entry, ok := findEntry(&zr.Reader, member)
		if !ok {
			continue // manifest entry absent from the archive
		}
		data, err := readEntry(entry)
		if err != nil {
			return l.fail(fmt.Errorf("%w: %v", ErrBadArchive, err))
		}
		text, err := DecodeText(data)
		if err != nil {
			continue // undecodable member
		}
		l.store.Add(member, text)
	}

	l.mu.Lock()
	l.structure = classify(l.store.Paths())
	l.state = StateLoaded
	l.mu.Unlock()
	return nil
}

// Manifest returns the id to href mapping parsed from the package
// document. Immutable after load.
func (l *Loader) Manifest() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string, len(l.manifest))
	for k, v := range l.manifest {
		out[k] = v
	}
	return out
}

// Spine returns the reading-order member paths.
func (l *Loader) Spine() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.spine))
	copy(out, l.spine)
	return out
}

// Metadata returns the parsed metadata entries keyed by tag.
func (l *Loader) Metadata() map[string][]MetaEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string][]MetaEntry, len(l.metadata))
	for k, v := range l.metadata {
		out[k] = v
	}
	return out
}

// Structure groups loaded members by extension family for presentation.
func (l *Loader) Structure() map[string][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string][]string, len(l.structure))
	for k, v := range l.structure {
		out[k] = v
	}
	return out
}

// Path returns the archive path of the last load attempt.
func (l *Loader) Path() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// State returns the loader state.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// fail marks the loader failed and guarantees no partial corpus.
func (l *Loader) fail(err error) error {
	l.store.Reset()

	l.mu.Lock()
	l.state = StateFailed
	l.manifest = nil
	l.spine = nil
	l.metadata = nil
	l.structure = nil
	l.mu.Unlock()
	return err
}

// isTextMember reports whether an href names a text-like member.
func isTextMember(href string) bool {
	_, ok := textExtensions[strings.ToLower(path.Ext(href))]
	return ok
}

// joinMember resolves a manifest href against the package document
// directory into a normalized archive member path.
func joinMember(opfDir, href string) string {
	return path.Join(opfDir, normalizeName(href))
}

// classify groups member paths into extension families.
func classify(paths []string) map[string][]string {
	structure := map[string][]string{
		"html": {}, "styles": {}, "metadata": {},
		"images": {}, "fonts": {}, "other": {},
	}
	for _, p := range paths {
		lower := strings.ToLower(p)
		switch {
		case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".xhtml"):
			structure["html"] = append(structure["html"], p)
		case strings.HasSuffix(lower, ".css"):
			structure["styles"] = append(structure["styles"], p)
		case strings.HasSuffix(lower, ".opf"), strings.HasSuffix(lower, ".ncx"):
			structure["metadata"] = append(structure["metadata"], p)
		case imageExtRe.MatchString(p):
			structure["images"] = append(structure["images"], p)
		case fontExtRe.MatchString(p):
			structure["fonts"] = append(structure["fonts"], p)
		default:
			structure["other"] = append(structure["other"], p)
		}
	}
	return structure
}
