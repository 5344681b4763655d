package epub

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/quire/internal/corpus"
)

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const testOPF = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator id="author">Jane Doe</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="chap1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="chap2" href="chapter2.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="cover" href="cover.jpg" media-type="image/jpeg"/>
    <item id="ghost" href="missing.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="chap1"/>
    <itemref idref="chap2"/>
    <itemref idref="nosuch"/>
  </spine>
</package>
`

const testChapter1 = "<html><body><p>The cat sat on the mat.</p></body></html>\n"
const testChapter2 = "<html><body><p>Second chapter.</p></body></html>\n"
const testCSS = "body { margin: 0; }\n"

var testCoverBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

// zipEntry describes one member for buildArchive.
type zipEntry struct {
	name   string
	data   []byte
	stored bool
}

// buildArchive writes a zip with the given entries in order.
func buildArchive(t *testing.T, path string, entries []zipEntry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		method := zip.Deflate
		if e.stored {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			t.Fatalf("creating entry %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("writing entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}
}

// standardEntries is a well-formed test book.
func standardEntries() []zipEntry {
	return []zipEntry{
		{name: MimetypeEntry, data: []byte(MediaType), stored: true},
		{name: ContainerPath, data: []byte(testContainer)},
		{name: "OEBPS/content.opf", data: []byte(testOPF)},
		{name: "OEBPS/chapter1.xhtml", data: []byte(testChapter1)},
		{name: "OEBPS/chapter2.xhtml", data: []byte(testChapter2)},
		{name: "OEBPS/style.css", data: []byte(testCSS)},
		{name: "OEBPS/cover.jpg", data: testCoverBytes},
	}
}

// writeBook creates a standard test book and returns its path.
func writeBook(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "book.epub")
	buildArchive(t, path, standardEntries())
	return path
}

func TestValidate_OK(t *testing.T) {
	path := writeBook(t, t.TempDir())
	l := NewLoader(corpus.NewStore(0))

	if err := l.Validate(path); err != nil {
		t.Fatalf("Validate error = %v", err)
	}
	if l.State() != StateValidated {
		t.Errorf("State = %v, want validated", l.State())
	}
}

func TestValidate_Errors(t *testing.T) {
	dir := t.TempDir()

	noContainer := filepath.Join(dir, "nocontainer.epub")
	buildArchive(t, noContainer, []zipEntry{
		{name: MimetypeEntry, data: []byte(MediaType), stored: true},
		{name: "OEBPS/content.opf", data: []byte(testOPF)},
	})

	mimetypeSecond := filepath.Join(dir, "second.epub")
	buildArchive(t, mimetypeSecond, []zipEntry{
		{name: ContainerPath, data: []byte(testContainer)},
		{name: MimetypeEntry, data: []byte(MediaType), stored: true},
	})

	compressedMimetype := filepath.Join(dir, "compressed.epub")
	buildArchive(t, compressedMimetype, []zipEntry{
		{name: MimetypeEntry, data: []byte(MediaType)},
		{name: ContainerPath, data: []byte(testContainer)},
	})

	wrongBytes := filepath.Join(dir, "wrongbytes.epub")
	buildArchive(t, wrongBytes, []zipEntry{
		{name: MimetypeEntry, data: []byte("text/plain"), stored: true},
		{name: ContainerPath, data: []byte(testContainer)},
	})

	notZip := filepath.Join(dir, "notzip.epub")
	if err := os.WriteFile(notZip, []byte("not a zip archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	wrongExt := filepath.Join(dir, "book.zip")
	buildArchive(t, wrongExt, standardEntries())

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing container", noContainer, ErrNoContainer},
		{"mimetype not first", mimetypeSecond, ErrMimetype},
		{"mimetype compressed", compressedMimetype, ErrMimetype},
		{"mimetype wrong bytes", wrongBytes, ErrMimetype},
		{"not a zip", notZip, ErrBadArchive},
		{"wrong extension", wrongExt, ErrBadExtension},
		{"nonexistent", filepath.Join(dir, "absent.epub"), ErrBadArchive},
	}

	for _, tt := range tests {
		l := NewLoader(corpus.NewStore(0))
		err := l.Validate(tt.path)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: Validate error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestLoad_Corpus(t *testing.T) {
	path := writeBook(t, t.TempDir())
	store := corpus.NewStore(0)
	l := NewLoader(store)

	if err := l.Load(path, nil); err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if l.State() != StateLoaded {
		t.Errorf("State = %v, want loaded", l.State())
	}

	got, ok := store.Get("OEBPS/chapter1.xhtml")
	if !ok {
		t.Fatal("chapter1 not in corpus")
	}
	if got != testChapter1 {
		t.Errorf("chapter1 = %q", got)
	}

	if _, ok := store.Get("OEBPS/cover.jpg"); ok {
		t.Error("binary member loaded into corpus")
	}
	if _, ok := store.Get("OEBPS/missing.xhtml"); ok {
		t.Error("absent manifest member appeared in corpus")
	}

	// chapter1, chapter2, style.css; the OPF itself is not listed in
	// its own manifest.
	if store.Len() != 3 {
		t.Errorf("corpus size = %d, want 3", store.Len())
	}
}

func TestLoad_ManifestSpineMetadata(t *testing.T) {
	path := writeBook(t, t.TempDir())
	l := NewLoader(corpus.NewStore(0))
	if err := l.Load(path, nil); err != nil {
		t.Fatalf("Load error = %v", err)
	}

	manifest := l.Manifest()
	if len(manifest) != 5 {
		t.Errorf("manifest size = %d, want 5", len(manifest))
	}
	if manifest["chap1"] != "chapter1.xhtml" {
		t.Errorf("manifest[chap1] = %q", manifest["chap1"])
	}

	spine := l.Spine()
	want := []string{"OEBPS/chapter1.xhtml", "OEBPS/chapter2.xhtml"}
	if len(spine) != len(want) {
		t.Fatalf("spine = %v, want %v", spine, want)
	}
	for i := range want {
		if spine[i] != want[i] {
			t.Errorf("spine[%d] = %q, want %q", i, spine[i], want[i])
		}
	}

	meta := l.Metadata()
	titles := meta["title"]
	if len(titles) != 1 || titles[0].Text != "Test Book" {
		t.Errorf("title metadata = %+v", titles)
	}
	creators := meta["creator"]
	if len(creators) != 1 || creators[0].Attrs["id"] != "author" {
		t.Errorf("creator metadata = %+v", creators)
	}
}

func TestLoad_Progress(t *testing.T) {
	path := writeBook(t, t.TempDir())
	l := NewLoader(corpus.NewStore(0))

	var calls int
	var lastTotal int
	err := l.Load(path, func(index, total int, label string) {
		calls++
		lastTotal = total
		if label == "" {
			t.Error("empty progress label")
		}
	})
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if calls != 5 || lastTotal != 5 {
		t.Errorf("progress calls = %d (total %d), want 5", calls, lastTotal)
	}
}

func TestLoad_MalformedOPFFailsWhole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.epub")
	entries := standardEntries()
	entries[2].data = []byte("<package>not namespaced, not closed")
	buildArchive(t, path, entries)

	store := corpus.NewStore(0)
	l := NewLoader(store)

	if err := l.Load(path, nil); err == nil {
		t.Fatal("Load succeeded on malformed package document")
	}
	if l.State() != StateFailed {
		t.Errorf("State = %v, want failed", l.State())
	}
	if store.Len() != 0 {
		t.Errorf("partial corpus exposed: %d files", store.Len())
	}
}

func TestLoad_ResetsPreviousCorpus(t *testing.T) {
	dir := t.TempDir()
	path := writeBook(t, dir)

	store := corpus.NewStore(0)
	store.Add("stale.xhtml", "left over from a previous load")

	l := NewLoader(store)
	if err := l.Load(path, nil); err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if _, ok := store.Get("stale.xhtml"); ok {
		t.Error("previous corpus survived a load")
	}
}

func TestStructure_Classification(t *testing.T) {
	path := writeBook(t, t.TempDir())
	l := NewLoader(corpus.NewStore(0))
	if err := l.Load(path, nil); err != nil {
		t.Fatalf("Load error = %v", err)
	}

	structure := l.Structure()
	if got := structure["html"]; len(got) != 2 {
		t.Errorf("html members = %v, want 2", got)
	}
	if got := structure["styles"]; len(got) != 1 {
		t.Errorf("style members = %v, want 1", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnopened, "unopened"},
		{StateValidated, "validated"},
		{StateParsed, "parsed"},
		{StateLoaded, "loaded"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
