package epub

import (
	"archive/zip"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Report lists the divergence between the corpus and an archive.
type Report struct {
	// MissingFromArchive are corpus paths absent from the archive.
	MissingFromArchive []string
	// MissingFromCorpus are archive members absent from the corpus.
	MissingFromCorpus []string
	// Mismatched are paths present in both with different content.
	Mismatched []string
}

// Clean reports whether the corpus and archive agree on every member
// present in both, with nothing missing either way.
func (r Report) Clean() bool {
	return len(r.MissingFromArchive) == 0 &&
		len(r.MissingFromCorpus) == 0 &&
		len(r.Mismatched) == 0
}

// IntegrityCheck compares the corpus against an archive without
// mutating either. Members that cannot be read or decoded as UTF-8 are
// reported as mismatched.
func (sv *Saver) IntegrityCheck(archivePath string) (Report, error) {
	var report Report

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer zr.Close()

	archive := make(map[string]*zip.File)
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		archive[normalizeName(f.Name)] = f
	}

	for _, path := range sv.store.Paths() {
		f, ok := archive[path]
		if !ok {
			report.MissingFromArchive = append(report.MissingFromArchive, path)
			continue
		}

		data, err := readEntry(f)
		if err != nil || !utf8.Valid(data) {
			report.Mismatched = append(report.Mismatched, path)
			continue
		}
		content, _ := sv.store.Get(path)
		if string(data) != content {
			report.Mismatched = append(report.Mismatched, path)
		}
	}

	corpus := make(map[string]struct{})
	for _, p := range sv.store.Paths() {
		corpus[p] = struct{}{}
	}
	for name := range archive {
		if _, ok := corpus[name]; !ok {
			report.MissingFromCorpus = append(report.MissingFromCorpus, name)
		}
	}

	sort.Strings(report.MissingFromArchive)
	sort.Strings(report.MissingFromCorpus)
	sort.Strings(report.Mismatched)
	return report, nil
}
