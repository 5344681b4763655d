// Package main is the entry point for the quire EPUB editing tool.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/dshills/quire/internal/config"
	"github.com/dshills/quire/internal/corpus"
	"github.com/dshills/quire/internal/epub"
	"github.com/dshills/quire/internal/replace"
	"github.com/dshills/quire/internal/search"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

type options struct {
	configPath string
	searchPat  string
	replacePat string
	replaceTo  string
	fuzzy      bool
	maxDist    int
	regex      bool
	caseSens   bool
	wholeWord  bool
	output     string
	noBackup   bool
	verbose    bool
	archive    string
}

func run() int {
	opts, ok := parseFlags()
	if !ok {
		return 1
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if opts.verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger.Error("loading config", "err", err)
		return 1
	}

	store := corpus.NewStore(cfg.HistoryLimit)
	loader := epub.NewLoader(store)

	progress := func(index, total int, label string) {
		logger.Debug("loading member", "index", index, "total", total, "label", label)
	}
	if err := loader.Load(opts.archive, progress); err != nil {
		logger.Error("loading archive", "path", opts.archive, "err", err)
		return 1
	}

	stats := store.Stats()
	logger.Info("loaded", "path", opts.archive,
		"files", stats.TotalFiles, "words", stats.TotalWords)

	engine := search.NewEngine(store, cfg.Workers)
	engine.SetCacheLimit(cfg.CacheLimit)
	replacer := replace.NewEngine(store, cfg.ReplaceHistoryLimit)

	searchOpts := search.Options{
		CaseSensitive: opts.caseSens,
		Regex:         opts.regex,
		WholeWord:     opts.wholeWord,
		ContextSize:   cfg.ContextSize,
	}

	switch {
	case opts.searchPat != "" && opts.fuzzy:
		results := engine.FuzzySearch(opts.searchPat, opts.maxDist, cfg.ContextSize)
		printResults(results)

	case opts.searchPat != "":
		results := engine.Search(opts.searchPat, searchOpts)
		printResults(results)
		qs := engine.LastQueryStats()
		logger.Debug("query", "elapsed", qs.Elapsed, "files", qs.FilesScanned)

	case opts.replacePat != "":
		rstats := replacer.PatternReplace(opts.replacePat, opts.replaceTo, searchOpts, nil)
		// Cached results may be stale now; the cache contract puts
		// clearing on the caller.
		engine.Clear()
		logger.Info("replaced",
			"total", rstats.TotalReplacements,
			"files", rstats.FilesModified,
			"failed", rstats.FailedFiles,
			"chars", rstats.CharactersChanged)

		if rstats.FilesModified > 0 {
			saver := epub.NewSaver(store, cfg.BackupDir, cfg.MaxBackups)
			ok, msg := saver.Save(opts.archive, opts.output, !opts.noBackup)
			if !ok {
				logger.Error("saving archive", "msg", msg)
				return 1
			}
			logger.Info("saved", "msg", msg)
		}

	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -search or -replace")
		return 1
	}

	return 0
}

func parseFlags() (options, bool) {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.searchPat, "search", "", "Search for a pattern")
	flag.BoolVar(&opts.fuzzy, "fuzzy", false, "Approximate search")
	flag.IntVar(&opts.maxDist, "distance", 1, "Maximum edit distance for -fuzzy")
	flag.StringVar(&opts.replacePat, "replace", "", "Replace a pattern")
	flag.StringVar(&opts.replaceTo, "with", "", "Replacement text for -replace")
	flag.BoolVar(&opts.regex, "regex", false, "Treat the pattern as a regular expression")
	flag.BoolVar(&opts.caseSens, "case", false, "Case-sensitive matching")
	flag.BoolVar(&opts.wholeWord, "word", false, "Whole-word matching")
	flag.StringVar(&opts.output, "out", "", "Output path (default: save in place)")
	flag.BoolVar(&opts.noBackup, "no-backup", false, "Skip the backup before an in-place save")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("quire %s (%s)\n", version, commit)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: quire [flags] BOOK.epub")
		flag.PrintDefaults()
		return opts, false
	}
	opts.archive = flag.Arg(0)
	return opts, true
}

func printResults(results []search.Result) {
	for _, r := range results {
		fmt.Printf("%s:%d:%d: %s[%s]%s\n",
			r.Path, r.Line, r.StartCol, r.Before, r.Text, r.After)
	}
	fmt.Printf("%d match(es)\n", len(results))
}
