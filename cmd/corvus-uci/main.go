package main

import (
	"flag"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/corvuschess/corvus/internal/book"
	"github.com/corvuschess/corvus/internal/engine"
	"github.com/corvuschess/corvus/internal/tablebase"
	"github.com/corvuschess/corvus/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	hashMB     = flag.Int("hash", 64, "transposition table size in MB")
	threads    = flag.Int("threads", 0, "Lazy-SMP worker threads (0 = one per CPU)")
	bookPath   = flag.String("book", "", "path to a Polyglot opening book")
	syzygyPath = flag.String("syzygy", "", "path to Syzygy tablebase files")
)

func main() {
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(os.Stderr)

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("CPU profiling enabled")
	}

	eng := engine.NewEngine(*hashMB)
	if *threads > 0 {
		eng.SetThreads(*threads)
	}

	if *syzygyPath != "" {
		prober := tablebase.NewSyzygyProber(*syzygyPath)
		if cached, err := tablebase.NewDiskCachedProber(prober, tablebase.DefaultCacheDir()); err != nil {
			log.Warn().Err(err).Msg("failed to open tablebase probe cache, probing uncached")
			eng.SetTablebase(prober)
		} else {
			defer cached.Close()
			eng.SetTablebase(cached)
		}
		eng.SetSyzygyProbeDepth(1)
	}

	protocol := uci.New(eng)

	if path := *bookPath; path != "" {
		if _, err := os.Stat(path); err == nil {
			if b, err := book.LoadPolyglot(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to load opening book")
			} else {
				log.Info().Str("path", path).Int("entries", b.Size()).Msg("opening book loaded")
				uci.SetStartupBook(protocol, b, path)
			}
		}
	} else if autoPath := defaultBookPath(); autoPath != "" {
		if b, err := book.LoadPolyglot(autoPath); err == nil {
			log.Info().Str("path", autoPath).Int("entries", b.Size()).Msg("opening book loaded")
			uci.SetStartupBook(protocol, b, autoPath)
		}
	}

	protocol.Run()
}

// defaultBookPath looks for a book.bin in the current working directory,
// the way engines conventionally ship a default book.
func defaultBookPath() string {
	candidate := filepath.Join(".", "book.bin")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
