package tablebase

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/corvuschess/corvus/internal/board"
)

// SyzygyProber probes local Syzygy WDL/DTZ tablebase files.
//
// File presence and the material signature are checked locally; core search
// only calls Probe/ProbeRoot through the Prober interface and never reaches
// into the on-disk format itself, so this type is deliberately narrow: it
// reports whether a position's material key is covered and otherwise defers
// to NoopProber behavior. Decoding the compressed rtbw/rtbz payload is out
// of scope for the core engine.
type SyzygyProber struct {
	path      string
	maxPieces int
	available bool
	mu        sync.RWMutex
}

// NewSyzygyProber creates a Syzygy prober rooted at path.
// If path is empty, DefaultCacheDir is used.
func NewSyzygyProber(path string) *SyzygyProber {
	if path == "" {
		path = DefaultCacheDir()
	}

	sp := &SyzygyProber{path: path}
	sp.refresh()
	return sp
}

// refresh checks available tablebase files and updates maxPieces.
func (sp *SyzygyProber) refresh() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if _, err := os.Stat(sp.path); os.IsNotExist(err) {
		sp.available = false
		sp.maxPieces = 0
		log.Info().Str("path", sp.path).Msg("syzygy path does not exist, tablebase probing disabled")
		return
	}

	sp.maxPieces = maxPiecesOnDisk(sp.path)
	sp.available = sp.maxPieces > 0

	if sp.available {
		log.Info().Str("path", sp.path).Int("max_pieces", sp.maxPieces).Msg("syzygy tablebases found")
	} else {
		log.Info().Str("path", sp.path).Msg("no syzygy tablebases found at path")
	}
}

// SetPath updates the tablebase path and refreshes available files.
func (sp *SyzygyProber) SetPath(path string) {
	if path == "" {
		path = DefaultCacheDir()
	}
	sp.path = path
	sp.refresh()
}

// Probe looks up a position in the tablebase.
func (sp *SyzygyProber) Probe(pos *board.Position) ProbeResult {
	if CountPieces(pos) > sp.MaxPieces() || !sp.HasLocalFiles(positionToMaterial(pos)) {
		return ProbeResult{Found: false}
	}
	// WDL/DTZ decoding is not implemented; presence alone cannot resolve a
	// verdict, so report a miss rather than guess.
	return ProbeResult{Found: false}
}

// ProbeRoot finds the best move from the tablebase.
func (sp *SyzygyProber) ProbeRoot(pos *board.Position) RootResult {
	if CountPieces(pos) > sp.MaxPieces() {
		return RootResult{Found: false}
	}
	return RootResult{Found: false}
}

// MaxPieces returns the maximum number of pieces supported.
func (sp *SyzygyProber) MaxPieces() int {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.maxPieces
}

// Available returns true if any local tablebase files were found.
func (sp *SyzygyProber) Available() bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.available
}

// HasLocalFiles reports whether both WDL and DTZ files exist for a material key.
func (sp *SyzygyProber) HasLocalFiles(material string) bool {
	sp.mu.RLock()
	path := sp.path
	sp.mu.RUnlock()

	wdlPath := filepath.Join(path, material+".rtbw")
	dtzPath := filepath.Join(path, material+".rtbz")

	_, wdlErr := os.Stat(wdlPath)
	_, dtzErr := os.Stat(dtzPath)

	return wdlErr == nil && dtzErr == nil
}

// Path returns the current tablebase directory.
func (sp *SyzygyProber) Path() string {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.path
}

// maxPiecesOnDisk scans path for the largest N such that at least one
// N-piece material signature has its WDL (.rtbw) file present; DTZ (.rtbz)
// files are not checked.
func maxPiecesOnDisk(path string) int {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".rtbw") {
			seen[strings.TrimSuffix(name, ".rtbw")] = true
		}
	}

	max := 0
	for material := range seen {
		if n := countMaterialPieces(material); n > max {
			max = n
		}
	}
	return max
}

func countMaterialPieces(material string) int {
	n := 0
	for _, c := range material {
		if c != 'v' {
			n++
		}
	}
	return n
}

// positionToMaterial converts a position to a material key like "KQvKR".
func positionToMaterial(pos *board.Position) string {
	var white, black strings.Builder

	for pt := board.Queen; pt >= board.Pawn; pt-- {
		count := (pos.Pieces[board.White][pt]).PopCount()
		for i := 0; i < count; i++ {
			white.WriteByte(pieceChar(pt))
		}
	}

	for pt := board.Queen; pt >= board.Pawn; pt-- {
		count := (pos.Pieces[board.Black][pt]).PopCount()
		for i := 0; i < count; i++ {
			black.WriteByte(pieceChar(pt))
		}
	}

	return "K" + white.String() + "vK" + black.String()
}

func pieceChar(pt board.PieceType) byte {
	switch pt {
	case board.Queen:
		return 'Q'
	case board.Rook:
		return 'R'
	case board.Bishop:
		return 'B'
	case board.Knight:
		return 'N'
	case board.Pawn:
		return 'P'
	default:
		return '?'
	}
}
