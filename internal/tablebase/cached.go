package tablebase

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/corvuschess/corvus/internal/board"
)

// DefaultCacheDir returns the default directory for tablebase files and the
// on-disk probe cache.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".corvus", "syzygy")
	}
	return filepath.Join(home, ".corvus", "syzygy")
}

// CachedProber wraps another prober with an in-memory cache. When the cache is
// full, it drops about half its entries in map iteration order (no recency tracking).
// Useful when the inner prober is expensive to query repeatedly within a
// single search (e.g. re-probing the same endgame position across PV lines).
type CachedProber struct {
	inner   Prober
	cache   map[uint64]ProbeResult
	mu      sync.RWMutex
	maxSize int
	hits    uint64
	misses  uint64
}

// NewCachedProber creates a cached prober wrapping the given prober.
func NewCachedProber(inner Prober, cacheSize int) *CachedProber {
	return &CachedProber{
		inner:   inner,
		cache:   make(map[uint64]ProbeResult, cacheSize),
		maxSize: cacheSize,
	}
}

func (cp *CachedProber) Probe(pos *board.Position) ProbeResult {
	cp.mu.RLock()
	if result, ok := cp.cache[pos.Hash]; ok {
		cp.mu.RUnlock()
		cp.mu.Lock()
		cp.hits++
		cp.mu.Unlock()
		return result
	}
	cp.mu.RUnlock()

	result := cp.inner.Probe(pos)

	cp.mu.Lock()
	cp.misses++
	if len(cp.cache) >= cp.maxSize {
		i := 0
		for k := range cp.cache {
			if i >= cp.maxSize/2 {
				break
			}
			delete(cp.cache, k)
			i++
		}
	}
	cp.cache[pos.Hash] = result
	cp.mu.Unlock()

	return result
}

func (cp *CachedProber) ProbeRoot(pos *board.Position) RootResult {
	return cp.inner.ProbeRoot(pos)
}

func (cp *CachedProber) MaxPieces() int {
	return cp.inner.MaxPieces()
}

func (cp *CachedProber) Available() bool {
	return cp.inner.Available()
}

// HitRate returns the cache hit rate as a percentage.
func (cp *CachedProber) HitRate() float64 {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	total := cp.hits + cp.misses
	if total == 0 {
		return 0
	}
	return float64(cp.hits) / float64(total) * 100
}

// Clear clears the cache.
func (cp *CachedProber) Clear() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.cache = make(map[uint64]ProbeResult, cp.maxSize)
	cp.hits = 0
	cp.misses = 0
}

// diskEntrySize is the encoded size of a ProbeResult: found(1) + wdl(1) + dtz(4).
const diskEntrySize = 6

// DiskCachedProber persists probe results across process restarts in a
// badger key-value store, keyed by the position's Zobrist hash. This never
// stores search state (no depth, score, or move data) - only the verdict an
// external tablebase collaborator already returned, so repeated analysis of
// the same endgame doesn't re-pay the probe cost every run.
type DiskCachedProber struct {
	inner Prober
	db    *badger.DB
}

// NewDiskCachedProber opens (or creates) a badger store at dir and wraps inner.
func NewDiskCachedProber(inner Prober, dir string) (*DiskCachedProber, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskCachedProber{inner: inner, db: db}, nil
}

// Close closes the underlying badger store.
func (dp *DiskCachedProber) Close() error {
	return dp.db.Close()
}

func probeKey(hash uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, hash)
	return key
}

func encodeProbeResult(r ProbeResult) []byte {
	buf := make([]byte, diskEntrySize)
	if r.Found {
		buf[0] = 1
	}
	buf[1] = byte(int8(r.WDL))
	binary.BigEndian.PutUint32(buf[2:], uint32(int32(r.DTZ)))
	return buf
}

func decodeProbeResult(buf []byte) (ProbeResult, bool) {
	if len(buf) != diskEntrySize {
		return ProbeResult{}, false
	}
	return ProbeResult{
		Found: buf[0] == 1,
		WDL:   WDL(int8(buf[1])),
		DTZ:   int(int32(binary.BigEndian.Uint32(buf[2:]))),
	}, true
}

func (dp *DiskCachedProber) Probe(pos *board.Position) ProbeResult {
	key := probeKey(pos.Hash)

	var cached ProbeResult
	var hit bool
	err := dp.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cached, hit = decodeProbeResult(val)
			return nil
		})
	})
	if err == nil && hit {
		return cached
	}

	result := dp.inner.Probe(pos)

	if werr := dp.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encodeProbeResult(result))
	}); werr != nil {
		log.Warn().Err(werr).Msg("failed to persist tablebase probe result")
	}

	return result
}

func (dp *DiskCachedProber) ProbeRoot(pos *board.Position) RootResult {
	return dp.inner.ProbeRoot(pos)
}

func (dp *DiskCachedProber) MaxPieces() int {
	return dp.inner.MaxPieces()
}

func (dp *DiskCachedProber) Available() bool {
	return dp.inner.Available()
}
