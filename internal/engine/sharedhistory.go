package engine

import "sync/atomic"

// SharedHistory is a history heuristic table shared across Lazy-SMP workers.
// Unlike MoveOrderer.history (per-worker), entries here are written by every
// worker thread concurrently; each cell is an atomic.Int32 so a read always
// observes a value some worker actually stored, never a torn word.
type SharedHistory struct {
	table [64][64]atomic.Int32
}

// NewSharedHistory creates an empty shared history table.
func NewSharedHistory() *SharedHistory {
	return &SharedHistory{}
}

// Get returns the current shared history score for a from/to pair.
func (sh *SharedHistory) Get(from, to int) int {
	return int(sh.table[from][to].Load())
}

// Update adds bonus to the from/to cell, same gravity-clamped shape as
// MoveOrderer.UpdateHistory so local and shared scores stay comparable.
func (sh *SharedHistory) Update(from, to, bonus int) {
	cell := &sh.table[from][to]
	for {
		old := cell.Load()
		next := old + int32(bonus)
		if next > 400000 {
			next /= 2
		} else if next < -400000 {
			next = -400000
		}
		if cell.CompareAndSwap(old, next) {
			return
		}
	}
}

// Clear halves every entry, called between games to avoid stale bias.
func (sh *SharedHistory) Clear() {
	for i := range sh.table {
		for j := range sh.table[i] {
			cell := &sh.table[i][j]
			cell.Store(cell.Load() / 2)
		}
	}
}
