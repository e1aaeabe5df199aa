// Package engine implements the chess AI search engine.
package engine

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/corvuschess/corvus/internal/board"
	"github.com/corvuschess/corvus/internal/tablebase"
)

// SearchInfo contains information about the current search, reported once
// per completed iterative-deepening depth.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
}

// SearchLimits specifies constraints on the search.
type SearchLimits struct {
	Depth    int           // Maximum depth (0 = no limit)
	Nodes    uint64        // Maximum nodes (0 = no limit)
	MoveTime time.Duration // Time for this move (0 = no limit)
	Infinite bool          // Search until stopped
	MultiPV  int           // Number of principal variations to report (0 or 1 = single best line)
}

// Difficulty represents the AI difficulty level.
type Difficulty int

const (
	Easy   Difficulty = iota // ~2-3 ply, 500ms
	Medium                   // ~4-5 ply, 2s
	Hard                     // ~6+ ply, 5s
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 5, MoveTime: 2 * time.Second},
	Hard:   {Depth: 7, MoveTime: 5 * time.Second},
}

// PVResult is one line reported by a Multi-PV search.
type PVResult struct {
	Move  board.Move
	Score int
	Depth int
	PV    []board.Move
}

// Engine is the chess AI engine: a shared transposition table, shared
// history, and a pool of Lazy-SMP workers that all search the same root
// position independently and communicate only through those two tables.
type Engine struct {
	tt            *TranspositionTable
	pawnTable     *PawnTable
	sharedHistory *SharedHistory
	difficulty    Difficulty
	threads       int

	tablebase        tablebase.Prober
	syzygyProbeDepth int

	positionHistory []uint64

	stopFlag atomic.Bool
	nodes    atomic.Uint64

	// Callbacks
	OnInfo func(SearchInfo)
}

// NewEngine creates a new chess engine with the given transposition table
// size in MB. It defaults to one Lazy-SMP worker per available CPU.
func NewEngine(ttSizeMB int) *Engine {
	e := &Engine{
		tt:            NewTranspositionTable(ttSizeMB),
		pawnTable:     NewPawnTable(4),
		sharedHistory: NewSharedHistory(),
		difficulty:    Medium,
		threads:       runtime.NumCPU(),
		tablebase:     tablebase.NoopProber{},
	}
	if e.threads < 1 {
		e.threads = 1
	}
	return e
}

// SetDifficulty sets the engine difficulty.
func (e *Engine) SetDifficulty(d Difficulty) {
	e.difficulty = d
}

// SetThreads sets the number of Lazy-SMP worker threads used by subsequent searches.
func (e *Engine) SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	e.threads = n
}

// SetTablebase installs an external tablebase collaborator, consulted at the
// search root once the piece count drops to or below its supported size.
func (e *Engine) SetTablebase(p tablebase.Prober) {
	if p == nil {
		p = tablebase.NoopProber{}
	}
	e.tablebase = p
}

// SetSyzygyProbeDepth stores the UCI SyzygyProbeDepth option. A value below 1
// disables the root tablebase probe; any other value enables it, and the value
// is not compared with the search depth.
func (e *Engine) SetSyzygyProbeDepth(depth int) {
	e.syzygyProbeDepth = depth
}

// SetPositionHistory records the Zobrist hashes of positions reached earlier
// in the game, used by workers for threefold-repetition detection.
func (e *Engine) SetPositionHistory(hashes []uint64) {
	e.positionHistory = hashes
}

// Search finds the best move for the given position using the engine's
// configured difficulty.
func (e *Engine) Search(pos *board.Position) board.Move {
	limits := DifficultySettings[e.difficulty]
	return e.SearchWithLimits(pos, limits)
}

// SearchWithLimits runs a Lazy-SMP iterative-deepening search and returns the
// best move found. All workers share e.tt and e.sharedHistory; the search
// stops when any worker reaches the time or node budget, or the depth limit.
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	if root, ok := e.probeTablebaseRoot(pos); ok {
		return root
	}

	e.tt.NewSearch()
	e.stopFlag.Store(false)
	e.nodes.Store(0)

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	startTime := time.Now()
	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	numWorkers := e.threads
	if maxDepth < numWorkers {
		numWorkers = maxDepth
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	results := make([]WorkerResult, numWorkers)
	var g errgroup.Group

	for i := 0; i < numWorkers; i++ {
		i := i
		g.Go(func() error {
			w := NewWorker(i, e.tt, e.pawnTable, e.sharedHistory, &e.stopFlag)
			w.SetRootHistory(e.positionHistory)

			// Workers other than the main one (id 0) search at a slightly
			// offset depth so they diverge in the shared TT/history instead
			// of duplicating identical work.
			workerMaxDepth := maxDepth
			if i > 0 {
				workerMaxDepth += i % 2
			}

			var best board.Move
			var score int
			var reached int

			for depth := 1; depth <= workerMaxDepth; depth++ {
				if e.stopFlag.Load() {
					break
				}
				if !deadline.IsZero() && time.Now().After(deadline) {
					e.stopFlag.Store(true)
					break
				}

				w.InitSearch(pos)
				move, s := w.SearchDepth(depth, -Infinity, Infinity)
				if e.stopFlag.Load() {
					break
				}
				if move != board.NoMove {
					best, score, reached = move, s, depth
				}
				e.nodes.Add(w.Nodes())

				if i == 0 && e.OnInfo != nil {
					e.OnInfo(SearchInfo{
						Depth:    depth,
						Score:    score,
						Nodes:    e.nodes.Load(),
						Time:     time.Since(startTime),
						PV:       w.GetPV(),
						HashFull: e.tt.HashFull(),
					})
				}

				if score > MateScore-100 || score < -MateScore+100 {
					e.stopFlag.Store(true)
					break
				}

				if !deadline.IsZero() {
					elapsed := time.Since(startTime)
					remaining := limits.MoveTime - elapsed
					if remaining < elapsed {
						e.stopFlag.Store(true)
						break
					}
				}

				if limits.Nodes > 0 && e.nodes.Load() >= limits.Nodes {
					e.stopFlag.Store(true)
					break
				}
			}

			// The first worker to complete the target depth stops the others.
			if reached >= maxDepth {
				e.stopFlag.Store(true)
			}

			results[i] = WorkerResult{WorkerID: i, Depth: reached, Score: score, Move: best}
			return nil
		})
	}

	g.Wait()
	e.stopFlag.Store(true)

	return bestOfWorkers(results)
}

// bestOfWorkers picks the Lazy-SMP result with the greatest completed depth,
// breaking ties by score, per the spec's parallel-selection rule.
func bestOfWorkers(results []WorkerResult) board.Move {
	var best WorkerResult
	found := false
	for _, r := range results {
		if r.Move == board.NoMove {
			continue
		}
		if !found || r.Depth > best.Depth || (r.Depth == best.Depth && r.Score > best.Score) {
			best = r
			found = true
		}
	}
	return best.Move
}

// probeTablebaseRoot consults the configured tablebase collaborator when the
// position is at or below its supported piece count and probing is enabled.
func (e *Engine) probeTablebaseRoot(pos *board.Position) (board.Move, bool) {
	if e.tablebase == nil || !e.tablebase.Available() {
		return board.NoMove, false
	}
	if e.syzygyProbeDepth < 1 {
		return board.NoMove, false
	}
	if tablebase.CountPieces(pos) > e.tablebase.MaxPieces() {
		return board.NoMove, false
	}

	result := e.tablebase.ProbeRoot(pos)
	if !result.Found {
		return board.NoMove, false
	}

	legal := pos.GenerateLegalMoves()
	for i := 0; i < legal.Len(); i++ {
		if legal.Get(i) == result.Move {
			log.Info().Str("move", result.Move.String()).Msg("tablebase root move")
			return result.Move, true
		}
	}
	return board.NoMove, false
}

// SearchMultiPV runs limits.MultiPV independent single-threaded searches,
// excluding each previously found root move from the next, and returns the
// resulting lines ordered best-first. Multi-PV output is inherently
// sequential (later lines depend on earlier ones being excluded), so it does
// not use the Lazy-SMP worker pool.
func (e *Engine) SearchMultiPV(pos *board.Position, limits SearchLimits) []PVResult {
	n := limits.MultiPV
	if n < 1 {
		n = 1
	}

	e.tt.NewSearch()
	e.stopFlag.Store(false)

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	deadline := time.Time{}
	if limits.MoveTime > 0 {
		deadline = time.Now().Add(limits.MoveTime)
	}

	w := NewWorker(0, e.tt, e.pawnTable, e.sharedHistory, &e.stopFlag)
	w.SetRootHistory(e.positionHistory)

	var excluded []board.Move
	var results []PVResult

	for len(results) < n {
		w.SetExcludedMoves(excluded)

		var best board.Move
		var score, reached int

		for depth := 1; depth <= maxDepth; depth++ {
			if !deadline.IsZero() && time.Now().After(deadline) {
				break
			}
			w.InitSearch(pos)
			move, s := w.SearchDepth(depth, -Infinity, Infinity)
			if move == board.NoMove {
				break
			}
			best, score, reached = move, s, depth
		}

		if best == board.NoMove {
			break
		}

		results = append(results, PVResult{Move: best, Score: score, Depth: reached, PV: w.GetPV()})
		excluded = append(excluded, best)
	}

	return results
}

// Stop signals all in-flight searches to stop as soon as they next check.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
}

// Clear clears the transposition table and shared move-ordering state.
func (e *Engine) Clear() {
	e.tt.Clear()
	e.pawnTable.Clear()
	e.sharedHistory.Clear()
}

// Perft performs a perft test (for debugging move generation).
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}

	return nodes
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateScore - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateScore + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100

	return sign + itoa(pawns) + "." + itoa(centipawns)
}

// itoa is a small integer formatter kept dependency-free for the hot path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
