package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvuschess/corvus/internal/board"
)

// applyMoves applies a sequence of UCI-format move strings to pos in place,
// mirroring the loop internal/uci/uci.go's handlePosition uses for "moves ...".
func applyMoves(t *testing.T, pos *board.Position, moves ...string) {
	t.Helper()
	for _, s := range moves {
		m, err := board.ParseMove(s, pos)
		if err != nil {
			t.Fatalf("ParseMove(%q): %v", s, err)
		}
		pos.MakeMove(m)
	}
}

// TestMateInOne checks that the searcher finds a forced mate and reports a
// mate score, not just a large positional score.
func TestMateInOne(t *testing.T) {
	// Scholar's mate setup: 1.e4 e5 2.Qh5 Nc6 3.Bc4 Nf6?? leaves Qxf7# on the board.
	pre := board.NewPosition()
	applyMoves(t, pre, "e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6")

	eng := NewEngine(16)
	move := eng.SearchWithLimits(pre, SearchLimits{Depth: 3, MoveTime: 2 * time.Second})

	if move.From() != board.H5 || move.To() != board.F7 {
		t.Fatalf("expected the searcher to find Qxf7#, got %s", move.String())
	}

	undo := pre.MakeMove(move)
	mated := pre.InCheck() && pre.GenerateLegalMoves().Len() == 0
	pre.UnmakeMove(move, undo)

	if !mated {
		t.Errorf("expected %s to deliver checkmate", move.String())
	}
}

// TestStalemateScoresZero checks that a stalemated position is scored as a
// draw (0), never as a loss or a win.
func TestStalemateScoresZero(t *testing.T) {
	// Classic stalemate: black king a8, white king c7, white queen b6, black to move.
	pos, err := board.ParseFEN("k7/2K5/1Q6/8/8/8/8/8 b - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	if pos.InCheck() {
		t.Fatalf("expected stalemate position, not check")
	}
	if pos.GenerateLegalMoves().Len() != 0 {
		t.Fatalf("expected no legal moves (stalemate), got %d", pos.GenerateLegalMoves().Len())
	}

	var stopFlag atomic.Bool
	w := NewWorker(0, NewTranspositionTable(1), NewPawnTable(1), NewSharedHistory(), &stopFlag)
	w.InitSearch(pos)
	score := w.negamax(1, 0, -Infinity, Infinity, board.NoMove)
	if score != 0 {
		t.Errorf("expected stalemate to score 0, got %d", score)
	}
}

// TestEnPassantSequence walks the canonical en-passant-creating sequence and
// checks the capture is legal and produces the expected board state.
func TestEnPassantSequence(t *testing.T) {
	pos := board.NewPosition()
	applyMoves(t, pos, "e2e4", "a7a6", "e4e5", "d7d5")

	if pos.EnPassant == board.NoSquare {
		t.Fatalf("expected en passant target square to be set after d7d5")
	}

	epMove, err := board.ParseMove("e5d6", pos)
	if err != nil {
		t.Fatalf("ParseMove(e5d6): %v", err)
	}
	if !epMove.IsEnPassant() {
		t.Fatalf("expected e5d6 to be parsed as an en passant capture")
	}
	if !pos.IsLegal(epMove) {
		t.Fatalf("expected e5d6 en passant capture to be legal")
	}

	undo := pos.MakeMove(epMove)
	if pos.PieceAt(board.D5) != board.NoPiece {
		t.Errorf("expected captured pawn to be removed from d5")
	}
	if pos.PieceAt(board.D6).Type() != board.Pawn {
		t.Errorf("expected capturing pawn to land on d6")
	}
	pos.UnmakeMove(epMove, undo)
	if pos.PieceAt(board.D5).Type() != board.Pawn {
		t.Errorf("expected unmake to restore captured pawn on d5")
	}
}

// TestPromotionSelection checks that a forced a8=Q promotion is both legal
// and chosen as the search's preferred move over the minor-piece alternatives.
func TestPromotionSelection(t *testing.T) {
	pos, err := board.ParseFEN("8/P6k/8/8/8/8/7K/8 w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	queenPromo, err := board.ParseMove("a7a8q", pos)
	if err != nil {
		t.Fatalf("ParseMove(a7a8q): %v", err)
	}
	if !pos.IsLegal(queenPromo) {
		t.Fatalf("expected a7a8q to be legal")
	}

	eng := NewEngine(4)
	move := eng.SearchWithLimits(pos, SearchLimits{Depth: 5, MoveTime: 2 * time.Second})
	if move.From() != queenPromo.From() || move.To() != queenPromo.To() {
		t.Fatalf("expected search to promote the a-pawn, got %s", move.String())
	}
	if !move.IsPromotion() || move.Promotion() != board.Queen {
		t.Errorf("expected queen promotion, got promotion piece %v (isPromotion=%v)", move.Promotion(), move.IsPromotion())
	}
}

// TestZobristEqualUnderTransposition checks that reaching the same position
// by two different move orders produces the same Zobrist key, which is what
// lets the transposition table and threefold-repetition detection treat them
// as identical.
func TestZobristEqualUnderTransposition(t *testing.T) {
	a := board.NewPosition()
	applyMoves(t, a, "g1f3", "g8f6", "b1c3", "b8c6")

	b := board.NewPosition()
	applyMoves(t, b, "b1c3", "b8c6", "g1f3", "g8f6")

	if a.Hash != b.Hash {
		t.Fatalf("expected transposed move orders to produce identical hashes: %016x vs %016x", a.Hash, b.Hash)
	}

	c := board.NewPosition()
	applyMoves(t, c, "b1c3", "b8c6", "c3b1", "c6b8")
	d := board.NewPosition()

	if c.Hash != d.Hash {
		t.Errorf("expected a round-trip knight shuffle to repeat the starting hash: %016x vs %016x", c.Hash, d.Hash)
	}
	if !c.IsRepetition([]uint64{d.Hash}, 1) {
		t.Errorf("expected IsRepetition to detect the repeated starting position")
	}
}

// TestParallelSearchReturnsLegalMove runs the same position through
// Lazy-SMP search several times and checks every run returns a legal move.
// The chosen move itself may differ between runs, since worker node counts
// and the order of shared-table writes are not fixed.
func TestParallelSearchReturnsLegalMove(t *testing.T) {
	fen := "r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4"

	limits := SearchLimits{Depth: 6, MoveTime: 2 * time.Second}

	for i := 0; i < 3; i++ {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("ParseFEN: %v", err)
		}
		eng := NewEngine(16)
		eng.SetThreads(4)
		move := eng.SearchWithLimits(pos, limits)
		if move == board.NoMove {
			t.Fatalf("run %d: search returned NoMove", i)
		}
		if !pos.GenerateLegalMoves().Contains(move) {
			t.Errorf("run %d: best move %s is not legal in the root position", i, move.String())
		}
	}
}
