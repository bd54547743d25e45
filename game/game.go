package game

import (
	"strings"
)

// Mark is the content of a single board cell.
type Mark int

const (
	None    Mark = 0
	Player1 Mark = 1
	Player2 Mark = 2
)

// Result is the terminal outcome of a game. ResultNone means the game is
// still in progress.
type Result int

const (
	ResultNone Result = iota
	ResultDraw
	ResultPlayer1
	ResultPlayer2
)

func (r Result) String() string {
	switch r {
	case ResultDraw:
		return "Draw"
	case ResultPlayer1:
		return "Player 1"
	case ResultPlayer2:
		return "Player 2"
	}
	return ""
}

// Move is the outcome of an accepted move.
type Move struct {
	Row      int
	Col      int
	GameOver bool
}

// Game is the rule engine for one tic-tac-toe board. It is a pure state
// machine: no I/O, no locking. Callers that share a Game across goroutines
// must serialize access themselves.
type Game struct {
	board         [3][3]Mark
	currentPlayer int
	result        Result
	moves         int
}

// all 8 winning lines: 3 rows, 3 columns, 2 diagonals
var lines = [8][3][2]int{
	{{0, 0}, {0, 1}, {0, 2}}, {{1, 0}, {1, 1}, {1, 2}}, {{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}}, {{0, 1}, {1, 1}, {2, 1}}, {{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}}, {{2, 0}, {1, 1}, {0, 2}},
}

// New returns a fresh game with Player 1 to move.
func New() *Game {
	return &Game{currentPlayer: 1}
}

// CurrentPlayer returns the slot (1 or 2) whose turn it is. Once the game is
// over the value is frozen until Reset.
func (g *Game) CurrentPlayer() int {
	return g.currentPlayer
}

// Result returns the terminal outcome, or ResultNone while the game is live.
func (g *Game) Result() Result {
	return g.result
}

// Board returns a copy of the board.
func (g *Game) Board() [3][3]Mark {
	return g.board
}

// MakeMove places the current player's mark at (row, col).
//
// The move is rejected, with no state change, when the game is already over,
// the coordinates are out of range, or the cell is occupied. The caller
// cannot tell these cases apart; all are just an illegal move.
//
// On success the returned Move echoes the coordinates and reports whether
// this move ended the game. The turn flips to the other slot only while the
// game is still live.
func (g *Game) MakeMove(row, col int) (Move, bool) {
	if g.result != ResultNone || row < 0 || row > 2 || col < 0 || col > 2 || g.board[row][col] != None {
		return Move{}, false
	}

	g.board[row][col] = Mark(g.currentPlayer)
	g.moves++
	g.result = g.resultOrNone()
	if g.result != ResultNone {
		return Move{Row: row, Col: col, GameOver: true}, true
	}

	g.currentPlayer = g.currentPlayer%2 + 1
	return Move{Row: row, Col: col}, true
}

// Reset clears the board for a new round on the same session. Player 1 moves
// first again.
func (g *Game) Reset() {
	g.board = [3][3]Mark{}
	g.currentPlayer = 1
	g.result = ResultNone
	g.moves = 0
}

func (g *Game) resultOrNone() Result {
	for _, line := range lines {
		first := g.board[line[0][0]][line[0][1]]
		if first != None &&
			first == g.board[line[1][0]][line[1][1]] &&
			first == g.board[line[2][0]][line[2][1]] {
			if first == Player1 {
				return ResultPlayer1
			}
			return ResultPlayer2
		}
	}
	if g.moves == 9 {
		return ResultDraw
	}
	return ResultNone
}

// String renders the board for logging.
func (g *Game) String() string {
	symbols := [3]string{"-", "X", "O"}
	var sb strings.Builder
	for _, row := range g.board {
		for _, cell := range row {
			sb.WriteString(symbols[cell])
			sb.WriteString(" ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
