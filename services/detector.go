package services

import (
	"github.com/samber/lo"

	"github.com/bellapacxx/bingo-live/models"
)

// WinnerDetector is a pure function library: no state, no storage. Pattern
// membership and progress use the same per-mode cell enumeration, so 100%
// progress and isWinner always agree.

// Cell addresses one grid position.
type Cell struct {
	Row int
	Col int
}

func isFree(c Cell) bool {
	return c.Row == models.FreeRow && c.Col == models.FreeCol
}

// CalledSet builds a membership set from the call history.
func CalledSet(numbers []int) map[int]bool {
	return lo.SliceToMap(numbers, func(n int) (int, bool) { return n, true })
}

// Marked reports whether a cell counts as covered: the free center always
// does, every other cell iff its number has been called.
func Marked(grid models.Grid, called map[int]bool, c Cell) bool {
	return isFree(c) || called[grid.Cell(c.Row, c.Col)]
}

// Mask evaluates the whole grid against the called set.
func Mask(grid models.Grid, called map[int]bool) [5][5]bool {
	var m [5][5]bool
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			m[row][col] = Marked(grid, called, Cell{row, col})
		}
	}
	return m
}

// requiredCells returns the explicit cell list of a fixed-position mode,
// or nil for the any-line mode.
func requiredCells(mode models.GameMode) []Cell {
	switch mode {
	case models.ModeFullCard:
		cells := make([]Cell, 0, 24)
		for row := 0; row < 5; row++ {
			for col := 0; col < 5; col++ {
				if c := (Cell{row, col}); !isFree(c) {
					cells = append(cells, c)
				}
			}
		}
		return cells
	case models.ModeFourCorners:
		return []Cell{{0, 0}, {0, 4}, {4, 0}, {4, 4}}
	case models.ModeLetterX:
		cells := make([]Cell, 0, 8)
		for i := 0; i < 5; i++ {
			for _, c := range []Cell{{i, i}, {i, 4 - i}} {
				if !isFree(c) && !lo.Contains(cells, c) {
					cells = append(cells, c)
				}
			}
		}
		return cells
	case models.ModeLetterT:
		cells := make([]Cell, 0, 8)
		for col := 0; col < 5; col++ {
			cells = append(cells, Cell{0, col})
		}
		for row := 1; row < 5; row++ {
			if c := (Cell{row, 2}); !isFree(c) {
				cells = append(cells, c)
			}
		}
		return cells
	default:
		return nil
	}
}

// candidateLines enumerates the 12 lines of the any-line mode: 5 rows,
// 5 columns and both diagonals.
func candidateLines() [][]Cell {
	lines := make([][]Cell, 0, 12)
	for row := 0; row < 5; row++ {
		line := make([]Cell, 5)
		for col := 0; col < 5; col++ {
			line[col] = Cell{row, col}
		}
		lines = append(lines, line)
	}
	for col := 0; col < 5; col++ {
		line := make([]Cell, 5)
		for row := 0; row < 5; row++ {
			line[row] = Cell{row, col}
		}
		lines = append(lines, line)
	}
	diag1 := make([]Cell, 5)
	diag2 := make([]Cell, 5)
	for i := 0; i < 5; i++ {
		diag1[i] = Cell{i, i}
		diag2[i] = Cell{i, 4 - i}
	}
	return append(lines, diag1, diag2)
}

// IsWinner evaluates pattern membership for one card under the given mode.
func IsWinner(grid models.Grid, called map[int]bool, mode models.GameMode) bool {
	if mode == models.ModeAnyLine {
		return lo.SomeBy(candidateLines(), func(line []Cell) bool {
			return lo.EveryBy(line, func(c Cell) bool { return Marked(grid, called, c) })
		})
	}
	cells := requiredCells(mode)
	if len(cells) == 0 {
		return false
	}
	return lo.EveryBy(cells, func(c Cell) bool { return Marked(grid, called, c) })
}

// Progress reports completed/total toward the active pattern. For fixed
// modes this counts required cells; for any-line it is the best marked
// count over all 12 candidate lines.
func Progress(grid models.Grid, called map[int]bool, mode models.GameMode) (completed, total int) {
	if mode == models.ModeAnyLine {
		best := 0
		for _, line := range candidateLines() {
			n := lo.CountBy(line, func(c Cell) bool { return Marked(grid, called, c) })
			if n > best {
				best = n
			}
		}
		return best, 5
	}
	cells := requiredCells(mode)
	done := lo.CountBy(cells, func(c Cell) bool { return Marked(grid, called, c) })
	return done, len(cells)
}

// FirstWinner scans cards in the given order and returns the first match,
// or nil. The single-candidate-per-call policy is deliberate: the scan
// order is oldest purchase first and stops at the first hit.
func FirstWinner(cards []models.Card, called map[int]bool, mode models.GameMode) *models.Card {
	for i := range cards {
		if IsWinner(cards[i].Grid, called, mode) {
			return &cards[i]
		}
	}
	return nil
}
