// Package ticket generates tambola tickets.
package ticket

import (
	"sort"

	"github.com/cory-johannsen/tambola/internal/game/rules"
	"github.com/cory-johannsen/tambola/internal/random"
)

// Blank marks an empty ticket cell.
const Blank = 0

// Ticket is a Rows×Columns grid. Cells hold a number or Blank.
type Ticket [][]int

// Generate builds a ticket under r.
//
// Each row holds exactly r.PerRow numbers in distinct columns; a number in
// column c comes from r.ColumnValues(c); numbers never repeat and are ascending
// along every row and down every column.
//
// Precondition: r.Validate() == nil; src must be non-nil.
func Generate(src random.Source, r rules.Rules) Ticket {
	columns := make([]int, r.Columns)
	for c := range columns {
		columns[c] = c
	}

	// rowsByColumn[c] lists, in ascending order, the rows that have a number in column c.
	rowsByColumn := make([][]int, r.Columns)
	for row := 0; row < r.Rows; row++ {
		for _, c := range random.Pick(src, columns, r.PerRow) {
			rowsByColumn[c] = append(rowsByColumn[c], row)
		}
	}

	t := make(Ticket, r.Rows)
	for row := range t {
		t[row] = make([]int, r.Columns)
	}
	for c, rows := range rowsByColumn {
		if len(rows) == 0 {
			continue
		}
		values := random.Pick(src, r.ColumnValues(c), len(rows))
		sort.Ints(values)
		for i, row := range rows {
			t[row][c] = values[i]
		}
	}
	return t
}

// Numbers returns the ticket's numbers in row-major order.
func (t Ticket) Numbers() []int {
	var out []int
	for _, row := range t {
		for _, v := range row {
			if v != Blank {
				out = append(out, v)
			}
		}
	}
	return out
}

// Contains reports whether value appears on the ticket.
func (t Ticket) Contains(value int) bool {
	for _, row := range t {
		for _, v := range row {
			if v != Blank && v == value {
				return true
			}
		}
	}
	return false
}
