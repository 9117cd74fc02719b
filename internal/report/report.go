// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders the console tables printed by the command-line tools.
package report

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	evenRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	oddRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	highlightedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
				Bold(true).
				PaddingLeft(1).PaddingRight(1)
)

// Table is a bordered table with alternating row shades, where individual rows can be highlighted
// (e.g. examples that failed to load).
type Table struct {
	table       *lgtable.Table
	alignments  []lipgloss.Position
	numRows     int
	highlighted map[int]bool
}

// New creates a Table with the given column headers. Without headers, no header row is rendered.
func New(headers ...string) *Table {
	t := &Table{highlighted: make(map[int]bool)}
	t.table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(t.style)
	if len(headers) > 0 {
		t.table.Headers(headers...)
	}
	return t
}

// Align sets the alignment of each column. Columns beyond the ones given use the last alignment,
// and if none is given, they are left-aligned.
func (t *Table) Align(alignments ...lipgloss.Position) *Table {
	t.alignments = alignments
	return t
}

func (t *Table) style(row, col int) (s lipgloss.Style) {
	switch {
	case row == lgtable.HeaderRow:
		return headerRowStyle
	case t.highlighted[row]:
		s = highlightedRowStyle
	case row%2 == 0:
		s = evenRowStyle
	default:
		s = oddRowStyle
	}
	alignment := lipgloss.Left
	if col < len(t.alignments) {
		alignment = t.alignments[col]
	} else if len(t.alignments) > 0 {
		alignment = t.alignments[len(t.alignments)-1]
	}
	return s.Align(alignment)
}

// Row appends a row.
func (t *Table) Row(cells ...string) *Table {
	t.table.Row(cells...)
	t.numRows++
	return t
}

// HighlightedRow appends a row rendered in bold red.
func (t *Table) HighlightedRow(cells ...string) *Table {
	t.highlighted[t.numRows] = true
	return t.Row(cells...)
}

// NumRows returns the number of rows added, not counting the header.
func (t *Table) NumRows() int { return t.numRows }

// String renders the table.
func (t *Table) String() string { return t.table.String() }

// Count formats an integer with thousands separators.
func Count[T int | int64](n T) string {
	return humanize.Comma(int64(n))
}

// Bytes formats a size in bytes in human-readable SI units.
func Bytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	return humanize.Bytes(uint64(n))
}

// Percent formats a fraction in [0, 1] as a percentage.
func Percent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", 100*fraction)
}
