package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// column describes one table column. Max trims longer cells to fit an
// operator console; zero leaves the column unbounded.
type column struct {
	Title string
	Right bool
	Max   int
}

var (
	cueColumns = []column{
		{Title: ""},
		{Title: "#", Right: true},
		{Title: "Label", Max: 32},
		{Title: "Source", Max: 24},
		{Title: "Notes", Max: 40},
	}
	presetColumns = []column{
		{Title: "ID", Max: 36},
		{Title: "Label", Max: 32},
		{Title: "Hotkey"},
		{Title: "Steps", Right: true},
		{Title: "Actions", Max: 60},
	}
	fieldColumns   = []column{{Title: "Field"}, {Title: "Value", Max: 72}}
	surfaceColumns = []column{{Title: "Kind"}, {Title: "Name", Max: 48}, {Title: "Serial"}}
)

// printTable writes rows under cols. Terminals get rounded borders;
// pipes and files get plain ASCII so the output stays greppable.
func printTable(w io.Writer, cols []column, rows [][]string) {
	if len(cols) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleDefault)
	if isTerminal(w) {
		tw.SetStyle(table.StyleRounded)
	}

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.Title
		align := text.AlignLeft
		if c.Right {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
		if c.Max > 0 {
			configs[i].WidthMax = c.Max
			configs[i].WidthMaxEnforcer = text.Trim
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	fmt.Fprintln(w, tw.Render())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
