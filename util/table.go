package util

import (
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
)

// VisualTable renders a borderless, tab padded table. RowColor colors
// individual cells, every other cell keeps the terminal default.
type VisualTable struct {
	Header   []string
	Data     [][]string
	RowColor []RowColor

	out io.Writer
}

type RowColor struct {
	Row    int
	Column []int
	Color  []tablewriter.Colors
}

func NewVisualTable(header []string, data [][]string, rowColor []RowColor) *VisualTable {
	return &VisualTable{
		Header:   header,
		Data:     data,
		RowColor: rowColor,
		out:      os.Stdout,
	}
}

func (v *VisualTable) WithWriter(w io.Writer) *VisualTable {
	v.out = w
	return v
}

func (v *VisualTable) Generate() {
	table := tablewriter.NewWriter(v.out)

	for index, datum := range v.Data {
		var rowColors []tablewriter.Colors
		for _, rowColor := range v.RowColor {
			if index != rowColor.Row {
				continue
			}
			for dIndex := range datum {
				cell := tablewriter.Colors{}
				for n, colIndex := range rowColor.Column {
					if dIndex == colIndex {
						cell = rowColor.Color[n]
					}
				}
				rowColors = append(rowColors, cell)
			}
		}
		table.Rich(datum, rowColors)
	}

	table.SetHeader(v.Header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.Render()
}
