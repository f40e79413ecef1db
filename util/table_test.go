package util

import (
	"bytes"
	"testing"

	"github.com/olekukonko/tablewriter"
	"github.com/stretchr/testify/assert"
)

func TestVisualTable(t *testing.T) {
	var buf bytes.Buffer
	NewVisualTable(
		[]string{"ID", "STATUS"},
		[][]string{{"1", "PENDING"}, {"2", "COMPLETED"}},
		[]RowColor{{Row: 1, Column: []int{1}, Color: []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgCyanColor}}}},
	).WithWriter(&buf).Generate()

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "COMPLETED")
}
