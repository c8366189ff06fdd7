// Package mdtable renders rows as GitHub-flavored Markdown tables.
package mdtable

import (
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Render returns a Markdown table. Output is deterministic for equal input.
func Render(headers []string, rows [][]string) string {
	var sb strings.Builder
	tw := tablewriter.NewWriter(&sb)
	tw.SetHeader(cleanRow(headers))
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAutoMergeCells(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range rows {
		tw.Append(cleanRow(pad(r, len(headers))))
	}
	tw.Render()
	return strings.TrimRight(sb.String(), "\n")
}

func pad(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	out := make([]string, n)
	copy(out, row)
	return out
}

func cleanRow(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		v = strings.ReplaceAll(v, "\r", " ")
		v = strings.ReplaceAll(v, "\n", " ")
		out[i] = strings.ReplaceAll(strings.TrimSpace(v), "|", `\|`)
	}
	return out
}
