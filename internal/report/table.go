package report

import (
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// newTable returns a bordered table with the numeric columns right-aligned.
func newTable(headers []string, numeric ...int) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case slices.Contains(numeric, col):
				return numberStyle
			default:
				return cellStyle
			}
		})
}

func entropyTable(files []entropy.FileEntropy, showType bool) *table.Table {
	headers := []string{"PATH", "ENTROPY"}
	if showType {
		headers = append(headers, "TYPE")
	}
	t := newTable(headers, 1)
	for _, f := range files {
		t.Row(entropyRow(f, showType)...)
	}
	return t
}

func tableEntropies(w io.Writer, files []entropy.FileEntropy, opts EntropyOptions) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n", bannerEntropies, entropyTable(files, opts.ShowType))
	return err
}

func tableStats(w io.Writer, st stats.Stats, outliers []entropy.FileEntropy) error {
	headers := []string{"TARGET", "TOTAL", "SCORED", "MEAN", "MEDIAN", "VARIANCE", "IQR"}
	t := newTable(headers, 1, 2, 3, 4, 5, 6).Row(statsRow(st)...)
	if _, err := fmt.Fprintf(w, "%s\n%s\n", bannerStats, t); err != nil {
		return err
	}
	if outliers == nil {
		return nil
	}
	_, err := fmt.Fprintf(w, "\n%s\n%s\n", bannerOutliers, entropyTable(outliers, false))
	return err
}
