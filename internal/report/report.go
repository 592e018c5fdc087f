// Package report renders scan results for the terminal and for machines.
//
// Four formats are supported: a lipgloss table, CSV, indented JSON and the
// Prometheus text exposition format (suitable for the node_exporter textfile
// collector). Aggregates of a target with no scored files print as "n/a".
package report

import (
	"fmt"
	"io"

	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

// Output formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatProm  = "prom"
)

const (
	bannerEntropies = "-----Entropies-----"
	bannerStats     = "-----Stats-----"
	bannerOutliers  = "-----Outliers-----"
	notAvailable    = "n/a"
)

// EntropyOptions tunes WriteEntropies.
type EntropyOptions struct {
	// ShowType adds the detected content type column (table and CSV).
	ShowType bool
}

// WriteEntropies renders per-file scores in the given format.
func WriteEntropies(w io.Writer, format string, files []entropy.FileEntropy, opts EntropyOptions) error {
	switch format {
	case FormatTable:
		return tableEntropies(w, files, opts)
	case FormatCSV:
		return csvEntropies(w, files, opts)
	case FormatJSON:
		return jsonEntropies(w, files)
	case FormatProm:
		return WriteProm(w, EntropyFamily(files))
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

// WriteStats renders the aggregate report for a target. A nil outliers
// slice means the outlier section is omitted; an empty one prints the
// section with no rows.
func WriteStats(w io.Writer, format string, st stats.Stats, outliers []entropy.FileEntropy) error {
	switch format {
	case FormatTable:
		return tableStats(w, st, outliers)
	case FormatCSV:
		return csvStats(w, st, outliers)
	case FormatJSON:
		return jsonStats(w, st, outliers)
	case FormatProm:
		fams := StatsFamilies(st)
		if outliers != nil {
			fams = append(fams, OutlierFamily(outliers))
		}
		return WriteProm(w, fams...)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

// score formats a per-file entropy.
func score(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// aggregate formats a Stats aggregate, or "n/a" when nothing was scored.
func aggregate(st stats.Stats, v float64) string {
	if st.Scored == 0 {
		return notAvailable
	}
	return score(v)
}

func statsRow(st stats.Stats) []string {
	return []string{
		st.Target,
		fmt.Sprint(st.Total),
		fmt.Sprint(st.Scored),
		aggregate(st, st.Mean),
		aggregate(st, st.Median),
		aggregate(st, st.Variance),
		aggregate(st, st.IQR),
	}
}

func entropyRow(f entropy.FileEntropy, showType bool) []string {
	row := []string{f.Path, score(f.Entropy)}
	if showType {
		row = append(row, f.ContentType)
	}
	return row
}
