package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

func csvEntropies(w io.Writer, files []entropy.FileEntropy, opts EntropyOptions) error {
	if _, err := fmt.Fprintln(w, bannerEntropies); err != nil {
		return err
	}
	header := []string{"path", "entropy"}
	if opts.ShowType {
		header = append(header, "content_type")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, f := range files {
		if err := cw.Write(entropyRow(f, opts.ShowType)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvStats(w io.Writer, st stats.Stats, outliers []entropy.FileEntropy) error {
	if _, err := fmt.Fprintln(w, bannerStats); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"target", "total", "scored", "mean", "median", "variance", "iqr"})
	_ = cw.Write(statsRow(st))
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if outliers == nil {
		return nil
	}

	if _, err := fmt.Fprintf(w, "\n%s\n", bannerOutliers); err != nil {
		return err
	}
	_ = cw.Write([]string{"path", "entropy"})
	for _, f := range outliers {
		_ = cw.Write(entropyRow(f, false))
	}
	cw.Flush()
	return cw.Error()
}
